package style_test

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/khankhulgun/khanrender/style"
)

func mustCompile(t *testing.T, raw interface{}) *style.Function {
	t.Helper()
	fn, err := style.Compile(raw)
	if err != nil {
		t.Fatalf("Compile(%v): %v", raw, err)
	}
	return fn
}

func stops(pairs ...[2]interface{}) []interface{} {
	out := make([]interface{}, len(pairs))
	for i, p := range pairs {
		out[i] = []interface{}{p[0], p[1]}
	}
	return out
}

func TestCompileLiteral(t *testing.T) {
	fn := mustCompile(t, "#ff0000")
	if fn.Tag() != style.Constant {
		t.Errorf("Tag() = %v, want constant", fn.Tag())
	}
	if got := fn.Evaluate(12, nil); got != "#ff0000" {
		t.Errorf("Evaluate() = %v, want #ff0000", got)
	}
}

func TestLinearStops(t *testing.T) {
	fn := mustCompile(t, map[string]interface{}{
		"stops": stops([2]interface{}{0.0, 10.0}, [2]interface{}{10.0, 20.0}),
	})
	if fn.Tag() != style.Zoom {
		t.Errorf("Tag() = %v, want zoom", fn.Tag())
	}

	tests := []struct {
		zoom float64
		want float64
	}{
		{5, 15},   // midpoint
		{-1, 10},  // clamp below
		{11, 20},  // clamp above
		{0, 10},   // exact lower boundary
		{10, 20},  // exact upper boundary
		{2.5, 12.5},
	}
	for _, tc := range tests {
		got, ok := fn.Evaluate(tc.zoom, nil).(float64)
		if !ok || math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Evaluate(%v) = %v, want %v", tc.zoom, fn.Evaluate(tc.zoom, nil), tc.want)
		}
	}
}

func TestExponentialStops(t *testing.T) {
	fn := mustCompile(t, map[string]interface{}{
		"base":  2.0,
		"stops": stops([2]interface{}{0.0, 0.0}, [2]interface{}{1.0, 100.0}),
	})
	if got := fn.Evaluate(1, nil).(float64); got != 100 {
		t.Errorf("Evaluate(1) = %v, want 100", got)
	}
	if got := fn.Evaluate(0, nil).(float64); got != 0 {
		t.Errorf("Evaluate(0) = %v, want 0", got)
	}
	// The exponential curve lags the linear one between the stops.
	mid := fn.Evaluate(0.5, nil).(float64)
	if mid <= 0 || mid >= 50 {
		t.Errorf("Evaluate(0.5) = %v, want in (0, 50)", mid)
	}
}

func TestColorInterpolation(t *testing.T) {
	fn := mustCompile(t, map[string]interface{}{
		"stops": stops(
			[2]interface{}{0.0, "rgba(0,0,0,1)"},
			[2]interface{}{10.0, "rgba(255,255,255,1)"},
		),
	})
	got, ok := fn.Evaluate(5, nil).(string)
	if !ok {
		t.Fatalf("Evaluate(5) = %v, want a color string", fn.Evaluate(5, nil))
	}
	want := "rgba(128,128,128,1)"
	alt := "rgba(127,127,127,1)" // rounding may land either side
	if got != want && got != alt {
		t.Errorf("Evaluate(5) = %q, want %q (±1 per component)", got, want)
	}
}

func TestStepOutputs(t *testing.T) {
	fn := mustCompile(t, map[string]interface{}{
		"stops": stops([2]interface{}{0.0, "butt"}, [2]interface{}{10.0, "round"}),
	})
	if got := fn.Evaluate(9.9, nil); got != "butt" {
		t.Errorf("Evaluate(9.9) = %v, want lower stop value", got)
	}
	if got := fn.Evaluate(10, nil); got != "round" {
		t.Errorf("Evaluate(10) = %v, want upper stop value", got)
	}
}

func TestPropertyFunction(t *testing.T) {
	fn := mustCompile(t, map[string]interface{}{
		"property": "population",
		"stops":    stops([2]interface{}{0.0, 2.0}, [2]interface{}{1000.0, 12.0}),
	})
	if fn.Tag() != style.Property {
		t.Errorf("Tag() = %v, want property", fn.Tag())
	}

	feature := geojson.NewFeature(orb.Point{0, 0})
	feature.Properties = geojson.Properties{"population": 500.0}
	if got := fn.Evaluate(0, feature).(float64); math.Abs(got-7) > 1e-9 {
		t.Errorf("Evaluate(population=500) = %v, want 7", got)
	}

	// Non-numeric property values clamp to the first output.
	feature.Properties["population"] = "many"
	if got := fn.Evaluate(0, feature); got != 2.0 {
		t.Errorf("Evaluate(population=\"many\") = %v, want 2", got)
	}
	if got := fn.Evaluate(0, nil); got != 2.0 {
		t.Errorf("Evaluate(nil feature) = %v, want 2", got)
	}
}

func TestIdentityFunction(t *testing.T) {
	fn := mustCompile(t, map[string]interface{}{"type": "identity", "property": "color"})
	feature := geojson.NewFeature(orb.Point{0, 0})
	feature.Properties = geojson.Properties{"color": "#00ff00"}
	if got := fn.Evaluate(3, feature); got != "#00ff00" {
		t.Errorf("Evaluate() = %v, want #00ff00", got)
	}

	zoomFn := mustCompile(t, map[string]interface{}{"type": "identity"})
	if got := zoomFn.Evaluate(3.5, nil); got != 3.5 {
		t.Errorf("identity zoom Evaluate() = %v, want 3.5", got)
	}
}

func TestBadStops(t *testing.T) {
	bad := []interface{}{
		map[string]interface{}{"stops": []interface{}{}},
		map[string]interface{}{"stops": stops([2]interface{}{0.0, 1.0})},
		map[string]interface{}{"stops": stops([2]interface{}{5.0, 1.0}, [2]interface{}{5.0, 2.0})},
		map[string]interface{}{"stops": stops([2]interface{}{5.0, 1.0}, [2]interface{}{1.0, 2.0})},
		map[string]interface{}{"stops": "nope"},
		map[string]interface{}{"property": "x"},
	}
	for _, raw := range bad {
		if _, err := style.Compile(raw); err == nil {
			t.Errorf("Compile(%v) succeeded, want error", raw)
		}
	}
}

func TestMultiStopTable(t *testing.T) {
	fn := mustCompile(t, map[string]interface{}{
		"stops": stops(
			[2]interface{}{0.0, 0.0},
			[2]interface{}{10.0, 100.0},
			[2]interface{}{20.0, 400.0},
		),
	})
	want := map[float64]float64{5: 50, 15: 250, 25: 400}
	got := map[float64]float64{}
	for zoom := range want {
		got[zoom] = fn.Evaluate(zoom, nil).(float64)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("multi-stop evaluation mismatch (-want+got):\n%v", diff)
	}
}
