package style_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/khankhulgun/khanrender/style"
)

func road(class string, lanes float64) *geojson.Feature {
	f := geojson.NewFeature(orb.LineString{{0, 0}, {1, 1}})
	f.Properties = geojson.Properties{"class": class, "lanes": lanes}
	return f
}

func TestCompileFilter(t *testing.T) {
	tests := []struct {
		name    string
		filter  []interface{}
		feature *geojson.Feature
		want    bool
	}{
		{"nil filter selects all", nil, road("motorway", 4), true},
		{"equality", []interface{}{"==", "class", "motorway"}, road("motorway", 4), true},
		{"equality miss", []interface{}{"==", "class", "street"}, road("motorway", 4), false},
		{"inequality", []interface{}{"!=", "class", "street"}, road("motorway", 4), true},
		{"numeric compare", []interface{}{">=", "lanes", 4.0}, road("motorway", 4), true},
		{"numeric compare miss", []interface{}{">", "lanes", 4.0}, road("motorway", 4), false},
		{"has", []interface{}{"has", "lanes"}, road("motorway", 4), true},
		{"not has", []interface{}{"!has", "tunnel"}, road("motorway", 4), true},
		{"in", []interface{}{"in", "class", "street", "motorway"}, road("motorway", 4), true},
		{"not in", []interface{}{"!in", "class", "street", "path"}, road("motorway", 4), true},
		{"missing key never matches", []interface{}{"==", "tunnel", true}, road("motorway", 4), false},
		{
			"all",
			[]interface{}{"all",
				[]interface{}{"==", "class", "motorway"},
				[]interface{}{">", "lanes", 2.0},
			},
			road("motorway", 4), true,
		},
		{
			"any",
			[]interface{}{"any",
				[]interface{}{"==", "class", "street"},
				[]interface{}{">", "lanes", 2.0},
			},
			road("motorway", 4), true,
		},
		{
			"none",
			[]interface{}{"none", []interface{}{"==", "class", "street"}},
			road("motorway", 4), true,
		},
		{"geometry type", []interface{}{"==", "$type", "LineString"}, road("motorway", 4), true},
		{"geometry type miss", []interface{}{"==", "$type", "Point"}, road("motorway", 4), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := style.CompileFilter(tc.filter)
			if err != nil {
				t.Fatalf("CompileFilter(%v): %v", tc.filter, err)
			}
			if got := p(tc.feature); got != tc.want {
				t.Errorf("predicate = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFilterTypeNormalization(t *testing.T) {
	f := geojson.NewFeature(orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}})
	p, err := style.CompileFilter([]interface{}{"==", "$type", "Polygon"})
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}
	if !p(f) {
		t.Errorf("MultiPolygon should normalize to Polygon")
	}
}

func TestFilterID(t *testing.T) {
	f := geojson.NewFeature(orb.Point{0, 0})
	f.ID = 42.0
	p, err := style.CompileFilter([]interface{}{"==", "$id", 42.0})
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}
	if !p(f) {
		t.Errorf("$id filter should match feature id 42")
	}
}

func TestFilterErrors(t *testing.T) {
	bad := [][]interface{}{
		{"between", "lanes", 1.0, 2.0},
		{"=="},
		{"==", 5.0, "x"},
		{"all", "not-a-filter"},
	}
	for _, filter := range bad {
		if _, err := style.CompileFilter(filter); err == nil {
			t.Errorf("CompileFilter(%v) succeeded, want error", filter)
		}
	}
}
