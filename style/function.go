package style

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/mazznoer/csscolorparser"
	"github.com/paulmach/orb/geojson"
)

// ErrBadStops marks a malformed stop specification. It is reported when a
// layer is compiled, so a broken layer can be dropped without affecting
// the others.
var ErrBadStops = errors.New("style: malformed stops")

// Tag classifies what a compiled function depends on. Constant functions
// can be evaluated once per style load, zoom functions once per draw call
// and property functions must be evaluated per feature.
type Tag int

const (
	Constant Tag = iota
	Zoom
	Property
)

func (t Tag) String() string {
	switch t {
	case Constant:
		return "constant"
	case Zoom:
		return "zoom"
	case Property:
		return "property"
	}
	return "unknown"
}

// Function is a compiled style property. Evaluation is pure: it never
// mutates the feature and is safe for concurrent use.
type Function struct {
	tag  Tag
	eval func(zoom float64, feature *geojson.Feature) interface{}
}

func (f *Function) Tag() Tag { return f.tag }

func (f *Function) Evaluate(zoom float64, feature *geojson.Feature) interface{} {
	return f.eval(zoom, feature)
}

type stop struct {
	input  float64
	output interface{}
}

// Compile turns a raw style property value into a Function. A literal
// becomes a constant; an object without a property field (or with
// property "zoom") becomes a function of zoom; any other property name
// makes the function data-driven.
func Compile(raw interface{}) (*Function, error) {
	def, ok := raw.(map[string]interface{})
	if !ok {
		return &Function{tag: Constant, eval: func(float64, *geojson.Feature) interface{} { return raw }}, nil
	}

	property, _ := def["property"].(string)
	byZoom := property == "" || property == "zoom"

	if t, _ := def["type"].(string); t == "identity" {
		if byZoom {
			return &Function{tag: Zoom, eval: func(zoom float64, _ *geojson.Feature) interface{} { return zoom }}, nil
		}
		return &Function{tag: Property, eval: func(_ float64, feature *geojson.Feature) interface{} {
			if feature == nil {
				return nil
			}
			return feature.Properties[property]
		}}, nil
	}

	stops, err := parseStops(def["stops"])
	if err != nil {
		return nil, err
	}
	base := 1.0
	if b, ok := toFloat(def["base"]); ok {
		base = b
	}

	evalStops := func(x float64) interface{} { return evaluateStops(stops, base, x) }

	if byZoom {
		return &Function{tag: Zoom, eval: func(zoom float64, _ *geojson.Feature) interface{} {
			return evalStops(zoom)
		}}, nil
	}
	return &Function{tag: Property, eval: func(_ float64, feature *geojson.Feature) interface{} {
		if feature == nil {
			return stops[0].output
		}
		x, ok := toFloat(feature.Properties[property])
		if !ok {
			return stops[0].output
		}
		return evalStops(x)
	}}, nil
}

func parseStops(raw interface{}) ([]stop, error) {
	pairs, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: stops missing", ErrBadStops)
	}
	if len(pairs) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 stops, got %d", ErrBadStops, len(pairs))
	}
	stops := make([]stop, 0, len(pairs))
	for i, p := range pairs {
		pair, ok := p.([]interface{})
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("%w: stop %d is not a 2-element pair", ErrBadStops, i)
		}
		input, ok := toFloat(pair[0])
		if !ok {
			return nil, fmt.Errorf("%w: stop %d input is not a number", ErrBadStops, i)
		}
		if i > 0 && input <= stops[i-1].input {
			return nil, fmt.Errorf("%w: stop inputs must be strictly increasing", ErrBadStops)
		}
		stops = append(stops, stop{input: input, output: pair[1]})
	}
	return stops, nil
}

func evaluateStops(stops []stop, base, x float64) interface{} {
	if math.IsNaN(x) {
		return stops[0].output
	}
	// Find the first stop whose input exceeds x.
	idx := -1
	for i, s := range stops {
		if s.input > x {
			idx = i
			break
		}
	}
	if idx == 0 {
		return stops[0].output
	}
	if idx < 0 {
		return stops[len(stops)-1].output
	}

	lower, upper := stops[idx-1], stops[idx]
	t := interpolationFactor(base, x, lower.input, upper.input)
	return interpolate(lower.output, upper.output, t)
}

func interpolationFactor(base, x, x0, x1 float64) float64 {
	if x1 == x0 {
		return 0
	}
	if base == 1 {
		return (x - x0) / (x1 - x0)
	}
	return (math.Pow(base, x-x0) - 1) / (math.Pow(base, x1-x0) - 1)
}

// interpolate blends two stop outputs. Numbers lerp, color strings blend
// component-wise, everything else steps on the lower value.
func interpolate(lower, upper interface{}, t float64) interface{} {
	if t <= 0 {
		return lower
	}
	if t >= 1 {
		return upper
	}
	if a, ok := toFloat(lower); ok {
		if b, ok := toFloat(upper); ok {
			return a + (b-a)*t
		}
	}
	if as, ok := lower.(string); ok {
		if bs, ok := upper.(string); ok {
			if blended, ok := blendColors(as, bs, t); ok {
				return blended
			}
		}
	}
	return lower
}

func blendColors(a, b string, t float64) (string, bool) {
	ca, err := csscolorparser.Parse(a)
	if err != nil {
		return "", false
	}
	cb, err := csscolorparser.Parse(b)
	if err != nil {
		return "", false
	}
	r := math.Round((ca.R + (cb.R-ca.R)*t) * 255)
	g := math.Round((ca.G + (cb.G-ca.G)*t) * 255)
	bl := math.Round((ca.B + (cb.B-ca.B)*t) * 255)
	alpha := ca.A + (cb.A-ca.A)*t
	return fmt.Sprintf("rgba(%d,%d,%d,%s)", int(r), int(g), int(bl), formatAlpha(alpha)), true
}

func formatAlpha(a float64) string {
	return fmt.Sprintf("%g", math.Round(a*1000)/1000)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
