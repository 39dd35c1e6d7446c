package style

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// Predicate decides whether a feature is selected by a layer's filter.
type Predicate func(*geojson.Feature) bool

// CompileFilter turns a declarative filter expression into a Predicate.
// The expression is either a combinator ["all"|"any"|"none", ...filters]
// or a leaf [op, key, values...] with op in
// {has,!has,==,!=,>,>=,<,<=,in,!in}. A nil filter selects everything.
func CompileFilter(filter []interface{}) (Predicate, error) {
	if len(filter) == 0 {
		return func(*geojson.Feature) bool { return true }, nil
	}

	op, ok := filter[0].(string)
	if !ok {
		return nil, fmt.Errorf("style: filter operator must be a string, got %v", filter[0])
	}

	switch op {
	case "all", "any", "none":
		subs := make([]Predicate, 0, len(filter)-1)
		for i, raw := range filter[1:] {
			sub, ok := raw.([]interface{})
			if !ok {
				return nil, fmt.Errorf("style: %q subfilter %d is not a filter expression", op, i)
			}
			p, err := CompileFilter(sub)
			if err != nil {
				return nil, err
			}
			subs = append(subs, p)
		}
		return combine(op, subs), nil
	}

	if len(filter) < 2 {
		return nil, fmt.Errorf("style: filter %q needs a key", op)
	}
	key, ok := filter[1].(string)
	if !ok {
		return nil, fmt.Errorf("style: filter %q key must be a string", op)
	}

	switch op {
	case "has":
		return func(f *geojson.Feature) bool {
			_, ok := lookup(f, key)
			return ok
		}, nil
	case "!has":
		return func(f *geojson.Feature) bool {
			_, ok := lookup(f, key)
			return !ok
		}, nil
	case "==", "!=", ">", ">=", "<", "<=":
		if len(filter) != 3 {
			return nil, fmt.Errorf("style: filter %q needs exactly one value", op)
		}
		want := filter[2]
		return func(f *geojson.Feature) bool {
			got, ok := lookup(f, key)
			if !ok {
				return false
			}
			return compare(op, got, want)
		}, nil
	case "in", "!in":
		values := filter[2:]
		member := func(f *geojson.Feature) bool {
			got, ok := lookup(f, key)
			if !ok {
				return false
			}
			for _, want := range values {
				if compare("==", got, want) {
					return true
				}
			}
			return false
		}
		if op == "in" {
			return member, nil
		}
		return func(f *geojson.Feature) bool { return !member(f) }, nil
	}

	return nil, fmt.Errorf("style: unsupported filter operator %q", op)
}

func combine(op string, subs []Predicate) Predicate {
	switch op {
	case "all":
		return func(f *geojson.Feature) bool {
			for _, p := range subs {
				if !p(f) {
					return false
				}
			}
			return true
		}
	case "any":
		return func(f *geojson.Feature) bool {
			for _, p := range subs {
				if p(f) {
					return true
				}
			}
			return false
		}
	default: // none
		return func(f *geojson.Feature) bool {
			for _, p := range subs {
				if p(f) {
					return false
				}
			}
			return true
		}
	}
}

// lookup resolves a filter key against a feature. "$type" yields the
// geometry type with multi-geometries normalized to their singular form,
// "$id" yields the feature identifier.
func lookup(f *geojson.Feature, key string) (interface{}, bool) {
	if f == nil {
		return nil, false
	}
	switch key {
	case "$type":
		if f.Geometry == nil {
			return nil, false
		}
		return strings.TrimPrefix(f.Geometry.GeoJSONType(), "Multi"), true
	case "$id":
		if f.ID == nil {
			return nil, false
		}
		return f.ID, true
	}
	v, ok := f.Properties[key]
	return v, ok
}

func compare(op string, got, want interface{}) bool {
	if gn, ok := toFloat(got); ok {
		if wn, ok := toFloat(want); ok {
			switch op {
			case "==":
				return gn == wn
			case "!=":
				return gn != wn
			case ">":
				return gn > wn
			case ">=":
				return gn >= wn
			case "<":
				return gn < wn
			case "<=":
				return gn <= wn
			}
			return false
		}
	}
	gs := fmt.Sprint(got)
	ws := fmt.Sprint(want)
	switch op {
	case "==":
		return gs == ws
	case "!=":
		return gs != ws
	case ">":
		return gs > ws
	case ">=":
		return gs >= ws
	case "<":
		return gs < ws
	case "<=":
		return gs <= ws
	}
	return false
}
