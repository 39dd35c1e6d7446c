package paint

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/khankhulgun/khanrender/models"
	"github.com/khankhulgun/khanrender/sprite"
	"github.com/khankhulgun/khanrender/style"
	"github.com/khankhulgun/khanrender/tiles"
)

// ErrUnsupportedLayerType marks style layer types outside the supported
// set. fill-extrusion, heatmap and hillshade are intentionally
// unsupported; layers of those types are dropped at compile time.
var ErrUnsupportedLayerType = errors.New("paint: unsupported layer type")

// LayerType is the closed set of layer kinds the painter can draw.
type LayerType int

const (
	Background LayerType = iota
	Raster
	Fill
	Line
	Circle
	Symbol
)

func (t LayerType) String() string {
	switch t {
	case Background:
		return "background"
	case Raster:
		return "raster"
	case Fill:
		return "fill"
	case Line:
		return "line"
	case Circle:
		return "circle"
	case Symbol:
		return "symbol"
	}
	return "unknown"
}

func ParseLayerType(s string) (LayerType, error) {
	switch s {
	case "background":
		return Background, nil
	case "raster":
		return Raster, nil
	case "fill":
		return Fill, nil
	case "line":
		return Line, nil
	case "circle":
		return Circle, nil
	case "symbol":
		return Symbol, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedLayerType, s)
}

// layerProps lists the paint/layout properties the painter evaluates per
// layer type. Properties missing from the style document fall back to
// the defaults table.
var layerProps = map[LayerType][]string{
	Background: {"background-color", "background-opacity"},
	Raster:     {"raster-opacity"},
	Fill:       {"fill-color", "fill-opacity"},
	Line:       {"line-color", "line-opacity", "line-width", "line-dasharray", "line-cap", "line-join"},
	Circle: {
		"circle-color", "circle-radius", "circle-opacity",
		"circle-stroke-width", "circle-stroke-color", "circle-stroke-opacity",
	},
	Symbol: {
		"text-field", "text-size", "text-transform", "text-anchor", "text-offset",
		"text-padding", "text-line-height", "text-color", "text-halo-color", "text-halo-width",
		"icon-image", "icon-size", "icon-offset", "icon-padding",
	},
}

type featProp struct {
	name string
	fn   *style.Function
}

// CompiledLayer is one style layer compiled for drawing: its filter as a
// predicate and its properties as functions, split into those evaluated
// once per draw call and those evaluated per feature.
type CompiledLayer struct {
	Layer models.Layer
	Type  LayerType

	filter    style.Predicate
	zoomProps map[string]*style.Function
	featProps []featProp
}

// CompileLayer compiles a style layer once, at style-load time. A
// malformed property or unsupported type is a configuration error; the
// caller drops the layer and keeps the rest.
func CompileLayer(l models.Layer) (*CompiledLayer, error) {
	t, err := ParseLayerType(l.Type)
	if err != nil {
		return nil, err
	}
	filter, err := style.CompileFilter(l.Filter)
	if err != nil {
		return nil, fmt.Errorf("layer %q: %w", l.ID, err)
	}

	cl := &CompiledLayer{
		Layer:     l,
		Type:      t,
		filter:    filter,
		zoomProps: make(map[string]*style.Function),
	}
	for _, name := range layerProps[t] {
		raw, ok := l.Paint[name]
		if !ok {
			raw, ok = l.Layout[name]
		}
		if !ok {
			continue
		}
		fn, err := style.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("layer %q property %q: %w", l.ID, name, err)
		}
		if fn.Tag() == style.Property {
			cl.featProps = append(cl.featProps, featProp{name: name, fn: fn})
		} else {
			cl.zoomProps[name] = fn
		}
	}
	return cl, nil
}

// HasFeatureProps reports whether any property depends on feature data,
// which forces per-run batching instead of a single draw call.
func (cl *CompiledLayer) HasFeatureProps() bool { return len(cl.featProps) > 0 }

// Draw paints one layer onto the canvas. It returns false without
// touching the surface when the layer is hidden or out of zoom range, or
// when there is nothing to draw.
func (cl *CompiledLayer) Draw(c *Canvas, t *tiles.Tile, zoom float64, atlas *sprite.Atlas, boxes *BoxList) bool {
	if cl.Layer.Visibility() == "none" || !cl.Layer.InZoomRange(zoom) {
		return false
	}

	switch cl.Type {
	case Background:
		vals := cl.evalZoom(zoom)
		cl.paintBackground(c, vals)
		return true
	case Raster:
		data := t.Source(cl.Layer.Source)
		if data == nil || data.Image == nil {
			return false
		}
		vals := cl.evalZoom(zoom)
		c.DrawImage(data.Image, vals.num("raster-opacity", 1))
		return true
	}

	features := cl.selectFeatures(t)
	if len(features) == 0 {
		return false
	}
	proj := NewProjection(t.ID, c.Size())

	if cl.Type == Symbol {
		return cl.drawSymbols(c, proj, features, zoom, atlas, boxes)
	}
	cl.drawVector(c, proj, features, zoom)
	return true
}

// selectFeatures pulls the layer's source-layer collection from the tile
// and applies the compiled filter.
func (cl *CompiledLayer) selectFeatures(t *tiles.Tile) []*geojson.Feature {
	data := t.Source(cl.Layer.Source)
	if data == nil || data.Collections == nil {
		return nil
	}
	name := cl.Layer.SourceLayer
	if name == "" {
		name = cl.Layer.Source
	}
	fc := data.Collections[name]
	if fc == nil {
		return nil
	}

	out := make([]*geojson.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if cl.filter(f) {
			out = append(out, f)
		}
	}
	return out
}

func (cl *CompiledLayer) paintBackground(c *Canvas, vals values) {
	size := float64(c.Size())
	c.SetFillColor(ParseColor(vals.str("background-color", "#000000"), vals.num("background-opacity", 1)))
	path := &Path{}
	path.Add([]Point{{0, 0}, {size, 0}, {size, size}, {0, size}})
	c.Fill(path)
}

// drawVector batches fill/line/circle features. Without data-driven
// properties every feature lands in one path and one draw call; with
// them, features are pre-sorted by composite style key so each run of
// identically-styled features costs one state change.
func (cl *CompiledLayer) drawVector(c *Canvas, proj Projection, features []*geojson.Feature, zoom float64) {
	base := cl.evalZoom(zoom)

	if !cl.HasFeatureProps() {
		cl.emit(c, proj, features, base)
		return
	}

	type styled struct {
		feature *geojson.Feature
		vals    values
		key     string
	}
	list := make([]styled, len(features))
	for i, f := range features {
		vals := make(values, len(cl.featProps))
		var key strings.Builder
		for _, p := range cl.featProps {
			v := p.fn.Evaluate(zoom, f)
			vals[p.name] = v
			fmt.Fprintf(&key, "%v\x00", v)
		}
		list[i] = styled{feature: f, vals: vals, key: key.String()}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].key < list[j].key })

	for start := 0; start < len(list); {
		end := start + 1
		for end < len(list) && list[end].key == list[start].key {
			end++
		}
		vals := base.merge(list[start].vals)
		run := make([]*geojson.Feature, 0, end-start)
		for _, s := range list[start:end] {
			run = append(run, s.feature)
		}
		cl.emit(c, proj, run, vals)
		start = end
	}
}

// emit applies draw state once and rasterizes a run of same-styled
// features.
func (cl *CompiledLayer) emit(c *Canvas, proj Projection, features []*geojson.Feature, vals values) {
	switch cl.Type {
	case Fill:
		c.SetFillColor(ParseColor(vals.str("fill-color", "#000000"), vals.num("fill-opacity", 1)))
		path := &Path{}
		for _, f := range features {
			proj.FillPath(f.Geometry, path)
		}
		c.Fill(path)

	case Line:
		c.SetStrokeColor(ParseColor(vals.str("line-color", "#000000"), vals.num("line-opacity", 1)))
		c.SetLineWidth(vals.num("line-width", 1))
		c.SetLineCap(vals.str("line-cap", "butt"))
		c.SetLineJoin(vals.str("line-join", "miter"))
		c.SetDash(vals.nums("line-dasharray"))
		path := &Path{}
		for _, f := range features {
			proj.LinePath(f.Geometry, path)
		}
		c.Stroke(path, false)

	case Circle:
		c.SetFillColor(ParseColor(vals.str("circle-color", "#000000"), vals.num("circle-opacity", 1)))
		strokeWidth := vals.num("circle-stroke-width", 0)
		if strokeWidth > 0 {
			c.SetStrokeColor(ParseColor(vals.str("circle-stroke-color", "#000000"), vals.num("circle-stroke-opacity", 1)))
		}
		radius := vals.num("circle-radius", 5)
		for _, f := range features {
			for _, pt := range proj.Points(f.Geometry) {
				c.FillCircle(pt.X, pt.Y, radius, strokeWidth)
			}
		}
	}
}

// drawSymbols lays out and paints labels with greedy first-come
// collision avoidance: a feature is suppressed entirely when its text or
// icon box intersects any box already accepted in this pass.
func (cl *CompiledLayer) drawSymbols(c *Canvas, proj Projection, features []*geojson.Feature, zoom float64, atlas *sprite.Atlas, boxes *BoxList) bool {
	base := cl.evalZoom(zoom)
	drew := false

	for _, f := range features {
		vals := base
		if cl.HasFeatureProps() {
			per := make(values, len(cl.featProps))
			for _, p := range cl.featProps {
				per[p.name] = p.fn.Evaluate(zoom, f)
			}
			vals = base.merge(per)
		}

		anchor, ok := proj.Anchor(f.Geometry)
		if !ok {
			continue
		}

		var candidates []Box

		var icon image.Image
		var iconRect image.Rectangle
		hasIcon := false
		if name := expandTemplate(vals.str("icon-image", ""), f); name != "" && atlas != nil {
			if img, meta, ok := atlas.Icon(name); ok {
				scale := vals.num("icon-size", 1)
				w := float64(meta.Width) * scale
				h := float64(meta.Height) * scale
				off := vals.nums("icon-offset")
				var dx, dy float64
				if len(off) == 2 {
					dx, dy = off[0], off[1]
				}
				box := layoutIcon(anchor, w, h, dx, dy, vals.num("icon-padding", 2))
				iconRect = image.Rect(
					int(anchor.X+dx-w/2), int(anchor.Y+dy-h/2),
					int(anchor.X+dx+w/2), int(anchor.Y+dy+h/2),
				)
				icon = img
				hasIcon = true
				candidates = append(candidates, box)
			}
		}

		var layout textLayout
		hasText := false
		if template := vals.str("text-field", ""); template != "" {
			text := transformCase(expandTemplate(template, f), vals.str("text-transform", "none"))
			if text != "" {
				off := vals.nums("text-offset")
				var dx, dy float64
				if len(off) == 2 {
					dx, dy = off[0], off[1]
				}
				l, err := layoutText(
					text, anchor,
					vals.str("text-anchor", "center"),
					dx, dy,
					vals.num("text-size", 16),
					vals.num("text-padding", 2),
					vals.num("text-line-height", 1.2),
					vals.num("text-halo-width", 0),
				)
				if err == nil {
					layout = l
					hasText = true
					candidates = append(candidates, l.box)
				}
			}
		}

		if len(candidates) == 0 {
			continue
		}
		if boxes.Collides(candidates...) {
			continue
		}
		boxes.Add(candidates...)

		if hasIcon {
			c.DrawIcon(icon, iconRect)
		}
		if hasText {
			haloWidth := vals.num("text-halo-width", 0)
			c.DrawString(
				layout.face, layout.text, layout.dotX, layout.dotY,
				ParseColor(vals.str("text-color", "#000000"), 1),
				ParseColor(vals.str("text-halo-color", "rgba(255,255,255,1)"), 1),
				haloWidth,
			)
		}
		drew = true
	}
	return drew
}

// values holds evaluated style values for one draw call or feature run.
type values map[string]interface{}

func (cl *CompiledLayer) evalZoom(zoom float64) values {
	vals := make(values, len(cl.zoomProps))
	for name, fn := range cl.zoomProps {
		vals[name] = fn.Evaluate(zoom, nil)
	}
	return vals
}

func (v values) merge(other values) values {
	out := make(values, len(v)+len(other))
	for k, val := range v {
		out[k] = val
	}
	for k, val := range other {
		out[k] = val
	}
	return out
}

func (v values) str(name, def string) string {
	if raw, ok := v[name]; ok {
		if s, ok := raw.(string); ok {
			return s
		}
	}
	return def
}

func (v values) num(name string, def float64) float64 {
	if raw, ok := v[name]; ok {
		switch n := raw.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return def
}

func (v values) nums(name string) []float64 {
	raw, ok := v[name]
	if !ok {
		return nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(list))
	for _, item := range list {
		switch n := item.(type) {
		case float64:
			out = append(out, n)
		case int:
			out = append(out, float64(n))
		}
	}
	return out
}
