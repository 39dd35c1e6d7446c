package models

import (
	"encoding/json"
	"fmt"
)

// Style is a decoded map style document. It is immutable after parsing;
// changing a style means parsing a new document and recompiling the
// renderer against it.
type Style struct {
	Version int               `json:"version"`
	Sources map[string]Source `json:"sources"`
	Sprite  string            `json:"sprite"`
	Glyphs  string            `json:"glyphs"`
	Layers  []Layer           `json:"layers"`
}

type Source struct {
	Type     string   `json:"type"`
	Tiles    []string `json:"tiles,omitempty"`
	URL      string   `json:"url,omitempty"`
	TileSize int      `json:"tileSize,omitempty"`
	MinZoom  *float64 `json:"minzoom,omitempty"`
	MaxZoom  *float64 `json:"maxzoom,omitempty"`
}

// Layer is one rendering rule from the style document. Layout and Paint
// values are left untyped: each may be a literal, an identity function or
// a stop table, and the style package compiles them into functions.
type Layer struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Source      string                 `json:"source,omitempty"`
	SourceLayer string                 `json:"source-layer,omitempty"`
	Group       string                 `json:"group,omitempty"`
	Filter      []interface{}          `json:"filter,omitempty"`
	Layout      map[string]interface{} `json:"layout,omitempty"`
	Paint       map[string]interface{} `json:"paint,omitempty"`
	MinZoom     *float64               `json:"minzoom,omitempty"`
	MaxZoom     *float64               `json:"maxzoom,omitempty"`
}

// Visibility returns the layout visibility value, defaulting to "visible".
func (l Layer) Visibility() string {
	if l.Layout == nil {
		return "visible"
	}
	v, ok := l.Layout["visibility"].(string)
	if !ok {
		return "visible"
	}
	return v
}

// InZoomRange reports whether the layer should draw at the given zoom.
func (l Layer) InZoomRange(zoom float64) bool {
	if l.MinZoom != nil && zoom < *l.MinZoom {
		return false
	}
	if l.MaxZoom != nil && zoom > *l.MaxZoom {
		return false
	}
	return true
}

// ParseStyle decodes a style document from JSON.
func ParseStyle(data []byte) (*Style, error) {
	var style Style
	if err := json.Unmarshal(data, &style); err != nil {
		return nil, fmt.Errorf("failed to parse style document: %w", err)
	}
	for i, layer := range style.Layers {
		if layer.ID == "" {
			return nil, fmt.Errorf("style layer %d has no id", i)
		}
	}
	return &style, nil
}
