package tiles

import (
	"fmt"
	"image"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
)

// ID identifies one map tile.
type ID struct {
	Z int
	X int
	Y int
}

// String renders the tile identity "z/x/y" used as the cross-cutting
// cancellation tag for scheduler chains.
func (id ID) String() string {
	return fmt.Sprintf("%d/%d/%d", id.Z, id.X, id.Y)
}

// Bound returns the tile's geographic bounds.
func (id ID) Bound() orb.Bound {
	return maptile.New(uint32(id.X), uint32(id.Y), maptile.Zoom(id.Z)).Bound()
}

// SourceData is what one declared source contributed to a tile: feature
// collections for vector sources, an image for raster sources. Err is set
// when the source failed; the tile still loads (partial-failure
// tolerance), layers over the failed source simply have nothing to draw.
type SourceData struct {
	Collections map[string]*geojson.FeatureCollection
	Image       image.Image
	Err         error
}

// Tile is one (z,x,y) unit of map data and its rendering lifecycle.
// Lifecycle: pending -> loaded -> rendering -> rendered, with a canceled
// flag settable from any state.
type Tile struct {
	ID ID

	mu          sync.Mutex
	sources     map[string]*SourceData
	surface     *image.RGBA
	loaded      bool
	canceled    bool
	rendering   bool
	rendered    bool
	remaining   int
	vectorTasks map[string]int64 // source name -> dispatcher task id
	callbacks   []func(*Tile)
}

func newTile(id ID) *Tile {
	return &Tile{
		ID:          id,
		sources:     make(map[string]*SourceData),
		vectorTasks: make(map[string]int64),
	}
}

// NewLoadedTile builds a tile that already holds its source data, for
// rendering paths that bypass the orchestrator.
func NewLoadedTile(id ID, sources map[string]*SourceData) *Tile {
	t := newTile(id)
	for name, data := range sources {
		t.sources[name] = data
	}
	t.loaded = true
	return t
}

// Source returns the loaded data for a declared source, or nil.
func (t *Tile) Source(name string) *SourceData {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sources[name]
}

// Surface returns the tile's drawing surface, set by the renderer.
func (t *Tile) Surface() *image.RGBA {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.surface
}

func (t *Tile) SetSurface(img *image.RGBA) {
	t.mu.Lock()
	t.surface = img
	t.mu.Unlock()
}

func (t *Tile) Loaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loaded
}

func (t *Tile) Canceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

func (t *Tile) Rendered() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rendered
}

// Cancel flags the tile: pending load callbacks are dropped and an
// in-progress render pass stops at its next step boundary. Vector loads
// already dispatched are canceled by the orchestrator, not here.
func (t *Tile) Cancel() {
	t.mu.Lock()
	t.canceled = true
	t.callbacks = nil
	t.mu.Unlock()
}

// BeginRender transitions loaded -> rendering. It reports false when the
// tile is canceled, not yet loaded, or already rendering/rendered, making
// a render pass idempotent and exactly-once.
func (t *Tile) BeginRender() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.canceled || !t.loaded || t.rendering || t.rendered {
		return false
	}
	t.rendering = true
	return true
}

// FinishRender transitions rendering -> rendered.
func (t *Tile) FinishRender() {
	t.mu.Lock()
	t.rendering = false
	t.rendered = true
	t.mu.Unlock()
}

// AbortRender clears the rendering flag without marking the tile
// rendered, for passes stopped by cancellation.
func (t *Tile) AbortRender() {
	t.mu.Lock()
	t.rendering = false
	t.mu.Unlock()
}

// sourceDone records one source's outcome. When the last outstanding
// source reports, the tile becomes loaded and the callbacks fire; a
// canceled tile swallows late completions silently.
func (t *Tile) sourceDone(name string, data *SourceData) {
	t.mu.Lock()
	delete(t.vectorTasks, name)
	if t.canceled {
		t.mu.Unlock()
		return
	}
	t.sources[name] = data
	t.remaining--
	ready := t.remaining <= 0 && !t.loaded
	if ready {
		t.loaded = true
	}
	var callbacks []func(*Tile)
	if ready {
		callbacks = t.callbacks
		t.callbacks = nil
	}
	t.mu.Unlock()

	for _, cb := range callbacks {
		cb(t)
	}
}
