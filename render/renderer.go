// Package render composes compiled style layers into finished tile
// surfaces on the cooperative scheduler.
package render

import (
	"image"
	"image/draw"
	"log"
	"sync"

	"github.com/khankhulgun/khanrender/models"
	"github.com/khankhulgun/khanrender/paint"
	"github.com/khankhulgun/khanrender/sched"
	"github.com/khankhulgun/khanrender/sprite"
	"github.com/khankhulgun/khanrender/tiles"
)

// Group is one lamina of the composite: a named run of consecutive
// layers drawn onto their own surface so whole groups can be shown or
// hidden without re-rendering.
type Group struct {
	Name string

	// Draw order within the group: non-symbol layers in declaration
	// order, then symbol layers in reverse declaration order so the
	// style's topmost labels win the collision pass.
	layers []*paint.CompiledLayer
}

func (g *Group) Layers() []*paint.CompiledLayer { return g.layers }

// Renderer owns the compiled style and renders tiles group by group, one
// scheduler turn per group.
type Renderer struct {
	sched    *sched.Scheduler
	tileSize int

	mu      sync.Mutex
	atlas   *sprite.Atlas
	style   *models.Style
	groups  []*Group
	hidden  map[string]bool
	version int
}

func New(s *sched.Scheduler, atlas *sprite.Atlas, tileSize int) *Renderer {
	return &Renderer{
		sched:    s,
		tileSize: tileSize,
		atlas:    atlas,
		hidden:   make(map[string]bool),
	}
}

// SetStyle compiles the style's layers and partitions them into groups.
// A layer that fails to compile is logged and dropped; the rest of the
// style still renders. Each call bumps the style version.
func (r *Renderer) SetStyle(st *models.Style) {
	var groups []*Group
	var current *Group
	var symbols []*paint.CompiledLayer

	flush := func() {
		if current == nil {
			return
		}
		for i := len(symbols) - 1; i >= 0; i-- {
			current.layers = append(current.layers, symbols[i])
		}
		symbols = nil
		groups = append(groups, current)
		current = nil
	}

	for _, l := range st.Layers {
		cl, err := paint.CompileLayer(l)
		if err != nil {
			log.Printf("dropping layer %s: %v", l.ID, err)
			continue
		}
		if current == nil || current.Name != l.Group {
			flush()
			current = &Group{Name: l.Group}
		}
		if cl.Type == paint.Symbol {
			symbols = append(symbols, cl)
		} else {
			current.layers = append(current.layers, cl)
		}
	}
	flush()

	r.mu.Lock()
	r.style = st
	r.groups = groups
	r.version++
	r.mu.Unlock()
}

// Recompile rebuilds the compiled layers from the current style document
// and bumps the version, so edits to the document take effect for new
// passes. Already-queued passes keep the snapshot they started with.
func (r *Renderer) Recompile() {
	r.mu.Lock()
	st := r.style
	r.mu.Unlock()
	if st != nil {
		r.SetStyle(st)
	}
}

func (r *Renderer) Version() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// SetAtlas swaps the sprite atlas used by symbol layers.
func (r *Renderer) SetAtlas(a *sprite.Atlas) {
	r.mu.Lock()
	r.atlas = a
	r.mu.Unlock()
}

// SetGroupVisible shows or hides one lamina group. The change applies to
// render passes started after the call.
func (r *Renderer) SetGroupVisible(name string, visible bool) {
	r.mu.Lock()
	if visible {
		delete(r.hidden, name)
	} else {
		r.hidden[name] = true
	}
	r.mu.Unlock()
}

// Groups returns the compiled group list in draw order.
func (r *Renderer) Groups() []*Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.groups
}

type lamina struct {
	group  *Group
	canvas *paint.Canvas
	drew   bool
}

// RenderTile queues one render pass for a loaded tile, drawing each
// group on its own scheduler turn under the tile's tag. It reports false
// when no pass starts: the tile is unloaded, canceled, already rendering
// or already rendered. done fires on the scheduler once the surface is
// set; it does not fire for aborted passes.
func (r *Renderer) RenderTile(t *tiles.Tile, done func(*tiles.Tile)) bool {
	if !t.BeginRender() {
		return false
	}

	r.mu.Lock()
	groups := r.groups
	hidden := make(map[string]bool, len(r.hidden))
	for name := range r.hidden {
		hidden[name] = true
	}
	atlas := r.atlas
	r.mu.Unlock()

	zoom := float64(t.ID.Z)
	boxes := paint.NewBoxList()
	laminas := make([]*lamina, len(groups))
	aborted := false

	steps := make([]func(), len(groups))
	for i, g := range groups {
		i, g := i, g
		steps[i] = func() {
			if aborted || t.Canceled() {
				aborted = true
				return
			}
			lam := &lamina{group: g, canvas: paint.NewCanvas(r.tileSize)}
			for _, cl := range g.layers {
				if cl.Draw(lam.canvas, t, zoom, atlas, boxes) {
					lam.drew = true
				}
			}
			laminas[i] = lam
		}
	}

	final := func() {
		if aborted || t.Canceled() {
			t.AbortRender()
			return
		}
		surface := image.NewRGBA(image.Rect(0, 0, r.tileSize, r.tileSize))
		for _, lam := range laminas {
			if lam == nil || !lam.drew || hidden[lam.group.Name] {
				continue
			}
			draw.Draw(surface, surface.Bounds(), lam.canvas.Image(), image.Point{}, draw.Over)
		}
		t.SetSurface(surface)
		t.FinishRender()
		if done != nil {
			done(t)
		}
	}

	r.sched.ChainSync(t.ID.String(), steps, final)
	return true
}

// CancelTile stops a tile's pending scheduler work and flags the tile so
// an in-progress pass aborts at its next group boundary.
func (r *Renderer) CancelTile(t *tiles.Tile) {
	t.Cancel()
	r.sched.Cancel(t.ID.String())
	t.AbortRender()
}
