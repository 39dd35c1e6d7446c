package render

import (
	"testing"

	"github.com/khankhulgun/khanrender/models"
	"github.com/khankhulgun/khanrender/sched"
	"github.com/khankhulgun/khanrender/tiles"
)

func backgroundStyle(color string, group string) models.Layer {
	return models.Layer{
		ID:    "bg-" + color,
		Type:  "background",
		Group: group,
		Paint: map[string]interface{}{"background-color": color},
	}
}

func TestSetStyleGroupsAndSymbolOrder(t *testing.T) {
	r := New(sched.New(), nil, 256)
	r.SetStyle(&models.Style{Layers: []models.Layer{
		{ID: "roads", Type: "line", Group: "base"},
		{ID: "labels-minor", Type: "symbol", Group: "base"},
		{ID: "labels-major", Type: "symbol", Group: "base"},
		{ID: "water", Type: "fill", Group: "base"},
		{ID: "poi", Type: "circle", Group: "overlay"},
	}})

	groups := r.Groups()
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if groups[0].Name != "base" || groups[1].Name != "overlay" {
		t.Fatalf("group order = %q, %q", groups[0].Name, groups[1].Name)
	}

	// Non-symbol layers keep declaration order; symbols go last, reversed,
	// so the topmost label layer claims collision space first.
	var ids []string
	for _, cl := range groups[0].Layers() {
		ids = append(ids, cl.Layer.ID)
	}
	want := []string{"roads", "water", "labels-major", "labels-minor"}
	if len(ids) != len(want) {
		t.Fatalf("group base has layers %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("group base has layers %v, want %v", ids, want)
		}
	}
}

func TestSetStyleDropsBadLayers(t *testing.T) {
	r := New(sched.New(), nil, 256)
	r.SetStyle(&models.Style{Layers: []models.Layer{
		backgroundStyle("#ff0000", ""),
		{ID: "extruded", Type: "fill-extrusion"},
	}})

	groups := r.Groups()
	if len(groups) != 1 || len(groups[0].Layers()) != 1 {
		t.Fatal("unsupported layer should be dropped, the rest kept")
	}
}

func TestVersionBumpsPerStyle(t *testing.T) {
	r := New(sched.New(), nil, 256)
	if r.Version() != 0 {
		t.Fatalf("fresh renderer version = %d", r.Version())
	}
	r.SetStyle(&models.Style{})
	r.SetStyle(&models.Style{})
	if r.Version() != 2 {
		t.Fatalf("version = %d after two styles, want 2", r.Version())
	}
}

func TestRenderTileSetsSurface(t *testing.T) {
	s := sched.New()
	defer s.Stop()
	r := New(s, nil, 64)
	r.SetStyle(&models.Style{Layers: []models.Layer{backgroundStyle("#ff0000", "")}})

	tile := tiles.NewLoadedTile(tiles.ID{Z: 3, X: 1, Y: 2}, nil)
	rendered := make(chan *tiles.Tile, 1)
	if !r.RenderTile(tile, func(t *tiles.Tile) { rendered <- t }) {
		t.Fatal("render pass should start for a loaded tile")
	}
	s.Wait()

	select {
	case got := <-rendered:
		if got != tile {
			t.Fatal("done callback received a different tile")
		}
	default:
		t.Fatal("done callback never fired")
	}
	if !tile.Rendered() {
		t.Fatal("tile not marked rendered")
	}
	surface := tile.Surface()
	if surface == nil {
		t.Fatal("no surface set")
	}
	if red, _, _, _ := surface.At(32, 32).RGBA(); red>>8 < 200 {
		t.Errorf("surface center red = %d, want near 255", red>>8)
	}
}

func TestRenderTileExactlyOnce(t *testing.T) {
	s := sched.New()
	defer s.Stop()
	r := New(s, nil, 64)
	r.SetStyle(&models.Style{Layers: []models.Layer{backgroundStyle("#ff0000", "")}})

	tile := tiles.NewLoadedTile(tiles.ID{Z: 1, X: 0, Y: 0}, nil)
	if !r.RenderTile(tile, nil) {
		t.Fatal("first pass should start")
	}
	s.Wait()
	first := tile.Surface()

	calls := 0
	if r.RenderTile(tile, func(*tiles.Tile) { calls++ }) {
		t.Fatal("second pass on a rendered tile should not start")
	}
	s.Wait()
	if calls != 0 {
		t.Fatal("done fired for a pass that never started")
	}
	if tile.Surface() != first {
		t.Fatal("second request replaced the surface")
	}
}

func TestCancelAbortsQueuedPass(t *testing.T) {
	s := sched.New()
	defer s.Stop()
	r := New(s, nil, 64)
	r.SetStyle(&models.Style{Layers: []models.Layer{backgroundStyle("#ff0000", "")}})

	// Hold the scheduler on an unrelated entry so the pass stays queued
	// while we cancel it.
	gate := make(chan struct{})
	s.Defer("gate", func() { <-gate })

	tile := tiles.NewLoadedTile(tiles.ID{Z: 5, X: 9, Y: 9}, nil)
	done := make(chan struct{}, 1)
	if !r.RenderTile(tile, func(*tiles.Tile) { done <- struct{}{} }) {
		t.Fatal("pass should queue")
	}
	r.CancelTile(tile)
	close(gate)
	s.Wait()

	select {
	case <-done:
		t.Fatal("done fired for a canceled pass")
	default:
	}
	if tile.Rendered() || tile.Surface() != nil {
		t.Fatal("canceled pass must not produce a surface")
	}
}

func TestHiddenGroupExcludedFromComposite(t *testing.T) {
	s := sched.New()
	defer s.Stop()
	r := New(s, nil, 64)
	r.SetStyle(&models.Style{Layers: []models.Layer{
		backgroundStyle("#ff0000", "base"),
		backgroundStyle("#0000ff", "overlay"),
	}})
	r.SetGroupVisible("overlay", false)

	tile := tiles.NewLoadedTile(tiles.ID{Z: 2, X: 1, Y: 1}, nil)
	if !r.RenderTile(tile, nil) {
		t.Fatal("pass should start")
	}
	s.Wait()

	surface := tile.Surface()
	if surface == nil {
		t.Fatal("no surface set")
	}
	red, _, blue, _ := surface.At(32, 32).RGBA()
	if red>>8 < 200 || blue>>8 > 50 {
		t.Errorf("pixel = r%d b%d, want the hidden overlay excluded", red>>8, blue>>8)
	}
}
