package paint

import (
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/khankhulgun/khanrender/tiles"
)

func TestProjectionWorldTile(t *testing.T) {
	proj := NewProjection(tiles.ID{Z: 0, X: 0, Y: 0}, 256)

	center := proj.Point(orb.Point{0, 0})
	if math.Abs(center.X-128) > 0.01 || math.Abs(center.Y-128) > 0.01 {
		t.Fatalf("center projected to (%f, %f), want (128, 128)", center.X, center.Y)
	}

	west := proj.Point(orb.Point{-180, 0})
	if math.Abs(west.X) > 0.01 {
		t.Fatalf("west edge projected to x=%f, want 0", west.X)
	}
	east := proj.Point(orb.Point{180, 0})
	if math.Abs(east.X-256) > 0.01 {
		t.Fatalf("east edge projected to x=%f, want 256", east.X)
	}
}

func TestProjectionChildTile(t *testing.T) {
	// The north-west quadrant tile at z=1 shares its top-left corner with
	// the world tile and its bottom-right corner with the world center.
	proj := NewProjection(tiles.ID{Z: 1, X: 0, Y: 0}, 256)

	corner := proj.Point(orb.Point{0, 0})
	if math.Abs(corner.X-256) > 0.01 || math.Abs(corner.Y-256) > 0.01 {
		t.Fatalf("shared corner projected to (%f, %f), want (256, 256)", corner.X, corner.Y)
	}
}

func TestAnchorLineMidpoint(t *testing.T) {
	proj := NewProjection(tiles.ID{Z: 0, X: 0, Y: 0}, 256)

	line := orb.LineString{{-90, 0}, {90, 0}}
	anchor, ok := proj.Anchor(line)
	if !ok {
		t.Fatal("expected an anchor for a line")
	}
	if math.Abs(anchor.X-128) > 0.01 || math.Abs(anchor.Y-128) > 0.01 {
		t.Fatalf("line midpoint anchored at (%f, %f), want (128, 128)", anchor.X, anchor.Y)
	}
}

func TestAnchorEmptyGeometry(t *testing.T) {
	proj := NewProjection(tiles.ID{Z: 0, X: 0, Y: 0}, 256)
	if _, ok := proj.Anchor(orb.MultiPoint{}); ok {
		t.Fatal("empty multipoint should not anchor")
	}
	if _, ok := proj.Anchor(orb.Polygon{}); ok {
		t.Fatal("empty polygon should not anchor")
	}
}
