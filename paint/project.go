package paint

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/khankhulgun/khanrender/tiles"
)

// Projection maps geographic coordinates into one tile's pixel space.
// It carries all of its state explicitly, so concurrent tiles can each
// hold their own.
type Projection struct {
	minX  float64
	minY  float64
	spanX float64
	spanY float64
	size  float64
}

func NewProjection(id tiles.ID, size int) Projection {
	bound := id.Bound()
	minX := mercatorX(bound.Min[0])
	maxX := mercatorX(bound.Max[0])
	minY := mercatorY(bound.Max[1]) // north edge has the smaller mercator y
	maxY := mercatorY(bound.Min[1])
	return Projection{
		minX:  minX,
		minY:  minY,
		spanX: maxX - minX,
		spanY: maxY - minY,
		size:  float64(size),
	}
}

func (p Projection) Point(pt orb.Point) Point {
	return Point{
		X: (mercatorX(pt[0]) - p.minX) / p.spanX * p.size,
		Y: (mercatorY(pt[1]) - p.minY) / p.spanY * p.size,
	}
}

func (p Projection) ring(r orb.Ring) []Point {
	out := make([]Point, len(r))
	for i, pt := range r {
		out[i] = p.Point(pt)
	}
	return out
}

func (p Projection) line(l orb.LineString) []Point {
	out := make([]Point, len(l))
	for i, pt := range l {
		out[i] = p.Point(pt)
	}
	return out
}

// FillPath flattens a geometry's rings into closed subpaths.
func (p Projection) FillPath(g orb.Geometry, path *Path) {
	switch geom := g.(type) {
	case orb.Polygon:
		for _, r := range geom {
			path.Add(p.ring(r))
		}
	case orb.MultiPolygon:
		for _, poly := range geom {
			for _, r := range poly {
				path.Add(p.ring(r))
			}
		}
	case orb.Ring:
		path.Add(p.ring(geom))
	}
}

// LinePath flattens a geometry into open subpaths. Polygons contribute
// their rings so outlines can be stroked.
func (p Projection) LinePath(g orb.Geometry, path *Path) {
	switch geom := g.(type) {
	case orb.LineString:
		path.Add(p.line(geom))
	case orb.MultiLineString:
		for _, l := range geom {
			path.Add(p.line(l))
		}
	case orb.Polygon:
		for _, r := range geom {
			path.Add(p.ring(r))
		}
	case orb.MultiPolygon:
		for _, poly := range geom {
			for _, r := range poly {
				path.Add(p.ring(r))
			}
		}
	}
}

// Points collects a geometry's anchor points in pixel space.
func (p Projection) Points(g orb.Geometry) []Point {
	switch geom := g.(type) {
	case orb.Point:
		return []Point{p.Point(geom)}
	case orb.MultiPoint:
		out := make([]Point, len(geom))
		for i, pt := range geom {
			out[i] = p.Point(pt)
		}
		return out
	}
	return nil
}

// Anchor picks the label anchor for a geometry: the point itself, the
// midpoint along a line, or the polygon centroid.
func (p Projection) Anchor(g orb.Geometry) (Point, bool) {
	switch geom := g.(type) {
	case orb.Point:
		return p.Point(geom), true
	case orb.MultiPoint:
		if len(geom) == 0 {
			return Point{}, false
		}
		return p.Point(geom[0]), true
	case orb.LineString:
		return p.lineMidpoint(geom)
	case orb.MultiLineString:
		if len(geom) == 0 {
			return Point{}, false
		}
		return p.lineMidpoint(geom[0])
	case orb.Polygon, orb.MultiPolygon, orb.Ring:
		centroid, area := planar.CentroidArea(g)
		if area == 0 {
			return Point{}, false
		}
		return p.Point(centroid), true
	}
	return Point{}, false
}

// lineMidpoint walks the projected line accumulating segment lengths and
// returns the point halfway along it.
func (p Projection) lineMidpoint(l orb.LineString) (Point, bool) {
	if len(l) == 0 {
		return Point{}, false
	}
	pts := p.line(l)
	if len(pts) == 1 {
		return pts[0], true
	}

	total := 0.0
	for i := 1; i < len(pts); i++ {
		total += dist(pts[i-1], pts[i])
	}
	if total == 0 {
		return pts[0], true
	}

	walked := 0.0
	half := total / 2
	for i := 1; i < len(pts); i++ {
		seg := dist(pts[i-1], pts[i])
		if walked+seg >= half {
			t := (half - walked) / seg
			return Point{
				X: pts[i-1].X + (pts[i].X-pts[i-1].X)*t,
				Y: pts[i-1].Y + (pts[i].Y-pts[i-1].Y)*t,
			}, true
		}
		walked += seg
	}
	return pts[len(pts)-1], true
}

func dist(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

func mercatorX(lon float64) float64 {
	return lon * math.Pi / 180
}

func mercatorY(lat float64) float64 {
	lat = math.Max(-85.0511287798, math.Min(85.0511287798, lat))
	rad := lat * math.Pi / 180
	return -math.Log(math.Tan(math.Pi/4 + rad/2))
}
