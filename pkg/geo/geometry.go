// Package geo provides the planar geometry primitives used by the race
// verification engine: projection from geodetic WGS84 coordinates into the
// server's local planar CRS, line buffering, polygon/line overlays and the
// usual length/containment queries. All coordinates are meters in the local
// CRS unless stated otherwise.
package geo

import (
	"fmt"
	"math"
)

// XY is a position in the local planar CRS (meters).
type XY struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p XY) Sub(o XY) XY      { return XY{p.X - o.X, p.Y - o.Y} }
func (p XY) Add(o XY) XY      { return XY{p.X + o.X, p.Y + o.Y} }
func (p XY) Scale(f float64) XY { return XY{p.X * f, p.Y * f} }

func (p XY) Dist(o XY) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// Geometry is the tagged union of the shapes an overlay operation may
// produce. Callers switching on the concrete type must treat any variant
// they do not expect as an UnhandledGeometryError, not skip it.
type Geometry interface {
	Length() float64
	sealed()
}

type Point struct {
	XY
}

func (Point) sealed()         {}
func (Point) Length() float64 { return 0 }

// LineString is an ordered sequence of at least two positions.
type LineString struct {
	Coords []XY
}

func (LineString) sealed() {}

func NewLineString(coords []XY) (*LineString, error) {
	if len(coords) < 2 {
		return nil, fmt.Errorf("linestring needs at least 2 coordinates, got %d", len(coords))
	}
	return &LineString{Coords: coords}, nil
}

func (l *LineString) Length() float64 {
	var sum float64
	for i := 1; i < len(l.Coords); i++ {
		sum += l.Coords[i].Dist(l.Coords[i-1])
	}
	return sum
}

func (l *LineString) Start() XY { return l.Coords[0] }
func (l *LineString) End() XY   { return l.Coords[len(l.Coords)-1] }

// DistanceTo returns the shortest distance from pt to the line.
func (l *LineString) DistanceTo(pt XY) float64 {
	best := math.Inf(1)
	for i := 0; i < len(l.Coords)-1; i++ {
		if d := pointSegmentDist(pt, l.Coords[i], l.Coords[i+1]); d < best {
			best = d
		}
	}
	return best
}

func pointSegmentDist(p, a, b XY) float64 {
	ab := b.Sub(a)
	den := ab.X*ab.X + ab.Y*ab.Y
	if den == 0 {
		return p.Dist(a)
	}
	t := ((p.X-a.X)*ab.X + (p.Y-a.Y)*ab.Y) / den
	t = math.Max(0, math.Min(1, t))
	return p.Dist(a.Add(ab.Scale(t)))
}

// Polygon is a single exterior ring without holes. The ring is stored open;
// the closing edge from the last to the first coordinate is implicit.
type Polygon struct {
	Ring []XY
}

func (Polygon) sealed() {}

// Length returns the ring perimeter.
func (p *Polygon) Length() float64 {
	n := len(p.Ring)
	if n < 2 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += p.Ring[i].Dist(p.Ring[(i+1)%n])
	}
	return sum
}

// Contains reports whether pt lies inside the polygon (nonzero winding
// rule). Points exactly on the boundary are not guaranteed either way.
func (p *Polygon) Contains(pt XY) bool {
	wn := 0
	n := len(p.Ring)
	for i := 0; i < n; i++ {
		a := p.Ring[i]
		b := p.Ring[(i+1)%n]
		if a.Y <= pt.Y {
			if b.Y > pt.Y && cross(a, b, pt) > 0 {
				wn++
			}
		} else if b.Y <= pt.Y && cross(a, b, pt) < 0 {
			wn--
		}
	}
	return wn != 0
}

// cross is the z component of (b-a) x (pt-a).
func cross(a, b, pt XY) float64 {
	return (b.X-a.X)*(pt.Y-a.Y) - (pt.X-a.X)*(b.Y-a.Y)
}

// Collection is a heterogeneous geometry collection as produced by
// SymmetricDifference.
type Collection struct {
	Members []Geometry
}

func (Collection) sealed() {}

func (c *Collection) Length() float64 {
	var sum float64
	for _, m := range c.Members {
		sum += m.Length()
	}
	return sum
}

// Bounds is a geodetic bounding box (degrees, lon/lat order).
type Bounds struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

func (b Bounds) Contains(lon, lat float64) bool {
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// UnhandledGeometryError marks an overlay result shape the verification
// engine has no rule for. This is an internal invariant violation: it must
// reach the operator log, never be swallowed.
type UnhandledGeometryError struct {
	Got     string
	Context string
}

func (e *UnhandledGeometryError) Error() string {
	return fmt.Sprintf("unhandled geometry %s (%s)", e.Got, e.Context)
}

// TypeName returns a WKT-ish name for diagnostics.
func TypeName(g Geometry) string {
	switch g.(type) {
	case Point:
		return "Point"
	case *LineString:
		return "LineString"
	case *Polygon:
		return "Polygon"
	case *Collection:
		return "GeometryCollection"
	default:
		return fmt.Sprintf("%T", g)
	}
}
