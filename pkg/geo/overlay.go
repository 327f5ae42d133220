package geo

import (
	"math"
	"sort"
)

const overlayEps = 1e-9

// SymmetricDifference overlays a corridor polygon with a track centerline
// and returns the parts of the centerline outside the corridor together
// with the corridor itself, mirroring the shape contract of a polygon/line
// symmetric difference:
//
//   - the whole centerline is covered: the result is the Polygon alone
//   - parts are uncovered: the result is a Collection whose first member is
//     the Polygon, followed by one LineString per contiguous uncovered run,
//     ordered along the centerline
func SymmetricDifference(corridor *Polygon, centerline *LineString) Geometry {
	runs := uncoveredRuns(corridor, centerline)
	if len(runs) == 0 {
		return corridor
	}
	members := make([]Geometry, 0, len(runs)+1)
	members = append(members, corridor)
	for _, r := range runs {
		members = append(members, r)
	}
	return &Collection{Members: members}
}

// uncoveredRuns splits the centerline at every crossing with the corridor
// boundary, classifies each piece by its midpoint and merges consecutive
// outside pieces into runs.
func uncoveredRuns(corridor *Polygon, centerline *LineString) []*LineString {
	var runs []*LineString
	var cur []XY

	flush := func() {
		if len(cur) >= 2 {
			runs = append(runs, &LineString{Coords: cur})
		}
		cur = nil
	}

	for i := 0; i < len(centerline.Coords)-1; i++ {
		a := centerline.Coords[i]
		b := centerline.Coords[i+1]
		if a.Dist(b) < overlayEps {
			continue
		}
		for _, piece := range splitSegment(corridor, a, b) {
			mid := piece.a.Add(piece.b).Scale(0.5)
			if corridor.Contains(mid) {
				flush()
				continue
			}
			if len(cur) == 0 {
				cur = append(cur, piece.a)
			} else if cur[len(cur)-1].Dist(piece.a) > overlayEps {
				// discontinuity between pieces, start a new run
				flush()
				cur = append(cur, piece.a)
			}
			cur = append(cur, piece.b)
		}
	}
	flush()
	return runs
}

type segment struct {
	a, b XY
}

// splitSegment cuts [a,b] at every intersection with the polygon boundary
// and returns the sub-segments in order from a to b.
func splitSegment(p *Polygon, a, b XY) []segment {
	ts := []float64{0, 1}
	n := len(p.Ring)
	for i := 0; i < n; i++ {
		c := p.Ring[i]
		d := p.Ring[(i+1)%n]
		if t, ok := intersectParam(a, b, c, d); ok {
			ts = append(ts, t)
		}
	}
	sort.Float64s(ts)

	out := make([]segment, 0, len(ts)-1)
	dir := b.Sub(a)
	for i := 0; i < len(ts)-1; i++ {
		if ts[i+1]-ts[i] < overlayEps {
			continue
		}
		out = append(out, segment{
			a: a.Add(dir.Scale(ts[i])),
			b: a.Add(dir.Scale(ts[i+1])),
		})
	}
	return out
}

// intersectParam solves a + t*(b-a) == c + u*(d-c) and returns t when both
// parameters fall inside their segments. Parallel segments yield no
// crossing; collinear overlap is resolved by the midpoint classification of
// the adjacent pieces.
func intersectParam(a, b, c, d XY) (float64, bool) {
	r := b.Sub(a)
	s := d.Sub(c)
	denom := r.X*s.Y - r.Y*s.X
	if math.Abs(denom) < overlayEps {
		return 0, false
	}
	ac := c.Sub(a)
	t := (ac.X*s.Y - ac.Y*s.X) / denom
	u := (ac.X*r.Y - ac.Y*r.X) / denom
	if t < -overlayEps || t > 1+overlayEps || u < -overlayEps || u > 1+overlayEps {
		return 0, false
	}
	return math.Min(1, math.Max(0, t)), true
}
