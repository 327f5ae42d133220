package geo

import "math"

// miterLimit caps how far a miter join may extend relative to the buffer
// radius before the join degrades to a bevel. Matches the usual default of
// planar geometry engines.
const miterLimit = 5.0

// BufferLine expands line into a corridor polygon of half-width radius with
// square end caps. The ring is oriented counter-clockwise.
//
// Joins are mitered up to miterLimit, then beveled. The corridor of a
// straight two-point line is the exact rectangle of the line extended by
// radius at both ends.
func BufferLine(line *LineString, radius float64) *Polygon {
	pts := dedupe(line.Coords)
	if len(pts) == 1 {
		// degenerate: all samples identical, buffer to a square
		c := pts[0]
		return &Polygon{Ring: []XY{
			{c.X - radius, c.Y - radius},
			{c.X + radius, c.Y - radius},
			{c.X + radius, c.Y + radius},
			{c.X - radius, c.Y + radius},
		}}
	}

	// square caps: extend the polyline by radius along its end directions,
	// then close the offset sides with flat ends
	first := pts[0].Sub(unit(pts[1].Sub(pts[0])).Scale(radius))
	last := pts[len(pts)-1].Add(unit(pts[len(pts)-1].Sub(pts[len(pts)-2])).Scale(radius))
	ext := make([]XY, 0, len(pts)+2)
	ext = append(ext, first)
	ext = append(ext, pts...)
	ext = append(ext, last)

	left := offsetSide(ext, radius)
	right := offsetSide(reversed(ext), radius)

	ring := make([]XY, 0, len(left)+len(right))
	ring = append(ring, left...)
	ring = append(ring, right...)
	return &Polygon{Ring: ring}
}

// offsetSide walks the polyline and emits the offset points radius to the
// left of the direction of travel.
func offsetSide(pts []XY, radius float64) []XY {
	out := make([]XY, 0, len(pts)+4)

	dirs := make([]XY, len(pts)-1)
	for i := 0; i < len(pts)-1; i++ {
		dirs[i] = unit(pts[i+1].Sub(pts[i]))
	}

	out = append(out, pts[0].Add(leftNormal(dirs[0]).Scale(radius)))
	for i := 1; i < len(pts)-1; i++ {
		na := leftNormal(dirs[i-1])
		nb := leftNormal(dirs[i])
		dot := na.X*nb.X + na.Y*nb.Y
		// cos of half the turn angle; near -1 means the path doubles back
		cosHalf := math.Sqrt(math.Max(0, (1+dot)/2))
		if cosHalf < 1/miterLimit {
			// bevel: emit both segment offsets
			out = append(out,
				pts[i].Add(na.Scale(radius)),
				pts[i].Add(nb.Scale(radius)))
			continue
		}
		m := unit(na.Add(nb))
		out = append(out, pts[i].Add(m.Scale(radius/cosHalf)))
	}
	out = append(out, pts[len(pts)-1].Add(leftNormal(dirs[len(dirs)-1]).Scale(radius)))
	return out
}

func leftNormal(d XY) XY { return XY{-d.Y, d.X} }

func unit(d XY) XY {
	l := math.Hypot(d.X, d.Y)
	if l == 0 {
		return XY{}
	}
	return XY{d.X / l, d.Y / l}
}

func reversed(pts []XY) []XY {
	out := make([]XY, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}

// dedupe drops consecutive duplicate coordinates.
func dedupe(pts []XY) []XY {
	out := make([]XY, 0, len(pts))
	for _, p := range pts {
		if len(out) > 0 && out[len(out)-1].Dist(p) < 1e-9 {
			continue
		}
		out = append(out, p)
	}
	return out
}
