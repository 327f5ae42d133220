// Package model holds the domain types of the race service: tracks and
// their paths, player locations and race sessions. The types carry their
// own invariants; persistence and transport live elsewhere.
package model

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/gridrace/race-service-go/pkg/geo"
)

type TrackType int

const (
	TrackTypeSprint  TrackType = iota // point-to-point, raced once start to finish
	TrackTypeCircuit                  // closed loop, raced for a number of laps
)

func (t TrackType) String() string {
	switch t {
	case TrackTypeSprint:
		return "sprint"
	case TrackTypeCircuit:
		return "circuit"
	default:
		return fmt.Sprintf("tracktype(%d)", int(t))
	}
}

// Track is the raceable course definition. Tracks are identified by a
// content hash so that re-submitting the same course yields the same
// identity.
type Track struct {
	Hash        string
	Name        string
	Description string
	OwnerID     string
	Type        TrackType
	Laps        int // circuits only
	Verified    bool
	Snapped     bool // path has been snapped to the road network
}

// Raceable reports whether races may be started against this track. Only
// verified, owned tracks with a snapped path accept races.
func (t *Track) Raceable() bool {
	return t.Verified && t.Snapped && t.OwnerID != ""
}

// GeoPoint is a geodetic WGS84 position in degrees.
type GeoPoint struct {
	Longitude float64
	Latitude  float64
}

// PathSegment is one leg of a track path in geodetic coordinates.
type PathSegment struct {
	Points []GeoPoint
}

// TrackPath is the ordered set of segments making up the course.
type TrackPath struct {
	TrackHash string
	Segments  []PathSegment
}

// StartPoint returns the first point of the first segment.
func (p *TrackPath) StartPoint() (GeoPoint, error) {
	if len(p.Segments) == 0 || len(p.Segments[0].Points) == 0 {
		return GeoPoint{}, fmt.Errorf("track path %s has no points", p.TrackHash)
	}
	return p.Segments[0].Points[0], nil
}

// FinishPoint returns the last point of the last segment.
func (p *TrackPath) FinishPoint() (GeoPoint, error) {
	if len(p.Segments) == 0 {
		return GeoPoint{}, fmt.Errorf("track path %s has no points", p.TrackHash)
	}
	last := p.Segments[len(p.Segments)-1].Points
	if len(last) == 0 {
		return GeoPoint{}, fmt.Errorf("track path %s has no points", p.TrackHash)
	}
	return last[len(last)-1], nil
}

// SingleLine projects the path into the given CRS and joins the segments
// into one centerline. Segments must connect end to start; a gap means the
// stored path is corrupt.
func (p *TrackPath) SingleLine(crs *geo.CRS) (*geo.LineString, error) {
	var coords []geo.XY
	for i, seg := range p.Segments {
		if len(seg.Points) < 2 {
			return nil, fmt.Errorf("track path %s: segment %d has %d points",
				p.TrackHash, i, len(seg.Points))
		}
		pts := make([]geo.XY, len(seg.Points))
		for j, gp := range seg.Points {
			pts[j] = crs.Project(gp.Longitude, gp.Latitude)
		}
		if len(coords) > 0 {
			if coords[len(coords)-1].Dist(pts[0]) > 1e-6 {
				return nil, fmt.Errorf("track path %s: segment %d does not connect",
					p.TrackHash, i)
			}
			pts = pts[1:]
		}
		coords = append(coords, pts...)
	}
	return geo.NewLineString(coords)
}

// ContentHash derives the track identity from its path coordinates.
func ContentHash(segments []PathSegment) string {
	h := sha256.New()
	var buf [8]byte
	for _, seg := range segments {
		for _, pt := range seg.Points {
			//nolint:gosec // fixed-point encoding, not a conversion of user input
			binary.BigEndian.PutUint64(buf[:], uint64(int64(pt.Longitude*1e7)))
			h.Write(buf[:])
			//nolint:gosec // see above
			binary.BigEndian.PutUint64(buf[:], uint64(int64(pt.Latitude*1e7)))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
