// Package verify implements the race progress verification: buffering the
// player's progress line into a corridor, overlaying it with the track
// centerline and deriving completion, missed sections and the finish
// decision.
package verify

import (
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/gridrace/race-service-go/log"
	"github.com/gridrace/race-service-go/pkg/config"
	"github.com/gridrace/race-service-go/pkg/geo"
	"github.com/gridrace/race-service-go/pkg/model"
)

var ErrCircuitUnsupported = errors.New("circuit tracks are not supported yet")

// Result is the outcome of verifying a race against its track.
//
// HasGeometry is false while the race holds fewer than two progress
// samples. No corridor exists then and the remaining fields are zero; the
// caller must treat this as "nothing to decide yet", not as zero progress.
type Result struct {
	HasGeometry     bool
	Finished        bool
	PercentComplete int
	PercentMissed   int
	// MissedSections are the parts of the centerline outside the player's
	// corridor, ordered along the track.
	MissedSections []*geo.LineString
	// MaxDeviationM is the largest distance of any progress sample from the
	// centerline. Reported for diagnostics, not enforced.
	MaxDeviationM float64
}

type (
	Option func(*Verifier)

	Verifier struct {
		cfg *config.Config
		log *log.Logger
	}
)

func WithConfig(cfg *config.Config) Option {
	return func(v *Verifier) { v.cfg = cfg }
}

func WithLogger(l *log.Logger) Option {
	return func(v *Verifier) { v.log = l }
}

func NewVerifier(opts ...Option) *Verifier {
	ret := &Verifier{
		cfg: config.FromResolved(),
		log: log.Default().Named("verify"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Verify computes the current progress of race against track. The track
// path and the race progress are evaluated in the configured planar CRS.
func (v *Verifier) Verify(
	race *model.Race,
	track *model.Track,
	path *model.TrackPath,
) (*Result, error) {
	if track.Type != model.TrackTypeSprint {
		return nil, ErrCircuitUnsupported
	}

	progress, ok := race.ProgressLine()
	if !ok {
		return &Result{}, nil
	}

	crs, err := geo.LookupCRS(v.cfg.CRS)
	if err != nil {
		return nil, err
	}
	centerline, err := path.SingleLine(crs)
	if err != nil {
		return nil, err
	}
	finishGeo, err := path.FinishPoint()
	if err != nil {
		return nil, err
	}
	finish := crs.Project(finishGeo.Longitude, finishGeo.Latitude)

	corridor := geo.BufferLine(progress, v.cfg.ProgressBufferM)

	res := &Result{
		HasGeometry:   true,
		Finished:      corridor.Contains(finish),
		MaxDeviationM: maxDeviation(progress, centerline),
	}

	overlay := geo.SymmetricDifference(corridor, centerline)
	missed, err := classifyOverlay(overlay, res.Finished, race)
	if err != nil {
		return nil, err
	}
	res.MissedSections = missed

	total := centerline.Length()
	if total <= 0 {
		return nil, fmt.Errorf("track %s has a zero length path", track.Hash)
	}
	missedLen := lo.SumBy(missed, func(l *geo.LineString) float64 { return l.Length() })
	// percentages are truncated on purpose: a race is only 100% complete
	// when the full distance was travelled
	res.PercentMissed = int(missedLen / total * 100)
	res.PercentComplete = min(100, int(progress.Length()/total*100))
	return res, nil
}

// classifyOverlay maps the overlay result onto missed centerline sections.
//
// For a finished race the whole centerline should be behind the player:
// a bare polygon means full coverage, any line in a collection is skipped
// track. For an unfinished race the last line of the collection is track
// not yet reached, only lines between corridor and that remainder are
// skipped. Every other shape is an internal fault and surfaces as
// UnhandledGeometryError.
//
//nolint:whitespace // editor/linter issue
func classifyOverlay(
	overlay geo.Geometry,
	finished bool,
	race *model.Race,
) ([]*geo.LineString, error) {
	fail := func(got, detail string) ([]*geo.LineString, error) {
		return nil, &geo.UnhandledGeometryError{
			Got:     got,
			Context: fmt.Sprintf("race %s: %s", race.ID, detail),
		}
	}

	switch g := overlay.(type) {
	case *geo.Polygon:
		if !finished {
			// full coverage implies the finish point is covered
			return fail(geo.TypeName(overlay), "single polygon but not finished")
		}
		return nil, nil
	case *geo.Collection:
		if len(g.Members) < 2 {
			return fail(geo.TypeName(overlay), "collection too small")
		}
		if _, ok := g.Members[0].(*geo.Polygon); !ok {
			return fail(geo.TypeName(g.Members[0]), "first overlay member is not the corridor")
		}
		lines := make([]*geo.LineString, 0, len(g.Members)-1)
		for i, member := range g.Members[1:] {
			line, ok := member.(*geo.LineString)
			if !ok {
				return fail(geo.TypeName(member),
					fmt.Sprintf("overlay collection member %d", i+1))
			}
			lines = append(lines, line)
		}
		if finished {
			return lines, nil
		}
		// drop the remaining-track line after the player's position
		return lines[:len(lines)-1], nil
	default:
		return fail(geo.TypeName(overlay), "overlay result")
	}
}

func maxDeviation(progress, centerline *geo.LineString) float64 {
	var worst float64
	for _, p := range progress.Coords {
		if d := centerline.DistanceTo(p); d > worst {
			worst = d
		}
	}
	return worst
}
