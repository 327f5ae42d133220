package model

import (
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/gridrace/race-service-go/pkg/geo"
)

// Race is one attempt of a player to complete a track with a vehicle. A
// race is ongoing until exactly one of its terminal states is entered:
// finished, disqualified or cancelled.
type Race struct {
	ID        uuid.UUID
	TrackHash string
	PlayerID  string
	VehicleID uuid.UUID

	Started  int64  // unix milliseconds
	Finished *int64 // unix milliseconds, nil while ongoing

	Disqualified bool
	DqReason     string
	DqExtra      map[string]any

	Cancelled    bool
	CancelReason string

	// live verification results, refreshed on every accepted sample
	AverageSpeed    float64 // meters per second
	PercentComplete int
	PercentMissed   int
	Stopwatch       int64 // milliseconds since start

	progress []geo.XY
	samples  int

	speedSum     float64
	speedSamples int
}

// NewRace starts a race at the given millisecond timestamp.
func NewRace(
	id uuid.UUID, trackHash, playerID string, vehicleID uuid.UUID, startedAt int64,
) *Race {
	return &Race{
		ID:        id,
		TrackHash: trackHash,
		PlayerID:  playerID,
		VehicleID: vehicleID,
		Started:   startedAt,
	}
}

// Ongoing reports whether the race has not yet reached a terminal state.
func (r *Race) Ongoing() bool {
	return r.Finished == nil && !r.Disqualified && !r.Cancelled
}

// AddLocation appends an accepted position sample to the race progress and
// advances the stopwatch. Samples must arrive in timestamp order; a sample
// older than the last accepted one is rejected. Terminal races accept no
// further samples.
func (r *Race) AddLocation(loc *Location) error {
	if !r.Ongoing() {
		return fmt.Errorf("race %s is no longer ongoing", r.ID)
	}
	if loc.LoggedAt < r.lastLoggedAt() {
		return fmt.Errorf("race %s: sample at %d is older than last accepted %d",
			r.ID, loc.LoggedAt, r.lastLoggedAt())
	}
	r.progress = append(r.progress, loc.Planar)
	r.samples++
	r.Stopwatch = loc.LoggedAt - r.Started
	// samples without a speed fix carry a negative speed, they do not
	// contribute to the average
	if loc.Speed >= 0 {
		r.speedSum += loc.Speed
		r.speedSamples++
		r.AverageSpeed = r.speedSum / float64(r.speedSamples)
	}
	return nil
}

func (r *Race) lastLoggedAt() int64 {
	return r.Started + r.Stopwatch
}

// Samples returns the number of accepted progress samples.
func (r *Race) Samples() int { return r.samples }

// ProgressLine returns the player's progress as a planar line. The second
// return is false while fewer than two samples have been accepted; no
// geometry exists yet in that case.
func (r *Race) ProgressLine() (*geo.LineString, bool) {
	if r.samples < 2 {
		return nil, false
	}
	line, err := geo.NewLineString(r.progress)
	if err != nil {
		return nil, false
	}
	return line, true
}

// SetFinished stamps the finish time. The race must still be ongoing.
func (r *Race) SetFinished(at int64) error {
	if !r.Ongoing() {
		return fmt.Errorf("race %s is no longer ongoing", r.ID)
	}
	r.Finished = &at
	r.Stopwatch = at - r.Started
	return nil
}

// Disqualify marks the race disqualified with a stable reason code and
// optional extra detail. The race must still be ongoing.
func (r *Race) Disqualify(reason string, extra map[string]any) error {
	if !r.Ongoing() {
		return fmt.Errorf("race %s is no longer ongoing", r.ID)
	}
	r.Disqualified = true
	r.DqReason = reason
	r.DqExtra = extra
	return nil
}

// Cancel marks the race cancelled. The race must still be ongoing.
func (r *Race) Cancel(reason string) error {
	if !r.Ongoing() {
		return fmt.Errorf("race %s is no longer ongoing", r.ID)
	}
	r.Cancelled = true
	r.CancelReason = reason
	return nil
}
