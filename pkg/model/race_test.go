package model

import (
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridrace/race-service-go/pkg/geo"
)

func sampleAt(x, y float64, loggedAt int64) *Location {
	return &Location{
		PlayerID: "p1",
		Planar:   geo.XY{X: x, Y: y},
		LoggedAt: loggedAt,
	}
}

func newTestRace(startedAt int64) *Race {
	return NewRace(uuid.Must(uuid.NewV4()), "hash", "p1", uuid.Must(uuid.NewV4()), startedAt)
}

func TestRace_Ongoing(t *testing.T) {
	r := newTestRace(1000)
	assert.True(t, r.Ongoing())

	require.NoError(t, r.SetFinished(5000))
	assert.False(t, r.Ongoing())
}

func TestRace_AddLocation_Stopwatch(t *testing.T) {
	r := newTestRace(1000)

	require.NoError(t, r.AddLocation(sampleAt(0, 0, 1000)))
	assert.Equal(t, int64(0), r.Stopwatch)

	require.NoError(t, r.AddLocation(sampleAt(10, 0, 3500)))
	assert.Equal(t, int64(2500), r.Stopwatch)
	assert.Equal(t, 2, r.Samples())
}

func TestRace_AddLocation_RejectsOutOfOrder(t *testing.T) {
	r := newTestRace(1000)

	require.NoError(t, r.AddLocation(sampleAt(0, 0, 2000)))
	err := r.AddLocation(sampleAt(1, 0, 1500))
	assert.Error(t, err)
	assert.Equal(t, 1, r.Samples())
}

func TestRace_AddLocation_RejectedWhenTerminal(t *testing.T) {
	r := newTestRace(1000)
	require.NoError(t, r.AddLocation(sampleAt(0, 0, 1000)))
	require.NoError(t, r.Cancel(CancelRequested))

	assert.Error(t, r.AddLocation(sampleAt(1, 0, 2000)))
}

func TestRace_ProgressLine(t *testing.T) {
	r := newTestRace(1000)

	_, ok := r.ProgressLine()
	assert.False(t, ok, "no geometry with zero samples")

	require.NoError(t, r.AddLocation(sampleAt(0, 0, 1000)))
	_, ok = r.ProgressLine()
	assert.False(t, ok, "no geometry with a single sample")

	require.NoError(t, r.AddLocation(sampleAt(25, 0, 2000)))
	line, ok := r.ProgressLine()
	require.True(t, ok)
	assert.InDelta(t, 25, line.Length(), 1e-9)
}

func TestRace_TerminalStatesAreExclusive(t *testing.T) {
	r := newTestRace(1000)
	require.NoError(t, r.Disqualify(ReasonMissedTrack, map[string]any{"percentMissed": 12}))

	assert.Error(t, r.SetFinished(5000))
	assert.Error(t, r.Cancel(CancelRequested))
	assert.True(t, r.Disqualified)
	assert.False(t, r.Cancelled)
	assert.Nil(t, r.Finished)
}

func TestTrack_Raceable(t *testing.T) {
	tr := &Track{OwnerID: "player-1", Verified: true, Snapped: true}
	assert.True(t, tr.Raceable())

	assert.False(t, (&Track{OwnerID: "player-1", Verified: true}).Raceable())
	assert.False(t, (&Track{OwnerID: "player-1", Snapped: true}).Raceable())
	assert.False(t, (&Track{Verified: true, Snapped: true}).Raceable())
}

func TestTrackPath_SingleLine(t *testing.T) {
	crs, err := geo.LookupCRS(3857)
	require.NoError(t, err)

	path := &TrackPath{
		TrackHash: "h",
		Segments: []PathSegment{
			{Points: []GeoPoint{{0, 0}, {0.001, 0}}},
			{Points: []GeoPoint{{0.001, 0}, {0.002, 0}}},
		},
	}
	line, err := path.SingleLine(crs)
	require.NoError(t, err)
	assert.Len(t, line.Coords, 3, "shared joint point is not duplicated")
}

func TestTrackPath_SingleLine_Disconnected(t *testing.T) {
	crs, err := geo.LookupCRS(3857)
	require.NoError(t, err)

	path := &TrackPath{
		TrackHash: "h",
		Segments: []PathSegment{
			{Points: []GeoPoint{{0, 0}, {0.001, 0}}},
			{Points: []GeoPoint{{0.005, 0}, {0.006, 0}}},
		},
	}
	_, err = path.SingleLine(crs)
	assert.Error(t, err)
}

func TestContentHash_Stable(t *testing.T) {
	segs := []PathSegment{{Points: []GeoPoint{{144.96, -37.81}, {144.97, -37.82}}}}
	assert.Equal(t, ContentHash(segs), ContentHash(segs))

	other := []PathSegment{{Points: []GeoPoint{{144.96, -37.81}, {144.98, -37.82}}}}
	assert.NotEqual(t, ContentHash(segs), ContentHash(other))
}
