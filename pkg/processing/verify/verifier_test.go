package verify

import (
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridrace/race-service-go/pkg/config"
	"github.com/gridrace/race-service-go/pkg/geo"
	"github.com/gridrace/race-service-go/pkg/model"
)

// tests run in EPSG:3857 where longitude degrees map linearly to meters at
// the equator
const metersPerDegree = 111319.4908

func deg(m float64) float64 { return m / metersPerDegree }

func testVerifier() *Verifier {
	return NewVerifier(WithConfig(&config.Config{
		CRS:              3857,
		ProgressBufferM:  10,
		MaxPercentMissed: 7,
		MaxDeviationM:    50,
	}))
}

// straightTrack builds a 1000m sprint track along the equator.
func straightTrack() (*model.Track, *model.TrackPath) {
	points := []model.GeoPoint{
		{Longitude: deg(0), Latitude: 0},
		{Longitude: deg(500), Latitude: 0},
		{Longitude: deg(1000), Latitude: 0},
	}
	path := &model.TrackPath{
		TrackHash: "straight-1000",
		Segments:  []model.PathSegment{{Points: points}},
	}
	track := &model.Track{
		Hash:     "straight-1000",
		OwnerID:  "owner-1",
		Type:     model.TrackTypeSprint,
		Verified: true,
		Snapped:  true,
	}
	return track, path
}

// raceWithTrace creates a race whose progress follows the given planar
// coordinates (meters), one sample per second.
func raceWithTrace(t *testing.T, trace []geo.XY) *model.Race {
	t.Helper()
	race := model.NewRace(uuid.Must(uuid.NewV4()), "straight-1000", "p1",
		uuid.Must(uuid.NewV4()), 0)
	for i, p := range trace {
		require.NoError(t, race.AddLocation(&model.Location{
			PlayerID: "p1",
			Planar:   p,
			LoggedAt: int64(i) * 1000,
		}))
	}
	return race
}

func TestVerify_NeutralWithoutGeometry(t *testing.T) {
	track, path := straightTrack()
	v := testVerifier()

	race := raceWithTrace(t, nil)
	res, err := v.Verify(race, track, path)
	require.NoError(t, err)
	assert.False(t, res.HasGeometry)

	race = raceWithTrace(t, []geo.XY{{X: 0, Y: 0}})
	res, err = v.Verify(race, track, path)
	require.NoError(t, err)
	assert.False(t, res.HasGeometry)
	assert.False(t, res.Finished)
}

func TestVerify_CircuitUnsupported(t *testing.T) {
	track, path := straightTrack()
	track.Type = model.TrackTypeCircuit
	v := testVerifier()

	race := raceWithTrace(t, []geo.XY{{X: 0, Y: 0}, {X: 100, Y: 0}})
	_, err := v.Verify(race, track, path)
	assert.ErrorIs(t, err, ErrCircuitUnsupported)
}

func TestVerify_FullTrace(t *testing.T) {
	track, path := straightTrack()
	v := testVerifier()

	race := raceWithTrace(t, []geo.XY{
		{X: 0, Y: 0}, {X: 250, Y: 0}, {X: 500, Y: 0}, {X: 750, Y: 0}, {X: 1000, Y: 0},
	})
	res, err := v.Verify(race, track, path)
	require.NoError(t, err)

	assert.True(t, res.HasGeometry)
	assert.True(t, res.Finished)
	assert.Equal(t, 100, res.PercentComplete)
	assert.Equal(t, 0, res.PercentMissed)
	assert.Empty(t, res.MissedSections)
	assert.InDelta(t, 0, res.MaxDeviationM, 0.01)
}

func TestVerify_StoppedBeforeFinish(t *testing.T) {
	track, path := straightTrack()
	v := testVerifier()

	// corridor cap reaches 900m. The last 100m of the track are not yet
	// reached, which is not the same as missed.
	race := raceWithTrace(t, []geo.XY{
		{X: 0, Y: 0}, {X: 445, Y: 0}, {X: 890, Y: 0},
	})
	res, err := v.Verify(race, track, path)
	require.NoError(t, err)

	assert.False(t, res.Finished)
	assert.Equal(t, 89, res.PercentComplete)
	assert.Equal(t, 0, res.PercentMissed)
	assert.Empty(t, res.MissedSections)
}

func TestVerify_MidTrackDeviation(t *testing.T) {
	track, path := straightTrack()
	v := testVerifier()

	// the player swings 30m off the track around the middle, leaving a
	// stretch of the centerline uncovered while still reaching the finish
	race := raceWithTrace(t, []geo.XY{
		{X: 0, Y: 0}, {X: 400, Y: 0}, {X: 500, Y: 30}, {X: 600, Y: 0}, {X: 1000, Y: 0},
	})
	res, err := v.Verify(race, track, path)
	require.NoError(t, err)

	assert.True(t, res.Finished, "the finish point itself is covered")
	assert.Equal(t, 1, len(res.MissedSections))
	assert.Greater(t, res.PercentMissed, 0)
	assert.InDelta(t, 30, res.MaxDeviationM, 0.5)
}

func TestVerify_MidMissBeforeFinish(t *testing.T) {
	track, path := straightTrack()
	v := testVerifier()

	// the player bypasses 310m..385m of the track and stops at 600m: the
	// bypassed stretch counts as missed, the stretch past 610m does not
	race := raceWithTrace(t, []geo.XY{
		{X: 0, Y: 0}, {X: 300, Y: 0}, {X: 300, Y: 60}, {X: 395, Y: 60},
		{X: 395, Y: 0}, {X: 600, Y: 0},
	})
	res, err := v.Verify(race, track, path)
	require.NoError(t, err)

	assert.False(t, res.Finished)
	require.Len(t, res.MissedSections, 1)
	assert.InDelta(t, 75, res.MissedSections[0].Length(), 0.5)
	assert.Equal(t, 7, res.PercentMissed)
	assert.Equal(t, 72, res.PercentComplete)
}

func TestVerify_TruncatesPercentages(t *testing.T) {
	track, path := straightTrack()
	v := testVerifier()

	// bypassing 75m of a 1000m track: 7.5% missed truncates to 7
	race := raceWithTrace(t, []geo.XY{
		{X: 0, Y: 0}, {X: 300, Y: 0}, {X: 300, Y: 60}, {X: 395, Y: 60},
		{X: 395, Y: 0}, {X: 1000, Y: 0},
	})
	res, err := v.Verify(race, track, path)
	require.NoError(t, err)

	assert.True(t, res.Finished)
	assert.Equal(t, 7, res.PercentMissed)
	assert.Equal(t, 100, res.PercentComplete)
}
