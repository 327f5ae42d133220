package race

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridrace/race-service-go/pkg/config"
	"github.com/gridrace/race-service-go/pkg/model"
	"github.com/gridrace/race-service-go/pkg/proxy"
	"github.com/gridrace/race-service-go/pkg/world"
)

// tests run in EPSG:3857 where longitude degrees map linearly to meters at
// the equator
const metersPerDegree = 111319.4908

func deg(m float64) float64 { return m / metersPerDegree }

// upd builds a position update x meters along the equator.
func upd(xMeters float64, loggedAt int64, speed float64) *world.Update {
	return &world.Update{
		Longitude: deg(xMeters),
		Latitude:  0,
		Speed:     speed,
		LoggedAt:  loggedAt,
	}
}

type testEnv struct {
	ctrl  *Controller
	world *world.World
	repos *fakeRepos
	proxy *captureProxy
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		CRS:                 3857,
		ProgressBufferM:     10,
		MaxPercentMissed:    7,
		MaxDeviationM:       50,
		HistoryRetain:       100,
		LeaderboardPageSize: 10,
	}
	w, err := world.NewWorld(world.WithConfig(cfg))
	require.NoError(t, err)
	repos := newFakeRepos()
	px := &captureProxy{}
	ctrl := NewController(
		WithConfig(cfg),
		WithWorld(w),
		WithRepositories(repos),
		WithTxManager(fakeTxManager{}),
		WithProxy(px),
	)
	return &testEnv{ctrl: ctrl, world: w, repos: repos, proxy: px}
}

// seedTrack registers a raceable 1000m sprint track along the equator.
func seedTrack(t *testing.T, env *testEnv) *model.Track {
	t.Helper()
	track := &model.Track{
		Hash:     "straight-1000",
		Name:     "straight",
		OwnerID:  "owner-1",
		Type:     model.TrackTypeSprint,
		Verified: true,
		Snapped:  true,
	}
	path := &model.TrackPath{
		TrackHash: track.Hash,
		Segments: []model.PathSegment{{Points: []model.GeoPoint{
			{Longitude: deg(0), Latitude: 0},
			{Longitude: deg(500), Latitude: 0},
			{Longitude: deg(1000), Latitude: 0},
		}}},
	}
	require.NoError(t, env.repos.Track().Ensure(context.Background(), track, path))
	return track
}

func seedVehicle(t *testing.T, env *testEnv, playerID string) *model.Vehicle {
	t.Helper()
	v := &model.Vehicle{
		ID:       uuid.Must(uuid.NewV4()),
		PlayerID: playerID,
		Title:    "roadster",
	}
	require.NoError(t, env.repos.Vehicle().Create(context.Background(), v))
	return v
}

func startRequest(track *model.Track) *StartRequest {
	return &StartRequest{
		TrackHash: track.Hash,
		Countdown: upd(0, 0, 0),
		Started:   upd(0, 1000, 0),
	}
}

func startRace(t *testing.T, env *testEnv, playerID string) *model.Race {
	t.Helper()
	track := seedTrack(t, env)
	seedVehicle(t, env, playerID)
	race, err := env.ctrl.StartRace(context.Background(), playerID, startRequest(track))
	require.NoError(t, err)
	return race
}

func TestStartRace(t *testing.T) {
	env := newTestEnv(t)
	race := startRace(t, env, "p1")

	assert.True(t, race.Ongoing())
	assert.Equal(t, int64(1000), race.Started)
	assert.Equal(t, 1, race.Samples())
	assert.Same(t, race, env.world.Registry().Session("p1").OngoingRace())

	stored, err := env.repos.Race().LoadOngoingByPlayer(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, race.ID, stored.ID)
	locs, err := env.repos.Race().LoadLocations(context.Background(), race.ID)
	require.NoError(t, err)
	assert.Len(t, locs, 1)
}

func TestStartRace_UnknownTrack(t *testing.T) {
	env := newTestEnv(t)
	seedVehicle(t, env, "p1")

	_, err := env.ctrl.StartRace(context.Background(), "p1", &StartRequest{
		TrackHash: "no-such-track",
		Countdown: upd(0, 0, 0),
		Started:   upd(0, 1000, 0),
	})
	var reason *model.ReasonError
	require.ErrorAs(t, err, &reason)
	assert.Equal(t, model.ReasonNoTrack, reason.Code)
}

func TestStartRace_TrackNotRaceable(t *testing.T) {
	env := newTestEnv(t)
	track := seedTrack(t, env)
	track.Verified = false
	seedVehicle(t, env, "p1")

	_, err := env.ctrl.StartRace(context.Background(), "p1", startRequest(track))
	var reason *model.ReasonError
	require.ErrorAs(t, err, &reason)
	assert.Equal(t, model.ReasonTrackNotRaceable, reason.Code)
}

func TestStartRace_NoVehicle(t *testing.T) {
	env := newTestEnv(t)
	track := seedTrack(t, env)

	// no vehicle at all
	_, err := env.ctrl.StartRace(context.Background(), "p1", startRequest(track))
	var reason *model.ReasonError
	require.ErrorAs(t, err, &reason)
	assert.Equal(t, model.ReasonNoVehicle, reason.Code)

	// two vehicles without an explicit choice
	seedVehicle(t, env, "p1")
	seedVehicle(t, env, "p1")
	_, err = env.ctrl.StartRace(context.Background(), "p1", startRequest(track))
	require.ErrorAs(t, err, &reason)
	assert.Equal(t, model.ReasonNoVehicle, reason.Code)

	// someone else's vehicle picked explicitly
	other := seedVehicle(t, env, "p2")
	req := startRequest(track)
	req.VehicleID = &other.ID
	_, err = env.ctrl.StartRace(context.Background(), "p1", req)
	require.ErrorAs(t, err, &reason)
	assert.Equal(t, model.ReasonNoVehicle, reason.Code)
}

func TestStartRace_FarFromStart(t *testing.T) {
	env := newTestEnv(t)
	track := seedTrack(t, env)
	seedVehicle(t, env, "p1")

	req := startRequest(track)
	req.Started = upd(200, 1000, 0)
	_, err := env.ctrl.StartRace(context.Background(), "p1", req)
	assert.ErrorContains(t, err, "from the track start")
}

func TestStartRace_SupersedesOngoing(t *testing.T) {
	env := newTestEnv(t)
	first := startRace(t, env, "p1")

	second, err := env.ctrl.StartRace(context.Background(), "p1",
		startRequest(&model.Track{Hash: "straight-1000"}))
	require.NoError(t, err)

	assert.True(t, first.Cancelled)
	assert.Equal(t, model.CancelSuperseded, first.CancelReason)
	assert.True(t, second.Ongoing())
	assert.Same(t, second, env.world.Registry().Session("p1").OngoingRace())

	require.Len(t, env.proxy.events, 1)
	assert.Equal(t, proxy.TypeRaceCancelled, env.proxy.events[0].Type)
	ev := env.proxy.events[0].Payload.(*model.RaceCancelledEvent)
	assert.Equal(t, first.ID, ev.RaceID)
	assert.Equal(t, model.CancelSuperseded, ev.Reason)
}

func TestApplyUpdate_WithoutRace(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.ctrl.ApplyUpdate(context.Background(), "p1", upd(0, 1000, 5))
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Len(t, env.world.History("p1"), 1)
	assert.Empty(t, env.proxy.events)
}

func TestApplyUpdate_FullRun(t *testing.T) {
	env := newTestEnv(t)
	race := startRace(t, env, "p1")

	for i, x := range []float64{250, 500, 750} {
		res, err := env.ctrl.ApplyUpdate(context.Background(), "p1",
			upd(x, 2000+int64(i)*1000, 50))
		require.NoError(t, err)
		assert.False(t, res.Finished)
	}
	res, err := env.ctrl.ApplyUpdate(context.Background(), "p1", upd(1000, 5000, 50))
	require.NoError(t, err)
	require.True(t, res.Finished)

	assert.False(t, race.Ongoing())
	require.NotNil(t, race.Finished)
	assert.Equal(t, int64(5000), *race.Finished)
	assert.Equal(t, int64(4000), race.Stopwatch)
	assert.Equal(t, 100, race.PercentComplete)
	assert.Equal(t, 0, race.PercentMissed)

	types := make([]string, 0, len(env.proxy.events))
	for _, ev := range env.proxy.events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{
		proxy.TypeRaceProgress, proxy.TypeRaceProgress,
		proxy.TypeRaceProgress, proxy.TypeRaceFinished,
	}, types)

	fin := env.proxy.events[3].Payload.(*model.RaceFinishedEvent)
	assert.Equal(t, race.ID, fin.RaceID)
	assert.Equal(t, int64(5000), fin.FinishedAt)
	assert.Equal(t, int64(4000), fin.Stopwatch)

	first := env.proxy.events[0].Payload.(*model.RaceProgressEvent)
	assert.Equal(t, 25, first.PercentComplete)
}

func TestApplyUpdate_MissedTrackDisqualifies(t *testing.T) {
	env := newTestEnv(t)
	race := startRace(t, env, "p1")

	// bypass 310m..485m of the track, well past the 7% ceiling
	ctx := context.Background()
	for i, p := range []struct{ x, y float64 }{
		{300, 0}, {300, 60}, {495, 60},
	} {
		u := upd(p.x, 2000+int64(i)*1000, 40)
		u.Latitude = deg(p.y)
		_, err := env.ctrl.ApplyUpdate(ctx, "p1", u)
		require.NoError(t, err)
	}
	res, err := env.ctrl.ApplyUpdate(ctx, "p1", upd(495, 5000, 40))
	require.NoError(t, err)

	assert.Greater(t, res.PercentMissed, 7)
	assert.True(t, race.Disqualified)
	assert.Equal(t, model.ReasonMissedTrack, race.DqReason)
	assert.False(t, race.Cancelled)
	assert.Nil(t, race.Finished)
	assert.Nil(t, env.world.Registry().Session("p1").OngoingRace())

	assert.Equal(t, proxy.TypeRaceDisqualified, env.proxy.lastType())
	ev := env.proxy.events[len(env.proxy.events)-1].Payload.(*model.RaceDisqualifiedEvent)
	assert.Equal(t, race.ID, ev.RaceID)
	assert.Equal(t, res.PercentMissed, ev.ExtraInfo["percentMissed"])
}

func TestApplyUpdate_DropsStaleSample(t *testing.T) {
	env := newTestEnv(t)
	race := startRace(t, env, "p1")

	res, err := env.ctrl.ApplyUpdate(context.Background(), "p1", upd(100, 500, 10))
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 1, race.Samples())
	assert.Empty(t, env.proxy.events)
}

func TestApplyUpdate_RejectsUnsupportedPosition(t *testing.T) {
	env := newTestEnv(t)
	race := startRace(t, env, "p1")

	res, err := env.ctrl.ApplyUpdate(context.Background(), "p1", &world.Update{
		Longitude: 0, Latitude: 89, LoggedAt: 2000,
	})
	assert.Nil(t, res)
	var reason *model.ReasonError
	require.ErrorAs(t, err, &reason)
	assert.Equal(t, model.ReasonPositionNotSupported, reason.Code)

	// the race is untouched and continues with the next valid sample
	assert.True(t, race.Ongoing())
	assert.Equal(t, 1, race.Samples())
	assert.Empty(t, env.proxy.events)

	res, err = env.ctrl.ApplyUpdate(context.Background(), "p1", upd(250, 3000, 40))
	require.NoError(t, err)
	assert.False(t, res.Finished)
	assert.Equal(t, proxy.TypeRaceProgress, env.proxy.lastType())
}

func TestDisconnect(t *testing.T) {
	env := newTestEnv(t)
	race := startRace(t, env, "p1")

	require.NoError(t, env.ctrl.Disconnect(context.Background(), "p1"))
	assert.True(t, race.Disqualified)
	assert.Equal(t, model.ReasonDisconnected, race.DqReason)
	assert.Equal(t, proxy.TypeRaceDisqualified, env.proxy.lastType())
	assert.Equal(t, 0, env.world.Registry().Len())

	// without an ongoing race only the session is dropped
	events := len(env.proxy.events)
	require.NoError(t, env.ctrl.Disconnect(context.Background(), "p2"))
	assert.Len(t, env.proxy.events, events)
}

func TestCancelOngoing(t *testing.T) {
	env := newTestEnv(t)
	race := startRace(t, env, "p1")

	cancelled, err := env.ctrl.CancelOngoing(context.Background(), "p1")
	require.NoError(t, err)
	require.NotNil(t, cancelled)
	assert.Equal(t, race.ID, cancelled.ID)
	assert.Equal(t, model.CancelRequested, cancelled.CancelReason)
	assert.Equal(t, proxy.TypeRaceCancelled, env.proxy.lastType())

	// cancelling again is a no-op
	events := len(env.proxy.events)
	cancelled, err = env.ctrl.CancelOngoing(context.Background(), "p1")
	require.NoError(t, err)
	assert.Nil(t, cancelled)
	assert.Len(t, env.proxy.events, events)
}

func TestLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	addFinished := func(player string, stopwatch int64) {
		r := model.NewRace(uuid.Must(uuid.NewV4()), "straight-1000", player,
			uuid.Must(uuid.NewV4()), 0)
		require.NoError(t, r.SetFinished(stopwatch))
		require.NoError(t, env.repos.Race().Create(ctx, r))
	}
	addFinished("p3", 210000)
	addFinished("p1", 180000)
	addFinished("p2", 195000)

	entries, err := env.ctrl.Leaderboard(ctx, "straight-1000", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(180000), entries[0].Stopwatch)
	assert.Equal(t, int64(195000), entries[1].Stopwatch)
	assert.Equal(t, int64(210000), entries[2].Stopwatch)
	assert.Equal(t, "p1", entries[0].PlayerID)
}
