package race

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gofrs/uuid/v5"
	"github.com/samber/lo"

	"github.com/gridrace/race-service-go/pkg/model"
	"github.com/gridrace/race-service-go/pkg/proxy"
	"github.com/gridrace/race-service-go/pkg/repository/api"
)

// in-memory stand-ins for the pgx repositories

type fakeRepos struct {
	trackRepo   *fakeTrackRepo
	raceRepo    *fakeRaceRepo
	vehicleRepo *fakeVehicleRepo
}

var _ api.Repositories = (*fakeRepos)(nil)

func newFakeRepos() *fakeRepos {
	return &fakeRepos{
		trackRepo: &fakeTrackRepo{
			tracks: map[string]*model.Track{},
			paths:  map[string]*model.TrackPath{},
		},
		raceRepo:    &fakeRaceRepo{races: map[uuid.UUID]*model.Race{}},
		vehicleRepo: &fakeVehicleRepo{},
	}
}

func (f *fakeRepos) Track() api.TrackRepository     { return f.trackRepo }
func (f *fakeRepos) Race() api.RaceRepository       { return f.raceRepo }
func (f *fakeRepos) Vehicle() api.VehicleRepository { return f.vehicleRepo }

type fakeTrackRepo struct {
	tracks map[string]*model.Track
	paths  map[string]*model.TrackPath
}

func (f *fakeTrackRepo) Ensure(
	_ context.Context, track *model.Track, path *model.TrackPath,
) error {
	f.tracks[track.Hash] = track
	f.paths[track.Hash] = path
	return nil
}

func (f *fakeTrackRepo) LoadByHash(_ context.Context, hash string) (*model.Track, error) {
	if t, ok := f.tracks[hash]; ok {
		return t, nil
	}
	return nil, api.ErrNoRows
}

func (f *fakeTrackRepo) LoadPath(_ context.Context, hash string) (*model.TrackPath, error) {
	if p, ok := f.paths[hash]; ok {
		return p, nil
	}
	return nil, api.ErrNoRows
}

func (f *fakeTrackRepo) LoadAll(_ context.Context) ([]*model.Track, error) {
	return lo.Values(f.tracks), nil
}

func (f *fakeTrackRepo) DeleteByHash(_ context.Context, hash string) (int, error) {
	if _, ok := f.tracks[hash]; !ok {
		return 0, nil
	}
	delete(f.tracks, hash)
	delete(f.paths, hash)
	return 1, nil
}

type fakeRaceRepo struct {
	mu        sync.Mutex
	races     map[uuid.UUID]*model.Race
	locations []*model.Location
}

func (f *fakeRaceRepo) Create(_ context.Context, race *model.Race) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.races {
		if r.PlayerID == race.PlayerID && r.Ongoing() {
			return fmt.Errorf("player %s already has an ongoing race", race.PlayerID)
		}
	}
	f.races[race.ID] = race
	return nil
}

func (f *fakeRaceRepo) Update(_ context.Context, race *model.Race) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.races[race.ID]; !ok {
		return 0, nil
	}
	f.races[race.ID] = race
	return 1, nil
}

func (f *fakeRaceRepo) LoadByID(_ context.Context, id uuid.UUID) (*model.Race, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.races[id]; ok {
		return r, nil
	}
	return nil, api.ErrNoRows
}

func (f *fakeRaceRepo) LoadOngoingByPlayer(_ context.Context, playerID string) (
	*model.Race, error,
) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.races {
		if r.PlayerID == playerID && r.Ongoing() {
			return r, nil
		}
	}
	return nil, api.ErrNoRows
}

func (f *fakeRaceRepo) Leaderboard(
	_ context.Context, trackHash string, limit, offset int,
) ([]*model.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	finished := lo.Filter(lo.Values(f.races), func(r *model.Race, _ int) bool {
		return r.TrackHash == trackHash && r.Finished != nil
	})
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].Stopwatch < finished[j].Stopwatch
	})
	entries := lo.Map(finished, func(r *model.Race, _ int) *model.LeaderboardEntry {
		return &model.LeaderboardEntry{
			RaceID:       r.ID,
			PlayerID:     r.PlayerID,
			VehicleID:    r.VehicleID,
			Stopwatch:    r.Stopwatch,
			AverageSpeed: r.AverageSpeed,
			FinishedAt:   *r.Finished,
		}
	})
	if offset >= len(entries) {
		return nil, nil
	}
	return lo.Slice(entries, offset, offset+limit), nil
}

func (f *fakeRaceRepo) StoreLocation(_ context.Context, loc *model.Location) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locations = append(f.locations, loc)
	return nil
}

func (f *fakeRaceRepo) LoadLocations(_ context.Context, raceID uuid.UUID) (
	[]*model.Location, error,
) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return lo.Filter(f.locations, func(l *model.Location, _ int) bool {
		return l.RaceID != nil && *l.RaceID == raceID
	}), nil
}

func (f *fakeRaceRepo) DeleteByID(_ context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.races[id]; !ok {
		return 0, nil
	}
	delete(f.races, id)
	return 1, nil
}

type fakeVehicleRepo struct {
	vehicles []*model.Vehicle
}

func (f *fakeVehicleRepo) Create(_ context.Context, v *model.Vehicle) error {
	f.vehicles = append(f.vehicles, v)
	return nil
}

func (f *fakeVehicleRepo) LoadByID(_ context.Context, id uuid.UUID) (
	*model.Vehicle, error,
) {
	for _, v := range f.vehicles {
		if v.ID == id {
			return v, nil
		}
	}
	return nil, api.ErrNoRows
}

func (f *fakeVehicleRepo) LoadByPlayer(_ context.Context, playerID string) (
	[]*model.Vehicle, error,
) {
	return lo.Filter(f.vehicles, func(v *model.Vehicle, _ int) bool {
		return v.PlayerID == playerID
	}), nil
}

func (f *fakeVehicleRepo) DeleteByID(_ context.Context, id uuid.UUID) (int, error) {
	before := len(f.vehicles)
	f.vehicles = lo.Filter(f.vehicles, func(v *model.Vehicle, _ int) bool {
		return v.ID != id
	})
	return before - len(f.vehicles), nil
}

type fakeTxManager struct{}

func (fakeTxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// captureProxy records published events in order.
type captureProxy struct {
	proxy.EmptyProxy
	events []*proxy.Event
}

func (p *captureProxy) PublishRaceProgress(ev *model.RaceProgressEvent) error {
	p.events = append(p.events, &proxy.Event{Type: proxy.TypeRaceProgress, Payload: ev})
	return nil
}

func (p *captureProxy) PublishRaceFinished(ev *model.RaceFinishedEvent) error {
	p.events = append(p.events, &proxy.Event{Type: proxy.TypeRaceFinished, Payload: ev})
	return nil
}

func (p *captureProxy) PublishRaceDisqualified(ev *model.RaceDisqualifiedEvent) error {
	p.events = append(p.events, &proxy.Event{Type: proxy.TypeRaceDisqualified, Payload: ev})
	return nil
}

func (p *captureProxy) PublishRaceCancelled(ev *model.RaceCancelledEvent) error {
	p.events = append(p.events, &proxy.Event{Type: proxy.TypeRaceCancelled, Payload: ev})
	return nil
}

func (p *captureProxy) lastType() string {
	if len(p.events) == 0 {
		return ""
	}
	return p.events[len(p.events)-1].Type
}
