package api

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"

	"github.com/gridrace/race-service-go/pkg/model"
)

var ErrNoRows = errors.New("no rows in result set")

type Repositories interface {
	Track() TrackRepository
	Race() RaceRepository
	Vehicle() VehicleRepository
}

type TrackRepository interface {
	// Ensure stores track and path unless the hash is already known.
	Ensure(ctx context.Context, track *model.Track, path *model.TrackPath) error
	LoadByHash(ctx context.Context, hash string) (*model.Track, error)
	LoadPath(ctx context.Context, hash string) (*model.TrackPath, error)
	LoadAll(ctx context.Context) ([]*model.Track, error)
	DeleteByHash(ctx context.Context, hash string) (int, error)
}

type RaceRepository interface {
	Create(ctx context.Context, race *model.Race) error
	// Update persists the mutable race state (verification results and
	// terminal flags), returns the number of rows affected.
	Update(ctx context.Context, race *model.Race) (int, error)
	LoadByID(ctx context.Context, id uuid.UUID) (*model.Race, error)
	LoadOngoingByPlayer(ctx context.Context, playerID string) (*model.Race, error)
	// Leaderboard lists finished races on a track ordered by stopwatch.
	Leaderboard(ctx context.Context, trackHash string, limit, offset int) (
		[]*model.LeaderboardEntry, error)
	StoreLocation(ctx context.Context, loc *model.Location) error
	LoadLocations(ctx context.Context, raceID uuid.UUID) ([]*model.Location, error)
	DeleteByID(ctx context.Context, id uuid.UUID) (int, error)
}

type VehicleRepository interface {
	Create(ctx context.Context, vehicle *model.Vehicle) error
	LoadByID(ctx context.Context, id uuid.UUID) (*model.Vehicle, error)
	LoadByPlayer(ctx context.Context, playerID string) ([]*model.Vehicle, error)
	DeleteByID(ctx context.Context, id uuid.UUID) (int, error)
}

type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
