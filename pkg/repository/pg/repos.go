// Package pg wires the pgx backed repository implementations together.
package pg

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridrace/race-service-go/pkg/repository/api"
	"github.com/gridrace/race-service-go/pkg/repository/race"
	"github.com/gridrace/race-service-go/pkg/repository/track"
	"github.com/gridrace/race-service-go/pkg/repository/vehicle"
)

type pgRepositories struct {
	track   api.TrackRepository
	race    api.RaceRepository
	vehicle api.VehicleRepository
}

var _ api.Repositories = (*pgRepositories)(nil)

func NewRepositoriesFromPool(pool *pgxpool.Pool) api.Repositories {
	return &pgRepositories{
		track:   track.NewTrackRepository(pool),
		race:    race.NewRaceRepository(pool),
		vehicle: vehicle.NewVehicleRepository(pool),
	}
}

func (r *pgRepositories) Track() api.TrackRepository     { return r.track }
func (r *pgRepositories) Race() api.RaceRepository       { return r.race }
func (r *pgRepositories) Vehicle() api.VehicleRepository { return r.vehicle }
