package race

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/gridrace/race-service-go/pkg/model"
	"github.com/gridrace/race-service-go/pkg/repository"
	"github.com/gridrace/race-service-go/pkg/repository/api"
)

type repo struct {
	conn repository.Querier
}

var _ api.RaceRepository = (*repo)(nil)

func NewRaceRepository(conn repository.Querier) api.RaceRepository {
	return &repo{conn: conn}
}

func (r *repo) getExecutor(ctx context.Context) repository.Querier {
	if q, ok := repository.FromContext(ctx); ok {
		return q
	}
	return r.conn
}

func (r *repo) Create(ctx context.Context, race *model.Race) error {
	_, err := r.getExecutor(ctx).Exec(ctx, `
	insert into race (id, track_hash, player_id, vehicle_id, started, finished,
		disqualified, dq_reason, dq_extra, cancelled, cancel_reason,
		avg_speed, pct_complete, pct_missed, stopwatch)
	values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		race.ID, race.TrackHash, race.PlayerID, race.VehicleID,
		race.Started, race.Finished,
		race.Disqualified, race.DqReason, race.DqExtra,
		race.Cancelled, race.CancelReason,
		race.AverageSpeed, race.PercentComplete, race.PercentMissed,
		race.Stopwatch)
	return err
}

func (r *repo) Update(ctx context.Context, race *model.Race) (int, error) {
	cmdTag, err := r.getExecutor(ctx).Exec(ctx, `
	update race set finished=$1, disqualified=$2, dq_reason=$3, dq_extra=$4,
		cancelled=$5, cancel_reason=$6, avg_speed=$7, pct_complete=$8,
		pct_missed=$9, stopwatch=$10
	where id=$11
	`,
		race.Finished, race.Disqualified, race.DqReason, race.DqExtra,
		race.Cancelled, race.CancelReason,
		race.AverageSpeed, race.PercentComplete, race.PercentMissed,
		race.Stopwatch, race.ID)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

func (r *repo) LoadByID(ctx context.Context, id uuid.UUID) (*model.Race, error) {
	row := r.getExecutor(ctx).QueryRow(ctx,
		selector+" where id=$1", id)
	return scanOne(row)
}

func (r *repo) LoadOngoingByPlayer(ctx context.Context, playerID string) (
	*model.Race, error,
) {
	row := r.getExecutor(ctx).QueryRow(ctx,
		selector+` where player_id=$1
		and finished is null and not disqualified and not cancelled`,
		playerID)
	return scanOne(row)
}

func (r *repo) Leaderboard(
	ctx context.Context,
	trackHash string,
	limit, offset int,
) ([]*model.LeaderboardEntry, error) {
	rows, err := r.getExecutor(ctx).Query(ctx, `
	select id, player_id, vehicle_id, stopwatch, avg_speed, finished
	from race
	where track_hash=$1 and finished is not null
	order by stopwatch asc, finished asc
	limit $2 offset $3
	`, trackHash, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*model.LeaderboardEntry, 0)
	for rows.Next() {
		var item model.LeaderboardEntry
		if err := rows.Scan(&item.RaceID, &item.PlayerID, &item.VehicleID,
			&item.Stopwatch, &item.AverageSpeed, &item.FinishedAt); err != nil {
			return nil, err
		}
		ret = append(ret, &item)
	}
	return ret, nil
}

func (r *repo) StoreLocation(ctx context.Context, loc *model.Location) error {
	_, err := r.getExecutor(ctx).Exec(ctx, `
	insert into location (race_id, player_id, lon, lat, x, y, bearing, speed,
		logged_at)
	values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		loc.RaceID, loc.PlayerID, loc.Longitude, loc.Latitude,
		loc.Planar.X, loc.Planar.Y, loc.Bearing, loc.Speed, loc.LoggedAt)
	return err
}

func (r *repo) LoadLocations(ctx context.Context, raceID uuid.UUID) (
	[]*model.Location, error,
) {
	rows, err := r.getExecutor(ctx).Query(ctx, `
	select race_id, player_id, lon, lat, x, y, bearing, speed, logged_at
	from location where race_id=$1 order by logged_at asc
	`, raceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*model.Location, 0)
	for rows.Next() {
		var item model.Location
		if err := rows.Scan(&item.RaceID, &item.PlayerID,
			&item.Longitude, &item.Latitude,
			&item.Planar.X, &item.Planar.Y,
			&item.Bearing, &item.Speed, &item.LoggedAt); err != nil {
			return nil, err
		}
		ret = append(ret, &item)
	}
	return ret, nil
}

// deletes a race and its locations, returns number of race rows deleted.
func (r *repo) DeleteByID(ctx context.Context, id uuid.UUID) (int, error) {
	cmdTag, err := r.getExecutor(ctx).Exec(ctx,
		"delete from race where id=$1", id)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

// little helper
const selector = string(`
select id, track_hash, player_id, vehicle_id, started, finished,
	disqualified, dq_reason, dq_extra, cancelled, cancel_reason,
	avg_speed, pct_complete, pct_missed, stopwatch
from race`)

func scanOne(row pgx.Row) (*model.Race, error) {
	var item model.Race
	if err := row.Scan(&item.ID, &item.TrackHash, &item.PlayerID,
		&item.VehicleID, &item.Started, &item.Finished,
		&item.Disqualified, &item.DqReason, &item.DqExtra,
		&item.Cancelled, &item.CancelReason,
		&item.AverageSpeed, &item.PercentComplete, &item.PercentMissed,
		&item.Stopwatch); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, api.ErrNoRows
		}
		return nil, err
	}
	return &item, nil
}
