package vehicle

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

var _ api.VehicleRepository = (*repo)(nil)

func NewVehicleRepository(conn repository.Querier) api.VehicleRepository {
	return &repo{conn: conn}
}

func (r *repo) getExecutor(ctx context.Context) repository.Querier {
	if q, ok := repository.FromContext(ctx); ok {
		return q
	}
	return r.conn
}

func (r *repo) Create(ctx context.Context, vehicle *model.Vehicle) error {
	_, err := r.getExecutor(ctx).Exec(ctx,
		"insert into vehicle (id, player_id, title) values ($1,$2,$3)",
		vehicle.ID, vehicle.PlayerID, vehicle.Title)
	return err
}

func (r *repo) LoadByID(ctx context.Context, id uuid.UUID) (*model.Vehicle, error) {
	row := r.getExecutor(ctx).QueryRow(ctx,
		selector+" where id=$1", id)
	var item model.Vehicle
	if err := scan(&item, row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, api.ErrNoRows
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) LoadByPlayer(ctx context.Context, playerID string) (
	[]*model.Vehicle, error,
) {
	rows, err := r.getExecutor(ctx).Query(ctx,
		selector+" where player_id=$1 order by title asc", playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*model.Vehicle, 0)
	for rows.Next() {
		var item model.Vehicle
		if err := scan(&item, rows); err != nil {
			return nil, err
		}
		ret = append(ret, &item)
	}
	return ret, nil
}

// deletes an entry from the database, returns number of rows deleted.
func (r *repo) DeleteByID(ctx context.Context, id uuid.UUID) (int, error) {
	cmdTag, err := r.getExecutor(ctx).Exec(ctx,
		"delete from vehicle where id=$1", id)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

// little helper
const selector = string(`select id, player_id, title from vehicle`)

func scan(e *model.Vehicle, row pgx.Row) error {
	return row.Scan(&e.ID, &e.PlayerID, &e.Title)
}
