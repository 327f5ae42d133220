package track

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/gridrace/race-service-go/pkg/model"
	"github.com/gridrace/race-service-go/pkg/repository"
	"github.com/gridrace/race-service-go/pkg/repository/api"
)

type repo struct {
	conn repository.Querier
}

var _ api.TrackRepository = (*repo)(nil)

func NewTrackRepository(conn repository.Querier) api.TrackRepository {
	return &repo{conn: conn}
}

func (r *repo) getExecutor(ctx context.Context) repository.Querier {
	if q, ok := repository.FromContext(ctx); ok {
		return q
	}
	return r.conn
}

func (r *repo) Ensure(
	ctx context.Context,
	track *model.Track,
	path *model.TrackPath,
) error {
	_, err := r.LoadByHash(ctx, track.Hash)
	if err == nil {
		return nil
	}
	if !errors.Is(err, api.ErrNoRows) {
		return err
	}
	conn := r.getExecutor(ctx)
	if _, err := conn.Exec(ctx, `
	insert into track (hash, name, description, owner_id, track_type, laps,
		verified, snapped)
	values ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		track.Hash, track.Name, track.Description, track.OwnerID,
		int(track.Type), track.Laps, track.Verified, track.Snapped,
	); err != nil {
		return err
	}
	for segNo, seg := range path.Segments {
		if _, err := conn.Exec(ctx, `
		insert into track_path (track_hash, seg_no, points) values ($1,$2,$3)
		`,
			track.Hash, segNo, seg.Points); err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) LoadByHash(ctx context.Context, hash string) (*model.Track, error) {
	row := r.getExecutor(ctx).QueryRow(ctx,
		selector+" where hash=$1", hash)
	var item model.Track
	if err := scan(&item, row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, api.ErrNoRows
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) LoadPath(ctx context.Context, hash string) (*model.TrackPath, error) {
	rows, err := r.getExecutor(ctx).Query(ctx, `
	select points from track_path where track_hash=$1 order by seg_no asc
	`, hash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := &model.TrackPath{TrackHash: hash}
	for rows.Next() {
		var points []model.GeoPoint
		if err := rows.Scan(&points); err != nil {
			return nil, err
		}
		ret.Segments = append(ret.Segments, model.PathSegment{Points: points})
	}
	if len(ret.Segments) == 0 {
		return nil, api.ErrNoRows
	}
	return ret, nil
}

func (r *repo) LoadAll(ctx context.Context) ([]*model.Track, error) {
	rows, err := r.getExecutor(ctx).Query(ctx,
		selector+" order by name asc")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*model.Track, 0)
	for rows.Next() {
		var item model.Track
		if err := scan(&item, rows); err != nil {
			return nil, err
		}
		ret = append(ret, &item)
	}
	return ret, nil
}

// deletes a track and its path, returns number of track rows deleted.
func (r *repo) DeleteByHash(ctx context.Context, hash string) (int, error) {
	cmdTag, err := r.getExecutor(ctx).Exec(ctx,
		"delete from track where hash=$1", hash)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

// little helper
const selector = string(`
select hash, name, description, owner_id, track_type, laps, verified, snapped
from track`)

func scan(e *model.Track, row pgx.Row) error {
	var trackType int
	if err := row.Scan(&e.Hash, &e.Name, &e.Description, &e.OwnerID,
		&trackType, &e.Laps, &e.Verified, &e.Snapped); err != nil {
		return err
	}
	e.Type = model.TrackType(trackType)
	return nil
}
