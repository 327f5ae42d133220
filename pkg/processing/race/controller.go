// Package race implements the controller driving the race lifecycle:
// starting races, feeding position updates through the verification engine
// and entering terminal states with the matching outbound event.
package race

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/gridrace/race-service-go/log"
	"github.com/gridrace/race-service-go/pkg/config"
	"github.com/gridrace/race-service-go/pkg/geo"
	"github.com/gridrace/race-service-go/pkg/model"
	"github.com/gridrace/race-service-go/pkg/processing/verify"
	"github.com/gridrace/race-service-go/pkg/proxy"
	"github.com/gridrace/race-service-go/pkg/repository/api"
	"github.com/gridrace/race-service-go/pkg/utils/cache"
	"github.com/gridrace/race-service-go/pkg/utils/cache/loadercache"
	"github.com/gridrace/race-service-go/pkg/world"
)

// StartRequest carries the data of a start_race message. Countdown is the
// position where the countdown began, Started the position at the moment
// the race went live.
type StartRequest struct {
	TrackHash string
	VehicleID *uuid.UUID
	Countdown *world.Update
	Started   *world.Update
}

type (
	Option func(*Controller)

	// trackData bundles a track with its path so both travel through the
	// cache together.
	trackData struct {
		track *model.Track
		path  *model.TrackPath
	}

	Controller struct {
		cfg      *config.Config
		log      *log.Logger
		world    *world.World
		repos    api.Repositories
		txMgr    api.TransactionManager
		proxy    proxy.PublishProxy
		verifier *verify.Verifier
		tracks   cache.Cache[string, trackData]
	}
)

func WithConfig(cfg *config.Config) Option {
	return func(c *Controller) { c.cfg = cfg }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.log = l }
}

func WithWorld(w *world.World) Option {
	return func(c *Controller) { c.world = w }
}

func WithRepositories(r api.Repositories) Option {
	return func(c *Controller) { c.repos = r }
}

func WithTxManager(t api.TransactionManager) Option {
	return func(c *Controller) { c.txMgr = t }
}

func WithProxy(p proxy.PublishProxy) Option {
	return func(c *Controller) { c.proxy = p }
}

func WithVerifier(v *verify.Verifier) Option {
	return func(c *Controller) { c.verifier = v }
}

func NewController(opts ...Option) *Controller {
	ret := &Controller{
		cfg: config.FromResolved(),
		log: log.Default().Named("race"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.verifier == nil {
		ret.verifier = verify.NewVerifier(verify.WithConfig(ret.cfg))
	}
	// tracks are immutable by content hash, a short expiration is enough to
	// pick up deletions
	ret.tracks = loadercache.New(
		loadercache.WithExpiration[string, trackData](time.Minute),
		loadercache.WithLoader[string, trackData](ret.fetchTrack),
	)
	return ret
}

// StartRace begins a new race for the player. Any ongoing race of the same
// player is cancelled first with an observable superseded event; a start is
// never silently rejected because of a leftover session.
func (c *Controller) StartRace(
	ctx context.Context,
	playerID string,
	req *StartRequest,
) (*model.Race, error) {
	track, path, err := c.loadTrack(ctx, req.TrackHash)
	if err != nil {
		if errors.Is(err, api.ErrNoRows) {
			return nil, model.NewReasonError(model.ReasonNoTrack)
		}
		return nil, err
	}
	if !track.Raceable() {
		return nil, model.NewReasonError(model.ReasonTrackNotRaceable)
	}
	vehicle, err := c.resolveVehicle(ctx, playerID, req.VehicleID)
	if err != nil {
		return nil, err
	}

	countdown, started, err := c.prepareIntent(playerID, path, req)
	if err != nil {
		return nil, err
	}

	if err := c.cancelOngoing(ctx, playerID, model.CancelSuperseded); err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	race := model.NewRace(id, track.Hash, playerID, vehicle.ID, started.LoggedAt)
	started.RaceID = &race.ID

	if err := c.txMgr.RunInTx(ctx, func(ctx context.Context) error {
		if err := c.repos.Race().Create(ctx, race); err != nil {
			return err
		}
		return c.repos.Race().StoreLocation(ctx, started)
	}); err != nil {
		return nil, err
	}
	if err := race.AddLocation(started); err != nil {
		return nil, err
	}
	c.world.Record(countdown)
	c.world.Record(started)
	c.world.Registry().Session(playerID).SetRace(race)

	c.log.Info("race started",
		log.String("player", playerID),
		log.String("race", race.ID.String()),
		log.String("track", track.Hash))
	return race, nil
}

// ApplyUpdate feeds one position update into the player's ongoing race.
// Without an ongoing race the update only lands in the location history.
// With one, the race is re-verified and exactly one outbound event is
// published: progress, finished or disqualified.
func (c *Controller) ApplyUpdate(
	ctx context.Context,
	playerID string,
	upd *world.Update,
) (*verify.Result, error) {
	session := c.world.Registry().Session(playerID)
	race := session.OngoingRace()

	loc, err := c.world.PrepareLocation(playerID, upd)
	if err != nil {
		return nil, err
	}

	if race == nil {
		c.world.Record(loc)
		return nil, nil
	}

	loc.RaceID = &race.ID
	if err := race.AddLocation(loc); err != nil {
		// routine GPS reordering, drop the sample and keep the race untouched
		c.log.Warn("sample dropped",
			log.String("race", race.ID.String()), log.ErrorField(err))
		return nil, nil
	}
	c.world.Record(loc)

	track, path, err := c.loadTrack(ctx, race.TrackHash)
	if err != nil {
		return nil, err
	}
	res, err := c.verifier.Verify(race, track, path)
	if err != nil {
		return nil, err
	}

	if res.HasGeometry {
		race.PercentComplete = res.PercentComplete
		race.PercentMissed = res.PercentMissed
		if res.PercentMissed > c.cfg.MaxPercentMissed {
			if err := c.repos.Race().StoreLocation(ctx, loc); err != nil {
				return nil, err
			}
			return res, c.disqualify(ctx, race, model.ReasonMissedTrack,
				map[string]any{"percentMissed": res.PercentMissed})
		}
		if res.Finished {
			return res, c.finish(ctx, race, loc)
		}
	}

	if err := c.persist(ctx, race, loc); err != nil {
		return nil, err
	}
	if err := c.proxy.PublishRaceProgress(&model.RaceProgressEvent{
		RaceID:          race.ID,
		PercentComplete: race.PercentComplete,
		PercentMissed:   race.PercentMissed,
		AverageSpeed:    race.AverageSpeed,
		Stopwatch:       race.Stopwatch,
	}); err != nil {
		c.log.Warn("publish progress failed", log.ErrorField(err))
	}
	return res, nil
}

// Disconnect handles a dropped player connection. An ongoing race cannot
// continue without its position feed and is disqualified; the player's
// session is dropped afterwards.
func (c *Controller) Disconnect(ctx context.Context, playerID string) error {
	session := c.world.Registry().Session(playerID)
	if race := session.OngoingRace(); race != nil {
		if err := c.disqualify(ctx, race, model.ReasonDisconnected, nil); err != nil {
			return err
		}
	}
	c.world.Registry().Remove(playerID)
	return nil
}

// CancelOngoing cancels the player's ongoing race on request. Returns the
// cancelled race, or nil when there was nothing to cancel.
func (c *Controller) CancelOngoing(
	ctx context.Context,
	playerID string,
) (*model.Race, error) {
	session := c.world.Registry().Session(playerID)
	race := session.OngoingRace()
	if race == nil {
		return nil, nil
	}
	if err := c.cancelOngoing(ctx, playerID, model.CancelRequested); err != nil {
		return nil, err
	}
	return race, nil
}

// Leaderboard returns one page of finished races on a track, fastest
// first.
func (c *Controller) Leaderboard(
	ctx context.Context,
	trackHash string,
	page int,
) ([]*model.LeaderboardEntry, error) {
	size := c.cfg.LeaderboardPageSize
	return c.repos.Race().Leaderboard(ctx, trackHash, size, page*size)
}

func (c *Controller) resolveVehicle(
	ctx context.Context,
	playerID string,
	vehicleID *uuid.UUID,
) (*model.Vehicle, error) {
	if vehicleID != nil {
		vehicle, err := c.repos.Vehicle().LoadByID(ctx, *vehicleID)
		if err != nil || vehicle.PlayerID != playerID {
			return nil, model.NewReasonError(model.ReasonNoVehicle)
		}
		return vehicle, nil
	}
	vehicles, err := c.repos.Vehicle().LoadByPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	// without an explicit choice the player must own exactly one vehicle
	if len(vehicles) != 1 {
		return nil, model.NewReasonError(model.ReasonNoVehicle)
	}
	return vehicles[0], nil
}

// prepareIntent validates the countdown/start sample pair of a start
// request. The countdown sample must precede the start sample and the
// start sample must be near the track's start point.
//
//nolint:whitespace // editor/linter issue
func (c *Controller) prepareIntent(
	playerID string,
	path *model.TrackPath,
	req *StartRequest,
) (countdown, started *model.Location, err error) {
	if req.Countdown == nil || req.Started == nil {
		return nil, nil, fmt.Errorf("start request needs countdown and start positions")
	}
	if req.Countdown.LoggedAt > req.Started.LoggedAt {
		return nil, nil, fmt.Errorf("countdown position is newer than start position")
	}
	countdown, err = c.world.PrepareLocation(playerID, req.Countdown)
	if err != nil {
		return nil, nil, err
	}
	started, err = c.world.PrepareLocation(playerID, req.Started)
	if err != nil {
		return nil, nil, err
	}

	startGeo, err := path.StartPoint()
	if err != nil {
		return nil, nil, err
	}
	crs, err := geo.LookupCRS(c.cfg.CRS)
	if err != nil {
		return nil, nil, err
	}
	startPt := crs.Project(startGeo.Longitude, startGeo.Latitude)
	if d := started.Planar.Dist(startPt); d > c.cfg.MaxDeviationM {
		return nil, nil, fmt.Errorf("start position is %.0fm from the track start", d)
	}
	return countdown, started, nil
}

func (c *Controller) loadTrack(ctx context.Context, hash string) (
	*model.Track, *model.TrackPath, error,
) {
	data, err := c.tracks.Get(ctx, hash)
	if err != nil {
		return nil, nil, err
	}
	return data.track, data.path, nil
}

// fetchTrack is the cache loader. The loader interface carries no context,
// lookups run detached.
func (c *Controller) fetchTrack(hash string) (*trackData, error) {
	ctx := context.Background()
	track, err := c.repos.Track().LoadByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	path, err := c.repos.Track().LoadPath(ctx, hash)
	if err != nil {
		return nil, err
	}
	return &trackData{track: track, path: path}, nil
}

// cancelOngoing moves the player's ongoing race (if any) to cancelled and
// publishes the cancellation.
func (c *Controller) cancelOngoing(
	ctx context.Context,
	playerID string,
	reason string,
) error {
	session := c.world.Registry().Session(playerID)
	race := session.OngoingRace()
	if race == nil {
		// a crashed instance may leave an ongoing race only in the database
		var err error
		race, err = c.repos.Race().LoadOngoingByPlayer(ctx, playerID)
		if errors.Is(err, api.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	if err := race.Cancel(reason); err != nil {
		return err
	}
	if _, err := c.repos.Race().Update(ctx, race); err != nil {
		return err
	}
	session.ClearRace(race)
	if err := c.proxy.PublishRaceCancelled(&model.RaceCancelledEvent{
		RaceID: race.ID,
		Reason: reason,
	}); err != nil {
		c.log.Warn("publish cancellation failed", log.ErrorField(err))
	}
	return nil
}

func (c *Controller) disqualify(
	ctx context.Context,
	race *model.Race,
	reason string,
	extra map[string]any,
) error {
	if err := race.Disqualify(reason, extra); err != nil {
		return err
	}
	if _, err := c.repos.Race().Update(ctx, race); err != nil {
		return err
	}
	if err := c.proxy.PublishRaceDisqualified(&model.RaceDisqualifiedEvent{
		RaceID:    race.ID,
		Reason:    reason,
		ExtraInfo: extra,
	}); err != nil {
		c.log.Warn("publish disqualification failed", log.ErrorField(err))
	}
	c.log.Info("race disqualified",
		log.String("race", race.ID.String()), log.String("reason", reason))
	return nil
}

// finish stamps the race finished at the triggering sample's timestamp.
func (c *Controller) finish(
	ctx context.Context,
	race *model.Race,
	loc *model.Location,
) error {
	if err := race.SetFinished(loc.LoggedAt); err != nil {
		return err
	}
	race.PercentComplete = 100
	race.PercentMissed = 0
	if err := c.persist(ctx, race, loc); err != nil {
		return err
	}
	if err := c.proxy.PublishRaceFinished(&model.RaceFinishedEvent{
		RaceID:       race.ID,
		FinishedAt:   loc.LoggedAt,
		Stopwatch:    race.Stopwatch,
		AverageSpeed: race.AverageSpeed,
	}); err != nil {
		c.log.Warn("publish finish failed", log.ErrorField(err))
	}
	c.log.Info("race finished",
		log.String("race", race.ID.String()),
		log.Int64("stopwatch", race.Stopwatch))
	return nil
}

func (c *Controller) persist(
	ctx context.Context,
	race *model.Race,
	loc *model.Location,
) error {
	return c.txMgr.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := c.repos.Race().Update(ctx, race); err != nil {
			return err
		}
		return c.repos.Race().StoreLocation(ctx, loc)
	})
}
