// Package world accepts raw position updates from players, validates them
// against the configured CRS and keeps the per-player location history.
package world

import (
	"github.com/gridrace/race-service-go/log"
	"github.com/gridrace/race-service-go/pkg/config"
	"github.com/gridrace/race-service-go/pkg/geo"
	"github.com/gridrace/race-service-go/pkg/model"
)

// Update is a raw position report as received from a player's device.
type Update struct {
	Longitude float64
	Latitude  float64
	Bearing   float64
	Speed     float64
	LoggedAt  int64 // unix milliseconds
}

type (
	Option func(*World)

	// World validates and projects incoming positions and retains a bounded
	// history per player.
	World struct {
		cfg *config.Config
		log *log.Logger
		crs *geo.CRS

		registry *Registry
	}
)

func WithConfig(cfg *config.Config) Option {
	return func(w *World) { w.cfg = cfg }
}

func WithLogger(l *log.Logger) Option {
	return func(w *World) { w.log = l }
}

func NewWorld(opts ...Option) (*World, error) {
	ret := &World{
		cfg:      config.FromResolved(),
		log:      log.Default().Named("world"),
		registry: NewRegistry(),
	}
	for _, opt := range opts {
		opt(ret)
	}
	crs, err := geo.LookupCRS(ret.cfg.CRS)
	if err != nil {
		return nil, err
	}
	ret.crs = crs
	return ret, nil
}

func (w *World) Registry() *Registry { return w.registry }

// PrepareLocation validates an update against the CRS area of use and
// projects it into the planar frame. Positions outside the supported area
// are rejected with a position-not-supported reason.
func (w *World) PrepareLocation(playerID string, upd *Update) (*model.Location, error) {
	if !w.crs.Supports(upd.Longitude, upd.Latitude) {
		w.log.Debug("position outside supported area",
			log.String("player", playerID),
			log.Float64("lon", upd.Longitude),
			log.Float64("lat", upd.Latitude))
		return nil, model.NewReasonError(model.ReasonPositionNotSupported)
	}
	return &model.Location{
		PlayerID:  playerID,
		Longitude: upd.Longitude,
		Latitude:  upd.Latitude,
		Planar:    w.crs.Project(upd.Longitude, upd.Latitude),
		Bearing:   upd.Bearing,
		Speed:     upd.Speed,
		LoggedAt:  upd.LoggedAt,
	}, nil
}

// Record stores an accepted location in the player's history and trims it
// to the configured retention. Samples referenced by a race are kept
// regardless of age so race progress stays reconstructable.
func (w *World) Record(loc *model.Location) {
	session := w.registry.Session(loc.PlayerID)
	session.mu.Lock()
	defer session.mu.Unlock()

	session.history = append(session.history, loc)
	retain := w.cfg.HistoryRetain
	if retain <= 0 || len(session.history) <= retain {
		return
	}
	excess := len(session.history) - retain
	kept := make([]*model.Location, 0, retain)
	for i, l := range session.history {
		if i < excess && l.RaceID == nil {
			continue
		}
		kept = append(kept, l)
	}
	session.history = kept
}

// History returns a copy of the player's retained samples, oldest first.
func (w *World) History(playerID string) []*model.Location {
	session := w.registry.Session(playerID)
	session.mu.RLock()
	defer session.mu.RUnlock()
	out := make([]*model.Location, len(session.history))
	copy(out, session.history)
	return out
}
