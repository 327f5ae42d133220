// Package ws exposes the player-facing websocket endpoint. Each connection
// belongs to one player; inbound messages are processed serially in arrival
// order and race events are pushed back over the same connection.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"

	"github.com/gridrace/race-service-go/log"
	"github.com/gridrace/race-service-go/pkg/model"
	"github.com/gridrace/race-service-go/pkg/processing/race"
	"github.com/gridrace/race-service-go/pkg/proxy"
)

type (
	Option func(*Server)

	Server struct {
		addr     string
		log      *log.Logger
		ctrl     *race.Controller
		data     proxy.DataProxy
		upgrader websocket.Upgrader
	}
)

func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.log = l }
}

func WithController(c *race.Controller) Option {
	return func(s *Server) { s.ctrl = c }
}

func WithDataProxy(p proxy.DataProxy) Option {
	return func(s *Server) { s.data = p }
}

func NewServer(opts ...Option) *Server {
	ret := &Server{
		log:      log.Default().Named("ws"),
		upgrader: websocket.Upgrader{},
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// ListenAndServe runs the websocket endpoint until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("shutdown failed", log.ErrorField(err))
		}
	}()
	s.log.Info("websocket endpoint listening", log.String("addr", s.addr))
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// client is one player connection. Inbound messages are handled serially
// by the read loop, outbound writes are serialized through the send
// channel.
type client struct {
	ws       *websocket.Conn
	playerID string
	send     chan *Message

	mu     sync.Mutex
	raceID *uuid.UUID
}

func (c *client) setRace(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raceID = &id
}

func (c *client) matches(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raceID != nil && *c.raceID == id
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerId")
	if playerID == "" {
		http.Error(w, "playerId is required", http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", log.ErrorField(err))
		return
	}
	defer conn.Close()

	c := &client{ws: conn, playerID: playerID, send: make(chan *Message, 16)}
	s.log.Debug("player connected", log.String("player", playerID))

	dataChan, quitChan, err := s.data.Subscribe()
	if err != nil {
		s.log.Error("event subscription failed", log.ErrorField(err))
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writeLoop(c)
	}()
	pumpDone := make(chan struct{})
	go func() {
		defer wg.Done()
		defer close(pumpDone)
		s.eventPump(c, dataChan)
	}()

	s.readLoop(r.Context(), c)

	// a race cannot continue without its position feed
	if err := s.ctrl.Disconnect(context.Background(), c.playerID); err != nil {
		s.log.Warn("disconnect handling failed",
			log.String("player", c.playerID), log.ErrorField(err))
	}
	close(quitChan)
	<-pumpDone
	close(c.send)
	wg.Wait()
	s.log.Debug("player disconnected", log.String("player", playerID))
}

func (s *Server) readLoop(ctx context.Context, c *client) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("read failed",
					log.String("player", c.playerID), log.ErrorField(err))
			}
			return
		}
		env, err := DecodeEnvelope(data)
		if err != nil {
			c.send <- &Message{Type: mtError, Body: &ErrorBody{Code: "invalid-message"}}
			continue
		}
		s.dispatch(ctx, c, env)
	}
}

func (s *Server) dispatch(ctx context.Context, c *client, env *Envelope) {
	switch env.Type {
	case mtPlayerUpdate:
		s.handleUpdate(ctx, c, env)
	case mtStartRace:
		s.handleStartRace(ctx, c, env)
	case mtCancelRace:
		if _, err := s.ctrl.CancelOngoing(ctx, c.playerID); err != nil {
			c.send <- errorMessage(err)
		}
	case mtLeaderboard:
		s.handleLeaderboard(ctx, c, env)
	default:
		c.send <- &Message{Type: mtError, Body: &ErrorBody{Code: "unknown-type"}}
	}
}

func (s *Server) handleUpdate(ctx context.Context, c *client, env *Envelope) {
	body, err := decodeBody[PlayerUpdate](env)
	if err != nil {
		c.send <- &Message{Type: mtError, Body: &ErrorBody{Code: "invalid-message"}}
		return
	}
	if _, err := s.ctrl.ApplyUpdate(ctx, c.playerID, body.ToUpdate()); err != nil {
		c.send <- errorMessage(err)
	}
}

func (s *Server) handleStartRace(ctx context.Context, c *client, env *Envelope) {
	body, err := decodeBody[StartRace](env)
	if err != nil {
		c.send <- &Message{Type: mtError, Body: &ErrorBody{Code: "invalid-message"}}
		return
	}
	req := &race.StartRequest{
		TrackHash: body.TrackUID,
		Countdown: body.Countdown.ToUpdate(),
		Started:   body.Started.ToUpdate(),
	}
	if body.VehicleUID != nil {
		id, err := uuid.FromString(*body.VehicleUID)
		if err != nil {
			c.send <- &Message{Type: mtError, Body: &ErrorBody{Code: "invalid-message"}}
			return
		}
		req.VehicleID = &id
	}
	started, err := s.ctrl.StartRace(ctx, c.playerID, req)
	if err != nil {
		c.send <- errorMessage(err)
		return
	}
	c.setRace(started.ID)
	c.send <- &Message{Type: mtRaceStarted, Body: &RaceStartedBody{
		RaceID:  started.ID.String(),
		Started: started.Started,
	}}
}

func (s *Server) handleLeaderboard(ctx context.Context, c *client, env *Envelope) {
	body, err := decodeBody[LeaderboardRequest](env)
	if err != nil {
		c.send <- &Message{Type: mtError, Body: &ErrorBody{Code: "invalid-message"}}
		return
	}
	entries, err := s.ctrl.Leaderboard(ctx, body.TrackUID, body.Page)
	if err != nil {
		c.send <- errorMessage(err)
		return
	}
	c.send <- &Message{Type: mtLeaderboard, Body: entries}
}

// eventPump forwards race events belonging to this client's race. Events
// for other races (other players, other instances) are skipped.
func (s *Server) eventPump(c *client, dataChan <-chan *proxy.Event) {
	for ev := range dataChan {
		id, ok := eventRaceID(ev)
		if !ok || !c.matches(id) {
			continue
		}
		select {
		case c.send <- &Message{Type: ev.Type, Body: ev.Payload}:
		default:
			s.log.Warn("slow consumer, event dropped",
				log.String("player", c.playerID), log.String("type", ev.Type))
		}
	}
}

func (s *Server) writeLoop(c *client) {
	failed := false
	for msg := range c.send {
		if failed {
			continue
		}
		if err := c.ws.WriteJSON(msg); err != nil {
			s.log.Warn("write failed",
				log.String("player", c.playerID), log.ErrorField(err))
			// closing unblocks the read loop, the channel is drained until
			// the connection teardown closes it
			c.ws.Close()
			failed = true
		}
	}
}

// eventRaceID extracts the race id from an event payload. Locally
// published events carry typed payloads, events bridged over NATS arrive
// as raw JSON.
func eventRaceID(ev *proxy.Event) (uuid.UUID, bool) {
	switch p := ev.Payload.(type) {
	case *model.RaceProgressEvent:
		return p.RaceID, true
	case *model.RaceFinishedEvent:
		return p.RaceID, true
	case *model.RaceDisqualifiedEvent:
		return p.RaceID, true
	case *model.RaceCancelledEvent:
		return p.RaceID, true
	case json.RawMessage:
		var probe struct {
			RaceID uuid.UUID `json:"raceId"`
		}
		if err := json.Unmarshal(p, &probe); err != nil || probe.RaceID.IsNil() {
			return uuid.Nil, false
		}
		return probe.RaceID, true
	default:
		return uuid.Nil, false
	}
}
