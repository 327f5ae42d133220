package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/gridrace/race-service-go/pkg/model"
	"github.com/gridrace/race-service-go/pkg/world"
)

// inbound message types
const (
	mtPlayerUpdate = "player_update"
	mtStartRace    = "start_race"
	mtCancelRace   = "cancel_race"
	mtLeaderboard  = "leaderboard"
)

// outbound message types (in addition to the race event subjects)
const (
	mtRaceStarted = "race.started"
	mtError       = "error"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Message is the outbound envelope.
type Message struct {
	Type string `json:"type"`
	Body any    `json:"body,omitempty"`
}

// Envelope is the inbound message frame. The body is decoded in a second
// step once the type is known.
type Envelope struct {
	Type string          `json:"type" validate:"required"`
	Body json.RawMessage `json:"body"`
}

// PlayerUpdate is a raw position report. Coordinates travel as decimals so
// the client's precision survives the wire unchanged.
type PlayerUpdate struct {
	Latitude  decimal.Decimal `json:"latitude"`
	Longitude decimal.Decimal `json:"longitude"`
	Bearing   decimal.Decimal `json:"bearing"`
	Speed     decimal.Decimal `json:"speed"`
	LoggedAt  int64           `json:"loggedAt" validate:"required,gt=0"`
}

// ToUpdate converts the wire representation into a world update.
func (p *PlayerUpdate) ToUpdate() *world.Update {
	return &world.Update{
		Longitude: p.Longitude.InexactFloat64(),
		Latitude:  p.Latitude.InexactFloat64(),
		Bearing:   p.Bearing.InexactFloat64(),
		Speed:     p.Speed.InexactFloat64(),
		LoggedAt:  p.LoggedAt,
	}
}

// StartRace asks to begin a race. Countdown is the position where the
// countdown began, Started the position at the moment the race went live.
type StartRace struct {
	TrackUID   string        `json:"trackUid" validate:"required"`
	VehicleUID *string       `json:"vehicleUid,omitempty" validate:"omitempty,uuid"`
	Countdown  *PlayerUpdate `json:"countdownPosition" validate:"required"`
	Started    *PlayerUpdate `json:"startedPosition" validate:"required"`
}

// LeaderboardRequest asks for one page of a track's leaderboard.
type LeaderboardRequest struct {
	TrackUID string `json:"trackUid" validate:"required"`
	Page     int    `json:"page" validate:"gte=0"`
}

// RaceStartedBody acknowledges a successful race start.
type RaceStartedBody struct {
	RaceID  string `json:"raceId"`
	Started int64  `json:"started"`
}

// ErrorBody carries a stable reason code back to the client.
type ErrorBody struct {
	Code  string         `json:"code"`
	Extra map[string]any `json:"extra,omitempty"`
}

func errorMessage(err error) *Message {
	body := &ErrorBody{Code: "internal"}
	var reason *model.ReasonError
	if errors.As(err, &reason) {
		body.Code = reason.Code
		body.Extra = reason.Extra
	}
	return &Message{Type: mtError, Body: body}
}

// DecodeEnvelope parses and validates an inbound frame.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid message frame: %w", err)
	}
	if err := validate.Struct(&env); err != nil {
		return nil, fmt.Errorf("invalid message frame: %w", err)
	}
	return &env, nil
}

// decodeBody unmarshals an envelope body into the typed message and
// validates it.
func decodeBody[T any](env *Envelope) (*T, error) {
	var body T
	if err := json.Unmarshal(env.Body, &body); err != nil {
		return nil, fmt.Errorf("invalid %s body: %w", env.Type, err)
	}
	if err := validate.Struct(&body); err != nil {
		return nil, fmt.Errorf("invalid %s body: %w", env.Type, err)
	}
	return &body, nil
}
