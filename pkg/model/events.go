package model

import (
	"fmt"

	"github.com/gofrs/uuid/v5"
)

// Stable reason codes sent to clients. These are part of the wire contract;
// never rename them.
const (
	ReasonMissedTrack          = "missed-track"
	ReasonPositionNotSupported = "position-not-supported"
	ReasonNoVehicle            = "no-vehicle"
	ReasonNoTrack              = "no-track"
	ReasonTrackNotRaceable     = "track-not-raceable"
	ReasonDisconnected         = "disconnected"

	// cancellation reasons
	CancelSuperseded = "superseded" // a new race start displaced the ongoing one
	CancelRequested  = "requested"  // the player asked to stop
)

// ReasonError is a rejection carrying a stable client-facing reason code.
// Anything that is not a ReasonError is an internal fault and must not leak
// its message to clients.
type ReasonError struct {
	Code  string
	Extra map[string]any
}

func (e *ReasonError) Error() string {
	return fmt.Sprintf("rejected: %s", e.Code)
}

func NewReasonError(code string) *ReasonError {
	return &ReasonError{Code: code}
}

// RaceProgressEvent is published after every accepted sample of an ongoing
// race.
type RaceProgressEvent struct {
	RaceID          uuid.UUID `json:"raceId"`
	PercentComplete int       `json:"percentComplete"`
	PercentMissed   int       `json:"percentMissed"`
	AverageSpeed    float64   `json:"averageSpeed"`
	Stopwatch       int64     `json:"stopwatch"`
}

// RaceFinishedEvent is published once when a race completes the track.
type RaceFinishedEvent struct {
	RaceID       uuid.UUID `json:"raceId"`
	FinishedAt   int64     `json:"finishedAt"`
	Stopwatch    int64     `json:"stopwatch"`
	AverageSpeed float64   `json:"averageSpeed"`
}

// RaceDisqualifiedEvent is published once when a race is disqualified.
type RaceDisqualifiedEvent struct {
	RaceID    uuid.UUID      `json:"raceId"`
	Reason    string         `json:"reason"`
	ExtraInfo map[string]any `json:"extraInfo,omitempty"`
}

// RaceCancelledEvent is published once when a race is cancelled.
type RaceCancelledEvent struct {
	RaceID uuid.UUID `json:"raceId"`
	Reason string    `json:"reason"`
}
