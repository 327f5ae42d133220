package model

import (
	"github.com/gofrs/uuid/v5"

	"github.com/gridrace/race-service-go/pkg/geo"
)

// Location is one accepted player position sample. It carries both the
// geodetic reading from the device and the projected planar position used
// by the verification engine.
type Location struct {
	PlayerID  string
	Longitude float64
	Latitude  float64
	Planar    geo.XY
	Bearing   float64 // degrees clockwise from north
	Speed     float64 // meters per second, negative when the device has no fix
	LoggedAt  int64   // unix milliseconds, device clock
	// RaceID is set when this sample was recorded during an ongoing race.
	// Samples referenced by a race survive history trimming.
	RaceID *uuid.UUID
}
