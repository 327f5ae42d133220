package model

import "github.com/gofrs/uuid/v5"

// Vehicle is a player-owned vehicle profile used to attribute races.
type Vehicle struct {
	ID       uuid.UUID
	PlayerID string
	Title    string
}

// LeaderboardEntry is one finished race on a track's leaderboard.
type LeaderboardEntry struct {
	RaceID       uuid.UUID
	PlayerID     string
	VehicleID    uuid.UUID
	Stopwatch    int64 // milliseconds
	AverageSpeed float64
	FinishedAt   int64
}
