package config

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	DB                  string // connection string for the database
	NatsURL             string // URL of the NATS server (empty: in-process fan-out only)
	WebsocketAddr       string // listen addr for the player websocket endpoint
	WaitForServices     string // duration to wait for other services to be ready
	LogLevel            string // sets the log level (zap log level values)
	SQLLogLevel         string // sets the log level for sql subsystem
	LogFormat           string // text vs json
	MigrationSourceURL  string // location of migration files
	ProfilingPort       int    // port for profiling
	CRS                 int    // EPSG code of the local planar CRS
	ProgressBuffer      int    // meters by which a player's progress line is buffered
	MaxPercentMissed    int    // percent of missed track that disqualifies a race
	MaxDeviation        int    // meters of sustained deviation that disqualifies (configured, unenforced)
	HistoryRetain       int    // number of location updates retained per player
	LeaderboardPageSize int    // entries per leaderboard page
)

// Config holds the processed configuration values used by the application.
type Config struct {
	CRS                 int
	ProgressBufferM     float64
	MaxPercentMissed    int
	MaxDeviationM       float64
	HistoryRetain       int
	LeaderboardPageSize int
}

// FromResolved builds a Config from the package level CLI values.
func FromResolved() *Config {
	return &Config{
		CRS:                 CRS,
		ProgressBufferM:     float64(ProgressBuffer),
		MaxPercentMissed:    MaxPercentMissed,
		MaxDeviationM:       float64(MaxDeviation),
		HistoryRetain:       HistoryRetain,
		LeaderboardPageSize: LeaderboardPageSize,
	}
}
