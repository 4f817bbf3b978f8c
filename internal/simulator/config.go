package simulator

import "time"

// Config holds configuration for the timing load test
type Config struct {
	BaseURL       string        // Base URL of the service
	SessionID     string        // Session to join and feed
	NumDevices    int           // Number of simulated devices
	LapsPerDevice int           // Laps generated per device
	Sectors       int           // Sectors per lap
	DeletePercent int           // Percentage of events retracted afterwards
	Workers       int           // Number of concurrent workers
	Timeout       time.Duration // HTTP request timeout
	OutputFile    string        // Output file for events
	LogFile       string        // Log file for test output
	Verbose       bool          // Enable verbose logging
}

// Event mirrors the wire shape accepted by POST /sessions/{id}/events.
type Event struct {
	EventID   string `json:"event_id"`
	DeviceID  string `json:"device_id,omitempty"`
	Type      string `json:"type,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms,omitempty"`
	TS        string `json:"ts,omitempty"`
	Lap       int    `json:"lap,omitempty"`
	Sector    int    `json:"sector,omitempty"`
	DeletedAt string `json:"deleted_at,omitempty"`
}

// Standing mirrors one leaderboard row.
type Standing struct {
	Position  int    `json:"position"`
	DeviceID  string `json:"device_id"`
	Laps      int    `json:"laps"`
	BestLapMS int64  `json:"best_lap_ms"`
	GapMS     int64  `json:"gap_ms"`
}

// Leaderboard mirrors the read shape of GET /sessions/{id}/leaderboard.
type Leaderboard struct {
	SessionID string     `json:"session_id"`
	Standings []Standing `json:"standings"`
}

// BestResponse mirrors the read shape of the best-record queries.
type BestResponse struct {
	Set       bool  `json:"set"`
	ElapsedMS int64 `json:"elapsed_ms"`
	Sector    int   `json:"sector"`
}

// AckResponse represents the response from event submission
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds test statistics
type Stats struct {
	EventsGenerated  int
	EventsSubmitted  int
	EventsSuccessful int
	EventsDuplicate  int
	EventsFailed     int
	DeletionsSent    int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
