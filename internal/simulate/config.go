// Package simulate drives synthetic multi-day activity against a running
// service instance: generated users submit action events day by day, the
// daily sweep runs between days, and final snapshots are fetched for
// verification.
package simulate

import "time"

// Config controls a simulation run.
type Config struct {
	BaseURL   string        // service base URL, e.g. http://localhost:9080
	Users     int           // number of synthetic users
	Days      int           // simulated calendar days
	MaxPerDay int           // max events per user per day
	Workers   int           // concurrent submitters
	Timeout   time.Duration // per-request timeout
	RunSweeps bool          // trigger POST /sweep between days
	Verbose   bool
}

// Stats accumulates run counters.
type Stats struct {
	EventsGenerated  int
	EventsSubmitted  int
	EventsSuccessful int
	EventsDuplicate  int
	EventsFailed     int
	SweepsRun        int
	SnapshotsFetched int
	StartTime        time.Time
	EndTime          time.Time
}
