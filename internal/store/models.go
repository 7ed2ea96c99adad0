package store

import "time"

// SyncRun is one drive synchronisation, as recorded in fusb.sync_runs.
type SyncRun struct {
	RunID      string
	Host       string
	Drive      string
	Source     string
	Target     string
	Status     string
	Copied     int
	Deleted    int
	Bytes      int64
	StartedAt  time.Time
	FinishedAt *time.Time
	ResultJSON []byte
}

const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)
