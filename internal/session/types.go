package session

import (
	"time"

	"pixora/internal/events"
	"pixora/internal/job"
	"pixora/internal/telemetry"
	"pixora/internal/usage"
)

// State is the persisted form of a session.
type State struct {
	ID        string       `json:"id"`
	Account   string       `json:"account"`
	CreatedAt time.Time    `json:"created_at"`
	Editor    job.Snapshot `json:"editor"`
}

type Options struct {
	DataDir     string
	HistorySize int
	Gate        usage.Gate
	Publisher   events.Publisher
	Metrics     *telemetry.Metrics
}

const defaultAccount = "anonymous"
