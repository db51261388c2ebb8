package events

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type Type string

const (
	JobCompleted Type = "job.completed"
	JobFailed    Type = "job.failed"
)

// Event describes a job reaching a terminal state.
type Event struct {
	Type       Type      `json:"type"`
	SessionID  string    `json:"session_id"`
	JobID      string    `json:"job_id"`
	Tool       string    `json:"tool"`
	Descriptor string    `json:"descriptor,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher delivers job events downstream. Publish failures are reported to
// the caller, which logs them; they never change a job's outcome.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// LogPublisher writes events to the global zerolog logger.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, e Event) error {
	log.Info().
		Str("event", string(e.Type)).
		Str("session_id", e.SessionID).
		Str("job_id", e.JobID).
		Str("tool", e.Tool).
		Str("outcome", e.Outcome).
		Int("attempts", e.Attempts).
		Str("error", e.Error).
		Msg("job event")
	return nil
}

func (LogPublisher) Close() error { return nil }
