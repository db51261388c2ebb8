package job

import (
	"time"

	"pixora/internal/effect"
	"pixora/internal/poller"
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Job is one attempt to produce and confirm a new composite descriptor.
type Job struct {
	ID         string         `json:"id"`
	ToolID     string         `json:"tool_id"`
	Status     Status         `json:"status"`
	Progress   int            `json:"progress"`
	Descriptor string         `json:"descriptor,omitempty"`
	Result     string         `json:"result,omitempty"`
	Outcome    poller.Outcome `json:"outcome,omitempty"`
	Attempts   int            `json:"attempts,omitempty"`
	Error      string         `json:"error,omitempty"`
	Epoch      uint64         `json:"epoch"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Snapshot is a consistent copy of an orchestrator's state.
type Snapshot struct {
	BaseRef   string           `json:"base_ref,omitempty"`
	Displayed string           `json:"displayed,omitempty"`
	Result    string           `json:"result,omitempty"`
	Effects   []effect.Applied `json:"effects"`
	Pending   string           `json:"pending_tool,omitempty"`
	State     Status           `json:"state"`
	Job       *Job             `json:"job,omitempty"`
	History   []Job            `json:"history"`
	Epoch     uint64           `json:"epoch"`
}

// ToggleResult tells the caller what a toggle did.
type ToggleResult string

const (
	Removed           ToggleResult = "removed"
	AwaitingParameter ToggleResult = "awaiting_parameter"
	Started           ToggleResult = "started"
)

const defaultHistorySize = 3
