package replay

import (
	"time"

	"webreplay/internal/recording"
)

// RunStatus is the overall outcome of a replay run.
type RunStatus string

const (
	StatusSuccess   RunStatus = "success"
	StatusPartial   RunStatus = "partial"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// ErrorRecord describes one action failure inside a run.
type ErrorRecord struct {
	ActionID   string    `json:"actionId"`
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	Screenshot string    `json:"screenshot,omitempty"`
}

// SkipRecord describes one action that was deliberately not executed.
type SkipRecord struct {
	ActionID string               `json:"actionId"`
	Kind     recording.ActionKind `json:"kind"`
	Reason   string               `json:"reason"`
}

// RunResult is the sole output of a replay run. No errors cross the run
// boundary except through this record.
type RunResult struct {
	RunID           string              `json:"runId"`
	Recording       string              `json:"recording"`
	Status          RunStatus           `json:"status"`
	TotalActions    int                 `json:"totalActions"`
	ExecutedActions int                 `json:"executedActions"`
	FailedActions   int                 `json:"failedActions"`
	Errors          []ErrorRecord       `json:"errors,omitempty"`
	Skipped         []SkipRecord        `json:"skipped,omitempty"`
	Screenshots     []string            `json:"screenshots,omitempty"`
	VideoPath       string              `json:"videoPath,omitempty"`
	Duration        time.Duration       `json:"duration"`
	Warnings        []recording.Warning `json:"warnings,omitempty"`
}
