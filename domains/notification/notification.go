package notification

import (
	"context"
	"time"
)

type SlotError struct {
	SlotID   string `json:"slot_id"`
	DraftID  string `json:"draft_id"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts"`
}

// Summary is the single message sent at the end of every reconciliation run.
type Summary struct {
	RunID          string      `json:"run_id"`
	ServerID       string      `json:"server_id,omitempty"`
	Trigger        string      `json:"trigger"`
	StartedAt      time.Time   `json:"started_at"`
	FinishedAt     time.Time   `json:"finished_at"`
	DuePicked      int         `json:"due_picked"`
	PublishedCount int         `json:"published_count"`
	FailedCount    int         `json:"failed_count"`
	DeferredCount  int         `json:"deferred_count"`
	SkippedReason  string      `json:"skipped_reason,omitempty"`
	OldestDueAt    *time.Time  `json:"oldest_due_at,omitempty"`
	Errors         []SlotError `json:"errors"`
}

type INotifier interface {
	Notify(ctx context.Context, summary Summary) error
}
