package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-postsync/domains/notification"
	"github.com/AzielCF/az-postsync/domains/schedule"
)

var ErrRunInProgress = errors.New("reconciliation run already in progress")

// SkipRunInProgress is the skipped reason of a run that found the lock held.
const SkipRunInProgress = "run already in progress"

const (
	TriggerPeriodic = "periodic"
	TriggerManual   = "manual"
)

type RunRequest struct {
	Trigger string   `json:"trigger"`
	Force   bool     `json:"force"`
	SlotIDs []string `json:"slot_ids,omitempty"`
}

type SlotOutcome struct {
	SlotID    string              `json:"slot_id"`
	DraftID   string              `json:"draft_id"`
	Status    schedule.SlotStatus `json:"status"`
	Attempts  int                 `json:"attempts"`
	RemoteID  string              `json:"remote_id,omitempty"`
	Permalink string              `json:"permalink,omitempty"`
	Error     string              `json:"error,omitempty"`
	Deferred  bool                `json:"deferred,omitempty"`
	Skipped   string              `json:"skipped,omitempty"`
}

// RunReport is what every run returns and records.
type RunReport struct {
	RunID         string        `json:"run_id"`
	ServerID      string        `json:"server_id,omitempty"`
	Trigger       string        `json:"trigger"`
	Force         bool          `json:"force"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	DuePicked     int           `json:"due_picked"`
	Published     int           `json:"published"`
	Failed        int           `json:"failed"`
	Deferred      int           `json:"deferred"`
	SkippedReason string        `json:"skipped_reason,omitempty"`
	OldestDueAt   *time.Time    `json:"oldest_due_at,omitempty"`
	Error         string        `json:"error,omitempty"`
	Slots         []SlotOutcome `json:"slots"`
}

// Summary converts the report into the notification payload.
func (r RunReport) Summary() notification.Summary {
	s := notification.Summary{
		RunID:          r.RunID,
		ServerID:       r.ServerID,
		Trigger:        r.Trigger,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		DuePicked:      r.DuePicked,
		PublishedCount: r.Published,
		FailedCount:    r.Failed,
		DeferredCount:  r.Deferred,
		SkippedReason:  r.SkippedReason,
		OldestDueAt:    r.OldestDueAt,
		Errors:         []notification.SlotError{},
	}
	for _, o := range r.Slots {
		if o.Error == "" {
			continue
		}
		s.Errors = append(s.Errors, notification.SlotError{
			SlotID:   o.SlotID,
			DraftID:  o.DraftID,
			Message:  o.Error,
			Attempts: o.Attempts,
		})
	}
	if r.Error != "" {
		s.Errors = append(s.Errors, notification.SlotError{Message: r.Error})
	}
	return s
}

// IRunLock guards against overlapping runs. TryAcquire returns a release
// func when the lock was taken, or ErrRunInProgress.
type IRunLock interface {
	TryAcquire(ctx context.Context, ttl time.Duration) (func(), error)
}

// IRunHistory keeps the most recent run reports for the REST surface.
type IRunHistory interface {
	Record(ctx context.Context, report RunReport) error
	Recent(ctx context.Context, limit int) ([]RunReport, error)
}

type IReconcileUsecase interface {
	Run(ctx context.Context, req RunRequest) (RunReport, error)
	DueSlots(ctx context.Context, force bool) ([]schedule.Slot, error)
	History(ctx context.Context, limit int) ([]RunReport, error)
}
