package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainNotification "github.com/AzielCF/az-postsync/domains/notification"
	domainPublisher "github.com/AzielCF/az-postsync/domains/publisher"
	domainReconcile "github.com/AzielCF/az-postsync/domains/reconcile"
	domainSchedule "github.com/AzielCF/az-postsync/domains/schedule"
	"github.com/AzielCF/az-postsync/pkg/timeutils"
	"github.com/AzielCF/az-postsync/validations"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	reasonNoDocument  = "schedule document not found"
	reasonRateLimited = "rate limited earlier in this run"
	reasonInterrupted = "run interrupted"
)

type ReconcileOptions struct {
	ServerID        string // recorded on every report
	MaxAttempts     int
	RetryDelays     []time.Duration
	CallSpacing     time.Duration // pause between slots, zero disables
	StaleAfter      time.Duration // zero publishes any backlog
	WriteRetries    int
	WriteRetryDelay time.Duration
	LockTTL         time.Duration
	NotifyTimeout   time.Duration
}

func (o ReconcileOptions) withDefaults() ReconcileOptions {
	// attemptCount never goes past the schedule-wide ceiling
	if o.MaxAttempts <= 0 || o.MaxAttempts > domainSchedule.MaxAttempts {
		o.MaxAttempts = domainSchedule.MaxAttempts
	}
	if len(o.RetryDelays) == 0 {
		o.RetryDelays = []time.Duration{2 * time.Second, 4 * time.Second}
	}
	if o.WriteRetries <= 0 {
		o.WriteRetries = 5
	}
	if o.WriteRetryDelay <= 0 {
		o.WriteRetryDelay = 500 * time.Millisecond
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 30 * time.Minute
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = 30 * time.Second
	}
	return o
}

// ReconcileDeps are the collaborators of a run. Lock, History and Notifier
// are optional.
type ReconcileDeps struct {
	Store     domainSchedule.IScheduleStore
	Publisher domainPublisher.IPublisher
	Notifier  domainNotification.INotifier
	Lock      domainReconcile.IRunLock
	History   domainReconcile.IRunHistory
	Clock     timeutils.Clock
}

type reconcileService struct {
	deps  ReconcileDeps
	opts  ReconcileOptions
	clock timeutils.Clock
	merge *mergeWriter
}

func NewReconcileService(deps ReconcileDeps, opts ReconcileOptions) domainReconcile.IReconcileUsecase {
	opts = opts.withDefaults()
	clock := deps.Clock
	if clock == nil {
		clock = timeutils.SystemClock()
	}
	return &reconcileService{
		deps:  deps,
		opts:  opts,
		clock: clock,
		merge: &mergeWriter{store: deps.Store, clock: clock, retries: opts.WriteRetries, delay: opts.WriteRetryDelay},
	}
}

// run carries the state of one reconciliation run.
type run struct {
	report  domainReconcile.RunReport
	log     *logrus.Entry
	owned   []string
	changes map[string]domainSchedule.SlotChange
}

func (r *run) track(slot domainSchedule.Slot) {
	if _, ok := r.changes[slot.ID]; !ok {
		r.owned = append(r.owned, slot.ID)
	}
	r.changes[slot.ID] = slot.Change()
}

func (r *run) finalChanges() []domainSchedule.SlotChange {
	out := make([]domainSchedule.SlotChange, 0, len(r.owned))
	for _, id := range r.owned {
		out = append(out, r.changes[id])
	}
	return out
}

func (s *reconcileService) Run(ctx context.Context, req domainReconcile.RunRequest) (domainReconcile.RunReport, error) {
	if req.Trigger == "" {
		req.Trigger = domainReconcile.TriggerPeriodic
	}
	if err := validations.ValidateRunRequest(ctx, req); err != nil {
		return domainReconcile.RunReport{}, err
	}

	r := &run{
		report: domainReconcile.RunReport{
			RunID:     uuid.NewString(),
			ServerID:  s.opts.ServerID,
			Trigger:   req.Trigger,
			Force:     req.Force,
			StartedAt: s.clock.Now(),
			Slots:     []domainReconcile.SlotOutcome{},
		},
		changes: make(map[string]domainSchedule.SlotChange),
	}
	r.log = logrus.WithFields(logrus.Fields{"run_id": r.report.RunID, "server_id": s.opts.ServerID, "trigger": req.Trigger})

	if s.deps.Lock != nil {
		release, err := s.deps.Lock.TryAcquire(ctx, s.opts.LockTTL)
		if errors.Is(err, domainReconcile.ErrRunInProgress) {
			r.report.SkippedReason = domainReconcile.SkipRunInProgress
			s.finish(ctx, r, false)
			return r.report, nil
		}
		if err != nil {
			r.report.Error = fmt.Sprintf("acquire run lock: %v", err)
			s.finish(ctx, r, true)
			return r.report, fmt.Errorf("acquire run lock: %w", err)
		}
		defer release()
	}

	snap, err := s.deps.Store.Fetch(ctx)
	if errors.Is(err, domainSchedule.ErrNotFound) {
		r.report.SkippedReason = reasonNoDocument
		s.finish(ctx, r, true)
		return r.report, nil
	}
	if err != nil {
		r.report.Error = fmt.Sprintf("fetch schedule: %v", err)
		s.finish(ctx, r, true)
		return r.report, fmt.Errorf("fetch schedule: %w", err)
	}

	now := s.clock.Now()
	due := SelectDue(snap.Doc, now, req.Force, req.SlotIDs)
	r.report.DuePicked = len(due)
	r.report.OldestDueAt = oldestScheduledAt(due)
	r.log.Debugf("[RECONCILE] %d slot(s) due at %s", len(due), now.Format(time.RFC3339))

	var stale []domainSchedule.Slot
	if !req.Force {
		due, stale = splitStale(due, now, s.opts.StaleAfter)
	}
	for _, slot := range stale {
		s.failStale(ctx, r, slot, now)
	}

	if reason := snap.Doc.AccountConnection.Usable(now); reason != "" && len(due) > 0 {
		r.report.SkippedReason = reason
		r.log.Warnf("[RECONCILE] skipping %d due slot(s): %s", len(due), reason)
	} else {
		s.processAll(ctx, r, snap.Doc, due)
	}

	persistCtx := context.WithoutCancel(ctx)
	if _, err := s.merge.apply(persistCtx, r.finalChanges()); err != nil {
		if errors.Is(err, domainSchedule.ErrNotFound) {
			r.log.Warn("[RECONCILE] schedule document disappeared before the final write")
		} else {
			r.report.Error = fmt.Sprintf("final merge-write: %v", err)
			s.finish(ctx, r, true)
			return r.report, fmt.Errorf("final merge-write: %w", err)
		}
	}

	s.finish(ctx, r, true)
	return r.report, nil
}

func (s *reconcileService) processAll(ctx context.Context, r *run, doc domainSchedule.Document, due []domainSchedule.Slot) {
	for i, slot := range due {
		if i > 0 && s.opts.CallSpacing > 0 {
			if err := s.clock.Sleep(ctx, s.opts.CallSpacing); err != nil {
				s.deferRest(r, due[i:], reasonInterrupted)
				return
			}
		}
		if ctx.Err() != nil {
			s.deferRest(r, due[i:], reasonInterrupted)
			return
		}

		// a claimed slot always runs to a settled state; shutdown only stops
		// the run between slots
		outcome, stop := s.processSlot(context.WithoutCancel(ctx), r, doc, slot)
		r.report.Slots = append(r.report.Slots, outcome)
		if stop {
			s.deferRest(r, due[i+1:], reasonRateLimited)
			return
		}
	}
}

func (s *reconcileService) deferRest(r *run, rest []domainSchedule.Slot, reason string) {
	for _, slot := range rest {
		r.report.Deferred++
		r.report.Slots = append(r.report.Slots, domainReconcile.SlotOutcome{
			SlotID:   slot.ID,
			DraftID:  slot.DraftID,
			Status:   slot.Status,
			Attempts: slot.AttemptCount,
			Deferred: true,
			Skipped:  reason,
		})
	}
}

// processSlot claims one slot and drives it to a settled state. stop is true
// when the platform rate limited us and the rest of the run should wait.
func (s *reconcileService) processSlot(ctx context.Context, r *run, doc domainSchedule.Document, slot domainSchedule.Slot) (domainReconcile.SlotOutcome, bool) {
	log := r.log.WithFields(logrus.Fields{"slot_id": slot.ID, "draft_id": slot.DraftID})
	outcome := domainReconcile.SlotOutcome{SlotID: slot.ID, DraftID: slot.DraftID}

	if err := slot.Transition(domainSchedule.StatusInProgress); err != nil {
		outcome.Status, outcome.Skipped = slot.Status, err.Error()
		return outcome, false
	}
	// An operator reset of a failed slot gets a fresh attempt budget.
	if slot.AttemptCount >= s.opts.MaxAttempts {
		slot.AttemptCount = 0
	}
	slot.LastError = ""

	claim := slot.Change()
	claim.ExpectStatus = domainSchedule.StatusPending
	res, err := s.merge.apply(ctx, []domainSchedule.SlotChange{claim})
	switch {
	case err != nil:
		log.WithError(err).Error("[RECONCILE] could not claim slot")
		outcome.Status, outcome.Deferred, outcome.Error = domainSchedule.StatusPending, true, fmt.Sprintf("claim: %v", err)
		r.report.Deferred++
		return outcome, false
	case len(res.Rejected) > 0:
		log.Info("[RECONCILE] slot already claimed by another run")
		outcome.Status, outcome.Skipped = domainSchedule.StatusInProgress, "claimed by another run"
		return outcome, false
	case len(res.Missing) > 0:
		log.Info("[RECONCILE] slot removed from the document")
		outcome.Status, outcome.Skipped = domainSchedule.StatusPending, "slot no longer exists"
		return outcome, false
	}
	r.track(slot)

	draft, ok := doc.Draft(slot.DraftID)
	if !ok {
		return s.settle(ctx, r, log, slot, domainSchedule.StatusFailed, fmt.Sprintf("draft %q not found", slot.DraftID), nil), false
	}
	if err := validations.ValidatePublishable(ctx, draft); err != nil {
		return s.settle(ctx, r, log, slot, domainSchedule.StatusFailed, fmt.Sprintf("invalid draft: %v", err), nil), false
	}
	post := buildPost(doc.AccountConnection, draft)

	for {
		slot.AttemptCount++
		result, err := s.deps.Publisher.PublishPost(ctx, post)
		if err == nil {
			publishedAt := result.PublishedAt
			if publishedAt.IsZero() {
				publishedAt = s.clock.Now()
			}
			if result.Verified {
				log.Warn("[RECONCILE] publish call failed but the post was found on the account")
			}
			pr := &domainSchedule.PublishResult{RemoteID: result.RemoteID, Permalink: result.Permalink, PublishedAt: publishedAt.UTC()}
			return s.settle(ctx, r, log, slot, domainSchedule.StatusPublished, "", pr), false
		}

		switch {
		case domainPublisher.IsRateLimited(err):
			slot.AttemptCount--
			out := s.settle(ctx, r, log, slot, domainSchedule.StatusPending, fmt.Sprintf("rate limited: %v", err), nil)
			out.Deferred = true
			return out, true
		case domainPublisher.IsPermanent(err):
			return s.settle(ctx, r, log, slot, domainSchedule.StatusFailed, err.Error(), nil), false
		case slot.AttemptCount >= s.opts.MaxAttempts:
			return s.settle(ctx, r, log, slot, domainSchedule.StatusFailed, fmt.Sprintf("gave up after %d attempts: %v", slot.AttemptCount, err), nil), false
		}

		delay := s.retryDelay(slot.AttemptCount)
		log.WithError(err).Warnf("[RECONCILE] attempt %d/%d failed, retrying in %s", slot.AttemptCount, s.opts.MaxAttempts, delay)
		if sleepErr := s.clock.Sleep(ctx, delay); sleepErr != nil {
			return s.settle(ctx, r, log, slot, domainSchedule.StatusFailed, fmt.Sprintf("%s after attempt %d: %v", reasonInterrupted, slot.AttemptCount, err), nil), false
		}
	}
}

func (s *reconcileService) retryDelay(attempt int) time.Duration {
	i := attempt - 1
	if i >= len(s.opts.RetryDelays) {
		i = len(s.opts.RetryDelays) - 1
	}
	return s.opts.RetryDelays[i]
}

// settle moves a claimed slot to its outcome and persists it at once, before
// any other slot is touched.
func (s *reconcileService) settle(ctx context.Context, r *run, log *logrus.Entry, slot domainSchedule.Slot, next domainSchedule.SlotStatus, lastError string, pr *domainSchedule.PublishResult) domainReconcile.SlotOutcome {
	if err := slot.Transition(next); err != nil {
		log.WithError(err).Error("[RECONCILE] refusing transition")
	}
	slot.LastError = lastError
	slot.PublishResult = pr
	r.track(slot)

	if _, err := s.merge.apply(context.WithoutCancel(ctx), []domainSchedule.SlotChange{slot.Change()}); err != nil {
		log.WithError(err).Error("[RECONCILE] could not persist slot outcome, final write will retry")
	}

	outcome := domainReconcile.SlotOutcome{
		SlotID:   slot.ID,
		DraftID:  slot.DraftID,
		Status:   slot.Status,
		Attempts: slot.AttemptCount,
		Error:    lastError,
	}
	if pr != nil {
		outcome.RemoteID, outcome.Permalink = pr.RemoteID, pr.Permalink
	}

	switch slot.Status {
	case domainSchedule.StatusPublished:
		r.report.Published++
		log.Infof("[RECONCILE] published as %s", pr.RemoteID)
	case domainSchedule.StatusFailed:
		r.report.Failed++
		log.Errorf("[RECONCILE] slot failed: %s", lastError)
	case domainSchedule.StatusPending:
		r.report.Deferred++
		log.Warnf("[RECONCILE] slot released for the next run: %s", lastError)
	}
	return outcome
}

func (s *reconcileService) failStale(ctx context.Context, r *run, slot domainSchedule.Slot, now time.Time) {
	log := r.log.WithFields(logrus.Fields{"slot_id": slot.ID, "draft_id": slot.DraftID})
	if err := slot.Transition(domainSchedule.StatusFailed); err != nil {
		log.WithError(err).Error("[RECONCILE] refusing transition")
		return
	}
	slot.LastError = fmt.Sprintf("stale: scheduled %s, past the %s window", humanize.RelTime(slot.ScheduledAt, now, "ago", "from now"), s.opts.StaleAfter)

	change := slot.Change()
	change.ExpectStatus = domainSchedule.StatusPending
	res, err := s.merge.apply(ctx, []domainSchedule.SlotChange{change})
	if err != nil || len(res.Rejected) > 0 || len(res.Missing) > 0 {
		if err != nil {
			log.WithError(err).Warn("[RECONCILE] could not mark stale slot")
		}
		return
	}
	r.track(slot)
	r.report.Failed++
	r.report.Slots = append(r.report.Slots, domainReconcile.SlotOutcome{
		SlotID:   slot.ID,
		DraftID:  slot.DraftID,
		Status:   slot.Status,
		Attempts: slot.AttemptCount,
		Error:    slot.LastError,
	})
	log.Warnf("[RECONCILE] %s", slot.LastError)
}

// finish stamps the report, records it, logs the outcome line and, when
// notify is set, sends the run summary. Notification errors are only logged.
func (s *reconcileService) finish(ctx context.Context, r *run, notify bool) {
	r.report.FinishedAt = s.clock.Now()
	bg := context.WithoutCancel(ctx)

	if s.deps.History != nil {
		if err := s.deps.History.Record(bg, r.report); err != nil {
			r.log.WithError(err).Warn("[RECONCILE] could not record run report")
		}
	}

	entry := r.log.WithFields(logrus.Fields{
		"due_picked":     r.report.DuePicked,
		"published":      r.report.Published,
		"failed":         r.report.Failed,
		"deferred":       r.report.Deferred,
		"skipped_reason": r.report.SkippedReason,
		"duration":       r.report.FinishedAt.Sub(r.report.StartedAt).String(),
	})
	if r.report.Error != "" {
		entry.WithField("error", r.report.Error).Error("[RECONCILE] run aborted")
	} else {
		entry.Info("[RECONCILE] run finished")
	}

	if !notify || s.deps.Notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(bg, s.opts.NotifyTimeout)
	defer cancel()
	if err := s.deps.Notifier.Notify(nctx, r.report.Summary()); err != nil {
		r.log.WithError(err).Warn("[NOTIFY] run summary not delivered")
	}
}

func (s *reconcileService) DueSlots(ctx context.Context, force bool) ([]domainSchedule.Slot, error) {
	snap, err := s.deps.Store.Fetch(ctx)
	if errors.Is(err, domainSchedule.ErrNotFound) {
		return []domainSchedule.Slot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch schedule: %w", err)
	}
	return SelectDue(snap.Doc, s.clock.Now(), force, nil), nil
}

func (s *reconcileService) History(ctx context.Context, limit int) ([]domainReconcile.RunReport, error) {
	if s.deps.History == nil {
		return []domainReconcile.RunReport{}, nil
	}
	return s.deps.History.Recent(ctx, limit)
}
