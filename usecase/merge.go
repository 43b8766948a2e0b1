package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainSchedule "github.com/AzielCF/az-postsync/domains/schedule"
	"github.com/AzielCF/az-postsync/pkg/timeutils"
	"github.com/sirupsen/logrus"
)

// mergeWriter persists slot changes with fetch, patch, conditional write.
// A conflict means someone wrote in between, so it re-fetches right away;
// any other store error backs off before the next try.
type mergeWriter struct {
	store   domainSchedule.IScheduleStore
	clock   timeutils.Clock
	retries int
	delay   time.Duration
}

func (m *mergeWriter) apply(ctx context.Context, changes []domainSchedule.SlotChange) (domainSchedule.PatchResult, error) {
	var lastErr error
	for attempt := 1; attempt <= m.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return domainSchedule.PatchResult{}, err
		}

		snap, err := m.store.Fetch(ctx)
		if errors.Is(err, domainSchedule.ErrNotFound) {
			return domainSchedule.PatchResult{}, err
		}
		if err == nil {
			var res domainSchedule.PatchResult
			res, err = domainSchedule.ApplyChanges(snap.Raw, changes, m.clock.Now())
			if err != nil {
				return domainSchedule.PatchResult{}, err
			}
			if _, err = m.store.Write(ctx, res.Raw, snap.Revision); err == nil {
				return res, nil
			}
		}

		lastErr = err
		if errors.Is(err, domainSchedule.ErrConflict) {
			logrus.Debugf("[STORE] merge-write conflict on attempt %d, re-fetching", attempt)
			continue
		}
		logrus.WithError(err).Warnf("[STORE] merge-write attempt %d/%d failed", attempt, m.retries)
		if attempt < m.retries {
			if err := m.clock.Sleep(ctx, timeutils.Backoff(m.delay, 10*m.delay, attempt)); err != nil {
				return domainSchedule.PatchResult{}, err
			}
		}
	}
	return domainSchedule.PatchResult{}, fmt.Errorf("merge-write gave up after %d attempts: %w", m.retries, lastErr)
}
