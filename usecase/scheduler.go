package usecase

import (
	"context"
	"sync"
	"time"

	domainReconcile "github.com/AzielCF/az-postsync/domains/reconcile"
	"github.com/sirupsen/logrus"
)

// TaskScheduler fires a periodic reconciliation run on a fixed interval.
// Overlap with manual runs is left to the run lock.
type TaskScheduler struct {
	reconcile domainReconcile.IReconcileUsecase
	interval  time.Duration
	runNow    bool

	wg   sync.WaitGroup
	stop context.CancelFunc
}

// NewTaskScheduler creates a scheduler. When runOnStart is set the first run
// happens immediately instead of after one interval.
func NewTaskScheduler(reconcile domainReconcile.IReconcileUsecase, interval time.Duration, runOnStart bool) *TaskScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &TaskScheduler{reconcile: reconcile, interval: interval, runNow: runOnStart}
}

// StartLoop starts the background worker. It returns immediately.
func (s *TaskScheduler) StartLoop(ctx context.Context) {
	ctx, s.stop = context.WithCancel(ctx)
	logrus.Infof("[SCHEDULER] Periodic reconciliation every %s", s.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runWorker(ctx)
	}()
}

// Stop cancels the loop and waits for an in-flight run to return.
func (s *TaskScheduler) Stop() {
	if s.stop != nil {
		s.stop()
	}
	s.wg.Wait()
}

func (s *TaskScheduler) runWorker(ctx context.Context) {
	if s.runNow {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("[SCHEDULER] Worker stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *TaskScheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[SCHEDULER] Run panicked: %v", r)
		}
	}()

	report, err := s.reconcile.Run(ctx, domainReconcile.RunRequest{Trigger: domainReconcile.TriggerPeriodic})
	if err != nil {
		logrus.WithError(err).Error("[SCHEDULER] Periodic run failed")
		return
	}
	if report.SkippedReason != "" {
		logrus.Debugf("[SCHEDULER] Periodic run skipped: %s", report.SkippedReason)
	}
}
