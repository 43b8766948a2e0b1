package notify

import (
	"context"
	"fmt"
	"strings"

	domainNotification "github.com/AzielCF/az-postsync/domains/notification"
	pkgError "github.com/AzielCF/az-postsync/pkg/error"
	"github.com/sirupsen/logrus"
)

// LogNotifier writes the summary to the log. It never fails.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, s domainNotification.Summary) error {
	entry := logrus.WithFields(logrus.Fields{
		"run_id":    s.RunID,
		"published": s.PublishedCount,
		"failed":    s.FailedCount,
		"deferred":  s.DeferredCount,
	})
	if len(s.Errors) > 0 {
		entry.Warnf("[NOTIFY] %s\n%s", Subject(s), FormatSummary(s))
		return nil
	}
	entry.Infof("[NOTIFY] %s", Subject(s))
	return nil
}

// MultiNotifier fans a summary out to several channels and fails only when
// all of them failed.
type MultiNotifier struct {
	notifiers []domainNotification.INotifier
}

func NewMultiNotifier(notifiers ...domainNotification.INotifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

func (m *MultiNotifier) Notify(ctx context.Context, s domainNotification.Summary) error {
	if len(m.notifiers) == 0 {
		return nil
	}
	var failed []string
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, s); err != nil {
			failed = append(failed, fmt.Sprintf("%T: %v", n, err))
		}
	}
	if len(failed) == len(m.notifiers) {
		return pkgError.WebhookError(fmt.Sprintf("no notification channel accepted run %s: %s", s.RunID, strings.Join(failed, "; ")))
	}
	if len(failed) > 0 {
		logrus.Warnf("[NOTIFY] %d of %d channel(s) failed: %s", len(failed), len(m.notifiers), strings.Join(failed, "; "))
	}
	return nil
}
