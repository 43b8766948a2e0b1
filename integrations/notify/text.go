package notify

import (
	"fmt"
	"strings"
	"time"

	domainNotification "github.com/AzielCF/az-postsync/domains/notification"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
)

// Subject is a one-line headline for the summary.
func Subject(s domainNotification.Summary) string {
	switch {
	case s.SkippedReason != "" && s.PublishedCount == 0 && s.FailedCount == 0:
		return fmt.Sprintf("[postsync] run skipped: %s", s.SkippedReason)
	case s.FailedCount > 0 || len(s.Errors) > 0:
		return fmt.Sprintf("[postsync] %d published, %d failed", s.PublishedCount, s.FailedCount)
	default:
		return fmt.Sprintf("[postsync] %d published", s.PublishedCount)
	}
}

// FormatSummary renders the summary as plain text for email and logs.
func FormatSummary(s domainNotification.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s)\n", s.RunID, s.Trigger)
	if s.ServerID != "" {
		fmt.Fprintf(&b, "Server: %s\n", s.ServerID)
	}
	if !s.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Started: %s, took %s\n", s.StartedAt.Format(time.RFC3339), s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(&b, "Due: %d  Published: %d  Failed: %d  Deferred: %d\n", s.DuePicked, s.PublishedCount, s.FailedCount, s.DeferredCount)
	if s.OldestDueAt != nil && !s.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Oldest due slot was scheduled %s\n", humanize.RelTime(*s.OldestDueAt, s.StartedAt, "ago", "from now"))
	}
	if s.SkippedReason != "" {
		fmt.Fprintf(&b, "Skipped: %s\n", s.SkippedReason)
	}
	if len(s.Errors) > 0 {
		b.WriteString("\nErrors:\n")
		for _, e := range s.Errors {
			if e.SlotID == "" {
				fmt.Fprintf(&b, "- run: %s\n", e.Message)
				continue
			}
			fmt.Fprintf(&b, "- slot %s (draft %s, %s): %s\n", e.SlotID, e.DraftID, english.Plural(e.Attempts, "attempt", "attempts"), e.Message)
		}
	}
	return b.String()
}
