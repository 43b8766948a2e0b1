package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domainNotification "github.com/AzielCF/az-postsync/domains/notification"
	pkgError "github.com/AzielCF/az-postsync/pkg/error"
	"github.com/AzielCF/az-postsync/pkg/timeutils"
	pkgUtils "github.com/AzielCF/az-postsync/pkg/utils"
	"github.com/sirupsen/logrus"
)

const EventRunFinished = "reconcile.run_finished"

type WebhookConfig struct {
	URLs               []string
	Secret             string
	InsecureSkipVerify bool
	Timeout            time.Duration
	MaxAttempts        int
	HTTPClient         *http.Client
	Clock              timeutils.Clock
}

// WebhookNotifier posts the run summary as JSON to every configured URL.
type WebhookNotifier struct {
	urls        []string
	secret      string
	client      *http.Client
	maxAttempts int
	clock       timeutils.Clock
}

var _ domainNotification.INotifier = (*WebhookNotifier)(nil)

func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
			},
		}
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutils.SystemClock()
	}
	return &WebhookNotifier{urls: cfg.URLs, secret: cfg.Secret, client: client, maxAttempts: attempts, clock: clock}
}

type webhookPayload struct {
	Event   string                     `json:"event"`
	Summary domainNotification.Summary `json:"summary"`
	Text    string                     `json:"text"`
}

// Notify only returns an error when every URL failed.
func (n *WebhookNotifier) Notify(ctx context.Context, summary domainNotification.Summary) error {
	total := len(n.urls)
	if total == 0 {
		logrus.Debug("[NOTIFY] No webhook configured; skipping dispatch")
		return nil
	}

	body, err := json.Marshal(webhookPayload{Event: EventRunFinished, Summary: summary, Text: FormatSummary(summary)})
	if err != nil {
		return pkgError.WebhookError(fmt.Sprintf("Failed to marshal body: %v", err))
	}

	var failed []string
	for _, url := range n.urls {
		if err := n.submit(ctx, url, body); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", url, err))
			logrus.Warnf("[NOTIFY] Failed delivering run %s to %s: %v", summary.RunID, url, err)
		}
	}

	if len(failed) == total {
		return pkgError.WebhookError(fmt.Sprintf("all webhook URLs failed for run %s: %s", summary.RunID, strings.Join(failed, "; ")))
	}
	if len(failed) > 0 {
		logrus.Warnf("[NOTIFY] Some webhook URLs failed (succeeded: %d/%d)", total-len(failed), total)
	}
	return nil
}

func (n *WebhookNotifier) submit(ctx context.Context, url string, body []byte) error {
	var signature string
	if n.secret != "" {
		sig, err := pkgUtils.GetMessageDigestOrSignature(body, []byte(n.secret))
		if err != nil {
			return fmt.Errorf("error when create signature %v", err)
		}
		signature = "sha256=" + sig
	}

	delay := time.Second
	var lastErr error
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		lastErr = n.post(ctx, url, body, signature)
		if lastErr == nil {
			logrus.Debugf("[NOTIFY] Webhook %s accepted on attempt %d", url, attempt)
			return nil
		}
		if attempt < n.maxAttempts {
			if err := n.clock.Sleep(ctx, delay); err != nil {
				return err
			}
			delay *= 2
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", n.maxAttempts, lastErr)
}

func (n *WebhookNotifier) post(ctx context.Context, url string, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event", EventRunFinished)
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
