package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AzielCF/az-postsync/domains/schedule"
)

const localRevisionPrefix = "sha256:"

// HTTPScheduleStore reads and writes the document as a single blob at URL.
// ETags make writes conditional (If-Match / If-None-Match: *); a server that
// sends no ETag gets unconditional overwrites.
type HTTPScheduleStore struct {
	url        string
	token      string
	httpClient *http.Client
}

var _ schedule.IScheduleStore = (*HTTPScheduleStore)(nil)

func NewHTTPScheduleStore(url, token string, timeout time.Duration, client *http.Client) *HTTPScheduleStore {
	if client == nil {
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPScheduleStore{url: url, token: token, httpClient: client}
}

func (s *HTTPScheduleStore) Fetch(ctx context.Context) (schedule.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return schedule.Snapshot{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return schedule.Snapshot{}, fmt.Errorf("fetch schedule: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return schedule.Snapshot{}, schedule.ErrNotFound
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return schedule.Snapshot{}, fmt.Errorf("read schedule body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return schedule.Snapshot{}, fmt.Errorf("fetch schedule: status=%d body=%s", resp.StatusCode, truncate(raw))
	}

	rev := resp.Header.Get("ETag")
	if rev == "" {
		rev = localRevisionPrefix + contentRevision(raw)
	}
	return schedule.Parse(raw, rev)
}

func (s *HTTPScheduleStore) Write(ctx context.Context, raw []byte, expectedRevision string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.url, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case expectedRevision == "":
		req.Header.Set("If-None-Match", "*")
	case !strings.HasPrefix(expectedRevision, localRevisionPrefix):
		req.Header.Set("If-Match", expectedRevision)
	}
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("write schedule: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))

	switch {
	case resp.StatusCode == http.StatusPreconditionFailed || resp.StatusCode == http.StatusConflict:
		return "", schedule.ErrConflict
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("write schedule: status=%d body=%s", resp.StatusCode, truncate(body))
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		return etag, nil
	}
	return localRevisionPrefix + contentRevision(raw), nil
}

func (s *HTTPScheduleStore) authorize(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
