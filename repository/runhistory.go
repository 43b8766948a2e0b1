package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/AzielCF/az-postsync/domains/reconcile"
	"github.com/AzielCF/az-postsync/infrastructure/valkey"
	valkeylib "github.com/valkey-io/valkey-go"
)

const defaultHistorySize = 50

// MemoryRunHistory keeps the latest reports in process memory, newest first.
type MemoryRunHistory struct {
	mu      sync.RWMutex
	max     int
	reports []reconcile.RunReport
}

var _ reconcile.IRunHistory = (*MemoryRunHistory)(nil)

func NewMemoryRunHistory(max int) *MemoryRunHistory {
	if max <= 0 {
		max = defaultHistorySize
	}
	return &MemoryRunHistory{max: max}
}

func (h *MemoryRunHistory) Record(_ context.Context, report reconcile.RunReport) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reports = append([]reconcile.RunReport{report}, h.reports...)
	if len(h.reports) > h.max {
		h.reports = h.reports[:h.max]
	}
	return nil
}

func (h *MemoryRunHistory) Recent(_ context.Context, limit int) ([]reconcile.RunReport, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if limit <= 0 || limit > len(h.reports) {
		limit = len(h.reports)
	}
	out := make([]reconcile.RunReport, limit)
	copy(out, h.reports[:limit])
	return out, nil
}

// ValkeyRunHistory shares run reports between every process using the same
// key prefix.
type ValkeyRunHistory struct {
	client *valkey.Client
	key    string
	max    int
}

var _ reconcile.IRunHistory = (*ValkeyRunHistory)(nil)

func NewValkeyRunHistory(client *valkey.Client, max int) *ValkeyRunHistory {
	if max <= 0 {
		max = defaultHistorySize
	}
	return &ValkeyRunHistory{client: client, key: client.Key("runs"), max: max}
}

func (h *ValkeyRunHistory) Record(ctx context.Context, report reconcile.RunReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	inner := h.client.Inner()
	cmds := []valkeylib.Completed{
		inner.B().Lpush().Key(h.key).Element(string(data)).Build(),
		inner.B().Ltrim().Key(h.key).Start(0).Stop(int64(h.max - 1)).Build(),
	}
	for _, resp := range inner.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("record run report: %w", err)
		}
	}
	return nil
}

func (h *ValkeyRunHistory) Recent(ctx context.Context, limit int) ([]reconcile.RunReport, error) {
	if limit <= 0 || limit > h.max {
		limit = h.max
	}
	inner := h.client.Inner()
	entries, err := inner.Do(ctx, inner.B().Lrange().Key(h.key).Start(0).Stop(int64(limit-1)).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("read run reports: %w", err)
	}
	out := make([]reconcile.RunReport, 0, len(entries))
	for _, e := range entries {
		var r reconcile.RunReport
		if err := json.Unmarshal([]byte(e), &r); err == nil {
			out = append(out, r)
		}
	}
	return out, nil
}
