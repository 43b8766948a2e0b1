package repository

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/AzielCF/az-postsync/domains/schedule"
	"github.com/AzielCF/az-postsync/infrastructure/valkey"
	"github.com/google/uuid"
)

// contentRevisionPrefix marks a revision derived from the document bytes,
// used when the document was written without a revision key.
const contentRevisionPrefix = "sha1:"

// compareAndSetScript replaces the document only when the stored revision
// matches ARGV[1]. A document without a revision key is identified by the
// sha1 of its content. An empty expected revision means "create if absent".
const compareAndSetScript = `
local current = redis.call('GET', KEYS[2])
if not current then
  local doc = redis.call('GET', KEYS[1])
  if doc then current = 'sha1:' .. redis.sha1hex(doc) else current = '' end
end
if current ~= ARGV[1] then return 0 end
if ARGV[1] == '' and redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('SET', KEYS[1], ARGV[2])
redis.call('SET', KEYS[2], ARGV[3])
return 1
`

// ValkeyScheduleStore keeps the document under one key with its revision in
// a sibling key.
type ValkeyScheduleStore struct {
	client *valkey.Client
	docKey string
	revKey string
}

var _ schedule.IScheduleStore = (*ValkeyScheduleStore)(nil)

func NewValkeyScheduleStore(client *valkey.Client, name string) *ValkeyScheduleStore {
	return &ValkeyScheduleStore{
		client: client,
		docKey: client.Key("schedule", name),
		revKey: client.Key("schedule", name, "rev"),
	}
}

func (s *ValkeyScheduleStore) Fetch(ctx context.Context) (schedule.Snapshot, error) {
	inner := s.client.Inner()
	vals, err := inner.Do(ctx, inner.B().Mget().Key(s.docKey, s.revKey).Build()).ToArray()
	if err != nil {
		return schedule.Snapshot{}, fmt.Errorf("fetch schedule from valkey: %w", err)
	}
	if len(vals) != 2 {
		return schedule.Snapshot{}, fmt.Errorf("fetch schedule from valkey: unexpected reply length %d", len(vals))
	}

	raw, err := vals[0].ToString()
	if err != nil {
		if valkey.IsNil(err) {
			return schedule.Snapshot{}, schedule.ErrNotFound
		}
		return schedule.Snapshot{}, fmt.Errorf("read schedule document: %w", err)
	}
	rev, err := vals[1].ToString()
	if err != nil {
		if !valkey.IsNil(err) {
			return schedule.Snapshot{}, fmt.Errorf("read schedule revision: %w", err)
		}
		rev = sha1Revision([]byte(raw))
	}
	return schedule.Parse([]byte(raw), rev)
}

// sha1Revision matches the revision compareAndSetScript derives for a
// document stored without a revision key.
func sha1Revision(raw []byte) string {
	sum := sha1.Sum(raw)
	return contentRevisionPrefix + hex.EncodeToString(sum[:])
}

func (s *ValkeyScheduleStore) Write(ctx context.Context, raw []byte, expectedRevision string) (string, error) {
	inner := s.client.Inner()
	next := uuid.NewString()
	cmd := inner.B().Eval().
		Script(compareAndSetScript).
		Numkeys(2).
		Key(s.docKey, s.revKey).
		Arg(expectedRevision, string(raw), next).
		Build()

	ok, err := inner.Do(ctx, cmd).AsInt64()
	if err != nil {
		return "", fmt.Errorf("write schedule to valkey: %w", err)
	}
	if ok != 1 {
		return "", schedule.ErrConflict
	}
	return next, nil
}
