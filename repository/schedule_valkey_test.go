package repository

import (
	"context"
	"testing"
	"time"

	"github.com/AzielCF/az-postsync/domains/schedule"
	"github.com/AzielCF/az-postsync/infrastructure/valkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSha1Revision(t *testing.T) {
	assert.Equal(t, "sha1:a9993e364706816aba3e25717850c26c9cd0d89d", sha1Revision([]byte("abc")))
}

func TestValkeyScheduleStore_DocumentWithoutRevisionKey(t *testing.T) {
	vk, err := valkey.NewClient(valkey.Config{Address: "localhost:6379", KeyPrefix: "postsync-test-" + time.Now().Format("150405.000000")})
	if err != nil {
		t.Skip("No valkey")
	}
	defer vk.Close()
	ctx := context.Background()

	store := NewValkeyScheduleStore(vk, "seeded")
	seeded := `{"version":"1","scheduleSlots":[]}`
	inner := vk.Inner()
	require.NoError(t, inner.Do(ctx, inner.B().Set().Key(vk.Key("schedule", "seeded")).Value(seeded).Build()).Error())

	snap, err := store.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, sha1Revision([]byte(seeded)), snap.Revision)

	_, err = store.Write(ctx, []byte(seeded), "")
	assert.ErrorIs(t, err, schedule.ErrConflict, "empty revision still means create")

	rev, err := store.Write(ctx, []byte(`{"version":"2","scheduleSlots":[]}`), snap.Revision)
	require.NoError(t, err)

	snap, err = store.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, rev, snap.Revision)
	assert.Equal(t, "2", snap.Doc.Version)
}
