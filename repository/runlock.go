package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AzielCF/az-postsync/domains/reconcile"
	"github.com/AzielCF/az-postsync/infrastructure/valkey"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// releaseLockScript deletes the lock only when it still holds our token.
const releaseLockScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`

// MemoryRunLock serialises runs inside one process.
type MemoryRunLock struct {
	mu sync.Mutex
}

var _ reconcile.IRunLock = (*MemoryRunLock)(nil)

func NewMemoryRunLock() *MemoryRunLock {
	return &MemoryRunLock{}
}

func (l *MemoryRunLock) TryAcquire(ctx context.Context, _ time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !l.mu.TryLock() {
		return nil, reconcile.ErrRunInProgress
	}
	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, nil
}

// ValkeyRunLock serialises runs across processes with SET NX EX and a token
// checked on release. The token starts with the owner so an operator can see
// which server holds the lock.
type ValkeyRunLock struct {
	client *valkey.Client
	key    string
	owner  string
}

var _ reconcile.IRunLock = (*ValkeyRunLock)(nil)

func NewValkeyRunLock(client *valkey.Client, owner string) *ValkeyRunLock {
	return &ValkeyRunLock{client: client, key: client.Key("lock", "reconcile"), owner: owner}
}

func (l *ValkeyRunLock) token() string {
	if l.owner == "" {
		return uuid.NewString()
	}
	return l.owner + ":" + uuid.NewString()
}

func (l *ValkeyRunLock) TryAcquire(ctx context.Context, ttl time.Duration) (func(), error) {
	inner := l.client.Inner()
	token := l.token()
	err := inner.Do(ctx, inner.B().Set().Key(l.key).Value(token).Nx().Ex(ttl).Build()).Error()
	if err != nil {
		if valkey.IsNil(err) {
			if holder, getErr := inner.Do(ctx, inner.B().Get().Key(l.key).Build()).ToString(); getErr == nil {
				logrus.Debugf("[RECONCILE] run lock held by %s", holder)
			}
			return nil, reconcile.ErrRunInProgress
		}
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		cmd := inner.B().Eval().Script(releaseLockScript).Numkeys(1).Key(l.key).Arg(token).Build()
		if err := inner.Do(ctx, cmd).Error(); err != nil && !errors.Is(err, context.Canceled) {
			logrus.WithError(err).Warn("[RECONCILE] failed to release run lock; it will expire on its own")
		}
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}
