package publisher

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_ClassifiesWrappedErrors(t *testing.T) {
	rl := &PublishError{Kind: KindRateLimited, Op: "publish", HTTPStatus: 429, Message: "slow down"}
	wrapped := fmt.Errorf("slot s1: %w", rl)

	assert.Equal(t, KindRateLimited, KindOf(wrapped))
	assert.True(t, IsRateLimited(wrapped))
	assert.False(t, IsPermanent(wrapped))

	perm := Permanent("create_container", "invalid media")
	assert.True(t, IsPermanent(fmt.Errorf("x: %w", perm)))
	assert.False(t, IsRateLimited(perm))

	assert.Equal(t, KindTransient, KindOf(errors.New("dial tcp: timeout")))
}

func TestPublishError_Message(t *testing.T) {
	e := &PublishError{Kind: KindPermanent, Op: "publish", HTTPStatus: 400, Code: 9004, Message: "bad url"}
	assert.Equal(t, "publish: bad url (permanent, status=400 code=9004)", e.Error())

	e = Transient("poll_status", errors.New("EOF"))
	assert.Equal(t, "poll_status: EOF (transient)", e.Error())
}

func TestContainerStatus_Failed(t *testing.T) {
	assert.True(t, ContainerError.Failed())
	assert.True(t, ContainerExpired.Failed())
	assert.False(t, ContainerFinished.Failed())
	assert.False(t, ContainerInProgress.Failed())
}

func TestPost_IsCarousel(t *testing.T) {
	assert.False(t, Post{Media: []MediaItem{{URL: "a"}}}.IsCarousel())
	assert.True(t, Post{Media: []MediaItem{{URL: "a"}, {URL: "b"}}}.IsCarousel())
}
