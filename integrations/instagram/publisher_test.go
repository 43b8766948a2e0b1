package instagram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AzielCF/az-postsync/domains/publisher"
	"github.com/AzielCF/az-postsync/pkg/timeutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI records every call in order and serves scripted poll statuses.
type fakeAPI struct {
	mu         sync.Mutex
	calls      []string
	nextID     int
	statuses   map[string][]publisher.ContainerStatus
	publishErr error
	recent     []publisher.RecentMedia
	permalink  error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{statuses: map[string][]publisher.ContainerStatus{}}
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) CreateContainer(_ context.Context, _, _ string, req publisher.ContainerRequest) (string, error) {
	f.mu.Lock()
	f.nextID++
	id := fmt.Sprintf("c%d", f.nextID)
	f.mu.Unlock()
	switch {
	case len(req.Children) > 0:
		f.record("parent:" + id)
	case req.IsChildItem:
		f.record("child:" + id)
	default:
		f.record("single:" + id)
	}
	return id, nil
}

func (f *fakeAPI) PollStatus(_ context.Context, _, id string) (publisher.ContainerStatus, error) {
	f.record("poll:" + id)
	f.mu.Lock()
	defer f.mu.Unlock()
	queue := f.statuses[id]
	if len(queue) == 0 {
		return publisher.ContainerFinished, nil
	}
	s := queue[0]
	if len(queue) > 1 {
		f.statuses[id] = queue[1:]
	}
	return s, nil
}

func (f *fakeAPI) Publish(_ context.Context, _, _, id string) (string, error) {
	f.record("publish:" + id)
	if f.publishErr != nil {
		return "", f.publishErr
	}
	return "m-" + id, nil
}

func (f *fakeAPI) Permalink(_ context.Context, _, id string) (string, error) {
	if f.permalink != nil {
		return "", f.permalink
	}
	return "https://insta.test/p/" + id, nil
}

func (f *fakeAPI) RecentMedia(context.Context, string, string, int) ([]publisher.RecentMedia, error) {
	return f.recent, nil
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func testPost(n int) publisher.Post {
	p := publisher.Post{AccountID: "1", AccessToken: "tok", Caption: "caption"}
	for i := 0; i < n; i++ {
		p.Media = append(p.Media, publisher.MediaItem{URL: fmt.Sprintf("https://cdn.test/%d.jpg", i), Kind: publisher.MediaImage})
	}
	return p
}

func TestPublishPost_SingleMedia(t *testing.T) {
	api := newFakeAPI()
	clock := timeutils.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	p := NewPublisher(api, clock, PublisherOptions{})

	res, err := p.PublishPost(context.Background(), testPost(1))
	require.NoError(t, err)
	assert.Equal(t, "m-c1", res.RemoteID)
	assert.Equal(t, "https://insta.test/p/m-c1", res.Permalink)
	assert.Equal(t, []string{"single:c1", "poll:c1", "publish:c1"}, api.Calls())
	assert.Empty(t, clock.Sleeps())
}

func TestPublishPost_CarouselSequencing(t *testing.T) {
	api := newFakeAPI()
	p := NewPublisher(api, timeutils.NewFakeClock(time.Now()), PublisherOptions{})

	res, err := p.PublishPost(context.Background(), testPost(3))
	require.NoError(t, err)

	calls := api.Calls()
	var creates []string
	for _, c := range calls {
		if c[:5] == "child" || c[:6] == "parent" {
			creates = append(creates, c)
		}
	}
	assert.Equal(t, []string{"child:c1", "child:c2", "child:c3", "parent:c4"}, creates)
	assert.Equal(t, "publish:c4", calls[len(calls)-1])

	publishes := 0
	for _, c := range calls {
		if len(c) > 8 && c[:8] == "publish:" {
			publishes++
		}
	}
	assert.Equal(t, 1, publishes)
	assert.Equal(t, "c4", res.ContainerID)
}

func TestPublishPost_PollsWithExponentialBackoff(t *testing.T) {
	api := newFakeAPI()
	api.statuses["c1"] = []publisher.ContainerStatus{
		publisher.ContainerInProgress, publisher.ContainerInProgress, publisher.ContainerFinished,
	}
	clock := timeutils.NewFakeClock(time.Now())
	p := NewPublisher(api, clock, PublisherOptions{PollAttempts: 5, PollInitialDelay: 2 * time.Second})

	_, err := p.PublishPost(context.Background(), testPost(1))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, clock.Sleeps())
}

func TestPublishPost_ContainerErrorStopsPolling(t *testing.T) {
	api := newFakeAPI()
	api.statuses["c1"] = []publisher.ContainerStatus{publisher.ContainerInProgress, publisher.ContainerError}
	p := NewPublisher(api, timeutils.NewFakeClock(time.Now()), PublisherOptions{PollAttempts: 5})

	_, err := p.PublishPost(context.Background(), testPost(1))
	require.Error(t, err)
	assert.True(t, publisher.IsPermanent(err))
	assert.Equal(t, []string{"single:c1", "poll:c1", "poll:c1"}, api.Calls())
}

func TestPublishPost_ExpiredIsPermanent(t *testing.T) {
	api := newFakeAPI()
	api.statuses["c1"] = []publisher.ContainerStatus{publisher.ContainerExpired}
	p := NewPublisher(api, timeutils.NewFakeClock(time.Now()), PublisherOptions{})

	_, err := p.PublishPost(context.Background(), testPost(1))
	assert.True(t, publisher.IsPermanent(err))
}

func TestPublishPost_PollingIsBounded(t *testing.T) {
	api := newFakeAPI()
	api.statuses["c1"] = []publisher.ContainerStatus{publisher.ContainerInProgress}
	clock := timeutils.NewFakeClock(time.Now())
	p := NewPublisher(api, clock, PublisherOptions{PollAttempts: 3, PollInitialDelay: time.Second})

	_, err := p.PublishPost(context.Background(), testPost(1))
	require.Error(t, err)
	assert.Equal(t, publisher.KindTransient, publisher.KindOf(err))
	assert.Len(t, clock.Sleeps(), 2)
	assert.NotContains(t, api.Calls(), "publish:c1")
}

func TestPublishPost_VerifiesAfterDroppedPublishResponse(t *testing.T) {
	api := newFakeAPI()
	api.publishErr = publisher.Transient("publish", errors.New("connection reset"))
	// first poll during prepare, second during verification
	api.statuses["c1"] = []publisher.ContainerStatus{publisher.ContainerFinished, publisher.ContainerPublished}
	api.recent = []publisher.RecentMedia{
		{ID: "m-old", Caption: "something else"},
		{ID: "m-new", Caption: "caption", Permalink: "https://insta.test/p/new"},
	}
	p := NewPublisher(api, timeutils.NewFakeClock(time.Now()), PublisherOptions{})

	res, err := p.PublishPost(context.Background(), testPost(1))
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, "m-new", res.RemoteID)
	assert.Equal(t, "https://insta.test/p/new", res.Permalink)
}

func TestPublishPost_VerifiedWithoutCaptionMatchLeavesRemoteIDEmpty(t *testing.T) {
	api := newFakeAPI()
	api.publishErr = publisher.Transient("publish", errors.New("connection reset"))
	api.statuses["c1"] = []publisher.ContainerStatus{publisher.ContainerFinished, publisher.ContainerPublished}
	api.recent = []publisher.RecentMedia{{ID: "m-old", Caption: "something else"}}
	p := NewPublisher(api, timeutils.NewFakeClock(time.Now()), PublisherOptions{})

	res, err := p.PublishPost(context.Background(), testPost(1))
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Empty(t, res.RemoteID)
	assert.Empty(t, res.Permalink)
	assert.Equal(t, "c1", res.ContainerID)
}

func TestPublishPost_PublishFailureWithoutPublishedContainer(t *testing.T) {
	api := newFakeAPI()
	api.publishErr = publisher.Transient("publish", errors.New("timeout"))
	p := NewPublisher(api, timeutils.NewFakeClock(time.Now()), PublisherOptions{})

	_, err := p.PublishPost(context.Background(), testPost(1))
	require.Error(t, err)
	assert.Equal(t, publisher.KindTransient, publisher.KindOf(err))
}

func TestPublishPost_RateLimitedPublishSkipsVerification(t *testing.T) {
	api := newFakeAPI()
	api.publishErr = &publisher.PublishError{Kind: publisher.KindRateLimited, Op: "publish", HTTPStatus: 429}
	p := NewPublisher(api, timeutils.NewFakeClock(time.Now()), PublisherOptions{})

	_, err := p.PublishPost(context.Background(), testPost(1))
	assert.True(t, publisher.IsRateLimited(err))
	assert.Equal(t, []string{"single:c1", "poll:c1", "publish:c1"}, api.Calls())
}

func TestPublishPost_PermalinkFailureIsTolerated(t *testing.T) {
	api := newFakeAPI()
	api.permalink = errors.New("lookup failed")
	p := NewPublisher(api, timeutils.NewFakeClock(time.Now()), PublisherOptions{})

	res, err := p.PublishPost(context.Background(), testPost(1))
	require.NoError(t, err)
	assert.Equal(t, "m-c1", res.RemoteID)
	assert.Empty(t, res.Permalink)
}

func TestPublishPost_NoMediaIsPermanent(t *testing.T) {
	p := NewPublisher(newFakeAPI(), timeutils.NewFakeClock(time.Now()), PublisherOptions{})
	_, err := p.PublishPost(context.Background(), publisher.Post{AccountID: "1"})
	assert.True(t, publisher.IsPermanent(err))
}
