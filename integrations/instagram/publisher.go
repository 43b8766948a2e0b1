package instagram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AzielCF/az-postsync/domains/publisher"
	"github.com/AzielCF/az-postsync/pkg/timeutils"
	"github.com/sirupsen/logrus"
)

type PublisherOptions struct {
	PollAttempts     int
	PollInitialDelay time.Duration
	PollMaxDelay     time.Duration
	RecentLookup     int
}

func (o PublisherOptions) withDefaults() PublisherOptions {
	if o.PollAttempts <= 0 {
		o.PollAttempts = 5
	}
	if o.PollInitialDelay <= 0 {
		o.PollInitialDelay = 2 * time.Second
	}
	if o.PollMaxDelay <= 0 {
		o.PollMaxDelay = 30 * time.Second
	}
	if o.RecentLookup <= 0 {
		o.RecentLookup = 10
	}
	return o
}

// Publisher drives the container -> poll -> publish sequence for single and
// carousel posts on top of an IPlatformAPI.
type Publisher struct {
	api   publisher.IPlatformAPI
	clock timeutils.Clock
	opts  PublisherOptions
}

var _ publisher.IPublisher = (*Publisher)(nil)

func NewPublisher(api publisher.IPlatformAPI, clock timeutils.Clock, opts PublisherOptions) *Publisher {
	if clock == nil {
		clock = timeutils.SystemClock()
	}
	return &Publisher{api: api, clock: clock, opts: opts.withDefaults()}
}

func (p *Publisher) PublishPost(ctx context.Context, post publisher.Post) (publisher.Result, error) {
	if len(post.Media) == 0 {
		return publisher.Result{}, publisher.Permanent("publish_post", "post has no media")
	}

	containerID, err := p.prepare(ctx, post)
	if err != nil {
		return publisher.Result{}, err
	}

	mediaID, err := p.api.Publish(ctx, post.AccountID, post.AccessToken, containerID)
	if err != nil {
		if publisher.IsRateLimited(err) {
			return publisher.Result{}, err
		}
		logrus.WithError(err).WithField("container_id", containerID).
			Warn("[INSTAGRAM] publish call failed, verifying container state")
		res, ok := p.verify(ctx, post, containerID)
		if !ok {
			return publisher.Result{}, err
		}
		return res, nil
	}

	res := publisher.Result{
		RemoteID:    mediaID,
		ContainerID: containerID,
		PublishedAt: p.clock.Now(),
	}
	if link, err := p.api.Permalink(ctx, post.AccessToken, mediaID); err != nil {
		logrus.WithError(err).WithField("media_id", mediaID).Warn("[INSTAGRAM] permalink lookup failed")
	} else {
		res.Permalink = link
	}
	return res, nil
}

// prepare creates the container(s) for the post and waits until the one to
// publish has finished processing.
func (p *Publisher) prepare(ctx context.Context, post publisher.Post) (string, error) {
	if !post.IsCarousel() {
		id, err := p.api.CreateContainer(ctx, post.AccountID, post.AccessToken, publisher.ContainerRequest{
			Media:   post.Media[0],
			Caption: post.Caption,
		})
		if err != nil {
			return "", err
		}
		return id, p.waitFinished(ctx, post.AccessToken, id)
	}

	children := make([]string, 0, len(post.Media))
	for _, m := range post.Media {
		id, err := p.api.CreateContainer(ctx, post.AccountID, post.AccessToken, publisher.ContainerRequest{
			Media:       m,
			IsChildItem: true,
		})
		if err != nil {
			return "", err
		}
		children = append(children, id)
	}
	for _, id := range children {
		if err := p.waitFinished(ctx, post.AccessToken, id); err != nil {
			return "", err
		}
	}

	parent, err := p.api.CreateContainer(ctx, post.AccountID, post.AccessToken, publisher.ContainerRequest{
		Caption:  post.Caption,
		Children: children,
	})
	if err != nil {
		return "", err
	}
	return parent, p.waitFinished(ctx, post.AccessToken, parent)
}

// waitFinished polls with bounded exponential backoff. ERROR and EXPIRED
// end polling immediately.
func (p *Publisher) waitFinished(ctx context.Context, token, containerID string) error {
	var lastErr error
	for attempt := 1; attempt <= p.opts.PollAttempts; attempt++ {
		status, err := p.api.PollStatus(ctx, token, containerID)
		switch {
		case err != nil:
			if publisher.IsRateLimited(err) || publisher.IsPermanent(err) {
				return err
			}
			lastErr = err
		case status == publisher.ContainerFinished || status == publisher.ContainerPublished:
			return nil
		case status.Failed():
			return publisher.Permanent("poll_status", fmt.Sprintf("container %s ended with status %s", containerID, status))
		}

		if attempt < p.opts.PollAttempts {
			if err := p.clock.Sleep(ctx, timeutils.Backoff(p.opts.PollInitialDelay, p.opts.PollMaxDelay, attempt)); err != nil {
				return publisher.Transient("poll_status", err)
			}
		}
	}
	if lastErr != nil {
		return lastErr
	}
	return publisher.Transient("poll_status", fmt.Errorf("container %s still processing after %d polls", containerID, p.opts.PollAttempts))
}

// verify checks whether a publish that errored went through anyway.
func (p *Publisher) verify(ctx context.Context, post publisher.Post, containerID string) (publisher.Result, bool) {
	status, err := p.api.PollStatus(ctx, post.AccessToken, containerID)
	if err != nil || status != publisher.ContainerPublished {
		return publisher.Result{}, false
	}

	// RemoteID stays empty until a media id is matched; a container id is not one.
	res := publisher.Result{
		ContainerID: containerID,
		PublishedAt: p.clock.Now(),
		Verified:    true,
	}
	recent, err := p.api.RecentMedia(ctx, post.AccountID, post.AccessToken, p.opts.RecentLookup)
	if err != nil {
		logrus.WithError(err).Warn("[INSTAGRAM] recent media lookup failed during verification")
		return res, true
	}
	want := strings.TrimSpace(post.Caption)
	for _, m := range recent {
		if strings.TrimSpace(m.Caption) == want {
			res.RemoteID = m.ID
			res.Permalink = m.Permalink
			if !m.Timestamp.IsZero() {
				res.PublishedAt = m.Timestamp.UTC()
			}
			break
		}
	}
	log := logrus.WithFields(logrus.Fields{"container_id": containerID, "media_id": res.RemoteID})
	if res.RemoteID == "" {
		log.Warn("[INSTAGRAM] container published but no recent media matched the caption")
		return res, true
	}
	log.Info("[INSTAGRAM] publish verified after failed response")
	return res, true
}
