package usecase

import (
	"context"
	"strconv"
	"sync"

	domainNotification "github.com/AzielCF/az-postsync/domains/notification"
	domainPublisher "github.com/AzielCF/az-postsync/domains/publisher"
	domainSchedule "github.com/AzielCF/az-postsync/domains/schedule"
)

// memStore is a revision-checked in-memory document store.
type memStore struct {
	mu         sync.Mutex
	raw        []byte
	rev        int
	writes     [][]byte
	fetches    int
	fetchErr   error
	writeErrs  []error
	firstFetch []byte // served once, then the real document
}

func newMemStore(raw string) *memStore {
	s := &memStore{}
	if raw != "" {
		s.raw = []byte(raw)
		s.rev = 1
	}
	return s
}

func (s *memStore) Fetch(_ context.Context) (domainSchedule.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.fetchErr != nil {
		return domainSchedule.Snapshot{}, s.fetchErr
	}
	if s.raw == nil {
		return domainSchedule.Snapshot{}, domainSchedule.ErrNotFound
	}
	raw := s.raw
	if s.firstFetch != nil {
		raw, s.firstFetch = s.firstFetch, nil
	}
	return domainSchedule.Parse(append([]byte(nil), raw...), strconv.Itoa(s.rev))
}

func (s *memStore) Write(_ context.Context, raw []byte, expectedRevision string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.writeErrs) > 0 {
		err := s.writeErrs[0]
		s.writeErrs = s.writeErrs[1:]
		return "", err
	}
	if expectedRevision != strconv.Itoa(s.rev) {
		return "", domainSchedule.ErrConflict
	}
	s.rev++
	s.raw = append([]byte(nil), raw...)
	s.writes = append(s.writes, s.raw)
	return strconv.Itoa(s.rev), nil
}

// edit simulates an out-of-band writer such as the authoring surface.
func (s *memStore) edit(fn func([]byte) []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = fn(s.raw)
	s.rev++
}

func (s *memStore) doc() domainSchedule.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := domainSchedule.Parse(s.raw, "")
	if err != nil {
		panic(err)
	}
	return snap.Doc
}

func (s *memStore) slot(id string) domainSchedule.Slot {
	slot, _ := s.doc().Slot(id)
	return slot
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

type fakePublisher struct {
	mu     sync.Mutex
	posts  []domainPublisher.Post
	script func(call int, post domainPublisher.Post) (domainPublisher.Result, error)
}

func (p *fakePublisher) PublishPost(_ context.Context, post domainPublisher.Post) (domainPublisher.Result, error) {
	p.mu.Lock()
	p.posts = append(p.posts, post)
	call := len(p.posts)
	p.mu.Unlock()
	if p.script == nil {
		return domainPublisher.Result{RemoteID: "m" + strconv.Itoa(call), Permalink: "https://instagram.com/p/m" + strconv.Itoa(call)}, nil
	}
	return p.script(call, post)
}

func (p *fakePublisher) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.posts)
}

type recordingNotifier struct {
	mu        sync.Mutex
	summaries []domainNotification.Summary
	err       error
}

func (n *recordingNotifier) Notify(_ context.Context, summary domainNotification.Summary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, summary)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.summaries)
}
