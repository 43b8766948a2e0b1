package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ContainerStatus is the processing state the platform reports for a media
// container.
type ContainerStatus string

const (
	ContainerInProgress ContainerStatus = "IN_PROGRESS"
	ContainerFinished   ContainerStatus = "FINISHED"
	ContainerError      ContainerStatus = "ERROR"
	ContainerExpired    ContainerStatus = "EXPIRED"
	ContainerPublished  ContainerStatus = "PUBLISHED"
)

// Failed reports whether the container can never be published.
func (s ContainerStatus) Failed() bool {
	return s == ContainerError || s == ContainerExpired
}

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

type MediaItem struct {
	URL  string
	Kind MediaKind
}

// Post is one publishable unit: one media item, or a carousel of several.
type Post struct {
	AccountID   string
	AccessToken string
	Caption     string
	Media       []MediaItem
}

func (p Post) IsCarousel() bool {
	return len(p.Media) > 1
}

// ContainerRequest describes a single container creation call.
type ContainerRequest struct {
	Media       MediaItem
	Caption     string
	IsChildItem bool
	Children    []string // set for the carousel parent
}

type Result struct {
	RemoteID    string
	Permalink   string
	ContainerID string
	PublishedAt time.Time
	Verified    bool // recovered through the status lookup after a failed publish call
}

type RecentMedia struct {
	ID        string
	Caption   string
	Permalink string
	Timestamp time.Time
}

// IPlatformAPI is the raw remote surface: container creation, status
// polling, publishing and the lookups used for permalinks and verification.
type IPlatformAPI interface {
	CreateContainer(ctx context.Context, accountID, token string, req ContainerRequest) (string, error)
	PollStatus(ctx context.Context, token, containerID string) (ContainerStatus, error)
	Publish(ctx context.Context, accountID, token, containerID string) (string, error)
	Permalink(ctx context.Context, token, mediaID string) (string, error)
	RecentMedia(ctx context.Context, accountID, token string, limit int) ([]RecentMedia, error)
}

// IPublisher turns a Post into a live remote post.
type IPublisher interface {
	PublishPost(ctx context.Context, post Post) (Result, error)
}

type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindRateLimited
	KindPermanent
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindPermanent:
		return "permanent"
	default:
		return "transient"
	}
}

var ErrRateLimited = errors.New("platform rate limit reached")

// PublishError classifies every failure coming from the platform.
type PublishError struct {
	Kind       ErrorKind
	Op         string
	HTTPStatus int
	Code       int
	Subcode    int
	Message    string
	Err        error
}

func (e *PublishError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("%s: %s (%s, status=%d code=%d)", e.Op, msg, e.Kind, e.HTTPStatus, e.Code)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Op, msg, e.Kind)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

func (e *PublishError) Is(target error) bool {
	return target == ErrRateLimited && e.Kind == KindRateLimited
}

func Transient(op string, err error) *PublishError {
	return &PublishError{Kind: KindTransient, Op: op, Err: err}
}

func Permanent(op, message string) *PublishError {
	return &PublishError{Kind: KindPermanent, Op: op, Message: message}
}

// KindOf returns the classification of err. Unclassified errors are
// treated as transient.
func KindOf(err error) ErrorKind {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

func IsPermanent(err error) bool {
	return KindOf(err) == KindPermanent
}
