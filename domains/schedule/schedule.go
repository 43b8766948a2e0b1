package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("schedule document not found")
	ErrConflict          = errors.New("schedule document was modified concurrently")
	ErrInvalidTransition = errors.New("invalid slot status transition")
	ErrSlotNotFound      = errors.New("schedule slot not found")
)

// SlotStatus is the closed set of states a schedule slot can be in.
type SlotStatus string

const (
	StatusPending    SlotStatus = "pending"
	StatusInProgress SlotStatus = "in_progress"
	StatusPublished  SlotStatus = "published"
	StatusFailed     SlotStatus = "failed"
)

// MaxAttempts is the retry ceiling after which a slot is forced to failed.
const MaxAttempts = 3

var transitions = map[SlotStatus][]SlotStatus{
	StatusPending:    {StatusInProgress, StatusFailed},
	StatusInProgress: {StatusPublished, StatusFailed, StatusPending},
	StatusFailed:     {StatusPending},
}

func (s SlotStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusPublished, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the engine will never move the slot again.
func (s SlotStatus) Terminal() bool {
	return s == StatusPublished || s == StatusFailed
}

// CanTransitionTo reports whether next is a legal successor of s.
// in_progress -> pending is only used to release a claim after a rate limit;
// failed -> pending is an operator reset.
func (s SlotStatus) CanTransitionTo(next SlotStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func ParseSlotStatus(v string) (SlotStatus, error) {
	s := SlotStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown slot status %q", v)
	}
	return s, nil
}

// Document is the typed view of the schedule document. Only the fields the
// engine reads are modelled; writes go through ApplyChanges on the raw bytes
// so everything else survives verbatim.
type Document struct {
	Version           string            `json:"version"`
	LastUpdated       *time.Time        `json:"lastUpdated,omitempty"`
	AccountConnection AccountConnection `json:"accountConnection"`
	Drafts            []Draft           `json:"drafts"`
	ScheduleSlots     []Slot            `json:"scheduleSlots"`
	Templates         json.RawMessage   `json:"templates,omitempty"`
	Settings          json.RawMessage   `json:"settings,omitempty"`
}

type AccountConnection struct {
	Connected   bool       `json:"connected"`
	AccountID   string     `json:"accountId"`
	AccessToken string     `json:"accessToken"`
	TokenExpiry *time.Time `json:"tokenExpiry,omitempty"`
}

type Media struct {
	URL  string `json:"url"`
	Type string `json:"type,omitempty"` // image | video
}

type Draft struct {
	ID       string   `json:"id"`
	Media    []Media  `json:"media"`
	Caption  string   `json:"caption"`
	Hashtags []string `json:"hashtags,omitempty"`
}

type PublishResult struct {
	RemoteID    string    `json:"remoteId"`
	Permalink   string    `json:"permalink,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
}

type Slot struct {
	ID            string         `json:"id"`
	DraftID       string         `json:"draftId"`
	ScheduledAt   time.Time      `json:"scheduledAt"`
	Status        SlotStatus     `json:"status"`
	AttemptCount  int            `json:"attemptCount"`
	LastError     string         `json:"lastError,omitempty"`
	PublishResult *PublishResult `json:"publishResult,omitempty"`
}

// Transition moves the slot to next, rejecting illegal moves.
func (s *Slot) Transition(next SlotStatus) error {
	if !s.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: slot %s %s -> %s", ErrInvalidTransition, s.ID, s.Status, next)
	}
	s.Status = next
	return nil
}

// Change captures the owned fields of the slot as a SlotChange.
func (s Slot) Change() SlotChange {
	return SlotChange{
		SlotID:        s.ID,
		Status:        s.Status,
		AttemptCount:  s.AttemptCount,
		LastError:     s.LastError,
		PublishResult: s.PublishResult,
	}
}

// FullCaption is the caption as posted: the draft caption followed by any
// hashtag not already present in it. Tags may be stored with or without '#'.
func (d Draft) FullCaption() string {
	caption := strings.TrimSpace(d.Caption)
	present := make(map[string]bool)
	for _, word := range strings.Fields(caption) {
		if strings.HasPrefix(word, "#") {
			present[strings.ToLower(word)] = true
		}
	}
	var tags []string
	for _, h := range d.Hashtags {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if !strings.HasPrefix(h, "#") {
			h = "#" + h
		}
		if present[strings.ToLower(h)] {
			continue
		}
		present[strings.ToLower(h)] = true
		tags = append(tags, h)
	}
	if len(tags) == 0 {
		return caption
	}
	if caption == "" {
		return strings.Join(tags, " ")
	}
	return caption + "\n\n" + strings.Join(tags, " ")
}

// HashtagCount counts the hashtags in the posted caption.
func (d Draft) HashtagCount() int {
	n := 0
	for _, word := range strings.Fields(d.FullCaption()) {
		if strings.HasPrefix(word, "#") && len(word) > 1 {
			n++
		}
	}
	return n
}

func (d Document) Draft(id string) (Draft, bool) {
	for _, dr := range d.Drafts {
		if dr.ID == id {
			return dr, true
		}
	}
	return Draft{}, false
}

func (d Document) Slot(id string) (Slot, bool) {
	for _, s := range d.ScheduleSlots {
		if s.ID == id {
			return s, true
		}
	}
	return Slot{}, false
}

// Usable returns a non-empty reason when the account cannot be used to
// publish at now.
func (a AccountConnection) Usable(now time.Time) string {
	switch {
	case !a.Connected:
		return "account not connected"
	case a.AccountID == "" || a.AccessToken == "":
		return "account credentials missing"
	case a.TokenExpiry != nil && !a.TokenExpiry.After(now):
		return "access token expired"
	}
	return ""
}

// Snapshot is one fetched copy of the document together with the revision
// the store reported for it.
type Snapshot struct {
	Raw      []byte
	Doc      Document
	Revision string
}

func Parse(raw []byte, revision string) (Snapshot, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("decode schedule document: %w", err)
	}
	return Snapshot{Raw: raw, Doc: doc, Revision: revision}, nil
}

// IScheduleStore reads and writes the whole schedule document.
// Fetch never caches. Write is a full overwrite guarded by expectedRevision
// (empty means the document must not exist yet) and returns the new revision.
type IScheduleStore interface {
	Fetch(ctx context.Context) (Snapshot, error)
	Write(ctx context.Context, raw []byte, expectedRevision string) (string, error)
}
