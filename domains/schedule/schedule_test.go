package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to SlotStatus
		ok       bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusInProgress, StatusPublished, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusPending, true},
		{StatusFailed, StatusPending, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusPublished, false},
		{StatusPublished, StatusPending, false},
		{StatusPublished, StatusInProgress, false},
		{StatusFailed, StatusPublished, false},
	}
	for _, c := range cases {
		assert.Equalf(t, c.ok, c.from.CanTransitionTo(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestSlot_TransitionRejectsIllegalMove(t *testing.T) {
	s := Slot{ID: "s1", Status: StatusPublished}
	err := s.Transition(StatusInProgress)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusPublished, s.Status)

	s = Slot{ID: "s2", Status: StatusPending}
	require.NoError(t, s.Transition(StatusInProgress))
	assert.Equal(t, StatusInProgress, s.Status)
}

func TestParseSlotStatus(t *testing.T) {
	s, err := ParseSlotStatus("in_progress")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, s)

	_, err = ParseSlotStatus("scheduled")
	assert.Error(t, err)
	assert.False(t, SlotStatus("scheduled").Valid())
}

func TestAccountConnection_Usable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Minute)

	assert.Equal(t, "account not connected", AccountConnection{}.Usable(now))
	assert.Equal(t, "account credentials missing", AccountConnection{Connected: true, AccountID: "1"}.Usable(now))
	assert.Equal(t, "access token expired", AccountConnection{Connected: true, AccountID: "1", AccessToken: "t", TokenExpiry: &past}.Usable(now))
	assert.Empty(t, AccountConnection{Connected: true, AccountID: "1", AccessToken: "t", TokenExpiry: &future}.Usable(now))
	assert.Empty(t, AccountConnection{Connected: true, AccountID: "1", AccessToken: "t"}.Usable(now))
}

func TestParse_ReadsTypedView(t *testing.T) {
	raw := []byte(`{
		"version": "2",
		"accountConnection": {"connected": true, "accountId": "17841", "accessToken": "tok"},
		"drafts": [{"id": "d1", "caption": "hello", "media": [{"url": "https://cdn.test/a.jpg"}], "hashtags": ["x"]}],
		"scheduleSlots": [{"id": "s1", "draftId": "d1", "scheduledAt": "2026-03-01T10:00:00Z", "status": "pending", "attemptCount": 0}],
		"templates": [{"id": "t1"}],
		"settings": {"tz": "UTC"}
	}`)

	snap, err := Parse(raw, "rev-1")
	require.NoError(t, err)
	assert.Equal(t, "rev-1", snap.Revision)
	assert.Equal(t, "2", snap.Doc.Version)

	d, ok := snap.Doc.Draft("d1")
	require.True(t, ok)
	assert.Equal(t, "hello", d.Caption)
	require.Len(t, d.Media, 1)

	s, ok := snap.Doc.Slot("s1")
	require.True(t, ok)
	assert.Equal(t, StatusPending, s.Status)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), s.ScheduledAt.UTC())

	_, ok = snap.Doc.Slot("missing")
	assert.False(t, ok)
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`{"scheduleSlots": [`), "")
	assert.Error(t, err)
}

func TestDraft_FullCaption(t *testing.T) {
	d := Draft{Caption: "Spring drop #new ", Hashtags: []string{"new", "#Sale", " ", "sale", "shop"}}
	assert.Equal(t, "Spring drop #new\n\n#Sale #shop", d.FullCaption())
	assert.Equal(t, 3, d.HashtagCount())

	assert.Equal(t, "#a", Draft{Hashtags: []string{"a"}}.FullCaption())
	assert.Equal(t, "plain", Draft{Caption: "plain"}.FullCaption())
}
