package schedule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// SlotChange is the set of engine-owned fields for one slot. When
// ExpectStatus is set the change only applies if the stored slot currently
// has that status; this is how a run claims a slot.
type SlotChange struct {
	SlotID        string
	Status        SlotStatus
	AttemptCount  int
	LastError     string
	PublishResult *PublishResult
	ExpectStatus  SlotStatus
}

// PatchResult reports what ApplyChanges did with each change.
type PatchResult struct {
	Raw      []byte
	Applied  []string // slot ids whose stored fields changed
	Rejected []string // ExpectStatus did not match
	Missing  []string // slot no longer present in the document
}

func (r PatchResult) Changed() bool {
	return len(r.Applied) > 0
}

// ApplyChanges patches the owned fields of the listed slots in raw and leaves
// every other byte of the document alone. lastUpdated is only bumped when at
// least one slot actually changed, so re-applying already persisted changes
// is a no-op.
func ApplyChanges(raw []byte, changes []SlotChange, now time.Time) (PatchResult, error) {
	if !gjson.ValidBytes(raw) {
		return PatchResult{}, fmt.Errorf("schedule document is not valid JSON")
	}

	index := make(map[string]int)
	for i, slot := range gjson.GetBytes(raw, "scheduleSlots").Array() {
		if id := slot.Get("id").String(); id != "" {
			if _, dup := index[id]; !dup {
				index[id] = i
			}
		}
	}

	res := PatchResult{Raw: raw}
	out := raw
	for _, ch := range changes {
		i, ok := index[ch.SlotID]
		if !ok {
			res.Missing = append(res.Missing, ch.SlotID)
			continue
		}
		base := "scheduleSlots." + strconv.Itoa(i)
		current := gjson.GetBytes(out, base)

		if ch.ExpectStatus != "" && current.Get("status").String() != string(ch.ExpectStatus) {
			res.Rejected = append(res.Rejected, ch.SlotID)
			continue
		}

		patched, changed, err := patchSlot(out, base, current, ch)
		if err != nil {
			return PatchResult{}, fmt.Errorf("patch slot %s: %w", ch.SlotID, err)
		}
		if changed {
			out = patched
			res.Applied = append(res.Applied, ch.SlotID)
		}
	}

	if len(res.Applied) > 0 {
		var err error
		out, err = sjson.SetBytes(out, "lastUpdated", now.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return PatchResult{}, fmt.Errorf("set lastUpdated: %w", err)
		}
	}
	res.Raw = out
	return res, nil
}

func patchSlot(raw []byte, base string, current gjson.Result, ch SlotChange) ([]byte, bool, error) {
	var (
		err     error
		changed bool
	)

	if current.Get("status").String() != string(ch.Status) {
		if raw, err = sjson.SetBytes(raw, base+".status", string(ch.Status)); err != nil {
			return nil, false, err
		}
		changed = true
	}

	if ac := current.Get("attemptCount"); !ac.Exists() || int(ac.Int()) != ch.AttemptCount {
		if raw, err = sjson.SetBytes(raw, base+".attemptCount", ch.AttemptCount); err != nil {
			return nil, false, err
		}
		changed = true
	}

	le := current.Get("lastError")
	switch {
	case ch.LastError == "" && le.Exists():
		if raw, err = sjson.DeleteBytes(raw, base+".lastError"); err != nil {
			return nil, false, err
		}
		changed = true
	case ch.LastError != "" && le.String() != ch.LastError:
		if raw, err = sjson.SetBytes(raw, base+".lastError", ch.LastError); err != nil {
			return nil, false, err
		}
		changed = true
	}

	pr := current.Get("publishResult")
	switch {
	case ch.PublishResult == nil && pr.Exists():
		if raw, err = sjson.DeleteBytes(raw, base+".publishResult"); err != nil {
			return nil, false, err
		}
		changed = true
	case ch.PublishResult != nil && !samePublishResult(pr, *ch.PublishResult):
		b, mErr := json.Marshal(ch.PublishResult)
		if mErr != nil {
			return nil, false, mErr
		}
		if raw, err = sjson.SetRawBytes(raw, base+".publishResult", b); err != nil {
			return nil, false, err
		}
		changed = true
	}

	return raw, changed, nil
}

func samePublishResult(stored gjson.Result, want PublishResult) bool {
	if !stored.Exists() || !stored.IsObject() {
		return false
	}
	var got PublishResult
	if err := json.Unmarshal([]byte(stored.Raw), &got); err != nil {
		return false
	}
	return got.RemoteID == want.RemoteID &&
		got.Permalink == want.Permalink &&
		got.PublishedAt.Equal(want.PublishedAt)
}
