package usecase

import (
	"sort"
	"time"

	domainSchedule "github.com/AzielCF/az-postsync/domains/schedule"
)

// SelectDue returns the pending slots whose scheduled time has arrived,
// oldest first. There is no lower bound on scheduledAt: a slot missed for
// days is still due. force ignores the time check. A non-empty slotIDs
// restricts the selection to those slots.
func SelectDue(doc domainSchedule.Document, now time.Time, force bool, slotIDs []string) []domainSchedule.Slot {
	var only map[string]bool
	if len(slotIDs) > 0 {
		only = make(map[string]bool, len(slotIDs))
		for _, id := range slotIDs {
			only[id] = true
		}
	}

	due := make([]domainSchedule.Slot, 0)
	seen := make(map[string]bool)
	for _, slot := range doc.ScheduleSlots {
		if slot.ID == "" || seen[slot.ID] {
			continue
		}
		seen[slot.ID] = true
		if slot.Status != domainSchedule.StatusPending {
			continue
		}
		if only != nil && !only[slot.ID] {
			continue
		}
		if !force && slot.ScheduledAt.After(now) {
			continue
		}
		due = append(due, slot)
	}

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})
	return due
}

// splitStale separates slots scheduled more than staleAfter before now.
// A zero staleAfter disables the policy.
func splitStale(due []domainSchedule.Slot, now time.Time, staleAfter time.Duration) (fresh, stale []domainSchedule.Slot) {
	if staleAfter <= 0 {
		return due, nil
	}
	for _, slot := range due {
		if now.Sub(slot.ScheduledAt) > staleAfter {
			stale = append(stale, slot)
			continue
		}
		fresh = append(fresh, slot)
	}
	return fresh, stale
}

func oldestScheduledAt(slots []domainSchedule.Slot) *time.Time {
	var oldest *time.Time
	for i := range slots {
		at := slots[i].ScheduledAt
		if oldest == nil || at.Before(*oldest) {
			oldest = &at
		}
	}
	return oldest
}
