// Package rollup derives parent statuses from children. The rules are pure
// and ordered; applying a transition is the only part that touches
// timestamps.
package rollup

import "planforge/internal/domain"

// FromChildren computes the parent status for a set of child statuses:
// any in_progress wins, then any blocked, then all-terminal means done,
// otherwise planned. An empty set is planned, never done.
func FromChildren(statuses []string) string {
	if len(statuses) == 0 {
		return domain.StatusPlanned
	}
	anyBlocked := false
	allTerminal := true
	for _, s := range statuses {
		switch s {
		case domain.StatusInProgress:
			return domain.StatusInProgress
		case domain.StatusBlocked:
			anyBlocked = true
		}
		if !domain.SatisfiesDependency(s) {
			allTerminal = false
		}
	}
	if anyBlocked {
		return domain.StatusBlocked
	}
	if allTerminal {
		return domain.StatusDone
	}
	return domain.StatusPlanned
}

// Transition is the result of applying a rollup to an entity.
type Transition struct {
	From    string
	To      string
	Changed bool
}

// Apply writes the new status into the document and maintains the
// started_at/completed_at stamps: started_at is set on first entry to
// in_progress, completed_at is set on done and cleared when leaving done.
type Doc interface {
	String(key string) string
	Set(key string, value any)
}

func Apply(fm Doc, newStatus, ts string) Transition {
	old := fm.String("status")
	tr := Transition{From: old, To: newStatus, Changed: old != newStatus}
	if !tr.Changed {
		return tr
	}
	fm.Set("status", newStatus)
	fm.Set("updated_at", ts)
	if newStatus == domain.StatusInProgress && fm.String("started_at") == "" {
		fm.Set("started_at", ts)
	}
	if newStatus == domain.StatusDone {
		fm.Set("completed_at", ts)
	} else if old == domain.StatusDone && fm.String("completed_at") != "" {
		fm.Set("completed_at", "")
	}
	return tr
}
