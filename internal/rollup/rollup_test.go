package rollup

import (
	"testing"

	"planforge/internal/domain"
)

func TestFromChildren(t *testing.T) {
	cases := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"empty", nil, domain.StatusPlanned},
		{"in_progress wins", []string{"done", "in_progress", "blocked"}, domain.StatusInProgress},
		{"blocked next", []string{"done", "blocked", "planned"}, domain.StatusBlocked},
		{"all done", []string{"done", "done"}, domain.StatusDone},
		{"cancelled counts as terminal", []string{"done", "cancelled"}, domain.StatusDone},
		{"all cancelled", []string{"cancelled"}, domain.StatusDone},
		{"otherwise planned", []string{"planned", "done"}, domain.StatusPlanned},
	}
	for _, tc := range cases {
		if got := FromChildren(tc.statuses); got != tc.want {
			t.Errorf("%s: FromChildren(%v) = %s, want %s", tc.name, tc.statuses, got, tc.want)
		}
	}
}

type fakeDoc map[string]string

func (d fakeDoc) String(key string) string { return d[key] }
func (d fakeDoc) Set(key string, value any) {
	if s, ok := value.(string); ok {
		d[key] = s
	}
}

func TestApplyStampsTimestamps(t *testing.T) {
	d := fakeDoc{"status": "planned"}
	tr := Apply(d, domain.StatusInProgress, "2026-03-01T12:00:00Z")
	if !tr.Changed || tr.From != "planned" || tr.To != "in_progress" {
		t.Fatalf("transition = %+v", tr)
	}
	if d["started_at"] != "2026-03-01T12:00:00Z" {
		t.Fatalf("started_at = %q", d["started_at"])
	}

	// started_at is only stamped once
	tr = Apply(d, domain.StatusBlocked, "2026-03-02T12:00:00Z")
	if !tr.Changed {
		t.Fatal("expected change")
	}
	tr = Apply(d, domain.StatusInProgress, "2026-03-03T12:00:00Z")
	if d["started_at"] != "2026-03-01T12:00:00Z" {
		t.Fatalf("started_at restamped to %q", d["started_at"])
	}

	tr = Apply(d, domain.StatusDone, "2026-03-04T12:00:00Z")
	if d["completed_at"] != "2026-03-04T12:00:00Z" {
		t.Fatalf("completed_at = %q", d["completed_at"])
	}

	// leaving done clears the completion stamp
	tr = Apply(d, domain.StatusInProgress, "2026-03-05T12:00:00Z")
	if d["completed_at"] != "" {
		t.Fatalf("completed_at not cleared: %q", d["completed_at"])
	}

	// no-op transition changes nothing
	tr = Apply(d, domain.StatusInProgress, "2026-03-06T12:00:00Z")
	if tr.Changed {
		t.Fatalf("no-op reported change: %+v", tr)
	}
	if d["updated_at"] != "2026-03-05T12:00:00Z" {
		t.Fatalf("updated_at moved on a no-op: %q", d["updated_at"])
	}
}
