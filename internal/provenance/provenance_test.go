package provenance

import (
	"testing"
	"time"
)

func TestIsCompleteRequiresStrictlyLaterAudit(t *testing.T) {
	l := New()
	base := time.Now()

	if !l.IsComplete("a.go") {
		t.Fatal("unedited path should be vacuously complete")
	}

	l.RecordEdit("a.go", "dev-1", base)
	if l.IsComplete("a.go") {
		t.Fatal("edited path with no audit should be incomplete")
	}

	l.RecordAudit("a.go", "aud-1", base.Add(-time.Minute))
	if l.IsComplete("a.go") {
		t.Fatal("audit before the edit should not count")
	}

	l.RecordAudit("a.go", "aud-1", base.Add(time.Minute))
	if !l.IsComplete("a.go") {
		t.Fatal("audit strictly after the edit should complete it")
	}

	l.RecordEdit("a.go", "dev-1", base.Add(2*time.Minute))
	if l.IsComplete("a.go") {
		t.Fatal("a later edit should reopen completeness")
	}
}

func TestIncompleteListsOutstandingPaths(t *testing.T) {
	l := New()
	now := time.Now()
	l.RecordEdit("a.go", "dev-1", now)
	l.RecordEdit("b.go", "dev-1", now)
	l.RecordAudit("b.go", "aud-1", now.Add(time.Second))

	got := l.Incomplete()
	if len(got) != 1 || got[0] != "a.go" {
		t.Fatalf("expected only a.go incomplete, got %v", got)
	}
}
