package main

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLatestTraceDirSkipsExcludedAndPicksNewest confirms latest_session
// picks the lexicographically greatest session directory name (spec.md
// §4.1), not the one with the latest filesystem mtime. The older directory
// is deliberately given a newer mtime than the lexicographically newer one
// to prove mtime plays no part in the decision.
func TestLatestTraceDirSkipsExcludedAndPicksNewest(t *testing.T) {
	root := t.TempDir()
	older := filepath.Join(root, "20260101_000000000")
	newer := filepath.Join(root, "20260201_000000000")
	excluded := filepath.Join(root, "20260301_000000000")

	for _, dir := range []string{older, newer, excluded} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	got, err := latestTraceDir(root, "20260301_000000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(newer, "trace")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestLatestTraceDirErrorsWhenNoneExist(t *testing.T) {
	root := t.TempDir()
	if _, err := latestTraceDir(root, "nothing-here"); err == nil {
		t.Fatal("expected an error when no prior session exists")
	}
}
