package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ReplayChannel serves recorded "receive" responses from a prior session's
// trace directory in timestamp order, instead of making live upstream
// calls, keyed by agent name (spec.md §4.3: "serves pre-recorded responses
// ... keyed by agent name"). Writes (trace persistence, event-log appends)
// become no-ops so a replay run never mutates the original recording
// (spec.md §4.1, deterministic replay mode).
type ReplayChannel struct {
	agentID string

	mu        sync.Mutex
	responses [][]byte
	next      int
}

// NewReplayChannel loads every recorded response file under traceDir that
// was written for agentID, in the order NewTrace allocated them (the
// "{agent_name}_{ticks}" naming sorts lexicographically in call order for
// a fixed-width tick counter, and os.ReadDir already returns entries
// sorted by name).
func NewReplayChannel(traceDir, agentID string) (*ReplayChannel, error) {
	entries, err := os.ReadDir(traceDir)
	if err != nil {
		return nil, fmt.Errorf("read trace dir: %w", err)
	}

	prefix := agentID + "_"
	var responses [][]byte
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if !strings.HasSuffix(name, ".response.json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(traceDir, name))
		if err != nil {
			return nil, fmt.Errorf("read trace file %s: %w", name, err)
		}
		responses = append(responses, data)
	}
	return &ReplayChannel{agentID: agentID, responses: responses}, nil
}

// Next returns the next recorded response body in order. It returns an
// error once the recording is exhausted: a replay run must issue exactly
// the same number of receive() calls for this agent as the original run,
// in the same order, or it has diverged.
func (r *ReplayChannel) Next() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.next >= len(r.responses) {
		return nil, fmt.Errorf("replay exhausted for agent %q: session made %d receive() calls, but this run requested one more", r.agentID, len(r.responses))
	}
	resp := r.responses[r.next]
	r.next++
	return resp, nil
}

// Remaining reports how many recorded responses have not yet been served.
func (r *ReplayChannel) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.responses) - r.next
}

// Decode unmarshals the next recorded response into v.
func (r *ReplayChannel) Decode(v any) error {
	raw, err := r.Next()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
