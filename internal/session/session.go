// Package session manages a query's on-disk working area: the append-only
// event log, per-query request/response trace files, and deterministic
// replay (spec.md §4.1). The storage medium is the flat filesystem layout
// the spec requires, in place of the teacher's pluggable DB-backed Store.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fleetforge/conductor/pkg/model"
)

// Session owns one query's directory under a shared root: the event log,
// trace files, and a monotonically increasing sequence counter.
type Session struct {
	ID       string
	Dir      string
	TraceDir string

	mu      sync.Mutex
	logFile *os.File
	seq     int64

	traceCounter atomic.Int64
}

// sessionIDMu and lastSessionID guarantee session IDs minted by this
// process are strictly increasing even when two sessions start within the
// same millisecond, so latest_session's lexicographic-greatest-subdirectory
// selection (spec.md §4.1) never has to break a tie.
var (
	sessionIDMu   sync.Mutex
	lastSessionID string
)

// newSessionID mints a monotonically increasing, lexicographically
// sortable timestamp ID in the form spec.md §3 names:
// YYYYMMDD_HHMMSSmmm.
func newSessionID() string {
	sessionIDMu.Lock()
	defer sessionIDMu.Unlock()

	id := formatSessionID(time.Now())
	for id <= lastSessionID {
		time.Sleep(time.Millisecond)
		id = formatSessionID(time.Now())
	}
	lastSessionID = id
	return id
}

func formatSessionID(t time.Time) string {
	return t.Format("20060102_150405") + fmt.Sprintf("%03d", t.Nanosecond()/1e6)
}

// New creates a fresh session directory under root (shared_dir/<id>/),
// with an "events.jsonl" log and a "trace/" subdirectory for per-request
// request/response files. id is a monotonically increasing timestamp
// (spec.md §3) rather than a random identifier, so latest_session can
// select the newest session by name alone.
func New(root string) (*Session, error) {
	id := newSessionID()
	dir := filepath.Join(root, id)
	traceDir := filepath.Join(dir, "trace")
	if err := os.MkdirAll(traceDir, 0o755); err != nil {
		return nil, &model.FilesystemError{Path: dir, Err: err}
	}

	logPath := filepath.Join(dir, "events.jsonl")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &model.FilesystemError{Path: logPath, Err: err}
	}

	return &Session{ID: id, Dir: dir, TraceDir: traceDir, logFile: f}, nil
}

// Append writes one event to the session's event log, filling in Seq and
// Timestamp. It is safe for concurrent use.
func (s *Session) Append(kind, agentID string, payload any) (model.Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return model.Event{}, fmt.Errorf("marshal event payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	ev := model.Event{
		Seq:       s.seq,
		Timestamp: time.Now(),
		Kind:      kind,
		AgentID:   agentID,
		Payload:   raw,
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return model.Event{}, fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')
	if _, err := s.logFile.Write(line); err != nil {
		return model.Event{}, &model.FilesystemError{Path: s.logFile.Name(), Err: err}
	}
	return ev, nil
}

// Close flushes and closes the event log.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logFile.Close()
}

// TracePair is one request/response capture for a single receive() call.
type TracePair struct {
	AgentID       string
	CorrelationID string
	RequestPath   string
	ResponsePath  string
}

// NewTrace allocates a new, uniquely named request/response trace pair,
// named "{agent_name}_{ticks}" per spec.md §3 so a replay run can filter
// and order one agent's recorded responses independently of every other
// agent sharing the session. ticks is a session-wide monotonic counter, so
// one agent's own files still sort in call order even though the counter
// is shared across agents.
func (s *Session) NewTrace(agentID, correlationID string) TracePair {
	n := s.traceCounter.Add(1)
	base := fmt.Sprintf("%s_%06d", agentID, n)
	return TracePair{
		AgentID:       agentID,
		CorrelationID: correlationID,
		RequestPath:   filepath.Join(s.TraceDir, base+".request.json"),
		ResponsePath:  filepath.Join(s.TraceDir, base+".response.json"),
	}
}

// WriteTrace persists the request and response bodies for a TracePair.
func (s *Session) WriteTrace(tp TracePair, request, response []byte) error {
	if err := os.WriteFile(tp.RequestPath, request, 0o644); err != nil {
		return &model.FilesystemError{Path: tp.RequestPath, Err: err}
	}
	if response != nil {
		if err := os.WriteFile(tp.ResponsePath, response, 0o644); err != nil {
			return &model.FilesystemError{Path: tp.ResponsePath, Err: err}
		}
	}
	return nil
}

// Events reads back every event in the session's log, in sequence order.
// Used both for post-hoc inspection and to drive replay mode.
func Events(dir string) ([]model.Event, error) {
	logPath := filepath.Join(dir, "events.jsonl")
	f, err := os.Open(logPath)
	if err != nil {
		return nil, &model.FilesystemError{Path: logPath, Err: err}
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	var out []model.Event
	for dec.More() {
		var ev model.Event
		if err := dec.Decode(&ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}
