package comms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fleetforge/conductor/internal/retry"
	"github.com/fleetforge/conductor/pkg/model"
)

func TestChannelSendGenericChatCompletionsShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "hello"}},
			},
		})
	}))
	defer srv.Close()

	endpoint := model.ModelEndpoint{URL: srv.URL, Model: "test-model"}
	cfg := Config{RequestsPerSecond: 100, BurstSize: 100, Retry: retry.Config{MaxAttempts: 1}, Breaker: CircuitBreakerConfig{FailureThreshold: 5, Timeout: time.Second}}
	ch := NewChannel(endpoint, NewPool(5*time.Second), cfg, nil)

	ctx, resp, err := ch.Send(context.Background(), Request{Model: "test-model", Messages: []model.Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "hello" {
		t.Fatalf("expected %q, got %q", "hello", resp.Text)
	}
	if _, ok := CorrelationID(ctx); !ok {
		t.Fatal("expected a correlation ID to be attached to the returned context")
	}
}

func TestChannelSendGenericFunctionCallOutputShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": []map[string]any{
				{"type": "function_call_output", "name": "read_file", "call_id": "call-1", "arguments": map[string]string{"path": "a.go"}},
			},
		})
	}))
	defer srv.Close()

	endpoint := model.ModelEndpoint{URL: srv.URL, Model: "test-model"}
	cfg := DefaultConfig()
	cfg.Retry.MaxAttempts = 1
	ch := NewChannel(endpoint, NewPool(5*time.Second), cfg, nil)

	_, resp, err := ch.Send(context.Background(), Request{Model: "test-model"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "read_file" {
		t.Fatalf("expected one read_file tool call, got %+v", resp.ToolCalls)
	}
}

// TestChannelDoesNotRetryNonTransientFailures confirms a 4xx upstream
// response — not one of the enumerated transient exceptions — fails on the
// first attempt instead of consuming the full retry budget (spec.md §4.3's
// retry policy).
func TestChannelDoesNotRetryNonTransientFailures(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	endpoint := model.ModelEndpoint{URL: srv.URL, Model: "test-model"}
	cfg := Config{RequestsPerSecond: 100, BurstSize: 100, Retry: retry.Config{MaxAttempts: 5, InitialDelay: time.Millisecond}, Breaker: CircuitBreakerConfig{FailureThreshold: 100, Timeout: time.Second}}
	ch := NewChannel(endpoint, NewPool(5*time.Second), cfg, nil)

	if _, _, err := ch.Send(context.Background(), Request{Model: "test-model"}); err == nil {
		t.Fatal("expected an error")
	}
	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Fatalf("expected exactly 1 HTTP call for a non-transient failure, got %d", got)
	}
}
