package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetforge/conductor/internal/comms"
	"github.com/fleetforge/conductor/internal/obslog"
	"github.com/fleetforge/conductor/internal/retry"
	"github.com/fleetforge/conductor/pkg/model"
)

func newTestChannel(t *testing.T, handler http.HandlerFunc) *comms.Channel {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	endpoint := model.ModelEndpoint{Provider: "generic", URL: server.URL}
	pool := comms.NewPool(2 * time.Second)
	cfg := comms.DefaultConfig()
	cfg.Retry = retry.Config{MaxAttempts: 1}
	return comms.NewChannel(endpoint, pool, cfg, nil)
}

func TestFailoverSenderFallsBackToSecondChannel(t *testing.T) {
	failing := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	working := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	})

	f := NewFailoverSender([]*comms.Channel{failing, working}, FailoverConfig{Retry: retry.Config{MaxAttempts: 1}}, obslog.Default, "developer-1")

	_, resp, err := f.Send(context.Background(), comms.Request{Model: "test-model"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "ok" {
		t.Fatalf("expected the fallback channel's response, got %q", resp.Text)
	}
}

func TestFailoverSenderExhaustsAllChannels(t *testing.T) {
	down := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }
	a := newTestChannel(t, down)
	b := newTestChannel(t, down)

	f := NewFailoverSender([]*comms.Channel{a, b}, FailoverConfig{Retry: retry.Config{MaxAttempts: 1}}, obslog.Default, "developer-1")

	if _, _, err := f.Send(context.Background(), comms.Request{Model: "test-model"}); err == nil {
		t.Fatal("expected an error once every channel has failed")
	}
}
