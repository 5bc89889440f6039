package comms

import (
	"net/http"
	"sync"
	"time"
)

// Pool hands out a shared *http.Client per upstream host, so repeated
// sends to the same model endpoint reuse connections instead of dialing
// fresh each time (spec.md §4.3, "connection pooling").
type Pool struct {
	mu      sync.Mutex
	clients map[string]*http.Client
	timeout time.Duration
}

// NewPool returns a Pool whose clients time out requests after timeout.
func NewPool(timeout time.Duration) *Pool {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Pool{clients: make(map[string]*http.Client), timeout: timeout}
}

// Client returns the shared client for host, creating one on first use.
func (p *Pool) Client(host string) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[host]; ok {
		return c
	}
	c := &http.Client{
		Timeout: p.timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	p.clients[host] = c
	return c
}
