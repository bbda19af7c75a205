package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/garden-core/internal/payload"
)

// Correlator matches asynchronous settings/state responses to waiting
// settings-read callers.
//
// At most one pending request exists per device at any instant.
// Registering a new request while one is outstanding replaces it; the
// orphaned waiter runs out its timeout. The message-router side
// (Complete) never blocks: completions are fire-and-forget signals into
// a buffered channel.
//
// All methods are safe for concurrent use.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*Pending
}

// Pending is one outstanding settings-read completion handle.
type Pending struct {
	mac string
	ch  chan *payload.Settings
}

// NewCorrelator creates an empty correlator.
func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[string]*Pending)}
}

// Register creates a pending completion for a device, replacing any
// existing one. Call Register before publishing the get request so a
// fast response cannot arrive ahead of the registration.
//
// Parameters:
//   - mac: Normalised device identity
//
// Returns:
//   - *Pending: Handle to pass to Await
func (c *Correlator) Register(mac string) *Pending {
	p := &Pending{
		mac: mac,
		ch:  make(chan *payload.Settings, 1),
	}

	c.mu.Lock()
	c.pending[mac] = p
	c.mu.Unlock()

	return p
}

// Await blocks until the pending request completes, the timeout
// elapses, or the context is cancelled. The pending entry is always
// removed before Await returns.
//
// Parameters:
//   - ctx: Caller's context (HTTP request scope)
//   - p: Handle from Register
//   - timeout: Deadline for the device to respond
//
// Returns:
//   - *payload.Settings: The snapshot from the device
//   - error: ErrSettingsTimeout on deadline, or the context error
func (c *Correlator) Await(ctx context.Context, p *Pending, timeout time.Duration) (*payload.Settings, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case snapshot := <-p.ch:
		return snapshot, nil
	case <-timer.C:
		c.evictIfCurrent(p)
		return nil, ErrSettingsTimeout
	case <-ctx.Done():
		c.evictIfCurrent(p)
		return nil, ctx.Err()
	}
}

// Complete resolves the pending request for a device, waking exactly
// one waiter. Unsolicited or late completions are discarded.
//
// Parameters:
//   - mac: Normalised device identity
//   - snapshot: Parsed settings/state payload
//
// Returns:
//   - bool: true if a waiter was fulfilled
func (c *Correlator) Complete(mac string, snapshot *payload.Settings) bool {
	c.mu.Lock()
	p, ok := c.pending[mac]
	if ok {
		delete(c.pending, mac)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}

	// Buffered channel; the send cannot block even if the waiter has
	// already given up.
	select {
	case p.ch <- snapshot:
	default:
	}
	return true
}

// Evict drops any pending request for a device. Called on ownership
// transfer so a response addressed to the previous owner's request
// cannot complete a stale waiter.
func (c *Correlator) Evict(mac string) {
	c.mu.Lock()
	delete(c.pending, mac)
	c.mu.Unlock()
}

// PendingCount returns the number of outstanding requests.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// evictIfCurrent removes the entry only if p is still the registered
// pending request. A replacement registered after p must survive p's
// timeout.
func (c *Correlator) evictIfCurrent(p *Pending) {
	c.mu.Lock()
	if current, ok := c.pending[p.mac]; ok && current == p {
		delete(c.pending, p.mac)
	}
	c.mu.Unlock()
}
