// Package correlate matches responses to in-flight requests. Requests
// register by id before sending; any channel receiver that decodes a
// Response hands it to the table, which wakes the waiting caller.
package correlate

import (
	"errors"
	"sync"

	"github.com/permissionlessweb/ergors/pkg/wire"
)

// Errors reported by Register.
var (
	// ErrDuplicateRequest indicates the request id is already pending.
	ErrDuplicateRequest = errors.New("correlate: request id already pending")
	// ErrClosed indicates the table has shut down.
	ErrClosed = errors.New("correlate: table closed")
)

// Table tracks in-flight requests by id. It is safe for concurrent use.
type Table struct {
	mu      sync.Mutex
	pending map[string]chan *wire.Response
	closed  bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{pending: make(map[string]chan *wire.Response)}
}

// Register adds a pending entry for requestID and returns the channel
// its response will arrive on. The channel is closed without a value
// when the table shuts down first. Callers must pair every Register
// with either a received response or a Drop.
func (t *Table) Register(requestID string) (<-chan *wire.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}
	if _, exists := t.pending[requestID]; exists {
		return nil, ErrDuplicateRequest
	}

	// Buffered so Complete never blocks on a slow caller.
	ch := make(chan *wire.Response, 1)
	t.pending[requestID] = ch
	return ch, nil
}

// Complete delivers resp to the caller waiting on its request id and
// removes the entry. It reports whether a waiter existed; an unmatched
// response is not an error, late responses after timeout land here.
func (t *Table) Complete(resp *wire.Response) bool {
	if resp == nil {
		return false
	}

	t.mu.Lock()
	ch, ok := t.pending[resp.RequestID]
	if ok {
		delete(t.pending, resp.RequestID)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	ch <- resp
	close(ch)
	return true
}

// Drop removes a pending entry without delivering a response. Used on
// request timeout and send failure.
func (t *Table) Drop(requestID string) {
	t.mu.Lock()
	ch, ok := t.pending[requestID]
	if ok {
		delete(t.pending, requestID)
	}
	t.mu.Unlock()

	if ok {
		close(ch)
	}
}

// Len returns the number of in-flight requests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Close wakes every waiter with a closed channel and rejects further
// registrations. Idempotent.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	for id, ch := range t.pending {
		delete(t.pending, id)
		close(ch)
	}
}
