package transport

import (
	"math/rand"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Default dial retry parameters.
const (
	DefaultDialBackoffBase = 1 * time.Second
	DefaultDialBackoffMax  = 60 * time.Second
)

// Backoff calculates exponential dial backoff delays.
type Backoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// NextDelay calculates the backoff delay for the given attempt number.
// It uses exponential backoff with jitter to prevent thundering herd.
func (b Backoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	// Exponential backoff: baseDelay * 2^attempt
	delay := b.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= b.MaxDelay {
			delay = b.MaxDelay
			break
		}
	}

	if delay > b.MaxDelay {
		delay = b.MaxDelay
	}

	// Add jitter (±10%) to prevent synchronized redials
	jitter := time.Duration(float64(delay) * 0.1 * (2*rand.Float64() - 1))
	delay += jitter

	if delay < 0 {
		delay = b.BaseDelay
	}

	return delay
}

// shouldRetry reports whether another dial attempt is allowed.
// maxAttempts == 0 means unlimited retries.
func shouldRetry(attempts, maxAttempts int) bool {
	if maxAttempts == 0 {
		return true
	}
	return attempts < maxAttempts
}

// dialLoop maintains a session with one configured peer. It dials with
// exponential backoff until a session is established, then waits for
// the session to drop and starts over. It exits when the transport
// shuts down or the attempt limit is reached.
func (t *Transport) dialLoop(pi peer.AddrInfo) {
	defer t.wg.Done()

	if pi.ID == t.host.ID() {
		return
	}

	backoff := Backoff{
		BaseDelay: t.cfg.DialBackoffBase,
		MaxDelay:  t.cfg.DialBackoffMax,
	}
	attempts := 0

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		sess, err := t.Connect(t.ctx, pi)
		if err == nil {
			attempts = 0
			select {
			case <-sess.Done():
			case <-t.ctx.Done():
				return
			}
			// Session dropped. Fall through to redial with fresh
			// backoff.
		} else {
			attempts++
			if !shouldRetry(attempts, t.cfg.MaxDialAttempts) {
				return
			}
		}

		select {
		case <-time.After(backoff.NextDelay(attempts)):
		case <-t.ctx.Done():
			return
		}
	}
}
