package relayclient

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultBaseDelay = 1000 * time.Millisecond
	DefaultMaxDelay  = 10000 * time.Millisecond
)

// Backoff grows linearly with the attempt count and is capped:
// delay = min(Base * attempt, Max). Not safe for concurrent use.
type Backoff struct {
	Base    time.Duration
	Max     time.Duration
	attempt int
}

func NewBackoff() *Backoff {
	return &Backoff{Base: DefaultBaseDelay, Max: DefaultMaxDelay}
}

// Next counts one more attempt and returns the delay before it.
func (b *Backoff) Next() time.Duration {
	b.attempt++
	d := b.Base * time.Duration(b.attempt)
	if d > b.Max {
		d = b.Max
	}
	return d
}

// Reset is called after a successful connect.
func (b *Backoff) Reset() {
	b.attempt = 0
}

func (b *Backoff) Attempt() int {
	return b.attempt
}

// ShouldReconnect reports whether a connection that ended with err should
// be retried. Only a normal closure (1000) is final.
func ShouldReconnect(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code != websocket.CloseNormalClosure
	}
	return true
}
