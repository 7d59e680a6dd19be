package upstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deepuanant/tickrelay/internal/model"
)

// Error kinds for the connect path. Wrapped into returned errors so callers
// can branch with errors.Is.
var (
	// ErrAuth means the broker rejected the credentials. Not retryable.
	ErrAuth = errors.New("upstream: authentication failed")

	// ErrNetwork means the socket could not be established or timed out.
	ErrNetwork = errors.New("upstream: network error")

	// ErrProtocol means the broker answered with something unexpected.
	ErrProtocol = errors.New("upstream: protocol error")

	// ErrClosed is returned by commands issued after Close.
	ErrClosed = errors.New("upstream: connection closed")
)

// Events are the callbacks a dialer wires into a new connection.
// They fire on the ticker's I/O goroutine; handlers must be safe to call
// from there and must not block for long.
type Events struct {
	// OnTicks delivers a batch of normalized ticks.
	OnTicks func(ticks []model.Tick)

	// OnClose fires when the broker closes the socket.
	OnClose func(code int, reason string)

	// OnError fires for asynchronous connection errors.
	OnError func(err error)
}

// Conn is a live upstream streaming connection.
//
// Commands are idempotent from the consumer's perspective: re-subscribing an
// already-subscribed token is a no-op on the broker side.
type Conn interface {
	// Subscribe adds tokens to the server-side subscription set.
	Subscribe(tokens []uint32) error

	// Unsubscribe removes tokens from the server-side subscription set.
	Unsubscribe(tokens []uint32) error

	// SetModeFull requests full depth (OHLC present) for the tokens.
	SetModeFull(tokens []uint32) error

	// Close tears the connection down. Idempotent.
	Close()
}

// Dialer establishes authenticated connections to the broker.
type Dialer interface {
	// Dial connects and blocks until the broker confirms the session or the
	// context / connect timeout expires. Events are wired before the first
	// frame can arrive.
	Dial(ctx context.Context, events Events) (Conn, error)
}

// DefaultConnectTimeout bounds how long Dial waits for the connected event.
const DefaultConnectTimeout = 30 * time.Second

// classifyConnectErr maps a raw ticker error to the error taxonomy.
func classifyConnectErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "403"),
		strings.Contains(msg, "401"),
		strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "token"):
		return fmt.Errorf("%w: %s", ErrAuth, err)
	case strings.Contains(msg, "handshake"),
		strings.Contains(msg, "bad status"),
		strings.Contains(msg, "unexpected"):
		return fmt.Errorf("%w: %s", ErrProtocol, err)
	default:
		return fmt.Errorf("%w: %s", ErrNetwork, err)
	}
}

// awaitConnect waits on the dialer's connected/error channels.
func awaitConnect(ctx context.Context, timeout time.Duration, connected <-chan struct{}, errCh <-chan error) error {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-connected:
		return nil
	case err := <-errCh:
		return classifyConnectErr(err)
	case <-timer.C:
		return fmt.Errorf("%w: connect timeout after %s", ErrNetwork, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
