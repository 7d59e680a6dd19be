package upstream

import (
	"context"
	"sync"
	"time"

	gokiteticker "github.com/nsvirk/gokiteticker"

	"github.com/deepuanant/tickrelay/internal/model"
)

// EnctokenDialer dials the Kite ticker with browser-session credentials
// (user_id + enctoken), for accounts without a Kite Connect app.
type EnctokenDialer struct {
	UserID         string
	Enctoken       string
	ConnectTimeout time.Duration
}

// Dial implements Dialer.
func (d *EnctokenDialer) Dial(ctx context.Context, events Events) (Conn, error) {
	t := gokiteticker.New(d.UserID, d.Enctoken)
	t.SetAutoReconnect(false)

	c := &enctokenConn{ticker: t}
	connected := make(chan struct{})
	errCh := make(chan error, 1)

	var once sync.Once
	t.OnConnect(func() {
		once.Do(func() { close(connected) })
	})
	t.OnError(func(err error) {
		select {
		case <-connected:
			if events.OnError != nil {
				events.OnError(err)
			}
		default:
			select {
			case errCh <- err:
			default:
			}
		}
	})
	t.OnClose(func(code int, reason string) {
		if events.OnClose != nil {
			events.OnClose(code, reason)
		}
	})
	t.OnTick(func(tick gokiteticker.Tick) {
		if events.OnTicks != nil {
			events.OnTicks([]model.Tick{normalizeEnctokenTick(tick)})
		}
	})

	go t.Serve()

	if err := awaitConnect(ctx, d.ConnectTimeout, connected, errCh); err != nil {
		t.Stop()
		return nil, err
	}
	return c, nil
}

// enctokenConn adapts *gokiteticker.Ticker to the Conn interface.
type enctokenConn struct {
	ticker *gokiteticker.Ticker

	mu     sync.Mutex
	closed bool
}

func (c *enctokenConn) Subscribe(tokens []uint32) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.ticker.Subscribe(tokens)
}

func (c *enctokenConn) Unsubscribe(tokens []uint32) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.ticker.Unsubscribe(tokens)
}

func (c *enctokenConn) SetModeFull(tokens []uint32) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.ticker.SetMode(gokiteticker.ModeFull, tokens)
}

func (c *enctokenConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.ticker.Stop()
}

func (c *enctokenConn) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

func normalizeEnctokenTick(t gokiteticker.Tick) model.Tick {
	return model.Tick{
		InstrumentToken: t.InstrumentToken,
		LastPrice:       t.LastPrice,
		ClosePrice:      t.OHLC.Close,
		HasClose:        t.OHLC.Close != 0,
		Change:          t.NetChange,
	}
}
