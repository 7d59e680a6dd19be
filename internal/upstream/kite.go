package upstream

import (
	"context"
	"sync"
	"time"

	kitemodels "github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"github.com/deepuanant/tickrelay/internal/model"
)

// KiteDialer dials the Kite ticker with api_key + access_token credentials.
type KiteDialer struct {
	APIKey         string
	AccessToken    string
	ConnectTimeout time.Duration
}

// Dial implements Dialer.
func (d *KiteDialer) Dial(ctx context.Context, events Events) (Conn, error) {
	t := kiteticker.New(d.APIKey, d.AccessToken)
	t.SetAutoReconnect(false)

	c := &kiteConn{ticker: t}
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
	t.OnTick(func(tick kitemodels.Tick) {
		if events.OnTicks != nil {
			events.OnTicks([]model.Tick{normalizeKiteTick(tick)})
		}
	})

	go t.Serve()

	if err := awaitConnect(ctx, d.ConnectTimeout, connected, errCh); err != nil {
		t.Stop()
		return nil, err
	}
	return c, nil
}

// kiteConn adapts *kiteticker.Ticker to the Conn interface.
type kiteConn struct {
	ticker *kiteticker.Ticker

	mu     sync.Mutex
	closed bool
}

func (c *kiteConn) Subscribe(tokens []uint32) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.ticker.Subscribe(tokens)
}

func (c *kiteConn) Unsubscribe(tokens []uint32) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.ticker.Unsubscribe(tokens)
}

func (c *kiteConn) SetModeFull(tokens []uint32) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.ticker.SetMode(kiteticker.ModeFull, tokens)
}

func (c *kiteConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.ticker.Stop()
}

func (c *kiteConn) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// normalizeKiteTick maps the library tick to the relay's model.
// Index and LTP-mode ticks carry no OHLC; a zero close means absent.
func normalizeKiteTick(t kitemodels.Tick) model.Tick {
	return model.Tick{
		InstrumentToken: t.InstrumentToken,
		LastPrice:       t.LastPrice,
		ClosePrice:      t.OHLC.Close,
		HasClose:        t.OHLC.Close != 0,
		Change:          t.NetChange,
	}
}
