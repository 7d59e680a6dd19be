// Package upstream wraps the Kite ticker clients behind a thin, thread-safe
// command interface plus an event stream.
//
// A Conn owns no scheduling logic: subscribe/unsubscribe/set-mode commands
// take effect in issue order, and tick/close/error events fire on the ticker
// library's I/O goroutine. Reconnection is deliberately NOT handled here —
// the connection supervisor owns liveness, so both dialers disable the
// libraries' built-in auto-reconnect.
//
// Two dialers cover the two Kite authentication flows:
//   - KiteDialer: api_key + access_token (gokiteconnect/v4/ticker)
//   - EnctokenDialer: user_id + enctoken (nsvirk/gokiteticker)
package upstream
