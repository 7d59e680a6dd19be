// Package connection implements the Connection Supervisor.
//
// The supervisor owns the mapping from connection id (1..3) to live upstream
// handle. Reconnection is lazy: a closed or errored connection is dropped
// from the table, and the next Ensure call from the rotation worker rebuilds
// it. The worker's subsequent subscribe re-asserts the full subscription set,
// which is the simplest correct recovery for a broker that forgets
// subscriptions on disconnect.
package connection
