// Package scheduler implements the Subscription Scheduler.
//
// The broker allows three concurrent streaming connections with 3000
// subscribed instruments each, while the observed universe is larger. The
// scheduler partitions the catalog into a priority class (always subscribed
// on connection 1) and a rotation class (cycled through the remaining
// capacity), assigns rotation ranges to the three connections, and runs one
// rotation worker per connection with rotation work.
//
// Rotation uses a cyclic queue advanced by a fixed stride each cycle: the
// subscription window moves over the queue with a deterministic cadence, so
// every instrument is visited within ceil(len/stride) cycles regardless of
// queue size.
package scheduler
