// Package model defines shared data types used across the tick relay.
//
// Conventions:
//   - Instrument tokens: uint32, as delivered by the Kite instruments dump
//   - Prices: float64 rupees; snapshot entries round change and net_change to
//     2 decimal places and keep last_price as delivered
//   - Segments: raw strings from the catalog ("INDICES", "NFO-FUT", ...)
package model
