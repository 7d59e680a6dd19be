package model

import (
	"math"
	"time"
)

// Segment values relevant to subscription scheduling. The catalog contains
// more segments than these; the scheduler drops everything it does not know.
const (
	SegmentIndices = "INDICES"
	SegmentNFOFut  = "NFO-FUT"
	SegmentNSE     = "NSE"
	SegmentNFOOpt  = "NFO-OPT"
)

// Instrument is one row of the Kite instruments dump. Immutable after load.
type Instrument struct {
	InstrumentToken uint32    `json:"instrument_token"`
	ExchangeToken   uint32    `json:"exchange_token"`
	Tradingsymbol   string    `json:"tradingsymbol"`
	Name            string    `json:"name"`
	Expiry          time.Time `json:"expiry"`
	Strike          float64   `json:"strike"`
	TickSize        float64   `json:"tick_size"`
	LotSize         int       `json:"lot_size"`
	InstrumentType  string    `json:"instrument_type"`
	Segment         string    `json:"segment"`
	Exchange        string    `json:"exchange"`
}

// Tick is a normalized upstream price update.
//
// HasClose distinguishes "broker sent OHLC" from "close genuinely absent"
// (LTP-mode ticks and indices omit it); consumers fall back to LastPrice.
type Tick struct {
	InstrumentToken uint32
	LastPrice       float64
	ClosePrice      float64
	HasClose        bool
	Change          float64
}

// Entry is one snapshot row served to downstream clients. Field names and
// JSON keys are part of the downstream contract.
type Entry struct {
	Change          float64 `json:"change"`
	InstrumentToken uint32  `json:"instrument_token"`
	LastPrice       float64 `json:"last_price"`
	NetChange       float64 `json:"net_change"`
}

// Round2 rounds to 2 decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
