// Package quote defines the market data domain types shared by the
// acquisition core: quote values, instrument keys, and request priorities.
package quote

import (
	"time"
)

// Quote is a single options-market quote snapshot as returned by the
// upstream brokerage API.
type Quote struct {
	// Symbol is the full instrument identifier (e.g. "NFO:NIFTY2490924950CE").
	Symbol string `json:"symbol"`

	// LastPrice is the last traded price.
	LastPrice float64 `json:"last_price"`

	// AveragePrice is the volume weighted average price of the day.
	AveragePrice float64 `json:"average_price"`

	// Volume is the traded volume of the day.
	Volume int64 `json:"volume"`

	// OpenInterest is the open interest for derivative instruments.
	OpenInterest int64 `json:"oi"`

	// NetChange is the absolute change against the previous close.
	NetChange float64 `json:"net_change"`

	// Timestamp is when the upstream generated this quote.
	Timestamp time.Time `json:"timestamp"`
}

// IsZero reports whether the quote carries no data.
func (q Quote) IsZero() bool {
	return q.Symbol == "" && q.LastPrice == 0 && q.Volume == 0
}
