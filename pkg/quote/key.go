package quote

import (
	"fmt"
	"strings"
	"time"
)

// Key identifies a logical quote fetch: one instrument on one exchange.
type Key struct {
	// Exchange is the upstream exchange segment (e.g. "NSE", "NFO", "BSE").
	Exchange string

	// Tradingsymbol is the instrument symbol within the exchange
	// (e.g. "NIFTY 50", "NIFTY2490924950CE").
	Tradingsymbol string
}

// String generates the deterministic cache/dispatch key string.
// Format: quote:EXCHANGE:TRADINGSYMBOL
//
// Example:
//
//	quote:NFO:NIFTY2490924950CE
func (k Key) String() string {
	exchange := strings.ToUpper(strings.TrimSpace(k.Exchange))
	symbol := strings.TrimSpace(k.Tradingsymbol)
	return strings.Join([]string{"quote", exchange, symbol}, ":")
}

// Instrument returns the upstream wire form "EXCHANGE:TRADINGSYMBOL".
func (k Key) Instrument() string {
	return strings.ToUpper(strings.TrimSpace(k.Exchange)) + ":" + strings.TrimSpace(k.Tradingsymbol)
}

// ParseKey parses a key string previously produced by Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] != "quote" || parts[1] == "" || parts[2] == "" {
		return Key{}, fmt.Errorf("malformed quote key %q", s)
	}
	return Key{Exchange: parts[1], Tradingsymbol: parts[2]}, nil
}

// OptionType identifies the option leg.
type OptionType string

const (
	// Call option.
	Call OptionType = "CE"

	// Put option.
	Put OptionType = "PE"
)

// OptionSymbol builds the brokerage tradingsymbol for an index option.
// Format: INDEX + YY + MMDD + STRIKE + CE|PE, e.g. "NIFTY24090924950CE" for
// a NIFTY 24950 call expiring 2024-09-09.
func OptionSymbol(index string, expiry time.Time, strike int, ot OptionType) string {
	return fmt.Sprintf("%s%02d%02d%02d%d%s",
		strings.ToUpper(index),
		expiry.Year()%100, int(expiry.Month()), expiry.Day(),
		strike, ot)
}

// IndexInstruments maps the collector's index names to their upstream
// instrument identifiers.
var IndexInstruments = map[string]Key{
	"NIFTY":      {Exchange: "NSE", Tradingsymbol: "NIFTY 50"},
	"BANKNIFTY":  {Exchange: "NSE", Tradingsymbol: "NIFTY BANK"},
	"FINNIFTY":   {Exchange: "NSE", Tradingsymbol: "NIFTY FIN SERVICE"},
	"MIDCPNIFTY": {Exchange: "NSE", Tradingsymbol: "NIFTY MID SELECT"},
	"SENSEX":     {Exchange: "BSE", Tradingsymbol: "SENSEX"},
	"BANKEX":     {Exchange: "BSE", Tradingsymbol: "BANKEX"},
}

// StrikeInterval returns the strike spacing used to round a spot price to the
// at-the-money strike for a known index. Unknown indices use 50.
func StrikeInterval(index string) int {
	intervals := map[string]int{
		"NIFTY":      50,
		"BANKNIFTY":  100,
		"FINNIFTY":   50,
		"MIDCPNIFTY": 25,
		"SENSEX":     100,
		"BANKEX":     100,
	}
	if iv, ok := intervals[strings.ToUpper(index)]; ok {
		return iv
	}
	return 50
}

// ATMStrike rounds a spot price to the nearest strike for the given index.
func ATMStrike(index string, spot float64) int {
	interval := StrikeInterval(index)
	return int(spot/float64(interval)+0.5) * interval
}
