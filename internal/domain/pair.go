// Package domain defines core data structures used by the movement analyzer.
package domain

import (
	"fmt"
	"strings"
)

// Pair cryptocurrency trading pair.
type Pair struct {
	// From base currency symbol.
	From string
	// To quote currency symbol.
	To string
}

// PairFromString parses "BTC_USDT". A bare base like "BTC" is quoted in USDT,
// the way the spot dashboard offered "BTC" and "ETH".
func PairFromString(s string) (Pair, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Pair{}, fmt.Errorf("empty pair")
	}

	parts := strings.Split(s, "_")
	switch len(parts) {
	case 1:
		if strings.HasSuffix(s, "USDT") && len(s) > len("USDT") {
			return Pair{From: strings.TrimSuffix(s, "USDT"), To: "USDT"}, nil
		}
		return Pair{From: s, To: "USDT"}, nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return Pair{}, fmt.Errorf("invalid pair %q", s)
		}
		return Pair{From: parts[0], To: parts[1]}, nil
	default:
		return Pair{}, fmt.Errorf("invalid pair %q", s)
	}
}

// String returns the string representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// Symbol returns the concatenated symbol representation.
func (p Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}
