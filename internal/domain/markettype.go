package domain

// MarketType kind of exchange market candles are pulled from.
type MarketType string

const (
	// MarketTypeSpot spot market.
	MarketTypeSpot MarketType = "spot"
	// MarketTypeFutures perpetual futures market.
	MarketTypeFutures MarketType = "futures"
)

// String returns the string representation.
func (m MarketType) String() string {
	return string(m)
}

// IsValid checks if the MarketType value is valid.
func (m MarketType) IsValid() bool {
	return m == MarketTypeSpot || m == MarketTypeFutures
}
