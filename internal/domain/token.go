package domain

import "time"

// Token is read-only price and metadata reference data for one reserve
// asset, mirrored from the indexer's price feed.
type Token struct {
	ID            string    `json:"id"` // token contract address
	Symbol        string    `json:"symbol"`
	Decimals      int       `json:"decimals"`
	PriceUSD      string    `json:"priceUsd"` // decimal string, e.g. "1823.45"
	OracleSource  string    `json:"oracleSource"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}

// AssetConfig holds per-token risk parameters mirrored from the on-chain
// pool configuration. Threshold, bonus, and reserve factor are basis points.
type AssetConfig struct {
	Token                string    `json:"token"`
	LiquidationThreshold int64     `json:"liquidationThreshold"` // bps, e.g. 8500
	LiquidationBonus     int64     `json:"liquidationBonus"`     // bps over 10000, e.g. 10500
	ReserveFactor        int64     `json:"reserveFactor"`        // bps
	Active               bool      `json:"active"`
	LastUpdatedAt        time.Time `json:"lastUpdatedAt"`
}
