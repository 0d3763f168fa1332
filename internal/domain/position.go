package domain

import "time"

// CollateralEntry is one collateral reserve held by a debt position. Amount
// is the decimal-adjusted (human-readable) quantity as reported by the
// indexer.
type CollateralEntry struct {
	Token    string `json:"token"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
	Amount   string `json:"amount"`
}

// DebtEntry is one borrowed reserve owed by a debt position.
type DebtEntry struct {
	Token            string `json:"token"`
	Symbol           string `json:"symbol"`
	Decimals         int    `json:"decimals"`
	Amount           string `json:"amount"`
	InterestRateMode int    `json:"interestRateMode"`
}

// DebtPosition mirrors an on-chain collateralized debt account. The sync
// engine owns these records and only ever overwrites them wholesale from
// upstream snapshots; Nonce increments with every on-chain state change and
// invalidates signed orders carrying an older nonce.
type DebtPosition struct {
	ID            string            `json:"id"` // position contract address
	Owner         string            `json:"owner"`
	Nonce         uint64            `json:"nonce"`
	Collaterals   []CollateralEntry `json:"collaterals"`
	Debts         []DebtEntry       `json:"debts"`
	LastUpdatedAt time.Time         `json:"lastUpdatedAt"`
}

// User mirrors an upstream account record, upserted by address.
type User struct {
	ID            string    `json:"id"` // wallet address
	Nonce         uint64    `json:"nonce"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}
