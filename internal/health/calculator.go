// Package health computes debt-position health factors and executability
// verdicts for signed sell orders.
//
// Health factors follow the on-chain convention: a fixed-point ratio scaled
// by 1e18, carried as a decimal integer string so it stays directly
// comparable with an order's signed triggerHF. All reference-data gaps
// degrade to conservative defaults; a computation failure must never read
// as "liquidatable".
package health

import (
	"math/big"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
)

const (
	// DefaultTokenPriceUSD substitutes for a token with no known price.
	DefaultTokenPriceUSD = "1.00"

	// DefaultLiquidationThresholdBps substitutes for a token with no known
	// risk configuration (85%).
	DefaultLiquidationThresholdBps = 8500

	// InfiniteHealthFactor is the sentinel returned for positions with zero
	// debt value and for any internal computation failure. 1e36 (1e18 whole
	// units at 1e18 scale) sits far above any realistic trigger while still
	// parsing as a plain integer.
	InfiniteHealthFactor = "1000000000000000000000000000000000000"
)

// hfScale is the 1e18 fixed-point scale of the result.
var hfScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Compute returns the current health factor for a position:
//
//	HF = sum(collateral_i * price_i * liqThreshold_i) / sum(debt_j * price_j)
//
// Amounts are the decimal-adjusted strings mirrored from the indexer; prices
// and thresholds are joined by token address against the given reference
// maps, falling back to the package defaults when a token is missing.
// Arithmetic is exact rational math; the result is a 1e18-scaled integer
// string, truncated toward zero.
func Compute(
	collaterals []domain.CollateralEntry,
	debts []domain.DebtEntry,
	tokens map[string]domain.Token,
	configs map[string]domain.AssetConfig,
) string {
	tokens = normalizeTokenKeys(tokens)
	configs = normalizeConfigKeys(configs)

	collateralValue := new(big.Rat)
	for _, c := range collaterals {
		amount, ok := parseDecimal(c.Amount)
		if !ok {
			continue
		}
		value := new(big.Rat).Mul(amount, priceOf(c.Token, tokens))
		value.Mul(value, thresholdOf(c.Token, configs))
		collateralValue.Add(collateralValue, value)
	}

	debtValue := new(big.Rat)
	for _, d := range debts {
		amount, ok := parseDecimal(d.Amount)
		if !ok {
			continue
		}
		debtValue.Add(debtValue, new(big.Rat).Mul(amount, priceOf(d.Token, tokens)))
	}

	if debtValue.Sign() <= 0 {
		return InfiniteHealthFactor
	}

	hf := new(big.Rat).Quo(collateralValue, debtValue)
	hf.Mul(hf, new(big.Rat).SetInt(hfScale))

	result := new(big.Int).Quo(hf.Num(), hf.Denom())
	if result.Sign() < 0 {
		return InfiniteHealthFactor
	}
	return result.String()
}

// priceOf returns the USD price for a token, or the default when the token
// or its price is unknown.
func priceOf(token string, tokens map[string]domain.Token) *big.Rat {
	if t, ok := tokens[normalize(token)]; ok {
		if p, ok := parseDecimal(t.PriceUSD); ok {
			return p
		}
	}
	p, _ := parseDecimal(DefaultTokenPriceUSD)
	return p
}

// thresholdOf returns the liquidation threshold for a token as a fraction,
// or the default when the token has no known configuration.
func thresholdOf(token string, configs map[string]domain.AssetConfig) *big.Rat {
	bps := int64(DefaultLiquidationThresholdBps)
	if c, ok := configs[normalize(token)]; ok && c.LiquidationThreshold > 0 {
		bps = c.LiquidationThreshold
	}
	return big.NewRat(bps, 10000)
}

// parseDecimal parses a non-negative decimal string (e.g. "1823.45").
func parseDecimal(s string) (*big.Rat, bool) {
	r, ok := new(big.Rat).SetString(s)
	if !ok || r.Sign() < 0 {
		return nil, false
	}
	return r, true
}

func normalizeTokenKeys(in map[string]domain.Token) map[string]domain.Token {
	out := make(map[string]domain.Token, len(in))
	for k, v := range in {
		out[normalize(k)] = v
	}
	return out
}

func normalizeConfigKeys(in map[string]domain.AssetConfig) map[string]domain.AssetConfig {
	out := make(map[string]domain.AssetConfig, len(in))
	for k, v := range in {
		out[normalize(k)] = v
	}
	return out
}

// normalize lowercases an address for map joins.
func normalize(addr string) string {
	b := []byte(addr)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
