package domain

import (
	"fmt"
	"time"
)

// OrderType distinguishes a sale of the entire debt position from a sale of
// a slice of its collateral.
type OrderType string

const (
	OrderTypeFull    OrderType = "FULL"
	OrderTypePartial OrderType = "PARTIAL"
)

// OrderStatus tracks the stored order lifecycle. EXPIRED is derived at read
// time from EndTime and is never written to the store.
type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "ACTIVE"
	OrderStatusExecuted  OrderStatus = "EXECUTED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusExpired   OrderStatus = "EXPIRED"
)

// Signature holds the secp256k1 signature components as submitted by the
// seller. V uses the on-chain convention (27 or 28); R and S are 32-byte hex
// strings with 0x prefix.
type Signature struct {
	V int    `json:"v"`
	R string `json:"r"`
	S string `json:"s"`
}

// FullSellOrderPayload is the type-specific part of a FULL order: sell the
// entire position, paying the seller PercentOfEquity basis points of the
// position's equity in Token.
type FullSellOrderPayload struct {
	Token           string `json:"token"`
	PercentOfEquity int64  `json:"percentOfEquity"` // basis points, (0, 10000]
}

// PartialSellOrderPayload is the type-specific part of a PARTIAL order: the
// buyer repays RepayAmount of RepayToken and receives the listed collateral
// tokens in the given proportions, plus a bonus in basis points.
type PartialSellOrderPayload struct {
	InterestRateMode int      `json:"interestRateMode"` // 1 = stable, 2 = variable
	CollateralOut    []string `json:"collateralOut"`
	Percents         []int64  `json:"percents"` // basis points per collateral, must sum to 10000
	RepayToken       string   `json:"repayToken"`
	RepayAmount      string   `json:"repayAmount"` // integer string in token base units
	Bonus            int64    `json:"bonus"`       // basis points, [0, 10000]
}

// OrderExecution records the on-chain execution of an order as observed from
// the indexer. Populated only on EXECUTED orders.
type OrderExecution struct {
	Buyer       string    `json:"buyer"`
	TxHash      string    `json:"txHash"`
	BlockNumber uint64    `json:"blockNumber"`
	USDValue    string    `json:"usdValue"`
	USDBonus    string    `json:"usdBonus"`
	ExecutedAt  time.Time `json:"executedAt"`
}

// Order is a signed off-chain intent to sell a debt position, fully or
// partially. Exactly one of Full/Partial is populated, matching Type. The
// title fields (Debt, DebtNonce, StartTime, EndTime, TriggerHF) are shared by
// both order types and denormalized here for querying; TitleHash is the
// canonical hash of those fields and doubles as the order's match key for
// on-chain events.
type Order struct {
	ID                string    `json:"id"`
	Type              OrderType `json:"orderType"`
	ChainID           int64     `json:"chainId"`
	VerifyingContract string    `json:"contract"`
	Seller            string    `json:"seller"`

	Debt      string `json:"debt"`
	DebtNonce uint64 `json:"debtNonce"`
	StartTime int64  `json:"startTime"` // unix seconds
	EndTime   int64  `json:"endTime"`   // unix seconds
	TriggerHF string `json:"triggerHF"` // 1e18-scaled integer string

	TitleHash string    `json:"titleHash"`
	Signature Signature `json:"signature"`

	Full    *FullSellOrderPayload    `json:"fullSellOrder,omitempty"`
	Partial *PartialSellOrderPayload `json:"partialSellOrder,omitempty"`

	Status       OrderStatus     `json:"status"`
	Execution    *OrderExecution `json:"execution,omitempty"`
	CancelledAt  *time.Time      `json:"cancelledAt,omitempty"`
	CancelReason string          `json:"cancelReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsTerminal reports whether the stored status admits no further transitions.
func (o Order) IsTerminal() bool {
	return o.Status == OrderStatusExecuted || o.Status == OrderStatusCancelled
}

// EffectiveStatus returns the status as seen by readers: a stored-ACTIVE
// order past its end time reads as EXPIRED without a store transition.
func (o Order) EffectiveStatus(now time.Time) OrderStatus {
	if o.Status == OrderStatusActive && now.Unix() > o.EndTime {
		return OrderStatusExpired
	}
	return o.Status
}

// CancelReasonOnChain is the cancellation reason recorded when an explicit
// on-chain cancellation event is observed for an order.
const CancelReasonOnChain = "cancelled on-chain"

// StaleNonceReason is the cancellation reason recorded when a debt position's
// nonce advances past an order's signed nonce.
func StaleNonceReason(orderNonce, currentNonce uint64) string {
	return fmt.Sprintf("debt nonce advanced from %d to %d", orderNonce, currentNonce)
}

// OrderExecutionEvent is a raw execution event from the indexer, before it is
// matched against a stored order.
type OrderExecutionEvent struct {
	TitleHash   string
	OrderType   OrderType
	Buyer       string
	TxHash      string
	BlockNumber uint64
	USDValue    string
	USDBonus    string
	Timestamp   int64
}

// OrderCancellation is an explicit on-chain cancellation event observed from
// the indexer, keyed by the cancelled order's title hash.
type OrderCancellation struct {
	TitleHash string
	OrderType OrderType
	Timestamp int64
}
