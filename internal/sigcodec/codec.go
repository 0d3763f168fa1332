// Package sigcodec builds the canonical typed-data digests for sell orders
// and verifies that a submitted signature recovers the claimed seller.
//
// Two digest schemes exist across deployed contract revisions: the legacy
// revision signed the raw struct hash directly, while the current revision
// signs the EIP-712 digest ("\x19\x01" || domainSeparator || structHash).
// The active scheme is fixed once per Codec at construction; verification
// always recovers over that scheme and never branches per call.
package sigcodec

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
)

// Scheme selects which digest the seller is expected to have signed.
type Scheme string

const (
	// SchemeRawStructHash recovers directly over the order struct hash with
	// no prefix (legacy contract revision).
	SchemeRawStructHash Scheme = "raw"

	// SchemeTypedData recovers over the EIP-712 digest
	// keccak256("\x19\x01" || domainSeparator || structHash).
	SchemeTypedData Scheme = "typed_data"
)

// Pre-computed keccak256 of the canonical EIP-712 type strings.
var (
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	orderTitleTypeHash = ethcrypto.Keccak256(
		[]byte("OrderTitle(address debt,uint256 debtNonce,uint256 startTime,uint256 endTime,uint256 triggerHF)"),
	)

	fullSellOrderTypeHash = ethcrypto.Keccak256(
		[]byte("FullSellOrder(OrderTitle title,address token,uint256 percentOfEquity)" +
			"OrderTitle(address debt,uint256 debtNonce,uint256 startTime,uint256 endTime,uint256 triggerHF)"),
	)

	partialSellOrderTypeHash = ethcrypto.Keccak256(
		[]byte("PartialSellOrder(OrderTitle title,uint256 interestRateMode,address[] collateralOut,uint256[] percents,address repayToken,uint256 repayAmount,uint256 bonus)" +
			"OrderTitle(address debt,uint256 debtNonce,uint256 startTime,uint256 endTime,uint256 triggerHF)"),
	)
)

// Codec builds order digests for one deployed contract and verifies
// signatures against them.
type Codec struct {
	scheme    Scheme
	domainSep []byte // cached EIP-712 domain separator
}

// New creates a Codec for the given deployment. name and version identify the
// EIP-712 domain (e.g. "DebtPurchasing", "1"); verifyingContract is the
// deployed router address on chainID.
func New(scheme Scheme, name, version string, chainID int64, verifyingContract string) *Codec {
	contract := common.HexToAddress(verifyingContract)

	domainSep := ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(chainID)),
			common.LeftPadBytes(contract.Bytes(), 32),
		),
	)

	return &Codec{
		scheme:    scheme,
		domainSep: domainSep,
	}
}

// Scheme returns the digest scheme this codec was constructed with.
func (c *Codec) Scheme() Scheme { return c.scheme }

// TitleHash computes the canonical hash over an order's title fields. It is
// the order's natural identifier: on-chain execution and cancellation events
// are matched against it. Returns "" if TriggerHF is not a valid integer.
func (c *Codec) TitleHash(o domain.Order) string {
	h, ok := titleStructHash(o)
	if !ok {
		return ""
	}
	return "0x" + hex.EncodeToString(h)
}

// OrderDigest computes the digest a valid signature must recover over,
// according to the codec's scheme. ok is false when any numeric field fails
// to parse or the order payload is missing.
func (c *Codec) OrderDigest(o domain.Order) (digest []byte, ok bool) {
	structHash, ok := c.structHash(o)
	if !ok {
		return nil, false
	}

	if c.scheme == SchemeRawStructHash {
		return structHash, true
	}

	return ethcrypto.Keccak256(
		concatBytes([]byte{0x19, 0x01}, c.domainSep, structHash),
	), true
}

// Verify reports whether the order's signature recovers the claimed seller,
// along with the recovered address. Malformed signature components or
// unparseable order fields yield (false, zero address); Verify never fails
// with an error.
func (c *Codec) Verify(o domain.Order) (bool, common.Address) {
	digest, ok := c.OrderDigest(o)
	if !ok {
		return false, common.Address{}
	}

	sig, ok := packSignature(o.Signature)
	if !ok {
		return false, common.Address{}
	}

	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return false, common.Address{}
	}

	recovered := ethcrypto.PubkeyToAddress(*pub)
	return strings.EqualFold(recovered.Hex(), o.Seller), recovered
}

// structHash encodes and hashes the order according to its type.
func (c *Codec) structHash(o domain.Order) ([]byte, bool) {
	titleHash, ok := titleStructHash(o)
	if !ok {
		return nil, false
	}

	switch o.Type {
	case domain.OrderTypeFull:
		if o.Full == nil {
			return nil, false
		}
		token := common.HexToAddress(o.Full.Token)
		return ethcrypto.Keccak256(
			concatBytes(
				fullSellOrderTypeHash,
				titleHash,
				common.LeftPadBytes(token.Bytes(), 32),
				bigIntTo32Bytes(big.NewInt(o.Full.PercentOfEquity)),
			),
		), true

	case domain.OrderTypePartial:
		if o.Partial == nil {
			return nil, false
		}
		p := o.Partial

		repayAmount, ok := new(big.Int).SetString(p.RepayAmount, 10)
		if !ok || repayAmount.Sign() < 0 {
			return nil, false
		}

		collateralWords := make([]byte, 0, len(p.CollateralOut)*32)
		for _, addr := range p.CollateralOut {
			collateralWords = append(collateralWords,
				common.LeftPadBytes(common.HexToAddress(addr).Bytes(), 32)...)
		}

		percentWords := make([]byte, 0, len(p.Percents)*32)
		for _, pct := range p.Percents {
			percentWords = append(percentWords, bigIntTo32Bytes(big.NewInt(pct))...)
		}

		repayToken := common.HexToAddress(p.RepayToken)
		return ethcrypto.Keccak256(
			concatBytes(
				partialSellOrderTypeHash,
				titleHash,
				bigIntTo32Bytes(big.NewInt(int64(p.InterestRateMode))),
				ethcrypto.Keccak256(collateralWords),
				ethcrypto.Keccak256(percentWords),
				common.LeftPadBytes(repayToken.Bytes(), 32),
				bigIntTo32Bytes(repayAmount),
				bigIntTo32Bytes(big.NewInt(p.Bonus)),
			),
		), true

	default:
		return nil, false
	}
}

// titleStructHash hashes the shared title fields. The sub-hash is combined
// with the type-specific fields in structHash.
func titleStructHash(o domain.Order) ([]byte, bool) {
	triggerHF, ok := new(big.Int).SetString(o.TriggerHF, 10)
	if !ok || triggerHF.Sign() < 0 {
		return nil, false
	}

	debt := common.HexToAddress(o.Debt)
	return ethcrypto.Keccak256(
		concatBytes(
			orderTitleTypeHash,
			common.LeftPadBytes(debt.Bytes(), 32),
			bigIntTo32Bytes(new(big.Int).SetUint64(o.DebtNonce)),
			bigIntTo32Bytes(big.NewInt(o.StartTime)),
			bigIntTo32Bytes(big.NewInt(o.EndTime)),
			bigIntTo32Bytes(triggerHF),
		),
	), true
}

// packSignature assembles r || s || v-27 (65 bytes) for go-ethereum recovery.
func packSignature(s domain.Signature) ([]byte, bool) {
	if s.V != 27 && s.V != 28 {
		return nil, false
	}

	r, ok := decodeHash32(s.R)
	if !ok {
		return nil, false
	}
	sv, ok := decodeHash32(s.S)
	if !ok {
		return nil, false
	}

	sig := make([]byte, 65)
	copy(sig[:32], r)
	copy(sig[32:64], sv)
	sig[64] = byte(s.V - 27)
	return sig, true
}

// decodeHash32 decodes a 0x-prefixed 32-byte hex string.
func decodeHash32(s string) ([]byte, bool) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(b) != 32 {
		return nil, false
	}
	return b, true
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
