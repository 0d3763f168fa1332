package sigcodec

import (
	"crypto/ecdsa"
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
)

const (
	testChainID  = 11155111
	testContract = "0x1111111111111111111111111111111111111111"
)

func newTestCodec(scheme Scheme) *Codec {
	return New(scheme, "DebtPurchasing", "1", testChainID, testContract)
}

func fullOrder(seller string) domain.Order {
	return domain.Order{
		Type:              domain.OrderTypeFull,
		ChainID:           testChainID,
		VerifyingContract: testContract,
		Seller:            seller,
		Debt:              "0x2222222222222222222222222222222222222222",
		DebtNonce:         3,
		StartTime:         1_700_000_000,
		EndTime:           1_700_086_400,
		TriggerHF:         "1050000000000000000",
		Full: &domain.FullSellOrderPayload{
			Token:           "0x3333333333333333333333333333333333333333",
			PercentOfEquity: 9500,
		},
	}
}

func partialOrder(seller string) domain.Order {
	return domain.Order{
		Type:              domain.OrderTypePartial,
		ChainID:           testChainID,
		VerifyingContract: testContract,
		Seller:            seller,
		Debt:              "0x2222222222222222222222222222222222222222",
		DebtNonce:         7,
		StartTime:         1_700_000_000,
		EndTime:           1_700_086_400,
		TriggerHF:         "1020000000000000000",
		Partial: &domain.PartialSellOrderPayload{
			InterestRateMode: 2,
			CollateralOut: []string{
				"0x4444444444444444444444444444444444444444",
				"0x5555555555555555555555555555555555555555",
			},
			Percents:    []int64{6000, 4000},
			RepayToken:  "0x6666666666666666666666666666666666666666",
			RepayAmount: "250000000",
			Bonus:       200,
		},
	}
}

// signOrder produces signature components the way a seller's wallet would,
// over the digest of the given codec.
func signOrder(t *testing.T, c *Codec, o domain.Order, key *ecdsa.PrivateKey) domain.Signature {
	t.Helper()

	digest, ok := c.OrderDigest(o)
	if !ok {
		t.Fatal("OrderDigest failed on a well-formed order")
	}

	sig, err := ethcrypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("signing digest: %v", err)
	}

	return domain.Signature{
		V: int(sig[64]) + 27,
		R: "0x" + hex.EncodeToString(sig[:32]),
		S: "0x" + hex.EncodeToString(sig[32:64]),
	}
}

func TestVerifyRecoverSeller(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	seller := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	for _, scheme := range []Scheme{SchemeTypedData, SchemeRawStructHash} {
		for _, build := range []func(string) domain.Order{fullOrder, partialOrder} {
			c := newTestCodec(scheme)
			o := build(seller)
			o.Signature = signOrder(t, c, o, key)

			valid, recovered := c.Verify(o)
			if !valid {
				t.Errorf("scheme %s, type %s: expected valid signature", scheme, o.Type)
			}
			if recovered.Hex() != seller {
				t.Errorf("scheme %s: recovered %s, want %s", scheme, recovered.Hex(), seller)
			}
		}
	}
}

func TestVerifyRejectsOtherSigner(t *testing.T) {
	sellerKey, _ := ethcrypto.GenerateKey()
	otherKey, _ := ethcrypto.GenerateKey()
	seller := ethcrypto.PubkeyToAddress(sellerKey.PublicKey).Hex()

	c := newTestCodec(SchemeTypedData)
	o := fullOrder(seller)
	o.Signature = signOrder(t, c, o, otherKey)

	valid, recovered := c.Verify(o)
	if valid {
		t.Fatal("signature from a different key must not verify")
	}
	if recovered.Hex() == seller {
		t.Fatal("recovered address must not match the claimed seller")
	}
}

func TestVerifySchemeMismatchFails(t *testing.T) {
	key, _ := ethcrypto.GenerateKey()
	seller := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	typed := newTestCodec(SchemeTypedData)
	raw := newTestCodec(SchemeRawStructHash)

	o := fullOrder(seller)
	o.Signature = signOrder(t, typed, o, key)

	// A signature over the typed-data digest must not verify under the raw
	// struct-hash scheme, and vice versa.
	if valid, _ := raw.Verify(o); valid {
		t.Fatal("typed-data signature verified under raw scheme")
	}

	o.Signature = signOrder(t, raw, o, key)
	if valid, _ := typed.Verify(o); valid {
		t.Fatal("raw signature verified under typed-data scheme")
	}
}

func TestVerifyMalformedComponents(t *testing.T) {
	key, _ := ethcrypto.GenerateKey()
	seller := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
	c := newTestCodec(SchemeTypedData)

	base := fullOrder(seller)
	good := signOrder(t, c, base, key)

	cases := []struct {
		name string
		sig  domain.Signature
	}{
		{"v out of range", domain.Signature{V: 26, R: good.R, S: good.S}},
		{"v zero", domain.Signature{V: 0, R: good.R, S: good.S}},
		{"r not hex", domain.Signature{V: good.V, R: "0xzz", S: good.S}},
		{"r short", domain.Signature{V: good.V, R: "0x1234", S: good.S}},
		{"s empty", domain.Signature{V: good.V, R: good.R, S: ""}},
	}

	for _, tc := range cases {
		o := base
		o.Signature = tc.sig
		valid, recovered := c.Verify(o)
		if valid {
			t.Errorf("%s: malformed signature must be invalid", tc.name)
		}
		if recovered != (common.Address{}) {
			t.Errorf("%s: expected zero recovered address", tc.name)
		}
	}
}

func TestVerifyUnparseableOrderFields(t *testing.T) {
	key, _ := ethcrypto.GenerateKey()
	seller := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
	c := newTestCodec(SchemeTypedData)

	o := fullOrder(seller)
	o.Signature = signOrder(t, c, o, key)
	o.TriggerHF = "not-a-number"

	if valid, _ := c.Verify(o); valid {
		t.Fatal("unparseable triggerHF must yield invalid, not panic")
	}

	p := partialOrder(seller)
	p.Signature = domain.Signature{V: 27, R: o.Signature.R, S: o.Signature.S}
	p.Partial.RepayAmount = "-1"
	if valid, _ := c.Verify(p); valid {
		t.Fatal("negative repayAmount must yield invalid")
	}
}

func TestTitleHash(t *testing.T) {
	c := newTestCodec(SchemeTypedData)

	a := fullOrder("0x0000000000000000000000000000000000000001")
	b := partialOrder("0x0000000000000000000000000000000000000002")
	b.Debt = a.Debt
	b.DebtNonce = a.DebtNonce
	b.StartTime = a.StartTime
	b.EndTime = a.EndTime
	b.TriggerHF = a.TriggerHF

	// The title hash depends only on the title fields, not the order type
	// or payload.
	if c.TitleHash(a) != c.TitleHash(b) {
		t.Fatal("identical titles must hash identically across order types")
	}

	b.DebtNonce++
	if c.TitleHash(a) == c.TitleHash(b) {
		t.Fatal("nonce change must change the title hash")
	}

	a.TriggerHF = "bogus"
	if c.TitleHash(a) != "" {
		t.Fatal("unparseable triggerHF must yield an empty title hash")
	}
}
