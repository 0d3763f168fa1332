package service

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/health"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/sigcodec"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/store/memory"
)

const (
	testChainID  = int64(11155111)
	testContract = "0x1111111111111111111111111111111111111111"
	testDebt     = "0x2222222222222222222222222222222222222222"
	testToken    = "0x4444444444444444444444444444444444444444"
)

var testNow = time.Unix(1_700_000_000, 0).UTC()

type fixture struct {
	orders    *memory.OrderStore
	positions *memory.PositionStore
	tokens    *memory.TokenStore
	configs   *memory.AssetConfigStore
	codec     *sigcodec.Codec
	svc       *OrderService
	hf        *HealthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		orders:    memory.NewOrderStore(),
		positions: memory.NewPositionStore(),
		tokens:    memory.NewTokenStore(),
		configs:   memory.NewAssetConfigStore(),
		codec:     sigcodec.New(sigcodec.SchemeTypedData, "DebtPurchasing", "1", testChainID, testContract),
	}
	f.hf = NewHealthService(f.positions, f.tokens, f.configs, nil, 0, logger)
	f.svc = NewOrderService(f.orders, f.codec, f.hf, logger)
	f.svc.now = func() time.Time { return testNow }
	return f
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return key, ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
}

// signedFullOrder builds a valid FULL order signed by key.
func signedFullOrder(t *testing.T, f *fixture, key *ecdsa.PrivateKey, seller string) domain.Order {
	t.Helper()
	o := domain.Order{
		Type:              domain.OrderTypeFull,
		ChainID:           testChainID,
		VerifyingContract: testContract,
		Seller:            seller,
		Debt:              testDebt,
		DebtNonce:         0,
		StartTime:         testNow.Unix() - 60,
		EndTime:           testNow.Unix() + 3600,
		TriggerHF:         "1050000000000000000",
		Full: &domain.FullSellOrderPayload{
			Token:           testToken,
			PercentOfEquity: 9500,
		},
	}

	digest, ok := f.codec.OrderDigest(o)
	if !ok {
		t.Fatal("order digest")
	}
	sig, err := ethcrypto.Sign(digest, key)
	if err != nil {
		t.Fatal(err)
	}
	o.Signature = domain.Signature{
		V: int(sig[64]) + 27,
		R: "0x" + hex.EncodeToString(sig[:32]),
		S: "0x" + hex.EncodeToString(sig[32:64]),
	}
	return o
}

func TestCreateOrderHappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key, seller := newKey(t)

	created, err := f.svc.CreateOrder(ctx, signedFullOrder(t, f, key, seller))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created order must carry a generated id")
	}
	if created.Status != domain.OrderStatusActive {
		t.Fatalf("status = %s, want ACTIVE", created.Status)
	}
	if created.TitleHash == "" {
		t.Fatal("created order must carry a title hash")
	}

	stored, err := f.orders.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("stored order: %v", err)
	}
	if stored.TitleHash != created.TitleHash {
		t.Fatal("stored title hash mismatch")
	}
}

func TestCreateOrderReportsAllViolations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key, seller := newKey(t)

	o := signedFullOrder(t, f, key, seller)
	o.Debt = "not-an-address"
	o.EndTime = o.StartTime - 1
	o.Full.PercentOfEquity = 0

	_, err := f.svc.CreateOrder(ctx, o)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if len(verr.Violations) < 3 {
		t.Fatalf("violations = %v, want all three rules reported", verr.Violations)
	}
}

func TestCreateOrderRejectsWrongSigner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key, _ := newKey(t)
	_, seller := newKey(t)

	// Signed by one key, claiming the other's address.
	_, err := f.svc.CreateOrder(ctx, signedFullOrder(t, f, key, seller))
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestCreateOrderConflictCarriesExistingOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key, seller := newKey(t)

	first, err := f.svc.CreateOrder(ctx, signedFullOrder(t, f, key, seller))
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.CreateOrder(ctx, signedFullOrder(t, f, key, seller))
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
	if conflict.ExistingID != first.ID {
		t.Fatalf("conflict existing id = %s, want %s", conflict.ExistingID, first.ID)
	}
	if conflict.ExpiresAt.Unix() != first.EndTime {
		t.Fatalf("conflict expiry = %v, want order end time", conflict.ExpiresAt)
	}
	if !errors.Is(err, domain.ErrDuplicateActiveOrder) {
		t.Fatal("ConflictError must unwrap to ErrDuplicateActiveOrder")
	}
}

func TestListActiveOrdersAnnotation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key, seller := newKey(t)

	if _, err := f.svc.CreateOrder(ctx, signedFullOrder(t, f, key, seller)); err != nil {
		t.Fatal(err)
	}

	// No mirrored position: HF reads as infinite, so the trigger is not met.
	annotated, err := f.svc.ListActiveOrders(ctx, domain.OrderFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(annotated) != 1 {
		t.Fatalf("active orders = %d, want 1", len(annotated))
	}
	if annotated[0].Verdict != health.VerdictHFTooHigh {
		t.Fatalf("verdict = %s, want HF_TOO_HIGH", annotated[0].Verdict)
	}
	if annotated[0].CurrentHF != health.InfiniteHealthFactor {
		t.Fatalf("current HF = %s, want infinite sentinel", annotated[0].CurrentHF)
	}

	// Mirror a distressed position: 1 WETH collateral vs 1 WETH debt puts HF
	// at 0.85e18, below the 1.05e18 trigger.
	err = f.positions.Upsert(ctx, domain.DebtPosition{
		ID:          testDebt,
		Owner:       seller,
		Nonce:       0,
		Collaterals: []domain.CollateralEntry{{Token: testToken, Amount: "1"}},
		Debts:       []domain.DebtEntry{{Token: testToken, Amount: "1", InterestRateMode: 2}},
	})
	if err != nil {
		t.Fatal(err)
	}

	annotated, err = f.svc.ListActiveOrders(ctx, domain.OrderFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if annotated[0].Verdict != health.VerdictExecutable {
		t.Fatalf("verdict = %s, want EXECUTABLE", annotated[0].Verdict)
	}
	if annotated[0].CurrentHF != "850000000000000000" {
		t.Fatalf("current HF = %s, want 0.85e18", annotated[0].CurrentHF)
	}
}

func TestGetOrderExpiredAnnotation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key, seller := newKey(t)

	created, err := f.svc.CreateOrder(ctx, signedFullOrder(t, f, key, seller))
	if err != nil {
		t.Fatal(err)
	}

	// Move past the order's end time.
	f.svc.now = func() time.Time { return time.Unix(created.EndTime+1, 0).UTC() }

	got, err := f.svc.GetOrder(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.EffectiveStatus != domain.OrderStatusExpired {
		t.Fatalf("effective status = %s, want EXPIRED", got.EffectiveStatus)
	}
	if got.Verdict != health.VerdictExpired {
		t.Fatalf("verdict = %s, want EXPIRED", got.Verdict)
	}
}
