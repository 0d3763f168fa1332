package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/service"
)

// stubOrderService returns canned responses per method.
type stubOrderService struct {
	createErr    error
	createResult domain.Order
	getErr       error
	getResult    service.AnnotatedOrder
	listResult   []service.AnnotatedOrder
}

func (s *stubOrderService) CreateOrder(_ context.Context, _ domain.Order) (domain.Order, error) {
	return s.createResult, s.createErr
}

func (s *stubOrderService) GetOrder(_ context.Context, _ string) (service.AnnotatedOrder, error) {
	return s.getResult, s.getErr
}

func (s *stubOrderService) ListOrders(_ context.Context, _ domain.OrderFilter, _ domain.ListOpts) ([]service.AnnotatedOrder, error) {
	return s.listResult, nil
}

func (s *stubOrderService) ListActiveOrders(_ context.Context, _ domain.OrderFilter) ([]service.AnnotatedOrder, error) {
	return s.listResult, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func postOrder(t *testing.T, h *OrderHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateOrder(rec, req)
	return rec
}

func TestCreateOrderMapsValidationError(t *testing.T) {
	svc := &stubOrderService{
		createErr: &domain.ValidationError{Violations: []string{"seller is not a valid address", "endTime must be after startTime"}},
	}
	h := NewOrderHandler(svc, discardLogger())

	rec := postOrder(t, h, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var body struct {
		Error      string   `json:"error"`
		Violations []string `json:"violations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Violations) != 2 {
		t.Fatalf("violations = %v, want both reported", body.Violations)
	}
}

func TestCreateOrderMapsConflict(t *testing.T) {
	svc := &stubOrderService{
		createErr: &domain.ConflictError{ExistingID: "existing-id"},
	}
	h := NewOrderHandler(svc, discardLogger())

	rec := postOrder(t, h, `{}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["existingOrderId"] != "existing-id" {
		t.Fatalf("existingOrderId = %v", body["existingOrderId"])
	}
}

func TestCreateOrderMapsInvalidSignature(t *testing.T) {
	svc := &stubOrderService{createErr: domain.ErrInvalidSignature}
	h := NewOrderHandler(svc, discardLogger())

	rec := postOrder(t, h, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateOrderRejectsMalformedBody(t *testing.T) {
	h := NewOrderHandler(&stubOrderService{}, discardLogger())

	rec := postOrder(t, h, `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateOrderHappyPath(t *testing.T) {
	svc := &stubOrderService{
		createResult: domain.Order{ID: "new-id", Status: domain.OrderStatusActive},
	}
	h := NewOrderHandler(svc, discardLogger())

	rec := postOrder(t, h, `{"orderType":"FULL"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var created domain.Order
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID != "new-id" {
		t.Fatalf("id = %q", created.ID)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	svc := &stubOrderService{getErr: domain.ErrNotFound}
	h := NewOrderHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/orders/nope", nil)
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()
	h.GetOrder(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListActiveOrdersReturnsEmptyArray(t *testing.T) {
	h := NewOrderHandler(&stubOrderService{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/orders/active", nil)
	rec := httptest.NewRecorder()
	h.ListActiveOrders(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	// nil slice must serialize as [], not null.
	if !strings.Contains(rec.Body.String(), `"orders":[]`) {
		t.Fatalf("body = %s, want empty orders array", rec.Body.String())
	}
}
