package handle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"restaurant-system/internal/order/app/core"
	"restaurant-system/internal/order/domain/dto"
	"restaurant-system/internal/order/domain/models"
	"restaurant-system/internal/xpkg/auth"
	xerrors "restaurant-system/internal/xpkg/errors"
	"restaurant-system/internal/xpkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type stubOrders struct {
	created models.Order
	err     error
	actor   auth.Actor
	req     dto.CreateOrderRequest
}

func (s *stubOrders) Create(_ context.Context, actor auth.Actor, req dto.CreateOrderRequest) (models.Order, error) {
	s.actor, s.req = actor, req
	return s.created, s.err
}

func (s *stubOrders) Get(_ context.Context, id uuid.UUID) (models.Order, error) {
	if id != s.created.ID {
		return models.Order{}, core.ErrOrderNotFound
	}
	return s.created, nil
}

func (s *stubOrders) UpdateStatus(_ context.Context, _ auth.Actor, _ uuid.UUID, req dto.UpdateStatusRequest) (models.Order, error) {
	if s.err != nil {
		return models.Order{}, s.err
	}
	o := s.created
	o.Status = req.Status
	return o, nil
}

func (s *stubOrders) AssignCourier(context.Context, auth.Actor, uuid.UUID, dto.AssignCourierRequest) (models.Order, error) {
	return s.created, s.err
}

func (s *stubOrders) History(context.Context, uuid.UUID) ([]models.StatusLog, error) {
	return nil, s.err
}

func withActor(r *http.Request, role auth.Role) *http.Request {
	return r.WithContext(auth.WithActor(r.Context(), auth.Actor{ID: "u-1", Role: role}))
}

func serve(h http.Handler, pattern string, r *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.Handle(pattern, h)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func TestCreateOrderHandler(t *testing.T) {
	order := models.Order{ID: uuid.New(), Number: "ORD-0000000000000000001", Status: models.StatusPending, TotalAmount: decimal.RequireFromString("370")}
	svc := &stubOrders{created: order}
	h := NewOrderHandler(svc, logger.Nop())

	body := `{"type":"delivery","customer":{"name":"Aigerim"},"delivery_address":"Abay ave 10","items":[{"product_id":"` + uuid.NewString() + `","quantity":2,"modifiers":["cheese"]}]}`
	r := withActor(httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body)), auth.RoleCashier)
	w := serve(h.Create(), "POST /orders", r)

	if w.Code != http.StatusCreated {
		t.Fatalf("code = %d, body %s", w.Code, w.Body)
	}
	var resp dto.OrderResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Number != order.Number || resp.Warning != "" || !resp.TotalAmount.Equal(order.TotalAmount) {
		t.Fatalf("response = %+v", resp)
	}
	if svc.actor.ID != "u-1" || svc.req.Items[0].Quantity != 2 {
		t.Fatalf("service saw actor=%+v req=%+v", svc.actor, svc.req)
	}
}

func TestCreateOrderHandlerErrors(t *testing.T) {
	valid := `{"type":"takeaway","customer":{"name":"Dana"},"items":[]}`
	tests := []struct {
		name    string
		body    string
		anon    bool
		svcErr  error
		want    int
		warning bool
	}{
		{"anonymous", valid, true, nil, http.StatusUnauthorized, false},
		{"malformed json", `{"type":`, false, nil, http.StatusBadRequest, false},
		{"unknown field", `{"tipe":"takeaway"}`, false, nil, http.StatusBadRequest, false},
		{"validation", valid, false, core.Validationf("no items"), http.StatusBadRequest, false},
		{"forbidden", valid, false, fmt.Errorf("%w: courier", core.ErrForbidden), http.StatusForbidden, false},
		{"storage", valid, false, fmt.Errorf("%w: timeout", core.ErrStorage), http.StatusInternalServerError, false},
		{"publish failed", valid, false, fmt.Errorf("%w: closed", xerrors.ErrPublish), http.StatusCreated, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubOrders{created: models.Order{ID: uuid.New()}, err: tt.svcErr}
			r := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(tt.body))
			if !tt.anon {
				r = withActor(r, auth.RoleCashier)
			}
			w := serve(NewOrderHandler(svc, logger.Nop()).Create(), "POST /orders", r)

			if w.Code != tt.want {
				t.Fatalf("code = %d, want %d (%s)", w.Code, tt.want, w.Body)
			}
			if got := strings.Contains(w.Body.String(), `"warning"`); got != tt.warning {
				t.Fatalf("warning present = %v, body %s", got, w.Body)
			}
			if tt.want == http.StatusInternalServerError && strings.Contains(w.Body.String(), "timeout") {
				t.Fatalf("internal error leaked: %s", w.Body)
			}
		})
	}
}

func TestGetOrderHandler(t *testing.T) {
	order := models.Order{ID: uuid.New(), Number: "ORD-1"}
	h := NewOrderHandler(&stubOrders{created: order}, logger.Nop())

	w := serve(h.Get(), "GET /orders/{id}", httptest.NewRequest(http.MethodGet, "/orders/"+order.ID.String(), nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ORD-1") {
		t.Fatalf("code=%d body=%s", w.Code, w.Body)
	}

	w = serve(h.Get(), "GET /orders/{id}", httptest.NewRequest(http.MethodGet, "/orders/"+uuid.NewString(), nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing order code = %d", w.Code)
	}

	w = serve(h.Get(), "GET /orders/{id}", httptest.NewRequest(http.MethodGet, "/orders/not-a-uuid", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id code = %d", w.Code)
	}
}

func TestUpdateStatusConflict(t *testing.T) {
	svc := &stubOrders{err: fmt.Errorf("%w: pending -> ready", core.ErrIllegalTransition)}
	r := withActor(httptest.NewRequest(http.MethodPatch, "/orders/"+uuid.NewString()+"/status", strings.NewReader(`{"status":"ready"}`)), auth.RoleCashier)

	w := serve(NewOrderHandler(svc, logger.Nop()).UpdateStatus(), "PATCH /orders/{id}/status", r)
	if w.Code != http.StatusConflict {
		t.Fatalf("code = %d, want 409", w.Code)
	}
}

func TestHistoryEmptyIsArray(t *testing.T) {
	w := serve(NewOrderHandler(&stubOrders{}, logger.Nop()).History(), "GET /orders/{id}/history",
		httptest.NewRequest(http.MethodGet, "/orders/"+uuid.NewString()+"/history", nil))
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("code=%d body=%q", w.Code, w.Body)
	}
}

type stubPayments struct {
	refundReq dto.RefundPaymentRequest
	result    core.PaymentResult
	err       error
}

func (s *stubPayments) Create(context.Context, auth.Actor, dto.CreatePaymentRequest) (models.Payment, error) {
	return s.result.Payment, s.err
}

func (s *stubPayments) Get(context.Context, uuid.UUID) (models.Payment, error) {
	return s.result.Payment, s.err
}

func (s *stubPayments) ListByOrder(context.Context, uuid.UUID) ([]models.Payment, error) {
	return nil, s.err
}

func (s *stubPayments) Process(context.Context, auth.Actor, uuid.UUID, dto.ProcessPaymentRequest) (core.PaymentResult, error) {
	return s.result, s.err
}

func (s *stubPayments) Refund(_ context.Context, _ auth.Actor, _ uuid.UUID, req dto.RefundPaymentRequest) (core.PaymentResult, error) {
	s.refundReq = req
	return s.result, s.err
}

func TestRefundHandler(t *testing.T) {
	svc := &stubPayments{result: core.PaymentResult{
		Payment:       models.Payment{ID: uuid.New(), Type: models.PaymentRefund, Amount: decimal.RequireFromString("100")},
		PaymentStatus: models.PaymentStatusPending,
	}}
	h := NewPaymentHandler(svc, logger.Nop())
	path := "/payments/" + uuid.NewString() + "/refund"

	// an empty body refunds everything that is left
	w := serve(h.Refund(), "PATCH /payments/{id}/refund", withActor(httptest.NewRequest(http.MethodPatch, path, nil), auth.RoleManager))
	if w.Code != http.StatusOK || svc.refundReq.Amount != nil {
		t.Fatalf("code=%d amount=%v", w.Code, svc.refundReq.Amount)
	}
	if !strings.Contains(w.Body.String(), `"order_payment_status":"pending"`) {
		t.Fatalf("body = %s", w.Body)
	}

	w = serve(h.Refund(), "PATCH /payments/{id}/refund",
		withActor(httptest.NewRequest(http.MethodPatch, path, strings.NewReader(`{"amount":"25.50","reason":"cold"}`)), auth.RoleManager))
	if w.Code != http.StatusOK || svc.refundReq.Amount == nil || !svc.refundReq.Amount.Equal(decimal.RequireFromString("25.5")) {
		t.Fatalf("code=%d req=%+v", w.Code, svc.refundReq)
	}
}

type stubFiscal struct {
	receipt models.Receipt
	err     error
	calls   []string
}

func (s *stubFiscal) Create(context.Context, auth.Actor, dto.CreateReceiptRequest) (models.Receipt, error) {
	s.calls = append(s.calls, "create")
	return s.receipt, s.err
}

func (s *stubFiscal) Get(context.Context, uuid.UUID) (models.Receipt, error) { return s.receipt, s.err }

func (s *stubFiscal) ListByOrder(context.Context, uuid.UUID) ([]models.Receipt, error) {
	return []models.Receipt{s.receipt}, s.err
}

func (s *stubFiscal) Send(context.Context, auth.Actor, uuid.UUID) (models.Receipt, error) {
	s.calls = append(s.calls, "send")
	return s.receipt, s.err
}

func (s *stubFiscal) Retry(context.Context, auth.Actor, uuid.UUID) (models.Receipt, error) {
	s.calls = append(s.calls, "retry")
	return s.receipt, s.err
}

func (s *stubFiscal) Confirm(context.Context, auth.Actor, uuid.UUID) (models.Receipt, error) {
	s.calls = append(s.calls, "confirm")
	return s.receipt, s.err
}

func TestReceiptTransitions(t *testing.T) {
	svc := &stubFiscal{receipt: models.Receipt{ID: uuid.New(), Status: models.ReceiptFailed, ErrorMessage: "registrar unavailable"}}
	h := NewReceiptHandler(svc, logger.Nop())
	id := uuid.NewString()

	routes := []struct {
		pattern string
		handler http.HandlerFunc
		path    string
	}{
		{"POST /fiscal/receipts/{id}/send", h.Send(), "/fiscal/receipts/" + id + "/send"},
		{"POST /fiscal/receipts/{id}/retry", h.Retry(), "/fiscal/receipts/" + id + "/retry"},
		{"POST /fiscal/receipts/{id}/confirm", h.Confirm(), "/fiscal/receipts/" + id + "/confirm"},
	}
	for _, rt := range routes {
		w := serve(rt.handler, rt.pattern, withActor(httptest.NewRequest(http.MethodPost, rt.path, nil), auth.RoleManager))
		if w.Code != http.StatusOK {
			t.Fatalf("%s code = %d", rt.pattern, w.Code)
		}
	}
	if strings.Join(svc.calls, ",") != "send,retry,confirm" {
		t.Fatalf("calls = %v", svc.calls)
	}

	svc.err = core.ErrReceiptExists
	w := serve(h.Create(), "POST /fiscal/receipts", withActor(httptest.NewRequest(http.MethodPost, "/fiscal/receipts",
		strings.NewReader(`{"order_id":"`+id+`","type":"sale"}`)), auth.RoleCashier))
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate receipt code = %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	w := serve(NewHealthHandler("order-service", map[string]Check{"postgres": ok}).Health(), "GET /health",
		httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"healthy"`) {
		t.Fatalf("code=%d body=%s", w.Code, w.Body)
	}

	w = serve(NewHealthHandler("order-service", map[string]Check{"postgres": ok, "rabbitmq": down}).Health(), "GET /health",
		httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "connection refused") {
		t.Fatalf("code=%d body=%s", w.Code, w.Body)
	}
}
