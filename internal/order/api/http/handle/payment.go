package handle

import (
	"context"
	"net/http"
	"time"

	"restaurant-system/internal/order/app/core"
	"restaurant-system/internal/order/domain/dto"
	"restaurant-system/internal/order/domain/models"
	"restaurant-system/internal/xpkg/auth"
	"restaurant-system/internal/xpkg/logger"

	"github.com/google/uuid"
)

type PaymentService interface {
	Create(ctx context.Context, actor auth.Actor, req dto.CreatePaymentRequest) (models.Payment, error)
	Get(ctx context.Context, id uuid.UUID) (models.Payment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
	Process(ctx context.Context, actor auth.Actor, id uuid.UUID, req dto.ProcessPaymentRequest) (core.PaymentResult, error)
	Refund(ctx context.Context, actor auth.Actor, id uuid.UUID, req dto.RefundPaymentRequest) (core.PaymentResult, error)
}

type PaymentHandler struct {
	paymentService PaymentService
	mylog          logger.Logger
}

func NewPaymentHandler(paymentService PaymentService, mylog logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		mylog:          mylog,
	}
}

func (ph *PaymentHandler) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mylog := ph.mylog.Action("create_payment")

		actor, err := actorOf(r)
		if err != nil {
			serviceError(w, mylog, err)
			return
		}
		var req dto.CreatePaymentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			serviceError(w, mylog, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), core.WaitTime*time.Second)
		defer cancel()

		p, err := ph.paymentService.Create(ctx, actor, req)
		if err != nil {
			serviceError(w, mylog, err)
			return
		}
		jsonResponse(w, http.StatusCreated, dto.PaymentResponse{Payment: p})
	}
}

func (ph *PaymentHandler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mylog := ph.mylog.Action("get_payment")

		id, err := pathID(r)
		if err != nil {
			serviceError(w, mylog, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), core.WaitTime*time.Second)
		defer cancel()

		p, err := ph.paymentService.Get(ctx, id)
		if err != nil {
			serviceError(w, mylog, err)
			return
		}
		jsonResponse(w, http.StatusOK, p)
	}
}

func (ph *PaymentHandler) ListByOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mylog := ph.mylog.Action("list_order_payments")

		id, err := pathID(r)
		if err != nil {
			serviceError(w, mylog, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), core.WaitTime*time.Second)
		defer cancel()

		payments, err := ph.paymentService.ListByOrder(ctx, id)
		if err != nil {
			serviceError(w, mylog, err)
			return
		}
		if payments == nil {
			payments = []models.Payment{}
		}
		jsonResponse(w, http.StatusOK, payments)
	}
}

func (ph *PaymentHandler) Process() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mylog := ph.mylog.Action("process_payment")

		actor, err := actorOf(r)
		if err != nil {
			serviceError(w, mylog, err)
			return
		}
		id, err := pathID(r)
		if err != nil {
			serviceError(w, mylog, err)
			return
		}
		var req dto.ProcessPaymentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			serviceError(w, mylog, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), core.WaitTime*time.Second)
		defer cancel()

		res, err := ph.paymentService.Process(ctx, actor, id, req)
		writePaymentResult(w, mylog, res, err)
	}
}

func (ph *PaymentHandler) Refund() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mylog := ph.mylog.Action("refund_payment")

		actor, err := actorOf(r)
		if err != nil {
			serviceError(w, mylog, err)
			return
		}
		id, err := pathID(r)
		if err != nil {
			serviceError(w, mylog, err)
			return
		}
		var req dto.RefundPaymentRequest
		if r.ContentLength != 0 {
			if err := decodeJSON(w, r, &req); err != nil {
				serviceError(w, mylog, err)
				return
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), core.WaitTime*time.Second)
		defer cancel()

		res, err := ph.paymentService.Refund(ctx, actor, id, req)
		writePaymentResult(w, mylog, res, err)
	}
}

func writePaymentResult(w http.ResponseWriter, mylog logger.Logger, res core.PaymentResult, err error) {
	resp := dto.PaymentResponse{
		Payment:            res.Payment,
		OriginalPayment:    res.Original,
		OrderPaymentStatus: res.PaymentStatus,
	}
	switch {
	case err == nil:
	case publishFailed(err):
		resp.Warning = publishWarning
	default:
		serviceError(w, mylog, err)
		return
	}
	jsonResponse(w, http.StatusOK, resp)
}
