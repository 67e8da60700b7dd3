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

type FiscalService interface {
	Create(ctx context.Context, actor auth.Actor, req dto.CreateReceiptRequest) (models.Receipt, error)
	Get(ctx context.Context, id uuid.UUID) (models.Receipt, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Receipt, error)
	Send(ctx context.Context, actor auth.Actor, id uuid.UUID) (models.Receipt, error)
	Retry(ctx context.Context, actor auth.Actor, id uuid.UUID) (models.Receipt, error)
	Confirm(ctx context.Context, actor auth.Actor, id uuid.UUID) (models.Receipt, error)
}

type ReceiptHandler struct {
	fiscalService FiscalService
	mylog         logger.Logger
}

func NewReceiptHandler(fiscalService FiscalService, mylog logger.Logger) *ReceiptHandler {
	return &ReceiptHandler{
		fiscalService: fiscalService,
		mylog:         mylog,
	}
}

func (rh *ReceiptHandler) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mylog := rh.mylog.Action("create_receipt")

		actor, err := actorOf(r)
		if err != nil {
			serviceError(w, mylog, err)
			return
		}
		var req dto.CreateReceiptRequest
		if err := decodeJSON(w, r, &req); err != nil {
			serviceError(w, mylog, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), core.WaitTime*time.Second)
		defer cancel()

		receipt, err := rh.fiscalService.Create(ctx, actor, req)
		writeReceipt(w, mylog, http.StatusCreated, receipt, err)
	}
}

func (rh *ReceiptHandler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mylog := rh.mylog.Action("get_receipt")

		id, err := pathID(r)
		if err != nil {
			serviceError(w, mylog, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), core.WaitTime*time.Second)
		defer cancel()

		receipt, err := rh.fiscalService.Get(ctx, id)
		if err != nil {
			serviceError(w, mylog, err)
			return
		}
		jsonResponse(w, http.StatusOK, receipt)
	}
}

func (rh *ReceiptHandler) ListByOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mylog := rh.mylog.Action("list_order_receipts")

		id, err := pathID(r)
		if err != nil {
			serviceError(w, mylog, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), core.WaitTime*time.Second)
		defer cancel()

		receipts, err := rh.fiscalService.ListByOrder(ctx, id)
		if err != nil {
			serviceError(w, mylog, err)
			return
		}
		if receipts == nil {
			receipts = []models.Receipt{}
		}
		jsonResponse(w, http.StatusOK, receipts)
	}
}

type receiptTransition func(ctx context.Context, actor auth.Actor, id uuid.UUID) (models.Receipt, error)

// transition serves send, retry and confirm, which share their shape.
func (rh *ReceiptHandler) transition(action string, fn receiptTransition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mylog := rh.mylog.Action(action)

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

		ctx, cancel := context.WithTimeout(r.Context(), core.WaitTime*time.Second)
		defer cancel()

		receipt, err := fn(ctx, actor, id)
		writeReceipt(w, mylog, http.StatusOK, receipt, err)
	}
}

func (rh *ReceiptHandler) Send() http.HandlerFunc {
	return rh.transition("send_receipt", rh.fiscalService.Send)
}

func (rh *ReceiptHandler) Retry() http.HandlerFunc {
	return rh.transition("retry_receipt", rh.fiscalService.Retry)
}

func (rh *ReceiptHandler) Confirm() http.HandlerFunc {
	return rh.transition("confirm_receipt", rh.fiscalService.Confirm)
}

func writeReceipt(w http.ResponseWriter, mylog logger.Logger, code int, receipt models.Receipt, err error) {
	resp := dto.ReceiptResponse{Receipt: receipt}
	switch {
	case err == nil:
	case publishFailed(err):
		resp.Warning = publishWarning
	default:
		serviceError(w, mylog, err)
		return
	}
	jsonResponse(w, code, resp)
}
