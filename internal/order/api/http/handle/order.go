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

type OrderService interface {
	Create(ctx context.Context, actor auth.Actor, req dto.CreateOrderRequest) (models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (models.Order, error)
	UpdateStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, req dto.UpdateStatusRequest) (models.Order, error)
	AssignCourier(ctx context.Context, actor auth.Actor, id uuid.UUID, req dto.AssignCourierRequest) (models.Order, error)
	History(ctx context.Context, id uuid.UUID) ([]models.StatusLog, error)
}

type OrderHandler struct {
	orderService OrderService
	mylog        logger.Logger
}

func NewOrderHandler(orderService OrderService, mylog logger.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		mylog:        mylog,
	}
}

func (oh *OrderHandler) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mylog := oh.mylog.Action("create_order")

		actor, err := actorOf(r)
		if err != nil {
			serviceError(w, mylog, err)
			return
		}

		var req dto.CreateOrderRequest
		if err := decodeJSON(w, r, &req); err != nil {
			mylog.Debug("Failed to parse order", "error", err.Error())
			serviceError(w, mylog, err)
			return
		}
		mylog.Debug("Received order info", "customer_name", req.Customer.Name, "type", req.Type, "number_of_items", len(req.Items))

		ctx, cancel := context.WithTimeout(r.Context(), core.WaitTime*time.Second)
		defer cancel()

		order, err := oh.orderService.Create(ctx, actor, req)
		writeOrder(w, mylog, http.StatusCreated, order, err)
	}
}

func (oh *OrderHandler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mylog := oh.mylog.Action("get_order")

		id, err := pathID(r)
		if err != nil {
			serviceError(w, mylog, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), core.WaitTime*time.Second)
		defer cancel()

		order, err := oh.orderService.Get(ctx, id)
		if err != nil {
			serviceError(w, mylog, err)
			return
		}
		jsonResponse(w, http.StatusOK, order)
	}
}

func (oh *OrderHandler) UpdateStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mylog := oh.mylog.Action("update_order_status")

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
		var req dto.UpdateStatusRequest
		if err := decodeJSON(w, r, &req); err != nil {
			serviceError(w, mylog, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), core.WaitTime*time.Second)
		defer cancel()

		order, err := oh.orderService.UpdateStatus(ctx, actor, id, req)
		writeOrder(w, mylog, http.StatusOK, order, err)
	}
}

func (oh *OrderHandler) AssignCourier() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mylog := oh.mylog.Action("assign_courier")

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
		var req dto.AssignCourierRequest
		if err := decodeJSON(w, r, &req); err != nil {
			serviceError(w, mylog, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), core.WaitTime*time.Second)
		defer cancel()

		order, err := oh.orderService.AssignCourier(ctx, actor, id, req)
		writeOrder(w, mylog, http.StatusOK, order, err)
	}
}

func (oh *OrderHandler) History() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mylog := oh.mylog.Action("order_history")

		id, err := pathID(r)
		if err != nil {
			serviceError(w, mylog, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), core.WaitTime*time.Second)
		defer cancel()

		logs, err := oh.orderService.History(ctx, id)
		if err != nil {
			serviceError(w, mylog, err)
			return
		}
		if logs == nil {
			logs = []models.StatusLog{}
		}
		jsonResponse(w, http.StatusOK, logs)
	}
}

func writeOrder(w http.ResponseWriter, mylog logger.Logger, code int, order models.Order, err error) {
	resp := dto.OrderResponse{Order: order}
	switch {
	case err == nil:
	case publishFailed(err):
		resp.Warning = publishWarning
	default:
		serviceError(w, mylog, err)
		return
	}
	mylog.Info("Order request completed", "order_id", order.ID, "status", order.Status)
	jsonResponse(w, code, resp)
}
