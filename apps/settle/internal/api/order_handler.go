package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"settle/apps/settle/internal/settlement"
)

// OrderHandler handles order-related API endpoints
type OrderHandler struct {
	responder
	service *settlement.Service
}

func NewOrderHandler(service *settlement.Service, r responder) *OrderHandler {
	return &OrderHandler{responder: r, service: service}
}

// CreateOrder handles POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.ServiceID == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "missing_service_id", "service_id is required")
		return
	}

	order, err := h.service.CreateOrder(r.Context(), actorFrom(r), req.ServiceID, req.Extras)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusCreated, toOrderResponse(order))
}

// GetOrder handles GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}

// ListPayments handles GET /api/orders/{id}/payments
// GetOrderEscrow handles GET /api/orders/{id}/escrow
func (h *OrderHandler) GetOrderEscrow(w http.ResponseWriter, r *http.Request) {
	escrow, err := h.service.EscrowForOrder(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, toEscrowResponse(escrow))
}

func (h *OrderHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListPayments(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	response := make([]PaymentResponse, 0, len(payments))
	for i := range payments {
		response = append(response, toPaymentResponse(&payments[i]))
	}
	h.writeJSONResponse(w, http.StatusOK, response)
}
