package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"settle/apps/settle/internal/model"
	"settle/apps/settle/internal/settlement"
)

type EscrowHandler struct {
	responder
	service *settlement.Service
}

func NewEscrowHandler(service *settlement.Service, r responder) *EscrowHandler {
	return &EscrowHandler{responder: r, service: service}
}

// ListEscrows handles GET /api/escrows
func (h *EscrowHandler) ListEscrows(w http.ResponseWriter, r *http.Request) {
	escrows, err := h.service.ListEscrows(r.Context(), actorFrom(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	response := make([]EscrowResponse, 0, len(escrows))
	for i := range escrows {
		response = append(response, toEscrowResponse(&escrows[i]))
	}
	h.writeJSONResponse(w, http.StatusOK, response)
}

// GetEscrow handles GET /api/escrows/{id}
func (h *EscrowHandler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	escrow, err := h.service.GetEscrow(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, toEscrowResponse(escrow))
}

// ClientFulfill handles POST /api/escrows/{id}/client-fulfill
func (h *EscrowHandler) ClientFulfill(w http.ResponseWriter, r *http.Request) {
	h.fulfill(w, r, h.service.ClientFulfill)
}

// CreativeFulfill handles POST /api/escrows/{id}/creative-fulfill
func (h *EscrowHandler) CreativeFulfill(w http.ResponseWriter, r *http.Request) {
	h.fulfill(w, r, h.service.CreativeFulfill)
}

func (h *EscrowHandler) fulfill(w http.ResponseWriter, r *http.Request, mark func(context.Context, model.Actor, string) (*settlement.FulfillResult, error)) {
	result, err := mark(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, FulfillResponse{
		Escrow:   toEscrowResponse(result.Escrow),
		Released: result.Released,
	})
}

// Refund handles POST /api/escrows/{id}/refund
func (h *EscrowHandler) Refund(w http.ResponseWriter, r *http.Request) {
	escrow, err := h.service.Refund(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, toEscrowResponse(escrow))
}
