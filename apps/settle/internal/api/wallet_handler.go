package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"settle/apps/settle/internal/settlement"
)

// WalletHandler serves the creative's ledger and withdrawal requests
type WalletHandler struct {
	responder
	service *settlement.Service
}

func NewWalletHandler(service *settlement.Service, r responder) *WalletHandler {
	return &WalletHandler{responder: r, service: service}
}

// GetWallet handles GET /api/wallet
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.service.WalletForUser(r.Context(), actorFrom(r).UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, toWalletResponse(wallet))
}

// ListWithdrawals handles GET /api/withdrawals
func (h *WalletHandler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListWithdrawals(r.Context(), actorFrom(r).UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	response := make([]WithdrawalResponse, 0, len(requests))
	for i := range requests {
		response = append(response, toWithdrawalResponse(&requests[i]))
	}
	h.writeJSONResponse(w, http.StatusOK, response)
}

// RequestWithdrawal handles POST /api/withdrawals
func (h *WalletHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req WithdrawalRequestBody
	if !h.decodeBody(w, r, &req) {
		return
	}

	request, err := h.service.RequestWithdrawal(r.Context(), actorFrom(r), req.Amount)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusCreated, toWithdrawalResponse(request))
}

// ApproveWithdrawal handles POST /api/withdrawals/{id}/approve. A request the
// wallet no longer covers comes back 200 with status rejected.
func (h *WalletHandler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	request, err := h.service.ApproveWithdrawal(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, toWithdrawalResponse(request))
}

// RejectWithdrawal handles POST /api/withdrawals/{id}/reject
func (h *WalletHandler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	request, err := h.service.RejectWithdrawal(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, toWithdrawalResponse(request))
}
