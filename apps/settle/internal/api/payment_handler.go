package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"settle/apps/settle/internal/events"
	"settle/apps/settle/internal/model"
	"settle/apps/settle/internal/payment"
	"settle/apps/settle/internal/settlement"
)

const maxWebhookBody = 64 << 10

// PaymentGateway is implemented by payment.StripeGateway
type PaymentGateway interface {
	CreateIntent(ctx context.Context, order *model.Order) (*payment.Intent, error)
	ParseWebhook(payload []byte, signature string) (*events.PaymentEvent, error)
}

// PaymentHandler handles checkout and provider confirmations
type PaymentHandler struct {
	responder
	service *settlement.Service
	gateway PaymentGateway
}

func NewPaymentHandler(service *settlement.Service, gateway PaymentGateway, r responder) *PaymentHandler {
	return &PaymentHandler{responder: r, service: service, gateway: gateway}
}

// CreateIntent handles POST /api/payments/intent
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil {
		h.writeErrorResponse(w, http.StatusServiceUnavailable, "payments_unavailable", "No payment provider is configured")
		return
	}

	var req PaymentIntentRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	actor := actorFrom(r)
	order, err := h.service.GetOrder(r.Context(), actor, req.OrderID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if order.BuyerID != actor.UserID {
		h.writeServiceError(w, r, fmt.Errorf("%w: only the buyer may pay for order %s", model.ErrPermission, order.OrderID))
		return
	}
	if order.Status != model.OrderCreated {
		h.writeServiceError(w, r, fmt.Errorf("%w: order %s is %s", model.ErrInvalidTransition, order.OrderID, order.Status))
		return
	}

	intent, err := h.gateway.CreateIntent(r.Context(), order)
	if err != nil {
		h.logger.Error("Failed to create payment intent", zap.String("order_id", order.OrderID), zap.Error(err))
		h.writeErrorResponse(w, http.StatusBadGateway, "provider_error", "Failed to create payment intent")
		return
	}

	if _, err := h.service.RecordPaymentIntent(r.Context(), actor, order.OrderID, intent.Provider, intent.ProviderID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusCreated, intent)
}

// StripeWebhook handles POST /api/payments/webhook/stripe. Only events with
// a valid signature reach ingestion; Stripe retries anything that is not 2xx.
func (h *PaymentHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil {
		h.writeErrorResponse(w, http.StatusServiceUnavailable, "payments_unavailable", "No payment provider is configured")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeErrorResponse(w, http.StatusRequestEntityTooLarge, "payload_too_large", fmt.Sprintf("Webhook body exceeds %d bytes", tooLarge.Limit))
			return
		}
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_request_body", "Failed to read request body")
		return
	}

	event, err := h.gateway.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, payment.ErrIgnoredEvent):
		h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	case errors.Is(err, payment.ErrInvalidSignature):
		h.logger.Warn("Rejected webhook with invalid signature", zap.String("remote_addr", r.RemoteAddr))
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_signature", "Signature verification failed")
		return
	case err != nil:
		h.writeServiceError(w, r, err)
		return
	}

	h.ingest(w, r, *event)
}

// IngestEvent handles POST /api/payments/events. Staff use it to replay a
// provider confirmation by hand.
func (h *PaymentHandler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r).IsStaff() {
		h.writeServiceError(w, r, fmt.Errorf("%w: manual payment events are staff only", model.ErrPermission))
		return
	}

	var event events.PaymentEvent
	if !h.decodeBody(w, r, &event) {
		return
	}
	h.ingest(w, r, event)
}

func (h *PaymentHandler) ingest(w http.ResponseWriter, r *http.Request, event events.PaymentEvent) {
	result, err := h.service.IngestPayment(r.Context(), event)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, toIngestResponse(result))
}
