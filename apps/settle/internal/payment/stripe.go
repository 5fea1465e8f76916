package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"settle/apps/settle/internal/events"
	"settle/apps/settle/internal/model"
	"settle/apps/settle/internal/money"
)

const Provider = "stripe"

// ErrIgnoredEvent is returned by ParseWebhook for event types that carry no
// payment outcome. Callers acknowledge them with 200.
var ErrIgnoredEvent = errors.New("ignored stripe event")

var ErrInvalidSignature = errors.New("invalid stripe signature")

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

// Intent is what the buyer's client needs to confirm a payment
type Intent struct {
	Provider     string `json:"provider"`
	ProviderID   string `json:"provider_id"`
	ClientSecret string `json:"client_secret"`
	Amount       string `json:"amount"`
}

type StripeGateway struct {
	api      *client.API
	config   StripeConfig
	logger   *zap.Logger
	tolerate time.Duration
}

func NewStripeGateway(config StripeConfig, backends *stripe.Backends, logger *zap.Logger) *StripeGateway {
	if config.Currency == "" {
		config.Currency = string(stripe.CurrencyUSD)
	}
	return &StripeGateway{
		api:      client.New(config.SecretKey, backends),
		config:   config,
		logger:   logger,
		tolerate: webhook.DefaultTolerance,
	}
}

// CreateIntent opens a PaymentIntent for the order total. The order id is
// the idempotency key, so a retried checkout returns the same intent.
func (g *StripeGateway) CreateIntent(ctx context.Context, order *model.Order) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(order.TotalPrice.Minor()),
		Currency: stripe.String(g.config.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", order.OrderID)
	params.AddMetadata("buyer_id", order.BuyerID)
	params.SetIdempotencyKey("order-" + order.OrderID)

	intent, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent for order %s: %w", order.OrderID, err)
	}

	g.logger.Info("Created payment intent",
		zap.String("order_id", order.OrderID),
		zap.String("provider_id", intent.ID),
		zap.Int64("amount_minor", intent.Amount))

	return &Intent{
		Provider:     Provider,
		ProviderID:   intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       money.FromMinor(intent.Amount).String(),
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and turns a payment
// intent outcome into an ingestion event.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*events.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.config.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                g.tolerate,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var status model.PaymentStatus
	switch event.Type {
	case "payment_intent.succeeded":
		status = model.PaymentSucceeded
	case "payment_intent.payment_failed", "payment_intent.canceled":
		status = model.PaymentFailed
	default:
		return nil, fmt.Errorf("%w: %s", ErrIgnoredEvent, event.Type)
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent: %w", err)
	}
	orderID := intent.Metadata["order_id"]
	if orderID == "" {
		return nil, fmt.Errorf("%w: payment intent %s has no order_id metadata", model.ErrInvalidEvent, intent.ID)
	}

	return &events.PaymentEvent{
		Provider:   Provider,
		ProviderID: intent.ID,
		OrderID:    orderID,
		Amount:     money.FromMinor(intent.Amount),
		Status:     string(status),
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}, nil
}
