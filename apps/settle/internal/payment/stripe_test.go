package payment

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"settle/apps/settle/internal/model"
	"settle/apps/settle/internal/money"
)

const testWebhookSecret = "whsec_test"

func signedHeader(payload []byte, secret string, at time.Time) string {
	signature := webhook.ComputeSignature(at, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(signature))
}

func intentEvent(eventType, intentID, orderID string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"type": %q,
		"created": 1767225600,
		"data": {"object": {"id": %q, "object": "payment_intent", "amount": %d, "currency": "usd", "metadata": {"order_id": %q}}}
	}`, eventType, intentID, amount, orderID))
}

func TestParseWebhook(t *testing.T) {
	gateway := NewStripeGateway(StripeConfig{SecretKey: "sk_test", WebhookSecret: testWebhookSecret}, nil, zap.NewNop())
	now := time.Now()

	tests := []struct {
		name       string
		payload    []byte
		secret     string
		wantErr    error
		wantStatus string
	}{
		{
			name:       "Succeeded",
			payload:    intentEvent("payment_intent.succeeded", "pi_1", "order-1", 10050),
			secret:     testWebhookSecret,
			wantStatus: string(model.PaymentSucceeded),
		},
		{
			name:       "Failed",
			payload:    intentEvent("payment_intent.payment_failed", "pi_1", "order-1", 10050),
			secret:     testWebhookSecret,
			wantStatus: string(model.PaymentFailed),
		},
		{
			name:    "Ignored",
			payload: intentEvent("payment_intent.created", "pi_1", "order-1", 10050),
			secret:  testWebhookSecret,
			wantErr: ErrIgnoredEvent,
		},
		{
			name:    "BadSignature",
			payload: intentEvent("payment_intent.succeeded", "pi_1", "order-1", 10050),
			secret:  "whsec_other",
			wantErr: ErrInvalidSignature,
		},
		{
			name:    "MissingOrder",
			payload: intentEvent("payment_intent.succeeded", "pi_1", "", 10050),
			secret:  testWebhookSecret,
			wantErr: model.ErrInvalidEvent,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			event, err := gateway.ParseWebhook(test.payload, signedHeader(test.payload, test.secret, now))
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("Expected %v, got %v", test.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseWebhook failed: %v", err)
			}
			if event.Status != test.wantStatus {
				t.Errorf("Expected status %s, got %s", test.wantStatus, event.Status)
			}
			if event.Provider != Provider || event.ProviderID != "pi_1" || event.OrderID != "order-1" {
				t.Errorf("Unexpected event: %+v", event)
			}
			if !event.Amount.Equal(money.MustParse("100.50")) {
				t.Errorf("Expected 100.50, got %s", event.Amount)
			}
		})
	}
}

func TestParseWebhookRejectsStaleSignature(t *testing.T) {
	gateway := NewStripeGateway(StripeConfig{WebhookSecret: testWebhookSecret}, nil, zap.NewNop())
	payload := intentEvent("payment_intent.succeeded", "pi_1", "order-1", 100)

	_, err := gateway.ParseWebhook(payload, signedHeader(payload, testWebhookSecret, time.Now().Add(-time.Hour)))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature for a replayed webhook, got %v", err)
	}
}

func TestCreateIntent(t *testing.T) {
	var gotAmount, gotOrder, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" {
			http.NotFound(w, r)
			return
		}
		r.ParseForm()
		gotAmount = r.Form.Get("amount")
		gotOrder = r.Form.Get("metadata[order_id]")
		gotKey = r.Header.Get("Idempotency-Key")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"pi_123","object":"payment_intent","amount":10000,"currency":"usd","client_secret":"pi_123_secret_abc"}`))
	}))
	defer server.Close()

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(server.URL),
		MaxNetworkRetries: stripe.Int64(0),
	})
	gateway := NewStripeGateway(StripeConfig{SecretKey: "sk_test"}, &stripe.Backends{API: backend, Connect: backend, Uploads: backend}, zap.NewNop())

	intent, err := gateway.CreateIntent(context.Background(), &model.Order{
		OrderID:    "order-1",
		BuyerID:    "buyer-1",
		TotalPrice: money.MustParse("100.00"),
	})
	if err != nil {
		t.Fatalf("CreateIntent failed: %v", err)
	}

	if gotAmount != "10000" || gotOrder != "order-1" || gotKey != "order-order-1" {
		t.Errorf("Unexpected request: amount=%s order=%s key=%s", gotAmount, gotOrder, gotKey)
	}
	if intent.ProviderID != "pi_123" || intent.ClientSecret != "pi_123_secret_abc" || intent.Amount != "100.00" {
		t.Errorf("Unexpected intent: %+v", intent)
	}
}
