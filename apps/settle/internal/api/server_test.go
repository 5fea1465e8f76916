package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"settle/apps/settle/internal/catalog"
	"settle/apps/settle/internal/feepolicy"
	"settle/apps/settle/internal/memstore"
	"settle/apps/settle/internal/model"
	"settle/apps/settle/internal/money"
	"settle/apps/settle/internal/payment"
	"settle/apps/settle/internal/settlement"
)

const (
	testSecret        = "test-jwt-secret"
	testWebhookSecret = "whsec_test"
)

// fakeGateway verifies webhooks like Stripe but never calls out for intents
type fakeGateway struct {
	*payment.StripeGateway
}

func (g fakeGateway) CreateIntent(_ context.Context, order *model.Order) (*payment.Intent, error) {
	return &payment.Intent{
		Provider:     payment.Provider,
		ProviderID:   "pi_" + order.OrderID,
		ClientSecret: "secret_" + order.OrderID,
		Amount:       order.TotalPrice.String(),
	}, nil
}

type testAPI struct {
	handler  http.Handler
	tokens   map[string]string
	buyer    string
	creative string
	staff    string
}

func newTestAPI(t *testing.T, rateLimit, burst int) *testAPI {
	t.Helper()

	listings := catalog.NewStatic(model.Listing{
		ServiceID: "svc-logo",
		OwnerID:   "creative-1",
		Category:  "design",
		Price:     money.MustParse("80.00"),
		Extras:    []model.Extra{{ID: "fast", Title: "24h delivery", Price: money.MustParse("20.00")}},
	})
	fees, err := feepolicy.NewRegistry(decimal.NewFromInt(33), nil)
	if err != nil {
		t.Fatalf("Failed to create fee registry: %v", err)
	}
	service := settlement.NewService(memstore.New(), listings, fees, zap.NewNop())

	gateway := fakeGateway{payment.NewStripeGateway(payment.StripeConfig{WebhookSecret: testWebhookSecret}, nil, zap.NewNop())}
	server := NewServer(ServerConfig{
		Port:             0,
		JWTSecret:        testSecret,
		WebhookRateLimit: rateLimit,
		WebhookBurst:     burst,
	}, service, gateway, zap.NewNop())

	a := &testAPI{handler: server.Handler(), tokens: map[string]string{}}
	for user, role := range map[string]model.Role{
		"buyer-1":    model.RoleClient,
		"creative-1": model.RoleCreative,
		"staff-1":    model.RoleStaff,
	} {
		token, err := IssueToken(testSecret, user, role, time.Hour)
		if err != nil {
			t.Fatalf("Failed to issue token: %v", err)
		}
		a.tokens[user] = token
	}
	a.buyer, a.creative, a.staff = a.tokens["buyer-1"], a.tokens["creative-1"], a.tokens["staff-1"]
	return a
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		blob, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(blob)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) webhook(t *testing.T, eventType, intentID, orderID string, amountMinor int64) *httptest.ResponseRecorder {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{"id":"evt_%s","object":"event","type":%q,"created":%d,"data":{"object":{"id":%q,"object":"payment_intent","amount":%d,"metadata":{"order_id":%q}}}}`,
		intentID, eventType, time.Now().Unix(), intentID, amountMinor, orderID))
	now := time.Now()
	signature := fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(webhook.ComputeSignature(now, payload, testWebhookSecret)))

	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("Expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
}

func TestHealthCheck(t *testing.T) {
	a := newTestAPI(t, 50, 100)
	rec := a.do(t, http.MethodGet, "/api/health", "", nil)
	expectStatus(t, rec, http.StatusOK)

	var response map[string]string
	decode(t, rec, &response)
	if response["status"] != "healthy" {
		t.Errorf("Expected healthy, got %v", response)
	}
}

func TestSettlementOverHTTP(t *testing.T) {
	a := newTestAPI(t, 50, 100)

	rec := a.do(t, http.MethodPost, "/api/orders", a.buyer, CreateOrderRequest{ServiceID: "svc-logo", Extras: []string{"fast"}})
	expectStatus(t, rec, http.StatusCreated)
	var order OrderResponse
	decode(t, rec, &order)
	if order.TotalPrice.String() != "100.00" || order.Status != "created" || len(order.Extras) != 1 {
		t.Fatalf("Unexpected order: %+v", order)
	}

	rec = a.do(t, http.MethodPost, "/api/payments/intent", a.buyer, PaymentIntentRequest{OrderID: order.OrderID})
	expectStatus(t, rec, http.StatusCreated)
	var intent payment.Intent
	decode(t, rec, &intent)

	rec = a.webhook(t, "payment_intent.succeeded", intent.ProviderID, order.OrderID, 10000)
	expectStatus(t, rec, http.StatusOK)
	var ingest IngestResponse
	decode(t, rec, &ingest)
	if !ingest.Funded || ingest.Created {
		t.Fatalf("Expected the intent row to advance and fund, got %+v", ingest)
	}
	escrowID := ingest.Escrow.EscrowID

	rec = a.webhook(t, "payment_intent.succeeded", intent.ProviderID, order.OrderID, 10000)
	expectStatus(t, rec, http.StatusOK)
	ingest = IngestResponse{}
	decode(t, rec, &ingest)
	if !ingest.Duplicate || ingest.Funded {
		t.Errorf("Expected a duplicate delivery, got %+v", ingest)
	}

	rec = a.do(t, http.MethodGet, "/api/orders/"+order.OrderID+"/escrow", a.creative, nil)
	expectStatus(t, rec, http.StatusOK)
	var orderEscrow EscrowResponse
	decode(t, rec, &orderEscrow)
	if orderEscrow.EscrowID != escrowID || orderEscrow.Status != "funded" {
		t.Errorf("Expected funded escrow %s for the order, got %+v", escrowID, orderEscrow)
	}

	rec = a.do(t, http.MethodGet, "/api/orders/"+order.OrderID+"/payments", a.creative, nil)
	expectStatus(t, rec, http.StatusOK)
	var payments []PaymentResponse
	decode(t, rec, &payments)
	if len(payments) != 1 || payments[0].Status != "succeeded" {
		t.Errorf("Expected one succeeded payment, got %+v", payments)
	}

	rec = a.do(t, http.MethodPost, "/api/escrows/"+escrowID+"/client-fulfill", a.creative, nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = a.do(t, http.MethodPost, "/api/escrows/"+escrowID+"/client-fulfill", a.buyer, nil)
	expectStatus(t, rec, http.StatusOK)
	var fulfill FulfillResponse
	decode(t, rec, &fulfill)
	if fulfill.Released || !fulfill.Escrow.ClientFulfilled {
		t.Fatalf("Expected client flag without release, got %+v", fulfill)
	}

	rec = a.do(t, http.MethodPost, "/api/escrows/"+escrowID+"/creative-fulfill", a.creative, nil)
	expectStatus(t, rec, http.StatusOK)
	fulfill = FulfillResponse{}
	decode(t, rec, &fulfill)
	if !fulfill.Released || fulfill.Escrow.FeeAmount.String() != "33.00" || fulfill.Escrow.CreatorAmount.String() != "67.00" {
		t.Fatalf("Expected release 33.00/67.00, got %+v", fulfill)
	}

	rec = a.do(t, http.MethodPost, "/api/escrows/"+escrowID+"/refund", a.staff, nil)
	expectStatus(t, rec, http.StatusConflict)

	rec = a.do(t, http.MethodGet, "/api/wallet", a.creative, nil)
	expectStatus(t, rec, http.StatusOK)
	var wallet WalletResponse
	decode(t, rec, &wallet)
	if wallet.AvailableBalance.String() != "67.00" {
		t.Fatalf("Expected 67.00 available, got %s", wallet.AvailableBalance)
	}

	rec = a.do(t, http.MethodPost, "/api/withdrawals", a.creative, map[string]string{"amount": "100.00"})
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	rec = a.do(t, http.MethodPost, "/api/withdrawals", a.creative, map[string]string{"amount": "1.005"})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = a.do(t, http.MethodPost, "/api/withdrawals", a.creative, map[string]string{"amount": "50.00"})
	expectStatus(t, rec, http.StatusCreated)
	var withdrawal WithdrawalResponse
	decode(t, rec, &withdrawal)

	rec = a.do(t, http.MethodPost, "/api/withdrawals/"+withdrawal.ID+"/approve", a.creative, nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = a.do(t, http.MethodPost, "/api/withdrawals/"+withdrawal.ID+"/approve", a.staff, nil)
	expectStatus(t, rec, http.StatusOK)
	withdrawal = WithdrawalResponse{}
	decode(t, rec, &withdrawal)
	if withdrawal.Status != "processed" || withdrawal.ProcessedAt == nil {
		t.Errorf("Expected processed withdrawal, got %+v", withdrawal)
	}

	rec = a.do(t, http.MethodGet, "/api/wallet", a.creative, nil)
	wallet = WalletResponse{}
	decode(t, rec, &wallet)
	if wallet.AvailableBalance.String() != "17.00" || wallet.PendingBalance.String() != "50.00" {
		t.Errorf("Expected 17.00/50.00, got %s/%s", wallet.AvailableBalance, wallet.PendingBalance)
	}

	rec = a.do(t, http.MethodGet, "/api/withdrawals", a.creative, nil)
	expectStatus(t, rec, http.StatusOK)
	var withdrawals []WithdrawalResponse
	decode(t, rec, &withdrawals)
	if len(withdrawals) != 1 {
		t.Errorf("Expected one withdrawal, got %d", len(withdrawals))
	}
}

func TestAuthentication(t *testing.T) {
	a := newTestAPI(t, 50, 100)

	expired, err := IssueToken(testSecret, "buyer-1", model.RoleClient, -time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	forged, err := IssueToken("other-secret", "buyer-1", model.RoleStaff, time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	unknownRole, err := IssueToken(testSecret, "buyer-1", model.Role("admin"), time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	tests := []struct {
		name      string
		token     string
		wantError string
	}{
		{name: "Missing", token: "", wantError: "missing_token"},
		{name: "Expired", token: expired, wantError: "invalid_token"},
		{name: "Forged", token: forged, wantError: "invalid_token"},
		{name: "UnknownRole", token: unknownRole, wantError: "invalid_token"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := a.do(t, http.MethodGet, "/api/wallet", test.token, nil)
			expectStatus(t, rec, http.StatusUnauthorized)
			var response ErrorResponse
			decode(t, rec, &response)
			if response.Error != test.wantError {
				t.Errorf("Expected %s, got %s", test.wantError, response.Error)
			}
		})
	}
}

func TestErrorMapping(t *testing.T) {
	a := newTestAPI(t, 50, 100)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		status int
	}{
		{name: "UnknownService", method: http.MethodPost, path: "/api/orders", token: a.buyer, body: CreateOrderRequest{ServiceID: "svc-none"}, status: http.StatusNotFound},
		{name: "ForeignExtra", method: http.MethodPost, path: "/api/orders", token: a.buyer, body: CreateOrderRequest{ServiceID: "svc-logo", Extras: []string{"nope"}}, status: http.StatusBadRequest},
		{name: "OwnService", method: http.MethodPost, path: "/api/orders", token: a.creative, body: CreateOrderRequest{ServiceID: "svc-logo"}, status: http.StatusForbidden},
		{name: "BadJSON", method: http.MethodPost, path: "/api/orders", token: a.buyer, body: []byte("{"), status: http.StatusBadRequest},
		{name: "UnknownEscrow", method: http.MethodGet, path: "/api/escrows/missing", token: a.buyer, status: http.StatusNotFound},
		{name: "ManualEventNotStaff", method: http.MethodPost, path: "/api/payments/events", token: a.buyer, body: map[string]string{}, status: http.StatusForbidden},
		{name: "ManualEventInvalid", method: http.MethodPost, path: "/api/payments/events", token: a.staff, body: map[string]string{"provider": "stripe"}, status: http.StatusBadRequest},
		{name: "RefundNotStaff", method: http.MethodPost, path: "/api/escrows/any/refund", token: a.buyer, status: http.StatusForbidden},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := a.do(t, test.method, test.path, test.token, test.body)
			expectStatus(t, rec, test.status)
		})
	}
}

func TestStaffIngestsManualEvent(t *testing.T) {
	a := newTestAPI(t, 50, 100)

	rec := a.do(t, http.MethodPost, "/api/orders", a.buyer, CreateOrderRequest{ServiceID: "svc-logo"})
	expectStatus(t, rec, http.StatusCreated)
	var order OrderResponse
	decode(t, rec, &order)

	rec = a.do(t, http.MethodPost, "/api/payments/events", a.staff, map[string]string{
		"provider":    "bank",
		"provider_id": "wire-001",
		"order_id":    order.OrderID,
		"amount":      "79.00",
		"status":      "succeeded",
	})
	expectStatus(t, rec, http.StatusOK)
	var ingest IngestResponse
	decode(t, rec, &ingest)
	if !ingest.Funded || ingest.AmountMismatch == "" {
		t.Errorf("Expected funding with a reported mismatch, got %+v", ingest)
	}
	if ingest.Escrow.Amount.String() != "80.00" {
		t.Errorf("Expected the escrow to hold the order total, got %s", ingest.Escrow.Amount)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	a := newTestAPI(t, 50, 100)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook/stripe", bytes.NewReader([]byte(`{"type":"payment_intent.succeeded"}`)))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = a.webhook(t, "payment_intent.created", "pi_x", "order-x", 100)
	expectStatus(t, rec, http.StatusOK)
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	a := newTestAPI(t, 50, 100)

	payload := bytes.Repeat([]byte("a"), maxWebhookBody+1)
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusRequestEntityTooLarge)

	var response ErrorResponse
	decode(t, rec, &response)
	if response.Error != "payload_too_large" {
		t.Errorf("Expected payload_too_large, got %s", response.Error)
	}
}

func TestWebhookRateLimit(t *testing.T) {
	a := newTestAPI(t, 1, 2)

	var limited int
	for i := 0; i < 5; i++ {
		rec := a.webhook(t, "payment_intent.created", "pi_x", "order-x", 100)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited < 2 {
		t.Errorf("Expected at least 2 of 5 burst requests to be limited, got %d", limited)
	}

	rec := a.do(t, http.MethodGet, "/api/health", "", nil)
	expectStatus(t, rec, http.StatusOK)
}
