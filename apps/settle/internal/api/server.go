package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"settle/apps/settle/internal/settlement"
)

type ServerConfig struct {
	Port             int
	JWTSecret        string
	WebhookRateLimit int
	WebhookBurst     int
}

// Server represents the API server
type Server struct {
	orderHandler   *OrderHandler
	paymentHandler *PaymentHandler
	escrowHandler  *EscrowHandler
	walletHandler  *WalletHandler
	authenticator  *Authenticator
	webhookLimiter *RateLimiter
	logger         *zap.Logger
	server         *http.Server
}

// NewServer creates a new API server. gateway may be nil when no payment
// provider is configured.
func NewServer(cfg ServerConfig, service *settlement.Service, gateway PaymentGateway, logger *zap.Logger) *Server {
	r := responder{logger: logger}
	s := &Server{
		orderHandler:   NewOrderHandler(service, r),
		paymentHandler: NewPaymentHandler(service, gateway, r),
		escrowHandler:  NewEscrowHandler(service, r),
		walletHandler:  NewWalletHandler(service, r),
		authenticator:  NewAuthenticator(cfg.JWTSecret, r),
		webhookLimiter: NewRateLimiter(cfg.WebhookRateLimit, cfg.WebhookBurst, r),
		logger:         logger,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
	s.server.Handler = s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	return nil
}

// Stop stops the API server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.Use(s.loggingMiddleware)
	router.Use(s.corsMiddleware)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.healthCheck).Methods("GET")

	// Provider callbacks authenticate by signature, not by bearer token
	webhooks := api.PathPrefix("/payments/webhook").Subrouter()
	webhooks.Use(s.webhookLimiter.Middleware)
	webhooks.HandleFunc("/stripe", s.paymentHandler.StripeWebhook).Methods("POST")

	authed := api.NewRoute().Subrouter()
	authed.Use(s.authenticator.Middleware)

	authed.HandleFunc("/orders", s.orderHandler.CreateOrder).Methods("POST")
	authed.HandleFunc("/orders/{id}", s.orderHandler.GetOrder).Methods("GET")
	authed.HandleFunc("/orders/{id}/payments", s.orderHandler.ListPayments).Methods("GET")
	authed.HandleFunc("/orders/{id}/escrow", s.orderHandler.GetOrderEscrow).Methods("GET")

	authed.HandleFunc("/payments/intent", s.paymentHandler.CreateIntent).Methods("POST")
	authed.HandleFunc("/payments/events", s.paymentHandler.IngestEvent).Methods("POST")

	authed.HandleFunc("/escrows", s.escrowHandler.ListEscrows).Methods("GET")
	authed.HandleFunc("/escrows/{id}", s.escrowHandler.GetEscrow).Methods("GET")
	authed.HandleFunc("/escrows/{id}/client-fulfill", s.escrowHandler.ClientFulfill).Methods("POST")
	authed.HandleFunc("/escrows/{id}/creative-fulfill", s.escrowHandler.CreativeFulfill).Methods("POST")
	authed.HandleFunc("/escrows/{id}/refund", s.escrowHandler.Refund).Methods("POST")

	authed.HandleFunc("/wallet", s.walletHandler.GetWallet).Methods("GET")
	authed.HandleFunc("/withdrawals", s.walletHandler.ListWithdrawals).Methods("GET")
	authed.HandleFunc("/withdrawals", s.walletHandler.RequestWithdrawal).Methods("POST")
	authed.HandleFunc("/withdrawals/{id}/approve", s.walletHandler.ApproveWithdrawal).Methods("POST")
	authed.HandleFunc("/withdrawals/{id}/reject", s.walletHandler.RejectWithdrawal).Methods("POST")

	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.status),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// corsMiddleware handles CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Stripe-Signature")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// healthCheck handles the health check endpoint
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode health check response", zap.Error(err))
	}
}
