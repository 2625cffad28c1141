package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/swapbook/pkg/app/core/matching"
	"github.com/uhyunpark/swapbook/pkg/app/core/order"
)

const maxBodyBytes = 1 << 20

// Exchange is what the HTTP layer needs from the intake service
type Exchange interface {
	Trade(ctx context.Context, body []byte) bool
	OrderBook(ctx context.Context) ([]*order.Order, error)
}

// Server handles REST API and WebSocket connections
type Server struct {
	exchange Exchange
	router   *mux.Router
	feed     *Feed // WebSocket fill feed
	logger   *zap.SugaredLogger
	origins  []string

	httpSrv *http.Server
}

// NewServer creates a new API server. allowedOrigins configures CORS;
// empty means any origin.
func NewServer(exchange Exchange, allowedOrigins []string, logger *zap.SugaredLogger) *Server {
	s := &Server{
		exchange: exchange,
		router:   mux.NewRouter(),
		feed:     NewFeed(logger),
		logger:   logger,
		origins:  allowedOrigins,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/trade", s.handleTrade).Methods("POST")
	s.router.HandleFunc("/order_book", s.handleOrderBook).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped router
func (s *Server) Handler() http.Handler {
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// Start serves on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infow("api_server_listening", "addr", addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown disconnects WebSocket subscribers and stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.feed.Close()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// ==============================
// REST Handlers
// ==============================

// handleTrade answers every submission with a JSON boolean; rejection
// details go to the server log and the audit trail, not the client.
func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.logger.Warnw("trade_body_read_failed", "err", err)
		respondJSON(w, false)
		return
	}

	respondJSON(w, s.exchange.Trade(r.Context(), body))
}

func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	orders, err := s.exchange.OrderBook(r.Context())
	if err != nil {
		s.logger.Errorw("order_book_failed", "err", err)
		respondError(w, http.StatusInternalServerError, "order book unavailable", err.Error())
		return
	}

	response := OrderBookResponse{Data: make([]OrderView, len(orders))}
	for i, o := range orders {
		response.Data[i] = newOrderView(o)
	}
	respondJSON(w, response)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, HealthResponse{Status: "ok"})
}

// ==============================
// Broadcast Methods (called after a match commits)
// ==============================

// BroadcastFill pushes a committed match to subscribers of the fills channel
func (s *Server) BroadcastFill(res matching.Result) {
	update := FillUpdate{
		Type:      "fill",
		Filled:    make([]FillOrder, len(res.Filled)),
		Created:   make([]FillOrder, len(res.Created)),
		Timestamp: time.Now().UnixMilli(),
	}
	for i, o := range res.Filled {
		update.Filled[i] = newFillOrder(o)
	}
	for i, o := range res.Created {
		update.Created[i] = newFillOrder(o)
	}

	s.feed.Publish(ChannelFills, update)
}

// ==============================
// Helper Functions
// ==============================

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
