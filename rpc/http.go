package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"rentescrow/core"
	"rentescrow/core/types"
	"rentescrow/indexer"
	"rentescrow/native/rental"
	"rentescrow/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	txSeenTTL       = 15 * time.Minute
	moduleName      = "rental"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeDuplicateTx    = -32010
	codeRateLimited    = -32020
)

// Ledger is the node surface served over JSON-RPC.
type Ledger interface {
	SubmitTransaction(ctx context.Context, tx *types.Transaction) (*core.Receipt, error)
	GetAccount(addr []byte) (*types.Account, error)
	AssetAccount(addr [20]byte) (*types.AssetAccount, bool, error)
	Rental(owner [20]byte) (*core.RentalView, bool)
	RentalAt(addr [20]byte) (*core.RentalView, bool, error)
	ActiveRental(owner [20]byte) bool
	DeriveRecord(owner [20]byte) (rental.RecordRef, error)
	Height() uint64
}

// EventSource answers journal queries.
type EventSource interface {
	Query(ctx context.Context, f indexer.Filter) ([]indexer.Entry, error)
	LatestHeight(ctx context.Context) (uint64, error)
}

// ServerConfig tunes the JSON-RPC listener.
type ServerConfig struct {
	JWT               JWTConfig
	RateLimitPerSec   float64
	RateLimitBurst    int
	TrustProxyHeaders bool
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	Logger            *slog.Logger
}

type Server struct {
	node    Ledger
	events  EventSource
	cfg     ServerConfig
	auth    *authenticator
	limiter *sourceLimiter
	logger  *slog.Logger

	mu     sync.Mutex
	txSeen map[string]time.Time

	serverMu   sync.Mutex
	httpServer *http.Server
}

func NewServer(node Ledger, events EventSource, cfg ServerConfig) (*Server, error) {
	auth, err := newAuthenticator(cfg.JWT)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:    node,
		events:  events,
		cfg:     cfg,
		auth:    auth,
		limiter: newSourceLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst),
		logger:  logger.With(slog.String("component", "rpc")),
		txSeen:  make(map[string]time.Time),
	}, nil
}

// Handler returns the routed HTTP handler: JSON-RPC on "/", prometheus on
// "/metrics" and a liveness probe on "/healthz".
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return otelhttp.NewHandler(r, "rentald.rpc")
}

// Serve accepts connections on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()
	s.logger.Info("serving JSON-RPC", slog.String("addr", listener.Addr().String()))
	return srv.Serve(listener)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	srv := s.httpServer
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type ctxKey string

const requestIDKey ctxKey = "rpc.request_id"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

type method struct {
	handler  handlerFunc
	mutating bool
}

func (s *Server) methods() map[string]method {
	return map[string]method{
		"rental_initialize":    {s.submitter(types.TxTypeRentalInitialize), true},
		"rental_borrow":        {s.submitter(types.TxTypeRentalBorrow), true},
		"rental_withdraw":      {s.submitter(types.TxTypeRentalWithdraw), true},
		"rental_transfer":      {s.submitter(types.TxTypeTransfer), true},
		"rental_mintAsset":     {s.submitter(types.TxTypeAssetMint), true},
		"rental_get":           {s.handleRentalGet, false},
		"rental_active":        {s.handleRentalActive, false},
		"rental_deriveAddress": {s.handleDeriveAddress, false},
		"rental_balance":       {s.handleBalance, false},
		"rental_assetAccount":  {s.handleAssetAccount, false},
		"rental_events":        {s.handleEvents, false},
		"rental_height":        {s.handleHeight, false},
	}
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	m, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	if m.mutating {
		if authErr := s.auth.verify(r); authErr != nil {
			observability.ModuleMetrics().RecordThrottle(moduleName, "unauthorized")
			writeError(recorder, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			s.observe(r, req.Method, recorder.status, start)
			return
		}
		source := s.clientSource(r)
		if !s.limiter.allow(source) {
			observability.ModuleMetrics().RecordThrottle(moduleName, "rate_limit")
			writeError(recorder, http.StatusTooManyRequests, req.ID, codeRateLimited, "transaction rate limit exceeded", source)
			s.observe(r, req.Method, recorder.status, start)
			return
		}
	}
	m.handler(recorder, r, req)
	s.observe(r, req.Method, recorder.status, start)
}

func (s *Server) observe(r *http.Request, method string, status int, start time.Time) {
	elapsed := time.Since(start)
	observability.ModuleMetrics().Observe(moduleName, method, status, elapsed)
	s.logger.Debug("rpc request",
		slog.String("request_id", requestIDFrom(r.Context())),
		slog.String("method", method),
		slog.Int("status", status),
		slog.Duration("elapsed", elapsed))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) clientSource(r *http.Request) string {
	if s.cfg.TrustProxyHeaders {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			candidate := strings.TrimSpace(strings.Split(forwarded, ",")[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) rememberTx(hash string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for h, seenAt := range s.txSeen {
		if now.Sub(seenAt) > txSeenTTL {
			delete(s.txSeen, h)
		}
	}
	if _, exists := s.txSeen[hash]; exists {
		return false
	}
	s.txSeen[hash] = now
	return true
}

func (s *Server) forgetTx(hash string) {
	s.mu.Lock()
	delete(s.txSeen, hash)
	s.mu.Unlock()
}
