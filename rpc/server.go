package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stakepool/core"
	"stakepool/rpc/middleware"
	"stakepool/storage/receipts"
)

const (
	maxRequestBytes   = 1 << 20 // 1 MiB
	readHeaderTimeout = 5 * time.Second
)

// ReceiptLister serves the receipts endpoint.
type ReceiptLister interface {
	List(ctx context.Context, filter receipts.Filter) ([]receipts.Receipt, error)
}

type ServerConfig struct {
	Auth        middleware.AuthConfig
	RateLimit   middleware.RateLimit
	LogRequests bool
}

type Server struct {
	node     *core.Node
	receipts ReceiptLister
	logger   *slog.Logger

	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	obs     *middleware.Observability

	httpServer *http.Server
}

func NewServer(node *core.Node, lister ReceiptLister, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "rpc"))
	s := &Server{
		node:     node,
		receipts: lister,
		logger:   logger,
		auth:     middleware.NewAuthenticator(cfg.Auth, logger),
		limiter:  middleware.NewRateLimiter(cfg.RateLimit, logger),
		obs:      middleware.NewObservability(cfg.LogRequests, logger),
	}
	s.httpServer = &http.Server{
		Handler:           otelhttp.NewHandler(s.Handler(), "stakepoold"),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/pool", func(pr chi.Router) {
		pr.Use(s.limiter.Middleware("pool"))
		pr.With(s.obs.Middleware("pool", "info")).Get("/", s.handlePoolInfo)
		pr.With(s.obs.Middleware("pool", "pending")).Get("/pending/{addr}", s.handlePending)
		pr.With(s.obs.Middleware("pool", "account")).Get("/accounts/{addr}", s.handleAccount)
		pr.With(s.obs.Middleware("pool", "window")).Get("/window", s.handleWindow)
		pr.With(s.obs.Middleware("pool", "tokens")).Get("/tokens", s.handlePoolTokens)

		pr.Group(func(ar chi.Router) {
			ar.Use(s.auth.Middleware())
			ar.Use(s.limiter.Middleware("pool-calls"))
			ar.With(s.obs.Middleware("pool", "deposite")).Post("/deposite", s.handleDeposit)
			ar.With(s.obs.Middleware("pool", "deposite")).Post("/deposit", s.handleDeposit)
			ar.With(s.obs.Middleware("pool", "withdraw")).Post("/withdraw", s.handleWithdraw)
			ar.With(s.obs.Middleware("pool", "receiveReward")).Post("/rewards", s.handleReceiveReward)
			ar.With(s.obs.Middleware("pool", "registerMods")).Post("/moderators", s.handleRegisterMods)
			ar.With(s.obs.Middleware("pool", "removeMods")).Delete("/moderators", s.handleRemoveMods)
			ar.With(s.obs.Middleware("pool", "transferOwnership")).Post("/owner", s.handleTransferOwnership)
		})
	})

	r.Route("/v1/tokens/{symbol}", func(tr chi.Router) {
		tr.Use(s.limiter.Middleware("tokens"))
		tr.With(s.obs.Middleware("tokens", "balance")).Get("/balances/{addr}", s.handleBalance)
		tr.With(s.obs.Middleware("tokens", "allowance")).Get("/allowances/{owner}/{spender}", s.handleAllowance)
		tr.Group(func(ar chi.Router) {
			ar.Use(s.auth.Middleware())
			ar.With(s.obs.Middleware("tokens", "approve")).Post("/approve", s.handleApprove)
			ar.With(s.obs.Middleware("tokens", "transfer")).Post("/transfer", s.handleTransfer)
			ar.With(s.obs.Middleware("tokens", "mint")).Post("/mint", s.handleMint)
		})
	})

	r.With(s.limiter.Middleware("receipts"), s.obs.Middleware("receipts", "list")).Get("/v1/receipts", s.handleReceipts)
	r.With(s.obs.Middleware("events", "stream")).Get("/v1/events/ws", s.handleEventsWS)

	return r
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve serves on an existing listener.
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Info("rpc server listening", slog.String("listen", listener.Addr().String()))
	err := s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Kind: kind, Message: message}})
}

// writeCallError maps a node error onto an HTTP status. Rejections carry the
// reason string verbatim; infrastructure failures are not echoed.
func (s *Server) writeCallError(w http.ResponseWriter, err error) {
	if core.IsNotInitialized(err) {
		writeError(w, http.StatusServiceUnavailable, core.KindValidation, err.Error())
		return
	}
	kind := core.ErrorKind(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		s.logger.Error("call failed", slog.Any("error", err))
		writeError(w, status, kind, "internal error")
		return
	}
	writeError(w, status, kind, err.Error())
}

func statusForKind(kind string) int {
	switch kind {
	case core.KindAuthorization:
		return http.StatusForbidden
	case core.KindWindow:
		return http.StatusConflict
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindTransfer, core.KindArithmetic:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, core.KindValidation, "invalid request body: "+strings.TrimSpace(err.Error()))
		return false
	}
	return true
}

func callerOf(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, core.KindAuthorization, "caller not authenticated")
	}
	return caller, ok
}
