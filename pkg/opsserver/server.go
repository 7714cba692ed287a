package opsserver

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/ehrops/pkg/apperrors"
	"github.com/platinummonkey/ehrops/pkg/contextkeys"
	"github.com/platinummonkey/ehrops/pkg/engine"
	"github.com/platinummonkey/ehrops/pkg/httputil"
	"github.com/platinummonkey/ehrops/pkg/invitations"
	"github.com/platinummonkey/ehrops/pkg/observability"
)

const (
	// ActorHeader carries the authenticated user ID
	ActorHeader = "X-Actor-ID"
	// RequestIDHeader is echoed back on every response
	RequestIDHeader = "X-Request-ID"
)

// Server routes the operational endpoints
type Server struct {
	engine   *engine.Engine
	health   *observability.HealthChecker
	registry *prometheus.Registry
	logger   *observability.Logger
	router   *mux.Router
	handler  http.Handler
}

// NewServer creates the ops server. health and registry may be nil, in which
// case the matching endpoints are not registered.
func NewServer(e *engine.Engine, health *observability.HealthChecker, registry *prometheus.Registry, logger *observability.Logger) *Server {
	s := &Server{
		engine:   e,
		health:   health,
		registry: registry,
		logger:   observability.OrNop(logger),
		router:   mux.NewRouter(),
	}
	s.setupRoutes()
	s.handler = otelhttp.NewHandler(s.router, "ehrops-ops")
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestContext)

	if s.health != nil {
		s.router.HandleFunc("/healthz", s.health.Liveness).Methods("GET")
		s.router.HandleFunc("/readyz", s.health.Readiness).Methods("GET")
	}
	if s.registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.registry)).Methods("GET")
	}

	s.router.HandleFunc("/admin/invitations/sweep", s.sweepInvitations).Methods("POST")
	s.router.HandleFunc("/dev/simulate/{role}", s.simulateRole).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// requestContext attaches a request ID and a request-scoped logger
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := contextkeys.WithRequestID(r.Context(), requestID)
		logger := s.logger.WithFields(map[string]interface{}{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
		})
		ctx = observability.WithLogger(ctx, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFromRequest(r *http.Request) (int64, error) {
	raw := r.Header.Get(ActorHeader)
	if raw == "" {
		return 0, apperrors.Forbidden("missing " + ActorHeader + " header")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Validationf("invalid %s header", ActorHeader)
	}
	return id, nil
}

type sweepResponse struct {
	Expired int64 `json:"expired"`
}

func (s *Server) sweepInvitations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx, s.logger)

	actorID, err := actorFromRequest(r)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	ctx = contextkeys.WithActorID(ctx, actorID)

	if err := s.engine.Resolver.Require(ctx, actorID, invitations.PermissionManage, nil); err != nil {
		logger.WithField("actor_id", actorID).Warn("Invitation sweep refused")
		httputil.WriteAppError(w, err)
		return
	}

	n, err := s.engine.ExpireOldInvitations(ctx)
	if err != nil {
		logger.WithError(err).Error("Invitation sweep failed")
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sweepResponse{Expired: n})
}

func (s *Server) simulateRole(w http.ResponseWriter, r *http.Request) {
	role := mux.Vars(r)["role"]
	result, err := s.engine.Simulate(r.Context(), role)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
