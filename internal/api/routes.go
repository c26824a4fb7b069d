package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/zonewarden/server/internal/auth"
	"github.com/zonewarden/server/internal/compression"
	"github.com/zonewarden/server/internal/config"
	"github.com/zonewarden/server/internal/logging"
	"github.com/zonewarden/server/internal/observability"
	"github.com/zonewarden/server/internal/overlap"
)

// Router bundles the HTTP handler with the websocket hub it feeds. The
// caller must run the hub for live checks to be accepted.
type Router struct {
	Handler   http.Handler
	WebSocket *WebSocketHandlers
}

// NewRouter builds the full HTTP surface of the server.
func NewRouter(service *overlap.Service, cfg *config.Config, metrics *observability.OverlapCollector, logger logging.Logger) *Router {
	if logger == nil {
		logger = logging.Noop()
	}
	mux := http.NewServeMux()

	authMiddleware := auth.NewMiddleware(auth.NewJWTService(cfg), logger)
	userLimiter := NewUserLimiter(cfg.RateLimit.UserLimit, cfg.RateLimit.UserWindow, logger)
	SetupOverlapRoutes(mux, service, authMiddleware, userLimiter, cfg, logger)

	wsHandlers := NewWebSocketHandlers(service, authMiddleware, userLimiter, cfg, logger)
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)

	if cfg.Metrics.Enabled && metrics != nil {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	var handler http.Handler = mux
	handler = RateLimitMiddleware(cfg.RateLimit.GlobalLimit, cfg.RateLimit.GlobalWindow, logger)(handler)
	handler = RequestIDMiddleware(handler)

	return &Router{Handler: handler, WebSocket: wsHandlers}
}

// SetupOverlapRoutes registers the overlap checking routes. When auth is
// required the stored-zone audit is limited to cfg.Auth.AuditRole, since it
// lists every stored zone.
func SetupOverlapRoutes(mux *http.ServeMux, service *overlap.Service, authMiddleware *auth.Middleware, userLimiter *UserLimiter, cfg *config.Config, logger logging.Logger) {
	handlers := NewOverlapHandlers(service, cfg, logger)

	var conflicts http.Handler = http.HandlerFunc(handlers.ListConflicts)
	if cfg.Auth.Required && cfg.Auth.AuditRole != "" {
		conflicts = authMiddleware.RequireRole(cfg.Auth.AuditRole)(conflicts)
	}

	zoneHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/zones")
		path = strings.Trim(path, "/")

		switch {
		case r.Method == http.MethodPost && path == "overlaps":
			handlers.CheckOverlaps(w, r)
		case r.Method == http.MethodPost && path == "overlaps/geojson":
			handlers.CheckOverlapsGeoJSON(w, r)
		case r.Method == http.MethodGet && path == "conflicts":
			conflicts.ServeHTTP(w, r)
		case r.Method == http.MethodGet && strings.HasSuffix(path, "/overlaps"):
			handlers.CheckStoredZone(w, r, strings.TrimSuffix(path, "/overlaps"))
		default:
			http.NotFound(w, r)
		}
	})

	// The user limiter reads identity set by auth, so it runs inside it
	var protected http.Handler = userLimiter.Middleware(zoneHandler)
	if cfg.Auth.Required {
		protected = authMiddleware.AuthMiddleware(protected)
	}
	if gzip, err := compression.Middleware(cfg.Server.GzipMinSize); err == nil {
		protected = gzip(protected)
	} else {
		logger.Warn(context.Background(), "response compression disabled", logging.Err(err))
	}
	protected = auth.SecurityHeaders(cfg.Server.IsProduction())(protected)
	protected = CORSMiddleware(cfg.Server.AllowedOrigins)(protected)

	mux.Handle("/api/zones/", protected)
	mux.HandleFunc("/health", handlers.Health)
}

// RequestIDMiddleware tags each request with an ID that appears in its logs
// and in the X-Request-ID response header. An incoming header is reused.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if incoming := strings.TrimSpace(r.Header.Get("X-Request-ID")); incoming != "" && len(incoming) <= 128 {
			ctx = logging.WithRequestID(ctx, incoming)
		}
		ctx, id := logging.EnsureRequestID(ctx)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
