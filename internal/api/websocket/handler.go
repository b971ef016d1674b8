package websocket

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/auth"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/bus"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/cache"
	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/config"
	"github.com/bidwire/auction-exchange-backend/internal/metrics"
	"github.com/bidwire/auction-exchange-backend/internal/service/arbitration"
)

// Upgrader configuration for WebSocket connections
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking
		return true
	},
}

// Handler upgrades auction subscribers and runs their sessions.
type Handler struct {
	verifier *auth.Verifier
	bids     arbitration.Service
	bus      bus.Bus
	limiter  cache.RateLimiter
	registry *Registry

	cfg        config.GatewayConfig
	rateCfg    config.RateLimitConfig
	bidTimeout time.Duration
	logger     *slog.Logger
}

// NewHandler wires the gateway endpoint. limiter may be nil to disable
// per-IP upgrade limiting (tests, single-tenant deployments).
func NewHandler(
	verifier *auth.Verifier,
	bids arbitration.Service,
	b bus.Bus,
	limiter cache.RateLimiter,
	cfg config.GatewayConfig,
	rateCfg config.RateLimitConfig,
	bidTimeout time.Duration,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		verifier:   verifier,
		bids:       bids,
		bus:        b,
		limiter:    limiter,
		registry:   NewRegistry(),
		cfg:        cfg,
		rateCfg:    rateCfg,
		bidTimeout: bidTimeout,
		logger:     logger,
	}
}

// Registry exposes the session registry for readiness reporting and drain.
func (h *Handler) Registry() *Registry {
	return h.registry
}

// Drain closes every live session; used during graceful shutdown.
func (h *Handler) Drain() {
	h.registry.Drain()
}

// HandleAuction serves GET /ws/auction/{auction_id}.
//
// The token is verified after the upgrade completes so the client observes
// close code 1008 instead of a plain HTTP error; browsers surface the
// close code but not upgrade response bodies.
func (h *Handler) HandleAuction(w http.ResponseWriter, r *http.Request) {
	auctionID, err := uuid.Parse(r.PathValue("auction_id"))
	if err != nil {
		http.Error(w, "invalid auction id", http.StatusNotFound)
		return
	}

	if !h.allowUpgrade(r) {
		metrics.UpgradesRejected.WithLabelValues("rate_limited").Inc()
		http.Error(w, "connection rate exceeded", http.StatusTooManyRequests)
		return
	}

	token := extractToken(r, h.cfg.CookieName)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		metrics.UpgradesRejected.WithLabelValues("upgrade_failed").Inc()
		h.logger.Warn("websocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		metrics.UpgradesRejected.WithLabelValues("unauthorized").Inc()
		h.logger.Warn("websocket authentication failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()))
		h.closePolicyViolation(conn)
		return
	}

	session := newSession(conn, auctionID, *identity, h.bids, h.bus,
		h.registry, h.cfg, h.bidTimeout, h.logger)
	h.registry.Add(session)
	metrics.ActiveSessions.Inc()

	h.logger.Info("session opened",
		slog.String("session_id", session.id.String()),
		slog.String("auction_id", auctionID.String()),
		slog.String("user_id", identity.UserID.String()),
		slog.String("username", identity.Username),
		slog.String("remote_addr", r.RemoteAddr))

	go session.run()
}

// allowUpgrade applies the per-IP connection limit. A broken limiter fails
// open: refusing every subscriber because Redis blipped is worse than
// briefly losing the limit.
func (h *Handler) allowUpgrade(r *http.Request) bool {
	if h.limiter == nil || h.rateCfg.ConnectionsPerMinute <= 0 {
		return true
	}

	allowed, err := h.limiter.Allow(r.Context(), "ws:"+clientIP(r),
		h.rateCfg.ConnectionsPerMinute, time.Minute)
	if err != nil {
		h.logger.Warn("upgrade limiter unavailable, failing open",
			slog.String("error", err.Error()))
		return true
	}
	return allowed
}

// closePolicyViolation completes the handshake teardown with close code
// 1008 so the client can tell an auth failure from a network fault.
func (h *Handler) closePolicyViolation(conn *websocket.Conn) {
	conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"))
	conn.Close()
}

// extractToken pulls the bearer token from the auth cookie, falling back
// to the token query parameter for clients that cannot send cookies.
func extractToken(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

// clientIP resolves the originating address behind proxies.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if colon := strings.LastIndex(ip, ":"); colon != -1 {
		ip = ip[:colon]
	}
	return ip
}
