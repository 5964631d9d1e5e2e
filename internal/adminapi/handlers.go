// Package adminapi implements the operator-facing surface: JWT-backed
// login/logout, and the x-tunnel WebSocket endpoint operators use to open a
// remote shell session to a router over the Edge Fabric (spec.md's x-tunnel
// requirement). Grounded on the teacher's internal/server echo wiring and
// the gqlgen-subscription websocket handshake in main.prod.go, generalized
// from GraphQL subscriptions to a raw byte-frame tunnel.
package adminapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/spotfi/spotfi-cloud/internal/auth"
	"github.com/spotfi/spotfi-cloud/internal/edgefabric"
	spotfierrors "github.com/spotfi/spotfi-cloud/internal/errors"
	"github.com/spotfi/spotfi-cloud/internal/middleware"
	"github.com/spotfi/spotfi-cloud/internal/qse"
	"github.com/spotfi/spotfi-cloud/internal/store"
)

// Handler serves the operator auth and x-tunnel HTTP surface.
type Handler struct {
	auth       *auth.Service
	jwt        *auth.JWTService
	audit      auth.AuditLogger
	store      *store.Store
	broker     *edgefabric.Broker
	worker     *qse.DisconnectWorker
	reconciler *qse.Reconciler
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

// NewHandler constructs a Handler. audit records admin-adjacent actions
// (disconnects, manual reconciliation, x-tunnel session opens); when it is
// the same AuditLogger authSvc was built with, these land in one stream
// with authSvc's own login/logout events.
func NewHandler(authSvc *auth.Service, audit auth.AuditLogger, st *store.Store, broker *edgefabric.Broker, worker *qse.DisconnectWorker, reconciler *qse.Reconciler, logger *zap.Logger) *Handler {
	return &Handler{
		auth:       authSvc,
		jwt:        authSvc.JWTService(),
		audit:      audit,
		store:      st,
		broker:     broker,
		worker:     worker,
		reconciler: reconciler,
		logger:     logger.Named("adminapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The operator app and spotfi-cloud are not same-origin; the
			// WebSocket handshake is authorized by the bearer JWT, not by
			// Origin, so any origin is accepted here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) logAdminAction(c echo.Context, eventType string, details map[string]interface{}) {
	if h.audit == nil {
		return
	}
	user := middleware.UserFromContext(c.Request().Context())
	var userID, username *string
	if user != nil {
		userID, username = &user.ID, &user.Username
	}
	event := auth.AuditEvent{
		Type:      eventType,
		UserID:    userID,
		Username:  username,
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
		Details:   details,
	}
	if err := h.audit.Log(c.Request().Context(), event); err != nil {
		h.logger.Warn("audit log failed", zap.String("type", eventType), zap.Error(err))
	}
}

// RegisterRoutes wires the operator API onto e. Auth endpoints sit at
// /api/v1/auth, everything else behind AuthMiddleware on /api/v1/admin.
func (h *Handler) RegisterRoutes(e *echo.Echo, jwtCfg middleware.AuthMiddlewareConfig) {
	authGroup := e.Group("/api/v1/auth")
	authGroup.POST("/login", h.handleLogin, middleware.OperatorLoginRateLimitMiddleware())
	authGroup.POST("/logout", h.handleLogout)

	admin := e.Group("/api/v1/admin", middleware.AuthMiddleware(jwtCfg), middleware.AuthRequiredMiddleware())

	admin.GET("/x/:routerID", h.handleXTunnel, middleware.XTunnelAPIRateLimitMiddleware(), middleware.RoleRequiredMiddleware(auth.RoleOperator))
	admin.POST("/routers/:routerID/disconnect", h.handleManualDisconnect, middleware.RoleRequiredMiddleware(auth.RoleOperator))
	admin.POST("/routers/:routerID/reconcile", h.handleManualReconcile, middleware.RoleRequiredMiddleware(auth.RoleOperator))
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	Role      string `json:"role"`
}

func (h *Handler) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.auth.Login(c.Request().Context(), auth.LoginInput{
		Username:  req.Username,
		Password:  req.Password,
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return spotfierrors.New(spotfierrors.CodeBadCredentials, spotfierrors.CategoryAuthorization, "invalid credentials").WithCause(err)
	}

	return c.JSON(http.StatusOK, loginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt.Format(time.RFC3339),
		Role:      string(result.User.Role),
	})
}

func (h *Handler) handleLogout(c echo.Context) error {
	claims := middleware.ClaimsFromContext(c.Request().Context())
	if claims == nil || claims.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "no active session")
	}
	if err := h.auth.Logout(c.Request().Context(), claims.SessionID, c.RealIP(), c.Request().UserAgent()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "logout failed")
	}
	return c.NoContent(http.StatusNoContent)
}

// handleXTunnel upgrades the HTTP connection to a WebSocket and attaches it
// to the router's x-tunnel hub for the lifetime of the connection.
func (h *Handler) handleXTunnel(c echo.Context) error {
	routerID := c.Param("routerID")
	ctx := c.Request().Context()

	if _, err := h.store.GetRouter(ctx, routerID); err != nil {
		return spotfierrors.New(spotfierrors.CodeRouterNotFound, spotfierrors.CategoryAuthorization, "router not found").WithCause(err)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("x-tunnel upgrade failed", zap.Error(err), zap.String("routerID", routerID))
		return nil
	}
	defer conn.Close()

	sessionID := ulid.Make().String()
	user := middleware.UserFromContext(ctx)
	h.logger.Info("x-tunnel session opened", zap.String("sessionID", sessionID),
		zap.String("routerID", routerID), zap.String("operator", operatorUsername(user)))

	h.logAdminAction(c, "admin.xtunnel.open", map[string]interface{}{"routerID": routerID, "sessionID": sessionID})

	h.broker.XTunnel().Attach(sessionID, routerID, conn)
	defer h.broker.XTunnel().Detach(sessionID)

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.BinaryMessage && msgType != websocket.TextMessage {
			continue
		}
		if err := h.broker.XTunnel().SendToRouter(ctx, sessionID, payload); err != nil {
			h.logger.Warn("x-tunnel forward failed", zap.Error(err), zap.String("sessionID", sessionID))
			break
		}
	}

	h.logger.Info("x-tunnel session closed", zap.String("sessionID", sessionID), zap.String("routerID", routerID))
	return nil
}

func (h *Handler) handleManualDisconnect(c echo.Context) error {
	routerID := c.Param("routerID")
	user := middleware.UserFromContext(c.Request().Context())
	h.logger.Info("manual disconnect triggered", zap.String("routerID", routerID), zap.String("operator", operatorUsername(user)))
	h.logAdminAction(c, "admin.disconnect.manual", map[string]interface{}{"routerID": routerID})
	h.worker.Wake()
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) handleManualReconcile(c echo.Context) error {
	routerID := c.Param("routerID")
	user := middleware.UserFromContext(c.Request().Context())
	h.logger.Info("manual reconcile triggered", zap.String("routerID", routerID), zap.String("operator", operatorUsername(user)))
	h.logAdminAction(c, "admin.reconcile.manual", map[string]interface{}{"routerID": routerID})
	if err := h.reconciler.ReconcileOne(c.Request().Context(), routerID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "reconcile failed")
	}
	return c.NoContent(http.StatusAccepted)
}

func operatorUsername(user *middleware.AuthUser) string {
	if user == nil {
		return "unknown"
	}
	return user.Username
}
