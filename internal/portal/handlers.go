// Package portal implements the UAM (Universal Access Method) captive-portal
// pipeline: router identity resolution, the challenge/response login form,
// RADIUS delegation, and the security guards around all of it (spec.md
// §4.3). Grounded on the teacher's internal/server echo wiring.
package portal

import (
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/spotfi/spotfi-cloud/internal/events"
	"github.com/spotfi/spotfi-cloud/internal/store"
)

// Config holds the portal's environment-derived settings (spec.md §6).
type Config struct {
	// RadiusAddr is host:port of the RADIUS authentication endpoint.
	RadiusAddr string

	// DefaultRedirectURL is used when the incoming request supplies no
	// userurl.
	DefaultRedirectURL string

	// AllowedRedirectDomains narrows ValidateRedirectURL's allow-list;
	// empty means any http/https host is accepted (scheme/length/param
	// guards still apply).
	AllowedRedirectDomains []string

	// AllowPublicUAMIP disables the private-address check on uamip, for
	// testing against a router that isn't actually on a private LAN.
	AllowPublicUAMIP bool

	// AllowIPv6 permits an IPv6 uamip; most deployed sites are IPv4-only,
	// so this defaults to false.
	AllowIPv6 bool

	// DefaultUAMPort is used when the request omits uamport.
	DefaultUAMPort int
}

// DefaultConfig returns a Config with the default UAM port (3990) and no
// redirect domain restriction.
func DefaultConfig(radiusAddr, defaultRedirectURL string) Config {
	return Config{
		RadiusAddr:         radiusAddr,
		DefaultRedirectURL: defaultRedirectURL,
		DefaultUAMPort:     3990,
	}
}

// Handler serves the UAM HTTP surface.
type Handler struct {
	cfg          Config
	store        *store.Store
	radius       *RadiusClient
	loginLimiter *LoginLimiter
	loopDetector *LoopDetector
	bus          events.EventBus
	logger       *zap.Logger
	form         *template.Template
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config, st *store.Store, radiusClient *RadiusClient, loginLimiter *LoginLimiter, loopDetector *LoopDetector, bus events.EventBus, logger *zap.Logger) *Handler {
	return &Handler{
		cfg:          cfg,
		store:        st,
		radius:       radiusClient,
		loginLimiter: loginLimiter,
		loopDetector: loopDetector,
		bus:          bus,
		logger:       logger.Named("portal"),
		form:         template.Must(template.New("login").Parse(loginFormTemplate)),
	}
}

// RegisterRoutes wires the UAM endpoints onto e, with the security-header
// guard applied to every response per spec.md §4.3.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/uam", SecurityHeaders())
	g.GET("/login", h.handleLoginForm)
	g.POST("/login", h.handleLoginSubmit)
	g.GET("/logout", h.handleLogout)
}

type uamParams struct {
	UAMIP     string
	UAMPort   int
	Challenge string
	MAC       string
	Called    string
	NASID     string
	SessionID string
	UserURL   string
}

func parseUAMParams(c echo.Context) (uamParams, error) {
	p := uamParams{
		UAMIP:     c.QueryParam("uamip"),
		Challenge: c.QueryParam("challenge"),
		MAC:       c.QueryParam("mac"),
		Called:    c.QueryParam("called"),
		NASID:     c.QueryParam("nasid"),
		SessionID: c.QueryParam("sessionid"),
		UserURL:   c.QueryParam("userurl"),
	}
	if portStr := c.QueryParam("uamport"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return p, echo.NewHTTPError(http.StatusBadRequest, "invalid uamport")
		}
		p.UAMPort = port
	}
	if p.UAMIP == "" || p.Called == "" {
		return p, echo.NewHTTPError(http.StatusBadRequest, "missing required uam parameters")
	}
	return p, nil
}

func (h *Handler) handleLoginForm(c echo.Context) error {
	p, err := parseUAMParams(c)
	if err != nil {
		return err
	}
	if err := ValidateUAMIPv6(p.UAMIP, h.cfg.AllowPublicUAMIP, h.cfg.AllowIPv6); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid uamip")
	}
	if p.UAMPort == 0 {
		p.UAMPort = h.cfg.DefaultUAMPort
	}
	return h.renderForm(c, p, "")
}

func (h *Handler) handleLoginSubmit(c echo.Context) error {
	p, err := parseUAMParams(c)
	if err != nil {
		return err
	}
	if p.UAMPort == 0 {
		p.UAMPort = h.cfg.DefaultUAMPort
	}
	username := c.FormValue("username")
	password := c.FormValue("password")
	if username == "" || password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing username or password")
	}

	if h.loopDetector.Record(p.SessionID, c.Request().URL.Path) {
		return c.HTML(http.StatusOK, redirectLoopPage)
	}

	limitKey := "mac:" + store.NormalizeMAC(p.MAC)
	if limitKey == "mac:" {
		limitKey = "ip:" + c.RealIP()
	}
	allowed, retryAfter, err := h.loginLimiter.Allow(c.Request().Context(), limitKey)
	if err != nil {
		h.logger.Error("login limiter", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	if !allowed {
		return echo.NewHTTPError(http.StatusTooManyRequests,
			"try again in "+retryAfter.Round(time.Second).String())
	}

	redirect, err := ValidateRedirectURL(defaultIfEmpty(p.UserURL, h.cfg.DefaultRedirectURL), h.cfg.AllowedRedirectDomains)
	if err != nil {
		return h.renderForm(c, p, "Authentication failed")
	}
	if err := ValidateUAMIPv6(p.UAMIP, h.cfg.AllowPublicUAMIP, h.cfg.AllowIPv6); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid uamip")
	}

	router, err := ResolveRouter(c.Request().Context(), h.store, p.Called, p.NASID, p.UAMIP)
	if err != nil {
		h.publishAuth(c, username, false, "router not found")
		return echo.NewHTTPError(http.StatusForbidden, "router not recognized")
	}

	accepted, err := h.radius.Authenticate(c.Request().Context(), router, username, password)
	if err != nil {
		h.logger.Warn("radius exchange failed", zap.Error(err), zap.String("router", router.ID))
		h.publishAuth(c, username, false, "radius error")
		return h.renderForm(c, p, "Authentication failed")
	}
	if !accepted {
		h.publishAuth(c, username, false, "access reject")
		return h.renderForm(c, p, "Authentication failed")
	}

	response, err := ChallengeResponse(0x00, router.UAMSecret, p.Challenge)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid challenge")
	}

	h.publishAuth(c, username, true, "")

	logonURL := "http://" + p.UAMIP + ":" + strconv.Itoa(p.UAMPort) + "/logon?" +
		"response=" + response + "&userurl=" + url.QueryEscape(redirect)
	return c.Redirect(http.StatusFound, logonURL)
}

func (h *Handler) handleLogout(c echo.Context) error {
	uamip := c.QueryParam("uamip")
	uamport := c.QueryParam("uamport")
	if uamip == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing uamip")
	}
	if uamport == "" {
		uamport = strconv.Itoa(h.cfg.DefaultUAMPort)
	}
	return c.Redirect(http.StatusFound, "http://"+uamip+":"+uamport+"/logout")
}

func (h *Handler) renderForm(c echo.Context, p uamParams, errMsg string) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return h.form.Execute(c.Response(), loginFormData{
		Params: p,
		Error:  errMsg,
	})
}

func (h *Handler) publishAuth(c echo.Context, username string, success bool, failReason string) {
	if h.bus == nil {
		return
	}
	ctx := c.Request().Context()
	ev := events.NewAuthEvent(username, "login", c.RealIP(), c.Request().UserAgent(), success, failReason, "portal")
	if err := h.bus.Publish(ctx, ev); err != nil {
		h.logger.Warn("publish auth event", zap.Error(err))
	}
}

func defaultIfEmpty(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

type loginFormData struct {
	Params uamParams
	Error  string
}

// loginFormTemplate echoes the router-supplied nonce and MAC back to the
// client; html/template auto-escapes every field, closing spec.md §4.3's
// HTML-escaping guard.
const loginFormTemplate = `<!DOCTYPE html>
<html>
<head><title>Network Login</title></head>
<body>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="POST" action="/uam/login">
  <input type="hidden" name="uamip" value="{{.Params.UAMIP}}">
  <input type="hidden" name="uamport" value="{{.Params.UAMPort}}">
  <input type="hidden" name="challenge" value="{{.Params.Challenge}}">
  <input type="hidden" name="mac" value="{{.Params.MAC}}">
  <input type="hidden" name="called" value="{{.Params.Called}}">
  <input type="hidden" name="nasid" value="{{.Params.NASID}}">
  <input type="hidden" name="sessionid" value="{{.Params.SessionID}}">
  <input type="hidden" name="userurl" value="{{.Params.UserURL}}">
  <label>Username <input type="text" name="username" autocomplete="username"></label>
  <label>Password <input type="password" name="password" autocomplete="current-password"></label>
  <button type="submit">Connect</button>
</form>
</body>
</html>`

const redirectLoopPage = `<!DOCTYPE html>
<html>
<head><title>Connection problem</title></head>
<body>
<p>We're having trouble connecting you to the network. Please reconnect to
the Wi-Fi network and try again, or contact support if this persists.</p>
</body>
</html>`
