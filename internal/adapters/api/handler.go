package api

import (
	"net/http"
	"time"

	"autodealer/internal/adapters/api/middleware"
	"autodealer/internal/application/auth"
	"autodealer/internal/application/guard"
	"autodealer/internal/infrastructure/metrics"

	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for the storefront session API
type Handler struct {
	stores    middleware.StoreProvider
	guard     *guard.Guard
	metrics   *metrics.Metrics
	cookie    middleware.CookieOptions
	wsManager *WebSocketManager
}

// NewHandler creates a new API handler
func NewHandler(stores middleware.StoreProvider, g *guard.Guard, m *metrics.Metrics, cookie middleware.CookieOptions, allowedOrigin string) *Handler {
	return &Handler{
		stores:    stores,
		guard:     g,
		metrics:   m,
		cookie:    cookie,
		wsManager: NewWebSocketManager(allowedOrigin),
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	browser := middleware.BrowserSession(h.stores, h.cookie)

	api := r.Group("/api/v1", browser)
	{
		session := api.Group("/session")
		{
			session.GET("", h.GetSession)
			session.POST("/login", h.Login)
			session.POST("/logout", h.Logout)
			session.POST("/register", h.Register)
			session.GET("/verify-email", h.VerifyEmail)
			session.POST("/resend-verification", h.ResendVerification)
			session.GET("/events", h.HandleEvents)
		}
		api.GET("/guard", h.CheckGuard)
	}

	views := r.Group("/views", browser, middleware.RequireView(h.guard))
	{
		views.GET("/*path", h.RenderView)
	}
}

// Shutdown closes open event streams
func (h *Handler) Shutdown() {
	h.wsManager.CloseAll()
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// sessionResponse is the browser's view of its session store
type sessionResponse struct {
	State         string     `json:"state"`
	Authenticated bool       `json:"authenticated"`
	Admin         bool       `json:"admin"`
	Stale         bool       `json:"stale"`
	Email         string     `json:"email,omitempty"`
	Role          string     `json:"role,omitempty"`
	UserID        string     `json:"userId,omitempty"`
	Token         string     `json:"token,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

func newSessionResponse(store *auth.Service) sessionResponse {
	resp := sessionResponse{
		State:         store.State().String(),
		Authenticated: store.IsAuthenticated(),
		Admin:         store.IsAdmin(),
		Stale:         store.IsStale(),
	}
	if current, ok := store.Current(); ok {
		resp.Email = current.Email
		resp.Role = string(current.Role)
		resp.UserID = current.UserID
		resp.Token = current.Token
	}
	if exp, ok := store.ExpiresAt(); ok && !exp.IsZero() {
		resp.ExpiresAt = &exp
	}
	return resp
}

// CheckGuard returns the guard decision for the view in ?path=
func (h *Handler) CheckGuard(c *gin.Context) {
	view := c.Query("path")
	if view == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path query parameter is required"})
		return
	}
	store, ok := middleware.StoreFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session store missing"})
		return
	}

	decision := h.guard.Check(store, view)
	c.JSON(http.StatusOK, gin.H{
		"path":        view,
		"requirement": h.guard.Requirement(view),
		"outcome":     decision.Outcome,
		"target":      decision.Target,
	})
}

// RenderView answers a guarded view with the session it was rendered for
func (h *Handler) RenderView(c *gin.Context) {
	store, _ := middleware.StoreFrom(c)
	view := c.Param("path")
	c.JSON(http.StatusOK, gin.H{
		"view":        view,
		"requirement": h.guard.Requirement(view),
		"session":     newSessionResponse(store),
	})
}
