package middleware

import (
	"context"
	"net/http"
	"strconv"

	"autodealer/internal/application/auth"
	"autodealer/internal/application/guard"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// BrowserIDKey is the key used to store the browser id in gin context
	BrowserIDKey = "browser_id"
	// SessionStoreKey is the key used to store the browser's session store in gin context
	SessionStoreKey = "session_store"
	// DecisionKey is the key used to store the guard decision in gin context
	DecisionKey = "guard_decision"

	pendingRetryAfter = 1 // seconds
)

// StoreProvider returns the initialized session store of a browser
type StoreProvider interface {
	Get(ctx context.Context, browserID string) (*auth.Service, error)
}

// CookieOptions configures the browser identification cookie
type CookieOptions struct {
	Name   string
	Secure bool
	MaxAge int // seconds; 0 makes it a browser-session cookie
}

// BrowserSession identifies the browser by an opaque cookie, issuing one when
// absent, and attaches its session store to the request
func BrowserSession(stores StoreProvider, opts CookieOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		browserID, err := c.Cookie(opts.Name)
		if err == nil {
			_, err = uuid.Parse(browserID)
		}
		if err != nil {
			browserID = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(opts.Name, browserID, opts.MaxAge, "/", "", opts.Secure, true)
		}

		store, err := stores.Get(c.Request.Context(), browserID)
		if err != nil {
			log.Error().Err(err).Str("browser_id", browserID).Msg("Failed to open session store")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session store unavailable"})
			c.Abort()
			return
		}

		c.Set(BrowserIDKey, browserID)
		c.Set(SessionStoreKey, store)
		c.Next()
	}
}

// StoreFrom returns the session store attached by BrowserSession
func StoreFrom(c *gin.Context) (*auth.Service, bool) {
	v, ok := c.Get(SessionStoreKey)
	if !ok {
		return nil, false
	}
	store, ok := v.(*auth.Service)
	return store, ok
}

// BrowserIDFrom returns the browser id attached by BrowserSession
func BrowserIDFrom(c *gin.Context) string {
	return c.GetString(BrowserIDKey)
}

// RequireView applies the route guard to the requested view. Redirects answer
// 302 and an uninitialized store answers 503 so the caller can retry.
func RequireView(g *guard.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, ok := StoreFrom(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session store missing"})
			c.Abort()
			return
		}

		view := c.Param("path")
		if view == "" {
			view = c.Request.URL.Path
		}

		decision := g.Check(store, view)
		switch decision.Outcome {
		case guard.Redirect:
			log.Debug().Str("view", view).Str("target", decision.Target).Msg("Guard redirect")
			c.Redirect(http.StatusFound, decision.Target)
			c.Abort()
			return
		case guard.Pending:
			c.Header("Retry-After", strconv.Itoa(pendingRetryAfter))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session is initializing"})
			c.Abort()
			return
		}

		c.Set(DecisionKey, decision)
		c.Next()
	}
}
