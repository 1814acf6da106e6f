package api

import (
	"errors"
	"net/http"

	"autodealer/internal/adapters/api/middleware"
	"autodealer/internal/application/auth"
	domainAuth "autodealer/internal/domain/auth"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// loginRequest represents a storefront sign-in
type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required"`
}

// storeOrAbort returns the request's session store or answers 500
func storeOrAbort(c *gin.Context) (*auth.Service, bool) {
	store, ok := middleware.StoreFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session store missing"})
		return nil, false
	}
	return store, true
}

// GetSession returns the current session state
func (h *Handler) GetSession(c *gin.Context) {
	store, ok := storeOrAbort(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(store))
}

// Login signs the browser in
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}
	store, ok := storeOrAbort(c)
	if !ok {
		return
	}

	if err := store.Login(c.Request.Context(), req.Email, req.Password); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(store))
}

// Logout signs the browser out. It always succeeds.
func (h *Handler) Logout(c *gin.Context) {
	store, ok := storeOrAbort(c)
	if !ok {
		return
	}
	store.Logout(c.Request.Context())
	c.JSON(http.StatusOK, newSessionResponse(store))
}

// Register creates a storefront account
func (h *Handler) Register(c *gin.Context) {
	var req domainAuth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}
	store, ok := storeOrAbort(c)
	if !ok {
		return
	}

	message, err := store.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": message})
}

// VerifyEmail confirms an account from the link sent by e-mail
func (h *Handler) VerifyEmail(c *gin.Context) {
	email := c.Query("email")
	token := c.Query("token")
	if email == "" || token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and token query parameters are required"})
		return
	}
	store, ok := storeOrAbort(c)
	if !ok {
		return
	}

	message, err := store.VerifyEmail(c.Request.Context(), email, token)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// ResendVerification sends a new verification e-mail
func (h *Handler) ResendVerification(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	store, ok := storeOrAbort(c)
	if !ok {
		return
	}

	message, err := store.ResendVerification(c.Request.Context(), req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// respondError maps a session error to a status and keeps the server's reason
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Session request failed")
	}
	c.JSON(status, gin.H{
		"error": domainAuth.Reason(err),
		"code":  domainAuth.Code(err),
	})
}

func statusFor(err error) int {
	switch {
	case auth.IsLoginFailure(err):
		return http.StatusUnauthorized
	case errors.Is(err, domainAuth.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, domainAuth.ErrNetworkFailure),
		errors.Is(err, domainAuth.ErrServerError),
		errors.Is(err, domainAuth.ErrMalformedCredential):
		return http.StatusBadGateway
	case errors.Is(err, domainAuth.ErrStoreDisposed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
