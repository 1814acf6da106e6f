// Package fake provides an in-memory identity service for tests and local development.
package fake

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"autodealer/internal/domain/auth"
	"autodealer/internal/infrastructure/token"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	// RefreshCookieName is the cookie carrying the refresh session
	RefreshCookieName = "refreshToken"

	defaultTokenTTL = 15 * time.Minute
	refreshTTL      = 7 * 24 * time.Hour
)

var errUnknownRefresh = errors.New("unknown refresh session")

type user struct {
	ID           string
	Email        string
	PasswordHash []byte
	Role         auth.Role
	Verified     bool
	VerifyToken  string
}

// Server implements the identity endpoints over an in-memory user table
type Server struct {
	mu       sync.Mutex
	users    map[string]*user  // by lower-cased email
	sessions map[string]string // refresh id -> lower-cased email

	secret       []byte
	tokenTTL     time.Duration
	failRefresh  bool
	legacyClaims bool
	now          func() time.Time
}

// Option configures a Server
type Option func(*Server)

// WithTokenTTL sets the lifetime of issued tokens. Zero or negative values
// produce tokens that are already expired.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) { s.tokenTTL = ttl }
}

// WithSecret sets the HS256 signing secret
func WithSecret(secret []byte) Option {
	return func(s *Server) { s.secret = secret }
}

// WithLegacyClaims issues role and subject under the namespaced legacy claim names
func WithLegacyClaims() Option {
	return func(s *Server) { s.legacyClaims = true }
}

// WithClock overrides the time source used for token timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates an empty identity service
func NewServer(opts ...Option) *Server {
	s := &Server{
		users:    make(map[string]*user),
		sessions: make(map[string]string),
		secret:   []byte("fake-identity-secret"),
		tokenTTL: defaultTokenTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Secret returns the HS256 signing secret
func (s *Server) Secret() []byte {
	return s.secret
}

// SetFailRefresh makes every refresh attempt fail until reset
func (s *Server) SetFailRefresh(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = fail
}

// SetTokenTTL changes the lifetime of tokens issued from now on
func (s *Server) SetTokenTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenTTL = ttl
}

// AddUser seeds a verified or unverified account and returns its subject
func (s *Server) AddUser(email, password string, role auth.Role, verified bool) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(email)
	if _, exists := s.users[key]; exists {
		return "", auth.ErrAccountExists
	}
	u := &user{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Verified:     verified,
		VerifyToken:  uuid.New().String(),
	}
	s.users[key] = u
	return u.ID, nil
}

// VerificationToken returns the pending e-mail verification token of an account
func (s *Server) VerificationToken(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return "", false
	}
	return u.VerifyToken, true
}

// Handler returns the gin engine serving the identity endpoints
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the identity endpoints on r
func (s *Server) RegisterRoutes(r gin.IRouter) {
	account := r.Group("/api/account")
	{
		account.POST("/login", s.login)
		account.POST("/refresh", s.refresh)
		account.POST("/logout", s.logout)
		account.POST("/register", s.register)
		account.GET("/verify-email", s.verifyEmail)
		account.POST("/resend-verification", s.resendVerification)
	}
}

type credentials struct {
	Email    string `json:"Email"`
	Password string `json:"Password"`
}

func (s *Server) login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Email and password are required"})
		return
	}

	s.mu.Lock()
	u, ok := s.users[strings.ToLower(req.Email)]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "User not found"})
		return
	}
	if bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid email/password"})
		return
	}
	if !u.Verified {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Email not verified"})
		return
	}

	signed, err := s.issue(u)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to issue token"})
		return
	}

	refreshID := uuid.New().String()
	s.mu.Lock()
	s.sessions[refreshID] = strings.ToLower(u.Email)
	s.mu.Unlock()

	c.SetCookie(RefreshCookieName, refreshID, int(refreshTTL.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"token": signed})
}

func (s *Server) refresh(c *gin.Context) {
	refreshID, err := c.Cookie(RefreshCookieName)
	if err != nil || refreshID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Missing refresh token"})
		return
	}

	u, err := s.refreshUser(refreshID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Refresh token is invalid or expired"})
		return
	}

	signed, err := s.issue(u)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": signed})
}

func (s *Server) refreshUser(refreshID string) (*user, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRefresh {
		return nil, errUnknownRefresh
	}
	email, ok := s.sessions[refreshID]
	if !ok {
		return nil, errUnknownRefresh
	}
	u, ok := s.users[email]
	if !ok {
		return nil, errUnknownRefresh
	}
	return u, nil
}

func (s *Server) logout(c *gin.Context) {
	if refreshID, err := c.Cookie(RefreshCookieName); err == nil {
		s.mu.Lock()
		delete(s.sessions, refreshID)
		s.mu.Unlock()
	}
	c.SetCookie(RefreshCookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (s *Server) register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Email and password are required"})
		return
	}
	if _, err := s.AddUser(req.Email, req.Password, auth.RoleUser, false); err != nil {
		if errors.Is(err, auth.ErrAccountExists) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Email already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to create account"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Registration successful, please verify your email"})
}

func (s *Server) verifyEmail(c *gin.Context) {
	email := strings.ToLower(c.Query("email"))
	verifyToken := c.Query("token")

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "User not found"})
		return
	}
	if u.Verified {
		c.JSON(http.StatusOK, gin.H{"message": "Email already verified"})
		return
	}
	if verifyToken == "" || verifyToken != u.VerifyToken {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid verification token"})
		return
	}
	u.Verified = true
	c.JSON(http.StatusOK, gin.H{"message": "Email verified"})
}

func (s *Server) resendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"Email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Email is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(req.Email)]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "User not found"})
		return
	}
	u.VerifyToken = uuid.New().String()
	c.JSON(http.StatusOK, gin.H{"message": "Verification email sent"})
}

func (s *Server) issue(u *user) (string, error) {
	s.mu.Lock()
	ttl := s.tokenTTL
	s.mu.Unlock()

	now := s.now()
	claims := jwt.MapClaims{
		"email": u.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if s.legacyClaims {
		claims[token.ClaimNameIDLegacy] = u.ID
		claims[token.ClaimRoleLegacy] = string(u.Role)
	} else {
		claims["sub"] = u.ID
		claims["role"] = string(u.Role)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
