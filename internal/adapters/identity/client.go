package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"autodealer/internal/domain/auth"

	"github.com/rs/zerolog/log"
)

const (
	loginPath              = "/api/account/login"
	refreshPath            = "/api/account/refresh"
	logoutPath             = "/api/account/logout"
	registerPath           = "/api/account/register"
	verifyEmailPath        = "/api/account/verify-email"
	resendVerificationPath = "/api/account/resend-verification"

	// DefaultTimeout bounds every exchange when no timeout is configured
	DefaultTimeout = 15 * time.Second

	maxEnvelopeSize = 1 << 20
)

// envelope is the response shape shared by every identity endpoint
type envelope struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

type credentials struct {
	Email    string `json:"Email"`
	Password string `json:"Password"`
}

type emailRequest struct {
	Email string `json:"Email"`
}

// Client performs the credential exchanges with the remote identity service.
// Its cookie jar carries the ambient refresh cookie between calls, so each
// signed-in browser needs its own Client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the deadline applied to each exchange
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTransport replaces the HTTP transport, keeping the cookie jar
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = rt }
}

// NewClient creates a client for the identity service at baseURL
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid identity base URL: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Jar: jar},
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Login exchanges an email and password for a signed token
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	env, err := c.do(ctx, http.MethodPost, loginPath, credentials{Email: email, Password: password})
	if err != nil {
		return "", err
	}
	return requireToken(env)
}

// Refresh renews the token using the ambient session cookie
func (c *Client) Refresh(ctx context.Context) (string, error) {
	env, err := c.do(ctx, http.MethodPost, refreshPath, nil)
	if err != nil {
		return "", err
	}
	return requireToken(env)
}

// Logout ends the remote session
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, logoutPath, nil)
	return err
}

// Register creates an account and returns the service's confirmation text
func (c *Client) Register(ctx context.Context, req auth.RegisterRequest) (string, error) {
	env, err := c.do(ctx, http.MethodPost, registerPath, req)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// VerifyEmail confirms an account with the token sent by e-mail
func (c *Client) VerifyEmail(ctx context.Context, email, token string) (string, error) {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)
	env, err := c.do(ctx, http.MethodGet, verifyEmailPath+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// ResendVerification asks the service to send a new verification e-mail
func (c *Client) ResendVerification(ctx context.Context, email string) (string, error) {
	env, err := c.do(ctx, http.MethodPost, resendVerificationPath, emailRequest{Email: email})
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// do issues one request and decodes the envelope. Failures are never retried.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Dur("elapsed", time.Since(start)).Msg("Identity service unreachable")
		return nil, &auth.ProtocolError{Kind: auth.ErrNetworkFailure, Message: networkMessage(err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeSize))
	if err != nil {
		return nil, &auth.ProtocolError{Kind: auth.ErrNetworkFailure, Status: resp.StatusCode, Message: networkMessage(err)}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	log.Debug().Str("path", path).Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("Identity exchange")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, TranslateFailure(resp.StatusCode, env.Message)
	}
	if decodeErr != nil && len(bytes.TrimSpace(raw)) > 0 {
		return nil, &auth.ProtocolError{Kind: auth.ErrServerError, Status: resp.StatusCode, Message: "unreadable response from identity service"}
	}
	return &env, nil
}

func requireToken(env *envelope) (string, error) {
	if env.Token == "" {
		return "", &auth.ProtocolError{Kind: auth.ErrServerError, Status: http.StatusOK, Message: "identity service returned no token"}
	}
	return env.Token, nil
}

func networkMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "identity service did not respond in time"
	}
	if errors.Is(err, context.Canceled) {
		return "request cancelled"
	}
	return "identity service unreachable"
}
