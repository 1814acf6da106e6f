package token

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"autodealer/internal/domain/auth"

	"github.com/golang-jwt/jwt/v5"
)

// Legacy namespaced claim names issued by the identity service
const (
	ClaimRoleLegacy       = "http://schemas.microsoft.com/ws/2008/06/identity/claims/role"
	ClaimNameIDLegacy     = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier"
	ClaimEmailLegacy      = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress"
	claimSubject          = "sub"
	claimEmail            = "email"
	claimRole             = "role"
	claimRoles            = "roles"
	claimExpiresAt        = "exp"
	claimIssuedAt         = "iat"
	verificationAlgHMAC   = "HS"
	verificationAlgRSA    = "RS"
	verificationAlgRSAPSS = "PS"
)

var (
	roleClaims    = []string{claimRole, claimRoles, ClaimRoleLegacy}
	subjectClaims = []string{claimSubject, ClaimNameIDLegacy, claimEmail, ClaimEmailLegacy}
)

// Codec decodes identity-service credentials. By default it only decodes;
// signature verification is enabled with WithHMACSecret or WithRSAPublicKey.
type Codec struct {
	parser    *jwt.Parser
	hmacKey   []byte
	rsaKey    *rsa.PublicKey
	verifying bool
}

// Option configures a Codec
type Option func(*Codec)

// WithHMACSecret verifies HS256/384/512 signatures with secret
func WithHMACSecret(secret []byte) Option {
	return func(c *Codec) {
		c.hmacKey = secret
		c.verifying = true
	}
}

// WithRSAPublicKey verifies RS/PS signatures with key
func WithRSAPublicKey(key *rsa.PublicKey) Option {
	return func(c *Codec) {
		c.rsaKey = key
		c.verifying = true
	}
}

// NewCodec creates a token codec
func NewCodec(opts ...Option) *Codec {
	c := &Codec{
		// Expiry is judged by the session store, never by the codec.
		parser: jwt.NewParser(jwt.WithoutClaimsValidation()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadRSAPublicKey reads an RSA public key from path, either PEM encoded
// or as a JWK / JWK set document
func LoadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	if isJWKDocument(data) {
		return parseJWKDocument(data)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return key, nil
}

// Decode splits raw into header.payload.signature and extracts the claims.
// Every failure is reported as auth.ErrMalformedCredential.
func (c *Codec) Decode(raw string) (*auth.Claims, error) {
	if !auth.IsThreePart(raw) {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", auth.ErrMalformedCredential, strings.Count(raw, ".")+1)
	}

	claims := jwt.MapClaims{}
	var err error
	if c.verifying {
		_, err = c.parser.ParseWithClaims(raw, claims, c.keyFunc)
	} else {
		err = c.decodePayload(raw, claims)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrMalformedCredential, err)
	}

	return extractClaims(claims)
}

// decodePayload reads the claims segment only; the header and signature
// are left unread when no verification key is configured
func (c *Codec) decodePayload(raw string, claims jwt.MapClaims) error {
	payload := strings.Split(raw, ".")[1]
	data, err := c.parser.DecodeSegment(payload)
	if err != nil {
		return fmt.Errorf("could not base64 decode claims: %w", err)
	}
	if err := json.Unmarshal(data, &claims); err != nil {
		return fmt.Errorf("could not JSON decode claims: %w", err)
	}
	if claims == nil {
		return fmt.Errorf("claims segment is null")
	}
	return nil
}

func (c *Codec) keyFunc(t *jwt.Token) (interface{}, error) {
	switch {
	case strings.HasPrefix(t.Method.Alg(), verificationAlgHMAC) && c.hmacKey != nil:
		return c.hmacKey, nil
	case (strings.HasPrefix(t.Method.Alg(), verificationAlgRSA) || strings.HasPrefix(t.Method.Alg(), verificationAlgRSAPSS)) && c.rsaKey != nil:
		return c.rsaKey, nil
	}
	return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
}

func extractClaims(claims jwt.MapClaims) (*auth.Claims, error) {
	out := &auth.Claims{
		Email: getStringClaim(claims, claimEmail),
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrMalformedCredential, err)
	}
	if exp != nil {
		out.ExpiresAt = exp.Time
	}

	iat, err := claims.GetIssuedAt()
	if err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}

	for _, name := range roleClaims {
		if roles := getStringsClaim(claims, name); len(roles) > 0 {
			out.Roles = roles
			break
		}
	}
	out.Role = auth.CanonicalRole(out.Roles)

	for _, name := range subjectClaims {
		if sub := getStringClaim(claims, name); sub != "" {
			out.Subject = sub
			break
		}
	}

	return out, nil
}

// ExpiresIn returns the time left before claims expire, zero when stale
func ExpiresIn(claims *auth.Claims, now time.Time) time.Duration {
	if claims.IsExpired(now) {
		return 0
	}
	return claims.ExpiresAt.Sub(now)
}

// Helper functions to extract claims
func getStringClaim(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}

// getStringsClaim accepts a single string or an array of strings
func getStringsClaim(claims jwt.MapClaims, key string) []string {
	switch val := claims[key].(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []interface{}:
		if len(val) == 0 {
			return nil
		}
		// Positions are kept so the first element stays canonical;
		// non-string elements read as empty.
		out := make([]string, len(val))
		for i, v := range val {
			out[i], _ = v.(string)
		}
		return out
	}
	return nil
}
