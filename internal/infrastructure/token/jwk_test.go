package token

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func encodeJWK(pub *rsa.PublicKey) jwk {
	return jwk{
		Kty: "RSA",
		Kid: "identity-1",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func TestLoadRSAPublicKey_JWKSet(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	doc, err := json.Marshal(jwkSet{Keys: []jwk{{Kty: "EC", Kid: "ignored"}, encodeJWK(&key.PublicKey)}})
	if err != nil {
		t.Fatalf("Failed to marshal jwks: %v", err)
	}
	path := filepath.Join(t.TempDir(), "jwks.json")
	if err := os.WriteFile(path, doc, 0600); err != nil {
		t.Fatalf("Failed to write jwks: %v", err)
	}

	pub, err := LoadRSAPublicKey(path)
	if err != nil {
		t.Fatalf("LoadRSAPublicKey failed: %v", err)
	}
	if pub.N.Cmp(key.PublicKey.N) != 0 || pub.E != key.PublicKey.E {
		t.Error("Expected loaded key to match generated key")
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "u",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(key)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	if _, err := NewCodec(WithRSAPublicKey(pub)).Decode(raw); err != nil {
		t.Errorf("Expected token to verify against jwk, got %v", err)
	}
}

func TestParseJWKDocument_SingleKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	doc, _ := json.Marshal(encodeJWK(&key.PublicKey))

	pub, err := parseJWKDocument(doc)
	if err != nil {
		t.Fatalf("parseJWKDocument failed: %v", err)
	}
	if pub.E != 65537 {
		t.Errorf("Expected exponent 65537, got %d", pub.E)
	}
}

func TestJWKToPublicKey_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  jwk
	}{
		{"wrong type", jwk{Kty: "EC", N: "AQAB", E: "AQAB"}},
		{"missing n", jwk{Kty: "RSA", E: "AQAB"}},
		{"missing e", jwk{Kty: "RSA", N: "AQAB"}},
		{"bad n", jwk{Kty: "RSA", N: "@@", E: "AQAB"}},
		{"bad e", jwk{Kty: "RSA", N: "AQAB", E: "@@"}},
		{"tiny exponent", jwk{Kty: "RSA", N: "AQAB", E: "AQ"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := jwkToPublicKey(tt.key); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestIsJWKDocument(t *testing.T) {
	if !isJWKDocument([]byte("  {\"keys\":[]}")) {
		t.Error("Expected JSON document to be detected")
	}
	if isJWKDocument([]byte("-----BEGIN PUBLIC KEY-----")) {
		t.Error("Expected PEM not to be detected as JWK")
	}
}
