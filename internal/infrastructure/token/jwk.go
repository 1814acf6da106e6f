package token

import (
	"bytes"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
)

// jwk is a single JSON Web Key; only RSA members are read
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// jwkSet is the document served by an identity provider's jwks endpoint
type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// isJWKDocument reports whether data looks like JSON rather than PEM
func isJWKDocument(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte("{"))
}

// parseJWKDocument accepts either a single JWK or a key set and returns
// the first RSA key it finds
func parseJWKDocument(data []byte) (*rsa.PublicKey, error) {
	var set jwkSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse jwk: %w", err)
	}
	if len(set.Keys) == 0 {
		var single jwk
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("parse jwk: %w", err)
		}
		set.Keys = []jwk{single}
	}

	var lastErr error
	for _, key := range set.Keys {
		pub, err := jwkToPublicKey(key)
		if err == nil {
			return pub, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// jwkToPublicKey converts a JWK to an RSA public key
func jwkToPublicKey(key jwk) (*rsa.PublicKey, error) {
	if key.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type: %q", key.Kty)
	}
	if key.N == "" {
		return nil, fmt.Errorf("missing n parameter")
	}
	if key.E == "" {
		return nil, fmt.Errorf("missing e parameter")
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode n: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode e: %w", err)
	}

	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() < 3 {
		return nil, fmt.Errorf("invalid exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(e.Int64()),
	}, nil
}
