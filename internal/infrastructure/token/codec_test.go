package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"autodealer/internal/domain/auth"

	"github.com/golang-jwt/jwt/v5"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var testSecret = []byte("test-signing-secret")

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return raw
}

func TestDecode_ValidToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	raw := signToken(t, jwt.MapClaims{
		"sub":   "user-42",
		"email": "user@test.com",
		"role":  "User",
		"exp":   exp.Unix(),
		"iat":   time.Now().Unix(),
	})

	claims, err := NewCodec().Decode(raw)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if claims.Subject != "user-42" {
		t.Errorf("Expected subject 'user-42', got '%s'", claims.Subject)
	}
	if claims.Email != "user@test.com" {
		t.Errorf("Expected email 'user@test.com', got '%s'", claims.Email)
	}
	if claims.Role != auth.RoleUser {
		t.Errorf("Expected role User, got '%s'", claims.Role)
	}
	if !claims.ExpiresAt.Equal(exp) {
		t.Errorf("Expected expiry %v, got %v", exp, claims.ExpiresAt)
	}
	if claims.IsExpired(time.Now()) {
		t.Error("Expected token to be fresh")
	}
}

func TestDecode_RoleClaimShapes(t *testing.T) {
	tests := []struct {
		name     string
		claims   jwt.MapClaims
		expected auth.Role
	}{
		{"single string", jwt.MapClaims{"role": "Admin"}, auth.RoleAdmin},
		{"array takes first", jwt.MapClaims{"role": []string{"Admin", "User"}}, auth.RoleAdmin},
		{"array user first", jwt.MapClaims{"role": []string{"User", "Admin"}}, auth.RoleUser},
		{"roles claim", jwt.MapClaims{"roles": []string{"User"}}, auth.RoleUser},
		{"legacy namespaced", jwt.MapClaims{ClaimRoleLegacy: "Admin"}, auth.RoleAdmin},
		{"plain claim wins over legacy", jwt.MapClaims{"role": "User", ClaimRoleLegacy: "Admin"}, auth.RoleUser},
		{"absent", jwt.MapClaims{}, ""},
		{"empty array", jwt.MapClaims{"role": []string{}}, ""},
		{"array with empty first element", jwt.MapClaims{"role": []interface{}{"", "Admin"}}, ""},
		{"array with non-string first element", jwt.MapClaims{"role": []interface{}{7, "Admin"}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.claims["exp"] = time.Now().Add(time.Hour).Unix()
			claims, err := NewCodec().Decode(signToken(t, tt.claims))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if claims.Role != tt.expected {
				t.Errorf("Expected role '%s', got '%s'", tt.expected, claims.Role)
			}
		})
	}
}

func TestDecode_SubjectPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		claims   jwt.MapClaims
		expected string
	}{
		{"sub first", jwt.MapClaims{"sub": "s", ClaimNameIDLegacy: "n", "email": "e", ClaimEmailLegacy: "le"}, "s"},
		{"legacy name identifier", jwt.MapClaims{ClaimNameIDLegacy: "n", "email": "e", ClaimEmailLegacy: "le"}, "n"},
		{"email", jwt.MapClaims{"email": "e", ClaimEmailLegacy: "le"}, "e"},
		{"legacy email", jwt.MapClaims{ClaimEmailLegacy: "le"}, "le"},
		{"none", jwt.MapClaims{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.claims["exp"] = time.Now().Add(time.Hour).Unix()
			claims, err := NewCodec().Decode(signToken(t, tt.claims))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if claims.Subject != tt.expected {
				t.Errorf("Expected subject '%s', got '%s'", tt.expected, claims.Subject)
			}
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	notJSON := base64.RawURLEncoding.EncodeToString([]byte("not json"))
	badExp := base64.RawURLEncoding.EncodeToString([]byte(`{"exp":"tomorrow"}`))

	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"one segment", "abc"},
		{"two segments", "abc.def"},
		{"four segments", "a.b.c.d"},
		{"payload not base64url", header + ".@@@.sig"},
		{"payload not json", header + "." + notJSON + ".sig"},
		{"expiry not numeric", header + "." + badExp + ".sig"},
		{"payload is null", header + "." + base64.RawURLEncoding.EncodeToString([]byte("null")) + ".sig"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := NewCodec().Decode(tt.raw)
			if err == nil {
				t.Fatalf("Expected error, got claims %+v", claims)
			}
			if !errors.Is(err, auth.ErrMalformedCredential) {
				t.Errorf("Expected ErrMalformedCredential, got %v", err)
			}
		})
	}
}

func TestDecode_UnverifiedIgnoresHeader(t *testing.T) {
	payload := base64.RawURLEncoding.EncodeToString([]byte(
		fmt.Sprintf(`{"sub":"user-7","role":"Admin","exp":%d}`, time.Now().Add(time.Hour).Unix())))

	headers := map[string]string{
		"no alg":        base64.RawURLEncoding.EncodeToString([]byte(`{"typ":"JWT"}`)),
		"unknown alg":   base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"ES256K"}`)),
		"not base64url": "!!!",
		"not json":      base64.RawURLEncoding.EncodeToString([]byte("not json")),
	}

	for name, header := range headers {
		t.Run(name, func(t *testing.T) {
			raw := header + "." + payload + ".sig"

			claims, err := NewCodec().Decode(raw)
			if err != nil {
				t.Fatalf("Expected payload to decode, got %v", err)
			}
			if claims.Subject != "user-7" || claims.Role != auth.RoleAdmin {
				t.Errorf("Expected user-7/Admin, got %s/%s", claims.Subject, claims.Role)
			}
			if claims.IsExpired(time.Now()) {
				t.Error("Expected token to be fresh")
			}

			if _, err := NewCodec(WithHMACSecret(testSecret)).Decode(raw); !errors.Is(err, auth.ErrMalformedCredential) {
				t.Errorf("Expected verified decode to fail as malformed, got %v", err)
			}
		})
	}
}

func TestDecode_MissingExpiryIsStale(t *testing.T) {
	claims, err := NewCodec().Decode(signToken(t, jwt.MapClaims{"sub": "u"}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !claims.ExpiresAt.IsZero() {
		t.Errorf("Expected zero expiry, got %v", claims.ExpiresAt)
	}
	if !claims.IsExpired(time.Now()) {
		t.Error("Expected token without expiry to be treated as expired")
	}
}

func TestDecode_ExpiredTokenStillDecodes(t *testing.T) {
	raw := signToken(t, jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-10 * time.Second).Unix()})

	for name, codec := range map[string]*Codec{
		"unverified": NewCodec(),
		"verified":   NewCodec(WithHMACSecret(testSecret)),
	} {
		t.Run(name, func(t *testing.T) {
			claims, err := codec.Decode(raw)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !claims.IsExpired(time.Now()) {
				t.Error("Expected claims to be expired")
			}
			if got := ExpiresIn(claims, time.Now()); got != 0 {
				t.Errorf("Expected zero ExpiresIn, got %v", got)
			}
		})
	}
}

func TestDecode_SignatureVerification(t *testing.T) {
	raw := signToken(t, jwt.MapClaims{"sub": "u", "exp": time.Now().Add(time.Hour).Unix()})

	if _, err := NewCodec(WithHMACSecret(testSecret)).Decode(raw); err != nil {
		t.Errorf("Expected valid signature to verify, got %v", err)
	}

	_, err := NewCodec(WithHMACSecret([]byte("another-secret"))).Decode(raw)
	if !errors.Is(err, auth.ErrMalformedCredential) {
		t.Errorf("Expected ErrMalformedCredential for bad signature, got %v", err)
	}

	// Unverified decoding ignores the signature entirely
	tampered := raw[:strings.LastIndex(raw, ".")] + ".c2lnbmF0dXJl"
	if _, err := NewCodec().Decode(tampered); err != nil {
		t.Errorf("Expected unverified decode of tampered token to succeed, got %v", err)
	}
	if _, err := NewCodec(WithHMACSecret(testSecret)).Decode(tampered); err == nil {
		t.Error("Expected verified decode of tampered token to fail")
	}
}

// Property: well-formed credentials with a future expiry always decode to their embedded claims
func TestProperty_WellFormedCredentialsDecode(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("well-formed future credentials decode with their role and subject",
		prop.ForAll(
			func(subject string, admin bool, minutes int) bool {
				role := "User"
				if admin {
					role = "Admin"
				}
				raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
					"sub":  subject,
					"role": role,
					"exp":  time.Now().Add(time.Duration(minutes) * time.Minute).Unix(),
				}).SignedString(testSecret)
				if err != nil {
					return false
				}

				claims, err := NewCodec().Decode(raw)
				return err == nil &&
					claims.Subject == subject &&
					string(claims.Role) == role &&
					!claims.IsExpired(time.Now())
			},
			gen.Identifier(),
			gen.Bool(),
			gen.IntRange(1, 60*24*30),
		))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Property: any string without exactly two separators fails as malformed
func TestProperty_WrongSegmentCountIsMalformed(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("strings lacking exactly two dots are malformed credentials",
		prop.ForAll(
			func(parts []string) bool {
				raw := strings.Join(parts, ".")
				_, err := NewCodec().Decode(raw)
				return errors.Is(err, auth.ErrMalformedCredential)
			},
			gen.OneGenOf(
				gen.SliceOfN(1, gen.AlphaString()),
				gen.SliceOfN(2, gen.AlphaString()),
				gen.SliceOfN(4, gen.AlphaString()),
				gen.SliceOfN(7, gen.AlphaString()),
			),
		))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
