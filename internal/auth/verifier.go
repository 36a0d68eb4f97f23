// Package auth verifies bearer tokens for the mixer API.
//
// Read-only commands require scope "read", mutating commands require
// "control" and the telemetry stream requires "telemetry".
package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Supported signing algorithms.
const (
	AlgHS256 = "HS256"
	AlgRS256 = "RS256"
)

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("invalid token")

// VerifierConfig holds configuration for JWT verification.
type VerifierConfig struct {
	Algorithm    string // "RS256" or "HS256"
	SecretKey    string // HS256
	PublicKeyPEM string // RS256
}

// Verifier checks token signatures and extracts claims.
type Verifier struct {
	config    VerifierConfig
	publicKey *rsa.PublicKey
}

// NewVerifier creates a new JWT verifier.
func NewVerifier(config VerifierConfig) (*Verifier, error) {
	v := &Verifier{config: config}

	switch config.Algorithm {
	case AlgRS256:
		if config.PublicKeyPEM == "" {
			return nil, fmt.Errorf("RS256 requires a public key")
		}
		key, err := parsePublicKeyPEM(config.PublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to load public key from PEM: %w", err)
		}
		v.publicKey = key
	case AlgHS256:
		if config.SecretKey == "" {
			return nil, fmt.Errorf("HS256 requires secret key")
		}
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", config.Algorithm)
	}

	return v, nil
}

// VerifyToken verifies a JWT token and returns the claims.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("%w: token cannot be empty", ErrInvalidToken)
	}

	token, err := jwt.Parse(tokenString, v.keyFunc, jwt.WithValidMethods([]string{v.config.Algorithm}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid token claims", ErrInvalidToken)
	}
	return extractClaims(claims)
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	switch v.config.Algorithm {
	case AlgRS256:
		return v.publicKey, nil
	default:
		return []byte(v.config.SecretKey), nil
	}
}

func extractClaims(claims jwt.MapClaims) (*Claims, error) {
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: missing or invalid 'sub' claim", ErrInvalidToken)
	}

	roles, err := stringSlice(claims, "roles")
	if err != nil {
		return nil, err
	}
	scopes, err := stringSlice(claims, "scopes")
	if err != nil {
		return nil, err
	}

	for _, role := range roles {
		if role != RoleViewer && role != RoleController {
			return nil, fmt.Errorf("%w: invalid role %q", ErrInvalidToken, role)
		}
	}
	for _, scope := range scopes {
		if !validScope(scope) {
			return nil, fmt.Errorf("%w: invalid scope %q", ErrInvalidToken, scope)
		}
	}
	if len(scopes) == 0 {
		return nil, fmt.Errorf("%w: no scopes", ErrInvalidToken)
	}

	return &Claims{Subject: sub, Roles: roles, Scopes: scopes}, nil
}

func stringSlice(claims jwt.MapClaims, key string) ([]string, error) {
	value, ok := claims[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing claim %s", ErrInvalidToken, key)
	}

	switch val := value.(type) {
	case []string:
		return val, nil
	case []interface{}:
		result := make([]string, len(val))
		for i, item := range val {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: invalid %s claim: not a string", ErrInvalidToken, key)
			}
			result[i] = str
		}
		return result, nil
	default:
		return nil, fmt.Errorf("%w: invalid %s claim: not a string array", ErrInvalidToken, key)
	}
}

func validScope(scope string) bool {
	switch scope {
	case ScopeRead, ScopeControl, ScopeTelemetry:
		return true
	}
	return false
}

func parsePublicKeyPEM(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaPub, nil
}

// IssueToken mints an HS256 token for subject. A zero ttl issues a token
// without expiry.
func IssueToken(secret, subject string, roles, scopes []string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("HS256 requires secret key")
	}
	for _, scope := range scopes {
		if !validScope(scope) {
			return "", fmt.Errorf("invalid scope %q", scope)
		}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":    subject,
		"roles":  roles,
		"scopes": scopes,
		"iat":    now.Unix(),
	}
	if ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// DefaultRoles returns the role matching a scope set.
func DefaultRoles(scopes []string) []string {
	for _, s := range scopes {
		if s == ScopeControl {
			return []string{RoleController}
		}
	}
	return []string{RoleViewer}
}
