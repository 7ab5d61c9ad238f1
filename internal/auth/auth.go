// Package auth resolves the owner id that scopes every ledger operation.
//
// The backend issues HS256 JWTs whose subject is the owner. A device either
// has an owner id configured directly or derives it from its token.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoOwner means neither an owner id nor a token is configured.
	ErrNoOwner = errors.New("not signed in: no owner id or token configured")
	// ErrInvalidToken is returned for malformed, expired or badly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Issuer is the iss claim of tokens minted here.
const Issuer = "batabung"

// Claims are the JWT claims used by the backend. Subject is the owner id.
type Claims struct {
	jwt.RegisteredClaims
}

// IssueToken mints a token for owner signed with secret. A zero ttl means
// the token does not expire.
func IssueToken(secret []byte, owner string, ttl time.Duration) (string, error) {
	if owner == "" {
		return "", errors.New("owner id is required")
	}
	if len(secret) == 0 {
		return "", errors.New("signing secret is required")
	}
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  owner,
		Issuer:   Issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyToken checks the signature and expiry of token and returns its owner.
func VerifyToken(secret []byte, token string) (string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// OwnerFromToken reads the subject without verifying the signature. The
// device cannot verify its own token; the backend does that on every call.
func OwnerFromToken(token string) (string, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Resolve returns the configured owner id, falling back to the token's
// subject. An explicit owner that disagrees with the token is an error.
func Resolve(owner, token string) (string, error) {
	owner = strings.TrimSpace(owner)
	if token == "" {
		if owner == "" {
			return "", ErrNoOwner
		}
		return owner, nil
	}
	sub, err := OwnerFromToken(token)
	if err != nil {
		return "", err
	}
	if owner != "" && owner != sub {
		return "", fmt.Errorf("configured owner %q does not match token subject %q", owner, sub)
	}
	return sub, nil
}
