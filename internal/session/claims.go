package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken is returned when a token payload cannot be decoded.
var ErrMalformedToken = errors.New("malformed token")

var tenantClaimKeys = []string{"tenant", "tenant_id", "tenantId"}

// Claims decodes the token payload without verifying the signature. The
// console only reads display hints from it; the backend remains the
// authority on validity.
func Claims(token string) (jwt.MapClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMalformedToken
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return claims, nil
}

// TenantID returns the tenant identifier carried in the access token, or ""
// when the token names none.
func TenantID(token string) string {
	claims, err := Claims(token)
	if err != nil {
		return ""
	}
	for _, key := range tenantClaimKeys {
		switch v := claims[key].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}

// ExpiresAt returns the exp claim of the token.
func ExpiresAt(token string) (time.Time, bool) {
	claims, err := Claims(token)
	if err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
