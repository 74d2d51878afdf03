// Package auth issues and verifies the API's access tokens and hashes
// account passwords.
package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"

	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/models"
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 8 * time.Hour

// Claims carried by every access token.
type Claims struct {
	UserID uint   `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Manager issues, verifies and revokes HS256 access tokens. Verified
// tokens are cached so the hot auth path skips the signature check;
// revoked tokens stay blocked until they would expire anyway.
type Manager struct {
	secret   []byte
	ttl      time.Duration
	verified *cache.Cache
	revoked  *cache.Cache
}

// NewManager builds a token manager around a shared secret. A zero ttl
// falls back to DefaultTTL.
func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		secret:   []byte(secret),
		ttl:      ttl,
		verified: cache.New(5*time.Minute, 10*time.Minute),
		revoked:  cache.New(ttl, 10*time.Minute),
	}
}

// HashPassword hashes a clear text password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Issue builds a signed token for the user.
func (m *Manager) Issue(user *models.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify parses and validates a token, serving repeated lookups from the
// cache. Cached entries are re-checked against their expiry so a token
// never outlives itself in the cache.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	if _, blocked := m.revoked.Get(tokenString); blocked {
		return nil, fault.New(fault.Unauthorized, "token revoked")
	}
	if cached, found := m.verified.Get(tokenString); found {
		claims := cached.(*Claims)
		if claims.ExpiresAt != nil && time.Now().After(claims.ExpiresAt.Time) {
			m.verified.Delete(tokenString)
			return nil, fault.New(fault.Unauthorized, "token expired")
		}
		return claims, nil
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fault.New(fault.Unauthorized, "unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fault.New(fault.Unauthorized, "invalid or expired token")
	}

	m.verified.Set(tokenString, &claims, cache.DefaultExpiration)
	return &claims, nil
}

// Revoke blocks a still-valid token until its natural expiry. Invalid
// tokens need no blocking.
func (m *Manager) Revoke(tokenString string) {
	claims, err := m.Verify(tokenString)
	if err != nil {
		return
	}
	ttl := m.ttl
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return
	}
	m.revoked.Set(tokenString, struct{}{}, ttl)
	m.verified.Delete(tokenString)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
