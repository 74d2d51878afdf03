package api

import (
	"context"
	"net/http"

	"github.com/oxhq/varix/auth"
	"github.com/oxhq/varix/fault"
)

type contextKey string

const claimsKey contextKey = "claims"

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.config.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// protect requires a valid bearer token and stores its claims in the
// request context.
func (s *Server) protect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			s.respondError(w, r, fault.New(fault.Unauthorized, "missing bearer token"))
			return
		}
		claims, err := s.auth.Verify(token)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// protectAdmin additionally requires the admin role.
func (s *Server) protectAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.protect(func(w http.ResponseWriter, r *http.Request) {
		if claimsFrom(r).Role != "admin" {
			s.respondError(w, r, fault.New(fault.Forbidden, "admin role required"))
			return
		}
		next(w, r)
	})
}

// claimsFrom returns the verified claims placed by protect. Handlers
// behind protect may assume it is non-nil.
func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return claims
}
