// Package middleware contains HTTP middleware for the controller.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"docflow/internal/auth"
	"docflow/internal/store"
	"docflow/pkg/api"
)

// orgKey is the context key for the authenticated organization.
type orgKey struct{}

// AuthMiddleware authenticates requests by API key. The raw key arrives as
// a Bearer token, is hashed, and looked up against the organization table;
// the matched organization lands in the request context so every handler
// can scope its queries.
func AuthMiddleware(orgs store.OrganizationStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				unauthorized(w, "Invalid authorization header")
				return
			}

			org, err := orgs.GetOrganizationByAPIKeyHash(r.Context(), auth.HashKey(parts[1]))
			if err != nil {
				// Lookup misses and store failures look the same to the
				// caller; no oracle for probing keys.
				unauthorized(w, "Invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), orgKey{}, org)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OrgFromContext extracts the authenticated organization from the context.
func OrgFromContext(ctx context.Context) (*store.Organization, bool) {
	org, ok := ctx.Value(orgKey{}).(*store.Organization)
	return org, ok
}

// WithOrg returns a context carrying the organization; used by tests.
func WithOrg(ctx context.Context, org *store.Organization) context.Context {
	return context.WithValue(ctx, orgKey{}, org)
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: msg, Code: "401"})
}
