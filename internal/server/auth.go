package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"commandops/internal/apperr"
	"commandops/internal/engine/auth"
	"commandops/internal/logging"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

func ownerFromContext(ctx context.Context) (string, error) {
	if p, ok := principalFromContext(ctx); ok && p.OwnerID != "" {
		return p.OwnerID, nil
	}
	return "", apperr.Authentication("authentication required")
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware resolves the caller from a bearer token or X-Api-Key
// header. Routes outside basePath, health and the OpenAPI document are open.
func newAuthMiddleware(basePath string, svc auth.Service) func(http.Handler) http.Handler {
	healthPath := path.Join(basePath, "health")
	specPath := path.Join(basePath, "openapi.json")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath) || req.URL.Path == healthPath || req.URL.Path == specPath {
				next.ServeHTTP(w, req)
				return
			}
			ctx := req.Context()
			principal, err := authenticate(ctx, svc, req.Header)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrUnknownAPIKey) && !errors.Is(err, errNoCredentials) {
					logging.From(ctx, nil).Warn("authentication failed", "error", err)
				}
				msg := "invalid credentials"
				if errors.Is(err, errNoCredentials) {
					msg = "authentication required"
				}
				respondStatusError(w, newAPIError(http.StatusUnauthorized, string(apperr.KindAuthentication), msg, nil, false))
				return
			}
			ctx = withPrincipal(ctx, principal)
			ctx = logging.Into(ctx, logging.From(ctx, nil).With("owner_id", principal.OwnerID))
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

var errNoCredentials = errors.New("no credentials")

func authenticate(ctx context.Context, svc auth.Service, h http.Header) (auth.Principal, error) {
	if authz := strings.TrimSpace(h.Get("Authorization")); authz != "" {
		token, ok := bearerToken(authz)
		if !ok {
			return auth.Principal{}, auth.ErrInvalidToken
		}
		return svc.ParseToken(token)
	}
	if key := strings.TrimSpace(h.Get("X-Api-Key")); key != "" {
		return svc.AuthenticateAPIKey(ctx, key)
	}
	return auth.Principal{}, errNoCredentials
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
