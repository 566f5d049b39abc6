package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/algosec/algosec-go/internal/auth"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

// Identity describes the authenticated caller of a request.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// Auth creates authentication middleware. Requests carry a bearer token
// which is either verified against the OIDC provider, or compared to the
// static bootstrap token when OIDC is disabled.
func Auth(verifier *auth.Verifier, bootstrapToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"code":401,"message":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, `{"code":401,"message":"invalid authorization header format"}`, http.StatusUnauthorized)
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == "" {
				http.Error(w, `{"code":401,"message":"empty bearer token"}`, http.StatusUnauthorized)
				return
			}

			ctx := r.Context()

			if verifier != nil {
				claims, err := verifier.VerifyToken(ctx, token)
				if err != nil {
					http.Error(w, `{"code":401,"message":"invalid token"}`, http.StatusUnauthorized)
					return
				}
				ctx = context.WithValue(ctx, IdentityContextKey, &Identity{
					Subject: claims.Subject,
					Email:   claims.Email,
					Name:    claims.Name,
				})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if bootstrapToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(bootstrapToken)) == 1 {
				ctx = context.WithValue(ctx, IdentityContextKey, &Identity{
					Subject: "bootstrap",
					Name:    "Bootstrap Token",
				})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			http.Error(w, `{"code":401,"message":"invalid token"}`, http.StatusUnauthorized)
		})
	}
}

// GetIdentityFromContext retrieves the caller identity from the request
// context.
func GetIdentityFromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(IdentityContextKey).(*Identity)
	return identity
}
