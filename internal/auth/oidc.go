// Package auth provides OIDC bearer token verification for the bot API
// and token acquisition for clients of it.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Claims represents the claims from a verified ID token.
type Claims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// Verifier validates OIDC bearer tokens against a provider.
type Verifier struct {
	verifier       *oidc.IDTokenVerifier
	allowedDomains []string
}

// NewVerifier creates a Verifier using OIDC discovery.
func NewVerifier(ctx context.Context, issuerURL, clientID string, allowedDomains []string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return &Verifier{
		verifier: provider.Verifier(&oidc.Config{
			ClientID: clientID,
		}),
		allowedDomains: allowedDomains,
	}, nil
}

// VerifyToken validates a raw bearer token and returns its claims.
func (v *Verifier) VerifyToken(ctx context.Context, rawToken string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	if err := v.validateClaims(&claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

// validateClaims checks domain restrictions if configured.
func (v *Verifier) validateClaims(claims *Claims) error {
	if len(v.allowedDomains) == 0 {
		return nil
	}
	if claims.Email == "" {
		return fmt.Errorf("email claim is required")
	}

	emailParts := strings.Split(claims.Email, "@")
	if len(emailParts) != 2 {
		return fmt.Errorf("invalid email format")
	}
	domain := strings.ToLower(emailParts[1])

	for _, d := range v.allowedDomains {
		if strings.ToLower(d) == domain {
			return nil
		}
	}
	return fmt.Errorf("email domain %s is not allowed", domain)
}

// TokenSource returns an OAuth2 client credentials token source for
// machine clients of the bot API.
func TokenSource(ctx context.Context, tokenURL, clientID, clientSecret string, scopes []string) oauth2.TokenSource {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}
	return cfg.TokenSource(ctx)
}
