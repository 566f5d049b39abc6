package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestTokenSource(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing token request form: %v", err)
		}
		if got := r.FormValue("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q, want client_credentials", got)
		}

		// Client credentials arrive as basic auth or as form values
		// depending on the auth style the library settles on.
		clientID, clientSecret, ok := r.BasicAuth()
		if !ok {
			clientID = r.FormValue("client_id")
			clientSecret = r.FormValue("client_secret")
		}
		if clientID != "bot-client" || clientSecret != "bot-secret" {
			t.Errorf("credentials = %q/%q, want bot-client/bot-secret", clientID, clientSecret)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "token-123", "token_type": "Bearer", "expires_in": 3600}`)
	}))
	defer server.Close()

	source := TokenSource(context.Background(), server.URL+"/token", "bot-client", "bot-secret", []string{"algobot"})

	token, err := source.Token()
	if err != nil {
		t.Fatalf("fetching token: %v", err)
	}
	if token.AccessToken != "token-123" {
		t.Errorf("AccessToken = %q, want token-123", token.AccessToken)
	}
	if requests.Load() == 0 {
		t.Fatal("token endpoint was never called")
	}

	// A second fetch inside the validity window reuses the cached token.
	if _, err := source.Token(); err != nil {
		t.Fatalf("fetching cached token: %v", err)
	}
	if requests.Load() != 1 {
		t.Errorf("token endpoint called %d times, want 1", requests.Load())
	}
}

func TestTokenSourceEndpointError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid_client"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	source := TokenSource(context.Background(), server.URL+"/token", "bot-client", "wrong-secret", nil)

	if _, err := source.Token(); err == nil {
		t.Fatal("expected an error from a rejected token request")
	}
}
