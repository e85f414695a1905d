package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"

	"github.com/driftboard/handoff/internal/handoff/provider"
	"github.com/stretchr/testify/require"
)

func stubTokenEndpoint(t *testing.T, accessToken string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": accessToken,
			"token_type":   "bearer",
		})
	}))
}

func TestRegistry(t *testing.T) {
	gh := provider.NewGitHub(provider.GitHubConfig{ClientID: "id", ClientSecret: "secret"})
	reg := provider.NewRegistry(gh)

	got, err := reg.Get("github")
	require.NoError(t, err)
	require.Equal(t, "github", got.Name())

	_, err = reg.Get("gitlab")
	require.ErrorIs(t, err, provider.ErrUnknownProvider)

	require.ElementsMatch(t, []string{"github"}, reg.Names())
}

func TestGitHubAuthorizeURL(t *testing.T) {
	gh := provider.NewGitHub(provider.GitHubConfig{
		ClientID:    "client-1",
		RedirectURL: "https://broker.example.com/oauth/web/callback",
	})

	u := gh.AuthorizeURL("state-token")
	require.Contains(t, u, "github.com/login/oauth/authorize")
	require.Contains(t, u, "client_id=client-1")
	require.Contains(t, u, "state=state-token")
	require.Contains(t, u, "read%3Auser+user%3Aemail")
}

func TestGitHubExchangeAndIdentity(t *testing.T) {
	token := stubTokenEndpoint(t, "gh-access-token")
	defer token.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer gh-access-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/user":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":    12345,
				"login": "octocat",
				"name":  "The Octocat",
				"email": "", // private email, forces the fallback
			})
		case "/user/emails":
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"email": "old@example.com", "primary": false, "verified": true},
				{"email": "octo@example.com", "primary": true, "verified": true},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer api.Close()

	gh := provider.NewGitHub(provider.GitHubConfig{
		ClientID:     "client-1",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{AuthURL: token.URL + "/authorize", TokenURL: token.URL + "/token"},
		APIBaseURL:   api.URL,
	})

	grant, err := gh.Exchange(context.Background(), "auth-code")
	require.NoError(t, err)
	require.Equal(t, "gh-access-token", grant.AccessToken)

	id, err := gh.FetchIdentity(context.Background(), grant)
	require.NoError(t, err)
	require.Equal(t, "github", id.Provider)
	require.Equal(t, "12345", id.Subject)
	require.Equal(t, "octocat", id.Login)
	require.Equal(t, "octo@example.com", id.Email)
	require.Equal(t, "github:12345", id.CanonicalSubject())
}

func TestGoogleAuthorizeURLRequestsOfflineConsent(t *testing.T) {
	g := provider.NewGoogle(provider.GoogleConfig{ClientID: "client-1"})

	u := g.AuthorizeURL("state-token")
	require.Contains(t, u, "access_type=offline")
	require.Contains(t, u, "prompt=consent")
	require.Contains(t, u, "state=state-token")
}

func TestGoogleIdentityDropsUnverifiedEmail(t *testing.T) {
	userinfo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":            "987",
			"email":          "someone@example.com",
			"email_verified": false,
			"name":           "Someone",
		})
	}))
	defer userinfo.Close()

	g := provider.NewGoogle(provider.GoogleConfig{
		ClientID:    "client-1",
		UserinfoURL: userinfo.URL,
	})

	id, err := g.FetchIdentity(context.Background(), provider.Grant{AccessToken: "tok"})
	require.NoError(t, err)
	require.Equal(t, "987", id.Subject)
	require.Empty(t, id.Email)
}
