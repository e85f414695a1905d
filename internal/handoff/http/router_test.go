package http_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/driftboard/handoff/internal/handoff/domain"
	handoffhttp "github.com/driftboard/handoff/internal/handoff/http"
	"github.com/driftboard/handoff/internal/handoff/provider"
	"github.com/driftboard/handoff/internal/handoff/service"
	"github.com/driftboard/handoff/internal/handoff/store/drivers/sqlite"
	"github.com/driftboard/handoff/pkg/cryptox"
	"github.com/driftboard/handoff/pkg/handoffsdk"
	"github.com/driftboard/handoff/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const (
	testVerifier = "correct-horse-battery-staple-0123456789-abcdefghij"
	testIssuer   = "https://broker.test"
	returnTarget = "https://app.example.com/done"
)

// fakeAdapter stands in for a real OAuth provider so tests never leave the
// process.
type fakeAdapter struct {
	name        string
	exchangeErr error
	identity    domain.Identity
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) AuthorizeURL(state string) string {
	return "https://provider.test/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeAdapter) Exchange(ctx context.Context, code string) (provider.Grant, error) {
	if f.exchangeErr != nil {
		return provider.Grant{}, f.exchangeErr
	}
	return provider.Grant{AccessToken: "provider-access-token", TokenType: "bearer"}, nil
}

func (f *fakeAdapter) FetchIdentity(ctx context.Context, grant provider.Grant) (domain.Identity, error) {
	return f.identity, nil
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		name: "github",
		identity: domain.Identity{
			Provider:    "github",
			Subject:     "12345",
			Email:       "octo@example.com",
			Login:       "octocat",
			DisplayName: "The Octocat",
		},
	}
}

// newTestServer wires a full router over a fresh sqlite store and returns
// it as an httptest server alongside an SDK client bound to it.
func newTestServer(t *testing.T, adapter provider.Adapter) (*httptest.Server, *handoffsdk.Client) {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	signer, err := jwtx.GenerateSignerEdDSA("test-key")
	require.NoError(t, err)

	keys := jwtx.NewKeySet()
	require.NoError(t, keys.AddJWK(signer.PublicJWK()))
	verifier := jwtx.NewVerifierEdDSA(keys, testIssuer, []string{"driftboard"})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := handoffhttp.NewRouter(keys, verifier, "test", st, logger)
	router.HandoffService = &service.HandoffService{
		Store:                st,
		Providers:            provider.NewRegistry(adapter),
		Signer:               signer,
		Issuer:               testIssuer,
		Audience:             []string{"driftboard"},
		AllowedReturnTargets: []string{"https://app.example.com/"},
	}
	router.InvitationService = &service.InvitationService{Store: st, TTL: time.Hour}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return srv, handoffsdk.NewClient(srv.URL)
}

// noRedirectClient returns the last response instead of following 3xx so
// tests can inspect the callback redirect.
func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func testChallenge() string {
	return cryptox.CommitVerifier(testVerifier)
}

// completeCallback drives the browser leg: it extracts the state the
// provider would echo back and hits the callback endpoint with a code.
func completeCallback(t *testing.T, srv *httptest.Server, authorizeURL string) *http.Response {
	t.Helper()

	parsed, err := url.Parse(authorizeURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)

	resp, err := noRedirectClient().Get(srv.URL + "/oauth/web/callback?state=" + url.QueryEscape(state) + "&code=fake-code")
	require.NoError(t, err)
	return resp
}

func decodeAPIError(t *testing.T, err error) *handoffsdk.APIError {
	t.Helper()

	var apiErr *handoffsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	return apiErr
}

func TestHandoffFlow(t *testing.T) {
	srv, client := newTestServer(t, newFakeAdapter())
	ctx := context.Background()

	initResp, err := client.Init(ctx, handoffsdk.InitRequest{
		Provider:     "github",
		AppChallenge: testChallenge(),
		ReturnTo:     returnTarget,
	})
	require.NoError(t, err)
	require.NotEmpty(t, initResp.HandoffID)
	require.Contains(t, initResp.AuthorizeURL, "https://provider.test/authorize")
	require.True(t, initResp.ExpiresAt.After(time.Now()))

	// The handle never rides in the authorize URL, only the correlation
	// token does.
	require.NotContains(t, initResp.AuthorizeURL, initResp.HandoffID)

	resp := completeCallback(t, srv, initResp.AuthorizeURL)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := resp.Location()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(location.String(), returnTarget))
	require.Equal(t, initResp.HandoffID, location.Query().Get("handoff_id"))

	redeemResp, err := client.Redeem(ctx, initResp.HandoffID, testVerifier)
	require.NoError(t, err)
	require.NotEmpty(t, redeemResp.AccessToken)
	require.Equal(t, "Bearer", redeemResp.TokenType)
	require.Equal(t, "github:12345", redeemResp.Subject)
	require.Equal(t, "github", redeemResp.Provider)
	require.Equal(t, "octo@example.com", redeemResp.Email)
	require.Equal(t, "octocat", redeemResp.Login)

	// Second redemption is refused even with the right verifier.
	_, err = client.Redeem(ctx, initResp.HandoffID, testVerifier)
	apiErr := decodeAPIError(t, err)
	require.Equal(t, http.StatusGone, apiErr.StatusCode)
	require.Equal(t, "handoff_consumed", apiErr.Code)
}

func TestInitValidation(t *testing.T) {
	_, client := newTestServer(t, newFakeAdapter())
	ctx := context.Background()

	cases := []struct {
		name     string
		req      handoffsdk.InitRequest
		wantCode string
	}{
		{
			name:     "unknown provider",
			req:      handoffsdk.InitRequest{Provider: "gitlab", AppChallenge: testChallenge()},
			wantCode: "unsupported_provider",
		},
		{
			name:     "malformed challenge",
			req:      handoffsdk.InitRequest{Provider: "github", AppChallenge: "not-hex"},
			wantCode: "weak_challenge",
		},
		{
			name:     "disallowed return target",
			req:      handoffsdk.InitRequest{Provider: "github", AppChallenge: testChallenge(), ReturnTo: "https://evil.example.com/"},
			wantCode: "invalid_return_target",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.Init(ctx, tc.req)
			apiErr := decodeAPIError(t, err)
			require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
			require.Equal(t, tc.wantCode, apiErr.Code)
		})
	}
}

func TestCallbackSuccessPageWithoutReturnTarget(t *testing.T) {
	srv, client := newTestServer(t, newFakeAdapter())

	initResp, err := client.Init(context.Background(), handoffsdk.InitRequest{
		Provider:     "github",
		AppChallenge: testChallenge(),
	})
	require.NoError(t, err)

	resp := completeCallback(t, srv, initResp.AuthorizeURL)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "return to the application")
}

func TestCallbackFailures(t *testing.T) {
	srv, client := newTestServer(t, newFakeAdapter())

	t.Run("unknown state", func(t *testing.T) {
		resp, err := noRedirectClient().Get(srv.URL + "/oauth/web/callback?state=bogus&code=abc")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	})

	t.Run("provider denial", func(t *testing.T) {
		initResp, err := client.Init(context.Background(), handoffsdk.InitRequest{
			Provider:     "github",
			AppChallenge: testChallenge(),
			ReturnTo:     returnTarget,
		})
		require.NoError(t, err)

		parsed, err := url.Parse(initResp.AuthorizeURL)
		require.NoError(t, err)
		state := parsed.Query().Get("state")

		resp, err := noRedirectClient().Get(srv.URL + "/oauth/web/callback?state=" + url.QueryEscape(state) + "&error=access_denied")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		// The failure page never leaks provider detail.
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NotContains(t, string(body), "access_denied")
	})
}

func TestRedeemErrorMapping(t *testing.T) {
	srv, client := newTestServer(t, newFakeAdapter())
	ctx := context.Background()

	t.Run("unknown handoff", func(t *testing.T) {
		_, err := client.Redeem(ctx, "no-such-handoff", testVerifier)
		apiErr := decodeAPIError(t, err)
		require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		require.Equal(t, "not_found", apiErr.Code)
	})

	t.Run("not yet authorized", func(t *testing.T) {
		initResp, err := client.Init(ctx, handoffsdk.InitRequest{
			Provider:     "github",
			AppChallenge: testChallenge(),
		})
		require.NoError(t, err)

		_, err = client.Redeem(ctx, initResp.HandoffID, testVerifier)
		require.ErrorIs(t, err, handoffsdk.ErrNotAuthorizedYet)
	})

	t.Run("verifier mismatch", func(t *testing.T) {
		initResp, err := client.Init(ctx, handoffsdk.InitRequest{
			Provider:     "github",
			AppChallenge: testChallenge(),
		})
		require.NoError(t, err)

		resp := completeCallback(t, srv, initResp.AuthorizeURL)
		resp.Body.Close()

		_, err = client.Redeem(ctx, initResp.HandoffID, "wrong-verifier")
		apiErr := decodeAPIError(t, err)
		require.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		require.Equal(t, "challenge_mismatch", apiErr.Code)

		// Still redeemable with the right verifier inside the budget.
		_, err = client.Redeem(ctx, initResp.HandoffID, testVerifier)
		require.NoError(t, err)
	})

	t.Run("missing fields", func(t *testing.T) {
		body := strings.NewReader(`{"handoff_id": ""}`)
		resp, err := http.Post(srv.URL+"/v1/oauth/web/redeem", "application/json", body)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var errResp handoffsdk.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
		require.Equal(t, "invalid_request", errResp.Error)
	})
}

func TestRedeemWaitPollsUntilAuthorized(t *testing.T) {
	srv, client := newTestServer(t, newFakeAdapter())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	initResp, err := client.Init(ctx, handoffsdk.InitRequest{
		Provider:     "github",
		AppChallenge: testChallenge(),
	})
	require.NoError(t, err)

	go func() {
		time.Sleep(150 * time.Millisecond)
		resp := completeCallback(t, srv, initResp.AuthorizeURL)
		resp.Body.Close()
	}()

	redeemResp, err := client.RedeemWait(ctx, initResp.HandoffID, testVerifier, 50*time.Millisecond)
	require.NoError(t, err)
	require.NotEmpty(t, redeemResp.AccessToken)
}

// redeemAccessToken runs a full handoff and returns a minted access token.
func redeemAccessToken(t *testing.T, srv *httptest.Server, client *handoffsdk.Client) string {
	t.Helper()

	initResp, err := client.Init(context.Background(), handoffsdk.InitRequest{
		Provider:     "github",
		AppChallenge: testChallenge(),
	})
	require.NoError(t, err)

	resp := completeCallback(t, srv, initResp.AuthorizeURL)
	resp.Body.Close()

	redeemResp, err := client.Redeem(context.Background(), initResp.HandoffID, testVerifier)
	require.NoError(t, err)
	return redeemResp.AccessToken
}

func TestInvitationLifecycle(t *testing.T) {
	srv, client := newTestServer(t, newFakeAdapter())
	ctx := context.Background()

	accessToken := redeemAccessToken(t, srv, client)

	mintResp, err := client.MintInvitation(ctx, accessToken, handoffsdk.InvitationMintRequest{
		Note: "welcome aboard",
	})
	require.NoError(t, err)
	require.NotEmpty(t, mintResp.InvitationToken)
	require.True(t, mintResp.ExpiresAt.After(time.Now()))

	invResp, err := client.GetInvitation(ctx, mintResp.InvitationToken)
	require.NoError(t, err)
	require.Equal(t, "welcome aboard", invResp.Note)
	require.Equal(t, "github:12345", invResp.CreatedBy)
	require.False(t, invResp.Accepted)

	accepted, err := client.AcceptInvitation(ctx, mintResp.InvitationToken, accessToken)
	require.NoError(t, err)
	require.True(t, accepted.Accepted)

	// Accepted invitations are no longer active.
	_, err = client.GetInvitation(ctx, mintResp.InvitationToken)
	apiErr := decodeAPIError(t, err)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestInvitationAuthRequired(t *testing.T) {
	_, client := newTestServer(t, newFakeAdapter())
	ctx := context.Background()

	t.Run("missing token", func(t *testing.T) {
		_, err := client.MintInvitation(ctx, "", handoffsdk.InvitationMintRequest{})
		apiErr := decodeAPIError(t, err)
		require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := client.MintInvitation(ctx, "not-a-jwt", handoffsdk.InvitationMintRequest{})
		apiErr := decodeAPIError(t, err)
		require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	})
}

func TestJWKSEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, newFakeAdapter())

	resp, err := http.Get(srv.URL + "/.well-known/jwks.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var jwks handoffsdk.JWKSResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jwks))
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "test-key", jwks.Keys[0].Kid)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, newFakeAdapter())

	for _, path := range []string{"/livez", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)

		var health handoffsdk.HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
		resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		require.Equal(t, "ok", health.Status, path)
		require.Equal(t, "test", health.Version, path)
	}
}
