package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// The callback request context carries no deadline, so the exchange must
// bound itself. A token endpoint that never answers has to surface as an
// error instead of holding the caller open.
func TestExchangeBoundedWithoutCallerDeadline(t *testing.T) {
	old := exchangeTimeout
	exchangeTimeout = 200 * time.Millisecond
	t.Cleanup(func() { exchangeTimeout = old })

	stall := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server can notice the client going away;
		// with unread body bytes the request context is never canceled and
		// stall.Close would wait on this handler forever.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer stall.Close()

	gh := NewGitHub(GitHubConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  stall.URL + "/auth",
			TokenURL: stall.URL + "/token",
		},
	})

	done := make(chan error, 1)
	go func() {
		_, err := gh.Exchange(context.Background(), "some-code")
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("code exchange did not return within its timeout")
	}
}

func TestExchangeRetriesTransientFailure(t *testing.T) {
	var calls int
	token := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gh-token","token_type":"bearer"}`))
	}))
	defer token.Close()

	gh := NewGitHub(GitHubConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  token.URL + "/auth",
			TokenURL: token.URL + "/token",
		},
	})

	grant, err := gh.Exchange(context.Background(), "some-code")
	require.NoError(t, err)
	require.Equal(t, "gh-token", grant.AccessToken)
	require.Equal(t, 2, calls)
}

func TestExchangeDoesNotRetryProviderRejection(t *testing.T) {
	var calls int
	token := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad_verification_code"}`))
	}))
	defer token.Close()

	gh := NewGitHub(GitHubConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  token.URL + "/auth",
			TokenURL: token.URL + "/token",
		},
	})

	_, err := gh.Exchange(context.Background(), "bad-code")
	require.Error(t, err)
	require.Equal(t, 1, calls, "a definitive provider answer is final")
}
