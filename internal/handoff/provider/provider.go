// Package provider adapts third-party OAuth identity providers behind a
// single interface. Each adapter owns its authorize URL construction,
// code exchange and profile fetch; the rest of the service never touches
// provider specifics.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/driftboard/handoff/internal/handoff/domain"
)

var (
	ErrUnknownProvider = errors.New("provider: unknown provider")

	// ErrNoVerifiedEmail is returned when a provider account has no
	// email we are willing to trust.
	ErrNoVerifiedEmail = errors.New("provider: no verified email on account")
)

// Grant is the credential a provider hands back after a successful code
// exchange. RefreshToken and Expiry may be zero depending on provider.
type Grant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
}

// Adapter is one configured identity provider.
type Adapter interface {
	// Name returns the provider key used in URLs and session rows.
	Name() string

	// AuthorizeURL builds the browser redirect target carrying state.
	AuthorizeURL(state string) string

	// Exchange swaps an authorization code for a grant.
	Exchange(ctx context.Context, code string) (Grant, error)

	// FetchIdentity resolves the grant into a normalized identity.
	FetchIdentity(ctx context.Context, grant Grant) (domain.Identity, error)
}

// Registry holds the closed set of configured adapters.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter for the given provider key.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return a, nil
}

// Names lists the configured provider keys.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

const profileFetchTimeout = 10 * time.Second

// exchangeTimeout bounds the code-for-token exchange the same way
// profileFetchTimeout bounds profile fetches. The callback request
// context carries no deadline of its own, so without this a stalled
// token endpoint would hold the callback handler open. Var so tests can
// shorten it.
var exchangeTimeout = 10 * time.Second

// exchangeToken swaps an authorization code for a token through cfg,
// bounded by exchangeTimeout regardless of the caller's context. One
// retry on transient failure, mirroring getJSON; a definitive provider
// answer (4xx) is final.
func exchangeToken(ctx context.Context, cfg *oauth2.Config, client *http.Client, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
		}

		tok, err := cfg.Exchange(ctx, code)
		if err == nil {
			return tok, nil
		}
		lastErr = err

		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response.StatusCode < 500 {
			return nil, err
		}
	}
	return nil, lastErr
}

// getJSON fetches a provider API resource with the grant's bearer token
// and decodes the JSON body into out. One retry on transient failure;
// provider APIs hiccup often enough that a single retry pays for itself.
func getJSON(ctx context.Context, client *http.Client, url, accessToken string, out any) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
		}

		err := doGetJSON(ctx, client, url, accessToken, out)
		if err == nil {
			return nil
		}
		lastErr = err

		var re *retryableError
		if !errors.As(err, &re) {
			return err
		}
	}
	return lastErr
}

type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func doGetJSON(ctx context.Context, client *http.Client, url, accessToken string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, profileFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return &retryableError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &retryableError{err: fmt.Errorf("provider: %s returned %d", url, resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider: %s returned %d", url, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, 1<<20)
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("provider: decode %s response: %w", url, err)
	}
	return nil
}
