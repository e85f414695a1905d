package provider

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/driftboard/handoff/internal/handoff/domain"
)

const googleUserinfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// GoogleConfig configures the Google adapter. Endpoint and UserinfoURL
// exist so tests can point the adapter at a stub server.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	Endpoint    oauth2.Endpoint
	UserinfoURL string
	HTTPClient  *http.Client
}

type googleAdapter struct {
	cfg         oauth2.Config
	userinfoURL string
	client      *http.Client
}

func NewGoogle(cfg GoogleConfig) Adapter {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = google.Endpoint
	}
	userinfoURL := cfg.UserinfoURL
	if userinfoURL == "" {
		userinfoURL = googleUserinfoURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &googleAdapter{
		cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userinfoURL: userinfoURL,
		client:      client,
	}
}

func (g *googleAdapter) Name() string { return "google" }

func (g *googleAdapter) AuthorizeURL(state string) string {
	// offline + consent so Google always issues a refresh token
	return g.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

func (g *googleAdapter) Exchange(ctx context.Context, code string) (Grant, error) {
	tok, err := exchangeToken(ctx, &g.cfg, g.client, code)
	if err != nil {
		return Grant{}, fmt.Errorf("google exchange: %w", err)
	}
	return Grant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}, nil
}

func (g *googleAdapter) FetchIdentity(ctx context.Context, grant Grant) (domain.Identity, error) {
	var info struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := getJSON(ctx, g.client, g.userinfoURL, grant.AccessToken, &info); err != nil {
		return domain.Identity{}, err
	}

	email := info.Email
	if !info.EmailVerified {
		email = ""
	}

	return domain.Identity{
		Provider:    g.Name(),
		Subject:     info.Sub,
		Email:       email,
		DisplayName: info.Name,
	}, nil
}
