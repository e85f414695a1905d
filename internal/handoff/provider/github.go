package provider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/driftboard/handoff/internal/handoff/domain"
)

const githubAPIBase = "https://api.github.com"

// GitHubConfig configures the GitHub adapter. Endpoint and APIBaseURL
// exist so tests can point the adapter at a stub server; production
// callers leave them zero.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	Endpoint   oauth2.Endpoint
	APIBaseURL string
	HTTPClient *http.Client
}

type githubAdapter struct {
	cfg     oauth2.Config
	apiBase string
	client  *http.Client
}

func NewGitHub(cfg GitHubConfig) Adapter {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = github.Endpoint
	}
	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = githubAPIBase
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &githubAdapter{
		cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		apiBase: apiBase,
		client:  client,
	}
}

func (g *githubAdapter) Name() string { return "github" }

func (g *githubAdapter) AuthorizeURL(state string) string {
	return g.cfg.AuthCodeURL(state)
}

func (g *githubAdapter) Exchange(ctx context.Context, code string) (Grant, error) {
	tok, err := exchangeToken(ctx, &g.cfg, g.client, code)
	if err != nil {
		return Grant{}, fmt.Errorf("github exchange: %w", err)
	}
	return Grant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}, nil
}

func (g *githubAdapter) FetchIdentity(ctx context.Context, grant Grant) (domain.Identity, error) {
	var user struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := getJSON(ctx, g.client, g.apiBase+"/user", grant.AccessToken, &user); err != nil {
		return domain.Identity{}, err
	}

	email := user.Email
	if email == "" {
		// The user API omits the email when it is private; the emails
		// endpoint still lists it for the user:email scope.
		primary, err := g.fetchPrimaryEmail(ctx, grant.AccessToken)
		if err != nil {
			return domain.Identity{}, err
		}
		email = primary
	}

	return domain.Identity{
		Provider:    g.Name(),
		Subject:     strconv.FormatInt(user.ID, 10),
		Email:       email,
		Login:       user.Login,
		DisplayName: user.Name,
	}, nil
}

func (g *githubAdapter) fetchPrimaryEmail(ctx context.Context, accessToken string) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, g.client, g.apiBase+"/user/emails", accessToken, &emails); err != nil {
		return "", err
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, nil
		}
	}
	return "", ErrNoVerifiedEmail
}
