// Package handoffsdk is a small client for the handoff broker, meant
// for the non-browser applications that initiate and redeem handoffs.
package handoffsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotAuthorizedYet is returned while the browser leg has not
// completed. Callers typically poll until it clears.
var ErrNotAuthorizedYet = errors.New("handoffsdk: handoff not authorized yet")

// APIError is a decoded error response from the broker.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("handoffsdk: %d %s: %s", e.StatusCode, e.Code, e.Description)
}

// Client talks to a handoff broker.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a broker client with a sane default timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Init starts a handoff. The caller is expected to open AuthorizeURL in
// a system browser and hold on to the verifier behind the challenge.
func (c *Client) Init(ctx context.Context, req InitRequest) (InitResponse, error) {
	var resp InitResponse
	err := c.postJSON(ctx, "/v1/oauth/web/init", "", req, http.StatusCreated, &resp)
	return resp, err
}

// Redeem reclaims one completed handoff. A 409 maps to
// ErrNotAuthorizedYet so pollers can keep waiting; every other refusal
// surfaces as an *APIError.
func (c *Client) Redeem(ctx context.Context, handoffID, verifier string) (RedeemResponse, error) {
	var resp RedeemResponse
	err := c.postJSON(ctx, "/v1/oauth/web/redeem", "", RedeemRequest{
		HandoffID:   handoffID,
		AppVerifier: verifier,
	}, http.StatusOK, &resp)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict && apiErr.Code == "not_authorized_yet" {
		return RedeemResponse{}, ErrNotAuthorizedYet
	}
	return resp, err
}

// RedeemWait polls Redeem at the given interval until the handoff is
// authorized, the context ends, or the broker refuses terminally.
func (c *Client) RedeemWait(ctx context.Context, handoffID, verifier string, interval time.Duration) (RedeemResponse, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	for {
		resp, err := c.Redeem(ctx, handoffID, verifier)
		if !errors.Is(err, ErrNotAuthorizedYet) {
			return resp, err
		}

		select {
		case <-ctx.Done():
			return RedeemResponse{}, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// GetInvitation looks up invitation metadata by its raw token.
func (c *Client) GetInvitation(ctx context.Context, token string) (InvitationResponse, error) {
	var resp InvitationResponse
	err := c.getJSON(ctx, "/v1/invitations/"+url.PathEscape(token), &resp)
	return resp, err
}

// AcceptInvitation settles an invitation on behalf of the bearer of
// accessToken.
func (c *Client) AcceptInvitation(ctx context.Context, token, accessToken string) (InvitationResponse, error) {
	var resp InvitationResponse
	err := c.postJSON(ctx, "/v1/invitations/"+url.PathEscape(token)+"/accept", accessToken, struct{}{}, http.StatusOK, &resp)
	return resp, err
}

// MintInvitation creates a new invitation. Requires a bearer token with
// the invitations:write scope.
func (c *Client) MintInvitation(ctx context.Context, accessToken string, req InvitationMintRequest) (InvitationMintResponse, error) {
	var resp InvitationMintResponse
	err := c.postJSON(ctx, "/v1/invitations", accessToken, req, http.StatusCreated, &resp)
	return resp, err
}

func (c *Client) postJSON(ctx context.Context, path, bearer string, body any, wantStatus int, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("handoffsdk: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("handoffsdk: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	return c.do(req, wantStatus, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("handoffsdk: create request: %w", err)
	}
	return c.do(req, http.StatusOK, out)
}

func (c *Client) do(req *http.Request, wantStatus int, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("handoffsdk: send request: %w", err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, 1<<20)

	if resp.StatusCode != wantStatus {
		var apiErr ErrorResponse
		if err := json.NewDecoder(body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			return &APIError{StatusCode: resp.StatusCode, Code: "unknown_error"}
		}
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        apiErr.Error,
			Description: apiErr.ErrorDescription,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("handoffsdk: decode response: %w", err)
	}
	return nil
}
