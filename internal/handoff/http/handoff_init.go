package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/driftboard/handoff/internal/handoff/service"
	"github.com/driftboard/handoff/pkg/handoffsdk"
	"github.com/driftboard/handoff/pkg/httpx"
	"github.com/driftboard/handoff/pkg/slogx"
)

type InitHandler struct {
	HandoffService *service.HandoffService
}

// ServeHTTP godoc
//
//	@Summary		Initiate Handoff
//	@Description	Start a third-party OAuth login for a non-browser application. Returns an
//	@Description	opaque handoff ID (the reclaim handle) and the provider authorize URL to
//	@Description	open in a system browser. The challenge is a lowercase hex SHA-256
//	@Description	commitment to a verifier the client presents again at redemption.
//	@Tags			Handoff
//	@Accept			json
//	@Produce		json
//	@Param			request	body		handoffsdk.InitRequest	true	"Handoff initiation request"
//	@Success		201		{object}	handoffsdk.InitResponse	"handoff_id, authorize_url, expires_at"
//	@Failure		400		{object}	handoffsdk.ErrorResponse	"error, error_description"
//	@Failure		500		{object}	handoffsdk.ErrorResponse	"error, error_description"
//	@Router			/v1/oauth/web/init [post].
func (h *InitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req handoffsdk.InitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, handoffsdk.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "Invalid JSON body",
		})
		return
	}

	result, err := h.HandoffService.Initiate(ctx, req.Provider, req.AppChallenge, req.ReturnTo)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedProvider):
			httpx.WriteJSON(w, http.StatusBadRequest, handoffsdk.ErrorResponse{
				Error:            "unsupported_provider",
				ErrorDescription: "Provider is not configured",
			})
		case errors.Is(err, service.ErrWeakChallenge):
			httpx.WriteJSON(w, http.StatusBadRequest, handoffsdk.ErrorResponse{
				Error:            "weak_challenge",
				ErrorDescription: "app_challenge must be a lowercase hex SHA-256 digest",
			})
		case errors.Is(err, service.ErrInvalidReturnTarget):
			httpx.WriteJSON(w, http.StatusBadRequest, handoffsdk.ErrorResponse{
				Error:            "invalid_return_target",
				ErrorDescription: "return_to is not in the allow-list",
			})
		default:
			log.Error("failed to initiate handoff", "err", err)
			httpx.WriteJSON(w, http.StatusInternalServerError, handoffsdk.ErrorResponse{
				Error:            "server_error",
				ErrorDescription: "Failed to initiate handoff",
			})
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, handoffsdk.InitResponse{
		HandoffID:    result.SessionID,
		AuthorizeURL: result.AuthorizeURL,
		ExpiresAt:    result.ExpiresAt,
	})
}
