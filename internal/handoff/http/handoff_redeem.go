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

type RedeemHandler struct {
	HandoffService *service.HandoffService
}

// ServeHTTP godoc
//
//	@Summary		Redeem Handoff
//	@Description	Exchange a completed handoff for an application access token by proving
//	@Description	knowledge of the verifier committed at initiation. Succeeds at most once
//	@Description	per handoff; unknown and expired handoffs are indistinguishable.
//	@Tags			Handoff
//	@Accept			json
//	@Produce		json
//	@Param			request	body		handoffsdk.RedeemRequest	true	"Redemption request"
//	@Success		200		{object}	handoffsdk.RedeemResponse	"access_token, token_type, expires_in"
//	@Failure		400		{object}	handoffsdk.ErrorResponse	"error, error_description"
//	@Failure		403		{object}	handoffsdk.ErrorResponse	"verifier does not match the challenge"
//	@Failure		404		{object}	handoffsdk.ErrorResponse	"unknown or expired handoff"
//	@Failure		409		{object}	handoffsdk.ErrorResponse	"browser leg not completed yet"
//	@Failure		410		{object}	handoffsdk.ErrorResponse	"handoff already redeemed or failed"
//	@Router			/v1/oauth/web/redeem [post].
func (h *RedeemHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req handoffsdk.RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, handoffsdk.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "Invalid JSON body",
		})
		return
	}
	if req.HandoffID == "" || req.AppVerifier == "" {
		httpx.WriteJSON(w, http.StatusBadRequest, handoffsdk.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "handoff_id and app_verifier are required",
		})
		return
	}

	result, err := h.HandoffService.Redeem(ctx, req.HandoffID, req.AppVerifier)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			httpx.WriteJSON(w, http.StatusNotFound, handoffsdk.ErrorResponse{
				Error:            "not_found",
				ErrorDescription: "Unknown or expired handoff",
			})
		case errors.Is(err, service.ErrNotAuthorizedYet):
			httpx.WriteJSON(w, http.StatusConflict, handoffsdk.ErrorResponse{
				Error:            "not_authorized_yet",
				ErrorDescription: "The browser sign-in has not completed",
			})
		case errors.Is(err, service.ErrChallengeMismatch):
			httpx.WriteJSON(w, http.StatusForbidden, handoffsdk.ErrorResponse{
				Error:            "challenge_mismatch",
				ErrorDescription: "app_verifier does not match the committed challenge",
			})
		case errors.Is(err, service.ErrSessionConsumed):
			httpx.WriteJSON(w, http.StatusGone, handoffsdk.ErrorResponse{
				Error:            "handoff_consumed",
				ErrorDescription: "The handoff was already redeemed or has failed",
			})
		default:
			log.Error("failed to redeem handoff", "err", err)
			httpx.WriteJSON(w, http.StatusInternalServerError, handoffsdk.ErrorResponse{
				Error:            "server_error",
				ErrorDescription: "Failed to redeem handoff",
			})
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, handoffsdk.RedeemResponse{
		AccessToken: result.AccessToken,
		TokenType:   result.TokenType,
		ExpiresIn:   result.ExpiresIn,
		Subject:     result.Subject,
		Provider:    result.Provider,
		Email:       result.Email,
		Login:       result.Login,
		Name:        result.Name,
	})
}
