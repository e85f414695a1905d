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

type InvitationsHandler struct {
	InvitationService *service.InvitationService
}

// HandleGet godoc
//
//	@Summary		Look Up Invitation
//	@Description	Fetch invitation metadata by its opaque token. Accepted and expired
//	@Description	invitations are indistinguishable from unknown ones.
//	@Tags			Invitations
//	@Produce		json
//	@Param			token	path		string	true	"Raw invitation token"
//	@Success		200		{object}	handoffsdk.InvitationResponse	"note, created_by, expires_at, accepted"
//	@Failure		404		{object}	handoffsdk.ErrorResponse		"error, error_description"
//	@Router			/v1/invitations/{token} [get].
func (h *InvitationsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	inv, err := h.InvitationService.Get(ctx, r.PathValue("token"))
	if err != nil {
		h.writeError(w, r, err, "Failed to look up invitation")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, handoffsdk.InvitationResponse{
		Note:      inv.Note,
		CreatedBy: inv.CreatedBy,
		ExpiresAt: inv.ExpiresAt,
		Accepted:  inv.Accepted,
	})
}

// HandleAccept godoc
//
//	@Summary		Accept Invitation
//	@Description	Settle an invitation on behalf of the authenticated subject. At most one
//	@Description	acceptance can succeed per invitation.
//	@Tags			Invitations
//	@Produce		json
//	@Param			token	path		string	true	"Raw invitation token"
//	@Success		200		{object}	handoffsdk.InvitationResponse	"note, created_by, expires_at, accepted"
//	@Failure		401		{object}	handoffsdk.ErrorResponse		"error, error_description"
//	@Failure		404		{object}	handoffsdk.ErrorResponse		"error, error_description"
//	@Failure		409		{object}	handoffsdk.ErrorResponse		"invitation already accepted"
//	@Security		BearerAuth
//	@Router			/v1/invitations/{token}/accept [post].
func (h *InvitationsHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subject := httpx.SubjectFromCtx(ctx)
	if subject == "" {
		httpx.WriteJSON(w, http.StatusUnauthorized, handoffsdk.ErrorResponse{
			Error:            "unauthorized",
			ErrorDescription: "Authentication required",
		})
		return
	}

	inv, err := h.InvitationService.Accept(ctx, r.PathValue("token"), subject)
	if err != nil {
		h.writeError(w, r, err, "Failed to accept invitation")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, handoffsdk.InvitationResponse{
		Note:      inv.Note,
		CreatedBy: inv.CreatedBy,
		ExpiresAt: inv.ExpiresAt,
		Accepted:  inv.Accepted,
	})
}

// HandleMint godoc
//
//	@Summary		Mint Invitation
//	@Description	Create a new single-use invitation. The raw token is returned exactly
//	@Description	once; only its fingerprint is stored.
//	@Tags			Invitations
//	@Accept			json
//	@Produce		json
//	@Param			request	body		handoffsdk.InvitationMintRequest	true	"Mint request"
//	@Success		201		{object}	handoffsdk.InvitationMintResponse	"invitation_token, expires_at"
//	@Failure		400		{object}	handoffsdk.ErrorResponse			"error, error_description"
//	@Failure		401		{object}	handoffsdk.ErrorResponse			"error, error_description"
//	@Security		BearerAuth
//	@Router			/v1/invitations [post].
func (h *InvitationsHandler) HandleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subject := httpx.SubjectFromCtx(ctx)
	if subject == "" {
		httpx.WriteJSON(w, http.StatusUnauthorized, handoffsdk.ErrorResponse{
			Error:            "unauthorized",
			ErrorDescription: "Authentication required",
		})
		return
	}

	var req handoffsdk.InvitationMintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, handoffsdk.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "Invalid JSON body",
		})
		return
	}

	token, inv, err := h.InvitationService.Mint(ctx, subject, req.Note)
	if err != nil {
		h.writeError(w, r, err, "Failed to mint invitation")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, handoffsdk.InvitationMintResponse{
		InvitationToken: token,
		ExpiresAt:       inv.ExpiresAt,
	})
}

func (h *InvitationsHandler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrInvitationNotFound):
		httpx.WriteJSON(w, http.StatusNotFound, handoffsdk.ErrorResponse{
			Error:            "not_found",
			ErrorDescription: "Unknown or expired invitation",
		})
	case errors.Is(err, service.ErrInvitationAlreadyAccepted):
		httpx.WriteJSON(w, http.StatusConflict, handoffsdk.ErrorResponse{
			Error:            "already_accepted",
			ErrorDescription: "The invitation has already been accepted",
		})
	case errors.Is(err, service.ErrInvalidInvitationRequest):
		httpx.WriteJSON(w, http.StatusBadRequest, handoffsdk.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "Invalid invitation request",
		})
	default:
		slogx.FromContext(r.Context()).Error("invitation request failed", "err", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, handoffsdk.ErrorResponse{
			Error:            "server_error",
			ErrorDescription: fallback,
		})
	}
}
