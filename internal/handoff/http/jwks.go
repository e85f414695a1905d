package http

import (
	"net/http"

	"github.com/driftboard/handoff/pkg/handoffsdk"
	"github.com/driftboard/handoff/pkg/httpx"
	"github.com/driftboard/handoff/pkg/jwtx"
)

// JWKSHandler exposes the JSON Web Key Set for public key discovery.
//
//	@Summary		Get JWKS
//	@Description	Returns the JSON Web Key Set used to verify access tokens minted at redemption.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	handoffsdk.JWKSResponse	"The JSON Web Key Set"
//	@Router			/.well-known/jwks.json [get].
func JWKSHandler(keys *jwtx.KeySet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, handoffsdk.JWKSResponse(keys.PublicJWKS()))
	}
}
