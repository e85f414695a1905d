package http

import (
	"net/http"
	"net/url"

	"github.com/driftboard/handoff/internal/handoff/service"
	"github.com/driftboard/handoff/pkg/slogx"
)

type CallbackHandler struct {
	HandoffService *service.HandoffService
}

// The browser pages are deliberately free of any detail about what went
// wrong or who was signing in. The real outcome travels over the redeem
// side channel.
const callbackFailurePage = `<!DOCTYPE html>
<html>
<head><title>Sign-in failed</title></head>
<body>
<h1>Sign-in failed</h1>
<p>Something went wrong while signing you in. Please return to the application and try again.</p>
</body>
</html>
`

const callbackSuccessPage = `<!DOCTYPE html>
<html>
<head><title>Signed in</title></head>
<body>
<h1>Signed in</h1>
<p>You can close this window and return to the application.</p>
</body>
</html>
`

// ServeHTTP godoc
//
//	@Summary		OAuth Provider Callback
//	@Description	Receives the provider redirect at the end of the browser leg. On success
//	@Description	the browser is redirected to the session's return target with handoff_id
//	@Description	appended; on any failure a generic HTML page is shown instead.
//	@Tags			Handoff
//	@Produce		html
//	@Param			code	query		string	false	"Authorization code from the provider"
//	@Param			state	query		string	true	"Opaque state issued at initiation"
//	@Param			error	query		string	false	"Provider error code, if the user declined"
//	@Success		302		{string}	string	"Redirect to return_to with handoff_id"
//	@Failure		400		{string}	string	"Generic HTML failure page"
//	@Router			/oauth/web/callback [get].
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	q := r.URL.Query()
	result, err := h.HandoffService.HandleCallback(ctx, q.Get("state"), q.Get("code"), q.Get("error"))
	if err != nil {
		// The distinction between denial, exchange failure and a bogus
		// state is already logged and recorded on the session. The
		// browser gets one generic page for all of them.
		writeHTML(w, http.StatusBadRequest, callbackFailurePage)
		return
	}

	if result.ReturnTo == "" {
		writeHTML(w, http.StatusOK, callbackSuccessPage)
		return
	}

	target, err := url.Parse(result.ReturnTo)
	if err != nil {
		// The return target was validated at initiation; a parse failure
		// here means the allow-list let something odd through.
		log.Error("stored return target failed to parse", "err", err)
		writeHTML(w, http.StatusBadRequest, callbackFailurePage)
		return
	}

	qs := target.Query()
	qs.Set("handoff_id", result.SessionID)
	target.RawQuery = qs.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
