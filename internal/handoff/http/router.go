package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/driftboard/handoff/internal/handoff/service"
	"github.com/driftboard/handoff/internal/handoff/store"
	"github.com/driftboard/handoff/pkg/httpx"
	"github.com/driftboard/handoff/pkg/jwtx"
	"github.com/driftboard/handoff/pkg/slogx"

	_ "github.com/driftboard/handoff/api/handoff" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store             store.Store
	HandoffService    *service.HandoffService
	InvitationService *service.InvitationService
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerHandoff()
	r.registerInvitations()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Handoff Broker API
//	@version		0.1.0
//	@description	Brokers third-party OAuth logins for non-browser applications: the app
//	@description	initiates a handoff, the user signs in with the provider in a system
//	@description	browser, and the app reclaims an application access token over a side
//	@description	channel by proving knowledge of a committed verifier.
//
//	@contact.name	Driftboard Team
//	@contact.url	https://github.com/driftboard/handoff
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token minted at redemption. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerHandoff() {
	initHandler := &InitHandler{HandoffService: r.HandoffService}
	callbackHandler := &CallbackHandler{HandoffService: r.HandoffService}
	redeemHandler := &RedeemHandler{HandoffService: r.HandoffService}

	// POST /init - strict rate limit by IP (creates state, hits providers)
	r.Mux.Handle("POST /v1/oauth/web/init",
		httpx.Chain(initHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// GET /callback - lenient: it is driven by provider redirects and a
	// correlation token already guards it
	r.Mux.Handle("GET /oauth/web/callback",
		httpx.Chain(callbackHandler,
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// POST /redeem - moderate rate limit by IP; legitimate clients poll
	// this while the user finishes the browser leg, so strict would
	// starve them, and the attempt budget already caps guessing per session
	r.Mux.Handle("POST /v1/oauth/web/redeem",
		httpx.Chain(redeemHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerInvitations() {
	h := &InvitationsHandler{InvitationService: r.InvitationService}

	// GET /v1/invitations/{token} - public lookup, strict by IP (token
	// enumeration surface)
	r.Mux.Handle("GET /v1/invitations/{token}",
		httpx.Chain(http.HandlerFunc(h.HandleGet),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /v1/invitations/{token}/accept - requires a redeemed access token
	securedAccept := httpx.Chain(http.HandlerFunc(h.HandleAccept),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAnyScope("invitations:read"),
		httpx.RateLimitBySubject(httpx.ModerateLimit),
	)
	r.Mux.Handle("POST /v1/invitations/{token}/accept", securedAccept)

	// POST /v1/invitations - minting needs the write scope
	securedMint := httpx.Chain(http.HandlerFunc(h.HandleMint),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAnyScope("invitations:write"),
		httpx.RateLimitBySubject(httpx.ModerateLimit),
	)
	r.Mux.Handle("POST /v1/invitations", securedMint)
}

func (r *Router) registerSystem() {
	// GET /jwks.json - public endpoint with high limit
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)

	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
