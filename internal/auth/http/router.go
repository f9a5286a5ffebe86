package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/miniokta/internal/auth/identity"
	"github.com/aussiebroadwan/miniokta/internal/auth/service"
	"github.com/aussiebroadwan/miniokta/internal/auth/store"
	"github.com/aussiebroadwan/miniokta/pkg/httpx"
	"github.com/aussiebroadwan/miniokta/pkg/slogx"

	_ "github.com/aussiebroadwan/miniokta/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// DefaultRequestTimeout bounds every request's context unless overridden.
const DefaultRequestTimeout = 5 * time.Second

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux     *http.ServeMux
	handler http.Handler

	tokens       *service.TokenService
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	// RateLimits, RequestTimeout and TrustedProxies are read by ApplyRoutes.
	RateLimits     httpx.RateLimits
	RequestTimeout time.Duration
	TrustedProxies httpx.TrustedProxies // empty: client IP is always RemoteAddr

	AuthService *service.AuthService
	MFAService  *service.MFAService
	UserService *service.UserService
	SAML        *identity.SAMLProvider // Optional: nil disables the SAML routes
}

func NewRouter(
	tokens *service.TokenService,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	return &Router{
		Mux:            http.NewServeMux(),
		tokens:         tokens,
		buildVersion:   buildVersion,
		startTime:      time.Now(),
		store:          st,
		logger:         logger,
		RateLimits:     httpx.DefaultRateLimits(),
		RequestTimeout: DefaultRequestTimeout,
	}
}

// ApplyRoutes registers every endpoint and freezes the middleware chain.
// Call it once, after the services are set.
func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSAML()
	r.registerMFA()
	r.registerUsers()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())

	r.handler = httpx.Chain(r.Mux,
		slogx.HTTPMiddleware(r.logger),
		httpx.TrustProxies(r.TrustedProxies),
		httpx.RequestTimeout(r.RequestTimeout),
	)
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			miniokta Authentication API
//	@version		0.1.0
//	@description	Password and SAML login with optional TOTP second factor. Successful logins return a
//	@description	signed bearer token (HS256 or EdDSA) to present in the Authorization header.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/miniokta
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{AuthService: r.AuthService}

	// Credential checks - strict limit keyed on IP + email so one
	// attacker cannot spray a single account from one address, plus a
	// per-email bucket that holds however many addresses are used
	r.Mux.Handle("POST /api/auth/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIPAndJSONField(r.RateLimits.Strict, "email"),
		),
	)
	r.Mux.Handle("POST /api/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndJSONField(r.RateLimits.Strict, "email"),
			httpx.RateLimitByJSONField(r.RateLimits.Strict, "email"),
		),
	)
	r.Mux.Handle("POST /api/auth/mfa/validate",
		httpx.Chain(http.HandlerFunc(h.HandleValidateMFA),
			httpx.RateLimitByIPAndJSONField(r.RateLimits.Strict, "email"),
			httpx.RateLimitByJSONField(r.RateLimits.Strict, "email"),
		),
	)
}

func (r *Router) registerSAML() {
	h := &SAMLHandler{Provider: r.SAML, AuthService: r.AuthService}

	r.Mux.Handle("GET /api/auth/saml/metadata",
		httpx.Chain(http.HandlerFunc(h.HandleMetadata),
			httpx.RateLimitByIP(r.RateLimits.Lenient),
		),
	)
	r.Mux.Handle("GET /api/auth/saml/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(r.RateLimits.Moderate),
		),
	)
	r.Mux.Handle("POST /api/auth/saml/acs",
		httpx.Chain(http.HandlerFunc(h.HandleACS),
			httpx.RateLimitByIP(r.RateLimits.Strict),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFAService: r.MFAService}
	verifier := r.tokens.Verifier

	// POST /mfa/setup - moderate rate limit by user
	r.Mux.Handle("POST /api/auth/mfa/setup",
		httpx.Chain(http.HandlerFunc(h.HandleSetup),
			httpx.AuthnMiddleware(verifier),
			httpx.RateLimitByUser(r.RateLimits.Moderate),
		),
	)

	// POST /mfa/verify-setup - strict rate limit by user (prevent brute force of TOTP codes)
	r.Mux.Handle("POST /api/auth/mfa/verify-setup",
		httpx.Chain(http.HandlerFunc(h.HandleVerifySetup),
			httpx.AuthnMiddleware(verifier),
			httpx.RateLimitByUser(r.RateLimits.Strict),
		),
	)

	// DELETE /mfa - strict rate limit by user, it also checks a code
	r.Mux.Handle("DELETE /api/auth/mfa",
		httpx.Chain(http.HandlerFunc(h.HandleDisable),
			httpx.AuthnMiddleware(verifier),
			httpx.RateLimitByUser(r.RateLimits.Strict),
		),
	)
}

func (r *Router) registerUsers() {
	h := &ProfileHandler{UserService: r.UserService}

	r.Mux.Handle("GET /api/auth/profile",
		httpx.Chain(h,
			httpx.AuthnMiddleware(r.tokens.Verifier),
			httpx.RateLimitByUser(r.RateLimits.Lenient),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.RateLimits.Lenient),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.tokens.Signer),
			httpx.RateLimitByIP(r.RateLimits.Lenient),
		),
	)
}
