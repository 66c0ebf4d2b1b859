package samlsp

import (
	"context"
	"net/http"
	"time"

	"github.com/federate-go/saml"
	"github.com/federate-go/saml/binding"
	"github.com/federate-go/saml/policy"
	"github.com/federate-go/saml/transport"
)

// Middleware wires a MultiServiceProvider, its security-policy
// pipeline, and a SessionProvider into a pair of http.Handlers: one
// that enforces an authenticated session on protected routes, and one
// that consumes the IdP's POST-bound response at the ACS endpoint.
type Middleware struct {
	ServiceProvider *MultiServiceProvider
	Session         *SessionProvider
	Policy          *policy.SecurityPolicy
	PostBinding     *binding.PostBinding
	SessionTTL      time.Duration
}

// NewMiddleware wires a Middleware around sp, signing sessions with
// key and validating AuthnResponses against pol, which must already
// carry sp.MetadataProvider as its MetadataProvider.
func NewMiddleware(sp *MultiServiceProvider, key *SessionProvider, pol *policy.SecurityPolicy) *Middleware {
	return &Middleware{
		ServiceProvider: sp,
		Session:         key,
		Policy:          pol,
		PostBinding:     binding.NewPostBinding(),
		SessionTTL:      8 * time.Hour,
	}
}

// RequireAccount wraps next so that a request without a valid session
// gets 401 Unauthorized instead of reaching next; next only ever sees
// requests carrying an authenticated session.
func (m *Middleware) RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.Session.GetSession(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ServeACS decodes the HTTP-POST-bound AuthnResponse, runs it through
// the security-policy pipeline, and on success mints a session cookie
// and redirects to RelayState (or DefaultRedirectURI if empty).
func (m *Middleware) ServeACS(w http.ResponseWriter, r *http.Request) {
	req := transport.NewHTTPRequest(r)
	resp := transport.NewHTTPResponse(w, r)

	result, err := m.PostBinding.Decode(req, func() saml.Message { return new(saml.Response) })
	if err != nil {
		resp.SendError(err)
		return
	}

	m.Policy.Reset(false)
	if err := m.Policy.Evaluate(req, result.MsgCtx); err != nil {
		resp.SendError(err)
		return
	}
	if !m.Policy.Authenticated {
		resp.SendError(saml.NewSecurityPolicyError(saml.SecurityPolicyBadSignature, "SignatureRule", "response signature did not validate"))
		return
	}

	authnResponse, ok := result.MsgCtx.Message.(*saml.Response)
	if !ok || len(authnResponse.Assertions) == 0 {
		resp.SendError(saml.NewBindingError(saml.BindingMalformed, "response carried no assertions", nil))
		return
	}
	assertion := &authnResponse.Assertions[0]

	claims := ClaimsFromAssertion(m.Policy.Issuer, assertion, m.sessionTTL())
	if err := m.Session.SetSession(w, claims); err != nil {
		resp.SendError(err)
		return
	}

	redirectTo := result.RelayState
	if redirectTo == "" {
		redirectTo = m.ServiceProvider.DefaultRedirectURI
	}
	resp.SendRedirect(redirectTo)
}

func (m *Middleware) sessionTTL() time.Duration {
	if m.SessionTTL > 0 {
		return m.SessionTTL
	}
	return 8 * time.Hour
}

type contextKey int

const claimsContextKey contextKey = iota

// ClaimsFromContext recovers the SessionClaims RequireAccount attached
// to the request context, or nil if none is present.
func ClaimsFromContext(ctx context.Context) *SessionClaims {
	claims, _ := ctx.Value(claimsContextKey).(*SessionClaims)
	return claims
}
