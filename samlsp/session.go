package samlsp

import (
	"crypto/rsa"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/federate-go/saml"
)

// SessionCookieName is the default cookie a SessionProvider stores its
// signed token under.
const SessionCookieName = "token"

// SessionClaims is the JWT payload a SessionProvider mints once an
// assertion has passed the security-policy pipeline: just enough of
// the assertion to authorize subsequent requests without re-validating
// the SAML response on every hit.
type SessionClaims struct {
	jwt.RegisteredClaims

	Attributes map[string][]string `json:"attr,omitempty"`
	SessionIndex string            `json:"sessionIndex,omitempty"`
}

// GetAttr returns the first value of a named attribute, or "" if it is
// absent.
func (c SessionClaims) GetAttr(name string) string {
	if vs, ok := c.Attributes[name]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// ClaimsFromAssertion builds SessionClaims out of a validated
// assertion's subject and attribute statements, valid for ttl from
// now.
func ClaimsFromAssertion(entityID string, assertion *saml.Assertion, ttl time.Duration) SessionClaims {
	now := saml.TimeNow()
	subject := ""
	if assertion.Subject != nil && assertion.Subject.NameID != nil {
		subject = assertion.Subject.NameID.Value
	}
	sessionIndex := ""
	if len(assertion.AuthnStatements) > 0 {
		sessionIndex = assertion.AuthnStatements[0].SessionIndex
	}

	attrs := map[string][]string{}
	for _, stmt := range assertion.AttributeStatements {
		for _, attr := range stmt.Attributes {
			values := make([]string, 0, len(attr.Values))
			for _, v := range attr.Values {
				values = append(values, v.Value)
			}
			attrs[attr.Name] = append(attrs[attr.Name], values...)
		}
	}

	return SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    entityID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Attributes:   attrs,
		SessionIndex: sessionIndex,
	}
}

// SessionProvider signs SessionClaims into a cookie and recovers them
// back out of a request, the way a service provider tracks a validated
// assertion across subsequent requests without re-verifying SAML on
// every hit.
type SessionProvider struct {
	Key        *rsa.PrivateKey
	CookieName string
	MaxAge     time.Duration
	Secure     bool
}

// NewSessionProvider returns a SessionProvider signing with key,
// defaulting CookieName and a 24h MaxAge.
func NewSessionProvider(key *rsa.PrivateKey) *SessionProvider {
	return &SessionProvider{Key: key, CookieName: SessionCookieName, MaxAge: 24 * time.Hour, Secure: true}
}

// SetSession signs claims and attaches them to w as a cookie.
func (sp *SessionProvider) SetSession(w http.ResponseWriter, claims SessionClaims) error {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(sp.Key)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sp.cookieName(),
		Value:    signed,
		MaxAge:   int(sp.maxAge().Seconds()),
		HttpOnly: true,
		Secure:   sp.Secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	})
	return nil
}

// GetSession recovers and validates the signed session cookie carried
// on r, returning ErrNoSession if none is present.
func (sp *SessionProvider) GetSession(r *http.Request) (*SessionClaims, error) {
	cookie, err := r.Cookie(sp.cookieName())
	if err != nil {
		return nil, ErrNoSession
	}

	claims := &SessionClaims{}
	_, err = jwt.ParseWithClaims(cookie.Value, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return &sp.Key.PublicKey, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ClearSession removes the session cookie from the browser.
func (sp *SessionProvider) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sp.cookieName(),
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   sp.Secure,
		Path:     "/",
	})
}

func (sp *SessionProvider) cookieName() string {
	if sp.CookieName != "" {
		return sp.CookieName
	}
	return SessionCookieName
}

func (sp *SessionProvider) maxAge() time.Duration {
	if sp.MaxAge > 0 {
		return sp.MaxAge
	}
	return 24 * time.Hour
}

// ErrNoSession is returned by GetSession when the request carries no
// session cookie.
var ErrNoSession = errors.New("saml: no session present")
