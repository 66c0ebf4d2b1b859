package samlsp

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	saml "github.com/federate-go/saml"
)

func generateSessionTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestClaimsFromAssertionExtractsSubjectAndAttributes(t *testing.T) {
	sessionIndex := "session-1"
	assertion := &saml.Assertion{
		ID:     "assertion-1",
		Issuer: *saml.NewIssuer("https://idp.example.com/entity"),
		Subject: &saml.Subject{
			NameID: &saml.NameID{Value: "jdoe"},
		},
		AuthnStatements: []saml.AuthnStatement{
			{AuthnInstant: time.Now(), SessionIndex: sessionIndex},
		},
		AttributeStatements: []saml.AttributeStatement{
			{
				Attributes: []saml.Attribute{
					{
						Name:   "email",
						Values: []saml.AttributeValue{{Value: "jdoe@example.com"}},
					},
				},
			},
		},
	}

	claims := ClaimsFromAssertion("https://sp.example.com/entity", assertion, time.Hour)
	assert.Equal(t, "jdoe", claims.Subject)
	assert.Equal(t, sessionIndex, claims.SessionIndex)
	assert.Equal(t, []string{"jdoe@example.com"}, claims.Attributes["email"])
	assert.Equal(t, "jdoe@example.com", claims.GetAttr("email"))
}

func TestSessionProviderSetAndGetSessionRoundTrip(t *testing.T) {
	key := generateSessionTestKey(t)
	sp := NewSessionProvider(key)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "jdoe"},
		Attributes:       map[string][]string{"email": {"jdoe@example.com"}},
		SessionIndex:     "session-1",
	}

	rec := httptest.NewRecorder()
	require.NoError(t, sp.SetSession(rec, claims))

	resultCookies := rec.Result().Cookies()
	require.Len(t, resultCookies, 1)
	assert.Equal(t, SessionCookieName, resultCookies[0].Name)

	req := httptest.NewRequest("GET", "https://sp.example.com/", nil)
	req.AddCookie(resultCookies[0])

	got, err := sp.GetSession(req)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", got.Subject)
	assert.Equal(t, "session-1", got.SessionIndex)
	assert.Equal(t, []string{"jdoe@example.com"}, got.Attributes["email"])
}

func TestSessionProviderGetSessionNoCookie(t *testing.T) {
	sp := NewSessionProvider(generateSessionTestKey(t))
	req := httptest.NewRequest("GET", "https://sp.example.com/", nil)

	_, err := sp.GetSession(req)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionProviderGetSessionRejectsWrongKey(t *testing.T) {
	signingKey := generateSessionTestKey(t)
	verifyingSP := NewSessionProvider(generateSessionTestKey(t))
	signingSP := NewSessionProvider(signingKey)

	claims := SessionClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "jdoe"}}

	rec := httptest.NewRecorder()
	require.NoError(t, signingSP.SetSession(rec, claims))

	req := httptest.NewRequest("GET", "https://sp.example.com/", nil)
	req.AddCookie(rec.Result().Cookies()[0])

	_, err := verifyingSP.GetSession(req)
	assert.Error(t, err)
}

func TestSessionProviderClearSession(t *testing.T) {
	sp := NewSessionProvider(generateSessionTestKey(t))
	rec := httptest.NewRecorder()
	sp.ClearSession(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)
	assert.True(t, cookies[0].MaxAge < 0)
}
