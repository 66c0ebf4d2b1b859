package binding

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	saml "github.com/federate-go/saml"
	"github.com/federate-go/saml/transport"
)

func TestPostBindingEncodeDecodeRoundTrip(t *testing.T) {
	b := NewPostBinding()

	response := &saml.Response{
		StatusResponseType: saml.StatusResponseType{
			ID:           "resp-1",
			Version:      "2.0",
			IssueInstant: saml.TimeNow(),
			Destination:  "https://sp.example.com/acs",
			Issuer:       *saml.NewIssuer("https://idp.example.com/entity"),
		},
	}

	dummyReq := httptest.NewRequest("GET", "https://idp.example.com/", nil)
	rec := httptest.NewRecorder()
	resp := transport.NewHTTPResponse(rec, dummyReq)

	err := b.Encode(resp, response, "relay-xyz", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "text/html", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))

	body := rec.Body.String()
	require.Contains(t, body, "SAMLResponse")
	require.Contains(t, body, "relay-xyz")

	encoded := extractHiddenInputValue(t, body, "SAMLResponse")
	form := url.Values{}
	form.Set("SAMLResponse", encoded)
	form.Set("RelayState", "relay-xyz")

	decodeReq := httptest.NewRequest("POST", "https://sp.example.com/acs", strings.NewReader(form.Encode()))
	decodeReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	result, err := b.Decode(transport.NewHTTPRequest(decodeReq), func() saml.Message { return new(saml.Response) })
	require.NoError(t, err)
	assert.Equal(t, "relay-xyz", result.RelayState)

	decoded, ok := result.MsgCtx.Message.(*saml.Response)
	require.True(t, ok)
	assert.Equal(t, "resp-1", decoded.ID)
	assert.Equal(t, "https://idp.example.com/entity", decoded.GetIssuer())
}

// TestPostBindingEncodeSetsCorrelationCookieForRequests confirms the
// request leg (SAMLRequest, not SAMLResponse) stashes the message ID in
// a "_opensaml_req_<RelayState>" cookie, and that Decode recovers it.
func TestPostBindingEncodeSetsCorrelationCookieForRequests(t *testing.T) {
	b := NewPostBinding()

	authnRequest := &saml.AuthnRequest{
		RequestAbstractType: saml.RequestAbstractType{
			ID:           "req-1",
			Version:      "2.0",
			IssueInstant: saml.TimeNow(),
			Destination:  "https://idp.example.com/sso",
			Issuer:       *saml.NewIssuer("https://sp.example.com/entity"),
		},
	}

	dummyReq := httptest.NewRequest("GET", "https://sp.example.com/", nil)
	rec := httptest.NewRecorder()
	resp := transport.NewHTTPResponse(rec, dummyReq)

	err := b.Encode(resp, authnRequest, "relay-xyz", nil, nil)
	require.NoError(t, err)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == correlationCookieName("relay-xyz") {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "expected a correlation cookie to be set")
	assert.Equal(t, "req-1", cookie.Value)

	body := rec.Body.String()
	encoded := extractHiddenInputValue(t, body, "SAMLRequest")
	form := url.Values{}
	form.Set("SAMLRequest", encoded)
	form.Set("RelayState", "relay-xyz")

	decodeReq := httptest.NewRequest("POST", "https://idp.example.com/sso", strings.NewReader(form.Encode()))
	decodeReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	decodeReq.AddCookie(cookie)

	result, err := b.Decode(transport.NewHTTPRequest(decodeReq), func() saml.Message { return new(saml.AuthnRequest) })
	require.NoError(t, err)
	assert.Equal(t, "req-1", result.CorrelationID)
}

func TestPostBindingDecodeRejectsNonPostMethod(t *testing.T) {
	b := NewPostBinding()
	req := httptest.NewRequest("GET", "https://sp.example.com/acs?SAMLResponse=x", nil)
	_, err := b.Decode(transport.NewHTTPRequest(req), func() saml.Message { return new(saml.Response) })
	require.Error(t, err)

	bindingErr, ok := err.(*saml.BindingError)
	require.True(t, ok)
	assert.Equal(t, saml.BindingMalformed, bindingErr.Kind)
}

// extractHiddenInputValue pulls the value attribute out of the single
// hidden input named field in an HTML form rendered by
// renderSelfSubmitForm; good enough for a test fixture without
// dragging in an HTML parser.
func extractHiddenInputValue(t *testing.T, html, field string) string {
	t.Helper()
	marker := `name="` + field + `" value="`
	idx := strings.Index(html, marker)
	require.Greater(t, idx, -1, "field %s not found in form", field)
	rest := html[idx+len(marker):]
	end := strings.Index(rest, `"`)
	require.Greater(t, end, -1)
	return rest[:end]
}
