package binding

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	saml "github.com/federate-go/saml"
	"github.com/federate-go/saml/transport"
)

func TestSaml1PostBindingEncodeDecodeRoundTrip(t *testing.T) {
	b := NewSaml1PostBinding()
	response := &saml.Saml1Response{
		ResponseID:   "resp-1",
		MajorVersion: 1,
		MinorVersion: 1,
		IssueInstant: saml.TimeNow(),
		Recipient:    "https://sp.example.com/acs",
		Status:       saml.Saml1Status{StatusCode: saml.Saml1StatusCode{Value: saml.Saml1StatusSuccess}},
	}

	dummyReq := httptest.NewRequest("GET", "https://idp.example.com/", nil)
	rec := httptest.NewRecorder()
	resp := transport.NewHTTPResponse(rec, dummyReq)

	err := b.Encode(resp, response, "target-1", nil, nil)
	require.NoError(t, err)

	body := rec.Body.String()
	require.Contains(t, body, "SAMLResponse")
	require.Contains(t, body, "target-1")

	encoded := extractHiddenInputValue(t, body, "SAMLResponse")
	form := url.Values{}
	form.Set("SAMLResponse", encoded)
	form.Set("TARGET", "target-1")
	decodeReq := httptest.NewRequest("POST", "https://sp.example.com/acs", strings.NewReader(form.Encode()))
	decodeReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	result, err := b.Decode(transport.NewHTTPRequest(decodeReq))
	require.NoError(t, err)
	assert.Equal(t, "target-1", result.RelayState)

	decoded, ok := result.MsgCtx.Message.(*saml.Saml1Response)
	require.True(t, ok)
	assert.Equal(t, "resp-1", decoded.ResponseID)
}

func TestSaml1PostBindingDecodeMissingParameter(t *testing.T) {
	b := NewSaml1PostBinding()
	req := httptest.NewRequest("POST", "https://sp.example.com/acs", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, err := b.Decode(transport.NewHTTPRequest(req))
	require.Error(t, err)
}

func TestSaml1ArtifactBindingEncodeRedirect(t *testing.T) {
	m := saml.NewArtifactMap()
	b := NewSaml1ArtifactBinding(m)
	response := &saml.Saml1Response{
		ResponseID:   "resp-2",
		MajorVersion: 1,
		MinorVersion: 1,
		IssueInstant: saml.TimeNow(),
		Status:       saml.Saml1Status{StatusCode: saml.Saml1StatusCode{Value: saml.Saml1StatusSuccess}},
	}

	dummyReq := httptest.NewRequest("GET", "https://idp.example.com/", nil)
	rec := httptest.NewRecorder()
	resp := transport.NewHTTPResponse(rec, dummyReq)

	err := b.EncodeRedirect(resp, response, "https://idp.example.com/entity", "https://sp.example.com/acs", "target-2")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	location := rec.Header().Get("Location")
	require.NotEmpty(t, location)
	u, err := url.Parse(location)
	require.NoError(t, err)
	assert.Equal(t, "target-2", u.Query().Get("TARGET"))
	assert.NotEmpty(t, u.Query().Get("SAMLart"))
}
