package binding

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	saml "github.com/federate-go/saml"
	"github.com/federate-go/saml/transport"
)

func TestRedirectBindingEncodeDecodeRoundTrip(t *testing.T) {
	b := NewRedirectBinding()

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

	err := b.Encode(resp, authnRequest, "relay-123", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 302, rec.Code)

	location := rec.Header().Get("Location")
	require.NotEmpty(t, location)

	decodeReq := httptest.NewRequest("GET", location, nil)
	result, err := b.Decode(transport.NewHTTPRequest(decodeReq), func() saml.Message { return new(saml.AuthnRequest) })
	require.NoError(t, err)

	assert.Equal(t, "relay-123", result.RelayState)
	decoded, ok := result.MsgCtx.Message.(*saml.AuthnRequest)
	require.True(t, ok)
	assert.Equal(t, "req-1", decoded.ID)
	assert.Equal(t, "https://sp.example.com/entity", decoded.GetIssuer())
	assert.Equal(t, "https://idp.example.com/sso", decoded.GetDestination())
	assert.Nil(t, result.MsgCtx.Detached)
}

func TestRedirectBindingRejectsOversizedRelayState(t *testing.T) {
	b := NewRedirectBinding()
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

	oversized := make([]byte, 81)
	for i := range oversized {
		oversized[i] = 'a'
	}
	err := b.Encode(resp, authnRequest, string(oversized), nil, nil)
	require.Error(t, err)

	bindingErr, ok := err.(*saml.BindingError)
	require.True(t, ok)
	assert.Equal(t, saml.BindingRelayStateTooLong, bindingErr.Kind)
}

// TestRedirectBindingEncodeStripsPreexistingSignature confirms a
// message carrying an already-attached enveloped XML Signature has it
// cleared before the DEFLATEd query parameter is built, since Redirect
// only supports detached signatures over the canonical query string.
func TestRedirectBindingEncodeStripsPreexistingSignature(t *testing.T) {
	b := NewRedirectBinding()

	authnRequest := &saml.AuthnRequest{
		RequestAbstractType: saml.RequestAbstractType{
			ID:           "req-1",
			Version:      "2.0",
			IssueInstant: saml.TimeNow(),
			Destination:  "https://idp.example.com/sso",
			Issuer:       *saml.NewIssuer("https://sp.example.com/entity"),
			Signature: &saml.Signature{
				SignedInfo: saml.SignedInfo{
					CanonicalizationMethod: saml.Method{Algorithm: "http://www.w3.org/2001/10/xml-exc-c14n#"},
					SignatureMethod:        saml.Method{Algorithm: saml.SignatureAlgRSASHA256},
				},
				SignatureValue: saml.SignatureValue{Value: "bogus"},
			},
		},
	}

	dummyReq := httptest.NewRequest("GET", "https://sp.example.com/", nil)
	rec := httptest.NewRecorder()
	resp := transport.NewHTTPResponse(rec, dummyReq)

	err := b.Encode(resp, authnRequest, "relay-123", nil, nil)
	require.NoError(t, err)

	location := rec.Header().Get("Location")
	require.NotEmpty(t, location)

	decodeReq := httptest.NewRequest("GET", location, nil)
	result, err := b.Decode(transport.NewHTTPRequest(decodeReq), func() saml.Message { return new(saml.AuthnRequest) })
	require.NoError(t, err)

	decoded, ok := result.MsgCtx.Message.(*saml.AuthnRequest)
	require.True(t, ok)
	assert.Nil(t, decoded.GetSignature())

	assert.Nil(t, authnRequest.GetSignature())
}

func TestRedirectBindingDecodeMissingParameter(t *testing.T) {
	b := NewRedirectBinding()
	req := httptest.NewRequest("GET", "https://sp.example.com/sso?RelayState=x", nil)
	_, err := b.Decode(transport.NewHTTPRequest(req), func() saml.Message { return new(saml.AuthnRequest) })
	require.Error(t, err)
}
