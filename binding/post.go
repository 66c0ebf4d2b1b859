package binding

import (
	"crypto"
	"crypto/x509"
	"net/http"

	saml "github.com/federate-go/saml"
	"github.com/federate-go/saml/policy"
	"github.com/federate-go/saml/transport"
)

// PostBinding implements SAML 2.0 HTTP-POST: the message is
// base64-encoded (no DEFLATE, unlike Redirect) and embedded enveloped
// signed into the SAMLRequest/SAMLResponse field of a self-submitting
// HTML form.
type PostBinding struct {
	Provider saml.XmlSecurityProvider
}

func NewPostBinding() *PostBinding {
	return &PostBinding{Provider: saml.DefaultXmlSecurityProvider{}}
}

func (PostBinding) Binding() string { return saml.HTTPPostBinding }

func (b *PostBinding) Encode(resp transport.TransportResponse, msg saml.Message, relayState string, signer crypto.Signer, cert *x509.Certificate) error {
	raw, err := marshalSigned(b.Provider, msg, signer, cert)
	if err != nil {
		return err
	}

	paramName := messageParamName(msg)
	fields := []formField{
		{Name: paramName, Value: saml.Base64Encode(raw)},
	}
	if relayState != "" {
		fields = append(fields, formField{Name: "RelayState", Value: relayState})
	}

	if paramName == "SAMLRequest" {
		resp.SetCookie(&http.Cookie{
			Name:     correlationCookieName(relayState),
			Value:    msg.MessageID(),
			Path:     "/",
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteNoneMode,
		})
	}

	return renderSelfSubmitForm(resp, msg.GetDestination(), fields)
}

// Decode recovers the message from a POSTed form body; the XML
// signature, if any, is left embedded in the DOM for the policy
// pipeline's SignatureRule to verify.
func (b *PostBinding) Decode(req transport.TransportRequest, newMsg func() saml.Message) (*DecodeResult, error) {
	if req.Method() != http.MethodPost {
		return nil, saml.NewBindingError(saml.BindingMalformed, "HTTP-POST binding requires method POST, got "+req.Method(), nil)
	}

	paramName := ""
	var encoded string
	for _, candidate := range []string{"SAMLRequest", "SAMLResponse"} {
		if v := req.Parameter(candidate); v != "" {
			paramName, encoded = candidate, v
			break
		}
	}
	if paramName == "" {
		return nil, saml.NewBindingError(saml.BindingMalformed, "neither SAMLRequest nor SAMLResponse present", nil)
	}

	raw, err := saml.Base64Decode(encoded)
	if err != nil {
		return nil, err
	}

	msg, root, err := decodeMessageDOM(b.Provider, raw, newMsg)
	if err != nil {
		return nil, err
	}

	relayState := req.Parameter("RelayState")
	correlationID := ""
	if v, err := req.Cookie(correlationCookieName(relayState)); err == nil {
		correlationID = v
	}

	return &DecodeResult{
		MsgCtx:        &policy.MessageContext{Message: msg, Root: root},
		RelayState:    relayState,
		CorrelationID: correlationID,
	}, nil
}
