package binding

import (
	"crypto"
	"crypto/x509"
	"net/url"

	saml "github.com/federate-go/saml"
	"github.com/federate-go/saml/policy"
	"github.com/federate-go/saml/transport"
)

// RedirectBinding implements SAML 2.0 HTTP-Redirect: the message is
// DEFLATE-compressed, base64-encoded, and carried as a query
// parameter; when signed, the signature is detached and computed over
// the canonical query string rather than embedded in the XML.
type RedirectBinding struct {
	Provider saml.XmlSecurityProvider
}

// NewRedirectBinding builds a RedirectBinding backed by the default
// XmlSecurityProvider.
func NewRedirectBinding() *RedirectBinding {
	return &RedirectBinding{Provider: saml.DefaultXmlSecurityProvider{}}
}

func (RedirectBinding) Binding() string { return saml.HTTPRedirectBinding }

func (b *RedirectBinding) Encode(resp transport.TransportResponse, msg saml.Message, relayState string, signer crypto.Signer, cert *x509.Certificate) error {
	if err := checkRelayStateLen(relayState); err != nil {
		return err
	}

	// Redirect is detached-signature only: any enveloped XML Signature
	// the caller already attached would travel into the DEFLATEd
	// payload unverifiable by SignatureRule's detached path, so it is
	// stripped before marshaling.
	msg.SetSignature(nil)

	doc, err := b.Provider.Marshal(msg)
	if err != nil {
		return saml.NewBindingError(saml.BindingMalformed, "marshaling message", err)
	}
	raw, err := b.Provider.Serialize(doc)
	if err != nil {
		return saml.NewBindingError(saml.BindingMalformed, "serializing message", err)
	}
	deflated, err := b.Provider.Deflate(raw)
	if err != nil {
		return saml.NewBindingError(saml.BindingMalformed, "deflating message", err)
	}
	encoded := saml.Base64Encode(deflated)

	destination := msg.GetDestination()
	paramName := messageParamName(msg)

	query := url.Values{}
	query.Set(paramName, encoded)
	if relayState != "" {
		query.Set("RelayState", relayState)
	}

	if signer != nil {
		sigAlg := saml.SignatureAlgRSASHA256
		query.Set("SigAlg", sigAlg)
		signed := canonicalSignedQuery(paramName, encoded, relayState, sigAlg)
		sig, err := b.Provider.SignDetached(signed, signer, sigAlg)
		if err != nil {
			return err
		}
		query.Set("Signature", saml.Base64Encode(sig))
	}

	u, err := url.Parse(destination)
	if err != nil {
		return saml.NewBindingError(saml.BindingMalformed, "parsing destination URL", err)
	}
	u.RawQuery = query.Encode()
	resp.SendRedirect(u.String())
	return nil
}

// Decode recovers the message from req's query string. A present
// Signature/SigAlg pair is captured as a DetachedSignature for the
// policy pipeline's SignatureRule rather than verified here.
func (b *RedirectBinding) Decode(req transport.TransportRequest, newMsg func() saml.Message) (*DecodeResult, error) {
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

	deflated, err := saml.Base64Decode(encoded)
	if err != nil {
		return nil, err
	}
	raw, err := b.Provider.Inflate(deflated)
	if err != nil {
		return nil, err
	}

	msg, root, err := decodeMessageDOM(b.Provider, raw, newMsg)
	if err != nil {
		return nil, err
	}

	relayState := req.Parameter("RelayState")

	result := &DecodeResult{
		MsgCtx:     &policy.MessageContext{Message: msg, Root: root},
		RelayState: relayState,
	}

	if sigB64 := req.Parameter("Signature"); sigB64 != "" {
		sigAlg := req.Parameter("SigAlg")
		sig, err := saml.Base64Decode(sigB64)
		if err != nil {
			return nil, err
		}
		result.MsgCtx.Detached = &policy.DetachedSignature{
			SignedBytes: canonicalSignedQuery(paramName, encoded, relayState, sigAlg),
			Signature:   sig,
			SigAlg:      sigAlg,
		}
	}

	return result, nil
}
