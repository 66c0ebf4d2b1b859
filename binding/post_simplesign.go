package binding

import (
	"crypto"
	"crypto/x509"

	saml "github.com/federate-go/saml"
	"github.com/federate-go/saml/policy"
	"github.com/federate-go/saml/transport"
)

// PostSimpleSignBinding implements SAML 2.0 HTTP-POST-SimpleSign: like
// HTTP-POST but the message is never embedded-signed; instead
// SigAlg/Signature form fields carry a detached signature computed
// over the same canonical ordering HTTP-Redirect uses, so constrained
// SPs that can't do XML-DSig still get a signed binding.
type PostSimpleSignBinding struct {
	Provider saml.XmlSecurityProvider
}

func NewPostSimpleSignBinding() *PostSimpleSignBinding {
	return &PostSimpleSignBinding{Provider: saml.DefaultXmlSecurityProvider{}}
}

func (PostSimpleSignBinding) Binding() string { return saml.HTTPPostSimpleSignBinding }

func (b *PostSimpleSignBinding) Encode(resp transport.TransportResponse, msg saml.Message, relayState string, signer crypto.Signer, cert *x509.Certificate) error {
	if err := checkRelayStateLen(relayState); err != nil {
		return err
	}

	doc, err := b.Provider.Marshal(msg)
	if err != nil {
		return saml.NewBindingError(saml.BindingMalformed, "marshaling message", err)
	}
	raw, err := b.Provider.Serialize(doc)
	if err != nil {
		return saml.NewBindingError(saml.BindingMalformed, "serializing message", err)
	}
	encoded := saml.Base64Encode(raw)
	paramName := messageParamName(msg)

	fields := []formField{{Name: paramName, Value: encoded}}
	if relayState != "" {
		fields = append(fields, formField{Name: "RelayState", Value: relayState})
	}

	if signer != nil {
		sigAlg := saml.SignatureAlgRSASHA256
		fields = append(fields, formField{Name: "SigAlg", Value: sigAlg})
		signed := canonicalSignedQuery(paramName, encoded, relayState, sigAlg)
		sig, err := b.Provider.SignDetached(signed, signer, sigAlg)
		if err != nil {
			return err
		}
		fields = append(fields, formField{Name: "Signature", Value: saml.Base64Encode(sig)})
	}

	return renderSelfSubmitForm(resp, msg.GetDestination(), fields)
}

func (b *PostSimpleSignBinding) Decode(req transport.TransportRequest, newMsg func() saml.Message) (*DecodeResult, error) {
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
