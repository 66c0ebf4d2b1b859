package binding

import (
	"crypto"
	"crypto/x509"
	"net/http"
	"net/url"

	saml "github.com/federate-go/saml"
	"github.com/federate-go/saml/policy"
	"github.com/federate-go/saml/transport"
)

// Saml1PostBinding implements the SAML 1.1 Browser/POST profile: an
// IdP posts a plain base64-encoded Saml1Response (no DEFLATE) to the
// SP's Recipient URL via a self-submitting form, with TARGET standing
// in for RelayState. SAML 1.1 has no standardized AuthnRequest, so
// this binding only ever carries a response.
type Saml1PostBinding struct {
	Provider saml.XmlSecurityProvider
}

func NewSaml1PostBinding() *Saml1PostBinding {
	return &Saml1PostBinding{Provider: saml.DefaultXmlSecurityProvider{}}
}

func (Saml1PostBinding) Binding() string { return saml.SAML1HTTPPostBinding }

func (b *Saml1PostBinding) Encode(resp transport.TransportResponse, response *saml.Saml1Response, target string, signer crypto.Signer, cert *x509.Certificate) error {
	raw, err := marshalSigned(b.Provider, response, signer, cert)
	if err != nil {
		return err
	}
	fields := []formField{{Name: "SAMLResponse", Value: saml.Base64Encode(raw)}}
	if target != "" {
		fields = append(fields, formField{Name: "TARGET", Value: target})
	}
	return renderSelfSubmitForm(resp, response.Recipient, fields)
}

func (b *Saml1PostBinding) Decode(req transport.TransportRequest) (*DecodeResult, error) {
	encoded := req.Parameter("SAMLResponse")
	if encoded == "" {
		return nil, saml.NewBindingError(saml.BindingMalformed, "SAMLResponse parameter missing", nil)
	}
	raw, err := saml.Base64Decode(encoded)
	if err != nil {
		return nil, err
	}
	msg, root, err := decodeMessageDOM(b.Provider, raw, func() saml.Message { return new(saml.Saml1Response) })
	if err != nil {
		return nil, err
	}
	return &DecodeResult{
		MsgCtx:     &policy.MessageContext{Message: msg, Root: root},
		RelayState: req.Parameter("TARGET"),
	}, nil
}

// Saml1ArtifactBinding implements the SAML 1.x artifact-01 profile:
// the front channel carries a type-1 (or type-2) artifact via the
// browser, and the back channel resolves it with a SOAP-framed
// Saml1AssertionArtifact request/Saml1Response reply.
type Saml1ArtifactBinding struct {
	Provider saml.XmlSecurityProvider
	Map      *saml.ArtifactMap
}

func NewSaml1ArtifactBinding(m *saml.ArtifactMap) *Saml1ArtifactBinding {
	return &Saml1ArtifactBinding{Provider: saml.DefaultXmlSecurityProvider{}, Map: m}
}

func (Saml1ArtifactBinding) Binding() string { return saml.SAML1HTTPArtifactBinding }

// EncodeRedirect stores response in the ArtifactMap and redirects to
// recipientURL carrying the minted artifact under "SAMLart" and
// target under "TARGET", following the artifact-01 profile's query
// parameter names.
func (b *Saml1ArtifactBinding) EncodeRedirect(resp transport.TransportResponse, response *saml.Saml1Response, issuerEntityID, recipientURL, target string) error {
	doc, err := b.Provider.Marshal(response)
	if err != nil {
		return saml.NewBindingError(saml.BindingMalformed, "marshaling message", err)
	}
	artifact, err := saml.NewSAML1Artifact(issuerEntityID)
	if err != nil {
		return err
	}
	b.Map.Store(doc, artifact, "", saml.DefaultValidDuration)

	query := url.Values{}
	query.Set("SAMLart", artifact.Base64())
	if target != "" {
		query.Set("TARGET", target)
	}
	u, err := url.Parse(recipientURL)
	if err != nil {
		return saml.NewBindingError(saml.BindingMalformed, "parsing recipient URL", err)
	}
	u.RawQuery = query.Encode()
	resp.SendRedirect(u.String())
	return nil
}

// Saml1ArtifactResolver dereferences a SAML 1.x artifact over SOAP,
// mirroring HTTPArtifactResolver's shape for SAML 2.0.
type Saml1ArtifactResolver struct {
	Provider saml.XmlSecurityProvider
	Client   *http.Client
}

func NewSaml1ArtifactResolver(client *http.Client) *Saml1ArtifactResolver {
	return &Saml1ArtifactResolver{Provider: saml.DefaultXmlSecurityProvider{}, Client: client}
}

func (r *Saml1ArtifactResolver) Resolve(artifactResolutionEndpoint, artifactB64 string) (*saml.Saml1Response, error) {
	request := &saml.Saml1AssertionArtifact{
		Saml1Request: saml.Saml1Request{
			RequestID:    saml.NewID(),
			MajorVersion: 1,
			MinorVersion: 1,
			IssueInstant: saml.TimeNow(),
		},
		AssertionArtifact: artifactB64,
	}

	doc, err := r.Provider.Marshal(request)
	if err != nil {
		return nil, saml.NewBindingError(saml.BindingMalformed, "marshaling Saml1AssertionArtifact request", err)
	}
	raw, err := r.Provider.Serialize(doc)
	if err != nil {
		return nil, saml.NewBindingError(saml.BindingMalformed, "serializing request", err)
	}
	envelope, err := wrapSOAP(raw, nil)
	if err != nil {
		return nil, err
	}

	respBody, err := postSOAP(r.Client, artifactResolutionEndpoint, envelope)
	if err != nil {
		return nil, err
	}
	body, _, err := unwrapSOAP(respBody)
	if err != nil {
		return nil, err
	}

	respDoc, err := r.Provider.ParseDocument(body)
	if err != nil {
		return nil, err
	}
	response := &saml.Saml1Response{}
	if err := r.Provider.Unmarshal(respDoc, response); err != nil {
		return nil, saml.NewBindingError(saml.BindingMalformed, "unmarshaling Saml1Response", err)
	}
	return response, nil
}
