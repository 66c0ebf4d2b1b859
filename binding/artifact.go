package binding

import (
	"crypto"
	"crypto/x509"
	"net/http"
	"net/url"
	"time"

	saml "github.com/federate-go/saml"
	"github.com/federate-go/saml/policy"
	"github.com/federate-go/saml/transport"
)

// ArtifactBinding implements SAML 2.0 HTTP-Artifact: the front
// channel only ever carries a 44-byte artifact (base64-encoded) as a
// query parameter; the referenced payload travels over a separate
// SOAP-framed ArtifactResolve/ArtifactResponse back channel, so the
// artifact's producer needs an ArtifactMap and its consumer needs an
// ArtifactResolver.
type ArtifactBinding struct {
	Provider saml.XmlSecurityProvider
	Map      *saml.ArtifactMap

	// SelfEntityID is this party's own entity ID, sent as the Issuer of
	// the back-channel ArtifactResolve request Decode issues. Left
	// empty, the resolved request carries no Issuer — fine for a
	// resolver that doesn't check it (e.g. LocalArtifactResolver's
	// recipient check against an ArtifactMap that was stored with an
	// empty intendedRecipientEntityID).
	SelfEntityID string
}

func NewArtifactBinding(m *saml.ArtifactMap) *ArtifactBinding {
	return &ArtifactBinding{Provider: saml.DefaultXmlSecurityProvider{}, Map: m}
}

// NewArtifactBindingForEntity is NewArtifactBinding plus SelfEntityID,
// for a caller that resolves artifacts against a remote back channel
// and needs its own identity on the outgoing request.
func NewArtifactBindingForEntity(m *saml.ArtifactMap, selfEntityID string) *ArtifactBinding {
	return &ArtifactBinding{Provider: saml.DefaultXmlSecurityProvider{}, Map: m, SelfEntityID: selfEntityID}
}

func (ArtifactBinding) Binding() string { return saml.HTTPArtifactBinding }

// Encode stores msg in the ArtifactMap under a freshly minted artifact
// bound to intendedRecipientEntityID, then redirects to msg's
// Destination with the artifact (and relay state) as query
// parameters. signer/cert are accepted to satisfy Encoder but are
// unused: HTTP-Artifact carries no signature on the front channel,
// since the payload never crosses it.
func (b *ArtifactBinding) Encode(resp transport.TransportResponse, msg saml.Message, relayState string, _ crypto.Signer, _ *x509.Certificate) error {
	return b.EncodeForRecipient(resp, msg, relayState, "", saml.DefaultValidDuration, 0)
}

// EncodeForRecipient is the full-fidelity entry point: it lets the
// caller supply the intended recipient entity ID, a TTL, and the
// artifact's endpoint index, none of which the plain Encoder
// interface has room for.
func (b *ArtifactBinding) EncodeForRecipient(resp transport.TransportResponse, msg saml.Message, relayState, intendedRecipientEntityID string, ttl time.Duration, endpointIndex uint16) error {
	if err := checkRelayStateLen(relayState); err != nil {
		return err
	}

	doc, err := b.Provider.Marshal(msg)
	if err != nil {
		return saml.NewBindingError(saml.BindingMalformed, "marshaling message", err)
	}

	artifact, err := saml.NewSAML2Artifact(msg.GetIssuer(), endpointIndex)
	if err != nil {
		return err
	}
	b.Map.Store(doc, artifact, intendedRecipientEntityID, ttl)

	query := url.Values{}
	query.Set("SAMLart", artifact.Base64())
	if relayState != "" {
		query.Set("RelayState", relayState)
	}

	u, err := url.Parse(msg.GetDestination())
	if err != nil {
		return saml.NewBindingError(saml.BindingMalformed, "parsing destination URL", err)
	}
	u.RawQuery = query.Encode()
	resp.SendRedirect(u.String())
	return nil
}

// artifactReplayContext is the ReplayCache key namespace a resolved
// artifact's own base64 wire form is checked under, distinct from the
// "saml-message" namespace ReplayAndFreshnessRule uses for message IDs
// since the same 44 bytes could otherwise collide with an unrelated
// message ID string.
const artifactReplayContext = "SAML2Artifact"

// artifactIssuerRole picks the RoleDescriptor to record as
// pol.IssuerMetadata for an artifact's resolved issuer: pol's
// configured RoleQName/ProtocolURI if metadata-resolution is already
// scoped to a specific role, otherwise the first SSO role the entity
// advertises.
func artifactIssuerRole(pol *policy.SecurityPolicy, ed *saml.EntityDescriptor) *saml.RoleDescriptor {
	if pol.MetadataProvider != nil && pol.RoleQName != "" {
		if role, ok := pol.MetadataProvider.GetRole(ed.EntityID, pol.RoleQName, pol.ProtocolURI); ok {
			return role
		}
	}
	if len(ed.IDPSSODescriptors) > 0 {
		return &ed.IDPSSODescriptors[0].RoleDescriptor
	}
	if len(ed.SPSSODescriptors) > 0 {
		return &ed.SPSSODescriptors[0].RoleDescriptor
	}
	return nil
}

// artifactResolutionEndpoint picks the ArtifactResolutionService
// location matching artifact's endpoint index (SAML 2.0 artifacts
// only; SAML 1.x artifacts carry no endpoint index, so the first
// advertised service is used), falling back to the first advertised
// service if no index match is found.
func artifactResolutionEndpoint(ed *saml.EntityDescriptor, artifact saml.SAMLArtifact) string {
	idx := 0
	if a2, ok := artifact.(*saml.SAML2Artifact); ok {
		idx = int(a2.EndpointIndexValue)
	}

	var services []saml.IndexedEndpoint
	for i := range ed.IDPSSODescriptors {
		services = append(services, ed.IDPSSODescriptors[i].ArtifactResolutionServices...)
	}
	for i := range ed.SPSSODescriptors {
		services = append(services, ed.SPSSODescriptors[i].ArtifactResolutionServices...)
	}

	fallback := ""
	for _, svc := range services {
		if svc.Index == idx {
			return svc.Location
		}
		if fallback == "" {
			fallback = svc.Location
		}
	}
	return fallback
}

// Decode recovers the artifact-referenced message by dereferencing the
// front-channel SAMLart parameter over resolver's back channel: the
// artifact is checked against pol's replay cache under the
// "SAML2Artifact" context, its SourceID is matched against pol's
// metadata provider to find the issuing entity (requiring it advertise
// an IdP or SP SSO role), pol.Issuer/pol.IssuerMetadata are set from
// that lookup, and the located ArtifactResolutionService endpoint is
// used to call resolver.Resolve. pol may be nil for a bare
// unauthenticated resolve, in which case the replay/metadata steps are
// skipped and resolver is called with an empty endpoint. resolver is
// always required: a nil resolver fails with BindingTransportFailed.
func (b *ArtifactBinding) Decode(req transport.TransportRequest, pol *policy.SecurityPolicy, resolver ArtifactResolver, signer crypto.Signer, cert *x509.Certificate, newMsg func() saml.Message) (*DecodeResult, error) {
	encoded := req.Parameter("SAMLart")
	if encoded == "" {
		return nil, saml.NewBindingError(saml.BindingMalformed, "SAMLart parameter missing", nil)
	}

	if pol != nil && pol.ReplayCache != nil {
		skew := pol.ClockSkew
		if skew <= 0 {
			skew = saml.DefaultClockSkew
		}
		if !pol.ReplayCache.Check(artifactReplayContext, encoded, saml.TimeNow().Add(2*skew)) {
			return nil, saml.NewSecurityPolicyError(saml.SecurityPolicyReplayed, "ArtifactBinding", "artifact already seen within the replay window")
		}
	}

	artifact, err := saml.ParseArtifact(encoded)
	if err != nil {
		return nil, err
	}

	resolutionEndpoint := ""
	if pol != nil && pol.MetadataProvider != nil {
		ed, ok := pol.MetadataProvider.LookupByArtifact(artifact.SourceID())
		if !ok {
			return nil, saml.NewSecurityPolicyError(saml.SecurityPolicyUnknownIssuer, "ArtifactBinding", "no metadata entity matches artifact source ID")
		}
		if len(ed.IDPSSODescriptors) == 0 && len(ed.SPSSODescriptors) == 0 {
			return nil, saml.NewSecurityPolicyError(saml.SecurityPolicyNoRole, "ArtifactBinding", "artifact issuer advertises no SSO role")
		}

		pol.Issuer = ed.EntityID
		pol.IssuerMetadata = artifactIssuerRole(pol, ed)

		resolutionEndpoint = artifactResolutionEndpoint(ed, artifact)
		if resolutionEndpoint == "" {
			return nil, saml.NewBindingError(saml.BindingMalformed, "artifact issuer advertises no ArtifactResolutionService", nil)
		}
	}

	if resolver == nil {
		return nil, saml.NewBindingError(saml.BindingTransportFailed, "no ArtifactResolver configured", nil)
	}

	artifactResponse, err := resolver.Resolve(resolutionEndpoint, encoded, b.SelfEntityID, signer, cert)
	if err != nil {
		return nil, err
	}

	msg, root, err := decodeMessageDOM(b.Provider, artifactResponse.InnerXML, newMsg)
	if err != nil {
		return nil, err
	}

	return &DecodeResult{
		MsgCtx:     &policy.MessageContext{Message: msg, Root: root},
		RelayState: req.Parameter("RelayState"),
	}, nil
}

// ArtifactResolver is the back-channel collaborator an HTTP-Artifact
// consumer uses to dereference an artifact it received on the front
// channel against the artifact's issuer, over SOAP.
type ArtifactResolver interface {
	Resolve(artifactResolutionEndpoint string, artifact string, issuerEntityID string, signer crypto.Signer, cert *x509.Certificate) (*saml.ArtifactResponse, error)
}

// HTTPArtifactResolver implements ArtifactResolver over a real SOAP
// HTTP round trip, grounded on amdonov/lite-idp's
// serviceProvider.resolveArtifact (vendored under dexidp-dex): build
// an ArtifactResolve, sign it, POST it SOAP-framed, and unwrap the
// ArtifactResponse.
type HTTPArtifactResolver struct {
	Provider saml.XmlSecurityProvider
	Client   *http.Client
}

func NewHTTPArtifactResolver(client *http.Client) *HTTPArtifactResolver {
	return &HTTPArtifactResolver{Provider: saml.DefaultXmlSecurityProvider{}, Client: client}
}

func (r *HTTPArtifactResolver) Resolve(artifactResolutionEndpoint, artifact, issuerEntityID string, signer crypto.Signer, cert *x509.Certificate) (*saml.ArtifactResponse, error) {
	resolve := &saml.ArtifactResolve{
		RequestAbstractType: saml.RequestAbstractType{
			ID:           saml.NewID(),
			Version:      "2.0",
			IssueInstant: saml.TimeNow(),
			Destination:  artifactResolutionEndpoint,
			Issuer:       *saml.NewIssuer(issuerEntityID),
		},
		Artifact: artifact,
	}

	raw, err := marshalSigned(r.Provider, resolve, signer, cert)
	if err != nil {
		return nil, err
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

	doc, err := r.Provider.ParseDocument(body)
	if err != nil {
		return nil, err
	}
	artifactResponse := &saml.ArtifactResponse{}
	if err := r.Provider.Unmarshal(doc, artifactResponse); err != nil {
		return nil, saml.NewBindingError(saml.BindingMalformed, "unmarshaling ArtifactResponse", err)
	}
	return artifactResponse, nil
}

// LocalArtifactResolver implements ArtifactResolver by reading
// straight out of a shared in-process ArtifactMap instead of issuing a
// real SOAP round trip: the deployment shape where the artifact's
// producer and consumer are the same process (a combined IdP+SP demo,
// or this package's own tests) and there is no network hop to make.
type LocalArtifactResolver struct {
	Provider saml.XmlSecurityProvider
	Map      *saml.ArtifactMap
}

func NewLocalArtifactResolver(m *saml.ArtifactMap) *LocalArtifactResolver {
	return &LocalArtifactResolver{Provider: saml.DefaultXmlSecurityProvider{}, Map: m}
}

// Resolve ignores artifactResolutionEndpoint/signer/cert (there is no
// transport to address or request to sign) and retrieves the stored
// document straight from the map, wrapping it in an ArtifactResponse
// the same shape HTTPArtifactResolver would have produced.
func (r *LocalArtifactResolver) Resolve(_ string, artifact string, issuerEntityID string, _ crypto.Signer, _ *x509.Certificate) (*saml.ArtifactResponse, error) {
	a, err := saml.ParseArtifact(artifact)
	if err != nil {
		return nil, err
	}
	doc, err := r.Map.Retrieve(a, issuerEntityID)
	if err != nil {
		return nil, err
	}
	raw, err := r.Provider.Serialize(doc)
	if err != nil {
		return nil, saml.NewBindingError(saml.BindingMalformed, "serializing artifact-referenced message", err)
	}
	return &saml.ArtifactResponse{
		StatusResponseType: saml.StatusResponseType{
			ID:           saml.NewID(),
			Version:      "2.0",
			IssueInstant: saml.TimeNow(),
			Issuer:       *saml.NewIssuer(issuerEntityID),
		},
		InnerXML: raw,
	}, nil
}
