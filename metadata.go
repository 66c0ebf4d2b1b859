package saml

import (
	"crypto/sha1" //nolint:gosec // SHA-1 is the artifact SourceID algorithm mandated by the SAML spec, not used for signing.
	"encoding/xml"
	"time"
)

// Binding URIs used throughout the metadata tree and the binding
// engine's plugin registry keys.
const (
	HTTPPostBinding            = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
	HTTPPostSimpleSignBinding  = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST-SimpleSign"
	HTTPRedirectBinding        = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect"
	HTTPArtifactBinding        = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Artifact"
	SOAPBinding                = "urn:oasis:names:tc:SAML:2.0:bindings:SOAP"
	PAOSBinding                = "urn:oasis:names:tc:SAML:2.0:bindings:PAOS"
	SAML1HTTPPostBinding       = "urn:oasis:names:tc:SAML:1.0:profiles:browser-post"
	SAML1HTTPArtifactBinding   = "urn:oasis:names:tc:SAML:1.0:profiles:artifact-01"
	SAML1SOAPBinding           = "urn:oasis:names:tc:SAML:1.0:bindings:SOAP-binding"
	URLEncodingDeflateEncoding = "urn:oasis:names:tc:SAML:2.0:bindings:URL-Encoding:DEFLATE"

	SAML2ProtocolURI = "urn:oasis:names:tc:SAML:2.0:protocol"
	SAML1ProtocolURI = "urn:oasis:names:tc:SAML:1.1:protocol"
)

// NameIDFormat identifies how a NameID's Format attribute should read.
type NameIDFormat string

const (
	UnspecifiedNameIDFormat NameIDFormat = "urn:oasis:names:tc:SAML:1.1:nameid-format:unspecified"
	TransientNameIDFormat   NameIDFormat = "urn:oasis:names:tc:SAML:2.0:nameid-format:transient"
	PersistentNameIDFormat  NameIDFormat = "urn:oasis:names:tc:SAML:2.0:nameid-format:persistent"
	EmailAddressNameIDFormat NameIDFormat = "urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress"
)

// EntitiesDescriptor is either the document root of a federation
// metadata aggregate, or a nested group within one. Trees may nest
// arbitrarily deep.
type EntitiesDescriptor struct {
	XMLName       xml.Name             `xml:"urn:oasis:names:tc:SAML:2.0:metadata EntitiesDescriptor"`
	Name          *string              `xml:"Name,attr,omitempty"`
	ID            *string              `xml:"ID,attr,omitempty"`
	ValidUntil    *time.Time           `xml:"validUntil,attr,omitempty"`
	CacheDuration *Duration            `xml:"cacheDuration,attr,omitempty"`

	EntitiesDescriptors []EntitiesDescriptor `xml:"EntitiesDescriptor"`
	EntityDescriptors   []EntityDescriptor   `xml:"EntityDescriptor"`
}

// EntityDescriptor describes a single federation participant: its
// entity ID, validity window, and the role descriptors it advertises.
type EntityDescriptor struct {
	XMLName       xml.Name   `xml:"urn:oasis:names:tc:SAML:2.0:metadata EntityDescriptor"`
	EntityID      string     `xml:"entityID,attr"`
	ID            string     `xml:"ID,attr,omitempty"`
	ValidUntil    time.Time  `xml:"validUntil,attr,omitempty"`
	CacheDuration Duration   `xml:"cacheDuration,attr,omitempty"`

	RoleDescriptors               []RoleDescriptor               `xml:"RoleDescriptor"`
	IDPSSODescriptors             []IDPSSODescriptor             `xml:"IDPSSODescriptor"`
	SPSSODescriptors              []SPSSODescriptor              `xml:"SPSSODescriptor"`
	AuthnAuthorityDescriptors     []AuthnAuthorityDescriptor      `xml:"AuthnAuthorityDescriptor"`
	AttributeAuthorityDescriptors []AttributeAuthorityDescriptor  `xml:"AttributeAuthorityDescriptor"`
	PDPDescriptors                []PDPDescriptor                 `xml:"PDPDescriptor"`
}

// RoleDescriptor holds the fields common to every role an entity can
// play (IdP SSO, SP SSO, authn authority, attribute authority, PDP).
type RoleDescriptor struct {
	ID                         string          `xml:"ID,attr,omitempty"`
	ValidUntil                 *time.Time      `xml:"validUntil,attr,omitempty"`
	ProtocolSupportEnumeration string          `xml:"protocolSupportEnumeration,attr"`
	ErrorURL                   string          `xml:"errorURL,attr,omitempty"`
	KeyDescriptors             []KeyDescriptor `xml:"KeyDescriptor"`
}

// SupportsProtocol reports whether protocolURI appears as an exact
// whitespace-separated token of ProtocolSupportEnumeration. Matching
// is exact token match, never substring.
func (r RoleDescriptor) SupportsProtocol(protocolURI string) bool {
	for _, tok := range splitWhitespace(r.ProtocolSupportEnumeration) {
		if tok == protocolURI {
			return true
		}
	}
	return false
}

func splitWhitespace(s string) []string {
	var out []string
	start := -1
	for i, r := range s {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if isSpace {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}

// SSODescriptor holds the fields common to IdP and SP SSO role
// descriptors.
type SSODescriptor struct {
	RoleDescriptor

	ArtifactResolutionServices []IndexedEndpoint `xml:"ArtifactResolutionService"`
	SingleLogoutServices       []Endpoint        `xml:"SingleLogoutService"`
	ManageNameIDServices       []Endpoint        `xml:"ManageNameIDService"`
	NameIDFormats              []NameIDFormat    `xml:"NameIDFormat"`
}

// IDPSSODescriptor is the IdP's SSO role: where AuthnRequests are
// received and where assertions are issued from.
type IDPSSODescriptor struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:metadata IDPSSODescriptor"`
	SSODescriptor

	WantAuthnRequestsSigned *bool             `xml:"WantAuthnRequestsSigned,attr"`
	SingleSignOnServices    []Endpoint        `xml:"SingleSignOnService"`
	NameIDMappingServices   []Endpoint        `xml:"NameIDMappingService"`
}

// SPSSODescriptor is the SP's SSO role: where assertions and logout
// responses are delivered back to.
type SPSSODescriptor struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:metadata SPSSODescriptor"`
	SSODescriptor

	AuthnRequestsSigned       *bool             `xml:"AuthnRequestsSigned,attr"`
	WantAssertionsSigned      *bool             `xml:"WantAssertionsSigned,attr"`
	AssertionConsumerServices []IndexedEndpoint `xml:"AssertionConsumerService"`
}

// AuthnAuthorityDescriptor, AttributeAuthorityDescriptor, and
// PDPDescriptor are carried for metadata completeness; the binding
// engine only consumes IDPSSODescriptor/SPSSODescriptor today.
type AuthnAuthorityDescriptor struct {
	RoleDescriptor
	AuthnQueryServices      []Endpoint     `xml:"AuthnQueryService"`
	AssertionIDRequestServices []Endpoint  `xml:"AssertionIDRequestService"`
	NameIDFormats           []NameIDFormat `xml:"NameIDFormat"`
}

type AttributeAuthorityDescriptor struct {
	RoleDescriptor
	AttributeServices          []Endpoint     `xml:"AttributeService"`
	AssertionIDRequestServices []Endpoint     `xml:"AssertionIDRequestService"`
	NameIDFormats              []NameIDFormat `xml:"NameIDFormat"`
}

type PDPDescriptor struct {
	RoleDescriptor
	AuthzServices              []Endpoint `xml:"AuthzService"`
	AssertionIDRequestServices []Endpoint `xml:"AssertionIDRequestService"`
}

// KeyDescriptor advertises a key used for "signing" or "encryption"
// (or both, when Use is empty).
type KeyDescriptor struct {
	Use               string             `xml:"use,attr,omitempty"`
	KeyInfo           KeyInfo            `xml:"http://www.w3.org/2000/09/xmldsig# KeyInfo"`
	EncryptionMethods []EncryptionMethod `xml:"EncryptionMethod"`
}

type EncryptionMethod struct {
	Algorithm string `xml:"Algorithm,attr"`
}

type KeyInfo struct {
	XMLName  xml.Name `xml:"http://www.w3.org/2000/09/xmldsig# KeyInfo"`
	X509Data X509Data `xml:"X509Data"`
}

type X509Data struct {
	X509Certificates []X509Certificate `xml:"X509Certificate"`
}

type X509Certificate struct {
	Data string `xml:",chardata"`
}

// Endpoint is a location an entity can be reached at for a given
// binding.
type Endpoint struct {
	Binding          string `xml:"Binding,attr"`
	Location         string `xml:"Location,attr"`
	ResponseLocation string `xml:"ResponseLocation,attr,omitempty"`
}

// IndexedEndpoint additionally carries an index, used by artifact
// bindings (SAML2Artifact.EndpointIndex) to select a specific
// endpoint to call back.
type IndexedEndpoint struct {
	Binding          string `xml:"Binding,attr"`
	Location         string `xml:"Location,attr"`
	ResponseLocation string `xml:"ResponseLocation,attr,omitempty"`
	Index            int    `xml:"index,attr"`
	IsDefault        *bool  `xml:"isDefault,attr"`
}

// RequestedAuthnContext carries the requested authentication context
// class references for an AuthnRequest.
type RequestedAuthnContext struct {
	Comparison              string   `xml:"Comparison,attr,omitempty"`
	AuthnContextClassRefs   []string `xml:"urn:oasis:names:tc:SAML:2.0:assertion AuthnContextClassRef"`
}

// Duration is a thin alias so metadata cacheDuration attributes
// (xsd:duration) round-trip through encoding/xml as a Go duration.
type Duration time.Duration

// EntityIDSourceID returns sha1(entityID), the default SAML2Artifact
// SourceID for an entity that does not publish an explicit SourceID
// extension.
func EntityIDSourceID(entityID string) [20]byte {
	return sha1.Sum([]byte(entityID)) //nolint:gosec
}

// None of the role types above carry an explicit <SourceID> metadata
// extension overriding the sha1(entityID) default, so artifact lookups
// always use EntityIDSourceID.
