package saml

import (
	"encoding/xml"
	"time"
)

// Message is the thin typed accessor surface every SAML 2.0 protocol
// message implements, in place of a full XML object/builder
// hierarchy; the binding engine and security-policy pipeline only
// ever touch messages through it.
type Message interface {
	GetIssuer() string
	MessageID() string
	GetIssueInstant() time.Time
	GetDestination() string
	SetDestination(string)
	GetSignature() *Signature
	SetSignature(*Signature)
}

// RequestAbstractType holds the fields common to every SAML 2.0
// request (AuthnRequest, LogoutRequest, ArtifactResolve, ...).
type RequestAbstractType struct {
	ID           string          `xml:"ID,attr"`
	Version      string          `xml:"Version,attr"`
	IssueInstant time.Time       `xml:"IssueInstant,attr"`
	Destination  string          `xml:"Destination,attr,omitempty"`
	Consent      string          `xml:"Consent,attr,omitempty"`
	Issuer       Issuer          `xml:"Issuer"`
	Signature    *Signature `xml:"Signature,omitempty"`
}

func (r *RequestAbstractType) MessageID() string             { return r.ID }
func (r *RequestAbstractType) GetIssuer() string              { return r.Issuer.Value }
func (r *RequestAbstractType) GetIssueInstant() time.Time     { return r.IssueInstant }
func (r *RequestAbstractType) GetDestination() string         { return r.Destination }
func (r *RequestAbstractType) SetDestination(d string)        { r.Destination = d }
func (r *RequestAbstractType) GetSignature() *Signature  { return r.Signature }
func (r *RequestAbstractType) SetSignature(s *Signature) { r.Signature = s }

// StatusResponseType holds the fields common to every SAML 2.0
// response (Response, LogoutResponse, ArtifactResponse, ...).
type StatusResponseType struct {
	ID           string          `xml:"ID,attr"`
	InResponseTo string          `xml:"InResponseTo,attr,omitempty"`
	Version      string          `xml:"Version,attr"`
	IssueInstant time.Time       `xml:"IssueInstant,attr"`
	Destination  string          `xml:"Destination,attr,omitempty"`
	Consent      string          `xml:"Consent,attr,omitempty"`
	Issuer       Issuer          `xml:"Issuer"`
	Signature    *Signature `xml:"Signature,omitempty"`
	Status       Status          `xml:"Status"`
}

func (r *StatusResponseType) MessageID() string             { return r.ID }
func (r *StatusResponseType) GetIssuer() string              { return r.Issuer.Value }
func (r *StatusResponseType) GetIssueInstant() time.Time     { return r.IssueInstant }
func (r *StatusResponseType) GetDestination() string         { return r.Destination }
func (r *StatusResponseType) SetDestination(d string)        { r.Destination = d }
func (r *StatusResponseType) GetSignature() *Signature  { return r.Signature }
func (r *StatusResponseType) SetSignature(s *Signature) { r.Signature = s }

// Status and StatusCode report the outcome of processing a request.
type Status struct {
	StatusCode    StatusCode     `xml:"StatusCode"`
	StatusMessage string         `xml:"StatusMessage,omitempty"`
}

type StatusCode struct {
	Value      string       `xml:"Value,attr"`
	StatusCode *StatusCode  `xml:"StatusCode,omitempty"`
}

const (
	StatusSuccess        = "urn:oasis:names:tc:SAML:2.0:status:Success"
	StatusRequester      = "urn:oasis:names:tc:SAML:2.0:status:Requester"
	StatusResponder      = "urn:oasis:names:tc:SAML:2.0:status:Responder"
	StatusVersionMismatch = "urn:oasis:names:tc:SAML:2.0:status:VersionMismatch"
)

// NameIDPolicy lets an SP constrain the format/qualifier of the NameID
// an IdP should mint.
type NameIDPolicy struct {
	Format          *string `xml:"Format,attr,omitempty"`
	SPNameQualifier *string `xml:"SPNameQualifier,attr,omitempty"`
	AllowCreate     *bool   `xml:"AllowCreate,attr,omitempty"`
}

// IDPEntry/IDPList/Scoping let an SP suggest candidate IdPs to a proxy,
// consumed by the ECP encoder.
type IDPEntry struct {
	ProviderID string `xml:"ProviderID,attr"`
	Name       string `xml:"Name,attr,omitempty"`
	Loc        string `xml:"Loc,attr,omitempty"`
}

type IDPList struct {
	IDPEntries    []IDPEntry `xml:"IDPEntry"`
	GetComplete   string     `xml:"GetComplete,omitempty"`
}

type Scoping struct {
	ProxyCount *int     `xml:"ProxyCount,attr,omitempty"`
	IDPList    *IDPList `xml:"IDPList,omitempty"`
}

// AuthnRequest is sent by an SP to request an assertion about the
// current user from an IdP.
type AuthnRequest struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:protocol AuthnRequest"`
	RequestAbstractType

	ForceAuthn                      *bool                  `xml:"ForceAuthn,attr,omitempty"`
	IsPassive                       *bool                  `xml:"IsPassive,attr,omitempty"`
	ProtocolBinding                 string                 `xml:"ProtocolBinding,attr,omitempty"`
	AssertionConsumerServiceIndex   *int                   `xml:"AssertionConsumerServiceIndex,attr,omitempty"`
	AssertionConsumerServiceURL     string                 `xml:"AssertionConsumerServiceURL,attr,omitempty"`
	AttributeConsumingServiceIndex  *int                   `xml:"AttributeConsumingServiceIndex,attr,omitempty"`
	ProviderName                    string                 `xml:"ProviderName,attr,omitempty"`

	Subject               *Subject               `xml:"Subject,omitempty"`
	NameIDPolicy          *NameIDPolicy          `xml:"NameIDPolicy,omitempty"`
	Conditions            *Conditions            `xml:"Conditions,omitempty"`
	RequestedAuthnContext *RequestedAuthnContext `xml:"RequestedAuthnContext,omitempty"`
	Scoping               *Scoping               `xml:"Scoping,omitempty"`
}

// Response carries zero or more assertions back from an IdP to an SP.
type Response struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:protocol Response"`
	StatusResponseType

	Assertions []Assertion `xml:"Assertion,omitempty"`
}

// LogoutRequest and LogoutResponse implement SAML 2.0 Single Logout.
type LogoutRequest struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:protocol LogoutRequest"`
	RequestAbstractType

	NotOnOrAfter   *time.Time `xml:"NotOnOrAfter,attr,omitempty"`
	Reason         string     `xml:"Reason,attr,omitempty"`
	NameID         *NameID    `xml:"NameID,omitempty"`
	SessionIndexes []string   `xml:"SessionIndex,omitempty"`
}

type LogoutResponse struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:protocol LogoutResponse"`
	StatusResponseType
}

// ArtifactResolve and ArtifactResponse implement the HTTP-Artifact
// binding's back-channel SOAP round trip.
type ArtifactResolve struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:protocol ArtifactResolve"`
	RequestAbstractType

	Artifact string `xml:"Artifact"`
}

type ArtifactResponse struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:protocol ArtifactResponse"`
	StatusResponseType

	// InnerXML carries whatever payload the artifact referenced
	// (typically a Response, occasionally a Request); it lets
	// callers re-parse it into the concrete type they expect without
	// the protocol engine needing a full sum type for "any SAML
	// message".
	InnerXML []byte `xml:",innerxml"`
}
