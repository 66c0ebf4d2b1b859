package saml

import (
	"encoding/xml"
	"time"
)

// SAML 1.1 uses different element/attribute names than 2.0 but the
// same overall shape (ResponseID/AssertionID instead of an ID
// attribute straight on the element, a bare Recipient instead of
// Destination, TARGET instead of RelayState at the binding layer).

type Saml1Status struct {
	StatusCode Saml1StatusCode `xml:"StatusCode"`
}

type Saml1StatusCode struct {
	Value string `xml:"Value,attr"`
}

const (
	Saml1StatusSuccess = "samlp:Success"
)

// Saml1Request is the common shape of a SAML 1.x request.
type Saml1Request struct {
	RequestID    string    `xml:"RequestID,attr"`
	MajorVersion int       `xml:"MajorVersion,attr"`
	MinorVersion int       `xml:"MinorVersion,attr"`
	IssueInstant time.Time `xml:"IssueInstant,attr"`
}

func (r *Saml1Request) MessageID() string         { return r.RequestID }
func (r *Saml1Request) GetIssueInstant() time.Time { return r.IssueInstant }

// Saml1Response is the common shape of a SAML 1.x response; note
// SAML 1.x carries the destination as "Recipient" rather than
// "Destination" and has no top-level Issuer (the issuer is inferred
// from the enclosed assertion(s)).
type Saml1Response struct {
	XMLName      xml.Name        `xml:"urn:oasis:names:tc:SAML:1.0:protocol Response"`
	ResponseID   string          `xml:"ResponseID,attr"`
	InResponseTo string          `xml:"InResponseTo,attr,omitempty"`
	MajorVersion int             `xml:"MajorVersion,attr"`
	MinorVersion int             `xml:"MinorVersion,attr"`
	IssueInstant time.Time       `xml:"IssueInstant,attr"`
	Recipient    string          `xml:"Recipient,attr,omitempty"`
	Signature    *Signature `xml:"Signature,omitempty"`
	Status       Saml1Status     `xml:"Status"`

	Assertions []Saml1Assertion `xml:"Assertion,omitempty"`
}

func (r *Saml1Response) MessageID() string             { return r.ResponseID }
func (r *Saml1Response) GetIssueInstant() time.Time     { return r.IssueInstant }
func (r *Saml1Response) GetDestination() string         { return r.Recipient }
func (r *Saml1Response) SetDestination(d string)        { r.Recipient = d }
func (r *Saml1Response) GetSignature() *Signature  { return r.Signature }
func (r *Saml1Response) SetSignature(s *Signature)  { r.Signature = s }

// GetIssuer on a SAML 1.x response walks its first assertion, which is
// where the issuer actually lives in this protocol generation.
func (r *Saml1Response) GetIssuer() string {
	if len(r.Assertions) == 0 {
		return ""
	}
	return r.Assertions[0].Issuer
}

// Saml1Assertion is a minimal SAML 1.1 assertion: enough to carry an
// issuer, ID, validity window, and an authentication statement.
type Saml1Assertion struct {
	XMLName      xml.Name   `xml:"urn:oasis:names:tc:SAML:1.0:assertion Assertion"`
	AssertionID  string     `xml:"AssertionID,attr"`
	Issuer       string     `xml:"Issuer,attr"`
	IssueInstant time.Time  `xml:"IssueInstant,attr"`
	MajorVersion int        `xml:"MajorVersion,attr"`
	MinorVersion int        `xml:"MinorVersion,attr"`

	Conditions *Saml1Conditions `xml:"Conditions,omitempty"`
}

type Saml1Conditions struct {
	NotBefore    *time.Time `xml:"NotBefore,attr,omitempty"`
	NotOnOrAfter *time.Time `xml:"NotOnOrAfter,attr,omitempty"`
}

// Saml1AssertionArtifact is the SAML 1.x request payload for the
// artifact-01 profile's back-channel resolution call.
type Saml1AssertionArtifact struct {
	XMLName  xml.Name `xml:"urn:oasis:names:tc:SAML:1.0:protocol Request"`
	Saml1Request
	AssertionArtifact string `xml:"AssertionArtifact"`
}
