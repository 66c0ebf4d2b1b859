package saml

import (
	"encoding/xml"
	"time"
)

// Issuer identifies the entity that created a SAML message or
// assertion. It appears, with the same shape, at the top of every
// protocol message and every assertion.
type Issuer struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
	Format  string   `xml:"Format,attr,omitempty"`
	Value   string   `xml:",chardata"`
}

// NewIssuer builds an Issuer carrying entityID with the conventional
// entity-format.
func NewIssuer(entityID string) *Issuer {
	return &Issuer{Format: "urn:oasis:names:tc:SAML:2.0:nameid-format:entity", Value: entityID}
}

// NameID identifies a subject.
type NameID struct {
	XMLName         xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:assertion NameID"`
	Format          string   `xml:"Format,attr,omitempty"`
	NameQualifier   string   `xml:"NameQualifier,attr,omitempty"`
	SPNameQualifier string   `xml:"SPNameQualifier,attr,omitempty"`
	Value           string   `xml:",chardata"`
}

// Subject names the party the assertion is about and optionally how
// that identification was confirmed.
type Subject struct {
	XMLName              xml.Name              `xml:"urn:oasis:names:tc:SAML:2.0:assertion Subject"`
	NameID               *NameID               `xml:"NameID,omitempty"`
	SubjectConfirmations []SubjectConfirmation `xml:"SubjectConfirmation,omitempty"`
}

type SubjectConfirmation struct {
	Method                  string                   `xml:"Method,attr"`
	SubjectConfirmationData *SubjectConfirmationData `xml:"SubjectConfirmationData,omitempty"`
}

type SubjectConfirmationData struct {
	Address      string     `xml:"Address,attr,omitempty"`
	InResponseTo string     `xml:"InResponseTo,attr,omitempty"`
	NotBefore    *time.Time `xml:"NotBefore,attr,omitempty"`
	NotOnOrAfter *time.Time `xml:"NotOnOrAfter,attr,omitempty"`
	Recipient    string     `xml:"Recipient,attr,omitempty"`
}

// Conditions bounds an assertion's validity window and the audiences
// it may be consumed by. A nil *Conditions is valid and means "no
// conditions to enforce" — see the routing-rule Open Question in
// DESIGN.md: the original C++ code dereferenced this unconditionally.
type Conditions struct {
	NotBefore           *time.Time           `xml:"NotBefore,attr,omitempty"`
	NotOnOrAfter        *time.Time           `xml:"NotOnOrAfter,attr,omitempty"`
	AudienceRestrictions []AudienceRestriction `xml:"AudienceRestriction,omitempty"`
}

type AudienceRestriction struct {
	Audiences []Audience `xml:"Audience"`
}

type Audience struct {
	Value string `xml:",chardata"`
}

// Valid reports whether c permits use at instant now for the given
// audience. A nil Conditions is always valid.
func (c *Conditions) Valid(now time.Time, audience string) bool {
	if c == nil {
		return true
	}
	if c.NotBefore != nil && now.Before(*c.NotBefore) {
		return false
	}
	if c.NotOnOrAfter != nil && !now.Before(*c.NotOnOrAfter) {
		return false
	}
	if len(c.AudienceRestrictions) == 0 {
		return true
	}
	for _, ar := range c.AudienceRestrictions {
		for _, a := range ar.Audiences {
			if a.Value == audience {
				return true
			}
		}
	}
	return false
}

type AuthnStatement struct {
	AuthnInstant        time.Time  `xml:"AuthnInstant,attr"`
	SessionIndex        string     `xml:"SessionIndex,attr,omitempty"`
	SessionNotOnOrAfter *time.Time `xml:"SessionNotOnOrAfter,attr,omitempty"`
	AuthnContext        AuthnContext `xml:"AuthnContext"`
}

type AuthnContext struct {
	AuthnContextClassRef string `xml:"AuthnContextClassRef,omitempty"`
}

type AttributeStatement struct {
	Attributes []Attribute `xml:"Attribute"`
}

type Attribute struct {
	Name            string           `xml:"Name,attr"`
	NameFormat      string           `xml:"NameFormat,attr,omitempty"`
	FriendlyName    string           `xml:"FriendlyName,attr,omitempty"`
	Values          []AttributeValue `xml:"AttributeValue"`
}

type AttributeValue struct {
	Type  string `xml:"http://www.w3.org/2001/XMLSchema-instance type,attr,omitempty"`
	Value string `xml:",chardata"`
}

// Assertion is a signed statement about a subject issued by an IdP.
type Assertion struct {
	XMLName            xml.Name             `xml:"urn:oasis:names:tc:SAML:2.0:assertion Assertion"`
	ID                  string               `xml:"ID,attr"`
	IssueInstant        time.Time            `xml:"IssueInstant,attr"`
	Version             string               `xml:"Version,attr"`
	Issuer               Issuer               `xml:"Issuer"`
	Signature           *Signature      `xml:"Signature,omitempty"`
	Subject             *Subject             `xml:"Subject,omitempty"`
	Conditions          *Conditions          `xml:"Conditions,omitempty"`
	AuthnStatements     []AuthnStatement     `xml:"AuthnStatement,omitempty"`
	AttributeStatements []AttributeStatement `xml:"AttributeStatement,omitempty"`
}

// GetIssuer satisfies the thin accessor surface expected of
// every SAML object.
func (a *Assertion) GetIssuer() string    { return a.Issuer.Value }
func (a *Assertion) GetID() string        { return a.ID }
func (a *Assertion) GetIssueInstant() time.Time { return a.IssueInstant }
