package saml

import "encoding/xml"

// The types below are a minimal typed rendering of the XML-DSig
// Signature element, just enough for encoding/xml to embed it inside
// a SAML message and for signature.go to marshal/unmarshal it to the
// etree representation goxmldsig actually operates on. Grounded on
// crewjam/saml's own xmldsig.go, since goxmldsig itself works purely
// at the *etree.Element level (see dexidp-dex's vendored
// validate.go) and does not export struct types for embedding.

type Signature struct {
	XMLName        xml.Name       `xml:"http://www.w3.org/2000/09/xmldsig# Signature"`
	SignedInfo     SignedInfo     `xml:"SignedInfo"`
	SignatureValue SignatureValue `xml:"SignatureValue"`
	KeyInfo        *KeyInfo       `xml:"KeyInfo,omitempty"`
}

type SignedInfo struct {
	CanonicalizationMethod Method      `xml:"CanonicalizationMethod"`
	SignatureMethod        Method      `xml:"SignatureMethod"`
	References             []Reference `xml:"Reference"`
}

type Method struct {
	Algorithm string `xml:"Algorithm,attr"`
}

type Reference struct {
	URI          string      `xml:"URI,attr"`
	Transforms   []Transform `xml:"Transforms>Transform"`
	DigestMethod Method      `xml:"DigestMethod"`
	DigestValue  string      `xml:"DigestValue"`
}

type Transform struct {
	Algorithm string `xml:"Algorithm,attr"`
}

type SignatureValue struct {
	Value string `xml:",chardata"`
}

// Signature algorithm URIs.
const (
	SignatureAlgRSASHA1   = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	SignatureAlgRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	DigestAlgSHA1         = "http://www.w3.org/2000/09/xmldsig#sha1"
	DigestAlgSHA256       = "http://www.w3.org/2001/04/xmlenc#sha256"

	CanonicalizationAlgExclusiveC14N = "http://www.w3.org/2001/10/xml-exc-c14n#"
)
