package binding

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/xml"
	"io"
	"net/http"

	saml "github.com/federate-go/saml"
	"github.com/federate-go/saml/policy"
	"github.com/federate-go/saml/transport"
)

const (
	ecpNS  = "urn:oasis:names:tc:SAML:2.0:profiles:SSO:ecp"
	paosNS = "urn:liberty:paos:2003-08"

	soapActorNext = "http://schemas.xmlsoap.org/soap/actor/next"
)

// ecpResponseHeader is the SOAP header an IdP attaches to an ECP
// Response so the enhanced client knows which ACS URL to forward the
// assertion to, grounded on chriskery-sso-idp's ECPResponseEnvelope
// shape.
type ecpResponseHeader struct {
	XMLName     xml.Name        `xml:"http://schemas.xmlsoap.org/soap/envelope/ Header"`
	ECPResponse ecpResponseElem `xml:"urn:oasis:names:tc:SAML:2.0:profiles:SSO:ecp Response"`
}

type ecpResponseElem struct {
	Actor                       string `xml:"http://schemas.xmlsoap.org/soap/envelope/ actor,attr"`
	MustUnderstand              bool   `xml:"http://schemas.xmlsoap.org/soap/envelope/ mustUnderstand,attr"`
	AssertionConsumerServiceURL string `xml:"assertionConsumerServiceURL,attr"`
}

// paosRequestHeader is the paos:Request SOAP header framing an ECP
// request leg, naming the ECP profile and the URL the IdP's response
// must be POSTed back to.
type paosRequestHeader struct {
	XMLName             xml.Name `xml:"urn:liberty:paos:2003-08 Request"`
	Actor               string   `xml:"http://schemas.xmlsoap.org/soap/envelope/ actor,attr"`
	MustUnderstand      bool     `xml:"http://schemas.xmlsoap.org/soap/envelope/ mustUnderstand,attr"`
	ResponseConsumerURL string   `xml:"responseConsumerURL,attr"`
	Service             string   `xml:"service,attr"`
}

// ecpRequestHeader is the ecp:Request SOAP header carrying the
// requesting SP's own AuthnRequest metadata for the enhanced client
// (and ultimately the IdP) to act on: passivity, the display name to
// show the user, the requester's identity, and any IDPList scoping.
type ecpRequestHeader struct {
	XMLName        xml.Name     `xml:"urn:oasis:names:tc:SAML:2.0:profiles:SSO:ecp Request"`
	Actor          string       `xml:"http://schemas.xmlsoap.org/soap/envelope/ actor,attr"`
	MustUnderstand bool         `xml:"http://schemas.xmlsoap.org/soap/envelope/ mustUnderstand,attr"`
	IsPassive      bool         `xml:"IsPassive,attr,omitempty"`
	ProviderName   string       `xml:"ProviderName,attr,omitempty"`
	Issuer         saml.Issuer
	IDPList        *saml.IDPList `xml:"urn:oasis:names:tc:SAML:2.0:protocol IDPList,omitempty"`
}

// ecpRequestHeaders builds the paos:Request/ecp:Request header pair
// PostPAOS attaches to the outbound AuthnRequest, concatenating their
// serialized forms for wrapSOAP's header argument (a SOAP Header may
// carry more than one top-level child).
func ecpRequestHeaders(authnRequest *saml.AuthnRequest) ([]byte, error) {
	paosHeader := paosRequestHeader{
		Actor:               soapActorNext,
		MustUnderstand:      true,
		ResponseConsumerURL: authnRequest.AssertionConsumerServiceURL,
		Service:             ecpNS,
	}
	paosBytes, err := xml.Marshal(paosHeader)
	if err != nil {
		return nil, saml.NewBindingError(saml.BindingMalformed, "encoding paos:Request header", err)
	}

	ecpHeader := ecpRequestHeader{
		Actor:          soapActorNext,
		MustUnderstand: true,
		ProviderName:   authnRequest.ProviderName,
		Issuer:         authnRequest.Issuer,
	}
	if authnRequest.IsPassive != nil {
		ecpHeader.IsPassive = *authnRequest.IsPassive
	}
	if authnRequest.Scoping != nil && authnRequest.Scoping.IDPList != nil {
		ecpHeader.IDPList = authnRequest.Scoping.IDPList
	}
	ecpBytes, err := xml.Marshal(ecpHeader)
	if err != nil {
		return nil, saml.NewBindingError(saml.BindingMalformed, "encoding ecp:Request header", err)
	}

	return append(paosBytes, ecpBytes...), nil
}

// ECPBinding implements the ECP/PAOS profile: the same SOAP framing
// as HTTP-Artifact's back channel, but fronted by an enhanced client
// that proxies between the SP's PAOS request and the IdP's SOAP
// response, so there is no HTTP redirect step at all.
type ECPBinding struct {
	Provider saml.XmlSecurityProvider
}

func NewECPBinding() *ECPBinding {
	return &ECPBinding{Provider: saml.DefaultXmlSecurityProvider{}}
}

func (ECPBinding) Binding() string { return saml.PAOSBinding }

// EncodeResponse wraps authnResponse in a SOAP envelope carrying the ecp:Response
// header that names acsURL, the way an IdP replies to an ECP-initiated
// AuthnRequest.
func (b *ECPBinding) EncodeResponse(respWriter transport.TransportResponse, authnResponse *saml.Response, acsURL string, signer crypto.Signer, cert *x509.Certificate) error {
	if authnResponse.GetDestination() == "" {
		return saml.NewBindingError(saml.BindingMissingDestination, "ECP Response requires a Destination", nil)
	}

	raw, err := marshalSigned(b.Provider, authnResponse, signer, cert)
	if err != nil {
		return err
	}

	header := ecpResponseHeader{
		ECPResponse: ecpResponseElem{
			Actor:                       "http://schemas.xmlsoap.org/soap/actor/next",
			MustUnderstand:              true,
			AssertionConsumerServiceURL: acsURL,
		},
	}
	headerBytes, err := xml.Marshal(header)
	if err != nil {
		return saml.NewBindingError(saml.BindingMalformed, "encoding ECP response header", err)
	}

	envelope, err := wrapSOAP(raw, headerBytes)
	if err != nil {
		return err
	}
	respWriter.SetContentType("application/vnd.paos+xml")
	return respWriter.SendResponse(envelope)
}

// DecodeResponse unwraps an ECP Response envelope the IdP sent back to
// an enhanced client, returning the embedded saml.Response and the
// ACS URL the header named so the client can verify it matches the
// AuthnRequest it sent.
func (b *ECPBinding) DecodeResponse(raw []byte) (*policy.MessageContext, string, error) {
	body, headerRaw, err := unwrapSOAP(raw)
	if err != nil {
		return nil, "", err
	}

	acsURL := ""
	if headerRaw != nil {
		var header ecpResponseHeader
		if xml.Unmarshal(headerRaw, &header) == nil {
			acsURL = header.ECPResponse.AssertionConsumerServiceURL
		}
	}

	doc, err := b.Provider.ParseDocument(body)
	if err != nil {
		return nil, "", err
	}
	resp := &saml.Response{}
	if err := b.Provider.Unmarshal(doc, resp); err != nil {
		return nil, "", saml.NewBindingError(saml.BindingMalformed, "unmarshaling ECP Response", err)
	}

	return &policy.MessageContext{Message: resp, Root: doc.Root()}, acsURL, nil
}

// PostPAOS issues an AuthnRequest to an ECP-aware IdP endpoint,
// framed as a PAOS request (Accept/Content-Type application/vnd.paos+xml
// instead of a browser redirect), and returns the raw SOAP response
// body for DecodeResponse.
func (b *ECPBinding) PostPAOS(client *http.Client, destination string, authnRequest *saml.AuthnRequest, signer crypto.Signer, cert *x509.Certificate) ([]byte, error) {
	if authnRequest.AssertionConsumerServiceURL == "" {
		return nil, saml.NewBindingError(saml.BindingMalformed, "ECP AuthnRequest requires AssertionConsumerServiceURL", nil)
	}

	raw, err := marshalSigned(b.Provider, authnRequest, signer, cert)
	if err != nil {
		return nil, err
	}

	headerBytes, err := ecpRequestHeaders(authnRequest)
	if err != nil {
		return nil, err
	}

	envelope, err := wrapSOAP(raw, headerBytes)
	if err != nil {
		return nil, err
	}

	if client == nil {
		client = http.DefaultClient
	}
	httpReq, err := http.NewRequest(http.MethodPost, destination, bytes.NewReader(envelope))
	if err != nil {
		return nil, saml.NewBindingError(saml.BindingTransportFailed, "building PAOS request", err)
	}
	httpReq.Header.Set("Content-Type", "application/vnd.paos+xml")
	httpReq.Header.Set("Accept", "application/vnd.paos+xml")
	httpReq.Header.Set("PAOS", `ver="urn:liberty:paos:2003-08";"`+ecpNS+`"`)

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, saml.NewBindingError(saml.BindingTransportFailed, "issuing PAOS request", err)
	}
	defer httpResp.Body.Close()
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, saml.NewBindingError(saml.BindingTransportFailed, "reading PAOS response", err)
	}
	return body, nil
}
