package binding

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"

	saml "github.com/federate-go/saml"
	"github.com/federate-go/saml/policy"
	"github.com/federate-go/saml/transport"
)

const soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"

// soapEnvelope is the generic wrapper every SOAP-framed message
// (artifact resolution, ECP) is carried inside, grounded on the
// ArtifactResolveEnvelope/ArtifactResponseEnvelope shape used by
// amdonov/lite-idp's SAML package.
type soapEnvelope struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Header  *soapHeader
	Body    soapBody
}

type soapHeader struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Header"`
	Inner   []byte   `xml:",innerxml"`
}

type soapBody struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Body"`
	Inner   []byte   `xml:",innerxml"`
}

// wrapSOAP wraps raw (already-serialized, possibly signed) XML in a
// SOAP envelope, with an optional header fragment (used by ECP).
func wrapSOAP(raw []byte, header []byte) ([]byte, error) {
	env := soapEnvelope{Body: soapBody{Inner: raw}}
	if header != nil {
		env.Header = &soapHeader{Inner: header}
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(env); err != nil {
		return nil, saml.NewBindingError(saml.BindingMalformed, "encoding SOAP envelope", err)
	}
	return buf.Bytes(), nil
}

// unwrapSOAP extracts the body's inner XML (and header's, if present)
// from a SOAP envelope.
func unwrapSOAP(raw []byte) (body []byte, header []byte, err error) {
	env := &soapEnvelope{}
	if decErr := xml.Unmarshal(raw, env); decErr != nil {
		return nil, nil, saml.NewBindingError(saml.BindingMalformed, "decoding SOAP envelope", decErr)
	}
	if env.Header != nil {
		header = env.Header.Inner
	}
	return env.Body.Inner, header, nil
}

// postSOAP issues raw as a SOAP-framed POST to destination and
// returns the response body.
func postSOAP(client *http.Client, destination string, raw []byte) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	httpReq, err := http.NewRequest(http.MethodPost, destination, bytes.NewReader(raw))
	if err != nil {
		return nil, saml.NewBindingError(saml.BindingTransportFailed, "building SOAP request", err)
	}
	httpReq.Header.Set("Content-Type", "text/xml")
	httpReq.Header.Set("SOAPAction", "http://www.oasis-open.org/committees/security")

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, saml.NewBindingError(saml.BindingTransportFailed, "issuing SOAP request", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, saml.NewBindingError(saml.BindingTransportFailed, "reading SOAP response", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, saml.NewBindingError(saml.BindingTransportFailed, fmt.Sprintf("unexpected SOAP response status %d", httpResp.StatusCode), nil)
	}
	return body, nil
}

// soapFault is a SOAP 1.1 <Fault>, grounded on the same Envelope/Body
// shape wrapSOAP builds for a normal payload.
type soapFault struct {
	XMLName     xml.Name `xml:"Fault"`
	FaultCode   string   `xml:"faultcode"`
	FaultString string   `xml:"faultstring"`
}

// soapFaultError carries a serialized SOAP 1.1 Fault envelope as its
// Error() string, so TransportResponse.SendError writes the fault
// body verbatim to the transport's error channel.
type soapFaultError struct {
	envelope []byte
	status   int
	cause    error
}

func (e *soapFaultError) Error() string  { return string(e.envelope) }
func (e *soapFaultError) Unwrap() error  { return e.cause }
func (e *soapFaultError) HTTPStatus() int { return e.status }

// newSOAPFaultError wraps cause as a SOAP 1.1 Fault whose faultstring
// is cause's message; faultcode is "soap:Client" for a malformed
// request, "soap:Server" otherwise.
func newSOAPFaultError(cause error) *soapFaultError {
	faultCode := "soap:Server"
	status := http.StatusInternalServerError
	if be, ok := cause.(*saml.BindingError); ok {
		if be.Kind == saml.BindingMalformed {
			faultCode = "soap:Client"
		}
		status = be.HTTPStatus()
	}

	fault := soapFault{FaultCode: faultCode, FaultString: cause.Error()}
	faultBytes, err := xml.Marshal(fault)
	if err != nil {
		// Marshaling a two-field struct of strings cannot fail; if it
		// somehow does, fall back to a body carrying the raw cause so
		// the error is not silently swallowed.
		faultBytes = []byte(cause.Error())
	}
	envelope, wrapErr := wrapSOAP(faultBytes, nil)
	if wrapErr != nil {
		envelope = faultBytes
	}
	return &soapFaultError{envelope: envelope, status: status, cause: cause}
}

// SOAPBinding implements SAML 2.0 SOAP: the same back-channel framing
// HTTP-Artifact resolution and ECP already use, exposed directly as
// an Encode/Decode pair so a host can run it standalone (e.g. a
// bare ArtifactResolve/ArtifactResponse exchange with no artifact
// indirection). Its Decode takes a *policy.SecurityPolicy, so
// SOAPBinding does not satisfy the Decoder interface.
type SOAPBinding struct {
	Provider saml.XmlSecurityProvider
}

func NewSOAPBinding() *SOAPBinding {
	return &SOAPBinding{Provider: saml.DefaultXmlSecurityProvider{}}
}

func (SOAPBinding) Binding() string { return saml.SOAPBinding }

// Encode wraps the (optionally XML-signed) message in a SOAP 1.1
// envelope and sends it with Content-Type text/xml. Any failure along
// the way is reported as a SOAP Fault through SendError rather than
// SendResponse, since a SOAP peer expects its errors framed the same
// way as its successes.
func (b *SOAPBinding) Encode(resp transport.TransportResponse, msg saml.Message, _ string, signer crypto.Signer, cert *x509.Certificate) error {
	raw, err := marshalSigned(b.Provider, msg, signer, cert)
	if err != nil {
		resp.SendError(newSOAPFaultError(err))
		return err
	}

	envelope, err := wrapSOAP(raw, nil)
	if err != nil {
		resp.SendError(newSOAPFaultError(err))
		return err
	}

	resp.SetContentType("text/xml")
	if err := resp.SendResponse(envelope); err != nil {
		wrapped := saml.NewBindingError(saml.BindingTransportFailed, "writing SOAP response", err)
		resp.SendError(newSOAPFaultError(wrapped))
		return wrapped
	}
	return nil
}

// Decode requires Content-Type text/xml and a non-empty SOAP 1.1
// envelope, then runs pol against it twice: first with Root scoped to
// the whole envelope (so an enveloping signature over the entire SOAP
// message is honored), then — after Reset(true), which keeps
// pol.Issuer/pol.IssuerMetadata but clears the per-message fields —
// again with Root narrowed to just the inner RequestAbstractType or
// StatusResponseType (the common case: the SAML payload alone is
// signed). The inner message is returned detached.
func (b *SOAPBinding) Decode(req transport.TransportRequest, pol *policy.SecurityPolicy, newMsg func() saml.Message) (*DecodeResult, error) {
	if req.ContentType() != "text/xml" {
		return nil, saml.NewBindingError(saml.BindingMalformed, "SOAP binding requires Content-Type text/xml, got "+req.ContentType(), nil)
	}
	raw, err := req.Body()
	if err != nil {
		return nil, saml.NewBindingError(saml.BindingTransportFailed, "reading SOAP request body", err)
	}
	if len(raw) == 0 {
		return nil, saml.NewBindingError(saml.BindingMalformed, "SOAP request body is empty", nil)
	}

	// unwrapSOAP unmarshals into soapEnvelope, whose XMLName is pinned
	// to the SOAP 1.1 envelope namespace, so a non-SOAP-1.1 body
	// already fails here with BindingMalformed.
	bodyRaw, _, err := unwrapSOAP(raw)
	if err != nil {
		return nil, err
	}

	envelopeDoc, err := b.Provider.ParseDocument(raw)
	if err != nil {
		return nil, err
	}

	msg, bodyRoot, err := decodeMessageDOM(b.Provider, bodyRaw, newMsg)
	if err != nil {
		return nil, err
	}

	msgCtx := &policy.MessageContext{Message: msg, Root: envelopeDoc.Root()}
	if pol != nil {
		if err := pol.Evaluate(req, msgCtx); err != nil {
			return nil, err
		}
		pol.Reset(true)
		msgCtx.Root = bodyRoot
		if err := pol.Evaluate(req, msgCtx); err != nil {
			return nil, err
		}
	} else {
		msgCtx.Root = bodyRoot
	}

	return &DecodeResult{MsgCtx: msgCtx}, nil
}
