package saml

import (
	"bytes"
	"compress/flate"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // SHA-1 digest over bytes is part of the wire contract (source IDs, legacy digest alg), not a security-sensitive signature choice here.
	"crypto/sha256"
	"crypto/x509"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/beevik/etree"
	xrv "github.com/mattermost/xml-roundtrip-validator"
	dsig "github.com/russellhaering/goxmldsig"
)

// XmlSecurityProvider is the opaque collaborator everything about XML
// parsing, canonicalization, and signature cryptography is delegated
// to. The default implementation wraps beevik/etree (DOM) and
// russellhaering/goxmldsig (signing and validation), the same pairing
// dexidp-dex's SAML connector uses.
type XmlSecurityProvider interface {
	// ParseDocument parses raw bytes into a DOM tree, validating
	// against malformed/ambiguous XML first via xml-roundtrip-validator.
	ParseDocument(data []byte) (*etree.Document, error)

	// Marshal renders a Go SAML message struct to a DOM tree.
	Marshal(v interface{}) (*etree.Document, error)

	// Unmarshal populates a Go SAML message struct from a DOM tree.
	Unmarshal(doc *etree.Document, v interface{}) error

	// Serialize renders a DOM tree to bytes.
	Serialize(doc *etree.Document) ([]byte, error)

	// SignElement signs root in place using key/cert, returning the
	// signed element.
	SignElement(root *etree.Element, key crypto.Signer, cert *x509.Certificate) (*etree.Element, error)

	// VerifyElement validates any embedded XML Signature on root
	// against the supplied candidate certificates, returning the
	// element with signature-related wrapper nodes stripped.
	VerifyElement(root *etree.Element, candidates []*x509.Certificate) (*etree.Element, error)

	// SignDetached produces a raw (non-enveloped) signature over an
	// arbitrary byte string, used by Redirect and SimpleSign.
	SignDetached(data []byte, key crypto.Signer, sigAlg string) ([]byte, error)

	// VerifyDetached checks a raw signature over a byte string against
	// candidate certificates.
	VerifyDetached(data, signature []byte, sigAlg string, candidates []*x509.Certificate) error

	Deflate(data []byte) ([]byte, error)
	Inflate(data []byte) ([]byte, error)

	SHA1(data []byte) [20]byte
}

// DefaultXmlSecurityProvider is the etree/goxmldsig-backed
// implementation used everywhere in this module unless a caller
// substitutes their own (e.g. an HSM-backed signer).
type DefaultXmlSecurityProvider struct{}

var _ XmlSecurityProvider = DefaultXmlSecurityProvider{}

func (DefaultXmlSecurityProvider) ParseDocument(data []byte) (*etree.Document, error) {
	if err := xrv.Validate(bytes.NewReader(data)); err != nil {
		return nil, NewBindingError(BindingMalformed, "untrusted XML failed round-trip validation", err)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, NewBindingError(BindingMalformed, "parsing XML document", err)
	}
	return doc, nil
}

func (DefaultXmlSecurityProvider) Marshal(v interface{}) (*etree.Document, error) {
	out, err := xml.Marshal(v)
	if err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(out); err != nil {
		return nil, err
	}
	return doc, nil
}

func (DefaultXmlSecurityProvider) Unmarshal(doc *etree.Document, v interface{}) error {
	data, err := doc.WriteToBytes()
	if err != nil {
		return err
	}
	return xml.Unmarshal(data, v)
}

func (DefaultXmlSecurityProvider) Serialize(doc *etree.Document) ([]byte, error) {
	return doc.WriteToBytes()
}

// rsaKeyStore adapts a crypto.Signer + certificate pair into
// goxmldsig's dsig.X509KeyStore, which (per the vendored copy in the
// pack) expects an *rsa.PrivateKey directly. SAML signing keys are
// overwhelmingly RSA in practice; non-RSA signers fail fast here
// rather than being silently mishandled.
type rsaKeyStore struct {
	key  crypto.Signer
	cert *x509.Certificate
}

func (s rsaKeyStore) GetKeyPair() (*rsa.PrivateKey, []byte, error) {
	rsaKey, ok := s.key.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("saml: XML enveloped signing requires an RSA private key, got %T", s.key)
	}
	return rsaKey, s.cert.Raw, nil
}

// certStore adapts a flat list of candidate certificates into
// goxmldsig's dsig.X509CertificateStore, mirroring the pattern
// dexidp-dex's connector/saml/saml.go uses for the same purpose.
type certStore struct {
	certs []*x509.Certificate
}

func (c certStore) Certificates() ([]*x509.Certificate, error) {
	return c.certs, nil
}

func (DefaultXmlSecurityProvider) SignElement(root *etree.Element, key crypto.Signer, cert *x509.Certificate) (*etree.Element, error) {
	ctx := dsig.NewDefaultSigningContext(rsaKeyStore{key: key, cert: cert})
	signed, err := ctx.SignEnveloped(root)
	if err != nil {
		return nil, NewBindingError(BindingTransportFailed, "signing XML element", err)
	}
	return signed, nil
}

func (DefaultXmlSecurityProvider) VerifyElement(root *etree.Element, candidates []*x509.Certificate) (*etree.Element, error) {
	validator := dsig.NewDefaultValidationContext(certStore{certs: candidates})
	result, err := validator.Validate(root)
	if err != nil {
		return nil, NewSecurityPolicyError(SecurityPolicyBadSignature, "SignatureRule", err.Error())
	}
	return result, nil
}

// hashForAlg maps a SAML SigAlg URI to the digest it implies, and
// returns the digest of data under that algorithm.
func hashForAlg(sigAlg string, data []byte) ([]byte, crypto.Hash, error) {
	switch sigAlg {
	case SignatureAlgRSASHA256:
		sum := sha256.Sum256(data)
		return sum[:], crypto.SHA256, nil
	case SignatureAlgRSASHA1, "":
		sum := sha1.Sum(data) //nolint:gosec // RSA-SHA1 is a supported fallback alg when SHA-256 is unavailable.
		return sum[:], crypto.SHA1, nil
	default:
		return nil, 0, fmt.Errorf("saml: unsupported signature algorithm %q", sigAlg)
	}
}

func (DefaultXmlSecurityProvider) SignDetached(data []byte, key crypto.Signer, sigAlg string) ([]byte, error) {
	hashed, hash, err := hashForAlg(sigAlg, data)
	if err != nil {
		return nil, NewBindingError(BindingMalformed, "computing detached signature", err)
	}
	sig, err := key.Sign(rand.Reader, hashed, hash)
	if err != nil {
		return nil, NewBindingError(BindingTransportFailed, "computing detached signature", err)
	}
	return sig, nil
}

func (DefaultXmlSecurityProvider) VerifyDetached(data, signature []byte, sigAlg string, candidates []*x509.Certificate) error {
	hashed, hash, err := hashForAlg(sigAlg, data)
	if err != nil {
		return NewBindingError(BindingMalformed, "verifying detached signature", err)
	}
	var lastErr error
	for _, cert := range candidates {
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			lastErr = fmt.Errorf("saml: candidate certificate has non-RSA public key %T", cert.PublicKey)
			continue
		}
		if err := rsa.VerifyPKCS1v15(pub, hash, hashed, signature); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no candidate certificates supplied")
	}
	return NewSecurityPolicyError(SecurityPolicyBadSignature, "SignatureRule", lastErr.Error())
}

func (DefaultXmlSecurityProvider) Deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (DefaultXmlSecurityProvider) Inflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, NewBindingError(BindingMalformed, "inflating DEFLATE-encoded message", err)
	}
	return out, nil
}

func (DefaultXmlSecurityProvider) SHA1(data []byte) [20]byte {
	return sha1.Sum(data) //nolint:gosec
}
