package saml

import (
	"crypto/x509"
	"encoding/base64"

	"github.com/beevik/etree"
)

// TrustEngine is C4: it verifies a signature (embedded XML signature
// or a detached one) against the candidate credentials a role
// descriptor's KeyDescriptors advertise.
type TrustEngine interface {
	// ValidateXMLSignature verifies the enveloped <Signature> element
	// inside root against role's signing keys.
	ValidateXMLSignature(root *etree.Element, role *RoleDescriptor) (*etree.Element, error)

	// ValidateDetachedSignature verifies a raw signature over data
	// against role's signing keys.
	ValidateDetachedSignature(data, signature []byte, sigAlg string, role *RoleDescriptor) error
}

// signingCandidates extracts the X.509 certificates from a role's
// KeyDescriptors with use="signing" or no use attribute at all.
func signingCandidates(role *RoleDescriptor) ([]*x509.Certificate, error) {
	var out []*x509.Certificate
	for _, kd := range role.KeyDescriptors {
		if kd.Use != "" && kd.Use != "signing" {
			continue
		}
		for _, xc := range kd.KeyInfo.X509Data.X509Certificates {
			raw, err := base64.StdEncoding.DecodeString(collapseWhitespace(xc.Data))
			if err != nil {
				continue
			}
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				continue
			}
			out = append(out, cert)
		}
	}
	return out, nil
}

func collapseWhitespace(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\n' || c == '\r' || c == '\t' {
			continue
		}
		out = append(out, c)
	}
	return string(out)
}

// ExplicitKeyTrustEngine is the default TrustEngine: it trusts
// exactly the certificates published in the resolved role's metadata,
// delegating the actual cryptographic check to an XmlSecurityProvider
// (which wraps goxmldsig).
type ExplicitKeyTrustEngine struct {
	Provider XmlSecurityProvider
}

// NewExplicitKeyTrustEngine builds a trust engine backed by the
// default XmlSecurityProvider.
func NewExplicitKeyTrustEngine() *ExplicitKeyTrustEngine {
	return &ExplicitKeyTrustEngine{Provider: DefaultXmlSecurityProvider{}}
}

func (e *ExplicitKeyTrustEngine) ValidateXMLSignature(root *etree.Element, role *RoleDescriptor) (*etree.Element, error) {
	candidates, err := signingCandidates(role)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, NewSecurityPolicyError(SecurityPolicyNoRole, "SignatureRule", "role descriptor publishes no signing keys")
	}
	return e.Provider.VerifyElement(root, candidates)
}

func (e *ExplicitKeyTrustEngine) ValidateDetachedSignature(data, signature []byte, sigAlg string, role *RoleDescriptor) error {
	candidates, err := signingCandidates(role)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return NewSecurityPolicyError(SecurityPolicyNoRole, "SignatureRule", "role descriptor publishes no signing keys")
	}
	return e.Provider.VerifyDetached(data, signature, sigAlg, candidates)
}

// ChainingTrustEngine tries each configured engine in sequence and
// returns true (no error) on the first success.
type ChainingTrustEngine struct {
	Engines []TrustEngine
}

func (c *ChainingTrustEngine) ValidateXMLSignature(root *etree.Element, role *RoleDescriptor) (*etree.Element, error) {
	var lastErr error
	for _, engine := range c.Engines {
		result, err := engine.ValidateXMLSignature(root, role)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = NewSecurityPolicyError(SecurityPolicyBadSignature, "SignatureRule", "no trust engines configured")
	}
	return nil, lastErr
}

func (c *ChainingTrustEngine) ValidateDetachedSignature(data, signature []byte, sigAlg string, role *RoleDescriptor) error {
	var lastErr error
	for _, engine := range c.Engines {
		if err := engine.ValidateDetachedSignature(data, signature, sigAlg, role); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = NewSecurityPolicyError(SecurityPolicyBadSignature, "SignatureRule", "no trust engines configured")
	}
	return lastErr
}
