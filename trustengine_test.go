package saml

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTrustTestSigner(t *testing.T) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "trust-engine-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return key, cert
}

func roleWithCert(cert *x509.Certificate) *RoleDescriptor {
	return &RoleDescriptor{
		ProtocolSupportEnumeration: SAML2ProtocolURI,
		KeyDescriptors: []KeyDescriptor{
			{
				Use: "signing",
				KeyInfo: KeyInfo{
					X509Data: X509Data{
						X509Certificates: []X509Certificate{
							{Data: base64.StdEncoding.EncodeToString(cert.Raw)},
						},
					},
				},
			},
		},
	}
}

func TestExplicitKeyTrustEngineValidateXMLSignature(t *testing.T) {
	key, cert := generateTrustTestSigner(t)
	provider := DefaultXmlSecurityProvider{}

	doc := etree.NewDocument()
	root := doc.CreateElement("Response")
	root.CreateAttr("xmlns", "urn:oasis:names:tc:SAML:2.0:protocol")
	signed, err := provider.SignElement(root, key, cert)
	require.NoError(t, err)

	engine := NewExplicitKeyTrustEngine()
	_, err = engine.ValidateXMLSignature(signed, roleWithCert(cert))
	assert.NoError(t, err)
}

func TestExplicitKeyTrustEngineRejectsWrongCert(t *testing.T) {
	key, cert := generateTrustTestSigner(t)
	_, otherCert := generateTrustTestSigner(t)
	provider := DefaultXmlSecurityProvider{}

	doc := etree.NewDocument()
	root := doc.CreateElement("Response")
	root.CreateAttr("xmlns", "urn:oasis:names:tc:SAML:2.0:protocol")
	signed, err := provider.SignElement(root, key, cert)
	require.NoError(t, err)

	engine := NewExplicitKeyTrustEngine()
	_, err = engine.ValidateXMLSignature(signed, roleWithCert(otherCert))
	assert.Error(t, err)
}

func TestExplicitKeyTrustEngineRejectsNoSigningKeys(t *testing.T) {
	_, cert := generateTrustTestSigner(t)
	provider := DefaultXmlSecurityProvider{}

	doc := etree.NewDocument()
	root := doc.CreateElement("Response")
	root.CreateAttr("xmlns", "urn:oasis:names:tc:SAML:2.0:protocol")

	engine := NewExplicitKeyTrustEngine()
	role := &RoleDescriptor{ProtocolSupportEnumeration: SAML2ProtocolURI}
	_, err := engine.ValidateXMLSignature(root, role)
	require.Error(t, err)
	_ = cert
}

func TestExplicitKeyTrustEngineValidateDetachedSignature(t *testing.T) {
	key, cert := generateTrustTestSigner(t)
	provider := DefaultXmlSecurityProvider{}

	data := []byte("SAMLRequest=abc&RelayState=xyz&SigAlg=" + SignatureAlgRSASHA256)
	sig, err := provider.SignDetached(data, key, SignatureAlgRSASHA256)
	require.NoError(t, err)

	engine := NewExplicitKeyTrustEngine()
	err = engine.ValidateDetachedSignature(data, sig, SignatureAlgRSASHA256, roleWithCert(cert))
	assert.NoError(t, err)
}

func TestExplicitKeyTrustEngineRejectsTamperedDetachedSignature(t *testing.T) {
	key, cert := generateTrustTestSigner(t)
	provider := DefaultXmlSecurityProvider{}

	data := []byte("SAMLRequest=abc&RelayState=xyz&SigAlg=" + SignatureAlgRSASHA256)
	sig, err := provider.SignDetached(data, key, SignatureAlgRSASHA256)
	require.NoError(t, err)

	engine := NewExplicitKeyTrustEngine()
	err = engine.ValidateDetachedSignature([]byte("tampered"), sig, SignatureAlgRSASHA256, roleWithCert(cert))
	assert.Error(t, err)
}

// alwaysFailTrustEngine never validates anything; it stands in for a
// misconfigured or unreachable trust source ahead of a working one in
// a chain.
type alwaysFailTrustEngine struct{}

func (alwaysFailTrustEngine) ValidateXMLSignature(*etree.Element, *RoleDescriptor) (*etree.Element, error) {
	return nil, NewSecurityPolicyError(SecurityPolicyBadSignature, "SignatureRule", "always fails")
}

func (alwaysFailTrustEngine) ValidateDetachedSignature([]byte, []byte, string, *RoleDescriptor) error {
	return NewSecurityPolicyError(SecurityPolicyBadSignature, "SignatureRule", "always fails")
}

func TestChainingTrustEngineFallsThroughToWorkingEngine(t *testing.T) {
	key, cert := generateTrustTestSigner(t)
	provider := DefaultXmlSecurityProvider{}

	doc := etree.NewDocument()
	root := doc.CreateElement("Response")
	root.CreateAttr("xmlns", "urn:oasis:names:tc:SAML:2.0:protocol")
	signed, err := provider.SignElement(root, key, cert)
	require.NoError(t, err)

	chain := &ChainingTrustEngine{Engines: []TrustEngine{
		alwaysFailTrustEngine{},
		NewExplicitKeyTrustEngine(),
	}}

	result, err := chain.ValidateXMLSignature(signed, roleWithCert(cert))
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestChainingTrustEngineFailsWhenAllEnginesFail(t *testing.T) {
	_, cert := generateTrustTestSigner(t)
	chain := &ChainingTrustEngine{Engines: []TrustEngine{alwaysFailTrustEngine{}, alwaysFailTrustEngine{}}}

	err := chain.ValidateDetachedSignature([]byte("data"), []byte("sig"), SignatureAlgRSASHA256, roleWithCert(cert))
	assert.Error(t, err)
}
