package samlsp

import (
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/beevik/etree"

	"github.com/federate-go/saml"
	"github.com/federate-go/saml/registry"
)

// TenantProvider holds the per-entity configuration a multi-tenant
// host needs to act as a distinct SAML service provider: its own
// signing key, its own ACS/SLO endpoints, its own NameID and
// authentication-context preferences. One TenantProvider is registered
// per entity ID served by a MultiServiceProvider.
type TenantProvider struct {
	EntityID string

	Key           crypto.Signer
	Certificate   *x509.Certificate
	Intermediates []*x509.Certificate

	AcsURL url.URL
	SloURL url.URL

	AuthnNameIDFormat     saml.NameIDFormat
	ForceAuthn            *bool
	RequestedAuthnContext *saml.RequestedAuthnContext
	SignatureMethod       string
	LogoutBindings        []string
}

// MultiServiceProvider serves many tenants from a single process,
// resolving each tenant's TenantProvider through a C8 plugin registry
// keyed by entity ID rather than a bare map, so a host can register,
// replace, or remove a tenant at runtime the same way it would any
// other registry-backed plugin.
type MultiServiceProvider struct {
	// EntityID names this multi-tenant host itself;
	// MakeWayfRedirectRequest sends it as the entityID parameter.
	EntityID string

	// Tenants resolves a tenant's configuration by entity ID.
	Tenants *registry.Registry

	// HTTPClient is used during SAML artifact resolution.
	HTTPClient *http.Client

	// MetadataURL is this host's own metadata endpoint.
	MetadataURL url.URL

	// MetadataProvider resolves IdP role descriptors (signing keys,
	// SSO/SLO endpoints) by entity ID.
	MetadataProvider saml.MetadataProvider

	// IDPMetadata, if set, is used for WAYF-style redirection, which
	// needs the IdP discovery service's well-known Name rather than a
	// role lookup.
	IDPMetadata *saml.EntitiesDescriptor

	// MetadataValidDuration controls the validUntil attribute on
	// generated metadata documents.
	MetadataValidDuration time.Duration

	// AllowIDPInitiated records whether unsolicited responses (no
	// matching AuthnRequest on record) are welcome. Middleware.ServeACS
	// does not read it and does not check InResponseTo.
	AllowIDPInitiated bool

	// DefaultRedirectURI is where IdP-initiated responses redirect to
	// once validated.
	DefaultRedirectURI string
}

// NewMultiServiceProvider returns a MultiServiceProvider with an empty
// tenant registry ready for RegisterTenant calls.
func NewMultiServiceProvider() *MultiServiceProvider {
	return &MultiServiceProvider{Tenants: registry.New(), HTTPClient: http.DefaultClient}
}

// RegisterTenant installs tp under its own EntityID, so later
// GetServiceProvider(tp.EntityID) calls resolve back to it. The
// registry.Factory signature accepts a configDOM fragment for
// conformance, but a TenantProvider is fully built ahead of time and
// the factory simply closes over it.
func (smp *MultiServiceProvider) RegisterTenant(tp *TenantProvider) {
	smp.Tenants.RegisterFactory(tp.EntityID, func(*etree.Element) (interface{}, error) {
		return tp, nil
	})
}

// GetServiceProvider resolves the TenantProvider registered under
// entityID.
func (smp *MultiServiceProvider) GetServiceProvider(entityID string) (*TenantProvider, error) {
	plugin, err := smp.Tenants.NewPlugin(entityID, nil)
	if err != nil {
		return nil, fmt.Errorf("no service provider found for entityID %s: %w", entityID, err)
	}
	tp, ok := plugin.(*TenantProvider)
	if !ok {
		return nil, fmt.Errorf("entityID %s is registered but not as a TenantProvider", entityID)
	}
	return tp, nil
}

// MakeWayfRedirectRequest builds the redirect URL that sends a browser
// to a WAYF-style discovery service, carrying relayState and returnURL
// so the discovery service can send the user back once an IdP is
// chosen.
func (smp *MultiServiceProvider) MakeWayfRedirectRequest(relayState, returnURL string) (*url.URL, error) {
	u, err := url.Parse(returnURL)
	if err != nil {
		return nil, err
	}
	query := u.Query()
	query.Add("rs", relayState)
	u.RawQuery = query.Encode()

	if smp.IDPMetadata == nil || smp.IDPMetadata.Name == nil {
		return nil, errors.New("identity name is not set")
	}
	wayfURL, err := url.Parse(*smp.IDPMetadata.Name)
	if err != nil {
		return nil, err
	}
	query = wayfURL.Query()
	query.Add("return", u.String())
	query.Add("entityID", smp.EntityID)
	wayfURL.RawQuery = query.Encode()
	return wayfURL, nil
}

// Metadata builds the SPSSODescriptor metadata document for the tenant
// registered under entityID.
func (smp *MultiServiceProvider) Metadata(entityID string) (*saml.EntityDescriptor, error) {
	tp, err := smp.GetServiceProvider(entityID)
	if err != nil {
		return nil, err
	}

	validDuration := saml.DefaultValidDuration
	if smp.MetadataValidDuration > 0 {
		validDuration = smp.MetadataValidDuration
	}

	authnRequestsSigned := len(tp.SignatureMethod) > 0
	wantAssertionsSigned := true
	validUntil := saml.TimeNow().Add(validDuration)

	var keyDescriptors []saml.KeyDescriptor
	if tp.Certificate != nil {
		certBytes := tp.Certificate.Raw
		for _, intermediate := range tp.Intermediates {
			certBytes = append(certBytes, intermediate.Raw...)
		}
		keyDescriptors = []saml.KeyDescriptor{
			{
				Use: "encryption",
				KeyInfo: saml.KeyInfo{
					X509Data: saml.X509Data{
						X509Certificates: []saml.X509Certificate{
							{Data: base64.StdEncoding.EncodeToString(certBytes)},
						},
					},
				},
				EncryptionMethods: []saml.EncryptionMethod{
					{Algorithm: "http://www.w3.org/2001/04/xmlenc#aes128-cbc"},
					{Algorithm: "http://www.w3.org/2001/04/xmlenc#aes192-cbc"},
					{Algorithm: "http://www.w3.org/2001/04/xmlenc#aes256-cbc"},
					{Algorithm: "http://www.w3.org/2001/04/xmlenc#rsa-oaep-mgf1p"},
				},
			},
		}
		if len(tp.SignatureMethod) > 0 {
			keyDescriptors = append(keyDescriptors, saml.KeyDescriptor{
				Use: "signing",
				KeyInfo: saml.KeyInfo{
					X509Data: saml.X509Data{
						X509Certificates: []saml.X509Certificate{
							{Data: base64.StdEncoding.EncodeToString(certBytes)},
						},
					},
				},
			})
		}
	}

	sloEndpoints := make([]saml.Endpoint, len(tp.LogoutBindings))
	for i, binding := range tp.LogoutBindings {
		sloEndpoints[i] = saml.Endpoint{
			Binding:          binding,
			Location:         tp.SloURL.String(),
			ResponseLocation: tp.SloURL.String(),
		}
	}

	return &saml.EntityDescriptor{
		EntityID:   tp.EntityID,
		ValidUntil: validUntil,
		SPSSODescriptors: []saml.SPSSODescriptor{
			{
				SSODescriptor: saml.SSODescriptor{
					RoleDescriptor: saml.RoleDescriptor{
						ProtocolSupportEnumeration: saml.SAML2ProtocolURI,
						KeyDescriptors:             keyDescriptors,
						ValidUntil:                 &validUntil,
					},
					SingleLogoutServices: sloEndpoints,
					NameIDFormats:        []saml.NameIDFormat{tp.AuthnNameIDFormat},
				},
				AuthnRequestsSigned:  &authnRequestsSigned,
				WantAssertionsSigned: &wantAssertionsSigned,
				AssertionConsumerServices: []saml.IndexedEndpoint{
					{Binding: saml.HTTPPostBinding, Location: tp.AcsURL.String(), Index: 1},
					{Binding: saml.HTTPArtifactBinding, Location: tp.AcsURL.String(), Index: 2},
				},
			},
		},
	}, nil
}
