package binding

import (
	"github.com/beevik/etree"

	saml "github.com/federate-go/saml"
	"github.com/federate-go/saml/registry"
)

// RegisterDefaults installs every stateless binding this package
// implements into reg under its binding URI, so a host can enumerate
// supported bindings by id instead of importing each encoder/decoder
// type by hand. configDOM is accepted by every factory for
// registry.Factory conformance but unused here: none of the stateless
// bindings need per-instance configuration, and the two stateful
// bindings (HTTP-Artifact and SAML 1.x artifact-01, which need a
// shared *saml.ArtifactMap) are registered separately via
// RegisterArtifactBinding.
func RegisterDefaults(reg *registry.Registry) {
	reg.RegisterFactory(saml.HTTPRedirectBinding, func(*etree.Element) (interface{}, error) {
		return NewRedirectBinding(), nil
	})
	reg.RegisterFactory(saml.HTTPPostBinding, func(*etree.Element) (interface{}, error) {
		return NewPostBinding(), nil
	})
	reg.RegisterFactory(saml.HTTPPostSimpleSignBinding, func(*etree.Element) (interface{}, error) {
		return NewPostSimpleSignBinding(), nil
	})
	reg.RegisterFactory(saml.PAOSBinding, func(*etree.Element) (interface{}, error) {
		return NewECPBinding(), nil
	})
	reg.RegisterFactory(saml.SOAPBinding, func(*etree.Element) (interface{}, error) {
		return NewSOAPBinding(), nil
	})
	reg.RegisterFactory(saml.SAML1HTTPPostBinding, func(*etree.Element) (interface{}, error) {
		return NewSaml1PostBinding(), nil
	})
}

// RegisterArtifactBinding installs the HTTP-Artifact and SAML 1.x
// artifact-01 bindings, both of which need a shared *saml.ArtifactMap
// injected at registration time rather than constructed fresh per
// lookup.
func RegisterArtifactBinding(reg *registry.Registry, m *saml.ArtifactMap) {
	reg.RegisterFactory(saml.HTTPArtifactBinding, func(*etree.Element) (interface{}, error) {
		return NewArtifactBinding(m), nil
	})
	reg.RegisterFactory(saml.SAML1HTTPArtifactBinding, func(*etree.Element) (interface{}, error) {
		return NewSaml1ArtifactBinding(m), nil
	})
}
