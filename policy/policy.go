// Package policy implements the security-policy pipeline: an ordered
// chain of rules that inspects a decoded message plus its transport
// context, resolves the purported issuer against a metadata provider,
// checks signatures against a trust engine, checks replay/expiry, and
// checks delivery address.
package policy

import (
	"time"

	"github.com/beevik/etree"

	saml "github.com/federate-go/saml"
	"github.com/federate-go/saml/transport"
)

// DetachedSignature is the signature context a binding decoder
// pre-populates on the policy when the wire format carries a detached
// signature rather than an embedded XML one (HTTP-Redirect's
// "Signature" query parameter, HTTP-POST-SimpleSign's form fields).
// SignatureRule processes this the same way it processes an embedded
// signature.
type DetachedSignature struct {
	// SignedBytes is the exact byte string that was signed, e.g.
	// "SAMLRequest=...&RelayState=...&SigAlg=...".
	SignedBytes []byte
	Signature   []byte
	SigAlg      string
}

// MessageContext bundles everything a Rule needs about the message
// under evaluation: its typed accessor surface, the raw DOM root (for
// embedded-XML-signature verification), and any detached-signature
// context the decoder already extracted.
type MessageContext struct {
	Message  saml.Message
	Root     *etree.Element
	Detached *DetachedSignature
}

// RuleOutcome is what a Rule returns on success.
type RuleOutcome struct {
	// Accepted is true if the rule positively identified the issuer
	// and role; false means the rule had nothing to contribute
	// ("Ignored" in spec terms).
	Accepted bool
	Issuer   string
	Role     *saml.RoleDescriptor
}

var Ignored = RuleOutcome{}

// Rule is the polymorphic capability every pipeline stage implements.
type Rule interface {
	Name() string
	Evaluate(req transport.TransportRequest, msgCtx *MessageContext, policy *SecurityPolicy) (RuleOutcome, error)
}

// SecurityPolicy is the mutable pipeline state threaded through one
// message evaluation. It accumulates fields as rules run and holds
// the collaborators every rule needs by reference.
type SecurityPolicy struct {
	// Accumulated fields.
	Issuer         string
	IssuerMetadata *saml.RoleDescriptor
	MessageID      string
	IssueInstant   time.Time
	Authenticated  bool
	Validating     bool

	// Collaborators.
	MetadataProvider saml.MetadataProvider
	TrustEngine      saml.TrustEngine
	ReplayCache      saml.ReplayCache
	Rules            []Rule

	// RoleQName and ProtocolURI tell MetadataResolutionRule which role
	// to resolve (e.g. "idp-sso" + SAML2ProtocolURI when an SP is
	// processing an IdP-issued Response).
	RoleQName   string
	ProtocolURI string

	// ClockSkew and ExpiresWindow parameterize
	// ReplayAndFreshnessRule; defaults are saml.DefaultClockSkew and
	// saml.DefaultValidDuration if left zero.
	ClockSkew     time.Duration
	ExpiresWindow time.Duration
}

// Reset clears message-scoped fields. When messageOnly is true,
// transport/issuer state carried across the two-layer SOAP/ECP
// evaluation is preserved; when false, every accumulated field is
// cleared (used between independent decodes sharing one policy
// value).
func (p *SecurityPolicy) Reset(messageOnly bool) {
	p.Authenticated = false
	p.MessageID = ""
	p.IssueInstant = time.Time{}
	if !messageOnly {
		p.Issuer = ""
		p.IssuerMetadata = nil
	}
}

// Evaluate runs every configured rule in order against msgCtx. Rules
// after the first may rely on fields set by earlier rules, so order
// matters and evaluation is never parallelized.
func (p *SecurityPolicy) Evaluate(req transport.TransportRequest, msgCtx *MessageContext) error {
	for _, rule := range p.Rules {
		outcome, err := rule.Evaluate(req, msgCtx, p)
		if err != nil {
			return err
		}
		if outcome.Accepted {
			p.Issuer = outcome.Issuer
			p.IssuerMetadata = outcome.Role
		}
	}
	return nil
}

func (p *SecurityPolicy) clockSkew() time.Duration {
	if p.ClockSkew > 0 {
		return p.ClockSkew
	}
	return saml.DefaultClockSkew
}

func (p *SecurityPolicy) expiresWindow() time.Duration {
	if p.ExpiresWindow > 0 {
		return p.ExpiresWindow
	}
	return saml.DefaultValidDuration
}
