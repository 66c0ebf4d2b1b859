package policy

import (
	"strings"

	saml "github.com/federate-go/saml"
	"github.com/federate-go/saml/transport"
)

// IssuerRule extracts the issuer and message ID from the message and
// sets policy.Issuer, policy.MessageID, policy.IssueInstant. It never
// checks a signature.
type IssuerRule struct{}

func (IssuerRule) Name() string { return "IssuerRule" }

func (IssuerRule) Evaluate(_ transport.TransportRequest, msgCtx *MessageContext, policy *SecurityPolicy) (RuleOutcome, error) {
	policy.MessageID = msgCtx.Message.MessageID()
	policy.IssueInstant = msgCtx.Message.GetIssueInstant()
	issuer := msgCtx.Message.GetIssuer()
	// Issuer-extraction alone does not resolve a role, so report it
	// without Accepted=true; MetadataResolutionRule does the role
	// lookup once the issuer is known.
	policy.Issuer = issuer
	return Ignored, nil
}

// SignatureRule checks whichever signature the message carries —
// embedded XML signature if present, otherwise a decoder-populated
// detached signature — against the trust engine, using
// policy.IssuerMetadata as the candidate-key source. A present but
// invalid signature fails the rule; a missing signature is not an
// error at this layer.
type SignatureRule struct{}

func (SignatureRule) Name() string { return "SignatureRule" }

func (SignatureRule) Evaluate(_ transport.TransportRequest, msgCtx *MessageContext, policy *SecurityPolicy) (RuleOutcome, error) {
	if policy.TrustEngine == nil {
		return Ignored, nil
	}
	if policy.IssuerMetadata == nil {
		// MetadataResolutionRule hasn't run yet or couldn't resolve an
		// issuer; nothing to check the signature against.
		return Ignored, nil
	}

	if msgCtx.Message.GetSignature() != nil && msgCtx.Root != nil {
		if _, err := policy.TrustEngine.ValidateXMLSignature(msgCtx.Root, policy.IssuerMetadata); err != nil {
			return Ignored, err
		}
		policy.Authenticated = true
		return Ignored, nil
	}

	if msgCtx.Detached != nil {
		if err := policy.TrustEngine.ValidateDetachedSignature(
			msgCtx.Detached.SignedBytes, msgCtx.Detached.Signature, msgCtx.Detached.SigAlg, policy.IssuerMetadata,
		); err != nil {
			return Ignored, err
		}
		policy.Authenticated = true
		return Ignored, nil
	}

	return Ignored, nil
}

// ReplayAndFreshnessRule requires message_id and issue_instant, bounds
// issue_instant within ±clock_skew of now, and checks the replay
// cache.
type ReplayAndFreshnessRule struct {
	Context string
}

func (ReplayAndFreshnessRule) Name() string { return "ReplayAndFreshnessRule" }

func (r ReplayAndFreshnessRule) Evaluate(_ transport.TransportRequest, msgCtx *MessageContext, policy *SecurityPolicy) (RuleOutcome, error) {
	if policy.MessageID == "" {
		return Ignored, saml.NewSecurityPolicyError(saml.SecurityPolicyStale, r.Name(), "message carries no ID")
	}
	if policy.IssueInstant.IsZero() {
		return Ignored, saml.NewSecurityPolicyError(saml.SecurityPolicyStale, r.Name(), "message carries no IssueInstant")
	}

	now := saml.TimeNow()
	skew := policy.clockSkew()
	upperBound := now.Add(skew)
	lowerBound := now.Add(-skew - policy.expiresWindow())

	if policy.IssueInstant.After(upperBound) {
		return Ignored, saml.NewSecurityPolicyError(saml.SecurityPolicyStale, r.Name(), "IssueInstant is too far in the future")
	}
	if policy.IssueInstant.Before(lowerBound) {
		return Ignored, saml.NewSecurityPolicyError(saml.SecurityPolicyStale, r.Name(), "IssueInstant is too far in the past")
	}

	if policy.ReplayCache != nil {
		context := r.Context
		if context == "" {
			context = "saml-message"
		}
		firstSeen := policy.ReplayCache.Check(context, policy.MessageID, now.Add(2*skew))
		if !firstSeen {
			return Ignored, saml.NewSecurityPolicyError(saml.SecurityPolicyReplayed, r.Name(), "message ID already seen within the replay window")
		}
	}

	return Ignored, nil
}

// MessageRoutingRule checks the message's declared destination against
// the request URL, up to but not including "?". Whether a missing
// destination is an error is controlled by Mandatory.
type MessageRoutingRule struct {
	Mandatory bool
}

func (MessageRoutingRule) Name() string { return "MessageRoutingRule" }

func (r MessageRoutingRule) Evaluate(req transport.TransportRequest, msgCtx *MessageContext, policy *SecurityPolicy) (RuleOutcome, error) {
	destination := msgCtx.Message.GetDestination()
	if destination == "" {
		if r.Mandatory {
			return Ignored, saml.NewBindingError(saml.BindingMissingDestination, "message carries no Destination", nil)
		}
		return Ignored, nil
	}

	requestURL := requestURLWithoutQuery(req)
	if destination != requestURL {
		return Ignored, saml.NewBindingError(saml.BindingWrongDestination, "message Destination does not match request URL", nil)
	}
	return Ignored, nil
}

func requestURLWithoutQuery(req transport.TransportRequest) string {
	u := req.URL()
	if u == nil {
		return ""
	}
	s := u.String()
	if i := strings.IndexByte(s, '?'); i >= 0 {
		return s[:i]
	}
	return s
}

// MetadataResolutionRule resolves policy.Issuer against the metadata
// provider and picks the role descriptor advertising policy.RoleQName
// + policy.ProtocolURI, storing it as policy.IssuerMetadata (returned
// as an Accepted outcome so Evaluate records it).
type MetadataResolutionRule struct{}

func (MetadataResolutionRule) Name() string { return "MetadataResolutionRule" }

func (MetadataResolutionRule) Evaluate(_ transport.TransportRequest, _ *MessageContext, policy *SecurityPolicy) (RuleOutcome, error) {
	if policy.Issuer == "" {
		return Ignored, saml.NewSecurityPolicyError(saml.SecurityPolicyUnknownIssuer, "MetadataResolutionRule", "no issuer to resolve")
	}
	if policy.MetadataProvider == nil {
		return Ignored, saml.NewSecurityPolicyError(saml.SecurityPolicyUnknownIssuer, "MetadataResolutionRule", "no metadata provider configured")
	}
	if _, ok := policy.MetadataProvider.Lookup(policy.Issuer); !ok {
		return Ignored, saml.NewSecurityPolicyError(saml.SecurityPolicyUnknownIssuer, "MetadataResolutionRule", "issuer not present in metadata")
	}
	role, ok := policy.MetadataProvider.GetRole(policy.Issuer, policy.RoleQName, policy.ProtocolURI)
	if !ok {
		return Ignored, saml.NewSecurityPolicyError(saml.SecurityPolicyNoRole, "MetadataResolutionRule", "issuer has no matching role descriptor")
	}
	return RuleOutcome{Accepted: true, Issuer: policy.Issuer, Role: role}, nil
}

// DefaultRules is the canonical pipeline order: Issuer/MessageFlow,
// MetadataResolution, Signature, Replay-and-freshness, Routing.
// MetadataResolution runs before Signature because SignatureRule
// needs policy.IssuerMetadata already populated to find candidate
// signing keys.
func DefaultRules(mandatoryDestination bool, replayContext string) []Rule {
	return []Rule{
		IssuerRule{},
		MetadataResolutionRule{},
		SignatureRule{},
		ReplayAndFreshnessRule{Context: replayContext},
		MessageRoutingRule{Mandatory: mandatoryDestination},
	}
}
