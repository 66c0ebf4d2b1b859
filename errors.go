package saml

import (
	"fmt"

	"github.com/crewjam/httperr"
	"github.com/pkg/errors"
)

// BindingKind enumerates the BindingError failure modes from the
// binding-engine contract.
type BindingKind int

const (
	_ BindingKind = iota
	// BindingMalformed covers a missing required parameter, wrong content
	// type, bad base64, bad inflate, or wrong wrapper element.
	BindingMalformed
	// BindingWrongDestination means the message's Destination did not
	// match the request URL.
	BindingWrongDestination
	// BindingMissingDestination means a signed message lacked a
	// Destination, which is fatal.
	BindingMissingDestination
	// BindingRelayStateTooLong means a Redirect-bound RelayState exceeded
	// 80 bytes.
	BindingRelayStateTooLong
	// BindingTransportFailed wraps an underlying transport or collaborator
	// failure.
	BindingTransportFailed
)

func (k BindingKind) String() string {
	switch k {
	case BindingMalformed:
		return "Malformed"
	case BindingWrongDestination:
		return "WrongDestination"
	case BindingMissingDestination:
		return "MissingDestination"
	case BindingRelayStateTooLong:
		return "RelayStateTooLong"
	case BindingTransportFailed:
		return "TransportFailed"
	default:
		return "Unknown"
	}
}

// BindingError is returned by encoders and decoders in the binding
// engine (C6/C7). Each call surfaces at most one error; collaborator
// failures are wrapped rather than replaced so the original cause
// remains in the chain.
type BindingError struct {
	Kind    BindingKind
	Message string
	Cause   error
}

func (e *BindingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("saml: binding error %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("saml: binding error %s: %s", e.Kind, e.Message)
}

func (e *BindingError) Unwrap() error { return e.Cause }

// NewBindingError builds a BindingError, optionally wrapping a cause
// with github.com/pkg/errors so a stack trace is attached the first
// time the error is created.
func NewBindingError(kind BindingKind, message string, cause error) *BindingError {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &BindingError{Kind: kind, Message: message, Cause: cause}
}

// HTTPStatus maps a BindingError onto the status code a transport
// adapter should send. AsHTTPError carries the same code in a
// crewjam/httperr error so callers that already know how to unwrap an
// httperr.Error keep working.
func (e *BindingError) HTTPStatus() int {
	switch e.Kind {
	case BindingMalformed, BindingRelayStateTooLong:
		return 400
	case BindingWrongDestination, BindingMissingDestination:
		return 400
	case BindingTransportFailed:
		return 502
	default:
		return 500
	}
}

// AsHTTPError converts a BindingError into an httperr.Error suitable
// for a transport's error channel.
func (e *BindingError) AsHTTPError() error {
	return httperr.Error{
		Code: e.HTTPStatus(),
		Err:  e,
	}
}

// ArtifactKind enumerates the artifact-codec and artifact-map failure
// modes.
type ArtifactKind int

const (
	_ ArtifactKind = iota
	ArtifactBadLength
	ArtifactUnknownTypeCode
	ArtifactBadBase64
	ArtifactNotFound
	ArtifactWrongRecipient
	ArtifactExpired
)

func (k ArtifactKind) String() string {
	switch k {
	case ArtifactBadLength:
		return "BadLength"
	case ArtifactUnknownTypeCode:
		return "UnknownTypeCode"
	case ArtifactBadBase64:
		return "BadBase64"
	case ArtifactNotFound:
		return "NotFound"
	case ArtifactWrongRecipient:
		return "WrongRecipient"
	case ArtifactExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// ArtifactError is returned by the artifact codec (C1) and artifact
// map (C3).
type ArtifactError struct {
	Kind    ArtifactKind
	Message string
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("saml: artifact error %s: %s", e.Kind, e.Message)
}

// NewArtifactError constructs an ArtifactError.
func NewArtifactError(kind ArtifactKind, message string) *ArtifactError {
	return &ArtifactError{Kind: kind, Message: message}
}

// IsArtifactKind reports whether err is an *ArtifactError of the given
// kind.
func IsArtifactKind(err error, kind ArtifactKind) bool {
	ae, ok := err.(*ArtifactError)
	return ok && ae.Kind == kind
}

// SecurityPolicyKind enumerates the security-policy pipeline (C5)
// failure modes.
type SecurityPolicyKind int

const (
	_ SecurityPolicyKind = iota
	SecurityPolicyUnsigned
	SecurityPolicyBadSignature
	SecurityPolicyReplayed
	SecurityPolicyStale
	SecurityPolicyUnknownIssuer
	SecurityPolicyNoRole
)

func (k SecurityPolicyKind) String() string {
	switch k {
	case SecurityPolicyUnsigned:
		return "Unsigned"
	case SecurityPolicyBadSignature:
		return "BadSignature"
	case SecurityPolicyReplayed:
		return "Replayed"
	case SecurityPolicyStale:
		return "Stale"
	case SecurityPolicyUnknownIssuer:
		return "UnknownIssuer"
	case SecurityPolicyNoRole:
		return "NoRole"
	default:
		return "Unknown"
	}
}

// SecurityPolicyError is returned by a Rule in the security-policy
// pipeline. Signature-rule and replay-rule failures are always fatal
// to the message; MessageRouting failures are fatal only when the
// rule is configured as mandatory.
type SecurityPolicyError struct {
	Kind    SecurityPolicyKind
	Rule    string
	Message string
}

func (e *SecurityPolicyError) Error() string {
	return fmt.Sprintf("saml: security policy error in rule %s: %s: %s", e.Rule, e.Kind, e.Message)
}

// NewSecurityPolicyError constructs a SecurityPolicyError.
func NewSecurityPolicyError(kind SecurityPolicyKind, rule, message string) *SecurityPolicyError {
	return &SecurityPolicyError{Kind: kind, Rule: rule, Message: message}
}

// ProfileKind distinguishes profile-level decisions that are
// non-recoverable from ones that may prompt a retry.
type ProfileKind int

const (
	_ ProfileKind = iota
	// ProfileFatal is non-recoverable; callers should render an error
	// page.
	ProfileFatal
	// ProfileRetryable may prompt a retry, e.g. a re-login.
	ProfileRetryable
)

func (k ProfileKind) String() string {
	switch k {
	case ProfileFatal:
		return "Fatal"
	case ProfileRetryable:
		return "Retryable"
	default:
		return "Unknown"
	}
}

// ProfileError is a profile-level decision surfaced to the host
// application.
type ProfileError struct {
	Kind    ProfileKind
	Message string
	Cause   error
}

func (e *ProfileError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("saml: profile error %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("saml: profile error %s: %s", e.Kind, e.Message)
}

func (e *ProfileError) Unwrap() error { return e.Cause }
