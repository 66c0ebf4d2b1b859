package saml

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
)

// Artifact type codes.
const (
	ArtifactTypeSAML1Type1 uint16 = 0x0001
	ArtifactTypeSAML1Type2 uint16 = 0x0002
	ArtifactTypeSAML2Type4 uint16 = 0x0004
)

const handleLen = 20

// SAMLArtifact is the tagged-variant interface shared by every
// artifact format: a type code identifying the variant (Type1, Type2,
// Type4), a source ID, and a payload tail specific to that variant.
type SAMLArtifact interface {
	TypeCode() uint16
	SourceID() [20]byte
	Bytes() []byte
	Base64() string
}

// SAML2Artifact is SAML 2.0 artifact type 4: type code, endpoint
// index, 20-byte source ID, 20-byte message handle. 44 bytes total.
type SAML2Artifact struct {
	EndpointIndexValue uint16
	SourceIDValue      [20]byte
	MessageHandle      [20]byte
}

func (a *SAML2Artifact) TypeCode() uint16     { return ArtifactTypeSAML2Type4 }
func (a *SAML2Artifact) SourceID() [20]byte   { return a.SourceIDValue }
func (a *SAML2Artifact) EndpointIndex() uint16 { return a.EndpointIndexValue }

// Bytes returns the raw 44-byte wire form: type code, endpoint index,
// source ID, message handle, all concatenated.
func (a *SAML2Artifact) Bytes() []byte {
	buf := make([]byte, 44)
	binary.BigEndian.PutUint16(buf[0:2], a.TypeCode())
	binary.BigEndian.PutUint16(buf[2:4], a.EndpointIndexValue)
	copy(buf[4:24], a.SourceIDValue[:])
	copy(buf[24:44], a.MessageHandle[:])
	return buf
}

func (a *SAML2Artifact) Base64() string {
	return base64.StdEncoding.EncodeToString(a.Bytes())
}

// NewSAML2Artifact mints a fresh SAML 2.0 artifact for the given
// issuer entity ID and artifact-resolution endpoint index. The
// message handle comes from a cryptographically secure RNG.
func NewSAML2Artifact(issuerEntityID string, endpointIndex uint16) (*SAML2Artifact, error) {
	var handle [20]byte
	if _, err := rand.Read(handle[:]); err != nil {
		return nil, NewBindingError(BindingTransportFailed, "generating artifact handle", err)
	}
	return &SAML2Artifact{
		EndpointIndexValue: endpointIndex,
		SourceIDValue:      EntityIDSourceID(issuerEntityID),
		MessageHandle:      handle,
	}, nil
}

// SAML1Artifact is SAML 1.x artifact type 1 or type 2: type code,
// 20-byte source ID, 20-byte assertion handle. 42 bytes total. (Type
// 2 additionally supports an explicit SourceLocation in the original
// spec; this engine only produces/consumes type 1, matching the
// teacher's SP-side scope, and treats type 2 as parse-only.)
type SAML1Artifact struct {
	Type            uint16
	SourceIDValue   [20]byte
	AssertionHandle [20]byte
}

func (a *SAML1Artifact) TypeCode() uint16   { return a.Type }
func (a *SAML1Artifact) SourceID() [20]byte { return a.SourceIDValue }

func (a *SAML1Artifact) Bytes() []byte {
	buf := make([]byte, 42)
	binary.BigEndian.PutUint16(buf[0:2], a.Type)
	copy(buf[2:22], a.SourceIDValue[:])
	copy(buf[22:42], a.AssertionHandle[:])
	return buf
}

func (a *SAML1Artifact) Base64() string {
	return base64.StdEncoding.EncodeToString(a.Bytes())
}

// NewSAML1Artifact mints a fresh SAML 1.x type-1 artifact.
func NewSAML1Artifact(issuerEntityID string) (*SAML1Artifact, error) {
	var handle [20]byte
	if _, err := rand.Read(handle[:]); err != nil {
		return nil, NewBindingError(BindingTransportFailed, "generating artifact handle", err)
	}
	return &SAML1Artifact{
		Type:            ArtifactTypeSAML1Type1,
		SourceIDValue:   EntityIDSourceID(issuerEntityID),
		AssertionHandle: handle,
	}, nil
}

// ParseArtifact parses a base64-encoded artifact string into a
// SAMLArtifact, dispatching on the leading type code.
func ParseArtifact(encoded string) (SAMLArtifact, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, NewArtifactError(ArtifactBadBase64, err.Error())
	}
	return ParseArtifactBytes(raw)
}

// ParseArtifactBytes parses the raw (already base64-decoded) bytes of
// an artifact.
func ParseArtifactBytes(raw []byte) (SAMLArtifact, error) {
	if len(raw) < 2 {
		return nil, NewArtifactError(ArtifactBadLength, "artifact shorter than type code")
	}
	typeCode := binary.BigEndian.Uint16(raw[0:2])
	switch typeCode {
	case ArtifactTypeSAML2Type4:
		if len(raw) != 44 {
			return nil, NewArtifactError(ArtifactBadLength, "SAML 2.0 type 4 artifact must be 44 bytes")
		}
		a := &SAML2Artifact{
			EndpointIndexValue: binary.BigEndian.Uint16(raw[2:4]),
		}
		copy(a.SourceIDValue[:], raw[4:24])
		copy(a.MessageHandle[:], raw[24:44])
		return a, nil
	case ArtifactTypeSAML1Type1, ArtifactTypeSAML1Type2:
		if len(raw) != 42 {
			return nil, NewArtifactError(ArtifactBadLength, "SAML 1.x artifact must be 42 bytes")
		}
		a := &SAML1Artifact{Type: typeCode}
		copy(a.SourceIDValue[:], raw[2:22])
		copy(a.AssertionHandle[:], raw[22:42])
		return a, nil
	default:
		return nil, NewArtifactError(ArtifactUnknownTypeCode, "unrecognized artifact type code")
	}
}

// EndpointIndex returns the big-endian 16-bit value at the
// type-code-length offset of a raw artifact, or 0 if the artifact is
// too short to carry one (SAML 2.0 artifacts only; SAML 1.x artifacts
// have no endpoint index and always read back 0).
func EndpointIndex(raw []byte) uint16 {
	const typeCodeLen = 2
	if len(raw) < typeCodeLen+2 {
		return 0
	}
	return binary.BigEndian.Uint16(raw[typeCodeLen : typeCodeLen+2])
}
