package policy

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	saml "github.com/federate-go/saml"
	"github.com/federate-go/saml/transport"
)

type fakeMessage struct {
	issuer       string
	id           string
	issueInstant time.Time
	destination  string
	signature    *saml.Signature
}

func (m *fakeMessage) GetIssuer() string            { return m.issuer }
func (m *fakeMessage) MessageID() string            { return m.id }
func (m *fakeMessage) GetIssueInstant() time.Time   { return m.issueInstant }
func (m *fakeMessage) GetDestination() string       { return m.destination }
func (m *fakeMessage) SetDestination(d string)      { m.destination = d }
func (m *fakeMessage) GetSignature() *saml.Signature { return m.signature }
func (m *fakeMessage) SetSignature(s *saml.Signature) { m.signature = s }

type fakeMetadataProvider struct {
	roles map[string]*saml.RoleDescriptor
}

func (p *fakeMetadataProvider) Lookup(entityID string) (*saml.EntityDescriptor, bool) {
	_, ok := p.roles[entityID]
	if !ok {
		return nil, false
	}
	return &saml.EntityDescriptor{EntityID: entityID}, true
}

func (p *fakeMetadataProvider) LookupByArtifact([20]byte) (*saml.EntityDescriptor, bool) { return nil, false }

func (p *fakeMetadataProvider) GetRole(entityID, _, _ string) (*saml.RoleDescriptor, bool) {
	role, ok := p.roles[entityID]
	return role, ok
}

func (p *fakeMetadataProvider) AddObserver(saml.MetadataObserver)    {}
func (p *fakeMetadataProvider) RemoveObserver(saml.MetadataObserver) {}

type fakeTransportRequest struct {
	u *url.URL
}

func (r *fakeTransportRequest) URL() *url.URL          { return r.u }
func (r *fakeTransportRequest) Method() string         { return "GET" }
func (r *fakeTransportRequest) ContentType() string    { return "" }
func (r *fakeTransportRequest) Body() ([]byte, error)  { return nil, nil }
func (r *fakeTransportRequest) Parameter(string) string { return "" }
func (r *fakeTransportRequest) Cookie(string) (string, error) { return "", nil }
func (r *fakeTransportRequest) Header(string) string   { return "" }

var _ transport.TransportRequest = (*fakeTransportRequest)(nil)

func TestIssuerRuleSetsFields(t *testing.T) {
	msg := &fakeMessage{issuer: "https://idp.example.com/entity", id: "id-1", issueInstant: saml.TimeNow()}
	policy := &SecurityPolicy{}
	outcome, err := IssuerRule{}.Evaluate(nil, &MessageContext{Message: msg}, policy)
	require.NoError(t, err)
	assert.Equal(t, Ignored, outcome)
	assert.Equal(t, "https://idp.example.com/entity", policy.Issuer)
	assert.Equal(t, "id-1", policy.MessageID)
}

func TestMetadataResolutionRuleUnknownIssuer(t *testing.T) {
	policy := &SecurityPolicy{Issuer: "https://unknown.example.com/entity", MetadataProvider: &fakeMetadataProvider{roles: map[string]*saml.RoleDescriptor{}}}
	_, err := MetadataResolutionRule{}.Evaluate(nil, &MessageContext{}, policy)
	require.Error(t, err)
	var spErr *saml.SecurityPolicyError
	require.ErrorAs(t, err, &spErr)
	assert.Equal(t, saml.SecurityPolicyUnknownIssuer, spErr.Kind)
}

func TestMetadataResolutionRuleResolvesRole(t *testing.T) {
	role := &saml.RoleDescriptor{ID: "idp-role"}
	provider := &fakeMetadataProvider{roles: map[string]*saml.RoleDescriptor{"https://idp.example.com/entity": role}}
	policy := &SecurityPolicy{Issuer: "https://idp.example.com/entity", MetadataProvider: provider}

	outcome, err := MetadataResolutionRule{}.Evaluate(nil, &MessageContext{}, policy)
	require.NoError(t, err)
	assert.True(t, outcome.Accepted)
	assert.Same(t, role, outcome.Role)
}

func TestReplayAndFreshnessRuleRejectsMissingID(t *testing.T) {
	policy := &SecurityPolicy{IssueInstant: saml.TimeNow()}
	_, err := ReplayAndFreshnessRule{}.Evaluate(nil, &MessageContext{}, policy)
	require.Error(t, err)
}

func TestReplayAndFreshnessRuleRejectsStaleIssueInstant(t *testing.T) {
	policy := &SecurityPolicy{MessageID: "id-1", IssueInstant: saml.TimeNow().Add(-time.Hour)}
	_, err := ReplayAndFreshnessRule{}.Evaluate(nil, &MessageContext{}, policy)
	require.Error(t, err)
	var spErr *saml.SecurityPolicyError
	require.ErrorAs(t, err, &spErr)
	assert.Equal(t, saml.SecurityPolicyStale, spErr.Kind)
}

func TestReplayAndFreshnessRuleRejectsReplayedMessage(t *testing.T) {
	cache := saml.NewMemoryReplayCache()
	policy := &SecurityPolicy{MessageID: "id-1", IssueInstant: saml.TimeNow(), ReplayCache: cache}

	_, err := ReplayAndFreshnessRule{}.Evaluate(nil, &MessageContext{}, policy)
	require.NoError(t, err)

	_, err = ReplayAndFreshnessRule{}.Evaluate(nil, &MessageContext{}, policy)
	require.Error(t, err)
	var spErr *saml.SecurityPolicyError
	require.ErrorAs(t, err, &spErr)
	assert.Equal(t, saml.SecurityPolicyReplayed, spErr.Kind)
}

func TestMessageRoutingRuleMatchesDestination(t *testing.T) {
	u, _ := url.Parse("https://sp.example.com/acs?foo=bar")
	req := &fakeTransportRequest{u: u}
	msg := &fakeMessage{destination: "https://sp.example.com/acs"}
	_, err := MessageRoutingRule{}.Evaluate(req, &MessageContext{Message: msg}, &SecurityPolicy{})
	require.NoError(t, err)
}

func TestMessageRoutingRuleRejectsMismatch(t *testing.T) {
	u, _ := url.Parse("https://sp.example.com/other")
	req := &fakeTransportRequest{u: u}
	msg := &fakeMessage{destination: "https://sp.example.com/acs"}
	_, err := MessageRoutingRule{}.Evaluate(req, &MessageContext{Message: msg}, &SecurityPolicy{})
	require.Error(t, err)
	bindingErr, ok := err.(*saml.BindingError)
	require.True(t, ok)
	assert.Equal(t, saml.BindingWrongDestination, bindingErr.Kind)
}

func TestMessageRoutingRuleMandatoryMissingDestination(t *testing.T) {
	msg := &fakeMessage{}
	_, err := MessageRoutingRule{Mandatory: true}.Evaluate(&fakeTransportRequest{}, &MessageContext{Message: msg}, &SecurityPolicy{})
	require.Error(t, err)
	bindingErr, ok := err.(*saml.BindingError)
	require.True(t, ok)
	assert.Equal(t, saml.BindingMissingDestination, bindingErr.Kind)
}

func TestDefaultRulesOrder(t *testing.T) {
	rules := DefaultRules(true, "test-context")
	require.Len(t, rules, 5)
	assert.Equal(t, "IssuerRule", rules[0].Name())
	assert.Equal(t, "MetadataResolutionRule", rules[1].Name())
	assert.Equal(t, "SignatureRule", rules[2].Name())
	assert.Equal(t, "ReplayAndFreshnessRule", rules[3].Name())
	assert.Equal(t, "MessageRoutingRule", rules[4].Name())
}
