package binding

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	saml "github.com/federate-go/saml"
	"github.com/federate-go/saml/policy"
	"github.com/federate-go/saml/transport"
)

// fakeMetadataProvider is a minimal saml.MetadataProvider fixture
// keyed by entity ID and artifact SourceID, enough to exercise
// ArtifactBinding.Decode's metadata-lookup steps without pulling in a
// full FilesystemMetadataProvider.
type fakeMetadataProvider struct {
	byEntityID map[string]*saml.EntityDescriptor
	bySourceID map[[20]byte]*saml.EntityDescriptor
}

func newFakeMetadataProvider(entities ...*saml.EntityDescriptor) *fakeMetadataProvider {
	p := &fakeMetadataProvider{
		byEntityID: make(map[string]*saml.EntityDescriptor),
		bySourceID: make(map[[20]byte]*saml.EntityDescriptor),
	}
	for _, ed := range entities {
		p.byEntityID[ed.EntityID] = ed
		p.bySourceID[saml.EntityIDSourceID(ed.EntityID)] = ed
	}
	return p
}

func (p *fakeMetadataProvider) Lookup(entityID string) (*saml.EntityDescriptor, bool) {
	ed, ok := p.byEntityID[entityID]
	return ed, ok
}

func (p *fakeMetadataProvider) LookupByArtifact(sourceID [20]byte) (*saml.EntityDescriptor, bool) {
	ed, ok := p.bySourceID[sourceID]
	return ed, ok
}

func (p *fakeMetadataProvider) GetRole(entityID, roleQName, protocolURI string) (*saml.RoleDescriptor, bool) {
	return nil, false
}

func (p *fakeMetadataProvider) AddObserver(obs saml.MetadataObserver)    {}
func (p *fakeMetadataProvider) RemoveObserver(obs saml.MetadataObserver) {}

func TestArtifactBindingEncodeDecodeRoundTrip(t *testing.T) {
	m := saml.NewArtifactMap()
	b := NewArtifactBindingForEntity(m, "https://sp.example.com/entity")

	authnResponse := &saml.Response{
		StatusResponseType: saml.StatusResponseType{
			ID:           "resp-1",
			Version:      "2.0",
			IssueInstant: saml.TimeNow(),
			Destination:  "https://sp.example.com/acs",
			Issuer:       *saml.NewIssuer("https://idp.example.com/entity"),
		},
	}

	dummyReq := httptest.NewRequest("GET", "https://idp.example.com/", nil)
	rec := httptest.NewRecorder()
	resp := transport.NewHTTPResponse(rec, dummyReq)

	err := b.EncodeForRecipient(resp, authnResponse, "relay-1", "https://sp.example.com/entity", saml.DefaultValidDuration, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	location := rec.Header().Get("Location")
	require.NotEmpty(t, location)
	u, err := url.Parse(location)
	require.NoError(t, err)
	assert.Equal(t, "relay-1", u.Query().Get("RelayState"))

	idp := &saml.EntityDescriptor{
		EntityID: "https://idp.example.com/entity",
		IDPSSODescriptors: []saml.IDPSSODescriptor{{
			SSODescriptor: saml.SSODescriptor{
				ArtifactResolutionServices: []saml.IndexedEndpoint{
					{Binding: saml.SOAPBinding, Location: "https://idp.example.com/soap/artifact", Index: 0},
				},
			},
		}},
	}
	pol := &policy.SecurityPolicy{MetadataProvider: newFakeMetadataProvider(idp)}
	resolver := NewLocalArtifactResolver(m)

	decodeReq := httptest.NewRequest("GET", location, nil)
	result, err := b.Decode(transport.NewHTTPRequest(decodeReq), pol, resolver, nil, nil, func() saml.Message { return new(saml.Response) })
	require.NoError(t, err)
	assert.Equal(t, "relay-1", result.RelayState)
	assert.Equal(t, "https://idp.example.com/entity", pol.Issuer)

	decoded, ok := result.MsgCtx.Message.(*saml.Response)
	require.True(t, ok)
	assert.Equal(t, "resp-1", decoded.ID)
	assert.Equal(t, 0, m.Len())
}

func TestArtifactBindingDecodeMissingParameter(t *testing.T) {
	m := saml.NewArtifactMap()
	b := NewArtifactBinding(m)
	req := httptest.NewRequest("GET", "https://sp.example.com/acs?RelayState=x", nil)
	_, err := b.Decode(transport.NewHTTPRequest(req), nil, nil, nil, nil, func() saml.Message { return new(saml.Response) })
	require.Error(t, err)
}

// TestArtifactBindingDecodeUnknownIssuerSourceID confirms a metadata
// provider that has no entity indexed under the artifact's SourceID
// is reported as a security-policy failure rather than silently
// skipping the lookup.
func TestArtifactBindingDecodeUnknownIssuerSourceID(t *testing.T) {
	m := saml.NewArtifactMap()
	b := NewArtifactBinding(m)

	authnResponse := &saml.Response{
		StatusResponseType: saml.StatusResponseType{
			ID:           "resp-1",
			Version:      "2.0",
			IssueInstant: saml.TimeNow(),
			Destination:  "https://sp.example.com/acs",
			Issuer:       *saml.NewIssuer("https://idp.example.com/entity"),
		},
	}

	dummyReq := httptest.NewRequest("GET", "https://idp.example.com/", nil)
	rec := httptest.NewRecorder()
	resp := transport.NewHTTPResponse(rec, dummyReq)
	require.NoError(t, b.EncodeForRecipient(resp, authnResponse, "relay-1", "", saml.DefaultValidDuration, 0))

	location := rec.Header().Get("Location")
	pol := &policy.SecurityPolicy{MetadataProvider: newFakeMetadataProvider()}
	resolver := NewLocalArtifactResolver(m)

	decodeReq := httptest.NewRequest("GET", location, nil)
	_, err := b.Decode(transport.NewHTTPRequest(decodeReq), pol, resolver, nil, nil, func() saml.Message { return new(saml.Response) })
	require.Error(t, err)

	secErr, ok := err.(*saml.SecurityPolicyError)
	require.True(t, ok)
	assert.Equal(t, saml.SecurityPolicyUnknownIssuer, secErr.Kind)
}

func TestHTTPArtifactResolverResolve(t *testing.T) {
	responded := &saml.ArtifactResponse{
		StatusResponseType: saml.StatusResponseType{
			ID:           "artresp-1",
			Version:      "2.0",
			IssueInstant: saml.TimeNow(),
			Issuer:       *saml.NewIssuer("https://idp.example.com/entity"),
		},
	}
	provider := saml.DefaultXmlSecurityProvider{}
	doc, err := provider.Marshal(responded)
	require.NoError(t, err)
	raw, err := provider.Serialize(doc)
	require.NoError(t, err)
	envelope, err := wrapSOAP(raw, nil)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, readErr := io.ReadAll(r.Body)
		require.NoError(t, readErr)
		assert.Contains(t, string(body), "ArtifactResolve")
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write(envelope)
	}))
	defer server.Close()

	resolver := NewHTTPArtifactResolver(server.Client())
	got, err := resolver.Resolve(server.URL, "dummy-artifact-b64", "https://sp.example.com/entity", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "artresp-1", got.ID)
}
