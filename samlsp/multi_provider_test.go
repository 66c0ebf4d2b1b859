package samlsp

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/federate-go/saml"
)

func TestMultiServiceProviderRegisterAndGet(t *testing.T) {
	smp := NewMultiServiceProvider()
	acsURL, _ := url.Parse("https://sp.example.com/acs")
	tp := &TenantProvider{EntityID: "https://sp.example.com/entity", AcsURL: *acsURL}
	smp.RegisterTenant(tp)

	got, err := smp.GetServiceProvider("https://sp.example.com/entity")
	require.NoError(t, err)
	assert.Same(t, tp, got)
}

func TestMultiServiceProviderGetServiceProviderUnknown(t *testing.T) {
	smp := NewMultiServiceProvider()
	_, err := smp.GetServiceProvider("https://unknown.example.com/entity")
	require.Error(t, err)
}

func TestMultiServiceProviderMakeWayfRedirectRequest(t *testing.T) {
	smp := NewMultiServiceProvider()
	smp.EntityID = "https://sp.example.com/entity"
	wayfName := "https://wayf.example.com/discovery"
	smp.IDPMetadata = &saml.EntitiesDescriptor{Name: &wayfName}

	u, err := smp.MakeWayfRedirectRequest("relay-1", "https://sp.example.com/return")
	require.NoError(t, err)
	assert.Equal(t, "wayf.example.com", u.Host)
	assert.Equal(t, "https://sp.example.com/entity", u.Query().Get("entityID"))
	assert.Contains(t, u.Query().Get("return"), "rs=relay-1")
}

func TestMultiServiceProviderMakeWayfRedirectRequestNoIDPMetadata(t *testing.T) {
	smp := NewMultiServiceProvider()
	_, err := smp.MakeWayfRedirectRequest("relay-1", "https://sp.example.com/return")
	require.Error(t, err)
}

func TestMultiServiceProviderMetadata(t *testing.T) {
	smp := NewMultiServiceProvider()
	acsURL, _ := url.Parse("https://sp.example.com/acs")
	tp := &TenantProvider{
		EntityID:          "https://sp.example.com/entity",
		AcsURL:            *acsURL,
		AuthnNameIDFormat: saml.PersistentNameIDFormat,
	}
	smp.RegisterTenant(tp)

	ed, err := smp.Metadata("https://sp.example.com/entity")
	require.NoError(t, err)
	assert.Equal(t, "https://sp.example.com/entity", ed.EntityID)
	require.Len(t, ed.SPSSODescriptors, 1)
	assert.Len(t, ed.SPSSODescriptors[0].AssertionConsumerServices, 2)
}

func TestMultiServiceProviderMetadataUnknownTenant(t *testing.T) {
	smp := NewMultiServiceProvider()
	_, err := smp.Metadata("https://unknown.example.com/entity")
	require.Error(t, err)
}
