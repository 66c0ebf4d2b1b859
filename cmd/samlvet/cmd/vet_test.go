package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	saml "github.com/federate-go/saml"
)

const vetTestMetadataXML = `<?xml version="1.0"?>
<EntitiesDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata">
  <EntityDescriptor entityID="https://idp.example.com/entity">
    <IDPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
      <SingleSignOnService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect" Location="https://idp.example.com/sso"/>
      <ArtifactResolutionService Binding="urn:oasis:names:tc:SAML:2.0:bindings:SOAP" Location="https://idp.example.com/ars" index="0"/>
    </IDPSSODescriptor>
  </EntityDescriptor>
  <EntityDescriptor entityID="https://sp.example.com/entity">
    <SPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
      <AssertionConsumerService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST" Location="https://sp.example.com/acs" index="0"/>
    </SPSSODescriptor>
  </EntityDescriptor>
</EntitiesDescriptor>`

func withCapturedOut(t *testing.T, fn func()) string {
	t.Helper()
	original := out
	var buf bytes.Buffer
	out = &buf
	defer func() { out = original }()
	fn()
	return buf.String()
}

func TestPrintEntitiesReportsRolesAndBindings(t *testing.T) {
	entities, err := saml.ParseEntitiesMetadata([]byte(vetTestMetadataXML))
	require.NoError(t, err)

	report := withCapturedOut(t, func() {
		printEntities(entities, 0)
	})

	assert.Contains(t, report, "entity https://idp.example.com/entity")
	assert.Contains(t, report, "IDPSSODescriptor")
	assert.Contains(t, report, "SingleSignOnService binding=urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect location=https://idp.example.com/sso")
	assert.Contains(t, report, "ArtifactResolutionService binding=urn:oasis:names:tc:SAML:2.0:bindings:SOAP location=https://idp.example.com/ars index=0")
	assert.Contains(t, report, "entity https://sp.example.com/entity")
	assert.Contains(t, report, "AssertionConsumerService binding=urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST location=https://sp.example.com/acs index=0")
}

func TestGetReaderReadsLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.xml")
	require.NoError(t, os.WriteFile(path, []byte(vetTestMetadataXML), 0o600))

	r, err := getReader(path)
	require.NoError(t, err)
	defer r.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal(t, vetTestMetadataXML, buf.String())
}

func TestGetReaderMissingFile(t *testing.T) {
	_, err := getReader(filepath.Join(t.TempDir(), "missing.xml"))
	assert.Error(t, err)
}

func TestVetCmdRunEParsesLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.xml")
	require.NoError(t, os.WriteFile(path, []byte(vetTestMetadataXML), 0o600))

	report := withCapturedOut(t, func() {
		require.NoError(t, vetCmd.RunE(vetCmd, []string{path}))
	})

	assert.Contains(t, report, "entity https://idp.example.com/entity")
	assert.Contains(t, report, "entity https://sp.example.com/entity")
}
