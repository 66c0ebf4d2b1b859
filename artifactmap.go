package saml

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/beevik/etree"
)

// artifactMapEntry holds exactly one owned SAML object tree: once
// stored, the caller's own reference must not be used again.
type artifactMapEntry struct {
	doc                        *etree.Document
	intendedRecipientEntityID  string
	expiresAt                  time.Time
}

const artifactMapStripes = 64

// ArtifactMap is the server-side store mapping outbound artifacts to
// the SAML payloads they reference. Entries are single-use: the
// first successful Retrieve removes them. It is implemented with
// striped locks chosen by a hash of the artifact's full byte string,
// so unrelated artifacts usually land on different stripes.
type ArtifactMap struct {
	stripes [artifactMapStripes]artifactMapStripe
}

type artifactMapStripe struct {
	mu      sync.Mutex
	entries map[string]*artifactMapEntry
}

// NewArtifactMap constructs an empty ArtifactMap.
func NewArtifactMap() *ArtifactMap {
	m := &ArtifactMap{}
	for i := range m.stripes {
		m.stripes[i].entries = make(map[string]*artifactMapEntry)
	}
	return m
}

func artifactMapKey(a SAMLArtifact) string {
	return hex.EncodeToString(a.Bytes())
}

func (m *ArtifactMap) stripeFor(key string) *artifactMapStripe {
	var h uint32
	for i := 0; i < len(key); i++ {
		h = h*31 + uint32(key[i])
	}
	return &m.stripes[h%artifactMapStripes]
}

// Store takes ownership of samlDoc (the caller must not read or write
// it after this call returns) and files it under artifact, bound to
// intendedRecipientEntityID (empty string means "any recipient may
// retrieve it") with the given TTL.
func (m *ArtifactMap) Store(samlDoc *etree.Document, artifact SAMLArtifact, intendedRecipientEntityID string, ttl time.Duration) {
	key := artifactMapKey(artifact)
	stripe := m.stripeFor(key)
	entry := &artifactMapEntry{
		doc:                       samlDoc,
		intendedRecipientEntityID: intendedRecipientEntityID,
		expiresAt:                 TimeNow().Add(ttl),
	}
	stripe.mu.Lock()
	stripe.entries[key] = entry
	stripe.mu.Unlock()
	// The local samlDoc variable is the caller's only reference; once
	// control returns here the caller is expected to discard it, so
	// there is nothing further to release on this side.
}

// Retrieve is an atomic test-and-remove: on success the entry is
// handed to the caller and deleted, so a second Retrieve of the same
// artifact always fails with ArtifactNotFound.
func (m *ArtifactMap) Retrieve(artifact SAMLArtifact, requestingEntityID string) (*etree.Document, error) {
	key := artifactMapKey(artifact)
	stripe := m.stripeFor(key)

	stripe.mu.Lock()
	defer stripe.mu.Unlock()

	entry, ok := stripe.entries[key]
	if !ok {
		return nil, NewArtifactError(ArtifactNotFound, "no entry for artifact")
	}
	if entry.intendedRecipientEntityID != "" && entry.intendedRecipientEntityID != requestingEntityID {
		return nil, NewArtifactError(ArtifactWrongRecipient, "artifact retrieved by unintended recipient")
	}
	if TimeNow().After(entry.expiresAt) {
		delete(stripe.entries, key)
		return nil, NewArtifactError(ArtifactExpired, "artifact TTL elapsed")
	}
	delete(stripe.entries, key)
	return entry.doc, nil
}

// Len reports the number of live (not necessarily unexpired) entries,
// for tests and diagnostics only.
func (m *ArtifactMap) Len() int {
	n := 0
	for i := range m.stripes {
		m.stripes[i].mu.Lock()
		n += len(m.stripes[i].entries)
		m.stripes[i].mu.Unlock()
	}
	return n
}
