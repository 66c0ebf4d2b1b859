package samlsp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/federate-go/saml"
	"github.com/federate-go/saml/logger"
)

// FetchMetadata returns metadata from an IDP metadata URL.
// Deprecated: use FetchEntityMetadata or FetchEntitiesMetadata instead.
func FetchMetadata(ctx context.Context, httpClient *http.Client, metadataURL url.URL) (*saml.EntityDescriptor, error) {
	return fetchMetadata(ctx, httpClient, metadataURL, saml.ParseMetadata)
}

func fetchMetadata[R *saml.EntityDescriptor | *saml.EntitiesDescriptor](ctx context.Context, httpClient *http.Client, metadataURL url.URL, f func(data []byte) (R, error)) (R, error) {
	req, err := http.NewRequest(http.MethodGet, metadataURL.String(), nil)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.DefaultLogger.Printf("error closing response body during metadata fetch: %v", err)
		}
	}()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("failed to fetch metadata: unexpected status code %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return f(data)
}

// FetchEntityMetadata fetches and parses a single entity's metadata
// document, unwrapping an enclosing EntitiesDescriptor if the server
// returned one.
func FetchEntityMetadata(ctx context.Context, httpClient *http.Client, metadataURL url.URL) (*saml.EntityDescriptor, error) {
	return fetchMetadata(ctx, httpClient, metadataURL, saml.ParseMetadata)
}

// FetchEntitiesMetadata fetches and parses a federation metadata
// aggregate, wrapping a bare EntityDescriptor response in a
// single-entity EntitiesDescriptor.
func FetchEntitiesMetadata(ctx context.Context, httpClient *http.Client, metadataURL url.URL) (*saml.EntitiesDescriptor, error) {
	return fetchMetadata(ctx, httpClient, metadataURL, saml.ParseEntitiesMetadata)
}
