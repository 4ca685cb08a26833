// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

package oauth2

import (
	"context"
	"fmt"
	"net/http"
)

const metadataServerTokenURL = "http://metadata.google.internal/computeMetadata/v1/instance/service-accounts/default/token"

// MetadataServerCredentials fetches tokens from the GCE/GKE metadata server,
// the credential source used inside a Google Cloud VM or pod with workload
// identity.
type MetadataServerCredentials struct {
	httpClient *http.Client
	tokenURL   string // overridden in tests; defaults to metadataServerTokenURL
}

// NewMetadataServerCredentials returns the default metadata-server
// credential provider.
func NewMetadataServerCredentials() *MetadataServerCredentials {
	return &MetadataServerCredentials{}
}

// Token fetches the default service account's access token from the
// metadata server.
func (c *MetadataServerCredentials) Token(ctx context.Context) (*Token, error) {
	tokenURL := c.tokenURL
	if tokenURL == "" {
		tokenURL = metadataServerTokenURL
	}

	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error building metadata server token request: %w", err)
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error requesting metadata server token: %w", err)
	}
	defer resp.Body.Close()

	return decodeTokenResponse(resp)
}
