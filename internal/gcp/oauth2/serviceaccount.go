// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const serviceAccountTokenURL = "https://www.googleapis.com/oauth2/v4/token"

// ServiceAccountCredentials is the shape of a "service_account" credentials
// JSON key file.
type ServiceAccountCredentials struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"project_id"`
	PrivateKeyID            string `json:"private_key_id"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	ClientID                string `json:"client_id"`
	AuthURI                 string `json:"auth_uri"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url"`
	Scope                   string `json:"-"`

	httpClient *http.Client
	tokenURL   string // overridden in tests; defaults to serviceAccountTokenURL
}

// ParseServiceAccountCredentials decodes a service-account credentials JSON
// document.
func ParseServiceAccountCredentials(data []byte) (*ServiceAccountCredentials, error) {
	var c ServiceAccountCredentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("error decoding service-account credentials: %w", err)
	}
	return &c, nil
}

// ServiceAccountCredentialsFromFile reads and decodes a service-account key
// file.
func ServiceAccountCredentialsFromFile(path string) (*ServiceAccountCredentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading service-account credentials file %q: %w", path, err)
	}
	return ParseServiceAccountCredentials(data)
}

// DefaultServiceAccountCredentials loads credentials from the path named by
// GOOGLE_APPLICATION_CREDENTIALS.
func DefaultServiceAccountCredentials() (*ServiceAccountCredentials, error) {
	path, ok := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS")
	if !ok {
		return nil, fmt.Errorf("GOOGLE_APPLICATION_CREDENTIALS is not set")
	}
	return ServiceAccountCredentialsFromFile(path)
}

// WithScope returns a copy of c scoped to the given OAuth2 scope string.
func (c ServiceAccountCredentials) WithScope(scope string) *ServiceAccountCredentials {
	c.Scope = scope
	return &c
}

type serviceAccountClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// Token builds and signs a JWT assertion with the service account's private
// key and exchanges it for an access token.
func (c *ServiceAccountCredentials) Token(ctx context.Context) (*Token, error) {
	if c.Scope == "" {
		return nil, fmt.Errorf("service account credentials have no scope set")
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(c.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("error parsing service account private key: %w", err)
	}

	tokenURL := c.tokenURL
	if tokenURL == "" {
		tokenURL = serviceAccountTokenURL
	}

	now := time.Now()
	claims := serviceAccountClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.ClientEmail,
			Audience:  jwt.ClaimStrings{tokenURL},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Scope: c.Scope,
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return nil, fmt.Errorf("error signing service account JWT assertion: %w", err)
	}

	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error building service account token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error requesting service account token: %w", err)
	}
	defer resp.Body.Close()

	token, err := decodeTokenResponse(resp)
	if err != nil {
		return nil, err
	}
	token.Scope = c.Scope
	return token, nil
}
