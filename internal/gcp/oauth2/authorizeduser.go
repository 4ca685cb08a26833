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
)

const authorizedUserTokenURL = "https://accounts.google.com/o/oauth2/token"

// AuthorizedUserCredentials is the shape of an "authorized_user" credentials
// JSON file, e.g. the one written by `gcloud auth application-default login`.
type AuthorizedUserCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`

	httpClient *http.Client
	tokenURL   string // overridden in tests; defaults to authorizedUserTokenURL
}

// ParseAuthorizedUserCredentials decodes an authorized-user credentials JSON
// document.
func ParseAuthorizedUserCredentials(data []byte) (*AuthorizedUserCredentials, error) {
	var c AuthorizedUserCredentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("error decoding authorized-user credentials: %w", err)
	}
	return &c, nil
}

// AuthorizedUserCredentialsFromFile reads and decodes a credentials file.
func AuthorizedUserCredentialsFromFile(path string) (*AuthorizedUserCredentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading authorized-user credentials file %q: %w", path, err)
	}
	return ParseAuthorizedUserCredentials(data)
}

// DefaultAuthorizedUserCredentials loads credentials from the path named by
// GOOGLE_APPLICATION_CREDENTIALS.
func DefaultAuthorizedUserCredentials() (*AuthorizedUserCredentials, error) {
	path, ok := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS")
	if !ok {
		return nil, fmt.Errorf("GOOGLE_APPLICATION_CREDENTIALS is not set")
	}
	return AuthorizedUserCredentialsFromFile(path)
}

// Token exchanges the stored refresh token for a new access token.
func (c *AuthorizedUserCredentials) Token(ctx context.Context) (*Token, error) {
	tokenURL := c.tokenURL
	if tokenURL == "" {
		tokenURL = authorizedUserTokenURL
	}

	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	form := url.Values{
		"client_id":     {c.ClientID},
		"client_secret": {c.ClientSecret},
		"refresh_token": {c.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error building authorized-user token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error requesting authorized-user token: %w", err)
	}
	defer resp.Body.Close()

	return decodeTokenResponse(resp)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

func decodeTokenResponse(resp *http.Response) (*Token, error) {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %s fetching token", resp.Status)
	}
	var t tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, fmt.Errorf("error decoding token response: %w", err)
	}
	return &Token{
		AccessToken: t.AccessToken,
		TokenType:   t.TokenType,
		Expiry:      time.Now().Add(time.Duration(t.ExpiresIn) * time.Second),
		Scope:       t.Scope,
	}, nil
}
