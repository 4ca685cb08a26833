// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

// Package oauth2 implements the credential providers and cached access
// token used to authenticate against the GCS JSON API: authorized-user
// refresh tokens, service-account JWT assertions, and the GCE metadata
// server.
package oauth2

import (
	"context"
	"time"
)

// Token is an OAuth2 access token together with its expiry.
type Token struct {
	AccessToken string
	TokenType   string
	Expiry      time.Time
	Scope       string
}

// validityWindow is subtracted from Expiry so a token is treated as expired
// slightly before the server would actually reject it.
const validityWindow = 30 * time.Second

// IsValid reports whether the token still has more than validityWindow left
// before it expires.
func (t *Token) IsValid() bool {
	if t == nil {
		return false
	}
	return t.Expiry.Add(-validityWindow).After(time.Now())
}

// CredentialProvider produces access tokens on demand. Implementations are
// not expected to cache; caching and single-flight refresh live in
// internal/gcp/storage.Client.
type CredentialProvider interface {
	Token(ctx context.Context) (*Token, error)
}

// AccessScopes are the default OAuth2 scopes requested for GCS access.
func AccessScopes() []string {
	return []string{"https://www.googleapis.com/auth/devstorage.read_write"}
}
