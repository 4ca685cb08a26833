// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

package oauth2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCredentialsDispatchesOnType(t *testing.T) {
	t.Run("authorized_user", func(t *testing.T) {
		raw := []byte(`{"type":"authorized_user","client_id":"id","client_secret":"secret","refresh_token":"token"}`)
		c, err := LoadCredentials(raw, "")
		require.NoError(t, err)
		_, ok := c.(*AuthorizedUserCredentials)
		assert.True(t, ok)
	})

	t.Run("service_account", func(t *testing.T) {
		raw := []byte(`{"type":"service_account","client_email":"a@b.com","private_key":"key"}`)
		c, err := LoadCredentials(raw, "a-scope")
		require.NoError(t, err)
		sa, ok := c.(*ServiceAccountCredentials)
		require.True(t, ok)
		assert.Equal(t, "a-scope", sa.Scope)
	})

	t.Run("unsupported type", func(t *testing.T) {
		raw := []byte(`{"type":"impersonated_service_account"}`)
		_, err := LoadCredentials(raw, "")
		assert.Error(t, err)
	})
}
