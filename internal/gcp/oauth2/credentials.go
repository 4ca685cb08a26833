// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

package oauth2

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadDefaultCredentials reads the credentials file named by
// GOOGLE_APPLICATION_CREDENTIALS and returns a CredentialProvider scoped to
// scope, dispatching on the JSON document's "type" field the same way the
// official client libraries do.
func LoadDefaultCredentials(scope string) (CredentialProvider, error) {
	path, ok := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS")
	if !ok {
		return nil, fmt.Errorf("GOOGLE_APPLICATION_CREDENTIALS is not set")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading credentials file %q: %w", path, err)
	}
	return LoadCredentials(data, scope)
}

// LoadCredentials dispatches a raw credentials JSON document to the right
// CredentialProvider based on its "type" field.
func LoadCredentials(data []byte, scope string) (CredentialProvider, error) {
	var discriminator struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &discriminator); err != nil {
		return nil, fmt.Errorf("error decoding credentials: %w", err)
	}

	switch discriminator.Type {
	case "authorized_user":
		return ParseAuthorizedUserCredentials(data)
	case "service_account":
		c, err := ParseServiceAccountCredentials(data)
		if err != nil {
			return nil, err
		}
		return c.WithScope(scope), nil
	default:
		return nil, fmt.Errorf("unsupported credentials type %q", discriminator.Type)
	}
}
