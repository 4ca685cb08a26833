// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

package rsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRelativePath(t *testing.T) {
	for _, tt := range []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "simple", input: "test.json", want: "test.json"},
		{name: "nested", input: "a/long/path/hello_world.toml", want: "a/long/path/hello_world.toml"},
		{name: "backslashes normalized", input: `hello\world\test.txt`, want: "hello/world/test.txt"},
		{name: "empty is an error", input: "", wantErr: true},
		{name: "single slash is an error", input: "/", wantErr: true},
		{name: "rooted is an error", input: "/etc/passwd", wantErr: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewRelativePath(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}
