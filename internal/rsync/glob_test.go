// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

package rsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterAdmit(t *testing.T) {
	paths := []RelativePath{
		"hello/world/test.txt",
		"test.json",
		"a/long/path/hello_world.toml",
	}

	for _, tt := range []struct {
		name     string
		includes []string
		excludes []string
		want     []RelativePath
	}{
		{
			name: "no filters admits everything",
			want: paths,
		},
		{
			name:     "include by extension",
			includes: []string{"*.txt"},
			want:     []RelativePath{"hello/world/test.txt"},
		},
		{
			name:     "exclude by double-star patterns",
			excludes: []string{"a/**/hello_world.toml", "hello/**/test.*"},
			want:     []RelativePath{"test.json"},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(tt.includes, tt.excludes)
			require.NoError(t, err)
			var got []RelativePath
			for _, p := range paths {
				if f.Admit(p) {
					got = append(got, p)
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterNilAdmitsEverything(t *testing.T) {
	var f *Filter
	assert.True(t, f.Admit("anything"))
}

func TestNewFilterInvalidPattern(t *testing.T) {
	_, err := NewFilter([]string{"["}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidGlob)
}
