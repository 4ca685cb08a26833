// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseBucketAndPrefix pins the regression noted in SUPPLEMENTED
// FEATURES #3: the bucket and the prefix must be routed to separate
// fields, including the whole-bucket case where the prefix is empty.
func TestParseBucketAndPrefix(t *testing.T) {
	for _, tt := range []struct {
		name       string
		raw        string
		wantBucket string
		wantPrefix string
		wantErr    bool
	}{
		{name: "bucket and prefix", raw: "gs://my-bucket/some/prefix", wantBucket: "my-bucket", wantPrefix: "some/prefix"},
		{name: "whole bucket, no prefix", raw: "gs://my-bucket", wantBucket: "my-bucket", wantPrefix: ""},
		{name: "trailing slash", raw: "gs://my-bucket/", wantBucket: "my-bucket", wantPrefix: ""},
		{name: "missing scheme", raw: "my-bucket/prefix", wantErr: true},
		{name: "empty bucket", raw: "gs:///prefix", wantErr: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			bucket, prefix, err := parseBucketAndPrefix(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantPrefix, prefix)
		})
	}
}

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := parseFlags([]string{"./src", "gs://bucket/dest"})
	require.NoError(t, err)
	assert.Equal(t, "./src", cfg.source)
	assert.Equal(t, "gs://bucket/dest", cfg.dest)
	assert.False(t, cfg.mirror)
	assert.False(t, cfg.restoreFSMtime)
	assert.Equal(t, runtime.NumCPU(), cfg.concurrency)
	assert.Equal(t, "info", cfg.logLevel)
}

func TestParseFlagsRepeatableIncludeExclude(t *testing.T) {
	cfg, err := parseFlags([]string{
		"-i", "*.txt", "-i", "*.json",
		"-x", "**/tmp/**",
		"--mirror", "--restore-fs-mtime", "--concurrency", "4",
		"./src", "./dst",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"*.txt", "*.json"}, cfg.includes)
	assert.Equal(t, []string{"**/tmp/**"}, cfg.excludes)
	assert.True(t, cfg.mirror)
	assert.True(t, cfg.restoreFSMtime)
	assert.Equal(t, 4, cfg.concurrency)
}

func TestParseFlagsRequiresTwoPositionalArgs(t *testing.T) {
	_, err := parseFlags([]string{"./only-one"})
	assert.Error(t, err)
}
