// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

package rsync

import (
	"context"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func listAll(t *testing.T, ctx context.Context, ep Endpoint) []RelativePath {
	t.Helper()
	it, err := ep.List(ctx)
	require.NoError(t, err)
	var out []RelativePath
	for {
		p, ok, err := it.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestFSEndpointList(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "hello/world/test.txt", "Hello World")
	writeFile(t, root, "test.json", "Hello World")
	writeFile(t, root, "a/long/path/hello_world.toml", "Hello World")

	ep := NewFSEndpoint(root)
	got := listAll(t, context.Background(), ep)
	assert.Equal(t, []RelativePath{
		"a/long/path/hello_world.toml",
		"hello/world/test.txt",
		"test.json",
	}, got)
}

func TestFSEndpointWriteCreatesParentDirs(t *testing.T) {
	root := t.TempDir()
	ep := NewFSEndpoint(root)
	ctx := context.Background()

	err := ep.Write(ctx, "a/b/c/new.json", nil, false, strings.NewReader("new file"))
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(root, "a/b/c/new.json"))
	require.NoError(t, err)
	assert.Equal(t, "new file", string(got))
}

func TestFSEndpointWriteMtimeOptIn(t *testing.T) {
	root := t.TempDir()
	ep := NewFSEndpoint(root)
	ctx := context.Background()
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, ep.Write(ctx, "no-restore.txt", &mtime, false, strings.NewReader("x")))
	sm, err := ep.SizeAndMtime(ctx, "no-restore.txt")
	require.NoError(t, err)
	assert.NotEqual(t, mtime.Unix(), sm.Mtime.Unix())

	require.NoError(t, ep.Write(ctx, "restore.txt", &mtime, true, strings.NewReader("x")))
	sm, err = ep.SizeAndMtime(ctx, "restore.txt")
	require.NoError(t, err)
	assert.Equal(t, mtime.Unix(), sm.Mtime.Unix())
}

func TestFSEndpointSizeAndMtimeAbsent(t *testing.T) {
	ep := NewFSEndpoint(t.TempDir())
	sm, err := ep.SizeAndMtime(context.Background(), "missing.txt")
	require.NoError(t, err)
	assert.True(t, sm.Absent())
}

func TestFSEndpointCRC32CAbsent(t *testing.T) {
	ep := NewFSEndpoint(t.TempDir())
	_, ok, err := ep.GetCRC32C(context.Background(), "missing.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFSEndpointCRC32CMatchesGoStdlib(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "greeting.txt", "hello world!")
	ep := NewFSEndpoint(root)

	got, ok, err := ep.GetCRC32C(context.Background(), "greeting.txt")
	require.NoError(t, err)
	require.True(t, ok)

	table := crc32.MakeTable(crc32.Castagnoli)
	want := crc32.Checksum([]byte("hello world!"), table)
	assert.Equal(t, want, got)
	// Literal value pinned by spec scenario 7.
	assert.EqualValues(t, 1238062967, got)
}

func TestFSEndpointDeleteIsIdempotent(t *testing.T) {
	ep := NewFSEndpoint(t.TempDir())
	assert.NoError(t, ep.Delete(context.Background(), "never-existed.txt"))
}
