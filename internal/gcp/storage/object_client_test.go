// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectClientGetNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	oc := newTestObjectClient(t, server)
	_, err := oc.Get(context.Background(), Object{Bucket: "b", Name: "n"})
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestObjectClientDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "media", r.URL.Query().Get("alt"))
		_, _ = w.Write([]byte("hello world!"))
	}))
	defer server.Close()

	oc := newTestObjectClient(t, server)
	body, err := oc.Download(context.Background(), Object{Bucket: "b", Name: "n"})
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello world!", string(data))
}

func TestObjectClientUploadWithMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	oc := newTestObjectClient(t, server)
	mtime := int64(99)
	err := oc.UploadWithMetadata(context.Background(), Object{Bucket: "b", Name: "n"},
		ObjectMetadata{Metadata: Metadata{ModificationTime: &mtime}}, nopReader{})
	require.NoError(t, err)
}

func TestObjectClientListPaginates(t *testing.T) {
	pages := []Objects{
		{Items: []PartialObject{namedObject("a")}, NextPageToken: "page2"},
		{Items: []PartialObject{namedObject("b")}},
	}
	call := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("pageToken")
		if call == 0 {
			assert.Empty(t, token)
		} else {
			assert.Equal(t, "page2", token)
		}
		resp := pages[call]
		call++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	oc := newTestObjectClient(t, server)
	objects, err := oc.List(context.Background(), Bucket{Name: "b"}, "prefix/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "a", *objects[0].Name)
	assert.Equal(t, "b", *objects[1].Name)
	assert.Equal(t, 2, call)
}

func namedObject(name string) PartialObject {
	n := name
	return PartialObject{Name: &n}
}

type nopReader struct{}

func (nopReader) Read(p []byte) (int, error) { return 0, io.EOF }

func newTestObjectClient(t *testing.T, server *httptest.Server) *ObjectClient {
	t.Helper()
	client := NewNoAuthClient().WithHost(server.URL)
	client.httpClient = server.Client()
	return NewObjectClient(client)
}
