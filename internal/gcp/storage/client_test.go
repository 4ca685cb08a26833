// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cboudereau/gcs-rsync/internal/gcp/oauth2"
)

type fakeCredentialProvider struct {
	calls int
	token *oauth2.Token
	err   error
}

func (f *fakeCredentialProvider) Token(ctx context.Context) (*oauth2.Token, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

func TestClientAuthorizeSetsBearerHeader(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider := &fakeCredentialProvider{token: &oauth2.Token{AccessToken: "a-token", Expiry: time.Now().Add(time.Hour)}}
	c, err := NewClient(context.Background(), provider)
	require.NoError(t, err)

	err = c.Delete(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "Bearer a-token", gotAuth)
	assert.Equal(t, 1, provider.calls)
}

func TestClientRefreshesExpiredToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider := &fakeCredentialProvider{token: &oauth2.Token{AccessToken: "first", Expiry: time.Now().Add(-time.Hour)}}
	c, err := NewClient(context.Background(), provider)
	require.NoError(t, err)

	provider.token = &oauth2.Token{AccessToken: "second", Expiry: time.Now().Add(time.Hour)}
	err = c.Delete(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
}

func TestNoAuthClientSendsNoAuthorizationHeader(t *testing.T) {
	var gotAuth string
	gotAnyHeader := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAnyHeader = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewNoAuthClient()
	err := c.Delete(context.Background(), server.URL)
	require.NoError(t, err)
	assert.True(t, gotAnyHeader)
	assert.Empty(t, gotAuth)
}

func TestClientDeleteNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewNoAuthClient()
	err := c.Delete(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestClientDeleteRetriesServerError(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewNoAuthClient()
	err := c.Delete(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestClientDeleteDoesNotRetryNotFound(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewNoAuthClient()
	err := c.Delete(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrResourceNotFound)
	assert.Equal(t, 1, attempts)
}

func TestClientDeleteUnexpectedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"forbidden"}`))
	}))
	defer server.Close()

	c := NewNoAuthClient()
	err := c.Delete(context.Background(), server.URL)
	var unexpected *UnexpectedResponseError
	require.ErrorAs(t, err, &unexpected)
	assert.Equal(t, http.StatusForbidden, unexpected.StatusCode)
}

func TestClientGetAsJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bar", r.URL.Query().Get("foo"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"kind":"storage#objects"}`))
	}))
	defer server.Close()

	c := NewNoAuthClient()
	var out Objects
	err := c.GetAsJSON(context.Background(), server.URL, url.Values{"foo": {"bar"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "storage#objects", out.Kind)
}

func TestClientGetAsStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello world!"))
	}))
	defer server.Close()

	c := NewNoAuthClient()
	body, err := c.GetAsStream(context.Background(), server.URL, nil)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello world!", string(data))
}

func TestClientPostMultipartBuildsExpectedBody(t *testing.T) {
	var gotContentType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewNoAuthClient()
	mtime := int64(1234)
	metadata := ObjectMetadata{Metadata: Metadata{ModificationTime: &mtime}}
	err := c.PostMultipart(context.Background(), server.URL, metadata, strings.NewReader("hello world!"))
	require.NoError(t, err)

	assert.Equal(t, "multipart/related; boundary=gcs-storage", gotContentType)
	assert.Contains(t, string(gotBody), `"goog-reserved-file-mtime":1234`)
	assert.Contains(t, string(gotBody), "hello world!")
	assert.Contains(t, string(gotBody), "Content-Type: application/json")
	assert.Contains(t, string(gotBody), "Content-Type: application/octet-stream")
}
