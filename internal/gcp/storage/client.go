// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cboudereau/gcs-rsync/internal/gcp/oauth2"
	"github.com/cboudereau/gcs-rsync/internal/retry"
)

// defaultRetryFailures is the failure counter used by clients built without
// WithMetrics, since retry.Operation requires a non-nil counter.
var defaultRetryFailures = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "gcs_rsync_unregistered_retry_failures_total",
})

// Client is a minimal GCS JSON API HTTP client: it caches the current
// access token behind an RWMutex and refreshes it on demand under the write
// lock, re-checking first, so at most one refresh is in flight at a time.
// Its host is configurable so STORAGE_EMULATOR_HOST and
// tests can point it at something other than production GCS.
type Client struct {
	httpClient *http.Client
	tokenGen   oauth2.CredentialProvider // nil in no-auth mode
	host       string                    // defaults to DefaultHost

	mu    sync.RWMutex
	token *oauth2.Token

	// requestLatency and tokenRefreshes are optional Prometheus
	// instruments set via WithMetrics; both are nil-safe.
	requestLatency *prometheus.HistogramVec
	tokenRefreshes *prometheus.CounterVec
	retryFailures  prometheus.Counter
	providerKind   string
}

// NewClient builds a Client backed by tokenGen, fetching an initial token
// so construction fails fast on bad credentials.
func NewClient(ctx context.Context, tokenGen oauth2.CredentialProvider) (*Client, error) {
	c := &Client{
		httpClient: http.DefaultClient,
		tokenGen:   tokenGen,
	}
	token, err := tokenGen.Token(ctx)
	if err != nil {
		return nil, &TokenError{Err: err}
	}
	c.token = token
	return c, nil
}

// NewNoAuthClient builds a Client that sends no Authorization header, for
// reading public objects.
func NewNoAuthClient() *Client {
	return &Client{httpClient: http.DefaultClient}
}

// WithHost returns a copy of c pointed at host instead of DefaultHost, for
// STORAGE_EMULATOR_HOST support.
func (c *Client) WithHost(host string) *Client {
	clone := *c
	clone.host = host
	return &clone
}

// WithMetrics returns a copy of c that records request latency (labeled by
// method and status) into requestLatency, counts token refreshes (labeled
// providerKind) into tokenRefreshes, and counts retryable request failures
// into retryFailures. Any of the three may be nil; retryFailures falls back to
// an unregistered counter since retry.Do requires one.
func (c *Client) WithMetrics(requestLatency *prometheus.HistogramVec, tokenRefreshes *prometheus.CounterVec, retryFailures prometheus.Counter, providerKind string) *Client {
	clone := *c
	clone.requestLatency = requestLatency
	clone.tokenRefreshes = tokenRefreshes
	if retryFailures != nil {
		clone.retryFailures = retryFailures
	}
	clone.providerKind = providerKind
	return &clone
}

func (c *Client) retryFailureCounter() prometheus.Counter {
	if c.retryFailures != nil {
		return c.retryFailures
	}
	return defaultRetryFailures
}

// isRetryableResponse reports whether err from a completed GET/DELETE round
// trip (transport failure or a decoded UnexpectedResponseError) is worth
// retrying: rate limiting, server errors, or the request never reaching GCS
// at all. 4xx errors other than 429, and ErrResourceNotFound, are not retried.
func isRetryableResponse(err error) bool {
	if err == nil {
		return false
	}
	var unexpected *UnexpectedResponseError
	if errors.As(err, &unexpected) {
		return unexpected.StatusCode == http.StatusTooManyRequests || unexpected.StatusCode >= 500
	}
	return !errors.Is(err, ErrResourceNotFound)
}

func (c *Client) hostOrDefault() string {
	if c.host == "" {
		return DefaultHost
	}
	return c.host
}

func (c *Client) objectURL(o Object) string {
	return c.hostOrDefault() + "/storage/v1" + o.path()
}

func (c *Client) objectUploadURL(o Object, uploadType string) string {
	return c.hostOrDefault() + "/upload/storage/v1" + o.uploadPath(uploadType)
}

func (c *Client) bucketURL(b Bucket) string {
	return c.hostOrDefault() + "/storage/v1" + b.path()
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.tokenGen == nil {
		return "", nil
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token.IsValid() {
		return token.AccessToken, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token.IsValid() {
		return c.token.AccessToken, nil
	}
	token, err := c.tokenGen.Token(ctx)
	if err != nil {
		return "", &TokenError{Err: err}
	}
	c.token = token
	if c.tokenRefreshes != nil {
		c.tokenRefreshes.WithLabelValues(c.providerKind).Inc()
	}
	return token.AccessToken, nil
}

// do performs req and, if c.requestLatency is set, records the elapsed time
// labeled by HTTP method and resulting status code (or "error").
func (c *Client) do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.requestLatency != nil {
		status := "error"
		if resp != nil {
			status = strconv.Itoa(resp.StatusCode)
		}
		c.requestLatency.WithLabelValues(req.Method, status).Observe(float64(time.Since(start).Milliseconds()))
	}
	return resp, err
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.tokenGen == nil {
		return nil
	}
	accessToken, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return nil
}

func successResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrResourceNotFound
	}
	body, _ := io.ReadAll(resp.Body)
	return &UnexpectedResponseError{StatusCode: resp.StatusCode, Body: json.RawMessage(body)}
}

// Delete issues an authenticated DELETE against url, retrying on rate
// limiting, server errors, and transport failures.
func (c *Client) Delete(ctx context.Context, rawURL string) error {
	return retry.Do(ctx, retry.Operation{
		Description:    "delete gcs object",
		FailureCounter: c.retryFailureCounter(),
		IsRetryable:    isRetryableResponse,
		Func: func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodDelete, rawURL, nil)
			if err != nil {
				return fmt.Errorf("error building delete request: %w", err)
			}
			if err := c.authorize(ctx, req); err != nil {
				return err
			}
			resp, err := c.do(req)
			if err != nil {
				return fmt.Errorf("error performing delete request: %w", err)
			}
			defer resp.Body.Close()
			return successResponse(resp)
		},
	})
}

// Post issues an authenticated simple-media POST, streaming body as the
// request body.
func (c *Client) Post(ctx context.Context, rawURL string, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, body)
	if err != nil {
		return fmt.Errorf("error building post request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if err := c.authorize(ctx, req); err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("error performing post request: %w", err)
	}
	defer resp.Body.Close()
	return successResponse(resp)
}

// multipartBoundary is the fixed boundary used for multipart/related
// metadata+media uploads, matching gsutil's own convention.
const multipartBoundary = "gcs-storage"

// PostMultipart issues an authenticated multipart/related upload combining
// a JSON metadata part and a media part.
//
// Reference: https://cloud.google.com/storage/docs/json_api/v1/how-tos/multipart-upload
func (c *Client) PostMultipart(ctx context.Context, rawURL string, metadata ObjectMetadata, body io.Reader) error {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("error encoding multipart upload metadata: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	if err := mw.SetBoundary(multipartBoundary); err != nil {
		return fmt.Errorf("error setting multipart boundary: %w", err)
	}

	go func() {
		err := func() error {
			metadataPart, err := mw.CreatePart(map[string][]string{"Content-Type": {"application/json; charset=UTF-8"}})
			if err != nil {
				return err
			}
			if _, err := metadataPart.Write(metadataJSON); err != nil {
				return err
			}

			mediaPart, err := mw.CreatePart(map[string][]string{"Content-Type": {"application/octet-stream"}})
			if err != nil {
				return err
			}
			if _, err := io.Copy(mediaPart, body); err != nil {
				return err
			}
			return mw.Close()
		}()
		_ = pw.CloseWithError(err)
	}()

	contentType := "multipart/related; boundary=" + multipartBoundary
	return c.Post(ctx, rawURL, contentType, pr)
}

// GetAsJSON issues an authenticated GET and decodes the response body as
// JSON into out, retrying on rate limiting, server errors, and transport
// failures.
func (c *Client) GetAsJSON(ctx context.Context, rawURL string, query url.Values, out any) error {
	return retry.Do(ctx, retry.Operation{
		Description:    "get gcs resource as json",
		FailureCounter: c.retryFailureCounter(),
		IsRetryable:    isRetryableResponse,
		Func: func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return fmt.Errorf("error building get request: %w", err)
			}
			req.URL.RawQuery = query.Encode()
			if err := c.authorize(ctx, req); err != nil {
				return err
			}
			resp, err := c.do(req)
			if err != nil {
				return fmt.Errorf("error performing get request: %w", err)
			}
			defer resp.Body.Close()
			if err := successResponse(resp); err != nil {
				return err
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("error decoding json response: %w", err)
			}
			return nil
		},
	})
}

// GetAsStream issues an authenticated GET and returns the response body for
// the caller to stream and close. Only the request itself is retried, since
// once the body is handed back the caller owns its streaming.
func (c *Client) GetAsStream(ctx context.Context, rawURL string, query url.Values) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := retry.Do(ctx, retry.Operation{
		Description:    "get gcs resource as stream",
		FailureCounter: c.retryFailureCounter(),
		IsRetryable:    isRetryableResponse,
		Func: func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return fmt.Errorf("error building get request: %w", err)
			}
			req.URL.RawQuery = query.Encode()
			if err := c.authorize(ctx, req); err != nil {
				return err
			}
			resp, err := c.do(req)
			if err != nil {
				return fmt.Errorf("error performing get request: %w", err)
			}
			if err := successResponse(resp); err != nil {
				resp.Body.Close()
				return err
			}
			body = resp.Body
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
