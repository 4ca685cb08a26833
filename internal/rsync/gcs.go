// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

package rsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cboudereau/gcs-rsync/internal/gcp/storage"
)

// GCSEndpoint is a GCS bucket+prefix Endpoint. It translates between the
// engine's RelativePath vocabulary and GCS object names (object name =
// prefix + relative path) and delegates transport to an ObjectClient.
type GCSEndpoint struct {
	client *storage.ObjectClient
	bucket storage.Bucket
	prefix string
}

// NormalizeGCSPrefix canonicalizes a prefix per spec §3: a non-empty
// prefix never starts with "/" and always ends with "/"; the empty prefix
// denotes the whole bucket. This is the single place prefix normalization
// happens, since spec §9 flags inconsistent normalization across adapters
// as a bug to avoid.
func NormalizeGCSPrefix(prefix string) string {
	prefix = strings.TrimLeft(prefix, "/")
	if prefix == "" {
		return ""
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

// NewGCSEndpoint returns an Endpoint over bucket, scoped to prefix.
func NewGCSEndpoint(client *storage.ObjectClient, bucket, prefix string) *GCSEndpoint {
	return &GCSEndpoint{
		client: client,
		bucket: storage.Bucket{Name: bucket},
		prefix: NormalizeGCSPrefix(prefix),
	}
}

func (e *GCSEndpoint) String() string {
	return fmt.Sprintf("gs://%s/%s", e.bucket.Name, e.prefix)
}

func (e *GCSEndpoint) object(path RelativePath) (storage.Object, error) {
	return storage.NewObject(e.bucket.Name, e.prefix+string(path))
}

// relativePath strips the endpoint's prefix from a GCS object name, the
// way the engine expects a listing result to be expressed. Mirror's
// destination-list phase depends on this stripping happening uniformly so
// filter evaluation stays consistent (spec §9).
func (e *GCSEndpoint) relativePath(objectName string) (RelativePath, error) {
	return NewRelativePath(strings.TrimPrefix(objectName, e.prefix))
}

type gcsLister struct {
	endpoint  *GCSEndpoint
	pageToken string
	started   bool
	items     []storage.PartialObject
}

func (e *GCSEndpoint) List(ctx context.Context) (PathIterator, error) {
	return &gcsLister{endpoint: e}, nil
}

func (w *gcsLister) Next(ctx context.Context) (RelativePath, bool, error) {
	for {
		if len(w.items) > 0 {
			item := w.items[0]
			w.items = w.items[1:]
			if item.Name == nil {
				return "", false, fmt.Errorf("gcs list item in bucket %s is missing required field \"name\"", w.endpoint.bucket.Name)
			}
			return w.endpoint.relativePath(*item.Name)
		}
		if w.started && w.pageToken == "" {
			return "", false, nil
		}
		page, err := w.endpoint.client.ListPage(ctx, w.endpoint.bucket, w.endpoint.prefix, w.pageToken)
		if err != nil {
			return "", false, err
		}
		w.started = true
		w.pageToken = page.NextPageToken
		w.items = page.Items
		if len(w.items) == 0 && w.pageToken == "" {
			return "", false, nil
		}
	}
}

func (e *GCSEndpoint) Read(ctx context.Context, path RelativePath) (io.ReadCloser, error) {
	obj, err := e.object(path)
	if err != nil {
		return nil, err
	}
	return e.client.Download(ctx, obj)
}

func (e *GCSEndpoint) Write(ctx context.Context, path RelativePath, mtime *time.Time, _ bool, data io.Reader) error {
	obj, err := e.object(path)
	if err != nil {
		return err
	}
	if mtime == nil {
		return e.client.Upload(ctx, obj, data)
	}
	unixSeconds := mtime.Unix()
	metadata := storage.ObjectMetadata{
		Metadata: storage.Metadata{ModificationTime: &unixSeconds},
	}
	return e.client.UploadWithMetadata(ctx, obj, metadata, data)
}

func (e *GCSEndpoint) GetCRC32C(ctx context.Context, path RelativePath) (uint32, bool, error) {
	obj, err := e.object(path)
	if err != nil {
		return 0, false, err
	}
	partial, err := e.client.Get(ctx, obj)
	if err != nil {
		if errors.Is(err, storage.ErrResourceNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if partial.CRC32C == nil {
		return 0, false, nil
	}
	return uint32(*partial.CRC32C), true, nil
}

func (e *GCSEndpoint) SizeAndMtime(ctx context.Context, path RelativePath) (SizeAndMtime, error) {
	obj, err := e.object(path)
	if err != nil {
		return SizeAndMtime{}, err
	}
	partial, err := e.client.Get(ctx, obj)
	if err != nil {
		if errors.Is(err, storage.ErrResourceNotFound) {
			return SizeAndMtime{}, nil
		}
		return SizeAndMtime{}, err
	}

	var out SizeAndMtime
	if partial.Size != nil {
		size := uint64(*partial.Size)
		out.Size = &size
	}
	if partial.Metadata != nil && partial.Metadata.ModificationTime != nil {
		mtime := time.Unix(*partial.Metadata.ModificationTime, 0).UTC()
		out.Mtime = &mtime
	}
	return out, nil
}

func (e *GCSEndpoint) Exists(ctx context.Context, path RelativePath) (bool, error) {
	obj, err := e.object(path)
	if err != nil {
		return false, err
	}
	if _, err := e.client.Get(ctx, obj); err != nil {
		if errors.Is(err, storage.ErrResourceNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (e *GCSEndpoint) Delete(ctx context.Context, path RelativePath) error {
	obj, err := e.object(path)
	if err != nil {
		return err
	}
	if err := e.client.Delete(ctx, obj); err != nil {
		if errors.Is(err, storage.ErrResourceNotFound) {
			return nil
		}
		return err
	}
	return nil
}
