// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"fmt"
	"io"
)

// objectFields is the partial-response field set this client needs for a
// sync decision: identity, size, modification time and checksum.
const objectFields = "bucket,name,updated,size,metadata,crc32c"

// ObjectClient is a GCS object-oriented façade over Client: it knows how to
// get, list, download, upload and delete objects, but nothing about local
// files or sync decisions.
type ObjectClient struct {
	client *Client
}

// NewObjectClient wraps client in an ObjectClient.
func NewObjectClient(client *Client) *ObjectClient {
	return &ObjectClient{client: client}
}

// Get retrieves the metadata of a single object, or ErrResourceNotFound if
// it does not exist.
func (c *ObjectClient) Get(ctx context.Context, object Object) (PartialObject, error) {
	var out PartialObject
	query := ObjectsListRequest{Fields: objectFields}.Values()
	if err := c.client.GetAsJSON(ctx, c.client.objectURL(object), query, &out); err != nil {
		return PartialObject{}, fmt.Errorf("error getting object %s: %w", object, err)
	}
	return out, nil
}

// Delete removes an object. It is a no-op error if the object does not
// exist: callers that need idempotent deletes should ignore
// ErrResourceNotFound.
func (c *ObjectClient) Delete(ctx context.Context, object Object) error {
	if err := c.client.Delete(ctx, c.client.objectURL(object)); err != nil {
		return fmt.Errorf("error deleting object %s: %w", object, err)
	}
	return nil
}

// Download streams an object's media content. The caller must close the
// returned reader.
func (c *ObjectClient) Download(ctx context.Context, object Object) (io.ReadCloser, error) {
	query := ObjectsListRequest{}.Values()
	query.Set("alt", "media")
	body, err := c.client.GetAsStream(ctx, c.client.objectURL(object), query)
	if err != nil {
		return nil, fmt.Errorf("error downloading object %s: %w", object, err)
	}
	return body, nil
}

// Upload writes body as the object's media content, with no custom
// metadata.
func (c *ObjectClient) Upload(ctx context.Context, object Object, body io.Reader) error {
	if err := c.client.Post(ctx, c.client.objectUploadURL(object, "media"), "application/octet-stream", body); err != nil {
		return fmt.Errorf("error uploading object %s: %w", object, err)
	}
	return nil
}

// UploadWithMetadata writes body as the object's media content alongside
// custom metadata, such as the source modification time.
func (c *ObjectClient) UploadWithMetadata(ctx context.Context, object Object, metadata ObjectMetadata, body io.Reader) error {
	if err := c.client.PostMultipart(ctx, c.client.objectUploadURL(object, "multipart"), metadata, body); err != nil {
		return fmt.Errorf("error uploading object %s with metadata: %w", object, err)
	}
	return nil
}

// ListPage is one page of a bucket listing under a prefix.
type ListPage struct {
	Items         []PartialObject
	NextPageToken string
}

// ListPage fetches a single page of objects under prefix in bucket,
// continuing from pageToken if non-empty.
func (c *ObjectClient) ListPage(ctx context.Context, bucket Bucket, prefix, pageToken string) (ListPage, error) {
	req := ObjectsListRequest{
		Fields:    "nextPageToken,items(" + objectFields + ")",
		Prefix:    prefix,
		PageToken: pageToken,
	}
	var out Objects
	if err := c.client.GetAsJSON(ctx, c.client.bucketURL(bucket), req.Values(), &out); err != nil {
		return ListPage{}, fmt.Errorf("error listing bucket %s with prefix %q: %w", bucket.Name, prefix, err)
	}
	return ListPage{Items: out.Items, NextPageToken: out.NextPageToken}, nil
}

// List returns every object under prefix in bucket, paging through the
// full listing.
func (c *ObjectClient) List(ctx context.Context, bucket Bucket, prefix string) ([]PartialObject, error) {
	var all []PartialObject
	pageToken := ""
	for {
		page, err := c.ListPage(ctx, bucket, prefix, pageToken)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.NextPageToken == "" {
			return all, nil
		}
		pageToken = page.NextPageToken
	}
}
