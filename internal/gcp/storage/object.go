// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

// Package storage implements the GCS JSON API HTTP client: object identity
// and URL composition, the wire resource types, and a Client that caches
// and refreshes an OAuth2 access token under concurrent use.
package storage

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultHost is the production GCS JSON API host. Client overrides it when
// STORAGE_EMULATOR_HOST is set, so that object/bucket paths stay host-agnostic
// and only Client knows where to send the request.
const DefaultHost = "https://storage.googleapis.com"

// Object identifies a single GCS object by bucket and name.
type Object struct {
	Bucket string
	Name   string
}

// NewObject validates bucket and name per GCS object naming rules and
// returns the identified Object.
//
// Reference: https://cloud.google.com/storage/docs/naming-objects
func NewObject(bucket, name string) (Object, error) {
	if bucket == "" {
		return Object{}, ErrInvalidObjectName
	}
	if name == "" || strings.HasPrefix(name, ".") {
		return Object{}, ErrInvalidObjectName
	}
	return Object{Bucket: bucket, Name: name}, nil
}

// ParseObjectURL parses a gs://bucket/name URL into its bucket and name.
func ParseObjectURL(s string) (Object, error) {
	rest, ok := strings.CutPrefix(s, "gs://")
	if !ok {
		return Object{}, &InvalidURLError{URL: s, Message: "gs url should be gs://bucket/object/path/name"}
	}
	bucket, name, ok := strings.Cut(rest, "/")
	if !ok {
		return Object{}, &InvalidURLError{URL: s, Message: "gs url should be gs://bucket/object/path/name"}
	}
	return NewObject(bucket, name)
}

// String renders the object as a gs://bucket/name URL.
func (o Object) String() string {
	return fmt.Sprintf("gs://%s/%s", o.Bucket, o.Name)
}

// path returns the object's JSON API path, relative to a host+"/storage/v1".
func (o Object) path() string {
	return fmt.Sprintf("/b/%s/o/%s", percentEncode(o.Bucket), percentEncode(o.Name))
}

// uploadPath returns the object's JSON API upload path, relative to a
// host+"/upload/storage/v1", for the given uploadType ("media" or
// "multipart").
func (o Object) uploadPath(uploadType string) string {
	return fmt.Sprintf("/b/%s/o?uploadType=%s&name=%s",
		percentEncode(o.Bucket), uploadType, percentEncode(o.Name))
}

// Bucket identifies a GCS bucket.
type Bucket struct {
	Name string
}

// path returns the bucket's object-listing JSON API path, relative to a
// host+"/storage/v1".
func (b Bucket) path() string {
	return fmt.Sprintf("/b/%s/o", percentEncode(b.Name))
}

// percentEncode escapes s for use as a single path segment. Object names
// may themselves contain "/"; url.PathEscape already escapes it as "%2F",
// and the ReplaceAll restates that, so bucket and name each occupy exactly
// one path segment.
func percentEncode(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), "/", "%2F")
}
