// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// ObjectsListRequest is the query parameters accepted by the GCS JSON API's
// objects.list method.
//
// Reference: https://cloud.google.com/storage/docs/json_api/v1/objects/list
type ObjectsListRequest struct {
	Fields                   string
	Delimiter                string
	EndOffset                string
	IncludeTrailingDelimiter bool
	MaxResults               int
	PageToken                string
	Prefix                   string
	Projection               string
	StartOffset              string
	Versions                 bool
}

// Values renders the request as URL query parameters.
func (r ObjectsListRequest) Values() url.Values {
	v := url.Values{}
	setIfNotEmpty(v, "fields", r.Fields)
	setIfNotEmpty(v, "delimiter", r.Delimiter)
	setIfNotEmpty(v, "endOffset", r.EndOffset)
	if r.IncludeTrailingDelimiter {
		v.Set("includeTrailingDelimiter", "true")
	}
	if r.MaxResults > 0 {
		v.Set("maxResults", strconv.Itoa(r.MaxResults))
	}
	setIfNotEmpty(v, "pageToken", r.PageToken)
	setIfNotEmpty(v, "prefix", r.Prefix)
	setIfNotEmpty(v, "projection", r.Projection)
	setIfNotEmpty(v, "startOffset", r.StartOffset)
	if r.Versions {
		v.Set("versions", "true")
	}
	return v
}

func setIfNotEmpty(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

// Metadata is the GCS custom metadata map used to carry the source mtime
// across a sync, compatible with gsutil rsync's convention.
type Metadata struct {
	ModificationTime *int64
}

// MarshalJSON renders goog-reserved-file-mtime as a JSON number, matching
// what the GCS JSON API accepts on upload.
func (m Metadata) MarshalJSON() ([]byte, error) {
	if m.ModificationTime == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]int64{"goog-reserved-file-mtime": *m.ModificationTime})
}

// UnmarshalJSON accepts goog-reserved-file-mtime as either a JSON number or
// a JSON string, since GCS stores all custom metadata values as strings.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, ok := raw["goog-reserved-file-mtime"]
	if !ok {
		return nil
	}
	var asString string
	if err := json.Unmarshal(v, &asString); err == nil {
		mtime, err := strconv.ParseInt(asString, 10, 64)
		if err != nil {
			return fmt.Errorf("error parsing goog-reserved-file-mtime %q: %w", asString, err)
		}
		m.ModificationTime = &mtime
		return nil
	}
	var asNumber int64
	if err := json.Unmarshal(v, &asNumber); err != nil {
		return fmt.Errorf("error parsing goog-reserved-file-mtime: %w", err)
	}
	m.ModificationTime = &asNumber
	return nil
}

// ObjectMetadata is the request body for an upload carrying custom metadata.
type ObjectMetadata struct {
	Metadata Metadata `json:"metadata"`
}

// CRC32C is a GCS object's base64-encoded, big-endian Castagnoli checksum.
type CRC32C uint32

// ParseCRC32C decodes the base64 wire representation GCS uses for the
// crc32c field.
func ParseCRC32C(s string) (CRC32C, error) {
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("error base64-decoding crc32c %q: %w", s, err)
	}
	if len(decoded) != 4 {
		return 0, fmt.Errorf("decoded crc32c has %d bytes, want 4", len(decoded))
	}
	return CRC32C(binary.BigEndian.Uint32(decoded)), nil
}

// Base64 encodes the checksum the way the GCS JSON API expects it.
func (c CRC32C) Base64() string {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(c))
	return base64.StdEncoding.EncodeToString(buf[:])
}

func (c *CRC32C) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseCRC32C(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c CRC32C) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Base64())
}

// PartialObject is a GCS object resource, with every field optional since
// callers typically request a "partial response" via the fields parameter.
//
// Reference: https://cloud.google.com/storage/docs/json_api/v1/objects
type PartialObject struct {
	Bucket       *string    `json:"bucket,omitempty"`
	ID           *string    `json:"id,omitempty"`
	SelfLink     *string    `json:"selfLink,omitempty"`
	Name         *string    `json:"name,omitempty"`
	ContentType  *string    `json:"contentType,omitempty"`
	TimeCreated  *time.Time `json:"timeCreated,omitempty"`
	Updated      *time.Time `json:"updated,omitempty"`
	StorageClass *string    `json:"storageClass,omitempty"`
	Size         *Size      `json:"size,omitempty"`
	MediaLink    *string    `json:"mediaLink,omitempty"`
	Metadata     *Metadata  `json:"metadata,omitempty"`
	CRC32C       *CRC32C    `json:"crc32c,omitempty"`
	Etag         *string    `json:"etag,omitempty"`
}

// Size is a GCS object's byte length. GCS serializes it as a JSON string.
type Size uint64

func (s *Size) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		v, err := strconv.ParseUint(str, 10, 64)
		if err != nil {
			return fmt.Errorf("error parsing size %q: %w", str, err)
		}
		*s = Size(v)
		return nil
	}
	var v uint64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("error parsing size: %w", err)
	}
	*s = Size(v)
	return nil
}

// ToObject converts a PartialObject into an Object, failing if bucket or
// name are missing from the partial response.
func (p PartialObject) ToObject() (Object, error) {
	if p.Bucket == nil && p.Name == nil {
		return Object{}, &PartialResponseError{Field: "bucket, name"}
	}
	if p.Bucket == nil {
		return Object{}, &PartialResponseError{Field: "bucket"}
	}
	if p.Name == nil {
		return Object{}, &PartialResponseError{Field: "name"}
	}
	return Object{Bucket: *p.Bucket, Name: *p.Name}, nil
}

// Objects is the response body of the GCS JSON API's objects.list method.
type Objects struct {
	Kind          string          `json:"kind"`
	Items         []PartialObject `json:"items"`
	Prefixes      []string        `json:"prefixes"`
	NextPageToken string          `json:"nextPageToken"`
}
