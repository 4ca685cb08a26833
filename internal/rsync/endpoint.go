// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

package rsync

import (
	"context"
	"io"
	"time"
)

// SizeAndMtime is the (mtime, size) pair an endpoint reports for a given
// path. Both fields are nil when the entry does not exist.
type SizeAndMtime struct {
	Mtime *time.Time
	Size  *uint64
}

// Present reports whether both fields are populated.
func (s SizeAndMtime) Present() bool {
	return s.Mtime != nil && s.Size != nil
}

// Absent reports whether both fields are empty.
func (s SizeAndMtime) Absent() bool {
	return s.Mtime == nil && s.Size == nil
}

// PathIterator is a lazy, single-use, non-restartable sequence of relative
// paths produced by Endpoint.List.
type PathIterator interface {
	// Next returns the next path. ok is false once the sequence is
	// exhausted; err is set only on a terminal listing failure.
	Next(ctx context.Context) (path RelativePath, ok bool, err error)
}

// Endpoint is the uniform capability surface exposed by both the
// filesystem and GCS adapters: a tagged union over the two concrete
// implementations, dispatched in Go by ordinary interface satisfaction
// rather than an explicit tag switch.
type Endpoint interface {
	// List lazily walks every relative path under the endpoint's root.
	List(ctx context.Context) (PathIterator, error)
	// Read opens a streaming reader over path's content. The caller must
	// close it.
	Read(ctx context.Context, path RelativePath) (io.ReadCloser, error)
	// Write streams data to path. mtime, when non-nil, is persisted
	// according to the endpoint's own mtime semantics: intrinsic metadata
	// on GCS, opt-in via restoreFSMtime on the filesystem.
	Write(ctx context.Context, path RelativePath, mtime *time.Time, restoreFSMtime bool, data io.Reader) error
	// GetCRC32C returns the content's CRC32C fingerprint, or ok=false if
	// path does not exist.
	GetCRC32C(ctx context.Context, path RelativePath) (crc32c uint32, ok bool, err error)
	// SizeAndMtime inspects path without reading its content.
	SizeAndMtime(ctx context.Context, path RelativePath) (SizeAndMtime, error)
	Exists(ctx context.Context, path RelativePath) (bool, error)
	Delete(ctx context.Context, path RelativePath) error
	// String identifies the endpoint for logs and error messages, e.g.
	// "gs://bucket/prefix/" or a filesystem root path.
	String() string
}
