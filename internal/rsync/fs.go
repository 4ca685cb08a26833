// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

package rsync

import (
	"bufio"
	"context"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"
)

// fsChunkSize is the buffer size used for reads and the buffered writer,
// matching spec §4.3's 64 KiB default.
const fsChunkSize = 64 * 1024

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// FSEndpoint is a filesystem subtree rooted at Root. It has no shared
// mutable state; every call opens its own file handles.
type FSEndpoint struct {
	Root string
}

// NewFSEndpoint returns an Endpoint rooted at root.
func NewFSEndpoint(root string) *FSEndpoint {
	return &FSEndpoint{Root: root}
}

func (e *FSEndpoint) String() string {
	return e.Root
}

func (e *FSEndpoint) abs(path RelativePath) string {
	return filepath.Join(e.Root, filepath.FromSlash(string(path)))
}

// fsWalker is a lazy depth-first directory walk: a stack of pending
// directories, plus a small buffer of file paths already read from the
// most recently popped directory.
type fsWalker struct {
	root    string
	stack   []string
	pending []RelativePath
}

func (e *FSEndpoint) List(ctx context.Context) (PathIterator, error) {
	return &fsWalker{root: e.Root, stack: []string{e.Root}}, nil
}

func (w *fsWalker) Next(ctx context.Context) (RelativePath, bool, error) {
	for {
		if len(w.pending) > 0 {
			p := w.pending[0]
			w.pending = w.pending[1:]
			return p, true, nil
		}
		if len(w.stack) == 0 {
			return "", false, nil
		}
		if err := ctx.Err(); err != nil {
			return "", false, err
		}

		dir := w.stack[len(w.stack)-1]
		w.stack = w.stack[:len(w.stack)-1]
		entries, err := os.ReadDir(dir)
		if err != nil {
			return "", false, &PathError{Verb: "read dir", Path: dir, Err: err}
		}
		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				w.stack = append(w.stack, full)
				continue
			}
			rel, err := filepath.Rel(w.root, full)
			if err != nil {
				return "", false, &PathError{Verb: "compute relative path of", Path: full, Err: err}
			}
			p, err := NewRelativePath(filepath.ToSlash(rel))
			if err != nil {
				return "", false, err
			}
			w.pending = append(w.pending, p)
		}
	}
}

func (e *FSEndpoint) Read(ctx context.Context, path RelativePath) (io.ReadCloser, error) {
	f, err := os.Open(e.abs(path))
	if err != nil {
		return nil, &PathError{Verb: "open", Path: string(path), Err: err}
	}
	return f, nil
}

func (e *FSEndpoint) Write(ctx context.Context, path RelativePath, mtime *time.Time, restoreFSMtime bool, data io.Reader) error {
	full := e.abs(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return &PathError{Verb: "create parent directory for", Path: full, Err: err}
	}
	f, err := os.Create(full)
	if err != nil {
		return &PathError{Verb: "create file", Path: full, Err: err}
	}

	w := bufio.NewWriterSize(f, fsChunkSize)
	_, copyErr := io.Copy(w, data)
	flushErr := w.Flush()
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		return &PathError{Verb: "buffered write", Path: full, Err: copyErr}
	case flushErr != nil:
		return &PathError{Verb: "buffered write", Path: full, Err: flushErr}
	case closeErr != nil:
		return &PathError{Verb: "close", Path: full, Err: closeErr}
	}

	if mtime != nil && restoreFSMtime {
		if err := os.Chtimes(full, *mtime, *mtime); err != nil {
			return &PathError{Verb: "set mtime of", Path: full, Err: err}
		}
	}
	return nil
}

func (e *FSEndpoint) GetCRC32C(ctx context.Context, path RelativePath) (uint32, bool, error) {
	f, err := os.Open(e.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, &PathError{Verb: "open", Path: string(path), Err: err}
	}
	defer f.Close()

	h := crc32.New(crc32cTable)
	buf := make([]byte, fsChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return 0, false, &PathError{Verb: "read", Path: string(path), Err: err}
	}
	return h.Sum32(), true, nil
}

func (e *FSEndpoint) SizeAndMtime(ctx context.Context, path RelativePath) (SizeAndMtime, error) {
	info, err := os.Stat(e.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return SizeAndMtime{}, nil
		}
		return SizeAndMtime{}, &PathError{Verb: "stat", Path: string(path), Err: err}
	}
	size := uint64(info.Size())
	mtime := info.ModTime()
	return SizeAndMtime{Mtime: &mtime, Size: &size}, nil
}

func (e *FSEndpoint) Exists(ctx context.Context, path RelativePath) (bool, error) {
	_, err := os.Stat(e.abs(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &PathError{Verb: "stat", Path: string(path), Err: err}
}

func (e *FSEndpoint) Delete(ctx context.Context, path RelativePath) error {
	if err := os.Remove(e.abs(path)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &PathError{Verb: "delete", Path: string(path), Err: err}
	}
	return nil
}
