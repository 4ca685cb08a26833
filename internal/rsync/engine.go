// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

package rsync

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cboudereau/gcs-rsync/internal/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// EngineOptions configures a sync or mirror run.
type EngineOptions struct {
	// RestoreFSMtime, when true, restores the source's modification time
	// on a filesystem destination. Default false: restoring source mtime
	// on a local file defeats ordinary filesystem auditing unless asked for.
	RestoreFSMtime bool
	// Filter admits or rejects relative paths. Nil admits everything.
	Filter *Filter
	// TransferredBytes, if set, is incremented by the number of bytes read
	// from the source for every entry actually written to the destination.
	TransferredBytes prometheus.Counter
}

// Task is one unit of per-entry work: decide, transfer if needed, and
// produce a Status. The engine hands out Tasks; the caller (or Engine.Run)
// drives them with a bounded-concurrency executor.
type Task func(ctx context.Context) (Status, error)

// Engine drives sync/mirror between a source and destination Endpoint.
// It holds no mutable state beyond its configuration.
type Engine struct {
	Source      Endpoint
	Destination Endpoint
	Options     EngineOptions
}

// NewEngine returns an Engine configured to sync/mirror source onto destination.
func NewEngine(source, destination Endpoint, opts EngineOptions) *Engine {
	return &Engine{Source: source, Destination: destination, Options: opts}
}

// Sync lists the source endpoint, applies the filter, and streams one Task
// per admitted path on the returned channel. The channel is closed once the
// source listing is exhausted (or fails); a listing failure surfaces as a
// single Task whose execution returns that error.
func (e *Engine) Sync(ctx context.Context) (<-chan Task, error) {
	it, err := e.Source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing source %s: %w", e.Source, err)
	}

	tasks := make(chan Task)
	go func() {
		defer close(tasks)
		for {
			path, ok, err := it.Next(ctx)
			if err != nil {
				sendErr(ctx, tasks, err)
				return
			}
			if !ok {
				return
			}
			if !e.Options.Filter.Admit(path) {
				continue
			}
			p := path
			if !sendTask(ctx, tasks, func(ctx context.Context) (Status, error) {
				return e.syncEntry(ctx, p)
			}) {
				return
			}
		}
	}()
	return tasks, nil
}

// Run executes a full sync (mirror=false) or mirror (mirror=true) run with
// concurrency bounded by concurrency, returning completed Status records in
// completion order. For a mirror run, every sync-phase status is fully
// produced (Engine.Sync is drained to completion) before the destination is
// listed for deletion, since delete decisions depend on the post-sync
// destination state (spec §4.6, §5).
func (e *Engine) Run(ctx context.Context, mirror bool, concurrency int) (<-chan Status, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	syncTasks, err := e.Sync(ctx)
	if err != nil {
		return nil, err
	}
	if !mirror {
		return drive(ctx, syncTasks, concurrency), nil
	}

	out := make(chan Status)
	go func() {
		defer close(out)
		for status := range drive(ctx, syncTasks, concurrency) {
			wrapped := status
			if !sendStatus(ctx, out, Status{Kind: StatusSynced, Path: status.Path, Synced: &wrapped, Err: status.Err}) {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		deleteTasks, err := e.mirrorDeleteTasks(ctx)
		if err != nil {
			sendStatus(ctx, out, Status{Err: err})
			return
		}
		for status := range drive(ctx, deleteTasks, concurrency) {
			if !sendStatus(ctx, out, status) {
				return
			}
		}
	}()
	return out, nil
}

// drive executes tasks with at most concurrency in flight, using an
// errgroup.Group.SetLimit bounded pool (the buffered-unordered executor
// spec §5 calls for). A task's own error is isolated into its Status and
// never aborts the group, so one failing entry never halts the pipeline.
func drive(ctx context.Context, tasks <-chan Task, concurrency int) <-chan Status {
	out := make(chan Status)
	go func() {
		defer close(out)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for task := range tasks {
			task := task
			g.Go(func() error {
				status, err := task(gctx)
				if err != nil {
					status.Err = err
				}
				sendStatus(ctx, out, status)
				return nil
			})
		}
		_ = g.Wait()
	}()
	return out
}

// syncEntry implements spec §4.6's per-entry decision algorithm.
func (e *Engine) syncEntry(ctx context.Context, path RelativePath) (Status, error) {
	dest, err := e.Destination.SizeAndMtime(ctx, path)
	if err != nil {
		return Status{Path: path}, fmt.Errorf("error inspecting destination %s: %w", path, err)
	}

	switch {
	case dest.Present():
		src, err := e.Source.SizeAndMtime(ctx, path)
		if err != nil {
			return Status{Path: path}, fmt.Errorf("error inspecting source %s: %w", path, err)
		}
		if src.Present() && src.Mtime.Unix() == dest.Mtime.Unix() && *src.Size == *dest.Size {
			return Status{Kind: StatusAlreadySynced, Path: path, Reason: ReasonSameMtimeAndSize}, nil
		}
		if src.Present() {
			if err := e.writeEntry(ctx, path, src.Mtime); err != nil {
				return Status{Path: path}, err
			}
			return Status{Kind: StatusUpdated, Path: path, Reason: ReasonDifferentSizeOrMtime}, nil
		}
		return e.syncEntryCRC32C(ctx, path)

	case dest.Absent():
		src, err := e.Source.SizeAndMtime(ctx, path)
		if err != nil {
			return Status{Path: path}, fmt.Errorf("error inspecting source %s: %w", path, err)
		}
		if err := e.writeEntry(ctx, path, src.Mtime); err != nil {
			return Status{Path: path}, err
		}
		return Status{Kind: StatusCreated, Path: path}, nil

	default: // destination partially present: one of size/mtime absent
		return e.syncEntryCRC32C(ctx, path)
	}
}

func (e *Engine) syncEntryCRC32C(ctx context.Context, path RelativePath) (Status, error) {
	destCRC, destOK, err := e.Destination.GetCRC32C(ctx, path)
	if err != nil {
		return Status{Path: path}, fmt.Errorf("error getting destination crc32c of %s: %w", path, err)
	}
	if !destOK {
		if err := e.writeEntry(ctx, path, nil); err != nil {
			return Status{Path: path}, err
		}
		return Status{Kind: StatusUpdated, Path: path, Reason: ReasonNoDestCRC32C}, nil
	}

	srcCRC, srcOK, err := e.Source.GetCRC32C(ctx, path)
	if err != nil {
		return Status{Path: path}, fmt.Errorf("error getting source crc32c of %s: %w", path, err)
	}
	if srcOK && srcCRC == destCRC {
		return Status{Kind: StatusAlreadySynced, Path: path, Reason: ReasonSameCRC32C}, nil
	}

	if err := e.writeEntry(ctx, path, nil); err != nil {
		return Status{Path: path}, err
	}
	return Status{Kind: StatusUpdated, Path: path, Reason: ReasonDifferentCRC32C}, nil
}

// writeEntry streams path's content directly from source to destination,
// never materializing the full object in memory.
func (e *Engine) writeEntry(ctx context.Context, path RelativePath, mtime *time.Time) error {
	r, err := e.Source.Read(ctx, path)
	if err != nil {
		return fmt.Errorf("error opening source %s: %w", path, err)
	}
	defer r.Close()
	var data io.Reader = r
	if e.Options.TransferredBytes != nil {
		data = &countingReader{r: r, counter: e.Options.TransferredBytes}
	}
	if err := e.Destination.Write(ctx, path, mtime, e.Options.RestoreFSMtime, data); err != nil {
		return fmt.Errorf("error writing destination %s: %w", path, err)
	}
	return nil
}

// countingReader adds n's bytes to counter as they are read, so transfer
// volume is tracked regardless of which endpoint does the actual copying.
type countingReader struct {
	r       io.Reader
	counter prometheus.Counter
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.counter.Add(float64(n))
	}
	return n, err
}

// mirrorDeleteTasks lists the destination and returns one delete-decision
// Task per entry found there.
func (e *Engine) mirrorDeleteTasks(ctx context.Context) (<-chan Task, error) {
	it, err := e.Destination.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing destination %s: %w", e.Destination, err)
	}

	tasks := make(chan Task)
	go func() {
		defer close(tasks)
		for {
			path, ok, err := it.Next(ctx)
			if err != nil {
				sendErr(ctx, tasks, err)
				return
			}
			if !ok {
				return
			}
			p := path
			if !sendTask(ctx, tasks, func(ctx context.Context) (Status, error) {
				return e.mirrorDeleteDecision(ctx, p)
			}) {
				return
			}
		}
	}()
	return tasks, nil
}

// mirrorDeleteDecision implements spec §4.6's mirror-mode delete rule: a
// destination entry is deleted unless the source has it AND the filter
// admits it.
func (e *Engine) mirrorDeleteDecision(ctx context.Context, path RelativePath) (Status, error) {
	if e.Options.Filter.Admit(path) {
		exists, err := e.Source.Exists(ctx, path)
		if err != nil {
			return Status{Path: path}, fmt.Errorf("error checking source existence of %s: %w", path, err)
		}
		if exists {
			return Status{Kind: StatusNotDeleted, Path: path}, nil
		}
	}
	if err := e.Destination.Delete(ctx, path); err != nil {
		return Status{Path: path}, fmt.Errorf("error deleting %s: %w", path, err)
	}
	return Status{Kind: StatusDeleted, Path: path}, nil
}

func sendTask(ctx context.Context, tasks chan<- Task, t Task) bool {
	select {
	case tasks <- t:
		return true
	case <-ctx.Done():
		return false
	}
}

func sendErr(ctx context.Context, tasks chan<- Task, err error) {
	sendTask(ctx, tasks, func(context.Context) (Status, error) { return Status{}, err })
}

func sendStatus(ctx context.Context, out chan<- Status, s Status) bool {
	if s.Err != nil {
		logging.FromContext(ctx).WithError(s.Err).WithField("path", string(s.Path)).Error("error processing entry")
	} else {
		logging.FromContext(ctx).WithFields(logrus.Fields{
			"path":   string(s.Path),
			"status": s.Kind.String(),
			"reason": s.Reason,
		}).Info("sync decision")
	}
	select {
	case out <- s:
		return true
	case <-ctx.Done():
		return false
	}
}
