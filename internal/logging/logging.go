// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

// Package logging carries a structured logger on a context.Context, the way
// the sync engine passes request-scoped state through its call chain.
package logging

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type loggerContextKey struct{}

var logLevel logrus.Level = logrus.InfoLevel

// NewLogger builds the JSON-formatted logger used by the CLI entry point.
func NewLogger(level logrus.Level) logrus.FieldLogger {
	logLevel = level
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
	})
	l.SetLevel(level)
	return l
}

// FromContext returns the logger attached to ctx, or a fresh default logger
// if none was attached.
func FromContext(ctx context.Context) logrus.FieldLogger {
	if v := ctx.Value(loggerContextKey{}); v != nil {
		if l, ok := v.(logrus.FieldLogger); ok && l != nil {
			return l
		}
	}
	return NewLogger(logLevel)
}

// IntoContext attaches l to ctx so downstream calls can retrieve it with
// FromContext.
func IntoContext(ctx context.Context, l logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// Debug reports whether the process-wide log level is at least Debug.
func Debug() bool {
	return logLevel >= logrus.DebugLevel
}
