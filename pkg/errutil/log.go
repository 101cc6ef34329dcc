// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

// Package errutil extracts oops error codes and logs errors with their
// structured context.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// Code returns the innermost oops error code of err, or "" when err carries
// none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}

// LogError logs err at error level through ctx, so the active trace is
// attached. Oops errors contribute their code and context map.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.ErrorContext(ctx, msg, "error", err)
		return
	}

	attrs := []any{"error", oopsErr.Error()}
	if code := Code(err); code != "" {
		attrs = append(attrs, "code", code)
	}
	if fields := oopsErr.Context(); len(fields) > 0 {
		attrs = append(attrs, "context", fields)
	}
	logger.ErrorContext(ctx, msg, attrs...)
}
