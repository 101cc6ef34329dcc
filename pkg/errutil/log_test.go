// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthly/hearth/pkg/errutil"
)

func logEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain error", err: errors.New("boom"), want: ""},
		{name: "oops without code", err: oops.Errorf("boom"), want: ""},
		{name: "coded", err: oops.Code("EMAIL_EXISTS").Errorf("taken"), want: "EMAIL_EXISTS"},
		{
			name: "wrapped keeps innermost code",
			err:  oops.Code("AUTH_PRUNE_FAILED").Wrap(oops.Code("SESSION_DELETE_EXPIRED_FAILED").Errorf("db down")),
			want: "SESSION_DELETE_EXPIRED_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errutil.Code(tt.err))
		})
	}
}

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("TOKEN_EXPIRED").
		With("purpose", "reset").
		Errorf("token has expired")

	errutil.LogError(context.Background(), logger, "reset failed", err)

	entry := logEntry(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "reset failed", entry["msg"])
	assert.Equal(t, "TOKEN_EXPIRED", entry["code"])
	require.IsType(t, map[string]any{}, entry["context"])
	assert.Equal(t, "reset", entry["context"].(map[string]any)["purpose"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(context.Background(), logger, "send failed", errors.New("smtp timeout"))

	entry := logEntry(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Contains(t, entry["error"], "smtp timeout")
	assert.NotContains(t, entry, "code")
}
