// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthly/hearth/internal/auth"
	"github.com/hearthly/hearth/pkg/errutil"
)

func newTestLog(t *testing.T, opts ...Option) (*AttemptLog, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewAttemptLog(client, opts...), mr
}

func record(t *testing.T, log *AttemptLog, email string, at time.Time, success bool) *auth.LoginAttempt {
	t.Helper()
	attempt := &auth.LoginAttempt{
		ID:          ulid.Make(),
		Email:       email,
		IPAddress:   "2001:db8::1",
		Success:     success,
		AttemptedAt: at,
	}
	require.NoError(t, log.RecordLoginAttempt(context.Background(), attempt))
	return attempt
}

func TestAttemptLog_RecentLoginAttempts(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	record(t, log, "jane@example.com", now.Add(-20*time.Minute), false)
	second := record(t, log, "jane@example.com", now.Add(-10*time.Minute), false)
	third := record(t, log, "jane@example.com", now.Add(-time.Minute), true)
	record(t, log, "john@example.com", now.Add(-time.Minute), false)

	attempts, err := log.RecentLoginAttempts(ctx, "jane@example.com", now.Add(-15*time.Minute))
	require.NoError(t, err)
	require.Len(t, attempts, 2)

	assert.Equal(t, second.ID, attempts[0].ID)
	assert.Equal(t, third.ID, attempts[1].ID)
	assert.True(t, attempts[1].Success)
	assert.Equal(t, "2001:db8::1", attempts[0].IPAddress)
	assert.Equal(t, "jane@example.com", attempts[0].Email)
	assert.True(t, second.AttemptedAt.Equal(attempts[0].AttemptedAt))
}

func TestAttemptLog_SameMillisecondAttemptsAreDistinct(t *testing.T) {
	log, _ := newTestLog(t)
	at := time.Now()

	for range 5 {
		record(t, log, "jane@example.com", at, false)
	}

	attempts, err := log.RecentLoginAttempts(context.Background(), "jane@example.com", at.Add(-time.Second))
	require.NoError(t, err)
	assert.Len(t, attempts, 5)

	result := auth.EvaluateAttempts(attempts, at, auth.DefaultRateLimitPolicy())
	assert.True(t, result.Limited)
}

func TestAttemptLog_UnknownEmail(t *testing.T) {
	log, _ := newTestLog(t)

	attempts, err := log.RecentLoginAttempts(context.Background(), "nobody@example.com", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestAttemptLog_PruneLoginAttempts(t *testing.T) {
	log, mr := newTestLog(t)
	ctx := context.Background()
	now := time.Now()

	record(t, log, "jane@example.com", now.Add(-30*time.Minute), false)
	record(t, log, "jane@example.com", now.Add(-time.Minute), false)
	record(t, log, "john@example.com", now.Add(-40*time.Minute), false)

	removed, err := log.PruneLoginAttempts(ctx, now.Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	members, err := mr.SMembers(defaultPrefix + ":index")
	require.NoError(t, err)
	assert.Equal(t, []string{"jane@example.com"}, members)

	remaining, err := log.RecentLoginAttempts(ctx, "jane@example.com", time.Time{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestAttemptLog_KeysExpireAfterRetention(t *testing.T) {
	log, mr := newTestLog(t, WithRetention(time.Minute), WithPrefix("test"))
	record(t, log, "jane@example.com", time.Now(), false)

	require.True(t, mr.Exists("test:jane@example.com"))
	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("test:jane@example.com"))
}

func TestAttemptLog_RedisUnavailable(t *testing.T) {
	log, mr := newTestLog(t)
	mr.Close()

	err := log.RecordLoginAttempt(context.Background(), &auth.LoginAttempt{
		ID: ulid.Make(), Email: "jane@example.com", AttemptedAt: time.Now(),
	})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "LOGIN_ATTEMPT_RECORD_FAILED")

	_, err = log.RecentLoginAttempts(context.Background(), "jane@example.com", time.Now())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "LOGIN_ATTEMPT_QUERY_FAILED")
}

func TestDecodeMember(t *testing.T) {
	id := ulid.Make()
	tests := []struct {
		name    string
		member  string
		wantErr bool
		success bool
		ip      string
	}{
		{name: "ipv6 address", member: id.String() + "|1|::1", success: true, ip: "::1"},
		{name: "empty address", member: id.String() + "|0|", ip: ""},
		{name: "missing fields", member: id.String(), wantErr: true},
		{name: "bad id", member: "nope|0|1.2.3.4", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempt, err := decodeMember(tt.member)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "LOGIN_ATTEMPT_DECODE_FAILED")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id, attempt.ID)
			assert.Equal(t, tt.success, attempt.Success)
			assert.Equal(t, tt.ip, attempt.IPAddress)
		})
	}
}
