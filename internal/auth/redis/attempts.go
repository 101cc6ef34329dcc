// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

// Package redis stores the login attempt log in Redis sorted sets so that
// several API replicas share one rate-limit window.
package redis

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/hearthly/hearth/internal/auth"
)

const (
	defaultPrefix = "hearth:login_attempts"
	scanBatch     = 100
)

// AttemptLog implements auth.LoginAttemptRepository. Each email owns a sorted
// set scored by attempt time in milliseconds; an index set tracks which
// emails have attempts so pruning does not need KEYS.
type AttemptLog struct {
	client    goredis.UniversalClient
	prefix    string
	retention time.Duration
}

// Option configures an AttemptLog.
type Option func(*AttemptLog)

// WithPrefix changes the key prefix.
func WithPrefix(prefix string) Option {
	return func(l *AttemptLog) { l.prefix = prefix }
}

// WithRetention sets how long an idle email's attempts are kept before Redis
// expires the key. It should be at least the rate-limit window.
func WithRetention(d time.Duration) Option {
	return func(l *AttemptLog) { l.retention = d }
}

// NewAttemptLog creates an AttemptLog over client.
func NewAttemptLog(client goredis.UniversalClient, opts ...Option) *AttemptLog {
	l := &AttemptLog{
		client:    client,
		prefix:    defaultPrefix,
		retention: 2 * auth.DefaultRateLimitPolicy().Window,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ auth.LoginAttemptRepository = (*AttemptLog)(nil)

func (l *AttemptLog) key(email string) string {
	return l.prefix + ":" + email
}

func (l *AttemptLog) indexKey() string {
	return l.prefix + ":index"
}

// RecordLoginAttempt appends an attempt.
func (l *AttemptLog) RecordLoginAttempt(ctx context.Context, attempt *auth.LoginAttempt) error {
	key := l.key(attempt.Email)
	_, err := l.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, key, goredis.Z{
			Score:  float64(attempt.AttemptedAt.UnixMilli()),
			Member: encodeMember(attempt),
		})
		pipe.PExpire(ctx, key, l.retention)
		pipe.SAdd(ctx, l.indexKey(), attempt.Email)
		return nil
	})
	if err != nil {
		return oops.Code("LOGIN_ATTEMPT_RECORD_FAILED").
			With("operation", "zadd login attempt").
			Wrap(err)
	}
	return nil
}

// RecentLoginAttempts returns attempts for email at or after since, oldest first.
func (l *AttemptLog) RecentLoginAttempts(ctx context.Context, email string, since time.Time) ([]*auth.LoginAttempt, error) {
	results, err := l.client.ZRangeByScoreWithScores(ctx, l.key(email), &goredis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, oops.Code("LOGIN_ATTEMPT_QUERY_FAILED").
			With("operation", "zrangebyscore login attempts").
			Wrap(err)
	}

	attempts := make([]*auth.LoginAttempt, 0, len(results))
	for _, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		attempt, err := decodeMember(member)
		if err != nil {
			return nil, err
		}
		attempt.Email = email
		attempt.AttemptedAt = time.UnixMilli(int64(z.Score)).UTC()
		attempts = append(attempts, attempt)
	}
	return attempts, nil
}

// PruneLoginAttempts removes attempts older than before across all emails.
func (l *AttemptLog) PruneLoginAttempts(ctx context.Context, before time.Time) (int64, error) {
	maxScore := "(" + strconv.FormatInt(before.UnixMilli(), 10)

	var (
		removed int64
		cursor  uint64
	)
	for {
		emails, next, err := l.client.SScan(ctx, l.indexKey(), cursor, "", scanBatch).Result()
		if err != nil {
			return removed, oops.Code("LOGIN_ATTEMPT_PRUNE_FAILED").
				With("operation", "scan attempt index").
				Wrap(err)
		}

		for _, email := range emails {
			n, err := l.pruneEmail(ctx, email, maxScore)
			if err != nil {
				return removed, err
			}
			removed += n
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (l *AttemptLog) pruneEmail(ctx context.Context, email, maxScore string) (int64, error) {
	key := l.key(email)
	var (
		removedCmd *goredis.IntCmd
		leftCmd    *goredis.IntCmd
	)
	_, err := l.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		removedCmd = pipe.ZRemRangeByScore(ctx, key, "-inf", maxScore)
		leftCmd = pipe.ZCard(ctx, key)
		return nil
	})
	if err != nil {
		return 0, oops.Code("LOGIN_ATTEMPT_PRUNE_FAILED").
			With("operation", "zremrangebyscore login attempts").
			Wrap(err)
	}
	if leftCmd.Val() == 0 {
		if err := l.client.SRem(ctx, l.indexKey(), email).Err(); err != nil {
			return removedCmd.Val(), oops.Code("LOGIN_ATTEMPT_PRUNE_FAILED").
				With("operation", "srem attempt index").
				Wrap(err)
		}
	}
	return removedCmd.Val(), nil
}

// encodeMember renders an attempt as "<ulid>|<0|1>|<ip>". The ULID keeps
// members unique when two attempts share a millisecond.
func encodeMember(a *auth.LoginAttempt) string {
	success := "0"
	if a.Success {
		success = "1"
	}
	return a.ID.String() + "|" + success + "|" + a.IPAddress
}

func decodeMember(member string) (*auth.LoginAttempt, error) {
	parts := strings.SplitN(member, "|", 3)
	if len(parts) != 3 {
		return nil, oops.Code("LOGIN_ATTEMPT_DECODE_FAILED").
			With("member", member).
			Errorf("malformed login attempt entry")
	}
	id, err := ulid.ParseStrict(parts[0])
	if err != nil {
		return nil, oops.Code("LOGIN_ATTEMPT_DECODE_FAILED").With("member", member).Wrap(err)
	}
	return &auth.LoginAttempt{
		ID:        id,
		Success:   parts[1] == "1",
		IPAddress: parts[2],
	}, nil
}
