package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenResult is the outcome of a token budget check.
type TokenResult struct {
	Allowed bool
	Used    int64
	Limit   int64
}

// TokenTracker tracks tokens consumed per provider in the current minute
// via Redis. Usage is charged after the response reports token counts, so
// the window is advisory rather than exact.
type TokenTracker struct {
	rdb *redis.Client
}

// NewTokenTracker creates a token tracker. If rdb is nil, all checks pass.
func NewTokenTracker(rdb *redis.Client) *TokenTracker {
	return &TokenTracker{rdb: rdb}
}

func tokenWindowKey(provider string) string {
	minute := time.Now().UTC().Format("2006-01-02T15:04")
	return fmt.Sprintf("courier:tpm:%s:%s", provider, minute)
}

// CheckTokens checks if the provider is under its tokens-per-minute limit.
func (t *TokenTracker) CheckTokens(ctx context.Context, provider string, limit int64) (TokenResult, error) {
	if t.rdb == nil {
		return TokenResult{Allowed: true, Limit: limit}, nil
	}

	used, err := t.rdb.Get(ctx, tokenWindowKey(provider)).Int64()
	if err != nil && err != redis.Nil {
		// Fail open on Redis errors
		return TokenResult{Allowed: true, Limit: limit}, nil
	}

	return TokenResult{
		Allowed: used < limit,
		Used:    used,
		Limit:   limit,
	}, nil
}

// RecordTokens adds a response's token usage to the provider's window.
func (t *TokenTracker) RecordTokens(ctx context.Context, provider string, tokens int64) error {
	if t.rdb == nil || tokens <= 0 {
		return nil
	}

	key := tokenWindowKey(provider)
	pipe := t.rdb.Pipeline()
	pipe.IncrBy(ctx, key, tokens)
	// The bucket spans one minute; keep it one more so late reads still see it
	pipe.Expire(ctx, key, 2*time.Minute)
	_, err := pipe.Exec(ctx)
	return err
}
