package ratelimit

import (
	"context"
	"testing"
)

func TestTokenTracker_NilRedis_FailOpen(t *testing.T) {
	tr := NewTokenTracker(nil)
	result, err := tr.CheckTokens(context.Background(), "openai", 200_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Error("expected allowed when Redis is nil")
	}
	if result.Limit != 200_000 {
		t.Errorf("expected limit=200000, got %d", result.Limit)
	}
}

func TestTokenTracker_NilRedis_RecordTokens(t *testing.T) {
	tr := NewTokenTracker(nil)
	// RecordTokens should be a no-op with nil Redis
	if err := tr.RecordTokens(context.Background(), "openai", 1500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTokenTracker_NilRedis_ZeroTokens(t *testing.T) {
	tr := NewTokenTracker(nil)
	if err := tr.RecordTokens(context.Background(), "openai", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
