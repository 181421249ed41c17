package redisx

import (
	"context"
	"testing"
)

func TestNewClientFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	if NewClientFromEnv() != nil {
		t.Fatal("expected nil client without REDIS_ADDR")
	}
	if err := ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatal("expected error for unconfigured redis")
	}

	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")
	rdb := NewClientFromEnv()
	if rdb == nil {
		t.Fatal("expected client")
	}
	defer rdb.Close()
	if rdb.Options().Addr != "redis:6379" || rdb.Options().DB != 2 {
		t.Fatalf("unexpected options %+v", rdb.Options())
	}
}
