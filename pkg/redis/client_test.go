package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type mockCmdable struct {
	values map[string]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{values: map[string]string{}}
}

func (m *mockCmdable) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	m.values[key] = toString(value)
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if v, ok := m.values[key]; ok {
		cmd.SetVal(v)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	if _, exists := m.values[key]; exists {
		cmd.SetVal(false)
		return cmd
	}
	m.values[key] = toString(value)
	cmd.SetVal(true)
	return cmd
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var removed int64
	for _, key := range keys {
		if _, ok := m.values[key]; ok {
			delete(m.values, key)
			removed++
		}
	}
	cmd.SetVal(removed)
	return cmd
}

func toString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}

func TestLockLifecycle(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	won, err := client.AcquireLock(ctx, "sync", "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if !won {
		t.Fatal("expected first acquire to win")
	}

	won, err = client.AcquireLock(ctx, "sync", "worker-2", time.Minute)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if won {
		t.Fatal("second worker must not steal a held lock")
	}

	// A stranger's release is a no-op.
	if err := client.ReleaseLock(ctx, "sync", "worker-2"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := client.Get(ctx, client.LockKey("sync")); err != nil {
		t.Fatalf("lock should still be held: %v", err)
	}

	if err := client.ReleaseLock(ctx, "sync", "worker-1"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	won, err = client.AcquireLock(ctx, "sync", "worker-2", time.Minute)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if !won {
		t.Fatal("released lock must be acquirable again")
	}
}

func TestLockKeyNamespace(t *testing.T) {
	client := &Client{}
	if got := client.LockKey("sync"); got != "ve:lock:sync" {
		t.Fatalf("unexpected lock key %s", got)
	}
}
