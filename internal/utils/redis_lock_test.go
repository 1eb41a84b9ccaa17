package utils

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// TestLockTokenUniquePerAcquisition 每次创建锁对象的 token 都不同，
// 仅进程级唯一不足以防误删
func TestLockTokenUniquePerAcquisition(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		lock := NewSimpleRedisLock(nil, "order:1")
		if lock.Token() == "" {
			t.Fatal("empty lock token")
		}
		if _, ok := seen[lock.Token()]; ok {
			t.Fatalf("duplicate token: %s", lock.Token())
		}
		seen[lock.Token()] = struct{}{}
	}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr: "127.0.0.1:6379",
		DB:   0,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// TestLockMutualExclusion 同一资源只有一个持有者能加锁成功
func TestLockMutualExclusion(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)
	name := fmt.Sprintf("order:test-mutex-%d", time.Now().UnixNano())

	first := NewSimpleRedisLock(client, name)
	locked, err := first.TryLock(ctx, 10*time.Second)
	if err != nil {
		t.Fatalf("first TryLock: %v", err)
	}
	if !locked {
		t.Fatal("first TryLock should succeed")
	}
	defer first.Unlock(ctx)

	second := NewSimpleRedisLock(client, name)
	locked, err = second.TryLock(ctx, 10*time.Second)
	if err != nil {
		t.Fatalf("second TryLock: %v", err)
	}
	if locked {
		t.Fatal("second TryLock should fail while the first holds the lock")
	}
}

// TestLockFencing 过期后被他人重新持有的锁，上一任持有者不能释放
func TestLockFencing(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)
	name := fmt.Sprintf("order:test-fencing-%d", time.Now().UnixNano())

	stale := NewSimpleRedisLock(client, name)
	locked, err := stale.TryLock(ctx, 10*time.Second)
	if err != nil || !locked {
		t.Fatalf("stale TryLock: locked=%v err=%v", locked, err)
	}

	// 模拟 TTL 到期：直接删掉键，让新持有者接管
	if err := client.Del(ctx, stale.Key()).Err(); err != nil {
		t.Fatalf("simulate expiry: %v", err)
	}
	current := NewSimpleRedisLock(client, name)
	locked, err = current.TryLock(ctx, 10*time.Second)
	if err != nil || !locked {
		t.Fatalf("current TryLock: locked=%v err=%v", locked, err)
	}
	defer current.Unlock(ctx)

	// 迟到的释放不能删掉新持有者的锁
	if err := stale.Unlock(ctx); err != nil {
		t.Fatalf("stale Unlock: %v", err)
	}
	val, err := client.Get(ctx, current.Key()).Result()
	if err != nil {
		t.Fatalf("lock key should still exist: %v", err)
	}
	if val != current.Token() {
		t.Fatalf("lock token changed: got %s want %s", val, current.Token())
	}
}

// TestLockUnlockReleases 正常释放后锁可被再次获取
func TestLockUnlockReleases(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)
	name := fmt.Sprintf("order:test-release-%d", time.Now().UnixNano())

	first := NewSimpleRedisLock(client, name)
	if locked, err := first.TryLock(ctx, 10*time.Second); err != nil || !locked {
		t.Fatalf("first TryLock: locked=%v err=%v", locked, err)
	}
	if err := first.Unlock(ctx); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	second := NewSimpleRedisLock(client, name)
	locked, err := second.TryLock(ctx, 10*time.Second)
	if err != nil {
		t.Fatalf("second TryLock: %v", err)
	}
	if !locked {
		t.Fatal("lock should be acquirable after release")
	}
	second.Unlock(ctx)
}
