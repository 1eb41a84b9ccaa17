package utils

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SimpleRedisLock 基于 SETNX 的分布式互斥锁
//
// 已知局限（刻意不掩盖）：
//   - 不可重入：同一持有者再次 TryLock 会失败
//   - 不可重试：TryLock 只尝试一次，重试策略由调用方决定
//   - 超时释放：业务卡顿超过 TTL 后锁会自动失效，
//     此时临界区不再互斥，调用方应保证业务耗时远小于 TTL
type SimpleRedisLock struct {
	client *redis.Client
	key    string
	token  string
}

const lockKeyPrefix = "lock:"

// processID 进程级标识，与每次加锁的 uuid 拼接成锁 token
// 保证 token 在"进程 + 本次加锁"维度上唯一，而非仅进程级唯一
var processID = uuid.NewString()

// unlockScript 校验 token 后删除，保证"判断归属 + 释放"的原子性
// 防止业务超时导致锁已被他人重新持有时，误删他人的锁
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// NewSimpleRedisLock 创建一把锁，name 为资源名（如 order:{userId}）
func NewSimpleRedisLock(client *redis.Client, name string) *SimpleRedisLock {
	return &SimpleRedisLock{
		client: client,
		key:    lockKeyPrefix + name,
		token:  processID + "-" + uuid.NewString(),
	}
}

// TryLock 非阻塞尝试加锁，SET NX EX 保证占锁与过期是一个原子操作
func (l *SimpleRedisLock) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, ttl).Result()
}

// Unlock 释放锁，仅当存储的 token 与自己的 token 一致时才删除
// token 不匹配说明锁已过期并被他人持有，静默返回即可
func (l *SimpleRedisLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// Token 返回本次加锁的持有者标识，便于日志排查
func (l *SimpleRedisLock) Token() string {
	return l.token
}

// Key 返回锁在 Redis 中的完整键名
func (l *SimpleRedisLock) Key() string {
	return l.key
}
