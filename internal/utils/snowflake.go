package utils

import (
	"fmt"
	"sync"
	"time"
)

/*
简易雪花算法（Snowflake）：生成趋势递增的 int64 ID，用于请求追踪标识

64位结构：
- 1bit   符号位：固定为0
- 41bit  时间戳：毫秒级（相对自定义纪元 epoch）
- 10bit  机器ID：workerID(0~1023)
- 12bit  序列号：同一毫秒内自增（0~4095）

订单ID不使用雪花算法：订单走 RedisIdWorker（依赖共享计数器、天然多实例唯一），
雪花算法对时钟依赖较高，这里只用于日志链路的 requestId
*/

const (
	// 自定义纪元（epoch）：2025-01-01 00:00:00 UTC
	epochMs int64 = 1735689600000

	workerIDBits uint8 = 10
	sequenceBits uint8 = 12
	timeBits     uint8 = 41
	maxWorkerID        = int64(-1) ^ (int64(-1) << workerIDBits) // 1023
	maxSnowSeq         = int64(-1) ^ (int64(-1) << sequenceBits) // 4095

	workerIDShift = sequenceBits
	timeShift     = sequenceBits + workerIDBits
)

// Snowflake 生成器
type Snowflake struct {
	mu           sync.Mutex
	workerID     int64 // 机器ID：0~1023
	lastTimeMs   int64 // 上一次生成ID的毫秒时间戳
	sequence     int64 // 同一毫秒内的序列号
	timeRollback int64 // 允许的时间回拨容忍毫秒数
}

// NewSnowflake 创建一个雪花生成器
func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID must be in [0, %d]", maxWorkerID)
	}
	return &Snowflake{
		workerID:     workerID,
		lastTimeMs:   -1,
		sequence:     0,
		timeRollback: 5,
	}, nil
}

// NextID 生成下一个唯一ID
func (s *Snowflake) NextID() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := currentMs()

	// 1) 处理时钟回拨：小回拨等待追平，大回拨直接报错
	if now < s.lastTimeMs {
		diff := s.lastTimeMs - now
		if diff <= s.timeRollback {
			now = waitUntil(s.lastTimeMs)
		} else {
			return 0, fmt.Errorf("clock moved backwards by %dms, refusing to generate id", diff)
		}
	}

	// 2) 同一毫秒内序列号自增，用完等待下一毫秒
	if now == s.lastTimeMs {
		s.sequence = (s.sequence + 1) & maxSnowSeq
		if s.sequence == 0 {
			now = waitUntil(s.lastTimeMs + 1)
		}
	} else {
		s.sequence = 0
	}

	s.lastTimeMs = now

	ts := now - epochMs
	if ts < 0 {
		return 0, fmt.Errorf("current time is before epoch, ts=%d", ts)
	}
	if ts >= (int64(1) << timeBits) {
		return 0, fmt.Errorf("timestamp out of range: ts=%d", ts)
	}

	id := (ts << timeShift) | (s.workerID << workerIDShift) | s.sequence
	return id, nil
}

// currentMs 获取当前毫秒时间戳
func currentMs() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// waitUntil 等待直到时间戳 >= targetMs
func waitUntil(targetMs int64) int64 {
	for {
		now := currentMs()
		if now >= targetMs {
			return now
		}
		time.Sleep(100 * time.Microsecond)
	}
}
