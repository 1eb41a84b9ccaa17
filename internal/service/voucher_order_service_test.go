package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"localdeal-backend/internal/model"
	"localdeal-backend/internal/utils"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr: "127.0.0.1:6379",
		DB:   0,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("skip: cannot connect redis: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(127.0.0.1:3306)/localdeal?parseTime=true&loc=Local&charset=utf8mb4"
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Skipf("skip: cannot connect mysql: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		// 控制连接数，避免并发压测触发 MySQL max_connections
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetMaxIdleConns(10)
		t.Cleanup(func() { sqlDB.Close() })
	}
	return db
}

// newTestService 每个测试使用独立的 stream，互不干扰
func newTestService(t *testing.T, db *gorm.DB, rdb *redis.Client) *VoucherOrderService {
	t.Helper()
	stream := fmt.Sprintf("stream.orders.test.%d", time.Now().UnixNano())
	svc := NewVoucherOrderService(db, rdb, nil, nil, ConsumerOptions{
		Stream:     stream,
		Group:      "g1",
		Consumer:   "c1",
		MaxRetries: 5,
	}, zap.NewNop())
	if err := svc.EnsureConsumerGroup(context.Background()); err != nil {
		t.Fatalf("ensure consumer group: %v", err)
	}
	t.Cleanup(func() { rdb.Del(context.Background(), stream) })
	return svc
}

// seedSeckillKeys 预热秒杀所需的 Redis 键，模拟 AddSeckillVoucher 的发布动作
func seedSeckillKeys(t *testing.T, rdb *redis.Client, voucherID int64, stock int, begin, end time.Time) {
	t.Helper()
	ctx := context.Background()
	idStr := strconv.FormatInt(voucherID, 10)
	keys := []string{
		utils.SECKILL_STOCK_KEY + idStr,
		utils.SECKILL_BEGIN_KEY + idStr,
		utils.SECKILL_END_KEY + idStr,
		utils.SECKILL_ORDER_KEY + idStr,
	}
	if err := rdb.Set(ctx, keys[0], stock, 0).Err(); err != nil {
		t.Fatalf("seed stock: %v", err)
	}
	if err := rdb.Set(ctx, keys[1], begin.Unix(), 0).Err(); err != nil {
		t.Fatalf("seed begin: %v", err)
	}
	if err := rdb.Set(ctx, keys[2], end.Unix(), 0).Err(); err != nil {
		t.Fatalf("seed end: %v", err)
	}
	rdb.Del(ctx, keys[3])
	t.Cleanup(func() { rdb.Del(context.Background(), keys...) })
}

// TestSeckillNoOversell 并发 200 个用户抢 10 个名额，成功数必须恰好等于库存
func TestSeckillNoOversell(t *testing.T) {
	ctx := context.Background()
	rdb := newTestRedis(t)
	svc := newTestService(t, nil, rdb)

	voucherID := time.Now().UnixNano()
	const stock = 10
	seedSeckillKeys(t, rdb, voucherID, stock,
		time.Now().Add(-time.Minute), time.Now().Add(5*time.Minute))

	const workers = 200
	var wg sync.WaitGroup
	var success, outOfStock int64

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			userID := int64(10000 + idx)
			_, err := svc.Seckill(ctx, voucherID, userID)
			switch {
			case err == nil:
				atomic.AddInt64(&success, 1)
			case errors.Is(err, ErrOutOfStock):
				atomic.AddInt64(&outOfStock, 1)
			default:
				t.Errorf("unexpected seckill error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if success != stock {
		t.Fatalf("expected exactly %d successes, got %d", stock, success)
	}
	if outOfStock != workers-stock {
		t.Fatalf("expected %d out-of-stock rejections, got %d", workers-stock, outOfStock)
	}

	// Redis 侧库存应扣到 0，且队列里恰好有 stock 条订单消息
	left, err := rdb.Get(ctx, utils.SECKILL_STOCK_KEY+strconv.FormatInt(voucherID, 10)).Int()
	if err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if left != 0 {
		t.Fatalf("stock should be 0, got %d", left)
	}
	qlen, err := rdb.XLen(ctx, svc.opts.Stream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if qlen != stock {
		t.Fatalf("expected %d queued orders, got %d", stock, qlen)
	}
}

// TestSeckillOnePerUser 同一用户并发抢购只能成功一次，其余返回重复下单
func TestSeckillOnePerUser(t *testing.T) {
	ctx := context.Background()
	rdb := newTestRedis(t)
	svc := newTestService(t, nil, rdb)

	voucherID := time.Now().UnixNano()
	seedSeckillKeys(t, rdb, voucherID, 100,
		time.Now().Add(-time.Minute), time.Now().Add(5*time.Minute))

	const attempts = 50
	userID := int64(1)
	var wg sync.WaitGroup
	var success, duplicate int64

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Seckill(ctx, voucherID, userID)
			switch {
			case err == nil:
				atomic.AddInt64(&success, 1)
			case errors.Is(err, ErrDuplicateOrder):
				atomic.AddInt64(&duplicate, 1)
			default:
				t.Errorf("unexpected seckill error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected 1 success for single user, got %d", success)
	}
	if duplicate != attempts-1 {
		t.Fatalf("expected %d duplicate rejections, got %d", attempts-1, duplicate)
	}
}

// TestSeckillTimeWindow 窗口外的请求被原子拒绝，不产生任何副作用
func TestSeckillTimeWindow(t *testing.T) {
	ctx := context.Background()
	rdb := newTestRedis(t)
	svc := newTestService(t, nil, rdb)

	// 未开始
	notStarted := time.Now().UnixNano()
	seedSeckillKeys(t, rdb, notStarted, 10,
		time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))
	if _, err := svc.Seckill(ctx, notStarted, 1); !errors.Is(err, ErrSeckillNotStarted) {
		t.Fatalf("expected ErrSeckillNotStarted, got %v", err)
	}

	// 已结束
	ended := time.Now().UnixNano() + 1
	seedSeckillKeys(t, rdb, ended, 10,
		time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))
	if _, err := svc.Seckill(ctx, ended, 1); !errors.Is(err, ErrSeckillEnded) {
		t.Fatalf("expected ErrSeckillEnded, got %v", err)
	}

	// 两次拒绝都不应扣库存
	for _, id := range []int64{notStarted, ended} {
		left, err := rdb.Get(ctx, utils.SECKILL_STOCK_KEY+strconv.FormatInt(id, 10)).Int()
		if err != nil {
			t.Fatalf("query stock: %v", err)
		}
		if left != 10 {
			t.Fatalf("stock mutated by rejected request: %d", left)
		}
	}
}

// prepareSeckillVoucherRow 将数据库中的秒杀券调整到可用状态并返回初始库存
func prepareSeckillVoucherRow(t *testing.T, db *gorm.DB, voucherID int64, stock int) {
	t.Helper()
	err := db.Model(&model.SeckillVoucher{}).
		Where("voucher_id = ?", voucherID).
		Updates(map[string]interface{}{
			"stock":       stock,
			"begin_time":  time.Now().Add(-time.Minute),
			"end_time":    time.Now().Add(time.Hour),
			"update_time": time.Now(),
		}).Error
	if err != nil {
		t.Fatalf("prepare seckill voucher: %v", err)
	}
	var count int64
	db.Model(&model.SeckillVoucher{}).Where("voucher_id = ?", voucherID).Count(&count)
	if count == 0 {
		t.Skipf("skip: seckill voucher %d not seeded in database", voucherID)
	}
}

func queryStock(t *testing.T, db *gorm.DB, voucherID int64) int {
	t.Helper()
	var left int
	if err := db.Raw("SELECT stock FROM tb_seckill_voucher WHERE voucher_id = ?", voucherID).Scan(&left).Error; err != nil {
		t.Fatalf("query stock: %v", err)
	}
	return left
}

// TestCreateVoucherOrderIdempotent 同一条订单消息落库两次，
// 只产生一行订单，库存只扣一次
func TestCreateVoucherOrderIdempotent(t *testing.T) {
	ctx := context.Background()
	rdb := newTestRedis(t)
	db := newTestDB(t)
	svc := newTestService(t, db, rdb)

	const voucherID = int64(12)
	prepareSeckillVoucherRow(t, db, voucherID, 100)

	userID := time.Now().UnixNano()
	order := &model.VoucherOrder{
		ID:         userID + 1,
		UserID:     userID,
		VoucherID:  voucherID,
		CreateTime: time.Now(),
		UpdateTime: time.Now(),
	}
	t.Cleanup(func() {
		db.Where("user_id = ?", userID).Delete(&model.VoucherOrder{})
	})

	before := queryStock(t, db, voucherID)

	if err := svc.createVoucherOrder(ctx, order); err != nil {
		t.Fatalf("first createVoucherOrder: %v", err)
	}
	if err := svc.createVoucherOrder(ctx, order); err != nil {
		t.Fatalf("second createVoucherOrder: %v", err)
	}

	var orderCount int64
	if err := db.Model(&model.VoucherOrder{}).
		Where("user_id = ? AND voucher_id = ?", userID, voucherID).
		Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 1 {
		t.Fatalf("expected exactly 1 order row, got %d", orderCount)
	}

	after := queryStock(t, db, voucherID)
	if before-after != 1 {
		t.Fatalf("stock should decrease exactly once: before=%d after=%d", before, after)
	}
}

// TestRecoveryDrainsBacklog 模拟消费中途崩溃：消息已投递未确认，
// 恢复流程应清空 pending-list 且每条只落库一次
func TestRecoveryDrainsBacklog(t *testing.T) {
	ctx := context.Background()
	rdb := newTestRedis(t)
	db := newTestDB(t)
	svc := newTestService(t, db, rdb)

	const voucherID = int64(12)
	prepareSeckillVoucherRow(t, db, voucherID, 100)

	// 向 stream 写入 3 条订单消息
	const backlog = 3
	baseUser := time.Now().UnixNano()
	userIDs := make([]int64, 0, backlog)
	for i := 0; i < backlog; i++ {
		userID := baseUser + int64(i)
		userIDs = append(userIDs, userID)
		err := rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: svc.opts.Stream,
			Values: map[string]interface{}{
				"id":        strconv.FormatInt(userID+1000, 10),
				"userId":    strconv.FormatInt(userID, 10),
				"voucherId": strconv.FormatInt(voucherID, 10),
			},
		}).Err()
		if err != nil {
			t.Fatalf("xadd: %v", err)
		}
	}
	t.Cleanup(func() {
		db.Where("user_id IN ?", userIDs).Delete(&model.VoucherOrder{})
	})

	// 读取但不确认，消息全部落入 pending-list，模拟处理中崩溃
	_, err := rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    svc.opts.Group,
		Consumer: svc.opts.Consumer,
		Streams:  []string{svc.opts.Stream, ">"},
		Count:    backlog,
	}).Result()
	if err != nil {
		t.Fatalf("simulate crash read: %v", err)
	}

	before := queryStock(t, db, voucherID)
	svc.handlePendingList(ctx)

	// pending-list 应被清空
	pending, err := rdb.XPending(ctx, svc.opts.Stream, svc.opts.Group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("pending list not drained: %d left", pending.Count)
	}

	// 每条消息恰好产生一行订单，库存恰好扣 backlog 次
	var orderCount int64
	if err := db.Model(&model.VoucherOrder{}).
		Where("user_id IN ? AND voucher_id = ?", userIDs, voucherID).
		Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != backlog {
		t.Fatalf("expected %d orders, got %d", backlog, orderCount)
	}
	after := queryStock(t, db, voucherID)
	if before-after != backlog {
		t.Fatalf("stock should decrease by %d: before=%d after=%d", backlog, before, after)
	}
}

// TestParseOrderMessage 消息字段缺失或非法时必须报错，不能落出脏订单
func TestParseOrderMessage(t *testing.T) {
	valid := redis.XMessage{
		ID: "1-0",
		Values: map[string]interface{}{
			"id":        "101",
			"userId":    "7",
			"voucherId": "12",
		},
	}
	order, err := parseOrderMessage(valid)
	if err != nil {
		t.Fatalf("parse valid message: %v", err)
	}
	if order.ID != 101 || order.UserID != 7 || order.VoucherID != 12 {
		t.Fatalf("unexpected order: %+v", order)
	}

	missing := redis.XMessage{ID: "1-1", Values: map[string]interface{}{"id": "101"}}
	if _, err := parseOrderMessage(missing); err == nil {
		t.Fatal("expected error for missing fields")
	}

	malformed := redis.XMessage{
		ID: "1-2",
		Values: map[string]interface{}{
			"id":        "101",
			"userId":    "not-a-number",
			"voucherId": "12",
		},
	}
	if _, err := parseOrderMessage(malformed); err == nil {
		t.Fatal("expected error for malformed userId")
	}
}
