package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"localdeal-backend/internal/model"
	"localdeal-backend/internal/utils"
)

// 秒杀资格校验的结果，与 lua 脚本的返回值一一对应
var (
	ErrOutOfStock        = errors.New("库存不足")
	ErrDuplicateOrder    = errors.New("不能重复下单")
	ErrSeckillNotStarted = errors.New("秒杀尚未开始")
	ErrSeckillEnded      = errors.New("秒杀已结束")

	// ErrLockUnavailable 下单锁被占用，属于瞬时错误，靠消息重投递重试
	ErrLockUnavailable = errors.New("获取下单锁失败")
)

// seckillScript 秒杀资格判定 + 下单消息入队，整段脚本在 Redis 内原子执行
// 任何"先查后改"的间隙在高并发下都会被利用，导致超卖或重复下单，
// 因此时间窗口、库存、一人一单的校验和扣减必须在同一个原子单元内完成
//
// 返回值：0 成功，1 库存不足，2 重复下单，3 秒杀未开始，4 秒杀已结束
var seckillScript = redis.NewScript(`
local voucherId = ARGV[1]
local userId = ARGV[2]
local orderId = ARGV[3]
local now = tonumber(ARGV[4])
local streamKey = ARGV[5]

local stockKey = 'seckill:stock:' .. voucherId
local orderKey = 'seckill:order:' .. voucherId
local beginKey = 'seckill:begin:' .. voucherId
local endKey = 'seckill:end:' .. voucherId

-- 1.校验秒杀时间窗口
local beginTime = tonumber(redis.call('get', beginKey))
if beginTime and now < beginTime then
    return 3
end
local endTime = tonumber(redis.call('get', endKey))
if endTime and now >= endTime then
    return 4
end

-- 2.判断库存是否充足
local stock = tonumber(redis.call('get', stockKey))
if not stock or stock <= 0 then
    return 1
end

-- 3.一人一单：判断用户是否已下过单
if redis.call('sismember', orderKey, userId) == 1 then
    return 2
end

-- 4.扣库存、记录用户、订单消息入队
redis.call('incrby', stockKey, -1)
redis.call('sadd', orderKey, userId)
redis.call('xadd', streamKey, '*', 'id', orderId, 'userId', userId, 'voucherId', voucherId)
return 0
`)

// ConsumerOptions 订单流消费者配置
type ConsumerOptions struct {
	Stream     string // 订单消息所在的 stream
	Group      string // 消费者组名
	Consumer   string // 本进程的消费者名
	MaxRetries int    // pending 消息的最大重试次数，超出后进死信
}

// OrderEvent 订单落库成功后发往 Kafka 的下游事件
type OrderEvent struct {
	OrderID   int64     `json:"orderId"`
	UserID    int64     `json:"userId"`
	VoucherID int64     `json:"voucherId"`
	CreatedAt time.Time `json:"createdAt"`
}

// DeadLetter 重试耗尽的订单消息，连同原始字段一起送入死信 topic
type DeadLetter struct {
	MessageID string            `json:"messageId"`
	Values    map[string]string `json:"values"`
	Reason    string            `json:"reason"`
	FailedAt  time.Time         `json:"failedAt"`
}

// VoucherOrderService 处理秒杀下单逻辑
// 同步路径：Seckill 在 Redis 内完成资格判定并立刻返回订单号
// 异步路径：StartOrderConsumer 从 stream 拉取已获准的订单并落库
type VoucherOrderService struct {
	db          *gorm.DB
	rdb         *redis.Client
	idWorker    *utils.RedisIdWorker
	orderWriter *kafka.Writer // 订单创建事件
	dlqWriter   *kafka.Writer // 死信
	opts        ConsumerOptions
	log         *zap.Logger
}

func NewVoucherOrderService(
	db *gorm.DB,
	rdb *redis.Client,
	orderWriter *kafka.Writer,
	dlqWriter *kafka.Writer,
	opts ConsumerOptions,
	log *zap.Logger,
) *VoucherOrderService {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Stream == "" {
		opts.Stream = "stream.orders"
	}
	if opts.Group == "" {
		opts.Group = "g1"
	}
	if opts.Consumer == "" {
		opts.Consumer = "c1"
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	return &VoucherOrderService{
		db:          db,
		rdb:         rdb,
		idWorker:    utils.NewRedisIdWorker(rdb),
		orderWriter: orderWriter,
		dlqWriter:   dlqWriter,
		opts:        opts,
		log:         log,
	}
}

// Seckill 秒杀下单入口
// 先生成订单号，再执行 lua 脚本判定资格；脚本返回 0 表示已扣减库存、
// 订单消息已入队，可以直接把订单号返回给用户，落库由后台消费者完成
// 脚本执行失败（Redis 不可达）时直接报错，不向用户签发订单号
func (s *VoucherOrderService) Seckill(ctx context.Context, voucherID, userID int64) (int64, error) {
	orderID, err := s.idWorker.NextId(ctx, "order")
	if err != nil {
		return 0, fmt.Errorf("generate order id: %w", err)
	}

	res, err := seckillScript.Run(ctx, s.rdb, []string{},
		strconv.FormatInt(voucherID, 10),
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(orderID, 10),
		time.Now().Unix(),
		s.opts.Stream,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("run seckill script: %w", err)
	}

	switch res {
	case 0:
		return orderID, nil
	case 1:
		return 0, ErrOutOfStock
	case 2:
		return 0, ErrDuplicateOrder
	case 3:
		return 0, ErrSeckillNotStarted
	case 4:
		return 0, ErrSeckillEnded
	default:
		return 0, fmt.Errorf("unexpected seckill script result: %d", res)
	}
}

// EnsureConsumerGroup 创建消费者组（stream 不存在时一并创建）
// 组已存在时 Redis 返回 BUSYGROUP，视为正常
func (s *VoucherOrderService) EnsureConsumerGroup(ctx context.Context) error {
	err := s.rdb.XGroupCreateMkStream(ctx, s.opts.Stream, s.opts.Group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// StartOrderConsumer 订单消费主循环，阻塞运行直至 ctx 取消
// 每个进程只跑一个消费者，保证进程内按队列顺序处理；
// 跨用户的串行化交给 createVoucherOrder 里的分布式锁
func (s *VoucherOrderService) StartOrderConsumer(ctx context.Context) {
	s.log.Info("order consumer started",
		zap.String("stream", s.opts.Stream),
		zap.String("group", s.opts.Group),
		zap.String("consumer", s.opts.Consumer),
	)
	for {
		if ctx.Err() != nil {
			s.log.Info("order consumer stopped")
			return
		}

		// 1.获取消息队列中的订单信息
		// XREADGROUP GROUP g1 c1 COUNT 1 BLOCK 2000 STREAMS stream.orders >
		streams, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.opts.Group,
			Consumer: s.opts.Consumer,
			Streams:  []string{s.opts.Stream, ">"},
			Count:    1,
			Block:    2 * time.Second,
		}).Result()
		// 阻塞超时内没有新消息，继续下一轮
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info("order consumer stopped")
				return
			}
			s.log.Error("read order stream failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if len(streams) == 0 || len(streams[0].Messages) == 0 {
			continue
		}

		msg := streams[0].Messages[0]
		if err := s.consumeOrderMessage(ctx, msg); err != nil {
			// 2.处理失败：消息留在 pending-list，进入恢复流程
			s.log.Error("handle order message failed, entering recovery",
				zap.String("messageId", msg.ID), zap.Error(err))
			s.handlePendingList(ctx)
		}
	}
}

// consumeOrderMessage 解析消息、落库、确认，三步全部成功才算消费完成
func (s *VoucherOrderService) consumeOrderMessage(ctx context.Context, msg redis.XMessage) error {
	order, err := parseOrderMessage(msg)
	if err != nil {
		return err
	}
	if err := s.createVoucherOrder(ctx, order); err != nil {
		return err
	}
	// 落库成功后才 XACK，保证至少一次语义
	if err := s.rdb.XAck(ctx, s.opts.Stream, s.opts.Group, msg.ID).Err(); err != nil {
		return fmt.Errorf("ack message %s: %w", msg.ID, err)
	}
	s.publishOrderEvent(ctx, order)
	return nil
}

// handlePendingList 恢复流程：重放本消费者的 pending-list 直至清空
// 读偏移 0 表示只读已投递未确认的消息，不会消费新消息
// 同一条消息重试超过 MaxRetries 次则送入 Kafka 死信 topic 并确认，
// 避免毒消息卡死整个恢复流程（消息本体保留在死信里，人工对账处理）
func (s *VoucherOrderService) handlePendingList(ctx context.Context) {
	retries := make(map[string]int)
	for {
		if ctx.Err() != nil {
			return
		}

		// XREADGROUP GROUP g1 c1 COUNT 1 STREAMS stream.orders 0
		streams, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.opts.Group,
			Consumer: s.opts.Consumer,
			Streams:  []string{s.opts.Stream, "0"},
			Count:    1,
		}).Result()
		if errors.Is(err, redis.Nil) {
			// pending-list 为空，恢复完成
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Error("read pending list failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if len(streams) == 0 || len(streams[0].Messages) == 0 {
			return
		}

		msg := streams[0].Messages[0]
		if err := s.consumeOrderMessage(ctx, msg); err == nil {
			delete(retries, msg.ID)
			continue
		} else {
			s.log.Error("handle pending message failed",
				zap.String("messageId", msg.ID),
				zap.Int("attempt", retries[msg.ID]+1),
				zap.Error(err))
		}

		retries[msg.ID]++
		if retries[msg.ID] >= s.opts.MaxRetries {
			if err := s.deadLetter(ctx, msg); err != nil {
				// 死信都写不进去就保留在 pending-list 里继续重试
				s.log.Error("publish dead letter failed", zap.String("messageId", msg.ID), zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			if err := s.rdb.XAck(ctx, s.opts.Stream, s.opts.Group, msg.ID).Err(); err != nil {
				s.log.Error("ack dead letter failed", zap.String("messageId", msg.ID), zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			s.log.Warn("order message dead-lettered", zap.String("messageId", msg.ID))
			delete(retries, msg.ID)
			continue
		}
		// 短暂退避后重试同一条消息
		time.Sleep(200 * time.Millisecond)
	}
}

// parseOrderMessage 将 stream 消息还原为订单实体
func parseOrderMessage(msg redis.XMessage) (*model.VoucherOrder, error) {
	orderID, err := parseMessageInt(msg, "id")
	if err != nil {
		return nil, err
	}
	userID, err := parseMessageInt(msg, "userId")
	if err != nil {
		return nil, err
	}
	voucherID, err := parseMessageInt(msg, "voucherId")
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &model.VoucherOrder{
		ID:         orderID,
		UserID:     userID,
		VoucherID:  voucherID,
		CreateTime: now,
		UpdateTime: now,
	}, nil
}

func parseMessageInt(msg redis.XMessage, field string) (int64, error) {
	raw, ok := msg.Values[field]
	if !ok {
		return 0, fmt.Errorf("message %s missing field %q", msg.ID, field)
	}
	str, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("message %s field %q is not a string", msg.ID, field)
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("message %s field %q: %w", msg.ID, field, err)
	}
	return val, nil
}

// createVoucherOrder 将一笔已获准的订单落库
// 消息是至少一次投递，本方法必须幂等：锁内先查订单是否已存在，
// 存在即视为成功返回
func (s *VoucherOrderService) createVoucherOrder(ctx context.Context, order *model.VoucherOrder) error {
	// 1.按用户加锁：不同用户之间不需要互斥，锁粒度到 userId
	// 理论上 lua 脚本的去重已经挡住了同一用户的并发请求，这里是兜底
	lock := utils.NewSimpleRedisLock(s.rdb, "order:"+strconv.FormatInt(order.UserID, 10))
	locked, err := lock.TryLock(ctx, time.Duration(utils.LOCK_ORDER_TTL)*time.Second)
	if err != nil {
		return fmt.Errorf("try order lock: %w", err)
	}
	if !locked {
		s.log.Warn("order lock unavailable",
			zap.Int64("userId", order.UserID),
			zap.Int64("voucherId", order.VoucherID))
		return ErrLockUnavailable
	}
	// 锁必须在事务结果确定之后才释放：提前释放会让并发请求
	// 读到未提交状态，重新出现一人多单的窗口
	defer func() {
		if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("release order lock failed", zap.String("key", lock.Key()), zap.Error(err))
		}
	}()

	// 2.一人一单：锁内再查一次订单是否存在，存在则幂等返回
	var existed int64
	if err := s.db.WithContext(ctx).
		Model(&model.VoucherOrder{}).
		Where("user_id = ? AND voucher_id = ?", order.UserID, order.VoucherID).
		Count(&existed).Error; err != nil {
		return fmt.Errorf("count existing order: %w", err)
	}
	if existed > 0 {
		s.log.Info("order already persisted, skip",
			zap.Int64("orderId", order.ID),
			zap.Int64("userId", order.UserID))
		return nil
	}

	// 3.扣库存和插入订单放在同一个事务里，失败整体回滚
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// CAS 扣减：stock > 0 作为写入时的前置条件，防止负库存
		update := tx.Model(&model.SeckillVoucher{}).
			Where("voucher_id = ? AND stock > 0", order.VoucherID).
			Update("stock", gorm.Expr("stock - 1"))
		if update.Error != nil {
			return fmt.Errorf("decrement stock: %w", update.Error)
		}
		if update.RowsAffected == 0 {
			// lua 脚本已经保证了名额，这里不应该发生；
			// 出现说明两边库存出现偏差，记告警并放弃本单
			s.log.Warn("stock CAS affected zero rows, order dropped",
				zap.Int64("orderId", order.ID),
				zap.Int64("voucherId", order.VoucherID))
			return nil
		}
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
}

// publishOrderEvent 订单落库成功后向 Kafka 发布下游事件
// 事件属于通知性质，发送失败只记日志，不影响订单主流程
func (s *VoucherOrderService) publishOrderEvent(ctx context.Context, order *model.VoucherOrder) {
	if s.orderWriter == nil {
		return
	}
	event := OrderEvent{
		OrderID:   order.ID,
		UserID:    order.UserID,
		VoucherID: order.VoucherID,
		CreatedAt: order.CreateTime,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.log.Error("marshal order event failed", zap.Error(err))
		return
	}
	// 以 userId 作为 key，同一用户的事件落到同一分区
	err = s.orderWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(order.UserID, 10)),
		Value: payload,
	})
	if err != nil {
		s.log.Error("publish order event failed",
			zap.Int64("orderId", order.ID), zap.Error(err))
	}
}

// deadLetter 把重试耗尽的消息连同原始字段写入死信 topic
func (s *VoucherOrderService) deadLetter(ctx context.Context, msg redis.XMessage) error {
	if s.dlqWriter == nil {
		return errors.New("dlq writer not configured")
	}
	values := make(map[string]string, len(msg.Values))
	for k, v := range msg.Values {
		if str, ok := v.(string); ok {
			values[k] = str
		} else {
			values[k] = fmt.Sprint(v)
		}
	}
	dl := DeadLetter{
		MessageID: msg.ID,
		Values:    values,
		Reason:    "max retries exceeded",
		FailedAt:  time.Now(),
	}
	payload, err := json.Marshal(dl)
	if err != nil {
		return err
	}
	return s.dlqWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.ID),
		Value: payload,
	})
}
