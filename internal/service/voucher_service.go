package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"localdeal-backend/internal/model"
	"localdeal-backend/internal/utils"
)

const defaultVoucherCacheTTL = 30 * time.Second

// VoucherService 处理普通券与秒杀券逻辑
// 秒杀券发布时会把库存和时间窗口预热到 Redis，秒杀 lua 脚本只读这些键
type VoucherService struct {
	db         *gorm.DB
	rdb        *redis.Client
	seckillSvc *SeckillVoucherService
	log        *zap.Logger
	localCache *bigcache.BigCache // 店铺券列表的进程内缓存，秒杀期间热读
}

// VoucherWithSeckill 用于返回携带秒杀信息的券
type VoucherWithSeckill struct {
	ID          int64      `gorm:"column:id" json:"id"`
	ShopID      int64      `gorm:"column:shop_id" json:"shopId"`
	Title       string     `gorm:"column:title" json:"title"`
	SubTitle    string     `gorm:"column:sub_title" json:"subTitle"`
	Rules       string     `gorm:"column:rules" json:"rules"`
	PayValue    int64      `gorm:"column:pay_value" json:"payValue"`
	ActualValue int64      `gorm:"column:actual_value" json:"actualValue"`
	Type        int        `gorm:"column:type" json:"type"`
	Status      int        `gorm:"column:status" json:"status"`
	CreateTime  time.Time  `gorm:"column:create_time" json:"createTime"`
	UpdateTime  time.Time  `gorm:"column:update_time" json:"updateTime"`
	Stock       *int       `gorm:"column:stock" json:"stock,omitempty"`
	BeginTime   *time.Time `gorm:"column:begin_time" json:"beginTime,omitempty"`
	EndTime     *time.Time `gorm:"column:end_time" json:"endTime,omitempty"`
}

// NewVoucherService 创建 VoucherService 实例
func NewVoucherService(db *gorm.DB, seckillSvc *SeckillVoucherService, rdb *redis.Client, log *zap.Logger) *VoucherService {
	if log == nil {
		log = zap.NewNop()
	}
	cache := initVoucherLocalCache(log)
	return &VoucherService{db: db, rdb: rdb, seckillSvc: seckillSvc, log: log, localCache: cache}
}

// initVoucherLocalCache 初始化本地缓存
func initVoucherLocalCache(log *zap.Logger) *bigcache.BigCache {
	config := bigcache.DefaultConfig(defaultVoucherCacheTTL)
	// 清理窗口设为 TTL 的一半，降低过期键清理的抖动
	config.CleanWindow = defaultVoucherCacheTTL / 2
	cache, err := bigcache.New(context.Background(), config)
	if err != nil {
		log.Warn("init voucher local cache failed", zap.Error(err))
		return nil
	}
	return cache
}

func (s *VoucherService) Create(ctx context.Context, voucher *model.Voucher) error {
	if err := s.db.WithContext(ctx).Create(voucher).Error; err != nil {
		return err
	}
	s.invalidateShopCache(voucher.ShopID)
	return nil
}

// QueryVoucherOfShop 查询店铺的可用券列表，结果进本地缓存
// 秒杀开始前这条接口会被疯狂刷新，本地缓存把读压力挡在进程内
func (s *VoucherService) QueryVoucherOfShop(ctx context.Context, shopID int64) ([]VoucherWithSeckill, error) {
	cacheKey := utils.CACHE_SHOP_VOUCHER_KEY + strconv.FormatInt(shopID, 10)
	if cached, ok := s.getLocalVouchers(cacheKey); ok {
		return cached, nil
	}

	var vouchers []VoucherWithSeckill
	query := `
        SELECT v.id, v.shop_id, v.title, v.sub_title, v.rules, v.pay_value,
               v.actual_value, v.type, v.status, v.create_time, v.update_time,
               sv.stock, sv.begin_time, sv.end_time
        FROM tb_voucher v
        LEFT JOIN tb_seckill_voucher sv ON v.id = sv.voucher_id
        WHERE v.shop_id = ? AND v.status = 1`
	if err := s.db.WithContext(ctx).Raw(query, shopID).Scan(&vouchers).Error; err != nil {
		return nil, err
	}
	s.setLocalVouchers(cacheKey, vouchers)
	return vouchers, nil
}

// AddSeckillVoucher 发布秒杀券：落库后把库存与时间窗口预热到 Redis
// 秒杀脚本只信 Redis 里的这份数据，预热失败则整个发布失败
func (s *VoucherService) AddSeckillVoucher(ctx context.Context, voucher *model.Voucher) error {
	if voucher.Stock == nil || *voucher.Stock < 0 {
		return errors.New("seckill voucher requires a non-negative stock")
	}
	if voucher.BeginTime == nil || voucher.EndTime == nil {
		return errors.New("seckill voucher requires begin and end time")
	}
	if !voucher.EndTime.After(*voucher.BeginTime) {
		return errors.New("seckill end time must be after begin time")
	}

	if err := s.db.WithContext(ctx).Create(voucher).Error; err != nil {
		return err
	}
	sec := &model.SeckillVoucher{
		VoucherID: voucher.ID,
		Stock:     *voucher.Stock,
		BeginTime: *voucher.BeginTime,
		EndTime:   *voucher.EndTime,
	}
	if err := s.seckillSvc.Create(ctx, sec); err != nil {
		return err
	}

	// 预热 Redis：库存、时间窗口，清掉可能残留的已购名单
	idStr := strconv.FormatInt(voucher.ID, 10)
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, utils.SECKILL_STOCK_KEY+idStr, *voucher.Stock, 0)
	pipe.Set(ctx, utils.SECKILL_BEGIN_KEY+idStr, voucher.BeginTime.Unix(), 0)
	pipe.Set(ctx, utils.SECKILL_END_KEY+idStr, voucher.EndTime.Unix(), 0)
	pipe.Del(ctx, utils.SECKILL_ORDER_KEY+idStr)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	s.invalidateShopCache(voucher.ShopID)
	s.log.Info("seckill voucher published",
		zap.Int64("voucherId", voucher.ID),
		zap.Int("stock", *voucher.Stock),
		zap.Time("beginTime", *voucher.BeginTime),
		zap.Time("endTime", *voucher.EndTime),
	)
	return nil
}

// getLocalVouchers 从本地缓存读取券列表
func (s *VoucherService) getLocalVouchers(key string) ([]VoucherWithSeckill, bool) {
	if s.localCache == nil {
		return nil, false
	}
	data, err := s.localCache.Get(key)
	if err != nil {
		return nil, false
	}
	var vouchers []VoucherWithSeckill
	if unmarshalErr := json.Unmarshal(data, &vouchers); unmarshalErr != nil {
		s.localCache.Delete(key)
		return nil, false
	}
	return vouchers, true
}

// setLocalVouchers 将券列表写入本地缓存
func (s *VoucherService) setLocalVouchers(key string, vouchers []VoucherWithSeckill) {
	if s.localCache == nil {
		return
	}
	data, err := json.Marshal(vouchers)
	if err != nil {
		return
	}
	_ = s.localCache.Set(key, data)
}

// invalidateShopCache 券变更后失效对应店铺的本地缓存
func (s *VoucherService) invalidateShopCache(shopID int64) {
	if s.localCache == nil {
		return
	}
	s.localCache.Delete(utils.CACHE_SHOP_VOUCHER_KEY + strconv.FormatInt(shopID, 10))
}
