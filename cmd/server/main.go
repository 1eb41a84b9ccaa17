package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"localdeal-backend/internal/config"
	"localdeal-backend/internal/data"
	"localdeal-backend/internal/middleware"
	"localdeal-backend/internal/router"
	"localdeal-backend/internal/service"
	"localdeal-backend/internal/utils"
	"localdeal-backend/pkg/logger"
)

func main() {
	cfgPath := os.Getenv("LOCALDEAL_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/app.yaml"
	}
	// 加载配置
	cfg := config.MustLoad(cfgPath)
	log, err := logger.New(cfg.Logging.Level)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("loaded config", zap.String("path", cfgPath))

	// 初始化 MySQL
	db, err := data.NewMySQL(cfg.MySQL, log)
	if err != nil {
		log.Fatal("mysql init failed", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("mysql db handle", zap.Error(err))
	}
	defer sqlDB.Close()
	log.Info("connected to mysql")

	// 初始化 Redis
	redisClient := data.NewRedis(cfg.Redis)
	if err := data.Ping(context.Background(), redisClient); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))

	// 初始化 Kafka
	// 订单事件生产者
	kafkaWriter := data.NewKafkaWriter(cfg.Kafka, cfg.Kafka.Topic)
	// 死信生产者与审计消费者
	kafkaDLQWriter := data.NewKafkaWriter(cfg.Kafka, cfg.Kafka.DLQTopic)
	kafkaDLQReader := data.NewKafkaReader(cfg.Kafka, cfg.Kafka.DLQTopic, cfg.Kafka.GroupID+"-dlq")
	defer kafkaWriter.Close()
	defer kafkaDLQWriter.Close()
	defer kafkaDLQReader.Close()
	log.Info("configured kafka",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("dlqTopic", cfg.Kafka.DLQTopic),
		zap.String("groupID", cfg.Kafka.GroupID),
	)

	// 构建 Service Registry（传入统一 logger）
	smtpCfg := utils.SMTPConfig{
		Host: cfg.SMTP.Host,
		Port: cfg.SMTP.Port,
		User: cfg.SMTP.User,
		Pass: cfg.SMTP.Pass,
		To:   cfg.SMTP.To,
	}
	consumerOpts := service.ConsumerOptions{
		Stream:     cfg.Seckill.Stream,
		Group:      cfg.Seckill.Group,
		Consumer:   cfg.Seckill.Consumer,
		MaxRetries: cfg.Seckill.MaxRetries,
	}
	services := service.NewRegistry(db, redisClient, kafkaWriter, kafkaDLQWriter, kafkaDLQReader, consumerOpts, smtpCfg, log)

	// 请求ID生成器（workerID 预留多实例部署时区分）
	snowflake, err := utils.NewSnowflake(0)
	if err != nil {
		log.Fatal("snowflake init failed", zap.Error(err))
	}

	// 启动后台消费者：订单落库消费者 + 死信审计消费者
	// 统一挂在可取消的 ctx 上，随进程优雅退出
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	if err := services.VoucherOrder.EnsureConsumerGroup(workerCtx); err != nil {
		log.Fatal("ensure consumer group failed", zap.Error(err))
	}
	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		services.VoucherOrder.StartOrderConsumer(workerCtx)
	}()
	go func() {
		defer workers.Done()
		services.DLQAudit.Run(workerCtx)
	}()

	// 初始化 Gin 引擎
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Logger())
	engine.Use(gin.Recovery())
	engine.Use(middleware.ErrorHandler(log))

	router.RegisterRoutes(engine, services, redisClient, snowflake)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: engine,
	}
	// 启动 HTTP 服务（异步）
	go func() {
		log.Info("starting http server", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server run failed", zap.Error(err))
		}
	}()

	// 监听系统信号，执行优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("server shutdown failed", zap.Error(err))
	}

	// 先停 HTTP 再停消费者：不再有新订单入队后让消费者把手头消息处理完
	stopWorkers()
	workers.Wait()
	log.Info("server exited")
}
