// judge-service consumes judging triggers from the queue, evaluates
// submissions in the sandbox and serves results over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gavel/internal/common/cache"
	"gavel/internal/common/db"
	"gavel/internal/common/middleware"
	"gavel/internal/common/mq"
	"gavel/internal/judge/controller"
	"gavel/internal/judge/coordinator"
	"gavel/internal/judge/harness"
	"gavel/internal/judge/repository"
	"gavel/internal/judge/sandbox"
	"gavel/internal/judge/sandbox/engine"
	"gavel/internal/judge/sandbox/profile"
	"gavel/internal/judge/scoring"
	"gavel/pkg/utils/logger"
)

func main() {
	configPath := flag.String("config", "configs/judge.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	database, err := db.NewMySQLWithConfig(&cfg.MySQL)
	if err != nil {
		return fmt.Errorf("connect mysql: %w", err)
	}
	defer func() { _ = database.Close() }()

	redisCache, err := cache.NewRedisCacheWithConfig(&cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() { _ = redisCache.Close() }()

	queue, err := mq.NewKafkaQueue(cfg.Queue.Kafka)
	if err != nil {
		return fmt.Errorf("connect kafka: %w", err)
	}
	defer func() { _ = queue.Close() }()

	submissions, err := repository.NewSubmissionRepository(database, redisCache)
	if err != nil {
		return err
	}
	problems, err := repository.NewProblemRepository(database)
	if err != nil {
		return err
	}
	rankKey := cfg.Judge.RankKey
	if rankKey == "" {
		rankKey = scoring.DefaultRankKey
	}
	leaderboard, err := repository.NewLeaderboardRepository(database, redisCache, rankKey)
	if err != nil {
		return err
	}
	accrual, err := scoring.NewAccrual(leaderboard, redisCache, cfg.Judge.AcceptedPoints, rankKey)
	if err != nil {
		return err
	}

	eng, err := engine.NewEngine(cfg.Judge.Engine)
	if err != nil {
		return fmt.Errorf("create sandbox engine: %w", err)
	}
	registry := profile.NewStaticRegistry(cfg.Judge.Languages)
	executor, err := sandbox.NewExecutor(eng, registry, cfg.Judge.WorkRoot)
	if err != nil {
		return err
	}
	h, err := harness.New(executor, cfg.Judge.Limits.ToResourceLimit(), cfg.Judge.Harness)
	if err != nil {
		return err
	}
	coord, err := coordinator.New(submissions, problems, h, accrual, executor, cfg.Judge.Coordinator)
	if err != nil {
		return err
	}

	if err := queue.Subscribe(ctx, cfg.Queue.Topic, coord.Handler(), &mq.SubscribeOptions{
		ConsumerGroup:   cfg.Queue.ConsumerGroup,
		Concurrency:     cfg.Queue.Concurrency,
		MaxRetries:      cfg.Queue.MaxRetries,
		RetryDelay:      cfg.Queue.RetryDelay,
		DeadLetterTopic: cfg.Queue.DeadLetterTopic,
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.Queue.Topic, err)
	}
	if err := queue.Start(); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: buildRouter(cfg, submissions, leaderboard, database, redisCache, queue),
	}
	go func() {
		logger.Info(ctx, "http server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx, "http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "http shutdown failed", zap.Error(err))
	}
	if err := queue.Stop(); err != nil {
		logger.Error(ctx, "consumer stop failed", zap.Error(err))
	}
	logger.Info(ctx, "shutdown complete")
	return nil
}

func buildRouter(
	cfg *AppConfig,
	submissions repository.SubmissionRepository,
	leaderboard repository.LeaderboardRepository,
	database db.Database,
	redisCache cache.Cache,
	queue mq.MessageQueue,
) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.Trace(), middleware.AccessLog())

	router.GET("/healthz", func(c *gin.Context) {
		checks := map[string]string{"mysql": "ok", "redis": "ok", "kafka": "ok"}
		status := http.StatusOK
		if err := database.Ping(c.Request.Context()); err != nil {
			checks["mysql"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := redisCache.Ping(c.Request.Context()); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := queue.Ping(c.Request.Context()); err != nil {
			checks["kafka"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, checks)
	})

	api := router.Group("/api/v1")
	controller.NewJudgeController(submissions, leaderboard).RegisterRoutes(api)
	return router
}
