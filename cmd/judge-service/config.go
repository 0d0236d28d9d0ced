package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gavel/internal/common/cache"
	"gavel/internal/common/db"
	"gavel/internal/common/mq"
	"gavel/internal/judge/coordinator"
	"gavel/internal/judge/harness"
	"gavel/internal/judge/sandbox/engine"
	"gavel/internal/judge/sandbox/profile"
	"gavel/internal/judge/sandbox/spec"
	"gavel/pkg/utils/logger"
)

// ServerConfig controls the HTTP read surface.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Mode            string        `yaml:"mode"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// QueueConfig controls the judging trigger topic.
type QueueConfig struct {
	Kafka           mq.KafkaConfig `yaml:"kafka"`
	Topic           string         `yaml:"topic"`
	ConsumerGroup   string         `yaml:"consumer_group"`
	DeadLetterTopic string         `yaml:"dead_letter_topic"`
	Concurrency     int            `yaml:"concurrency"`
	MaxRetries      int            `yaml:"max_retries"`
	RetryDelay      time.Duration  `yaml:"retry_delay"`
}

// LimitsConfig is the yaml shape of the per-case sandbox limits.
type LimitsConfig struct {
	WallTimeMs int64 `yaml:"wall_time_ms"`
	CPUQuota   int64 `yaml:"cpu_quota"`
	CPUPeriod  int64 `yaml:"cpu_period"`
	MemoryMB   int64 `yaml:"memory_mb"`
	StackMB    int64 `yaml:"stack_mb"`
	OutputMB   int64 `yaml:"output_mb"`
	PIDs       int64 `yaml:"pids"`
}

// ToResourceLimit converts the yaml shape to the sandbox limit type.
func (l LimitsConfig) ToResourceLimit() spec.ResourceLimit {
	return spec.ResourceLimit{
		WallTimeMs: l.WallTimeMs,
		CPUQuota:   l.CPUQuota,
		CPUPeriod:  l.CPUPeriod,
		MemoryMB:   l.MemoryMB,
		StackMB:    l.StackMB,
		OutputMB:   l.OutputMB,
		PIDs:       l.PIDs,
	}
}

// JudgeConfig controls the evaluation pipeline.
type JudgeConfig struct {
	WorkRoot       string                 `yaml:"work_root"`
	AcceptedPoints int64                  `yaml:"accepted_points"`
	RankKey        string                 `yaml:"rank_key"`
	Limits         LimitsConfig           `yaml:"limits"`
	Languages      []profile.LanguageSpec `yaml:"languages"`
	Harness        harness.Config         `yaml:"harness"`
	Coordinator    coordinator.Config     `yaml:"coordinator"`
	Engine         engine.Config          `yaml:"engine"`
}

// AppConfig is the root configuration of the judge service.
type AppConfig struct {
	Server ServerConfig      `yaml:"server"`
	Log    logger.Config     `yaml:"log"`
	MySQL  db.MySQLConfig    `yaml:"mysql"`
	Redis  cache.RedisConfig `yaml:"redis"`
	Queue  QueueConfig       `yaml:"queue"`
	Judge  JudgeConfig       `yaml:"judge"`
}

// LoadConfig reads and validates the yaml config file.
func LoadConfig(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnvOverrides()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets secrets and endpoints come from the environment
// instead of the config file.
func (c *AppConfig) applyEnvOverrides() {
	if dsn := os.Getenv("GAVEL_MYSQL_DSN"); dsn != "" {
		c.MySQL.DSN = dsn
	}
	if addr := os.Getenv("GAVEL_REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if pass := os.Getenv("GAVEL_REDIS_PASSWORD"); pass != "" {
		c.Redis.Password = pass
	}
	if brokers := os.Getenv("GAVEL_KAFKA_BROKERS"); brokers != "" {
		c.Queue.Kafka.Brokers = strings.Split(brokers, ",")
	}
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:            ":8080",
			Mode:            "release",
			ShutdownTimeout: 15 * time.Second,
		},
		Queue: QueueConfig{
			Topic:           "judge.submissions",
			ConsumerGroup:   "judge-service",
			DeadLetterTopic: "judge.submissions.dead",
		},
		Judge: JudgeConfig{
			WorkRoot: "/var/lib/gavel/work",
		},
	}
}

func (c *AppConfig) validate() error {
	if c.MySQL.DSN == "" {
		return fmt.Errorf("mysql.dsn is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if len(c.Queue.Kafka.Brokers) == 0 {
		return fmt.Errorf("queue.kafka.brokers is required")
	}
	if c.Queue.Topic == "" {
		return fmt.Errorf("queue.topic is required")
	}
	if c.Judge.WorkRoot == "" {
		return fmt.Errorf("judge.work_root is required")
	}
	return nil
}
