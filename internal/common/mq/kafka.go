package mq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"gavel/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	headerID         = "x-message-id"
	headerTimestamp  = "x-message-ts"
	headerRetryCount = "x-message-retry"
	headerMaxRetries = "x-message-max-retries"
)

// KafkaConfig defines configuration for the Kafka implementation.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	ClientID string   `yaml:"client_id"`

	// Producer settings
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`

	// Consumer settings
	MinBytes int           `yaml:"min_bytes"`
	MaxBytes int           `yaml:"max_bytes"`
	MaxWait  time.Duration `yaml:"max_wait"`

	// Dialer settings
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// KafkaQueue implements MessageQueue using Kafka.
type KafkaQueue struct {
	config KafkaConfig
	writer *kafka.Writer
	dialer *kafka.Dialer

	mu            sync.Mutex
	subscriptions []*kafkaSubscription
	started       bool
	closed        bool
}

type kafkaSubscription struct {
	topic   string
	handler HandlerFunc
	opts    SubscribeOptions
	baseCtx context.Context

	reader *kafka.Reader
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewKafkaQueue creates a Kafka-backed message queue.
func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("brokers are required")
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.MinBytes == 0 {
		cfg.MinBytes = 1 << 10
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = time.Second
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	dialer := &kafka.Dialer{
		ClientID:  cfg.ClientID,
		Timeout:   cfg.DialTimeout,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Transport: &kafka.Transport{
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, address)
			},
			ClientID: cfg.ClientID,
		},
	}

	return &KafkaQueue{
		config: cfg,
		writer: writer,
		dialer: dialer,
	}, nil
}

// Publish publishes a message to a topic.
func (k *KafkaQueue) Publish(ctx context.Context, topic string, message *Message) error {
	if message == nil {
		return errors.New("message is nil")
	}
	if topic == "" {
		return errors.New("topic is required")
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(message.ID),
		Value:   message.Body,
		Headers: encodeHeaders(message),
	})
}

// Subscribe registers a handler for a topic. Reading starts on Start.
func (k *KafkaQueue) Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	options := SubscribeOptions{}
	if opts != nil {
		options = *opts
	}
	options.SetDefaults()

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errors.New("queue is closed")
	}
	if k.started {
		return errors.New("cannot subscribe after start")
	}
	k.subscriptions = append(k.subscriptions, &kafkaSubscription{
		topic:   topic,
		handler: handler,
		opts:    options,
		baseCtx: ctx,
	})
	return nil
}

// Start launches consumer goroutines for all registered subscriptions.
func (k *KafkaQueue) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errors.New("queue is closed")
	}
	if k.started {
		return errors.New("queue already started")
	}
	for _, sub := range k.subscriptions {
		sub.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  k.config.Brokers,
			GroupID:  sub.opts.ConsumerGroup,
			Topic:    sub.topic,
			MinBytes: k.config.MinBytes,
			MaxBytes: k.config.MaxBytes,
			MaxWait:  k.config.MaxWait,
			Dialer:   k.dialer,
		})
		baseCtx := sub.baseCtx
		if baseCtx == nil {
			baseCtx = context.Background()
		}
		sub.ctx, sub.cancel = context.WithCancel(baseCtx)
		for i := 0; i < sub.opts.Concurrency; i++ {
			sub.wg.Add(1)
			go k.consumeLoop(sub)
		}
	}
	k.started = true
	return nil
}

func (k *KafkaQueue) consumeLoop(sub *kafkaSubscription) {
	defer sub.wg.Done()
	for {
		kmsg, err := sub.reader.FetchMessage(sub.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			logger.Warn(sub.ctx, "fetch message failed",
				zap.String("topic", sub.topic), zap.Error(err))
			select {
			case <-sub.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		message := decodeMessage(&kmsg)
		k.handleMessage(sub, message)

		if err := sub.reader.CommitMessages(sub.ctx, kmsg); err != nil {
			logger.Warn(sub.ctx, "commit message failed",
				zap.String("topic", sub.topic), zap.Error(err))
		}
	}
}

func (k *KafkaQueue) handleMessage(sub *kafkaSubscription, message *Message) {
	maxRetries := sub.opts.MaxRetries
	if message.MaxRetries > 0 {
		maxRetries = message.MaxRetries
	}
	for attempt := 0; ; attempt++ {
		err := sub.handler(sub.ctx, message)
		if err == nil {
			return
		}
		if sub.ctx.Err() != nil {
			return
		}
		if attempt >= maxRetries {
			logger.Error(sub.ctx, "message handling exhausted retries",
				zap.String("topic", sub.topic),
				zap.String("message_id", message.ID),
				zap.Int("attempts", attempt+1),
				zap.Error(err))
			k.deadLetter(sub, message)
			return
		}
		logger.Warn(sub.ctx, "message handling failed, retrying",
			zap.String("topic", sub.topic),
			zap.String("message_id", message.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		message.RetryCount = attempt + 1
		select {
		case <-sub.ctx.Done():
			return
		case <-time.After(sub.opts.RetryDelay):
		}
	}
}

func (k *KafkaQueue) deadLetter(sub *kafkaSubscription, message *Message) {
	if sub.opts.DeadLetterTopic == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := k.Publish(ctx, sub.opts.DeadLetterTopic, message); err != nil {
		logger.Error(ctx, "dead letter publish failed",
			zap.String("topic", sub.opts.DeadLetterTopic),
			zap.String("message_id", message.ID),
			zap.Error(err))
	}
}

// Stop gracefully stops all consumers.
func (k *KafkaQueue) Stop() error {
	k.mu.Lock()
	subs := k.subscriptions
	k.started = false
	k.mu.Unlock()

	for _, sub := range subs {
		if sub.cancel != nil {
			sub.cancel()
		}
	}
	for _, sub := range subs {
		sub.wg.Wait()
		if sub.reader != nil {
			_ = sub.reader.Close()
		}
	}
	return nil
}

// Ping verifies at least one broker is reachable.
func (k *KafkaQueue) Ping(ctx context.Context) error {
	conn, err := k.dialer.DialContext(ctx, "tcp", k.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	return conn.Close()
}

// Close stops consumers and closes the producer.
func (k *KafkaQueue) Close() error {
	if err := k.Stop(); err != nil {
		return err
	}
	k.mu.Lock()
	k.closed = true
	k.mu.Unlock()
	return k.writer.Close()
}

func encodeHeaders(message *Message) []kafka.Header {
	headers := make([]kafka.Header, 0, len(message.Headers)+4)
	headers = append(headers,
		kafka.Header{Key: headerID, Value: []byte(message.ID)},
		kafka.Header{Key: headerTimestamp, Value: []byte(strconv.FormatInt(message.Timestamp.UnixMilli(), 10))},
		kafka.Header{Key: headerRetryCount, Value: []byte(strconv.Itoa(message.RetryCount))},
		kafka.Header{Key: headerMaxRetries, Value: []byte(strconv.Itoa(message.MaxRetries))},
	)
	for key, value := range message.Headers {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	return headers
}

func decodeMessage(kmsg *kafka.Message) *Message {
	message := &Message{
		ID:        string(kmsg.Key),
		Body:      kmsg.Value,
		Headers:   make(map[string]string),
		Timestamp: kmsg.Time,
	}
	for _, header := range kmsg.Headers {
		value := string(header.Value)
		switch header.Key {
		case headerID:
			if value != "" {
				message.ID = value
			}
		case headerTimestamp:
			if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
				message.Timestamp = time.UnixMilli(ms)
			}
		case headerRetryCount:
			message.RetryCount, _ = strconv.Atoi(value)
		case headerMaxRetries:
			message.MaxRetries, _ = strconv.Atoi(value)
		default:
			message.Headers[header.Key] = value
		}
	}
	return message
}
