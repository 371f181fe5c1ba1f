package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/israeldewcom/Real-wealth/pkg/logger"
)

// LogNotifier writes notifications to the log. It is the fallback when no
// push channel is configured.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.NewDefault("events")
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, target Target, name string, payload map[string]any) error {
	n.log.With(map[string]any{
		"event":   name,
		"user_id": target.UserID,
		"role":    target.Role,
	}).Infof("notify %v", payload)
	return nil
}

// LogMailer writes outgoing mail to the log.
type LogMailer struct {
	log *logger.Logger
}

func NewLogMailer(log *logger.Logger) *LogMailer {
	if log == nil {
		log = logger.NewDefault("events")
	}
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, recipient, templateID string, data map[string]any) error {
	m.log.With(map[string]any{
		"recipient": recipient,
		"template":  templateID,
	}).Infof("mail %v", data)
	return nil
}

// RedisNotifier publishes notifications on Redis pub/sub channels. Users
// listen on <prefix>:user:<id>, role groups on <prefix>:role:<role>.
type RedisNotifier struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// RedisConfig configures the Redis notifier.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	Prefix   string `yaml:"prefix" env:"REDIS_CHANNEL_PREFIX"`
}

// NewRedisClient dials Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func NewRedisNotifier(client redis.UniversalClient, prefix string) *RedisNotifier {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "ledger"
	}
	return &RedisNotifier{client: client, prefix: prefix, now: func() time.Time { return time.Now().UTC() }}
}

// Channel returns the pub/sub channel for target.
func (n *RedisNotifier) Channel(target Target) string {
	if target.UserID != "" {
		return n.prefix + ":user:" + target.UserID
	}
	role := target.Role
	if role == "" {
		role = RoleAdmin
	}
	return n.prefix + ":role:" + role
}

type redisMessage struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload,omitempty"`
	SentAt  time.Time      `json:"sent_at"`
}

func (n *RedisNotifier) Notify(ctx context.Context, target Target, name string, payload map[string]any) error {
	body, err := json.Marshal(redisMessage{Event: name, Payload: payload, SentAt: n.now()})
	if err != nil {
		return fmt.Errorf("encode %s notification: %w", name, err)
	}
	if err := n.client.Publish(ctx, n.Channel(target), body).Err(); err != nil {
		return fmt.Errorf("publish %s notification: %w", name, err)
	}
	return nil
}
