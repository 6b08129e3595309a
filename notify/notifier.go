package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Message is one notification emitted by an output node.
type Message struct {
	Channel    string    `json:"channel"`
	Text       string    `json:"text"`
	RunID      string    `json:"run_id"`
	WorkflowID string    `json:"workflow_id"`
	ProjectID  string    `json:"project_id,omitempty"`
	NodeID     string    `json:"node_id"`
	Data       any       `json:"data,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Notifier delivers messages to an external channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Notify(ctx context.Context, msg Message) error { return f(ctx, msg) }

// LogNotifier writes messages to the log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.With(zap.String("component", "notifier"))}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info("notification",
		zap.String("channel", msg.Channel),
		zap.String("run_id", msg.RunID),
		zap.String("workflow_id", msg.WorkflowID),
		zap.String("node_id", msg.NodeID),
		zap.String("text", msg.Text),
	)
	return nil
}

// DefaultChannelPrefix namespaces published channels.
const DefaultChannelPrefix = "flowagent:notify:"

// RedisNotifier publishes messages as JSON.
type RedisNotifier struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewRedisNotifier creates a notifier publishing on prefix+channel.
func NewRedisNotifier(client redis.UniversalClient, prefix string, logger *zap.Logger) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisNotifier{
		client: client,
		prefix: prefix,
		logger: logger.With(zap.String("component", "redis_notifier")),
	}
}

// ChannelName returns the Redis channel a logical channel maps to.
func (n *RedisNotifier) ChannelName(channel string) string {
	return n.prefix + strings.TrimPrefix(channel, "#")
}

func (n *RedisNotifier) Notify(ctx context.Context, msg Message) error {
	if msg.Channel == "" {
		return fmt.Errorf("notification channel is required")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	receivers, err := n.client.Publish(ctx, n.ChannelName(msg.Channel), payload).Result()
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	n.logger.Debug("notification published",
		zap.String("channel", n.ChannelName(msg.Channel)),
		zap.Int64("receivers", receivers),
	)
	return nil
}
