package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/eportal-gateway/gateway/internal/backoff"
	"github.com/eportal-gateway/gateway/internal/logger"
)

var consumerMetrics = struct {
	ConnectAttempts prometheus.Counter
	ConnectErrors   prometheus.Counter
	ConsumeErrors   prometheus.Counter
}{
	ConnectAttempts: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway", Subsystem: "kafka_consumer", Name: "connect_attempts_total",
		Help: "Kafka consumer group connect attempts",
	}),
	ConnectErrors: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway", Subsystem: "kafka_consumer", Name: "connect_errors_total",
		Help: "Kafka consumer connect errors",
	}),
	ConsumeErrors: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway", Subsystem: "kafka_consumer", Name: "consume_errors_total",
		Help: "Errors during consumption sessions",
	}),
}

var consumerTracer = otel.Tracer("kafka-consumer")

// ConsumerConfig groups Sarama consumer-group tunables.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Version string
	Backoff backoff.Config
}

func (c ConsumerConfig) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka consumer: brokers required")
	}
	if c.GroupID == "" {
		return fmt.Errorf("kafka consumer: GroupID required")
	}
	if c.Version == "" {
		return fmt.Errorf("kafka consumer: Version required")
	}
	return nil
}

type consumerGroup struct {
	group      sarama.ConsumerGroup
	log        *logger.Logger
	backoffCfg backoff.Config
}

// NewConsumer connects a Sarama consumer group with the same
// backoff-retry pattern the producer uses.
func NewConsumer(ctx context.Context, cfg ConsumerConfig, log *logger.Logger) (Consumer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log = log.Named("kafka-consumer")

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: invalid Version %q: %w", cfg.Version, err)
	}
	sc := sarama.NewConfig()
	sc.Version = version
	sc.Consumer.Return.Errors = true

	var group sarama.ConsumerGroup
	connect := func(ctx context.Context) error {
		consumerMetrics.ConnectAttempts.Inc()
		g, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
		if err != nil {
			consumerMetrics.ConnectErrors.Inc()
			return err
		}
		group = g
		return nil
	}

	ctxConn, span := consumerTracer.Start(ctx, "Connect",
		trace.WithAttributes(attribute.StringSlice("brokers", cfg.Brokers), attribute.String("group", cfg.GroupID)))
	if err := backoff.Execute(ctxConn, "kafka_consumer_connect", cfg.Backoff, log, connect); err != nil {
		span.RecordError(err)
		span.End()
		return nil, fmt.Errorf("kafka consumer: connect failed: %w", err)
	}
	span.End()

	log.Info("kafka consumer group connected", zap.Strings("brokers", cfg.Brokers), zap.String("group", cfg.GroupID))
	return &consumerGroup{group: group, log: log, backoffCfg: cfg.Backoff}, nil
}

// Consume runs handler over every message on topics until ctx is
// cancelled. Unlike the ambient stack's original consumer, the handler
// receives a Commit closure per message instead of having the message
// auto-marked on handler success: marking happens later, once the
// pipeline's commit coordinator decides the message's outcome is final.
func (kc *consumerGroup) Consume(ctx context.Context, topics []string, handler func(msg *Message) error) error {
	h := &groupHandler{handler: handler, log: kc.log}
	for {
		ctxSess, span := consumerTracer.Start(ctx, "ConsumeSession", trace.WithAttributes(attribute.StringSlice("topics", topics)))
		err := kc.group.Consume(ctxSess, topics, h)
		span.End()

		if err != nil {
			consumerMetrics.ConsumeErrors.Inc()
			kc.log.Error("consume session error", zap.Error(err))

			pause := func(ctx context.Context) error {
				select {
				case <-time.After(100 * time.Millisecond):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if berr := backoff.Execute(ctx, "kafka_consumer_session_pause", kc.backoffCfg, kc.log, pause); berr != nil {
				return fmt.Errorf("kafka consumer: pause between sessions failed: %w", berr)
			}
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Close closes the consumer group.
func (kc *consumerGroup) Close() error { return kc.group.Close() }

type groupHandler struct {
	handler func(msg *Message) error
	log     *logger.Logger
}

func (h *groupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for m := range claim.Messages() {
		ctxMsg := sess.Context()
		_, span := consumerTracer.Start(ctxMsg, "HandleMessage",
			trace.WithAttributes(attribute.String("topic", m.Topic), attribute.Int64("offset", m.Offset)))

		headers := make(map[string]string, len(m.Headers))
		for _, hdr := range m.Headers {
			if hdr != nil && hdr.Key != nil {
				headers[string(hdr.Key)] = string(hdr.Value)
			}
		}

		sessRef, msgRef := sess, m
		var markOnce sync.Once
		msg := &Message{
			Topic:     m.Topic,
			Partition: m.Partition,
			Offset:    m.Offset,
			Value:     m.Value,
			Headers:   headers,
			// markOnce guards against a ProcessingTimeout DLQ path and the
			// original in-flight pipeline pass both firing the same commit
			// handle after a worker timeout races with late completion.
			Commit: func() { markOnce.Do(func() { sessRef.MarkMessage(msgRef, "") }) },
		}

		if err := h.handler(msg); err != nil {
			span.RecordError(err)
			h.log.WithContext(ctxMsg).Error("dispatcher rejected message", zap.Error(err))
		}
		span.End()
	}
	return nil
}
