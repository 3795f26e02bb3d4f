package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/dnwe/otelsarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/eportal-gateway/gateway/internal/backoff"
	"github.com/eportal-gateway/gateway/internal/logger"
)

var producerMetrics = struct {
	ConnectAttempts prometheus.Counter
	ConnectErrors   prometheus.Counter
	PublishSuccess  *prometheus.CounterVec
	PublishErrors   *prometheus.CounterVec
	PublishLatency  *prometheus.HistogramVec
}{
	ConnectAttempts: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway", Subsystem: "kafka_producer", Name: "connect_attempts_total",
		Help: "Kafka producer connect attempts",
	}),
	ConnectErrors: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway", Subsystem: "kafka_producer", Name: "connect_errors_total",
		Help: "Kafka producer connect errors",
	}),
	PublishSuccess: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway", Subsystem: "kafka_producer", Name: "publish_success_total",
		Help: "Successful publishes, by topic",
	}, []string{"topic"}),
	PublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway", Subsystem: "kafka_producer", Name: "publish_errors_total",
		Help: "Publish errors, by topic",
	}, []string{"topic"}),
	PublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gateway", Subsystem: "kafka_producer", Name: "publish_latency_seconds",
		Help:    "Publish latency by topic",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"}),
}

var producerTracer = otel.Tracer("kafka-producer")

// ProducerConfig groups the tunables for the sync producer, matching
// spec §6's idempotent-producer requirement (acks=all, one in-flight
// request per connection).
type ProducerConfig struct {
	Brokers        []string
	RequiredAcks   string
	Timeout        time.Duration
	Compression    string
	FlushFrequency time.Duration
	FlushMessages  int
	Backoff        backoff.Config
}

func (c *ProducerConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RequiredAcks == "" {
		c.RequiredAcks = "all"
	}
	if c.Compression == "" {
		c.Compression = "none"
	}
}

func (c ProducerConfig) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka producer: brokers required")
	}
	return nil
}

func buildSaramaProducerConfig(c ProducerConfig) (*sarama.Config, error) {
	sc := sarama.NewConfig()

	switch strings.ToLower(c.RequiredAcks) {
	case "all":
		sc.Producer.RequiredAcks = sarama.WaitForAll
	case "leader":
		sc.Producer.RequiredAcks = sarama.WaitForLocal
	case "none":
		sc.Producer.RequiredAcks = sarama.NoResponse
	default:
		return nil, fmt.Errorf("kafka producer: invalid RequiredAcks %q", c.RequiredAcks)
	}

	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Timeout = c.Timeout
	// Idempotent producer with a single in-flight request per connection,
	// per spec §6's exactly-once-per-publish requirement on the wire.
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1

	if c.FlushFrequency > 0 {
		sc.Producer.Flush.Frequency = c.FlushFrequency
	}
	if c.FlushMessages > 0 {
		sc.Producer.Flush.Messages = c.FlushMessages
	}

	switch strings.ToLower(c.Compression) {
	case "none":
		sc.Producer.Compression = sarama.CompressionNone
	case "gzip":
		sc.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		sc.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		sc.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		sc.Producer.Compression = sarama.CompressionZSTD
	default:
		return nil, fmt.Errorf("kafka producer: invalid Compression %q", c.Compression)
	}

	return sc, nil
}

type syncProducer struct {
	prod       sarama.SyncProducer
	client     sarama.Client
	log        *logger.Logger
	backoffCfg backoff.Config
}

// NewProducer builds a Producer backed by an idempotent Sarama sync
// producer, connecting with the same backoff-retry pattern used
// throughout the ambient stack.
func NewProducer(ctx context.Context, cfg ProducerConfig, log *logger.Logger) (Producer, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log = log.Named("kafka-producer")

	sc, err := buildSaramaProducerConfig(cfg)
	if err != nil {
		return nil, err
	}

	client, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: new client: %w", err)
	}

	var raw sarama.SyncProducer
	connect := func(ctx context.Context) error {
		producerMetrics.ConnectAttempts.Inc()
		p, err := sarama.NewSyncProducerFromClient(client)
		if err != nil {
			producerMetrics.ConnectErrors.Inc()
			return err
		}
		raw = p
		return nil
	}

	ctxConn, span := producerTracer.Start(ctx, "Connect", trace.WithAttributes(attribute.StringSlice("brokers", cfg.Brokers)))
	if err := backoff.Execute(ctxConn, "kafka_producer_connect", cfg.Backoff, log, connect); err != nil {
		span.RecordError(err)
		span.End()
		_ = client.Close()
		return nil, fmt.Errorf("kafka producer: connect: %w", err)
	}
	span.End()

	wrapped := otelsarama.WrapSyncProducer(sc, raw)
	log.Info("kafka producer ready", zap.Strings("brokers", cfg.Brokers))
	return &syncProducer{prod: wrapped, client: client, log: log, backoffCfg: cfg.Backoff}, nil
}

// Produce publishes payload to topic with the given headers, retrying
// according to the producer's backoff configuration.
func (p *syncProducer) Produce(topic string, headers map[string]string, payload []byte) error {
	ctx, span := producerTracer.Start(context.Background(), "Publish", trace.WithAttributes(attribute.String("topic", topic)))
	start := time.Now()

	hdrs := make([]sarama.RecordHeader, 0, len(headers))
	for k, v := range headers {
		hdrs = append(hdrs, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	send := func(ctx context.Context) error {
		msg := &sarama.ProducerMessage{
			Topic:   topic,
			Value:   sarama.ByteEncoder(payload),
			Headers: hdrs,
		}
		_, _, err := p.prod.SendMessage(msg)
		return err
	}

	err := backoff.Execute(ctx, "kafka_producer_publish", p.backoffCfg, p.log, send)
	producerMetrics.PublishLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())

	if err != nil {
		producerMetrics.PublishErrors.WithLabelValues(topic).Inc()
		span.RecordError(err)
		span.End()
		return fmt.Errorf("kafka producer: publish to %q: %w", topic, err)
	}

	producerMetrics.PublishSuccess.WithLabelValues(topic).Inc()
	span.End()
	return nil
}

// Ping refreshes cluster metadata to verify broker reachability.
func (p *syncProducer) Ping(_ context.Context) error {
	return p.client.RefreshMetadata()
}

// Close shuts the producer and its underlying client down.
func (p *syncProducer) Close() error {
	if err := p.prod.Close(); err != nil {
		return err
	}
	return p.client.Close()
}
