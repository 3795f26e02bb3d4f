// Package app wires every component into a running gateway process,
// following the run-loop structure of the analytics-system preprocessor's
// internal/app package.
package app

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/eportal-gateway/gateway/internal/appconfig"
	"github.com/eportal-gateway/gateway/internal/commit"
	"github.com/eportal-gateway/gateway/internal/dispatcher"
	"github.com/eportal-gateway/gateway/internal/dlq"
	"github.com/eportal-gateway/gateway/internal/httpserver"
	"github.com/eportal-gateway/gateway/internal/kafka"
	"github.com/eportal-gateway/gateway/internal/logger"
	"github.com/eportal-gateway/gateway/internal/metrics"
	"github.com/eportal-gateway/gateway/internal/registry"
	"github.com/eportal-gateway/gateway/internal/router"
	"github.com/eportal-gateway/gateway/internal/safe"
	"github.com/eportal-gateway/gateway/internal/telemetry"
)

// Run wires up and runs the gateway service until ctx is cancelled.
func Run(ctx context.Context, cfg *appconfig.Config, log *logger.Logger) error {
	metrics.Register(nil)

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.Config{
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Insecure:       cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return fmt.Errorf("telemetry init: %w", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	reg := registry.New()

	kafkaVersion := cfg.Kafka.Version
	if kafkaVersion == "" {
		kafkaVersion = sarama.MaxVersion.String()
	}

	producer, err := kafka.NewProducer(ctx, kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		RequiredAcks: cfg.Kafka.Acks,
		Timeout:      cfg.Kafka.Timeout,
		Compression:  cfg.Kafka.Compression,
	}, log)
	if err != nil {
		return fmt.Errorf("kafka producer init: %w", err)
	}

	coord := commit.New(log)
	funnel := dlq.New(producer, coord, cfg, log)

	reqStage := dispatcher.NewStage(cfg, reg, producer, router.FlowRequest, coord, funnel, log)
	respStage := dispatcher.NewStage(cfg, reg, producer, router.FlowResponse, coord, funnel, log)
	disp := dispatcher.New(cfg, reqStage, respStage, log)

	channelID, _, ok := cfg.EnabledChannel()
	if !ok {
		return fmt.Errorf("no enabled channel in config")
	}

	requestConsumers, err := buildRequestConsumers(ctx, cfg, channelID, kafkaVersion, log)
	if err != nil {
		return err
	}
	responseGroupID, err := groupIDForTopics(cfg, channelID, cfg.Dispatcher.ResponseTopics)
	if err != nil {
		return err
	}
	responseConsumer, err := kafka.NewConsumer(ctx, kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: responseGroupID,
		Version: kafkaVersion,
	}, log)
	if err != nil {
		return fmt.Errorf("kafka response consumer init: %w", err)
	}

	httpSrv, err := httpserver.New(httpserver.Config{
		Addr:            fmt.Sprintf(":%d", cfg.HTTP.Port),
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		MetricsPath:     cfg.HTTP.MetricsPath,
		HealthzPath:     cfg.HTTP.HealthzPath,
		ReadyzPath:      cfg.HTTP.ReadyzPath,
	}, func() error { return producer.Ping(ctx) }, log)
	if err != nil {
		return fmt.Errorf("http server init: %w", err)
	}

	log.Info("gateway: components initialized, entering run-loop")

	// Top-level supervision uses internal/safe rather than a bare
	// errgroup: a panic escaping either the HTTP server or the dispatcher
	// run-loop (which itself recovers worker panics into its own context
	// cancellation, see internal/dispatcher) is logged and turned into a
	// coordinated shutdown instead of taking the whole process down
	// mid-stack-trace.
	sg := safe.New(ctx, log.Zap())
	sg.Go(func(ctx context.Context) error { return httpSrv.Start(ctx) })
	sg.Go(func(ctx context.Context) error {
		return disp.Run(ctx, requestConsumers, dispatcher.NamedConsumer{
			Consumer: responseConsumer,
			Topics:   cfg.Dispatcher.ResponseTopics,
			Label:    "response",
		})
	})
	sg.Wait()

	closeAll(log, producer, responseConsumer, requestConsumers)

	log.Info("gateway: shutdown complete")
	return sg.Context().Err()
}

// buildRequestConsumers builds one consumer per configured request topic,
// each on the consumer group id of the operation configured to own that
// topic (spec §6: "consumer group id per-operation from config"), per
// spec §12 supplement 1's collapse of the two near-duplicate request
// routes into one parameterized constructor invoked per topic.
func buildRequestConsumers(ctx context.Context, cfg *appconfig.Config, channelID, version string, log *logger.Logger) ([]dispatcher.NamedConsumer, error) {
	consumers := make([]dispatcher.NamedConsumer, 0, len(cfg.Dispatcher.RequestTopics))
	for _, topic := range cfg.Dispatcher.RequestTopics {
		groupID, ok := cfg.GroupIDForTopic(channelID, topic)
		if !ok {
			return nil, fmt.Errorf("no enabled operation in channel %q declares topic %q in inbound_topics", channelID, topic)
		}
		c, err := kafka.NewConsumer(ctx, kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			GroupID: groupID,
			Version: version,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("kafka request consumer for %q: %w", topic, err)
		}
		consumers = append(consumers, dispatcher.NamedConsumer{Consumer: c, Topics: []string{topic}, Label: topic})
	}
	return consumers, nil
}

// groupIDForTopics resolves the consumer group id shared by a set of
// topics consumed under a single sarama consumer group (the response
// consumer subscribes to every datacenter's response topic at once), by
// taking the operation-configured group id of the first topic that
// resolves.
func groupIDForTopics(cfg *appconfig.Config, channelID string, topics []string) (string, error) {
	for _, topic := range topics {
		if groupID, ok := cfg.GroupIDForTopic(channelID, topic); ok {
			return groupID, nil
		}
	}
	return "", fmt.Errorf("no enabled operation in channel %q declares any of %v in inbound_topics", channelID, topics)
}

func closeAll(log *logger.Logger, producer kafka.Producer, responseConsumer kafka.Consumer, requestConsumers []dispatcher.NamedConsumer) {
	if err := producer.Close(); err != nil {
		log.Error("kafka producer close", zap.Error(err))
	}
	if err := responseConsumer.Close(); err != nil {
		log.Error("kafka response consumer close", zap.Error(err))
	}
	for _, nc := range requestConsumers {
		if err := nc.Consumer.Close(); err != nil {
			log.Error("kafka request consumer close", zap.Error(err), zap.String("topic", nc.Label))
		}
	}
}
