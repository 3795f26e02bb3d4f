// Package kafka wraps IBM Sarama's consumer-group and sync-producer APIs
// with the connect-retry, tracing and metrics conventions of the ambient
// stack, restructured so that offset commits are deferred to the
// pipeline's Commit Coordinator instead of happening automatically inside
// the consume loop.
package kafka

import (
	"context"

	"github.com/eportal-gateway/gateway/internal/envelope"
)

// Message is a single Kafka record handed to the dispatcher. Commit is a
// closure over the owning sarama.ConsumerGroupSession and the original
// *sarama.ConsumerMessage; invoking it marks the message and advances the
// consumer offset. It is deliberately not invoked by the consumer itself
// (spec §4.H): for envelopes, only the commit coordinator calls it, after
// a successful downstream or DLQ produce. The one other caller is the
// dispatcher, which commits a message it drops at its messageSchema
// filter without building an envelope.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Value     []byte
	Headers   map[string]string
	Commit    envelope.CommitHandle
}

// Producer publishes a message with headers to a topic.
type Producer interface {
	Produce(topic string, headers map[string]string, payload []byte) error
	// Ping refreshes cluster metadata, used as the HTTP readiness check.
	Ping(ctx context.Context) error
	Close() error
}

// Consumer reads one or more topics under a shared consumer group,
// handing each record to handler. Consume blocks until ctx is cancelled
// or a non-recoverable session error occurs.
type Consumer interface {
	Consume(ctx context.Context, topics []string, handler func(msg *Message) error) error
	Close() error
}
