// Package dlq implements the gateway's DLQ Funnel (spec §4.I): the single
// place that catches the enumerated pipeline failure kinds, tags the
// original payload with diagnostic headers, and republishes it to the
// channel's dead-letter topic.
package dlq

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/eportal-gateway/gateway/internal/appconfig"
	"github.com/eportal-gateway/gateway/internal/commit"
	"github.com/eportal-gateway/gateway/internal/envelope"
	"github.com/eportal-gateway/gateway/internal/logger"
	"github.com/eportal-gateway/gateway/internal/metrics"
	"github.com/eportal-gateway/gateway/internal/pipeline"
	"github.com/eportal-gateway/gateway/internal/router"
)

// Producer is the narrow producing capability the funnel needs; satisfied
// by internal/kafka's sync producer wrapper.
type Producer interface {
	Produce(topic string, headers map[string]string, payload []byte) error
}

// Funnel catches DLQ-eligible pipeline errors and republishes envelopes.
type Funnel struct {
	producer Producer
	coord    *commit.Coordinator
	cfg      *appconfig.Config
	log      *logger.Logger
}

// New builds a Funnel.
func New(producer Producer, coord *commit.Coordinator, cfg *appconfig.Config, log *logger.Logger) *Funnel {
	return &Funnel{producer: producer, coord: coord, cfg: cfg, log: log.Named("dlq")}
}

// Handle absorbs pipelineErr on env's behalf. If pipelineErr does not
// carry a recognized Kind, or carries one outside spec §7's DLQ-eligible
// set, it is a programming error: Handle re-panics it so the owning
// worker pool's supervisor can log it and tear the pool down (spec §9's
// Open Question resolution), rather than silently absorbing an unknown
// failure as "just another bad message."
func (f *Funnel) Handle(env *envelope.Envelope, pipelineErr error, exceptionClass string) {
	kind, ok := pipeline.KindOf(pipelineErr)
	if !ok || !pipeline.IsDLQEligible(kind) {
		panic(fmt.Errorf("dlq: non-eligible error escaped the pipeline: %w", pipelineErr))
	}

	metrics.EnvelopesDLQd.WithLabelValues(string(kind)).Inc()

	topic, ok := router.DLQTopic(f.cfg, env.ChannelID, env.Datacenter)
	if !ok {
		f.log.Error("dlq: no dead-letter topic configured, cannot route failure",
			zap.String("channelId", env.ChannelID),
			zap.String("datacenter", env.Datacenter),
			zap.String("kind", string(kind)),
		)
		f.coord.Fail(env, pipelineErr)
		return
	}

	headers := make(map[string]string, len(env.Headers)+4)
	for k, v := range env.Headers {
		headers[k] = v
	}
	headers[envelope.HeaderDLQSourceTopic] = env.SourceTopic
	headers[envelope.HeaderDLQErrorKind] = string(kind)
	headers[envelope.HeaderDLQErrorMessage] = pipelineErr.Error()
	headers[envelope.HeaderDLQExceptionClass] = exceptionClass

	if err := f.producer.Produce(topic, headers, env.PayloadBytes); err != nil {
		f.log.Error("dlq: produce to dead-letter topic failed, offset will not advance",
			zap.String("topic", topic), zap.Error(err))
		f.coord.Fail(env, pipeline.New(pipeline.KindDlqProduceError, err))
		return
	}

	env.State = envelope.DlqProduced
	f.coord.Commit(env)
}
