// Package dispatcher implements the gateway's Dispatcher (spec §4.J):
// per-topic consumers feeding a bounded queue drained by a fixed worker
// pool, each worker running one full pipeline pass per envelope.
package dispatcher

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/eportal-gateway/gateway/internal/appconfig"
	"github.com/eportal-gateway/gateway/internal/codec"
	"github.com/eportal-gateway/gateway/internal/commit"
	"github.com/eportal-gateway/gateway/internal/dlq"
	"github.com/eportal-gateway/gateway/internal/envelope"
	"github.com/eportal-gateway/gateway/internal/headergate"
	"github.com/eportal-gateway/gateway/internal/kafka"
	"github.com/eportal-gateway/gateway/internal/logger"
	"github.com/eportal-gateway/gateway/internal/metrics"
	"github.com/eportal-gateway/gateway/internal/pipeline"
	"github.com/eportal-gateway/gateway/internal/registry"
	"github.com/eportal-gateway/gateway/internal/resolver"
	"github.com/eportal-gateway/gateway/internal/router"
	"github.com/eportal-gateway/gateway/internal/transform"
)

// Stage wires the full per-envelope pipeline for one flow direction
// (request or response), per spec §4's data-flow diagram.
type Stage struct {
	reg       *registry.Registry
	resolver  *resolver.Resolver
	transform *transform.Stage
	router    *router.Router
	producer  kafka.Producer
	flow      router.Flow
	coord     *commit.Coordinator
	funnel    *dlq.Funnel
	log       *logger.Logger
}

// NewStage builds a Stage for one flow direction.
func NewStage(cfg *appconfig.Config, reg *registry.Registry, producer kafka.Producer, flow router.Flow, coord *commit.Coordinator, funnel *dlq.Funnel, log *logger.Logger) *Stage {
	return &Stage{
		reg:       reg,
		resolver:  resolver.New(cfg),
		transform: transform.New(reg),
		router:    router.New(),
		producer:  producer,
		flow:      flow,
		coord:     coord,
		funnel:    funnel,
		log:       log.Named("pipeline"),
	}
}

// Process runs the pipeline against env, routing any DLQ-eligible failure
// to the funnel and committing on either successful produce or successful
// DLQ produce (spec §4's data-flow diagram).
func (s *Stage) Process(env *envelope.Envelope) {
	if err := s.run(env); err != nil {
		s.log.Warn("pipeline: routing envelope to dead-letter queue",
			zap.String("topic", env.SourceTopic),
			zap.Int64("offset", env.Offset),
			zap.Error(err),
		)
		s.funnel.Handle(env, err, exceptionClass(err))
		return
	}
	metrics.EnvelopesProcessed.WithLabelValues(flowLabel(s.flow), env.OperationName).Inc()
	s.coord.Commit(env)
}

func (s *Stage) run(env *envelope.Envelope) error {
	if err := s.resolver.Resolve(env); err != nil {
		return err
	}
	op, ok := s.resolver.Operation(env)
	if !ok {
		return pipeline.New(pipeline.KindUnknownOperation, fmt.Errorf("pipeline: resolved operation %q vanished from config", env.OperationName))
	}

	if err := headergate.Check(env, op); err != nil {
		return err
	}

	inSchema, err := s.reg.LoadSchema(op.BinarySchema)
	if err != nil {
		return err
	}

	payloadJSON, err := codec.Decode(env.PayloadBytes, inSchema)
	if err != nil {
		return err
	}
	env.PayloadJSON = payloadJSON
	env.State = envelope.Decoded

	if err := s.transform.Apply(env, op.JSONSchema, op.TransformExpr); err != nil {
		return err
	}

	// The transform renames/reshapes fields onto the receiver's own record
	// layout (e.g. customerId/accountId/channel -> idCustomer/idAccount/
	// channelCode), so re-encoding must use the receiver-side schema, not
	// the one the inbound payload was decoded with.
	outSchema, err := s.reg.LoadSchema(op.OutboundBinarySchema)
	if err != nil {
		return err
	}

	outBytes, err := codec.Encode(env.TransformedJSON, outSchema)
	if err != nil {
		return err
	}
	env.OutboundBytes = outBytes
	env.State = envelope.Encoded

	if err := s.router.Route(env, op, s.flow); err != nil {
		return err
	}

	if err := s.producer.Produce(env.DestinationTopic, env.Headers, env.OutboundBytes); err != nil {
		return pipeline.New(pipeline.KindProduceError, err)
	}
	env.State = envelope.Produced
	return nil
}

func flowLabel(f router.Flow) string {
	if f == router.FlowResponse {
		return "response"
	}
	return "request"
}

// exceptionClass renders the wrapped cause's dynamic type, mirroring the
// original Java exception-handling block's exceptionClass DLQ header.
func exceptionClass(err error) string {
	var pe *pipeline.Error
	if errors.As(err, &pe) && pe.Err != nil {
		return fmt.Sprintf("%T", pe.Err)
	}
	return fmt.Sprintf("%T", err)
}
