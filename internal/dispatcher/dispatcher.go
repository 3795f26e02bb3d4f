package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eportal-gateway/gateway/internal/appconfig"
	"github.com/eportal-gateway/gateway/internal/envelope"
	"github.com/eportal-gateway/gateway/internal/kafka"
	"github.com/eportal-gateway/gateway/internal/logger"
	"github.com/eportal-gateway/gateway/internal/metrics"
	"github.com/eportal-gateway/gateway/internal/pipeline"
)

// NamedConsumer binds a live consumer to the topic list it should
// subscribe to, matching spec §12 supplement 1's collapse of two
// near-duplicate request consumers into one parameterized constructor
// invoked per topic set, and supplement 2's single response consumer
// subscribing to both datacenter response topics.
type NamedConsumer struct {
	Consumer kafka.Consumer
	Topics   []string
	Label    string
}

// Dispatcher owns the bounded queues and worker pools for the request and
// response pipelines (spec §5).
type Dispatcher struct {
	cfg       *appconfig.Config
	log       *logger.Logger
	reqStage  *Stage
	respStage *Stage
	reqQueue  chan *envelope.Envelope
	respQueue chan *envelope.Envelope
}

// New builds a Dispatcher backed by reqStage/respStage.
func New(cfg *appconfig.Config, reqStage, respStage *Stage, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		log:       log.Named("dispatcher"),
		reqStage:  reqStage,
		respStage: respStage,
		reqQueue:  make(chan *envelope.Envelope, cfg.Dispatcher.QueueCapacity),
		respQueue: make(chan *envelope.Envelope, cfg.Dispatcher.QueueCapacity),
	}
}

// Run starts every consumer and both worker pools, blocking until ctx is
// cancelled or any component returns a fatal error. A worker panic (an
// error escaping the pipeline with no recognized DLQ-eligible Kind, see
// internal/pipeline and internal/dlq) is recovered, logged, and cancels
// the whole run so the process can exit for orchestrator-level restart,
// rather than crashing mid-stack-trace (spec §9's Open Question
// resolution, mirroring internal/safe.Group's recover-log-cancel idiom).
func (d *Dispatcher) Run(ctx context.Context, requestConsumers []NamedConsumer, responseConsumer NamedConsumer) error {
	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	for _, nc := range requestConsumers {
		nc := nc
		g.Go(func() error { return d.consumeInto(runCtx, nc, d.reqQueue) })
	}
	g.Go(func() error { return d.consumeInto(runCtx, responseConsumer, d.respQueue) })

	g.Go(func() error { d.runWorkers(runCtx, "request", d.reqQueue, d.reqStage, cancel); return nil })
	g.Go(func() error { d.runWorkers(runCtx, "response", d.respQueue, d.respStage, cancel); return nil })

	return g.Wait()
}

// consumeInto reads nc's topics, drops any message that fails the
// messageSchema filter (spec §2, testable property 6), and otherwise
// enqueues an Envelope, blocking when the destination queue is full.
func (d *Dispatcher) consumeInto(ctx context.Context, nc NamedConsumer, queue chan *envelope.Envelope) error {
	return nc.Consumer.Consume(ctx, nc.Topics, func(msg *kafka.Message) error {
		schema := strings.TrimSpace(msg.Headers[envelope.HeaderMessageSchema])
		if schema == "" {
			metrics.EnvelopesFiltered.Inc()
			d.log.Debug("dispatcher: dropping message with no messageSchema header",
				zap.String("topic", msg.Topic), zap.String("consumer", nc.Label))
			if msg.Commit != nil {
				msg.Commit()
			}
			return nil
		}

		env := envelope.New(msg.Topic, msg.Partition, msg.Offset, msg.Value, msg.Headers, schema, msg.Commit)

		select {
		case queue <- env:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// runWorkers drains queue with a bounded pool of cfg.Dispatcher.Workers
// goroutines, each envelope getting cfg.Dispatcher.ProcessTimeout before
// it is treated as a ProcessingTimeout failure (spec §5). cancel is
// invoked if a pipeline pass panics, tearing the whole dispatcher run
// down for orchestrator-level restart instead of leaving a wedged
// worker slot or an uncontrolled process crash.
func (d *Dispatcher) runWorkers(ctx context.Context, label string, queue chan *envelope.Envelope, stage *Stage, cancel context.CancelFunc) {
	p := pool.New().WithMaxGoroutines(d.cfg.Dispatcher.Workers)
	defer p.Wait()

	for {
		metrics.QueueDepth.WithLabelValues(label).Set(float64(len(queue)))
		select {
		case env, ok := <-queue:
			if !ok {
				return
			}
			p.Go(func() { processWithTimeout(stage, env, d.cfg.Dispatcher.ProcessTimeout, cancel) })
		case <-ctx.Done():
			return
		}
	}
}

// processWithTimeout bounds a single pipeline pass to timeout. If it
// fires, the in-flight pass is left to finish in the background (its
// commit handle is idempotent, see internal/kafka) and the envelope is
// independently routed to the DLQ as ProcessingTimeout.
//
// stage.Process runs in its own goroutine rather than the pool-managed
// one so the timeout race can be expressed with a select; conc/pool's
// panic recovery only covers goroutines it directly manages, so a panic
// here (e.g. dlq.Funnel.Handle panicking on a non-DLQ-eligible error
// Kind) is recovered explicitly, logged, and used to cancel the whole
// dispatcher run rather than crashing the process uncontrolled.
func processWithTimeout(stage *Stage, env *envelope.Envelope, timeout time.Duration, cancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				stage.log.Error("dispatcher: worker panic, cancelling run",
					zap.Any("panic", r), zap.String("operation", env.OperationName))
				cancel()
			}
		}()
		stage.Process(env)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		stage.funnel.Handle(env, pipeline.New(pipeline.KindProcessingTimeout, fmt.Errorf("processing exceeded %s", timeout)), "ProcessingTimeout")
	}
}
