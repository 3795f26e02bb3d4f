// Package commit implements the gateway's Commit Coordinator (spec §4.H):
// the single place that invokes an envelope's commit handle, exactly
// once, after either a successful downstream produce or a successful DLQ
// produce.
package commit

import (
	"go.uber.org/zap"

	"github.com/eportal-gateway/gateway/internal/envelope"
	"github.com/eportal-gateway/gateway/internal/logger"
	"github.com/eportal-gateway/gateway/internal/metrics"
)

// Coordinator invokes commit handles and records the outcome.
type Coordinator struct {
	log *logger.Logger
}

// New builds a Coordinator.
func New(log *logger.Logger) *Coordinator {
	return &Coordinator{log: log.Named("commit")}
}

// Commit invokes env.Commit exactly once. A nil handle is logged at
// warn-level and skipped, never treated as an error: it means the
// envelope did not originate from a real consumer partition (e.g. a
// unit test), so there is no offset to advance (spec §4.H).
func (c *Coordinator) Commit(env *envelope.Envelope) {
	if env.Commit == nil {
		metrics.CommitInvocations.WithLabelValues("skipped_nil_handle").Inc()
		c.log.Warn("commit: no handle on envelope, skipping",
			zap.String("topic", env.SourceTopic),
			zap.Int32("partition", env.Partition),
			zap.Int64("offset", env.Offset),
		)
		return
	}

	env.Commit()
	env.State = envelope.Committed
	metrics.CommitInvocations.WithLabelValues("committed").Inc()
	c.log.Debug("commit: offset advanced",
		zap.String("topic", env.SourceTopic),
		zap.Int32("partition", env.Partition),
		zap.Int64("offset", env.Offset),
	)
}

// Fail marks the envelope CommitFailed without invoking the handle. It is
// used when a downstream commit-adjacent step (e.g. the DLQ produce
// itself) fails: spec §7 forbids advancing the offset in that case, so
// the message will be redelivered on the next rebalance.
func (c *Coordinator) Fail(env *envelope.Envelope, cause error) {
	env.State = envelope.CommitFailed
	metrics.CommitInvocations.WithLabelValues("failed").Inc()
	c.log.Error("commit: not advancing offset after failed produce",
		zap.String("topic", env.SourceTopic),
		zap.Int32("partition", env.Partition),
		zap.Int64("offset", env.Offset),
		zap.Error(cause),
	)
}
