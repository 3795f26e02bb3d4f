// Package resolver implements the gateway's Operation Resolver
// (spec §4.D): maps an incoming message (topic + messageSchema header)
// to a channel+operation configuration.
package resolver

import (
	"fmt"

	"github.com/eportal-gateway/gateway/internal/appconfig"
	"github.com/eportal-gateway/gateway/internal/envelope"
	"github.com/eportal-gateway/gateway/internal/pipeline"
)

// Resolver resolves envelopes against a loaded configuration tree.
type Resolver struct {
	cfg *appconfig.Config
}

// New builds a Resolver bound to cfg.
func New(cfg *appconfig.Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve implements spec §4.D's five-step algorithm, mutating env in
// place and advancing its state to Resolved on success.
func (r *Resolver) Resolve(env *envelope.Envelope) error {
	channelID, channel, ok := r.cfg.EnabledChannel()
	if !ok {
		return pipeline.New(pipeline.KindUnknownOperation, fmt.Errorf("resolver: no enabled channel configured"))
	}

	schemaHeader, ok := env.Headers[envelope.HeaderMessageSchema]
	if !ok || schemaHeader == "" {
		return pipeline.New(pipeline.KindMissingMessageSchema, fmt.Errorf("resolver: header %q is required", envelope.HeaderMessageSchema))
	}

	op, ok := r.cfg.Operation(channelID, schemaHeader)
	if !ok {
		return pipeline.New(pipeline.KindUnknownOperation, fmt.Errorf("resolver: no enabled operation matches %q", schemaHeader))
	}

	datacenter, _ := r.cfg.Datacenter(channelID, env.SourceTopic)

	env.ChannelID = channelID
	env.OperationName = op.Name
	env.Datacenter = datacenter
	env.State = envelope.Resolved
	_ = channel
	return nil
}

// Operation re-looks-up the resolved operation's full configuration, for
// use by later stages (header gate, transform, router).
func (r *Resolver) Operation(env *envelope.Envelope) (appconfig.Operation, bool) {
	return r.cfg.Operation(env.ChannelID, env.OperationName)
}
