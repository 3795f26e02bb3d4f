// Package router implements the gateway's Output Router (spec §4.G):
// selects the destination topic (JRD/QRO) for a resolved operation and
// datacenter, and re-sets the outbound messageSchema header.
package router

import (
	"fmt"

	"github.com/eportal-gateway/gateway/internal/appconfig"
	"github.com/eportal-gateway/gateway/internal/envelope"
	"github.com/eportal-gateway/gateway/internal/pipeline"
)

// Flow selects which of an operation's topic lists to route through.
type Flow int

const (
	// FlowRequest routes to the operation's EPortal target topics.
	FlowRequest Flow = iota
	// FlowResponse routes to the operation's orchestrator response topics.
	FlowResponse
)

// Router computes destination topics from resolved operation config.
type Router struct{}

// New builds a Router.
func New() *Router { return &Router{} }

// Route selects env.DestinationTopic from op's topic list for flow and
// env.Datacenter, substituting {datacenter} for dynamic topics, and sets
// the outbound messageSchema header from op.MessageSchema (spec §4.G).
func (rt *Router) Route(env *envelope.Envelope, op appconfig.Operation, flow Flow) error {
	var topics appconfig.Topics
	switch flow {
	case FlowRequest:
		topics = op.EPortalTopics
	case FlowResponse:
		topics = op.OrchestratorTopics
	}

	topic, ok := topics.Resolve(env.Datacenter)
	if !ok {
		return pipeline.New(pipeline.KindProduceError, fmt.Errorf("router: no destination topic for operation %q datacenter %q", op.Name, env.Datacenter))
	}

	outboundSchema := op.MessageSchema
	if outboundSchema == "" {
		outboundSchema = op.Name
	}

	env.DestinationTopic = topic
	env.OutboundSchema = outboundSchema
	if env.Headers == nil {
		env.Headers = make(map[string]string, 1)
	}
	env.Headers[envelope.HeaderMessageSchema] = outboundSchema
	return nil
}

// DLQTopic resolves the DLQ destination for a channel and datacenter.
func DLQTopic(cfg *appconfig.Config, channelID, datacenter string) (string, bool) {
	return cfg.DLQTopic(channelID, datacenter)
}
