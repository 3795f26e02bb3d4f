// Package headergate implements the gateway's Header Gate (spec §4.E):
// validates presence/shape of mandatory inbound headers and rejects
// malformed envelopes early, before any decode work is attempted.
package headergate

import (
	"fmt"
	"strings"

	"github.com/eportal-gateway/gateway/internal/appconfig"
	"github.com/eportal-gateway/gateway/internal/envelope"
	"github.com/eportal-gateway/gateway/internal/pipeline"
)

// mandatoryHeaders lists the headers required on every inbound envelope,
// regardless of operation (spec §6).
var mandatoryHeaders = []string{envelope.HeaderMessageSchema, envelope.HeaderChannelID}

// Check enforces the mandatory headers plus any additional headers the
// resolved operation declares as required. It performs no header
// mutation (spec §4.E).
func Check(env *envelope.Envelope, op appconfig.Operation) error {
	for _, h := range mandatoryHeaders {
		if err := requireHeader(env, h); err != nil {
			return err
		}
	}
	for _, h := range op.RequiredHeaders {
		if err := requireHeader(env, h); err != nil {
			return err
		}
	}
	env.State = envelope.Filtered
	return nil
}

func requireHeader(env *envelope.Envelope, name string) error {
	v, ok := env.Headers[name]
	if !ok || strings.TrimSpace(v) == "" {
		return pipeline.New(pipeline.KindMissingHeader, fmt.Errorf("headergate: header %q is required", name))
	}
	return nil
}
