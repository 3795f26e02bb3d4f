// Package transform implements the gateway's Transform Stage (spec
// §4.F): JSON-schema validation, then a declarative JSONata transform,
// with header snapshot/restore around both steps.
package transform

import (
	"encoding/json"
	"fmt"

	"github.com/blues/jsonata-go"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/eportal-gateway/gateway/internal/envelope"
	"github.com/eportal-gateway/gateway/internal/pipeline"
	"github.com/eportal-gateway/gateway/internal/registry"
)

// Stage applies JSON-schema validation and a JSONata transform to an
// envelope's decoded payload.
type Stage struct {
	reg *registry.Registry
}

// New builds a Stage backed by reg.
func New(reg *registry.Registry) *Stage {
	return &Stage{reg: reg}
}

// Apply runs spec §4.F's four steps against env, which must already have
// PayloadJSON populated by the codec's decode step.
func (s *Stage) Apply(env *envelope.Envelope, jsonSchemaName, transformExprName string) error {
	env.SnapshotHeaders()

	validator, err := s.reg.LoadValidator(jsonSchemaName)
	if err != nil {
		return err
	}
	if err := validate(validator, env.PayloadJSON); err != nil {
		return err
	}

	expr, err := s.reg.LoadTransform(transformExprName)
	if err != nil {
		return err
	}
	transformed, err := applyTransform(expr, env.PayloadJSON)
	if err != nil {
		return err
	}
	env.TransformedJSON = transformed

	env.RestoreHeaders()
	env.State = envelope.Transformed
	return nil
}

func validate(schema *jsonschema.Schema, payloadJSON string) error {
	var generic interface{}
	if err := json.Unmarshal([]byte(payloadJSON), &generic); err != nil {
		return pipeline.New(pipeline.KindSchemaValidationError, err)
	}
	if err := schema.Validate(generic); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return pipeline.NewAt(pipeline.KindSchemaValidationError, ve.InstanceLocation, ve)
		}
		return pipeline.New(pipeline.KindSchemaValidationError, err)
	}
	return nil
}

func applyTransform(expr *jsonata.Expr, payloadJSON string) (string, error) {
	var generic interface{}
	if err := json.Unmarshal([]byte(payloadJSON), &generic); err != nil {
		return "", pipeline.New(pipeline.KindTransformError, err)
	}
	result, err := expr.Eval(generic)
	if err != nil {
		return "", pipeline.New(pipeline.KindTransformError, err)
	}
	out, err := json.Marshal(result)
	if err != nil {
		return "", pipeline.New(pipeline.KindTransformError, fmt.Errorf("transform: marshal result: %w", err))
	}
	return string(out), nil
}
