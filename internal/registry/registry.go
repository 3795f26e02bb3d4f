// Package registry implements the gateway's Schema & Transform Registry
// (spec §4.B): lazy-loads and caches binary-record schemas, JSON
// schemas, and transform expressions by resource name.
package registry

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/blues/jsonata-go"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/eportal-gateway/gateway/internal/codec"
	"github.com/eportal-gateway/gateway/internal/pipeline"
)

const (
	classpathPrefix = "classpath:"
	filePrefix      = "file:"
)

// Registry resolves and caches parsed schema/transform artifacts for the
// process lifetime. Safe for concurrent use by every worker.
type Registry struct {
	mu         sync.RWMutex
	schemas    map[string]*codec.RecordSchema
	validators map[string]*jsonschema.Schema
	transforms map[string]*jsonata.Expr
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{
		schemas:    make(map[string]*codec.RecordSchema),
		validators: make(map[string]*jsonschema.Schema),
		transforms: make(map[string]*jsonata.Expr),
	}
}

// LoadSchema resolves and parses a binary-record schema (.avsc), caching
// the result under name.
func (r *Registry) LoadSchema(name string) (*codec.RecordSchema, error) {
	r.mu.RLock()
	if s, ok := r.schemas[name]; ok {
		r.mu.RUnlock()
		return s, nil
	}
	r.mu.RUnlock()

	data, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	parsed, err := codec.ParseSchema(data)
	if err != nil {
		return nil, pipeline.New(pipeline.KindSchemaInvalid, err)
	}

	r.mu.Lock()
	r.schemas[name] = parsed
	r.mu.Unlock()
	return parsed, nil
}

// LoadValidator resolves and compiles a JSON schema (.json), caching the
// result under name.
func (r *Registry) LoadValidator(name string) (*jsonschema.Schema, error) {
	r.mu.RLock()
	if v, ok := r.validators[name]; ok {
		r.mu.RUnlock()
		return v, nil
	}
	r.mu.RUnlock()

	data, err := r.resolve(name)
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(string(data))); err != nil {
		return nil, pipeline.New(pipeline.KindSchemaInvalid, err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, pipeline.New(pipeline.KindSchemaInvalid, err)
	}

	r.mu.Lock()
	r.validators[name] = schema
	r.mu.Unlock()
	return schema, nil
}

// LoadTransform resolves and parses a JSONata expression (.jsonata),
// caching the result under name.
func (r *Registry) LoadTransform(name string) (*jsonata.Expr, error) {
	r.mu.RLock()
	if e, ok := r.transforms[name]; ok {
		r.mu.RUnlock()
		return e, nil
	}
	r.mu.RUnlock()

	data, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	expr, err := jsonata.Compile(string(data))
	if err != nil {
		return nil, pipeline.New(pipeline.KindSchemaInvalid, err)
	}

	r.mu.Lock()
	r.transforms[name] = expr
	r.mu.Unlock()
	return expr, nil
}

// resolve implements the three-scheme lookup order from spec §4.B:
// (1) classpath-style prefix -> embedded resource under schemas/,
// (2) file-system prefix -> filesystem path,
// (3) otherwise a bare name is first looked up under the embedded
// schemas/ directory; if absent, an identifier-like name (see
// looksLikeIdentifier) fails with SchemaNotFound and anything else is
// treated as an inline literal and returned as-is (used by tests and by
// config that inlines small resources).
func (r *Registry) resolve(name string) ([]byte, error) {
	switch {
	case strings.HasPrefix(name, classpathPrefix):
		rel := strings.TrimPrefix(name, classpathPrefix)
		data, err := embeddedSchemas.ReadFile("schemas/" + rel)
		if err != nil {
			return nil, pipeline.New(pipeline.KindSchemaNotFound, fmt.Errorf("registry: embedded resource %q: %w", rel, err))
		}
		return data, nil

	case strings.HasPrefix(name, filePrefix):
		path := strings.TrimPrefix(name, filePrefix)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, pipeline.New(pipeline.KindSchemaNotFound, fmt.Errorf("registry: filesystem resource %q: %w", path, err))
		}
		return data, nil

	default:
		// Bare resource names first try the embedded schemas directory
		// (the common case: schemas ship inside the binary), then fall
		// back to treating the string itself as an inline literal.
		if data, err := embeddedSchemas.ReadFile("schemas/" + name); err == nil {
			return data, nil
		}
		if looksLikeIdentifier(name) {
			return nil, pipeline.New(pipeline.KindSchemaNotFound, fmt.Errorf("registry: resource %q not found under any scheme", name))
		}
		return []byte(name), nil
	}
}

// looksLikeIdentifier distinguishes a bare resource filename (which must
// resolve to something on disk or embedded) from an inline JSON/JSONata
// literal supplied directly in configuration.
func looksLikeIdentifier(s string) bool {
	if strings.ContainsAny(s, "{}[]\"") {
		return false
	}
	return strings.Contains(s, ".")
}
