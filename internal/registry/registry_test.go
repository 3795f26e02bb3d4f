package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eportal-gateway/gateway/internal/pipeline"
)

func TestLoadSchema_EmbeddedByBareName(t *testing.T) {
	r := New()
	s, err := r.LoadSchema("requestPayerCustomerOwnAccountRetrieve.avsc")
	if err != nil {
		t.Fatalf("LoadSchema: %v", err)
	}
	if s.Root.Name != "RequestPayerCustomerOwnAccountRetrieve" {
		t.Fatalf("unexpected schema name %q", s.Root.Name)
	}
}

func TestLoadSchema_ClasspathPrefix(t *testing.T) {
	r := New()
	if _, err := r.LoadSchema("classpath:requestPayerCustomerOwnAccountRetrieve.avsc"); err != nil {
		t.Fatalf("LoadSchema with classpath prefix: %v", err)
	}
}

func TestLoadSchema_NotFound(t *testing.T) {
	r := New()
	_, err := r.LoadSchema("classpath:does-not-exist.avsc")
	if err == nil {
		t.Fatal("expected SchemaNotFound error")
	}
	if kind, ok := pipeline.KindOf(err); !ok || kind != pipeline.KindSchemaNotFound {
		t.Fatalf("expected KindSchemaNotFound, got %v (ok=%v)", kind, ok)
	}
}

func TestLoadSchema_InvalidResourceFails(t *testing.T) {
	r := New()
	_, err := r.LoadSchema(`{"type":"record","name":"Bad","fields":[{"name":"x","type":123}]}`)
	if err == nil {
		t.Fatal("expected SchemaInvalid error for malformed inline schema")
	}
}

func TestLoadSchema_FilesystemPrefix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.avsc")
	content := `{"type":"record","name":"Custom","fields":[{"name":"x","type":"string"}]}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp schema: %v", err)
	}

	r := New()
	s, err := r.LoadSchema("file:" + path)
	if err != nil {
		t.Fatalf("LoadSchema with file prefix: %v", err)
	}
	if s.Root.Name != "Custom" {
		t.Fatalf("unexpected schema name %q", s.Root.Name)
	}
}

func TestLoadSchema_CachesResult(t *testing.T) {
	r := New()
	first, err := r.LoadSchema("requestPayerCustomerOwnAccountRetrieve.avsc")
	if err != nil {
		t.Fatalf("LoadSchema: %v", err)
	}
	second, err := r.LoadSchema("requestPayerCustomerOwnAccountRetrieve.avsc")
	if err != nil {
		t.Fatalf("LoadSchema (cached): %v", err)
	}
	if first != second {
		t.Fatal("expected the same cached *RecordSchema pointer on second load")
	}
}

func TestLoadValidator_EmbeddedJSONSchema(t *testing.T) {
	r := New()
	v, err := r.LoadValidator("requestPayerCustomerOwnAccountRetrieve.json")
	if err != nil {
		t.Fatalf("LoadValidator: %v", err)
	}
	if err := v.Validate(map[string]interface{}{"customerId": "C-1", "channel": "BNE"}); err != nil {
		t.Fatalf("expected valid document to pass, got %v", err)
	}
	if err := v.Validate(map[string]interface{}{"channel": "BNE"}); err == nil {
		t.Fatal("expected missing customerId to fail validation")
	}
}

func TestLoadTransform_EmbeddedJSONata(t *testing.T) {
	r := New()
	if _, err := r.LoadTransform("ataRequestPayerCustomerOwnAccountRetrieve.jsonata"); err != nil {
		t.Fatalf("LoadTransform: %v", err)
	}
}

func TestLoadTransform_InlineLiteral(t *testing.T) {
	r := New()
	if _, err := r.LoadTransform("{\"out\": in}"); err != nil {
		t.Fatalf("LoadTransform inline literal: %v", err)
	}
}
