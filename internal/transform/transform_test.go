package transform

import (
	"encoding/json"
	"testing"

	"github.com/eportal-gateway/gateway/internal/envelope"
	"github.com/eportal-gateway/gateway/internal/pipeline"
	"github.com/eportal-gateway/gateway/internal/registry"
)

func TestApply_HappyPathRewritesFields(t *testing.T) {
	stage := New(registry.New())
	env := envelope.New("topic", 0, 0, nil, map[string]string{
		envelope.HeaderChannelID: "BNE",
	}, "", nil)
	env.PayloadJSON = `{"customerId":"C-1","accountId":"A-1","channel":"BNE"}`

	if err := stage.Apply(env, "requestPayerCustomerOwnAccountRetrieve.json", "ataRequestPayerCustomerOwnAccountRetrieve.jsonata"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if env.TransformedJSON == "" {
		t.Fatal("expected TransformedJSON to be populated")
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(env.TransformedJSON), &out); err != nil {
		t.Fatalf("unmarshal TransformedJSON: %v", err)
	}
	if out["idCustomer"] != "C-1" || out["idAccount"] != "A-1" || out["channelCode"] != "BNE" {
		t.Fatalf("expected renamed fields, got %s", env.TransformedJSON)
	}
	if env.State != envelope.Transformed {
		t.Fatalf("expected state Transformed, got %v", env.State)
	}
}

func TestApply_HeaderPreservation(t *testing.T) {
	stage := New(registry.New())
	env := envelope.New("topic", 0, 0, nil, map[string]string{
		envelope.HeaderChannelID: "BNE",
		"X-Business-Header":      "MixedCase",
	}, "", nil)
	env.PayloadJSON = `{"customerId":"C-1","accountId":"A-1","channel":"BNE"}`

	if err := stage.Apply(env, "requestPayerCustomerOwnAccountRetrieve.json", "ataRequestPayerCustomerOwnAccountRetrieve.jsonata"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if v := env.Headers["X-Business-Header"]; v != "MixedCase" {
		t.Fatalf("expected business header to survive with original case, got %q", v)
	}
}

func TestApply_SchemaValidationErrorOnMissingRequiredField(t *testing.T) {
	stage := New(registry.New())
	env := envelope.New("topic", 0, 0, nil, nil, "", nil)
	env.PayloadJSON = `{"accountId":"A-1"}`

	err := stage.Apply(env, "requestPayerCustomerOwnAccountRetrieve.json", "ataRequestPayerCustomerOwnAccountRetrieve.jsonata")
	if kind, ok := pipeline.KindOf(err); !ok || kind != pipeline.KindSchemaValidationError {
		t.Fatalf("expected SchemaValidationError, got %v (ok=%v)", kind, ok)
	}
}
