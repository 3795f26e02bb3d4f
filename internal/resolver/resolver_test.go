package resolver

import (
	"testing"

	"github.com/eportal-gateway/gateway/internal/appconfig"
	"github.com/eportal-gateway/gateway/internal/envelope"
	"github.com/eportal-gateway/gateway/internal/pipeline"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		Channels: map[string]appconfig.Channel{
			"BNE": {
				Enabled: true,
				Operations: map[string]appconfig.Operation{
					"payerRetrieve": {
						Enabled:              true,
						Name:                 "RequestPayerCustomerOwnAccountRetrieve",
						BinarySchema:         "requestPayerCustomerOwnAccountRetrieve.avsc",
						OutboundBinarySchema: "requestOwnAccountInformationPayerBeS016.avsc",
						GroupID:              "g",
					},
				},
				Datacenters: map[string]string{"jrd": "JRD", "qro": "QRO"},
			},
		},
	}
}

func TestResolve_HappyPath(t *testing.T) {
	r := New(testConfig())
	env := envelope.New("mx.jrd.accountManagement.oab.payerQuery.input", 0, 0, nil,
		map[string]string{envelope.HeaderMessageSchema: "RequestPayerCustomerOwnAccountRetrieve", envelope.HeaderChannelID: "BNE"},
		"RequestPayerCustomerOwnAccountRetrieve", nil)

	if err := r.Resolve(env); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if env.ChannelID != "BNE" || env.OperationName != "RequestPayerCustomerOwnAccountRetrieve" || env.Datacenter != "JRD" {
		t.Fatalf("unexpected resolution: %+v", env)
	}
	if env.State != envelope.Resolved {
		t.Fatalf("expected state Resolved, got %v", env.State)
	}
}

func TestResolve_ByBinarySchemaName(t *testing.T) {
	r := New(testConfig())
	env := envelope.New("mx.qro.x", 0, 0, nil,
		map[string]string{envelope.HeaderMessageSchema: "requestPayerCustomerOwnAccountRetrieve.avsc"}, "", nil)

	if err := r.Resolve(env); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if env.Datacenter != "QRO" {
		t.Fatalf("expected QRO, got %q", env.Datacenter)
	}
}

func TestResolve_MissingMessageSchema(t *testing.T) {
	r := New(testConfig())
	env := envelope.New("mx.jrd.x", 0, 0, nil, map[string]string{envelope.HeaderChannelID: "BNE"}, "", nil)

	err := r.Resolve(env)
	if kind, ok := pipeline.KindOf(err); !ok || kind != pipeline.KindMissingMessageSchema {
		t.Fatalf("expected MissingMessageSchema, got %v (ok=%v)", kind, ok)
	}
}

func TestResolve_UnknownOperation(t *testing.T) {
	r := New(testConfig())
	env := envelope.New("mx.jrd.x", 0, 0, nil, map[string]string{envelope.HeaderMessageSchema: "NoSuchOperation"}, "", nil)

	err := r.Resolve(env)
	if kind, ok := pipeline.KindOf(err); !ok || kind != pipeline.KindUnknownOperation {
		t.Fatalf("expected UnknownOperation, got %v (ok=%v)", kind, ok)
	}
}
