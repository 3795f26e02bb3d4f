package appconfig

import (
	"reflect"
	"testing"
)

func validConfig() Config {
	return Config{
		ServiceName:    "eportal-gateway",
		ServiceVersion: "v1.0.0",
		Channels: map[string]Channel{
			"BNE": {
				Enabled: true,
				Operations: map[string]Operation{
					"payerRetrieve": {
						Enabled:              true,
						Name:                 "RequestPayerCustomerOwnAccountRetrieve",
						GroupID:              "gateway-request-account",
						InboundTopics:        []string{"mx.jrd.accountManagement.oab.payerQuery.input", "mx.jrd.response", "mx.qro.response"},
						BinarySchema:         "requestPayerCustomerOwnAccountRetrieve.avsc",
						OutboundBinarySchema: "requestOwnAccountInformationPayerBeS016.avsc",
						TransformExpr:        "ataRequestPayerCustomerOwnAccountRetrieve.jsonata",
						JSONSchema:           "requestPayerCustomerOwnAccountRetrieve.json",
						EPortalTopics:        Topics{Static: map[string]string{"JRD": "requestOwnAccountInformationPayerBeS016.jrd"}},
					},
				},
				DLQ: DLQ{Enabled: true, Topics: Topics{Dynamic: true, TopicDefault: "sendAccountInformationDlqCreate.{datacenter}"}},
				Datacenters: map[string]string{"jrd": "JRD", "qro": "QRO"},
			},
		},
		Kafka:      KafkaConfig{Brokers: []string{"localhost:9092"}, Timeout: 15_000_000_000, Acks: "all", Compression: "none"},
		Logging:    LoggingConfig{Level: "info"},
		HTTP: HTTPConfig{
			Port: 8090, ReadTimeout: 1, WriteTimeout: 1, IdleTimeout: 1, ShutdownTimeout: 1,
			MetricsPath: "/metrics", HealthzPath: "/healthz", ReadyzPath: "/readyz",
		},
		Dispatcher: DispatcherConfig{
			QueueCapacity: 10, Workers: 8, ProcessTimeout: 1,
			RequestTopics:  []string{"mx.jrd.accountManagement.oab.payerQuery.input"},
			ResponseTopics: []string{"mx.jrd.response", "mx.qro.response"},
		},
	}
}

func TestValidate_ValidConfigPasses(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_RequiresAtLeastOneChannel(t *testing.T) {
	cfg := validConfig()
	cfg.Channels = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing channels")
	}
}

func TestValidate_RequiresEnabledChannel(t *testing.T) {
	cfg := validConfig()
	ch := cfg.Channels["BNE"]
	ch.Enabled = false
	cfg.Channels["BNE"] = ch
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when no channel is enabled")
	}
}

func TestValidate_RequiresEnabledOperation(t *testing.T) {
	cfg := validConfig()
	ch := cfg.Channels["BNE"]
	op := ch.Operations["payerRetrieve"]
	op.Enabled = false
	ch.Operations["payerRetrieve"] = op
	cfg.Channels["BNE"] = ch
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when channel has no enabled operation")
	}
}

func TestValidate_RequiresOperationSchemas(t *testing.T) {
	cfg := validConfig()
	ch := cfg.Channels["BNE"]
	op := ch.Operations["payerRetrieve"]
	op.BinarySchema = ""
	ch.Operations["payerRetrieve"] = op
	cfg.Channels["BNE"] = ch
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing binary_schema")
	}
}

func TestValidate_RequiresOutboundBinarySchema(t *testing.T) {
	cfg := validConfig()
	ch := cfg.Channels["BNE"]
	op := ch.Operations["payerRetrieve"]
	op.OutboundBinarySchema = ""
	ch.Operations["payerRetrieve"] = op
	cfg.Channels["BNE"] = ch
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing outbound_binary_schema")
	}
}

func TestValidate_RequiresGroupID(t *testing.T) {
	cfg := validConfig()
	ch := cfg.Channels["BNE"]
	op := ch.Operations["payerRetrieve"]
	op.GroupID = ""
	ch.Operations["payerRetrieve"] = op
	cfg.Channels["BNE"] = ch
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing group_id")
	}
}

func TestValidate_RequiresInboundTopics(t *testing.T) {
	cfg := validConfig()
	ch := cfg.Channels["BNE"]
	op := ch.Operations["payerRetrieve"]
	op.InboundTopics = nil
	ch.Operations["payerRetrieve"] = op
	cfg.Channels["BNE"] = ch
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing inbound_topics")
	}
}

func TestGroupIDForTopic_ResolvesConfiguredOperation(t *testing.T) {
	cfg := validConfig()
	gid, ok := cfg.GroupIDForTopic("BNE", "mx.jrd.accountManagement.oab.payerQuery.input")
	if !ok || gid != "gateway-request-account" {
		t.Fatalf("expected gateway-request-account, got %q ok=%v", gid, ok)
	}
	if _, ok := cfg.GroupIDForTopic("BNE", "no-such-topic"); ok {
		t.Fatal("expected no match for unconfigured topic")
	}
}

// TestDeepCopy_Idempotence exercises testable property 3: loading the
// same config twice (here: copying it twice) produces equal trees, and
// mutating one copy's nested collections must not affect the other.
func TestDeepCopy_Idempotence(t *testing.T) {
	cfg := validConfig()
	a := cfg.deepCopy()
	b := cfg.deepCopy()

	if !reflect.DeepEqual(a, b) {
		t.Fatalf("two deep copies of the same config differ:\na=%+v\nb=%+v", a, b)
	}

	// Mutating a's nested collections must not leak into b or cfg.
	ch := a.Channels["BNE"]
	ch.Datacenters["mutated"] = "X"
	a.Channels["BNE"] = ch

	if _, ok := b.Channels["BNE"].Datacenters["mutated"]; ok {
		t.Fatal("mutation of one deep copy leaked into another")
	}
	if _, ok := cfg.Channels["BNE"].Datacenters["mutated"]; ok {
		t.Fatal("mutation of a deep copy leaked into the source config")
	}
}

func TestOperation_LookupByNameOrSchema(t *testing.T) {
	cfg := validConfig()

	if _, ok := cfg.Operation("BNE", "RequestPayerCustomerOwnAccountRetrieve"); !ok {
		t.Fatal("expected lookup by canonical name to succeed")
	}
	if _, ok := cfg.Operation("BNE", "requestPayerCustomerOwnAccountRetrieve.avsc"); !ok {
		t.Fatal("expected lookup by binary schema filename to succeed")
	}
	if _, ok := cfg.Operation("BNE", "nope"); ok {
		t.Fatal("expected lookup of unknown operation to fail")
	}
}

func TestDatacenter_SubstringMatch(t *testing.T) {
	cfg := validConfig()

	dc, ok := cfg.Datacenter("BNE", "mx.jrd.accountManagement.oab.payerQuery.input")
	if !ok || dc != "JRD" {
		t.Fatalf("expected JRD, got %q ok=%v", dc, ok)
	}
	if _, ok := cfg.Datacenter("BNE", "no-match-here"); ok {
		t.Fatal("expected no match for unrelated topic")
	}
}

func TestTopics_ResolveDynamic(t *testing.T) {
	topics := Topics{Dynamic: true, TopicDefault: "sendAccountInformationDlqCreate.{datacenter}"}
	topic, ok := topics.Resolve("jrd")
	if !ok || topic != "sendAccountInformationDlqCreate.jrd" {
		t.Fatalf("expected substituted topic, got %q ok=%v", topic, ok)
	}
}
