package dlq

import (
	"errors"
	"testing"

	"github.com/eportal-gateway/gateway/internal/appconfig"
	"github.com/eportal-gateway/gateway/internal/commit"
	"github.com/eportal-gateway/gateway/internal/envelope"
	"github.com/eportal-gateway/gateway/internal/logger"
	"github.com/eportal-gateway/gateway/internal/pipeline"
)

type fakeProducer struct {
	topic   string
	headers map[string]string
	payload []byte
	err     error
}

func (p *fakeProducer) Produce(topic string, headers map[string]string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.topic, p.headers, p.payload = topic, headers, payload
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error"})
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		Channels: map[string]appconfig.Channel{
			"BNE": {
				Enabled: true,
				DLQ: appconfig.DLQ{
					Enabled: true,
					Topics:  appconfig.Topics{Static: map[string]string{"JRD": "dlq.jrd"}},
				},
			},
		},
	}
}

func TestHandle_ProducesToDLQWithDiagnosticHeaders(t *testing.T) {
	commits := 0
	env := envelope.New("in.jrd", 0, 42, []byte("original-bytes"), map[string]string{"channelId": "BNE"}, "x", func() { commits++ })
	env.ChannelID = "BNE"
	env.Datacenter = "JRD"

	prod := &fakeProducer{}
	coord := commit.New(testLogger(t))
	f := New(prod, coord, testConfig(), testLogger(t))

	f.Handle(env, pipeline.New(pipeline.KindDecodeError, errors.New("boom")), "DecodeError")

	if prod.topic != "dlq.jrd" {
		t.Fatalf("expected dlq.jrd, got %q", prod.topic)
	}
	if string(prod.payload) != "original-bytes" {
		t.Fatalf("expected original payload bytes preserved, got %q", prod.payload)
	}
	if prod.headers[envelope.HeaderDLQErrorKind] != string(pipeline.KindDecodeError) {
		t.Fatalf("expected errorKind header, got %q", prod.headers[envelope.HeaderDLQErrorKind])
	}
	if prod.headers[envelope.HeaderDLQSourceTopic] != "in.jrd" {
		t.Fatalf("expected sourceTopic header, got %q", prod.headers[envelope.HeaderDLQSourceTopic])
	}
	if commits != 1 {
		t.Fatalf("expected commit handle invoked after successful dlq produce, got %d", commits)
	}
	if env.State != envelope.Committed {
		t.Fatalf("expected state Committed, got %v", env.State)
	}
}

func TestHandle_ProduceFailureDoesNotCommit(t *testing.T) {
	commits := 0
	env := envelope.New("in.jrd", 0, 42, []byte("x"), map[string]string{"channelId": "BNE"}, "x", func() { commits++ })
	env.ChannelID = "BNE"
	env.Datacenter = "JRD"

	prod := &fakeProducer{err: errors.New("broker unavailable")}
	coord := commit.New(testLogger(t))
	f := New(prod, coord, testConfig(), testLogger(t))

	f.Handle(env, pipeline.New(pipeline.KindTransformError, errors.New("boom")), "TransformError")

	if commits != 0 {
		t.Fatalf("expected no commit invocation after failed dlq produce, got %d", commits)
	}
	if env.State != envelope.CommitFailed {
		t.Fatalf("expected state CommitFailed, got %v", env.State)
	}
}

func TestHandle_NonEligibleKindPanics(t *testing.T) {
	env := envelope.New("in.jrd", 0, 0, nil, nil, "x", nil)
	env.ChannelID = "BNE"
	env.Datacenter = "JRD"

	prod := &fakeProducer{}
	coord := commit.New(testLogger(t))
	f := New(prod, coord, testConfig(), testLogger(t))

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected Handle to panic on a non-eligible error kind")
		}
	}()
	f.Handle(env, pipeline.New(pipeline.KindCommitError, errors.New("boom")), "CommitError")
}
