package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/eportal-gateway/gateway/internal/backoff"
	"github.com/eportal-gateway/gateway/internal/logger"
)

func TestProducerConfigDefaultsAndValidate(t *testing.T) {
	cases := []struct {
		name     string
		input    ProducerConfig
		wantErr  bool
		wantAcks string
		wantComp string
	}{
		{"empty", ProducerConfig{}, true, "all", "none"},
		{"noBrokers", ProducerConfig{Compression: "gzip"}, true, "all", "gzip"},
		{"ok", ProducerConfig{Brokers: []string{"b1"}}, false, "all", "none"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := c.input
			cfg.applyDefaults()
			if cfg.RequiredAcks != c.wantAcks {
				t.Errorf("RequiredAcks = %q; want %q", cfg.RequiredAcks, c.wantAcks)
			}
			if cfg.Compression != c.wantComp {
				t.Errorf("Compression = %q; want %q", cfg.Compression, c.wantComp)
			}
			if err := cfg.validate(); (err != nil) != c.wantErr {
				t.Errorf("validate() error = %v; wantErr=%v", err, c.wantErr)
			}
		})
	}
}

func TestBuildSaramaProducerConfig_IdempotentSettings(t *testing.T) {
	sc, err := buildSaramaProducerConfig(ProducerConfig{Brokers: []string{"x"}, RequiredAcks: "all", Compression: "none"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sc.Producer.Idempotent {
		t.Error("expected idempotent producer")
	}
	if sc.Net.MaxOpenRequests != 1 {
		t.Errorf("expected MaxOpenRequests=1, got %d", sc.Net.MaxOpenRequests)
	}
	if sc.Producer.RequiredAcks != sarama.WaitForAll {
		t.Errorf("expected WaitForAll, got %v", sc.Producer.RequiredAcks)
	}
}

func TestBuildSaramaProducerConfig_InvalidAcks(t *testing.T) {
	if _, err := buildSaramaProducerConfig(ProducerConfig{Brokers: []string{"x"}, RequiredAcks: "bogus"}); err == nil {
		t.Fatal("expected error for invalid RequiredAcks")
	}
}

func TestProduce_RetriesThenSucceedsWithHeaders(t *testing.T) {
	mockProd := mocks.NewSyncProducer(t, sarama.NewConfig())
	defer mockProd.Close()

	mockProd.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	mockProd.ExpectSendMessageAndSucceed()

	log, _ := logger.New(logger.Config{Level: "error"})
	p := &syncProducer{
		prod: mockProd,
		log:  log,
		backoffCfg: backoff.Config{
			InitialInterval: time.Millisecond, Multiplier: 1,
			MaxInterval: time.Millisecond, MaxElapsedTime: 50 * time.Millisecond,
		},
	}

	if err := p.Produce("topic", map[string]string{"messageSchema": "x"}, []byte("payload")); err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
}

func TestNewProducer_InvalidConfig(t *testing.T) {
	log, _ := logger.New(logger.Config{Level: "error"})
	if _, err := NewProducer(context.Background(), ProducerConfig{}, log); err == nil {
		t.Fatal("expected error for empty config")
	}
}
