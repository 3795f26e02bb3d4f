package headergate

import (
	"testing"

	"github.com/eportal-gateway/gateway/internal/appconfig"
	"github.com/eportal-gateway/gateway/internal/envelope"
	"github.com/eportal-gateway/gateway/internal/pipeline"
)

func TestCheck_AllMandatoryHeadersPresent(t *testing.T) {
	env := envelope.New("topic", 0, 0, nil, map[string]string{
		envelope.HeaderMessageSchema: "X",
		envelope.HeaderChannelID:     "BNE",
	}, "X", nil)

	if err := Check(env, appconfig.Operation{}); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if env.State != envelope.Filtered {
		t.Fatalf("expected state Filtered, got %v", env.State)
	}
}

func TestCheck_MissingChannelID(t *testing.T) {
	env := envelope.New("topic", 0, 0, nil, map[string]string{envelope.HeaderMessageSchema: "X"}, "X", nil)

	err := Check(env, appconfig.Operation{})
	if kind, ok := pipeline.KindOf(err); !ok || kind != pipeline.KindMissingHeader {
		t.Fatalf("expected MissingHeader, got %v (ok=%v)", kind, ok)
	}
}

func TestCheck_BlankHeaderTreatedAsMissing(t *testing.T) {
	env := envelope.New("topic", 0, 0, nil, map[string]string{
		envelope.HeaderMessageSchema: "X",
		envelope.HeaderChannelID:     "   ",
	}, "X", nil)

	if err := Check(env, appconfig.Operation{}); err == nil {
		t.Fatal("expected blank channelId to fail as missing")
	}
}

func TestCheck_OperationRequiredHeader(t *testing.T) {
	env := envelope.New("topic", 0, 0, nil, map[string]string{
		envelope.HeaderMessageSchema: "X",
		envelope.HeaderChannelID:     "BNE",
	}, "X", nil)
	op := appconfig.Operation{RequiredHeaders: []string{"customHeader"}}

	err := Check(env, op)
	if kind, ok := pipeline.KindOf(err); !ok || kind != pipeline.KindMissingHeader {
		t.Fatalf("expected MissingHeader for customHeader, got %v (ok=%v)", kind, ok)
	}
}
