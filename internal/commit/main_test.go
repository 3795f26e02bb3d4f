package commit

import (
	"os"
	"testing"

	"github.com/eportal-gateway/gateway/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Register(nil)
	os.Exit(m.Run())
}
