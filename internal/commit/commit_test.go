package commit

import (
	"testing"

	"github.com/eportal-gateway/gateway/internal/envelope"
	"github.com/eportal-gateway/gateway/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error"})
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestCommit_InvokesHandleExactlyOnce(t *testing.T) {
	calls := 0
	env := envelope.New("topic", 0, 0, nil, nil, "", func() { calls++ })

	c := New(testLogger(t))
	c.Commit(env)

	if calls != 1 {
		t.Fatalf("expected exactly one commit invocation, got %d", calls)
	}
	if env.State != envelope.Committed {
		t.Fatalf("expected state Committed, got %v", env.State)
	}
}

func TestCommit_NilHandleIsSkippedNotError(t *testing.T) {
	env := envelope.New("topic", 0, 0, nil, nil, "", nil)

	c := New(testLogger(t))
	c.Commit(env)

	if env.State == envelope.Committed {
		t.Fatal("expected state to remain unchanged when handle is nil")
	}
}

func TestFail_DoesNotInvokeHandle(t *testing.T) {
	calls := 0
	env := envelope.New("topic", 0, 0, nil, nil, "", func() { calls++ })

	c := New(testLogger(t))
	c.Fail(env, errDummy{})

	if calls != 0 {
		t.Fatalf("expected handle not to be invoked on Fail, got %d calls", calls)
	}
	if env.State != envelope.CommitFailed {
		t.Fatalf("expected state CommitFailed, got %v", env.State)
	}
}

type errDummy struct{}

func (errDummy) Error() string { return "dummy failure" }
