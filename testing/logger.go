package testing

import (
	"fmt"
	"strings"
	"testing"

	"github.com/arloliu/multitopic/types"
)

// NewTestLogger returns a types.Logger that forwards consumer log output to
// t.Log, one line per entry with the key-value pairs rendered inline as
// key=value. Fatal fails the test.
func NewTestLogger(t *testing.T) types.Logger {
	return &testLogger{t: t}
}

type testLogger struct {
	t *testing.T
}

var _ types.Logger = (*testLogger)(nil)

func (l *testLogger) write(level, msg string, keysAndValues []any) {
	l.t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	if len(keysAndValues)%2 != 0 {
		fmt.Fprintf(&b, " %v=<missing>", keysAndValues[len(keysAndValues)-1])
	}
	l.t.Log(b.String())
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.t.Helper()
	l.write("debug", msg, keysAndValues)
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.t.Helper()
	l.write("info", msg, keysAndValues)
}

func (l *testLogger) Warn(msg string, keysAndValues ...any) {
	l.t.Helper()
	l.write("warn", msg, keysAndValues)
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.t.Helper()
	l.write("error", msg, keysAndValues)
}

func (l *testLogger) Fatal(msg string, keysAndValues ...any) {
	l.t.Helper()
	l.write("fatal", msg, keysAndValues)
	l.t.FailNow()
}
