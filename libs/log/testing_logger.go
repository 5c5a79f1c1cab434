package log

import (
	"os"
	"testing"
)

// TestingLogger returns a Logger that writes to stdout when tests run with
// -v, and discards output otherwise.
func TestingLogger() Logger {
	if testing.Verbose() {
		return NewLoggerWithLevel(os.Stdout, "debug")
	}
	return NewNopLogger()
}
