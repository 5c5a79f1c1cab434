package log

type nopLogger struct{}

// NewNopLogger returns a Logger that discards everything, for tests and
// for components constructed before their real logger is known.
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (l nopLogger) With(...interface{}) Logger { return l }
