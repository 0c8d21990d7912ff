package logger

type Fields map[string]any

type Logger interface {
	Trace(args ...any)
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
	Fatal(args ...any)

	WithFields(fields Fields) Logger
	WithField(key string, value any) Logger
	WithError(err error) Logger
}

// Nop discards everything. Handy for packages used without a configured logger.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Trace(...any)                   {}
func (nopLogger) Debug(...any)                   {}
func (nopLogger) Info(...any)                    {}
func (nopLogger) Warn(...any)                    {}
func (nopLogger) Error(...any)                   {}
func (nopLogger) Fatal(...any)                   {}
func (l nopLogger) WithFields(Fields) Logger     { return l }
func (l nopLogger) WithField(string, any) Logger { return l }
func (l nopLogger) WithError(error) Logger       { return l }
