// Package log is a thin wrapper around zap.
// Components get a named child of the default logger via Default().Named(..).
package log

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"moul.io/zapfilter"
)

type (
	Level  = zapcore.Level
	Field  = zap.Field
	Option = zap.Option
)

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
	FatalLevel = zapcore.FatalLevel
)

type Logger struct {
	l     *zap.Logger
	level zap.AtomicLevel
}

type ctxKey struct{}

var (
	std = New(os.Stderr, InfoLevel)

	Skip          = zap.Skip
	Binary        = zap.Binary
	Bool          = zap.Bool
	ByteString    = zap.ByteString
	String        = zap.String
	Strings       = zap.Strings
	Float64       = zap.Float64
	Float32       = zap.Float32
	Int           = zap.Int
	Int64         = zap.Int64
	Int32         = zap.Int32
	Uint          = zap.Uint
	Uint64        = zap.Uint64
	Uint32        = zap.Uint32
	Duration      = zap.Duration
	Time          = zap.Time
	Any           = zap.Any
	Stringer      = zap.Stringer
	Float64s      = zap.Float64s
	Ints          = zap.Ints
	WithCaller    = zap.WithCaller
	AddCallerSkip = zap.AddCallerSkip
	AddStacktrace = zap.AddStacktrace
)

// Float is kept for call sites that do not care about the float width.
func Float(key string, val float64) Field {
	return zap.Float64(key, val)
}

func ErrorField(err error) Field {
	return zap.Error(err)
}

func ParseLevel(text string) (Level, error) {
	return zapcore.ParseLevel(text)
}

// New creates a JSON logger writing to w.
func New(w io.Writer, level Level, opts ...Option) *Logger {
	if w == nil {
		panic("the writer is nil")
	}
	atomicLevel := zap.NewAtomicLevelAt(level)
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(cfg.EncoderConfig),
		zapcore.AddSync(w),
		atomicLevel,
	)
	return &Logger{l: zap.New(core, opts...), level: atomicLevel}
}

// DevLogger creates a human readable console logger writing to w.
func DevLogger(w io.Writer, level Level, opts ...Option) *Logger {
	if w == nil {
		panic("the writer is nil")
	}
	atomicLevel := zap.NewAtomicLevelAt(level)
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.AddSync(w),
		atomicLevel,
	)
	return &Logger{l: zap.New(core, opts...), level: atomicLevel}
}

// WithFilter restricts the output of l by zapfilter rules,
// e.g. "*:* -debug:sim.*" drops debug output of the simulation loggers.
func (l *Logger) WithFilter(rules string) (*Logger, error) {
	filter, err := zapfilter.ParseRules(rules)
	if err != nil {
		return nil, err
	}
	filtered := l.l.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapfilter.NewFilteringCore(c, filter)
	}))
	return &Logger{l: filtered, level: l.level}, nil
}

func (l *Logger) Named(name string) *Logger {
	return &Logger{l: l.l.Named(name), level: l.level}
}

func (l *Logger) WithOptions(opts ...Option) *Logger {
	return &Logger{l: l.l.WithOptions(opts...), level: l.level}
}

func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{l: l.l.With(fields...), level: l.level}
}

func (l *Logger) SetLevel(level Level) {
	l.level.SetLevel(level)
}

func (l *Logger) Level() Level {
	return l.level.Level()
}

func (l *Logger) Enabled(level Level) bool {
	return l.level.Enabled(level)
}

func (l *Logger) Debug(msg string, fields ...Field) {
	l.l.Debug(msg, fields...)
}

func (l *Logger) Info(msg string, fields ...Field) {
	l.l.Info(msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	l.l.Warn(msg, fields...)
}

func (l *Logger) Error(msg string, fields ...Field) {
	l.l.Error(msg, fields...)
}

func (l *Logger) Fatal(msg string, fields ...Field) {
	l.l.Fatal(msg, fields...)
}

func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.l.Sugar()
}

func (l *Logger) Sync() error {
	return l.l.Sync()
}

// ResetDefault replaces the package level logger.
// Not safe for concurrent use, call it once during startup.
func ResetDefault(l *Logger) {
	std = l
}

func Default() *Logger {
	return std
}

func AddToContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// GetFromContext returns the logger stored in ctx or the default logger.
func GetFromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return std
}

func Debug(msg string, fields ...Field) {
	std.l.Debug(msg, fields...)
}

func Info(msg string, fields ...Field) {
	std.l.Info(msg, fields...)
}

func Warn(msg string, fields ...Field) {
	std.l.Warn(msg, fields...)
}

func Error(msg string, fields ...Field) {
	std.l.Error(msg, fields...)
}

func Fatal(msg string, fields ...Field) {
	std.l.Fatal(msg, fields...)
}

func Sync() error {
	return std.Sync()
}
