// Package observability defines the logging and tracing hooks accepted
// by the writer and parser. NopLogger discards everything; TextLogger
// writes one line per record for command-line use; applications with a
// logging backend of their own adapt it to the Logger interface.
package observability

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Logger receives structured records at four levels. With derives a
// logger whose records all carry the given fields.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Field is one key/value pair attached to a record.
type Field struct {
	Key string
	Val interface{}
}

func String(key, value string) Field      { return Field{key, value} }
func Int(key string, value int) Field     { return Field{key, value} }
func Int64(key string, value int64) Field { return Field{key, value} }
func Bool(key string, value bool) Field   { return Field{key, value} }
func Error(key string, err error) Field   { return Field{key, err} }

// Level orders records by severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// NopLogger discards every record.
type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) With(...Field) Logger   { return NopLogger{} }

// TextLogger writes records as single lines: the level, the message,
// then each field as key=value. Records below the minimum level are
// dropped. Safe for concurrent use.
type TextLogger struct {
	mu    *sync.Mutex
	out   io.Writer
	min   Level
	bound []Field
}

// NewTextLogger logs to out, dropping records below min.
func NewTextLogger(out io.Writer, min Level) *TextLogger {
	return &TextLogger{mu: &sync.Mutex{}, out: out, min: min}
}

func (l *TextLogger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *TextLogger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *TextLogger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *TextLogger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

// With returns a logger sharing the output and lock, with the given
// fields appended to every record.
func (l *TextLogger) With(fields ...Field) Logger {
	bound := make([]Field, 0, len(l.bound)+len(fields))
	bound = append(bound, l.bound...)
	bound = append(bound, fields...)
	return &TextLogger{mu: l.mu, out: l.out, min: l.min, bound: bound}
}

func (l *TextLogger) log(level Level, msg string, fields []Field) {
	if level < l.min {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s %s", level, msg)
	for _, f := range l.bound {
		fmt.Fprintf(l.out, " %s=%v", f.Key, f.Val)
	}
	for _, f := range fields {
		fmt.Fprintf(l.out, " %s=%v", f.Key, f.Val)
	}
	fmt.Fprintln(l.out)
}

// Tracer provides tracing hooks around long-running operations.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

type Span interface {
	SetTag(key string, value interface{})
	SetError(err error)
	Finish()
}

type nopTracer struct{}

func (nopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, nopSpan{}
}

// NopTracer returns a tracer that does nothing.
func NopTracer() Tracer { return nopTracer{} }

type nopSpan struct{}

func (nopSpan) SetTag(string, interface{}) {}
func (nopSpan) SetError(error)             {}
func (nopSpan) Finish()                    {}

// Standard metric names emitted by the library.
const (
	MetricParseTime    = "pdf.parse.duration"
	MetricObjectCount  = "pdf.objects.count"
	MetricDecodedBytes = "pdf.decoded.bytes"
	MetricWriteTime    = "pdf.write.duration"
	MetricWriteBytes   = "pdf.write.bytes"
	MetricSignTime     = "pdf.sign.duration"
)
