// Package logging routes zap output to the host's log facility.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultTag is used for entries written by an unnamed logger.
const DefaultTag = "mod_coreclr"

// Severity is a host log level (syslog numbering).
type Severity int

const (
	SeverityCrit    Severity = 2
	SeverityError   Severity = 3
	SeverityWarning Severity = 4
	SeverityNotice  Severity = 5
	SeverityInfo    Severity = 6
	SeverityDebug   Severity = 7
)

// SeverityFor maps a zap level to the host severity.
func SeverityFor(l zapcore.Level) Severity {
	switch {
	case l <= zapcore.DebugLevel:
		return SeverityDebug
	case l == zapcore.InfoLevel:
		return SeverityInfo
	case l == zapcore.WarnLevel:
		return SeverityWarning
	case l == zapcore.ErrorLevel:
		return SeverityError
	default:
		return SeverityCrit
	}
}

// Sink receives rendered log lines.
type Sink interface {
	Log(severity Severity, tag, message string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(severity Severity, tag, message string)

// Log calls f.
func (f SinkFunc) Log(severity Severity, tag, message string) {
	f(severity, tag, message)
}

// Router holds the current sink. Until one is set, lines go to the
// fallback writer.
type Router struct {
	mu       sync.RWMutex
	sink     Sink
	fallback io.Writer
}

// NewRouter returns a Router that falls back to w, or stderr when w is nil.
func NewRouter(w io.Writer) *Router {
	if w == nil {
		w = os.Stderr
	}
	return &Router{fallback: w}
}

// SetSink replaces the sink. nil restores the fallback.
func (r *Router) SetSink(s Sink) {
	r.mu.Lock()
	r.sink = s
	r.mu.Unlock()
}

func (r *Router) emit(sev Severity, tag, msg string) {
	r.mu.RLock()
	sink := r.sink
	r.mu.RUnlock()
	if sink != nil {
		sink.Log(sev, tag, msg)
		return
	}
	fmt.Fprintf(r.fallback, "[%s] %s\n", tag, msg)
}

// ============================================================
// zapcore.Core
// ============================================================

type hostCore struct {
	zapcore.LevelEnabler
	enc    zapcore.Encoder
	router *Router
}

// NewCore returns a core that encodes entries with the console encoder and
// hands them to the router. Timestamps are left to the host.
func NewCore(router *Router, enab zapcore.LevelEnabler) zapcore.Core {
	cfg := zapcore.EncoderConfig{
		MessageKey:       "M",
		StacktraceKey:    "S",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	return &hostCore{
		LevelEnabler: enab,
		enc:          zapcore.NewConsoleEncoder(cfg),
		router:       router,
	}
}

func (c *hostCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &hostCore{LevelEnabler: c.LevelEnabler, enc: c.enc.Clone(), router: c.router}
	for i := range fields {
		fields[i].AddTo(clone.enc)
	}
	return clone
}

func (c *hostCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *hostCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	line := strings.TrimRight(buf.String(), "\n")
	buf.Free()

	tag := ent.LoggerName
	if tag == "" {
		tag = DefaultTag
	}
	c.router.emit(SeverityFor(ent.Level), tag, line)
	return nil
}

func (c *hostCore) Sync() error { return nil }

// New builds a logger writing through router at the given level.
func New(router *Router, level zap.AtomicLevel) *zap.Logger {
	return zap.New(NewCore(router, level))
}

// ParseLevel accepts zap level names; empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
}
