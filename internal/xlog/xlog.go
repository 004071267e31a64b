// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

// Package xlog provides the structured, host-injectable logging and fatal
// error hooks described in spec §7: two callbacks (Log and Fatal) mediate
// all output so an embedding host can redirect diagnostics anywhere it
// likes, while the default implementation prints colorized key/value pairs
// to the host's standard streams the way the teacher's CLI tooling does.
package xlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level is the severity of a log record.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
	LevelCrit
)

func (lv Level) String() string {
	switch lv {
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelCrit:
		return "CRIT"
	default:
		return "?"
	}
}

// LogFunc receives every non-fatal log record.
type LogFunc func(level Level, msg string, kv ...interface{})

// FatalFunc receives a fatal error and its captured call stack; it must not
// return normally for the invariant "runtime-fatal errors terminate via the
// host-injected fatal hook" (spec §7) to hold — the default panics.
type FatalFunc func(msg string, callstack stack.CallStack)

// Logger bundles the two host-injectable callbacks plus the mutable state
// (output stream, color) behind them.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	onLog LogFunc
	onFat FatalFunc
	color bool
}

// Default is the process-wide logger used when a VM is created without an
// explicit Logger override; see engine.Options.Logger.
var Default = New(os.Stderr)

// New creates a Logger writing the default colorized format to w.
func New(w io.Writer) *Logger {
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd())
		w = colorable.NewColorable(f)
	}
	l := &Logger{out: w, color: useColor}
	l.onLog = l.defaultLog
	l.onFat = l.defaultFatal
	return l
}

// SetHooks installs host-provided callbacks, overriding the default
// stderr-printing behavior. Either argument may be nil to leave that hook
// unchanged.
func (l *Logger) SetHooks(onLog LogFunc, onFatal FatalFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if onLog != nil {
		l.onLog = onLog
	}
	if onFatal != nil {
		l.onFat = onFatal
	}
}

func (l *Logger) levelColor(lv Level) *color.Color {
	switch lv {
	case LevelInfo:
		return color.New(color.FgCyan)
	case LevelWarn:
		return color.New(color.FgYellow)
	case LevelError:
		return color.New(color.FgRed)
	case LevelCrit:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New()
	}
}

func (l *Logger) defaultLog(level Level, msg string, kv ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	line := fmt.Sprintf("[%s] %s\n", level, b.String())
	if l.color {
		l.levelColor(level).Fprint(l.out, line)
		return
	}
	fmt.Fprint(l.out, line)
}

func (l *Logger) defaultFatal(msg string, cs stack.CallStack) {
	l.mu.Lock()
	var b strings.Builder
	fmt.Fprintf(&b, "[FATAL] %s\n", msg)
	for _, c := range cs {
		fmt.Fprintf(&b, "    at %+v\n", c)
	}
	if l.color {
		color.New(color.FgRed, color.Bold).Fprint(l.out, b.String())
	} else {
		fmt.Fprint(l.out, b.String())
	}
	l.mu.Unlock()
	panic(&FatalError{Message: msg})
}

// FatalError is the panic value raised by the default fatal hook; an
// embedding host that overrides the hook with its own process-termination
// logic never sees this type.
type FatalError struct {
	Message string
}

func (e *FatalError) Error() string { return e.Message }

// Info logs at LevelInfo.
func (l *Logger) Info(msg string, kv ...interface{}) { l.onLog(LevelInfo, msg, kv...) }

// Warn logs at LevelWarn.
func (l *Logger) Warn(msg string, kv ...interface{}) { l.onLog(LevelWarn, msg, kv...) }

// Error logs at LevelError.
func (l *Logger) Error(msg string, kv ...interface{}) { l.onLog(LevelError, msg, kv...) }

// Fatal logs at LevelCrit with a captured call stack and then invokes the
// fatal hook, which by default never returns.
func (l *Logger) Fatal(msg string, kv ...interface{}) {
	l.onLog(LevelCrit, msg, kv...)
	cs := stack.Trace().TrimRuntime()
	l.onFat(msg, cs)
}

// Fatalf is a convenience wrapper formatting msg before calling Fatal.
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.Fatal(fmt.Sprintf(format, args...))
}
