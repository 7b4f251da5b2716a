// Package xlog is a small leveled, structured logger used throughout the
// consensus engine, transport and rpc packages in place of the standard
// library's log package.
package xlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level is a logging severity. Higher is more severe.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelCrit
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "EROR"
	case LevelCrit:
		return "CRIT"
	default:
		return "????"
	}
}

var levelColor = map[Level]*color.Color{
	LevelDebug: color.New(color.FgWhite),
	LevelInfo:  color.New(color.FgGreen),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed),
	LevelCrit:  color.New(color.FgMagenta, color.Bold),
}

// Logger emits structured, key-value log records. New() derives a child
// logger that carries additional context on every record it emits.
type Logger interface {
	New(ctx ...interface{}) Logger
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
}

type logger struct {
	mu     *sync.Mutex
	out    io.Writer
	color  bool
	level  Level
	ctx    []interface{}
	name   string
}

// Root returns a logger writing to os.Stderr at LevelInfo, colourised when
// stderr is a terminal.
func Root() Logger {
	isTTY := isatty.IsTerminal(os.Stderr.Fd())
	return &logger{
		mu:    &sync.Mutex{},
		out:   colorable.NewColorableStderr(),
		color: isTTY,
		level: LevelInfo,
	}
}

// New creates a standalone logger writing to w.
func New(w io.Writer, level Level, useColor bool) Logger {
	return &logger{mu: &sync.Mutex{}, out: w, color: useColor, level: level}
}

func (l *logger) New(ctx ...interface{}) Logger {
	child := &logger{
		mu:    l.mu,
		out:   l.out,
		color: l.color,
		level: l.level,
		name:  l.name,
	}
	child.ctx = append(append([]interface{}{}, l.ctx...), ctx...)
	return child
}

func (l *logger) write(lvl Level, msg string, ctx []interface{}) {
	if lvl < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	call := stack.Caller(2)
	var b strings.Builder
	ts := time.Now().Format("2006-01-02T15:04:05.000")
	tag := lvl.String()
	if l.color {
		tag = levelColor[lvl].Sprint(tag)
	}
	fmt.Fprintf(&b, "%s[%s] %-40s", ts, tag, msg)

	all := append(append([]interface{}{}, l.ctx...), ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(&b, " %v=%v", all[i], all[i+1])
	}
	fmt.Fprintf(&b, " caller=%v", call)
	b.WriteByte('\n')
	io.WriteString(l.out, b.String())
}

func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(LevelDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(LevelInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(LevelWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(LevelError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...interface{})  { l.write(LevelCrit, msg, ctx) }
