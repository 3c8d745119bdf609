package gateway

import (
	"fmt"
	"io"
	"os"
)

// DebugLevel controls how much internal detail the gateway prints.
type DebugLevel int

const (
	DebugOff DebugLevel = iota
	DebugSQL
	DebugTrace
)

// DebugContext is the shared debug configuration for a gateway instance.
type DebugContext struct {
	Level  DebugLevel
	Writer io.Writer
}

// DefaultDebugContext returns a silent debug context writing to stdout.
func DefaultDebugContext() *DebugContext {
	return &DebugContext{Level: DebugOff, Writer: os.Stdout}
}

func (d *DebugContext) logf(level DebugLevel, format string, args ...interface{}) {
	if d == nil || d.Level < level || d.Writer == nil {
		return
	}
	fmt.Fprintf(d.Writer, format+"\n", args...)
}

// SQLf prints at DebugSQL level.
func (d *DebugContext) SQLf(format string, args ...interface{}) {
	d.logf(DebugSQL, format, args...)
}

// Tracef prints at DebugTrace level.
func (d *DebugContext) Tracef(format string, args ...interface{}) {
	d.logf(DebugTrace, format, args...)
}
