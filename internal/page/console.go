package page

import (
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

const maxConsoleEntries = 1000

type consoleBuffer struct {
	entries []LogEntry
}

func newConsoleBuffer() *consoleBuffer {
	return &consoleBuffer{entries: []LogEntry{}}
}

func (c *consoleBuffer) append(e LogEntry) {
	if len(c.entries) >= maxConsoleEntries {
		c.entries = c.entries[1:]
	}
	c.entries = append(c.entries, e)
}

func (p *Page) setupConsole() error {
	console := p.vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(level, p.makeConsoleFunc(level)); err != nil {
			return err
		}
	}
	return p.window.Set("console", console)
}

// makeConsoleFunc creates a console function.
func (p *Page) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, p.formatArg(arg))
		}

		entry := LogEntry{
			Level:   level,
			Message: strings.Join(parts, " "),
			App:     p.currentScope(),
			Time:    time.Now(),
		}
		p.console.append(entry)
		p.logger.Debug("console",
			zap.String("level", level),
			zap.String("app", entry.App),
			zap.String("message", entry.Message))

		return goja.Undefined()
	}
}

func (p *Page) formatArg(arg goja.Value) string {
	obj, ok := arg.(*goja.Object)
	if !ok {
		return arg.String()
	}
	if _, isFn := goja.AssertFunction(obj); isFn {
		return arg.String()
	}
	if p.env != nil && p.env.jsonStringify != nil {
		if out, err := p.env.jsonStringify(goja.Undefined(), arg); err == nil && !goja.IsUndefined(out) {
			return out.String()
		}
	}
	return arg.String()
}

// Console returns captured console output.
func (p *Page) Console() []LogEntry {
	return append([]LogEntry(nil), p.console.entries...)
}

// ClearConsole drops captured console output.
func (p *Page) ClearConsole() {
	p.console.entries = []LogEntry{}
}
