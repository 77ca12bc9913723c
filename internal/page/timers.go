package page

import (
	"context"
	"sort"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

type timer struct {
	id       int64
	due      time.Time
	interval time.Duration
	repeat   bool
	fn       goja.Callable
	source   string
	args     []goja.Value
}

// timerQueue holds pending timers. The page clock decides when they are due;
// RunPending fires them.
type timerQueue struct {
	next   int64
	timers map[int64]*timer
}

func newTimerQueue() *timerQueue {
	return &timerQueue{timers: make(map[int64]*timer)}
}

func (q *timerQueue) clear() {
	q.timers = make(map[int64]*timer)
}

func (p *Page) setupTimers() {
	p.window.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		return p.vm.ToValue(p.schedule(call, false))
	})
	p.window.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		return p.vm.ToValue(p.schedule(call, true))
	})
	cancel := func(call goja.FunctionCall) goja.Value {
		delete(p.timers.timers, call.Argument(0).ToInteger())
		return goja.Undefined()
	}
	p.window.Set("clearTimeout", cancel)
	p.window.Set("clearInterval", cancel)
}

func (p *Page) schedule(call goja.FunctionCall, repeat bool) int64 {
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	t := &timer{
		interval: delay,
		repeat:   repeat,
		due:      p.now().Add(delay),
	}
	if fn, ok := goja.AssertFunction(call.Argument(0)); ok {
		t.fn = fn
	} else {
		t.source = call.Argument(0).String()
	}
	if len(call.Arguments) > 2 {
		t.args = append([]goja.Value(nil), call.Arguments[2:]...)
	}

	p.timers.next++
	t.id = p.timers.next
	p.timers.timers[t.id] = t
	return t.id
}

// RunPending fires every timer due at the current page time and returns how
// many ran. Each timer fires at most once per call. Callers must hold the
// page through Do.
func (p *Page) RunPending(ctx context.Context) int {
	now := p.now()
	var due []*timer
	for _, t := range p.timers.timers {
		if !t.due.After(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].id < due[j].id
		}
		return due[i].due.Before(due[j].due)
	})

	ran := 0
	for _, t := range due {
		if _, live := p.timers.timers[t.id]; !live {
			continue
		}
		if t.repeat {
			interval := t.interval
			if interval < time.Millisecond {
				interval = time.Millisecond
			}
			t.due = now.Add(interval)
		} else {
			delete(p.timers.timers, t.id)
		}
		p.fire(ctx, t)
		ran++
	}
	return ran
}

func (p *Page) fire(ctx context.Context, t *timer) {
	var err error
	if t.fn != nil {
		_, err = p.Call(ctx, t.fn, goja.Undefined(), t.args...)
	} else {
		_, err = p.RunScript(ctx, "timer", t.source)
	}
	if err != nil {
		p.logger.Warn("timer callback threw",
			zap.Int64("timer", t.id),
			zap.String("app", p.currentScope()),
			zap.Error(err))
	}
}

// PendingTimers reports how many timers are scheduled.
func (p *Page) PendingTimers() int { return len(p.timers.timers) }

// Run drives timers every interval until ctx is done.
func (p *Page) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := p.Do(func(*goja.Runtime) error {
				p.RunPending(ctx)
				return nil
			})
			if err != nil {
				return
			}
		}
	}
}
