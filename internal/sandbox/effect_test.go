package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func (f *fixture) listeners(typ string) int {
	var n int
	f.do(func() { n = f.page.ListenerCount(f.page.Window(), typ) })
	return n
}

func (f *fixture) documentListeners(typ string) int {
	var n int
	f.do(func() { n = f.page.ListenerCount(f.page.Env().RawDocument, typ) })
	return n
}

func (f *fixture) pendingTimers() int {
	var n int
	f.do(func() { n = f.page.PendingTimers() })
	return n
}

func (f *fixture) runTimers() int {
	var n int
	f.do(func() { n = f.page.RunPending(context.Background()) })
	return n
}

func TestStopRemovesWindowListeners(t *testing.T) {
	f := newFixture(t)
	a := f.sandbox("app-a")
	f.start(a, StartOptions{})

	f.exec(a, `
		function onResize() {}
		window.addEventListener('resize', onResize);
		window.addEventListener('resize', onResize);
		window.addEventListener('scroll', function () {}, {capture: true});
	`)
	assert.Equal(t, 1, f.listeners("resize"))
	assert.Equal(t, 1, f.listeners("scroll"))

	f.stop(a, StopOptions{})
	assert.Equal(t, 0, f.listeners("resize"))
	assert.Equal(t, 0, f.listeners("scroll"))
}

func TestRemovedListenerIsForgotten(t *testing.T) {
	f := newFixture(t)
	a := f.sandbox("app-a")
	f.start(a, StartOptions{})

	f.exec(a, `
		function onResize() {}
		window.addEventListener('resize', onResize);
		window.removeEventListener('resize', onResize);
	`)
	assert.Equal(t, 0, f.listeners("resize"))
	f.do(func() { assert.Empty(t, a.effect.window) })
}

func TestUnmountEventIsPerApp(t *testing.T) {
	f := newFixture(t)
	a := f.sandbox("app-a")
	f.start(a, StartOptions{})

	f.exec(a, "window.addEventListener('unmount', function () { window.unmounted = true })")
	assert.Equal(t, 0, f.listeners("unmount"))
	assert.Equal(t, 1, f.listeners("unmount-app-a"))

	f.do(func() {
		assert.NoError(t, f.page.DispatchWindowEvent("CustomEvent", "unmount-app-a", nil))
	})
	assert.True(t, f.eval(a, "unmounted").ToBoolean())
}

func TestStopRemovesDocumentListeners(t *testing.T) {
	f := newFixture(t)
	a := f.sandbox("app-a")
	f.start(a, StartOptions{})
	f.raw("document.addEventListener('click', function () {})")

	f.exec(a, "document.addEventListener('click', function () {})")
	assert.Equal(t, 2, f.documentListeners("click"))

	f.stop(a, StopOptions{})
	assert.Equal(t, 1, f.documentListeners("click"), "host listener stays")
}

func TestStopClearsTimers(t *testing.T) {
	f := newFixture(t)
	a := f.sandbox("app-a")
	f.start(a, StartOptions{})

	f.exec(a, `
		setTimeout(function () {}, 1000);
		setInterval(function () {}, 1000);
		setTimeout('1 + 1', 1000);
	`)
	assert.Equal(t, 3, f.pendingTimers())

	f.stop(a, StopOptions{})
	assert.Equal(t, 0, f.pendingTimers())
}

func TestFiredTimeoutIsForgotten(t *testing.T) {
	f := newFixture(t)
	a := f.sandbox("app-a")
	f.start(a, StartOptions{})

	f.exec(a, "setTimeout(function (n) { window.fired = n; window.scope = __MICRO_APP_NAME__ }, 0, 7)")
	assert.Equal(t, 1, f.runTimers())

	f.do(func() {
		assert.Empty(t, a.effect.timers)
		assert.Empty(t, f.coord.CurrentApp(), "scope restored after the handler")
	})
	assert.Equal(t, int64(7), f.get(a, "fired").ToInteger())
	assert.Equal(t, "app-a", f.get(a, "scope").String())
}

func TestClearTimeoutForgetsTimer(t *testing.T) {
	f := newFixture(t)
	a := f.sandbox("app-a")
	f.start(a, StartOptions{})

	f.exec(a, "var id = setInterval(function () {}, 10); clearInterval(id)")

	assert.Equal(t, 0, f.pendingTimers())
	f.do(func() { assert.Empty(t, a.effect.timers) })
}

func TestUmdSnapshotRebuildsEffects(t *testing.T) {
	f := newFixture(t)
	a := f.sandbox("app-a")
	f.start(a, StartOptions{UMDMode: true})
	f.exec(a, `
		window.addEventListener('resize', function () {});
		document.addEventListener('keydown', function () {});
		setInterval(function () {}, 1000);
	`)
	f.do(func() { a.RecordUmdSnapshot() })
	assert.True(t, f.eval(a, "__MICRO_APP_UMD_MODE__").ToBoolean())

	f.stop(a, StopOptions{UMDMode: true})
	assert.Equal(t, 0, f.listeners("resize"))
	assert.Equal(t, 0, f.documentListeners("keydown"))
	assert.Equal(t, 0, f.pendingTimers())

	f.start(a, StartOptions{UMDMode: true})
	f.do(func() { a.RebuildUmdSnapshot() })
	assert.Equal(t, 1, f.listeners("resize"))
	assert.Equal(t, 1, f.documentListeners("keydown"))
	assert.Equal(t, 1, f.pendingTimers())

	f.do(func() { a.RebuildUmdSnapshot() })
	assert.Equal(t, 1, f.listeners("resize"), "rebuild does not duplicate listeners")
}

func TestCaptureOf(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"undefined", "undefined", false},
		{"true", "true", true},
		{"false", "false", false},
		{"capture option", "({capture: true})", true},
		{"once option", "({once: true})", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := f.raw(tt.expr)
			f.do(func() { assert.Equal(t, tt.want, captureOf(v)) })
		})
	}
	assert.False(t, captureOf(nil))
}
