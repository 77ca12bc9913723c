package interact

import (
	"fmt"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Data is a JSON object payload.
type Data = map[string]interface{}

// Listener receives a copy of the channel data.
type Listener func(data Data)

// ListenerID identifies a registered listener for removal.
type ListenerID uint64

const globalChannel = "global"

type entry struct {
	id  ListenerID
	fn  Listener
	app string // owner of a global listener; "" for the base
}

type channel struct {
	data      Data
	listeners []*entry
}

type snapshot struct {
	data   []*entry
	global []*entry
}

// Hub holds every channel of the page.
type Hub struct {
	logger    *zap.Logger
	channels  map[string]*channel
	snapshots map[string]snapshot
	nextID    ListenerID
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:    logger.Named("interact"),
		channels:  make(map[string]*channel),
		snapshots: make(map[string]snapshot),
	}
}

func baseToApp(app string) string { return fmt.Sprintf("__from_base_app_%s__", app) }
func appToBase(app string) string { return fmt.Sprintf("__from_micro_app_%s__", app) }

func (h *Hub) channel(name string) *channel {
	ch, ok := h.channels[name]
	if !ok {
		ch = &channel{}
		h.channels[name] = ch
	}
	return ch
}

func (h *Hub) on(name string, fn Listener, autoTrigger bool, app string) ListenerID {
	ch := h.channel(name)
	h.nextID++
	e := &entry{id: h.nextID, fn: fn, app: app}
	ch.listeners = append(ch.listeners, e)
	if autoTrigger && len(ch.data) > 0 {
		h.call(name, e, ch.data)
	}
	return e.id
}

func (h *Hub) off(name string, id ListenerID) {
	ch, ok := h.channels[name]
	if !ok {
		return
	}
	for i, e := range ch.listeners {
		if e.id == id {
			ch.listeners = append(ch.listeners[:i:i], ch.listeners[i+1:]...)
			return
		}
	}
}

// clear drops listeners of name; keep decides which survive.
func (h *Hub) clear(name string, keep func(*entry) bool) []*entry {
	ch, ok := h.channels[name]
	if !ok {
		return nil
	}
	var removed, kept []*entry
	for _, e := range ch.listeners {
		if keep != nil && keep(e) {
			kept = append(kept, e)
		} else {
			removed = append(removed, e)
		}
	}
	ch.listeners = kept
	return removed
}

// dispatch merges data into the channel and notifies its listeners.
func (h *Hub) dispatch(name string, data Data) error {
	copied, err := deepCopy(data)
	if err != nil {
		return err
	}
	ch := h.channel(name)
	if ch.data == nil {
		ch.data = Data{}
	}
	for k, v := range copied {
		ch.data[k] = v
	}
	for _, e := range append([]*entry(nil), ch.listeners...) {
		h.call(name, e, ch.data)
	}
	return nil
}

func (h *Hub) call(name string, e *entry, data Data) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("data listener panicked",
				zap.String("channel", name),
				zap.Uint64("listener", uint64(e.id)),
				zap.Any("panic", r))
		}
	}()
	copied, err := deepCopy(data)
	if err != nil {
		h.logger.Error("failed to copy data for listener", zap.String("channel", name), zap.Error(err))
		return
	}
	e.fn(copied)
}

func (h *Hub) data(name string) Data {
	ch, ok := h.channels[name]
	if !ok || ch.data == nil {
		return nil
	}
	copied, err := deepCopy(ch.data)
	if err != nil {
		h.logger.Error("failed to copy data", zap.String("channel", name), zap.Error(err))
		return nil
	}
	return copied
}

func (h *Hub) listenerCount(name string) int {
	if ch, ok := h.channels[name]; ok {
		return len(ch.listeners)
	}
	return 0
}

// ============================================================================
// Base application side
// ============================================================================

// SetData sends data to app, merging it into what was sent before.
func (h *Hub) SetData(app string, data Data) error {
	return h.dispatch(baseToApp(app), data)
}

// GetData returns data of app's channels. fromBase selects the data the base
// sent; otherwise the data the app sent.
func (h *Hub) GetData(app string, fromBase bool) Data {
	if fromBase {
		return h.data(baseToApp(app))
	}
	return h.data(appToBase(app))
}

// AddDataListener listens for data app sends to the base.
func (h *Hub) AddDataListener(app string, fn Listener, autoTrigger bool) ListenerID {
	return h.on(appToBase(app), fn, autoTrigger, "")
}

// RemoveDataListener removes a base listener of app.
func (h *Hub) RemoveDataListener(app string, id ListenerID) {
	h.off(appToBase(app), id)
}

// ClearDataListener removes every base listener of app.
func (h *Hub) ClearDataListener(app string) {
	h.clear(appToBase(app), nil)
}

// ClearData drops data stored on both channels of app.
func (h *Hub) ClearData(app string) {
	for _, name := range []string{baseToApp(app), appToBase(app)} {
		if ch, ok := h.channels[name]; ok {
			ch.data = nil
		}
	}
}

// SetGlobalData sends data to everyone from the base.
func (h *Hub) SetGlobalData(data Data) error {
	return h.dispatch(globalChannel, data)
}

// GetGlobalData returns the global data.
func (h *Hub) GetGlobalData() Data {
	return h.data(globalChannel)
}

// AddGlobalDataListener listens for global data on behalf of the base.
func (h *Hub) AddGlobalDataListener(fn Listener, autoTrigger bool) ListenerID {
	return h.on(globalChannel, fn, autoTrigger, "")
}

// RemoveGlobalDataListener removes a global listener by id.
func (h *Hub) RemoveGlobalDataListener(id ListenerID) {
	h.off(globalChannel, id)
}

// ClearGlobalDataListener removes the base's global listeners.
func (h *Hub) ClearGlobalDataListener() {
	h.clear(globalChannel, func(e *entry) bool { return e.app != "" })
}

// ClearAll drops every channel and snapshot.
func (h *Hub) ClearAll() {
	h.channels = make(map[string]*channel)
	h.snapshots = make(map[string]snapshot)
}

// ============================================================================
// Snapshots
// ============================================================================

// RecordSnapshot remembers the listeners app registered, so they can be
// restored after a stop cleared them.
func (h *Hub) RecordSnapshot(app string) {
	var s snapshot
	if ch, ok := h.channels[baseToApp(app)]; ok {
		s.data = append(s.data, ch.listeners...)
	}
	if ch, ok := h.channels[globalChannel]; ok {
		for _, e := range ch.listeners {
			if e.app == app {
				s.global = append(s.global, e)
			}
		}
	}
	h.snapshots[app] = s
}

// RebuildSnapshot re-registers the listeners recorded for app. Listeners that
// are still registered are not added twice.
func (h *Hub) RebuildSnapshot(app string) {
	s, ok := h.snapshots[app]
	if !ok {
		return
	}
	restore := func(name string, entries []*entry) {
		ch := h.channel(name)
		present := make(map[ListenerID]bool, len(ch.listeners))
		for _, e := range ch.listeners {
			present[e.id] = true
		}
		for _, e := range entries {
			if !present[e.id] {
				ch.listeners = append(ch.listeners, e)
			}
		}
	}
	restore(baseToApp(app), s.data)
	restore(globalChannel, s.global)
}

// ============================================================================
// Sub-application side
// ============================================================================

// AppCenter is the data API one sub-application sees.
type AppCenter struct {
	hub *Hub
	app string
}

// ForApp returns the data API of app.
func (h *Hub) ForApp(app string) *AppCenter {
	return &AppCenter{hub: h, app: app}
}

// Hub returns the owning hub.
func (c *AppCenter) Hub() *Hub { return c.hub }

// AppName returns the app this center belongs to.
func (c *AppCenter) AppName() string { return c.app }

// AddDataListener listens for data the base sends to this app.
func (c *AppCenter) AddDataListener(fn Listener, autoTrigger bool) ListenerID {
	return c.hub.on(baseToApp(c.app), fn, autoTrigger, "")
}

// RemoveDataListener removes a data listener.
func (c *AppCenter) RemoveDataListener(id ListenerID) {
	c.hub.off(baseToApp(c.app), id)
}

// ClearDataListener removes every data listener of this app.
func (c *AppCenter) ClearDataListener() {
	c.hub.clear(baseToApp(c.app), nil)
}

// GetData returns the data the base sent to this app.
func (c *AppCenter) GetData() Data {
	return c.hub.data(baseToApp(c.app))
}

// Dispatch sends data to the base.
func (c *AppCenter) Dispatch(data Data) error {
	return c.hub.dispatch(appToBase(c.app), data)
}

// AddGlobalDataListener listens for global data on behalf of this app.
func (c *AppCenter) AddGlobalDataListener(fn Listener, autoTrigger bool) ListenerID {
	return c.hub.on(globalChannel, fn, autoTrigger, c.app)
}

// RemoveGlobalDataListener removes a global listener.
func (c *AppCenter) RemoveGlobalDataListener(id ListenerID) {
	c.hub.off(globalChannel, id)
}

// ClearGlobalDataListener removes the global listeners this app registered.
func (c *AppCenter) ClearGlobalDataListener() {
	c.hub.clear(globalChannel, func(e *entry) bool { return e.app != c.app })
}

// GetGlobalData returns the global data.
func (c *AppCenter) GetGlobalData() Data {
	return c.hub.GetGlobalData()
}

// SetGlobalData sends data to everyone.
func (c *AppCenter) SetGlobalData(data Data) error {
	return c.hub.SetGlobalData(data)
}

// DataListenerCount reports how many data listeners this app has.
func (c *AppCenter) DataListenerCount() int {
	return c.hub.listenerCount(baseToApp(c.app))
}

// GlobalListenerCount reports how many global listeners this app has.
func (c *AppCenter) GlobalListenerCount() int {
	n := 0
	if ch, ok := c.hub.channels[globalChannel]; ok {
		for _, e := range ch.listeners {
			if e.app == c.app {
				n++
			}
		}
	}
	return n
}

func deepCopy(data Data) (Data, error) {
	if data == nil {
		return Data{}, nil
	}
	encoded, err := sonic.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("data is not JSON serializable: %w", err)
	}
	var out Data
	if err := sonic.Unmarshal(encoded, &out); err != nil {
		return nil, fmt.Errorf("failed to decode data: %w", err)
	}
	return out, nil
}
