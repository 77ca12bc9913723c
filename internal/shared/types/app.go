package types

import "time"

// State represents app lifecycle states.
type State string

const (
	StateCreated     State = "created"
	StateLoading     State = "loading"
	StateLoadFailed  State = "load_failed"
	StateBeforeMount State = "before_mount"
	StateMounting    State = "mounting"
	StateMounted     State = "mounted"
	StateUnmount     State = "unmount"
)

// KeepAliveState tracks a kept-alive app that was unmounted without destroy.
type KeepAliveState string

const (
	KeepAliveNone   KeepAliveState = ""
	KeepAliveShow   KeepAliveState = "keep_alive_show"
	KeepAliveHidden KeepAliveState = "keep_alive_hidden"
)

// Instance represents one registered sub-application.
type Instance struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	URL       string         `json:"url"`
	State     State          `json:"state"`
	KeepAlive KeepAliveState `json:"keep_alive_state,omitempty"`
	Error     string         `json:"error,omitempty"`

	UMD                 bool   `json:"umd"`
	KeepAliveEnabled    bool   `json:"keep_alive"`
	Sandbox             bool   `json:"sandbox"`
	MemoryRouter        bool   `json:"memory_router"`
	DisablePatchRequest bool   `json:"disable_patch_request,omitempty"`
	KeepRouterState     bool   `json:"keep_router_state,omitempty"`
	BaseRoute           string `json:"base_route,omitempty"`
	DefaultPage         string `json:"default_page,omitempty"`

	Mounts    int       `json:"mounts"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Hidden reports whether a kept-alive app is in the background.
func (i *Instance) Hidden() bool { return i.KeepAlive == KeepAliveHidden }

// Stats contains app registry statistics.
type Stats struct {
	TotalApps   int `json:"total_apps"`
	MountedApps int `json:"mounted_apps"`
	HiddenApps  int `json:"hidden_apps"`
	FailedApps  int `json:"failed_apps"`
}

// Event is a host lifecycle notification delivered to stream subscribers.
type Event struct {
	ID   string                 `json:"id"`
	Type string                 `json:"type"`
	App  string                 `json:"app,omitempty"`
	Data map[string]interface{} `json:"data,omitempty"`
	Time time.Time              `json:"time"`
}
