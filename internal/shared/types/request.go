package types

// CreateAppRequest registers a sub-application.
type CreateAppRequest struct {
	Name                string `json:"name" binding:"required"`
	URL                 string `json:"url" binding:"required"`
	HTML                string `json:"html" binding:"required"`
	UMD                 bool   `json:"umd"`
	KeepAlive           bool   `json:"keep_alive"`
	DisableSandbox      bool   `json:"disable_sandbox"`
	DisableMemoryRouter bool   `json:"disable_memory_router"`
	DisablePatchRequest bool   `json:"disable_patch_request"`
	KeepRouterState     bool   `json:"keep_router_state"`
	BaseRoute           string `json:"base_route"`
	DefaultPage         string `json:"default_page"`
}

// UnmountRequest configures an unmount.
type UnmountRequest struct {
	Destroy         bool `json:"destroy"`
	ClearAliveState bool `json:"clear_alive_state"`
}

// ScriptRequest carries code run inside an app.
type ScriptRequest struct {
	Code string `json:"code" binding:"required"`
}

// NavigateRequest pushes a URL on the real history.
type NavigateRequest struct {
	URL string `json:"url" binding:"required"`
}

// ScriptResult is the exported value of an evaluation.
type ScriptResult struct {
	Value interface{} `json:"value"`
	Type  string      `json:"type"`
}

// WSMessage is a message a stream client sends.
type WSMessage struct {
	Type string   `json:"type"`
	Apps []string `json:"apps,omitempty"`
}
