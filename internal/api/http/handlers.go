package http

import (
	"context"
	"net/http"
	"time"

	"github.com/GriffinCanCode/microhost/internal/host"
	"github.com/GriffinCanCode/microhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/microhost/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/microhost/internal/interact"
	"github.com/GriffinCanCode/microhost/internal/shared/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Version is reported by the root endpoint.
const Version = "0.1.0"

// Handlers contains all HTTP handlers.
type Handlers struct {
	host    *host.Host
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	logger  *zap.Logger
	started time.Time
}

// NewHandlers creates a new handler set. metrics and tracer may be nil.
func NewHandlers(h *host.Host, metrics *monitoring.Metrics, tracer *tracing.Tracer, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		host:    h,
		metrics: metrics,
		tracer:  tracer,
		logger:  logger.Named("api"),
		started: time.Now(),
	}
}

// Register mounts every handler on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	r.GET("/apps", h.ListApps)
	r.POST("/apps", h.CreateApp)
	r.GET("/apps/:name", h.GetApp)
	r.POST("/apps/:name/mount", h.MountApp)
	r.POST("/apps/:name/unmount", h.UnmountApp)
	r.POST("/apps/:name/exec", h.Exec)
	r.POST("/apps/:name/eval", h.Eval)
	r.GET("/apps/:name/globals/:key", h.Global)
	r.POST("/apps/:name/data", h.SetData)
	r.GET("/apps/:name/data", h.GetData)
	r.POST("/unmount-all", h.UnmountAll)

	r.POST("/global-data", h.SetGlobalData)
	r.GET("/global-data", h.GetGlobalData)

	r.POST("/page/navigate", h.Navigate)
	r.POST("/page/back", h.Back)
	r.GET("/page/globals/:key", h.PageGlobal)
	r.GET("/page/console", h.Console)
	r.GET("/page/requests", h.Requests)

	r.GET("/metrics/json", h.MetricsSummary)
}

// trace wraps a host call in a span when tracing is enabled.
func (h *Handlers) trace(c *gin.Context, op, app string, fn func(context.Context) error) error {
	if h.tracer == nil {
		return fn(c.Request.Context())
	}
	return h.tracer.Trace(c.Request.Context(), op, app, fn)
}

// Root reports service identity.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "microhost",
		"version": Version,
	})
}

// Health reports host statistics.
func (h *Handlers) Health(c *gin.Context) {
	stats, err := h.host.Stats()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"started": h.host.Started(),
		"stats":   stats,
	})
}

// ListApps lists every app, optionally filtered by ?state=.
func (h *Handlers) ListApps(c *gin.Context) {
	apps := h.host.Apps()
	if state := c.Query("state"); state != "" {
		filtered := make([]*types.Instance, 0, len(apps))
		for _, a := range apps {
			if string(a.State) == state {
				filtered = append(filtered, a)
			}
		}
		apps = filtered
	}
	c.JSON(http.StatusOK, gin.H{
		"apps":   apps,
		"active": h.host.ActiveApps(c.Query("exclude_hidden") == "true"),
	})
}

// CreateApp registers an app from its markup.
func (h *Handlers) CreateApp(c *gin.Context) {
	var req types.CreateAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	instance, err := h.host.CreateApp(host.CreateOptions{
		Name:                req.Name,
		URL:                 req.URL,
		HTML:                req.HTML,
		UMD:                 req.UMD,
		KeepAlive:           req.KeepAlive,
		DisableSandbox:      req.DisableSandbox,
		DisableMemoryRouter: req.DisableMemoryRouter,
		DisablePatchRequest: req.DisablePatchRequest,
		KeepRouterState:     req.KeepRouterState,
		BaseRoute:           req.BaseRoute,
		DefaultPage:         req.DefaultPage,
	})
	if err != nil {
		failWith(c, err, instance)
		return
	}
	c.JSON(http.StatusCreated, instance)
}

// GetApp returns one app.
func (h *Handlers) GetApp(c *gin.Context) {
	instance, ok := h.host.App(c.Param("name"))
	if !ok {
		fail(c, host.ErrAppNotFound)
		return
	}
	c.JSON(http.StatusOK, instance)
}

// MountApp mounts or shows an app.
func (h *Handlers) MountApp(c *gin.Context) {
	name := c.Param("name")
	var instance *types.Instance
	err := h.trace(c, "host.mount", name, func(ctx context.Context) error {
		var err error
		instance, err = h.host.Mount(ctx, name)
		return err
	})
	if err != nil {
		failWith(c, err, instance)
		return
	}
	c.JSON(http.StatusOK, instance)
}

// UnmountApp unmounts, hides or destroys an app. The body is optional.
func (h *Handlers) UnmountApp(c *gin.Context) {
	var req types.UnmountRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	name := c.Param("name")
	var instance *types.Instance
	err := h.trace(c, "host.unmount", name, func(ctx context.Context) error {
		var err error
		instance, err = h.host.Unmount(ctx, name, host.UnmountOptions{
			Destroy:         req.Destroy,
			ClearAliveState: req.ClearAliveState,
		})
		return err
	})
	if err != nil {
		failWith(c, err, instance)
		return
	}
	c.JSON(http.StatusOK, instance)
}

// UnmountAll unmounts every app.
func (h *Handlers) UnmountAll(c *gin.Context) {
	var req types.UnmountRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	err := h.host.UnmountAll(host.UnmountOptions{Destroy: req.Destroy, ClearAliveState: req.ClearAliveState})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "apps": h.host.AllApps()})
}

// Exec runs a script inside an app.
func (h *Handlers) Exec(c *gin.Context) {
	h.script(c, "host.exec", h.host.Exec)
}

// Eval evaluates an expression inside an app.
func (h *Handlers) Eval(c *gin.Context) {
	h.script(c, "host.eval", h.host.Eval)
}

func (h *Handlers) script(c *gin.Context, op string, run func(context.Context, string, string) (types.ScriptResult, error)) {
	var req types.ScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	name := c.Param("name")
	var result types.ScriptResult
	err := h.trace(c, op, name, func(ctx context.Context) error {
		var err error
		result, err = run(ctx, name, req.Code)
		return err
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Global reads a global seen by an app.
func (h *Handlers) Global(c *gin.Context) {
	result, err := h.host.Global(c.Param("name"), c.Param("key"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SetData sends data from the base to an app.
func (h *Handlers) SetData(c *gin.Context) {
	var data interact.Data
	if err := c.ShouldBindJSON(&data); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.host.SetData(c.Param("name"), data); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetData returns what an app dispatched to the base.
func (h *Handlers) GetData(c *gin.Context) {
	data, err := h.host.Data(c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// SetGlobalData sends data to every app.
func (h *Handlers) SetGlobalData(c *gin.Context) {
	var data interact.Data
	if err := c.ShouldBindJSON(&data); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.host.SetGlobalData(data); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetGlobalData returns the current global data.
func (h *Handlers) GetGlobalData(c *gin.Context) {
	data, err := h.host.GlobalData()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// Navigate pushes a URL on the real history.
func (h *Handlers) Navigate(c *gin.Context) {
	var req types.NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	href, err := h.host.Navigate(req.URL)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"href": href})
}

// Back moves the real history one step back.
func (h *Handlers) Back(c *gin.Context) {
	href, err := h.host.Back()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"href": href})
}

// PageGlobal reads a global of the real window.
func (h *Handlers) PageGlobal(c *gin.Context) {
	result, err := h.host.PageGlobal(c.Param("key"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
