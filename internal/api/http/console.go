package http

import (
	"net/http"

	"github.com/GriffinCanCode/microhost/internal/page"
	"github.com/gin-gonic/gin"
)

// Console returns captured console output, optionally filtered by ?app= and ?level=.
func (h *Handlers) Console(c *gin.Context) {
	entries, err := h.host.Console()
	if err != nil {
		fail(c, err)
		return
	}

	app, level := c.Query("app"), c.Query("level")
	filtered := make([]page.LogEntry, 0, len(entries))
	for _, e := range entries {
		if app != "" && e.App != app {
			continue
		}
		if level != "" && e.Level != level {
			continue
		}
		filtered = append(filtered, e)
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": filtered,
		"total":   len(entries),
	})
}

// Requests returns network calls scripts attempted.
func (h *Handlers) Requests(c *gin.Context) {
	requests, err := h.host.Requests()
	if err != nil {
		fail(c, err)
		return
	}
	if kind := c.Query("kind"); kind != "" {
		filtered := requests[:0]
		for _, r := range requests {
			if r.Kind == kind {
				filtered = append(filtered, r)
			}
		}
		requests = filtered
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}
