package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTracer(t *testing.T) (*Tracer, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return New("microhost", zap.New(core)), logs
}

func TestChildSpansShareTrace(t *testing.T) {
	tracer, _ := newTracer(t)
	defer tracer.Close()

	parent, ctx := tracer.StartSpan(context.Background(), "request")
	child, childCtx := tracer.StartSpan(ctx, "host.mount")

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)
	assert.Equal(t, child.SpanID, GetSpanID(childCtx))
	assert.Empty(t, parent.ParentID)
}

func TestTraceLogsSpans(t *testing.T) {
	tracer, logs := newTracer(t)

	err := tracer.Trace(context.Background(), "host.exec", "shop", func(context.Context) error {
		return errors.New("script 0 failed")
	})
	require.Error(t, err)
	require.NoError(t, tracer.Trace(context.Background(), "host.mount", "shop", func(context.Context) error { return nil }))
	tracer.Close()

	failed := logs.FilterMessage("span completed with error").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "host.exec", failed[0].ContextMap()["operation"])
	assert.Equal(t, "shop", failed[0].ContextMap()["app"])
	assert.Equal(t, 1, logs.FilterMessage("span completed").Len())
}

func TestSubmitAfterClose(t *testing.T) {
	tracer, _ := newTracer(t)
	tracer.Close()
	span, _ := tracer.StartSpan(context.Background(), "late")
	assert.NotPanics(t, func() { tracer.Submit(span) })
	assert.NotPanics(t, tracer.Close)
}

func TestHTTPMiddlewarePropagates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, logs := newTracer(t)
	router := gin.New()
	router.Use(HTTPMiddleware(tracer))

	var seen TraceID
	router.POST("/apps/:name/mount", func(c *gin.Context) {
		seen = GetTraceID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/apps/shop/mount", nil)
	req.Header.Set(TraceHeader, "trace-from-client")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	tracer.Close()

	assert.Equal(t, TraceID("trace-from-client"), seen)
	assert.Equal(t, "trace-from-client", w.Header().Get(TraceHeader))
	assert.NotEmpty(t, w.Header().Get(SpanHeader))

	spans := logs.FilterMessage("span completed").All()
	require.Len(t, spans, 1)
	assert.Equal(t, "POST /apps/:name/mount", spans[0].ContextMap()["operation"])
	assert.Equal(t, "200", spans[0].ContextMap()["http.status"])
	assert.Equal(t, "shop", spans[0].ContextMap()["app"])
}
