/*
Package monitoring provides Prometheus metrics for microhost.

# Overview

Metrics tracks the HTTP control API, sandbox activity, app lifecycle
transitions, script execution and WebSocket streaming. It satisfies the
host's observer interface, so the host reports sandbox starts, escaped
keys and state changes directly.

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	defer metrics.Close()

	router.Use(monitoring.Middleware(metrics))
	h := host.New(host.Config{Page: p, Logger: log, Metrics: metrics})

Tests pass a fresh prometheus.NewRegistry() to avoid duplicate registration.

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
