/*
Package tracing provides lightweight request tracing for the control API.

Each HTTP request gets a span; host operations started by a handler
(mount, unmount, script runs) open child spans through Trace. Finished spans
are logged through zap by a background collector.

# Usage

	tracer := tracing.New("microhost", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	err := tracer.Trace(ctx, "host.mount", name, func(ctx context.Context) error {
		_, err := h.Mount(ctx, name)
		return err
	})

# Trace Format

Traces use HTTP headers for propagation:
- X-Trace-ID: Unique identifier for entire request flow
- X-Span-ID: Identifier for current operation
*/
package tracing
