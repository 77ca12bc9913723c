// Package server assembles the microhost process.
//
// NewServer creates the page runtime, the host with its plugin
// declarations, metrics, tracing and the Gin router with every API route.
// A background loop drives page timers at the configured interval.
//
// Example Usage:
//
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer srv.Close()
//	err = srv.Run(ctx)
package server
