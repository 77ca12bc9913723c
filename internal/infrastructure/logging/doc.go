// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components take a *zap.Logger and name themselves (page, sandbox,
// interact, host, http). Messages about one sub-application carry an
// "app" field; ForApp builds such a logger.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "8000"))
//	logger.ForApp("shop").Warn("script failed", zap.Error(err))
package logging
