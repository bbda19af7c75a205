// Package logging provides structured logging for Garden Core.
//
// It wraps the standard library's log/slog with configuration-driven
// handler selection (JSON or text), level filtering, and default
// service/version attributes on every record.
//
// Components derive their own loggers with With:
//
//	gwLog := logger.With("component", "gateway")
//	gwLog.Info("telemetry stored", "device", mac)
package logging
