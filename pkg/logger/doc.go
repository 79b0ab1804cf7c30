// Package logger builds configured slog.Logger instances and provides typed
// attribute helpers for the keys this service logs with.
//
// The factory produces JSON output for production log aggregation and text
// output for development, and can inject request-scoped values (request ID,
// environment ID) from context on every record via extractors.
//
// Usage:
//
//	log := logger.New(
//		logger.WithProduction("flagkit"),
//		logger.WithContextValue("request_id", requestIDKey{}),
//	)
//	log.Info("flag evaluated",
//		logger.FlagKey("dark_mode"),
//		logger.UserID("u1"),
//	)
//
// The typed helpers keep attribute keys consistent across packages so log
// queries do not have to account for spelling drift.
package logger
