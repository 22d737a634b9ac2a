package observability

import "runtime/debug"

// RecoverPanic logs a recovered panic with its stack and swallows it.
// Deferred around background jobs (token cleanup, audit retention) so
// a panicking job never takes the API down with it.
//
//	defer observability.RecoverPanic(logger, "token cleanup")
func RecoverPanic(logger *Logger, job string) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"panic": r,
			"job":   job,
			"stack": string(debug.Stack()),
		}).Error("panic recovered")
	}
}
