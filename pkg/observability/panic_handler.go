package observability

import "runtime/debug"

// RecoverPanic logs a recovered panic with its stack and then runs onPanic,
// which may be nil. It must be deferred directly:
//
//	defer observability.RecoverPanic(logger, "GET /rbac/roles", func() {
//		writeInternalError(w)
//	})
//
// The panic is not re-raised.
func RecoverPanic(logger *Logger, where string, onPanic func()) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"panic": r,
			"stack": string(debug.Stack()),
			"where": where,
		}).Error("panic recovered")
		if onPanic != nil {
			onPanic()
		}
	}
}
