package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanicWithCallback recovers from a panic, logs it with its stack
// and runs callback. It must be called directly in a defer statement. The
// panic is not re-raised and callback only runs when one was recovered.
//
//	defer observability.RecoverPanicWithCallback(logger, "api server", cancel)
func RecoverPanicWithCallback(logger *Logger, where string, callback func()) {
	if r := recover(); r != nil {
		logger.WithField("panic", fmt.Sprint(r)).
			WithField("stack", string(debug.Stack())).
			WithField("context", where).
			Error("PANIC recovered")
		if callback != nil {
			callback()
		}
	}
}
