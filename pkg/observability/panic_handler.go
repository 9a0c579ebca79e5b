package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers a panic, logging the value and stack trace. Meant
// for defer at the top of long-lived background goroutines so one bad
// cycle cannot take down the process. The panic is not re-raised.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"panic":   fmt.Sprintf("%v", r),
			"stack":   string(debug.Stack()),
			"context": context,
		}).Error("Recovered from panic")
	}
}
