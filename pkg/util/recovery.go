package util

import (
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// PanicHandler logs recovered panics with their stack traces.
type PanicHandler struct {
	logger *logrus.Logger
}

// NewPanicHandler creates a panic handler.
func NewPanicHandler(logger *logrus.Logger) *PanicHandler {
	return &PanicHandler{logger: logger}
}

// Recover is meant to be deferred at the top of a goroutine.
func (ph *PanicHandler) Recover(component string) {
	if r := recover(); r != nil {
		ph.logger.WithFields(logrus.Fields{
			"component":   component,
			"panic_value": r,
			"stack_trace": string(debug.Stack()),
		}).Error("Panic recovered")
	}
}

// SafeGo starts fn on a goroutine that survives panics.
func (ph *PanicHandler) SafeGo(component string, fn func()) {
	go func() {
		defer ph.Recover(component)
		fn()
	}()
}
