// Package logging is the thin slog wrapper every component embeds,
// generalizing internal/composition/daemonservice/logging_schema.go
// from one hardcoded component name to one per caller.
package logging

import (
	"log/slog"
	"strings"
)

// Component is a scoped logger carrying its own name, mirroring the
// teacher's component-scoped logInfo/logWarn/recordErrorWithContext
// methods rather than a single process-wide facade.
type Component struct {
	name   string
	logger *slog.Logger
}

// New scopes logger to component name.
func New(logger *slog.Logger, name string) Component {
	if logger == nil {
		logger = slog.Default()
	}
	return Component{name: name, logger: logger}
}

func (c Component) Info(operation, message string, attrs ...any) {
	c.logger.Info(message, c.base(operation, attrs)...)
}

func (c Component) Warn(operation, message string, attrs ...any) {
	c.logger.Warn(message, c.base(operation, attrs)...)
}

func (c Component) Error(operation string, err error, attrs ...any) {
	if err == nil {
		return
	}
	base := c.base(operation, attrs)
	base = append(base, "error", err.Error())
	c.logger.Error("component error", base...)
}

func (c Component) base(operation string, attrs []any) []any {
	out := []any{
		"component", c.name,
		"operation", strings.TrimSpace(operation),
	}
	return append(out, attrs...)
}
