package errors

import (
	"fmt"
	"log/slog"
)

// Warning is a non-fatal finding surfaced to the caller alongside a result.
type Warning struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// String formats the warning like an AppError
func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s", w.Type, w.Message)
}

// NewDataIntegrityWarning creates a warning about data quality that does not stop the run.
func NewDataIntegrityWarning(message string, context map[string]interface{}) Warning {
	if context == nil {
		context = make(map[string]interface{})
	}
	return Warning{
		Type:    ErrTypeDataIntegrity,
		Message: message,
		Context: context,
	}
}

// LogValue implements slog.LogValuer
func (w Warning) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("type", string(w.Type)),
		slog.String("message", w.Message),
	}
	for k, v := range w.Context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return slog.GroupValue(attrs...)
}
