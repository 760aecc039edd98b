package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes session events to an slog.Logger. Useful for
// development when you want to see events in the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger. Errors log at Warn, everything
// else at Debug.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("category", event.Category.String()),
	}
	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("conn_id", event.ConnectionID))
	}
	if event.DeviceAddr != "" {
		attrs = append(attrs, slog.String("device", event.DeviceAddr))
	}

	level := slog.LevelDebug

	switch {
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Operation != nil:
		attrs = append(attrs,
			slog.String("kind", event.Operation.Kind),
			slog.String("outcome", event.Operation.Outcome),
		)
		if event.Operation.Value != nil {
			attrs = append(attrs, slog.Bool("value", *event.Operation.Value))
		}
		if event.Operation.DurationMS > 0 {
			attrs = append(attrs, slog.Int64("duration_ms", event.Operation.DurationMS))
		}
	case event.Credential != nil:
		attrs = append(attrs, slog.String("action", event.Credential.Action))
		if event.Credential.Fingerprint != "" {
			attrs = append(attrs, slog.String("fingerprint", event.Credential.Fingerprint))
		}
	case event.Error != nil:
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("error_context", event.Error.Context),
			slog.String("error_msg", event.Error.Message),
		)
	}

	a.logger.LogAttrs(context.Background(), level, "session", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
