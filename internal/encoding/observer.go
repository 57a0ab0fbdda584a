package encoding

import (
	"context"
	"log/slog"
)

// EventKind names a defaulting decision taken instead of failing.
type EventKind string

// Event kinds.
const (
	// KindUnseenCategory: a value outside the known categories was encoded as the fallback.
	KindUnseenCategory EventKind = "unseen_category"
	// KindMissingEncoder: a categorical field has no encoder; encoded as 0.
	KindMissingEncoder EventKind = "missing_encoder"
	// KindDecodeOutOfRange: a code outside the encoder's range was decoded to its number.
	KindDecodeOutOfRange EventKind = "decode_out_of_range"
	// KindDefaultFilled: an absent field received its declared default.
	KindDefaultFilled EventKind = "default_filled"
	// KindMissingField: a known feature column was absent and zero-filled.
	KindMissingField EventKind = "missing_field"
	// KindSchemaDrift: a schema column has no known source and was zero-filled.
	KindSchemaDrift EventKind = "schema_drift"
	// KindUnknownField: a request field matched no known alias and was dropped.
	KindUnknownField EventKind = "unknown_field"
)

// Event describes one defaulting decision.
type Event struct {
	Kind     EventKind
	Field    string
	Value    string
	Resolved string
}

// Observer receives every fallback and default decision taken while encoding
// or aligning features. Implementations must be safe for concurrent use.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }

// LogObserver logs events through the default slog logger. Drift and missing
// encoders are warnings; routine defaults are debug.
type LogObserver struct{}

// Observe logs e.
func (LogObserver) Observe(e Event) {
	level := slog.LevelDebug
	switch e.Kind {
	case KindMissingEncoder, KindSchemaDrift, KindDecodeOutOfRange:
		level = slog.LevelWarn
	case KindUnseenCategory:
		level = slog.LevelInfo
	}
	slog.Log(context.Background(), level, "feature fallback applied",
		"kind", string(e.Kind),
		"field", e.Field,
		"value", e.Value,
		"resolved", e.Resolved)
}
