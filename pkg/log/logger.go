package log

// Logger receives session events from the engine's components.
// Implementations must tolerate concurrent calls and return quickly; a slow
// sink delays the operation that produced the event.
type Logger interface {
	Log(event Event)
}

// NoopLogger drops every event. Usable as a zero value.
type NoopLogger struct{}

func (NoopLogger) Log(Event) {}

// MultiLogger fans one event stream out to several sinks, typically the
// console adapter plus a file log.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger combines the given sinks into one Logger.
func NewMultiLogger(sinks ...Logger) *MultiLogger {
	return &MultiLogger{sinks: sinks}
}

// Log forwards the event to every sink in order.
func (m *MultiLogger) Log(event Event) {
	for _, s := range m.sinks {
		s.Log(event)
	}
}

var (
	_ Logger = NoopLogger{}
	_ Logger = (*MultiLogger)(nil)
)
