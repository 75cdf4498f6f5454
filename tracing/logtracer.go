package tracing

import "log"

// LogTracer prints every event and every finished service.
type LogTracer struct {
	logger *log.Logger
}

// NewLogTracer creates a LogTracer. A nil logger uses the standard logger.
func NewLogTracer(logger *log.Logger) *LogTracer {
	if logger == nil {
		logger = log.Default()
	}

	return &LogTracer{logger: logger}
}

// StartService does nothing. The grant is printed as an event.
func (t *LogTracer) StartService(_ Service) {
	// Do nothing
}

// EndService prints the service.
func (t *LogTracer) EndService(s Service) {
	t.logger.Printf("%d: %s: service level %d acked as %d after %d cycles",
		s.EndTime, s.Where, s.Level, s.AckLevel, s.Duration())
}

// RecordEvent prints the event.
func (t *LogTracer) RecordEvent(e Event) {
	t.logger.Printf("%d: %s: %s %d", e.Time, e.Where, e.What, e.Value)
}
