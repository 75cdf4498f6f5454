package tracing

// A Tracer can collect controller traces.
type Tracer interface {
	// StartService is called when a controller grants a level.
	StartService(s Service)

	// EndService is called when the grant is acknowledged. The service
	// carries the start fields it was started with.
	EndService(s Service)

	// RecordEvent is called for every pin change, grants and acknowledges
	// included.
	RecordEvent(e Event)
}
