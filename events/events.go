package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type (
	// Event is a record of something that happened to an endpoint
	Event struct {
		ID        uuid.UUID `json:"id"`
		Path      string    `json:"endpointPath"`
		Method    string    `json:"verb"`
		Message   string    `json:"message"`
		Timestamp time.Time `json:"timestamp"`
	}

	// Sink accepts events. Publish must not block for long, it runs on the request path.
	Sink interface {
		Publish(Event)
	}

	// SinkFunc adapts a function to a Sink
	SinkFunc func(Event)

	// Multi publishes to every sink in order
	Multi []Sink

	// LogSink writes events through a logger
	LogSink struct {
		logger logrus.FieldLogger
	}
)

// New returns an event stamped with a fresh id and the current time
func New(method, path, message string) Event {
	return Event{
		ID:        uuid.New(),
		Path:      path,
		Method:    method,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Publish implements Sink
func (f SinkFunc) Publish(e Event) {
	f(e)
}

// Publish implements Sink
func (m Multi) Publish(e Event) {
	for _, sink := range m {
		sink.Publish(e)
	}
}

// NewLogSink returns a sink logging to l, or to the standard logger when l is nil
func NewLogSink(l logrus.FieldLogger) *LogSink {
	if l == nil {
		l = logrus.StandardLogger()
	}

	return &LogSink{logger: l}
}

// Publish implements Sink
func (s *LogSink) Publish(e Event) {
	s.logger.WithFields(logrus.Fields{
		"event":     e.ID.String(),
		"path":      e.Path,
		"method":    e.Method,
		"timestamp": e.Timestamp.Format(time.RFC3339Nano),
	}).Info(e.Message)
}
