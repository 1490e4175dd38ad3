package dispatch

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zerbitx/lyre/definition"
	"github.com/zerbitx/lyre/events"
)

// CalledMessage is published for every request that reaches an endpoint
const CalledMessage = "Endpoint called."

type (
	// Result is what the transport writes back to the client
	Result struct {
		Status      int
		Body        []byte
		ContentType string
	}

	// Engine answers requests for matched definitions
	Engine struct {
		sink   events.Sink
		logger logrus.FieldLogger
	}
)

// New returns an engine publishing to sink
func New(sink events.Sink, logger logrus.FieldLogger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	if sink == nil {
		sink = events.Multi{}
	}

	return &Engine{sink: sink, logger: logger}
}

// Handle produces the response for one request against def.
// A body mismatch answers 406, an armed countdown answers its override status,
// otherwise the configured response is returned after the idle delay.
// Cancelling ctx cuts the idle delay short without failing the request.
func (e *Engine) Handle(ctx context.Context, def *definition.Definition, body []byte) Result {
	e.sink.Publish(events.New(def.Method, def.Path, CalledMessage))

	log := e.logger.WithFields(logrus.Fields{
		"name":   def.Name,
		"path":   def.Path,
		"method": def.Method,
	})

	if def.Match != "" && def.Match != string(body) {
		log.Debug("request body rejected")
		return Result{Status: http.StatusNotAcceptable}
	}

	if def.Countdown.Take() {
		log.WithField("remaining", def.Countdown.Remaining()).Debug("countdown")
		return Result{
			Status:      def.Countdown.Status,
			Body:        []byte(http.StatusText(def.Countdown.Status)),
			ContentType: "text/plain",
		}
	}

	if def.Idle > 0 {
		idle(ctx, def.Idle)
	}

	return Result{
		Status:      def.Response.Status,
		Body:        []byte(def.Response.Body),
		ContentType: def.Response.ContentType,
	}
}

// idle waits for d or until ctx is done, whichever comes first
func idle(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
