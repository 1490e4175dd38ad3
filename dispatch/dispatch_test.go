package dispatch_test

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zerbitx/lyre/definition"
	"github.com/zerbitx/lyre/dispatch"
	"github.com/zerbitx/lyre/events"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func parse(doc string) *definition.Definition {
	defs, err := definition.Parse("test.lyre", []byte(doc))
	Expect(err).ShouldNot(HaveOccurred())
	Expect(defs).To(HaveLen(1))

	return defs[0]
}

var _ = Describe("Engine", func() {
	var (
		rec    *recorder
		engine *dispatch.Engine
		ctx    context.Context
	)

	BeforeEach(func() {
		logger := logrus.New()
		logger.SetOutput(io.Discard)

		rec = &recorder{}
		engine = dispatch.New(rec, logger)
		ctx = context.Background()
	})

	Context("Without behavior", func() {
		It("Answers pong every time", func() {
			def := parse(`ping: {method: GET, path: /ping, response: {status: 200, body: pong, contentType: text/plain}}`)

			for i := 0; i < 5; i++ {
				started := time.Now()
				res := engine.Handle(ctx, def, nil)

				Expect(time.Since(started)).To(BeNumerically("<", 50*time.Millisecond))
				Expect(res).To(Equal(dispatch.Result{Status: 200, Body: []byte("pong"), ContentType: "text/plain"}))
			}

			Expect(rec.Len()).To(Equal(5))
			Expect(rec.events[0].Message).To(Equal(dispatch.CalledMessage))
			Expect(rec.events[0].Path).To(Equal("/ping"))
			Expect(rec.events[0].Method).To(Equal(http.MethodGet))
		})
	})

	Context("With a match body", func() {
		var def *definition.Definition

		BeforeEach(func() {
			def = parse(`
order:
  method: POST
  path: /orders
  match: X
  response: {status: 201, body: created}
  behavior:
    countdown: {calls: 1, status: 503}
    idle: 300
`)
		})

		It("Rejects other bodies with an empty 406 without touching the countdown or waiting", func() {
			started := time.Now()
			res := engine.Handle(ctx, def, []byte("Y"))

			Expect(time.Since(started)).To(BeNumerically("<", 100*time.Millisecond))
			Expect(res.Status).To(Equal(http.StatusNotAcceptable))
			Expect(res.Body).To(BeEmpty())
			Expect(def.Countdown.Remaining()).To(BeEquivalentTo(1))
			Expect(rec.Len()).To(Equal(1))
		})

		It("Accepts the exact body", func() {
			res := engine.Handle(ctx, def, []byte("X"))
			Expect(res.Status).To(Equal(http.StatusServiceUnavailable))

			res = engine.Handle(ctx, def, []byte("X"))
			Expect(res.Status).To(Equal(http.StatusCreated))
			Expect(string(res.Body)).To(Equal("created"))
		})
	})

	Context("With a countdown", func() {
		const calls = 3
		var def *definition.Definition

		BeforeEach(func() {
			def = parse(`
flaky:
  method: GET
  path: /flaky
  response: {status: 200, body: ok}
  behavior:
    countdown: {calls: 3, status: 503}
    idle: 200
`)
		})

		It("Overrides the first calls then settles", func() {
			for i := 0; i < calls; i++ {
				started := time.Now()
				res := engine.Handle(ctx, def, nil)

				Expect(time.Since(started)).To(BeNumerically("<", 100*time.Millisecond))
				Expect(res.Status).To(Equal(http.StatusServiceUnavailable))
				Expect(string(res.Body)).To(Equal("Service Unavailable"))
			}

			for i := 0; i < 2; i++ {
				res := engine.Handle(ctx, def, nil)
				Expect(res.Status).To(Equal(http.StatusOK))
				Expect(string(res.Body)).To(Equal("ok"))
			}

			Expect(rec.Len()).To(Equal(calls + 2))
		})

		It("Lets exactly the configured calls through under concurrency", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			statuses := map[int]int{}
			start := make(chan struct{})

			for i := 0; i < calls+5; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start

					res := engine.Handle(ctx, def, nil)

					mu.Lock()
					statuses[res.Status]++
					mu.Unlock()
				}()
			}

			close(start)
			wg.Wait()

			Expect(statuses).To(Equal(map[int]int{
				http.StatusServiceUnavailable: calls,
				http.StatusOK:                 5,
			}))
			Expect(rec.Len()).To(Equal(calls + 5))
		})
	})

	Context("With an idle delay", func() {
		var def *definition.Definition

		BeforeEach(func() {
			def = parse(`slow: {method: GET, path: /slow, response: {status: 200, body: eventually}, behavior: {idle: 200}}`)
		})

		It("Waits before answering", func() {
			started := time.Now()
			res := engine.Handle(ctx, def, nil)

			Expect(time.Since(started)).To(BeNumerically(">=", 200*time.Millisecond))
			Expect(res).To(Equal(dispatch.Result{Status: 200, Body: []byte("eventually"), ContentType: definition.DefaultContentType}))
		})

		It("Answers early when cancelled", func() {
			cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()

			started := time.Now()
			res := engine.Handle(cctx, def, nil)

			Expect(time.Since(started)).To(BeNumerically("<", 200*time.Millisecond))
			Expect(res.Status).To(Equal(http.StatusOK))
			Expect(string(res.Body)).To(Equal("eventually"))
		})
	})
})
