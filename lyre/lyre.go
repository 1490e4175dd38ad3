package lyre

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zerbitx/lyre/definition"
	"github.com/zerbitx/lyre/dispatch"
	"github.com/zerbitx/lyre/encode"
	"github.com/zerbitx/lyre/registry"
)

type (
	// Server routes requests to the registered definitions and serves the admin endpoints
	Server struct {
		app            *fiber.App
		registry       *registry.Registry
		engine         *dispatch.Engine
		basePath       string
		configBasePath string
		logger         logrus.FieldLogger
		port           int
		host           string
		ctx            context.Context
		cancel         context.CancelFunc
	}

	config struct {
		port           int
		basePath       string
		configBasePath string
		host           string
		logger         logrus.FieldLogger
	}

	// Option is a function that can modify a default config
	Option func(c *config)

	// Listing describes a registered endpoint on the admin endpoint
	Listing struct {
		Name      string              `json:"name" yaml:"name"`
		Source    string              `json:"source" yaml:"source"`
		Endpoint  definition.Document `json:"endpoint" yaml:"endpoint"`
		Remaining *int64              `json:"remainingCalls,omitempty" yaml:"remainingCalls,omitempty"`
	}
)

// APISourcePrefix marks definitions posted to the admin endpoint rather than loaded from disk
const APISourcePrefix = "api:"

// New returns a new server with a default setup on 127.0.0.1:9000
func New(reg *registry.Registry, engine *dispatch.Engine, options ...Option) *Server {
	c := &config{
		port:           9000,
		logger:         logrus.StandardLogger(),
		host:           "127.0.0.1",
		configBasePath: "/lyreconfig",
	}

	for _, applyOption := range options {
		applyOption(c)
	}

	app := fiber.New(&fiber.Settings{
		ServerHeader:          "Lyre",
		DisableStartupMessage: true,
	})

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		app:            app,
		registry:       reg,
		engine:         engine,
		logger:         c.logger,
		port:           c.port,
		host:           c.host,
		basePath:       strings.TrimSuffix(c.basePath, "/"),
		configBasePath: c.configBasePath,
		ctx:            ctx,
		cancel:         cancel,
	}

	s.initConfigEndpoints()
	app.Use(fiber.Handler(s.serve))

	return s
}

// App exposes the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens until the server is shut down
func (s *Server) Start() error {
	errc := make(chan error)

	go func() {
		s.logger.WithFields(logrus.Fields{"host": s.host, "port": s.port, "basePath": s.basePath}).Info("main")
		errc <- s.app.Listen(fmt.Sprintf("%s:%d", s.host, s.port))
	}()

	return <-errc
}

// Shutdown ends pending idle delays and gracefully shuts down the app
func (s *Server) Shutdown() error {
	s.cancel()

	if shutdownErr := s.app.Shutdown(); shutdownErr != nil {
		return fmt.Errorf("failed to shutdown app %w", shutdownErr)
	}

	return nil
}

// WithLogger overrides the default logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithHost sets the host
func WithHost(host string) Option {
	return func(c *config) {
		c.host = host
	}
}

// WithPort sets the port
func WithPort(port int) Option {
	return func(c *config) {
		c.port = port
	}
}

// WithBasePath prefixes every mocked path
func WithBasePath(basePath string) Option {
	return func(c *config) {
		c.basePath = basePath
	}
}

// WithConfigBasePath sets the base path to post and look up definitions
func WithConfigBasePath(basePath string) Option {
	return func(c *config) {
		c.configBasePath = basePath
	}
}

func (s *Server) serve(c *fiber.Ctx) {
	path := c.Path()
	method := c.Method()

	if s.basePath != "" {
		if path != s.basePath && !strings.HasPrefix(path, s.basePath+"/") {
			c.SendStatus(http.StatusNotFound)
			return
		}

		path = "/" + strings.TrimPrefix(strings.TrimPrefix(path, s.basePath), "/")
	}

	def, ok := s.registry.Match(method, path)
	if !ok {
		s.logger.WithFields(logrus.Fields{"path": path, "method": method}).Debug("no endpoint")
		c.SendStatus(http.StatusNotFound)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"name":   def.Name,
		"path":   path,
		"method": method,
	}).Debug("serving")

	res := s.engine.Handle(s.ctx, def, []byte(c.Body()))

	c.Status(res.Status)

	if res.ContentType != "" {
		c.Set("Content-Type", res.ContentType)
	}

	if len(res.Body) > 0 {
		c.SendBytes(res.Body)
	}
}

func (s *Server) initConfigEndpoints() {
	s.logger.
		WithFields(logrus.Fields{
			http.MethodPost:   s.configBasePath,
			http.MethodGet:    s.configBasePath,
			http.MethodDelete: s.configBasePath + "/:id",
		}).Debug("config endpoints")

	s.app.Post(s.configBasePath, func(c *fiber.Ctx) {
		id := uuid.New().String()
		source := APISourcePrefix + id

		defs, err := definition.Parse(source, []byte(c.Body()))
		if err != nil {
			s.logger.WithError(err).Error("failed to add definitions")
			c.Status(http.StatusBadRequest).Send(err.Error())
			return
		}

		s.registry.Replace(source, defs)

		keys := make([]string, 0, len(defs))
		for _, def := range defs {
			keys = append(keys, def.Key().String())
		}

		s.logger.WithFields(logrus.Fields{"source": source, "endpoints": len(defs)}).Info("added")

		c.Status(http.StatusCreated)
		c.Set("Content-Type", "application/json")

		if err := encode.JSONIndented(map[string]interface{}{"id": id, "endpoints": keys}, c.Fasthttp.Response.BodyWriter()); err != nil {
			s.logger.WithError(err).Error("Failed to encode response")
			c.SendStatus(http.StatusInternalServerError)
		}
	})

	s.app.Get(s.configBasePath, func(c *fiber.Ctx) {
		defs := s.registry.List()
		listings := make([]Listing, 0, len(defs))

		for _, def := range defs {
			l := Listing{Name: def.Name, Source: def.Source, Endpoint: def.Document()}

			if def.Countdown != nil {
				remaining := def.Countdown.Remaining()
				l.Remaining = &remaining
			}

			listings = append(listings, l)
		}

		enc, contentType := encode.ForFormat(c.Query("format"))
		c.Set("Content-Type", contentType)

		if err := enc(listings, c.Fasthttp.Response.BodyWriter()); err != nil {
			s.logger.WithError(err).Error("Failed to encode response")
			c.SendStatus(http.StatusInternalServerError)
		}
	})

	s.app.Delete(s.configBasePath+"/:id", func(c *fiber.Ctx) {
		source := APISourcePrefix + c.Params("id")

		for _, known := range s.registry.Sources() {
			if known == source {
				s.registry.RemoveSource(source)
				s.logger.WithField("source", source).Info("removed")
				c.SendStatus(http.StatusNoContent)
				return
			}
		}

		c.SendStatus(http.StatusNotFound)
	})
}
