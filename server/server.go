// Package server exposes the dispatcher over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/speedfmt/fmtd/build"
	"github.com/speedfmt/fmtd/config"
	"github.com/speedfmt/fmtd/dispatch"
	intlog "github.com/speedfmt/fmtd/internal/log"
	"github.com/speedfmt/fmtd/metrics"
)

// shutdownTimeout bounds how long in-flight requests may run once shutdown
// has been requested.
const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg        *config.Config
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Metrics

	echo *echo.Echo
	log  *log.Logger
}

// New creates a Server which exposes the given dispatcher.
func New(cfg *config.Config, dispatcher *dispatch.Dispatcher, m *metrics.Metrics) *Server {
	logger := log.WithPrefix("server")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// funnel echo's own output through our logger
	e.Logger.SetOutput(&intlog.Writer{Log: logger, Level: log.DebugLevel})

	e.Use(middleware.Recover())

	// the service is called cross-origin by editors and local tooling, so we
	// allow any origin
	e.Use(middleware.CORS())

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug(
				"request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			)

			return nil
		},
	}))

	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		metrics:    m,
		echo:       e,
		log:        logger,
	}

	s.routes()

	return s
}

func (s *Server) routes() {
	s.echo.GET("/", s.handleIndex)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/formatters", s.handleFormatters)
	s.echo.POST("/format", s.handleFormat)
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
}

// Handler returns the underlying http.Handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start runs the server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		s.log.Infof("listening on %s", s.cfg.ListenAddr())

		if err := s.echo.Start(s.cfg.ListenAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "failed to start server")
		}

		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()

		s.log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return errors.Wrap(s.echo.Shutdown(shutdownCtx), "failed to shut down server")
	})

	return eg.Wait()
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:  "healthy",
		Service: build.Name,
		Version: build.Version,
	})
}

type formatterInfo struct {
	Name      string   `json:"name"`
	Command   string   `json:"command"`
	Languages []string `json:"languages,omitempty"`
	Includes  []string `json:"includes,omitempty"`
}

func (s *Server) handleFormatters(c echo.Context) error {
	formatters := s.dispatcher.Formatters()

	infos := make([]formatterInfo, 0, len(formatters))
	for _, f := range formatters {
		infos = append(infos, formatterInfo{
			Name:      f.Name(),
			Command:   f.Command(),
			Languages: f.Languages(),
			Includes:  f.Includes(),
		})
	}

	return c.JSON(http.StatusOK, infos)
}
