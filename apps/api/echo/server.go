package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	"github.com/trezcool/schoolbus/core"
	"github.com/trezcool/schoolbus/core/tracking"
	"github.com/trezcool/schoolbus/services/feed"
)

// Deps are the Server dependencies, resolved by the DI container.
type Deps struct {
	dig.In

	Conf        *core.Config
	Logger      core.Logger
	TrackingSvc *tracking.Service
	// Reports persists the reports posted to the API; nil keeps them in memory only.
	Reports        feed.Repository `optional:"true"`
	Validate       *validator.Validate
	Translator     ut.Translator
	DisableReqLogs bool `optional:"true"`
}

type Server struct {
	deps     Deps
	app      *echo.Echo
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(deps Deps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs && !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	s.app.GET("/health", s.health)

	v1 := s.app.Group("/v1")
	registerTrackingAPI(v1, conf, s.deps)
}

// Start listens on the configured address. Any error other than a normal shutdown is sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the app to shut down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signaled
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}

// health fails, and shuts the API down, once the tracking loop is gone.
func (s *Server) health(ctx echo.Context) error {
	if _, err := s.deps.TrackingSvc.Stats(ctx.Request().Context()); err != nil {
		if errors.Cause(err) == tracking.ErrStopped {
			return core.NewShutdownError("tracking service stopped")
		}
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
