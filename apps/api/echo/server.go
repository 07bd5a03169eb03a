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

	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/attendance"
	"github.com/trezcool/absensi/core/export"
	"github.com/trezcool/absensi/core/roster"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Clock          core.Clock
		Ledger         *attendance.Ledger
		Aggregator     *attendance.Aggregator
		Roster         *roster.Service
		Exporter       *export.Service
		Files          core.FileStorage
		Photos         roster.PhotoProcessor
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool
	}

	Server struct {
		app      *echo.Echo
		address  string
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ http.Handler = (*Server)(nil)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		app:      echo.New(),
		address:  deps.Conf.Server.Address,
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup(deps)
	return s
}

func (s *Server) setup(deps ServerDeps) {
	conf := deps.Conf
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(deps.Logger, deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	if conf.Storage.Driver == "local" {
		s.app.Static(conf.Storage.PublicBaseURL, conf.Storage.LocalDir)
	}
	s.app.GET("/", func(ctx echo.Context) error {
		return ctx.String(http.StatusOK, "Welcome to "+conf.AppName+" API!")
	})

	v1 := s.app.Group("/v1", middleware.JWTWithConfig(jwtConfig(conf.SecretKey)))
	blobs := blobDeps{files: deps.Files, photos: deps.Photos, maxSize: conf.Storage.MaxUploadSize}

	registerStudentAPI(v1.Group("/me", studentMiddleware), studentApi{
		ledger:     deps.Ledger,
		aggregator: deps.Aggregator,
		students:   deps.Roster,
		blobs:      blobs,
		gate:       gate{secret: conf.Attendance.GateSecret, clock: deps.Clock},
		validate:   deps.Validate,
		opTimeout:  conf.Attendance.OpTimeout,
	})

	admin := v1.Group("/admin", adminMiddleware)
	registerAttendanceAPI(admin, attendanceApi{
		ledger:     deps.Ledger,
		aggregator: deps.Aggregator,
		exporter:   deps.Exporter,
		roster:     deps.Roster,
		validate:   deps.Validate,
	})
	registerRosterAPI(admin, rosterApi{
		svc:      deps.Roster,
		blobs:    blobs,
		validate: deps.Validate,
	})
}

// Start listens until the server is shut down; other failures are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
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
