package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/absensi/apps/api/echo"
	"github.com/trezcool/absensi/core"
	"github.com/trezcool/absensi/core/attendance"
	"github.com/trezcool/absensi/core/export"
	"github.com/trezcool/absensi/core/roster"
	appfs "github.com/trezcool/absensi/fs"
	emailsvc "github.com/trezcool/absensi/services/email"
	logsvc "github.com/trezcool/absensi/services/logger"
	schedsvc "github.com/trezcool/absensi/services/scheduler"
	"github.com/trezcool/absensi/storage/database"
	sqlxrepos "github.com/trezcool/absensi/storage/database/sqlx"
	filestore "github.com/trezcool/absensi/storage/files"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// ServerParams are the dependencies of the API server.
type ServerParams struct {
	dig.In
	Conf       *core.Config
	Logger     core.Logger
	Clock      core.Clock
	Ledger     *attendance.Ledger
	Aggregator *attendance.Aggregator
	Roster     *roster.Service
	Exporter   *export.Service
	Files      core.FileStorage
	Photos     roster.PhotoProcessor
	Validate   *validator.Validate
	Translator ut.Translator
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		ctx, cancel := context.WithTimeout(context.Background(), conf.Attendance.OpTimeout)
		defer cancel()

		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Ping(ctx, db); err != nil {
			return nil, err
		}
		if err = database.Migrate(db, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newFileStorage(conf *core.Config, logger core.Logger) core.FileStorage {
	files, err := filestore.New(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file storage: %v", err), err)
	}
	return files
}

func newPhotoProcessor(conf *core.Config) roster.PhotoProcessor {
	return filestore.NewPhotoNormalizer(conf.Storage.PhotoMaxDimension, conf.Storage.PhotoMaxPixels)
}

func newClock() core.Clock { return core.SystemClock{} }

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	roster.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
	return validate
}

func newExportService(ledger *attendance.Ledger, mailer core.EmailService, clock core.Clock, conf *core.Config) (*export.Service, error) {
	htmlRenderer, err := export.NewHTMLRenderer(appfs.FS)
	if err != nil {
		return nil, err
	}
	return export.NewService(ledger, mailer, clock, conf, export.NewCSVRenderer(), htmlRenderer), nil
}

func newScheduler(ledger *attendance.Ledger, conf *core.Config, logger core.Logger) *schedsvc.Scheduler {
	return schedsvc.New(ledger, conf, logger)
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Clock:      p.Clock,
		Ledger:     p.Ledger,
		Aggregator: p.Aggregator,
		Roster:     p.Roster,
		Exporter:   p.Exporter,
		Files:      p.Files,
		Photos:     p.Photos,
		Validate:   p.Validate,
		Translator: p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(newFileStorage))
	must(c.Provide(newPhotoProcessor))
	must(c.Provide(newClock))
	must(c.Provide(sqlxrepos.NewRosterRepository))
	must(c.Provide(sqlxrepos.NewAttendanceRepository))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(roster.NewService))
	must(c.Provide(attendance.NewLedger))
	must(c.Provide(attendance.NewAggregator))
	must(c.Provide(newExportService))
	must(c.Provide(newScheduler))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
