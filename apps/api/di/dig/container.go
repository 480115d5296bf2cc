package dig_container

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/schoolbus/apps/api/echo"
	"github.com/trezcool/schoolbus/core"
	"github.com/trezcool/schoolbus/core/tracking"
	"github.com/trezcool/schoolbus/services/feed"
	logsvc "github.com/trezcool/schoolbus/services/logger"
	"github.com/trezcool/schoolbus/storage/database"
	inmemdb "github.com/trezcool/schoolbus/storage/database/inmem"
	sqlxrepos "github.com/trezcool/schoolbus/storage/database/sqlx"
)

const (
	feedSourceNone     = "none"
	feedSourceDatabase = "database"
	feedSourceGTFSRT   = "gtfsrt"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type FeedLoggerParam struct {
	dig.In
	Logger core.Logger `name:"feedLogger"`
}

func newRollbarLogger(conf *core.Config, prefix string) core.Logger {
	stdLogger := log.New(os.Stdout, prefix, log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newLogger(conf *core.Config) core.Logger {
	return newRollbarLogger(conf, "API : ")
}

func newDBLogger(conf *core.Config) core.Logger {
	return newRollbarLogger(conf, "DB : ")
}

func newFeedLogger(conf *core.Config) core.Logger {
	return newRollbarLogger(conf, "FEED : ")
}

// newDB sets up the database when it backs the location feed; nil otherwise.
func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	if conf.Feed.Source != feedSourceDatabase {
		return nil
	}

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB, "up"); err != nil {
			_ = db.Close()
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

// newRepository keeps the reports in memory when there is no database.
func newRepository(db *sqlx.DB) feed.Repository {
	if db == nil {
		return inmemdb.NewLocationRepository(inmemdb.Open())
	}
	return sqlxrepos.NewLocationRepository(db)
}

// newFeedSource returns nil when the map is only fed through the API.
func newFeedSource(conf *core.Config, repo feed.Repository) feed.Source {
	switch conf.Feed.Source {
	case feedSourceDatabase:
		return feed.NewRepositorySource(repo)
	case feedSourceGTFSRT:
		return feed.NewGTFSRTSource(conf.Feed.GTFSRTURL, conf.Feed.Timeout)
	}
	return nil
}

func newPoller(conf *core.Config, source feed.Source, svc *tracking.Service, loggerParam FeedLoggerParam) *feed.Poller {
	if source == nil {
		return nil
	}
	return feed.NewPoller(source, svc, loggerParam.Logger, conf.Feed.PollInterval, conf.Feed.Timeout)
}

func newTrackingService(conf *core.Config, logger core.Logger) *tracking.Service {
	opts := tracking.OptionsFromConfig(conf)
	opts.OnClick = func(ev tracking.ClickEvent) {
		logger.Info(fmt.Sprintf("%s %q selected on the map", ev.Kind, ev.EntityID))
	}
	return tracking.NewServiceWithOptions(opts, logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	tracking.InitValidators(validate, translator)
	return validate
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newFeedLogger, dig.Name("feedLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newRepository))
	must(c.Provide(newFeedSource))
	must(c.Provide(newTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(newTrackingService))
	must(c.Provide(newPoller))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
