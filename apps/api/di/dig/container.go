package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/elecmate/sitebrief/apps/api/echo"
	"github.com/elecmate/sitebrief/core"
	"github.com/elecmate/sitebrief/core/briefing"
	"github.com/elecmate/sitebrief/core/document"
	"github.com/elecmate/sitebrief/core/share"
	emailsvc "github.com/elecmate/sitebrief/services/email"
	s3store "github.com/elecmate/sitebrief/services/filestorage/s3"
	"github.com/elecmate/sitebrief/services/functions"
	logsvc "github.com/elecmate/sitebrief/services/logger"
	"github.com/elecmate/sitebrief/storage/database"
	sqliterepos "github.com/elecmate/sitebrief/storage/database/sqlite"
	sqlxrepos "github.com/elecmate/sitebrief/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// DBCloser releases the database connections.
type DBCloser func() error

type (
	Stores struct {
		dig.Out
		Briefings briefing.Repository
		Tokens    briefing.TokenRepository
		Close     DBCloser
	}

	StoresParam struct {
		dig.In
		Briefings briefing.Repository
		Tokens    briefing.TokenRepository
	}
)

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	if conf.Debug {
		logger.Enable(false)
	}
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	if conf.Debug {
		logger.Enable(false)
	}
	return logger
}

// newStores opens and migrates the configured database engine.
func newStores(conf *core.Config, loggerParam DBLoggerParam) Stores {
	setUp := func() (Stores, error) {
		switch conf.Database.Engine {
		case database.EngineSQLite:
			db, err := sqliterepos.Open(conf.Database.SQLitePath)
			if err != nil {
				return Stores{}, err
			}
			if err = sqliterepos.Migrate(db); err != nil {
				return Stores{}, err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return Stores{}, errors.Wrap(err, "getting sql.DB")
			}
			store := sqliterepos.NewStore(db)
			return Stores{Briefings: store, Tokens: store, Close: sqlDB.Close}, nil

		case database.EnginePostgres:
			if err := database.CreateIfNotExist(conf); err != nil {
				return Stores{}, err
			}
			db, err := database.OpenSQLx(conf)
			if err != nil {
				return Stores{}, err
			}
			if err = database.Migrate(db.DB); err != nil {
				return Stores{}, err
			}
			store := sqlxrepos.NewStore(db)
			return Stores{Briefings: store, Tokens: store, Close: db.Close}, nil
		}
		return Stores{}, errors.Errorf("unknown database engine %q", conf.Database.Engine)
	}

	stores, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return stores
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.Email.SendgridAPIKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// newPhotoStorage returns nil when no bucket is configured: photo uploads are then disabled.
func newPhotoStorage(conf *core.Config, logger core.Logger) briefing.PhotoStorage {
	if conf.Storage.Bucket == "" {
		return nil
	}
	storage, err := s3store.NewStorage(context.Background(), conf)
	if err != nil {
		logger.Error(fmt.Sprintf("photo storage disabled: %v", err), err)
		return nil
	}
	return storage
}

// newNotifier emails signing links through the hosted function when it is configured.
func newNotifier(conf *core.Config, client *functions.Client, mailSvc core.EmailService) share.Notifier {
	if conf.Functions.APIKey != "" {
		return client
	}
	return briefing.NewMailNotifier(mailSvc)
}

func newBriefingService(
	conf *core.Config,
	stores StoresParam,
	mailSvc core.EmailService,
	photos briefing.PhotoStorage,
	logger core.Logger,
) *briefing.Service {
	return briefing.NewService(conf, stores.Briefings, stores.Tokens, mailSvc, photos, logger)
}

func newDocumentService(conf *core.Config, svc *briefing.Service, client *functions.Client, logger core.Logger) (*document.Service, error) {
	return document.NewService(conf, svc, client, client, logger)
}

func newShareTemplates(conf *core.Config) (*share.Templates, error) {
	return share.NewTemplates(conf.Share)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStores))
	must(c.Provide(newEmailService))
	must(c.Provide(newPhotoStorage))
	must(c.Provide(functions.NewClient))
	must(c.Provide(newNotifier))
	must(c.Provide(newBriefingService))
	must(c.Provide(newDocumentService))
	must(c.Provide(newShareTemplates))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(echoapi.NewServer))

	if os.Getenv("DIG_VISUALIZE") != "" {
		_ = dig.Visualize(c, os.Stdout)
	}

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
