package main

import (
	"log"
	"os"

	"github.com/pkg/errors"

	"github.com/elecmate/sitebrief/core"
	"github.com/elecmate/sitebrief/core/briefing"
	"github.com/elecmate/sitebrief/core/share"
	"github.com/elecmate/sitebrief/services/desktop"
	emailsvc "github.com/elecmate/sitebrief/services/email"
	"github.com/elecmate/sitebrief/services/functions"
	logsvc "github.com/elecmate/sitebrief/services/logger"
	"github.com/elecmate/sitebrief/storage/database"
	sqliterepos "github.com/elecmate/sitebrief/storage/database/sqlite"
	sqlxrepos "github.com/elecmate/sitebrief/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()
	appLogger := logsvc.NewRollbarLogger(logger, conf)
	appLogger.Enable(false)

	cli, closeDB, err := newCommandLine(conf, appLogger)
	errAndDie(err)

	err = cli.run(os.Args)
	if cerr := closeDB(); cerr != nil {
		logger.Printf("closing database: %v", cerr)
	}
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

// newCommandLine connects to the configured database without migrating it.
func newCommandLine(conf *core.Config, appLogger core.Logger) (*commandLine, func() error, error) {
	cli := &commandLine{
		conf:      conf,
		logger:    appLogger,
		clipboard: desktop.NewClipboard(),
		opener:    desktop.Browser{},
	}

	var repo briefing.Repository
	var tokens briefing.TokenRepository
	var closeDB func() error

	switch conf.Database.Engine {
	case database.EngineSQLite:
		db, err := sqliterepos.Open(conf.Database.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, errors.Wrap(err, "getting sql.DB")
		}
		store := sqliterepos.NewStore(db)
		cli.gormDB, repo, tokens, closeDB = db, store, store, sqlDB.Close
	case database.EnginePostgres:
		db, err := database.OpenSQLx(conf)
		if err != nil {
			return nil, nil, err
		}
		store := sqlxrepos.NewStore(db)
		cli.db, repo, tokens, closeDB = db.DB, store, store, db.Close
	default:
		return nil, nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
	}

	core.ParseEmailTemplates(conf, appLogger)
	var mailSvc core.EmailService
	if conf.Email.SendgridAPIKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, appLogger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, appLogger)
	}
	if conf.Functions.APIKey != "" {
		cli.notifier = functions.NewClient(conf)
	} else {
		cli.notifier = briefing.NewMailNotifier(mailSvc)
	}

	templates, err := share.NewTemplates(conf.Share)
	if err != nil {
		_ = closeDB()
		return nil, nil, err
	}
	cli.templates = templates
	cli.svc = briefing.NewService(conf, repo, tokens, mailSvc, nil /* photos */, appLogger)
	return cli, closeDB, nil
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
