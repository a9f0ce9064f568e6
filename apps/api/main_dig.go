package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	dig_container "github.com/elecmate/sitebrief/apps/api/di/dig"
	echoapi "github.com/elecmate/sitebrief/apps/api/echo"
	"github.com/elecmate/sitebrief/core"
	"github.com/elecmate/sitebrief/core/briefing"
	"github.com/elecmate/sitebrief/core/share"
)

// apiApp is everything the API process needs from the container.
type apiApp struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	DBLogger   core.Logger `name:"dbLogger"`
	CloseDB    dig_container.DBCloser
	Validate   *validator.Validate
	Translator ut.Translator
	Photos     briefing.PhotoStorage
	Notifier   share.Notifier
	Server     *echoapi.Server
}

func startWithDig() {
	c := dig_container.New()
	if err := c.Invoke(runAPI); err != nil {
		log.Fatal(err)
	}
}

func runAPI(app apiApp) error {
	app.Logger.Info(fmt.Sprintf("sitebrief api %q starting (%s, %s database)", app.Conf.Build, app.Conf.Env, app.Conf.Database.Engine))
	defer app.Logger.Info("sitebrief api stopped")
	defer func() {
		if err := app.CloseDB(); err != nil {
			app.DBLogger.Error(fmt.Sprintf("closing database: %v", err), err)
		}
	}()

	core.InitValidators(app.Validate, app.Translator)
	briefing.InitValidators(app.Validate, app.Translator)
	core.ParseEmailTemplates(app.Conf, app.Logger)

	app.publishVars()
	go app.serveDebug()
	go app.Server.Start()

	select {
	case err := <-app.Server.Errors():
		return errors.Wrap(err, "serving api")
	case sig := <-app.Server.ShutdownSignal():
		app.Logger.Info(fmt.Sprintf("%v received, draining requests", sig))
		return app.drain()
	}
}

// publishVars exposes the running configuration under /debug/vars.
func (app apiApp) publishVars() {
	expvar.NewString("build").Set(app.Conf.Build)
	expvar.NewString("env").Set(app.Conf.Env)
	expvar.NewString("database_engine").Set(app.Conf.Database.Engine)
	expvar.NewString("signing_origin").Set(app.Conf.Signing.PublicOrigin)
	expvar.NewString("notifier").Set(fmt.Sprintf("%T", app.Notifier))

	photos := new(expvar.Int)
	if app.Photos != nil {
		photos.Set(1)
	}
	expvar.Publish("photos_enabled", photos)
}

// serveDebug serves pprof and expvar on the debug host, away from the public API.
func (app apiApp) serveDebug() {
	if app.Conf.Server.DebugHost == "" {
		return
	}
	if err := http.ListenAndServe(app.Conf.Server.DebugHost, http.DefaultServeMux); err != nil {
		app.Logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
	}
}

// drain lets in-flight signing requests finish before the listener goes away.
func (app apiApp) drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), app.Conf.Server.ShutdownTimeout)
	defer cancel()

	err := app.Server.Shutdown(ctx)
	if err == nil {
		return nil
	}
	app.Logger.Warn(fmt.Sprintf("graceful shutdown failed, closing connections: %v", err), err)
	return errors.Wrap(app.Server.Close(), "closing api server")
}
