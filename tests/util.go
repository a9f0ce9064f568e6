package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/elecmate/sitebrief/core"
	"github.com/elecmate/sitebrief/core/briefing"
	"github.com/elecmate/sitebrief/core/user"
	emailsvc "github.com/elecmate/sitebrief/services/email"
	logsvc "github.com/elecmate/sitebrief/services/logger"
	sqliterepos "github.com/elecmate/sitebrief/storage/database/sqlite"
)

var (
	Owner    = user.User{ID: "5a3c8f0e-owner", Email: "dave.spark@example.co.uk", Name: "Dave Spark"}
	Stranger = user.User{ID: "9d1b2e7c-other", Email: "other@example.co.uk", Name: "Other Sparky"}
)

func NewLogger() core.Logger {
	return logsvc.NewDiscardLogger(core.NewTestConfig())
}

func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator, _ := ut.New(en.New()).GetTranslator("en")
	core.InitValidators(validate, translator)
	briefing.InitValidators(validate, translator)
	return validate, translator
}

// OpenDB opens a migrated in-memory database closed at the end of the test.
func OpenDB(t testing.TB) *gorm.DB {
	db, err := sqliterepos.Open(sqliterepos.MemoryPath)
	if err != nil {
		t.Fatalf("OpenDB(): %v", err)
	}
	if err = sqliterepos.Migrate(db); err != nil {
		t.Fatalf("OpenDB(): %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type BriefingEnv struct {
	Conf    *core.Config
	Store   *sqliterepos.Store
	Mail    *emailsvc.ConsoleServiceMock
	Service *briefing.Service
}

// NewBriefingEnv wires a briefing service on a fresh in-memory store.
func NewBriefingEnv(t testing.TB, photos briefing.PhotoStorage) *BriefingEnv {
	conf := core.NewTestConfig()
	logger := NewLogger()
	core.ParseEmailTemplates(conf, logger)

	store := sqliterepos.NewStore(OpenDB(t))
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	return &BriefingEnv{
		Conf:    conf,
		Store:   store,
		Mail:    mailSvc,
		Service: briefing.NewService(conf, store, store, mailSvc, photos, logger),
	}
}

// CreateBriefing creates a briefing owned by usr with the named attendees.
func CreateBriefing(t testing.TB, svc *briefing.Service, usr user.User, name string, attendees ...string) briefing.Briefing {
	nb := briefing.NewBriefing{
		Name:     name,
		Type:     briefing.TypeToolboxTalk,
		Location: "Unit 4, Riverside Estate",
		Date:     time.Date(2026, 10, 19, 7, 30, 0, 0, time.UTC),
	}
	for _, a := range attendees {
		nb.Attendees = append(nb.Attendees, briefing.NewAttendee{Name: a, Role: "Electrician"})
	}
	b, err := svc.Create(context.Background(), usr, nb)
	if err != nil {
		t.Fatalf("CreateBriefing(): %v", err)
	}
	return b
}

const Signature = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg=="
