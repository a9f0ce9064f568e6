package main

import (
	"expvar"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elecmate/sitebrief/core"
	"github.com/elecmate/sitebrief/core/briefing"
)

func TestApiApp_publishVars(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Build = "test-build"
	conf.Signing.PublicOrigin = "https://app.test"

	app := apiApp{Conf: conf, Notifier: &briefing.MailNotifier{}}
	app.publishVars()

	tests := []struct {
		name string
		want string
	}{
		{name: "build", want: `"test-build"`},
		{name: "database_engine", want: `"sqlite"`},
		{name: "signing_origin", want: `"https://app.test"`},
		{name: "notifier", want: `"*briefing.MailNotifier"`},
		{name: "photos_enabled", want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := expvar.Get(tt.name)
			if assert.NotNil(t, v) {
				assert.Equal(t, tt.want, v.String())
			}
		})
	}
}
