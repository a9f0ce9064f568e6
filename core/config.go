package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host               string
		Address            string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTAudience        string
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite
		Host          string
		Port          int
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Name          string
		DisableTLS    bool
		SQLitePath    string
	}

	EmailConfig struct {
		SendgridAPIKey string
		DefaultFrom    mail.Address
	}

	SigningConfig struct {
		// PublicOrigin is the origin signing links are built on, e.g. https://app.example.com
		PublicOrigin string
	}

	DocumentConfig struct {
		PollAttempts int
		PollInterval time.Duration
		ExpiryMargin time.Duration
	}

	FunctionsConfig struct {
		BaseURL      string
		APIKey       string
		Timeout      time.Duration
		NotifyPath   string
		DocumentPath string
	}

	StorageConfig struct {
		Bucket          string
		Region          string
		Endpoint        string
		AccessKeyID     string
		SecretAccessKey string
		PresignExpiry   time.Duration
	}

	ShareConfig struct {
		WhatsAppTemplate    string
		MailSubjectTemplate string
		MailBodyTemplate    string
	}

	Config struct {
		Debug        bool
		TestMode     bool
		AppName      string
		Env          string
		Build        string
		SecretKey    string
		RollbarToken string
		WorkDir      string

		Server    ServerConfig
		Database  DatabaseConfig
		Email     EmailConfig
		Signing   SigningConfig
		Document  DocumentConfig
		Functions FunctionsConfig
		Storage   StorageConfig
		Share     ShareConfig
	}
)

func (d DatabaseConfig) Address() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "SiteBrief")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "q2vy8#6h=kz@l0pt!x1^bf3w)m7d(a5r$e9s+n4c_jgou")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtAudience", "authenticated")
	v.SetDefault("server.jwtExpirationDelta", 24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "sitebrief")
	v.SetDefault("database.password", "sitebrief")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.name", "sitebrief")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.sqlitePath", "sitebrief.db")

	v.SetDefault("email.sendgridApiKey", "")
	v.SetDefault("email.defaultFromName", "SiteBrief")
	v.SetDefault("email.defaultFromAddress", "noreply@localhost")

	v.SetDefault("signing.publicOrigin", "http://localhost:3000")

	v.SetDefault("document.pollAttempts", 20)
	v.SetDefault("document.pollInterval", 3*time.Second)
	v.SetDefault("document.expiryMargin", 5*time.Minute)

	v.SetDefault("functions.baseUrl", "http://localhost:54321/functions/v1")
	v.SetDefault("functions.apiKey", "")
	v.SetDefault("functions.timeout", 90*time.Second)
	v.SetDefault("functions.notifyPath", "/send-briefing-signing-link")
	v.SetDefault("functions.documentPath", "/generate-briefing-pdf")

	v.SetDefault("storage.bucket", "briefing-photos")
	v.SetDefault("storage.region", "eu-west-2")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.accessKeyId", "")
	v.SetDefault("storage.secretAccessKey", "")
	v.SetDefault("storage.presignExpiry", 15*time.Minute)

	v.SetDefault("share.whatsappTemplate",
		"Please review and sign the site briefing \"{{{name}}}\": {{{url}}}")
	v.SetDefault("share.mailSubjectTemplate", "Signature required: {{{name}}}")
	v.SetDefault("share.mailBodyTemplate",
		"Hi,\n\nPlease review and sign the site briefing \"{{{name}}}\" using the link below:\n\n{{{url}}}\n\n"+
			"The link expires on {{{expires}}}.\n")
}

// NewConfig loads the configuration for the current ENV (DEV by default; TEST, QA, PROD).
// Values come from defaults, then config/.env.<env> when present, then the environment,
// prefixed by ENV (e.g. PROD_DATABASE_HOST).
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		AppName:      v.GetString("appName"),
		Env:          env,
		Build:        v.GetString("build"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		WorkDir:      workDir,
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Address:            v.GetString("server.address"),
			DebugHost:          v.GetString("server.debugHost"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTAudience:        v.GetString("server.jwtAudience"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			Name:          v.GetString("database.name"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			SQLitePath:    v.GetString("database.sqlitePath"),
		},
		Email: EmailConfig{
			SendgridAPIKey: v.GetString("email.sendgridApiKey"),
			DefaultFrom: mail.Address{
				Name:    v.GetString("email.defaultFromName"),
				Address: v.GetString("email.defaultFromAddress"),
			},
		},
		Signing: SigningConfig{
			PublicOrigin: v.GetString("signing.publicOrigin"),
		},
		Document: DocumentConfig{
			PollAttempts: v.GetInt("document.pollAttempts"),
			PollInterval: v.GetDuration("document.pollInterval"),
			ExpiryMargin: v.GetDuration("document.expiryMargin"),
		},
		Functions: FunctionsConfig{
			BaseURL:      v.GetString("functions.baseUrl"),
			APIKey:       v.GetString("functions.apiKey"),
			Timeout:      v.GetDuration("functions.timeout"),
			NotifyPath:   v.GetString("functions.notifyPath"),
			DocumentPath: v.GetString("functions.documentPath"),
		},
		Storage: StorageConfig{
			Bucket:          v.GetString("storage.bucket"),
			Region:          v.GetString("storage.region"),
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.accessKeyId"),
			SecretAccessKey: v.GetString("storage.secretAccessKey"),
			PresignExpiry:   v.GetDuration("storage.presignExpiry"),
		},
		Share: ShareConfig{
			WhatsAppTemplate:    v.GetString("share.whatsappTemplate"),
			MailSubjectTemplate: v.GetString("share.mailSubjectTemplate"),
			MailBodyTemplate:    v.GetString("share.mailBodyTemplate"),
		},
	}
}

// NewTestConfig returns the configuration used by package tests.
func NewTestConfig() *Config {
	_ = os.Setenv("ENV", "TEST")
	conf := NewConfig()
	conf.Debug = false
	conf.TestMode = true
	conf.Database.Engine = "sqlite"
	conf.Signing.PublicOrigin = "https://sitebrief.test"
	return conf
}
