package core

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host               string
		Address            string        `validate:"required"`
		DebugHost          string        `validate:"required"`
		ShutdownTimeout    time.Duration `validate:"gt=0"`
		JWTExpirationDelta time.Duration `validate:"gt=0"`
	}

	DatabaseConfig struct {
		Engine        string `validate:"required"`
		Host          string `validate:"required"`
		Port          int    `validate:"gt=0"`
		Name          string `validate:"required"`
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	IconsConfig struct {
		Default string `validate:"required"`
		Active  string `validate:"required"`
	}

	TrackingConfig struct {
		AnimationDuration time.Duration `validate:"gt=0"`
		FrameInterval     time.Duration `validate:"gt=0"`
		DimOpacity        float64       `validate:"gte=0,lte=1"`
		ZIndexActive      int
		ZIndexOnRoute     int
		ZIndexOffRoute    int
		DefaultMapType    string `validate:"required"`
		BusIcons          IconsConfig
		StudentIcons      IconsConfig
	}

	FeedConfig struct {
		Source       string        `validate:"oneof=none database gtfsrt"`
		GTFSRTURL    string        `validate:"omitempty,url"`
		PollInterval time.Duration `validate:"gt=0"`
		Timeout      time.Duration `validate:"gt=0"`
	}

	Config struct {
		Env          string
		Debug        bool
		TestMode     bool
		AppName      string
		Build        string
		SecretKey    string `validate:"required"`
		RollbarToken string
		Server       ServerConfig
		Database     DatabaseConfig
		Tracking     TrackingConfig
		Feed         FeedConfig
	}
)

// Address returns the database "host:port".
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "SchoolBus")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "b9q!x2-k7z$h0wd=3m(e+ua8r)l4tv*c6n^f1py#gso5j")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "schoolbus")
	v.SetDefault("database.user", "schoolbus")
	v.SetDefault("database.password", "schoolbus")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("tracking.animationDuration", 4500*time.Millisecond)
	v.SetDefault("tracking.frameInterval", 16*time.Millisecond)
	v.SetDefault("tracking.dimOpacity", 0.6)
	v.SetDefault("tracking.zIndexActive", 100)
	v.SetDefault("tracking.zIndexOnRoute", 50)
	v.SetDefault("tracking.zIndexOffRoute", 10)
	v.SetDefault("tracking.defaultMapType", "roadmap")
	v.SetDefault("tracking.busIcons.default", "/static/icons/bus.svg")
	v.SetDefault("tracking.busIcons.active", "/static/icons/bus-active.svg")
	v.SetDefault("tracking.studentIcons.default", "/static/icons/student.svg")
	v.SetDefault("tracking.studentIcons.active", "/static/icons/student-active.svg")

	v.SetDefault("feed.source", "database")
	v.SetDefault("feed.gtfsrtURL", "")
	v.SetDefault("feed.pollInterval", 5*time.Second)
	v.SetDefault("feed.timeout", 10*time.Second)
	return v
}

// NewConfig loads the app Config.
// precedence: env vars > config/.env.<env> > defaults.
// env vars are prefixed with the upper-cased env name, eg: DEV_DATABASE_HOST.
func NewConfig() *Config {
	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}

	v := newViper()
	if env == "TEST" {
		v.SetDefault("testMode", true)
		v.SetDefault("database.name", "schoolbus_test")
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		_ = godotenv.Load(dotEnvPath)
	}
	v.AutomaticEnv()

	return configFromViper(env, v)
}

func configFromViper(env string, v *viper.Viper) *Config {
	icons := func(key string) IconsConfig {
		return IconsConfig{
			Default: v.GetString(key + ".default"),
			Active:  v.GetString(key + ".active"),
		}
	}
	return &Config{
		Env:          env,
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		AppName:      v.GetString("appName"),
		Build:        v.GetString("build"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Address:            v.GetString("server.address"),
			DebugHost:          v.GetString("server.debugHost"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Tracking: TrackingConfig{
			AnimationDuration: v.GetDuration("tracking.animationDuration"),
			FrameInterval:     v.GetDuration("tracking.frameInterval"),
			DimOpacity:        v.GetFloat64("tracking.dimOpacity"),
			ZIndexActive:      v.GetInt("tracking.zIndexActive"),
			ZIndexOnRoute:     v.GetInt("tracking.zIndexOnRoute"),
			ZIndexOffRoute:    v.GetInt("tracking.zIndexOffRoute"),
			DefaultMapType:    v.GetString("tracking.defaultMapType"),
			BusIcons:          icons("tracking.busIcons"),
			StudentIcons:      icons("tracking.studentIcons"),
		},
		Feed: FeedConfig{
			Source:       CleanString(v.GetString("feed.source"), true),
			GTFSRTURL:    CleanString(v.GetString("feed.gtfsrtURL")),
			PollInterval: v.GetDuration("feed.pollInterval"),
			Timeout:      v.GetDuration("feed.timeout"),
		},
	}
}

// NewTestConfig returns the default Config in TEST mode, without reading the environment.
func NewTestConfig() *Config {
	v := newViper()
	v.Set("debug", false)
	v.Set("testMode", true)
	v.Set("database.name", "schoolbus_test")
	return configFromViper("TEST", v)
}

// Validate checks the Config values.
func (c *Config) Validate(validate *validator.Validate) error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "validating config")
	}
	if c.Feed.Source == "gtfsrt" && c.Feed.GTFSRTURL == "" {
		return NewValidationError(
			errors.New("feed.gtfsrtURL is required"),
			FieldError{Field: "GTFSRTURL", Error: "this field is required"},
		)
	}
	return nil
}
