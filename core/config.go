package core

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const envPrefix = "MOODLE"

type (
	MoodleConfig struct {
		BaseURL  string `mapstructure:"base_url" json:"base_url" validate:"required,httpurl"`
		Username string `mapstructure:"username" json:"username" validate:"required"`
		Password string `mapstructure:"password" json:"-"`
	}

	Config struct {
		AppName      string       `mapstructure:"app_name"`
		Env          string       `mapstructure:"env"` // DEV (local; default), TEST, PROD
		Debug        bool         `mapstructure:"debug"`
		Build        string       `mapstructure:"build"`
		Host         string       `mapstructure:"host"`
		RollbarToken string       `mapstructure:"rollbar_token"`
		Moodle       MoodleConfig `mapstructure:",squash"`
	}
)

// NewConfig reads the configuration from (by increasing priority) defaults, an optional config file,
// optional .env files in the working directory and MOODLE_* environment variables.
func NewConfig() (*Config, error) {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("app_name", "moodle")
	conf.SetDefault("env", "DEV")
	conf.SetDefault("debug", false)
	conf.SetDefault("build", "dev")
	conf.SetDefault("host", hostname())
	conf.SetDefault("rollbar_token", "")
	conf.SetDefault("base_url", "")
	conf.SetDefault("username", "")
	conf.SetDefault("password", "")

	// load .env files if they exist (ignore if they do not)
	env := strings.ToLower(os.Getenv(envPrefix + "_ENV"))
	for _, name := range []string{".env", ".env." + env} {
		if name == ".env." {
			continue
		}
		if err := loadDotEnv(name); err != nil {
			return nil, err
		}
	}

	conf.SetConfigName("moodle")
	conf.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		conf.AddConfigPath(filepath.Join(home, ".config", "moodle"))
	}
	if err := conf.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	conf.SetEnvPrefix(envPrefix)
	conf.AutomaticEnv()

	var c Config
	if err := conf.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	c.Env = strings.ToUpper(c.Env)
	c.Moodle.BaseURL = CleanString(c.Moodle.BaseURL)
	c.Moodle.Username = CleanString(c.Moodle.Username)
	return &c, nil
}

// Validate checks that the Moodle connection settings are usable.
func (c *Config) Validate() error {
	if err := Validate.Struct(c.Moodle); err != nil {
		return NewFieldErrors(err)
	}
	return nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err == nil {
		if err := godotenv.Load(path); err != nil {
			return errors.Wrapf(err, "loading %s", path)
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "stat %s", path)
	}
	return nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return h
}
