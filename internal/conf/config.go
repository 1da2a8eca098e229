// Package conf loads and validates application settings from the
// config file, environment and command line flags.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/rainhead/lifelight-go/internal/errors"
)

// Settings holds all application configuration.
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`

	// Login is the remote user whose observations are replicated.
	Login string `yaml:"login" mapstructure:"login"`

	API      APISettings      `yaml:"api" mapstructure:"api"`
	Database DatabaseSettings `yaml:"database" mapstructure:"database"`
	Home     HomeSettings     `yaml:"home" mapstructure:"home"`
	Log      LogSettings      `yaml:"log" mapstructure:"log"`

	// Debounce is the window used to coalesce store-change events
	// before a consumer re-runs its query.
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// APISettings configures the remote observation endpoint.
type APISettings struct {
	BaseURL string        `yaml:"baseurl" mapstructure:"baseurl"`
	PerPage int           `yaml:"perpage" mapstructure:"perpage"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// DatabaseSettings configures the local SQLite replica.
type DatabaseSettings struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// HomeSettings is the reference point for distance grouping.
type HomeSettings struct {
	Latitude  float64 `yaml:"latitude" mapstructure:"latitude"`
	Longitude float64 `yaml:"longitude" mapstructure:"longitude"`
}

// LogSettings configures file logging.
type LogSettings struct {
	Level string `yaml:"level" mapstructure:"level"`
	Path  string `yaml:"path" mapstructure:"path"`
}

// Load reads settings from the config file (if any), environment and
// defaults. A missing config file is not an error.
func Load() (*Settings, error) {
	setDefaults()

	viper.SetConfigName("lifelight")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if configDir, err := os.UserConfigDir(); err == nil {
		viper.AddConfigPath(filepath.Join(configDir, "lifelight"))
	}
	viper.SetEnvPrefix("lifelight")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Build()
		}
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.Newf("unmarshaling settings: %w", err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return settings, nil
}

// Validate checks settings that commands depend on.
func (s *Settings) Validate() error {
	if s.API.PerPage <= 0 {
		return errors.Newf("api.perpage must be positive, got %d", s.API.PerPage).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Database.Path == "" {
		return errors.Newf("database.path must not be empty").
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// WriteDefault writes a config file populated with default values to
// the given path. It refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("config file already exists at %s", path).
			Component("conf").
			Category(errors.CategoryFileIO).
			Build()
	}

	setDefaults()
	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return fmt.Errorf("unmarshaling defaults: %w", err)
	}

	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling defaults: %w", err)
	}

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return nil
}
