package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Server struct {
		Address      string        `mapstructure:"address"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"server"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Pipeline struct {
		HistoryCapacity  int           `mapstructure:"history_capacity"`
		StrictWorkflows  bool          `mapstructure:"strict_workflows"`
		BackoffUnit      time.Duration `mapstructure:"backoff_unit"`
		DefaultMaxStages int           `mapstructure:"default_max_stages"`
		DefaultTimeout   time.Duration `mapstructure:"default_timeout"`
	} `mapstructure:"pipeline"`
	Health struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"health"`
	Catalog struct {
		File string `mapstructure:"file"`
	} `mapstructure:"catalog"`
}

// LoadConfig loads the configuration from a file and the environment.
// When path is empty config.yaml is searched for in . and ./config; a missing
// file is not an error and leaves the defaults in place.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("PIPELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Catalog.File = strings.TrimSpace(config.Catalog.File)

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 310*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pipeline.history_capacity", 1000)
	v.SetDefault("pipeline.strict_workflows", false)
	v.SetDefault("pipeline.backoff_unit", time.Second)
	v.SetDefault("pipeline.default_max_stages", 10)
	v.SetDefault("pipeline.default_timeout", 300*time.Second)
	v.SetDefault("health.timeout", 10*time.Second)
	v.SetDefault("catalog.file", "")
}
