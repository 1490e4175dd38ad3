package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type (
	// Env holds the values of environment variable based configuration.
	// Every field can also be set in the optional LYRE_CONFIG yaml file, environment variables win.
	Env struct {
		Host           string   `envconfig:"HOST" default:"127.0.0.1" koanf:"host" validate:"required"`
		Port           int      `envconfig:"PORT" default:"9000" koanf:"port" validate:"min=0,max=65535"`
		BasePath       string   `envconfig:"LYRE_BASE_PATH" default:"" koanf:"basePath" validate:"omitempty,startswith=/"`
		ConfigBasePath string   `envconfig:"LYRE_CONFIG_BASE_PATH" default:"/lyreconfig" koanf:"configBasePath" validate:"required,startswith=/"`
		ScanPath       string   `envconfig:"LYRE_SCAN_PATH" default:"./endpoints" koanf:"scanPath" validate:"required"`
		FileSuffix     string   `envconfig:"LYRE_FILE_SUFFIX" default:".lyre" koanf:"fileSuffix" validate:"required"`
		Ignore         []string `envconfig:"LYRE_IGNORE" koanf:"ignore"`
		LiveReload     bool     `envconfig:"LYRE_LIVE_RELOAD" default:"false" koanf:"liveReload"`
		LogLevel       string   `envconfig:"LOG_LEVEL" default:"info" koanf:"logLevel" validate:"oneof=trace debug info warn warning error fatal panic"`
		LogFormat      string   `envconfig:"LOG_FORMAT" default:"text" koanf:"logFormat" validate:"oneof=text json"`
	}
)

// FileEnvVar names the environment variable pointing at the optional configuration file
const FileEnvVar = "LYRE_CONFIG"

// New returns a new Env config, panicking when it cannot be loaded
func New() *Env {
	cfg, err := Load(os.Getenv(FileEnvVar))

	if err != nil {
		panic(err)
	}

	return cfg
}

// Load reads defaults and environment variables, then applies the yaml file at path
// for every setting the environment left alone. An empty path skips the file.
func Load(path string) (*Env, error) {
	cfg := &Env{}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if path != "" {
		k := koanf.New(".")

		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}

		// keys are matched case-insensitively on unmarshal, so drop every spelling
		for _, tag := range setInEnv(cfg) {
			for _, key := range k.Keys() {
				if strings.EqualFold(key, tag) {
					k.Delete(key)
				}
			}
		}

		if err := k.Unmarshal("", cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file %s: %w", path, err)
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setInEnv lists the koanf keys of fields whose environment variable is set
func setInEnv(cfg *Env) []string {
	var keys []string

	t := reflect.TypeOf(cfg).Elem()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)

		if _, ok := os.LookupEnv(f.Tag.Get("envconfig")); ok {
			keys = append(keys, f.Tag.Get("koanf"))
		}
	}

	return keys
}
