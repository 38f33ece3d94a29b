// Package config loads console configuration from a yaml file or CLI
// flags, with the API credential sourced from the environment.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"mmconsole/internal/domain"
)

// Config is the resolved console configuration.
type Config struct {
	Mode      domain.Mode
	APIURL    string
	StreamURL string
	Symbols   []string
	Token     string
}

type configTmp struct {
	Mode      string   `yaml:"mode"`
	APIURL    string   `yaml:"api_url"`
	StreamURL string   `yaml:"stream_url"`
	Symbols   []string `yaml:"symbols,omitempty"`
}

type secrets struct {
	Token string `envconfig:"METRICS_API_TOKEN" required:"true"`
}

// Get resolves configuration from --config yaml when given, CLI flags
// otherwise. A missing METRICS_API_TOKEN is a startup failure: the console
// must not come up without a credential to attach.
func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	mode := flag.String("mode", string(domain.ModeSimulation), "backend variant: simulation or live")
	apiURL := flag.String("api-url", "http://localhost:8080", "control API base URL")
	streamURL := flag.String("stream-url", "ws://localhost:8080/ws", "metrics stream URL")
	symbols := flag.String("symbols", "", "comma-separated symbol preselection")
	flag.Parse()

	// .env is optional; real environments set variables directly
	_ = godotenv.Load()

	var sec secrets
	if err := envconfig.Process("", &sec); err != nil {
		return Config{}, errors.Wrap(err, "missing API credential")
	}

	if *configPath != "" {
		return LoadFile(*configPath, sec.Token)
	}

	cfg := Config{
		Mode:      domain.Mode(*mode),
		APIURL:    *apiURL,
		StreamURL: *streamURL,
		Token:     sec.Token,
	}
	if *symbols != "" {
		cfg.Symbols = splitSymbols(*symbols)
	}

	return cfg, cfg.validate()
}

// LoadFile reads and validates a yaml configuration file, attaching the
// environment-sourced token.
func LoadFile(path, token string) (Config, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config file")
	}

	var tmp configTmp
	if err := yaml.Unmarshal(payload, &tmp); err != nil {
		return Config{}, errors.Wrap(err, "parse config file")
	}

	cfg := Config{
		Mode:      domain.Mode(tmp.Mode),
		APIURL:    tmp.APIURL,
		StreamURL: tmp.StreamURL,
		Symbols:   tmp.Symbols,
		Token:     token,
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if !c.Mode.IsValid() {
		return fmt.Errorf("invalid mode %q, expected simulation or live", c.Mode)
	}
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	if c.StreamURL == "" {
		return fmt.Errorf("stream_url is required")
	}
	return nil
}

func splitSymbols(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
