package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/dmorgan81/circuitcraft/internal/circuit"
	"github.com/dmorgan81/circuitcraft/internal/result"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

const DefaultAPIURL = "http://localhost:8000"

// Config holds everything the server and the command line need.
type Config struct {
	APIURL         string        `mapstructure:"api_url"`
	APIURLParam    string        `mapstructure:"api_url_param"`
	GeneratorName  string        `mapstructure:"generator_name"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	ResultEncoding string        `mapstructure:"result_encoding"`
	ResultsPath    string        `mapstructure:"results_path"`
	ListenAddr     string        `mapstructure:"listen_addr"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	ReapSchedule   string        `mapstructure:"reap_schedule"`
	ArchiveBucket  string        `mapstructure:"archive_bucket"`
	ArchiveDir     string        `mapstructure:"archive_dir"`
	Distribution   string        `mapstructure:"distribution"`
	SiteURL        string        `mapstructure:"site_url"`
	LogLevel       string        `mapstructure:"log_level"`
	PromptsParam   string        `mapstructure:"example_prompts_param"`
	ExamplePrompts []string      `mapstructure:"-"`
}

var defaultExamplePrompts = []string{
	"Connect a 1.5V battery, a 330 ohm resistor and a red LED in series.",
	"A 9V battery driving an NPN transistor switch with a 1k base resistor and an LED load.",
	"An RC low-pass filter with a 10k resistor and a 100nF capacitor.",
}

// New returns a viper instance with every key defaulted and bound to the
// upper-cased environment variable of the same name.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("api_url", DefaultAPIURL)
	v.SetDefault("api_url_param", "")
	v.SetDefault("generator_name", circuit.DefaultGenerator)
	v.SetDefault("http_timeout", time.Duration(0))
	v.SetDefault("result_encoding", result.ObjectURL)
	v.SetDefault("results_path", "/results")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("session_ttl", 30*time.Minute)
	v.SetDefault("reap_schedule", "@every 1m")
	v.SetDefault("archive_bucket", "")
	v.SetDefault("archive_dir", "")
	v.SetDefault("distribution", "")
	v.SetDefault("site_url", "http://localhost:8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("example_prompts", "")
	v.SetDefault("example_prompts_param", "")

	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range lo.Ternary(len(paths) > 0, paths, []string{".env"}) {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error loading %s: %w", p, err)
		}
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.ExamplePrompts = examplePrompts(v.Get("example_prompts"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := ValidateAPIURL(c.APIURL); err != nil {
		return err
	}
	if !circuit.ValidGenerator(c.GeneratorName) {
		return fmt.Errorf("generator_name must be one of %v, got %q", circuit.Generators(), c.GeneratorName)
	}
	if c.ResultEncoding != result.ObjectURL && c.ResultEncoding != result.DataURL {
		return fmt.Errorf("result_encoding must be %q or %q, got %q", result.ObjectURL, result.DataURL, c.ResultEncoding)
	}
	if !strings.HasPrefix(c.ResultsPath, "/") {
		return fmt.Errorf("results_path must start with /, got %q", c.ResultsPath)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive, got %s", c.SessionTTL)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("http_timeout must not be negative, got %s", c.HTTPTimeout)
	}
	if c.ArchiveBucket != "" && c.ArchiveDir != "" {
		return errors.New("archive_bucket and archive_dir are mutually exclusive")
	}
	return nil
}

// ValidateAPIURL checks that s can serve as the generation API base.
func ValidateAPIURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api_url must be an absolute http(s) URL, got %q", s)
	}
	return nil
}

// examplePrompts accepts either a list from a config file or a single
// "|" separated string from the environment.
func examplePrompts(raw any) []string {
	var prompts []string
	switch v := raw.(type) {
	case string:
		prompts = strings.Split(v, "|")
	case []string:
		prompts = v
	case []any:
		prompts = lo.Map(v, func(p any, _ int) string { return fmt.Sprint(p) })
	}
	prompts = lo.Filter(lo.Map(prompts, func(p string, _ int) string { return strings.TrimSpace(p) }),
		func(p string, _ int) bool { return p != "" })
	return lo.Ternary(len(prompts) > 0, prompts, defaultExamplePrompts)
}
