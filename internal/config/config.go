package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// DateFormat is the calendar-date layout for start/end date settings.
const DateFormat = "2006-01-02"

type Config struct {
	Discourse Discourse `yaml:"discourse"`
	Filter    Filter    `yaml:"filter"`
	Fetch     Fetch     `yaml:"fetch"`
	HTTP      HTTP      `yaml:"http"`
	Output    Output    `yaml:"output"`

	// Parsed date bounds, populated by Validate.
	StartDate time.Time `yaml:"-"`
	EndDate   time.Time `yaml:"-"`
}

type Discourse struct {
	URL string `yaml:"url"`

	// Credentials are environment-only and never read from the config file.
	APIKey      string `yaml:"-"`
	APIUsername string `yaml:"-"`
}

type Filter struct {
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`
	Keyword   string `yaml:"keyword"`
}

type Fetch struct {
	UserDetails      bool `yaml:"user_details"`
	Posts            bool `yaml:"posts"`
	TopicDescription bool `yaml:"topic_description"`
	LastPostedAt     bool `yaml:"last_posted_at"`
}

type HTTP struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	PageSize       int `yaml:"page_size"`
}

type Output struct {
	Dir string `yaml:"dir"`
}

// ConfigDir returns the XDG config directory for discourse-export.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "discourse-export")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/discourse-export/config.yaml > ./config.yaml.
// An empty return with nil error means no config file exists, which is fine
// as long as the environment carries the required settings.
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", nil
}

// Load builds the effective configuration: embedded defaults, then the config
// file at path (if any), then a .env file in the working directory (if any),
// then process environment variables, highest priority last. The result is
// validated before it is returned.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}

	// .env values never override variables already set in the environment.
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		HTTP: HTTP{
			TimeoutSeconds: 30,
			PageSize:       30,
		},
		Output: Output{Dir: "."},
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	return cfg, nil
}

// applyEnv overlays environment variables onto the config. Credentials come
// exclusively from here.
func (c *Config) applyEnv() {
	if v := os.Getenv("DISCOURSE_URL"); v != "" {
		c.Discourse.URL = v
	}
	c.Discourse.APIKey = os.Getenv("API_KEY")
	c.Discourse.APIUsername = os.Getenv("API_USERNAME")

	if v := os.Getenv("START_DATE"); v != "" {
		c.Filter.StartDate = v
	}
	if v := os.Getenv("END_DATE"); v != "" {
		c.Filter.EndDate = v
	}
	if v := os.Getenv("KEYWORD"); v != "" {
		c.Filter.Keyword = v
	}

	if v, ok := os.LookupEnv("FETCH_USER_DETAILS"); ok {
		c.Fetch.UserDetails = ParseBool(v)
	}
	if v, ok := os.LookupEnv("FETCH_POSTS"); ok {
		c.Fetch.Posts = ParseBool(v)
	}
	if v, ok := os.LookupEnv("FETCH_TOPIC_DESCRIPTION"); ok {
		c.Fetch.TopicDescription = ParseBool(v)
	}
	if v, ok := os.LookupEnv("FETCH_LAST_POSTED_AT"); ok {
		c.Fetch.LastPostedAt = ParseBool(v)
	}
}

// ParseBool parses truthy string forms case-insensitively. Anything that is
// not "true", "1" or "yes" is false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// Validate checks required settings and parses the date bounds. It must pass
// before any network call is made.
func (c *Config) Validate() error {
	if c.Discourse.URL == "" {
		return fmt.Errorf("missing Discourse base URL (set DISCOURSE_URL or discourse.url)")
	}
	if c.Discourse.APIKey == "" {
		return fmt.Errorf("missing API key (set API_KEY)")
	}
	if c.Discourse.APIUsername == "" {
		return fmt.Errorf("missing API username (set API_USERNAME)")
	}
	if c.Filter.StartDate == "" {
		return fmt.Errorf("missing start date (set START_DATE or filter.start_date)")
	}
	if c.Filter.EndDate == "" {
		return fmt.Errorf("missing end date (set END_DATE or filter.end_date)")
	}

	start, err := time.Parse(DateFormat, c.Filter.StartDate)
	if err != nil {
		return fmt.Errorf("invalid start date %q: expected YYYY-MM-DD", c.Filter.StartDate)
	}
	end, err := time.Parse(DateFormat, c.Filter.EndDate)
	if err != nil {
		return fmt.Errorf("invalid end date %q: expected YYYY-MM-DD", c.Filter.EndDate)
	}
	if end.Before(start) {
		return fmt.Errorf("end date %s is before start date %s", c.Filter.EndDate, c.Filter.StartDate)
	}

	c.Discourse.URL = strings.TrimRight(c.Discourse.URL, "/")
	c.StartDate = start
	// The end bound is inclusive of the whole end day.
	c.EndDate = end.AddDate(0, 0, 1).Add(-time.Nanosecond)

	if c.HTTP.TimeoutSeconds <= 0 {
		c.HTTP.TimeoutSeconds = 30
	}
	if c.HTTP.PageSize <= 0 {
		c.HTTP.PageSize = 30
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "."
	}

	return nil
}

// Timeout returns the HTTP client timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
