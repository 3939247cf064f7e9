// Package config loads the giztalk configuration.
//
// The file lives at os.UserConfigDir()/giztalk/config.yaml unless --config
// names another one:
//
//	~/Library/Application Support/giztalk/config.yaml   (macOS)
//	~/.config/giztalk/config.yaml                       (Linux)
//	%AppData%/giztalk/config.yaml                       (Windows)
//
// A .env file in the working directory is loaded first, and environment
// variables override values from the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/haivivi/giztalk/pkg/recording"
)

const (
	appDir   = "giztalk"
	fileName = "config.yaml"
)

// Config is the whole configuration file.
type Config struct {
	// Path is where the config was loaded from and is saved to.
	Path string `yaml:"-"`

	Server    Server    `yaml:"server"`
	OpenAI    OpenAI    `yaml:"openai"`
	Database  Database  `yaml:"database"`
	Toss      Toss      `yaml:"toss"`
	Credits   Credits   `yaml:"credits"`
	Recording Recording `yaml:"recording"`
	Call      Call      `yaml:"call"`
}

type Server struct {
	Addr string `yaml:"addr,omitempty"`

	// AppURL is the public URL of the web app, used for payment redirects.
	AppURL     string `yaml:"app_url,omitempty"`
	AdminToken string `yaml:"admin_token,omitempty"`
}

type OpenAI struct {
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL overrides the chat completions endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// RealtimeURL overrides the realtime HTTP endpoint.
	RealtimeURL string `yaml:"realtime_url,omitempty"`
}

// Database selects the store: Postgres when URL is set, Badger otherwise.
type Database struct {
	URL       string `yaml:"url,omitempty"`
	BadgerDir string `yaml:"badger_dir,omitempty"`
}

type Toss struct {
	SecretKey string `yaml:"secret_key,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
}

type Credits struct {
	Per5000Won int `yaml:"per_5000_won,omitempty"`
}

// Recording picks where call recordings go: S3 when a bucket is set, the
// local directory otherwise.
type Recording struct {
	Dir string                  `yaml:"dir,omitempty"`
	S3  *recording.BucketConfig `yaml:"s3,omitempty"`
}

// Call configures `giztalk call`.
type Call struct {
	APIURL    string `yaml:"api_url,omitempty"`
	UserID    string `yaml:"user_id,omitempty"`
	UserEmail string `yaml:"user_email,omitempty"`
	UserName  string `yaml:"user_name,omitempty"`
	Style     string `yaml:"style,omitempty"`
}

// DefaultPath returns the default config file path.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}
	return filepath.Join(base, appDir, fileName), nil
}

// Load reads path, or the default path when empty. A missing file yields
// an empty config. Defaults are filled in but the environment is not
// applied; see ApplyEnv.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}
	cfg := &Config{Path: path}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.Path = path
	}
	cfg.defaults()
	return cfg, nil
}

func (c *Config) defaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.Database.BadgerDir == "" {
		c.Database.BadgerDir = filepath.Join(filepath.Dir(c.Path), "data")
	}
	if c.Recording.Dir == "" {
		c.Recording.Dir = filepath.Join(filepath.Dir(c.Path), "recordings")
	}
	if c.Call.APIURL == "" {
		c.Call.APIURL = "http://" + c.Server.Addr
	}
}

// LoadDotEnv loads a .env file into the process environment. A missing
// file is not an error. Variables already set win.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides file values with the environment.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	set(&c.Database.URL, "DATABASE_URL")
	set(&c.Toss.SecretKey, "TOSS_PAYMENTS_SECRET_KEY")
	set(&c.Server.AppURL, "PUBLIC_APP_URL")
	set(&c.Server.AdminToken, "GIZTALK_ADMIN_TOKEN")
	if v := getenv("CREDITS_PER_5000_WON"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("CREDITS_PER_5000_WON: invalid value %q", v)
		}
		c.Credits.Per5000Won = n
	}
	return nil
}

// Save writes the config to c.Path.
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(c.Path, data, 0o600)
}

// Set assigns a dotted key such as "openai.api_key". The value is parsed as
// a YAML scalar so numbers and booleans keep their type.
func (c *Config) Set(key, value string) error {
	tree, err := c.tree()
	if err != nil {
		return err
	}
	var scalar any
	if err := yaml.Unmarshal([]byte(value), &scalar); err != nil {
		scalar = value
	}
	switch scalar.(type) {
	case nil, map[string]any, []any:
		scalar = value
	}
	parts := strings.Split(key, ".")
	node := tree
	for _, p := range parts[:len(parts)-1] {
		next, ok := node[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[p] = next
		}
		node = next
	}
	node[parts[len(parts)-1]] = scalar

	data, err := yaml.Marshal(tree)
	if err != nil {
		return err
	}
	next := &Config{}
	if err := yaml.UnmarshalWithOptions(data, next, yaml.Strict()); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	next.Path = c.Path
	*c = *next
	return nil
}

// Get returns the value at a dotted key rendered as YAML.
func (c *Config) Get(key string) (string, error) {
	tree, err := c.tree()
	if err != nil {
		return "", err
	}
	var node any = tree
	for _, p := range strings.Split(key, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return "", fmt.Errorf("key %q not set", key)
		}
		if node, ok = m[p]; !ok {
			return "", fmt.Errorf("key %q not set", key)
		}
	}
	if s, ok := node.(string); ok {
		return s, nil
	}
	data, err := yaml.Marshal(node)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (c *Config) tree() (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	tree := map[string]any{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.OpenAI.APIKey = mask(c.OpenAI.APIKey)
	out.Toss.SecretKey = mask(c.Toss.SecretKey)
	out.Server.AdminToken = mask(c.Server.AdminToken)
	out.Database.URL = maskURL(c.Database.URL)
	if c.Recording.S3 != nil {
		s3 := *c.Recording.S3
		s3.SecretKey = mask(s3.SecretKey)
		out.Recording.S3 = &s3
	}
	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

func maskURL(s string) string {
	at := strings.LastIndex(s, "@")
	scheme := strings.Index(s, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return s
	}
	creds := s[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		creds = creds[:i] + ":****"
	}
	return s[:scheme+3] + creds + s[at:]
}
