package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ProviderConfig overrides the built-in endpoint or model of one provider.
// Endpoint may contain the {model} placeholder.
type ProviderConfig struct {
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
}

type Config struct {
	DefaultProvider string `json:"default_provider,omitempty" yaml:"default_provider,omitempty"`
	TimeoutSeconds  int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	// One extra attempt on network failure, 429 or 5xx. Off by default.
	RetryTransport  bool   `json:"retry_transport,omitempty" yaml:"retry_transport,omitempty"`
	CredentialsFile string `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`
	LogFile         string `json:"log_file,omitempty" yaml:"log_file,omitempty"`
	LogLevel        string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	Proxy           string `json:"proxy,omitempty" yaml:"proxy,omitempty"`
	ListenAddr      string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
	ServerToken     string `json:"server_token,omitempty" yaml:"server_token,omitempty"`
	FillConcurrency int    `json:"fill_concurrency,omitempty" yaml:"fill_concurrency,omitempty"`
	// Usage counters are kept in memory only when empty.
	MetricsFile string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`

	Providers map[string]ProviderConfig `json:"providers,omitempty" yaml:"providers,omitempty"`

	// APIKeys holds keys taken from the environment. They are never written
	// back to a config file.
	APIKeys map[string]string `json:"-" yaml:"-"`
}

func defaultConfig() Config {
	return Config{
		DefaultProvider: "gemini",
		TimeoutSeconds:  30,
		RetryTransport:  false,
		LogFile:         "/tmp/cellgen.log",
		LogLevel:        "info",
		ListenAddr:      "127.0.0.1:8787",
		FillConcurrency: 4,
		Providers:       map[string]ProviderConfig{},
		APIKeys:         map[string]string{},
	}
}

// keyEnv maps provider ids to the environment variables holding their keys.
var keyEnv = map[string]string{
	"gemini":   "GEMINI_API_KEY",
	"chatgpt":  "OPENAI_API_KEY",
	"deepseek": "DEEPSEEK_API_KEY",
}

// Load loads configuration from an optional JSON or YAML file, a .env file
// and the environment.
// Precedence: env > .env > file > defaults
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	} else if !fileExists(path) {
		return cfg, fmt.Errorf("config: %q does not exist", path)
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
		cfg.fillDefaults()
	}

	// .env never overrides variables that are already set.
	envFile := strings.TrimSpace(os.Getenv("CELLGEN_ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if fileExists(envFile) {
		if err := godotenv.Load(envFile); err != nil {
			return cfg, fmt.Errorf("config: load %q: %w", envFile, err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("CELLGEN_PROVIDER")); v != "" {
		cfg.DefaultProvider = v
	}
	if v := strings.TrimSpace(os.Getenv("CELLGEN_TIMEOUT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TimeoutSeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CELLGEN_RETRY_TRANSPORT")); v != "" {
		cfg.RetryTransport = v == "1" || strings.ToLower(v) == "true"
	}
	if v := strings.TrimSpace(os.Getenv("CELLGEN_CREDENTIALS_FILE")); v != "" {
		cfg.CredentialsFile = v
	}
	if v := strings.TrimSpace(os.Getenv("CELLGEN_LOG_FILE")); v != "" {
		cfg.LogFile = v
	}
	if v := strings.TrimSpace(os.Getenv("CELLGEN_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("CELLGEN_PROXY")); v != "" {
		cfg.Proxy = v
	}
	if v := strings.TrimSpace(os.Getenv("CELLGEN_LISTEN")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("CELLGEN_SERVER_TOKEN")); v != "" {
		cfg.ServerToken = v
	}
	if v := strings.TrimSpace(os.Getenv("CELLGEN_FILL_CONCURRENCY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FillConcurrency = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CELLGEN_METRICS_FILE")); v != "" {
		cfg.MetricsFile = v
	}
	if cfg.APIKeys == nil {
		cfg.APIKeys = map[string]string{}
	}
	for provider, name := range keyEnv {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			cfg.APIKeys[provider] = v
		}
	}

	return cfg, nil
}

// fillDefaults restores defaults for fields a config file set to their zero
// value. An empty listen_addr would otherwise bind every interface.
func (c *Config) fillDefaults() {
	d := defaultConfig()
	if strings.TrimSpace(c.DefaultProvider) == "" {
		c.DefaultProvider = d.DefaultProvider
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = d.TimeoutSeconds
	}
	if strings.TrimSpace(c.LogFile) == "" {
		c.LogFile = d.LogFile
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = d.LogLevel
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.FillConcurrency <= 0 {
		c.FillConcurrency = d.FillConcurrency
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
}

// Listen is the panel address. It is never empty.
func (c Config) Listen() string {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return defaultConfig().ListenAddr
	}
	return c.ListenAddr
}

// Timeout is the per-request HTTP timeout. It is never zero.
func (c Config) Timeout() int {
	if c.TimeoutSeconds <= 0 {
		return 30
	}
	return c.TimeoutSeconds
}

// Provider returns the override for id, if any.
func (c Config) Provider(id string) ProviderConfig {
	return c.Providers[strings.ToLower(id)]
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %q: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return fmt.Errorf("config: unmarshal %q: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, cfg); err != nil {
			return fmt.Errorf("config: unmarshal %q: %w", path, err)
		}
	}
	normalized := make(map[string]ProviderConfig, len(cfg.Providers))
	for id, pc := range cfg.Providers {
		normalized[strings.ToLower(strings.TrimSpace(id))] = pc
	}
	cfg.Providers = normalized
	return nil
}

func findConfigFile() string {
	var dirs []string
	if home, _ := os.UserHomeDir(); home != "" {
		dirs = append(dirs, filepath.Join(home, ".config", "cellgen"))
	}
	dirs = append(dirs, "/etc/cellgen")
	for _, dir := range dirs {
		for _, name := range []string{"config.yaml", "config.yml", "config.json"} {
			if p := filepath.Join(dir, name); fileExists(p) {
				return p
			}
		}
	}
	return ""
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	return err == nil && !st.IsDir()
}

// ReadFile returns only what the file at path holds, without defaults or
// environment. A missing file yields an empty Config.
func ReadFile(path string) (Config, error) {
	var cfg Config
	if !fileExists(path) {
		return cfg, nil
	}
	if err := loadFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// UserPath is where the setup wizard writes preferences.
func UserPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "cellgen", "config.yaml")
	}
	return filepath.Join(home, ".config", "cellgen", "config.yaml")
}

// Save writes cfg to path as YAML, or JSON for a .json path. API keys taken
// from the environment are never written.
func Save(path string, cfg Config) error {
	var (
		b   []byte
		err error
	)
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		b, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		b, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("config: write %q: %w", path, err)
	}
	return nil
}
