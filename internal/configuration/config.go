package configuration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `toml:"server"`
	LLM     LLMConfig     `toml:"llm"`
	WATI    WATIConfig    `toml:"wati"`
	Agent   AgentConfig   `toml:"agent"`
	Logging LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	Port        int           `toml:"port"`
	TurnTimeout time.Duration `toml:"turn_timeout"`
}

type LLMConfig struct {
	Provider        string `toml:"provider"` // deepseek, openai, ollama, anthropic
	Model           string `toml:"model"`
	DeepSeekKey     string `toml:"deepseek_api_key"`
	DeepSeekBaseURL string `toml:"deepseek_base_url"`
	OpenAIKey       string `toml:"openai_api_key"`
	AnthropicKey    string `toml:"anthropic_api_key"`
	OllamaHost      string `toml:"ollama_host"`
}

type WATIConfig struct {
	BaseURL        string   `toml:"base_url"`
	AuthToken      string   `toml:"auth_token"`
	AllowedNumbers []string `toml:"allowed_numbers"`
}

type AgentConfig struct {
	PromptPath        string        `toml:"prompt_path"`
	LocationsPath     string        `toml:"locations_path"` // empty uses the bundled directory
	Window            int           `toml:"history_window"`
	MaxToolRounds     int           `toml:"max_tool_rounds"`
	CompletionTimeout time.Duration `toml:"completion_timeout"`
	NotifyTimeout     time.Duration `toml:"notify_timeout"`
	MaxConversations  int           `toml:"max_conversations"`
	IdleTTL           time.Duration `toml:"idle_ttl"`
	Debug             bool          `toml:"debug"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`  // trace, debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        3006,
			TurnTimeout: 3 * time.Minute,
		},
		LLM: LLMConfig{
			Provider: "deepseek",
		},
		Agent: AgentConfig{
			PromptPath:        "./zostel-prompt.md",
			Window:            10,
			MaxToolRounds:     3,
			CompletionTimeout: 60 * time.Second,
			NotifyTimeout:     30 * time.Second,
			MaxConversations:  1000,
			IdleTTL:           24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPaths lists the config file locations searched in order.
func DefaultPaths() []string {
	return []string{
		"./config.toml", // Current directory (for development)
		filepath.Join(os.Getenv("HOME"), ".config", "zostelagent", "config.toml"),
		"/etc/zostelagent/config.toml",
	}
}

// LoadConfig reads .env into the environment, then calls Load with the
// default search paths. Environment values win over the file.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config, loadedPath, err := Load(DefaultPaths(), os.Getenv)
	if err != nil {
		return nil, err
	}

	if loadedPath == "" {
		color.Yellow("No config file found. Using defaults and environment variables.")
	} else {
		color.Green("Loaded config from: %s", loadedPath)
	}
	return config, nil
}

// Load decodes the first existing file in paths over the defaults, then
// applies environment overrides read through getenv. It returns the path
// that was loaded, or "" if none existed.
func Load(paths []string, getenv func(string) string) (*Config, string, error) {
	config := DefaultConfig()

	var loadedPath string
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if _, err := toml.DecodeFile(path, config); err != nil {
			return nil, "", fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		loadedPath = path
		break
	}

	if err := applyEnv(config, getenv); err != nil {
		return nil, "", err
	}
	return config, loadedPath, nil
}

// applyEnv overrides config with environment variables if set
func applyEnv(c *Config, getenv func(string) string) error {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.DeepSeekKey, "DEEPSEEK_API_KEY")
	setString(&c.LLM.DeepSeekBaseURL, "DEEPSEEK_BASE_URL")
	setString(&c.LLM.OpenAIKey, "OPENAI_API_KEY")
	setString(&c.LLM.AnthropicKey, "ANTHROPIC_API_KEY")
	setString(&c.LLM.OllamaHost, "OLLAMA_HOST")
	setString(&c.WATI.BaseURL, "WATI_BASE_URL")
	setString(&c.WATI.AuthToken, "WATI_AUTH_TOKEN")
	setString(&c.Agent.PromptPath, "PROMPT_PATH")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")

	if v := getenv("WHATSAPP_NUMBERS"); strings.TrimSpace(v) != "" {
		c.WATI.AllowedNumbers = splitList(v)
	}
	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if getenv("DEBUG") == "true" {
		c.Agent.Debug = true
	}
	c.LLM.Provider = strings.ToLower(c.LLM.Provider)
	return nil
}

// splitList parses "a, b,c" style lists, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LogLevel returns the effective log level; debug mode wins.
func (c *Config) LogLevel() string {
	if c.Agent.Debug {
		return "debug"
	}
	return c.Logging.Level
}

// ValidateLLM checks that the selected provider has what it needs.
func (c *Config) ValidateLLM() error {
	switch c.LLM.Provider {
	case "deepseek":
		if c.LLM.DeepSeekKey == "" {
			return errors.New("DEEPSEEK_API_KEY not set")
		}
	case "openai":
		if c.LLM.OpenAIKey == "" {
			return errors.New("OPENAI_API_KEY not set")
		}
	case "anthropic":
		if c.LLM.AnthropicKey == "" {
			return errors.New("ANTHROPIC_API_KEY not set")
		}
	case "ollama":
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q (supported: deepseek, openai, ollama, anthropic)", c.LLM.Provider)
	}
	return nil
}

// Validate checks everything the webhook server needs.
func (c *Config) Validate() error {
	var errs []error
	if err := c.ValidateLLM(); err != nil {
		errs = append(errs, err)
	}
	if c.WATI.BaseURL == "" {
		errs = append(errs, errors.New("WATI_BASE_URL not set"))
	}
	if c.WATI.AuthToken == "" {
		errs = append(errs, errors.New("WATI_AUTH_TOKEN not set"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if c.Agent.PromptPath == "" {
		errs = append(errs, errors.New("prompt path not set"))
	}
	if c.Agent.Window <= 0 {
		errs = append(errs, fmt.Errorf("history_window must be positive, got %d", c.Agent.Window))
	}
	if c.Agent.MaxToolRounds < 0 {
		errs = append(errs, fmt.Errorf("max_tool_rounds must not be negative, got %d", c.Agent.MaxToolRounds))
	}
	return errors.Join(errs...)
}
