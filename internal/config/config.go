package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/hochfrequenz/claude-code-node/internal/credentials"
	"github.com/hochfrequenz/claude-code-node/internal/domain"
)

// LocalConfigName is the project-local config file searched for upwards from the cwd
const LocalConfigName = ".claude-node.toml"

// Config holds all application configuration
type Config struct {
	General    GeneralConfig                     `toml:"general"`
	Claude     ClaudeConfig                      `toml:"claude"`
	Anthropic  credentials.ClaudeCodeAPI         `toml:"anthropic"`
	MCPServers map[string]*credentials.MCPServer `toml:"mcp_servers"`
	Logging    LoggingConfig                     `toml:"logging"`
	Web        WebConfig                         `toml:"web"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabasePath   string `toml:"database_path"`
	ContinueOnFail bool   `toml:"continue_on_fail"`
}

// ClaudeConfig holds settings for the Claude Code CLI
type ClaudeConfig struct {
	CLIPath        string `toml:"cli_path"`
	DefaultTimeout int    `toml:"default_timeout"`
	// ModelAliases extends the API-model to CLI-model table
	ModelAliases map[string]string `toml:"model_aliases"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// WebConfig holds web API settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath: filepath.Join(home, ".claude-code-node", "runs.db"),
		},
		Claude: ClaudeConfig{
			CLIPath:        "claude",
			DefaultTimeout: domain.DefaultTimeoutSeconds,
			ModelAliases:   map[string]string{},
		},
		Anthropic: credentials.ClaudeCodeAPI{
			AuthMethod: credentials.AuthAPIKey,
			BaseURL:    credentials.DefaultBaseURL,
		},
		MCPServers: map[string]*credentials.MCPServer{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.Claude.CLIPath = ExpandPath(cfg.Claude.CLIPath)
	for _, srv := range cfg.MCPServers {
		srv.Cwd = ExpandPath(srv.Cwd)
	}

	// The environment fills a key the file leaves empty
	if cfg.Anthropic.APIKey == "" {
		cfg.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return cfg, nil
}

// LoadWithLocalFallback loads path when given, otherwise the nearest local
// config, otherwise the default config path
func LoadWithLocalFallback(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if local := FindLocalConfig(); local != "" {
		return Load(local)
	}
	return Load(DefaultConfigPath())
}

// FindLocalConfig searches the working directory and its parents for LocalConfigName
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "claude-code-node", "config.toml")
}
