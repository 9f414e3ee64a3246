// internal/config/config.go
//
// This package handles configuration and the .countersign directory structure.
// Every project that prepares signature requests gets a .countersign/ folder
// in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ProjectDirName is the name of the directory we create in each project
	ProjectDirName = ".countersign"

	DefaultDispatchTimeout = 30 * time.Second
	DefaultSuggestTimeout  = 20 * time.Second
	DefaultSandboxHost     = "127.0.0.1"
	DefaultSandboxPort     = 8787
	DefaultRedisList       = "countersign:envelopes"
	DefaultMaxBodyBytes    = int64(1 << 20)
	DefaultFailStatus      = 502
	MaxSandboxLatency      = time.Minute
)

const defaultProjectConfigYAML = `# countersign project configuration
version: 1

# Where finished signature requests go.
#   log:   write the envelope to the journey log only
#   http:  POST the envelope as JSON to endpoint (the sandbox listens on /envelopes)
#   redis: LPUSH the envelope onto redis_list
dispatch:
  mode: log
  endpoint: http://127.0.0.1:8787
  timeout: 30s
  redis_addr: 127.0.0.1:6379
  redis_list: countersign:envelopes

# Message suggestions on the review step. provider: static | openai | claude | gemini
suggest:
  provider: static
  model: ""
  base_url: ""
  api_key_env: ""
  timeout: 20s

# Known signers offered on the signers step. source: none | yaml | sqlite | mysql
directory:
  source: yaml
  path: signers.yaml
  # dsn: user:pass@tcp(127.0.0.1:3306)/countersign

sandbox:
  host: 127.0.0.1
  port: 8787
  max_body_bytes: 1048576
  # Rehearse slow or failing sends.
  latency: 0s
  fail_next: 0
  fail_status: 502

drafts:
  enabled: true
`

// DispatchConfig selects and configures the dispatch collaborator.
type DispatchConfig struct {
	Mode          string        `yaml:"mode"`
	Endpoint      string        `yaml:"endpoint,omitempty"`
	Timeout       time.Duration `yaml:"timeout"`
	RedisAddr     string        `yaml:"redis_addr,omitempty"`
	RedisPassword string        `yaml:"redis_password,omitempty"`
	RedisDB       int           `yaml:"redis_db,omitempty"`
	RedisList     string        `yaml:"redis_list,omitempty"`
}

// SuggestConfig configures the message suggestion provider.
type SuggestConfig struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model,omitempty"`
	BaseURL   string        `yaml:"base_url,omitempty"`
	APIKeyEnv string        `yaml:"api_key_env,omitempty"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DirectoryConfig points at the candidate signer directory.
type DirectoryConfig struct {
	Source string `yaml:"source"`
	Path   string `yaml:"path,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`
}

// SandboxConfig configures the local signing sandbox.
type SandboxConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
	// Latency delays every accepted envelope so the sending state is visible.
	Latency time.Duration `yaml:"latency"`
	// FailNext rejects that many envelopes after startup with FailStatus.
	FailNext   int `yaml:"fail_next"`
	FailStatus int `yaml:"fail_status"`
}

// DraftsConfig toggles session draft persistence.
type DraftsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ProjectConfig models .countersign/config.yaml.
type ProjectConfig struct {
	Version   int             `yaml:"version"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Suggest   SuggestConfig   `yaml:"suggest"`
	Directory DirectoryConfig `yaml:"directory"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Drafts    DraftsConfig    `yaml:"drafts"`
}

// Config holds the runtime configuration.
type Config struct {
	// ProjectDir is the directory where the user ran countersign from
	ProjectDir string

	// StateDir is ProjectDir/.countersign
	StateDir string

	Project ProjectConfig
}

// InitProjectDir creates the .countersign directory structure in the given
// project directory.
//
// Structure created:
// .countersign/
// ├── config.yaml
// ├── logs/     <- journey log
// └── drafts/   <- resumable session snapshot
func InitProjectDir(projectDir string) error {
	root := filepath.Join(projectDir, ProjectDirName)
	dirs := []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "drafts"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return ensureProjectConfig(filepath.Join(root, "config.yaml"))
}

// NewConfig loads .countersign/config.yaml (defaults when missing) and
// applies COUNTERSIGN_* environment overrides.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir: projectDir,
		StateDir:   filepath.Join(projectDir, ProjectDirName),
		Project:    defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	cfg.Project.normalize(projectDir)
	if err := cfg.Project.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateDir, "logs")
}

// JourneyLogPath returns the logbook file.
func (c *Config) JourneyLogPath() string {
	return filepath.Join(c.LogsDir(), "journey.log")
}

// DraftsDir returns the directory holding the session draft
func (c *Config) DraftsDir() string {
	return filepath.Join(c.StateDir, "drafts")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateDir, "config.yaml")
}

// SandboxAddr returns host:port for the sandbox listener.
func (c *Config) SandboxAddr() string {
	return net.JoinHostPort(c.Project.Sandbox.Host, strconv.Itoa(c.Project.Sandbox.Port))
}

// SuggestAPIKey reads the API key from the configured environment variable.
func (c *Config) SuggestAPIKey() string {
	name := strings.TrimSpace(c.Project.Suggest.APIKeyEnv)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	parsed := defaultProjectConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func (c *Config) applyEnvOverrides() {
	p := &c.Project
	if v := strings.TrimSpace(os.Getenv("COUNTERSIGN_DISPATCH_MODE")); v != "" {
		p.Dispatch.Mode = v
	}
	if v := strings.TrimSpace(os.Getenv("COUNTERSIGN_DISPATCH_ENDPOINT")); v != "" {
		p.Dispatch.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("COUNTERSIGN_DISPATCH_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			p.Dispatch.Timeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("COUNTERSIGN_REDIS_ADDR")); v != "" {
		p.Dispatch.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("COUNTERSIGN_SUGGEST_PROVIDER")); v != "" {
		p.Suggest.Provider = v
	}
	if v := strings.TrimSpace(os.Getenv("COUNTERSIGN_DIRECTORY_DSN")); v != "" {
		p.Directory.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("COUNTERSIGN_SANDBOX_HOST")); v != "" {
		p.Sandbox.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("COUNTERSIGN_SANDBOX_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil && isValidPort(port) {
			p.Sandbox.Port = port
		}
	}
	if v := strings.TrimSpace(os.Getenv("COUNTERSIGN_SANDBOX_LATENCY")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			p.Sandbox.Latency = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("COUNTERSIGN_SANDBOX_FAIL_NEXT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Sandbox.FailNext = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("COUNTERSIGN_SANDBOX_FAIL_STATUS")); v != "" {
		if status, err := strconv.Atoi(v); err == nil {
			p.Sandbox.FailStatus = status
		}
	}
	if v := strings.TrimSpace(os.Getenv("COUNTERSIGN_DRAFTS")); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			p.Drafts.Enabled = enabled
		}
	}
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version: 1,
		Dispatch: DispatchConfig{
			Mode:      "log",
			Timeout:   DefaultDispatchTimeout,
			RedisList: DefaultRedisList,
		},
		Suggest: SuggestConfig{
			Provider: "static",
			Timeout:  DefaultSuggestTimeout,
		},
		Directory: DirectoryConfig{Source: "none"},
		Sandbox: SandboxConfig{
			Host:         DefaultSandboxHost,
			Port:         DefaultSandboxPort,
			MaxBodyBytes: DefaultMaxBodyBytes,
			FailStatus:   DefaultFailStatus,
		},
		Drafts: DraftsConfig{Enabled: true},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Dispatch.Timeout <= 0 {
		pc.Dispatch.Timeout = DefaultDispatchTimeout
	}
	if pc.Dispatch.RedisList == "" {
		pc.Dispatch.RedisList = DefaultRedisList
	}
	if pc.Suggest.Timeout <= 0 {
		pc.Suggest.Timeout = DefaultSuggestTimeout
	}
	if pc.Sandbox.Host == "" {
		pc.Sandbox.Host = DefaultSandboxHost
	}
	if pc.Sandbox.Port == 0 {
		pc.Sandbox.Port = DefaultSandboxPort
	}
	if pc.Sandbox.MaxBodyBytes <= 0 {
		pc.Sandbox.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if pc.Sandbox.FailStatus == 0 {
		pc.Sandbox.FailStatus = DefaultFailStatus
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.Dispatch.Mode = normalizeSource(pc.Dispatch.Mode)
	if pc.Dispatch.Mode == "" {
		pc.Dispatch.Mode = "log"
	}
	pc.Dispatch.Endpoint = strings.TrimRight(strings.TrimSpace(pc.Dispatch.Endpoint), "/")
	pc.Dispatch.RedisAddr = strings.TrimSpace(pc.Dispatch.RedisAddr)
	pc.Suggest.Provider = normalizeSource(pc.Suggest.Provider)
	if pc.Suggest.Provider == "" {
		pc.Suggest.Provider = "static"
	}
	pc.Suggest.Model = strings.TrimSpace(pc.Suggest.Model)
	pc.Suggest.BaseURL = strings.TrimSpace(pc.Suggest.BaseURL)
	pc.Directory.Source = normalizeSource(pc.Directory.Source)
	if pc.Directory.Source == "" {
		pc.Directory.Source = "none"
	}
	pc.Directory.Path = resolvePath(base, pc.Directory.Path)
	pc.Directory.DSN = strings.TrimSpace(pc.Directory.DSN)
	pc.Sandbox.Host = strings.TrimSpace(pc.Sandbox.Host)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	switch pc.Dispatch.Mode {
	case "log":
	case "http":
		if pc.Dispatch.Endpoint == "" {
			return fmt.Errorf("dispatch.endpoint is required for http dispatch")
		}
	case "redis":
		if pc.Dispatch.RedisAddr == "" {
			return fmt.Errorf("dispatch.redis_addr is required for redis dispatch")
		}
	default:
		return fmt.Errorf("dispatch.mode must be 'log', 'http' or 'redis'")
	}
	switch pc.Suggest.Provider {
	case "static":
	case "openai", "claude", "gemini":
		if pc.Suggest.Model == "" {
			return fmt.Errorf("suggest.model is required for provider %s", pc.Suggest.Provider)
		}
	default:
		return fmt.Errorf("suggest.provider must be 'static', 'openai', 'claude' or 'gemini'")
	}
	switch pc.Directory.Source {
	case "none":
	case "yaml", "sqlite":
		if pc.Directory.Path == "" {
			return fmt.Errorf("directory.path is required for %s directories", pc.Directory.Source)
		}
	case "mysql":
		if pc.Directory.DSN == "" {
			return fmt.Errorf("directory.dsn is required for mysql directories")
		}
	default:
		return fmt.Errorf("directory.source must be 'none', 'yaml', 'sqlite' or 'mysql'")
	}
	if !isValidPort(pc.Sandbox.Port) {
		return fmt.Errorf("sandbox.port %d is out of range", pc.Sandbox.Port)
	}
	if pc.Sandbox.Latency < 0 || pc.Sandbox.Latency > MaxSandboxLatency {
		return fmt.Errorf("sandbox.latency must be between 0s and %s", MaxSandboxLatency)
	}
	if pc.Sandbox.FailNext < 0 {
		return fmt.Errorf("sandbox.fail_next cannot be negative")
	}
	if pc.Sandbox.FailStatus < 400 || pc.Sandbox.FailStatus > 599 {
		return fmt.Errorf("sandbox.fail_status %d is not an HTTP error status", pc.Sandbox.FailStatus)
	}
	return nil
}

func isValidPort(port int) bool {
	return port > 0 && port < 65536
}

func normalizeSource(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
