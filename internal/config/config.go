package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"

	"github.com/BuzzLyutic/task-tracker-cli/internal/service"
)

const (
	DefaultTasksFile          = "tasks.json"
	DefaultLogLevel           = "warn"
	DefaultLockTimeoutSeconds = 5
	DefaultOnCorrupt          = string(service.CorruptRefuse)

	appName = "task-cli"
)

// Environment variables, applied after config files and before flags.
const (
	EnvTasksFile   = "TASK_CLI_FILE"
	EnvLogLevel    = "TASK_CLI_LOG_LEVEL"
	EnvLockTimeout = "TASK_CLI_LOCK_TIMEOUT"
	EnvOnCorrupt   = "TASK_CLI_ON_CORRUPT"
)

type Config struct {
	TasksFile          string `toml:"tasks_file"`
	LogLevel           string `toml:"log_level"`
	LockTimeoutSeconds int    `toml:"lock_timeout_seconds"`
	OnCorrupt          string `toml:"on_corrupt"`

	// WorkDir anchors relative paths. Defaults to the process working directory.
	WorkDir string `toml:"-"`
}

// LockTimeout returns the lock wait as a duration.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutSeconds) * time.Second
}

// Level returns the parsed log level.
func (c *Config) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.WarnLevel
	}
	return lvl
}

// CorruptPolicy returns the parsed corrupt-file policy.
func (c *Config) CorruptPolicy() service.CorruptPolicy {
	return service.CorruptPolicy(c.OnCorrupt)
}

// Load builds the configuration from, lowest priority first:
// defaults, the user config file, the project config file, .env, the environment, flags.
// Flags are registered on fs and parsed from args; fs.Args() holds the command afterwards.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}
	setDefaults(cfg)

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	cfg.WorkDir = wd

	if path := findUserConfigFile(); path != "" {
		if err := loadConfigFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading user config file %s: %w", path, err)
		}
	}
	if path := findProjectConfigFile(cfg.WorkDir); path != "" {
		if err := loadConfigFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading project config file %s: %w", path, err)
		}
	}

	if err := loadDotEnv(cfg.WorkDir); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	if err := parseFlags(cfg, fs, args); err != nil {
		return nil, err
	}

	if err := finalizeConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.TasksFile = DefaultTasksFile
	cfg.LogLevel = DefaultLogLevel
	cfg.LockTimeoutSeconds = DefaultLockTimeoutSeconds
	cfg.OnCorrupt = DefaultOnCorrupt
}

func findUserConfigFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, appName, "config.toml")
	if fileExists(path) {
		return path
	}
	return ""
}

func findProjectConfigFile(workDir string) string {
	for _, name := range []string{appName + ".toml", "." + appName + ".toml"} {
		path := filepath.Join(workDir, name)
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// loadConfigFile overlays the keys present in a TOML file onto cfg.
func loadConfigFile(cfg *Config, path string) error {
	_, err := toml.DecodeFile(path, cfg)
	return err
}

// loadDotEnv exports variables from workDir/.env without overriding the real environment.
func loadDotEnv(workDir string) error {
	path := filepath.Join(workDir, ".env")
	if !fileExists(path) {
		return nil
	}
	return godotenv.Load(path)
}

func loadFromEnv(cfg *Config) error {
	if v := os.Getenv(EnvTasksFile); v != "" {
		cfg.TasksFile = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvLockTimeout); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not a number of seconds", EnvLockTimeout, v)
		}
		cfg.LockTimeoutSeconds = n
	}
	if v := os.Getenv(EnvOnCorrupt); v != "" {
		cfg.OnCorrupt = v
	}
	return nil
}

func parseFlags(cfg *Config, fs *flag.FlagSet, args []string) error {
	fs.StringVar(&cfg.TasksFile, "file", cfg.TasksFile, "Task file path")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug|info|warn|error)")
	fs.IntVar(&cfg.LockTimeoutSeconds, "lock-timeout", cfg.LockTimeoutSeconds, "Seconds to wait for the task file lock")
	fs.StringVar(&cfg.OnCorrupt, "on-corrupt", cfg.OnCorrupt, "What mutating commands do with an unreadable task file (refuse|reset)")
	return fs.Parse(args)
}

func finalizeConfig(cfg *Config) error {
	if cfg.TasksFile == "" {
		return errors.New("tasks file path is empty")
	}
	if !filepath.IsAbs(cfg.TasksFile) {
		cfg.TasksFile = filepath.Join(cfg.WorkDir, cfg.TasksFile)
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	if cfg.LockTimeoutSeconds <= 0 {
		return fmt.Errorf("lock timeout must be positive, got %d", cfg.LockTimeoutSeconds)
	}
	if _, err := service.ParseCorruptPolicy(cfg.OnCorrupt); err != nil {
		return err
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
