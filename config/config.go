package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/tejiriaustin/tiffwatch/logger"
)

type Config struct {
	ConfigPath     string
	WatchDirectory string        `mapstructure:"watch_directory" validate:"required"`
	Interval       time.Duration `mapstructure:"interval" validate:"gt=0"`
	Duration       time.Duration `mapstructure:"duration" validate:"gte=0"`
	LowSpaceGB     float64       `mapstructure:"low_space_gb" validate:"gte=0"`
	Extensions     []string      `mapstructure:"extensions" validate:"min=1,dive,startswith=."`
	VerifyContent  bool          `mapstructure:"verify_content"`
	SettleWindow   time.Duration `mapstructure:"settle_window" validate:"gte=0"`

	LogWebhookURL  string        `mapstructure:"log_webhook_url" validate:"omitempty,url"`
	WarnWebhookURL string        `mapstructure:"warn_webhook_url" validate:"omitempty,url"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout" validate:"gt=0"`
	WebhookRetries uint64        `mapstructure:"webhook_retries"`
	WebhookRate    float64       `mapstructure:"webhook_rate" validate:"gt=0"`

	Port          string `mapstructure:"port" validate:"required"`
	DatabasePath  string `mapstructure:"database_path" validate:"required"`
	PidFilePath   string `mapstructure:"pid_file_path"`
	OsquerySocket string `mapstructure:"osquery_socket"`

	mutex sync.RWMutex
}

var (
	appConfig     = &Config{}
	configRWMutex sync.RWMutex
)

func GetConfig() *Config {
	configRWMutex.RLock()
	defer configRWMutex.RUnlock()
	return appConfig
}

// SetDefaults registers every known key on v so that Unmarshal and
// AutomaticEnv see them even when no config file exists.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("watch_directory", "")
	v.SetDefault("interval", "21m")
	v.SetDefault("duration", "0s")
	v.SetDefault("low_space_gb", 75.0)
	v.SetDefault("extensions", []string{".tif", ".tiff"})
	v.SetDefault("verify_content", false)
	v.SetDefault("settle_window", "30s")
	v.SetDefault("log_webhook_url", "")
	v.SetDefault("warn_webhook_url", "")
	v.SetDefault("webhook_timeout", "10s")
	v.SetDefault("webhook_retries", 3)
	v.SetDefault("webhook_rate", 1.0)
	v.SetDefault("port", ":8085")
	v.SetDefault("database_path", filepath.Join(os.TempDir(), "tiffwatch.db"))
	v.SetDefault("pid_file_path", filepath.Join(os.TempDir(), "tiffwatch.pid"))
	v.SetDefault("osquery_socket", "")
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper, validate *validator.Validate) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	for i, ext := range cfg.Extensions {
		cfg.Extensions[i] = strings.ToLower(strings.TrimSpace(ext))
	}
	if cfg.WarnWebhookURL == "" {
		cfg.WarnWebhookURL = cfg.LogWebhookURL
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.ConfigPath = v.ConfigFileUsed()
	return cfg, nil
}

func InitConfig(cfgFile string, validate *validator.Validate, log *logger.Logger) error {
	v := viper.GetViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.tiffwatch")
		v.AddConfigPath("/etc/tiffwatch")
	}

	v.SetEnvPrefix("tiffwatch")
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		log.Debug("No config file found. Using defaults.")
	}

	cfg, err := Load(v, validate)
	if err != nil {
		return err
	}

	configRWMutex.Lock()
	defer configRWMutex.Unlock()
	appConfig = cfg
	return nil
}

func (c *Config) WritePidFile(pid int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.PidFilePath == "" {
		c.PidFilePath = filepath.Join(os.TempDir(), "tiffwatch.pid")
	}

	if err := os.WriteFile(c.PidFilePath, []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

func (c *Config) ReadPidFile() (int, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.PidFilePath == "" {
		return 0, fmt.Errorf("PID file path not set")
	}

	content, err := os.ReadFile(c.PidFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("watcher not running")
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}
	return pid, nil
}

func (c *Config) RemovePidFile() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.PidFilePath == "" {
		return nil
	}

	err := os.Remove(c.PidFilePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}
