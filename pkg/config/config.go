package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigFile is read when no --config flag is given
const DefaultConfigFile = "./config/settings.yaml"

var (
	once       sync.Once
	initErr    error
	configFile = DefaultConfigFile
)

// SetConfigFile overrides the settings file location. Must be called before Init.
func SetConfigFile(path string) {
	if path != "" {
		configFile = path
	}
}

// Init initializes the configuration system
// This should be called once at application startup
func Init() error {
	once.Do(func() {
		setDefaults()

		// Environment variables override file values, e.g. VOXLOG_TELEGRAM_BOT_TOKEN
		viper.SetEnvPrefix("VOXLOG")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()

		path := filepath.Clean(configFile)
		viper.SetConfigFile(path)

		if err := viper.ReadInConfig(); err != nil {
			// A missing file is fine, defaults and env vars still apply
			if !errors.Is(err, os.ErrNotExist) && !os.IsNotExist(err) {
				initErr = fmt.Errorf("error reading config file %s: %w", path, err)
				return
			}
		}

		if err := validate(); err != nil {
			initErr = fmt.Errorf("invalid configuration: %w", err)
		}
	})

	return initErr
}

// GetConfig returns the current configuration as a struct
// Init() must be called before using this
func GetConfig() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// GetString returns a string config value
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a time.Duration config value
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// validate validates the configuration using Viper values
func validate() error {
	if viper.GetBool("server.enabled") {
		port := viper.GetInt("server.port")
		if port <= 0 || port > 65535 {
			return fmt.Errorf("invalid server port: %d", port)
		}
	}

	if viper.GetString("storage.sessions_dir") == "" {
		return fmt.Errorf("storage.sessions_dir must not be empty")
	}

	if viper.GetString("database.path") == "" {
		log.Println("[WARN] No database path configured, session listing falls back to directory scans")
	}

	// Auto-correct a non-positive staleness threshold
	if viper.GetDuration("recovery.staleness_threshold") <= 0 {
		viper.Set("recovery.staleness_threshold", time.Hour)
	}

	if viper.GetFloat64("telegram.send_rate") <= 0 {
		viper.Set("telegram.send_rate", 1.0)
	}

	return nil
}

// Validate validates a Config struct (for testing and for commands that need a bot)
func (c *Config) Validate() error {
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Storage.SessionsDir == "" {
		return fmt.Errorf("storage.sessions_dir must not be empty")
	}

	if c.Recovery.StalenessThreshold <= 0 {
		c.Recovery.StalenessThreshold = time.Hour
	}

	if c.Telegram.SendRate <= 0 {
		c.Telegram.SendRate = 1
	}

	return nil
}

// ValidateForDaemon checks the settings only the long-running daemon needs
func (c *Config) ValidateForDaemon() error {
	if err := c.Validate(); err != nil {
		return err
	}

	placeholders := []string{"", "YOUR_BOT_TOKEN", "changeme", "CHANGEME"}
	for _, placeholder := range placeholders {
		if c.Telegram.BotToken == placeholder {
			return fmt.Errorf("telegram.bot_token is not configured")
		}
	}

	if c.Telegram.AllowedChatID == 0 {
		return fmt.Errorf("telegram.allowed_chat_id is not configured")
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Telegram defaults
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.allowed_chat_id", 0)
	viper.SetDefault("telegram.poll_timeout", 60)
	viper.SetDefault("telegram.send_rate", 1.0)
	viper.SetDefault("telegram.send_burst", 3)
	viper.SetDefault("telegram.debug", false)

	// Storage defaults
	viper.SetDefault("storage.sessions_dir", "./data/sessions")
	viper.SetDefault("storage.temp_dir", "./tmp")
	viper.SetDefault("storage.max_temp_age", 24*time.Hour)
	viper.SetDefault("storage.cleanup_interval", 1*time.Hour)
	viper.SetDefault("storage.max_audio_size", 20971520)

	// Database defaults
	viper.SetDefault("database.path", "./data/index.db")
	viper.SetDefault("database.verbose", false)

	// Transcription defaults
	viper.SetDefault("transcription.whisper_path", "")
	viper.SetDefault("transcription.model_path", "./models/ggml-base.bin")
	viper.SetDefault("transcription.language", "auto")
	viper.SetDefault("transcription.threads", 4)
	viper.SetDefault("transcription.timeout", 10*time.Minute)
	viper.SetDefault("transcription.ffmpeg_path", "ffmpeg")
	viper.SetDefault("transcription.ffprobe_path", "ffprobe")

	// Processing defaults
	viper.SetDefault("processing.pipeline_command", "")
	viper.SetDefault("processing.default_provider", "openai")
	viper.SetDefault("processing.timeout", 30*time.Minute)

	// Recovery defaults
	viper.SetDefault("recovery.staleness_threshold", 1*time.Hour)

	// Status API defaults
	viper.SetDefault("server.enabled", false)
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.api_token", "")
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.rate_limit", 10)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
}
