package config

import "time"

// Config represents the complete application configuration
type Config struct {
	Telegram      TelegramConfig      `mapstructure:"telegram"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Processing    ProcessingConfig    `mapstructure:"processing"`
	Recovery      RecoveryConfig      `mapstructure:"recovery"`
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// TelegramConfig contains bot settings
type TelegramConfig struct {
	BotToken      string  `mapstructure:"bot_token"`
	AllowedChatID int64   `mapstructure:"allowed_chat_id"`
	PollTimeout   int     `mapstructure:"poll_timeout"`
	SendRate      float64 `mapstructure:"send_rate"`
	SendBurst     int     `mapstructure:"send_burst"`
	Debug         bool    `mapstructure:"debug"`
}

// StorageConfig contains on-disk layout settings
type StorageConfig struct {
	SessionsDir     string        `mapstructure:"sessions_dir"`
	TempDir         string        `mapstructure:"temp_dir"`
	MaxTempAge      time.Duration `mapstructure:"max_temp_age"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxAudioSize    int64         `mapstructure:"max_audio_size"`
}

// DatabaseConfig contains session index settings
type DatabaseConfig struct {
	Path    string `mapstructure:"path"`
	Verbose bool   `mapstructure:"verbose"`
}

// TranscriptionConfig contains whisper.cpp settings
type TranscriptionConfig struct {
	WhisperPath string        `mapstructure:"whisper_path"`
	ModelPath   string        `mapstructure:"model_path"`
	Language    string        `mapstructure:"language"`
	Threads     int           `mapstructure:"threads"`
	Timeout     time.Duration `mapstructure:"timeout"`
	FFmpegPath  string        `mapstructure:"ffmpeg_path"`
	FFprobePath string        `mapstructure:"ffprobe_path"`
}

// ProcessingConfig contains downstream pipeline settings
type ProcessingConfig struct {
	PipelineCommand string        `mapstructure:"pipeline_command"`
	DefaultProvider string        `mapstructure:"default_provider"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// RecoveryConfig contains crash recovery settings
type RecoveryConfig struct {
	StalenessThreshold time.Duration `mapstructure:"staleness_threshold"`
}

// ServerConfig contains status API settings
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	APIToken        string        `mapstructure:"api_token"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       int           `mapstructure:"rate_limit"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}
