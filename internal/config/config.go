package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Store         StoreConfig         `mapstructure:"store"`
	Backup        BackupConfig        `mapstructure:"backup"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Server        ServerConfig        `mapstructure:"server"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
	// Collections is the registered collection set, in archive order.
	Collections   []string      `mapstructure:"collections"`
	ModifiedField string        `mapstructure:"modified_field"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type BackupConfig struct {
	LocalPath   string        `mapstructure:"local_path"`
	Compression string        `mapstructure:"compression"`
	MaxDuration time.Duration `mapstructure:"max_duration"`
}

type SchedulerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	Concurrency  int           `mapstructure:"concurrency"`
	// Timezone buckets retention days/weeks/months.
	Timezone string `mapstructure:"timezone"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type StorageConfig struct {
	GDrive GDriveConfig `mapstructure:"gdrive"`
	S3     S3Config     `mapstructure:"s3"`
	Local  LocalConfig  `mapstructure:"local"`
}

type GDriveConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	ClientID        string `mapstructure:"client_id"`
	ClientSecret    string `mapstructure:"client_secret"`
	CredentialsFile string `mapstructure:"credentials_file"`
	FolderName      string `mapstructure:"folder_name"`
	RedirectURL     string `mapstructure:"redirect_url"`
	RevokeURL       string `mapstructure:"revoke_url"`
	State           string `mapstructure:"state"`
}

type S3Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
	// Endpoint targets an S3-compatible server instead of AWS.
	Endpoint string `mapstructure:"endpoint"`
}

type LocalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type NotificationsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("SNAPKEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "snapkeep")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("database.modified_field", "updatedAt")
	v.SetDefault("database.timeout", 10*time.Second)
	v.SetDefault("store.path", "data/snapkeep.db")
	v.SetDefault("backup.compression", "gzip")
	v.SetDefault("backup.max_duration", time.Hour)
	v.SetDefault("scheduler.tick_interval", 30*time.Second)
	v.SetDefault("scheduler.concurrency", 2)
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("storage.gdrive.folder_name", "snapkeep-backups")
	v.SetDefault("storage.gdrive.revoke_url", "https://oauth2.googleapis.com/revoke")
	v.SetDefault("storage.gdrive.state", "snapkeep")
	v.SetDefault("notifications.smtp.port", 587)
}

func (c *Config) Validate() error {
	if c.Database.URI == "" {
		return fmt.Errorf("database.uri is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if len(c.Database.Collections) == 0 {
		return fmt.Errorf("database.collections must list at least one collection")
	}

	seen := make(map[string]bool, len(c.Database.Collections))
	for i, name := range c.Database.Collections {
		if name == "" {
			return fmt.Errorf("database.collections[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("database.collections[%d]: duplicate collection %q", i, name)
		}
		seen[name] = true
	}

	if c.Backup.LocalPath == "" {
		return fmt.Errorf("backup.local_path is required")
	}

	if c.Scheduler.TickInterval <= 0 || c.Scheduler.TickInterval > time.Minute {
		return fmt.Errorf("scheduler.tick_interval must be positive and at most 1m, got %s", c.Scheduler.TickInterval)
	}
	if c.Scheduler.Concurrency < 1 {
		return fmt.Errorf("scheduler.concurrency must be at least 1")
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}

	if c.Storage.S3.Enabled && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required when enabled")
	}
	if c.Storage.Local.Enabled && c.Storage.Local.Path == "" {
		return fmt.Errorf("storage.local.path is required when enabled")
	}
	if c.Notifications.Telegram.Enabled && c.Notifications.Telegram.BotToken == "" {
		return fmt.Errorf("notifications.telegram.bot_token is required when enabled")
	}
	if c.Notifications.SMTP.Enabled && (c.Notifications.SMTP.Host == "" || c.Notifications.SMTP.From == "") {
		return fmt.Errorf("notifications.smtp.host and from are required when enabled")
	}

	return nil
}

// GetEnabledProviders lists the configured storage provider names.
func (c *Config) GetEnabledProviders() []string {
	var enabled []string
	if c.Storage.GDrive.Enabled {
		enabled = append(enabled, "gdrive")
	}
	if c.Storage.S3.Enabled {
		enabled = append(enabled, "s3")
	}
	if c.Storage.Local.Enabled {
		enabled = append(enabled, "local")
	}
	return enabled
}
