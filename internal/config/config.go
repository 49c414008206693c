package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Google   GoogleConfig   `mapstructure:"google"`
	Calendar CalendarConfig `mapstructure:"calendar"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// GoogleConfig holds the OAuth client and the persisted token for the one
// signed-in account.
type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	AccessToken  string `mapstructure:"access_token"`
	RefreshToken string `mapstructure:"refresh_token"`
	TokenExpiry  string `mapstructure:"token_expiry"` // RFC3339
	Scope        string `mapstructure:"scope"`
	AccountEmail string `mapstructure:"account_email"`
}

// CalendarConfig holds calendar display and remote-calendar preferences
type CalendarConfig struct {
	TimeZone  string `mapstructure:"timezone"`   // IANA name for the dedicated calendar
	WeekStart string `mapstructure:"week_start"` // "monday" or "sunday"
}

// StorageConfig holds local record store configuration
type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Calendar: CalendarConfig{
			TimeZone:  "UTC",
			WeekStart: "monday",
		},
		Storage: StorageConfig{
			Dir: defaultDataPath(),
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "shelflife", "shelflife.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "shelflife", "shelflife.log")
	}
}

// defaultConfigPath returns the default config file path for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "shelflife")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "shelflife")
	}
}

// defaultDataPath returns the default record store directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "shelflife")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "shelflife")
	}
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(defaultConfigPath())
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("SHELFLIFE")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the current configuration to file
func SaveConfig(cfg *Config) error {
	viper.Set("google.client_id", cfg.Google.ClientID)
	viper.Set("google.client_secret", cfg.Google.ClientSecret)
	viper.Set("google.access_token", cfg.Google.AccessToken)
	viper.Set("google.refresh_token", cfg.Google.RefreshToken)
	viper.Set("google.token_expiry", cfg.Google.TokenExpiry)
	viper.Set("google.scope", cfg.Google.Scope)
	viper.Set("google.account_email", cfg.Google.AccountEmail)

	viper.Set("calendar.timezone", cfg.Calendar.TimeZone)
	viper.Set("calendar.week_start", cfg.Calendar.WeekStart)

	viper.Set("storage.dir", cfg.Storage.Dir)

	viper.Set("logging.file", cfg.Logging.File)
	viper.Set("logging.level", cfg.Logging.Level)

	return writeConfigFile()
}

// SaveToken updates just the persisted token fields in the configuration
func SaveToken(accessToken, refreshToken, expiry, scope, email string) error {
	viper.Set("google.access_token", accessToken)
	viper.Set("google.refresh_token", refreshToken)
	viper.Set("google.token_expiry", expiry)
	viper.Set("google.scope", scope)
	viper.Set("google.account_email", email)

	return writeConfigFile()
}

// ClearAccount removes the persisted token and account while preserving the
// OAuth client and all other settings
func ClearAccount() error {
	viper.Set("google.access_token", "")
	viper.Set("google.refresh_token", "")
	viper.Set("google.token_expiry", "")
	viper.Set("google.scope", "")
	viper.Set("google.account_email", "")

	return writeConfigFile()
}

func writeConfigFile() error {
	configPath := defaultConfigPath()
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// IsConfigured returns true if the OAuth client credentials are set
func (c *Config) IsConfigured() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

// HasAccount returns true if a token has been persisted for an account
func (c *Config) HasAccount() bool {
	return c.Google.RefreshToken != "" || c.Google.AccessToken != ""
}
