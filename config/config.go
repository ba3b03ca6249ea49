package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig     `json:"server"`
	MongoDB    MongoDBConfig    `json:"mongodb"`
	Redis      RedisConfig      `json:"redis"`
	Monitor    MonitorConfig    `json:"monitor"`
	Reconciler ReconcilerConfig `json:"reconciler"`
	Throttle   ThrottleConfig   `json:"throttle"`
	Email      EmailConfig      `json:"email"`
	WhatsApp   WhatsAppConfig   `json:"whatsapp"`
	Discord    DiscordConfig    `json:"discord"`
}

type ServerConfig struct {
	Port           int      `json:"port"`
	Host           string   `json:"host"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type MongoDBConfig struct {
	URI      string `json:"uri"`
	Database string `json:"database"`
	Enabled  bool   `json:"enabled"`
}

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Enabled  bool   `json:"enabled"`
	UseTLS   bool   `json:"use_tls"`
}

type MonitorConfig struct {
	IntervalSeconds              int `json:"interval_seconds"`
	ConnectivityThresholdMinutes int `json:"connectivity_threshold_minutes"`
}

type ReconcilerConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
}

type ThrottleConfig struct {
	WindowMinutes int `json:"window_minutes"`
}

type EmailConfig struct {
	SendGridAPIKey string `json:"sendgrid_api_key"`
	FromAddress    string `json:"from_address"`
	FromName       string `json:"from_name"`
}

type WhatsAppConfig struct {
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"auth_token"`
	FromNumber string `json:"from_number"`
	APIBaseURL string `json:"api_base_url"`
	MaxRetries int    `json:"max_retries"`
}

type DiscordConfig struct {
	Token     string `json:"token"`
	ChannelID string `json:"channel_id"`
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	// Default configuration
	cfg := &Config{
		Server: ServerConfig{
			Port:           8080,
			Host:           "0.0.0.0",
			AllowedOrigins: []string{"*"},
		},
		MongoDB: MongoDBConfig{
			URI:      "mongodb://localhost:27017",
			Database: "aquamon",
			Enabled:  true,
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			Password: "",
			DB:       0,
			Enabled:  true,
			UseTLS:   false,
		},
		Monitor: MonitorConfig{
			IntervalSeconds:              60,
			ConnectivityThresholdMinutes: 15,
		},
		Reconciler: ReconcilerConfig{
			IntervalSeconds: 60,
		},
		Throttle: ThrottleConfig{
			WindowMinutes: 15,
		},
		Email: EmailConfig{
			FromAddress: "alerts@aquamon.local",
			FromName:    "AquaMon Alerts",
		},
		WhatsApp: WhatsAppConfig{
			APIBaseURL: "https://api.twilio.com/2010-04-01",
			MaxRetries: 3,
		},
	}

	// Load from config file if exists
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config/config.json"
	}

	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err == nil {
			defer file.Close()
			decoder := json.NewDecoder(file)
			if err := decoder.Decode(cfg); err != nil {
				fmt.Printf("Warning: Failed to decode config file: %v\n", err)
			}
		}
	}

	// Load from environment variables (overrides config file)
	loadEnv(cfg)

	// Load from command-line flags (overrides everything)
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	var serverPort int
	var serverHost string

	fs.IntVar(&serverPort, "port", 0, "Server port")
	fs.StringVar(&serverHost, "host", "", "Server host")

	_ = fs.Parse(os.Args[1:])

	if isFlagPassed(fs, "port") {
		cfg.Server.Port = serverPort
	}
	if isFlagPassed(fs, "host") {
		cfg.Server.Host = serverHost
	}

	return cfg, nil
}

func isFlagPassed(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func loadEnv(cfg *Config) {
	// Server configuration
	if val := os.Getenv("SERVER_PORT"); val != "" {
		if p, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = p
		}
	}
	if val := os.Getenv("SERVER_HOST"); val != "" {
		cfg.Server.Host = val
	}
	if val := os.Getenv("ALLOWED_ORIGINS"); val != "" {
		cfg.Server.AllowedOrigins = strings.Split(val, ",")
	}

	// MongoDB configuration
	if val := os.Getenv("MONGODB_URI"); val != "" {
		cfg.MongoDB.URI = val
	}
	if val := os.Getenv("MONGODB_DATABASE"); val != "" {
		cfg.MongoDB.Database = val
	}
	if val := os.Getenv("MONGODB_ENABLED"); val != "" {
		cfg.MongoDB.Enabled = val == "true" || val == "1"
	}

	// Redis configuration
	if val := os.Getenv("REDIS_ADDRESS"); val != "" {
		cfg.Redis.Address = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if p, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = p
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		cfg.Redis.Enabled = val == "true" || val == "1"
	}
	if val := os.Getenv("REDIS_USE_TLS"); val != "" {
		cfg.Redis.UseTLS = val == "true" || val == "1"
	}

	// Monitor / reconciler configuration
	if val := os.Getenv("MONITOR_INTERVAL"); val != "" {
		if p, err := strconv.Atoi(val); err == nil {
			cfg.Monitor.IntervalSeconds = p
		}
	}
	if val := os.Getenv("CONNECTIVITY_THRESHOLD"); val != "" {
		if p, err := strconv.Atoi(val); err == nil {
			cfg.Monitor.ConnectivityThresholdMinutes = p
		}
	}
	if val := os.Getenv("RECONCILER_INTERVAL"); val != "" {
		if p, err := strconv.Atoi(val); err == nil {
			cfg.Reconciler.IntervalSeconds = p
		}
	}
	if val := os.Getenv("THROTTLE_WINDOW"); val != "" {
		if p, err := strconv.Atoi(val); err == nil {
			cfg.Throttle.WindowMinutes = p
		}
	}

	// Email configuration
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		cfg.Email.SendGridAPIKey = val
	}
	if val := os.Getenv("ALERT_FROM_ADDRESS"); val != "" {
		cfg.Email.FromAddress = val
	}
	if val := os.Getenv("ALERT_FROM_NAME"); val != "" {
		cfg.Email.FromName = val
	}

	// WhatsApp configuration
	if val := os.Getenv("WHATSAPP_ACCOUNT_SID"); val != "" {
		cfg.WhatsApp.AccountSID = val
	}
	if val := os.Getenv("WHATSAPP_AUTH_TOKEN"); val != "" {
		cfg.WhatsApp.AuthToken = val
	}
	if val := os.Getenv("WHATSAPP_FROM_NUMBER"); val != "" {
		cfg.WhatsApp.FromNumber = val
	}
	if val := os.Getenv("WHATSAPP_API_URL"); val != "" {
		cfg.WhatsApp.APIBaseURL = val
	}
	if val := os.Getenv("WHATSAPP_MAX_RETRIES"); val != "" {
		if p, err := strconv.Atoi(val); err == nil {
			cfg.WhatsApp.MaxRetries = p
		}
	}

	// Discord configuration
	if val := os.Getenv("DISCORD_BOT_TOKEN"); val != "" {
		cfg.Discord.Token = val
	}
	if val := os.Getenv("DISCORD_CHANNEL_ID"); val != "" {
		cfg.Discord.ChannelID = val
	}
}

// Helper methods for duration conversion
func (c *Config) MonitorIntervalDuration() time.Duration {
	return time.Duration(c.Monitor.IntervalSeconds) * time.Second
}

func (c *Config) ReconcilerIntervalDuration() time.Duration {
	return time.Duration(c.Reconciler.IntervalSeconds) * time.Second
}

func (c *Config) ThrottleWindowDuration() time.Duration {
	return time.Duration(c.Throttle.WindowMinutes) * time.Minute
}

func (c *Config) ConnectivityThresholdDuration() time.Duration {
	return time.Duration(c.Monitor.ConnectivityThresholdMinutes) * time.Minute
}
