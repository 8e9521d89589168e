package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"agendamento/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig         `yaml:"app"`
	Telegram   TelegramConfig    `yaml:"telegram"`
	Database   DatabaseConfig    `yaml:"database"`
	Redis      RedisConfig       `yaml:"redis"`
	Backup     BackupConfig      `yaml:"backup"`
	Monitoring MonitoringConfig  `yaml:"monitoring"`
	Logging    LoggingConfig     `yaml:"logging"`
	API        APIConfig         `yaml:"api"`
	Booking    BookingConfig     `yaml:"booking"`
	Events     EventsConfig      `yaml:"events"`
	Exports    ExportConfig      `yaml:"exports"`
	Google     GoogleConfig      `yaml:"google"`
	Resources  []models.Resource `yaml:"resources"`
}

type BookingConfig struct {
	MaxBookingDays    int      `yaml:"max_booking_days"`
	TimeSlots         []string `yaml:"time_slots"`
	RateLimitWrites   int      `yaml:"rate_limit_writes"`
	RateLimitWindow   int      `yaml:"rate_limit_window"`
	DefaultCancelNote string   `yaml:"default_cancel_note"`
	Timezone          string   `yaml:"timezone"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

// APIAuthConfig describes how bearer tokens from the identity provider are
// verified. Tokens are never issued here.
type APIAuthConfig struct {
	JWTSecret  string   `yaml:"jwt_secret"`
	Issuer     string   `yaml:"issuer"`
	RoleClaim  string   `yaml:"role_claim"`
	AdminRoles []string `yaml:"admin_roles"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken    string `yaml:"bot_token"`
	AdminChatID int64  `yaml:"admin_chat_id"`
	Debug       bool   `yaml:"debug"`
}

func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.BotToken != "YOUR_BOT_TOKEN_HERE"
}

type DatabaseConfig struct {
	Path          string `yaml:"path"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// EventsConfig enables forwarding of reservation events to RabbitMQ.
type EventsConfig struct {
	AMQPURL string `yaml:"amqp_url"`
	Queue   string `yaml:"queue"`
}

type GoogleConfig struct {
	GoogleCredentialsFile     string `yaml:"credentials_file"`
	ReservationsSpreadSheetID string `yaml:"reservations_spreadsheet_id"`
	SheetName                 string `yaml:"sheet_name"`
}

func (g GoogleConfig) Enabled() bool {
	return g.GoogleCredentialsFile != "" && g.ReservationsSpreadSheetID != ""
}

func Load(configPath string) (*Config, error) {
	// .env необязателен
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.API.Auth.JWTSecret == "" {
		return errors.New("api jwt secret is required")
	}

	if c.Booking.MaxBookingDays < 0 {
		return fmt.Errorf("max_booking_days must not be negative, got %d", c.Booking.MaxBookingDays)
	}

	if err := ValidateTimeSlots(c.Booking.TimeSlots); err != nil {
		return err
	}

	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		return fmt.Errorf("invalid booking timezone %q: %w", c.Booking.Timezone, err)
	}

	return ValidateResources(c.Resources)
}

// ValidateResources checks resource overrides against the built-in catalog.
func ValidateResources(resources []models.Resource) error {
	_, err := models.NewCatalog(resources)
	return err
}

// ValidateTimeSlots requires strictly increasing HH:MM values.
func ValidateTimeSlots(slots []string) error {
	var prev models.Clock = -1
	for _, raw := range slots {
		c, err := models.ParseClock(raw)
		if err != nil {
			return fmt.Errorf("time slot: %w", err)
		}
		if c <= prev {
			return fmt.Errorf("time slots must be increasing: %s after %s", c, prev)
		}
		prev = c
	}
	return nil
}

// Catalog builds the resource table from the configured overrides.
func (c *Config) Catalog() (*models.Catalog, error) {
	return models.NewCatalog(c.Resources)
}

func (c *Config) IsAdminRole(role string) bool {
	return c.API.Auth.IsAdminRole(role)
}

// IsAdminRole reports whether a role claim grants administrator rights.
func (a APIAuthConfig) IsAdminRole(role string) bool {
	for _, r := range a.AdminRoles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}
	if c.API.Auth.RoleClaim == "" {
		c.API.Auth.RoleClaim = "role"
	}
	if len(c.API.Auth.AdminRoles) == 0 {
		c.API.Auth.AdminRoles = []string{string(models.RoleAdmin)}
	}
	if c.Database.BusyTimeoutMS == 0 {
		c.Database.BusyTimeoutMS = 5000
	}

	// Booking defaults
	if c.Booking.MaxBookingDays == 0 {
		c.Booking.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if len(c.Booking.TimeSlots) == 0 {
		c.Booking.TimeSlots = append([]string(nil), models.DefaultTimeSlots...)
	}
	if c.Booking.RateLimitWrites == 0 {
		c.Booking.RateLimitWrites = models.RateLimitWrites
	}
	if c.Booking.RateLimitWindow == 0 {
		c.Booking.RateLimitWindow = models.RateLimitWindow
	}
	if c.Booking.DefaultCancelNote == "" {
		c.Booking.DefaultCancelNote = models.DefaultCancelNote
	}
	if c.Booking.Timezone == "" {
		c.Booking.Timezone = "UTC"
	}

	if c.Events.Queue == "" {
		c.Events.Queue = "reservation_events"
	}
	if c.Google.SheetName == "" {
		c.Google.SheetName = "Reservations"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "./exports"
	}
}
