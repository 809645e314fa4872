package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"labdash/internal/tabular"
	"labdash/pkg/database"
)

const (
	defaultMaxUploadBytes    = 10 << 20
	defaultMaxReportedErrors = 10
)

// Config holds runtime configuration for the server and the CLI tools
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Import   ImportConfig
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig configures the PostgreSQL pool. URL takes precedence over
// the discrete fields.
type DatabaseConfig struct {
	URL             string
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoggingConfig configures the structured logger
type LoggingConfig struct {
	Level string
}

// ImportConfig bounds batch imports
type ImportConfig struct {
	MaxUploadBytes    int64
	MaxReportedErrors int
	DefaultDelimiter  rune
}

// LoadConfig reads configuration from the environment, after loading .env
// when one exists.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	var err error
	cfg := &Config{
		Server: ServerConfig{
			Host: envString("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			URL:      envString("DATABASE_URL", ""),
			Host:     envString("DB_HOST", "localhost"),
			User:     envString("DB_USER", "postgres"),
			Password: envString("DB_PASSWORD", ""),
			Database: envString("DB_NAME", "labdash"),
			SSLMode:  envString("DB_SSLMODE", "disable"),
		},
		Logging: LoggingConfig{
			Level: strings.ToLower(envString("LOG_LEVEL", "info")),
		},
	}

	// PORT is what most platforms inject; it wins over SERVER_PORT.
	portKey := "SERVER_PORT"
	if strings.TrimSpace(os.Getenv("PORT")) != "" {
		portKey = "PORT"
	}

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{portKey, 8080, &cfg.Server.Port},
		{"DB_PORT", 5432, &cfg.Database.Port},
		{"DB_MAX_OPEN_CONNS", 25, &cfg.Database.MaxOpenConns},
		{"DB_MAX_IDLE_CONNS", 5, &cfg.Database.MaxIdleConns},
		{"IMPORT_MAX_REPORTED_ERRORS", defaultMaxReportedErrors, &cfg.Import.MaxReportedErrors},
	}
	for _, v := range ints {
		if *v.dest, err = envInt(v.key, v.def); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"SERVER_READ_TIMEOUT", 30 * time.Second, &cfg.Server.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT", 60 * time.Second, &cfg.Server.WriteTimeout},
		{"SERVER_IDLE_TIMEOUT", 120 * time.Second, &cfg.Server.IdleTimeout},
		{"DB_CONN_MAX_LIFETIME", 5 * time.Minute, &cfg.Database.ConnMaxLifetime},
		{"DB_CONN_MAX_IDLE_TIME", time.Minute, &cfg.Database.ConnMaxIdleTime},
	}
	for _, v := range durations {
		if *v.dest, err = envDuration(v.key, v.def); err != nil {
			return nil, err
		}
	}

	maxUpload, err := envInt("IMPORT_MAX_UPLOAD_BYTES", defaultMaxUploadBytes)
	if err != nil {
		return nil, err
	}
	cfg.Import.MaxUploadBytes = int64(maxUpload)

	cfg.Import.DefaultDelimiter, err = tabular.ParseDelimiter(os.Getenv("IMPORT_DEFAULT_DELIMITER"))
	if err != nil {
		return nil, fmt.Errorf("invalid IMPORT_DEFAULT_DELIMITER: %w", err)
	}

	return cfg, nil
}

// Validate checks ranges that LoadConfig cannot express as defaults
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	if c.Database.URL == "" && (c.Database.Host == "" || c.Database.Database == "") {
		errs = append(errs, errors.New("DATABASE_URL or DB_HOST and DB_NAME are required"))
	}
	if c.Database.MaxOpenConns < 1 {
		errs = append(errs, errors.New("DB_MAX_OPEN_CONNS must be positive"))
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, errors.New("DB_MAX_IDLE_CONNS cannot exceed DB_MAX_OPEN_CONNS"))
	}
	if c.Import.MaxUploadBytes < 1 {
		errs = append(errs, errors.New("IMPORT_MAX_UPLOAD_BYTES must be positive"))
	}
	if c.Import.MaxReportedErrors < 1 {
		errs = append(errs, errors.New("IMPORT_MAX_REPORTED_ERRORS must be positive"))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "fatal":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_LEVEL %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// DatabaseOptions converts the database section into pool options
func (c *Config) DatabaseOptions() *database.Config {
	return &database.Config{
		URL:             c.Database.URL,
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		User:            c.Database.User,
		Password:        c.Database.Password,
		Database:        c.Database.Database,
		SSLMode:         c.Database.SSLMode,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
