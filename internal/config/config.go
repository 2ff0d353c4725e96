package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Database DatabaseConfig
	JWT      JWTConfig
	App      AppConfig
	Payroll  PayrollConfig
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MigrationsPath string
	AutoMigrate    bool
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	AccessExpiration string
}

// AppConfig holds application configuration
type AppConfig struct {
	Port           int
	Env            string
	LogLevel       string
	Name           string
	Version        string
	AllowedOrigins []string
}

// PayrollConfig holds the defaults and reference keys used by the payroll engine
type PayrollConfig struct {
	DefaultCurrency                string
	DefaultDriverCommissionRate    decimal.Decimal
	DefaultConductorCommissionRate decimal.Decimal
	ContributionSettingKey         string
	IssuerSettingKey               string
	DefaultIssuer                  string
	ExpenseCategory                string
	ExpensePaymentMethod           string
	ResolveConcurrency             int
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	config := &Config{}

	// Database configuration
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	config.Database = DatabaseConfig{
		Host:           getEnv("DB_HOST", "localhost"),
		Port:           dbPort,
		User:           getEnv("DB_USER", "postgres"),
		Password:       getEnv("DB_PASSWORD", ""),
		Name:           getEnv("DB_NAME", "fleet_payroll"),
		SSLMode:        getEnv("DB_SSL_MODE", "disable"),
		MigrationsPath: getEnv("DB_MIGRATIONS_PATH", "migrations"),
		AutoMigrate:    getEnv("DB_AUTO_MIGRATE", "false") == "true",
	}

	// Application configuration
	appPort, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}

	config.App = AppConfig{
		Port:           appPort,
		Env:            getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Name:           getEnv("APP_NAME", "fleet-payroll"),
		Version:        getEnv("APP_VERSION", "v1.0.0"),
		AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	// JWT configuration
	config.JWT = JWTConfig{
		Secret:           getEnv("JWT_SECRET_KEY", ""),
		AccessExpiration: getEnv("JWT_ACCESS_EXPIRATION_TIME", "1h"),
	}

	// Payroll configuration
	driverRate, err := decimal.NewFromString(getEnv("PAYROLL_DRIVER_COMMISSION_RATE", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid PAYROLL_DRIVER_COMMISSION_RATE: %w", err)
	}
	conductorRate, err := decimal.NewFromString(getEnv("PAYROLL_CONDUCTOR_COMMISSION_RATE", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid PAYROLL_CONDUCTOR_COMMISSION_RATE: %w", err)
	}
	concurrency, err := strconv.Atoi(getEnv("PAYROLL_RESOLVE_CONCURRENCY", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid PAYROLL_RESOLVE_CONCURRENCY: %w", err)
	}

	config.Payroll = PayrollConfig{
		DefaultCurrency:                getEnv("PAYROLL_DEFAULT_CURRENCY", "USD"),
		DefaultDriverCommissionRate:    driverRate,
		DefaultConductorCommissionRate: conductorRate,
		ContributionSettingKey:         getEnv("PAYROLL_CONTRIBUTION_SETTING_KEY", "nssa_employee_rate"),
		IssuerSettingKey:               getEnv("PAYROLL_ISSUER_SETTING_KEY", "company_name"),
		DefaultIssuer:                  getEnv("PAYROLL_DEFAULT_ISSUER", "PAVILLION COACHES"),
		ExpenseCategory:                getEnv("PAYROLL_EXPENSE_CATEGORY", "Salaries & Wages"),
		ExpensePaymentMethod:           getEnv("PAYROLL_EXPENSE_PAYMENT_METHOD", "Bank Transfer"),
		ResolveConcurrency:             concurrency,
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// DefaultPayrollConfig returns the payroll settings used when no environment overrides exist.
func DefaultPayrollConfig() PayrollConfig {
	return PayrollConfig{
		DefaultCurrency:                "USD",
		DefaultDriverCommissionRate:    decimal.NewFromInt(8),
		DefaultConductorCommissionRate: decimal.NewFromInt(5),
		ContributionSettingKey:         "nssa_employee_rate",
		IssuerSettingKey:               "company_name",
		DefaultIssuer:                  "PAVILLION COACHES",
		ExpenseCategory:                "Salaries & Wages",
		ExpensePaymentMethod:           "Bank Transfer",
		ResolveConcurrency:             8,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if c.Payroll.DefaultCurrency == "" {
		return fmt.Errorf("PAYROLL_DEFAULT_CURRENCY is required")
	}
	if c.Payroll.ResolveConcurrency < 1 {
		return fmt.Errorf("PAYROLL_RESOLVE_CONCURRENCY must be at least 1")
	}
	if c.Payroll.DefaultDriverCommissionRate.IsNegative() || c.Payroll.DefaultConductorCommissionRate.IsNegative() {
		return fmt.Errorf("payroll commission rates must be non-negative")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// SlogLevel maps LOG_LEVEL onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.App.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvSlice(env string, fallback []string) []string {
	value := getEnv(env, "")
	if value == "" {
		return fallback
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
