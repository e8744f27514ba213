package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/authkeeper/internal/logger"
	"github.com/nkiryanov/authkeeper/internal/service/auth/tokencodec"
)

const (
	defaultListenAddr    = "localhost:8000"
	defaultLoggingLevel  = logger.LevelInfo
	defaultEnvironment   = logger.EnvProduction
	defaultAccessMinutes = 15
	defaultRefreshDays   = 7
	defaultResetMinutes  = 10
	defaultPurgeInterval = 10 * time.Minute
	defaultSMTPPort      = 587
	defaultFrontendURL   = "http://localhost:3000"
	defaultAppName       = "Authkeeper"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Environment (dev, prod)
	Environment string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to. In-memory storage is used if empty
	DatabaseDSN string

	// Redis to keep revocations and queue emails. Optional
	RedisURL string

	// Secret key and MAC algorithm to sign JWT tokens
	SecretKey string
	JWTAlg    string

	// Token lifetimes
	AccessTokenMinutes int
	RefreshTokenDays   int
	ResetTokenMinutes  int

	// How often expired revocations and reset tokens are removed
	PurgeInterval time.Duration

	// How many password hashes may be computed at once
	HashWorkers int

	// Reset email delivery. Emails are not sent if SMTPHost is empty
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	SMTPFromEmail string
	SMTPFromName  string
	FrontendURL   string
	AppName       string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:           defaultLoggingLevel,
		Environment:        defaultEnvironment,
		ListenAddr:         defaultListenAddr,
		JWTAlg:             tokencodec.DefaultAlg,
		AccessTokenMinutes: defaultAccessMinutes,
		RefreshTokenDays:   defaultRefreshDays,
		ResetTokenMinutes:  defaultResetMinutes,
		PurgeInterval:      defaultPurgeInterval,
		HashWorkers:        runtime.NumCPU(),
		SMTPPort:           defaultSMTPPort,
		FrontendURL:        defaultFrontendURL,
		AppName:            defaultAppName,
	}
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenMinutes) * time.Minute
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenDays) * 24 * time.Hour
}

func (c *Config) ResetTTL() time.Duration {
	return time.Duration(c.ResetTokenMinutes) * time.Minute
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			v, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = v
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			v, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = v
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":                 setString(&c.ListenAddr),
		"DATABASE_URL":                setString(&c.DatabaseDSN),
		"REDIS_URL":                   setString(&c.RedisURL),
		"JWT_SECRET_KEY":              setString(&c.SecretKey),
		"JWT_ALGORITHM":               setString(&c.JWTAlg),
		"ACCESS_TOKEN_EXPIRE_MINUTES": setInt(&c.AccessTokenMinutes),
		"REFRESH_TOKEN_EXPIRE_DAYS":   setInt(&c.RefreshTokenDays),
		"RESET_TOKEN_EXPIRE_MINUTES":  setInt(&c.ResetTokenMinutes),
		"PURGE_INTERVAL":              setDuration(&c.PurgeInterval),
		"HASH_WORKERS":                setInt(&c.HashWorkers),
		"SMTP_HOST":                   setString(&c.SMTPHost),
		"SMTP_PORT":                   setInt(&c.SMTPPort),
		"SMTP_USER":                   setString(&c.SMTPUser),
		"SMTP_PASSWORD":               setString(&c.SMTPPassword),
		"SMTP_FROM_EMAIL":             setString(&c.SMTPFromEmail),
		"SMTP_FROM_NAME":              setString(&c.SMTPFromName),
		"FRONTEND_URL":                setString(&c.FrontendURL),
		"APP_NAME":                    setString(&c.AppName),
		"LOG_LEVEL":                   setString(&c.LogLevel),
		"ENVIRONMENT":                 setString(&c.Environment),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("env %s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("authkeeper", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.RedisURL, "redis", "r", c.RedisURL, "Redis connection url")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key to sign tokens")
	fs.StringVar(&c.JWTAlg, "jwt-alg", c.JWTAlg, "JWT algorithm (HS256, HS384, HS512)")
	fs.IntVar(&c.AccessTokenMinutes, "access-ttl-minutes", c.AccessTokenMinutes, "Access token lifetime in minutes")
	fs.IntVar(&c.RefreshTokenDays, "refresh-ttl-days", c.RefreshTokenDays, "Refresh token lifetime in days")
	fs.IntVar(&c.ResetTokenMinutes, "reset-ttl-minutes", c.ResetTokenMinutes, "Password reset token lifetime in minutes")
	fs.DurationVar(&c.PurgeInterval, "purge-interval", c.PurgeInterval, "How often expired records are removed")
	fs.IntVar(&c.HashWorkers, "hash-workers", c.HashWorkers, "Max password hashes computed at once")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}

func (c *Config) Validate() error {
	var errs []error

	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if c.AccessTokenMinutes <= 0 || c.RefreshTokenDays <= 0 || c.ResetTokenMinutes <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.AccessTTL() >= c.RefreshTTL() {
		errs = append(errs, fmt.Errorf("access token ttl (%s) must be shorter than refresh one (%s)", c.AccessTTL(), c.RefreshTTL()))
	}
	if c.ResetTTL() >= c.AccessTTL() {
		errs = append(errs, fmt.Errorf("reset token ttl (%s) must be shorter than access one (%s)", c.ResetTTL(), c.AccessTTL()))
	}
	if c.PurgeInterval <= 0 {
		errs = append(errs, errors.New("purge interval must be positive"))
	}

	return errors.Join(errs...)
}
