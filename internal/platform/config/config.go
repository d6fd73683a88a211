package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath = "config/config.yaml"

	ModeDev     = "dev"
	ModeRelease = "release"

	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	Cert         string   `yaml:"cert"`
	Key          string   `yaml:"key"`
	AllowOrigins []string `yaml:"allow_origins"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Username   string `yaml:"user"`
	Password   string `yaml:"password"`
	DBName     string `yaml:"dbname"`
	SQLitePath string `yaml:"sqlite_path"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// AttendanceConfig: 出欠トークン/コードの発行ポリシー
type AttendanceConfig struct {
	CheckInTokenTTL  time.Duration `yaml:"check_in_token_ttl"`
	CheckOutTokenTTL time.Duration `yaml:"check_out_token_ttl"`
	CodeTTL          time.Duration `yaml:"code_ttl"`
	MaxClockSkew     time.Duration `yaml:"max_clock_skew"`
	ScanBaseURL      string        `yaml:"scan_base_url"`
	QRSize           int           `yaml:"qr_size"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type RateLimitConfig struct {
	CodeAttempts int           `yaml:"code_attempts"`
	Window       time.Duration `yaml:"window"`
}

type Config struct {
	Version    string           `yaml:"version"`
	Mode       string           `yaml:"mode"`
	Server     ServerConfig     `yaml:"server"`
	DB         DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Redis      RedisConfig      `yaml:"redis"`
	NATS       NATSConfig       `yaml:"nats"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit"`
}

// Default: 設定ファイルに書かれていない項目の既定値
func Default() Config {
	return Config{
		Mode: ModeDev,
		Server: ServerConfig{
			Addr:         ":8443",
			AllowOrigins: []string{"http://localhost:3000"},
		},
		DB: DatabaseConfig{
			Driver:     DriverSQLite,
			Port:       3306,
			SQLitePath: "data/attendance.db",
		},
		Auth: AuthConfig{TokenTTL: 24 * time.Hour},
		Attendance: AttendanceConfig{
			CheckInTokenTTL:  30 * time.Minute,
			CheckOutTokenTTL: 2 * time.Hour,
			CodeTTL:          10 * time.Minute,
			MaxClockSkew:     2 * time.Minute,
			QRSize:           256,
		},
		RateLimit: RateLimitConfig{CodeAttempts: 10, Window: 10 * time.Minute},
	}
}

// Load: .env → YAML → ATTEND_* 環境変数 の順で上書きする
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".env の読み込み失敗: %w", err)
	}

	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Mode != ModeDev && c.Mode != ModeRelease {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeDev, ModeRelease, c.Mode)
	}
	if c.DB.Driver != DriverMySQL && c.DB.Driver != DriverSQLite {
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverMySQL, DriverSQLite, c.DB.Driver)
	}
	if c.Mode == ModeRelease && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required in release mode")
	}
	a := c.Attendance
	if a.CheckInTokenTTL <= 0 || a.CheckOutTokenTTL <= 0 || a.CodeTTL <= 0 {
		return errors.New("attendance TTLs must be positive")
	}
	if a.MaxClockSkew < 0 {
		return errors.New("attendance.max_clock_skew must not be negative")
	}
	return nil
}

func (c *Config) IsDev() bool { return c.Mode == ModeDev }

func applyEnv(c *Config) error {
	setString(&c.Mode, "ATTEND_MODE")
	setString(&c.Server.Addr, "ATTEND_ADDR")
	setString(&c.DB.Driver, "ATTEND_DB_DRIVER")
	setString(&c.DB.Host, "ATTEND_DB_HOST")
	setString(&c.DB.Username, "ATTEND_DB_USER")
	setString(&c.DB.Password, "ATTEND_DB_PASSWORD")
	setString(&c.DB.DBName, "ATTEND_DB_NAME")
	setString(&c.DB.SQLitePath, "ATTEND_SQLITE_PATH")
	setString(&c.Auth.JWTSecret, "ATTEND_JWT_SECRET")
	setString(&c.Attendance.ScanBaseURL, "ATTEND_SCAN_BASE_URL")
	setString(&c.Redis.Addr, "ATTEND_REDIS_ADDR")
	setString(&c.Redis.Password, "ATTEND_REDIS_PASSWORD")
	setString(&c.NATS.URL, "ATTEND_NATS_URL")

	if err := setInt(&c.DB.Port, "ATTEND_DB_PORT"); err != nil {
		return err
	}
	if err := setDuration(&c.Attendance.CheckInTokenTTL, "ATTEND_CHECK_IN_TOKEN_TTL"); err != nil {
		return err
	}
	if err := setDuration(&c.Attendance.CheckOutTokenTTL, "ATTEND_CHECK_OUT_TOKEN_TTL"); err != nil {
		return err
	}
	return setDuration(&c.Attendance.CodeTTL, "ATTEND_CODE_TTL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
