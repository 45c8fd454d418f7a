// Package config assembles runtime settings from defaults, an optional YAML
// file, a .env file and the process environment, in that order of precedence
// (later wins).
package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"

	// FileEnv names the variable holding the optional YAML config path.
	FileEnv = "GEOVISOR_CONFIG"
)

type Config struct {
	Env       string          `yaml:"env"`
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	TrustedProxies  []string      `yaml:"trusted_proxies"`
}

type DBConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type AuthConfig struct {
	Secret    string        `yaml:"secret"`
	Algorithm string        `yaml:"algorithm"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	Issuer    string        `yaml:"issuer"`
}

// RateLimitConfig bounds login attempts per client address.
type RateLimitConfig struct {
	Burst     int     `yaml:"burst"`
	PerSecond float64 `yaml:"per_second"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in settings. The signing secret has no default.
func Default() Config {
	return Config{
		Env: "dev",
		Server: ServerConfig{
			Addr:            ":8000",
			GRPCAddr:        ":9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    0,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		DB: DBConfig{
			Driver:          DriverMySQL,
			Host:            "localhost",
			Port:            3306,
			User:            "root",
			Name:            "geovisor_agua_saneamiento",
			MaxOpenConns:    20,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Auth: AuthConfig{
			Algorithm: "HS256",
			TokenTTL:  60 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Burst:     10,
			PerSecond: 1,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration. A missing .env file is not an error.
func Load() (Config, error) {
	cfg, err := load()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDB builds only the database settings, for tools that never sign tokens.
func LoadDB() (DBConfig, error) {
	cfg, err := load()
	if err != nil {
		return DBConfig{}, err
	}
	if err := cfg.DB.validate(); err != nil {
		return DBConfig{}, err
	}
	return cfg.DB, nil
}

func load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv(FileEnv)); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("GEOVISOR_ENV", &c.Env)
	str("GEOVISOR_ADDR", &c.Server.Addr)
	str("GEOVISOR_GRPC_ADDR", &c.Server.GRPCAddr)
	str("GEOVISOR_LOG_LEVEL", &c.Log.Level)
	if v, ok := lookup("GEOVISOR_CORS_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v, ok := lookup("GEOVISOR_TRUSTED_PROXIES"); ok && strings.TrimSpace(v) != "" {
		c.Server.TrustedProxies = strings.Split(v, ",")
	}

	str("GEOVISOR_DB_DRIVER", &c.DB.Driver)
	str("GEOVISOR_DB_DSN", &c.DB.DSN)
	str("DB_HOST", &c.DB.Host)
	num("DB_PORT", &c.DB.Port)
	str("DB_USER", &c.DB.User)
	if v, ok := lookup("DB_PASSWORD"); ok {
		c.DB.Password = v
	}
	str("DB_NAME", &c.DB.Name)

	if v, ok := lookup("SECRET_KEY"); ok {
		c.Auth.Secret = v
	}
	str("ALGORITHM", &c.Auth.Algorithm)
	str("GEOVISOR_TOKEN_ISSUER", &c.Auth.Issuer)
	if v, ok := lookup("ACCESS_TOKEN_EXPIRE_MINUTES"); ok && strings.TrimSpace(v) != "" {
		var minutes int
		num("ACCESS_TOKEN_EXPIRE_MINUTES", &minutes)
		c.Auth.TokenTTL = time.Duration(minutes) * time.Minute
	}

	num("GEOVISOR_LOGIN_RATE_BURST", &c.RateLimit.Burst)
	if v, ok := lookup("GEOVISOR_LOGIN_RATE_PER_SEC"); ok && strings.TrimSpace(v) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("GEOVISOR_LOGIN_RATE_PER_SEC: %w", err))
		} else {
			c.RateLimit.PerSecond = f
		}
	}
	return errors.Join(errs...)
}

// Validate fails fast on settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.Secret) == "" {
		errs = append(errs, errors.New("auth secret is required (SECRET_KEY)"))
	}
	switch strings.ToUpper(c.Auth.Algorithm) {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Errorf("unsupported token algorithm %q", c.Auth.Algorithm))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("token ttl must be positive"))
	}
	if err := c.DB.validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Server.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimit.Burst <= 0 || c.RateLimit.PerSecond <= 0 {
		errs = append(errs, errors.New("login rate limit must be positive"))
	}
	return errors.Join(errs...)
}

// TrustedProxyPrefixes parses TrustedProxies. Entries are CIDR ranges or
// single addresses.
func (s ServerConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range s.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func (d DBConfig) validate() error {
	switch d.Driver {
	case DriverMySQL, DriverPostgres:
		return nil
	default:
		return fmt.Errorf("unsupported db driver %q", d.Driver)
	}
}

// DataSourceName returns the driver specific DSN, building one from the
// discrete fields when no explicit DSN is configured.
func (d DBConfig) DataSourceName() string {
	if d.DSN != "" {
		return d.DSN
	}
	addr := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	switch d.Driver {
	case DriverPostgres:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(d.User, d.Password),
			Host:     addr,
			Path:     "/" + d.Name,
			RawQuery: "sslmode=disable",
		}
		return u.String()
	default:
		mc := mysql.NewConfig()
		mc.User = d.User
		mc.Passwd = d.Password
		mc.Net = "tcp"
		mc.Addr = addr
		mc.DBName = d.Name
		mc.ParseTime = true
		mc.Loc = time.UTC
		mc.Params = map[string]string{"charset": "utf8mb4"}
		return mc.FormatDSN()
	}
}
