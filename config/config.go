package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cwrk-planet/plan-chat/internal/cache"
	"github.com/cwrk-planet/plan-chat/internal/postgres"
	"github.com/cwrk-planet/plan-chat/internal/security"
	"github.com/cwrk-planet/plan-chat/internal/transport/ws"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "PLANCHAT"

type HTTP struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

func (h HTTP) Validate() error {
	if h.Addr == "" {
		return errors.New("http.addr is required")
	}
	return nil
}

type GRPC struct {
	Addr string `yaml:"addr"` // empty disables the gRPC listener
}

type Logging struct {
	Env       string `yaml:"env"`     // dev|stage|prod
	Service   string `yaml:"service"` // plan-chat
	Version   string `yaml:"version"`
	Backend   string `yaml:"backend"` // std|zap
	Level     string `yaml:"level"`
	AddSource bool   `yaml:"addSource"`
	Debug     bool   `yaml:"debug"`
}

type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	ApplicationName   string        `yaml:"applicationName"`
	Migrate           bool          `yaml:"migrate"` // apply migrations/ on startup
}

func (p Postgres) ToPGConfig() postgres.Config {
	return postgres.Config{
		DSN:               p.DSN,
		MaxConns:          p.MaxConns,
		MinConns:          p.MinConns,
		MaxConnLifetime:   p.MaxConnLifetime,
		MaxConnIdleTime:   p.MaxConnIdleTime,
		HealthCheckPeriod: p.HealthCheckPeriod,
		ApplicationName:   p.ApplicationName,
	}
}

const (
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
	DriverMemory   = "memory"
)

type Storage struct {
	Driver     string `yaml:"driver"`
	BadgerPath string `yaml:"badgerPath"`
}

func (s Storage) Validate(pg Postgres) error {
	switch s.Driver {
	case DriverPostgres:
		if pg.DSN == "" {
			return errors.New("postgres.dsn is required for the postgres driver")
		}
	case DriverBadger:
		if s.BadgerPath == "" {
			return errors.New("storage.badgerPath is required for the badger driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver %q is not one of postgres|badger|memory", s.Driver)
	}
	return nil
}

type JWT struct {
	Alg           string        `yaml:"alg"` // HS256|RS256
	Secret        string        `yaml:"secret"`
	PublicKeyPath string        `yaml:"publicKeyPath"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clockSkew"`
}

func (j JWT) Validate() error {
	switch j.Alg {
	case security.AlgHS256:
		if len(j.Secret) < 32 {
			return errors.New("security.jwt.secret must be at least 32 bytes for HS256")
		}
	case security.AlgRS256:
		if j.PublicKeyPath == "" {
			return errors.New("security.jwt.publicKeyPath is required for RS256")
		}
	default:
		return fmt.Errorf("security.jwt.alg %q is not supported", j.Alg)
	}
	if j.ClockSkew < 0 || j.ClockSkew > time.Minute {
		return errors.New("security.jwt.clockSkew must be in [0..1m]")
	}
	return nil
}

// VerifierConfig loads the public key from disk for RS256.
func (j JWT) VerifierConfig() (security.VerifierConfig, error) {
	vc := security.VerifierConfig{
		Alg:       j.Alg,
		Issuer:    j.Issuer,
		Audience:  j.Audience,
		ClockSkew: j.ClockSkew,
	}
	if j.Alg == security.AlgRS256 {
		pub, err := security.LoadRSAPublicKeyFromPEM(j.PublicKeyPath)
		if err != nil {
			return security.VerifierConfig{}, err
		}
		vc.PublicKey = pub
		return vc, nil
	}
	vc.Secret = []byte(j.Secret)
	return vc, nil
}

type Security struct {
	JWT JWT `yaml:"jwt"`
}

type Websocket struct {
	PingInterval   time.Duration `yaml:"pingInterval"`
	PongWait       time.Duration `yaml:"pongWait"`
	WriteWait      time.Duration `yaml:"writeWait"`
	MaxMessageSize int64         `yaml:"maxMessageSize"`
	SendBuffer     int           `yaml:"sendBuffer"`
}

func (w Websocket) Validate() error {
	if w.PingInterval > 0 && w.PongWait > 0 && w.PingInterval >= w.PongWait {
		return errors.New("websocket.pingInterval must be shorter than websocket.pongWait")
	}
	return nil
}

func (w Websocket) ToWSConfig() ws.Config {
	return ws.Config{
		PingInterval:   w.PingInterval,
		PongWait:       w.PongWait,
		WriteWait:      w.WriteWait,
		MaxMessageSize: w.MaxMessageSize,
		SendBuffer:     w.SendBuffer,
	}
}

type Chat struct {
	MaxMessageLength int `yaml:"maxMessageLength"`
}

type Redis struct {
	Addr     string        `yaml:"addr"` // empty disables the role cache
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	RoleTTL  time.Duration `yaml:"roleTTL"`
}

func (r Redis) ToCacheConfig() cache.Config {
	return cache.Config{Addr: r.Addr, Password: r.Password, DB: r.DB, TTL: r.RoleTTL}
}

type NATS struct {
	URL           string `yaml:"url"` // empty disables the publisher
	SubjectPrefix string `yaml:"subjectPrefix"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	GRPC      GRPC      `yaml:"grpc"`
	Logging   Logging   `yaml:"logging"`
	Postgres  Postgres  `yaml:"postgres"`
	Storage   Storage   `yaml:"storage"`
	Security  Security  `yaml:"security"`
	Websocket Websocket `yaml:"websocket"`
	Chat      Chat      `yaml:"chat"`
	Redis     Redis     `yaml:"redis"`
	NATS      NATS      `yaml:"nats"`
	CORS      CORS      `yaml:"cors"`
}

// env holds the settings that may be overridden from the environment,
// e.g. PLANCHAT_POSTGRES_DSN.
type env struct {
	HTTPAddr      string        `envconfig:"HTTP_ADDR"`
	GRPCAddr      string        `envconfig:"GRPC_ADDR"`
	LogEnv        string        `envconfig:"LOG_ENV"`
	LogLevel      string        `envconfig:"LOG_LEVEL"`
	PostgresDSN   string        `envconfig:"POSTGRES_DSN"`
	StorageDriver string        `envconfig:"STORAGE_DRIVER"`
	BadgerPath    string        `envconfig:"BADGER_PATH"`
	JWTAlg        string        `envconfig:"JWT_ALG"`
	JWTSecret     string        `envconfig:"JWT_SECRET"`
	JWTPublicKey  string        `envconfig:"JWT_PUBLIC_KEY_PATH"`
	JWTIssuer     string        `envconfig:"JWT_ISSUER"`
	JWTAudience   string        `envconfig:"JWT_AUDIENCE"`
	JWTClockSkew  time.Duration `envconfig:"JWT_CLOCK_SKEW"`
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	NATSURL       string        `envconfig:"NATS_URL"`
	CORSOrigins   []string      `envconfig:"CORS_ALLOWED_ORIGINS"`
}

// LoadConfig reads the YAML file at CONFIG_PATH (default
// ./config/config.yaml), loads .env when present, applies PLANCHAT_*
// overrides, fills defaults and validates.
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	return Load(path)
}

func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var e env
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	cfg.apply(e)
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) apply(e env) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.HTTP.Addr, e.HTTPAddr)
	set(&c.GRPC.Addr, e.GRPCAddr)
	set(&c.Logging.Env, e.LogEnv)
	set(&c.Logging.Level, e.LogLevel)
	set(&c.Postgres.DSN, e.PostgresDSN)
	set(&c.Storage.Driver, e.StorageDriver)
	set(&c.Storage.BadgerPath, e.BadgerPath)
	set(&c.Security.JWT.Alg, e.JWTAlg)
	set(&c.Security.JWT.Secret, e.JWTSecret)
	set(&c.Security.JWT.PublicKeyPath, e.JWTPublicKey)
	set(&c.Security.JWT.Issuer, e.JWTIssuer)
	set(&c.Security.JWT.Audience, e.JWTAudience)
	set(&c.Redis.Addr, e.RedisAddr)
	set(&c.Redis.Password, e.RedisPassword)
	set(&c.NATS.URL, e.NATSURL)
	if e.JWTClockSkew > 0 {
		c.Security.JWT.ClockSkew = e.JWTClockSkew
	}
	if len(e.CORSOrigins) > 0 {
		c.CORS.AllowedOrigins = e.CORSOrigins
	}
}

func (c *Config) setDefaults() {
	if c.Logging.Service == "" {
		c.Logging.Service = "plan-chat"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverPostgres
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Postgres.ApplicationName == "" {
		c.Postgres.ApplicationName = c.Logging.Service
	}
	if c.Security.JWT.Alg == "" {
		c.Security.JWT.Alg = security.AlgHS256
	}
	if c.Redis.RoleTTL <= 0 {
		c.Redis.RoleTTL = 30 * time.Second
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "plan"
	}
}

func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(c.Postgres); err != nil {
		return err
	}
	if err := c.Security.JWT.Validate(); err != nil {
		return err
	}
	if err := c.Websocket.Validate(); err != nil {
		return err
	}
	if c.Chat.MaxMessageLength < 0 {
		return errors.New("chat.maxMessageLength must be >= 0")
	}
	return nil
}
