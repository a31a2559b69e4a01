package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App             AppConfig
	DB              DBConfig
	Redis           RedisConfig
	JWT             JWTConfig
	Password        PasswordConfig
	AuthRateLimit   AuthRateLimitConfig
	VerifyRateLimit VerifyRateLimitConfig
	Registry        RegistryConfig
	Bootstrap       BootstrapConfig
	FeatureFlags    FeatureFlagsConfig
	Eventing        EventingConfig
	GCP             GCPConfig
	PubSub          PubSubConfig
	Outbox          OutboxConfig
	Cron            CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"CERTIFY_APP_ENV" required:"true"`
	Port         string   `envconfig:"CERTIFY_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"CERTIFY_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"CERTIFY_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"CERTIFY_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"CERTIFY_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CERTIFY_DB_DSN"`
	Driver string `envconfig:"CERTIFY_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"CERTIFY_DB_HOST"`
	Port     int    `envconfig:"CERTIFY_DB_PORT" default:"5432"`
	User     string `envconfig:"CERTIFY_DB_USER"`
	Password string `envconfig:"CERTIFY_DB_PASSWORD"`
	Name     string `envconfig:"CERTIFY_DB_NAME"`
	SSLMode  string `envconfig:"CERTIFY_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"CERTIFY_SQLITE_PATH" default:"certify.db"`

	MaxOpenConns    int           `envconfig:"CERTIFY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CERTIFY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CERTIFY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CERTIFY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CERTIFY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CERTIFY_REDIS_ADDR"`
	Password     string        `envconfig:"CERTIFY_REDIS_PASSWORD"`
	DB           int           `envconfig:"CERTIFY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CERTIFY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CERTIFY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CERTIFY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CERTIFY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CERTIFY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"CERTIFY_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"CERTIFY_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"CERTIFY_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"CERTIFY_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"CERTIFY_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"CERTIFY_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"CERTIFY_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"CERTIFY_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"CERTIFY_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"CERTIFY_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"CERTIFY_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"CERTIFY_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"CERTIFY_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"CERTIFY_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"CERTIFY_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

// VerifyRateLimitConfig bounds public verification lookups per client IP.
type VerifyRateLimitConfig struct {
	Window  time.Duration `envconfig:"CERTIFY_VERIFY_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit int           `envconfig:"CERTIFY_VERIFY_RATE_LIMIT_IP_LIMIT" default:"60"`
}

type RegistryConfig struct {
	VerificationCodeBytes int `envconfig:"CERTIFY_REGISTRY_CODE_BYTES" default:"16"`
	CodeMaxAttempts       int `envconfig:"CERTIFY_REGISTRY_CODE_MAX_ATTEMPTS" default:"5"`
	DefaultPageSize       int `envconfig:"CERTIFY_REGISTRY_DEFAULT_PAGE_SIZE" default:"10"`
	HistoryLimit          int `envconfig:"CERTIFY_REGISTRY_HISTORY_LIMIT" default:"50"`
}

type BootstrapConfig struct {
	AdminEmail    string `envconfig:"CERTIFY_BOOTSTRAP_ADMIN_EMAIL"`
	AdminPassword string `envconfig:"CERTIFY_BOOTSTRAP_ADMIN_PASSWORD"`
}

// Enabled reports whether an admin account should be seeded at startup.
func (b BootstrapConfig) Enabled() bool {
	return strings.TrimSpace(b.AdminEmail) != "" && b.AdminPassword != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CERTIFY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CERTIFY_AUTO_MIGRATE" default:"false"`
	Metrics     bool `envconfig:"CERTIFY_METRICS_ENABLED" default:"true"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"CERTIFY_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CERTIFY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CERTIFY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CERTIFY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	CertificateTopic string `envconfig:"CERTIFY_PUBSUB_CERTIFICATE_TOPIC" default:"certificate-events"`
	DLQTopic         string `envconfig:"CERTIFY_PUBSUB_DLQ_TOPIC"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"CERTIFY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"CERTIFY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"CERTIFY_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"CERTIFY_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"CERTIFY_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"CERTIFY_CRON_LOCK_TTL" default:"10m"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = "sqlite"
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
