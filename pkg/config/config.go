package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	Redis    RedisConfig
	DB       DBConfig
	Basket   BasketConfig
	Session  SessionConfig
	Checkout CheckoutConfig
	Square   SquareConfig
	CORS     CORSConfig
	Content  ContentConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Basket.validate(); err != nil {
		return nil, err
	}
	if cfg.Basket.Storage == BasketStorageSQL {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	if cfg.Basket.Storage == BasketStorageRedis && cfg.Redis.URL == "" && cfg.Redis.Address == "" {
		return nil, fmt.Errorf("%s or %s is required for redis basket storage", EnvRedisURL, EnvRedisAddr)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"HPI_APP_ENV" required:"true"`
	Port         string `envconfig:"HPI_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"HPI_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"HPI_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"HPI_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type RedisConfig struct {
	URL          string        `envconfig:"HPI_REDIS_URL"`
	Address      string        `envconfig:"HPI_REDIS_ADDR"`
	Password     string        `envconfig:"HPI_REDIS_PASSWORD"`
	DB           int           `envconfig:"HPI_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"HPI_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"HPI_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"HPI_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"HPI_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HPI_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type DBConfig struct {
	DSN    string `envconfig:"HPI_DB_DSN"`
	Driver string `envconfig:"HPI_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"HPI_DB_HOST"`
	Port     int    `envconfig:"HPI_DB_PORT" default:"5432"`
	User     string `envconfig:"HPI_DB_USER"`
	Password string `envconfig:"HPI_DB_PASSWORD"`
	Name     string `envconfig:"HPI_DB_NAME"`
	SSLMode  string `envconfig:"HPI_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"HPI_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"HPI_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"HPI_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"HPI_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite engine.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type BasketConfig struct {
	Storage    string        `envconfig:"HPI_BASKET_STORAGE" default:"redis"`
	StorageKey string        `envconfig:"HPI_BASKET_STORAGE_KEY" default:"hpi_cart_v3"`
	TTL        time.Duration `envconfig:"HPI_BASKET_TTL" default:"720h"`
	CacheTTL   time.Duration `envconfig:"HPI_BASKET_CACHE_TTL" default:"10m"`
	// PruneInterval is how often the janitor deletes SQL snapshots older than TTL.
	PruneInterval time.Duration `envconfig:"HPI_BASKET_PRUNE_INTERVAL" default:"1h"`
}

func (b *BasketConfig) validate() error {
	b.Storage = strings.ToLower(strings.TrimSpace(b.Storage))
	switch b.Storage {
	case BasketStorageRedis, BasketStorageSQL, BasketStorageMemory:
	default:
		return fmt.Errorf("%s must be one of %q, %q or %q", EnvBasketStorage, BasketStorageRedis, BasketStorageSQL, BasketStorageMemory)
	}
	if strings.TrimSpace(b.StorageKey) == "" {
		return fmt.Errorf("%s must not be empty", EnvBasketStorageKey)
	}
	return nil
}

type SessionConfig struct {
	Secret     string        `envconfig:"HPI_SESSION_SECRET" required:"true"`
	Issuer     string        `envconfig:"HPI_SESSION_ISSUER" default:"hpi-storefront"`
	CookieName string        `envconfig:"HPI_SESSION_COOKIE" default:"hpi_basket_session"`
	TTL        time.Duration `envconfig:"HPI_SESSION_TTL" default:"720h"`
}

type CheckoutConfig struct {
	Currency        string        `envconfig:"HPI_CURRENCY" default:"INR"`
	MerchantName    string        `envconfig:"HPI_MERCHANT_NAME" default:"Health Plus Innovation"`
	Description     string        `envconfig:"HPI_ORDER_DESCRIPTION" default:"Healthcare Supply Order"`
	RateLimit       int           `envconfig:"HPI_CHECKOUT_RATE_LIMIT" default:"10"`
	RateLimitWindow time.Duration `envconfig:"HPI_CHECKOUT_RATE_LIMIT_WINDOW" default:"1m"`
	IdempotencyTTL  time.Duration `envconfig:"HPI_CHECKOUT_IDEMPOTENCY_TTL" default:"24h"`
	DemoNoticeDelay time.Duration `envconfig:"HPI_DEMO_NOTICE_DELAY" default:"1s"`
	DemoSettleDelay time.Duration `envconfig:"HPI_DEMO_SETTLE_DELAY" default:"2s"`
}

type SquareConfig struct {
	AccessToken string `envconfig:"HPI_SQUARE_ACCESS_TOKEN"`
	LocationID  string `envconfig:"HPI_SQUARE_LOCATION_ID"`
	Env         string `envconfig:"HPI_SQUARE_ENV" default:"sandbox"`
}

// Enabled reports whether the Square gateway has credentials; otherwise checkout falls back to the demo gateway.
func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.AccessToken) != "" && strings.TrimSpace(s.LocationID) != ""
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"HPI_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type ContentConfig struct {
	CatalogPath string `envconfig:"HPI_CATALOG_PATH"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range []string{EnvDBHost, EnvDBUser, EnvDBName} {
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
