package config

const EnvPrefix = "HPI"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	BasketStorageRedis  = "redis"
	BasketStorageSQL    = "sql"
	BasketStorageMemory = "memory"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv           = "HPI_APP_ENV"
	EnvPort             = "HPI_APP_PORT"
	EnvRedisURL         = "HPI_REDIS_URL"
	EnvRedisAddr        = "HPI_REDIS_ADDR"
	EnvDBDSN            = "HPI_DB_DSN"
	EnvDBDriver         = "HPI_DB_DRIVER"
	EnvDBHost           = "HPI_DB_HOST"
	EnvDBUser           = "HPI_DB_USER"
	EnvDBName           = "HPI_DB_NAME"
	EnvBasketStorage    = "HPI_BASKET_STORAGE"
	EnvBasketStorageKey = "HPI_BASKET_STORAGE_KEY"
	EnvBasketCacheTTL   = "HPI_BASKET_CACHE_TTL"
	EnvSessionSecret    = "HPI_SESSION_SECRET"
	EnvCurrency         = "HPI_CURRENCY"
	EnvSquareToken      = "HPI_SQUARE_ACCESS_TOKEN"
	EnvSquareLocation   = "HPI_SQUARE_LOCATION_ID"
)
