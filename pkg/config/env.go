package config

// EnvPrefix is handed to envconfig; every field carries an explicit key so the
// prefix only matters for fields without one.
const EnvPrefix = "CERTIFY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv                 = "CERTIFY_APP_ENV"
	EnvPort                   = "CERTIFY_APP_PORT"
	EnvLogLevel               = "CERTIFY_LOG_LEVEL"
	EnvDBDSN                  = "CERTIFY_DB_DSN"
	EnvDBHost                 = "CERTIFY_DB_HOST"
	EnvDBUser                 = "CERTIFY_DB_USER"
	EnvDBName                 = "CERTIFY_DB_NAME"
	EnvUseSQLite              = "CERTIFY_USE_SQLITE"
	EnvRedisURL               = "CERTIFY_REDIS_URL"
	EnvJWTSecret              = "CERTIFY_JWT_SECRET"
	EnvJWTIssuer              = "CERTIFY_JWT_ISSUER"
	EnvJWTExpMins             = "CERTIFY_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "CERTIFY_REFRESH_TOKEN_TTL_MINUTES"
	EnvRegistryCodeBytes      = "CERTIFY_REGISTRY_CODE_BYTES"
	EnvVerifyIPLimit          = "CERTIFY_VERIFY_RATE_LIMIT_IP_LIMIT"
	EnvPubSubCertificateTopic = "CERTIFY_PUBSUB_CERTIFICATE_TOPIC"
	EnvCORSOrigins            = "CERTIFY_CORS_ORIGINS"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
