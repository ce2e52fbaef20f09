package config

const EnvPrefix = "DROPONE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	CommissionBasisMargin = "margin"
	CommissionBasisGross  = "gross"
)

const (
	PayPalModeLive       = "live"
	PayPalLiveBaseURL    = "https://api-m.paypal.com"
	PayPalSandboxBaseURL = "https://api-m.sandbox.paypal.com"
)

const (
	EnvAppEnv          = "DROPONE_APP_ENV"
	EnvPort            = "DROPONE_APP_PORT"
	EnvBaseURL         = "DROPONE_APP_BASE_URL"
	EnvDBDSN           = "DROPONE_DB_DSN"
	EnvDBHost          = "DROPONE_DB_HOST"
	EnvDBUser          = "DROPONE_DB_USER"
	EnvDBName          = "DROPONE_DB_NAME"
	EnvRedisURL        = "DROPONE_REDIS_URL"
	EnvJWTSecret       = "DROPONE_JWT_SECRET"
	EnvJWTIssuer       = "DROPONE_JWT_ISSUER"
	EnvCommissionRate  = "DROPONE_COMMISSION_RATE"
	EnvCommissionBasis = "DROPONE_COMMISSION_BASIS"
	EnvPayPalMode      = "DROPONE_PAYPAL_MODE"
	EnvPayPalClientID  = "DROPONE_PAYPAL_CLIENT_ID"
	EnvPayPalSecret    = "DROPONE_PAYPAL_CLIENT_SECRET"
	EnvMinWithdrawal   = "DROPONE_PAYOUT_MIN_WITHDRAWAL_CENTS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
