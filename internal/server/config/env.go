package config

import (
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// EnvConfig lists the environment variables understood by the server.
// Unset variables keep the value from defaults or the JSON file.
type EnvConfig struct {
	EndpointAddrHTTP            string        `env:"RK_HTTP_ADDR"`
	StoreBackend                string        `env:"RK_STORE_BACKEND"`
	DynamoTable                 string        `env:"RK_DYNAMO_TABLE"`
	DynamoEmailIndex            string        `env:"RK_DYNAMO_EMAIL_INDEX"`
	AWSRegion                   string        `env:"AWS_REGION"`
	AWSEndpoint                 string        `env:"RK_AWS_ENDPOINT"`
	DatabaseDSN                 string        `env:"RK_DATABASE_DSN"`
	SecretKey                   string        `env:"RK_SECRET_KEY"`
	AccessTokenValidityDuration time.Duration `env:"RK_ACCESS_TOKEN_TTL"`
	SignatureAPIKey             string        `env:"RK_SIGNATURE_API_KEY"`
	SignatureBaseURL            string        `env:"RK_SIGNATURE_BASE_URL"`
	SignatureTemplateID         string        `env:"RK_SIGNATURE_TEMPLATE_ID"`
	SignatureTestMode           string        `env:"RK_SIGNATURE_TEST_MODE"`
	ProviderTimeout             time.Duration `env:"RK_PROVIDER_TIMEOUT"`
	RequestTimeout              time.Duration `env:"RK_REQUEST_TIMEOUT"`
	RateLimitPerMinute          int           `env:"RK_RATE_LIMIT"`
	ReconcileConcurrency        int           `env:"RK_RECONCILE_CONCURRENCY"`
	StrictValidation            string        `env:"RK_STRICT_VALIDATION"`
	S3Bucket                    string        `env:"RK_S3_BUCKET"`
	S3Region                    string        `env:"RK_S3_REGION"`
	S3BaseEndpoint              string        `env:"RK_S3_BASE_ENDPOINT"`
	S3RootUser                  string        `env:"RK_S3_ROOT_USER"`
	S3RootPassword              string        `env:"RK_S3_ROOT_PASSWORD"`
	EventsQueueURL              string        `env:"RK_EVENTS_QUEUE_URL"`
	LogLevel                    string        `env:"RK_LOG_LEVEL"`
}

// parseEnv overlays values from the environment. Malformed values panic.
func parseEnv(config *Config) {
	var e EnvConfig
	if err := cleanenv.ReadEnv(&e); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, e.EndpointAddrHTTP)
	setString(&config.StoreBackend, e.StoreBackend)
	setString(&config.DynamoTable, e.DynamoTable)
	setString(&config.DynamoEmailIndex, e.DynamoEmailIndex)
	setString(&config.AWSRegion, e.AWSRegion)
	setString(&config.AWSEndpoint, e.AWSEndpoint)
	setString(&config.DatabaseDSN, e.DatabaseDSN)
	setString(&config.SecretKey, e.SecretKey)
	if e.AccessTokenValidityDuration > 0 {
		config.AccessTokenValidityDuration = e.AccessTokenValidityDuration
	}
	setString(&config.SignatureAPIKey, e.SignatureAPIKey)
	setString(&config.SignatureBaseURL, e.SignatureBaseURL)
	setString(&config.SignatureTemplateID, e.SignatureTemplateID)
	setBool(&config.SignatureTestMode, e.SignatureTestMode)
	if e.ProviderTimeout > 0 {
		config.ProviderTimeout = e.ProviderTimeout
	}
	if e.RequestTimeout > 0 {
		config.RequestTimeout = e.RequestTimeout
	}
	if e.RateLimitPerMinute > 0 {
		config.RateLimitPerMinute = e.RateLimitPerMinute
	}
	if e.ReconcileConcurrency > 0 {
		config.ReconcileConcurrency = e.ReconcileConcurrency
	}
	setBool(&config.StrictValidation, e.StrictValidation)
	setString(&config.S3Bucket, e.S3Bucket)
	setString(&config.S3Region, e.S3Region)
	setString(&config.S3BaseEndpoint, e.S3BaseEndpoint)
	setString(&config.S3RootUser, e.S3RootUser)
	setString(&config.S3RootPassword, e.S3RootPassword)
	setString(&config.EventsQueueURL, e.EventsQueueURL)
	setString(&config.LogLevel, e.LogLevel)
}

func setBool(dst *bool, v string) {
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		panic(err)
	}
	*dst = b
}
