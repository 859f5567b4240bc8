package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/releasekeeper/internal/flagx"
	"github.com/dmitrijs2005/releasekeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// "10s" style strings or integer nanoseconds. Pointer fields distinguish
// an explicit false/0 from an absent key.
type JsonConfig struct {
	EndpointAddrHTTP            string         `json:"endpoint_addr_http"`
	StoreBackend                string         `json:"store_backend"`
	DynamoTable                 string         `json:"dynamo_table"`
	DynamoEmailIndex            string         `json:"dynamo_email_index"`
	AWSRegion                   string         `json:"aws_region"`
	AWSEndpoint                 string         `json:"aws_endpoint"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	SignatureAPIKey             string         `json:"signature_api_key"`
	SignatureBaseURL            string         `json:"signature_base_url"`
	SignatureTemplateID         string         `json:"signature_template_id"`
	SignatureTestMode           *bool          `json:"signature_test_mode"`
	ProviderTimeout             timex.Duration `json:"provider_timeout"`
	RequestTimeout              timex.Duration `json:"request_timeout"`
	RateLimitPerMinute          int            `json:"rate_limit_per_minute"`
	ReconcileConcurrency        int            `json:"reconcile_concurrency"`
	StrictValidation            *bool          `json:"strict_validation"`
	S3Bucket                    string         `json:"s3_bucket"`
	S3Region                    string         `json:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint"`
	S3RootUser                  string         `json:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password"`
	EventsQueueURL              string         `json:"events_queue_url"`
	LogLevel                    string         `json:"log_level"`
}

// parseJson overlays values from the file named by -c/-config. Keys missing
// from the file leave the current value untouched. An unreadable or invalid
// file panics, as a misconfigured server must not start.
func parseJson(config *Config, args []string) {
	jsonConfigFile := flagx.ConfigFileFlag(args)

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.StoreBackend, c.StoreBackend)
	setString(&config.DynamoTable, c.DynamoTable)
	setString(&config.DynamoEmailIndex, c.DynamoEmailIndex)
	setString(&config.AWSRegion, c.AWSRegion)
	setString(&config.AWSEndpoint, c.AWSEndpoint)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	setString(&config.SignatureAPIKey, c.SignatureAPIKey)
	setString(&config.SignatureBaseURL, c.SignatureBaseURL)
	setString(&config.SignatureTemplateID, c.SignatureTemplateID)
	if c.SignatureTestMode != nil {
		config.SignatureTestMode = *c.SignatureTestMode
	}
	if c.ProviderTimeout.Duration > 0 {
		config.ProviderTimeout = c.ProviderTimeout.Duration
	}
	if c.RequestTimeout.Duration > 0 {
		config.RequestTimeout = c.RequestTimeout.Duration
	}
	if c.RateLimitPerMinute > 0 {
		config.RateLimitPerMinute = c.RateLimitPerMinute
	}
	if c.ReconcileConcurrency > 0 {
		config.ReconcileConcurrency = c.ReconcileConcurrency
	}
	if c.StrictValidation != nil {
		config.StrictValidation = *c.StrictValidation
	}
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.EventsQueueURL, c.EventsQueueURL)
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
