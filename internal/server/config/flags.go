package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/releasekeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-k string   store backend (dynamodb, postgres, memory)
//	-n string   DynamoDB table name
//	-g string   AWS region
//	-e string   AWS endpoint override
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-x string   signature provider API key
//	-m string   signature template id
//	-w int      reconcile concurrency
//	-b string   S3 archive bucket
//	-q string   SQS events queue URL
//	-l string   log level
//
// Args are filtered with flagx.FilterArgs first so flags owned by other
// components (such as -c) do not trip the parser.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-k", "-n", "-g", "-e", "-d", "-s", "-t", "-x", "-m", "-w", "-b", "-q", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.StoreBackend, "k", config.StoreBackend, "store backend")
	fs.StringVar(&config.DynamoTable, "n", config.DynamoTable, "DynamoDB table")
	fs.StringVar(&config.AWSRegion, "g", config.AWSRegion, "AWS region")
	fs.StringVar(&config.AWSEndpoint, "e", config.AWSEndpoint, "AWS endpoint override")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")

	fs.StringVar(&config.SignatureAPIKey, "x", config.SignatureAPIKey, "signature provider API key")
	fs.StringVar(&config.SignatureTemplateID, "m", config.SignatureTemplateID, "signature template id")
	fs.IntVar(&config.ReconcileConcurrency, "w", config.ReconcileConcurrency, "reconcile concurrency")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 archive bucket")
	fs.StringVar(&config.EventsQueueURL, "q", config.EventsQueueURL, "SQS events queue URL")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
}
