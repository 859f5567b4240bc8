// Package server wires the release server together: configuration, the
// store backend, the signature provider, optional archive and event
// publishing, and the envelope HTTP endpoint. It also handles graceful
// shutdown.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/dmitrijs2005/releasekeeper/internal/logging"
	"github.com/dmitrijs2005/releasekeeper/internal/server/api"
	"github.com/dmitrijs2005/releasekeeper/internal/server/archive"
	"github.com/dmitrijs2005/releasekeeper/internal/server/config"
	"github.com/dmitrijs2005/releasekeeper/internal/server/events"
	"github.com/dmitrijs2005/releasekeeper/internal/server/releases"
	"github.com/dmitrijs2005/releasekeeper/internal/server/signature"
	"github.com/dmitrijs2005/releasekeeper/internal/server/store"
	"github.com/dmitrijs2005/releasekeeper/internal/server/store/dynamo"
	"github.com/dmitrijs2005/releasekeeper/internal/server/store/memory"
	"github.com/dmitrijs2005/releasekeeper/internal/server/store/postgres"
	"github.com/dmitrijs2005/releasekeeper/internal/server/users"
)

var loadAWSConfig = awsconfig.LoadDefaultConfig

type App struct {
	config   *config.Config
	logger   logging.Logger
	store    store.Store
	closeFn  func() error
	accounts *users.Service
	releases *releases.Service
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	app := &App{config: c, logger: logger, closeFn: func() error { return nil }}

	if err := app.openStore(ctx); err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	provider := signature.NewClient(c.SignatureAPIKey, signature.WithBaseURL(c.SignatureBaseURL))

	opts := []releases.ServiceOption{
		releases.WithCompiler(releases.NewCompiler(releases.WithStrict(c.StrictValidation))),
		releases.WithReconciler(releases.NewReconciler(app.store, provider, logger,
			releases.WithConcurrency(c.ReconcileConcurrency),
			releases.WithFetchTimeout(c.ProviderTimeout),
		)),
	}

	if c.S3Bucket != "" {
		opts = append(opts, releases.WithArchiver(archive.New(archive.Config{
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
		})))
	}

	if c.EventsQueueURL != "" {
		awsCfg, err := app.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, releases.WithPublisher(events.NewSQSPublisherFromConfig(awsCfg, c.EventsQueueURL)))
	}

	app.releases = releases.NewService(app.store, provider, releases.ServiceConfig{
		TemplateID:      c.SignatureTemplateID,
		TestMode:        c.SignatureTestMode,
		ProviderTimeout: c.ProviderTimeout,
	}, logger, opts...)

	app.accounts = users.NewService(app.store, c.SecretKey, c.AccessTokenValidityDuration, logger)

	return app, nil
}

func (app *App) awsConfig(ctx context.Context) (aws.Config, error) {
	awsCfg, err := loadAWSConfig(ctx, awsconfig.WithRegion(app.config.AWSRegion))
	if err != nil {
		return aws.Config{}, fmt.Errorf("aws config error: %w", err)
	}
	if app.config.AWSEndpoint != "" {
		awsCfg.BaseEndpoint = aws.String(app.config.AWSEndpoint)
	}
	return awsCfg, nil
}

func (app *App) openStore(ctx context.Context) error {
	switch app.config.StoreBackend {
	case config.StoreMemory:
		app.logger.Warn(ctx, "using in-memory store, data is lost on restart")
		app.store = memory.New()

	case config.StoreDynamo:
		awsCfg, err := app.awsConfig(ctx)
		if err != nil {
			return err
		}
		s := dynamo.New(&awsCfg, app.config.DynamoTable, dynamo.WithEmailIndex(app.config.DynamoEmailIndex))
		if err := s.Connect(); err != nil {
			return err
		}
		if err := s.Init(ctx); err != nil {
			return err
		}
		app.store = s

	case config.StorePostgres:
		db, err := postgres.Open(app.config.DatabaseDSN)
		if err != nil {
			return err
		}
		s := postgres.New(db)
		if err := s.RunMigrations(ctx); err != nil {
			db.Close()
			return err
		}
		app.store = s
		app.closeFn = s.Close

	default:
		return fmt.Errorf("unknown store backend %q", app.config.StoreBackend)
	}

	app.logger.Info(ctx, "store ready", "backend", app.config.StoreBackend)
	return nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	h := api.NewHandler(app.accounts, app.releases, app.logger)
	s := api.NewServer(app.config.EndpointAddrHTTP, h, app.config.RequestTimeout, app.logger,
		api.WithRateLimit(app.config.RateLimitPerMinute, time.Minute))

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.closeFn(); err != nil {
		app.logger.Error(ctx, "failed to close store", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
