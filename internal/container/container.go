package container

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"go-signature-extractor/internal/config"
	"go-signature-extractor/internal/dispatch"
	"go-signature-extractor/internal/extractor"
	"go-signature-extractor/internal/factory"
	"go-signature-extractor/internal/labels"
	"go-signature-extractor/internal/logger"
	"go-signature-extractor/internal/observer"
	"go-signature-extractor/internal/recognition"
	"go-signature-extractor/internal/repository"
	"go-signature-extractor/internal/service"
	"go-signature-extractor/internal/storage"
	"go-signature-extractor/internal/transport"
	"go-signature-extractor/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config  *config.Config
	pool    *dispatch.WorkerPool
	closers []io.Closer
	service service.SessionService
	handler http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) (*Container, error) {
	catalog, err := labels.New(cfg.LabelLocale)
	if err != nil {
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}

	components := factory.NewComponentFactory(cfg)

	// Recognition backends
	router, closers, skipped := components.BuildRouter()
	for id, reason := range skipped {
		logger.WithFields(logrus.Fields{"provider": id, "reason": reason.Error()}).Info("Recognition provider unavailable")
	}

	archive, err := components.SinkFactory.CreateSink(factory.SinkType(cfg.ArchiveSink))
	if err != nil {
		return nil, fmt.Errorf("failed to create archive sink: %w", err)
	}

	// Events
	metrics := observer.NewMetricsObserver()
	publisher := observer.NewEventPublisher()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)

	// Documents and settings
	urlValidator := validation.NewURLValidatorWithOptions([]string{"http", "https"}, cfg.AllowedHosts)
	fetcher := storage.NewHTTPDocumentFetcher(cfg.ImageFetchTimeout)
	documents := repository.NewHTTPDocumentRepository(fetcher, urlValidator)

	thresholds := validation.DefaultDocumentThresholds()
	thresholds.MaxPixels = cfg.MaxDocumentPixels
	documentValidator := validation.NewDocumentValidatorWithThresholds(thresholds)

	settings := repository.NewFileSettingsRepository(cfg.SettingsDir, recognition.DefaultProvider)

	pool := dispatch.NewWorkerPool(cfg.RecognitionWorkers)
	pool.Start()

	svc, err := service.NewSessionService(context.Background(), service.Dependencies{
		Documents:          documents,
		Settings:           settings,
		DocumentValidator:  documentValidator,
		Extractor:          extractor.NewExtractor(extractor.DefaultOptions()),
		Recognizer:         router,
		Providers:          router,
		Pool:               pool,
		Labels:             catalog,
		Publisher:          publisher,
		RecognitionTimeout: cfg.RecognitionTimeout,
		Archive:            archive,
		SessionIdleTTL:     cfg.SessionIdleTTL,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Container{
		config:  cfg,
		pool:    pool,
		closers: closers,
		service: svc,
		handler: transport.NewHandler(svc, serviceMetrics{events: metrics, pool: pool}, cfg),
	}, nil
}

// serviceMetrics adds worker pool load to the event counters
type serviceMetrics struct {
	events *observer.MetricsObserver
	pool   *dispatch.WorkerPool
}

func (m serviceMetrics) GetMetrics() map[string]interface{} {
	out := m.events.GetMetrics()
	out["recognition_pool"] = m.pool.GetStats()
	return out
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Close waits for in-flight recognitions, then stops the worker pool and
// releases native recognition backends.
func (c *Container) Close(ctx context.Context) error {
	err := c.service.Shutdown(ctx)
	c.pool.Close()
	for _, closer := range c.closers {
		if cerr := closer.Close(); cerr != nil {
			logger.WithError(cerr).Warn("Failed to close recognition backend")
		}
	}
	return err
}
