package factory

import (
	"fmt"
	"io"
	"time"

	"go-signature-extractor/internal/config"
	"go-signature-extractor/internal/recognition"
	"go-signature-extractor/internal/storage"
)

// SinkType represents different archive destinations
type SinkType string

const (
	// LocalSink writes archives to a directory
	LocalSink SinkType = config.ArchiveSinkLocal
	// AzureSink uploads archives to Azure blob storage
	AzureSink SinkType = config.ArchiveSinkAzure
)

// localBackends builds backends that need extra build tags. Each entry
// returns the backend and an optional closer for its native resources.
var localBackends = map[string]func() (recognition.Backend, io.Closer, error){}

// BackendFactory creates recognition backends
type BackendFactory interface {
	CreateBackend(providerID string) (recognition.Backend, io.Closer, error)
}

// SinkFactory creates archive sinks
type SinkFactory interface {
	CreateSink(sinkType SinkType) (storage.ArchiveSink, error)
}

// backendFactory implements BackendFactory
type backendFactory struct {
	timeout time.Duration
}

// NewBackendFactory creates a factory whose remote backends time out after timeout
func NewBackendFactory(timeout time.Duration) BackendFactory {
	return &backendFactory{timeout: timeout}
}

// CreateBackend creates the backend for a provider id
func (f *backendFactory) CreateBackend(providerID string) (recognition.Backend, io.Closer, error) {
	provider, ok := recognition.LookupProvider(providerID)
	if !ok {
		return nil, nil, fmt.Errorf("unsupported provider: %s", providerID)
	}

	if build, ok := localBackends[providerID]; ok {
		return build()
	}
	if provider.Endpoint == "" {
		return nil, nil, fmt.Errorf("provider %s is not compiled into this binary", providerID)
	}
	return recognition.NewChatCompletionsClient(provider, f.timeout), nil, nil
}

// sinkFactory implements SinkFactory
type sinkFactory struct {
	cfg *config.Config
}

// NewSinkFactory creates a sink factory reading its settings from cfg
func NewSinkFactory(cfg *config.Config) SinkFactory {
	return &sinkFactory{cfg: cfg}
}

// CreateSink creates a sink based on the specified type
func (f *sinkFactory) CreateSink(sinkType SinkType) (storage.ArchiveSink, error) {
	switch sinkType {
	case LocalSink:
		return storage.NewLocalArchiveSink(f.cfg.ArchiveDir)
	case AzureSink:
		return storage.NewAzureArchiveSink(f.cfg.AzureStorageAccount, f.cfg.AzureStorageKey, f.cfg.AzureStorageContainer)
	default:
		return nil, fmt.Errorf("unsupported sink type: %s", sinkType)
	}
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	BackendFactory BackendFactory
	SinkFactory    SinkFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config) *ComponentFactory {
	return &ComponentFactory{
		BackendFactory: NewBackendFactory(cfg.RecognitionTimeout),
		SinkFactory:    NewSinkFactory(cfg),
	}
}

// BuildRouter registers every provider this binary can serve. Providers that
// fail to build are reported in skipped and left out of the router.
func (c *ComponentFactory) BuildRouter() (router *recognition.Router, closers []io.Closer, skipped map[string]error) {
	router = recognition.NewRouter()
	skipped = make(map[string]error)

	for _, p := range recognition.Providers() {
		backend, closer, err := c.BackendFactory.CreateBackend(p.ID)
		if err != nil {
			skipped[p.ID] = err
			continue
		}
		router.Register(p.ID, backend)
		if closer != nil {
			closers = append(closers, closer)
		}
	}
	return router, closers, skipped
}
