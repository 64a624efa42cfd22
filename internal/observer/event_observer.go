package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SignatureEvent represents a signature lifecycle event
type SignatureEvent struct {
	EventType    EventType              `json:"event_type"`
	Timestamp    time.Time              `json:"timestamp"`
	SessionID    string                 `json:"session_id,omitempty"`
	SignatureID  int64                  `json:"signature_id,omitempty"`
	Provider     string                 `json:"provider,omitempty"`
	Duration     time.Duration          `json:"duration"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of signature event
type EventType string

const (
	// ExtractionStarted when a record is created in PROCESSING state
	ExtractionStarted EventType = "extraction_started"
	// ExtractionDiscarded when a selection produced no record
	ExtractionDiscarded EventType = "extraction_discarded"
	// RecognitionSucceeded when a record moves to SUCCESS
	RecognitionSucceeded EventType = "recognition_succeeded"
	// RecognitionFailed when a record moves to ERROR
	RecognitionFailed EventType = "recognition_failed"
	// SignatureRemoved when a record moves to the undo buffer
	SignatureRemoved EventType = "signature_removed"
	// SignatureRestored when undo puts a record back
	SignatureRestored EventType = "signature_restored"
	// SignatureDropped when undo destroys the latest record
	SignatureDropped EventType = "signature_dropped"
	// ExportCompleted when an archive was produced
	ExportCompleted EventType = "export_completed"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event SignatureEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event SignatureEvent)
}

// LoggingObserver logs signature events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent logs the event. Labels are never logged, they may carry names.
func (o *LoggingObserver) OnEvent(ctx context.Context, event SignatureEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"session_id": event.SessionID,
		"success":    event.Success,
	}
	if event.SignatureID != 0 {
		fields["signature_id"] = event.SignatureID
	}
	if event.Provider != "" {
		fields["provider"] = event.Provider
	}
	if event.Duration > 0 {
		fields["processing_time_ms"] = event.Duration.Milliseconds()
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case ExtractionStarted:
		entry.Info("Signature extraction started")
	case ExtractionDiscarded:
		entry.Debug("Selection discarded")
	case RecognitionSucceeded:
		entry.Info("Signature recognized")
	case RecognitionFailed:
		entry.Warn("Signature recognition failed")
	case SignatureRemoved, SignatureRestored, SignatureDropped:
		entry.Debug("Signature collection changed")
	case ExportCompleted:
		entry.Info("Signatures exported")
	default:
		entry.Info("Signature event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects counters from signature events
type MetricsObserver struct {
	mu                 sync.RWMutex
	extractions        int64
	discarded          int64
	recognized         int64
	failed             int64
	removed            int64
	restored           int64
	dropped            int64
	exports            int64
	failuresByKind     map[string]int64
	totalRecognitionTm time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{failuresByKind: make(map[string]int64)}
}

// OnEvent handles signature events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event SignatureEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case ExtractionStarted:
		o.extractions++
	case ExtractionDiscarded:
		o.discarded++
	case RecognitionSucceeded:
		o.recognized++
		o.totalRecognitionTm += event.Duration
	case RecognitionFailed:
		o.failed++
		o.totalRecognitionTm += event.Duration
		if kind, ok := event.Metadata["failure_kind"].(string); ok {
			o.failuresByKind[kind]++
		}
	case SignatureRemoved:
		o.removed++
	case SignatureRestored:
		o.restored++
	case SignatureDropped:
		o.dropped++
	case ExportCompleted:
		o.exports++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	resolved := o.recognized + o.failed
	avgRecognitionMs := int64(0)
	if resolved > 0 {
		avgRecognitionMs = (o.totalRecognitionTm / time.Duration(resolved)).Milliseconds()
	}

	failures := make(map[string]int64, len(o.failuresByKind))
	for k, v := range o.failuresByKind {
		failures[k] = v
	}

	return map[string]interface{}{
		"extractions_started":  o.extractions,
		"selections_discarded": o.discarded,
		"recognitions_success": o.recognized,
		"recognitions_failed":  o.failed,
		"failures_by_kind":     failures,
		"signatures_removed":   o.removed,
		"signatures_restored":  o.restored,
		"signatures_dropped":   o.dropped,
		"exports_completed":    o.exports,
		"avg_recognition_ms":   avgRecognitionMs,
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() Subject {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers notifies all observers of an event
func (p *EventPublisher) NotifyObservers(ctx context.Context, event SignatureEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	// Notify observers concurrently
	for _, observer := range observers {
		go func(obs Observer) {
			defer func() {
				if r := recover(); r != nil {
					// Log panic but don't crash the application
					logrus.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(ctx, event)
		}(observer)
	}
}
