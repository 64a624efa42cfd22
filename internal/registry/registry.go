// Package registry owns the extracted signatures of one session: their
// recognition round trip, their labels and the undo buffer.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go-signature-extractor/internal/dispatch"
	"go-signature-extractor/internal/extractor"
	"go-signature-extractor/internal/labels"
	"go-signature-extractor/internal/logger"
	"go-signature-extractor/internal/observer"
	"go-signature-extractor/internal/recognition"
)

var (
	// ErrNotFound means the id is not in the live collection
	ErrNotFound = errors.New("signature not found")

	// ErrNoSignature means the selection did not yield any pixels
	ErrNoSignature = errors.New("no signature extracted")
)

// DefaultRecognitionTimeout bounds a recognition call when none is configured
const DefaultRecognitionTimeout = 30 * time.Second

// Config holds the collaborators of a Registry
type Config struct {
	SessionID  string
	Extractor  extractor.Extractor
	Recognizer recognition.Recognizer
	Pool       *dispatch.WorkerPool
	Labels     *labels.Catalog
	Publisher  observer.Subject
	Timeout    time.Duration
}

// Registry is safe for concurrent use. Recognition continuations look the
// record up by id and never hold a record pointer across the call.
type Registry struct {
	sessionID  string
	extractor  extractor.Extractor
	recognizer recognition.Recognizer
	pool       *dispatch.WorkerPool
	labels     *labels.Catalog
	publisher  observer.Subject
	timeout    time.Duration

	mu      sync.Mutex
	records map[int64]*Record
	order   []int64
	undo    []*Record
	lastID  int64

	inflight sync.WaitGroup
}

// New creates an empty registry
func New(cfg Config) *Registry {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRecognitionTimeout
	}
	return &Registry{
		sessionID:  cfg.SessionID,
		extractor:  cfg.Extractor,
		recognizer: cfg.Recognizer,
		pool:       cfg.Pool,
		labels:     cfg.Labels,
		publisher:  cfg.Publisher,
		timeout:    timeout,
		records:    make(map[int64]*Record),
	}
}

// BeginExtraction crops the selection and appends a PROCESSING record, then
// hands the recognition call to the worker pool. An empty crop creates no
// record and returns ErrNoSignature.
func (r *Registry) BeginExtraction(req ExtractionRequest) (Record, error) {
	result, err := r.extractor.Extract(req.Source, req.SourceRect)
	switch {
	case errors.Is(err, extractor.ErrEmptyCrop):
		r.publish(observer.SignatureEvent{EventType: observer.ExtractionDiscarded, Provider: req.Provider})
		return Record{}, fmt.Errorf("%w: %v", ErrNoSignature, err)
	case errors.Is(err, extractor.ErrCropTooLarge):
		return Record{}, err
	}

	r.mu.Lock()
	rec := &Record{
		ID:         r.nextID(),
		SourceRect: req.ContentRect,
		CropRect:   req.SourceRect,
		Label:      r.labels.Get(labels.Processing),
		State:      StateProcessing,
		Provider:   req.Provider,
		CreatedAt:  time.Now(),
	}

	if err != nil {
		// Environment failure: the record exists but carries no artifact
		rec.State = StateError
		rec.Label = r.labels.Get(labels.ProcessingFail)
		rec.ResolvedAt = rec.CreatedAt
		r.insertLocked(rec)
		snapshot := *rec
		r.mu.Unlock()

		logger.WithFields(logrus.Fields{
			"session_id":   r.sessionID,
			"signature_id": rec.ID,
		}).WithError(err).Error("Signature extraction failed")
		r.publish(observer.SignatureEvent{
			EventType:    observer.RecognitionFailed,
			SignatureID:  snapshot.ID,
			ErrorMessage: err.Error(),
			Metadata:     map[string]interface{}{"failure_kind": "processing"},
		})
		return snapshot, nil
	}

	rec.CropRect = result.Bounds
	rec.Artifact = result.PNG
	rec.Stats = result.Stats

	if req.RequiresCredential && req.Credential == "" {
		rec.State = StateError
		rec.Label = r.labels.Get(labels.NotConfigured)
		rec.NotConfigured = true
		rec.FailureKind = string(recognition.KindNotConfigured)
		rec.ResolvedAt = rec.CreatedAt
		r.insertLocked(rec)
		snapshot := *rec
		r.mu.Unlock()

		r.publish(observer.SignatureEvent{
			EventType:   observer.RecognitionFailed,
			SignatureID: snapshot.ID,
			Provider:    req.Provider,
			Metadata:    map[string]interface{}{"failure_kind": snapshot.FailureKind},
		})
		return snapshot, nil
	}

	r.insertLocked(rec)
	snapshot := *rec
	r.mu.Unlock()

	r.publish(observer.SignatureEvent{
		EventType:   observer.ExtractionStarted,
		SignatureID: snapshot.ID,
		Provider:    req.Provider,
		Duration:    time.Duration(result.ProcessingTimeSec * float64(time.Second)),
		Success:     true,
		Metadata: map[string]interface{}{
			"crop_width":   result.Bounds.Dx(),
			"crop_height":  result.Bounds.Dy(),
			"ink_coverage": result.Stats.InkCoverage,
		},
	})

	r.dispatch(snapshot.ID, result.RecognitionPayload(), req.Credential, req.Provider)
	return snapshot, nil
}

func (r *Registry) dispatch(id int64, payload, credential, provider string) {
	r.inflight.Add(1)
	job := func() {
		defer r.inflight.Done()
		defer func() {
			if p := recover(); p != nil {
				logger.WithFields(logrus.Fields{
					"session_id":   r.sessionID,
					"signature_id": id,
					"provider":     provider,
					"panic":        fmt.Sprint(p),
				}).Error("Recognition backend panicked")
				r.Resolve(id, Outcome{Err: &recognition.Failure{
					Kind:  recognition.KindGeneric,
					Cause: fmt.Errorf("recognition panicked: %v", p),
				}})
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		start := time.Now()
		text, err := r.recognizer.Recognize(ctx, payload, credential, provider)
		r.Resolve(id, Outcome{Text: text, Err: err, Duration: time.Since(start)})
	}

	if r.pool == nil {
		go job()
		return
	}
	if !r.pool.Submit(job) {
		r.inflight.Done()
		r.Resolve(id, Outcome{Err: &recognition.Failure{
			Kind:  recognition.KindNetwork,
			Cause: errors.New("recognition pool closed"),
		}})
	}
}

// Resolve applies a recognition outcome. It reports false and changes nothing
// when the id is no longer live or the record already left PROCESSING.
func (r *Registry) Resolve(id int64, outcome Outcome) bool {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok || rec.State != StateProcessing {
		r.mu.Unlock()
		logger.WithFields(logrus.Fields{
			"session_id":   r.sessionID,
			"signature_id": id,
		}).Debug("Dropping recognition result for a record that is not live")
		return false
	}

	rec.ResolvedAt = time.Now()
	event := observer.SignatureEvent{
		EventType:   observer.RecognitionSucceeded,
		SignatureID: id,
		Provider:    rec.Provider,
		Duration:    outcome.Duration,
		Success:     true,
	}

	if outcome.Err == nil {
		rec.State = StateSuccess
		rec.RecognizedText = outcome.Text
		rec.Label = outcome.Text
		if outcome.Text == "" {
			rec.Label = r.labels.Get(labels.Unrecognized)
		}
	} else {
		failure := recognition.AsFailure(outcome.Err)
		rec.State = StateError
		rec.FailureKind = string(failure.Kind)
		rec.NotConfigured = failure.Kind == recognition.KindNotConfigured
		rec.Label = failure.Label(r.labels)

		event.EventType = observer.RecognitionFailed
		event.Success = false
		event.ErrorMessage = failure.Error()
		event.Metadata = map[string]interface{}{"failure_kind": rec.FailureKind}
	}
	r.mu.Unlock()

	r.publish(event)
	return true
}

// Remove moves a live record to the top of the undo buffer
func (r *Registry) Remove(id int64) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	r.deleteLocked(id)
	r.undo = append(r.undo, rec)
	r.mu.Unlock()

	r.publish(observer.SignatureEvent{EventType: observer.SignatureRemoved, SignatureID: id, Success: true})
	return nil
}

// Undo restores the most recently removed record. With an empty undo buffer
// it destroys the most recently added live record instead.
func (r *Registry) Undo() UndoResult {
	r.mu.Lock()

	if n := len(r.undo); n > 0 {
		rec := r.undo[n-1]
		r.undo[n-1] = nil
		r.undo = r.undo[:n-1]
		r.insertLocked(rec)
		snapshot := *rec
		r.mu.Unlock()

		r.publish(observer.SignatureEvent{EventType: observer.SignatureRestored, SignatureID: snapshot.ID, Success: true})
		return UndoResult{Action: UndoRestored, Record: &snapshot}
	}

	if n := len(r.order); n > 0 {
		id := r.order[n-1]
		snapshot := *r.records[id]
		r.deleteLocked(id)
		r.mu.Unlock()

		r.publish(observer.SignatureEvent{EventType: observer.SignatureDropped, SignatureID: id, Success: true})
		return UndoResult{Action: UndoDropped, Record: &snapshot}
	}

	r.mu.Unlock()
	return UndoResult{Action: UndoNone}
}

// Rename replaces the label of a live record. Any label is accepted in any
// state and the state is left alone.
func (r *Registry) Rename(id int64, label string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	rec.Label = label
	return *rec, nil
}

// Get returns a copy of a live record
func (r *Registry) Get(id int64) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return *rec, nil
}

// List returns copies of the live records in insertion order
func (r *Registry) List() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]Record, 0, len(r.order))
	for _, id := range r.order {
		list = append(list, *r.records[id])
	}
	return list
}

// ListForExport returns the SUCCESS records that carry an artifact
func (r *Registry) ListForExport() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]Record, 0, len(r.order))
	for _, id := range r.order {
		rec := r.records[id]
		if rec.State == StateSuccess && rec.HasArtifact() {
			list = append(list, *rec)
		}
	}
	return list
}

// Len returns the number of live records
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// UndoDepth returns the number of records in the undo buffer
func (r *Registry) UndoDepth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.undo)
}

// Reset clears the live collection and the undo buffer. Calls still in
// flight resolve against ids that no longer exist and are dropped.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = make(map[int64]*Record)
	r.order = nil
	r.undo = nil
}

// Wait blocks until every recognition call issued so far has resolved
func (r *Registry) Wait() {
	r.inflight.Wait()
}

// nextID returns a millisecond timestamp id that is strictly increasing.
// Millisecond ids stay below 2^53, so JSON clients decoding them as doubles
// read back the same number.
func (r *Registry) nextID() int64 {
	id := time.Now().UnixMilli()
	if id <= r.lastID {
		id = r.lastID + 1
	}
	r.lastID = id
	return id
}

func (r *Registry) insertLocked(rec *Record) {
	r.records[rec.ID] = rec
	r.order = append(r.order, rec.ID)
}

func (r *Registry) deleteLocked(id int64) {
	delete(r.records, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) publish(event observer.SignatureEvent) {
	if r.publisher == nil {
		return
	}
	event.SessionID = r.sessionID
	r.publisher.NotifyObservers(context.Background(), event)
}
