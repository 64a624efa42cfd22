package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-signature-extractor/internal/dispatch"
	apperrors "go-signature-extractor/internal/errors"
	"go-signature-extractor/internal/export"
	"go-signature-extractor/internal/extractor"
	"go-signature-extractor/internal/labels"
	"go-signature-extractor/internal/logger"
	"go-signature-extractor/internal/observer"
	"go-signature-extractor/internal/recognition"
	"go-signature-extractor/internal/registry"
	"go-signature-extractor/internal/repository"
	"go-signature-extractor/internal/storage"
	"go-signature-extractor/pkg/geometry"
	"go-signature-extractor/pkg/models"
	"go-signature-extractor/pkg/validation"
)

// Viewports of a session
type ViewportTarget string

const (
	CanvasViewport  ViewportTarget = "viewport"
	PreviewViewport ViewportTarget = "preview"
)

// ViewportAction is a user gesture on a viewport
type ViewportAction string

const (
	ActionWheel   ViewportAction = "wheel"
	ActionZoomIn  ViewportAction = "zoom-in"
	ActionZoomOut ViewportAction = "zoom-out"
	ActionPan     ViewportAction = "pan"
	ActionReset   ViewportAction = "reset"
)

// ViewportCommand carries the arguments of a ViewportAction. Anchor and
// DeltaY are used by wheel, DX and DY by pan.
type ViewportCommand struct {
	Action ViewportAction
	Anchor geometry.Point
	DeltaY float64
	DX     float64
	DY     float64
}

// Archive is a finished zip export held in memory
type Archive struct {
	Name     string
	Data     []byte
	Manifest *export.Manifest
}

// SessionService is the application shell over sessions, their documents,
// their signatures and the shared recognition settings.
type SessionService interface {
	CreateSession(ctx context.Context) (*models.SessionResponse, error)
	GetSession(ctx context.Context, id string) (*models.SessionResponse, error)
	DeleteSession(ctx context.Context, id string) error

	LoadDocument(ctx context.Context, id string, r io.Reader, source string) (*models.DocumentInfo, error)
	LoadDocumentFromURL(ctx context.Context, id, documentURL string) (*models.DocumentInfo, error)

	GetViewport(ctx context.Context, id string) (*models.ViewportState, error)
	SetViewportSize(ctx context.Context, id string, size geometry.Size) (*models.ViewportState, error)
	ApplyViewport(ctx context.Context, id string, target ViewportTarget, cmd ViewportCommand) (*models.ViewportState, error)

	// Select turns a finished drag into a signature. A nil response with a
	// nil error means the drag was treated as a click and discarded.
	Select(ctx context.Context, id string, req models.SelectionRequest) (*models.SignatureResponse, error)

	ListSignatures(ctx context.Context, id string) (*models.SignatureListResponse, error)
	GetSignature(ctx context.Context, id string, signatureID int64) (*models.SignatureResponse, error)
	Artifact(ctx context.Context, id string, signatureID int64) ([]byte, error)
	RenameSignature(ctx context.Context, id string, signatureID int64, label string) (*models.SignatureResponse, error)
	RemoveSignature(ctx context.Context, id string, signatureID int64) error
	Undo(ctx context.Context, id string) (*models.UndoResponse, error)

	ExportArchive(ctx context.Context, id string) (*Archive, error)
	ExportToSink(ctx context.Context, id string) (*models.ExportResponse, error)
	Accuracy(ctx context.Context, id string) (*export.AccuracyReport, error)

	GetSettings(ctx context.Context) (*models.SettingsResponse, error)
	UpdateSettings(ctx context.Context, req models.SettingsRequest) (*models.SettingsResponse, error)

	// Shutdown waits for in-flight recognitions of every session
	Shutdown(ctx context.Context) error
}

// ProviderAvailability reports whether a recognition backend is registered
type ProviderAvailability interface {
	Has(providerID string) bool
}

// Dependencies are the collaborators of the session service
type Dependencies struct {
	Documents         repository.DocumentRepository
	Settings          repository.SettingsRepository
	DocumentValidator *validation.DocumentValidator

	Extractor          extractor.Extractor
	Recognizer         recognition.Recognizer
	Providers          ProviderAvailability
	Pool               *dispatch.WorkerPool
	Labels             *labels.Catalog
	Publisher          observer.Subject
	RecognitionTimeout time.Duration

	Archive storage.ArchiveSink

	// SessionIdleTTL evicts sessions nobody touched for this long. Zero keeps
	// them until DELETE /sessions/:id.
	SessionIdleTTL time.Duration
}

type sessionService struct {
	deps Dependencies

	mu       sync.RWMutex
	sessions map[string]*session

	settingsMu sync.RWMutex
	settings   *repository.Settings

	now func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewSessionService loads the saved settings and returns a ready service
func NewSessionService(ctx context.Context, deps Dependencies) (SessionService, error) {
	if deps.Extractor == nil || deps.Recognizer == nil || deps.Labels == nil {
		return nil, apperrors.NewConfigurationError("session service requires an extractor, a recognizer and labels", nil)
	}
	if deps.DocumentValidator == nil {
		deps.DocumentValidator = validation.NewDocumentValidator()
	}

	settings, err := deps.Settings.Load(ctx)
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to load settings", err)
	}

	svc := &sessionService{
		deps:     deps,
		sessions: make(map[string]*session),
		settings: settings,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	if deps.SessionIdleTTL > 0 {
		go svc.evictLoop(deps.SessionIdleTTL)
	}
	return svc, nil
}

func (s *sessionService) evictLoop(ttl time.Duration) {
	interval := ttl / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictIdle(ttl)
		case <-s.stop:
			return
		}
	}
}

// evictIdle drops sessions idle for longer than ttl. Recognitions still in
// flight finish against the dropped registry, as with DeleteSession.
func (s *sessionService) evictIdle(ttl time.Duration) int {
	now := s.now()

	s.mu.Lock()
	var evicted []string
	for id, sess := range s.sessions {
		if sess.idleSince(now) > ttl {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	s.mu.Unlock()

	for _, id := range evicted {
		logger.WithFields(logrus.Fields{"session_id": id, "idle_ttl": ttl.String()}).Info("Idle session evicted")
	}
	return len(evicted)
}

func (s *sessionService) CreateSession(ctx context.Context) (*models.SessionResponse, error) {
	id := uuid.New().String()
	reg := registry.New(registry.Config{
		SessionID:  id,
		Extractor:  s.deps.Extractor,
		Recognizer: s.deps.Recognizer,
		Pool:       s.deps.Pool,
		Labels:     s.deps.Labels,
		Publisher:  s.deps.Publisher,
		Timeout:    s.deps.RecognitionTimeout,
	})
	sess := newSession(id, reg, s.now())

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	logger.WithField("session_id", id).Info("Session created")
	return sess.response(), nil
}

func (s *sessionService) GetSession(ctx context.Context, id string) (*models.SessionResponse, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return sess.response(), nil
}

// DeleteSession drops the session. Recognitions still in flight finish
// against a registry nobody reads any more.
func (s *sessionService) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return apperrors.NewNotFoundError("session not found", nil).WithDetails(id)
	}
	logger.WithField("session_id", id).Info("Session deleted")
	return nil
}

func (s *sessionService) LoadDocument(ctx context.Context, id string, r io.Reader, source string) (*models.DocumentInfo, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	img, format, err := storage.DecodeDocument(r)
	if err != nil {
		return nil, apperrors.NewValidationError("unsupported document", err)
	}
	if source == "" {
		source = format
	}
	return s.install(sess, img, source)
}

func (s *sessionService) LoadDocumentFromURL(ctx context.Context, id, documentURL string) (*models.DocumentInfo, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	img, err := s.deps.Documents.FetchDocument(ctx, documentURL)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidDocumentURL) {
			return nil, apperrors.NewValidationError("invalid document URL", err)
		}
		return nil, apperrors.NewNetworkError("failed to fetch document", err)
	}
	return s.install(sess, img, redactURL(documentURL))
}

func (s *sessionService) install(sess *session, img image.Image, source string) (*models.DocumentInfo, error) {
	issues, err := s.deps.DocumentValidator.Validate(img)
	if err != nil {
		return nil, err
	}

	info := sess.loadDocument(img, source, issues)
	logger.WithFields(logrus.Fields{
		"session_id": sess.id,
		"width":      info.Width,
		"height":     info.Height,
		"issues":     len(issues),
	}).Info("Document loaded")
	return info, nil
}

func (s *sessionService) GetViewport(ctx context.Context, id string) (*models.ViewportState, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	state := sess.viewportState()
	return &state, nil
}

func (s *sessionService) SetViewportSize(ctx context.Context, id string, size geometry.Size) (*models.ViewportState, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if size.IsEmpty() {
		return nil, apperrors.NewValidationError("viewport size must be positive", nil)
	}

	sess.mu.Lock()
	sess.viewportSize = size
	state := sess.viewportStateLocked()
	sess.mu.Unlock()
	return &state, nil
}

// ApplyViewport runs one gesture. The canvas zooms around the cursor for the
// wheel and around the viewport centre for the buttons; the preview rescales
// without moving its pan offset.
func (s *sessionService) ApplyViewport(ctx context.Context, id string, target ViewportTarget, cmd ViewportCommand) (*models.ViewportState, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	switch target {
	case CanvasViewport:
		v := sess.canvas
		switch cmd.Action {
		case ActionWheel:
			v.Wheel(cmd.Anchor, cmd.DeltaY)
		case ActionZoomIn:
			v.ZoomIn(sess.viewportSize.Center())
		case ActionZoomOut:
			v.ZoomOut(sess.viewportSize.Center())
		case ActionPan:
			v.PanBy(cmd.DX, cmd.DY)
		case ActionReset:
			v.Reset()
		default:
			return nil, apperrors.NewValidationError("unknown viewport action", nil).WithDetails(string(cmd.Action))
		}
	case PreviewViewport:
		v := sess.preview
		scale := v.Transform().Scale
		switch cmd.Action {
		case ActionWheel:
			v.ScaleTo(scale - cmd.DeltaY*geometry.WheelSensitivity)
		case ActionZoomIn:
			v.ScaleTo(scale * geometry.ZoomStep)
		case ActionZoomOut:
			v.ScaleTo(scale / geometry.ZoomStep)
		case ActionPan:
			v.PanBy(cmd.DX, cmd.DY)
		case ActionReset:
			v.Reset()
		default:
			return nil, apperrors.NewValidationError("unknown viewport action", nil).WithDetails(string(cmd.Action))
		}
	default:
		return nil, apperrors.NewValidationError("unknown viewport", nil).WithDetails(string(target))
	}

	state := sess.viewportStateLocked()
	return &state, nil
}

func (s *sessionService) Select(ctx context.Context, id string, req models.SelectionRequest) (*models.SignatureResponse, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	doc := sess.document
	natural := sess.natural
	t := sess.canvas.Transform()
	sess.mu.Unlock()

	if doc == nil {
		return nil, apperrors.NewConflictError("no document loaded", nil)
	}

	content := geometry.NormalizeDrag(geometry.ToContent(req.Start, t), geometry.ToContent(req.End, t))
	if content.IsNoise() {
		s.publish(observer.SignatureEvent{EventType: observer.ExtractionDiscarded, SessionID: id})
		return nil, nil
	}

	rendered := natural
	if req.RenderedSize != nil && !req.RenderedSize.IsEmpty() {
		rendered = *req.RenderedSize
	}
	source := geometry.ToSourcePixels(content, rendered, natural)

	providerID, credential := s.activeProvider()
	requires := true
	if p, ok := recognition.LookupProvider(providerID); ok {
		requires = p.RequiresCredential
	}

	rec, err := sess.registry.BeginExtraction(registry.ExtractionRequest{
		Source:             doc,
		ContentRect:        content,
		SourceRect:         source.Image(),
		Provider:           providerID,
		Credential:         credential,
		RequiresCredential: requires,
	})
	switch {
	case errors.Is(err, registry.ErrNoSignature):
		return nil, apperrors.NewProcessingError("selection contains no pixels", err)
	case errors.Is(err, extractor.ErrCropTooLarge):
		return nil, apperrors.NewValidationError("selection is too large", err)
	case err != nil:
		return nil, apperrors.NewInternalError("extraction failed", err)
	}

	resp := toSignatureResponse(rec)
	return &resp, nil
}

func (s *sessionService) ListSignatures(ctx context.Context, id string) (*models.SignatureListResponse, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	records := sess.registry.List()
	resp := &models.SignatureListResponse{
		Signatures: make([]models.SignatureResponse, 0, len(records)),
		UndoDepth:  sess.registry.UndoDepth(),
	}
	for _, rec := range records {
		resp.Signatures = append(resp.Signatures, toSignatureResponse(rec))
	}
	return resp, nil
}

func (s *sessionService) GetSignature(ctx context.Context, id string, signatureID int64) (*models.SignatureResponse, error) {
	rec, err := s.record(id, signatureID)
	if err != nil {
		return nil, err
	}
	resp := toSignatureResponse(rec)
	return &resp, nil
}

func (s *sessionService) Artifact(ctx context.Context, id string, signatureID int64) ([]byte, error) {
	rec, err := s.record(id, signatureID)
	if err != nil {
		return nil, err
	}
	if !rec.HasArtifact() {
		return nil, apperrors.NewNotFoundError("signature has no artifact", nil)
	}
	return rec.Artifact, nil
}

func (s *sessionService) RenameSignature(ctx context.Context, id string, signatureID int64, label string) (*models.SignatureResponse, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	rec, err := sess.registry.Rename(signatureID, label)
	if err != nil {
		return nil, signatureError(err)
	}
	resp := toSignatureResponse(rec)
	return &resp, nil
}

func (s *sessionService) RemoveSignature(ctx context.Context, id string, signatureID int64) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := sess.registry.Remove(signatureID); err != nil {
		return signatureError(err)
	}
	return nil
}

func (s *sessionService) Undo(ctx context.Context, id string) (*models.UndoResponse, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	result := sess.registry.Undo()
	resp := &models.UndoResponse{
		Action:    string(result.Action),
		UndoDepth: sess.registry.UndoDepth(),
	}
	if result.Record != nil {
		sig := toSignatureResponse(*result.Record)
		resp.Signature = &sig
	}
	return resp, nil
}

func (s *sessionService) ExportArchive(ctx context.Context, id string) (*Archive, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	records := sess.registry.ListForExport()
	entries := make([]export.Entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, toEntry(rec))
	}

	now := s.now()
	var buf bytes.Buffer
	manifest, err := export.WriteZip(&buf, entries, now)
	if err != nil {
		if errors.Is(err, export.ErrNothingToExport) {
			return nil, apperrors.NewValidationError("no recognised signatures to export", err)
		}
		return nil, apperrors.NewInternalError("failed to build archive", err)
	}

	return &Archive{Name: export.ArchiveName(now), Data: buf.Bytes(), Manifest: manifest}, nil
}

func (s *sessionService) ExportToSink(ctx context.Context, id string) (*models.ExportResponse, error) {
	if s.deps.Archive == nil {
		return nil, apperrors.NewConfigurationError("no archive sink configured", nil)
	}

	archive, err := s.ExportArchive(ctx, id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	location, err := s.deps.Archive.Store(ctx, archive.Name, archive.Data)
	if err != nil {
		s.publish(observer.SignatureEvent{
			EventType:    observer.ExportCompleted,
			SessionID:    id,
			Duration:     time.Since(start),
			ErrorMessage: err.Error(),
		})
		return nil, apperrors.NewNetworkError("failed to store archive", err)
	}

	s.publish(observer.SignatureEvent{
		EventType: observer.ExportCompleted,
		SessionID: id,
		Duration:  time.Since(start),
		Success:   true,
		Metadata:  map[string]interface{}{"files": len(archive.Manifest.Signatures), "bytes": len(archive.Data)},
	})

	return &models.ExportResponse{
		Name:     archive.Name,
		Location: location,
		Files:    len(archive.Manifest.Signatures),
		Bytes:    len(archive.Data),
		Created:  archive.Manifest.CreatedAt,
	}, nil
}

func (s *sessionService) Accuracy(ctx context.Context, id string) (*export.AccuracyReport, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	var entries []export.Entry
	for _, rec := range sess.registry.List() {
		if rec.State == registry.StateSuccess {
			entries = append(entries, toEntry(rec))
		}
	}
	report := export.Accuracy(entries)
	return &report, nil
}

func (s *sessionService) GetSettings(ctx context.Context) (*models.SettingsResponse, error) {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.settingsResponseLocked(), nil
}

func (s *sessionService) UpdateSettings(ctx context.Context, req models.SettingsRequest) (*models.SettingsResponse, error) {
	if _, ok := recognition.LookupProvider(req.Provider); !ok {
		return nil, apperrors.NewValidationError("unknown provider", nil).WithDetails(req.Provider)
	}

	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	next := s.settings.Clone()
	next.Provider = req.Provider
	for providerID, credential := range req.Credentials {
		if _, ok := recognition.LookupProvider(providerID); !ok {
			return nil, apperrors.NewValidationError("unknown provider", nil).WithDetails(providerID)
		}
		next.Credentials[providerID] = credential
	}
	next.Normalize()

	if err := s.deps.Settings.Save(ctx, next); err != nil {
		if errors.Is(err, repository.ErrInvalidSettings) {
			return nil, apperrors.NewValidationError("invalid settings", err)
		}
		return nil, apperrors.NewInternalError("failed to save settings", err)
	}
	s.settings = next

	logger.WithFields(logrus.Fields{
		"provider":    next.Provider,
		"credentials": len(next.Credentials),
	}).Info("Settings updated")
	return s.settingsResponseLocked(), nil
}

func (s *sessionService) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.RLock()
	regs := make([]*registry.Registry, 0, len(s.sessions))
	for _, sess := range s.sessions {
		regs = append(regs, sess.registry)
	}
	s.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		for _, reg := range regs {
			reg.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for recognitions: %w", ctx.Err())
	}
}

// settingsResponseLocked must be called with settingsMu held
func (s *sessionService) settingsResponseLocked() *models.SettingsResponse {
	providers := recognition.Providers()
	resp := &models.SettingsResponse{
		Provider:  s.settings.Provider,
		Providers: make([]models.ProviderInfo, 0, len(providers)),
	}
	for _, p := range providers {
		credential := s.settings.Credentials[p.ID]
		info := models.ProviderInfo{
			ID:                 p.ID,
			Name:               p.Name,
			RequiresCredential: p.RequiresCredential,
			HasCredential:      credential != "",
			MaskedCredential:   maskCredential(credential),
		}
		if s.deps.Providers != nil {
			info.Available = s.deps.Providers.Has(p.ID)
		}
		resp.Providers = append(resp.Providers, info)
	}
	sort.SliceStable(resp.Providers, func(i, j int) bool { return resp.Providers[i].ID < resp.Providers[j].ID })
	return resp
}

// activeProvider is read once per selection so a settings change never
// affects a recognition already dispatched.
func (s *sessionService) activeProvider() (string, string) {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.settings.Provider, s.settings.ActiveCredential()
}

func (s *sessionService) lookup(id string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFoundError("session not found", nil).WithDetails(id)
	}
	sess.touch(s.now())
	return sess, nil
}

func (s *sessionService) record(id string, signatureID int64) (registry.Record, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return registry.Record{}, err
	}
	rec, err := sess.registry.Get(signatureID)
	if err != nil {
		return registry.Record{}, signatureError(err)
	}
	return rec, nil
}

func (s *sessionService) publish(event observer.SignatureEvent) {
	if s.deps.Publisher == nil {
		return
	}
	event.Timestamp = time.Now()
	s.deps.Publisher.NotifyObservers(context.Background(), event)
}

func signatureError(err error) error {
	if errors.Is(err, registry.ErrNotFound) {
		return apperrors.NewNotFoundError("signature not found", err)
	}
	return apperrors.NewInternalError("signature operation failed", err)
}

// maskCredential keeps just enough of a key to tell two keys apart
func maskCredential(credential string) string {
	switch {
	case credential == "":
		return ""
	case len(credential) <= 8:
		return "****"
	default:
		return credential[:3] + "****" + credential[len(credential)-4:]
	}
}

// redactURL drops query and userinfo, which may carry signed tokens
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
