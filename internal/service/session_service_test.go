package service

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"go-signature-extractor/internal/dispatch"
	apperrors "go-signature-extractor/internal/errors"
	"go-signature-extractor/internal/extractor"
	"go-signature-extractor/internal/labels"
	"go-signature-extractor/internal/recognition"
	"go-signature-extractor/internal/registry"
	"go-signature-extractor/internal/repository"
	"go-signature-extractor/pkg/geometry"
	"go-signature-extractor/pkg/models"
)

type recordingBackend struct {
	mu          sync.Mutex
	text        string
	err         error
	credentials []string
}

func (b *recordingBackend) Recognize(ctx context.Context, imageBase64, credential string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credentials = append(b.credentials, credential)
	return b.text, b.err
}

func (b *recordingBackend) calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.credentials...)
}

type memorySink struct {
	name string
	data []byte
}

func (m *memorySink) Store(ctx context.Context, name string, data []byte) (string, error) {
	m.name, m.data = name, data
	return "memory://" + name, nil
}

func newTestService(t *testing.T, backend recognition.Backend, settings *repository.Settings) (SessionService, *memorySink) {
	t.Helper()

	catalog, err := labels.New("zh-Hans")
	if err != nil {
		t.Fatal(err)
	}
	router := recognition.NewRouter()
	router.Register(recognition.ProviderZhipu, backend)

	pool := dispatch.NewWorkerPool(2)
	pool.Start()
	t.Cleanup(pool.Close)

	sink := &memorySink{}
	svc, err := NewSessionService(context.Background(), Dependencies{
		Settings:   repository.NewInMemorySettingsRepository(settings),
		Extractor:  extractor.NewExtractor(extractor.DefaultOptions()),
		Recognizer: router,
		Providers:  router,
		Pool:       pool,
		Labels:     catalog,
		Archive:    sink,
	})
	if err != nil {
		t.Fatalf("NewSessionService failed: %v", err)
	}
	return svc, sink
}

func configured() *repository.Settings {
	s := repository.NewSettings(recognition.ProviderZhipu)
	s.Credentials[recognition.ProviderZhipu] = "sk-test-credential"
	return s
}

// documentPNG is a light 1000x800 page with one dark stroke
func documentPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1000, 800))
	for y := 0; y < 800; y++ {
		for x := 0; x < 1000; x++ {
			img.Set(x, y, color.RGBA{245, 245, 245, 255})
		}
	}
	for y := 125; y < 135; y++ {
		for x := 110; x < 240; x++ {
			img.Set(x, y, color.RGBA{20, 20, 50, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func sessionWithDocument(t *testing.T, svc SessionService) string {
	t.Helper()
	ctx := context.Background()
	sess, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	info, err := svc.LoadDocument(ctx, sess.ID, bytes.NewReader(documentPNG(t)), "scan.png")
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	if info.Width != 1000 || info.Height != 800 {
		t.Fatalf("document = %dx%d", info.Width, info.Height)
	}
	return sess.ID
}

func drain(t *testing.T, svc SessionService) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestSelect_EndToEnd(t *testing.T) {
	backend := &recordingBackend{text: "王顺培。"}
	svc, _ := newTestService(t, backend, configured())
	id := sessionWithDocument(t, svc)
	ctx := context.Background()

	sig, err := svc.Select(ctx, id, models.SelectionRequest{
		Start: geometry.Point{X: 100, Y: 100},
		End:   geometry.Point{X: 250, Y: 160},
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if sig.State != string(registry.StateProcessing) || sig.Label != "识别中..." {
		t.Errorf("initial record = %s %q", sig.State, sig.Label)
	}
	want := models.PixelRect{X: 100, Y: 100, Width: 150, Height: 60}
	if sig.CropRect != want {
		t.Errorf("crop = %+v, want %+v", sig.CropRect, want)
	}

	drain(t, svc)

	got, err := svc.GetSignature(ctx, id, sig.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != string(registry.StateSuccess) || got.Label != "王顺培" {
		t.Errorf("resolved record = %s %q", got.State, got.Label)
	}
	if calls := backend.calls(); len(calls) != 1 || calls[0] != "sk-test-credential" {
		t.Errorf("backend calls = %v", calls)
	}

	artifact, err := svc.Artifact(ctx, id, sig.ID)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(artifact))
	if err != nil || cfg.Width != 150 || cfg.Height != 60 {
		t.Errorf("artifact config = %+v, %v", cfg, err)
	}
}

func TestSelect_ZoomedCanvas(t *testing.T) {
	svc, _ := newTestService(t, &recordingBackend{text: "张三"}, configured())
	id := sessionWithDocument(t, svc)
	ctx := context.Background()

	// Wheel up at the origin doubles the scale without moving the pan
	state, err := svc.ApplyViewport(ctx, id, CanvasViewport, ViewportCommand{Action: ActionWheel, DeltaY: -1000})
	if err != nil {
		t.Fatal(err)
	}
	if state.Canvas.Scale != 2 || state.Canvas.Pan != (geometry.Point{}) {
		t.Fatalf("canvas = %+v", state.Canvas)
	}

	sig, err := svc.Select(ctx, id, models.SelectionRequest{
		Start: geometry.Point{X: 500, Y: 320},
		End:   geometry.Point{X: 200, Y: 200},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := models.PixelRect{X: 100, Y: 100, Width: 150, Height: 60}
	if sig.CropRect != want {
		t.Errorf("crop = %+v, want %+v", sig.CropRect, want)
	}
	drain(t, svc)
}

func TestSelect_RenderedSizeScalesToSource(t *testing.T) {
	svc, _ := newTestService(t, &recordingBackend{text: "张三"}, configured())
	id := sessionWithDocument(t, svc)

	// Displayed at half size: content pixels map to twice as many source pixels
	sig, err := svc.Select(context.Background(), id, models.SelectionRequest{
		Start:        geometry.Point{X: 50, Y: 50},
		End:          geometry.Point{X: 125, Y: 80},
		RenderedSize: &geometry.Size{Width: 500, Height: 400},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := models.PixelRect{X: 100, Y: 100, Width: 150, Height: 60}
	if sig.CropRect != want {
		t.Errorf("crop = %+v, want %+v", sig.CropRect, want)
	}
	drain(t, svc)
}

func TestSelect_Discarded(t *testing.T) {
	backend := &recordingBackend{text: "x"}
	svc, _ := newTestService(t, backend, configured())
	id := sessionWithDocument(t, svc)
	ctx := context.Background()

	sig, err := svc.Select(ctx, id, models.SelectionRequest{
		Start: geometry.Point{X: 100, Y: 100},
		End:   geometry.Point{X: 104, Y: 103},
	})
	if err != nil || sig != nil {
		t.Fatalf("expected discarded click, got %+v, %v", sig, err)
	}

	list, _ := svc.ListSignatures(ctx, id)
	if len(list.Signatures) != 0 || len(backend.calls()) != 0 {
		t.Errorf("click created %d records and %d calls", len(list.Signatures), len(backend.calls()))
	}
}

func TestSelect_Errors(t *testing.T) {
	svc, _ := newTestService(t, &recordingBackend{}, configured())
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx)
	drag := models.SelectionRequest{End: geometry.Point{X: 50, Y: 50}}

	if _, err := svc.Select(ctx, sess.ID, drag); !apperrors.IsType(err, apperrors.ErrorTypeConflict) {
		t.Errorf("no document: got %v", err)
	}
	if _, err := svc.Select(ctx, "missing", drag); !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("unknown session: got %v", err)
	}

	id := sessionWithDocument(t, svc)
	outside := models.SelectionRequest{
		Start: geometry.Point{X: 2000, Y: 2000},
		End:   geometry.Point{X: 2100, Y: 2100},
	}
	if _, err := svc.Select(ctx, id, outside); !apperrors.IsType(err, apperrors.ErrorTypeProcessing) {
		t.Errorf("empty crop: got %v", err)
	}
}

func TestSelect_MissingCredential(t *testing.T) {
	backend := &recordingBackend{text: "张三"}
	svc, _ := newTestService(t, backend, repository.NewSettings(recognition.ProviderZhipu))
	id := sessionWithDocument(t, svc)

	sig, err := svc.Select(context.Background(), id, models.SelectionRequest{
		Start: geometry.Point{X: 100, Y: 100},
		End:   geometry.Point{X: 250, Y: 160},
	})
	if err != nil {
		t.Fatal(err)
	}
	if sig.State != string(registry.StateError) || !sig.NotConfigured || sig.Label != "未配置API Key" {
		t.Errorf("record = %s %q not_configured=%v", sig.State, sig.Label, sig.NotConfigured)
	}
	if len(backend.calls()) != 0 {
		t.Errorf("backend was called without a credential")
	}
}

func TestApplyViewport_Preview(t *testing.T) {
	svc, _ := newTestService(t, &recordingBackend{}, configured())
	ctx := context.Background()
	sess, _ := svc.CreateSession(ctx)

	if _, err := svc.ApplyViewport(ctx, sess.ID, PreviewViewport, ViewportCommand{Action: ActionPan, DX: 10, DY: 5}); err != nil {
		t.Fatal(err)
	}
	state, err := svc.ApplyViewport(ctx, sess.ID, PreviewViewport, ViewportCommand{Action: ActionZoomIn})
	if err != nil {
		t.Fatal(err)
	}
	if state.Preview.Scale != 1.2 || state.Preview.Pan != (geometry.Point{X: 10, Y: 5}) {
		t.Errorf("preview = %+v", state.Preview)
	}
	if state.Canvas != geometry.Identity() {
		t.Errorf("canvas moved: %+v", state.Canvas)
	}

	for i := 0; i < 30; i++ {
		state, _ = svc.ApplyViewport(ctx, sess.ID, PreviewViewport, ViewportCommand{Action: ActionZoomIn})
	}
	if state.Preview.Scale != geometry.PreviewLimits.Max {
		t.Errorf("preview scale = %v, want clamp at %v", state.Preview.Scale, geometry.PreviewLimits.Max)
	}

	if _, err := svc.ApplyViewport(ctx, sess.ID, PreviewViewport, ViewportCommand{Action: "spin"}); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("unknown action: got %v", err)
	}
}

func TestApplyViewport_CanvasButtonsZoomAroundCentre(t *testing.T) {
	svc, _ := newTestService(t, &recordingBackend{}, configured())
	ctx := context.Background()
	sess, _ := svc.CreateSession(ctx)

	if _, err := svc.SetViewportSize(ctx, sess.ID, geometry.Size{Width: 800, Height: 600}); err != nil {
		t.Fatal(err)
	}
	state, err := svc.ApplyViewport(ctx, sess.ID, CanvasViewport, ViewportCommand{Action: ActionZoomOut})
	if err != nil {
		t.Fatal(err)
	}

	// The content point under the centre stays under the centre
	centre := geometry.Point{X: 400, Y: 300}
	got := geometry.ToViewport(centre, state.Canvas)
	if d := got.Sub(centre); d.X*d.X+d.Y*d.Y > 1e-9 {
		t.Errorf("centre moved to %+v", got)
	}

	if _, err := svc.SetViewportSize(ctx, sess.ID, geometry.Size{}); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("empty size: got %v", err)
	}
}

func TestRemoveAndUndo(t *testing.T) {
	svc, _ := newTestService(t, &recordingBackend{text: "张三"}, configured())
	id := sessionWithDocument(t, svc)
	ctx := context.Background()

	sig, err := svc.Select(ctx, id, models.SelectionRequest{
		Start: geometry.Point{X: 100, Y: 100},
		End:   geometry.Point{X: 250, Y: 160},
	})
	if err != nil {
		t.Fatal(err)
	}
	drain(t, svc)

	if err := svc.RemoveSignature(ctx, id, sig.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.RemoveSignature(ctx, id, sig.ID); !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("second remove: got %v", err)
	}

	undo, err := svc.Undo(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if undo.Action != string(registry.UndoRestored) || undo.Signature == nil || undo.Signature.ID != sig.ID {
		t.Errorf("undo = %+v", undo)
	}

	undo, _ = svc.Undo(ctx, id)
	if undo.Action != string(registry.UndoDropped) {
		t.Errorf("second undo action = %s", undo.Action)
	}
	undo, _ = svc.Undo(ctx, id)
	if undo.Action != string(registry.UndoNone) {
		t.Errorf("third undo action = %s", undo.Action)
	}
}

func TestExport(t *testing.T) {
	svc, sink := newTestService(t, &recordingBackend{text: "王顺培"}, configured())
	id := sessionWithDocument(t, svc)
	ctx := context.Background()

	if _, err := svc.ExportArchive(ctx, id); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Fatalf("empty export: got %v", err)
	}

	sig, err := svc.Select(ctx, id, models.SelectionRequest{
		Start: geometry.Point{X: 100, Y: 100},
		End:   geometry.Point{X: 250, Y: 160},
	})
	if err != nil {
		t.Fatal(err)
	}
	drain(t, svc)
	if _, err := svc.RenameSignature(ctx, id, sig.ID, "王顺"); err != nil {
		t.Fatal(err)
	}

	resp, err := svc.ExportToSink(ctx, id)
	if err != nil {
		t.Fatalf("ExportToSink failed: %v", err)
	}
	if resp.Files != 1 || !strings.HasPrefix(resp.Location, "memory://signatures_") {
		t.Errorf("export = %+v", resp)
	}

	zr, err := zip.NewReader(bytes.NewReader(sink.data), int64(len(sink.data)))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if !contains(names, "signatures/王顺.png") {
		t.Errorf("archive files = %v", names)
	}

	report, err := svc.Accuracy(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if report.Compared != 1 || report.Edited != 1 {
		t.Errorf("accuracy = %+v", report)
	}
}

func TestSettings(t *testing.T) {
	svc, _ := newTestService(t, &recordingBackend{}, repository.NewSettings(recognition.ProviderZhipu))
	ctx := context.Background()

	if _, err := svc.UpdateSettings(ctx, models.SettingsRequest{Provider: "openai"}); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("unknown provider: got %v", err)
	}

	resp, err := svc.UpdateSettings(ctx, models.SettingsRequest{
		Provider:    recognition.ProviderZhipu,
		Credentials: map[string]string{recognition.ProviderZhipu: " sk-1234567890 "},
	})
	if err != nil {
		t.Fatal(err)
	}

	var zhipu models.ProviderInfo
	for _, p := range resp.Providers {
		if p.ID == recognition.ProviderZhipu {
			zhipu = p
		}
	}
	if !zhipu.HasCredential || zhipu.MaskedCredential != "sk-****7890" || !zhipu.Available {
		t.Errorf("zhipu = %+v", zhipu)
	}

	resp, err = svc.UpdateSettings(ctx, models.SettingsRequest{
		Provider:    recognition.ProviderZhipu,
		Credentials: map[string]string{recognition.ProviderZhipu: ""},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range resp.Providers {
		if p.HasCredential {
			t.Errorf("credential of %s survived removal", p.ID)
		}
	}
}

func TestEvictIdle(t *testing.T) {
	svc, _ := newTestService(t, &recordingBackend{}, configured())
	impl := svc.(*sessionService)
	ctx := context.Background()

	clock := time.Date(2024, 5, 19, 9, 0, 0, 0, time.UTC)
	impl.now = func() time.Time { return clock }

	idle, _ := svc.CreateSession(ctx)
	active, _ := svc.CreateSession(ctx)

	clock = clock.Add(30 * time.Minute)
	if _, err := svc.GetSession(ctx, active.ID); err != nil {
		t.Fatal(err)
	}

	clock = clock.Add(40 * time.Minute)
	if n := impl.evictIdle(time.Hour); n != 1 {
		t.Fatalf("evicted %d sessions, want 1", n)
	}
	if _, err := svc.GetSession(ctx, idle.ID); !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("idle session still present: %v", err)
	}
	if _, err := svc.GetSession(ctx, active.ID); err != nil {
		t.Errorf("recently used session evicted: %v", err)
	}
}

func TestLoadDocument_ResetsSession(t *testing.T) {
	svc, _ := newTestService(t, &recordingBackend{text: "张三"}, configured())
	id := sessionWithDocument(t, svc)
	ctx := context.Background()

	if _, err := svc.Select(ctx, id, models.SelectionRequest{
		Start: geometry.Point{X: 100, Y: 100},
		End:   geometry.Point{X: 250, Y: 160},
	}); err != nil {
		t.Fatal(err)
	}
	drain(t, svc)
	if _, err := svc.ApplyViewport(ctx, id, CanvasViewport, ViewportCommand{Action: ActionPan, DX: 30}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.LoadDocument(ctx, id, bytes.NewReader(documentPNG(t)), ""); err != nil {
		t.Fatal(err)
	}
	sess, _ := svc.GetSession(ctx, id)
	if sess.Signatures != 0 || sess.UndoDepth != 0 || sess.Viewport.Canvas != geometry.Identity() {
		t.Errorf("session after reload = %+v", sess)
	}
	if sess.Document == nil || sess.Document.Source != "png" {
		t.Errorf("document = %+v", sess.Document)
	}

	if _, err := svc.LoadDocument(ctx, id, strings.NewReader("not an image"), ""); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("garbage document: got %v", err)
	}
}

func TestMaskCredential(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"short", "****"},
		{"12345678", "****"},
		{"abcdefghijkl", "abc****ijkl"},
	}
	for _, tt := range tests {
		if got := maskCredential(tt.in); got != tt.want {
			t.Errorf("maskCredential(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactURL(t *testing.T) {
	got := redactURL("https://user:pw@example.com/scan.png?sig=abc#x")
	if got != "https://example.com/scan.png" {
		t.Errorf("redactURL = %q", got)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
