package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/abdhe/frame-insight/pkg/analysis"
	"github.com/abdhe/frame-insight/pkg/apierr"
	"github.com/abdhe/frame-insight/pkg/frame"
	"github.com/abdhe/frame-insight/pkg/generation"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAnalyzer struct {
	out   analysis.Outcome
	err   error
	image []byte
}

func (f *fakeAnalyzer) Analyze(_ context.Context, image []byte) (analysis.Outcome, error) {
	f.image = image
	return f.out, f.err
}

type fakeGenerator struct {
	text string
	err  error
	got  analysis.Record
}

func (f *fakeGenerator) Generate(_ context.Context, rec analysis.Record) (generation.Result, error) {
	f.got = rec
	if f.err != nil {
		return generation.Result{}, f.err
	}
	return generation.Result{Text: f.text}, nil
}

var dogOutcome = analysis.Outcome{
	Record: analysis.Record{Caption: "a dog", Tags: []string{"dog", "grass"}, OCRText: "STOP"},
	Tier:   analysis.TierFull,
}

func newTestServer(a Analyzer, g generation.Generator) (*Server, *frame.Store) {
	store := frame.NewStore()
	return New(store, a, g, Options{Version: "test"}, nil), store
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestSnapshotBeforeAndAfterUpload(t *testing.T) {
	s, _ := newTestServer(&fakeAnalyzer{}, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/snapshot", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before upload, got %d", rec.Code)
	}
	if got := decode(t, rec)["error"]; got != "No image available" {
		t.Fatalf("unexpected error %v", got)
	}

	rec = do(t, h, http.MethodPost, "/upload", []byte("JPEGDATA"))
	if rec.Code != http.StatusOK || rec.Body.String() != "Image received" {
		t.Fatalf("upload: %d %q", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/snapshot", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "JPEGDATA" {
		t.Fatalf("unexpected snapshot %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestUploadLastWriteWins(t *testing.T) {
	s, store := newTestServer(&fakeAnalyzer{}, nil)
	h := s.Handler()

	do(t, h, http.MethodPost, "/upload", []byte("first"))
	do(t, h, http.MethodPost, "/upload", []byte("second"))

	f, ok := store.Get()
	if !ok || string(f.Data) != "second" {
		t.Fatalf("expected the second upload, got %q", f.Data)
	}
}

func TestUploadEmptyBody(t *testing.T) {
	s, _ := newTestServer(&fakeAnalyzer{}, nil)
	if rec := do(t, s.Handler(), http.MethodPost, "/upload", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUploadTooLarge(t *testing.T) {
	store := frame.NewStore()
	s := New(store, &fakeAnalyzer{}, nil, Options{MaxUploadBytes: 4}, nil)
	if rec := do(t, s.Handler(), http.MethodPost, "/upload", []byte("JPEGDATA")); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if _, ok := store.Get(); ok {
		t.Fatalf("oversized upload must not be stored")
	}
}

func TestAnalyzeWithoutFrame(t *testing.T) {
	a := &fakeAnalyzer{out: dogOutcome}
	s, _ := newTestServer(a, nil)

	if rec := do(t, s.Handler(), http.MethodPost, "/analyze", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if a.image != nil {
		t.Fatalf("analyzer must not run without a frame")
	}
}

func TestAnalyzeReturnsRecordAndText(t *testing.T) {
	a := &fakeAnalyzer{out: dogOutcome}
	g := &fakeGenerator{text: "A dog in a park."}
	s, store := newTestServer(a, g)
	store.Set([]byte("JPEGDATA"))

	rec := do(t, s.Handler(), http.MethodPost, "/analyze", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if string(a.image) != "JPEGDATA" {
		t.Fatalf("analyzer got %q", a.image)
	}

	body := decode(t, rec)
	if body["caption"] != "a dog" || body["ocr_text"] != "STOP" {
		t.Fatalf("unexpected body %v", body)
	}
	if tags, _ := body["tags"].([]any); len(tags) != 2 {
		t.Fatalf("unexpected tags %v", body["tags"])
	}
	if body["generated_text"] != "A dog in a park." || body["degraded"] != false || body["tier"] != float64(1) {
		t.Fatalf("unexpected body %v", body)
	}
	if g.got.Caption != "a dog" {
		t.Fatalf("generator did not receive the record")
	}
}

func TestAnalyzeDegraded(t *testing.T) {
	a := &fakeAnalyzer{out: analysis.Outcome{
		Record: analysis.Record{Caption: "a dog", Tags: []string{"dog"}, OCRText: analysis.NoText},
		Tier:   analysis.TierReduced,
	}}
	s, store := newTestServer(a, nil)
	store.Set([]byte("x"))

	body := decode(t, do(t, s.Handler(), http.MethodPost, "/analyze", nil))
	if body["degraded"] != true || body["ocr_text"] != "No text detected" {
		t.Fatalf("unexpected body %v", body)
	}
	if _, ok := body["generated_text"]; ok {
		t.Fatalf("no generator configured, got %v", body)
	}
}

func TestAnalyzeBothTiersFail(t *testing.T) {
	a := &fakeAnalyzer{err: apierr.Provider("vision", 500, "InternalServerError: boom")}
	s, store := newTestServer(a, &fakeGenerator{})
	store.Set([]byte("x"))

	rec := do(t, s.Handler(), http.MethodPost, "/analyze", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if got := decode(t, rec)["error"]; got != "InternalServerError: boom" {
		t.Fatalf("unexpected error %v", got)
	}
}

func TestAnalyzeGenerationRateLimited(t *testing.T) {
	g := &fakeGenerator{err: apierr.TerminalRateLimit("azure", 5, nil)}
	s, store := newTestServer(&fakeAnalyzer{out: dogOutcome}, g)
	store.Set([]byte("x"))

	rec := do(t, s.Handler(), http.MethodPost, "/analyze", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode(t, rec)["generation_error"]; got != apierr.TerminalRateLimitMessage {
		t.Fatalf("unexpected generation error %v", got)
	}
}

func TestGenerateText(t *testing.T) {
	g := &fakeGenerator{text: "A quiet street."}
	s, _ := newTestServer(&fakeAnalyzer{}, g)

	rec := do(t, s.Handler(), http.MethodPost, "/generate_text", []byte(`{"caption":"a street","tags":["road"]}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode(t, rec)["generated_text"]; got != "A quiet street." {
		t.Fatalf("unexpected text %v", got)
	}
	if g.got.OCRText != analysis.NoText {
		t.Fatalf("missing fields should be completed, got %+v", g.got)
	}
}

func TestGenerateTextErrors(t *testing.T) {
	s, _ := newTestServer(&fakeAnalyzer{}, &fakeGenerator{})
	if rec := do(t, s.Handler(), http.MethodPost, "/generate_text", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing body, got %d", rec.Code)
	}
	for _, body := range []string{`null`, `{}`, `{"caption":" ","tags":[]}`, `[]`} {
		if rec := do(t, s.Handler(), http.MethodPost, "/generate_text", []byte(body)); rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for body %s, got %d", body, rec.Code)
		}
	}

	g := &fakeGenerator{err: apierr.TerminalRateLimit("azure", 5, nil)}
	s, _ = newTestServer(&fakeAnalyzer{}, g)
	rec := do(t, s.Handler(), http.MethodPost, "/generate_text", []byte(`{"caption":"x"}`))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	g = &fakeGenerator{err: apierr.Provider("azure", 400, "bad prompt")}
	s, _ = newTestServer(&fakeAnalyzer{}, g)
	rec = do(t, s.Handler(), http.MethodPost, "/generate_text", []byte(`{"caption":"x"}`))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(&fakeAnalyzer{}, nil)
	req := httptest.NewRequest(http.MethodOptions, "/upload", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}

func TestRequestIDEchoed(t *testing.T) {
	s, _ := newTestServer(&fakeAnalyzer{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Header().Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("request id not echoed")
	}
}

func TestStatus(t *testing.T) {
	s, store := newTestServer(&fakeAnalyzer{}, nil)
	body := decode(t, do(t, s.Handler(), http.MethodGet, "/status", nil))
	if body["frame_available"] != false {
		t.Fatalf("unexpected status %v", body)
	}

	store.Set([]byte("JPEGDATA"))
	body = decode(t, do(t, s.Handler(), http.MethodGet, "/status", nil))
	if body["frame_available"] != true || body["frame_bytes"] != float64(8) || body["sequence"] != float64(1) {
		t.Fatalf("unexpected status %v", body)
	}
}

func TestVideoFeedStreamsFrames(t *testing.T) {
	s, store := newTestServer(&fakeAnalyzer{}, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	store.Set([]byte("JPEGDATA"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/video_feed", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Fatalf("unexpected content type %q", ct)
	}

	want := frame.Chunk([]byte("JPEGDATA"))
	got := make([]byte, len(want))
	if _, err := io.ReadFull(resp.Body, got); err != nil {
		t.Fatalf("read first chunk: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("chunk = %q, want %q", got, want)
	}

	store.Set([]byte("NEXT"))
	want = frame.Chunk([]byte("NEXT"))
	got = make([]byte, len(want))
	if _, err := io.ReadFull(resp.Body, got); err != nil {
		t.Fatalf("read second chunk: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("chunk = %q, want %q", got, want)
	}
}

func TestWebsocketFeed(t *testing.T) {
	s, store := newTestServer(&fakeAnalyzer{}, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	store.Set([]byte("JPEGDATA"))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/feed"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.BinaryMessage || string(data) != "JPEGDATA" {
		t.Fatalf("unexpected message %d %q", kind, data)
	}

	store.Set([]byte("NEXT"))
	if _, data, err = conn.ReadMessage(); err != nil || string(data) != "NEXT" {
		t.Fatalf("unexpected second message %q, %v", data, err)
	}
}
