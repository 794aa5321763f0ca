package upload

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zoomish/relay/internal/metrics"
)

func newTestSink(t *testing.T, cfg Config) (*Sink, string) {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	return NewSink(cfg), cfg.Dir
}

func postChunk(t *testing.T, sink *Sink, fields map[string]string, chunk []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if chunk != nil {
		fw, err := mw.CreateFormFile("chunk", "chunk.bin")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(chunk); err != nil {
			t.Fatalf("write chunk: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload/chunk", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	sink.ServeHTTP(rec, req)
	return rec
}

func TestChunkSavedUnderSessionPath(t *testing.T) {
	m := metrics.New()
	sink, dir := newTestSink(t, Config{
		Metrics: m,
		Now:     func() time.Time { return time.UnixMilli(1700000000000) },
	})

	rec := postChunk(t, sink, map[string]string{
		"roomId":    "r1",
		"userId":    "u1",
		"sessionId": "s1",
		"seq":       "12",
	}, []byte("payload"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Saved bool  `json:"saved"`
		At    int64 `json:"at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Saved || resp.At != 1700000000000 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	path := filepath.Join(dir, "r1", "u1", "s1", "chunk-000012.bin")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved chunk: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("chunk content mismatch: %q", data)
	}
	if got := m.Get(metrics.UploadsSaved); got != 1 {
		t.Fatalf("expected 1 saved upload, got %d", got)
	}
}

func TestMissingIdentityFieldsFallBackToDefaults(t *testing.T) {
	sink, dir := newTestSink(t, Config{})

	rec := postChunk(t, sink, nil, []byte("x"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	path := filepath.Join(dir, "room", "user", "session", "chunk-000000.bin")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected chunk at default path: %v", err)
	}
}

func TestNonNumericSeqFallsBackToZero(t *testing.T) {
	sink, dir := newTestSink(t, Config{})

	rec := postChunk(t, sink, map[string]string{"seq": "not-a-number"}, []byte("x"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	path := filepath.Join(dir, "room", "user", "session", "chunk-000000.bin")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected fallback chunk name: %v", err)
	}
}

func TestTraversalIdentityRejected(t *testing.T) {
	m := metrics.New()
	sink, dir := newTestSink(t, Config{Metrics: m})

	for _, bad := range []string{"..", "a/b", `a\b`, "./x"} {
		rec := postChunk(t, sink, map[string]string{"roomId": bad}, []byte("x"))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("roomId %q: expected 400, got %d", bad, rec.Code)
		}
	}
	if got := m.Get(metrics.DropUploadBadIdentity); got != 4 {
		t.Fatalf("expected 4 bad identity drops, got %d", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read sink dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files written, found %v", entries)
	}
}

func TestMissingChunkFileRejected(t *testing.T) {
	sink, _ := newTestSink(t, Config{})

	rec := postChunk(t, sink, map[string]string{"roomId": "r1"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOversizedChunkRejectedAndRemoved(t *testing.T) {
	m := metrics.New()
	sink, dir := newTestSink(t, Config{Metrics: m, MaxChunkBytes: 16})

	rec := postChunk(t, sink, map[string]string{"roomId": "r1"}, bytes.Repeat([]byte("x"), 64))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := m.Get(metrics.DropUploadOversized); got != 1 {
		t.Fatalf("expected 1 oversized drop, got %d", got)
	}

	path := filepath.Join(dir, "r1", "user", "session", "chunk-000000.bin")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected partial chunk to be removed, stat err=%v", err)
	}
}

func TestChunkAtLimitAccepted(t *testing.T) {
	sink, _ := newTestSink(t, Config{MaxChunkBytes: 16})

	rec := postChunk(t, sink, nil, bytes.Repeat([]byte("x"), 16))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for chunk at limit, got %d", rec.Code)
	}
}
