package upload

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zoomish/relay/internal/metrics"
)

const defaultMaxChunkBytes = 50 << 20

// Config carries the chunk sink settings. Dir is created on demand;
// MaxChunkBytes <= 0 falls back to 50 MiB.
type Config struct {
	Dir           string
	MaxChunkBytes int64

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Sink accepts recording chunks over multipart POST and appends them to a
// per-session directory tree:
//
//	<dir>/<roomId>/<userId>/<sessionId>/chunk-%06d.bin
//
// Chunks are opaque; the sink never inspects or reassembles them.
type Sink struct {
	dir     string
	max     int64
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewSink(cfg Config) *Sink {
	if cfg.MaxChunkBytes <= 0 {
		cfg.MaxChunkBytes = defaultMaxChunkBytes
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Sink{
		dir:     cfg.Dir,
		max:     cfg.MaxChunkBytes,
		log:     log,
		metrics: cfg.Metrics,
		now:     now,
	}
}

func (s *Sink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("chunk")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "chunk file missing"})
		return
	}
	defer file.Close()

	roomID := fieldOr(r, "roomId", "room")
	userID := fieldOr(r, "userId", "user")
	sessionID := fieldOr(r, "sessionId", "session")
	for _, segment := range []string{roomID, userID, sessionID} {
		if !validSegment(segment) {
			s.metrics.Inc(metrics.DropUploadBadIdentity)
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid identity field"})
			return
		}
	}

	dir := filepath.Join(s.dir, roomID, userID, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Error("create chunk directory", "dir", dir, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "storage unavailable"})
		return
	}

	path := filepath.Join(dir, chunkName(r.FormValue("seq")))
	dst, err := os.Create(path)
	if err != nil {
		s.log.Error("create chunk file", "path", path, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "storage unavailable"})
		return
	}

	n, err := io.Copy(dst, io.LimitReader(file, s.max+1))
	closeErr := dst.Close()
	if n > s.max {
		_ = os.Remove(path)
		s.metrics.Inc(metrics.DropUploadOversized)
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "chunk too large"})
		return
	}
	if err != nil || closeErr != nil {
		_ = os.Remove(path)
		s.log.Error("write chunk file", "path", path, "err", err, "closeErr", closeErr)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "storage unavailable"})
		return
	}

	s.metrics.Inc(metrics.UploadsSaved)
	s.log.Debug("chunk saved", "path", path, "bytes", n)
	writeJSON(w, http.StatusOK, map[string]any{"saved": true, "at": s.now().UnixMilli()})
}

func fieldOr(r *http.Request, field, fallback string) string {
	if v := r.FormValue(field); v != "" {
		return v
	}
	return fallback
}

// validSegment accepts only names that stay inside the sink directory when
// joined as a single path segment.
func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	if strings.ContainsAny(s, `/\`) {
		return false
	}
	return filepath.Clean(s) == s
}

func chunkName(seq string) string {
	n, err := strconv.Atoi(seq)
	if err != nil || n < 0 {
		n = 0
	}
	return fmt.Sprintf("chunk-%06d.bin", n)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
