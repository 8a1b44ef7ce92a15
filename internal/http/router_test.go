package http

import (
	"bufio"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/obiente/translate/goanalyze/internal/analysis"
	"github.com/obiente/translate/goanalyze/internal/audio"
	"github.com/obiente/translate/goanalyze/internal/audio/audiotest"
	"github.com/obiente/translate/goanalyze/internal/inference"
	"github.com/obiente/translate/goanalyze/internal/lifecycle"
	"github.com/obiente/translate/goanalyze/internal/stream"
)

func newTestRouter(t *testing.T, maxBytes int64) (http.Handler, string) {
	t.Helper()
	return newRouterWithScorer(t, maxBytes, inference.StubEmotion{})
}

func newRouterWithScorer(t *testing.T, maxBytes int64, emo inference.EmotionScorer) (http.Handler, string) {
	t.Helper()
	spool, err := lifecycle.NewSpool(filepath.Join(t.TempDir(), "spool"), maxBytes)
	if err != nil {
		t.Fatal(err)
	}
	an := analysis.New(emo, inference.NewStubTagger(), analysis.DefaultOptions())
	asm := stream.NewAssembler(audio.NewFileDecoder(audio.TargetSampleRate), an, 0, nil)
	return NewRouter(Options{
		Manager:        lifecycle.NewManager(spool, asm),
		Device:         "cpu",
		CORSOrigins:    []string{"*"},
		MaxUploadBytes: maxBytes,
	}), spool.Dir()
}

func wavFixture(t *testing.T, seconds float64) []byte {
	t.Helper()
	path := audiotest.WriteWAV(t, t.TempDir(), "in.wav", audiotest.Tone(seconds, 440, 0.3, audio.TargetSampleRate), audio.TargetSampleRate, 1)
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("note", "ignored")
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func postAnalyze(t *testing.T, h http.Handler, field, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, field, filename, data)
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func lines(t *testing.T, body string) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func assertSpoolEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestRootAndHealth(t *testing.T) {
	h, _ := newTestRouter(t, 0)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	var root map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &root)
	if rec.Code != http.StatusOK || root["status"] != "Online" || root["hardware"] != "cpu" {
		t.Fatalf("GET / = %d %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("missing request id")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
		t.Fatalf("GET /healthz = %d %s", rec.Code, rec.Body)
	}
}

func TestAnalyzeStreamsNDJSON(t *testing.T) {
	h, dir := newTestRouter(t, 0)
	rec := postAnalyze(t, h, "file", "lesson.wav", wavFixture(t, 12))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content-type = %q", ct)
	}
	got := lines(t, rec.Body.String())
	if len(got) != 2 {
		t.Fatalf("lines = %d", len(got))
	}
	if got[0]["chunk_id"] != 1.0 || got[0]["start"] != 0.0 || got[0]["end"] != 10.0 {
		t.Fatalf("first = %v", got[0])
	}
	if got[1]["chunk_id"] != 2.0 || got[1]["start"] != 10.0 || got[1]["end"] != 12.0 {
		t.Fatalf("second = %v", got[1])
	}
	segs := got[0]["classroom_events"].([]any)
	if len(segs) != 2 {
		t.Fatalf("segments = %v", segs)
	}
	events := segs[0].(map[string]any)["events"].([]any)
	if len(events) != 20 {
		t.Fatalf("events = %d, want 20", len(events))
	}
	assertSpoolEmpty(t, dir)
}

func TestAnalyzeShortAudioHasEmptyBody(t *testing.T) {
	h, dir := newTestRouter(t, 0)
	rec := postAnalyze(t, h, "file", "short.wav", wavFixture(t, 0.8))
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body)
	}
	assertSpoolEmpty(t, dir)
}

func TestAnalyzeUndecodableFileReportsErrorLine(t *testing.T) {
	h, dir := newTestRouter(t, 0)
	rec := postAnalyze(t, h, "file", "notes.txt", []byte("definitely not audio"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := lines(t, rec.Body.String())
	if len(got) != 1 || got[0]["error"] == nil {
		t.Fatalf("body = %q", rec.Body)
	}
	assertSpoolEmpty(t, dir)
}

func TestAnalyzeRejectsBadRequests(t *testing.T) {
	h, dir := newTestRouter(t, 0)

	rec := postAnalyze(t, h, "audio", "x.wav", []byte("abc"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("wrong field: status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("not multipart: status = %d", rec.Code)
	}
	assertSpoolEmpty(t, dir)
}

func TestAnalyzeRejectsLargeUpload(t *testing.T) {
	h, dir := newTestRouter(t, 1024)
	rec := postAnalyze(t, h, "file", "big.wav", wavFixture(t, 1))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	assertSpoolEmpty(t, dir)
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestRouter(t, 0)
	req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("allow-origin = %q", got)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	h, _ := newTestRouter(t, 0)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "abc-123" {
		t.Fatalf("request id = %q", got)
	}
}
