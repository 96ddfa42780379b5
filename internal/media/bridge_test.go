package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"healthbot/internal/domain"
	"healthbot/internal/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type fakeSpeech struct {
	detected   string
	text       string
	gotLang    string
	gotPrompt  string
	detectErr  error
	transcribe int
}

func (f *fakeSpeech) DetectLanguage(context.Context, []byte, string) (provider.Transcription, error) {
	return provider.Transcription{Language: f.detected}, f.detectErr
}

func (f *fakeSpeech) Transcribe(_ context.Context, _ []byte, _, lang, prompt string) (provider.Transcription, error) {
	f.transcribe++
	f.gotLang, f.gotPrompt = lang, prompt
	return provider.Transcription{Text: f.text, Language: lang}, nil
}

func (f *fakeSpeech) Speak(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader([]byte("ID3-mp3"))), nil
}

func newBridge(t *testing.T, speech SpeechService, graph *httptest.Server) *Bridge {
	t.Helper()
	cfg := Config{
		AccessToken:          "tok",
		Speech:               speech,
		AlternativeLanguages: []string{"en", "gu"},
		AudioDir:             t.TempDir(),
		PublicBaseURL:        "https://bot.example.com/",
		Logger:               testLogger(),
	}
	if graph != nil {
		cfg.GraphAPIBase = graph.URL
		cfg.HTTPClient = graph.Client()
	}
	b, err := NewBridge(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestDownloadMedia(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token on %s", r.URL.Path)
		}
		switch r.URL.Path {
		case "/media-1":
			io.WriteString(w, `{"url":"`+srv.URL+`/files/media-1","mime_type":"audio/ogg"}`)
		case "/files/media-1":
			w.Write([]byte("OggS-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	b := newBridge(t, &fakeSpeech{}, srv)
	data, err := b.DownloadMedia(context.Background(), "media-1")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(data) != "OggS-bytes" {
		t.Fatalf("unexpected bytes %q", data)
	}
}

func TestDownloadMedia_Failure(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/media-1" {
			io.WriteString(w, `{"url":"`+srv.URL+`/files/gone"}`)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	b := newBridge(t, &fakeSpeech{}, srv)
	if _, err := b.DownloadMedia(context.Background(), "media-1"); !errors.Is(err, domain.ErrMediaFetch) {
		t.Fatalf("expected ErrMediaFetch from second step, got %v", err)
	}
	if _, err := b.DownloadMedia(context.Background(), "missing"); !errors.Is(err, domain.ErrMediaFetch) {
		t.Fatalf("expected ErrMediaFetch from first step, got %v", err)
	}
}

func TestTranscribe_ClampsToCandidates(t *testing.T) {
	speech := &fakeSpeech{detected: "hindi", text: "bukhar hai"}
	b := newBridge(t, speech, nil)

	text, err := b.Transcribe(context.Background(), []byte("ogg"))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "bukhar hai" || speech.gotLang != "hi" {
		t.Fatalf("got text=%q lang=%q", text, speech.gotLang)
	}
	if !strings.Contains(speech.gotPrompt, "Gujarati") {
		t.Fatalf("expected alternative hint, got %q", speech.gotPrompt)
	}
}

func TestTranscribe_UnknownLanguageUsesFirstCandidate(t *testing.T) {
	speech := &fakeSpeech{detected: "japanese", text: "hello"}
	b := newBridge(t, speech, nil)

	if _, err := b.Transcribe(context.Background(), []byte("ogg")); err != nil {
		t.Fatal(err)
	}
	if speech.gotLang != "en" {
		t.Fatalf("expected first candidate, got %q", speech.gotLang)
	}
}

func TestTranscribe_EmptyIsLiteral(t *testing.T) {
	b := newBridge(t, &fakeSpeech{detected: "en", text: "  "}, nil)

	text, err := b.Transcribe(context.Background(), []byte("ogg"))
	if err != nil {
		t.Fatal(err)
	}
	if text != "Could not transcribe audio." {
		t.Fatalf("got %q", text)
	}
}

func TestSynthesize_WritesServableFile(t *testing.T) {
	b := newBridge(t, &fakeSpeech{}, nil)

	link, err := b.Synthesize(context.Background(), "hello", "en")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if !strings.HasPrefix(link, "https://bot.example.com/audio/") || !strings.HasSuffix(link, ".mp3") {
		t.Fatalf("unexpected link %q", link)
	}
	name := strings.TrimPrefix(link, "https://bot.example.com/audio/")
	if _, err := os.Stat(filepath.Join(b.audioDir, name)); err != nil {
		t.Fatalf("audio file missing: %v", err)
	}

	rec := httptest.NewRecorder()
	b.AudioHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audio/"+name, nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ID3-mp3" {
		t.Fatalf("audio not served: %d %q", rec.Code, rec.Body.String())
	}

	second, _ := b.Synthesize(context.Background(), "hello", "en")
	if second == link {
		t.Fatal("file names must be unique")
	}
}
