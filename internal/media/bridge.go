// Package media moves audio between the messaging platform, the speech
// services and the public audio directory.
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"healthbot/internal/domain"
	"healthbot/internal/language"
	"healthbot/internal/provider"
)

// maxMediaBytes bounds a single voice note download.
const maxMediaBytes = 16 << 20

// SpeechService is the subset of provider.Speech the bridge drives.
type SpeechService interface {
	DetectLanguage(ctx context.Context, audio []byte, filename string) (provider.Transcription, error)
	Transcribe(ctx context.Context, audio []byte, filename, language, prompt string) (provider.Transcription, error)
	Speak(ctx context.Context, text string) (io.ReadCloser, error)
}

type Config struct {
	GraphAPIBase         string // e.g. https://graph.facebook.com/v17.0
	AccessToken          string
	Speech               SpeechService
	CandidateLanguages   []string
	AlternativeLanguages []string
	AudioDir             string
	PublicBaseURL        string
	HTTPClient           *http.Client
	Logger               *slog.Logger
}

// Bridge implements domain.MediaBridge.
type Bridge struct {
	graphBase     string
	accessToken   string
	speech        SpeechService
	candidates    []string
	alternatives  []string
	audioDir      string
	publicBaseURL string
	client        *http.Client
	logger        *slog.Logger
}

func NewBridge(cfg Config) (*Bridge, error) {
	if cfg.GraphAPIBase == "" {
		cfg.GraphAPIBase = "https://graph.facebook.com/v17.0"
	}
	if len(cfg.CandidateLanguages) == 0 {
		cfg.CandidateLanguages = []string{"en", "hi", "mr", "ta", "te", "bn"}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.AudioDir != "" {
		if err := os.MkdirAll(cfg.AudioDir, 0o755); err != nil {
			return nil, fmt.Errorf("create audio dir: %w", err)
		}
	}
	return &Bridge{
		graphBase:     strings.TrimRight(cfg.GraphAPIBase, "/"),
		accessToken:   cfg.AccessToken,
		speech:        cfg.Speech,
		candidates:    cfg.CandidateLanguages,
		alternatives:  cfg.AlternativeLanguages,
		audioDir:      cfg.AudioDir,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		client:        cfg.HTTPClient,
		logger:        cfg.Logger,
	}, nil
}

// DownloadMedia resolves the media id to a signed URL and fetches the bytes.
func (b *Bridge) DownloadMedia(ctx context.Context, mediaID string) ([]byte, error) {
	if mediaID == "" {
		return nil, fmt.Errorf("%w: empty media id", domain.ErrMediaFetch)
	}
	meta, err := b.get(ctx, b.graphBase+"/"+url.PathEscape(mediaID), 1<<20)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", domain.ErrMediaFetch, mediaID, err)
	}
	mediaURL := gjson.GetBytes(meta, "url").String()
	if mediaURL == "" {
		return nil, fmt.Errorf("%w: resolve %s: no url in response", domain.ErrMediaFetch, mediaID)
	}

	data, err := b.get(ctx, mediaURL, maxMediaBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: download %s: %w", domain.ErrMediaFetch, mediaID, err)
	}
	b.logger.Debug("media downloaded", "media_id", mediaID, "bytes", len(data))
	return data, nil
}

func (b *Bridge) get(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+b.accessToken)
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}

// Transcribe detects the spoken language among the candidates, then
// recognizes the audio constrained to it. No recognized speech yields
// domain.TranscriptUnavailable rather than an error.
func (b *Bridge) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return domain.TranscriptUnavailable, nil
	}

	detected, err := b.speech.DetectLanguage(ctx, audio, "voice.ogg")
	if err != nil {
		return "", err
	}
	lang, ok := language.FromName(detected.Language, b.candidates)
	if !ok {
		lang = language.Normalize(b.candidates[0])
	}

	result, err := b.speech.Transcribe(ctx, audio, "voice.ogg", lang, b.hint())
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(result.Text) == "" {
		b.logger.Info("transcription empty", "language", lang)
		return domain.TranscriptUnavailable, nil
	}
	return result.Text, nil
}

// hint names the alternative languages so the model tolerates code-switching.
func (b *Bridge) hint() string {
	if len(b.alternatives) == 0 {
		return ""
	}
	names := make([]string, 0, len(b.alternatives))
	for _, code := range b.alternatives {
		names = append(names, language.Name(code))
	}
	return "The speaker may also use " + strings.Join(names, ", ") + "."
}

// Synthesize renders text as speech under a random file name and returns its
// public URL.
func (b *Bridge) Synthesize(ctx context.Context, text, lang string) (string, error) {
	if b.audioDir == "" || b.publicBaseURL == "" {
		return "", fmt.Errorf("synthesize: audio dir or public base url not configured")
	}
	audio, err := b.speech.Speak(ctx, text)
	if err != nil {
		return "", err
	}
	defer audio.Close()

	name := uuid.NewString() + ".mp3"
	path := filepath.Join(b.audioDir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	if _, err := io.Copy(f, audio); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close audio file: %w", err)
	}

	b.logger.Debug("speech synthesized", "file", name, "language", lang)
	return b.publicBaseURL + "/audio/" + name, nil
}

// AudioHandler serves synthesized files; mount it under /audio/.
func (b *Bridge) AudioHandler() http.Handler {
	return http.StripPrefix("/audio/", http.FileServer(http.Dir(b.audioDir)))
}
