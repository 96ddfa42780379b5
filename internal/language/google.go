// Package language wraps the Google Cloud Translation v2 REST API.
package language

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"healthbot/internal/domain"
)

const translateScope = "https://www.googleapis.com/auth/cloud-translation"

// GoogleConfig configures the translator. Either CredentialsFile (service
// account JSON) or APIKey authenticates requests.
type GoogleConfig struct {
	APIBase         string
	APIKey          string
	CredentialsFile string
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// GoogleTranslator implements domain.Translator.
type GoogleTranslator struct {
	apiBase string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

func NewGoogleTranslator(ctx context.Context, cfg GoogleConfig) (*GoogleTranslator, error) {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://translation.googleapis.com"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil && cfg.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read translate credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, translateScope)
		if err != nil {
			return nil, fmt.Errorf("parse translate credentials: %w", err)
		}
		client = oauth2.NewClient(ctx, creds.TokenSource)
		client.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GoogleTranslator{
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
		logger:  cfg.Logger,
	}, nil
}

// Detect returns the base language code of text. Callers treat any error as
// English.
func (g *GoogleTranslator) Detect(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return domain.DefaultLanguage, nil
	}
	body, err := g.post(ctx, "/language/translate/v2/detect", map[string]any{"q": text})
	if err != nil {
		return domain.DefaultLanguage, fmt.Errorf("%w: detect: %w", domain.ErrTranslation, err)
	}
	code := gjson.GetBytes(body, "data.detections.0.0.language").String()
	if code == "" || code == "und" {
		return domain.DefaultLanguage, fmt.Errorf("%w: detect: no language in response", domain.ErrTranslation)
	}
	return Normalize(code), nil
}

// Translate returns text in the target language. Empty input yields "".
// When the detected source already equals target the API returns the text unchanged.
func (g *GoogleTranslator) Translate(ctx context.Context, text, target string) (string, error) {
	if text == "" {
		return "", nil
	}
	target = Normalize(target)
	body, err := g.post(ctx, "/language/translate/v2", map[string]any{
		"q":      text,
		"target": target,
		"format": "text",
	})
	if err != nil {
		return "", fmt.Errorf("%w: translate to %s: %w", domain.ErrTranslation, target, err)
	}
	result := gjson.GetBytes(body, "data.translations.0")
	if !result.Exists() {
		return "", fmt.Errorf("%w: translate to %s: empty response", domain.ErrTranslation, target)
	}
	if Normalize(result.Get("detectedSourceLanguage").String()) == target {
		return text, nil
	}
	return result.Get("translatedText").String(), nil
}

func (g *GoogleTranslator) post(ctx context.Context, path string, payload map[string]any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	endpoint := g.apiBase + path
	if g.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(g.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("translate API %d: %s", resp.StatusCode, gjson.GetBytes(body, "error.message").String())
	}
	return body, nil
}
