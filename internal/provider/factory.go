package provider

import (
	"log/slog"
	"sync"
	"time"

	"healthbot/internal/config"
)

// Factory creates and caches the OpenAI-compatible services from config.
type Factory struct {
	cfg    *config.Config
	logger *slog.Logger

	mu        sync.Mutex
	generator *Generator
	embedder  *Embedder
	speech    *Speech
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	return &Factory{cfg: cfg, logger: logger}
}

func (f *Factory) timeout() time.Duration {
	if f.cfg.Generator.TimeoutS > 0 {
		return time.Duration(f.cfg.Generator.TimeoutS) * time.Second
	}
	return 60 * time.Second
}

// Generator returns the chat generator (Gemini's OpenAI surface by default).
func (f *Factory) Generator() *Generator {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.generator == nil {
		gc := f.cfg.Generator
		f.generator = NewGenerator(GeneratorConfig{
			Client:      NewOpenAIClient(gc.APIKey, gc.APIBase, SharedHTTPClient(f.timeout())),
			Model:       gc.Model,
			Temperature: float32(gc.Temperature),
			MaxTokens:   gc.MaxTokens,
			Logger:      f.logger.With("component", "generator"),
		})
	}
	return f.generator
}

// Embedder returns the embeddings client used for retrieval and ingestion.
func (f *Factory) Embedder() *Embedder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embedder == nil {
		kc := f.cfg.Knowledge
		f.embedder = NewEmbedder(
			NewOpenAIClient(kc.EmbeddingAPIKey, kc.EmbeddingAPIBase, SharedHTTPClient(f.timeout())),
			kc.EmbeddingModel,
		)
	}
	return f.embedder
}

// Speech returns the speech-to-text / text-to-speech client.
func (f *Factory) Speech() *Speech {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.speech == nil {
		sc := f.cfg.Speech
		f.speech = NewSpeech(SpeechConfig{
			Client:   NewOpenAIClient(sc.APIKey, sc.APIBase, SharedHTTPClient(2*time.Minute)),
			STTModel: sc.STTModel,
			TTSModel: sc.TTSModel,
			Voice:    sc.Voice,
			Logger:   f.logger.With("component", "speech"),
		})
	}
	return f.speech
}
