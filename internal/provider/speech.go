package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type SpeechConfig struct {
	Client   *openai.Client
	STTModel string // e.g. "whisper-1"
	TTSModel string // e.g. "tts-1"
	Voice    string // e.g. "alloy"
	Logger   *slog.Logger
}

// Speech handles speech-to-text and text-to-speech through the
// OpenAI-compatible audio endpoints.
type Speech struct {
	client   *openai.Client
	sttModel string
	ttsModel string
	voice    string
	logger   *slog.Logger
}

func NewSpeech(cfg SpeechConfig) *Speech {
	if cfg.STTModel == "" {
		cfg.STTModel = openai.Whisper1
	}
	if cfg.TTSModel == "" {
		cfg.TTSModel = string(openai.TTSModel1)
	}
	if cfg.Voice == "" {
		cfg.Voice = string(openai.VoiceAlloy)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Speech{
		client:   cfg.Client,
		sttModel: cfg.STTModel,
		ttsModel: cfg.TTSModel,
		voice:    cfg.Voice,
		logger:   cfg.Logger,
	}
}

// Transcription is the result of one recognition pass.
type Transcription struct {
	Text     string
	Language string // as reported by the service, e.g. "hindi" or "hi"
	Duration float64
}

// DetectLanguage runs an unconstrained pass and reports the spoken language.
func (s *Speech) DetectLanguage(ctx context.Context, audio []byte, filename string) (Transcription, error) {
	return s.transcribe(ctx, audio, filename, "", "")
}

// Transcribe recognizes audio constrained to language. prompt carries
// vocabulary or language hints for the model.
func (s *Speech) Transcribe(ctx context.Context, audio []byte, filename, language, prompt string) (Transcription, error) {
	return s.transcribe(ctx, audio, filename, language, prompt)
}

func (s *Speech) transcribe(ctx context.Context, audio []byte, filename, language, prompt string) (Transcription, error) {
	if filename == "" {
		filename = "audio.ogg"
	}
	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.sttModel,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
		Prompt:   prompt,
		Language: language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return Transcription{}, fmt.Errorf("transcription: %w", err)
	}

	s.logger.Info("transcription complete",
		"text_len", len(resp.Text),
		"language", resp.Language,
		"duration", resp.Duration,
	)
	return Transcription{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
		Duration: resp.Duration,
	}, nil
}

// Speak synthesizes text as MP3. The caller closes the returned reader.
func (s *Speech) Speak(ctx context.Context, text string) (io.ReadCloser, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.ttsModel),
		Input:          text,
		Voice:          openai.SpeechVoice(s.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis: %w", err)
	}
	return resp, nil
}
