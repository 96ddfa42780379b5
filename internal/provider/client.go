// Package provider wraps the OpenAI-compatible endpoints the assistant relies
// on: chat generation, embeddings, speech-to-text and text-to-speech.
package provider

import (
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// NewOpenAIClient builds a go-openai client for any OpenAI-compatible API.
// An empty baseURL keeps the OpenAI default.
func NewOpenAIClient(apiKey, baseURL string, httpClient *http.Client) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(cfg)
}
