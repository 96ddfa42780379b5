package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"healthbot/internal/domain"
)

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Qdrant is a VectorStore backed by the Qdrant REST API. Points carry the
// chunk in payload fields "text" and "source".
type Qdrant struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
	logger     *slog.Logger
}

func NewQdrant(cfg QdrantConfig) *Qdrant {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:6333"
	}
	if cfg.Collection == "" {
		cfg.Collection = "health_kb"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Qdrant{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

// EnsureCollection creates the collection with cosine distance if it does not exist.
func (q *Qdrant) EnsureCollection(ctx context.Context, dim int) error {
	status, body, err := q.do(ctx, http.MethodGet, q.collectionPath(), nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("qdrant get collection %d: %s", status, errorText(body))
	}

	create := map[string]any{
		"vectors": map[string]any{"size": dim, "distance": "Cosine"},
	}
	status, body, err = q.do(ctx, http.MethodPut, q.collectionPath(), create)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant create collection %d: %s", status, errorText(body))
	}
	q.logger.Info("qdrant collection created", "collection", q.collection, "dim", dim)
	return nil
}

type qdrantPoint struct {
	ID      string            `json:"id"`
	Vector  []float32         `json:"vector"`
	Payload map[string]string `json:"payload"`
}

func (q *Qdrant) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := struct {
		Points []qdrantPoint `json:"points"`
	}{Points: make([]qdrantPoint, len(points))}
	for i, p := range points {
		body.Points[i] = qdrantPoint{
			ID:      p.ID,
			Vector:  p.Vector,
			Payload: map[string]string{"text": p.Text, "source": p.Source},
		}
	}

	status, resp, err := q.do(ctx, http.MethodPut, q.collectionPath()+"/points?wait=true", body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("qdrant upsert %d: %s", status, errorText(resp))
	}
	return nil
}

// Search returns the nearest points, highest score first, as Qdrant orders them.
func (q *Qdrant) Search(ctx context.Context, vector []float32, topK int) ([]domain.RetrievedPassage, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	status, body, err := q.do(ctx, http.MethodPost, q.collectionPath()+"/points/search", req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("qdrant search %d: %s", status, errorText(body))
	}

	hits := gjson.GetBytes(body, "result").Array()
	passages := make([]domain.RetrievedPassage, 0, len(hits))
	for _, h := range hits {
		passages = append(passages, domain.RetrievedPassage{
			Text:   h.Get("payload.text").String(),
			Source: h.Get("payload.source").String(),
			Score:  h.Get("score").Float(),
		})
	}
	return passages, nil
}

func (q *Qdrant) collectionPath() string {
	return "/collections/" + url.PathEscape(q.collection)
}

func (q *Qdrant) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build qdrant request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read qdrant response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func errorText(body []byte) string {
	if msg := gjson.GetBytes(body, "status.error").String(); msg != "" {
		return msg
	}
	return strings.TrimSpace(string(body))
}
