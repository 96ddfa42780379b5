// Package knowledge provides the RAG (Retrieval-Augmented Generation) side of
// the assistant: ingestion into the vector index, search, and prompt building.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"healthbot/internal/domain"
)

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the storage interface for the knowledge engine.
type VectorStore interface {
	EnsureCollection(ctx context.Context, dim int) error
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, topK int) ([]domain.RetrievedPassage, error)
}

// Point is one chunk ready to be written to the index.
type Point struct {
	ID     string
	Vector []float32
	Text   string
	Source string
}

// Engine manages the knowledge base: chunking, embedding and searching.
type Engine struct {
	store     VectorStore
	embedder  Embedder
	chunkSize int
	overlap   int
	batchSize int
	logger    *slog.Logger
}

type EngineConfig struct {
	Store     VectorStore
	Embedder  Embedder
	ChunkSize int // words per chunk (default: 400)
	Overlap   int // overlap words between chunks (default: 50)
	BatchSize int // chunks per embedding request (default: 256)
	Logger    *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 400
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = 50
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		store:     cfg.Store,
		embedder:  cfg.Embedder,
		chunkSize: cfg.ChunkSize,
		overlap:   cfg.Overlap,
		batchSize: cfg.BatchSize,
		logger:    cfg.Logger,
	}
}

// Search embeds query and returns at most k passages, highest score first.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]domain.RetrievedPassage, error) {
	if k <= 0 {
		k = 4
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed query: no vector returned")
	}
	passages, err := e.store.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	if len(passages) > k {
		passages = passages[:k]
	}
	return passages, nil
}

// Ingest chunks text, embeds the chunks in batches and upserts each batch
// under source. It returns the number of chunks written.
func (e *Engine) Ingest(ctx context.Context, source, text string) (int, error) {
	chunks := ChunkWords(CleanText(text), e.chunkSize, e.overlap)
	if len(chunks) == 0 {
		return 0, nil
	}

	for start := 0; start < len(chunks); start += e.batchSize {
		batch := chunks[start:min(start+e.batchSize, len(chunks))]
		vectors, err := e.embedder.Embed(ctx, batch)
		if err != nil {
			return start, fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(batch) {
			return start, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(batch))
		}
		if start == 0 {
			if err := e.store.EnsureCollection(ctx, len(vectors[0])); err != nil {
				return 0, fmt.Errorf("ensure collection: %w", err)
			}
		}

		points := make([]Point, len(batch))
		for i, chunk := range batch {
			points[i] = Point{
				ID:     PointID(source, start+i),
				Vector: vectors[i],
				Text:   chunk,
				Source: source,
			}
		}
		if err := e.store.Upsert(ctx, points); err != nil {
			return start, fmt.Errorf("upsert chunks: %w", err)
		}
	}

	e.logger.Info("document added to knowledge base",
		"source", source, "chunks", len(chunks), "size", len(text))
	return len(chunks), nil
}
