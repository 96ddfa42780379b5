package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"healthbot/internal/knowledge"
	"healthbot/internal/provider"
)

func ingestCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and index .txt, .md and .csv documents into the knowledge base",
		RunE: func(cmd *cobra.Command, args []string) error {
			if source == "" {
				return fmt.Errorf("--source is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger = newLogger(cfg.General)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine := newRetriever(cfg, provider.NewFactory(cfg, logger))

			files, chunks := 0, 0
			err = filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					return nil
				}
				text, ok, err := readDocument(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				if !ok {
					return nil
				}
				rel, _ := filepath.Rel(source, path)
				if rel == "." || rel == "" {
					rel = filepath.Base(path)
				}
				n, err := engine.Ingest(ctx, filepath.ToSlash(rel), text)
				if err != nil {
					return fmt.Errorf("ingest %s: %w", path, err)
				}
				files++
				chunks += n
				return nil
			})
			if err != nil {
				return err
			}
			logger.Info("ingestion complete", "files", files, "chunks", chunks, "collection", cfg.Knowledge.Collection)
			return nil
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "", "file or directory of documents to ingest")
	return cmd
}

// readDocument returns the indexable text of path. ok is false for file
// types ingest does not handle.
func readDocument(path string) (text string, ok bool, err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", false, err
		}
		return string(data), true, nil
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return "", false, err
		}
		defer f.Close()
		text, err := knowledge.CSVText(f)
		if err != nil {
			return "", false, err
		}
		return text, true, nil
	default:
		return "", false, nil
	}
}
