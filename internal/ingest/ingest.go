// Package ingest prepares the input directory for a run: it lists the
// PDF documents and renames each to a collision-free UUID name, keeping
// the original name as an extraction hint.
package ingest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mingyu-ho/invoice-pipeline/constants"
	"github.com/mingyu-ho/invoice-pipeline/internal/pipeline"
)

// ScanAndRename walks inputDir (non-recursive, directory listing order)
// and renames every PDF to <uuid>.pdf. A file that cannot be renamed is
// logged and skipped; it does not abort the batch. The returned
// documents are in listing order, which fixes the arrival order used by
// deduplication.
func ScanAndRename(logger *slog.Logger, inputDir string) ([]pipeline.SourceDocument, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, fmt.Errorf("read input dir %s: %w", inputDir, err)
	}

	var docs []pipeline.SourceDocument
	for _, entry := range entries {
		if entry.IsDir() || !constants.IsPDF(filepath.Ext(entry.Name())) {
			continue
		}

		src := filepath.Join(inputDir, entry.Name())
		dst, err := uniqueUUIDPath(inputDir)
		if err != nil {
			logger.Error("ingest.name_failed", "file", entry.Name(), "error", err)
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			logger.Error("ingest.rename_failed", "file", entry.Name(), "error", err)
			continue
		}

		logger.Debug("ingest.renamed", "from", entry.Name(), "to", filepath.Base(dst))
		docs = append(docs, pipeline.SourceDocument{
			Path:         dst,
			OriginalName: entry.Name(),
		})
	}
	return docs, nil
}

// uniqueUUIDPath picks a <uuid>.pdf name that does not collide with an
// existing file in dir.
func uniqueUUIDPath(dir string) (string, error) {
	for i := 0; i < 100; i++ {
		name := strings.ReplaceAll(uuid.New().String(), "-", "") + ".pdf"
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
	}
	return "", fmt.Errorf("could not find a free uuid name in %s", dir)
}
