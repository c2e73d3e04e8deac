// Package pdfio wraps the PDF primitives the pipeline builds on:
// text-layer extraction and first-page rasterization. Both prefer the
// poppler binaries and degrade where possible.
package pdfio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	DPI       int    // rasterization DPI, default 200
}

// Extractor runs the blocking PDF primitives. Callers are responsible
// for offloading; nothing here spawns goroutines.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	return &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// ExtractText returns the document's text layer. It shells out to
// pdftotext and falls back to the in-process reader when the binary is
// not installed.
func (e *Extractor) ExtractText(ctx context.Context, path string) (string, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err == nil {
		return string(out), nil
	}
	if !errors.Is(err, exec.ErrNotFound) {
		return "", fmt.Errorf("pdftotext %s: %w (stderr: %s)", filepath.Base(path), err, truncate(string(errb), 512))
	}

	e.logger.Warn("pdftotext not installed, using in-process reader", "path", path)
	return extractTextInProcess(path)
}

// extractTextInProcess reads the text layer with ledongthuc/pdf. Slower
// and less layout-aware than poppler, good enough for keyword and
// pattern matching.
func extractTextInProcess(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", filepath.Base(path), err)
	}
	defer func() {
		_ = f.Close()
	}()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

// RasterizeFirstPage renders page 1 as a PNG and returns the image
// bytes. Requires pdftoppm; there is no in-process fallback for
// rasterization.
func (e *Extractor) RasterizeFirstPage(ctx context.Context, path string) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "ip-ppm-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			e.logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", rmErr)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -f 1 -l 1 -r <dpi> -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-f", "1", "-l", "1", "-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm %s: %w (stderr: %s)", filepath.Base(path), err, truncate(string(errb), 512))
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no image for %s", filepath.Base(path))
	}

	img, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(img, []byte("\x89PNG")) {
		return nil, fmt.Errorf("unexpected rasterizer output for %s", filepath.Base(path))
	}
	return img, nil
}
