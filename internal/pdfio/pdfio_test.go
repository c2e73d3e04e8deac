package pdfio

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	run func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)
}

func (s stubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return s.run(ctx, name, args...)
}

func TestExtractTextUsesPdftotext(t *testing.T) {
	e := NewExtractor(Config{}, nil)
	e.runner = stubRunner{run: func(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
		assert.Equal(t, "pdftotext", name)
		assert.Equal(t, "-", args[len(args)-1])
		return []byte("发票号码：12345678"), nil, nil
	}}

	text, err := e.ExtractText(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "发票号码：12345678", text)
}

func TestExtractTextSurfacesToolFailure(t *testing.T) {
	e := NewExtractor(Config{}, nil)
	e.runner = stubRunner{run: func(context.Context, string, ...string) ([]byte, []byte, error) {
		return nil, []byte("syntax error"), errors.New("exit status 1")
	}}

	_, err := e.ExtractText(context.Background(), "broken.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext")
}

func TestRasterizeFirstPageReadsRenderedPNG(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), []byte("fake-image-data")...)
	e := NewExtractor(Config{DPI: 150}, nil)
	e.runner = stubRunner{run: func(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
		assert.Equal(t, "pdftoppm", name)
		prefix := args[len(args)-1]
		require.NoError(t, os.WriteFile(prefix+"-1.png", png, 0o644))
		return nil, nil, nil
	}}

	img, err := e.RasterizeFirstPage(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, png, img)
}

func TestRasterizeFirstPageNoOutput(t *testing.T) {
	e := NewExtractor(Config{}, nil)
	e.runner = stubRunner{run: func(context.Context, string, ...string) ([]byte, []byte, error) {
		return nil, nil, nil
	}}

	_, err := e.RasterizeFirstPage(context.Background(), "doc.pdf")
	assert.Error(t, err)
}
