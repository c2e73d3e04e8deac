package pipeline

import (
	"context"

	"github.com/mingyu-ho/invoice-pipeline/internal/classify"
	"github.com/mingyu-ho/invoice-pipeline/internal/extract"
)

// SourceDocument identifies one input PDF for a run. Documents are
// renamed to UUID names during ingest; OriginalName keeps the pre-rename
// name as an extraction hint.
type SourceDocument struct {
	Path         string
	OriginalName string
}

// TextExtractor is the blocking text-layer primitive.
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// Rasterizer is the blocking first-page-to-image primitive.
type Rasterizer interface {
	RasterizeFirstPage(ctx context.Context, path string) ([]byte, error)
}

// Status tags an extraction outcome.
type Status string

const (
	StatusSuccess    Status = "SUCCESS"
	StatusIncomplete Status = "INCOMPLETE"
	StatusFailed     Status = "FAILED"
)

// Outcome is the per-document extraction result handed to routing.
type Outcome struct {
	Status  Status
	Fields  extract.Fields // partial fields are kept on failure for diagnostics
	Missing []string       // required fields still absent (Incomplete)
	Err     error          // cause (Failed)
}

// Result pairs a document with its classification and outcome. Results
// are produced in input order.
type Result struct {
	Doc     SourceDocument
	Type    classify.DocType
	Text    string // raw text layer, reused by the trip-sheet parser
	Outcome Outcome
}
