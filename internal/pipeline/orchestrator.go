// Package pipeline drives many documents through classify -> text-layer
// extract -> conditional vision fallback -> merge, concurrently, and
// collects the outcomes in input order.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/mingyu-ho/invoice-pipeline/internal/classify"
	"github.com/mingyu-ho/invoice-pipeline/internal/common"
	"github.com/mingyu-ho/invoice-pipeline/internal/extract"
	"github.com/mingyu-ho/invoice-pipeline/internal/llm"

	"github.com/mingyu-ho/invoice-pipeline/constants"
)

type Orchestrator struct {
	logger *slog.Logger
	text   TextExtractor
	raster Rasterizer
	vision llm.VisionExtractor // nil disables the fallback pass

	workers       int
	fallbackSlots chan struct{}
}

type Option func(*Orchestrator)

// WithWorkers bounds the CPU-bound stages (text extraction,
// rasterization).
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithFallbackLimit caps simultaneously in-flight vision calls. Excess
// documents queue on the semaphore instead of firing.
func WithFallbackLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.fallbackSlots = make(chan struct{}, n)
		}
	}
}

// NewOrchestrator wires the extraction chain. vision may be nil for
// text-only runs; the fallback pass is then skipped and unresolved
// documents surface as Incomplete.
func NewOrchestrator(logger *slog.Logger, text TextExtractor, raster Rasterizer, vision llm.VisionExtractor, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		logger:        logger,
		text:          text,
		raster:        raster,
		vision:        vision,
		workers:       4,
		fallbackSlots: make(chan struct{}, 3),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes all documents concurrently and returns one Result per
// document, in the same order as docs. A failure in one document never
// affects the outcome of another.
func (o *Orchestrator) Run(ctx context.Context, docs []SourceDocument) []Result {
	results := make([]Result, len(docs))
	cpu := make(chan struct{}, o.workers)

	var wg sync.WaitGroup
	for i, doc := range docs {
		wg.Add(1)
		go func(i int, doc SourceDocument) {
			defer wg.Done()
			results[i] = o.processOne(ctx, cpu, doc)
		}(i, doc)
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) processOne(ctx context.Context, cpu chan struct{}, doc SourceDocument) Result {
	start := time.Now()
	name := filepath.Base(doc.Path)

	text, err := o.extractText(ctx, cpu, doc.Path)
	if err != nil {
		// No text layer is not fatal: classification defaults to Invoice
		// and the fallback pass may still read the page image.
		o.logger.Warn("pipeline.text.failed", "file", name, "error", err)
	}

	docType := classify.Classify(text)
	if docType == classify.TripSheet {
		o.logger.Info("pipeline.classified.trip_sheet", "file", name)
		return Result{
			Doc:     doc,
			Type:    docType,
			Text:    text,
			Outcome: Outcome{Status: StatusSuccess},
		}
	}

	fields := extract.FromText(text, doc.OriginalName)

	var fallbackErr error
	if o.vision != nil && fields.NeedsFallback() {
		fallbackErr = o.runFallback(ctx, cpu, doc, &fields)
	}

	out := Outcome{Fields: fields, Missing: fields.Missing()}
	switch {
	case fallbackErr != nil && len(out.Missing) > 0:
		// A failed fallback sinks the document only when a required
		// field is still unresolved. An enrichment-only pass (kind or
		// category) that fails leaves the text-layer result standing.
		out.Status = StatusFailed
		out.Err = fallbackErr
	case len(out.Missing) > 0:
		out.Status = StatusIncomplete
	default:
		out.Status = StatusSuccess
	}

	o.logger.Info("pipeline.document.done",
		"file", name,
		"status", string(out.Status),
		"missing", out.Missing,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Result{Doc: doc, Type: docType, Text: text, Outcome: out}
}

func (o *Orchestrator) extractText(ctx context.Context, cpu chan struct{}, path string) (string, error) {
	select {
	case cpu <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-cpu }()
	return o.text.ExtractText(ctx, path)
}

// runFallback rasterizes the first page and asks the vision model for
// the fields the text layer left unresolved. It mutates fields in
// place: absent fields are filled, resolved ones are never overwritten.
// A non-nil return means the external call itself failed; the caller
// decides whether that sinks the document or only loses enrichment.
func (o *Orchestrator) runFallback(ctx context.Context, cpu chan struct{}, doc SourceDocument, fields *extract.Fields) error {
	name := filepath.Base(doc.Path)

	img, err := o.rasterize(ctx, cpu, doc.Path)
	if err != nil {
		// Rasterization failure disables the fallback for this document
		// only; the text-layer result stands.
		o.logger.Warn("pipeline.fallback.raster_failed", "file", name, "error", err)
		return nil
	}

	// Bound the number of in-flight vision calls.
	select {
	case o.fallbackSlots <- struct{}{}:
	case <-ctx.Done():
		return common.WrapError(ctx.Err(), "fallback aborted")
	}
	defer func() { <-o.fallbackSlots }()

	got, _, err := o.vision.ExtractFields(ctx, llm.ExtractRequest{
		ImagePNG:     img,
		FilenameHint: doc.OriginalName,
		Missing:      fields.Missing(),
	})
	if err != nil {
		o.logger.Warn("pipeline.fallback.failed", "file", name, "error", err)
		return common.NewAppError("FALLBACK_ERROR", name, fmt.Errorf("%w: %w", common.ErrFallbackService, err))
	}

	fields.Merge(fieldsFromVision(got))
	o.logger.Info("pipeline.fallback.ok", "file", name, "still_missing", fields.Missing())
	return nil
}

func (o *Orchestrator) rasterize(ctx context.Context, cpu chan struct{}, path string) ([]byte, error) {
	select {
	case cpu <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-cpu }()
	return o.raster.RasterizeFirstPage(ctx, path)
}

// fieldsFromVision maps the model's answer onto extract.Fields with
// fallback provenance.
func fieldsFromVision(v llm.InvoiceFields) extract.Fields {
	var f extract.Fields
	f.Set(constants.FieldKind, v.InvoiceKind, extract.FromOCRFallback)
	f.Set(constants.FieldNumber, v.InvoiceNumber, extract.FromOCRFallback)
	f.Set(constants.FieldAmount, v.Amount, extract.FromOCRFallback)
	f.Set(constants.FieldDate, v.InvoiceDate, extract.FromOCRFallback)
	f.Set(constants.FieldCategory, v.Category, extract.FromOCRFallback)
	f.Set(constants.FieldCurrency, v.Currency, extract.FromOCRFallback)
	return f
}
