package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mingyu-ho/invoice-pipeline/constants"
	"github.com/mingyu-ho/invoice-pipeline/internal/classify"
	"github.com/mingyu-ho/invoice-pipeline/internal/common"
	"github.com/mingyu-ho/invoice-pipeline/internal/extract"
	"github.com/mingyu-ho/invoice-pipeline/internal/llm"
)

type fakeText struct {
	texts map[string]string // keyed by path
	errs  map[string]error
}

func (f *fakeText) ExtractText(_ context.Context, path string) (string, error) {
	if err := f.errs[path]; err != nil {
		return "", err
	}
	return f.texts[path], nil
}

type fakeRaster struct {
	errs map[string]error
}

func (f *fakeRaster) RasterizeFirstPage(_ context.Context, path string) ([]byte, error) {
	if err := f.errs[path]; err != nil {
		return nil, err
	}
	return []byte("\x89PNG " + path), nil
}

// fakeVision answers by FilenameHint and records the in-flight high
// water mark so tests can assert the concurrency bound.
type fakeVision struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	calls       int

	delays    map[string]time.Duration
	responses map[string]llm.InvoiceFields
	errs      map[string]error
}

func (f *fakeVision) ExtractFields(ctx context.Context, req llm.ExtractRequest) (llm.InvoiceFields, []byte, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay := f.delays[req.FilenameHint]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if err := f.errs[req.FilenameHint]; err != nil {
		return llm.InvoiceFields{}, nil, err
	}
	return f.responses[req.FilenameHint], nil, nil
}

func TestRunPreservesInputOrderUnderReorderedCompletions(t *testing.T) {
	const n = 6
	texts := map[string]string{}
	delays := map[string]time.Duration{}
	responses := map[string]llm.InvoiceFields{}
	var docs []SourceDocument
	for i := 0; i < n; i++ {
		path := fmt.Sprintf("/in/doc%d.pdf", i)
		hint := fmt.Sprintf("doc%d.pdf", i)
		docs = append(docs, SourceDocument{Path: path, OriginalName: hint})
		texts[path] = "发票号码：0000000" + fmt.Sprint(i) // amount missing -> fallback
		// Earlier documents finish later.
		delays[hint] = time.Duration(n-i) * 20 * time.Millisecond
		responses[hint] = llm.InvoiceFields{Amount: fmt.Sprintf("%d.00", i+1)}
	}

	vision := &fakeVision{delays: delays, responses: responses}
	o := NewOrchestrator(nil, &fakeText{texts: texts}, &fakeRaster{}, vision,
		WithWorkers(n), WithFallbackLimit(n))

	results := o.Run(context.Background(), docs)
	require.Len(t, results, n)
	for i, r := range results {
		assert.Equal(t, docs[i].Path, r.Doc.Path, "result %d out of order", i)
		assert.Equal(t, fmt.Sprintf("%d.00", i+1), r.Outcome.Fields.Amount.Value)
	}
}

func TestRunFallbackConcurrencyBound(t *testing.T) {
	const n, limit = 12, 3
	texts := map[string]string{}
	delays := map[string]time.Duration{}
	var docs []SourceDocument
	for i := 0; i < n; i++ {
		path := fmt.Sprintf("/in/doc%d.pdf", i)
		hint := fmt.Sprintf("doc%d.pdf", i)
		docs = append(docs, SourceDocument{Path: path, OriginalName: hint})
		texts[path] = "" // everything needs the fallback
		delays[hint] = 15 * time.Millisecond
	}

	vision := &fakeVision{delays: delays, responses: map[string]llm.InvoiceFields{}}
	o := NewOrchestrator(nil, &fakeText{texts: texts}, &fakeRaster{}, vision,
		WithWorkers(n), WithFallbackLimit(limit))

	o.Run(context.Background(), docs)
	assert.Equal(t, n, vision.calls)
	assert.LessOrEqual(t, vision.maxInFlight, limit,
		"outstanding fallback calls exceeded the configured limit")
}

func TestRunFallbackFailureIsIsolated(t *testing.T) {
	const n = 5
	texts := map[string]string{}
	responses := map[string]llm.InvoiceFields{}
	var docs []SourceDocument
	for i := 0; i < n; i++ {
		path := fmt.Sprintf("/in/doc%d.pdf", i)
		hint := fmt.Sprintf("doc%d.pdf", i)
		docs = append(docs, SourceDocument{Path: path, OriginalName: hint})
		texts[path] = ""
		responses[hint] = llm.InvoiceFields{
			InvoiceNumber: fmt.Sprintf("1000000%d", i),
			Amount:        "10.00",
			InvoiceKind:   "普票",
			Category:      "咨询服务",
		}
	}
	vision := &fakeVision{
		responses: responses,
		errs:      map[string]error{"doc2.pdf": errors.New("authentication failed")},
	}

	o := NewOrchestrator(nil, &fakeText{texts: texts}, &fakeRaster{}, vision,
		WithWorkers(n), WithFallbackLimit(2))
	results := o.Run(context.Background(), docs)

	for i, r := range results {
		if i == 2 {
			assert.Equal(t, StatusFailed, r.Outcome.Status)
			assert.ErrorIs(t, r.Outcome.Err, common.ErrFallbackService)
			continue
		}
		assert.Equal(t, StatusSuccess, r.Outcome.Status, "sibling %d affected", i)
	}
}

func TestRunEnrichmentOnlyFallbackFailureKeepsSuccess(t *testing.T) {
	// Number and amount are resolved from the text layer; the fallback
	// runs only for the absent kind and category. Its failure must not
	// sink an otherwise complete invoice.
	doc := SourceDocument{Path: "/in/a.pdf", OriginalName: "a.pdf"}
	texts := map[string]string{doc.Path: "发票号码：24317000000111\n（小写）￥100.00"}
	vision := &fakeVision{errs: map[string]error{"a.pdf": errors.New("authentication failed")}}

	o := NewOrchestrator(nil, &fakeText{texts: texts}, &fakeRaster{}, vision)
	results := o.Run(context.Background(), []SourceDocument{doc})

	r := results[0]
	assert.Equal(t, 1, vision.calls)
	assert.Equal(t, StatusSuccess, r.Outcome.Status)
	assert.NoError(t, r.Outcome.Err)
	assert.Empty(t, r.Outcome.Missing)
	assert.Equal(t, "24317000000111", r.Outcome.Fields.Number.Value)
	assert.Equal(t, "100.00", r.Outcome.Fields.Amount.Value)
	assert.False(t, r.Outcome.Fields.Category.Present())
}

func TestRunCancellationReturnsAllResultsWithoutHanging(t *testing.T) {
	const n = 6
	texts := map[string]string{}
	delays := map[string]time.Duration{}
	var docs []SourceDocument
	for i := 0; i < n; i++ {
		path := fmt.Sprintf("/in/doc%d.pdf", i)
		hint := fmt.Sprintf("doc%d.pdf", i)
		docs = append(docs, SourceDocument{Path: path, OriginalName: hint})
		texts[path] = "" // everything queues for the fallback
		delays[hint] = 200 * time.Millisecond
	}

	vision := &fakeVision{delays: delays, responses: map[string]llm.InvoiceFields{}}
	o := NewOrchestrator(nil, &fakeText{texts: texts}, &fakeRaster{}, vision,
		WithWorkers(2), WithFallbackLimit(1))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := make(chan []Result, 1)
	go func() { done <- o.Run(ctx, docs) }()

	select {
	case results := <-done:
		require.Len(t, results, n)
		for i, r := range results {
			assert.Equal(t, docs[i].Path, r.Doc.Path, "result %d out of order", i)
			assert.NotEmpty(t, r.Outcome.Status, "result %d has no outcome", i)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunFallbackFillsMissingWithProvenance(t *testing.T) {
	// Text layer has amount but no invoice number (end-to-end scenario:
	// the fallback supplies INV-002).
	doc := SourceDocument{Path: "/in/a.pdf", OriginalName: "a.pdf"}
	texts := map[string]string{doc.Path: "电子发票（普通发票）\n*住宿服务*住宿费\n（小写）￥88.00"}
	vision := &fakeVision{responses: map[string]llm.InvoiceFields{
		"a.pdf": {InvoiceNumber: "INV-002"},
	}}

	o := NewOrchestrator(nil, &fakeText{texts: texts}, &fakeRaster{}, vision)
	results := o.Run(context.Background(), []SourceDocument{doc})

	r := results[0]
	assert.Equal(t, StatusSuccess, r.Outcome.Status)
	assert.Equal(t, "INV-002", r.Outcome.Fields.Number.Value)
	assert.Equal(t, extract.FromOCRFallback, r.Outcome.Fields.Number.Source)
	// Text-layer amount untouched by the fallback merge.
	assert.Equal(t, "88.00", r.Outcome.Fields.Amount.Value)
	assert.Equal(t, extract.FromTextLayer, r.Outcome.Fields.Amount.Source)
}

func TestRunTripSheetShortCircuitsExtraction(t *testing.T) {
	doc := SourceDocument{Path: "/in/t.pdf", OriginalName: "t.pdf"}
	texts := map[string]string{doc.Path: "滴滴出行 行程单 合计 45.60 元"}
	vision := &fakeVision{}

	o := NewOrchestrator(nil, &fakeText{texts: texts}, &fakeRaster{}, vision)
	results := o.Run(context.Background(), []SourceDocument{doc})

	assert.Equal(t, classify.TripSheet, results[0].Type)
	assert.Zero(t, vision.calls, "trip sheets must never reach the fallback extractor")
	assert.False(t, results[0].Outcome.Fields.Number.Present())
}

func TestRunWithoutVisionReportsIncomplete(t *testing.T) {
	doc := SourceDocument{Path: "/in/a.pdf", OriginalName: "a.pdf"}
	texts := map[string]string{doc.Path: "发票号码：12345678"} // no amount

	o := NewOrchestrator(nil, &fakeText{texts: texts}, &fakeRaster{}, nil)
	results := o.Run(context.Background(), []SourceDocument{doc})

	r := results[0]
	assert.Equal(t, StatusIncomplete, r.Outcome.Status)
	assert.Equal(t, []string{constants.FieldAmount}, r.Outcome.Missing)
}

func TestRunRasterFailureKeepsTextLayerResult(t *testing.T) {
	doc := SourceDocument{Path: "/in/a.pdf", OriginalName: "a.pdf"}
	texts := map[string]string{doc.Path: "发票号码：12345678"}
	raster := &fakeRaster{errs: map[string]error{doc.Path: errors.New("poppler missing")}}
	vision := &fakeVision{}

	o := NewOrchestrator(nil, &fakeText{texts: texts}, raster, vision)
	results := o.Run(context.Background(), []SourceDocument{doc})

	r := results[0]
	assert.Equal(t, StatusIncomplete, r.Outcome.Status)
	assert.Equal(t, "12345678", r.Outcome.Fields.Number.Value)
	assert.Zero(t, vision.calls)
}

func TestRunTextExtractionErrorStillClassifiesAsInvoice(t *testing.T) {
	doc := SourceDocument{Path: "/in/a.pdf", OriginalName: "a.pdf"}
	ft := &fakeText{errs: map[string]error{doc.Path: errors.New("broken pdf")}}
	vision := &fakeVision{responses: map[string]llm.InvoiceFields{
		"a.pdf": {InvoiceNumber: "55667788", Amount: "5.00", InvoiceKind: "普票", Category: "办公用品"},
	}}

	o := NewOrchestrator(nil, ft, &fakeRaster{}, vision)
	results := o.Run(context.Background(), []SourceDocument{doc})

	r := results[0]
	assert.Equal(t, classify.Invoice, r.Type)
	assert.Equal(t, StatusSuccess, r.Outcome.Status)
	assert.Equal(t, extract.FromOCRFallback, r.Outcome.Fields.Number.Source)
}
