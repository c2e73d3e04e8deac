// Package route turns ordered extraction results into file-system side
// effects: canonical renames into the output directory, duplicate
// quarantine, and the trip-sheet store. The engine is single-threaded
// on purpose: canonical-duplicate assignment depends on arrival order.
package route

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mingyu-ho/invoice-pipeline/constants"
	"github.com/mingyu-ho/invoice-pipeline/internal/classify"
	"github.com/mingyu-ho/invoice-pipeline/internal/common"
	"github.com/mingyu-ho/invoice-pipeline/internal/extract"
	"github.com/mingyu-ho/invoice-pipeline/internal/pipeline"
)

// Action is the routing decision taken for one document.
type Action string

const (
	ActionPrimary   Action = "PRIMARY"    // renamed into the output directory
	ActionDuplicate Action = "DUPLICATE"  // quarantined as a duplicate invoice
	ActionTripSheet Action = "TRIP_SHEET" // stored with the trip sheets
	ActionSkipped   Action = "SKIPPED"    // failed extraction or failed file op; no report row
)

// RoutedDocument is the engine's verdict for one input document.
type RoutedDocument struct {
	Doc         pipeline.SourceDocument
	Type        classify.DocType
	Action      Action
	Fields      extract.Fields
	Text        string // raw text layer, kept for trip-sheet parsing
	NewName     string // canonical file name (primary) or stored name
	DestPath    string // where the copy landed, empty when skipped
	DuplicateOf string // canonical name this duplicate refers to
	Err         error  // extraction or routing failure for this document
}

// Engine assigns destinations and performs at most one atomic file copy
// per document. Not safe for concurrent use; the orchestrator hands it
// ordered results and it walks them sequentially.
type Engine struct {
	logger *slog.Logger
	dirs   common.DirConfig

	// seen maps invoice number -> canonical new name, registered in
	// arrival order. First seen wins, regardless of completeness.
	seen map[string]string
	seq  int
}

func NewEngine(logger *slog.Logger, dirs common.DirConfig) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger, dirs: dirs, seen: make(map[string]string)}
}

// Route processes results in input order and returns one routed
// document per result. File-system errors are per-document: the run
// continues.
func (e *Engine) Route(results []pipeline.Result) []RoutedDocument {
	out := make([]RoutedDocument, 0, len(results))
	for _, r := range results {
		out = append(out, e.routeOne(r))
	}
	return out
}

func (e *Engine) routeOne(r pipeline.Result) RoutedDocument {
	name := filepath.Base(r.Doc.Path)
	rd := RoutedDocument{Doc: r.Doc, Type: r.Type, Fields: r.Outcome.Fields, Text: r.Text}

	// Trip sheets bypass invoice handling entirely, whatever the
	// extraction outcome was.
	if r.Type == classify.TripSheet {
		dest := filepath.Join(e.dirs.TripSheets, name)
		if err := copyFileAtomic(r.Doc.Path, dest); err != nil {
			e.logger.Warn("route.trip_sheet.copy_failed", "file", name, "error", err)
			rd.Action = ActionSkipped
			rd.Err = common.NewAppError("ROUTING_ERROR", name, fmt.Errorf("%w: %w", common.ErrRoutingIO, err))
			return rd
		}
		e.logger.Info("route.trip_sheet.stored", "file", name)
		rd.Action = ActionTripSheet
		rd.NewName = name
		rd.DestPath = dest
		return rd
	}

	if r.Outcome.Status == pipeline.StatusFailed {
		e.logger.Warn("route.unprocessed", "file", name, "error", r.Outcome.Err)
		rd.Action = ActionSkipped
		rd.Err = r.Outcome.Err
		return rd
	}

	number := r.Outcome.Fields.Number.Value
	if number != "" {
		if canonical, dup := e.seen[number]; dup {
			return e.quarantineDuplicate(rd, name, number, canonical)
		}
	} else {
		// Documents with no invoice number bypass deduplication: they
		// can never be identified as duplicates of anything.
		e.logger.Warn("route.no_invoice_number", "file", name)
	}

	return e.toPrimary(rd, name, number)
}

func (e *Engine) quarantineDuplicate(rd RoutedDocument, name, number, canonical string) RoutedDocument {
	dest := uniquePath(e.dirs.Duplicates, name, "_dup")
	if err := copyFileAtomic(rd.Doc.Path, dest); err != nil {
		e.logger.Warn("route.duplicate.copy_failed", "file", name, "error", err)
		rd.Action = ActionSkipped
		rd.Err = common.NewAppError("ROUTING_ERROR", name, fmt.Errorf("%w: %w", common.ErrRoutingIO, err))
		return rd
	}
	e.logger.Info("route.duplicate.quarantined",
		"file", name, "invoice_number", number, "duplicate_of", canonical)
	rd.Action = ActionDuplicate
	rd.NewName = filepath.Base(dest)
	rd.DestPath = dest
	rd.DuplicateOf = canonical
	return rd
}

func (e *Engine) toPrimary(rd RoutedDocument, name, number string) RoutedDocument {
	newName := e.canonicalName(rd.Fields)
	dest := filepath.Join(e.dirs.Output, newName)
	if _, err := os.Stat(dest); err == nil {
		dest = uniquePath(e.dirs.Output, newName, "_")
		newName = filepath.Base(dest)
	}

	if err := copyFileAtomic(rd.Doc.Path, dest); err != nil {
		e.logger.Warn("route.primary.copy_failed", "file", name, "error", err)
		rd.Action = ActionSkipped
		rd.Err = common.NewAppError("ROUTING_ERROR", name, fmt.Errorf("%w: %w", common.ErrRoutingIO, err))
		return rd
	}

	// Register only after the copy landed, so a failed document does
	// not claim canonical status for its number.
	if number != "" {
		e.seen[number] = newName
	}
	e.seq++

	e.logger.Info("route.primary.stored", "file", name, "new_name", newName)
	rd.Action = ActionPrimary
	rd.NewName = newName
	rd.DestPath = dest
	return rd
}

// canonicalName derives the run-local output name:
// <seq>-<category>_<amount>元.pdf
func (e *Engine) canonicalName(f extract.Fields) string {
	category := f.Category.Value
	if category == "" {
		category = "未知类别"
	}
	amount := f.Amount.Value
	if amount == "" {
		amount = "未知金额"
	}
	base := fmt.Sprintf("%d-%s_%s元", e.seq+1, constants.SanitizeFilename(category), amount)
	return base + ".pdf"
}

// uniquePath returns dir/name, or dir/<base><sep>N<ext> for the first N
// that does not collide with an existing file.
func uniquePath(dir, name, sep string) string {
	dest := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	base := name[:len(name)-len(ext)]
	for n := 1; ; n++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			return dest
		}
		dest = filepath.Join(dir, fmt.Sprintf("%s%s%d%s", base, sep, n, ext))
	}
}
