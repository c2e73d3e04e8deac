package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mingyu-ho/invoice-pipeline/constants"
	"github.com/mingyu-ho/invoice-pipeline/internal/classify"
	"github.com/mingyu-ho/invoice-pipeline/internal/common"
	"github.com/mingyu-ho/invoice-pipeline/internal/ingest"
	"github.com/mingyu-ho/invoice-pipeline/internal/llm"
	"github.com/mingyu-ho/invoice-pipeline/internal/llm/openai"
	"github.com/mingyu-ho/invoice-pipeline/internal/pdfio"
	"github.com/mingyu-ho/invoice-pipeline/internal/pipeline"
	"github.com/mingyu-ho/invoice-pipeline/internal/report"
	"github.com/mingyu-ho/invoice-pipeline/internal/route"
	"github.com/mingyu-ho/invoice-pipeline/internal/tripsheet"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		stageStr = flag.String("stage", "", "run up to this stage: text | fallback | rename | report (default report)")
		inputDir = flag.String("input", "", "input directory override (defaults to INVOICE_INPUT_DIR or ./input)")
	)
	flag.Parse()

	stage, ok := constants.ParseStage(*stageStr)
	if !ok {
		printError("Error: unknown --stage %q, use one of: text, fallback, rename, report\n", *stageStr)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if *inputDir != "" {
		cfg.Dirs.Input = *inputDir
	}
	if err := cfg.Validate(stage.AtLeast(constants.StageFallback)); err != nil {
		logger.Error("configuration invalid, aborting batch", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, stage); err != nil {
		logger.Error("batch failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *common.Config, stage constants.Stage) error {
	start := time.Now()

	for _, dir := range []string{cfg.Dirs.Input, cfg.Dirs.Output, cfg.Dirs.Duplicates, cfg.Dirs.TripSheets} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	docs, err := ingest.ScanAndRename(logger, cfg.Dirs.Input)
	if err != nil {
		return fmt.Errorf("scanning input directory: %w", err)
	}
	if len(docs) == 0 {
		logger.Info("no PDF documents found", "dir", cfg.Dirs.Input)
		return nil
	}
	logger.Info("batch starting", "stage", string(stage), "documents", len(docs))

	extractor := pdfio.NewExtractor(pdfio.Config{}, logger)

	var vision llm.VisionExtractor
	if stage.AtLeast(constants.StageFallback) {
		vision = openai.NewClient(openai.Config{
			APIKey:      cfg.Vision.APIKey,
			BaseURL:     cfg.Vision.BaseURL,
			Model:       cfg.Vision.Model,
			Temperature: cfg.Vision.Temperature,
			Timeout:     cfg.Vision.Timeout,
			RetryMax:    cfg.Vision.RetryMax,
			RPS:         cfg.Pipeline.FallbackRPS,
		}, logger)
		logger.Info("vision fallback enabled", "model", cfg.Vision.Model)
	} else {
		logger.Info("vision fallback disabled at this stage")
	}

	orch := pipeline.NewOrchestrator(logger, extractor, extractor, vision,
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithFallbackLimit(cfg.Pipeline.FallbackInFlight))

	results := orch.Run(ctx, docs)

	if err := ctx.Err(); err != nil {
		logger.Warn("run interrupted, skipping routing and reports", "error", err)
		return err
	}

	if !stage.AtLeast(constants.StageRename) {
		logExtractionOnly(logger, results)
		logger.Info("batch complete", "stage", string(stage),
			"documents", len(docs), "duration", time.Since(start).String())
		return nil
	}

	engine := route.NewEngine(logger, cfg.Dirs)
	routed := engine.Route(results)

	var succeeded, incomplete, failed, duplicates, tripSheets int
	agg := report.NewAggregator(logger)
	var sheets []tripsheet.Sheet

	for i, rd := range routed {
		switch rd.Action {
		case route.ActionDuplicate:
			duplicates++
		case route.ActionTripSheet:
			tripSheets++
			sheets = append(sheets, tripsheet.Parse(rd.NewName, rd.Text))
		case route.ActionPrimary:
			agg.Add(rd.NewName, rd.Fields)
		}
		switch results[i].Outcome.Status {
		case pipeline.StatusSuccess:
			succeeded++
		case pipeline.StatusIncomplete:
			incomplete++
		case pipeline.StatusFailed:
			failed++
		}
	}

	if stage.AtLeast(constants.StageReport) {
		for _, s := range sheets {
			jsonPath, err := tripsheet.WriteJSON(cfg.Dirs.TripSheets, s)
			if err != nil {
				logger.Error("writing trip sheet summary", "file", s.FileName, "error", err)
				continue
			}
			agg.LinkTripSheet(s, filepath.Base(jsonPath))
		}

		batch := agg.Report()
		jsonPath := filepath.Join(cfg.Dirs.Output, constants.InvoiceDataJSON)
		if err := report.WriteJSON(jsonPath, batch); err != nil {
			return fmt.Errorf("writing batch summary: %w", err)
		}
		xlsxPath := filepath.Join(cfg.Dirs.Output, constants.InvoiceReportXLSX)
		if err := report.WriteXLSX(xlsxPath, batch); err != nil {
			return fmt.Errorf("writing spreadsheet: %w", err)
		}
		logger.Info("reports written",
			"json", jsonPath, "xlsx", xlsxPath,
			"invoices", len(batch.Records), "total", batch.Total())
	}

	logger.Info("batch complete",
		"stage", string(stage),
		"documents", len(docs),
		"succeeded", succeeded,
		"incomplete", incomplete,
		"failed", failed,
		"duplicates", duplicates,
		"trip_sheets", tripSheets,
		"duration", time.Since(start).String())

	fmt.Printf("Batch complete!\n")
	fmt.Printf("- Documents: %d\n", len(docs))
	fmt.Printf("- Succeeded: %d\n", succeeded)
	fmt.Printf("- Incomplete: %d\n", incomplete)
	fmt.Printf("- Failed: %d\n", failed)
	fmt.Printf("- Duplicates: %d\n", duplicates)
	fmt.Printf("- Trip sheets: %d\n", tripSheets)
	return nil
}

// logExtractionOnly reports per-document outcomes for the stages that
// stop before any file is routed.
func logExtractionOnly(logger *slog.Logger, results []pipeline.Result) {
	for _, r := range results {
		if r.Type == classify.TripSheet {
			logger.Info("document classified", "file", r.Doc.OriginalName, "type", string(r.Type))
			continue
		}
		logger.Info("document extracted",
			"file", r.Doc.OriginalName,
			"status", string(r.Outcome.Status),
			"missing", r.Outcome.Missing,
			"number", r.Outcome.Fields.Number.Value,
			"amount", r.Outcome.Fields.Amount.Value)
	}
}
