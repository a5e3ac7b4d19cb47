package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/isbat-dev/timetable-core/internal/loader"
	"github.com/isbat-dev/timetable-core/internal/service"
	"github.com/isbat-dev/timetable-core/pkg/config"
	"github.com/isbat-dev/timetable-core/pkg/export"
	"github.com/isbat-dev/timetable-core/pkg/logger"
	"github.com/isbat-dev/timetable-core/pkg/metrics"
)

func main() {
	term := flag.Int("term", 1, "academic term to schedule (1 or 2)")
	dataPath := flag.String("data", "dataset.json", "path to the scheduling dataset")
	exportDir := flag.String("export", "", "directory for generated artefacts (overrides EXPORT_DIR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *exportDir != "" {
		cfg.Export.Dir = *exportDir
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if *term != 1 && *term != 2 {
		logr.Fatal("term must be 1 or 2", zap.Int("term", *term))
	}

	ds, err := loader.Load(*dataPath)
	if err != nil {
		logr.Fatal("failed to load dataset", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	scheduler := service.NewSchedulerService(cfg, validator.New(), logr, m)

	result, err := scheduler.Run(ctx, ds.Request(*term))
	if err != nil {
		logr.Fatal("scheduling run failed", zap.Error(err))
	}

	logr.Info("run finished",
		zap.String("run_id", result.Stats.RunID),
		zap.Int("assignments", len(result.Assignments)),
		zap.Bool("best_partial", result.Stats.BestPartial),
		zap.Float64("fitness", result.Stats.BestFitness),
		zap.Int("critical_violations", result.Report.CriticalCount()))
	for _, id := range result.Stats.Unassigned {
		logr.Warn("unassigned variable",
			zap.String("variable", id),
			zap.String("reason", result.Stats.UnassignedReasons[id]))
	}

	if err := writeArtefacts(cfg, scheduler, result, *term); err != nil {
		logr.Fatal("failed to write artefacts", zap.Error(err))
	}

	if result.Report.CriticalCount() > 0 {
		fmt.Fprintf(os.Stderr, "timetable has %d critical violations\n", result.Report.CriticalCount())
		os.Exit(1)
	}
}

func writeArtefacts(cfg *config.Config, scheduler *service.SchedulerService, result *service.Result, term int) error {
	dataset := scheduler.TimetableDataset(result)

	csvPath := filepath.Join(cfg.Export.Dir, service.TimetableFileName(term))
	if err := export.NewCSVExporter().WriteFile(csvPath, dataset); err != nil {
		return err
	}

	violationsPath := filepath.Join(cfg.Export.Dir, service.ViolationsFileName(term))
	if err := export.WriteJSON(violationsPath, result.Report); err != nil {
		return err
	}

	if cfg.Export.PDF {
		pdfPath := filepath.Join(cfg.Export.Dir, fmt.Sprintf("TIMETABLE_TERM%d_COMPLETE.pdf", term))
		title := fmt.Sprintf("Timetable - Term %d", term)
		if err := export.NewPDFExporter(true).WriteFile(pdfPath, dataset, title); err != nil {
			return err
		}
	}
	return nil
}
