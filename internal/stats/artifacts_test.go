package stats

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")

	runID := "run-123"
	artifacts := RunArtifacts{
		Config: RunConfig{
			RunID:      runID,
			Algorithm:  "GARP",
			Parameters: map[string]float64{"MaxGenerations": 40},
			Seed:       1,
			Presences:  9,
			Layers:     []string{"mem://col", "mem://row"},
		},
		Progress:   []float64{0.25, 0.5, 1},
		Evaluation: Evaluation{Accuracy: 0.9, AUC: 0.8},
	}

	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	for _, file := range []string{"config.json", "progress_history.json", "evaluation.json"} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}
	if _, err := os.Stat(filepath.Join(runDir, "area_stats.json")); !os.IsNotExist(err) {
		t.Fatalf("expected no area stats without a projection, got %v", err)
	}

	exportedDir, err := ExportRunArtifacts(baseDir, runID, outDir)
	if err != nil {
		t.Fatalf("export artifacts: %v", err)
	}
	if _, err := os.Stat(filepath.Join(exportedDir, "evaluation.json")); err != nil {
		t.Fatalf("expected exported evaluation: %v", err)
	}

	if err := WriteAreaStats(runDir, AreaStats{Total: 4, PredictedPresent: 1, PredictedAbsent: 2, NotPredicted: 1, Threshold: 0.5}); err != nil {
		t.Fatalf("write area stats: %v", err)
	}
	if err := WriteProgressSeries(runDir, artifacts.Progress); err != nil {
		t.Fatalf("write progress series: %v", err)
	}
	exportedDir, err = ExportRunArtifacts(baseDir, runID, outDir)
	if err != nil {
		t.Fatalf("export artifacts with area stats: %v", err)
	}
	for _, file := range []string{"area_stats.json", "progress_series.csv"} {
		if _, err := os.Stat(filepath.Join(exportedDir, file)); err != nil {
			t.Fatalf("expected exported %s: %v", file, err)
		}
	}

	cfg, ok, err := ReadRunConfig(baseDir, runID)
	if err != nil || !ok {
		t.Fatalf("read run config: ok=%t err=%v", ok, err)
	}
	if cfg.Algorithm != "GARP" || cfg.Parameters["MaxGenerations"] != 40 || len(cfg.Layers) != 2 {
		t.Fatalf("unexpected run config: %+v", cfg)
	}
	ev, ok, err := ReadEvaluation(baseDir, runID)
	if err != nil || !ok || ev.AUC != 0.8 {
		t.Fatalf("read evaluation: %+v ok=%t err=%v", ev, ok, err)
	}
	area, ok, err := ReadAreaStats(baseDir, runID)
	if err != nil || !ok || area.NotPredicted != 1 {
		t.Fatalf("read area stats: %+v ok=%t err=%v", area, ok, err)
	}
	series, ok, err := ReadProgressSeries(baseDir, runID)
	if err != nil || !ok {
		t.Fatalf("read progress series: ok=%t err=%v", ok, err)
	}
	if len(series) != 3 || series[2] != 1 {
		t.Fatalf("unexpected progress series: %v", series)
	}
}

func TestReadMissingArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	if _, ok, err := ReadRunConfig(baseDir, "missing"); ok || err != nil {
		t.Fatalf("expected missing config, ok=%t err=%v", ok, err)
	}
	if _, ok, err := ReadProgressSeries(baseDir, "missing"); ok || err != nil {
		t.Fatalf("expected missing series, ok=%t err=%v", ok, err)
	}
	if _, err := WriteRunArtifacts(baseDir, RunArtifacts{}); err == nil {
		t.Fatal("expected error without run id")
	}
	if _, err := ExportRunArtifacts(baseDir, "missing", t.TempDir()); err == nil {
		t.Fatal("expected error exporting a missing run")
	}
}

func TestRunIndexAppendListAndUpsert(t *testing.T) {
	baseDir := t.TempDir()

	err := AppendRunIndex(baseDir, RunIndexEntry{
		RunID:        "run-1",
		Algorithm:    "GARP",
		Seed:         1,
		Accuracy:     0.80,
		CreatedAtUTC: "2026-02-10T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("append run-1: %v", err)
	}

	err = AppendRunIndex(baseDir, RunIndexEntry{
		RunID:        "run-2",
		Algorithm:    "GARP",
		Seed:         2,
		Accuracy:     0.82,
		CreatedAtUTC: "2026-02-10T11:00:00Z",
	})
	if err != nil {
		t.Fatalf("append run-2: %v", err)
	}

	entries, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].RunID != "run-2" || entries[1].RunID != "run-1" {
		t.Fatalf("unexpected order: %+v", entries)
	}

	err = AppendRunIndex(baseDir, RunIndexEntry{
		RunID:        "run-1",
		Algorithm:    "GARP",
		Seed:         1,
		Accuracy:     0.90,
		CreatedAtUTC: "2026-02-10T12:00:00Z",
	})
	if err != nil {
		t.Fatalf("upsert run-1: %v", err)
	}

	entries, err = ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list after upsert: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after upsert, got %d", len(entries))
	}
	if entries[0].RunID != "run-1" || entries[0].Accuracy != 0.90 {
		t.Fatalf("unexpected upsert result: %+v", entries[0])
	}
}

func TestRunIndexEqualTimestampPrefersLaterAppend(t *testing.T) {
	baseDir := t.TempDir()
	ts := "2026-02-10T12:00:00Z"

	if err := AppendRunIndex(baseDir, RunIndexEntry{RunID: "run-a", CreatedAtUTC: ts}); err != nil {
		t.Fatalf("append run-a: %v", err)
	}
	if err := AppendRunIndex(baseDir, RunIndexEntry{RunID: "run-b", CreatedAtUTC: ts}); err != nil {
		t.Fatalf("append run-b: %v", err)
	}

	entries, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].RunID != "run-b" {
		t.Fatalf("expected latest appended run-b first, got %+v", entries)
	}
}
