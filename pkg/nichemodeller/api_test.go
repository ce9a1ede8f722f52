package nichemodeller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"nichemodeller/internal/blob"
	"nichemodeller/internal/garp"
	"nichemodeller/internal/stats"
)

// writeCornerFixture writes a 10x10 column layer, a row layer and an
// occurrence file with presences in the bottom-left 3x3 block.
func writeCornerFixture(t *testing.T, dir string) ([]LayerRequest, string) {
	t.Helper()
	var layers []LayerRequest
	for _, name := range []string{"col", "row"} {
		var b strings.Builder
		b.WriteString("ncols 10\nnrows 10\nxllcorner 0\nyllcorner 0\ncellsize 1\nNODATA_value -9999\n")
		for r := 0; r < 10; r++ {
			cells := make([]string, 10)
			for c := range cells {
				v := c
				if name == "row" {
					v = 9 - r
				}
				cells[c] = fmt.Sprint(v)
			}
			b.WriteString(strings.Join(cells, " "))
			b.WriteString("\n")
		}
		path := filepath.Join(dir, name+".asc")
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			t.Fatalf("write layer: %v", err)
		}
		layers = append(layers, LayerRequest{Path: path})
	}

	var occ strings.Builder
	occ.WriteString("#id\tlabel\tlon\tlat\tabundance\n")
	for x := 0; x < 3; x++ {
		for y := 0; y < 3; y++ {
			fmt.Fprintf(&occ, "p%d%d\tcorner\t%g\t%g\t1\n", x, y, float64(x)+0.5, float64(y)+0.5)
		}
	}
	for i := 0; i < 4; i++ {
		fmt.Fprintf(&occ, "a%d\tcorner\t%g\t%g\t0\n", i, 9.5-float64(i), 9.5)
	}
	fmt.Fprintf(&occ, "o1\tother\t5.5\t5.5\t1\n")
	occurrences := filepath.Join(dir, "occurrences.txt")
	if err := os.WriteFile(occurrences, []byte(occ.String()), 0o644); err != nil {
		t.Fatalf("write occurrences: %v", err)
	}
	return layers, occurrences
}

func smallParameters() map[string]string {
	return map[string]string{
		garp.ParamMaxGenerations: "30",
		garp.ParamPopulationSize: "20",
		garp.ParamResamples:      "400",
	}
}

func newTestClient(t *testing.T, blobs blob.Store) (*Client, string) {
	t.Helper()
	base := t.TempDir()
	client, err := New(Options{
		StoreKind:    "memory",
		ArtifactsDir: filepath.Join(base, "runs"),
		Blobs:        blobs,
		Registerer:   prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client, base
}

func TestClientCreateProjectEvaluate(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemoryStore()
	client, base := newTestClient(t, blobs)
	layers, occurrences := writeCornerFixture(t, base)

	var reports int
	summary, err := client.Create(ctx, CreateRequest{
		Parameters:  smallParameters(),
		Occurrences: occurrences,
		Species:     "corner",
		Layers:      layers,
		Seed:        42,
		Progress:    func(float64) { reports++ },
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if summary.ModelID == "" || summary.Algorithm != garp.ID {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Presences != 9 || summary.Absences != 4 {
		t.Fatalf("unexpected point counts: presences=%d absences=%d", summary.Presences, summary.Absences)
	}
	if len(summary.Progress) == 0 || reports != len(summary.Progress) || summary.Progress[len(summary.Progress)-1] != 1 {
		t.Fatalf("unexpected progress: reports=%d history=%v", reports, summary.Progress)
	}
	if summary.Evaluation.Accuracy < 0 || summary.Evaluation.Accuracy > 1 {
		t.Fatalf("unexpected accuracy: %+v", summary.Evaluation)
	}
	if summary.Evaluation.RocApproach != "traditional" {
		t.Fatalf("expected traditional roc with absences, got %+v", summary.Evaluation)
	}

	index, err := stats.ListRunIndex(filepath.Join(base, "runs"))
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(index) != 1 || index[0].ModelID != summary.ModelID {
		t.Fatalf("unexpected run index: %+v", index)
	}
	if _, err := os.Stat(filepath.Join(summary.ArtifactsDir, "progress_series.csv")); err != nil {
		t.Fatalf("expected progress series: %v", err)
	}

	output := filepath.Join(base, "out", "corner.asc")
	projection, err := client.Project(ctx, ProjectRequest{ModelID: summary.ModelID, Output: output, Workers: 2})
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if projection.Result.Area.Total != 100 || projection.Result.Rows != 10 {
		t.Fatalf("unexpected projection result: %+v", projection.Result)
	}
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("expected output map: %v", err)
	}
	wantLocation := "memory://" + summary.ModelID + "/corner.asc"
	if projection.Published != wantLocation {
		t.Fatalf("unexpected published location: got=%s want=%s", projection.Published, wantLocation)
	}
	if _, ok, _ := stats.ReadAreaStats(filepath.Join(base, "runs"), summary.ModelID); !ok {
		t.Fatal("expected area stats in run artifacts")
	}

	detail, err := client.Model(ctx, summary.ModelID)
	if err != nil {
		t.Fatalf("model detail: %v", err)
	}
	if len(detail.Projections) != 1 || detail.Projections[0].Published != wantLocation {
		t.Fatalf("unexpected projections: %+v", detail.Projections)
	}
	if len(detail.Progress) != len(summary.Progress) {
		t.Fatalf("unexpected stored progress: %v", detail.Progress)
	}

	evaluation, err := client.Evaluate(ctx, EvaluateRequest{
		ModelID:     summary.ModelID,
		Occurrences: occurrences,
		Species:     "corner",
		Seed:        7,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if evaluation.TruePositives+evaluation.FalseNegatives != 9 {
		t.Fatalf("expected every presence to be scored: %+v", evaluation)
	}

	models, err := client.Models(ctx, 10)
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if len(models) != 1 || models[0].ID != summary.ModelID {
		t.Fatalf("unexpected models: %+v", models)
	}

	if err := client.DeleteModel(ctx, summary.ModelID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := client.Model(ctx, summary.ModelID); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected model not found, got %v", err)
	}
}

func TestClientProjectAborted(t *testing.T) {
	ctx := context.Background()
	client, base := newTestClient(t, nil)
	layers, occurrences := writeCornerFixture(t, base)

	summary, err := client.Create(ctx, CreateRequest{
		ModelID:        "fixed-id",
		Parameters:     smallParameters(),
		Occurrences:    occurrences,
		Species:        "corner",
		Layers:         layers,
		Seed:           3,
		TestProportion: 0.3,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if summary.ModelID != "fixed-id" {
		t.Fatalf("unexpected model id: %s", summary.ModelID)
	}

	cctx, cancel := context.WithCancel(ctx)
	projection, err := client.Project(cctx, ProjectRequest{
		ModelID:  summary.ModelID,
		Output:   filepath.Join(base, "aborted.asc"),
		Progress: func(float64) { cancel() },
	})
	if err == nil {
		t.Fatal("expected aborted projection")
	}
	if !projection.Result.Aborted || projection.Result.Rows != 1 {
		t.Fatalf("unexpected aborted result: %+v", projection.Result)
	}
	detail, err := client.Model(ctx, summary.ModelID)
	if err != nil {
		t.Fatalf("model detail: %v", err)
	}
	if len(detail.Projections) != 1 || !detail.Projections[0].Aborted {
		t.Fatalf("expected aborted projection to be recorded: %+v", detail.Projections)
	}
}

func TestClientRejectsBadRequests(t *testing.T) {
	ctx := context.Background()
	client, base := newTestClient(t, nil)
	layers, occurrences := writeCornerFixture(t, base)

	cases := []struct {
		name string
		req  CreateRequest
	}{
		{name: "no occurrences", req: CreateRequest{Layers: layers}},
		{name: "no layers", req: CreateRequest{Occurrences: occurrences}},
		{name: "unknown algorithm", req: CreateRequest{Algorithm: "NOPE", Occurrences: occurrences, Species: "corner", Layers: layers}},
		{name: "bad parameter", req: CreateRequest{Parameters: map[string]string{garp.ParamPopulationSize: "0"}, Occurrences: occurrences, Species: "corner", Layers: layers}},
		{name: "bad proportion", req: CreateRequest{TestProportion: 1, Occurrences: occurrences, Layers: layers}},
		{name: "unknown species", req: CreateRequest{Occurrences: occurrences, Species: "missing", Layers: layers}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := client.Create(ctx, tc.req); err == nil {
				t.Fatal("expected create error")
			}
		})
	}

	if _, err := client.Project(ctx, ProjectRequest{ModelID: "missing", Output: filepath.Join(base, "x.asc")}); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected model not found, got %v", err)
	}
	if _, err := client.Project(ctx, ProjectRequest{ModelID: "missing"}); err == nil {
		t.Fatal("expected missing output error")
	}
}

func TestClientExportImport(t *testing.T) {
	ctx := context.Background()
	source, base := newTestClient(t, nil)
	layers, occurrences := writeCornerFixture(t, base)

	summary, err := source.Create(ctx, CreateRequest{
		Parameters:  smallParameters(),
		Occurrences: occurrences,
		Species:     "corner",
		Layers:      layers,
		Seed:        5,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	data, err := source.ExportModel(ctx, summary.ModelID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	target, _ := newTestClient(t, nil)
	record, err := target.ImportModel(ctx, data)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if record.ID != summary.ModelID || len(record.Layers) != 2 {
		t.Fatalf("unexpected imported record: %+v", record)
	}
	if _, err := target.Project(ctx, ProjectRequest{ModelID: record.ID, Output: filepath.Join(base, "imported.asc")}); err != nil {
		t.Fatalf("project imported model: %v", err)
	}

	if _, err := target.ImportModel(ctx, []byte(`{"schema_version":1,"codec_version":1,"id":"x","model":{"name":"Algorithm"}}`)); err == nil {
		t.Fatal("expected model without algorithm id to be rejected")
	}
	if _, err := target.ExportModel(ctx, "missing"); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClientRunArtifacts(t *testing.T) {
	client, base := newTestClient(t, nil)
	layers, occurrences := writeCornerFixture(t, base)
	ctx := context.Background()

	if _, err := client.ExportRun("", t.TempDir()); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound before any run, got %v", err)
	}
	if _, err := client.RunReport("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}

	summary, err := client.Create(ctx, CreateRequest{
		ModelID:     "run-m",
		Parameters:  smallParameters(),
		Occurrences: occurrences,
		Species:     "corner",
		Layers:      layers,
		Seed:        9,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	runs, err := client.Runs(10)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-m" {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	report, err := client.RunReport("run-m")
	if err != nil {
		t.Fatalf("run report: %v", err)
	}
	if report.Config.Species != "corner" || report.Config.Presences != 9 {
		t.Fatalf("unexpected run config: %+v", report.Config)
	}
	if len(report.Progress) != len(summary.Progress) || report.Area != nil {
		t.Fatalf("unexpected report: %+v", report)
	}

	exported, err := client.ExportRun("", filepath.Join(base, "exports"))
	if err != nil {
		t.Fatalf("export run: %v", err)
	}
	if filepath.Base(exported) != "run-m" {
		t.Fatalf("unexpected export dir: %s", exported)
	}
}

func TestClientProjectRejectsFewerLayers(t *testing.T) {
	ctx := context.Background()
	client, base := newTestClient(t, nil)
	layers, occurrences := writeCornerFixture(t, base)

	summary, err := client.Create(ctx, CreateRequest{
		Parameters:  smallParameters(),
		Occurrences: occurrences,
		Species:     "corner",
		Layers:      layers,
		Seed:        5,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	output := filepath.Join(base, "single.asc")
	_, err = client.Project(ctx, ProjectRequest{
		ModelID: summary.ModelID,
		Output:  output,
		Layers:  layers[:1],
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected a dimension mismatch, got %v", err)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Fatalf("no map should be written, stat: %v", err)
	}
}
