package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"nichemodeller/internal/blob"
	"nichemodeller/internal/stats"
	"nichemodeller/internal/storage"
	niche "nichemodeller/pkg/nichemodeller"
)

const (
	artifactsDir = "runs"
	exportsDir   = "exports"
	publishRoot  = "published"
)

var stdout io.Writer = os.Stdout

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "algorithms":
		return runAlgorithms(ctx, args[1:])
	case "create":
		return runCreate(ctx, args[1:])
	case "project":
		return runProject(ctx, args[1:])
	case "evaluate":
		return runEvaluate(ctx, args[1:])
	case "models":
		return runModels(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "delete":
		return runDelete(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "report":
		return runReport(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

// clientFlags are the backend flags shared by every command.
type clientFlags struct {
	storeKind   *string
	dbPath      *string
	dsn         *string
	artifacts   *string
	logLevel    *string
	publish     *string
	publishRoot *string
}

func addClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		storeKind:   fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite|postgres"),
		dbPath:      fs.String("db-path", "nichemodeller.db", "sqlite database path"),
		dsn:         fs.String("dsn", "", "postgres connection string"),
		artifacts:   fs.String("artifacts", artifactsDir, "run artifacts directory"),
		logLevel:    fs.String("log-level", "warn", "log level: debug|info|warn|error"),
		publish:     fs.String("publish", "", "publish projected maps: fs|s3|memory (empty disables)"),
		publishRoot: fs.String("publish-root", publishRoot, "root directory for --publish fs"),
	}
}

func (f clientFlags) open(ctx context.Context) (*niche.Client, error) {
	logger, err := newLogger(*f.logLevel)
	if err != nil {
		return nil, err
	}
	var blobs blob.Store
	if *f.publish != "" {
		blobs, err = blob.Open(ctx, *f.publish, *f.publishRoot)
		if err != nil {
			return nil, err
		}
	}
	client, err := niche.New(niche.Options{
		StoreKind:    *f.storeKind,
		DBPath:       *f.dbPath,
		DSN:          *f.dsn,
		ArtifactsDir: *f.artifacts,
		Blobs:        blobs,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

func runAlgorithms(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("algorithms", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "emit algorithm metadata as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := niche.New(niche.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	algs := client.Algorithms()
	if *jsonOut {
		return writeJSON(algs)
	}
	for _, alg := range algs {
		fmt.Fprintf(stdout, "id=%s name=%q version=%s parameters=%d\n", alg.ID, alg.Name, alg.Version, len(alg.Parameters))
		for _, p := range alg.Parameters {
			fmt.Fprintf(stdout, "  %s type=%s default=%g\n", p.ID, p.Type, p.Default)
		}
	}
	return nil
}

func runCreate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional training config JSON path")
	modelID := fs.String("model-id", "", "explicit model id (optional)")
	algorithmID := fs.String("algorithm", "", "algorithm id (default GARP)")
	occurrences := fs.String("occurrences", "", "occurrences file (tab or comma delimited)")
	species := fs.String("species", "", "species label to select from the occurrences file")
	coordSystem := fs.String("coord-system", "", "occurrence coordinate system (default WGS84)")
	layers := fs.String("layers", "", "comma-separated continuous layer paths")
	categorical := fs.String("categorical", "", "comma-separated categorical layer paths")
	mask := fs.String("mask", "", "optional mask layer path")
	seed := fs.Int64("seed", 1, "rng seed")
	testProportion := fs.Float64("test-proportion", 0, "fraction of points held out for evaluation")
	out := fs.String("out", "", "write the trained model to this file")
	jsonOut := fs.Bool("json", false, "emit summary as JSON")
	params := paramFlags{}
	fs.Var(params, "param", "algorithm parameter id=value (repeatable)")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	var cfg createConfig
	if *configPath != "" {
		loaded, err := loadCreateConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	req := &cfg.Request
	if set["model-id"] || req.ModelID == "" {
		req.ModelID = *modelID
	}
	if set["algorithm"] || req.Algorithm == "" {
		req.Algorithm = *algorithmID
	}
	if set["occurrences"] || req.Occurrences == "" {
		req.Occurrences = *occurrences
	}
	if set["species"] || req.Species == "" {
		req.Species = *species
	}
	if set["coord-system"] || req.CoordSystem == "" {
		req.CoordSystem = *coordSystem
	}
	if set["mask"] || req.Mask == "" {
		req.Mask = *mask
	}
	if set["seed"] || req.Seed == 0 {
		req.Seed = *seed
	}
	if set["test-proportion"] {
		req.TestProportion = *testProportion
	}
	if set["layers"] || set["categorical"] || len(req.Layers) == 0 {
		req.Layers = parseLayerFlags(*layers, *categorical)
	}
	if len(params) > 0 && req.Parameters == nil {
		req.Parameters = map[string]string{}
	}
	for id, v := range params {
		req.Parameters[id] = v
	}
	if set["out"] || cfg.Out == "" {
		cfg.Out = *out
	}
	if req.Occurrences == "" {
		return errors.New("create requires --occurrences")
	}
	if len(req.Layers) == 0 {
		return errors.New("create requires --layers or --categorical")
	}

	client, err := cf.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Create(ctx, *req)
	if err != nil {
		return err
	}
	if cfg.Out != "" {
		data, err := client.ExportModel(ctx, summary.ModelID)
		if err != nil {
			return err
		}
		if err := os.WriteFile(cfg.Out, data, 0o644); err != nil {
			return fmt.Errorf("write model file: %w", err)
		}
	}

	if *jsonOut {
		return writeJSON(summary)
	}
	fmt.Fprintf(stdout, "model_id=%s algorithm=%s presences=%d absences=%d generations=%d\n",
		summary.ModelID, summary.Algorithm, summary.Presences, summary.Absences, len(summary.Progress))
	printEvaluation(summary.Evaluation)
	if cfg.Out != "" {
		fmt.Fprintf(stdout, "model_file=%s\n", cfg.Out)
	}
	return nil
}

func runProject(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("project", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional projection config JSON path")
	modelID := fs.String("model-id", "", "stored model id")
	modelFile := fs.String("model", "", "model file written by create --out")
	layers := fs.String("layers", "", "comma-separated continuous projection layers (default: training layers)")
	categorical := fs.String("categorical", "", "comma-separated categorical projection layers")
	mask := fs.String("mask", "", "optional projection mask")
	output := fs.String("output", "", "output map path (.asc) or mem:// name")
	encoding := fs.String("encoding", "", "output encoding: floating_asc|byte_asc|grey_byte|grey_bmp|grey_percent")
	workers := fs.Int("workers", 1, "row worker count")
	jsonOut := fs.Bool("json", false, "emit summary as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	var cfg projectConfig
	if *configPath != "" {
		loaded, err := loadProjectConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	req := &cfg.Request
	if set["model-id"] || req.ModelID == "" {
		req.ModelID = *modelID
	}
	if set["model"] || cfg.ModelFile == "" {
		cfg.ModelFile = *modelFile
	}
	if set["layers"] || set["categorical"] || len(req.Layers) == 0 {
		req.Layers = parseLayerFlags(*layers, *categorical)
	}
	if set["mask"] || req.Mask == "" {
		req.Mask = *mask
	}
	if set["output"] || req.Output == "" {
		req.Output = *output
	}
	if set["encoding"] || req.Encoding == "" {
		req.Encoding = *encoding
	}
	if set["workers"] || req.Workers == 0 {
		req.Workers = *workers
	}
	if !set["publish"] && cfg.Publish != "" {
		*cf.publish = cfg.Publish
	}
	if req.Output == "" {
		return errors.New("project requires --output")
	}

	client, err := cf.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := resolveModel(ctx, client, &req.ModelID, cfg.ModelFile); err != nil {
		return err
	}
	summary, err := client.Project(ctx, *req)
	if err != nil {
		return err
	}

	if *jsonOut {
		return writeJSON(summary)
	}
	area := summary.Result.Area
	fmt.Fprintf(stdout, "projection_id=%s model_id=%s output=%s rows=%d\n",
		summary.ProjectionID, req.ModelID, summary.Output, summary.Result.Rows)
	fmt.Fprintf(stdout, "area total=%d present=%d absent=%d not_predicted=%d threshold=%g\n",
		area.Total, area.PredictedPresent, area.PredictedAbsent, area.NotPredicted, area.Threshold)
	if summary.Published != "" {
		fmt.Fprintf(stdout, "published=%s\n", summary.Published)
	}
	return nil
}

func runEvaluate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	modelID := fs.String("model-id", "", "stored model id")
	modelFile := fs.String("model", "", "model file written by create --out")
	occurrences := fs.String("occurrences", "", "occurrences file to score against")
	species := fs.String("species", "", "species label to select from the occurrences file")
	coordSystem := fs.String("coord-system", "", "occurrence coordinate system (default WGS84)")
	layers := fs.String("layers", "", "comma-separated continuous layers (default: training layers)")
	categorical := fs.String("categorical", "", "comma-separated categorical layers")
	mask := fs.String("mask", "", "optional mask layer path")
	seed := fs.Int64("seed", 1, "rng seed for background points")
	resolution := fs.Int("resolution", 0, "ROC resolution (0 uses default)")
	background := fs.Int("background", 0, "ROC background points (0 uses default)")
	absencesAsBackground := fs.Bool("absences-as-background", false, "use absence points as ROC background")
	jsonOut := fs.Bool("json", false, "emit evaluation as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *occurrences == "" {
		return errors.New("evaluate requires --occurrences")
	}

	client, err := cf.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	id := *modelID
	if err := resolveModel(ctx, client, &id, *modelFile); err != nil {
		return err
	}
	eval, err := client.Evaluate(ctx, niche.EvaluateRequest{
		ModelID:                 id,
		Occurrences:             *occurrences,
		Species:                 *species,
		CoordSystem:             *coordSystem,
		Layers:                  parseLayerFlags(*layers, *categorical),
		Mask:                    *mask,
		Seed:                    *seed,
		Resolution:              *resolution,
		BackgroundPoints:        *background,
		UseAbsencesAsBackground: *absencesAsBackground,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(eval)
	}
	fmt.Fprintf(stdout, "model_id=%s\n", id)
	printEvaluation(eval)
	return nil
}

func runModels(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max models to list")
	jsonOut := fs.Bool("json", false, "emit models list as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := cf.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	records, err := client.Models(ctx, *limit)
	if err != nil {
		return err
	}
	if *jsonOut {
		type modelItem struct {
			ID           string  `json:"id"`
			Algorithm    string  `json:"algorithm"`
			Species      string  `json:"species"`
			Presences    int     `json:"presences"`
			Absences     int     `json:"absences"`
			CreatedAtUTC string  `json:"created_at_utc"`
			AUC          float64 `json:"auc"`
		}
		items := make([]modelItem, 0, len(records))
		for _, r := range records {
			item := modelItem{
				ID:           r.ID,
				Algorithm:    r.Algorithm,
				Species:      r.Species,
				Presences:    r.Presences,
				Absences:     r.Absences,
				CreatedAtUTC: r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
				AUC:          -1,
			}
			if r.Evaluation != nil {
				item.AUC = r.Evaluation.AUC
			}
			items = append(items, item)
		}
		return writeJSON(items)
	}
	if len(records) == 0 {
		fmt.Fprintln(stdout, "no models found")
		return nil
	}
	for _, r := range records {
		fmt.Fprintf(stdout, "model_id=%s algorithm=%s species=%q presences=%d absences=%d created_at=%s\n",
			r.ID, r.Algorithm, r.Species, r.Presences, r.Absences, r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	modelID := fs.String("model-id", "", "stored model id")
	jsonOut := fs.Bool("json", false, "emit model detail as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *modelID == "" {
		return errors.New("show requires --model-id")
	}

	client, err := cf.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	detail, err := client.Model(ctx, *modelID)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(detail)
	}
	r := detail.Record
	fmt.Fprintf(stdout, "model_id=%s algorithm=%s version=%s species=%q\n", r.ID, r.Algorithm, r.AlgorithmVersion, r.Species)
	fmt.Fprintf(stdout, "layers=%s\n", strings.Join(r.Layers, ","))
	if len(r.Categorical) > 0 {
		fmt.Fprintf(stdout, "categorical=%s\n", strings.Join(r.Categorical, ","))
	}
	if r.Evaluation != nil {
		fmt.Fprintf(stdout, "accuracy=%.4f omission=%.4f commission=%.4f auc=%.4f\n",
			r.Evaluation.Accuracy, r.Evaluation.OmissionError, r.Evaluation.CommissionError, r.Evaluation.AUC)
	}
	if n := len(detail.Progress); n > 0 {
		fmt.Fprintf(stdout, "progress_points=%d final=%.4f\n", n, detail.Progress[n-1])
	}
	for _, p := range detail.Projections {
		fmt.Fprintf(stdout, "projection_id=%s output=%s rows=%d/%d aborted=%t present=%d\n",
			p.ID, p.Output, p.Rows, p.TotalRows, p.Aborted, p.Area.PredictedPresent)
	}
	return nil
}

func runDelete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	modelID := fs.String("model-id", "", "stored model id")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *modelID == "" {
		return errors.New("delete requires --model-id")
	}

	client, err := cf.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.DeleteModel(ctx, *modelID); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "deleted model_id=%s\n", *modelID)
	return nil
}

// artifactsClient opens a facade that only reads the artifacts directory.
func artifactsClient(dir string) (*niche.Client, error) {
	return niche.New(niche.Options{StoreKind: "memory", ArtifactsDir: dir})
}

func runRuns(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	artifacts := fs.String("artifacts", artifactsDir, "run artifacts directory")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := artifactsClient(*artifacts)
	if err != nil {
		return err
	}
	entries, err := client.Runs(*limit)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(stdout, "run_id=%s algorithm=%s created_at=%s seed=%d presences=%d absences=%d accuracy=%.4f auc=%.4f\n",
			e.RunID, e.Algorithm, e.CreatedAtUTC, e.Seed, e.Presences, e.Absences, e.Accuracy, e.AUC)
	}
	return nil
}

func runReport(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	artifacts := fs.String("artifacts", artifactsDir, "run artifacts directory")
	jsonOut := fs.Bool("json", false, "emit run report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("report requires --run-id")
	}

	client, err := artifactsClient(*artifacts)
	if err != nil {
		return err
	}
	report, err := client.RunReport(*runID)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(report)
	}
	cfg := report.Config
	fmt.Fprintf(stdout, "run_id=%s algorithm=%s species=%q seed=%d presences=%d absences=%d\n",
		cfg.RunID, cfg.Algorithm, cfg.Species, cfg.Seed, cfg.Presences, cfg.Absences)
	printEvaluation(report.Evaluation)
	if n := len(report.Progress); n > 0 {
		fmt.Fprintf(stdout, "iterations=%d final_progress=%.4f\n", n, report.Progress[n-1])
	}
	if a := report.Area; a != nil {
		fmt.Fprintf(stdout, "area total=%d present=%d absent=%d not_predicted=%d\n",
			a.Total, a.PredictedPresent, a.PredictedAbsent, a.NotPredicted)
	}
	return nil
}

func runExport(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from the run index")
	artifacts := fs.String("artifacts", artifactsDir, "run artifacts directory")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := artifactsClient(*artifacts)
	if err != nil {
		return err
	}
	exported, err := client.ExportRun(*runID, *outDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported to=%s\n", filepath.Clean(exported))
	return nil
}

// resolveModel imports a model file into the client store when given one.
func resolveModel(ctx context.Context, client *niche.Client, id *string, file string) error {
	if file == "" {
		if *id == "" {
			return errors.New("requires --model-id or --model")
		}
		return nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read model file: %w", err)
	}
	record, err := client.ImportModel(ctx, data)
	if err != nil {
		return err
	}
	if *id != "" && *id != record.ID {
		return fmt.Errorf("model file holds %s, not %s", record.ID, *id)
	}
	*id = record.ID
	return nil
}

func printEvaluation(e stats.Evaluation) {
	fmt.Fprintf(stdout, "threshold=%g accuracy=%.4f omission=%.4f commission=%.4f auc=%.4f\n",
		e.Threshold, e.Accuracy, e.OmissionError, e.CommissionError, e.AUC)
	fmt.Fprintf(stdout, "confusion tp=%d fp=%d tn=%d fn=%d\n",
		e.TruePositives, e.FalsePositives, e.TrueNegatives, e.FalseNegatives)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: nichectl <algorithms|create|project|evaluate|models|show|delete|runs|report|export> [flags]", msg)
}
