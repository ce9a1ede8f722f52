package nichemodeller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"nichemodeller/internal/algorithm"
	"nichemodeller/internal/blob"
	"nichemodeller/internal/config"
	"nichemodeller/internal/environment"
	"nichemodeller/internal/garp"
	"nichemodeller/internal/geo"
	"nichemodeller/internal/model"
	"nichemodeller/internal/occurrence"
	"nichemodeller/internal/projector"
	"nichemodeller/internal/raster"
	"nichemodeller/internal/sample"
	"nichemodeller/internal/sampler"
	"nichemodeller/internal/stats"
	"nichemodeller/internal/storage"
)

const (
	defaultArtifactsDir = "runs"
	defaultDBPath       = "nichemodeller.db"
	defaultAlgorithm    = garp.ID
	defaultEncoding     = "byte_asc"
)

var (
	ErrModelNotFound = errors.New("model not found")
	ErrRunNotFound   = errors.New("run not found")

	// ErrDimensionMismatch reports a projection whose layers do not match
	// the ones the model was trained on.
	ErrDimensionMismatch = sample.ErrDimensionMismatch
)

type Options struct {
	StoreKind string
	// DBPath is the sqlite file; DSN the postgres connection string.
	DBPath       string
	DSN          string
	ArtifactsDir string
	// Blobs receives every projected map when set.
	Blobs      blob.Store
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

type Client struct {
	store        storage.Store
	blobs        blob.Store
	logger       *slog.Logger
	artifactsDir string

	algMetrics  *algorithm.Metrics
	projMetrics *projector.Metrics
}

type LayerRequest struct {
	Path        string
	Categorical bool
}

type CreateRequest struct {
	ModelID     string
	Algorithm   string
	Parameters  map[string]string
	Occurrences string
	Species     string
	CoordSystem string
	Layers      []LayerRequest
	Mask        string
	Seed        int64
	// TestProportion of the points is held out for evaluation. 0 evaluates
	// on the training points.
	TestProportion float64
	Progress       func(float64)
}

type CreateSummary struct {
	ModelID      string
	Algorithm    string
	Presences    int
	Absences     int
	Progress     []float64
	Evaluation   stats.Evaluation
	ArtifactsDir string
}

type ProjectRequest struct {
	ModelID string
	// Layers default to the layers the model was trained on.
	Layers   []LayerRequest
	Mask     string
	Output   string
	Encoding string
	Workers  int
	Progress func(float64)
}

type ProjectSummary struct {
	ProjectionID string
	Output       string
	Published    string
	Result       projector.Result
}

type EvaluateRequest struct {
	ModelID     string
	Occurrences string
	Species     string
	CoordSystem string
	Layers      []LayerRequest
	Mask        string
	Seed        int64
	// ROC tuning; zero values take the package defaults.
	Resolution              int
	BackgroundPoints        int
	UseAbsencesAsBackground bool
}

// RunReport is what a training run left in the artifacts directory.
type RunReport struct {
	Config     stats.RunConfig
	Evaluation stats.Evaluation
	Area       *stats.AreaStats
	Progress   []float64
}

type ModelDetail struct {
	Record      model.ModelRecord
	Progress    []float64
	Projections []model.ProjectionRecord
}

func New(opts Options) (*Client, error) {
	if err := garp.Register(); err != nil && !errors.Is(err, algorithm.ErrAlgorithmExists) {
		return nil, err
	}

	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	location := opts.DBPath
	if storeKind == "postgres" {
		location = opts.DSN
	} else if location == "" {
		location = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store, err := storage.NewStore(storeKind, location)
	if err != nil {
		return nil, err
	}
	algMetrics, err := algorithm.NewMetrics(opts.Registerer)
	if err != nil {
		return nil, err
	}
	projMetrics, err := projector.NewMetrics(opts.Registerer)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		blobs:        opts.Blobs,
		logger:       logger,
		artifactsDir: artifactsDir,
		algMetrics:   algMetrics,
		projMetrics:  projMetrics,
	}, nil
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Algorithms lists the registered algorithms.
func (c *Client) Algorithms() []algorithm.Metadata {
	return algorithm.List()
}

// Create trains a model on the occurrences of one species and stores it
// together with its evaluation and run artifacts.
func (c *Client) Create(ctx context.Context, req CreateRequest) (CreateSummary, error) {
	algID := req.Algorithm
	if algID == "" {
		algID = defaultAlgorithm
	}
	modelID := req.ModelID
	if modelID == "" {
		modelID = uuid.NewString()
	}
	if req.TestProportion < 0 || req.TestProportion >= 1 {
		return CreateSummary{}, fmt.Errorf("invalid test proportion: %g", req.TestProportion)
	}
	logger := c.logger.With("model", modelID, "algorithm", algID)

	s, err := c.openSampler(req.Occurrences, req.Species, req.CoordSystem, req.Layers, req.Mask)
	if err != nil {
		return CreateSummary{}, err
	}
	rng := rand.New(rand.NewSource(seedOrDefault(req.Seed)))
	train, test := s, s
	if req.TestProportion > 0 {
		if train, test, err = s.Split(rng, 1-req.TestProportion); err != nil {
			return CreateSummary{}, err
		}
		if test.NumPresence() == 0 {
			logger.Warn("test split has no presences, evaluating on training points")
			test = train
		}
	}

	alg, err := algorithm.New(algID, algorithm.Options{Logger: logger, Seed: req.Seed})
	if err != nil {
		return CreateSummary{}, err
	}
	params, err := algorithm.Resolve(alg.Metadata(), req.Parameters)
	if err != nil {
		return CreateSummary{}, err
	}

	var progress []float64
	err = algorithm.Run(ctx, alg, train, params, algorithm.RunOptions{
		Logger:  logger,
		Metrics: c.algMetrics,
		Progress: func(p float64) {
			progress = append(progress, p)
			if req.Progress != nil {
				req.Progress(p)
			}
		},
	})
	if err != nil {
		return CreateSummary{}, err
	}

	evaluation, err := c.evaluate(rng, alg, test, stats.RocOptions{Logger: logger})
	if err != nil {
		return CreateSummary{}, err
	}

	payload, err := config.Encode(algorithm.Serialize(alg, params))
	if err != nil {
		return CreateSummary{}, fmt.Errorf("encode model: %w", err)
	}
	meta := alg.Metadata()
	layers := layerPaths(req.Layers)
	now := time.Now().UTC()
	record := model.ModelRecord{
		VersionedRecord:  storage.Stamp(),
		ID:               modelID,
		Algorithm:        meta.ID,
		AlgorithmVersion: meta.Version,
		Parameters:       params.Strings(),
		Species:          req.Species,
		Layers:           layers,
		Categorical:      categoricalPaths(req.Layers),
		Mask:             req.Mask,
		Presences:        s.NumPresence(),
		Absences:         s.NumAbsence(),
		Seed:             req.Seed,
		Model:            payload,
		Evaluation:       recordEvaluation(evaluation),
		CreatedAt:        now,
	}
	if err := c.store.SaveModel(ctx, record); err != nil {
		return CreateSummary{}, err
	}
	if err := c.store.SaveProgressHistory(ctx, modelID, progress); err != nil {
		return CreateSummary{}, err
	}

	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:            modelID,
			ModelID:          modelID,
			Algorithm:        meta.ID,
			AlgorithmVersion: meta.Version,
			Parameters:       params,
			Seed:             req.Seed,
			Species:          req.Species,
			Presences:        record.Presences,
			Absences:         record.Absences,
			Layers:           layers,
			Mask:             req.Mask,
		},
		Progress:   progress,
		Evaluation: evaluation,
		Model:      payload,
	})
	if err != nil {
		return CreateSummary{}, err
	}
	if err := stats.WriteProgressSeries(runDir, progress); err != nil {
		return CreateSummary{}, err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:        modelID,
		ModelID:      modelID,
		Algorithm:    meta.ID,
		Seed:         req.Seed,
		Presences:    record.Presences,
		Absences:     record.Absences,
		Accuracy:     evaluation.Accuracy,
		AUC:          evaluation.AUC,
		CreatedAtUTC: now.Format(time.RFC3339Nano),
	}); err != nil {
		return CreateSummary{}, err
	}

	logger.Info("model created", "presences", record.Presences, "absences", record.Absences, "accuracy", evaluation.Accuracy, "auc", evaluation.AUC)
	return CreateSummary{
		ModelID:      modelID,
		Algorithm:    meta.ID,
		Presences:    record.Presences,
		Absences:     record.Absences,
		Progress:     progress,
		Evaluation:   evaluation,
		ArtifactsDir: runDir,
	}, nil
}

// Project writes the prediction of a stored model over an environment to
// req.Output. An aborted projection is still recorded and returns
// projector.ErrAborted.
func (c *Client) Project(ctx context.Context, req ProjectRequest) (ProjectSummary, error) {
	if req.Output == "" {
		return ProjectSummary{}, fmt.Errorf("output is required")
	}
	record, alg, err := c.restore(ctx, req.ModelID)
	if err != nil {
		return ProjectSummary{}, err
	}
	logger := c.logger.With("model", record.ID)

	layers := req.Layers
	if len(layers) == 0 {
		layers = recordLayers(record)
	}
	mask := req.Mask
	if mask == "" && len(req.Layers) == 0 {
		mask = record.Mask
	}
	env, err := environment.New(environment.Config{Layers: layerSpecs(layers), Mask: mask, Logger: logger})
	if err != nil {
		return ProjectSummary{}, err
	}
	if len(record.Layers) > 0 && env.NumLayers() != len(record.Layers) {
		return ProjectSummary{}, fmt.Errorf("%w: model %s was trained on %d layers, got %d",
			ErrDimensionMismatch, record.ID, len(record.Layers), env.NumLayers())
	}

	encName := req.Encoding
	if encName == "" {
		encName = defaultEncoding
	}
	enc, err := raster.ParseEncoding(encName)
	if err != nil {
		return ProjectSummary{}, err
	}
	format := raster.NewMapFormat(enc)
	ref := env.Layers()[0].Map
	if m := env.Mask(); m != nil {
		ref = m.Map
	}
	format.CopyDefaults(ref, logger)
	out, err := raster.CreateMap(req.Output, format)
	if err != nil {
		return ProjectSummary{}, err
	}

	p, err := projector.New(projector.Config{
		Logger:   logger,
		Progress: req.Progress,
		Workers:  req.Workers,
		Metrics:  c.projMetrics,
	})
	if err != nil {
		return ProjectSummary{}, err
	}
	res, projErr := p.CreateMap(ctx, algorithm.Model(alg), env, out, stats.NewAreaStats(stats.DefaultThreshold))
	if projErr != nil && !errors.Is(projErr, projector.ErrAborted) {
		return ProjectSummary{}, projErr
	}

	summary := ProjectSummary{ProjectionID: uuid.NewString(), Output: req.Output, Result: res}
	if projErr == nil && c.blobs != nil && !strings.HasPrefix(req.Output, raster.MemoryPrefix) {
		info, err := blob.Publish(ctx, c.blobs, record.ID, req.Output, map[string]string{
			"model":      record.ID,
			"projection": summary.ProjectionID,
			"encoding":   enc.String(),
		})
		if err != nil {
			return ProjectSummary{}, err
		}
		summary.Published = info.Location
	}

	projection := model.ProjectionRecord{
		VersionedRecord: storage.Stamp(),
		ID:              summary.ProjectionID,
		ModelID:         record.ID,
		Layers:          layerPaths(layers),
		Mask:            mask,
		Output:          req.Output,
		Format:          enc.String(),
		Published:       summary.Published,
		Rows:            res.Rows,
		TotalRows:       res.TotalRows,
		Aborted:         res.Aborted,
		Area: model.AreaCount{
			Total:            res.Area.Total,
			PredictedPresent: res.Area.PredictedPresent,
			PredictedAbsent:  res.Area.PredictedAbsent,
			NotPredicted:     res.Area.NotPredicted,
			Threshold:        res.Area.Threshold,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.SaveProjection(ctx, projection); err != nil {
		return ProjectSummary{}, err
	}
	if runDir := filepath.Join(c.artifactsDir, record.ID); dirExists(runDir) && projErr == nil {
		if err := stats.WriteAreaStats(runDir, res.Area); err != nil {
			return ProjectSummary{}, err
		}
	}
	return summary, projErr
}

// Evaluate scores a stored model against a set of occurrences.
func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (stats.Evaluation, error) {
	record, alg, err := c.restore(ctx, req.ModelID)
	if err != nil {
		return stats.Evaluation{}, err
	}
	layers := req.Layers
	mask := req.Mask
	if len(layers) == 0 {
		layers = recordLayers(record)
		if mask == "" {
			mask = record.Mask
		}
	}
	s, err := c.openSampler(req.Occurrences, req.Species, req.CoordSystem, layers, mask)
	if err != nil {
		return stats.Evaluation{}, err
	}
	rng := rand.New(rand.NewSource(seedOrDefault(req.Seed)))
	return c.evaluate(rng, alg, s, stats.RocOptions{
		Resolution:              req.Resolution,
		BackgroundPoints:        req.BackgroundPoints,
		UseAbsencesAsBackground: req.UseAbsencesAsBackground,
		Logger:                  c.logger.With("model", record.ID),
	})
}

// Models lists stored models, newest first. limit <= 0 lists all.
func (c *Client) Models(ctx context.Context, limit int) ([]model.ModelRecord, error) {
	records, err := c.store.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (c *Client) Model(ctx context.Context, id string) (ModelDetail, error) {
	record, ok, err := c.store.GetModel(ctx, id)
	if err != nil {
		return ModelDetail{}, err
	}
	if !ok {
		return ModelDetail{}, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	progress, _, err := c.store.GetProgressHistory(ctx, id)
	if err != nil {
		return ModelDetail{}, err
	}
	projections, err := c.store.ListProjections(ctx, id)
	if err != nil {
		return ModelDetail{}, err
	}
	return ModelDetail{Record: record, Progress: progress, Projections: projections}, nil
}

// ExportModel returns the stored record of a model as a self-contained
// document that ImportModel accepts.
func (c *Client) ExportModel(ctx context.Context, id string) ([]byte, error) {
	record, ok, err := c.store.GetModel(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	return storage.EncodeModel(record)
}

// ImportModel stores an exported model and checks that it restores.
func (c *Client) ImportModel(ctx context.Context, data []byte) (model.ModelRecord, error) {
	record, err := storage.DecodeModel(data)
	if err != nil {
		return model.ModelRecord{}, fmt.Errorf("import model: %w", err)
	}
	if record.ID == "" {
		return model.ModelRecord{}, fmt.Errorf("import model: missing id")
	}
	sec, err := config.Decode(record.Model)
	if err != nil {
		return model.ModelRecord{}, fmt.Errorf("import model %s: %w", record.ID, err)
	}
	if _, _, err := algorithm.Restore(sec, algorithm.Options{Logger: c.logger}); err != nil {
		return model.ModelRecord{}, fmt.Errorf("import model %s: %w", record.ID, err)
	}
	if err := c.store.SaveModel(ctx, record); err != nil {
		return model.ModelRecord{}, err
	}
	return record, nil
}

func (c *Client) DeleteModel(ctx context.Context, id string) error {
	return c.store.DeleteModel(ctx, id)
}

// Runs lists the run index, newest first.
func (c *Client) Runs(limit int) ([]stats.RunIndexEntry, error) {
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (c *Client) RunReport(id string) (RunReport, error) {
	cfg, ok, err := stats.ReadRunConfig(c.artifactsDir, id)
	if err != nil {
		return RunReport{}, err
	}
	if !ok {
		return RunReport{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	report := RunReport{Config: cfg}
	if report.Evaluation, _, err = stats.ReadEvaluation(c.artifactsDir, id); err != nil {
		return RunReport{}, err
	}
	area, ok, err := stats.ReadAreaStats(c.artifactsDir, id)
	if err != nil {
		return RunReport{}, err
	}
	if ok {
		report.Area = &area
	}
	if report.Progress, _, err = stats.ReadProgressSeries(c.artifactsDir, id); err != nil {
		return RunReport{}, err
	}
	return report, nil
}

// ExportRun copies the artifacts of a run into outDir/<id>. An empty id
// exports the latest run.
func (c *Client) ExportRun(id, outDir string) (string, error) {
	if id == "" {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return "", fmt.Errorf("%w: no runs available to export", ErrRunNotFound)
		}
		id = entries[0].RunID
	}
	return stats.ExportRunArtifacts(c.artifactsDir, id, outDir)
}

func (c *Client) restore(ctx context.Context, id string) (model.ModelRecord, algorithm.Algorithm, error) {
	if id == "" {
		return model.ModelRecord{}, nil, fmt.Errorf("model id is required")
	}
	record, ok, err := c.store.GetModel(ctx, id)
	if err != nil {
		return model.ModelRecord{}, nil, err
	}
	if !ok {
		return model.ModelRecord{}, nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	sec, err := config.Decode(record.Model)
	if err != nil {
		return model.ModelRecord{}, nil, fmt.Errorf("decode model %s: %w", id, err)
	}
	alg, _, err := algorithm.Restore(sec, algorithm.Options{Logger: c.logger, Seed: record.Seed})
	if err != nil {
		return model.ModelRecord{}, nil, err
	}
	return record, alg, nil
}

func (c *Client) openSampler(occurrences, species, coordSystem string, layers []LayerRequest, mask string) (*sampler.Sampler, error) {
	if occurrences == "" {
		return nil, fmt.Errorf("occurrences file is required")
	}
	if len(layers) == 0 {
		return nil, environment.ErrNoLayers
	}
	if coordSystem == "" {
		coordSystem = geo.DefaultCS
	}
	env, err := environment.New(environment.Config{Layers: layerSpecs(layers), Mask: mask, Logger: c.logger})
	if err != nil {
		return nil, err
	}
	presences, absences, err := occurrence.LoadDelimited(occurrences, coordSystem, species)
	if err != nil {
		return nil, err
	}
	return sampler.New(env, presences, absences, c.logger)
}

func (c *Client) evaluate(rng *rand.Rand, alg algorithm.Algorithm, s *sampler.Sampler, opts stats.RocOptions) (stats.Evaluation, error) {
	m := algorithm.Model(alg)
	cm := stats.NewConfusionMatrix(stats.DefaultThreshold, opts.Logger)
	if err := cm.CalculateSampler(m, s); err != nil {
		return stats.Evaluation{}, err
	}

	roc, err := stats.NewRocCurve(opts)
	if err != nil {
		return stats.Evaluation{}, err
	}
	if err := roc.Calculate(rng, m, s); err != nil {
		c.logger.Warn("roc curve unavailable", "error", err)
	}
	return stats.NewEvaluation(cm, roc), nil
}

func recordEvaluation(e stats.Evaluation) *model.Evaluation {
	return &model.Evaluation{
		Threshold:       e.Threshold,
		Accuracy:        e.Accuracy,
		OmissionError:   e.OmissionError,
		CommissionError: e.CommissionError,
		AUC:             e.AUC,
	}
}

func layerSpecs(layers []LayerRequest) []environment.LayerSpec {
	out := make([]environment.LayerSpec, len(layers))
	for i, l := range layers {
		out[i] = environment.LayerSpec{ID: l.Path, Categorical: l.Categorical}
	}
	return out
}

func categoricalPaths(layers []LayerRequest) []string {
	var out []string
	for _, l := range layers {
		if l.Categorical {
			out = append(out, l.Path)
		}
	}
	return out
}

func recordLayers(record model.ModelRecord) []LayerRequest {
	categorical := make(map[string]bool, len(record.Categorical))
	for _, path := range record.Categorical {
		categorical[path] = true
	}
	out := make([]LayerRequest, len(record.Layers))
	for i, path := range record.Layers {
		out[i] = LayerRequest{Path: path, Categorical: categorical[path]}
	}
	return out
}

func layerPaths(layers []LayerRequest) []string {
	out := make([]string, len(layers))
	for i, l := range layers {
		out[i] = l.Path
	}
	return out
}

func seedOrDefault(seed int64) int64 {
	if seed == 0 {
		return 1
	}
	return seed
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
