package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

const runIndexFile = "run_index.json"

// RunConfig records what a model run was trained on.
type RunConfig struct {
	RunID            string             `json:"run_id"`
	ModelID          string             `json:"model_id,omitempty"`
	Algorithm        string             `json:"algorithm"`
	AlgorithmVersion string             `json:"algorithm_version,omitempty"`
	Parameters       map[string]float64 `json:"parameters,omitempty"`
	Seed             int64              `json:"seed"`
	Species          string             `json:"species,omitempty"`
	Presences        int                `json:"presences"`
	Absences         int                `json:"absences"`
	Layers           []string           `json:"layers"`
	Mask             string             `json:"mask,omitempty"`
}

// Evaluation is the serializable summary of a confusion matrix and an
// optional ROC curve.
type Evaluation struct {
	Threshold       float64    `json:"threshold"`
	Accuracy        float64    `json:"accuracy"`
	OmissionError   float64    `json:"omission_error"`
	CommissionError float64    `json:"commission_error"`
	TruePositives   int        `json:"true_positives"`
	FalsePositives  int        `json:"false_positives"`
	TrueNegatives   int        `json:"true_negatives"`
	FalseNegatives  int        `json:"false_negatives"`
	AUC             float64    `json:"auc"`
	RocApproach     string     `json:"roc_approach,omitempty"`
	RocPoints       []RocPoint `json:"roc_points,omitempty"`
}

func NewEvaluation(cm *ConfusionMatrix, roc *RocCurve) Evaluation {
	out := Evaluation{AUC: -1}
	if cm != nil {
		out.Threshold = cm.Threshold()
		out.Accuracy = cm.Accuracy()
		out.OmissionError = cm.OmissionError()
		out.CommissionError = cm.CommissionError()
		out.TruePositives = cm.TruePositives()
		out.FalsePositives = cm.FalsePositives()
		out.TrueNegatives = cm.TrueNegatives()
		out.FalseNegatives = cm.FalseNegatives()
	}
	if roc != nil && roc.Ready() {
		out.AUC = roc.AUC()
		out.RocApproach = roc.Approach().String()
		out.RocPoints = roc.Points()
	}
	return out
}

type RunArtifacts struct {
	Config     RunConfig       `json:"config"`
	Progress   []float64       `json:"progress"`
	Evaluation Evaluation      `json:"evaluation"`
	AreaStats  *AreaStats      `json:"area_stats,omitempty"`
	Model      json.RawMessage `json:"model,omitempty"`
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	ModelID      string  `json:"model_id,omitempty"`
	Algorithm    string  `json:"algorithm"`
	Seed         int64   `json:"seed"`
	Presences    int     `json:"presences"`
	Absences     int     `json:"absences"`
	Accuracy     float64 `json:"accuracy"`
	AUC          float64 `json:"auc"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

var (
	runFiles      = []string{"config.json", "progress_history.json", "evaluation.json"}
	optionalFiles = []string{"area_stats.json", "model.json", "progress_series.csv"}
)

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "progress_history.json"), map[string]any{"progress_by_iteration": artifacts.Progress, "iterations": len(artifacts.Progress)}); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "evaluation.json"), artifacts.Evaluation); err != nil {
		return "", err
	}
	if artifacts.AreaStats != nil {
		if err := writeJSON(filepath.Join(runDir, "area_stats.json"), artifacts.AreaStats); err != nil {
			return "", err
		}
	}
	if len(artifacts.Model) > 0 {
		if err := os.WriteFile(filepath.Join(runDir, "model.json"), artifacts.Model, 0o644); err != nil {
			return "", err
		}
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the newest entries first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range runFiles {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range optionalFiles {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, filepath.Join(dst, file)); err != nil {
				return "", err
			}
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, "config.json"), &cfg)
	return cfg, ok, err
}

func ReadEvaluation(baseDir, runID string) (Evaluation, bool, error) {
	var ev Evaluation
	ok, err := readJSON(filepath.Join(baseDir, runID, "evaluation.json"), &ev)
	return ev, ok, err
}

func ReadAreaStats(baseDir, runID string) (AreaStats, bool, error) {
	var a AreaStats
	ok, err := readJSON(filepath.Join(baseDir, runID, "area_stats.json"), &a)
	return a, ok, err
}

// WriteAreaStats adds the statistics of a later projection to a run.
func WriteAreaStats(runDir string, a AreaStats) error {
	return writeJSON(filepath.Join(runDir, "area_stats.json"), a)
}

func WriteProgressSeries(runDir string, progress []float64) error {
	path := filepath.Join(runDir, "progress_series.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"iteration", "progress"}); err != nil {
		return err
	}
	for i, p := range progress {
		if err := writer.Write([]string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(p, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadProgressSeries(baseDir, runID string) ([]float64, bool, error) {
	path := filepath.Join(baseDir, runID, "progress_series.csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("progress series header must have at least 2 columns")
	}

	series := make([]float64, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 2 {
			return nil, false, fmt.Errorf("progress series row must have at least 2 columns")
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

func readJSON(path string, into any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, into); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
