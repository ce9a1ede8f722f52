package model

import (
	"encoding/json"
	"time"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// ModelRecord is a trained model: the serialized algorithm section plus the
// inputs it was trained on and how it scored against them.
type ModelRecord struct {
	VersionedRecord
	ID               string            `json:"id"`
	Algorithm        string            `json:"algorithm"`
	AlgorithmVersion string            `json:"algorithm_version"`
	Parameters       map[string]string `json:"parameters"`
	Species          string            `json:"species"`
	Layers           []string          `json:"layers"`
	Categorical      []string          `json:"categorical,omitempty"`
	Mask             string            `json:"mask,omitempty"`
	Presences        int               `json:"presences"`
	Absences         int               `json:"absences"`
	Seed             int64             `json:"seed"`
	Model            json.RawMessage   `json:"model"`
	Evaluation       *Evaluation       `json:"evaluation,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

type Evaluation struct {
	Threshold       float64 `json:"threshold"`
	Accuracy        float64 `json:"accuracy"`
	OmissionError   float64 `json:"omission_error"`
	CommissionError float64 `json:"commission_error"`
	AUC             float64 `json:"auc"`
}

// ProjectionRecord describes one map generated from a stored model.
type ProjectionRecord struct {
	VersionedRecord
	ID        string    `json:"id"`
	ModelID   string    `json:"model_id"`
	Layers    []string  `json:"layers"`
	Mask      string    `json:"mask,omitempty"`
	Output    string    `json:"output"`
	Format    string    `json:"format"`
	Published string    `json:"published,omitempty"`
	Rows      int       `json:"rows"`
	TotalRows int       `json:"total_rows"`
	Aborted   bool      `json:"aborted"`
	Area      AreaCount `json:"area"`
	CreatedAt time.Time `json:"created_at"`
}

type AreaCount struct {
	Total            int     `json:"total"`
	PredictedPresent int     `json:"predicted_present"`
	PredictedAbsent  int     `json:"predicted_absent"`
	NotPredicted     int     `json:"not_predicted"`
	Threshold        float64 `json:"threshold"`
}
