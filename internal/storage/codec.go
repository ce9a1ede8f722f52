package storage

import (
	"encoding/json"
	"errors"

	"nichemodeller/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Stamp returns the versions records are written with.
func Stamp() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeModel(m model.ModelRecord) ([]byte, error) {
	return json.Marshal(m)
}

func DecodeModel(data []byte) (model.ModelRecord, error) {
	var record model.ModelRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.ModelRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.ModelRecord{}, err
	}
	return record, nil
}

func EncodeProjection(p model.ProjectionRecord) ([]byte, error) {
	return json.Marshal(p)
}

func DecodeProjection(data []byte) (model.ProjectionRecord, error) {
	var record model.ProjectionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.ProjectionRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.ProjectionRecord{}, err
	}
	return record, nil
}

func EncodeProgressHistory(history []float64) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeProgressHistory(data []byte) ([]float64, error) {
	var history []float64
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
