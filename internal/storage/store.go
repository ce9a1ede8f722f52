package storage

import (
	"context"
	"sort"

	"nichemodeller/internal/model"
)

// Store persists trained models, the maps projected from them and the
// progress history of each training run.
type Store interface {
	Init(ctx context.Context) error
	SaveModel(ctx context.Context, record model.ModelRecord) error
	GetModel(ctx context.Context, id string) (model.ModelRecord, bool, error)
	ListModels(ctx context.Context) ([]model.ModelRecord, error)
	DeleteModel(ctx context.Context, id string) error
	SaveProjection(ctx context.Context, record model.ProjectionRecord) error
	GetProjection(ctx context.Context, id string) (model.ProjectionRecord, bool, error)
	ListProjections(ctx context.Context, modelID string) ([]model.ProjectionRecord, error)
	SaveProgressHistory(ctx context.Context, modelID string, history []float64) error
	GetProgressHistory(ctx context.Context, modelID string) ([]float64, bool, error)
}

// Listings are newest first; ids break ties.
func sortModels(records []model.ModelRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}

func sortProjections(records []model.ProjectionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}
