package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"nichemodeller/internal/model"
)

// exerciseStore runs the same checks against every backend.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, ok, err := store.GetModel(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing model, got ok=%t err=%v", ok, err)
	}

	for i, id := range []string{"m-old", "m-new", "m-tie"} {
		created := base.Add(time.Duration(i) * time.Hour)
		if id == "m-tie" {
			created = base.Add(time.Hour)
		}
		record := model.ModelRecord{
			VersionedRecord: Stamp(),
			ID:              id,
			Algorithm:       "GARP",
			Parameters:      map[string]string{"Resamples": fmt.Sprint(100 * (i + 1))},
			Layers:          []string{"t.asc", "r.asc"},
			Model:           json.RawMessage(`{"name":"Algorithm"}`),
			CreatedAt:       created,
		}
		if err := store.SaveModel(ctx, record); err != nil {
			t.Fatalf("save model %s: %v", id, err)
		}
	}

	updated := model.ModelRecord{
		VersionedRecord: Stamp(),
		ID:              "m-old",
		Algorithm:       "GARP",
		Species:         "updated",
		Model:           json.RawMessage(`{"name":"Algorithm"}`),
		Evaluation:      &model.Evaluation{Accuracy: 0.75, AUC: 0.8},
		CreatedAt:       base,
	}
	if err := store.SaveModel(ctx, updated); err != nil {
		t.Fatalf("upsert model: %v", err)
	}
	loaded, ok, err := store.GetModel(ctx, "m-old")
	if err != nil || !ok {
		t.Fatalf("get model: ok=%t err=%v", ok, err)
	}
	if loaded.Species != "updated" || loaded.Evaluation == nil || loaded.Evaluation.AUC != 0.8 {
		t.Fatalf("unexpected upserted model: %+v", loaded)
	}

	models, err := store.ListModels(ctx)
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	var order []string
	for _, m := range models {
		order = append(order, m.ID)
	}
	if fmt.Sprint(order) != "[m-new m-tie m-old]" {
		t.Fatalf("unexpected model order: %v", order)
	}

	for i, p := range []struct{ id, modelID string }{{"p1", "m-new"}, {"p2", "m-new"}, {"p3", "m-old"}} {
		record := model.ProjectionRecord{
			VersionedRecord: Stamp(),
			ID:              p.id,
			ModelID:         p.modelID,
			Output:          p.id + ".asc",
			Rows:            3,
			TotalRows:       3,
			Area:            model.AreaCount{Total: 12, PredictedPresent: i},
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.SaveProjection(ctx, record); err != nil {
			t.Fatalf("save projection %s: %v", p.id, err)
		}
	}
	projection, ok, err := store.GetProjection(ctx, "p2")
	if err != nil || !ok {
		t.Fatalf("get projection: ok=%t err=%v", ok, err)
	}
	if projection.ModelID != "m-new" || projection.Area.PredictedPresent != 1 {
		t.Fatalf("unexpected projection: %+v", projection)
	}
	forModel, err := store.ListProjections(ctx, "m-new")
	if err != nil {
		t.Fatalf("list projections: %v", err)
	}
	if len(forModel) != 2 || forModel[0].ID != "p2" || forModel[1].ID != "p1" {
		t.Fatalf("unexpected projections for model: %+v", forModel)
	}
	all, err := store.ListProjections(ctx, "")
	if err != nil {
		t.Fatalf("list all projections: %v", err)
	}
	if len(all) != 3 || all[0].ID != "p3" {
		t.Fatalf("unexpected projections: %+v", all)
	}

	if err := store.SaveProgressHistory(ctx, "m-new", []float64{0.1, 0.5, 1}); err != nil {
		t.Fatalf("save history: %v", err)
	}
	history, ok, err := store.GetProgressHistory(ctx, "m-new")
	if err != nil || !ok {
		t.Fatalf("get history: ok=%t err=%v", ok, err)
	}
	if len(history) != 3 || history[2] != 1 {
		t.Fatalf("unexpected history: %v", history)
	}

	if err := store.DeleteModel(ctx, "m-new"); err != nil {
		t.Fatalf("delete model: %v", err)
	}
	if _, ok, _ := store.GetModel(ctx, "m-new"); ok {
		t.Fatal("expected model to be deleted")
	}
	if _, ok, _ := store.GetProgressHistory(ctx, "m-new"); ok {
		t.Fatal("expected history to be deleted with its model")
	}
	remaining, err := store.ListProjections(ctx, "")
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != "p3" {
		t.Fatalf("expected only p3 to remain, got %+v", remaining)
	}
}
