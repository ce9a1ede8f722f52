// Package projector writes the predictions of a fitted model over every
// cell of an output map.
package projector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"nichemodeller/internal/predict"
	"nichemodeller/internal/raster"
	"nichemodeller/internal/sample"
	"nichemodeller/internal/stats"
)

var ErrAborted = errors.New("projection aborted")

// ProgressFunc receives the share of rows written, ending with 1 on
// completion.
type ProgressFunc func(progress float64)

// Aborter is polled after every row.
type Aborter interface {
	Abort() bool
}

type AbortFunc func() bool

func (f AbortFunc) Abort() bool { return f() }

// Environment supplies the samples the model scores. It receives the
// model normalization before the first cell.
type Environment interface {
	predict.Target
	NumLayers() int
	Get(lon, lat float64) sample.Sample
}

type Config struct {
	Logger   *slog.Logger
	Progress ProgressFunc
	Aborter  Aborter
	// Workers > 1 scores rows concurrently. Rows are still written in order
	// by a single goroutine.
	Workers int
	Metrics *Metrics
}

type Projector struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) (*Projector, error) {
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("invalid workers: %d", cfg.Workers)
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Projector{cfg: cfg, logger: logger}, nil
}

// Result describes what a projection wrote.
type Result struct {
	Rows      int             `json:"rows"`
	TotalRows int             `json:"total_rows"`
	Area      stats.AreaStats `json:"area"`
	Aborted   bool            `json:"aborted"`
}

// cell is one scored output cell. A NaN value marks missing environment.
type cell struct {
	lon, lat float64
	value    float64
}

type scoredRow struct {
	idx   int
	cells []cell
	err   error
}

// CreateMap scores every cell of m with model and writes the predictions,
// clamped to [0,1], through the map format scale. Cells without an
// environment sample get the no-data value. area is reset with its own
// threshold; nil uses stats.DefaultThreshold.
//
// An abort or a canceled ctx stops after the current row and returns
// ErrAborted. Rows already written are kept and the map is finished.
func (p *Projector) CreateMap(ctx context.Context, model predict.Model, env Environment, m *raster.Map, area *stats.AreaStats) (Result, error) {
	if d, ok := model.(predict.Dimensioned); ok && d.Dimension() > 0 && d.Dimension() != env.NumLayers() {
		return Result{}, fmt.Errorf("%w: model has %d dimensions, environment %d layers",
			sample.ErrDimensionMismatch, d.Dimension(), env.NumLayers())
	}
	if err := model.SetNormalization(env); err != nil {
		return Result{}, fmt.Errorf("model normalization: %w", err)
	}
	if area == nil {
		area = stats.NewAreaStats(stats.DefaultThreshold)
	}
	area.Reset(area.Threshold)

	h := m.Header()
	res := Result{TotalRows: h.YDim}
	p.logger.Info("projection started", "cols", h.XDim, "rows", h.YDim, "workers", p.cfg.Workers)

	var err error
	if p.cfg.Workers > 1 && h.YDim > 1 {
		err = p.projectParallel(ctx, model, env, m, area, &res)
	} else {
		err = p.projectSequential(ctx, model, env, m, area, &res)
	}
	res.Area = *area

	if ferr := m.Finish(); ferr != nil && err == nil {
		err = fmt.Errorf("finish map: %w", ferr)
	}
	switch {
	case errors.Is(err, ErrAborted):
		res.Aborted = true
		p.cfg.Metrics.done(resultAborted)
		p.logger.Warn("projection aborted", "rows", res.Rows, "total_rows", res.TotalRows)
	case err != nil:
		p.cfg.Metrics.done(resultFailed)
		p.logger.Error("projection failed", "rows", res.Rows, "error", err)
	default:
		p.cfg.Metrics.done(resultCompleted)
		if p.cfg.Progress != nil {
			p.cfg.Progress(1)
		}
		p.logger.Info("projection done", "cells", area.Total, "predicted_present", area.PredictedPresent, "not_predicted", area.NotPredicted)
	}
	return res, err
}

func (p *Projector) projectSequential(ctx context.Context, model predict.Model, env Environment, m *raster.Map, area *stats.AreaStats, res *Result) error {
	h := m.Header()
	it := m.Iterator()
	row := make([]cell, 0, h.XDim)
	for r := 0; r < h.YDim; r++ {
		row = row[:0]
		for c := 0; c < h.XDim; c++ {
			lon, lat, err := it.LonLat()
			if err != nil {
				return fmt.Errorf("cell %d,%d: %w", c, r, err)
			}
			row = append(row, cell{lon: lon, lat: lat, value: score(model, env, lon, lat)})
			it.Next()
		}
		if err := p.writeRow(m, area, row, r, res); err != nil {
			return err
		}
		if r == h.YDim-1 {
			break
		}
		if err := p.checkAbort(ctx); err != nil {
			return err
		}
	}
	return nil
}

// projectParallel fans rows out to workers and writes them back in row
// order from the calling goroutine.
func (p *Projector) projectParallel(ctx context.Context, model predict.Model, env Environment, m *raster.Map, area *stats.AreaStats, res *Result) error {
	h := m.Header()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	results := make(chan scoredRow, p.cfg.Workers)

	workerCount := p.cfg.Workers
	if workerCount > h.YDim {
		workerCount = h.YDim
	}
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			it := m.Iterator()
			for r := range jobs {
				results <- scoreRow(ctx, model, env, it, h, r)
			}
		}()
	}
	go func() {
		defer close(jobs)
		for r := 0; r < h.YDim; r++ {
			select {
			case jobs <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	pending := make(map[int]scoredRow)
	next := 0
	var err error
	for sr := range results {
		if err != nil {
			continue
		}
		pending[sr.idx] = sr
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if ready.err != nil {
				err = ready.err
				break
			}
			if err = p.writeRow(m, area, ready.cells, next, res); err != nil {
				break
			}
			next++
			if next == h.YDim {
				break
			}
			if err = p.checkAbort(ctx); err != nil {
				break
			}
		}
		if err != nil {
			cancel()
		}
	}
	if err == nil && next < h.YDim {
		err = fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
	}
	return err
}

func scoreRow(ctx context.Context, model predict.Model, env Environment, it *raster.MapIterator, h raster.Header, r int) scoredRow {
	if err := ctx.Err(); err != nil {
		return scoredRow{idx: r, err: fmt.Errorf("%w: %v", ErrAborted, err)}
	}
	cells := make([]cell, h.XDim)
	it.Seek(r * h.XDim)
	for c := range cells {
		lon, lat, err := it.LonLat()
		if err != nil {
			return scoredRow{idx: r, err: fmt.Errorf("cell %d,%d: %w", c, r, err)}
		}
		cells[c] = cell{lon: lon, lat: lat, value: score(model, env, lon, lat)}
		it.Next()
	}
	return scoredRow{idx: r, cells: cells}
}

func score(model predict.Model, env Environment, lon, lat float64) float64 {
	s := env.Get(lon, lat)
	if len(s) == 0 {
		return math.NaN()
	}
	return math.Max(0, math.Min(1, model.Value(s)))
}

func (p *Projector) writeRow(m *raster.Map, area *stats.AreaStats, cells []cell, r int, res *Result) error {
	predicted, missing := 0, 0
	for _, c := range cells {
		if math.IsNaN(c.value) {
			if err := m.PutNoData(c.lon, c.lat); err != nil {
				return fmt.Errorf("write no data at row %d: %w", r, err)
			}
			area.AddNonPrediction()
			missing++
			continue
		}
		if err := m.Put(c.lon, c.lat, c.value); err != nil {
			return fmt.Errorf("write row %d: %w", r, err)
		}
		area.AddPrediction(c.value)
		predicted++
	}
	res.Rows = r + 1
	progress := float64(res.Rows) / float64(res.TotalRows)
	p.cfg.Metrics.row(predicted, missing, progress)
	if p.cfg.Progress != nil && res.Rows < res.TotalRows {
		p.cfg.Progress(progress)
	}
	return nil
}

func (p *Projector) checkAbort(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAborted, err)
	}
	if p.cfg.Aborter != nil && p.cfg.Aborter.Abort() {
		return ErrAborted
	}
	return nil
}
