// Package algorithm defines the contract every modeling algorithm
// implements, the explicit registry they are looked up in and the driver
// that trains them.
package algorithm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"

	"nichemodeller/internal/config"
	"nichemodeller/internal/normalize"
	"nichemodeller/internal/predict"
	"nichemodeller/internal/sample"
	"nichemodeller/internal/sampler"
)

var (
	ErrAborted        = errors.New("algorithm run aborted")
	ErrNotInitialized = errors.New("algorithm is not initialized")
)

// Options is handed to factories.
type Options struct {
	Logger *slog.Logger
	// Seed drives every random draw of the instance. 0 picks a fixed default.
	Seed int64
}

func (o Options) Rand() *rand.Rand {
	seed := o.Seed
	if seed == 0 {
		seed = 1
	}
	return rand.New(rand.NewSource(seed))
}

func (o Options) LoggerOrDiscard() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// Algorithm is trained incrementally: Initialize once, then Iterate until
// Done. Value scores samples normalized with Normalizer.
type Algorithm interface {
	Metadata() Metadata
	// DefaultNormalizer returns a fresh normalizer to compute over the
	// training data, or nil when raw values are used.
	DefaultNormalizer() normalize.Normalizer
	SetNormalizer(n normalize.Normalizer)
	Normalizer() normalize.Normalizer

	Initialize(ctx context.Context, s *sampler.Sampler, params Values) error
	Iterate(ctx context.Context) error
	Done() bool
	Progress() float64

	Value(s sample.Sample) float64
	Configuration() *config.Section
	SetConfiguration(sec *config.Section) error
}

// Model wraps a trained algorithm with its normalization.
func Model(alg Algorithm) predict.Model {
	return predict.NewFitted(alg, alg.Normalizer())
}

type RunOptions struct {
	Logger   *slog.Logger
	Progress func(float64)
	Abort    func() bool
	Metrics  *Metrics
}

// Run normalizes the sampler when the algorithm asks for it, initializes
// the algorithm and iterates until it is done. Cancellation of ctx or a true
// Abort is polled before every iteration and returns ErrAborted.
func Run(ctx context.Context, alg Algorithm, s *sampler.Sampler, params Values, opts RunOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	id := alg.Metadata().ID

	if n := alg.DefaultNormalizer(); n != nil {
		if err := n.Compute(s); err != nil {
			return fmt.Errorf("compute normalization: %w", err)
		}
		if err := s.Normalize(n); err != nil {
			return fmt.Errorf("normalize sampler: %w", err)
		}
		alg.SetNormalizer(n)
	}
	if err := alg.Initialize(ctx, s, params); err != nil {
		return fmt.Errorf("initialize %s: %w", id, err)
	}
	logger.Info("algorithm initialized", "algorithm", id, "presences", s.NumPresence(), "absences", s.NumAbsence())

	iterations := 0
	for !alg.Done() {
		if err := ctx.Err(); err != nil {
			logger.Warn("algorithm canceled", "algorithm", id, "iterations", iterations)
			return fmt.Errorf("%w: %v", ErrAborted, err)
		}
		if opts.Abort != nil && opts.Abort() {
			logger.Warn("algorithm aborted", "algorithm", id, "iterations", iterations)
			return ErrAborted
		}
		if err := alg.Iterate(ctx); err != nil {
			return fmt.Errorf("iterate %s: %w", id, err)
		}
		iterations++
		progress := alg.Progress()
		opts.Metrics.iteration(id, progress)
		if opts.Progress != nil {
			opts.Progress(progress)
		}
	}
	opts.Metrics.finish(id)
	if opts.Progress != nil {
		opts.Progress(1)
	}
	logger.Info("algorithm done", "algorithm", id, "iterations", iterations)
	return nil
}
