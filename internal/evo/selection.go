package evo

import (
	"errors"
	"fmt"
	"math/rand"
)

var ErrEmptyPopulation = errors.New("population is empty")

// Scored pairs a candidate with its fitness. Ranked slices are sorted by
// descending fitness.
type Scored[T any] struct {
	Item    T
	Fitness float64
}

// Selector picks n parents from a ranked population for replication.
type Selector[T any] interface {
	Name() string
	Select(rng *rand.Rand, ranked []Scored[T], n int) ([]T, error)
}

func checkSelect[T any](rng *rand.Rand, ranked []Scored[T], n int) error {
	if rng == nil {
		return fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return ErrEmptyPopulation
	}
	if n < 0 {
		return fmt.Errorf("invalid selection count: %d", n)
	}
	return nil
}

// EliteSelector picks uniformly from the top EliteCount candidates.
type EliteSelector[T any] struct {
	EliteCount int
}

func (EliteSelector[T]) Name() string {
	return "elite"
}

func (s EliteSelector[T]) Select(rng *rand.Rand, ranked []Scored[T], n int) ([]T, error) {
	if err := checkSelect(rng, ranked, n); err != nil {
		return nil, err
	}
	if s.EliteCount <= 0 || s.EliteCount > len(ranked) {
		return nil, fmt.Errorf("invalid elite count: %d", s.EliteCount)
	}
	out := make([]T, n)
	for i := range out {
		out[i] = ranked[rng.Intn(s.EliteCount)].Item
	}
	return out, nil
}

// TournamentSelector samples TournamentSize candidates from the top PoolSize
// and keeps the fittest, once per parent.
type TournamentSelector[T any] struct {
	PoolSize       int
	TournamentSize int
}

func (TournamentSelector[T]) Name() string {
	return "tournament"
}

func (s TournamentSelector[T]) Select(rng *rand.Rand, ranked []Scored[T], n int) ([]T, error) {
	if err := checkSelect(rng, ranked, n); err != nil {
		return nil, err
	}

	poolSize := s.PoolSize
	if poolSize <= 0 || poolSize > len(ranked) {
		poolSize = len(ranked)
	}
	tournamentSize := s.TournamentSize
	if tournamentSize <= 0 {
		tournamentSize = 3
	}
	if tournamentSize > poolSize {
		tournamentSize = poolSize
	}

	out := make([]T, n)
	for k := range out {
		best := ranked[rng.Intn(poolSize)]
		for i := 1; i < tournamentSize; i++ {
			candidate := ranked[rng.Intn(poolSize)]
			if candidate.Fitness > best.Fitness {
				best = candidate
			}
		}
		out[k] = best.Item
	}
	return out, nil
}

// StochasticUniversalSelector lays n equally spaced pointers, starting at a
// random offset, over the cumulative expected fitness and returns the
// candidates under them in shuffled order. Expected fitness is
// (f - worst) / (avg - worst), so the worst candidate is never picked unless
// the population is flat. Slots left unfilled by the pointers cycle through
// the population.
type StochasticUniversalSelector[T any] struct{}

func (StochasticUniversalSelector[T]) Name() string {
	return "stochastic_universal"
}

func (StochasticUniversalSelector[T]) Select(rng *rand.Rand, ranked []Scored[T], n int) ([]T, error) {
	if err := checkSelect(rng, ranked, n); err != nil {
		return nil, err
	}

	_, worst, avg := Summary(ranked)
	factor := 1.0
	if avg-worst != 0 {
		factor = 1.0 / (avg - worst)
	}

	picks := make([]int, n)
	for i := range picks {
		picks[i] = i % len(ranked)
	}
	ptr := rng.Float64()
	sum := 0.0
	k := 0
	for i, c := range ranked {
		sum += (c.Fitness - worst) * factor
		for ; sum > ptr && k < n; ptr++ {
			picks[k] = i
			k++
		}
	}
	rng.Shuffle(n, func(i, j int) {
		picks[i], picks[j] = picks[j], picks[i]
	})

	out := make([]T, n)
	for i, idx := range picks {
		out[i] = ranked[idx].Item
	}
	return out, nil
}

// Summary returns the best, worst and mean fitness. All are 0 for an empty
// population.
func Summary[T any](ranked []Scored[T]) (best, worst, avg float64) {
	if len(ranked) == 0 {
		return 0, 0, 0
	}
	best, worst = ranked[0].Fitness, ranked[0].Fitness
	for _, c := range ranked {
		if c.Fitness < worst {
			worst = c.Fitness
		}
		if c.Fitness > best {
			best = c.Fitness
		}
		avg += c.Fitness
	}
	return best, worst, avg / float64(len(ranked))
}
