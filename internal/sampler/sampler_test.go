package sampler

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"nichemodeller/internal/config"
	"nichemodeller/internal/environment"
	"nichemodeller/internal/normalize"
	"nichemodeller/internal/occurrence"
	"nichemodeller/internal/raster"
	"nichemodeller/internal/sample"
)

func memLayer(t *testing.T, name string, values []float64) string {
	t.Helper()
	h, err := raster.NewHeader(2, 2, 0, 0, 2, 2, -9999, 1, true)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	g, err := raster.NewGridFromValues(h, values)
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	id := raster.MemoryPrefix + t.Name() + "/" + name
	raster.RegisterMemory(id, g)
	return id
}

// testEnvironment holds two continuous layers over a 2x2 grid:
// (0.5,1.5)={1,10} (1.5,1.5)={2,20} (0.5,0.5)={3,30} (1.5,0.5)={4,40}.
func testEnvironment(t *testing.T) *environment.Environment {
	t.Helper()
	env, err := environment.New(environment.Config{Layers: []environment.LayerSpec{
		{ID: memLayer(t, "a", []float64{1, 2, 3, 4})},
		{ID: memLayer(t, "b", []float64{10, 20, 30, 40})},
	}})
	if err != nil {
		t.Fatalf("environment: %v", err)
	}
	return env
}

func points(label string, abundance float64, coords ...[2]float64) *occurrence.Set {
	s := occurrence.NewSet(label, "")
	for i, c := range coords {
		s.Append(occurrence.New(fmt.Sprintf("%s%d", label, i), c[0], c[1], 0, abundance))
	}
	return s
}

func TestSamplesAlternateWithPseudoAbsences(t *testing.T) {
	presences := points("p", 1, [2]float64{0.5, 1.5}, [2]float64{1.5, 0.5})
	s, err := New(testEnvironment(t), presences, nil, nil)
	if err != nil {
		t.Fatalf("new sampler: %v", err)
	}
	if s.NumPresence() != 2 || s.NumAbsence() != 0 || s.NumIndependent() != 2 {
		t.Fatalf("unexpected counts: presence=%d absence=%d independent=%d", s.NumPresence(), s.NumAbsence(), s.NumIndependent())
	}

	rows, err := s.Samples(rand.New(rand.NewSource(42)), 4)
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	presence, pseudo := 0, 0
	for i, o := range rows {
		if len(o.Environment()) != 2 {
			t.Fatalf("row %d has no environment: %v", i, o.Environment())
		}
		if i%2 == 0 {
			if o.ID != "?" || o.Abundance != 0 {
				t.Fatalf("row %d must be a pseudo-absence, got %+v", i, o)
			}
			pseudo++
			continue
		}
		if !o.IsPresence() {
			t.Fatalf("row %d must be a presence, got %+v", i, o)
		}
		presence++
	}
	if presence != 2 || pseudo != 2 {
		t.Fatalf("expected 2 presences and 2 pseudo-absences, got %d and %d", presence, pseudo)
	}
}

func TestSamplesUseRealAbsences(t *testing.T) {
	s, err := New(testEnvironment(t),
		points("p", 1, [2]float64{0.5, 1.5}),
		points("a", 0, [2]float64{1.5, 1.5}),
		nil)
	if err != nil {
		t.Fatalf("new sampler: %v", err)
	}
	rng := rand.New(rand.NewSource(7))
	rows, err := s.Samples(rng, 6)
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	for i := 0; i < len(rows); i += 2 {
		if rows[i].ID != "a0" {
			t.Fatalf("row %d must be the real absence, got %s", i, rows[i].ID)
		}
	}
	for i := 0; i < 50; i++ {
		o, err := s.OneSample(rng)
		if err != nil {
			t.Fatalf("one sample: %v", err)
		}
		if o.ID == "?" {
			t.Fatal("one sample must not generate pseudo-absences when absences exist")
		}
	}
}

func TestNewDiscardsPointsWithoutEnvironment(t *testing.T) {
	presences := points("p", 1, [2]float64{0.5, 0.5}, [2]float64{5, 5})
	s, err := New(testEnvironment(t), presences, nil, nil)
	if err != nil {
		t.Fatalf("new sampler: %v", err)
	}
	if s.NumPresence() != 1 || s.Presences().At(0).ID != "p0" {
		t.Fatalf("expected only p0 to survive, got %d", s.NumPresence())
	}
	if !s.Presences().At(0).Environment().Equal(sample.Sample{3, 30}) {
		t.Fatalf("unexpected environment: %v", s.Presences().At(0).Environment())
	}

	if _, err := New(nil, nil, nil, nil); !errors.Is(err, ErrNoPresences) {
		t.Fatalf("expected no presences error, got %v", err)
	}
}

func TestSplitIsStratified(t *testing.T) {
	env := testEnvironment(t)
	presences := occurrence.NewSet("p", "")
	for i := 0; i < 20; i++ {
		presences.Append(occurrence.New(fmt.Sprintf("p%d", i), 0.5, 0.5, 0, 1))
	}
	absences := occurrence.NewSet("a", "")
	for i := 0; i < 10; i++ {
		absences.Append(occurrence.New(fmt.Sprintf("a%d", i), 1.5, 1.5, 0, 0))
	}
	s, err := New(env, presences, absences, nil)
	if err != nil {
		t.Fatalf("new sampler: %v", err)
	}

	for seed := int64(1); seed <= 5; seed++ {
		train, test, err := s.Split(rand.New(rand.NewSource(seed)), 0.9)
		if err != nil {
			t.Fatalf("split: %v", err)
		}
		if train.NumPresence() != 18 || test.NumPresence() != 2 {
			t.Fatalf("seed %d: unexpected presence split %d/%d", seed, train.NumPresence(), test.NumPresence())
		}
		if train.NumAbsence() != 9 || test.NumAbsence() != 1 {
			t.Fatalf("seed %d: unexpected absence split %d/%d", seed, train.NumAbsence(), test.NumAbsence())
		}

		seen := make(map[string]int)
		for _, part := range []*Sampler{train, test} {
			for _, o := range part.Presences().All() {
				seen[o.ID]++
			}
			for _, o := range part.Absences().All() {
				seen[o.ID]++
			}
		}
		if len(seen) != 30 {
			t.Fatalf("seed %d: expected 30 distinct points, got %d", seed, len(seen))
		}
		for id, n := range seen {
			if n != 1 {
				t.Fatalf("seed %d: point %s assigned %d times", seed, id, n)
			}
		}
	}

	if _, _, err := s.Split(rand.New(rand.NewSource(1)), 1.5); !errors.Is(err, occurrence.ErrInvalidProportion) {
		t.Fatalf("expected invalid proportion error, got %v", err)
	}
}

func TestUniquenessFilters(t *testing.T) {
	env := testEnvironment(t)
	presences := points("p", 1,
		[2]float64{0.25, 0.25},
		[2]float64{0.75, 0.75},
		[2]float64{1.5, 1.5},
	)
	s, err := New(env, presences, nil, nil)
	if err != nil {
		t.Fatalf("new sampler: %v", err)
	}
	s.EnvironmentallyUnique()
	if s.NumPresence() != 2 {
		t.Fatalf("expected 2 environmentally unique presences, got %d", s.NumPresence())
	}
	if s.Presences().At(0).Abundance != 2 {
		t.Fatalf("kept point must absorb the duplicate, abundance=%g", s.Presences().At(0).Abundance)
	}

	spatial := points("p", 1, [2]float64{1.1, 0.1}, [2]float64{1.9, 0.9}, [2]float64{0.5, 0.5})
	s, err = New(env, spatial, nil, nil)
	if err != nil {
		t.Fatalf("new sampler: %v", err)
	}
	s.SpatiallyUnique()
	if s.NumPresence() != 2 || s.Presences().At(1).ID != "p2" {
		t.Fatalf("expected p0 and p2 to remain, got %d", s.NumPresence())
	}
}

func near(got, want sample.Sample) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			return false
		}
	}
	return true
}

type constantModel float64

func (m constantModel) Value(sample.Sample) float64 { return float64(m) }

func TestConstrainedPseudoAbsences(t *testing.T) {
	s, err := New(testEnvironment(t), points("p", 1, [2]float64{0.5, 1.5}), nil, nil)
	if err != nil {
		t.Fatalf("new sampler: %v", err)
	}
	rng := rand.New(rand.NewSource(3))

	if _, err := s.PseudoAbsenceBelow(rng, constantModel(0.2), 0.5); err != nil {
		t.Fatalf("pseudo-absence below: %v", err)
	}
	if _, err := s.PseudoAbsenceBelow(rng, constantModel(0.9), 0.5); !errors.Is(err, ErrNoPseudoPoint) {
		t.Fatalf("expected exhausted attempts, got %v", err)
	}

	o, err := s.PseudoAbsenceOutside(rng, sample.Sample{0, 0}, sample.Sample{3.5, 100})
	if err != nil {
		t.Fatalf("pseudo-absence outside: %v", err)
	}
	if !o.Environment().Equal(sample.Sample{4, 40}) {
		t.Fatalf("expected the only cell outside the interval, got %v", o.Environment())
	}

	set, err := s.PseudoAbsences(rng, 3, PseudoOptions{EnvUnique: true})
	if err != nil {
		t.Fatalf("pseudo-absences: %v", err)
	}
	seen := make(map[float64]bool)
	for _, o := range set.All() {
		v := o.Environment()[0]
		if v == 1 || seen[v] {
			t.Fatalf("pseudo-absence %v is not environmentally unique", o.Environment())
		}
		seen[v] = true
	}
	if _, err := s.PseudoAbsences(rng, 4, PseudoOptions{GeoUnique: true}); !errors.Is(err, ErrNoPseudoPoint) {
		t.Fatalf("expected exhausted attempts for a fourth unique cell, got %v", err)
	}
}

func TestNormalizeAndConfiguration(t *testing.T) {
	s, err := New(testEnvironment(t),
		points("p", 1, [2]float64{0.5, 1.5}, [2]float64{1.5, 0.5}),
		points("a", 0, [2]float64{0.5, 0.5}),
		nil)
	if err != nil {
		t.Fatalf("new sampler: %v", err)
	}
	if got := s.VarTypes(); len(got) != 3 || got[0] || got[1] || got[2] {
		t.Fatalf("unexpected var types: %v", got)
	}

	n := normalize.NewScale(-1, 1, true)
	if err := n.Compute(s); err != nil {
		t.Fatalf("compute: %v", err)
	}
	if err := s.Normalize(n); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !s.IsNormalized() {
		t.Fatal("sampler must be marked normalized")
	}
	if got := s.Presences().At(0).Environment(); !near(got, sample.Sample{-1, -1}) {
		t.Fatalf("unexpected normalized presence: %v", got)
	}
	if got := s.Presences().At(1).Environment(); !near(got, sample.Sample{1, 1}) {
		t.Fatalf("unexpected normalized presence: %v", got)
	}
	o, err := s.PseudoAbsence(rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("pseudo-absence: %v", err)
	}
	for _, v := range o.Environment() {
		if v < -1-1e-9 || v > 1+1e-9 {
			t.Fatalf("pseudo-absence must be normalized, got %v", o.Environment())
		}
	}

	data, err := config.Encode(s.Configuration())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	sec, err := config.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	restored, err := FromConfiguration(sec, nil)
	if err != nil {
		t.Fatalf("from configuration: %v", err)
	}
	if restored.NumPresence() != 2 || restored.NumAbsence() != 1 || restored.NumIndependent() != 2 {
		t.Fatalf("unexpected restored sampler: %d/%d/%d", restored.NumPresence(), restored.NumAbsence(), restored.NumIndependent())
	}
	if got := restored.Presences().At(0).Environment(); !got.Equal(sample.Sample{1, 10}) {
		t.Fatalf("restored sampler must hold raw samples, got %v", got)
	}
}
