package algorithm

import (
	"fmt"

	"nichemodeller/internal/config"
	"nichemodeller/internal/normalize"
)

const (
	SectionName      = "Algorithm"
	modelSectionName = "Model"
)

// Serialize captures everything needed to score with alg again: its id and
// version, the parameters it was trained with, its normalization and its
// fitted state.
func Serialize(alg Algorithm, params Values) *config.Section {
	meta := alg.Metadata()
	sec := config.New(SectionName)
	sec.AddNameValue("Id", meta.ID)
	sec.AddNameValue("Version", meta.Version)

	ps := config.New("Parameters")
	for _, id := range params.IDs() {
		p := config.New("Parameter")
		p.AddNameValue("Id", id)
		p.AddNameValue("Value", params[id])
		ps.AddSubsection(p)
	}
	sec.AddSubsection(ps)

	if n := alg.Normalizer(); n != nil {
		sec.AddSubsection(n.Configuration())
	}
	model := config.New(modelSectionName)
	model.AddSubsection(alg.Configuration())
	sec.AddSubsection(model)
	return sec
}

// Restore rebuilds a serialized algorithm through the registry.
func Restore(sec *config.Section, opts Options) (Algorithm, Values, error) {
	id, err := sec.Attribute("Id")
	if err != nil {
		return nil, nil, err
	}
	alg, err := New(id, opts)
	if err != nil {
		return nil, nil, err
	}

	params := Values{}
	if ps, err := sec.Subsection("Parameters"); err == nil {
		for _, p := range ps.All("Parameter") {
			pid, err := p.Attribute("Id")
			if err != nil {
				return nil, nil, err
			}
			v, err := p.Float("Value")
			if err != nil {
				return nil, nil, err
			}
			params[pid] = v
		}
	}

	if ns, err := sec.Subsection(normalize.SectionName); err == nil {
		n, err := normalize.FromConfiguration(ns)
		if err != nil {
			return nil, nil, fmt.Errorf("restore %s normalization: %w", id, err)
		}
		alg.SetNormalizer(n)
	}

	model, err := sec.Subsection(modelSectionName)
	if err != nil {
		return nil, nil, err
	}
	if len(model.Subsections) != 1 {
		return nil, nil, fmt.Errorf("%w: %s model has %d sections", config.ErrInvalidValue, id, len(model.Subsections))
	}
	if err := alg.SetConfiguration(model.Subsections[0]); err != nil {
		return nil, nil, fmt.Errorf("restore %s: %w", id, err)
	}
	return alg, params, nil
}
