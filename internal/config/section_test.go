package config

import (
	"errors"
	"testing"

	"nichemodeller/internal/sample"
)

func TestSectionTypedGetters(t *testing.T) {
	s := New("Garp")
	s.AddNameValue("Generations", 12)
	s.AddNameValue("Significance", 2.7)
	s.AddNameValue("UseLayerAsRef", true)
	s.AddNameValue("Scales", sample.Sample{0.5, -1, 2})
	s.AddNameValue("Label", "furcata boliviana")

	if v, err := s.Int("Generations"); err != nil || v != 12 {
		t.Fatalf("int: %d %v", v, err)
	}
	if v, err := s.Float("Significance"); err != nil || v != 2.7 {
		t.Fatalf("float: %g %v", v, err)
	}
	if v, err := s.Bool("UseLayerAsRef"); err != nil || !v {
		t.Fatalf("bool: %t %v", v, err)
	}
	if v, err := s.Sample("Scales"); err != nil || !v.Equal(sample.Sample{0.5, -1, 2}) {
		t.Fatalf("sample: %v %v", v, err)
	}
	if v, err := s.Attribute("Label"); err != nil || v != "furcata boliviana" {
		t.Fatalf("attribute: %q %v", v, err)
	}

	if _, err := s.Int("Missing"); !errors.Is(err, ErrAttributeNotFound) {
		t.Fatalf("expected attribute not found, got %v", err)
	}
	if _, err := s.Int("Label"); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected invalid value, got %v", err)
	}
	if v, err := s.IntOr("Missing", 7); err != nil || v != 7 {
		t.Fatalf("int or: %d %v", v, err)
	}
}

func TestSectionSubsectionsAndJSON(t *testing.T) {
	root := New("Algorithm")
	rules := New("FittestRules")
	for i := 0; i < 3; i++ {
		r := New("Rule")
		r.AddNameValue("Index", i)
		rules.AddSubsection(r)
	}
	root.AddSubsection(rules)

	data, err := Encode(root)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	got, err := decoded.Subsection("FittestRules")
	if err != nil {
		t.Fatalf("subsection: %v", err)
	}
	all := got.All("Rule")
	if len(all) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(all))
	}
	if v, _ := all[2].Int("Index"); v != 2 {
		t.Fatalf("unexpected rule order: %d", v)
	}
	if _, err := decoded.Subsection("Garp"); !errors.Is(err, ErrSectionNotFound) {
		t.Fatalf("expected section not found, got %v", err)
	}
}
