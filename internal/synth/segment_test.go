package synth

import (
	"reflect"
	"strings"
	"testing"
)

func TestSegmentSplitsSentences(t *testing.T) {
	text := "Photosynthesis is the process by which plants convert light into energy. Water boils at 100 degrees Celsius."
	units := Segment(text)
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d: %v", len(units), units)
	}
	if units[0].Text != "Photosynthesis is the process by which plants convert light into energy." {
		t.Errorf("unexpected first unit: %q", units[0].Text)
	}
	if units[1].Text != "Water boils at 100 degrees Celsius." {
		t.Errorf("unexpected second unit: %q", units[1].Text)
	}
	for i, u := range units {
		if u.Index != i {
			t.Errorf("unit %d has index %d", i, u.Index)
		}
	}
}

func TestSegmentKeepsInitialsTogether(t *testing.T) {
	text := "The theory was proposed by J. Watson during the early fifties. It changed molecular biology forever."
	units := Segment(text)
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d: %v", len(units), units)
	}
	if !strings.Contains(units[0].Text, "J. Watson") {
		t.Errorf("initial split apart: %q", units[0].Text)
	}
}

func TestSegmentCollapsesExtractionArtifacts(t *testing.T) {
	text := "Chlorophyll absorbs   sunlight\n\nduring photo-\nsynthesis inside plant cells."
	units := Segment(text)
	if len(units) != 1 {
		t.Fatalf("expected 1 unit, got %d: %v", len(units), units)
	}
	want := "Chlorophyll absorbs sunlight during photosynthesis inside plant cells."
	if units[0].Text != want {
		t.Errorf("got %q, want %q", units[0].Text, want)
	}
}

func TestSegmentDropsUninformativeUnits(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"whitespace":     "   \n\t  ",
		"too few words":  "Yes. No. Done here.",
		"short fragment": "The end.",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			if units := Segment(text); len(units) != 0 {
				t.Errorf("expected no units, got %v", units)
			}
		})
	}
}

func TestSegmentDeterministic(t *testing.T) {
	text := "Mitochondria are the powerhouse of the cell. Ribosomes assemble proteins from amino acids. DNA stores genetic information in sequences."
	first := Segment(text)
	second := Segment(text)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("segmentation not deterministic:\n%v\n%v", first, second)
	}
}
