package sky

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestSeparation(t *testing.T) {
	tests := []struct {
		name                 string
		ra1, dec1, ra2, dec2 float64
		want                 float64
	}{
		{"identical", 123.4, -45.6, 123.4, -45.6, 0},
		{"along equator", 0, 0, 90, 0, 90},
		{"pole to equator", 0, 90, 200, 0, 90},
		{"antipodal", 0, 0, 180, 0, 180},
		{"wraps ra", 359.5, 0, 0.5, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Separation(tt.ra1, tt.dec1, tt.ra2, tt.dec2)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Separation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSeparationExactZero(t *testing.T) {
	if got := Separation(10, 20, 10, 20); got != 0 {
		t.Errorf("expected exactly 0, got %v", got)
	}
}

func TestMatchEndToEndExample(t *testing.T) {
	labels, err := Match(
		[]Target{{ID: "T1", RA: 10.5, Dec: 20.3}},
		[]Footprint{{ID: "F1", RA: 10.0, Dec: 20.0}},
		2.0,
	)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(labels) != 1 {
		t.Fatalf("expected 1 label, got %d", len(labels))
	}
	if labels[0].FieldID != "F1" {
		t.Errorf("expected F1, got %q", labels[0].FieldID)
	}
	if math.Abs(labels[0].Separation-0.557) > 0.005 {
		t.Errorf("expected separation near 0.557, got %v", labels[0].Separation)
	}
}

func TestMatchCoincidentTarget(t *testing.T) {
	labels, err := Match(
		[]Target{{ID: "T", RA: 150, Dec: 2}},
		[]Footprint{{ID: "A", RA: 151, Dec: 2}, {ID: "B", RA: 150, Dec: 2}},
		0.5,
	)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if labels[0].FieldID != "B" || labels[0].Separation != 0 {
		t.Errorf("expected B at 0, got %q at %v", labels[0].FieldID, labels[0].Separation)
	}
}

func TestMatchBoundaryIsExclusive(t *testing.T) {
	fp := Footprint{ID: "F", RA: 30, Dec: 40}
	tg := Target{ID: "T", RA: 31, Dec: 41}
	radius := Separation(tg.RA, tg.Dec, fp.RA, fp.Dec)

	labels, err := Match([]Target{tg}, []Footprint{fp}, radius)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if labels[0].FieldID != NoCoverage {
		t.Errorf("target at exactly the radius should not match, got %q", labels[0].FieldID)
	}

	labels, err = Match([]Target{tg}, []Footprint{fp}, math.Nextafter(radius, math.Inf(1)))
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if labels[0].FieldID != "F" {
		t.Errorf("target just inside the radius should match, got %q", labels[0].FieldID)
	}
}

func TestMatchTieKeepsFirstFootprint(t *testing.T) {
	labels, err := Match(
		[]Target{{ID: "T", RA: 100, Dec: 0}},
		[]Footprint{{ID: "east", RA: 101, Dec: 0}, {ID: "west", RA: 99, Dec: 0}},
		2,
	)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if labels[0].FieldID != "east" {
		t.Errorf("expected east, got %q", labels[0].FieldID)
	}
}

func TestMatchNoFootprints(t *testing.T) {
	labels, err := Match([]Target{{ID: "a", RA: 1, Dec: 1}, {ID: "b", RA: 2, Dec: 2}}, nil, 2.2)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(labels) != 2 {
		t.Fatalf("expected 2 labels, got %d", len(labels))
	}
	for _, l := range labels {
		if l.FieldID != NoCoverage {
			t.Errorf("target %s: expected no coverage, got %q", l.TargetID, l.FieldID)
		}
		if !math.IsInf(l.Separation, 1) {
			t.Errorf("target %s: expected +Inf separation, got %v", l.TargetID, l.Separation)
		}
	}
}

func TestMatchRejectsBadInput(t *testing.T) {
	fps := []Footprint{{ID: "F", RA: 10, Dec: 10}}

	tests := []struct {
		name       string
		targets    []Target
		footprints []Footprint
		radius     float64
		want       error
	}{
		{"nan ra", []Target{{ID: "T", RA: math.NaN(), Dec: 0}}, fps, 1, ErrInvalidCoordinate},
		{"ra 360", []Target{{ID: "T", RA: 360, Dec: 0}}, fps, 1, ErrInvalidCoordinate},
		{"dec below pole", []Target{{ID: "T", RA: 10, Dec: -90.5}}, fps, 1, ErrInvalidCoordinate},
		{"infinite footprint dec", nil, []Footprint{{ID: "F", RA: 10, Dec: math.Inf(1)}}, 1, ErrInvalidCoordinate},
		{"zero radius", nil, fps, 0, ErrInvalidRadius},
		{"nan radius", nil, fps, math.NaN(), ErrInvalidRadius},
		{"empty footprint id", nil, []Footprint{{ID: "", RA: 1, Dec: 1}}, 1, ErrInvalidFootprint},
		{"duplicate footprint id", nil, []Footprint{{ID: "F", RA: 1, Dec: 1}, {ID: "F", RA: 2, Dec: 2}}, 1, ErrInvalidFootprint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Match(tt.targets, tt.footprints, tt.radius)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLabelsCovered(t *testing.T) {
	labels := Labels{
		{TargetID: "1", FieldID: "P2"},
		{TargetID: "2", FieldID: NoCoverage},
		{TargetID: "3", FieldID: "P1"},
		{TargetID: "4", FieldID: "P2"},
	}
	if got := labels.Covered(); !reflect.DeepEqual(got, []string{"P2", "P1"}) {
		t.Errorf("Covered() = %v", got)
	}
	if got := labels.CountCovered(); got != 3 {
		t.Errorf("CountCovered() = %d, want 3", got)
	}
}
