package detector

import "testing"

func TestFilter_Threshold(t *testing.T) {
	detections := []RawDetection{
		{Class: "pole", Confidence: 0.9, X1: 10, Y1: 10, X2: 20, Y2: 40},
		{Class: "pole", Confidence: 0.49, X1: 100, Y1: 100, X2: 110, Y2: 140},
		{Class: "pole", Confidence: 0.5, X1: 200, Y1: 200, X2: 210, Y2: 240},
	}

	got := Filter(detections, 0.5, "pole")
	if len(got) != 2 {
		t.Fatalf("expected 2 detections at threshold 0.5, got %d", len(got))
	}
	if got[0].Confidence != 0.9 || got[1].Confidence != 0.5 {
		t.Errorf("wrong detections kept: %+v", got)
	}
}

func TestFilter_TargetClass(t *testing.T) {
	detections := []RawDetection{
		{Class: "pole", Confidence: 0.9},
		{Class: "tree", Confidence: 0.95},
		{Class: "class7", Confidence: 0.8},
	}

	got := Filter(detections, 0.5, "pole")
	if len(got) != 1 {
		t.Fatalf("expected only the pole class, got %d detections", len(got))
	}
	if got[0].Class != "pole" {
		t.Errorf("expected class 'pole', got %q", got[0].Class)
	}

	// Empty target class keeps everything above threshold.
	got = Filter(detections, 0.5, "")
	if len(got) != 3 {
		t.Errorf("expected all classes with empty filter, got %d", len(got))
	}
}

func TestFilter_Empty(t *testing.T) {
	if got := Filter(nil, 0.5, "pole"); len(got) != 0 {
		t.Errorf("expected empty result for nil input, got %d", len(got))
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		v, lo, hi, want float64
	}{
		{0.5, 0, 1, 0.5},
		{-0.1, 0, 1, 0},
		{1.2, 0, 1, 1},
	}
	for _, tt := range tests {
		if got := clamp(tt.v, tt.lo, tt.hi); got != tt.want {
			t.Errorf("clamp(%f) = %f, expected %f", tt.v, got, tt.want)
		}
	}
}
