package model_test

import (
	"testing"

	"github.com/shelfscan/shelfscan/internal/model"
)

func TestPageEstimateClamp(t *testing.T) {
	t.Parallel()

	e := model.PageEstimate{ProductCount: -3, Confidence: 140, PaginationTotal: -1}
	e.Clamp()
	if e.ProductCount != 0 || e.PaginationTotal != 0 {
		t.Errorf("negative counts not clamped: %+v", e)
	}
	if e.Confidence != 100 {
		t.Errorf("Confidence = %v, want 100", e.Confidence)
	}

	e = model.PageEstimate{Confidence: -5}
	e.Clamp()
	if e.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", e.Confidence)
	}
}

func TestVisualEstimateClamp(t *testing.T) {
	t.Parallel()

	v := model.VisualEstimate{VisibleCount: -2, Confidence: 101}
	v.Clamp()
	if v.VisibleCount != 0 || v.Confidence != 100 {
		t.Errorf("not clamped: %+v", v)
	}
}
