package ltm

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cosineSimilarity(tt.a, tt.b)
			if err != nil {
				t.Fatalf("cosineSimilarity() error = %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("cosineSimilarity() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarityErrors(t *testing.T) {
	if _, err := cosineSimilarity([]float32{1}, []float32{1, 2}); err == nil {
		t.Error("Expected error for dimension mismatch")
	}
	if _, err := cosineSimilarity(nil, nil); err == nil {
		t.Error("Expected error for empty vectors")
	}
	if _, err := cosineSimilarity([]float32{0, 0}, []float32{1, 0}); err == nil {
		t.Error("Expected error for zero-magnitude vector")
	}
}
