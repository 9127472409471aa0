package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 5},
		{"default bucket size for negative", -1, 5},
		{"custom bucket size", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSampler_NilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(5, 10) {
		t.Error("ShouldLog on nil sampler should return true")
	}
	s.Reset() // should not panic
}

func TestProgressSampler_Buckets(t *testing.T) {
	s := NewProgressSampler(10)

	steps := []struct {
		done int
		want bool
	}{
		{0, true},
		{5, false},
		{10, true},
		{15, false},
		{19, false},
		{50, true},
		{51, false},
		{100, true},
		{100, false},
	}
	for _, step := range steps {
		if got := s.ShouldLog(step.done, 100); got != step.want {
			t.Fatalf("ShouldLog(%d, 100) = %v, want %v", step.done, got, step.want)
		}
	}

	s.Reset()
	if !s.ShouldLog(0, 100) {
		t.Error("expected log after reset")
	}
}

func TestProgressSampler_UnknownTotal(t *testing.T) {
	s := NewProgressSampler(5)
	if s.ShouldLog(3, 0) {
		t.Error("zero total should never log")
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		done, total int
		want        float64
	}{
		{0, 10, 0},
		{5, 10, 50},
		{12, 10, 100},
		{3, 0, 0},
	}
	for _, tt := range tests {
		if got := Percent(tt.done, tt.total); got != tt.want {
			t.Errorf("Percent(%d, %d) = %v, want %v", tt.done, tt.total, got, tt.want)
		}
	}
}
