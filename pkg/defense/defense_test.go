package defense

import (
	"testing"

	"github.com/mcaptcha/powcore/internal/core/errs"
)

func TestNew_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		levels []Level
	}{
		{"empty", nil},
		{"missing zero", []Level{{Threshold: 1, DifficultyFactor: 10}}},
		{"duplicate threshold", []Level{
			{Threshold: 0, DifficultyFactor: 10},
			{Threshold: 5, DifficultyFactor: 50},
			{Threshold: 5, DifficultyFactor: 100},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.levels); !errs.IsInvalidDefense(err) {
				t.Fatalf("expected InvalidDefense error, got %v", err)
			}
		})
	}
}

func TestDifficulty_S5Curve(t *testing.T) {
	d, err := New([]Level{
		{Threshold: 0, DifficultyFactor: 10},
		{Threshold: 5, DifficultyFactor: 50},
		{Threshold: 10, DifficultyFactor: 500},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cases := []struct {
		visitors uint32
		want     uint32
	}{
		{0, 10}, {1, 10}, {4, 10}, {5, 10}, {6, 50}, {9, 50}, {10, 50}, {11, 500}, {1000, 500},
	}
	for _, c := range cases {
		if got := d.Difficulty(c.visitors); got != c.want {
			t.Errorf("Difficulty(%d) = %d, want %d", c.visitors, got, c.want)
		}
	}
}

func TestNew_AcceptsUnsortedInput(t *testing.T) {
	d, err := New([]Level{
		{Threshold: 10, DifficultyFactor: 500},
		{Threshold: 0, DifficultyFactor: 10},
		{Threshold: 5, DifficultyFactor: 50},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := d.Difficulty(7); got != 50 {
		t.Errorf("Difficulty(7) = %d, want 50", got)
	}
}
