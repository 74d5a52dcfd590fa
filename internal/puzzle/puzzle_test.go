package puzzle

import (
	"context"
	"testing"
	"time"
)

func TestGenerateChallenge_Unique(t *testing.T) {
	a, err := GenerateChallenge()
	if err != nil {
		t.Fatalf("GenerateChallenge: %v", err)
	}
	b, err := GenerateChallenge()
	if err != nil {
		t.Fatalf("GenerateChallenge: %v", err)
	}
	if a == b {
		t.Fatal("two successive challenges collided")
	}
}

func TestRequiredBits(t *testing.T) {
	cases := []struct {
		factor uint32
		want   int
	}{
		{0, 0}, {1, 0}, {2, 1}, {3, 2}, {4, 2}, {5, 3}, {255, 8}, {256, 8}, {257, 9},
	}
	for _, c := range cases {
		if got := RequiredBits(c.factor); got != c.want {
			t.Errorf("RequiredBits(%d) = %d, want %d", c.factor, got, c.want)
		}
	}
}

func TestSolveThenVerify(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	challenge := "fixed-challenge"
	const factor = 8 // 3 required bits; solvable quickly

	nonce, err := Solve(ctx, challenge, factor)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	if !Verify(challenge, nonce, factor) {
		t.Fatal("Verify rejected a solution Solve produced")
	}
	if Verify(challenge, nonce+"x", factor) {
		t.Fatal("Verify accepted a tampered nonce")
	}
}

func TestSolve_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Solve(ctx, "c", 1<<20); err == nil {
		t.Fatal("Solve with an already-cancelled context: want error")
	}
}
