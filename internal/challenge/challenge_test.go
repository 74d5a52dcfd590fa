package challenge

import (
	"context"
	"testing"
	"time"

	"github.com/mcaptcha/powcore/internal/core/clock/clocktest"
)

func TestPoWRoundTrip_S1(t *testing.T) {
	ctx := context.Background()
	fc := &clocktest.Fake{}
	c := NewEmbedded(fc, nil)
	defer c.Close()

	if err := c.CachePoW(ctx, Puzzle{Challenge: "X", DifficultyFactor: 54, SiteKey: "k"}, 5*time.Second); err != nil {
		t.Fatalf("CachePoW: %v", err)
	}

	p, ok := c.RetrievePoW(ctx, "X")
	if !ok || p.DifficultyFactor != 54 {
		t.Fatalf("RetrievePoW = %+v, %v; want DifficultyFactor=54, true", p, ok)
	}

	if _, ok := c.RetrievePoW(ctx, "X"); ok {
		t.Fatal("second RetrievePoW should return false")
	}
}

func TestPoWExpiry_S2(t *testing.T) {
	ctx := context.Background()
	fc := &clocktest.Fake{}
	c := NewEmbedded(fc, nil)
	defer c.Close()

	if err := c.CachePoW(ctx, Puzzle{Challenge: "X", SiteKey: "k"}, 5*time.Second); err != nil {
		t.Fatalf("CachePoW: %v", err)
	}

	fc.Advance(10 * time.Second)

	if _, ok := c.RetrievePoW(ctx, "X"); ok {
		t.Fatal("RetrievePoW after TTL expiry should return false")
	}
}

func TestTokenOneShot_S3(t *testing.T) {
	ctx := context.Background()
	fc := &clocktest.Fake{}
	c := NewEmbedded(fc, nil)
	defer c.Close()

	if err := c.CacheResult(ctx, Token{Token: "b", SiteKey: "a"}, 5*time.Second); err != nil {
		t.Fatalf("CacheResult: %v", err)
	}

	if ok := c.VerifyResult(ctx, "b", "a"); !ok {
		t.Fatal("first VerifyResult should succeed")
	}
	if ok := c.VerifyResult(ctx, "b", "a"); ok {
		t.Fatal("second VerifyResult should fail: token already consumed")
	}
	if ok := c.VerifyResult(ctx, "b", "cz"); ok {
		t.Fatal("VerifyResult with wrong key after consumption should fail")
	}
}

func TestVerifyResult_WrongKeyStillConsumes(t *testing.T) {
	ctx := context.Background()
	fc := &clocktest.Fake{}
	c := NewEmbedded(fc, nil)
	defer c.Close()

	if err := c.CacheResult(ctx, Token{Token: "tok", SiteKey: "right"}, 5*time.Second); err != nil {
		t.Fatalf("CacheResult: %v", err)
	}

	if ok := c.VerifyResult(ctx, "tok", "wrong"); ok {
		t.Fatal("wrong key should not verify")
	}
	// The at-most-once invariant: even though the first guess was wrong,
	// the entry is gone, so the right key afterward still fails.
	if ok := c.VerifyResult(ctx, "tok", "right"); ok {
		t.Fatal("token should have been consumed by the prior mismatched guess")
	}
}

func TestDeletePoW_Idempotent(t *testing.T) {
	ctx := context.Background()
	c := NewEmbedded(nil, nil)
	defer c.Close()

	c.DeletePoW(ctx, "missing")
	c.DeletePoW(ctx, "missing")
}

func TestNamespacesDoNotAlias(t *testing.T) {
	ctx := context.Background()
	c := NewEmbedded(nil, nil)
	defer c.Close()

	if err := c.CachePoW(ctx, Puzzle{Challenge: "shared", SiteKey: "a"}, time.Minute); err != nil {
		t.Fatalf("CachePoW: %v", err)
	}
	if err := c.CacheResult(ctx, Token{Token: "shared", SiteKey: "b"}, time.Minute); err != nil {
		t.Fatalf("CacheResult: %v", err)
	}

	if ok := c.VerifyResult(ctx, "shared", "b"); !ok {
		t.Fatal("token under the shared key should verify independent of the puzzle namespace")
	}
	if _, ok := c.RetrievePoW(ctx, "shared"); !ok {
		t.Fatal("puzzle under the shared key should still be retrievable; namespaces must not alias")
	}
}
