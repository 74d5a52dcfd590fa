package master

import (
	"context"
	"testing"
	"time"

	"github.com/mcaptcha/powcore/internal/core/clock/clocktest"
	"github.com/mcaptcha/powcore/pkg/defense"
)

func flatDefense(t *testing.T, factor uint32) defense.Defense {
	t.Helper()
	d, err := defense.New([]defense.Level{{Threshold: 0, DifficultyFactor: factor}})
	if err != nil {
		t.Fatalf("defense.New: %v", err)
	}
	return d
}

// TestMasterLifecycle_S4 reproduces spec.md scenario S4: add, look up,
// rename, look up the new name and a never-registered one, then confirm
// GC reaps the site once it quiesces.
func TestMasterLifecycle_S4(t *testing.T) {
	ctx := context.Background()
	fc := &clocktest.Fake{}
	m := New(Config{GCPeriodS: 1}, fc, nil, nil)
	defer m.Close(ctx)

	cfg := SiteConfig{Defense: flatDefense(t, 10), VisitorLifetimeMs: 100, DurationS: 30}
	m.AddSite(ctx, "yo", cfg)

	if _, ok := m.GetSite(ctx, "yo"); !ok {
		t.Fatal("GetSite(yo) = not ok, want ok")
	}

	m.Rename(ctx, "yo", "yoyo")

	if _, ok := m.GetSite(ctx, "yoyo"); !ok {
		t.Fatal("GetSite(yoyo) after rename = not ok, want ok")
	}
	if _, ok := m.GetSite(ctx, "a"); ok {
		t.Fatal("GetSite(a) = ok, want not ok (never registered)")
	}

	// Quiesce the counter, then let two GC cycles run.
	fc.Advance(200 * time.Millisecond)
	fc.Advance(1 * time.Second)
	fc.Advance(1 * time.Second)

	if _, ok := m.GetSite(ctx, "yoyo"); ok {
		t.Fatal("GetSite(yoyo) after GC = ok, want evicted")
	}

	// RemoveCaptcha on an already-evicted id is a no-op success.
	m.RemoveCaptcha(ctx, "yoyo")
}

// TestRenameOverwrite_S6 reproduces spec.md scenario S6: renaming onto
// an existing id overwrites it and stops the prior occupant.
func TestRenameOverwrite_S6(t *testing.T) {
	ctx := context.Background()
	fc := &clocktest.Fake{}
	m := New(Config{GCPeriodS: 1}, fc, nil, nil)
	defer m.Close(ctx)

	m.AddSite(ctx, "a", SiteConfig{Defense: flatDefense(t, 11), VisitorLifetimeMs: 1000, DurationS: 30})
	m.AddSite(ctx, "b", SiteConfig{Defense: flatDefense(t, 22), VisitorLifetimeMs: 1000, DurationS: 30})

	cfgACounter, _ := m.GetSite(ctx, "a")
	cfgAResult, ok := cfgACounter.AddVisitor(ctx)
	if !ok || cfgAResult.DifficultyFactor != 11 {
		t.Fatalf("sanity check on a's counter failed: %+v, %v", cfgAResult, ok)
	}
	cfgBCounter, _ := m.GetSite(ctx, "b")

	m.Rename(ctx, "a", "b")

	if _, ok := cfgBCounter.AddVisitor(ctx); ok {
		t.Fatal("b's prior counter still accepts AddVisitor after the overwrite rename; want stopped")
	}

	bCounter, ok := m.GetSite(ctx, "b")
	if !ok {
		t.Fatal("GetSite(b) after overwrite rename = not ok")
	}
	r, ok := bCounter.AddVisitor(ctx)
	if !ok || r.DifficultyFactor != 11 {
		t.Fatalf("b's counter after rename = %+v, %v; want cfg1's difficulty 11", r, ok)
	}

	if _, ok := m.GetSite(ctx, "a"); ok {
		t.Fatal("GetSite(a) after rename = ok, want evicted (renamed away)")
	}
}

// TestGCSafety_VisitorsNeverEvicted exercises spec.md §8 property 7: a
// site with visitors > 0 is never evicted.
func TestGCSafety_VisitorsNeverEvicted(t *testing.T) {
	ctx := context.Background()
	fc := &clocktest.Fake{}
	m := New(Config{GCPeriodS: 1}, fc, nil, nil)
	defer m.Close(ctx)

	m.AddSite(ctx, "busy", SiteConfig{Defense: flatDefense(t, 10), VisitorLifetimeMs: 10_000, DurationS: 30})
	if _, ok := m.AddVisitor(ctx, "busy"); !ok {
		t.Fatal("AddVisitor(busy) = not ok")
	}
	if _, ok := m.GetSite(ctx, "busy"); !ok {
		t.Fatal("GetSite(busy) = not ok")
	}

	for i := 0; i < 5; i++ {
		fc.Advance(1 * time.Second)
	}

	if _, ok := m.GetSite(ctx, "busy"); !ok {
		t.Fatal("GetSite(busy) after GC passes = not ok; a site with visitors > 0 must never be evicted")
	}
}

// TestGCGate_UntouchedSiteSurvives exercises the touched-flag rationale
// from spec.md §4.4: a freshly registered, never-queried site must
// survive GC even with zero visitors.
func TestGCGate_UntouchedSiteSurvives(t *testing.T) {
	ctx := context.Background()
	fc := &clocktest.Fake{}
	m := New(Config{GCPeriodS: 1}, fc, nil, nil)
	defer m.Close(ctx)

	m.AddSite(ctx, "fresh", SiteConfig{Defense: flatDefense(t, 10), VisitorLifetimeMs: 100, DurationS: 30})

	for i := 0; i < 5; i++ {
		fc.Advance(1 * time.Second)
	}

	if _, ok := m.GetSite(ctx, "fresh"); !ok {
		t.Fatal("untouched site was evicted before its first query")
	}
}

// TestAddVisitor_UnknownSite exercises the "returns None when id
// unknown" branch of spec.md §4.4's add_visitor convenience operation.
func TestAddVisitor_UnknownSite(t *testing.T) {
	ctx := context.Background()
	fc := &clocktest.Fake{}
	m := New(Config{GCPeriodS: 1}, fc, nil, nil)
	defer m.Close(ctx)

	if _, ok := m.AddVisitor(ctx, "ghost"); ok {
		t.Fatal("AddVisitor(ghost) = ok, want not ok")
	}
}

// TestSweepObserver_Invoked confirms the observability hook fires once
// per completed GC pass with the expected scan count.
func TestSweepObserver_Invoked(t *testing.T) {
	ctx := context.Background()
	fc := &clocktest.Fake{}
	calls := 0
	var lastScanned, lastEvicted int
	m := New(Config{GCPeriodS: 1}, fc, nil, func(scanned, evicted int, _ time.Duration) {
		calls++
		lastScanned, lastEvicted = scanned, evicted
	})
	defer m.Close(ctx)

	m.AddSite(ctx, "s", SiteConfig{Defense: flatDefense(t, 10), VisitorLifetimeMs: 100, DurationS: 30})
	m.GetSite(ctx, "s")

	fc.Advance(200 * time.Millisecond)
	fc.Advance(1 * time.Second)

	if calls == 0 {
		t.Fatal("SweepObserver never invoked")
	}
	if lastScanned < 1 {
		t.Fatalf("last sweep scanned = %d, want >= 1", lastScanned)
	}
	if lastEvicted != 1 {
		t.Fatalf("last sweep evicted = %d, want 1", lastEvicted)
	}
}

// TestRename_AbsentSourceIsNoop exercises spec.md §4.4: renaming a
// nonexistent id is a no-op success.
func TestRename_AbsentSourceIsNoop(t *testing.T) {
	ctx := context.Background()
	fc := &clocktest.Fake{}
	m := New(Config{GCPeriodS: 1}, fc, nil, nil)
	defer m.Close(ctx)

	m.Rename(ctx, "nope", "also-nope")

	if _, ok := m.GetSite(ctx, "also-nope"); ok {
		t.Fatal("GetSite(also-nope) = ok after renaming an absent source")
	}
}
