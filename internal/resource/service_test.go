package resource

import (
	"math/rand"
	"testing"
)

func TestRelease_ReturnsSiteKeyedPayload(t *testing.T) {
	s := NewInMemoryServiceWithRand(rand.New(rand.NewSource(1)))

	p := s.Release("example.com")
	if p.SiteKey != "example.com" {
		t.Errorf("SiteKey = %q, want %q", p.SiteKey, "example.com")
	}
	if p.Body == "" {
		t.Error("Body is empty")
	}
}

func TestRelease_EmptyPool(t *testing.T) {
	s := &InMemoryService{rng: rand.New(rand.NewSource(1))}
	p := s.Release("k")
	if p.SiteKey != "k" {
		t.Errorf("SiteKey = %q, want %q", p.SiteKey, "k")
	}
	if p.Body == "" {
		t.Error("Body is empty")
	}
}
