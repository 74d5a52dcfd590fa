// Package resource stands in for "let the visitor through to the
// origin" — the actual purpose of mcaptcha's PoW gate (spec.md §1) once
// a redemption token verifies. Adapted from the teacher's
// internal/quotes/service.go: same mutex-guarded rand.Rand shape, with
// inspirational quotes swapped for guarded origin payloads.
package resource

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/agilira/go-timecache"
)

// Service hands out a payload to a caller that has redeemed a valid
// token. A real deployment would proxy or fetch from an origin server
// here; this ships a small static pool so the demo binaries in
// cmd/server and cmd/client have something concrete to exercise.
type Service interface {
	Release(siteKey string) Payload
}

// Payload is the guarded content released after successful verification.
type Payload struct {
	SiteKey string
	Body    string
}

// InMemoryService implements Service with an in-memory payload pool.
type InMemoryService struct {
	bodies []string
	rng    *rand.Rand
	mu     sync.Mutex // protects rng from concurrent use
}

// NewInMemoryService constructs an InMemoryService seeded from the
// package clock (go-timecache), so tests that want determinism should
// construct their own rand.Rand via NewInMemoryServiceWithRand instead.
func NewInMemoryService() *InMemoryService {
	return NewInMemoryServiceWithRand(rand.New(rand.NewSource(timecache.CachedTimeNano())))
}

// NewInMemoryServiceWithRand constructs an InMemoryService with a
// caller-supplied source of randomness, for deterministic tests.
func NewInMemoryServiceWithRand(rng *rand.Rand) *InMemoryService {
	return &InMemoryService{
		bodies: []string{
			"origin: welcome, verified visitor.",
			"origin: here is the page you requested.",
			"origin: proof accepted, serving protected content.",
			"origin: access granted for this session.",
		},
		rng: rng,
	}
}

var _ Service = (*InMemoryService)(nil)

// Release returns a guarded payload for siteKey. Safe for concurrent use.
func (s *InMemoryService) Release(siteKey string) Payload {
	if len(s.bodies) == 0 {
		return Payload{SiteKey: siteKey, Body: fmt.Sprintf("origin: nothing configured for %s", siteKey)}
	}

	s.mu.Lock()
	idx := s.rng.Intn(len(s.bodies))
	s.mu.Unlock()

	return Payload{SiteKey: siteKey, Body: s.bodies[idx]}
}
