// Package challenge implements spec.md §4.2: a bounded, TTL-indexed
// store of issued puzzle parameters and one-time redemption tokens,
// with at-most-once verification semantics.
//
// Grounded on original_source/src/cache/redis.rs's HashCache
// (difficulty_map/result_map, CachePoW/RetrivePoW/CacheResult/
// VerifyCaptchaResult handlers with a per-entry delayed delete),
// translated onto internal/core/actor instead of an actix Addr.
package challenge

import (
	"context"
	"time"

	"github.com/mcaptcha/powcore/internal/core/actor"
	"github.com/mcaptcha/powcore/internal/core/clock"
	"github.com/mcaptcha/powcore/internal/core/errs"
	"github.com/mcaptcha/powcore/internal/metrics"
)

// Puzzle is an issued proof-of-work puzzle (spec.md §3 Issued puzzle).
type Puzzle struct {
	Challenge        string
	DifficultyFactor uint32
	DurationS        uint64
	SiteKey          string
}

// Token is a one-time redemption credential (spec.md §3 Redemption token).
type Token struct {
	Token     string
	SiteKey   string
	DurationS uint64
}

// Store is the capability set any conforming cache implementation must
// satisfy (spec.md §4.2, §6). The embedded implementation below and any
// future external (e.g. Redis-backed) implementation both conform to
// this interface; callers depend only on Store.
type Store interface {
	// CachePoW inserts a puzzle keyed by its Challenge and schedules its
	// automatic deletion after ttl.
	CachePoW(ctx context.Context, p Puzzle, ttl time.Duration) error

	// RetrievePoW atomically reads and removes the puzzle for challenge.
	// Subsequent calls for the same challenge return (Puzzle{}, false)
	// until a new CachePoW.
	RetrievePoW(ctx context.Context, challenge string) (Puzzle, bool)

	// DeletePoW idempotently removes challenge, if present.
	DeletePoW(ctx context.Context, challenge string)

	// CacheResult inserts a redemption token and schedules its automatic
	// deletion after ttl.
	CacheResult(ctx context.Context, tok Token, ttl time.Duration) error

	// VerifyResult atomically reads and removes the entry for token,
	// returning true iff an entry existed and its stored site key equals
	// key. On any outcome (match, mismatch, or absence) the entry is
	// consumed — one-shot semantics per spec.md §4.2.
	VerifyResult(ctx context.Context, token, key string) bool

	// DeleteResult idempotently removes token, if present.
	DeleteResult(ctx context.Context, token string)
}

// ExternalProbe is the contract an external (e.g. Redis-backed) cache
// backend must satisfy at connect time: atomic set-with-TTL, atomic
// get-and-delete, and a commands-existence probe, per spec.md §6. No
// concrete implementation ships here — see DESIGN.md's Open Question
// resolution for why.
type ExternalProbe interface {
	// ProbeCommands verifies the backend exposes the primitives an
	// at-most-once Store requires (atomic SET...TTL, atomic GETDEL or
	// equivalent). It must return an error describing which primitive is
	// missing when the handshake should fail.
	ProbeCommands(ctx context.Context) error
}

type entryState struct {
	puzzles map[string]Puzzle
	tokens  map[string]string // token -> site key
}

// Embedded is the in-process Store implementation (spec.md §4.2
// "Algorithm": a key-to-entry map plus a timer per entry). It is the
// default cache_backend per spec.md §6.
type Embedded struct {
	mbox    *actor.Mailbox[entryState]
	clock   clock.Clock
	metrics metrics.Metrics
}

// NewEmbedded constructs an Embedded cache. clk and m may be nil, in
// which case clock.System{} and metrics.Noop{} are used.
func NewEmbedded(clk clock.Clock, m metrics.Metrics) *Embedded {
	if clk == nil {
		clk = clock.System{}
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &Embedded{
		mbox: actor.New(entryState{
			puzzles: make(map[string]Puzzle),
			tokens:  make(map[string]string),
		}),
		clock:   clk,
		metrics: m,
	}
}

var _ Store = (*Embedded)(nil)

// CachePoW implements Store.
func (e *Embedded) CachePoW(ctx context.Context, p Puzzle, ttl time.Duration) error {
	_, ok := actor.Call(ctx, e.mbox, func(s *entryState) struct{} {
		s.puzzles[p.Challenge] = p
		return struct{}{}
	})
	if !ok {
		return errs.ActorMailboxFailure("challenge cache", ctx.Err())
	}
	e.metrics.PuzzleCached()

	// Schedule deletion. A premature RetrievePoW already removed the
	// map entry, so this fires as a harmless no-op per spec.md §4.2.
	challenge := p.Challenge
	e.clock.AfterFunc(ttl, func() {
		e.mbox.Cast(func(s *entryState) {
			delete(s.puzzles, challenge)
		})
	})
	return nil
}

// RetrievePoW implements Store.
func (e *Embedded) RetrievePoW(ctx context.Context, challenge string) (Puzzle, bool) {
	type result struct {
		p  Puzzle
		ok bool
	}
	r, called := actor.Call(ctx, e.mbox, func(s *entryState) result {
		p, ok := s.puzzles[challenge]
		if ok {
			delete(s.puzzles, challenge)
		}
		return result{p, ok}
	})
	if !called {
		return Puzzle{}, false
	}
	if r.ok {
		e.metrics.PuzzleHit()
	} else {
		e.metrics.PuzzleMiss()
	}
	return r.p, r.ok
}

// DeletePoW implements Store.
func (e *Embedded) DeletePoW(ctx context.Context, challenge string) {
	actor.Call(ctx, e.mbox, func(s *entryState) struct{} {
		delete(s.puzzles, challenge)
		return struct{}{}
	})
}

// CacheResult implements Store.
func (e *Embedded) CacheResult(ctx context.Context, tok Token, ttl time.Duration) error {
	_, ok := actor.Call(ctx, e.mbox, func(s *entryState) struct{} {
		s.tokens[tok.Token] = tok.SiteKey
		return struct{}{}
	})
	if !ok {
		return errs.ActorMailboxFailure("challenge cache", ctx.Err())
	}
	e.metrics.TokenCached()

	token := tok.Token
	e.clock.AfterFunc(ttl, func() {
		e.mbox.Cast(func(s *entryState) {
			delete(s.tokens, token)
		})
	})
	return nil
}

// VerifyResult implements Store.
func (e *Embedded) VerifyResult(ctx context.Context, token, key string) bool {
	ok, called := actor.Call(ctx, e.mbox, func(s *entryState) bool {
		storedKey, found := s.tokens[token]
		delete(s.tokens, token) // one-shot: consumed regardless of outcome
		return found && storedKey == key
	})
	if !called {
		return false
	}
	e.metrics.VerifyOutcome(ok)
	return ok
}

// DeleteResult implements Store.
func (e *Embedded) DeleteResult(ctx context.Context, token string) {
	actor.Call(ctx, e.mbox, func(s *entryState) struct{} {
		delete(s.tokens, token)
		return struct{}{}
	})
}

// Close releases the cache's actor goroutine.
func (e *Embedded) Close() { e.mbox.Close() }
