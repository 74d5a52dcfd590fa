// Package puzzle implements the PoW hash verification named in spec.md
// §1 as an external collaborator ("SHA-family, consumed as a pure
// function") — trimmed to pure stateless functions only, so the demo
// binaries in cmd/server and cmd/client have a concrete algorithm to
// drive end-to-end. Cryptographic puzzle design itself is an explicit
// spec.md Non-goal; this is deliberately the simplest SHA256-hashcash
// scheme that exercises the challenge cache and Counter/Master fleet.
//
// Adapted from JeddyMaster-pow/internal/pow/service.go, stripped of its
// sync.Map replay-attack cache and cleanup goroutine: that bookkeeping
// is now internal/challenge's responsibility (CachePoW/RetrievePoW's
// read-and-remove semantics already make replay impossible).
package puzzle

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/bits"
	"strconv"
)

// GenerateChallenge returns a fresh random challenge string.
func GenerateChallenge() (string, error) {
	randomBytes := make([]byte, 16)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("generating challenge: %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}

// RequiredBits converts a Defense difficulty factor (spec.md §3) into a
// required count of leading zero bits in the solution hash: the
// smallest n such that 2^n >= factor, mirroring hashcash's expected
// 2^n-attempt cost model. A factor of 0 or 1 requires no work.
func RequiredBits(difficultyFactor uint32) int {
	if difficultyFactor <= 1 {
		return 0
	}
	return bits.Len32(difficultyFactor - 1)
}

// hasLeadingZeroBits reports whether hash's first n bits are all zero.
func hasLeadingZeroBits(hash []byte, n int) bool {
	if n < 0 {
		return true
	}
	fullBytes := n / 8
	remBits := n % 8
	if fullBytes > len(hash) {
		return false
	}
	for i := 0; i < fullBytes; i++ {
		if hash[i] != 0 {
			return false
		}
	}
	if remBits == 0 {
		return true
	}
	if fullBytes >= len(hash) {
		return false
	}
	mask := byte(0xFF << (8 - remBits))
	return hash[fullBytes]&mask == 0
}

func solutionHash(challenge, nonce string) [sha256.Size]byte {
	return sha256.Sum256([]byte(challenge + nonce))
}

// Solve brute-forces a nonce whose hash with challenge has at least
// RequiredBits(difficultyFactor) leading zero bits. It respects ctx
// cancellation since higher difficulties can run arbitrarily long.
func Solve(ctx context.Context, challenge string, difficultyFactor uint32) (string, error) {
	bitsRequired := RequiredBits(difficultyFactor)
	for nonce := 0; ; nonce++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		nonceStr := strconv.Itoa(nonce)
		hash := solutionHash(challenge, nonceStr)
		if hasLeadingZeroBits(hash[:], bitsRequired) {
			return nonceStr, nil
		}
	}
}

// Verify reports whether nonce solves challenge at difficultyFactor.
func Verify(challenge, nonce string, difficultyFactor uint32) bool {
	hash := solutionHash(challenge, nonce)
	return hasLeadingZeroBits(hash[:], RequiredBits(difficultyFactor))
}
