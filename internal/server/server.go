// Package server is the demo TCP front end wiring the Counter/Master
// fleet, the challenge cache, and protected-resource delivery into one
// connection-handling loop (SPEC_FULL.md's Demo end-to-end wiring).
//
// Kept from JeddyMaster-pow/internal/server/server.go: the accept loop,
// graceful-shutdown handshake (shutdownCh/shutdownOnce/wg), and
// max-connections gate are unchanged in shape. handleConnection is
// rewritten around Master.AddVisitor (difficulty), internal/challenge
// (puzzle + token TTL storage), internal/puzzle (solve verification),
// and internal/resource (payload release) instead of a single flat
// pow.Service + static quote list.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcaptcha/powcore/internal/challenge"
	"github.com/mcaptcha/powcore/internal/core/errs"
	"github.com/mcaptcha/powcore/internal/master"
	"github.com/mcaptcha/powcore/internal/puzzle"
	"github.com/mcaptcha/powcore/internal/resource"
	"github.com/mcaptcha/powcore/pkg/protocol"
)

// Config holds server configuration
type Config struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxConnections  int
	ShutdownTimeout time.Duration
	// SiteKey identifies the protected site this demo server fronts.
	// Master must already have a Counter registered under this key
	// (see cmd/server/main.go's startup wiring).
	SiteKey string
}

// Server represents the TCP server
type Server struct {
	config          Config
	master          *master.Master
	challengeStore  challenge.Store
	resourceService resource.Service
	logger          *slog.Logger
	listener        net.Listener
	activeConns     int32
	wg              sync.WaitGroup
	shutdownCh      chan struct{}
	shutdownOnce    sync.Once
}

// NewServer creates a new TCP server instance
func NewServer(config Config, m *master.Master, challengeStore challenge.Store, resourceService resource.Service, logger *slog.Logger) *Server {
	return &Server{
		config:          config,
		master:          m,
		challengeStore:  challengeStore,
		resourceService: resourceService,
		logger:          logger,
		shutdownCh:      make(chan struct{}),
	}
}

// ListenAndServe starts the server and listens for incoming connections
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, s.config.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	s.listener = listener
	s.logger.Info("Server started", "address", addr)

	// Handle graceful shutdown
	go s.handleShutdown(ctx)

	// Accept connections
	for {
		select {
		case <-s.shutdownCh:
			s.logger.Info("Server shutting down...")
			return s.shutdown()
		default:
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.shutdownCh:
					// Listener closed due to shutdown - perform graceful shutdown
					s.logger.Info("Accept failed due to shutdown, cleaning up...")
					return s.shutdown()
				default:
					s.logger.Error("Failed to accept connection", "error", err)
					continue
				}
			}

			// Check max connections limit
			if s.config.MaxConnections > 0 && atomic.LoadInt32(&s.activeConns) >= int32(s.config.MaxConnections) {
				s.logger.Warn("Max connections reached, rejecting connection",
					"remote_addr", conn.RemoteAddr().String())
				conn.Close()
				continue
			}

			// Handle connection in a new goroutine
			s.wg.Add(1)
			atomic.AddInt32(&s.activeConns, 1)
			go s.handleConnection(conn)
		}
	}
}

// handleShutdown handles graceful shutdown signal
func (s *Server) handleShutdown(ctx context.Context) {
	<-ctx.Done()
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
		// Close listener to unblock Accept() immediately
		if s.listener != nil {
			s.listener.Close()
		}
	})
}

// shutdown performs graceful shutdown
func (s *Server) shutdown() error {
	// Listener already closed in handleShutdown
	s.logger.Info("Waiting for active connections to finish...")

	// Wait for active connections with timeout
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("All connections closed gracefully")
	case <-time.After(s.config.ShutdownTimeout):
		s.logger.Warn("Shutdown timeout reached, forcing shutdown",
			"active_connections", atomic.LoadInt32(&s.activeConns))
	}

	return nil
}

// handleConnection drives one challenge -> proof -> token -> redeem ->
// payload round trip for a single connection.
func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		conn.Close()
		atomic.AddInt32(&s.activeConns, -1)
		s.wg.Done()
	}()

	ctx := context.Background()
	remoteAddr := conn.RemoteAddr().String()
	s.logger.Info("New connection", "remote_addr", remoteAddr)

	result, ok := s.master.AddVisitor(ctx, s.config.SiteKey)
	if !ok {
		s.logger.Error("Unknown site", "error", errs.UnknownSite(s.config.SiteKey), "remote_addr", remoteAddr)
		s.sendError(conn, "Internal server error")
		return
	}

	challengeStr, err := puzzle.GenerateChallenge()
	if err != nil {
		s.logger.Error("Failed to generate challenge", "error", err, "remote_addr", remoteAddr)
		s.sendError(conn, "Internal server error")
		return
	}

	p := challenge.Puzzle{
		Challenge:        challengeStr,
		DifficultyFactor: result.DifficultyFactor,
		DurationS:        result.DurationS,
		SiteKey:          s.config.SiteKey,
	}
	if err := s.challengeStore.CachePoW(ctx, p, time.Duration(result.DurationS)*time.Second); err != nil {
		s.logger.Error("Failed to cache puzzle", "error", err, "remote_addr", remoteAddr)
		s.sendError(conn, "Internal server error")
		return
	}

	challengeMsg := protocol.ChallengeMessage{
		BaseMessage:      protocol.BaseMessage{Type: protocol.MsgTypeChallenge},
		Challenge:        challengeStr,
		DifficultyFactor: result.DifficultyFactor,
		DurationS:        result.DurationS,
		SiteKey:          s.config.SiteKey,
	}
	if err := protocol.WriteMessage(conn, challengeMsg, s.config.WriteTimeout); err != nil {
		s.logger.Error("Failed to send challenge", "error", err, "remote_addr", remoteAddr)
		s.challengeStore.DeletePoW(ctx, challengeStr)
		return
	}

	s.logger.Debug("Challenge sent", "remote_addr", remoteAddr, "challenge", challengeStr)

	var proofMsg protocol.ProofMessage
	if err := protocol.ReadMessage(conn, &proofMsg, s.config.ReadTimeout); err != nil {
		s.logger.Error("Failed to read proof", "error", err, "remote_addr", remoteAddr)
		s.challengeStore.DeletePoW(ctx, challengeStr)
		s.sendError(conn, "Failed to read proof")
		return
	}

	if proofMsg.Challenge != challengeStr {
		s.logger.Warn("Challenge mismatch - possible replay attack",
			"remote_addr", remoteAddr, "expected", challengeStr, "received", proofMsg.Challenge)
		s.challengeStore.DeletePoW(ctx, challengeStr)
		s.sendError(conn, "Challenge mismatch")
		return
	}

	issued, ok := s.challengeStore.RetrievePoW(ctx, challengeStr)
	if !ok {
		s.logger.Warn("Puzzle already consumed or expired", "remote_addr", remoteAddr)
		s.sendError(conn, "Puzzle expired")
		return
	}

	if issued.SiteKey != proofMsg.SiteKey || !puzzle.Verify(challengeStr, proofMsg.Nonce, issued.DifficultyFactor) {
		s.logger.Warn("Invalid proof", "remote_addr", remoteAddr)
		s.sendError(conn, "Invalid proof")
		return
	}

	s.logger.Info("Proof verified successfully", "remote_addr", remoteAddr)

	token, err := randomToken()
	if err != nil {
		s.logger.Error("Failed to generate token", "error", err, "remote_addr", remoteAddr)
		s.sendError(conn, "Internal server error")
		return
	}
	if err := s.challengeStore.CacheResult(ctx, challenge.Token{Token: token, SiteKey: s.config.SiteKey, DurationS: issued.DurationS}, time.Duration(issued.DurationS)*time.Second); err != nil {
		s.logger.Error("Failed to cache token", "error", err, "remote_addr", remoteAddr)
		s.sendError(conn, "Internal server error")
		return
	}

	tokenMsg := protocol.TokenMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.MsgTypeToken},
		Token:       token,
		SiteKey:     s.config.SiteKey,
		DurationS:   issued.DurationS,
	}
	if err := protocol.WriteMessage(conn, tokenMsg, s.config.WriteTimeout); err != nil {
		s.logger.Error("Failed to send token", "error", err, "remote_addr", remoteAddr)
		return
	}

	var redeemMsg protocol.RedeemMessage
	if err := protocol.ReadMessage(conn, &redeemMsg, s.config.ReadTimeout); err != nil {
		s.logger.Error("Failed to read redeem request", "error", err, "remote_addr", remoteAddr)
		return
	}

	if !s.challengeStore.VerifyResult(ctx, redeemMsg.Token, redeemMsg.SiteKey) {
		s.logger.Warn("Token redemption failed", "remote_addr", remoteAddr)
		s.sendError(conn, "Invalid or expired token")
		return
	}

	payload := s.resourceService.Release(s.config.SiteKey)
	payloadMsg := protocol.PayloadMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.MsgTypePayload},
		SiteKey:     payload.SiteKey,
		Body:        payload.Body,
	}
	if err := protocol.WriteMessage(conn, payloadMsg, s.config.WriteTimeout); err != nil {
		s.logger.Error("Failed to send payload", "error", err, "remote_addr", remoteAddr)
		return
	}

	s.logger.Info("Payload sent successfully", "remote_addr", remoteAddr)
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// sendError sends an error message to the client
func (s *Server) sendError(conn net.Conn, message string) {
	errMsg := protocol.ErrorMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.MsgTypeError},
		Message:     message,
	}

	if err := protocol.WriteMessage(conn, errMsg, s.config.WriteTimeout); err != nil {
		s.logger.Error("Failed to send error message", "error", err)
	}
}

// GetActiveConnections returns the number of active connections
func (s *Server) GetActiveConnections() int32 {
	return atomic.LoadInt32(&s.activeConns)
}
