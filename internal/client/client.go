// Package client is the demo TCP client driving the full
// challenge -> proof -> token -> redeem -> payload round trip against
// internal/server (SPEC_FULL.md's Demo end-to-end wiring).
//
// Kept from JeddyMaster-pow/internal/client/client.go: the dial,
// solve-with-timeout, and response-dispatch structure. RequestQuote's
// single proof-then-quote step is split into two round trips so the
// client exercises internal/challenge's token redemption path as well
// as its puzzle path, and solving moves to internal/puzzle instead of
// a pow.SolverService collaborator.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/mcaptcha/powcore/internal/puzzle"
	"github.com/mcaptcha/powcore/pkg/protocol"
)

// Config holds client configuration
type Config struct {
	ServerHost     string
	ServerPort     string
	SiteKey        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	SolveTimeout   time.Duration
}

// Client represents the TCP client
type Client struct {
	config Config
	logger *slog.Logger
}

// NewClient creates a new TCP client instance
func NewClient(config Config, logger *slog.Logger) *Client {
	return &Client{
		config: config,
		logger: logger,
	}
}

// RequestPayload connects to the server, solves the PoW challenge,
// redeems the resulting token, and returns the guarded payload body.
func (c *Client) RequestPayload(ctx context.Context) (string, error) {
	addr := net.JoinHostPort(c.config.ServerHost, c.config.ServerPort)
	c.logger.Info("Connecting to server", "address", addr)

	conn, err := net.DialTimeout("tcp", addr, c.config.ConnectTimeout)
	if err != nil {
		return "", fmt.Errorf("failed to connect to server: %w", err)
	}
	defer conn.Close()

	c.logger.Info("Connected to server")

	var challengeMsg protocol.ChallengeMessage
	if err := protocol.ReadMessage(conn, &challengeMsg, c.config.ReadTimeout); err != nil {
		return "", fmt.Errorf("failed to read challenge: %w", err)
	}

	c.logger.Info("Challenge received",
		"challenge", challengeMsg.Challenge,
		"difficulty_factor", challengeMsg.DifficultyFactor)

	solveCtx, cancel := context.WithTimeout(ctx, c.config.SolveTimeout)
	defer cancel()

	c.logger.Info("Solving PoW challenge...", "difficulty_factor", challengeMsg.DifficultyFactor)
	startTime := time.Now()

	nonce, err := puzzle.Solve(solveCtx, challengeMsg.Challenge, challengeMsg.DifficultyFactor)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Warn("PoW solving timeout",
				"difficulty_factor", challengeMsg.DifficultyFactor,
				"timeout", c.config.SolveTimeout,
				"elapsed", time.Since(startTime))
		} else if errors.Is(err, context.Canceled) {
			c.logger.Info("PoW solving canceled")
		} else {
			c.logger.Error("PoW solving failed", "error", err)
		}
		return "", fmt.Errorf("failed to solve challenge: %w", err)
	}

	solveDuration := time.Since(startTime)
	c.logger.Info("PoW challenge solved", "nonce", nonce, "duration", solveDuration)

	proofMsg := protocol.ProofMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.MsgTypeProof},
		Challenge:   challengeMsg.Challenge,
		Nonce:       nonce,
		SiteKey:     challengeMsg.SiteKey,
	}

	if err := protocol.WriteMessage(conn, proofMsg, c.config.WriteTimeout); err != nil {
		return "", fmt.Errorf("failed to send proof: %w", err)
	}

	c.logger.Info("Proof sent to server")

	var rawResponse json.RawMessage
	if err := protocol.ReadMessage(conn, &rawResponse, c.config.ReadTimeout); err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var baseMsg protocol.BaseMessage
	if err := json.Unmarshal(rawResponse, &baseMsg); err != nil {
		return "", fmt.Errorf("failed to parse response type: %w", err)
	}

	switch baseMsg.Type {
	case protocol.MsgTypeToken:
		var tokenMsg protocol.TokenMessage
		if err := json.Unmarshal(rawResponse, &tokenMsg); err != nil {
			return "", fmt.Errorf("failed to parse token message: %w", err)
		}
		c.logger.Info("Token received", "site_key", tokenMsg.SiteKey)
		return c.redeem(conn, tokenMsg)

	case protocol.MsgTypeError:
		var errMsg protocol.ErrorMessage
		if err := json.Unmarshal(rawResponse, &errMsg); err != nil {
			return "", fmt.Errorf("failed to parse error message: %w", err)
		}
		return "", fmt.Errorf("server error: %s", errMsg.Message)

	default:
		return "", fmt.Errorf("unexpected message type: %s", baseMsg.Type)
	}
}

// redeem presents tok and reads back the guarded payload.
func (c *Client) redeem(conn net.Conn, tok protocol.TokenMessage) (string, error) {
	redeemMsg := protocol.RedeemMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.MsgTypeRedeem},
		Token:       tok.Token,
		SiteKey:     tok.SiteKey,
	}
	if err := protocol.WriteMessage(conn, redeemMsg, c.config.WriteTimeout); err != nil {
		return "", fmt.Errorf("failed to send redeem request: %w", err)
	}

	c.logger.Info("Redeem request sent")

	var rawResponse json.RawMessage
	if err := protocol.ReadMessage(conn, &rawResponse, c.config.ReadTimeout); err != nil {
		return "", fmt.Errorf("failed to read redeem response: %w", err)
	}

	var baseMsg protocol.BaseMessage
	if err := json.Unmarshal(rawResponse, &baseMsg); err != nil {
		return "", fmt.Errorf("failed to parse response type: %w", err)
	}

	switch baseMsg.Type {
	case protocol.MsgTypePayload:
		var payloadMsg protocol.PayloadMessage
		if err := json.Unmarshal(rawResponse, &payloadMsg); err != nil {
			return "", fmt.Errorf("failed to parse payload message: %w", err)
		}
		c.logger.Info("Payload received successfully")
		return payloadMsg.Body, nil

	case protocol.MsgTypeError:
		var errMsg protocol.ErrorMessage
		if err := json.Unmarshal(rawResponse, &errMsg); err != nil {
			return "", fmt.Errorf("failed to parse error message: %w", err)
		}
		return "", fmt.Errorf("server error: %s", errMsg.Message)

	default:
		return "", fmt.Errorf("unexpected message type: %s", baseMsg.Type)
	}
}
