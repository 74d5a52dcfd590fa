package main

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/mcaptcha/powcore/internal/challenge"
	"github.com/mcaptcha/powcore/internal/client"
	"github.com/mcaptcha/powcore/internal/master"
	"github.com/mcaptcha/powcore/internal/resource"
	"github.com/mcaptcha/powcore/internal/server"
	"github.com/mcaptcha/powcore/pkg/defense"
)

const integrationSiteKey = "example.com"

func TestIntegration_ClientServerFlow(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	d, err := defense.New([]defense.Level{{Threshold: 0, DifficultyFactor: 1}}) // factor 1: no required bits, fast tests
	if err != nil {
		t.Fatalf("defense.New: %v", err)
	}
	m := master.New(master.Config{GCPeriodS: 3600}, nil, nil, nil)
	m.AddSite(context.Background(), integrationSiteKey, master.SiteConfig{
		Defense:           d,
		VisitorLifetimeMs: 60_000,
		DurationS:         30,
	})
	challengeStore := challenge.NewEmbedded(nil, nil)
	resourceService := resource.NewInMemoryService()

	serverConfig := server.Config{
		Host:            "127.0.0.1",
		Port:            "18080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		MaxConnections:  10,
		ShutdownTimeout: 5 * time.Second,
		SiteKey:         integrationSiteKey,
	}
	srv := server.NewServer(serverConfig, m, challengeStore, resourceService, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		srv.ListenAndServe(ctx)
	}()

	time.Sleep(200 * time.Millisecond)

	clientConfig := client.Config{
		ServerHost:     "127.0.0.1",
		ServerPort:     "18080",
		SiteKey:        integrationSiteKey,
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		SolveTimeout:   30 * time.Second,
	}

	c := client.NewClient(clientConfig, logger)

	t.Run("SuccessfulPayloadRetrieval", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		payload, err := c.RequestPayload(ctx)
		if err != nil {
			t.Fatalf("Failed to get payload: %v", err)
		}

		if payload == "" {
			t.Error("Payload should not be empty")
		}

		t.Logf("Received payload: %s", payload)
	})

	t.Run("MultipleRequests", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			payload, err := c.RequestPayload(ctx)
			cancel()

			if err != nil {
				t.Fatalf("Request %d failed: %v", i+1, err)
			}

			if payload == "" {
				t.Errorf("Request %d returned empty payload", i+1)
			}
		}
	})

	cancel()
	time.Sleep(100 * time.Millisecond)
}
