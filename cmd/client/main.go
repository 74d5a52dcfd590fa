package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/mcaptcha/powcore/internal/client"
)

type clientConfig struct {
	ServerHost     string
	ServerPort     string
	SiteKey        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	SolveTimeout   time.Duration
}

func loadClientConfig() clientConfig {
	return clientConfig{
		ServerHost:     getEnv("SERVER_HOST", "127.0.0.1"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		SiteKey:        getEnv("POWCORE_SITE_KEY", "demo.example.com"),
		ConnectTimeout: getEnvDuration("CONNECT_TIMEOUT", 5*time.Second),
		ReadTimeout:    getEnvDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getEnvDuration("WRITE_TIMEOUT", 10*time.Second),
		SolveTimeout:   getEnvDuration("SOLVE_TIMEOUT", 60*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("Starting powcore demo client...")

	cfg := loadClientConfig()
	logger.Info("Configuration loaded",
		"server_host", cfg.ServerHost,
		"server_port", cfg.ServerPort,
		"site_key", cfg.SiteKey)

	clientConfig := client.Config{
		ServerHost:     cfg.ServerHost,
		ServerPort:     cfg.ServerPort,
		SiteKey:        cfg.SiteKey,
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		SolveTimeout:   cfg.SolveTimeout,
	}

	c := client.NewClient(clientConfig, logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.SolveTimeout+cfg.ConnectTimeout+cfg.ReadTimeout)
	defer cancel()

	logger.Info("Requesting payload from server...")

	payload, err := c.RequestPayload(ctx)
	if err != nil {
		logger.Error("Failed to get payload", "error", err)
		log.Fatal(err)
	}

	bar := "================================================================================"
	fmt.Println("\n" + bar)
	fmt.Println("Protected payload:")
	fmt.Println(payload)
	fmt.Println(bar + "\n")

	logger.Info("Payload retrieved successfully")
}
