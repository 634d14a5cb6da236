package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hook0/webhooks-core/internal/relayclient"
)

// relay-agent is the C12 tunnel CLI: it connects to a relay server,
// claims a capture token, and forwards inbound webhook requests to a
// local HTTP target until interrupted.
func main() {
	relayURL := flag.String("relay-url", "ws://localhost:8787/ws", "relay server WebSocket URL")
	target := flag.String("target", "3000", "local target: bare port, host:port, or full URL")
	token := flag.String("token", "", "capture token to request (blank generates a fresh one)")
	insecure := flag.Bool("insecure-skip-verify", false, "skip TLS verification when forwarding to the local target")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	targetURL, err := relayclient.ParseTarget(*target)
	if err != nil {
		log.Fatalf("relay-agent: invalid --target: %v", err)
	}

	startToken := *token
	if startToken == "" {
		startToken, err = relayclient.GenerateToken()
		if err != nil {
			log.Fatalf("relay-agent: failed to generate token: %v", err)
		}
	}

	forwarder := relayclient.NewForwarder(targetURL, *insecure)
	client := relayclient.NewClient(*relayURL, forwarder)
	client.OnStarted = func(webhookURL, viewURL string, reconnect bool) {
		if reconnect {
			fmt.Println("reconnected.")
		}
		fmt.Printf("forwarding %s -> %s\n", webhookURL, targetURL)
		fmt.Printf("inspect captured webhooks at %s\n", viewURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Run(ctx, startToken); err != nil {
		log.Fatalf("relay-agent: %v", err)
	}
	slog.Info("relay-agent stopped")
}
