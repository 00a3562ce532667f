// Command tester connects to a running gateway, plays the actions configured
// through PROBE_* variables and prints every event it receives until
// PROBE_DURATION elapses or it is interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"github.com/Tyrowin/nexus-chat-server/internal/probe"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tester: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	_ = godotenv.Load()

	cfg, err := probe.LoadConfig()
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	p, err := probe.Dial(ctx, cfg, os.Stdout, log)
	if err != nil {
		return exitRuntime, err
	}
	defer p.Close()

	if err := p.Script(); err != nil {
		return exitRuntime, err
	}
	if err := p.Listen(ctx); err != nil {
		return exitRuntime, err
	}

	p.Summary(os.Stdout)
	return exitOK, nil
}
