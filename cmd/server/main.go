package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"github.com/Tyrowin/nexus-chat-server/internal/server"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Nexus chat server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	_ = godotenv.Load()

	config, err := server.NewConfigFromEnv()
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	log.Info("Starting Nexus Chat Server...", "port", config.Port, "origins", config.AllowedOrigins)

	srv := server.New(config, log)
	srv.Start()

	httpServer := server.CreateServer(config.Port, srv.Routes())

	errChan := make(chan error, 1)
	go func() {
		if err := server.StartServer(httpServer, log); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		config.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return server.ShutdownServer(ctx, httpServer, log)
			},
			"hub": func(context.Context) error {
				return srv.Hub().Shutdown(config.ShutdownTimeout)
			},
		},
	)

	select {
	case err := <-errChan:
		_ = srv.Hub().Shutdown(config.ShutdownTimeout)
		return exitRuntime, err
	case code := <-wait:
		log.Info("Server stopped", "exit_code", code)
		if code != exitOK {
			return exitRuntime, errors.New("graceful shutdown did not complete")
		}
		return exitOK, nil
	}
}
