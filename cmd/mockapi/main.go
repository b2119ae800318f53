package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-fleet-client/internal/config"
	"github.com/jrsteele09/go-fleet-client/internal/logger"
	"github.com/jrsteele09/go-fleet-client/mockapi"
)

func main() {
	log := logger.New("mockapi", os.Getenv("FLEET_LOG_LEVEL"))
	for {
		if err := run(log); err != nil {
			log.Error().Err(err).Msg("mock server failed, restarting")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("mock server stopped")
}

func run(log zerolog.Logger) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return fmt.Errorf("config.New: %w", err)
	}
	log = logger.New("mockapi", c.GetLogLevel())
	displayAppname(c.GetAppName())

	handler, err := mockapi.NewFromConfig(c, log)
	if err != nil {
		return fmt.Errorf("mockapi.New: %w", err)
	}
	server := &http.Server{Addr: c.GetMockPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(log, server) }()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

func listenAndServe(log zerolog.Logger, server *http.Server) error {
	log.Info().Str("addr", server.Addr).
		Str("admin", mockapi.DemoAdminEmail).
		Str("owner", mockapi.DemoOwnerEmail).
		Msg("mock server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
