package main

import (
	"os"
	osSignal "os/signal"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eugenenazirov/keypad-calculator/internal/application"
	"github.com/eugenenazirov/keypad-calculator/internal/calculator"
	"github.com/eugenenazirov/keypad-calculator/internal/config"
)

func TestRunServerStopsJanitorOnSignal(t *testing.T) {
	t.Cleanup(func() {
		signalNotify = osSignal.Notify
	})

	signalNotify = func(ch chan<- os.Signal, _ ...os.Signal) {
		go func() {
			ch <- syscall.SIGTERM
		}()
	}

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	app, err := application.New(config.Config{
		Port:                "127.0.0.1:0",
		MaxDigits:           calculator.DefaultMaxDigits,
		MaxSessions:         10,
		SessionIdleTTL:      time.Minute,
		ShutdownGracePeriod: time.Second,
		ReadHeaderTimeout:   time.Second,
		RateLimitRPS:        0,
		RateLimitBurst:      0,
		LogLevel:            "debug",
	}, logger)
	if err != nil {
		t.Fatalf("application.New returned error: %v", err)
	}

	drained := make(chan struct{}, 1)
	app.Server().RegisterOnShutdown(func() {
		drained <- struct{}{}
	})

	done := make(chan error, 1)
	go func() {
		done <- runServer(app, time.Second, logger)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServer returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("runServer did not return after the shutdown signal")
	}

	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatalf("expected HTTP server to be shut down")
	}

	if logs.FilterMessage("shutting down server").Len() != 1 {
		t.Fatalf("expected shutdown to be logged")
	}
	if logs.FilterMessage("session janitor stopped").Len() != 1 {
		t.Fatalf("expected session janitor to be stopped before runServer returned")
	}

	// Stop after shutdown is a no-op.
	app.Stop()
}
