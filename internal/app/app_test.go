package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/sandeepkv93/edu-session-service/internal/config"
	"github.com/sandeepkv93/edu-session-service/internal/health"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewAssignsDependenciesAndTimeouts(t *testing.T) {
	cfg := &config.Config{HTTPShutdownTimeout: 10 * time.Second}
	logger := testLogger()
	server := &http.Server{Addr: ":8080", ReadHeaderTimeout: time.Second}
	readiness := health.NewProbeRunner(100*time.Millisecond, 50*time.Millisecond)

	a := New(cfg, logger, server, nil, nil, readiness)
	if a.Config != cfg || a.Logger != logger || a.Server != server || a.Readiness != readiness {
		t.Fatal("expected app dependencies to be assigned")
	}
	if a.ShutdownTimeout != cfg.HTTPShutdownTimeout {
		t.Fatal("expected shutdown timeout copied from config")
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
		ReadHeaderTimeout: time.Second,
	}
	closed := 0
	a := New(&config.Config{HTTPShutdownTimeout: time.Second}, testLogger(), server, nil, nil, nil,
		func() error { closed++; return nil },
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	if closed != 1 {
		t.Fatalf("expected closer to run once, got %d", closed)
	}
}

func TestShutdownJoinsCloserErrors(t *testing.T) {
	a := New(&config.Config{}, testLogger(), &http.Server{}, nil, nil, nil,
		func() error { return errors.New("redis close failed") },
		nil,
		func() error { return errors.New("db close failed") },
	)
	err := a.Shutdown(context.Background())
	if err == nil {
		t.Fatal("expected joined error")
	}
	for _, want := range []string{"redis close failed", "db close failed"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestRunReportsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	a := New(&config.Config{}, testLogger(), &http.Server{Addr: ln.Addr().String()}, nil, nil, nil)
	if err := a.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "listen") {
		t.Fatalf("expected listen error, got %v", err)
	}
}
