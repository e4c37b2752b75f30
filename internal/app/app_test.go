package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/teakspice/shopdb/internal/config"
	"github.com/teakspice/shopdb/internal/models"
)

type fakeService struct {
	startErr error
	stopped  bool
}

func (s *fakeService) Name() string { return "fake" }

func (s *fakeService) Start(ctx context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	<-ctx.Done()
	return nil
}

func (s *fakeService) Stop(context.Context) error {
	s.stopped = true
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: "0", Mode: "release"},
		Database: config.DatabaseConfig{
			Driver:  models.DriverSQLite,
			DSN:     filepath.Join(t.TempDir(), "app.db"),
			Migrate: true,
			Pool:    models.DBPoolConfig{MaxOpenConns: 1},
		},
	}
}

func TestBuildRunnerRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	if _, err := BuildRunner(ctx, nil, ModeAll); err == nil {
		t.Fatalf("nil config should fail")
	}
	if _, err := BuildRunner(ctx, testConfig(t), "cron"); err == nil {
		t.Fatalf("unknown mode should fail")
	}
	if _, err := BuildRunner(ctx, testConfig(t), ModeWorker); err == nil {
		t.Fatalf("worker mode without queue should fail")
	}
}

func TestBuildRunnerSkipsDisabledWorker(t *testing.T) {
	runner, err := BuildRunner(context.Background(), testConfig(t), ModeAll)
	if err != nil {
		t.Fatalf("build runner failed: %v", err)
	}
	if len(runner.services) != 1 || runner.services[0].Name() != "http" {
		t.Fatalf("only http service expected, got %d services", len(runner.services))
	}
	if len(runner.cleanups) != 1 {
		t.Fatalf("container cleanup should be registered")
	}
	runner.cleanups[0]()
}

func TestRunnerStopsServicesAndRunsCleanups(t *testing.T) {
	failing := &fakeService{startErr: errors.New("boom")}
	idle := &fakeService{}
	runner := NewRunner(failing, idle)

	var order []int
	runner.OnShutdown(func() { order = append(order, 1) })
	runner.OnShutdown(func() { order = append(order, 2) })
	runner.OnShutdown(nil)

	err := runner.Run(context.Background(), time.Second, nil)
	if err == nil || err.Error() != "boom" {
		t.Fatalf("want boom error got %v", err)
	}
	if !failing.stopped || !idle.stopped {
		t.Fatalf("all services should be stopped")
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("cleanups should run in reverse order, got %v", order)
	}
}

func TestRunnerCanceledContextIsNotAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewRunner(&fakeService{}).Run(ctx, time.Second, nil); err != nil {
		t.Fatalf("canceled context should exit cleanly, got %v", err)
	}
}

func TestHTTPServiceServesAndStops(t *testing.T) {
	svc := NewHTTPService("127.0.0.1:0", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	}), HTTPOptions{})

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start(context.Background()) }()

	var addr string
	for i := 0; i < 100; i++ {
		if a := svc.Addr(); a != "127.0.0.1:0" {
			addr = a
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if addr == "" {
		t.Fatalf("listener was not bound")
	}
	resp, err := http.Get("http://" + addr + "/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "pong" {
		t.Fatalf("body want pong got %q", body)
	}

	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("start should return nil after shutdown, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]string{
		"":       ModeAll,
		" API ":  ModeAPI,
		"worker": ModeWorker,
		"all":    ModeAll,
	}
	for raw, want := range cases {
		got, err := ParseMode(raw)
		if err != nil || got != want {
			t.Fatalf("parse %q want %s got %s (%v)", raw, want, got, err)
		}
	}
	if _, err := ParseMode("cron"); err == nil {
		t.Fatalf("unknown mode should fail")
	}
	if !serveHTTP(ModeAPI) || serveHTTP(ModeWorker) || !serveWorker(ModeAll) || serveWorker(ModeAPI) {
		t.Fatalf("mode service selection mismatch")
	}
}

func TestHTTPOptionsFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "9090"
	cfg.Server.ReadTimeoutSeconds = 3
	cfg.Server.WriteTimeoutSeconds = 7
	if got := listenAddr(cfg); got != "127.0.0.1:9090" {
		t.Fatalf("unexpected addr %s", got)
	}
	opts := httpOptionsFrom(cfg)
	if opts.ReadTimeout != 3*time.Second || opts.WriteTimeout != 7*time.Second {
		t.Fatalf("unexpected timeouts %+v", opts)
	}
}
