package provider_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"golemfacade/internal/logging"
	"golemfacade/internal/provider"
	"golemfacade/internal/services"
	"golemfacade/internal/testsupport"
)

func TestServiceRunBuildsCommand(t *testing.T) {
	launcher := testsupport.NewFakeLauncher()
	svc := provider.NewService(provider.ServiceOptions{
		Binary:  "/opt/golem/ya-provider",
		Env:     []string{"EXE_UNIT_PATH=/opt/golem/plugins/ya-*.json", "DATA_DIR=/data/provider"},
		Network: "holesky",
		Debug:   true,
	}, launcher, logging.NewNop())

	exits := make(chan int, 1)
	if err := svc.Run("app-key-1", func(code int) { exits <- code }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	spec := launcher.Launched[0]
	if spec.Name != "ya-provider" || spec.Path != "/opt/golem/ya-provider" {
		t.Fatalf("unexpected spec %+v", spec)
	}
	if want := []string{"run", "--debug", "--payment-network", "holesky"}; !slices.Equal(spec.Args, want) {
		t.Fatalf("args = %v, want %v", spec.Args, want)
	}
	for _, kv := range []string{
		"EXE_UNIT_PATH=/opt/golem/plugins/ya-*.json",
		"DATA_DIR=/data/provider",
		"MIN_AGREEMENT_EXPIRATION=30s",
		"YAGNA_APPKEY=app-key-1",
	} {
		if !slices.Contains(spec.Env, kv) {
			t.Fatalf("env %v missing %s", spec.Env, kv)
		}
	}

	launcher.Last("ya-provider").Exit(7)
	if code := <-exits; code != 7 {
		t.Fatalf("exit code = %d", code)
	}
	if svc.Running() {
		t.Fatal("service reports running after exit")
	}
}

func TestServiceRejectsSecondRun(t *testing.T) {
	launcher := testsupport.NewFakeLauncher()
	svc := provider.NewService(provider.ServiceOptions{Binary: "ya-provider"}, launcher, nil)

	if err := svc.Run("key", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	err := svc.Run("key", nil)
	if !errors.Is(err, services.ErrDaemon) {
		t.Fatalf("expected daemon error, got %v", err)
	}
	if launcher.Count("ya-provider") != 1 {
		t.Fatalf("launches = %d", launcher.Count("ya-provider"))
	}

	if err := svc.Stop(context.Background(), 30*time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	stops, graces := launcher.Last("ya-provider").Stops()
	if stops != 1 || graces[0] != 30*time.Second {
		t.Fatalf("stops = %d graces = %v", stops, graces)
	}
	if err := svc.Run("key", nil); err != nil {
		t.Fatalf("Run after stop: %v", err)
	}
}

func TestServiceRequiresAppKey(t *testing.T) {
	svc := provider.NewService(provider.ServiceOptions{Binary: "ya-provider"}, testsupport.NewFakeLauncher(), nil)
	if err := svc.Run(" ", nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if err := svc.Stop(context.Background(), time.Second); err != nil {
		t.Fatalf("Stop without run: %v", err)
	}
}
