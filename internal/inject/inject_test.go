package inject

import (
	"context"
	"testing"

	"github.com/dmorgan81/circuitcraft/internal/config"
	"github.com/dmorgan81/circuitcraft/internal/controller"
	"github.com/dmorgan81/circuitcraft/internal/feed"
	"github.com/dmorgan81/circuitcraft/internal/handler"
	"github.com/dmorgan81/circuitcraft/internal/result"
	"github.com/dmorgan81/circuitcraft/internal/store"
	"github.com/samber/do"
)

func load(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(config.New())
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestSetupWithoutArchive(t *testing.T) {
	injector := Setup(context.Background(), load(t))
	defer func() { _ = injector.Shutdown() }()

	if _, err := do.Invoke[*handler.Handler](injector); err != nil {
		t.Fatalf("invoke handler: %v", err)
	}
	if r := do.MustInvoke[controller.Recorder](injector); r != nil {
		t.Errorf("Recorder = %T, want nil", r)
	}
	if g := do.MustInvoke[*feed.Generator](injector); g != nil {
		t.Error("feed should be disabled without an archive")
	}
	if _, ok := do.MustInvoke[result.Encoder](injector).(*result.Registry); !ok {
		t.Error("object URLs should be the default encoding")
	}
}

func TestSetupWithArchiveDir(t *testing.T) {
	cfg := load(t)
	cfg.ArchiveDir = t.TempDir()
	cfg.ResultEncoding = result.DataURL

	injector := Setup(context.Background(), cfg)
	defer func() { _ = injector.Shutdown() }()

	archiver, ok := do.MustInvoke[controller.Recorder](injector).(*store.Archiver)
	if !ok {
		t.Fatal("expected an archiver")
	}
	if archiver.Invalidator != nil {
		t.Error("no distribution configured, invalidator should be nil")
	}
	if do.MustInvoke[*feed.Generator](injector) == nil {
		t.Error("feed should be enabled with an archive")
	}
	if _, ok := do.MustInvoke[result.Encoder](injector).(result.DataURLEncoder); !ok {
		t.Error("expected data URL encoding")
	}
}
