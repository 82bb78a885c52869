package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultMatchesDocumentedOptionTable(t *testing.T) {
	cfg := Default()
	if cfg.Title != "PaintChat" || cfg.CanvasWidth != 1920 || cfg.CanvasHeight != 1080 || cfg.LayerCount != 3 {
		t.Fatalf("Default() = %+v, does not match documented defaults", cfg)
	}
	if cfg.FSPersistenceEnabled() {
		t.Fatal("persistence should be disabled by default")
	}
	if cfg.BrokerEnabled() {
		t.Fatal("broker mode should be disabled by default")
	}
}

func TestLoadMergesJSONOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"title":"MyRoom","layerCount":5}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Title != "MyRoom" || cfg.LayerCount != 5 {
		t.Fatalf("Load() = %+v, want title=MyRoom layerCount=5", cfg)
	}
	// untouched fields retain their defaults.
	if cfg.CanvasWidth != 1920 {
		t.Fatalf("CanvasWidth = %d, want untouched default 1920", cfg.CanvasWidth)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("REICHAT_TITLE", "EnvRoom")
	t.Setenv("REICHAT_LAYER_COUNT", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Title != "EnvRoom" || cfg.LayerCount != 7 {
		t.Fatalf("Load() = %+v, want env overrides applied", cfg)
	}
}

func TestFSPersistenceEnabledRejectsSentinels(t *testing.T) {
	cases := []string{"", "null", "/dev/null"}
	for _, v := range cases {
		cfg := Default()
		cfg.DataDir = v
		if cfg.FSPersistenceEnabled() {
			t.Errorf("FSPersistenceEnabled() with DataDir=%q should be false", v)
		}
	}
	cfg := Default()
	cfg.DataDir = "/var/data"
	if !cfg.FSPersistenceEnabled() {
		t.Fatal("FSPersistenceEnabled() with a real DataDir should be true")
	}
}

func TestBrokerEnabledDisablesFSPersistencePrecedence(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/var/data"
	cfg.RedisHost = "redis.internal"
	if !cfg.BrokerEnabled() {
		t.Fatal("expected broker mode enabled when RedisHost is set")
	}
	if cfg.FSPersistenceEnabled() {
		t.Fatal("expected broker mode to disable filesystem persistence despite DataDir being set")
	}
}

func TestTrustForwardedForOnlyRecognizesXFF(t *testing.T) {
	cfg := Default()
	if cfg.TrustForwardedFor() {
		t.Fatal("default config should not trust forwarded headers")
	}
	cfg.ForwardedHeaderType = "XFF"
	if !cfg.TrustForwardedFor() {
		t.Fatal("ForwardedHeaderType=XFF should be trusted")
	}
	cfg.ForwardedHeaderType = "bogus"
	if cfg.TrustForwardedFor() {
		t.Fatal("unrecognized forwarded header type should not be trusted")
	}
}
