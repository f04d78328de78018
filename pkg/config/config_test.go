package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Write.TileSize != 1024 {
		t.Errorf("default tile size = %d, want 1024", cfg.Write.TileSize)
	}
	if cfg.Write.Levels != 3 {
		t.Errorf("default levels = %d, want 3", cfg.Write.Levels)
	}
	if cfg.Write.Compression != "deflate" {
		t.Errorf("default compression = %q, want deflate", cfg.Write.Compression)
	}
	if cfg.Write.Method != "mean" {
		t.Errorf("default method = %q, want mean", cfg.Write.Method)
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Write.TileSize != DefaultConfig().Write.TileSize {
		t.Error("missing config file did not fall back to defaults")
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
write:
  tileSize: 256
  levels: 5
  compression: none
calibration:
  pixelSizeUm: [0.25, 0.5]
  channelNames: [DAPI, CD45]
output:
  stats: true
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Write.TileSize != 256 || cfg.Write.Levels != 5 {
		t.Errorf("write params = %d/%d, want 256/5", cfg.Write.TileSize, cfg.Write.Levels)
	}
	if cfg.Write.Compression != "none" {
		t.Errorf("compression = %q, want none", cfg.Write.Compression)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Write.Method != "mean" {
		t.Errorf("method = %q, want default mean", cfg.Write.Method)
	}
	if len(cfg.Calibration.PixelSizeUM) != 2 || cfg.Calibration.PixelSizeUM[0] != 0.25 {
		t.Errorf("pixel size = %v, want [0.25 0.5]", cfg.Calibration.PixelSizeUM)
	}
	if len(cfg.Calibration.ChannelNames) != 2 || cfg.Calibration.ChannelNames[1] != "CD45" {
		t.Errorf("channel names = %v", cfg.Calibration.ChannelNames)
	}
	if !cfg.Output.Stats {
		t.Error("stats flag not set")
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultConfig()
	cfg.Write.TileSize = 512
	cfg.Calibration.ChannelNames = []string{"A"}

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Write.TileSize != 512 {
		t.Errorf("round-tripped tile size = %d, want 512", loaded.Write.TileSize)
	}
	if len(loaded.Calibration.ChannelNames) != 1 || loaded.Calibration.ChannelNames[0] != "A" {
		t.Errorf("round-tripped channel names = %v", loaded.Calibration.ChannelNames)
	}
}
