package config_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/adrg/xdg"

	cfg "github.com/NamanBalaji/updater/internal/config"
)

func withTempConfigHome(t *testing.T) (restore func(), dir string, file string) {
	t.Helper()
	orig := xdg.ConfigHome
	dir = t.TempDir()
	xdg.ConfigHome = dir
	restore = func() { xdg.ConfigHome = orig }
	file = filepath.Join(dir, "updater")
	return
}

func TestGetConfig_Table(t *testing.T) {
	restore, _, cfgFile := withTempConfigHome(t)
	defer restore()

	def := cfg.DefaultConfig()

	tests := []struct {
		name      string
		preWrite  bool
		contents  string
		expectErr bool
		check     func(t *testing.T, got *cfg.Config, def cfg.Config)
	}{
		{
			name:     "missing_file_returns_defaults",
			preWrite: false,
			check: func(t *testing.T, got *cfg.Config, def cfg.Config) {
				if !reflect.DeepEqual(*got, def) {
					t.Fatalf("expected defaults\nwant: %#v\ngot:  %#v", def, *got)
				}
			},
		},
		{
			name:     "blank_file_returns_defaults",
			preWrite: true,
			contents: "\n  \n",
			check: func(t *testing.T, got *cfg.Config, def cfg.Config) {
				if !reflect.DeepEqual(*got, def) {
					t.Fatalf("expected defaults\nwant: %#v\ngot:  %#v", def, *got)
				}
			},
		},
		{
			name:      "invalid_yaml_returns_error",
			preWrite:  true,
			contents:  ": not yaml",
			expectErr: true,
			check:     func(t *testing.T, _ *cfg.Config, _ cfg.Config) {},
		},
		{
			name:     "no_sections_uses_defaults_for_nested",
			preWrite: true,
			contents: "listenAddr: 0.0.0.0:9000\n",
			check: func(t *testing.T, got *cfg.Config, def cfg.Config) {
				if got.ListenAddr != "0.0.0.0:9000" {
					t.Fatalf("listenAddr not applied, got %q", got.ListenAddr)
				}
				if !reflect.DeepEqual(*got.Mirror, *def.Mirror) {
					t.Fatalf("mirror defaults not applied\nwant: %#v\ngot:  %#v", *def.Mirror, *got.Mirror)
				}
				if !reflect.DeepEqual(*got.Installer, *def.Installer) {
					t.Fatalf("installer defaults not applied\nwant: %#v\ngot:  %#v", *def.Installer, *got.Installer)
				}
			},
		},
		{
			name:     "partial_override_and_fallback",
			preWrite: true,
			contents: `
downloadDir: /srv/updates
progressInterval: 250ms
mirror:
  device: bluejay
  probeCount: 3
  probeTimeout: 5s
power:
  disableInhibit: true
`,
			check: func(t *testing.T, got *cfg.Config, def cfg.Config) {
				if got.DownloadDir != "/srv/updates" {
					t.Fatalf("want downloadDir=/srv/updates got %q", got.DownloadDir)
				}
				if got.ProgressInterval != 250*time.Millisecond {
					t.Fatalf("want progressInterval=250ms got %s", got.ProgressInterval)
				}
				if got.Mirror.Device != "bluejay" {
					t.Fatalf("want mirror.device=bluejay got %q", got.Mirror.Device)
				}
				if got.Mirror.ProbeCount != 3 {
					t.Fatalf("want mirror.probeCount=3 got %d", got.Mirror.ProbeCount)
				}
				if got.Mirror.ProbeTimeout != 5*time.Second {
					t.Fatalf("want mirror.probeTimeout=5s got %s", got.Mirror.ProbeTimeout)
				}
				if got.Mirror.ListingURL != def.Mirror.ListingURL {
					t.Fatalf("want mirror.listingUrl default %q got %q", def.Mirror.ListingURL, got.Mirror.ListingURL)
				}
				if got.Mirror.ProbeConcurrency != def.Mirror.ProbeConcurrency {
					t.Fatalf("want mirror.probeConcurrency default %d got %d", def.Mirror.ProbeConcurrency, got.Mirror.ProbeConcurrency)
				}
				if !got.Power.DisableInhibit {
					t.Fatalf("want power.disableInhibit=true")
				}
				if got.DBPath != def.DBPath {
					t.Fatalf("want dbPath default %q got %q", def.DBPath, got.DBPath)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = os.Remove(cfgFile)

			if tt.preWrite {
				if err := os.WriteFile(cfgFile, []byte(tt.contents), 0o600); err != nil {
					t.Fatalf("write config: %v", err)
				}
			}

			got, err := cfg.GetConfig()
			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			tt.check(t, got, def)
		})
	}
}

func TestGetConfigFrom_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updater.toml")
	contents := `
listenAddr = "127.0.0.1:8000"

[mirror]
project = "lineage"
probePort = 80

[installer]
spoolDir = "/var/spool/updater"
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	got, err := cfg.GetConfigFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	def := cfg.DefaultConfig()

	if got.ListenAddr != "127.0.0.1:8000" {
		t.Fatalf("want listenAddr override got %q", got.ListenAddr)
	}
	if got.Mirror.Project != "lineage" || got.Mirror.ProbePort != 80 {
		t.Fatalf("mirror overrides not applied: %#v", *got.Mirror)
	}
	if got.Mirror.HostSuffix != def.Mirror.HostSuffix {
		t.Fatalf("want mirror.hostSuffix default %q got %q", def.Mirror.HostSuffix, got.Mirror.HostSuffix)
	}
	if got.Installer.SpoolDir != "/var/spool/updater" {
		t.Fatalf("want installer.spoolDir override got %q", got.Installer.SpoolDir)
	}
	if got.ProgressInterval != def.ProgressInterval {
		t.Fatalf("want progressInterval default %s got %s", def.ProgressInterval, got.ProgressInterval)
	}
}

func TestGetConfigFrom_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updater.toml")
	if err := os.WriteFile(path, []byte("listenAddr = "), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := cfg.GetConfigFrom(path); err == nil {
		t.Fatalf("expected error for invalid toml")
	}
}
