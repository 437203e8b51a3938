package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const configFileName = "updater"

// Config holds the configuration options for the updater daemon.
type Config struct {
	DownloadDir      string           `yaml:"downloadDir,omitempty" toml:"downloadDir,omitempty"`
	DBPath           string           `yaml:"dbPath,omitempty" toml:"dbPath,omitempty"`
	LogPath          string           `yaml:"logPath,omitempty" toml:"logPath,omitempty"`
	ListenAddr       string           `yaml:"listenAddr,omitempty" toml:"listenAddr,omitempty"`
	ProgressInterval time.Duration    `yaml:"progressInterval,omitempty" toml:"progressInterval,omitempty"`
	Mirror           *MirrorConfig    `yaml:"mirror,omitempty" toml:"mirror,omitempty"`
	Installer        *InstallerConfig `yaml:"installer,omitempty" toml:"installer,omitempty"`
	Power            *PowerConfig     `yaml:"power,omitempty" toml:"power,omitempty"`
}

// MirrorConfig describes where mirror listings come from and how mirrors are probed.
type MirrorConfig struct {
	ListingURL       string        `yaml:"listingUrl,omitempty" toml:"listingUrl,omitempty"`
	HostSuffix       string        `yaml:"hostSuffix,omitempty" toml:"hostSuffix,omitempty"`
	Project          string        `yaml:"project,omitempty" toml:"project,omitempty"`
	RootPath         string        `yaml:"rootPath,omitempty" toml:"rootPath,omitempty"`
	Device           string        `yaml:"device,omitempty" toml:"device,omitempty"`
	ProbeCount       int           `yaml:"probeCount,omitempty" toml:"probeCount,omitempty"`
	ProbeConcurrency int           `yaml:"probeConcurrency,omitempty" toml:"probeConcurrency,omitempty"`
	ProbeTimeout     time.Duration `yaml:"probeTimeout,omitempty" toml:"probeTimeout,omitempty"`
	ProbePort        int           `yaml:"probePort,omitempty" toml:"probePort,omitempty"`
}

// InstallerConfig holds the spool directory shared with the install agent.
type InstallerConfig struct {
	SpoolDir string `yaml:"spoolDir,omitempty" toml:"spoolDir,omitempty"`
}

// PowerConfig controls the sleep inhibitor taken while transfers run.
type PowerConfig struct {
	DisableInhibit bool `yaml:"disableInhibit,omitempty" toml:"disableInhibit,omitempty"`
}

// GetConfig reads the configuration file and returns a Config struct.
// If the configuration file does not exist, it returns the default configuration.
func GetConfig() (*Config, error) {
	return GetConfigFrom(filepath.Join(xdg.ConfigHome, configFileName))
}

// GetConfigFrom reads the configuration at path. Files ending in .toml are
// decoded as TOML, everything else as YAML.
func GetConfigFrom(path string) (*Config, error) {
	defaults := DefaultConfig()

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}

		return nil, err
	}

	if len(strings.TrimSpace(string(b))) == 0 {
		return &defaults, nil
	}

	var cfg Config

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(b, &cfg)
	} else {
		err = yaml.Unmarshal(b, &cfg)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	mirrorCfg := zeroOr(cfg.Mirror, defaults.Mirror)
	installerCfg := zeroOr(cfg.Installer, defaults.Installer)
	powerCfg := zeroOr(cfg.Power, defaults.Power)

	return &Config{
		DownloadDir:      zeroOr(cfg.DownloadDir, defaults.DownloadDir),
		DBPath:           zeroOr(cfg.DBPath, defaults.DBPath),
		LogPath:          zeroOr(cfg.LogPath, defaults.LogPath),
		ListenAddr:       zeroOr(cfg.ListenAddr, defaults.ListenAddr),
		ProgressInterval: zeroOr(cfg.ProgressInterval, defaults.ProgressInterval),
		Mirror: &MirrorConfig{
			ListingURL:       zeroOr(mirrorCfg.ListingURL, defaults.Mirror.ListingURL),
			HostSuffix:       zeroOr(mirrorCfg.HostSuffix, defaults.Mirror.HostSuffix),
			Project:          zeroOr(mirrorCfg.Project, defaults.Mirror.Project),
			RootPath:         zeroOr(mirrorCfg.RootPath, defaults.Mirror.RootPath),
			Device:           zeroOr(mirrorCfg.Device, defaults.Mirror.Device),
			ProbeCount:       zeroOr(mirrorCfg.ProbeCount, defaults.Mirror.ProbeCount),
			ProbeConcurrency: zeroOr(mirrorCfg.ProbeConcurrency, defaults.Mirror.ProbeConcurrency),
			ProbeTimeout:     zeroOr(mirrorCfg.ProbeTimeout, defaults.Mirror.ProbeTimeout),
			ProbePort:        zeroOr(mirrorCfg.ProbePort, defaults.Mirror.ProbePort),
		},
		Installer: &InstallerConfig{
			SpoolDir: zeroOr(installerCfg.SpoolDir, defaults.Installer.SpoolDir),
		},
		Power: &PowerConfig{
			DisableInhibit: zeroOr(powerCfg.DisableInhibit, defaults.Power.DisableInhibit),
		},
	}, nil
}

func DefaultConfig() Config {
	return Config{
		DownloadDir:      downloadDir,
		DBPath:           dbPath,
		LogPath:          logPath,
		ListenAddr:       listenAddr,
		ProgressInterval: progressInterval,
		Mirror: &MirrorConfig{
			ListingURL:       mirrorListingURL,
			HostSuffix:       mirrorHostSuffix,
			Project:          mirrorProject,
			RootPath:         mirrorRootPath,
			Device:           mirrorDevice,
			ProbeCount:       probeCount,
			ProbeConcurrency: probeConcurrency,
			ProbeTimeout:     probeTimeout,
			ProbePort:        probePort,
		},
		Installer: &InstallerConfig{
			SpoolDir: spoolDir,
		},
		Power: &PowerConfig{
			DisableInhibit: disableInhibit,
		},
	}
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}
