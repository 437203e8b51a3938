package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	listenAddr       = "127.0.0.1:7390"
	progressInterval = 1 * time.Second

	mirrorListingURL = "https://sourceforge.net/settings/mirror_choices"
	mirrorHostSuffix = "dl.sourceforge.net"
	mirrorProject    = "crdroid"
	mirrorRootPath   = ""
	mirrorDevice     = "generic"
	probeCount       = 5
	probeConcurrency = 8
	probeTimeout     = 30 * time.Second
	probePort        = 443

	disableInhibit = false
)

var (
	downloadDir = filepath.Join(xdg.DataHome, configFileName, "updates")
	dbPath      = filepath.Join(xdg.DataHome, configFileName, "updater.db")
	logPath     = filepath.Join(xdg.StateHome, configFileName, "updater.log")
	spoolDir    = filepath.Join(xdg.DataHome, configFileName, "install")
)
