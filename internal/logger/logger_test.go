package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/updater/internal/logger"
)

func TestInitLoggingWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "updater.log")

	require.NoError(t, logger.InitLogging(true, path))
	t.Cleanup(func() {
		logger.Close()
		log.SetOutput(os.Stderr)
	})

	assert.Equal(t, log.DebugLevel, log.GetLevel())

	logger.Debugf("probe %s", "a")
	logger.WithUpdate("u1").Info("tagged")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "probe a")
	assert.Contains(t, string(b), "update=u1")
}

func TestInitLoggingConsole(t *testing.T) {
	require.NoError(t, logger.InitLogging(false, "console"))
	t.Cleanup(logger.Close)

	assert.False(t, logger.DebugEnabled)
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}
