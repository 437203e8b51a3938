package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/updater/internal/metrics"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.SetActiveTransfers(1)
		m.TransferDone("success")
		m.VerificationDone(true)
		m.ObserveProbe(time.Millisecond)
		m.ProbeFailed()
	})
}

func TestCollectors(t *testing.T) {
	m := metrics.New()

	m.SetActiveTransfers(2)
	m.VerificationDone(true)
	m.VerificationDone(false)
	m.VerificationDone(false)
	m.ObserveProbe(45 * time.Millisecond)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	series := 0
	for _, mf := range families {
		if mf.GetName() == "updater_verifications_total" {
			series = len(mf.GetMetric())
		}
	}
	assert.Equal(t, 2, series, "one series per result label")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "updater_active_transfers 2")
	assert.Contains(t, string(body), `updater_verifications_total{result="failure"} 2`)
	assert.Contains(t, string(body), "updater_mirror_probe_latency_seconds_count 1")
}
