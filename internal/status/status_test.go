package status_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/updater/internal/status"
)

func TestTransientString(t *testing.T) {
	tests := []struct {
		s    status.Transient
		want string
	}{
		{status.Unknown, "unknown"},
		{status.PausedError, "paused_error"},
		{status.VerificationFailed, "verification_failed"},
		{status.Deleted, "deleted"},
		{status.Transient(99), "transient(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.s.String())
		})
	}
}

func TestTransientJSON(t *testing.T) {
	b, err := json.Marshal(map[string]status.Transient{"s": status.Verifying})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"verifying"}`, string(b))

	var got map[string]status.Transient
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, status.Verifying, got["s"])

	var bad status.Transient
	assert.Error(t, bad.UnmarshalText([]byte("flying")))

	_, err = status.Transient(-1).MarshalText()
	assert.Error(t, err)
}

func TestPersistent(t *testing.T) {
	assert.False(t, status.PersistentUnknown.HasPayload())
	assert.True(t, status.PersistentIncomplete.HasPayload())
	assert.True(t, status.PersistentVerified.HasPayload())

	var p status.Persistent
	require.NoError(t, p.UnmarshalText([]byte("incomplete")))
	assert.Equal(t, status.PersistentIncomplete, p)
	assert.Equal(t, "persistent(7)", status.Persistent(7).String())
}

func TestTransferring(t *testing.T) {
	for s := status.Unknown; s <= status.Deleted; s++ {
		want := s == status.Starting || s == status.Downloading
		assert.Equal(t, want, s.Transferring(), s.String())
	}
}
