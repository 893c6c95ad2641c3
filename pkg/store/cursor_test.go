package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intercooperative/agoranet/pkg/models"
)

func TestRuntimeCursorRoundTrip(t *testing.T) {
	openTestStore(t)

	zero, err := GetRuntimeCursor()
	require.NoError(t, err)
	assert.Equal(t, models.RuntimeCursor{}, zero)

	c := models.RuntimeCursor{LastEventTimestamp: 1234, LastEventFingerprint: "abc"}
	require.NoError(t, SaveRuntimeCursor(c))

	got, err := GetRuntimeCursor()
	require.NoError(t, err)
	assert.Equal(t, c, got)

	require.NoError(t, ResetRuntimeCursor())
	reset, err := GetRuntimeCursor()
	require.NoError(t, err)
	assert.Equal(t, models.RuntimeCursor{}, reset)
}

func TestFederationVectorRoundTrip(t *testing.T) {
	openTestStore(t)

	seq, err := GetFederationVector("node-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq)

	require.NoError(t, SetFederationVector("node-a", 42))
	require.NoError(t, SetFederationVector("node-b", 7))

	seq, err = GetFederationVector("node-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), seq)

	snap, err := FederationVectorSnapshot()
	require.NoError(t, err)
	assert.Equal(t, map[string]uint64{"node-a": 42, "node-b": 7}, snap)
}
