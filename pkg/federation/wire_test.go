package federation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intercooperative/agoranet/pkg/bus"
	"github.com/intercooperative/agoranet/pkg/models"
)

func TestRecordToWireTypeCoversPublishedKinds(t *testing.T) {
	cases := map[bus.EntityKind]WireType{
		bus.EntityThread:   WireThreadAnnounce,
		bus.EntityMessage:  WireMessageAnnounce,
		bus.EntityReaction: WireReactionAnnounce,
		bus.EntityCredLink: WireCredLinkAnnounce,
		bus.EntityFinalize: WireFinalizeAnnounce,
	}
	for kind, want := range cases {
		got, ok := recordToWireType(kind)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestRecordToWireTypeRejectsUnknownKind(t *testing.T) {
	_, ok := recordToWireType(bus.EntityKind("bogus"))
	assert.False(t, ok)
}

func TestToRemoteChangeDecodesThreadAnnounce(t *testing.T) {
	th := models.Thread{ID: "t1", Title: "hello", CreatedAt: 100}
	payload, err := json.Marshal(th)
	require.NoError(t, err)

	rc, err := toRemoteChange(WireChange{Type: WireThreadAnnounce, Change: payload})
	require.NoError(t, err)
	assert.Equal(t, "thread", rc.Kind)
	require.NotNil(t, rc.Thread)
	assert.Equal(t, th.ID, rc.Thread.ID)
}

func TestToRemoteChangeDecodesFinalizationAnnounce(t *testing.T) {
	payload, err := json.Marshal(finalizationPayload{ProposalCID: "bafy1", Approved: true, EventTS: 555})
	require.NoError(t, err)

	rc, err := toRemoteChange(WireChange{Type: WireFinalizeAnnounce, Change: payload})
	require.NoError(t, err)
	assert.Equal(t, "finalization", rc.Kind)
	require.NotNil(t, rc.Finalization)
	assert.Equal(t, "bafy1", rc.Finalization.ProposalCID)
	assert.True(t, rc.Finalization.Approved)
}

func TestToRemoteChangeUnknownTypeReturnsEmpty(t *testing.T) {
	rc, err := toRemoteChange(WireChange{Type: WireType("bogus")})
	require.NoError(t, err)
	assert.Equal(t, "", rc.Kind)
}
