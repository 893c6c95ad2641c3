package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intercooperative/agoranet/pkg/models"
)

func TestApplyRemoteThreadIdempotent(t *testing.T) {
	openTestStore(t)
	th := models.Thread{ID: "th-1", Title: "Remote thread", CreatedAt: 100}

	outcome, err := ApplyRemoteChange(RemoteChange{Kind: "thread", Thread: &th})
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	outcome, err = ApplyRemoteChange(RemoteChange{Kind: "thread", Thread: &th})
	require.NoError(t, err)
	assert.Equal(t, Ignored, outcome)
}

func TestApplyRemoteMessageRejectsOutOfOrderAnnounce(t *testing.T) {
	openTestStore(t)
	msg := models.Message{ID: "m-1", ThreadID: "th-unknown", Content: "hi", CreatedAt: 100}

	outcome, err := ApplyRemoteChange(RemoteChange{Kind: "message", Message: &msg})
	require.NoError(t, err)
	assert.Equal(t, Ignored, outcome)
}

func TestApplyRemoteMessageAppliesOnceThreadExists(t *testing.T) {
	openTestStore(t)
	th := models.Thread{ID: "th-1", Title: "Remote thread", CreatedAt: 100}
	outcome, err := ApplyRemoteChange(RemoteChange{Kind: "thread", Thread: &th})
	require.NoError(t, err)
	require.Equal(t, Applied, outcome)

	msg := models.Message{ID: "m-1", ThreadID: th.ID, Content: "hi", CreatedAt: 100, Seq: 1}
	outcome, err = ApplyRemoteChange(RemoteChange{Kind: "message", Message: &msg})
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	threadID, ok, err := MessageThread(msg.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, th.ID, threadID)
}

func TestApplyRemoteReactionRejectsUnknownMessage(t *testing.T) {
	openTestStore(t)
	r := models.Reaction{ID: "r-1", MessageID: "no-such-message", AuthorDID: "did:key:alice", ReactionType: "upvote"}

	outcome, err := ApplyRemoteChange(RemoteChange{Kind: "reaction", Reaction: &r})
	require.NoError(t, err)
	assert.Equal(t, Ignored, outcome)
}

func TestApplyRemoteFinalizationIsIdempotent(t *testing.T) {
	openTestStore(t)
	th := models.Thread{ID: "th-1", Title: "Remote thread", ProposalCID: "bafy1", CreatedAt: 100, RuntimeOriginated: true}
	_, err := ApplyRemoteChange(RemoteChange{Kind: "thread", Thread: &th})
	require.NoError(t, err)

	f := RemoteFinalization{ProposalCID: "bafy1", Approved: true, EventTS: 200}
	outcome, err := ApplyRemoteChange(RemoteChange{Kind: "finalization", Finalization: &f})
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	outcome, err = ApplyRemoteChange(RemoteChange{Kind: "finalization", Finalization: &f})
	require.NoError(t, err)
	assert.Equal(t, Ignored, outcome)
}
