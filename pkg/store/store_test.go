package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intercooperative/agoranet/pkg/agoraerr"
	"github.com/intercooperative/agoranet/pkg/state"
)

// openTestStore opens a fresh pebble instance per test, honoring
// AGORANET_ARTIFACT_ROOT/TEST_ARTIFACTS_ROOT when set so CI can collect the
// pebble data directory for a failed run, and falling back to t.TempDir()
// otherwise. Cleanup is registered so tests never share state or leak open
// handles.
func openTestStore(t *testing.T) {
	t.Helper()
	root := state.ArtifactPath("store-" + t.Name())
	if root == "" {
		root = t.TempDir()
	}
	dir := filepath.Join(root, "pebble")
	require.NoError(t, Open(dir))
	t.Cleanup(func() { _ = Close() })
}

func TestCreateAndGetThread(t *testing.T) {
	openTestStore(t)

	th, err := CreateThread("Should we fund the greenhouse?", "")
	require.NoError(t, err)
	assert.NotEmpty(t, th.ID)

	got, ok, err := GetThread(th.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, th.Title, got.Title)
}

func TestGetThreadMissing(t *testing.T) {
	openTestStore(t)
	_, ok, err := GetThread("does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostMessageRequiresExistingThread(t *testing.T) {
	openTestStore(t)
	_, err := PostMessage("no-such-thread", "did:key:alice", "hello", "")
	assert.Equal(t, agoraerr.KindNotFound, agoraerr.KindOf(err))
}

func TestPostMessageEnforcesReplyToSameThread(t *testing.T) {
	openTestStore(t)
	th, err := CreateThread("Thread A", "")
	require.NoError(t, err)

	_, err = PostMessage(th.ID, "did:key:alice", "orphan reply", "missing-message-id")
	assert.Equal(t, agoraerr.KindInvalidReply, agoraerr.KindOf(err))
}

func TestPostMessageAndListOrder(t *testing.T) {
	openTestStore(t)
	th, err := CreateThread("Thread A", "")
	require.NoError(t, err)

	m1, err := PostMessage(th.ID, "did:key:alice", "first", "")
	require.NoError(t, err)
	m2, err := PostMessage(th.ID, "did:key:bob", "second", m1.ID)
	require.NoError(t, err)

	msgs, err := ListMessages(th.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, m1.ID, msgs[0].ID)
	assert.Equal(t, m2.ID, msgs[1].ID)
	assert.Equal(t, m1.ID, msgs[1].ReplyTo)
}

func TestDeleteMessageRequiresAuthorOrModerator(t *testing.T) {
	openTestStore(t)
	th, err := CreateThread("Thread A", "")
	require.NoError(t, err)
	m, err := PostMessage(th.ID, "did:key:alice", "hello", "")
	require.NoError(t, err)

	err = DeleteMessage(th.ID, m.ID, "did:key:bob", false)
	assert.Equal(t, agoraerr.KindForbidden, agoraerr.KindOf(err))

	require.NoError(t, DeleteMessage(th.ID, m.ID, "did:key:bob", true))
	_, ok, err := GetMessage(th.ID, m.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMessageThreadResolvesCrossThreadLookup(t *testing.T) {
	openTestStore(t)
	th, err := CreateThread("Thread A", "")
	require.NoError(t, err)
	m, err := PostMessage(th.ID, "did:key:alice", "hello", "")
	require.NoError(t, err)

	threadID, ok, err := MessageThread(m.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, th.ID, threadID)
}

func TestAddReactionRequiresExistingMessage(t *testing.T) {
	openTestStore(t)
	_, err := AddReaction("no-such-message", "did:key:alice", "upvote")
	assert.Equal(t, agoraerr.KindNotFound, agoraerr.KindOf(err))
}

func TestAddReactionIsIdempotentOnUniqueTriple(t *testing.T) {
	openTestStore(t)
	th, err := CreateThread("Thread A", "")
	require.NoError(t, err)
	m, err := PostMessage(th.ID, "did:key:alice", "hello", "")
	require.NoError(t, err)

	r1, err := AddReaction(m.ID, "did:key:bob", "upvote")
	require.NoError(t, err)
	r2, err := AddReaction(m.ID, "did:key:bob", "upvote")
	require.NoError(t, err)
	assert.Equal(t, r1.ID, r2.ID)

	reactions, err := ListReactions(m.ID)
	require.NoError(t, err)
	assert.Len(t, reactions, 1)
}

func TestRemoveReactionIsIdempotentWhenAbsent(t *testing.T) {
	openTestStore(t)
	assert.NoError(t, RemoveReaction("nonexistent", "did:key:alice", "upvote"))
}

func TestListThreadsSearch(t *testing.T) {
	openTestStore(t)
	_, err := CreateThread("Budget proposal", "")
	require.NoError(t, err)
	_, err = CreateThread("Greenhouse proposal", "")
	require.NoError(t, err)

	all, err := ListThreads(0, 0, OrderCreatedAtAsc, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := ListThreads(0, 0, OrderCreatedAtAsc, "greenhouse")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "Greenhouse proposal", filtered[0].Title)
}

func TestCompactAndCountKeySpaces(t *testing.T) {
	openTestStore(t)
	th, err := CreateThread("Thread A", "")
	require.NoError(t, err)
	_, err = PostMessage(th.ID, "did:key:alice", "hello", "")
	require.NoError(t, err)

	counts, err := CountKeySpaces()
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Threads)
	assert.Equal(t, 1, counts.Messages)

	assert.NoError(t, Compact())
}
