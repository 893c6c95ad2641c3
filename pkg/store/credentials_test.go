package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intercooperative/agoranet/pkg/agoraerr"
)

func TestLinkCredentialRequiresExistingThread(t *testing.T) {
	openTestStore(t)
	_, err := LinkCredential("no-such-thread", "bafy123", "did:key:alice")
	assert.Equal(t, agoraerr.KindNotFound, agoraerr.KindOf(err))
}

func TestLinkCredentialDedupesOnTriple(t *testing.T) {
	openTestStore(t)
	th, err := CreateThread("Thread A", "")
	require.NoError(t, err)

	l1, err := LinkCredential(th.ID, "bafy123", "did:key:alice")
	require.NoError(t, err)
	l2, err := LinkCredential(th.ID, "bafy123", "did:key:alice")
	require.NoError(t, err)
	assert.Equal(t, l1.ID, l2.ID)

	links, err := ListCredentialLinks(th.ID)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestListCredentialLinksAcrossThreads(t *testing.T) {
	openTestStore(t)
	th1, err := CreateThread("Thread A", "")
	require.NoError(t, err)
	th2, err := CreateThread("Thread B", "")
	require.NoError(t, err)

	_, err = LinkCredential(th1.ID, "bafy1", "did:key:alice")
	require.NoError(t, err)
	_, err = LinkCredential(th2.ID, "bafy2", "did:key:bob")
	require.NoError(t, err)

	all, err := ListCredentialLinks("")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRecordVerifiedCredentialIsIdempotent(t *testing.T) {
	openTestStore(t)
	vc1, err := RecordVerifiedCredential("bafy1", "did:key:alice", "did:key:issuer", "membership", 9999999999, 1000)
	require.NoError(t, err)
	vc2, err := RecordVerifiedCredential("bafy1", "did:key:alice", "did:key:issuer", "membership", 9999999999, 1000)
	require.NoError(t, err)
	assert.Equal(t, vc1, vc2)

	got, ok, err := GetVerifiedCredential("bafy1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, vc1, got)
}
