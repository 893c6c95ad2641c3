package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intercooperative/agoranet/pkg/models"
	"github.com/intercooperative/agoranet/pkg/state"
	"github.com/intercooperative/agoranet/pkg/store"
)

func openTestStore(t *testing.T) {
	t.Helper()
	root := state.ArtifactPath("runtime-" + t.Name())
	if root == "" {
		root = t.TempDir()
	}
	dir := filepath.Join(root, "pebble")
	require.NoError(t, store.Open(dir))
	t.Cleanup(func() { _ = store.Close() })
}

func TestFingerprintIsDeterministic(t *testing.T) {
	ev := Event{Type: EventProposalCreated, Timestamp: 100, ProposalCID: "bafy1"}
	assert.Equal(t, fingerprint(ev), fingerprint(ev))

	other := ev
	other.ProposalCID = "bafy2"
	assert.NotEqual(t, fingerprint(ev), fingerprint(other))
}

func TestFilterAndSortDropsAlreadyAppliedAndOrders(t *testing.T) {
	events := []Event{
		{Type: EventProposalCreated, Timestamp: 200, ProposalCID: "b"},
		{Type: EventProposalCreated, Timestamp: 100, ProposalCID: "a"},
		{Type: EventProposalCreated, Timestamp: 40, ProposalCID: "old"},
	}
	cursor := models.RuntimeCursor{LastEventTimestamp: 50}

	out := filterAndSort(events, cursor)
	require.Len(t, out, 2)
	assert.Equal(t, int64(100), out[0].Timestamp)
	assert.Equal(t, int64(200), out[1].Timestamp)
}

func TestFilterAndSortExcludesEventAtOrBeforeCursorFingerprint(t *testing.T) {
	ev := Event{Type: EventProposalCreated, Timestamp: 100, ProposalCID: "a"}
	cursor := models.RuntimeCursor{LastEventTimestamp: 100, LastEventFingerprint: fingerprint(ev)}

	out := filterAndSort([]Event{ev}, cursor)
	assert.Len(t, out, 0)
}

func TestNextBackoffStaysWithinBounds(t *testing.T) {
	prev := time.Second
	for i := 0; i < 20; i++ {
		next := nextBackoff(prev)
		assert.GreaterOrEqual(t, next, time.Second)
		assert.LessOrEqual(t, next, 60*time.Second)
		prev = next
	}
}

func TestProjectProposalCreatedUpsertsThread(t *testing.T) {
	openTestStore(t)
	c := New(Config{})

	ok, err := c.project(Event{Type: EventProposalCreated, ProposalCID: "bafy1", Title: "A proposal", Timestamp: 100})
	require.NoError(t, err)
	assert.True(t, ok)

	th, found, err := store.UpsertRuntimeThread("bafy1", "A proposal", "", 100)
	require.NoError(t, err)
	assert.Equal(t, store.Existed, found)
	assert.True(t, th.RuntimeOriginated)
}

func TestProjectProposalFinalizedDefersThenApplies(t *testing.T) {
	openTestStore(t)
	c := New(Config{DeferralTTL: 10 * time.Millisecond})

	ok, err := c.project(Event{Type: EventProposalFinalized, ProposalCID: "bafy-missing", Approved: true, Timestamp: 100})
	require.NoError(t, err)
	assert.False(t, ok, "finalization for an unknown proposal defers on first sight")

	time.Sleep(20 * time.Millisecond)

	ok, err = c.project(Event{Type: EventProposalFinalized, ProposalCID: "bafy-missing", Approved: true, Timestamp: 200})
	require.NoError(t, err)
	assert.True(t, ok, "finalization applies via pending-thread fallback once the deferral TTL elapses")
}

func TestProjectCredentialIssuedRecordsVerifiedCredential(t *testing.T) {
	openTestStore(t)
	c := New(Config{})

	ok, err := c.project(Event{
		Type: EventCredentialIssued, CredentialCID: "bafy-cred", SubjectDID: "did:key:alice",
		IssuerDID: "did:key:issuer", CredentialType: "membership", ValidUntil: 99999, Timestamp: 100,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	vc, found, err := store.GetVerifiedCredential("bafy-cred")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "did:key:alice", vc.SubjectDID)
}

func TestFetchDecodesEventsAndHandlesNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("since") == "404" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode([]Event{{Type: EventProposalCreated, Timestamp: 1, ProposalCID: "x"}})
	}))
	defer srv.Close()

	c := New(Config{APIURL: srv.URL})
	events, err := c.fetch(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "x", events[0].ProposalCID)

	events, err = c.fetch(context.Background(), 404)
	require.NoError(t, err)
	assert.Empty(t, events)
}
