package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intercooperative/agoranet/pkg/auth"
	"github.com/intercooperative/agoranet/pkg/state"
	"github.com/intercooperative/agoranet/pkg/store"
)

func newTestServer(t *testing.T) (*httptest.Server, func(subjectDID string) string) {
	t.Helper()
	root := state.ArtifactPath("api-" + t.Name())
	if root == "" {
		root = t.TempDir()
	}
	dir := filepath.Join(root, "pebble")
	require.NoError(t, store.Open(dir))
	t.Cleanup(func() { _ = store.Close() })

	verifier := auth.NewVerifier()
	handler := auth.Middleware(auth.SecConfig{}, verifier)(NewRouter())
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	token := func(subjectDID string) string {
		expiry := time.Now().Add(time.Hour).Unix()
		return subjectDID + "." + strconv.FormatInt(expiry, 10) + ".sig"
	}
	return srv, token
}

func doJSON(t *testing.T, method, url, bearer string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestCreateThreadRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/threads", "", map[string]string{"title": "hello"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateAndGetThread(t *testing.T) {
	srv, token := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/threads", token("did:key:alice"), map[string]string{"title": "Budget proposal"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	id := created["id"].(string)
	require.NotEmpty(t, id)

	getResp := doJSON(t, http.MethodGet, srv.URL+"/api/threads/"+id, "", nil)
	defer getResp.Body.Close()
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
}

func TestGetThreadNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/threads/no-such-id", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPostMessageAndListAndReact(t *testing.T) {
	srv, token := newTestServer(t)

	thResp := doJSON(t, http.MethodPost, srv.URL+"/api/threads", token("did:key:alice"), map[string]string{"title": "T"})
	defer thResp.Body.Close()
	var th map[string]interface{}
	require.NoError(t, json.NewDecoder(thResp.Body).Decode(&th))
	threadID := th["id"].(string)

	msgResp := doJSON(t, http.MethodPost, srv.URL+"/api/threads/"+threadID+"/messages", token("did:key:alice"), map[string]string{"content": "hello"})
	defer msgResp.Body.Close()
	require.Equal(t, http.StatusCreated, msgResp.StatusCode)
	var msg map[string]interface{}
	require.NoError(t, json.NewDecoder(msgResp.Body).Decode(&msg))
	messageID := msg["id"].(string)

	listResp := doJSON(t, http.MethodGet, srv.URL+"/api/threads/"+threadID+"/messages", "", nil)
	defer listResp.Body.Close()
	assert.Equal(t, http.StatusOK, listResp.StatusCode)

	reactResp := doJSON(t, http.MethodPost, srv.URL+"/api/messages/"+messageID+"/reactions", token("did:key:bob"), map[string]string{"reaction_type": "upvote"})
	defer reactResp.Body.Close()
	assert.Equal(t, http.StatusCreated, reactResp.StatusCode)

	reactionsResp := doJSON(t, http.MethodGet, srv.URL+"/api/messages/"+messageID+"/reactions", "", nil)
	defer reactionsResp.Body.Close()
	var reactions []map[string]interface{}
	require.NoError(t, json.NewDecoder(reactionsResp.Body).Decode(&reactions))
	assert.Len(t, reactions, 1)
}

func TestDeleteMessageForbiddenForNonAuthor(t *testing.T) {
	srv, token := newTestServer(t)

	thResp := doJSON(t, http.MethodPost, srv.URL+"/api/threads", token("did:key:alice"), map[string]string{"title": "T"})
	defer thResp.Body.Close()
	var th map[string]interface{}
	require.NoError(t, json.NewDecoder(thResp.Body).Decode(&th))
	threadID := th["id"].(string)

	msgResp := doJSON(t, http.MethodPost, srv.URL+"/api/threads/"+threadID+"/messages", token("did:key:alice"), map[string]string{"content": "hello"})
	defer msgResp.Body.Close()
	var msg map[string]interface{}
	require.NoError(t, json.NewDecoder(msgResp.Body).Decode(&msg))
	messageID := msg["id"].(string)

	delResp := doJSON(t, http.MethodDelete, srv.URL+"/api/threads/"+threadID+"/messages/"+messageID, token("did:key:bob"), nil)
	defer delResp.Body.Close()
	assert.Equal(t, http.StatusForbidden, delResp.StatusCode)

	delResp2 := doJSON(t, http.MethodDelete, srv.URL+"/api/threads/"+threadID+"/messages/"+messageID, token("did:key:alice"), nil)
	defer delResp2.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp2.StatusCode)
}

func TestCreateCredentialLinkOwnershipCarveOut(t *testing.T) {
	srv, token := newTestServer(t)

	thResp := doJSON(t, http.MethodPost, srv.URL+"/api/threads", token("did:key:alice"), map[string]string{"title": "T"})
	defer thResp.Body.Close()
	var th map[string]interface{}
	require.NoError(t, json.NewDecoder(thResp.Body).Decode(&th))
	threadID := th["id"].(string)

	// Bob tries to link a credential on behalf of Alice: forbidden.
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/threads/credential-link", token("did:key:bob"), map[string]string{
		"thread_id": threadID, "credential_cid": "bafy1", "signer_did": "did:key:alice",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Alice links her own credential: allowed.
	resp2 := doJSON(t, http.MethodPost, srv.URL+"/api/threads/credential-link", token("did:key:alice"), map[string]string{
		"thread_id": threadID, "credential_cid": "bafy1", "signer_did": "did:key:alice",
	})
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusCreated, resp2.StatusCode)
}
