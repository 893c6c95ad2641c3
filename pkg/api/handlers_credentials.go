package api

import (
	"net/http"

	"github.com/intercooperative/agoranet/pkg/auth"
	"github.com/intercooperative/agoranet/pkg/store"
)

type createCredentialLinkRequest struct {
	ThreadID      string `json:"thread_id"`
	CredentialCID string `json:"credential_cid"`
	SignerDID     string `json:"signer_did"`
}

func createCredentialLink(w http.ResponseWriter, r *http.Request) {
	subject := auth.SubjectFromContext(r.Context())

	var req createCredentialLinkRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	// LinkCredential's ownership carve-out: the caller may link on behalf of
	// signer_did only when they are that signer or hold ModerateContent.
	if err := auth.Authorize(subject, auth.ActionLinkCredential, auth.Resource{OwnerDID: req.SignerDID}); err != nil {
		writeError(w, r, err)
		return
	}

	link, err := store.LinkCredential(req.ThreadID, req.CredentialCID, req.SignerDID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

func listThreadCredentialLinks(w http.ResponseWriter, r *http.Request) {
	threadID := pathVar(r, "id")
	links, err := store.ListCredentialLinks(threadID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func listAllCredentialLinks(w http.ResponseWriter, r *http.Request) {
	links, err := store.ListCredentialLinks("")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}
