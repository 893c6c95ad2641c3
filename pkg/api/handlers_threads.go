package api

import (
	"net/http"

	"github.com/intercooperative/agoranet/pkg/agoraerr"
	"github.com/intercooperative/agoranet/pkg/auth"
	"github.com/intercooperative/agoranet/pkg/store"
)

type createThreadRequest struct {
	Title       string `json:"title"`
	ProposalCID string `json:"proposal_cid"`
}

func createThread(w http.ResponseWriter, r *http.Request) {
	subject := auth.SubjectFromContext(r.Context())
	if err := auth.Authorize(subject, auth.ActionCreateThread, auth.Resource{}); err != nil {
		writeError(w, r, err)
		return
	}

	var req createThreadRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	th, err := store.CreateThread(req.Title, req.ProposalCID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, th)
}

func getThread(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	th, ok, err := store.GetThread(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, agoraerr.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, th)
}

func listThreads(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)
	orderBy := store.OrderBy(r.URL.Query().Get("order_by"))
	if orderBy == "" {
		orderBy = store.OrderCreatedAtAsc
	}
	search := r.URL.Query().Get("search")

	threads, err := store.ListThreads(limit, offset, orderBy, search)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, threads)
}
