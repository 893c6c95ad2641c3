package api

import (
	"net/http"

	"github.com/intercooperative/agoranet/pkg/agoraerr"
	"github.com/intercooperative/agoranet/pkg/auth"
	"github.com/intercooperative/agoranet/pkg/store"
)

type postMessageRequest struct {
	Content string `json:"content"`
	ReplyTo string `json:"reply_to"`
}

func postMessage(w http.ResponseWriter, r *http.Request) {
	threadID := pathVar(r, "id")
	subject := auth.SubjectFromContext(r.Context())
	if err := auth.Authorize(subject, auth.ActionPostMessage, auth.Resource{}); err != nil {
		writeError(w, r, err)
		return
	}

	var req postMessageRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	msg, err := store.PostMessage(threadID, subject, req.Content, req.ReplyTo)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func listMessages(w http.ResponseWriter, r *http.Request) {
	threadID := pathVar(r, "id")
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	msgs, err := store.ListMessages(threadID, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func deleteMessage(w http.ResponseWriter, r *http.Request) {
	threadID := pathVar(r, "id")
	messageID := pathVar(r, "mid")
	subject := auth.SubjectFromContext(r.Context())

	msg, ok, err := store.GetMessage(threadID, messageID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, agoraerr.ErrNotFound)
		return
	}

	isModerator := auth.Authorize(subject, auth.ActionModerateContent, auth.Resource{}) == nil
	if msg.AuthorDID != subject && !isModerator {
		writeError(w, r, agoraerr.ErrForbidden)
		return
	}

	if err := store.DeleteMessage(threadID, messageID, subject, isModerator); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
