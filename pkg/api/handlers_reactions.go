package api

import (
	"net/http"

	"github.com/intercooperative/agoranet/pkg/auth"
	"github.com/intercooperative/agoranet/pkg/store"
)

type addReactionRequest struct {
	ReactionType string `json:"reaction_type"`
}

func addReaction(w http.ResponseWriter, r *http.Request) {
	messageID := pathVar(r, "mid")
	subject := auth.SubjectFromContext(r.Context())
	if err := auth.Authorize(subject, auth.ActionReactToMessage, auth.Resource{}); err != nil {
		writeError(w, r, err)
		return
	}

	var req addReactionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	reaction, err := store.AddReaction(messageID, subject, req.ReactionType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reaction)
}

func listReactions(w http.ResponseWriter, r *http.Request) {
	messageID := pathVar(r, "mid")
	reactions, err := store.ListReactions(messageID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reactions)
}

func removeReaction(w http.ResponseWriter, r *http.Request) {
	messageID := pathVar(r, "mid")
	reactionType := pathVar(r, "type")
	subject := auth.SubjectFromContext(r.Context())

	if err := store.RemoveReaction(messageID, subject, reactionType); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
