// Package api is AgoraNet's HTTP surface (spec.md §6): the thread, message,
// reaction and credential-link routes over the Deliberation Store, gated by
// the Identity & Auth Verifier's Authorize on every mutation.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/intercooperative/agoranet/pkg/agoraerr"
	"github.com/intercooperative/agoranet/pkg/logger"
	"github.com/intercooperative/agoranet/pkg/telemetry"
	"github.com/intercooperative/agoranet/pkg/validation"
)

// NewRouter builds the full route table, each handler instrumented with
// telemetry.Middleware keyed by its matched pattern.
func NewRouter() *mux.Router {
	r := mux.NewRouter()

	route := func(path string, methods []string, h http.HandlerFunc) {
		r.Handle(path, telemetry.Middleware(path, h)).Methods(methods...)
	}

	route("/api/threads", []string{http.MethodGet}, listThreads)
	route("/api/threads", []string{http.MethodPost}, createThread)
	route("/api/threads/credential-links", []string{http.MethodGet}, listAllCredentialLinks)
	route("/api/threads/credential-link", []string{http.MethodPost}, createCredentialLink)
	route("/api/threads/{id}", []string{http.MethodGet}, getThread)
	route("/api/threads/{id}/messages", []string{http.MethodGet}, listMessages)
	route("/api/threads/{id}/messages", []string{http.MethodPost}, postMessage)
	route("/api/threads/{id}/messages/{mid}", []string{http.MethodDelete}, deleteMessage)
	route("/api/threads/{id}/credential-links", []string{http.MethodGet}, listThreadCredentialLinks)
	route("/api/messages/{mid}/reactions", []string{http.MethodGet}, listReactions)
	route("/api/messages/{mid}/reactions", []string{http.MethodPost}, addReaction)
	route("/api/messages/{mid}/reactions/{type}", []string{http.MethodDelete}, removeReaction)
	route("/health", []string{http.MethodGet}, health)

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps a Kind to its HTTP status per the Identity & Auth
// Verifier / Deliberation Store error taxonomy (pkg/agoraerr), logging the
// underlying cause while never leaking it into the response body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := agoraerr.KindOf(err)
	status := statusForKind(kind)
	logger.Warn("api_request_failed", "path", r.URL.Path, "method", r.Method, "kind", kind.String(), "error", err)
	writeJSON(w, status, map[string]string{"error": kind.String()})
}

func statusForKind(k agoraerr.Kind) int {
	switch k {
	case agoraerr.KindUnauthenticatedMalformed, agoraerr.KindUnauthenticatedExpired, agoraerr.KindUnauthenticatedBadSignature:
		return http.StatusUnauthorized
	case agoraerr.KindForbidden:
		return http.StatusForbidden
	case agoraerr.KindNotFound:
		return http.StatusNotFound
	case agoraerr.KindInvalidReply, agoraerr.KindInvalidInput:
		return http.StatusBadRequest
	case agoraerr.KindConflict:
		return http.StatusConflict
	case agoraerr.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeAndValidate decodes the request body into both a typed destination
// and a map for the declarative validation engine, so spec.md-defined field
// rules apply uniformly across every mutating route.
func decodeAndValidate(r *http.Request, dst interface{}) error {
	body, err := decodeRaw(r)
	if err != nil {
		return agoraerr.New(agoraerr.KindInvalidInput, "malformed JSON body")
	}
	if err := validation.Validate(body); err != nil {
		return agoraerr.Wrap(agoraerr.KindInvalidInput, err, "validation failed")
	}
	raw, _ := json.Marshal(body)
	if err := json.Unmarshal(raw, dst); err != nil {
		return agoraerr.New(agoraerr.KindInvalidInput, "body does not match expected shape")
	}
	return nil
}

func decodeRaw(r *http.Request) (map[string]interface{}, error) {
	defer r.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}
