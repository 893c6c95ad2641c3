// Package store is the Deliberation Store (C2): a pebble-backed API over
// threads, messages, reactions, and credential links that enforces the
// referential and uniqueness invariants I1-I6. Each mutation writes its keys
// with separate pebble Set calls; the writes of one mutation are not applied
// as a single atomic batch. Successful, non-idempotent local mutations of
// threads, messages, reactions, credential links and finalizations emit a
// Change Record on the bus; RecordVerifiedCredential emits none.
package store

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/intercooperative/agoranet/pkg/bus"
	"github.com/intercooperative/agoranet/pkg/logger"
)

var db *pebble.DB

// localSeq is the monotone local sequence number stamped on Change Records.
// Federation tags its announces with its own counter (Node.nextSeq), not
// with this one.
var localSeq uint64

// Bus is the process-wide Change Bus; store mutations publish to it after
// commit. Exported so tests and the federation package can subscribe.
var Bus = bus.New(1024)

// Open opens (or creates) the pebble database at path.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened.
func Ready() bool {
	return db != nil
}

func requireOpen() error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	return nil
}

func nextLocalSeq() uint64 {
	return atomic.AddUint64(&localSeq, 1)
}

// --- key space ---
//
// thread:meta:<id>                                   -> Thread JSON
// thread:bycid:<proposal_cid>                        -> thread id (runtime-originated only, enforces I4)
// thread:list:<created_at padded>:<id>                -> thread id (list_threads order)
// msg:row:<thread_id>:<message_id>                    -> Message JSON
// msg:order:<thread_id>:<created_at padded>-<seq padded>:<message_id> -> message_id (list_messages order, enforces I1 lookups)
// msg:bymid:<message_id>                              -> thread_id (cross-thread lookup, enforces I2 on add_reaction)
// reaction:row:<message_id>:<author_did>:<reaction_type> -> Reaction JSON (also the I6 uniqueness key)
// credlink:row:<thread_id>:<id>                       -> CredentialLink JSON
// credlink:key:<thread_id>:<credential_cid>:<linked_by_did> -> id (dedupe key)
// vc:row:<credential_cid>                             -> VerifiedCredential JSON (unique)
// runtime:cursor                                      -> RuntimeCursor JSON (singleton)
// federation:vector:<node_id>                         -> decimal uint64 seq

func keyThreadMeta(id string) []byte   { return []byte("thread:meta:" + id) }
func keyThreadByCID(cid string) []byte { return []byte("thread:bycid:" + cid) }
func keyThreadList(createdAt int64, id string) []byte {
	return []byte(fmt.Sprintf("thread:list:%020d:%s", createdAt, id))
}
func threadListPrefix() []byte { return []byte("thread:list:") }

func keyMsgRow(threadID, msgID string) []byte {
	return []byte("msg:row:" + threadID + ":" + msgID)
}
func keyMsgOrder(threadID string, createdAt, seq int64, msgID string) []byte {
	return []byte(fmt.Sprintf("msg:order:%s:%020d-%012d:%s", threadID, createdAt, seq, msgID))
}
func msgOrderPrefix(threadID string) []byte {
	return []byte("msg:order:" + threadID + ":")
}

func keyMsgByID(msgID string) []byte { return []byte("msg:bymid:" + msgID) }

func keyReaction(messageID, authorDID, reactionType string) []byte {
	return []byte("reaction:row:" + messageID + ":" + authorDID + ":" + reactionType)
}
func reactionPrefix(messageID string) []byte {
	return []byte("reaction:row:" + messageID + ":")
}

func keyCredLinkRow(threadID, id string) []byte {
	return []byte("credlink:row:" + threadID + ":" + id)
}
func credLinkRowPrefix(threadID string) []byte {
	return []byte("credlink:row:" + threadID + ":")
}
func keyCredLinkDedupe(threadID, cid, linkedBy string) []byte {
	return []byte("credlink:key:" + threadID + ":" + cid + ":" + linkedBy)
}

func keyVerifiedCredential(cid string) []byte { return []byte("vc:row:" + cid) }

func keyRuntimeCursor() []byte { return []byte("runtime:cursor") }

func keyFederationVector(nodeID string) []byte { return []byte("federation:vector:" + nodeID) }

func getJSON(key []byte, out interface{}) (bool, error) {
	return getJSONFrom(db, key, out)
}

func putJSON(key []byte, v interface{}) error {
	return putJSONTo(db, key, v)
}

func putRaw(key, value []byte) error {
	return putRawTo(db, key, value)
}
