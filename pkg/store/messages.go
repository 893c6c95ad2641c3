package store

import (
	"encoding/json"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/intercooperative/agoranet/pkg/agoraerr"
	"github.com/intercooperative/agoranet/pkg/bus"
	"github.com/intercooperative/agoranet/pkg/models"
	"github.com/intercooperative/agoranet/pkg/telemetry"
)

var msgSeq uint64

func nextMsgSeq() int64 { return int64(atomic.AddUint64(&msgSeq, 1)) }

// PostMessage implements post_message. Enforces I1 (thread must exist) and
// I3 (reply_to, if set, resolves to a message in the same thread).
func PostMessage(threadID, authorDID, content, replyTo string) (models.Message, error) {
	if err := requireOpen(); err != nil {
		return models.Message{}, err
	}
	var th models.Thread
	ok, err := getJSON(keyThreadMeta(threadID), &th)
	if err != nil {
		return models.Message{}, err
	}
	if !ok {
		return models.Message{}, agoraerr.New(agoraerr.KindNotFound, "thread not found: "+threadID)
	}

	if replyTo != "" {
		var parent models.Message
		pok, err := getJSON(keyMsgRow(threadID, replyTo), &parent)
		if err != nil {
			return models.Message{}, err
		}
		if !pok {
			return models.Message{}, agoraerr.Wrap(agoraerr.KindInvalidReply, agoraerr.ErrInvalidReply, "reply_to message not found in thread")
		}
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		AuthorDID: authorDID,
		Content:   content,
		ReplyTo:   replyTo,
		CreatedAt: nowUnix(),
	}
	if err := saveMessage(msg, bus.OriginLocal); err != nil {
		return models.Message{}, err
	}

	th.UpdatedAt = msg.CreatedAt
	if err := putJSON(keyThreadMeta(th.ID), th); err != nil {
		return models.Message{}, err
	}
	telemetry.StoreOpsTotal.WithLabelValues("post_message", "ok").Inc()
	return msg, nil
}

// saveMessage writes a message row plus its ordering index entry and
// publishes a Change Record. Used by PostMessage and by apply_finalization
// for system messages; the remote message-apply path writes the same keys
// itself and publishes nothing.
func saveMessage(msg models.Message, origin bus.Origin) error {
	msg.Seq = nextMsgSeq()
	if err := putJSON(keyMsgRow(msg.ThreadID, msg.ID), msg); err != nil {
		return err
	}
	if err := putRaw(keyMsgOrder(msg.ThreadID, msg.CreatedAt, msg.Seq, msg.ID), []byte(msg.ID)); err != nil {
		return err
	}
	if err := putJSON(keyMsgByID(msg.ID), msg.ThreadID); err != nil {
		return err
	}
	b, _ := marshalForBus(msg)
	Bus.Publish(bus.ChangeRecord{
		Origin:   origin,
		Kind:     bus.EntityMessage,
		ThreadID: msg.ThreadID,
		EntityID: msg.ID,
		Seq:      nextLocalSeq(),
		Payload:  b,
	})
	return nil
}

// DeleteMessage implements delete_message. callerDID must equal the
// message's author_did, or the caller must already have been authorized for
// ModerateContent by pkg/auth before calling this (C2 itself performs only
// the author-identity check; the moderation bypass is the caller's
// responsibility, mirroring C1's authorize() boundary).
func DeleteMessage(threadID, messageID, callerDID string, isModerator bool) error {
	if err := requireOpen(); err != nil {
		return err
	}
	var msg models.Message
	ok, err := getJSON(keyMsgRow(threadID, messageID), &msg)
	if err != nil {
		return err
	}
	if !ok {
		return agoraerr.New(agoraerr.KindNotFound, "message not found")
	}
	if msg.AuthorDID != callerDID && !isModerator {
		return agoraerr.ErrForbidden
	}
	if err := deleteKey(db, keyMsgRow(threadID, messageID)); err != nil {
		return err
	}
	if err := deleteKey(db, keyMsgOrder(threadID, msg.CreatedAt, msg.Seq, messageID)); err != nil {
		return err
	}
	if err := deleteKey(db, keyMsgByID(messageID)); err != nil {
		return err
	}
	Bus.Publish(bus.ChangeRecord{
		Origin:   bus.OriginLocal,
		Kind:     bus.EntityMessage,
		ThreadID: threadID,
		EntityID: messageID,
		Seq:      nextLocalSeq(),
		Deleted:  true,
	})
	return nil
}

// GetMessage implements get_message.
func GetMessage(threadID, messageID string) (models.Message, bool, error) {
	if err := requireOpen(); err != nil {
		return models.Message{}, false, err
	}
	var msg models.Message
	ok, err := getJSON(keyMsgRow(threadID, messageID), &msg)
	return msg, ok, err
}

// MessageThread resolves a message id to its owning thread id, without the
// caller needing to already know which thread it belongs to (the HTTP
// surface's /api/messages/{mid}/reactions routes take only a message id).
func MessageThread(messageID string) (string, bool, error) {
	if err := requireOpen(); err != nil {
		return "", false, err
	}
	var threadID string
	ok, err := getJSON(keyMsgByID(messageID), &threadID)
	return threadID, ok, err
}

// ListMessages implements list_messages(thread_id, limit, offset) in
// created-at order (oldest first).
func ListMessages(threadID string, limit, offset int) ([]models.Message, error) {
	if err := requireOpen(); err != nil {
		return nil, err
	}
	var ids []string
	if err := scanPrefix(db, msgOrderPrefix(threadID), func(_, v []byte) bool {
		ids = append(ids, string(v))
		return true
	}); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(ids) {
		return []models.Message{}, nil
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	out := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		var msg models.Message
		ok, err := getJSON(keyMsgRow(threadID, id), &msg)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

func marshalForBus(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
