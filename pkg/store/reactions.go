package store

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/intercooperative/agoranet/pkg/agoraerr"
	"github.com/intercooperative/agoranet/pkg/bus"
	"github.com/intercooperative/agoranet/pkg/models"
	"github.com/intercooperative/agoranet/pkg/telemetry"
)

// AddReaction implements add_reaction. Enforces I2 (message_id must resolve
// to an existing Message) and is idempotent on the unique triple (I6):
// returns the existing row if present rather than failing.
func AddReaction(messageID, authorDID, reactionType string) (models.Reaction, error) {
	return addReaction(messageID, authorDID, reactionType, bus.OriginLocal)
}

func addReaction(messageID, authorDID, reactionType string, origin bus.Origin) (models.Reaction, error) {
	if err := requireOpen(); err != nil {
		return models.Reaction{}, err
	}
	if _, ok, err := MessageThread(messageID); err != nil {
		return models.Reaction{}, err
	} else if !ok {
		return models.Reaction{}, agoraerr.New(agoraerr.KindNotFound, "message not found: "+messageID)
	}
	key := keyReaction(messageID, authorDID, reactionType)
	var existing models.Reaction
	ok, err := getJSON(key, &existing)
	if err != nil {
		return models.Reaction{}, err
	}
	if ok {
		telemetry.StoreOpsTotal.WithLabelValues("add_reaction", "idempotent_hit").Inc()
		return existing, nil
	}
	r := models.Reaction{
		ID:           uuid.NewString(),
		MessageID:    messageID,
		AuthorDID:    authorDID,
		ReactionType: reactionType,
		CreatedAt:    nowUnix(),
	}
	if err := putJSON(key, r); err != nil {
		return models.Reaction{}, err
	}
	b, _ := marshalForBus(r)
	Bus.Publish(bus.ChangeRecord{
		Origin:   origin,
		Kind:     bus.EntityReaction,
		EntityID: r.ID,
		Seq:      nextLocalSeq(),
		Payload:  b,
	})
	telemetry.StoreOpsTotal.WithLabelValues("add_reaction", "ok").Inc()
	return r, nil
}

// RemoveReaction implements remove_reaction: idempotent even when absent.
func RemoveReaction(messageID, authorDID, reactionType string) error {
	if err := requireOpen(); err != nil {
		return err
	}
	key := keyReaction(messageID, authorDID, reactionType)
	var existing models.Reaction
	ok, err := getJSON(key, &existing)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := deleteKey(db, key); err != nil {
		return err
	}
	Bus.Publish(bus.ChangeRecord{
		Origin:   bus.OriginLocal,
		Kind:     bus.EntityReaction,
		EntityID: existing.ID,
		Seq:      nextLocalSeq(),
		Deleted:  true,
	})
	return nil
}

// ListReactions returns all reactions on a message, for the HTTP surface.
func ListReactions(messageID string) ([]models.Reaction, error) {
	if err := requireOpen(); err != nil {
		return nil, err
	}
	var out []models.Reaction
	err := scanPrefix(db, reactionPrefix(messageID), func(_, v []byte) bool {
		var r models.Reaction
		if json.Unmarshal(v, &r) == nil {
			out = append(out, r)
		}
		return true
	})
	return out, err
}
