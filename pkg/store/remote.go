package store

import (
	"github.com/intercooperative/agoranet/pkg/bus"
	"github.com/intercooperative/agoranet/pkg/models"
)

// RemoteApplyOutcome is the Applied|Ignored result of apply_remote_change.
type RemoteApplyOutcome int

const (
	Applied RemoteApplyOutcome = iota
	Ignored
)

// RemoteFinalization is the FinalizationAnnounce change payload.
type RemoteFinalization struct {
	ProposalCID string
	Approved    bool
	EventTS     int64
}

// RemoteChange is the decoded, kind-tagged payload of a federation announce.
// Exactly one of the entity fields is set, matching Kind.
type RemoteChange struct {
	Kind         string // "thread", "message", "reaction", "credential_link", "finalization"
	Thread       *models.Thread
	Message      *models.Message
	Reaction     *models.Reaction
	CredLink     *models.CredentialLink
	Finalization *RemoteFinalization
}

// ApplyRemoteChange implements apply_remote_change: the store's apply path
// for entity announces received over federation. Entity ids are
// origin-generated UUIDs, so inserts collapse under primary-key conflict;
// finalizations fold through the same idempotent tag-append logic as the
// local path. Never re-emits a local Change Record (bus.OriginRemote is
// used throughout), preventing echo storms back out over federation.
func ApplyRemoteChange(c RemoteChange) (RemoteApplyOutcome, error) {
	if err := requireOpen(); err != nil {
		return Ignored, err
	}
	switch c.Kind {
	case "thread":
		return applyRemoteThread(*c.Thread)
	case "message":
		return applyRemoteMessage(*c.Message)
	case "reaction":
		return applyRemoteReaction(*c.Reaction)
	case "credential_link":
		return applyRemoteCredLink(*c.CredLink)
	case "finalization":
		return applyRemoteFinalization(*c.Finalization)
	default:
		return Ignored, nil
	}
}

func applyRemoteThread(th models.Thread) (RemoteApplyOutcome, error) {
	var existing models.Thread
	ok, err := getJSON(keyThreadMeta(th.ID), &existing)
	if err != nil {
		return Ignored, err
	}
	if ok {
		return Ignored, nil
	}
	if err := putJSON(keyThreadMeta(th.ID), th); err != nil {
		return Ignored, err
	}
	if err := putRaw(keyThreadList(th.CreatedAt, th.ID), []byte(th.ID)); err != nil {
		return Ignored, err
	}
	if th.RuntimeOriginated && th.ProposalCID != "" {
		var cidOwner string
		found, err := getJSON(keyThreadByCID(th.ProposalCID), &cidOwner)
		if err != nil {
			return Ignored, err
		}
		if !found {
			if err := putJSON(keyThreadByCID(th.ProposalCID), th.ID); err != nil {
				return Ignored, err
			}
		}
	}
	return Applied, nil
}

func applyRemoteMessage(msg models.Message) (RemoteApplyOutcome, error) {
	var existing models.Message
	ok, err := getJSON(keyMsgRow(msg.ThreadID, msg.ID), &existing)
	if err != nil {
		return Ignored, err
	}
	if ok {
		return Ignored, nil
	}
	var th models.Thread
	tok, err := getJSON(keyThreadMeta(msg.ThreadID), &th)
	if err != nil {
		return Ignored, err
	}
	if !tok {
		// I1 violated by a causally-out-of-order announce; the thread
		// announce will arrive on reconnect catch-up and a retry of this
		// announce (re-broadcast or a later SyncResponse chunk) will apply
		// cleanly then.
		return Ignored, nil
	}
	if msg.ReplyTo != "" {
		var parent models.Message
		pok, err := getJSON(keyMsgRow(msg.ThreadID, msg.ReplyTo), &parent)
		if err != nil {
			return Ignored, err
		}
		if !pok {
			return Ignored, nil
		}
	}
	if err := putJSON(keyMsgRow(msg.ThreadID, msg.ID), msg); err != nil {
		return Ignored, err
	}
	if err := putRaw(keyMsgOrder(msg.ThreadID, msg.CreatedAt, msg.Seq, msg.ID), []byte(msg.ID)); err != nil {
		return Ignored, err
	}
	if err := putJSON(keyMsgByID(msg.ID), msg.ThreadID); err != nil {
		return Ignored, err
	}
	if msg.CreatedAt > th.UpdatedAt {
		th.UpdatedAt = msg.CreatedAt
		if err := putJSON(keyThreadMeta(th.ID), th); err != nil {
			return Ignored, err
		}
	}
	return Applied, nil
}

func applyRemoteReaction(r models.Reaction) (RemoteApplyOutcome, error) {
	key := keyReaction(r.MessageID, r.AuthorDID, r.ReactionType)
	var existing models.Reaction
	ok, err := getJSON(key, &existing)
	if err != nil {
		return Ignored, err
	}
	if ok {
		return Ignored, nil
	}
	if _, mok, err := MessageThread(r.MessageID); err != nil {
		return Ignored, err
	} else if !mok {
		// I2 violated by a causally-out-of-order announce; retried once the
		// owning message's announce has applied (reconnect catch-up or a
		// later gossip delivery).
		return Ignored, nil
	}
	if err := putJSON(key, r); err != nil {
		return Ignored, err
	}
	return Applied, nil
}

func applyRemoteCredLink(cl models.CredentialLink) (RemoteApplyOutcome, error) {
	dedupeKey := keyCredLinkDedupe(cl.ThreadID, cl.CredentialCID, cl.LinkedByDID)
	var existingID string
	found, err := getJSON(dedupeKey, &existingID)
	if err != nil {
		return Ignored, err
	}
	if found {
		return Ignored, nil
	}
	var th models.Thread
	tok, err := getJSON(keyThreadMeta(cl.ThreadID), &th)
	if err != nil {
		return Ignored, err
	}
	if !tok {
		return Ignored, nil
	}
	if err := putJSON(keyCredLinkRow(cl.ThreadID, cl.ID), cl); err != nil {
		return Ignored, err
	}
	if err := putJSON(dedupeKey, cl.ID); err != nil {
		return Ignored, err
	}
	return Applied, nil
}

// applyRemoteFinalization folds a FinalizationAnnounce through the same
// idempotent apply_finalization path used locally; the terminal tag check
// makes ordering across origins immaterial once either side has applied it
// (last-writer-wins by event_ts is only ever visible in UpdatedAt).
func applyRemoteFinalization(f RemoteFinalization) (RemoteApplyOutcome, error) {
	var threadID string
	found, err := getJSON(keyThreadByCID(f.ProposalCID), &threadID)
	if err != nil {
		return Ignored, err
	}
	if !found {
		return Ignored, nil
	}
	var before models.Thread
	if _, err := getJSON(keyThreadMeta(threadID), &before); err != nil {
		return Ignored, err
	}
	if before.Finalized {
		return Ignored, nil
	}
	if _, err := applyFinalization(f.ProposalCID, f.Approved, f.EventTS, bus.OriginRemote); err != nil {
		return Ignored, err
	}
	return Applied, nil
}
