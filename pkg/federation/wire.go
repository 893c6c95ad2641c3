package federation

import (
	"encoding/json"

	"github.com/intercooperative/agoranet/pkg/bus"
	"github.com/intercooperative/agoranet/pkg/models"
	"github.com/intercooperative/agoranet/pkg/store"
)

// WireType names the message types on the wire (spec.md §4.4).
type WireType string

const (
	WireThreadAnnounce    WireType = "ThreadAnnounce"
	WireMessageAnnounce    WireType = "MessageAnnounce"
	WireReactionAnnounce   WireType = "ReactionAnnounce"
	WireCredLinkAnnounce   WireType = "CredentialLinkAnnounce"
	WireFinalizeAnnounce   WireType = "FinalizationAnnounce"
)

// WireChange is the self-describing JSON record every gossip message
// carries: { type, origin_node_id, seq, change }.
type WireChange struct {
	Type         WireType        `json:"type"`
	OriginNodeID string          `json:"origin_node_id"`
	Seq          uint64          `json:"seq"`
	Change       json.RawMessage `json:"change"`
}

// finalizationPayload is the FinalizationAnnounce change body.
type finalizationPayload struct {
	ProposalCID string `json:"proposal_cid"`
	Approved    bool   `json:"approved"`
	EventTS     int64  `json:"event_ts"`
}

// recordToWireType maps a Change Bus entity kind to its wire announce type.
// Deleted messages/reactions are not re-announced: federation's data model
// is insert- and finalize-only (spec.md §4.4 "Ordering guarantees"); a
// local delete_message stays local to this node.
func recordToWireType(kind bus.EntityKind) (WireType, bool) {
	switch kind {
	case bus.EntityThread:
		return WireThreadAnnounce, true
	case bus.EntityMessage:
		return WireMessageAnnounce, true
	case bus.EntityReaction:
		return WireReactionAnnounce, true
	case bus.EntityCredLink:
		return WireCredLinkAnnounce, true
	case bus.EntityFinalize:
		return WireFinalizeAnnounce, true
	default:
		return "", false
	}
}

// toRemoteChange decodes a WireChange's payload into the store's
// RemoteChange shape for apply_remote_change.
func toRemoteChange(w WireChange) (store.RemoteChange, error) {
	switch w.Type {
	case WireThreadAnnounce:
		var th models.Thread
		if err := json.Unmarshal(w.Change, &th); err != nil {
			return store.RemoteChange{}, err
		}
		return store.RemoteChange{Kind: "thread", Thread: &th}, nil
	case WireMessageAnnounce:
		var m models.Message
		if err := json.Unmarshal(w.Change, &m); err != nil {
			return store.RemoteChange{}, err
		}
		return store.RemoteChange{Kind: "message", Message: &m}, nil
	case WireReactionAnnounce:
		var r models.Reaction
		if err := json.Unmarshal(w.Change, &r); err != nil {
			return store.RemoteChange{}, err
		}
		return store.RemoteChange{Kind: "reaction", Reaction: &r}, nil
	case WireCredLinkAnnounce:
		var cl models.CredentialLink
		if err := json.Unmarshal(w.Change, &cl); err != nil {
			return store.RemoteChange{}, err
		}
		return store.RemoteChange{Kind: "credential_link", CredLink: &cl}, nil
	case WireFinalizeAnnounce:
		var f finalizationPayload
		if err := json.Unmarshal(w.Change, &f); err != nil {
			return store.RemoteChange{}, err
		}
		return store.RemoteChange{Kind: "finalization", Finalization: &store.RemoteFinalization{
			ProposalCID: f.ProposalCID, Approved: f.Approved, EventTS: f.EventTS,
		}}, nil
	default:
		return store.RemoteChange{}, nil
	}
}
