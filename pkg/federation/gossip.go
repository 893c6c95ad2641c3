package federation

import (
	"context"
	"encoding/json"

	"github.com/intercooperative/agoranet/pkg/bus"
	"github.com/intercooperative/agoranet/pkg/logger"
	"github.com/intercooperative/agoranet/pkg/store"
	"github.com/intercooperative/agoranet/pkg/telemetry"
)

// publishLoop subscribes to the local Change Bus and re-publishes every
// locally-originated, announceable change to the gossip topic, stamped with
// this node's next monotone seq. Remote-applied changes are never
// re-emitted (they either publish nothing on store.Bus or publish
// OriginRemote records, which this loop skips), which is what prevents echo
// storms.
func (n *Node) publishLoop(ctx context.Context) {
	sub := store.Bus.Subscribe()
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-sub.C():
			if !ok {
				return
			}
			if rec.Origin != bus.OriginLocal || rec.Deleted {
				continue
			}
			wireType, ok := recordToWireType(rec.Kind)
			if !ok {
				continue
			}
			w := WireChange{
				Type:         wireType,
				OriginNodeID: n.cfg.NodeID,
				Seq:          n.nextSeq(),
				Change:       json.RawMessage(rec.Payload),
			}
			n.appendLog(w)
			b, err := json.Marshal(w)
			if err != nil {
				logger.Error("federation_marshal_failed", "error", err)
				continue
			}
			if err := n.topic.Publish(ctx, b); err != nil {
				// Peer send errors are logged and do not fail the originating
				// mutation; the local commit already succeeded.
				logger.Warn("federation_publish_failed", "error", err)
			}
		}
	}
}

// receiveLoop reads gossip messages and applies them via
// Deliberation Store.apply_remote_change, enforcing the vector-clock
// dedupe rules of spec.md §4.4 "Apply on receive".
func (n *Node) receiveLoop(ctx context.Context) {
	for {
		msg, err := n.sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("federation_receive_failed", "error", err)
			continue
		}

		var w WireChange
		if err := json.Unmarshal(msg.Data, &w); err != nil {
			// Inbound decode errors terminate the connection to the peer that
			// delivered the message.
			logger.Warn("federation_decode_failed", "peer", msg.GetFrom().String(), "error", err)
			_ = n.host.Network().ClosePeer(msg.ReceivedFrom)
			continue
		}
		n.applyWireChange(w)
	}
}

// applyWireChange runs steps 1-4 of "Apply on receive": self-drop,
// vector-clock dedupe, idempotent store apply, vector advance.
func (n *Node) applyWireChange(w WireChange) {
	if w.OriginNodeID == "" || w.OriginNodeID == n.cfg.NodeID {
		return
	}
	seen, err := store.GetFederationVector(w.OriginNodeID)
	if err != nil {
		logger.Error("federation_vector_read_failed", "origin", w.OriginNodeID, "error", err)
		return
	}
	if w.Seq <= seen {
		return
	}

	change, err := toRemoteChange(w)
	if err != nil {
		logger.Warn("federation_bad_change_payload", "type", w.Type, "error", err)
		return
	}
	outcome, err := store.ApplyRemoteChange(change)
	if err != nil {
		logger.Error("federation_apply_failed", "type", w.Type, "origin", w.OriginNodeID, "error", err)
		telemetry.FederationChangesAppliedTotal.WithLabelValues("error").Inc()
		return
	}
	if outcome != store.Applied {
		telemetry.FederationChangesAppliedTotal.WithLabelValues("ignored").Inc()
		return
	}
	telemetry.FederationChangesAppliedTotal.WithLabelValues("applied").Inc()
	if err := store.SetFederationVector(w.OriginNodeID, w.Seq); err != nil {
		logger.Error("federation_vector_write_failed", "origin", w.OriginNodeID, "error", err)
		return
	}
	telemetry.FederationVectorSeq.WithLabelValues(w.OriginNodeID).Set(float64(w.Seq))
}
