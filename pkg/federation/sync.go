package federation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/intercooperative/agoranet/pkg/logger"
	"github.com/intercooperative/agoranet/pkg/store"
)

// SyncRequest carries the requester's full vector clock.
type SyncRequest struct {
	SinceVector map[string]uint64 `json:"since_vector"`
}

// SyncResponse is a batch of the replier's own locally-originated changes
// with seq greater than the requester's recorded high-water mark for the
// replier's node id.
type SyncResponse struct {
	Changes []WireChange `json:"changes"`
}

func (n *Node) appendLog(w WireChange) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.log = append(n.log, w)
	if len(n.log) > n.logCap {
		n.log = n.log[len(n.log)-n.logCap:]
	}
}

func (n *Node) logSince(seq uint64) []WireChange {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []WireChange
	for _, w := range n.log {
		if w.Seq > seq {
			out = append(out, w)
		}
	}
	return out
}

// handleSyncStream is the server side of reconnect catch-up: it replies
// point-to-point to the requesting peer rather than broadcasting the reply
// over the gossip topic.
func (n *Node) handleSyncStream(s network.Stream) {
	defer s.Close()
	s.SetDeadline(time.Now().Add(30 * time.Second))

	var req SyncRequest
	if err := json.NewDecoder(s).Decode(&req); err != nil {
		logger.Warn("federation_sync_decode_failed", "peer", s.Conn().RemotePeer().String(), "error", err)
		return
	}

	resp := SyncResponse{Changes: n.logSince(req.SinceVector[n.cfg.NodeID])}
	if err := json.NewEncoder(s).Encode(resp); err != nil {
		logger.Warn("federation_sync_encode_failed", "peer", s.Conn().RemotePeer().String(), "error", err)
	}
}

// requestCatchUp is the client side: on connect, send this node's vector
// clock and apply the ordered set of changes the peer replies with, each
// under the same apply_remote_change rules as gossip-received changes.
func (n *Node) requestCatchUp(ctx context.Context, p peer.ID) {
	vector, err := store.FederationVectorSnapshot()
	if err != nil {
		logger.Error("federation_vector_snapshot_failed", "error", err)
		return
	}

	streamCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	s, err := n.host.NewStream(streamCtx, p, SyncProtocol)
	if err != nil {
		logger.Warn("federation_sync_stream_failed", "peer", p.String(), "error", err)
		return
	}
	defer s.Close()
	s.SetDeadline(time.Now().Add(30 * time.Second))

	if err := json.NewEncoder(s).Encode(SyncRequest{SinceVector: vector}); err != nil {
		logger.Warn("federation_sync_request_failed", "peer", p.String(), "error", err)
		return
	}

	var resp SyncResponse
	if err := json.NewDecoder(s).Decode(&resp); err != nil {
		logger.Warn("federation_sync_response_failed", "peer", p.String(), "error", err)
		return
	}
	for _, w := range resp.Changes {
		n.applyWireChange(w)
	}
	logger.Info("federation_sync_caught_up", "peer", p.String(), "applied", len(resp.Changes))
}
