// Package federation is Federation Sync (C4): a gossip layer reconciling
// Deliberation Store state across a permissioned overlay of peers, built on
// libp2p and go-libp2p-pubsub.
package federation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	"github.com/multiformats/go-multiaddr"

	"github.com/intercooperative/agoranet/pkg/logger"
	"github.com/intercooperative/agoranet/pkg/telemetry"
)

// ChangesTopic is the single gossip topic carrying every announce type;
// subscribers discriminate by the WireChange.Type field.
const ChangesTopic = "/agoranet/changes/1.0.0"

// SyncProtocol is the point-to-point stream protocol used for
// SyncRequest/SyncResponse reconnect catch-up, replying directly to the
// requesting peer rather than broadcasting the reply over the gossip topic.
const SyncProtocol = "/agoranet/sync/1.0.0"

// Config configures a Node.
type Config struct {
	NodeID         string
	ListenAddr     string
	BootstrapPeers []string
	MaxConnections int
}

// Node is a single federation peer: a libp2p host plus the gossip topic and
// sync-stream machinery layered on top.
type Node struct {
	cfg   Config
	host  host.Host
	ps    *pubsub.PubSub
	topic *pubsub.Topic
	sub   *pubsub.Subscription

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc

	// log is a bounded in-memory record of this node's own announces, used
	// to answer SyncRequest catch-up replies. It is not persisted across
	// restarts; a restarted node relies on its peers' own reconnect
	// requests to re-derive its missed history instead.
	log    []WireChange
	logCap int
}

// NewNode constructs the libp2p host, joins ChangesTopic, and registers the
// sync-stream handler. It does not yet dial bootstrap peers or start the
// read loop; call Start for that.
func NewNode(cfg Config) (*Node, error) {
	listen := cfg.ListenAddr
	if listen == "" {
		listen = "/ip4/0.0.0.0/tcp/4001"
	}
	h, err := libp2p.New(
		libp2p.ListenAddrStrings(listen),
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Muxer("/yamux/1.0.0", yamux.DefaultTransport),
	)
	if err != nil {
		return nil, fmt.Errorf("federation: creating libp2p host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(context.Background(), h)
	if err != nil {
		return nil, fmt.Errorf("federation: creating gossipsub: %w", err)
	}
	topic, err := ps.Join(ChangesTopic)
	if err != nil {
		return nil, fmt.Errorf("federation: joining topic: %w", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("federation: subscribing topic: %w", err)
	}

	n := &Node{cfg: cfg, host: h, ps: ps, topic: topic, sub: sub, logCap: 4096}
	h.SetStreamHandler(SyncProtocol, n.handleSyncStream)
	logger.Info("federation_node_started", "node_id", cfg.NodeID, "peer_id", h.ID().String(), "addrs", h.Addrs())
	return n, nil
}

// Start dials the bootstrap peers, then runs the gossip receive loop and the
// local Change Bus publish loop until ctx is cancelled.
func (n *Node) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	n.dialBootstrap(ctx)

	go n.receiveLoop(ctx)
	go n.publishLoop(ctx)

	<-ctx.Done()
	return ctx.Err()
}

// Close shuts down the node's libp2p host.
func (n *Node) Close() error {
	if n.cancel != nil {
		n.cancel()
	}
	return n.host.Close()
}

func (n *Node) dialBootstrap(ctx context.Context) {
	for _, addr := range n.cfg.BootstrapPeers {
		maddr, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			logger.Warn("federation_bad_bootstrap_addr", "addr", addr, "error", err)
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			logger.Warn("federation_bad_bootstrap_addrinfo", "addr", addr, "error", err)
			continue
		}
		n.host.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.PermanentAddrTTL)
		dialCtx, dialCancel := context.WithTimeout(ctx, 15*time.Second)
		if err := n.host.Connect(dialCtx, *info); err != nil {
			logger.Warn("federation_bootstrap_dial_failed", "peer", info.ID.String(), "error", err)
		} else {
			logger.Info("federation_bootstrap_connected", "peer", info.ID.String())
			telemetry.FederationPeers.Set(float64(len(n.host.Network().Peers())))
			go n.requestCatchUp(ctx, info.ID)
		}
		dialCancel()
	}
}

func (n *Node) nextSeq() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	return n.seq
}
