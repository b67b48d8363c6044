// Package transport is the libp2p-backed adapter that gives a replica
// reliable, authenticated, message-oriented delivery to its peers: a host,
// a single gossipsub topic carrying wire-encoded ProtocolMessages, and
// mDNS discovery for same-subnet bootstrapping.
package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"

	"spacetimekv/internal/wire"
)

// topic is the single gossipsub topic every replica joins: the store has
// no notion of sharding, so one topic per overlay network is enough.
const topic = "spacetimekv/gossip/v1"

// Node is a libp2p host joined to the spacetimekv gossip topic. It
// satisfies replica.Transport: its Send method ignores the peer argument
// and publishes to the shared topic, since gossipsub fans a publish out
// to every subscribed peer rather than addressing one directly.
type Node struct {
	host   host.Host
	pubsub *pubsub.PubSub
	top    *pubsub.Topic
	sub    *pubsub.Subscription

	peerLock sync.RWMutex
	peers    map[peer.ID]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	log    *logrus.Logger
}

// Config holds the transport's listen address, bootstrap peer addresses,
// and mDNS discovery tag.
type Config struct {
	ListenAddr     string
	BootstrapPeers []string
	DiscoveryTag   string
}

// New creates and bootstraps a libp2p node: it opens a host on
// cfg.ListenAddr, joins the gossip topic over gossipsub, dials every
// bootstrap peer, and starts mDNS discovery under cfg.DiscoveryTag.
func New(ctx context.Context, cfg Config, log *logrus.Logger) (*Node, error) {
	if log == nil {
		log = logrus.New()
	}
	nctx, cancel := context.WithCancel(ctx)

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transport: create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(nctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("transport: create pubsub: %w", err)
	}

	top, err := ps.Join(topic)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("transport: join topic %s: %w", topic, err)
	}

	sub, err := top.Subscribe()
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("transport: subscribe %s: %w", topic, err)
	}

	n := &Node{
		host:   h,
		pubsub: ps,
		top:    top,
		sub:    sub,
		peers:  make(map[peer.ID]struct{}),
		ctx:    nctx,
		cancel: cancel,
		log:    log,
	}

	if err := n.DialSeed(cfg.BootstrapPeers); err != nil {
		log.Warnf("transport: bootstrap dial warning: %v", err)
	}

	if err := mdns.NewMdnsService(h, cfg.DiscoveryTag, n).Start(); err != nil {
		log.Warnf("transport: mDNS discovery unavailable: %v", err)
	}

	return n, nil
}

var _ mdns.Notifee = (*Node)(nil)

// HandlePeerFound implements mdns.Notifee: connect to a peer discovered on
// the local network, ignoring ourselves and peers already known.
func (n *Node) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}
	n.peerLock.RLock()
	_, known := n.peers[info.ID]
	n.peerLock.RUnlock()
	if known {
		return
	}
	if err := n.host.Connect(n.ctx, info); err != nil {
		n.log.Warnf("transport: connect to discovered peer %s: %v", info.ID, err)
		return
	}
	n.peerLock.Lock()
	n.peers[info.ID] = struct{}{}
	n.peerLock.Unlock()
	n.log.Infof("transport: connected to %s via mDNS", info.ID)
}

// DialSeed connects to every bootstrap peer address (multiaddr/p2p form).
func (n *Node) DialSeed(seeds []string) error {
	var failed []string
	for _, addr := range seeds {
		pi, err := peer.AddrInfoFromString(addr)
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: invalid address: %v", addr, err))
			continue
		}
		if err := n.host.Connect(n.ctx, *pi); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", addr, err))
			continue
		}
		n.peerLock.Lock()
		n.peers[pi.ID] = struct{}{}
		n.peerLock.Unlock()
	}
	if len(failed) > 0 {
		return fmt.Errorf("transport: dial errors: %v", failed)
	}
	return nil
}

// Send wire-encodes msg and publishes it on the shared gossip topic. The
// peer argument is accepted to satisfy replica.Transport but unused:
// gossipsub delivers to every subscriber, there is no point-to-point send.
func (n *Node) Send(ctx context.Context, _ string, msg wire.ProtocolMessage) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}
	if err := n.top.Publish(ctx, data); err != nil {
		return fmt.Errorf("transport: publish: %w", err)
	}
	return nil
}

// Messages returns a channel of inbound ProtocolMessages decoded from the
// gossip topic. Malformed payloads are logged and dropped, never fatal.
// The channel closes once the node's context is canceled.
func (n *Node) Messages() <-chan wire.ProtocolMessage {
	out := make(chan wire.ProtocolMessage)
	go func() {
		defer close(out)
		for {
			m, err := n.sub.Next(n.ctx)
			if err != nil {
				if n.ctx.Err() == nil {
					n.log.Warnf("transport: subscription error: %v", err)
				}
				return
			}
			if m.ReceivedFrom == n.host.ID() {
				continue
			}
			msg, err := wire.Decode(m.Data)
			if err != nil {
				n.log.WithError(err).Warn("transport: dropping malformed message")
				continue
			}
			out <- msg
		}
	}()
	return out
}

// Addrs returns the multiaddrs this host is reachable on, suitable for use
// as another replica's bootstrap peer.
func (n *Node) Addrs() []string {
	id := n.host.ID().String()
	out := make([]string, 0, len(n.host.Addrs()))
	for _, a := range n.host.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", a.String(), id))
	}
	return out
}

// Close shuts down the node's subscription, topic, pubsub, and host.
func (n *Node) Close() error {
	n.cancel()
	n.sub.Cancel()
	if err := n.top.Close(); err != nil {
		n.log.Warnf("transport: close topic: %v", err)
	}
	return n.host.Close()
}
