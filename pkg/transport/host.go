package transport

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/libp2p/go-libp2p"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/multiformats/go-multiaddr"
)

// HostConfig configures the libp2p host underneath a transport.
type HostConfig struct {
	// PrivateKey is the Ed25519 private key for the host identity.
	PrivateKey ed25519.PrivateKey

	// ListenAddrs are the multiaddresses to listen on.
	ListenAddrs []multiaddr.Multiaddr

	// Gater enforces peer admission.
	Gater *Gater

	// ConnMgrLowWater is the low watermark for the connection manager.
	// Connections are trimmed when the count exceeds the high
	// watermark.
	ConnMgrLowWater int

	// ConnMgrHighWater is the high watermark for the connection
	// manager.
	ConnMgrHighWater int
}

// DefaultHostConfig returns a HostConfig sized for a small fixed
// cluster.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		ConnMgrLowWater:  16,
		ConnMgrHighWater: 64,
	}
}

// Host wraps a libp2p host behind the small surface the transport
// needs.
type Host struct {
	host   host.Host
	config HostConfig
}

// NewHost creates a libp2p host with the given configuration.
func NewHost(ctx context.Context, cfg HostConfig) (*Host, error) {
	libp2pPriv, err := libp2pcrypto.UnmarshalEd25519PrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to convert private key: %w", err)
	}

	listenAddrs := make([]string, len(cfg.ListenAddrs))
	for i, ma := range cfg.ListenAddrs {
		listenAddrs[i] = ma.String()
	}

	connMgr, err := connmgr.NewConnManager(
		cfg.ConnMgrLowWater,
		cfg.ConnMgrHighWater,
		connmgr.WithGracePeriod(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}

	opts := []libp2p.Option{
		libp2p.Identity(libp2pPriv),
		libp2p.ListenAddrStrings(listenAddrs...),
		libp2p.ConnectionManager(connMgr),
	}
	if cfg.Gater != nil {
		opts = append(opts, libp2p.ConnectionGater(cfg.Gater))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	return &Host{
		host:   h,
		config: cfg,
	}, nil
}

// ID returns the peer ID of this host.
func (h *Host) ID() peer.ID {
	return h.host.ID()
}

// Addrs returns the addresses this host is listening on.
func (h *Host) Addrs() []multiaddr.Multiaddr {
	return h.host.Addrs()
}

// FullAddrs returns the listen addresses with the /p2p/{id} component
// appended, in the form peers dial.
func (h *Host) FullAddrs() []multiaddr.Multiaddr {
	p2p, err := multiaddr.NewMultiaddr("/p2p/" + h.host.ID().String())
	if err != nil {
		return h.host.Addrs()
	}
	addrs := h.host.Addrs()
	out := make([]multiaddr.Multiaddr, len(addrs))
	for i, a := range addrs {
		out[i] = a.Encapsulate(p2p)
	}
	return out
}

// AddrInfo returns the peer.AddrInfo for this host.
func (h *Host) AddrInfo() peer.AddrInfo {
	return peer.AddrInfo{
		ID:    h.host.ID(),
		Addrs: h.host.Addrs(),
	}
}

// Connect establishes a connection to a peer. The peer's addresses are
// retained in the peerstore so later streams and redials can reach it.
func (h *Host) Connect(ctx context.Context, pi peer.AddrInfo) error {
	h.host.Peerstore().AddAddrs(pi.ID, pi.Addrs, peerstore.PermanentAddrTTL)

	if err := h.host.Connect(ctx, pi); err != nil {
		return fmt.Errorf("failed to connect to peer %s: %w", pi.ID, err)
	}
	return nil
}

// Disconnect closes all connections to a peer.
func (h *Host) Disconnect(peerID peer.ID) error {
	return h.host.Network().ClosePeer(peerID)
}

// IsConnected checks if there is an active connection to a peer.
func (h *Host) IsConnected(peerID peer.ID) bool {
	return h.host.Network().Connectedness(peerID) == network.Connected
}

// Connectedness returns the connection status with a peer.
func (h *Host) Connectedness(peerID peer.ID) network.Connectedness {
	return h.host.Network().Connectedness(peerID)
}

// SetStreamHandler registers a handler for a protocol.
func (h *Host) SetStreamHandler(id protocol.ID, handler network.StreamHandler) {
	h.host.SetStreamHandler(id, handler)
}

// NewStream opens a new stream to a peer for the given protocol.
func (h *Host) NewStream(ctx context.Context, peerID peer.ID, id protocol.ID) (network.Stream, error) {
	return h.host.NewStream(ctx, peerID, id)
}

// Network returns the underlying network.
func (h *Host) Network() network.Network {
	return h.host.Network()
}

// Peerstore returns the peerstore.
func (h *Host) Peerstore() peerstore.Peerstore {
	return h.host.Peerstore()
}

// Close shuts down the host.
func (h *Host) Close() error {
	return h.host.Close()
}
