package transport

import (
	"sync"

	"github.com/libp2p/go-libp2p/core/connmgr"
	"github.com/libp2p/go-libp2p/core/control"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// BlacklistChecker reports whether a transport peer is blacklisted.
// *addressbook.Book satisfies it.
type BlacklistChecker interface {
	IsBlacklistedPeer(peerID peer.ID) bool
}

// Gater enforces peer admission at the connection level. Blacklisted
// peers are rejected in both directions. In strict mode only peers in
// the authorization registry may connect at all; outside strict mode
// the registry is advisory and any non-blacklisted peer is admitted.
type Gater struct {
	checker BlacklistChecker

	mu         sync.RWMutex
	strict     bool
	authorized map[peer.ID]struct{}
}

// NewGater creates a gater backed by checker. A nil checker blacklists
// nothing.
func NewGater(checker BlacklistChecker) *Gater {
	return &Gater{
		checker:    checker,
		authorized: make(map[peer.ID]struct{}),
	}
}

// Authorize admits p to the authorization registry.
func (g *Gater) Authorize(p peer.ID) {
	g.mu.Lock()
	g.authorized[p] = struct{}{}
	g.mu.Unlock()
}

// Deauthorize removes p from the authorization registry. Existing
// connections are not torn down; the caller disconnects separately.
func (g *Gater) Deauthorize(p peer.ID) {
	g.mu.Lock()
	delete(g.authorized, p)
	g.mu.Unlock()
}

// IsAuthorized reports whether p is in the authorization registry.
func (g *Gater) IsAuthorized(p peer.ID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.authorized[p]
	return ok
}

// SetStrict toggles strict admission.
func (g *Gater) SetStrict(strict bool) {
	g.mu.Lock()
	g.strict = strict
	g.mu.Unlock()
}

// allowed is the admission decision applied at every interception
// point where the peer id is known.
func (g *Gater) allowed(p peer.ID) bool {
	if g.checker != nil && g.checker.IsBlacklistedPeer(p) {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.strict {
		return true
	}
	_, ok := g.authorized[p]
	return ok
}

// InterceptPeerDial is called before dialing a peer.
func (g *Gater) InterceptPeerDial(p peer.ID) bool {
	return g.allowed(p)
}

// InterceptAddrDial is called before dialing a specific address.
func (g *Gater) InterceptAddrDial(p peer.ID, addr multiaddr.Multiaddr) bool {
	return g.allowed(p)
}

// InterceptAccept is called when accepting an inbound connection. The
// peer id is not known yet, so the connection is admitted and judged
// at InterceptSecured.
func (g *Gater) InterceptAccept(addrs network.ConnMultiaddrs) bool {
	return true
}

// InterceptSecured is called after the security handshake completes
// and the peer id is known.
func (g *Gater) InterceptSecured(dir network.Direction, p peer.ID, addrs network.ConnMultiaddrs) bool {
	return g.allowed(p)
}

// InterceptUpgraded is the final check after the connection is fully
// upgraded.
func (g *Gater) InterceptUpgraded(conn network.Conn) (bool, control.DisconnectReason) {
	if !g.allowed(conn.RemotePeer()) {
		return false, control.DisconnectReason(0)
	}
	return true, 0
}

var _ connmgr.ConnectionGater = (*Gater)(nil)
