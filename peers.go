package ergors

import (
	"time"

	"github.com/permissionlessweb/ergors/pkg/identity"
)

// PeerInfo is a point-in-time view of a known peer.
type PeerInfo struct {
	// NodeID is the peer's node identifier.
	NodeID string

	// Role is the cluster role the peer declared.
	Role identity.NodeType

	// Capabilities are the capability strings the peer announced.
	Capabilities []string

	// Online reports whether the peer currently has a live session.
	Online bool

	// LoadFactor is the peer's self-reported load, as announced.
	LoadFactor string

	// ConnectedAt is when the current session was established.
	ConnectedAt time.Time

	// LastActivity is when the peer last sent anything.
	LastActivity time.Time
}

// peerState is the manager's mutable record of a peer. Guarded by the
// manager's mutex.
type peerState struct {
	nodeID       string
	role         identity.NodeType
	capabilities []string
	online       bool
	loadFactor   string
	connectedAt  time.Time
	lastActivity time.Time
}

// info returns a copy safe to hand to callers.
func (p *peerState) info() PeerInfo {
	caps := make([]string, len(p.capabilities))
	copy(caps, p.capabilities)
	return PeerInfo{
		NodeID:       p.nodeID,
		Role:         p.role,
		Capabilities: caps,
		Online:       p.online,
		LoadFactor:   p.loadFactor,
		ConnectedAt:  p.connectedAt,
		LastActivity: p.lastActivity,
	}
}
