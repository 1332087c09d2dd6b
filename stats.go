package ergors

import (
	"sort"
	"sync"
	"time"

	"github.com/permissionlessweb/ergors/pkg/identity"
	"github.com/permissionlessweb/ergors/pkg/topology"
	"github.com/permissionlessweb/ergors/pkg/wire"
)

// ChannelStats contains traffic statistics for a single channel.
type ChannelStats struct {
	// Channel is the channel name.
	Channel string

	// MessagesSent is the number of messages sent on this channel.
	MessagesSent int64

	// MessagesReceived is the number of messages received on this channel.
	MessagesReceived int64

	// BytesSent is the total bytes sent on this channel.
	BytesSent int64

	// BytesReceived is the total bytes received on this channel.
	BytesReceived int64

	// LastSentAt is when a message was last sent on this channel.
	LastSentAt time.Time

	// LastReceivedAt is when a message was last received on this channel.
	LastReceivedAt time.Time
}

// PeerTrafficStats contains traffic counters for a single peer.
type PeerTrafficStats struct {
	// NodeID is the peer's node identifier.
	NodeID string

	// MessagesSent is the total number of messages sent to this peer.
	MessagesSent int64

	// MessagesReceived is the total number of messages received from this peer.
	MessagesReceived int64

	// BytesSent is the total bytes sent to this peer.
	BytesSent int64

	// BytesReceived is the total bytes received from this peer.
	BytesReceived int64

	// LastMessageAt is when a message was last sent or received.
	LastMessageAt time.Time
}

// NetworkStats is a point-in-time snapshot of manager state.
// All fields are safe to read without synchronization, as they are
// snapshot copies.
type NetworkStats struct {
	// NodeID is this node's identifier.
	NodeID string

	// Role is this node's cluster role.
	Role identity.NodeType

	// Running reports whether the manager is started and not stopped.
	Running bool

	// Channels contains per-channel traffic statistics in channel order.
	Channels [wire.NumChannels]ChannelStats

	// Peers contains per-peer traffic statistics, sorted by node id.
	Peers []PeerTrafficStats

	// Topology summarizes the cluster view.
	Topology topology.Stats

	// PendingRequests is the number of requests awaiting a response.
	PendingRequests int

	// EventsDropped counts events discarded because the event buffer
	// was full.
	EventsDropped uint64

	// InboundDropped counts inbound frames discarded per channel
	// because the channel queue was full.
	InboundDropped [wire.NumChannels]uint64

	// RateRejected counts inbound frames discarded by the per-peer
	// rate limiter.
	RateRejected uint64
}

// statsTracker is the internal mutable traffic counter set.
type statsTracker struct {
	mu sync.RWMutex

	channels [wire.NumChannels]channelStatsInternal
	peers    map[string]*peerTrafficInternal
}

// channelStatsInternal is the mutable per-channel counter set.
type channelStatsInternal struct {
	messagesSent     int64
	messagesReceived int64
	bytesSent        int64
	bytesReceived    int64
	lastSentAt       time.Time
	lastReceivedAt   time.Time
}

// peerTrafficInternal is the mutable per-peer counter set.
type peerTrafficInternal struct {
	messagesSent     int64
	messagesReceived int64
	bytesSent        int64
	bytesReceived    int64
	lastMessageAt    time.Time
}

// newStatsTracker creates an empty traffic tracker.
func newStatsTracker() *statsTracker {
	return &statsTracker{
		peers: make(map[string]*peerTrafficInternal),
	}
}

// recordSent records a message sent to a peer on a channel.
func (s *statsTracker) recordSent(nodeID string, ch wire.Channel, size int) {
	if !ch.Valid() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	cs := &s.channels[ch]
	cs.messagesSent++
	cs.bytesSent += int64(size)
	cs.lastSentAt = now

	pt := s.peers[nodeID]
	if pt == nil {
		pt = &peerTrafficInternal{}
		s.peers[nodeID] = pt
	}
	pt.messagesSent++
	pt.bytesSent += int64(size)
	pt.lastMessageAt = now
}

// recordReceived records a message received from a peer on a channel.
func (s *statsTracker) recordReceived(nodeID string, ch wire.Channel, size int) {
	if !ch.Valid() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	cs := &s.channels[ch]
	cs.messagesReceived++
	cs.bytesReceived += int64(size)
	cs.lastReceivedAt = now

	pt := s.peers[nodeID]
	if pt == nil {
		pt = &peerTrafficInternal{}
		s.peers[nodeID] = pt
	}
	pt.messagesReceived++
	pt.bytesReceived += int64(size)
	pt.lastMessageAt = now
}

// forgetPeer drops the counters for an evicted peer.
func (s *statsTracker) forgetPeer(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, nodeID)
}

// snapshotChannels returns a copy of the per-channel counters.
func (s *statsTracker) snapshotChannels() [wire.NumChannels]ChannelStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out [wire.NumChannels]ChannelStats
	for _, ch := range wire.Channels() {
		cs := &s.channels[ch]
		out[ch] = ChannelStats{
			Channel:          ch.String(),
			MessagesSent:     cs.messagesSent,
			MessagesReceived: cs.messagesReceived,
			BytesSent:        cs.bytesSent,
			BytesReceived:    cs.bytesReceived,
			LastSentAt:       cs.lastSentAt,
			LastReceivedAt:   cs.lastReceivedAt,
		}
	}
	return out
}

// snapshotPeers returns a copy of the per-peer counters sorted by node id.
func (s *statsTracker) snapshotPeers() []PeerTrafficStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PeerTrafficStats, 0, len(s.peers))
	for nodeID, pt := range s.peers {
		out = append(out, PeerTrafficStats{
			NodeID:           nodeID,
			MessagesSent:     pt.messagesSent,
			MessagesReceived: pt.messagesReceived,
			BytesSent:        pt.bytesSent,
			BytesReceived:    pt.bytesReceived,
			LastMessageAt:    pt.lastMessageAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}
