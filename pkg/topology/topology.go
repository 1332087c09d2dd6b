// Package topology tracks cluster membership: which nodes exist, what
// role each plays, whether they are online, and which pairs are
// connected. A four-role cluster is tetrahedrally complete when exactly
// four online nodes cover all four roles and at least six edges are
// recorded.
//
// Topology is safe for concurrent use. Connections are stored as
// recorded but treated as undirected for membership checks.
package topology

import (
	"sync"

	"github.com/permissionlessweb/ergors/pkg/identity"
)

// tetrahedronEdges is the edge count of a complete graph over four nodes.
const tetrahedronEdges = 6

// NodeInfo describes one node as reported over the network. LastSeen is
// a peer-reported protocol timestamp in Unix seconds; it is untrusted
// and never used for local staleness decisions.
type NodeInfo struct {
	NodeID   string            `json:"node_id"`
	NodeType identity.NodeType `json:"node_type"`
	Online   bool              `json:"online"`
	LastSeen uint64            `json:"last_seen"`
}

// Connection is a recorded edge between two nodes. Direction is an
// artifact of recording order; membership checks ignore it.
type Connection struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Stats summarizes a topology at one instant.
type Stats struct {
	TotalNodes       int            `json:"total_nodes"`
	OnlineNodes      int            `json:"online_nodes"`
	TotalConnections int            `json:"total_connections"`
	IsComplete       bool           `json:"is_complete"`
	NodesByType      map[string]int `json:"nodes_by_type"`
}

// Topology is the shared membership view of a cluster.
type Topology struct {
	mu          sync.RWMutex
	nodes       map[string]NodeInfo
	connections []Connection
}

// New creates an empty topology.
func New() *Topology {
	return &Topology{nodes: make(map[string]NodeInfo)}
}

// AddNode inserts or replaces the entry for info.NodeID.
func (t *Topology) AddNode(info NodeInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[info.NodeID] = info
}

// RemoveNode deletes the node and every connection touching it.
// It reports whether the node was present.
func (t *Topology) RemoveNode(nodeID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[nodeID]; !ok {
		return false
	}
	delete(t.nodes, nodeID)

	kept := t.connections[:0]
	for _, c := range t.connections {
		if c.From != nodeID && c.To != nodeID {
			kept = append(kept, c)
		}
	}
	t.connections = kept
	return true
}

// AddConnection records an edge between from and to unless one already
// exists in either direction. It reports whether a new edge was added.
func (t *Topology) AddConnection(from, to string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hasConnectionLocked(from, to) {
		return false
	}
	t.connections = append(t.connections, Connection{From: from, To: to})
	return true
}

// HasConnection reports whether an edge exists between from and to,
// in either direction.
func (t *Topology) HasConnection(from, to string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hasConnectionLocked(from, to)
}

func (t *Topology) hasConnectionLocked(from, to string) bool {
	for _, c := range t.connections {
		if (c.From == from && c.To == to) || (c.From == to && c.To == from) {
			return true
		}
	}
	return false
}

// Node returns the entry for nodeID.
func (t *Topology) Node(nodeID string) (NodeInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.nodes[nodeID]
	return info, ok
}

// Nodes returns all node entries in unspecified order.
func (t *Topology) Nodes() []NodeInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]NodeInfo, 0, len(t.nodes))
	for _, info := range t.nodes {
		out = append(out, info)
	}
	return out
}

// Connections returns a copy of the recorded edges.
func (t *Topology) Connections() []Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Connection, len(t.connections))
	copy(out, t.connections)
	return out
}

// NodesByType returns all nodes playing the given role.
func (t *Topology) NodesByType(nodeType identity.NodeType) []NodeInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []NodeInfo
	for _, info := range t.nodes {
		if info.NodeType == nodeType {
			out = append(out, info)
		}
	}
	return out
}

// OnlineNodes returns all nodes currently marked online.
func (t *Topology) OnlineNodes() []NodeInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []NodeInfo
	for _, info := range t.nodes {
		if info.Online {
			out = append(out, info)
		}
	}
	return out
}

// NearestNodeOfType returns an online node of the given role, if any.
func (t *Topology) NearestNodeOfType(nodeType identity.NodeType) (NodeInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, info := range t.nodes {
		if info.NodeType == nodeType && info.Online {
			return info, true
		}
	}
	return NodeInfo{}, false
}

// IsCompleteTetrahedron reports whether the cluster is complete:
// exactly four online nodes, one of each role, and at least six
// recorded edges. All conditions must hold.
func (t *Topology) IsCompleteTetrahedron() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isCompleteLocked()
}

func (t *Topology) isCompleteLocked() bool {
	roles := make(map[identity.NodeType]bool, 4)
	online := 0
	for _, info := range t.nodes {
		if !info.Online {
			continue
		}
		online++
		roles[info.NodeType] = true
	}
	if online != 4 {
		return false
	}
	for _, role := range identity.Roles() {
		if !roles[role] {
			return false
		}
	}
	return len(t.connections) >= tetrahedronEdges
}

// NodeCount returns the number of known nodes.
func (t *Topology) NodeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// ConnectionCount returns the number of recorded edges.
func (t *Topology) ConnectionCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.connections)
}

// Stats returns a point-in-time summary.
func (t *Topology) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	byType := make(map[string]int)
	online := 0
	for _, info := range t.nodes {
		byType[info.NodeType.String()]++
		if info.Online {
			online++
		}
	}
	return Stats{
		TotalNodes:       len(t.nodes),
		OnlineNodes:      online,
		TotalConnections: len(t.connections),
		IsComplete:       t.isCompleteLocked(),
		NodesByType:      byType,
	}
}

// Snapshot returns a deep copy safe to hand to other goroutines or
// serialize for the wire.
func (t *Topology) Snapshot() *Topology {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := New()
	for id, info := range t.nodes {
		out.nodes[id] = info
	}
	out.connections = make([]Connection, len(t.connections))
	copy(out.connections, t.connections)
	return out
}

// Merge folds a peer-reported view into this topology: unknown nodes
// and unknown edges are added, existing entries are left untouched so
// local observations win over gossip. It reports whether anything
// changed.
func (t *Topology) Merge(nodes []NodeInfo, connections []Connection) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := false
	for _, info := range nodes {
		if info.NodeID == "" {
			continue
		}
		if _, ok := t.nodes[info.NodeID]; !ok {
			t.nodes[info.NodeID] = info
			changed = true
		}
	}
	for _, c := range connections {
		if c.From == "" || c.To == "" {
			continue
		}
		if !t.hasConnectionLocked(c.From, c.To) {
			t.connections = append(t.connections, c)
			changed = true
		}
	}
	return changed
}
