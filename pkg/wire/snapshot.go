package wire

import (
	"github.com/permissionlessweb/ergors/pkg/identity"
	"github.com/permissionlessweb/ergors/pkg/topology"
)

// SnapshotFromTopology converts a topology into its wire form.
func SnapshotFromTopology(t *topology.Topology) *TopologySnapshot {
	nodes := t.Nodes()
	conns := t.Connections()

	snap := &TopologySnapshot{
		Nodes:       make([]NodeInfo, 0, len(nodes)),
		Connections: make([]Connection, 0, len(conns)),
	}
	for _, n := range nodes {
		snap.Nodes = append(snap.Nodes, NodeInfo{
			NodeID:   n.NodeID,
			NodeType: n.NodeType.String(),
			Online:   n.Online,
			LastSeen: n.LastSeen,
		})
	}
	for _, c := range conns {
		snap.Connections = append(snap.Connections, Connection{
			FromNodeID: c.From,
			ToNodeID:   c.To,
		})
	}
	return snap
}

// ToTopology converts the snapshot back into domain form. Unknown role
// names map to the unspecified role rather than failing the whole
// snapshot.
func (s *TopologySnapshot) ToTopology() ([]topology.NodeInfo, []topology.Connection) {
	if s == nil {
		return nil, nil
	}

	nodes := make([]topology.NodeInfo, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		role, err := identity.ParseNodeType(n.NodeType)
		if err != nil {
			role = identity.NodeTypeUnspecified
		}
		nodes = append(nodes, topology.NodeInfo{
			NodeID:   n.NodeID,
			NodeType: role,
			Online:   n.Online,
			LastSeen: n.LastSeen,
		})
	}

	conns := make([]topology.Connection, 0, len(s.Connections))
	for _, c := range s.Connections {
		conns = append(conns, topology.Connection{From: c.FromNodeID, To: c.ToNodeID})
	}
	return nodes, conns
}
