package ergors

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/permissionlessweb/ergors/pkg/topology"
	"github.com/permissionlessweb/ergors/pkg/wire"
)

// DebugState represents the complete state of a Manager for debugging purposes.
type DebugState struct {
	// Node identity
	NodeID    string `json:"node_id"`
	DisplayID string `json:"display_id"`
	Role      string `json:"role"`
	PeerID    string `json:"peer_id,omitempty"`

	// Listen addresses
	ListenAddrs []string `json:"listen_addrs,omitempty"`

	// Protocol version
	Version string `json:"version"`

	// Lifecycle
	Running bool `json:"running"`

	// Topology summary
	Topology topology.Stats `json:"topology"`

	// Known peers
	Peers []DebugPeer `json:"peers,omitempty"`

	// Per-channel traffic
	Channels [wire.NumChannels]ChannelStats `json:"channels"`

	// Correlation table depth
	PendingRequests int `json:"pending_requests"`

	// Events lost to a full buffer
	EventsDropped uint64 `json:"events_dropped"`

	// Configuration
	Config DebugConfig `json:"config"`

	// Timestamp when state was captured
	CapturedAt time.Time `json:"captured_at"`
}

// DebugPeer represents one known peer for debugging.
type DebugPeer struct {
	NodeID       string    `json:"node_id"`
	Role         string    `json:"role"`
	Online       bool      `json:"online"`
	LoadFactor   string    `json:"load_factor,omitempty"`
	LastActivity time.Time `json:"last_activity"`
}

// DebugConfig represents configuration summary for debugging.
type DebugConfig struct {
	MaintenanceInterval string                `json:"maintenance_interval"`
	StaleAfter          string                `json:"stale_after"`
	RequestTimeout      string                `json:"request_timeout"`
	MaxPeers            int                   `json:"max_peers"`
	EventBufferSize     int                   `json:"event_buffer_size"`
	ChannelBuffers      [wire.NumChannels]int `json:"channel_buffers"`
	Discovery           bool                  `json:"discovery"`
	ChannelEncryption   bool                  `json:"channel_encryption"`
}

// DumpState captures the current state of the manager for debugging.
// This is useful for troubleshooting cluster formation issues.
func (m *Manager) DumpState() *DebugState {
	state := &DebugState{
		NodeID:          m.identity.NodeID(),
		DisplayID:       m.identity.DisplayID(),
		Role:            m.identity.NodeType.String(),
		Version:         m.Version().String(),
		Running:         m.IsRunning(),
		Topology:        m.topo.Stats(),
		Channels:        m.traffic.snapshotChannels(),
		PendingRequests: m.pending.Len(),
		EventsDropped:   m.events.Dropped(),
		Config:          m.dumpConfig(),
		CapturedAt:      time.Now(),
	}

	if p := m.PeerID(); p != "" {
		state.PeerID = p.String()
	}
	for _, addr := range m.ListenAddrs() {
		state.ListenAddrs = append(state.ListenAddrs, addr.String())
	}
	for _, p := range m.Peers() {
		state.Peers = append(state.Peers, DebugPeer{
			NodeID:       shortID(p.NodeID),
			Role:         p.Role.String(),
			Online:       p.Online,
			LoadFactor:   p.LoadFactor,
			LastActivity: p.LastActivity,
		})
	}

	return state
}

// dumpConfig returns configuration debug info.
func (m *Manager) dumpConfig() DebugConfig {
	return DebugConfig{
		MaintenanceInterval: m.cfg.MaintenanceInterval.String(),
		StaleAfter:          m.cfg.StaleAfter.String(),
		RequestTimeout:      m.cfg.RequestTimeout.String(),
		MaxPeers:            m.cfg.MaxPeers,
		EventBufferSize:     m.cfg.EventBufferSize,
		ChannelBuffers:      m.cfg.ChannelBuffers,
		Discovery:           !m.cfg.DisableDiscovery,
		ChannelEncryption:   !m.cfg.PlaintextChannels,
	}
}

// DumpStateJSON returns the manager state as formatted JSON.
func (m *Manager) DumpStateJSON() (string, error) {
	state := m.DumpState()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	return string(data), nil
}

// DumpStateString returns a human-readable string representation of the manager state.
func (m *Manager) DumpStateString() string {
	state := m.DumpState()
	var sb strings.Builder

	sb.WriteString("=== Ergors Manager Debug State ===\n\n")

	// Identity
	sb.WriteString("IDENTITY:\n")
	sb.WriteString(fmt.Sprintf("  Node:    %s\n", state.DisplayID))
	sb.WriteString(fmt.Sprintf("  Role:    %s\n", state.Role))
	if state.PeerID != "" {
		sb.WriteString(fmt.Sprintf("  Peer ID: %s\n", state.PeerID))
	}
	sb.WriteString(fmt.Sprintf("  Version: %s\n", state.Version))
	sb.WriteString(fmt.Sprintf("  Running: %t\n", state.Running))
	sb.WriteString("\n")

	// Listen addresses
	sb.WriteString("LISTEN ADDRESSES:\n")
	if len(state.ListenAddrs) == 0 {
		sb.WriteString("  (none)\n")
	} else {
		for _, addr := range state.ListenAddrs {
			sb.WriteString(fmt.Sprintf("  - %s\n", addr))
		}
	}
	sb.WriteString("\n")

	// Topology
	sb.WriteString("TOPOLOGY:\n")
	sb.WriteString(fmt.Sprintf("  Nodes:       %d (%d online)\n", state.Topology.TotalNodes, state.Topology.OnlineNodes))
	sb.WriteString(fmt.Sprintf("  Connections: %d\n", state.Topology.TotalConnections))
	sb.WriteString(fmt.Sprintf("  Complete:    %t\n", state.Topology.IsComplete))
	sb.WriteString("\n")

	// Peers
	sb.WriteString("PEERS:\n")
	if len(state.Peers) == 0 {
		sb.WriteString("  (none)\n")
	} else {
		for _, p := range state.Peers {
			online := "offline"
			if p.Online {
				online = "online"
			}
			sb.WriteString(fmt.Sprintf("  %s  %-12s %s\n", p.NodeID, p.Role, online))
		}
	}
	sb.WriteString("\n")

	// Channels
	sb.WriteString("CHANNELS:\n")
	for _, cs := range state.Channels {
		sb.WriteString(fmt.Sprintf("  %-10s sent=%d recv=%d bytes_out=%d bytes_in=%d\n",
			cs.Channel, cs.MessagesSent, cs.MessagesReceived, cs.BytesSent, cs.BytesReceived))
	}
	sb.WriteString("\n")

	// Requests and events
	sb.WriteString("REQUESTS:\n")
	sb.WriteString(fmt.Sprintf("  Pending:        %d\n", state.PendingRequests))
	sb.WriteString(fmt.Sprintf("  Events dropped: %d\n", state.EventsDropped))
	sb.WriteString("\n")

	// Config
	sb.WriteString("CONFIGURATION:\n")
	sb.WriteString(fmt.Sprintf("  Maintenance Interval: %s\n", state.Config.MaintenanceInterval))
	sb.WriteString(fmt.Sprintf("  Stale After:          %s\n", state.Config.StaleAfter))
	sb.WriteString(fmt.Sprintf("  Request Timeout:      %s\n", state.Config.RequestTimeout))
	sb.WriteString(fmt.Sprintf("  Max Peers:            %d\n", state.Config.MaxPeers))
	sb.WriteString(fmt.Sprintf("  Channel Buffers:      %v\n", state.Config.ChannelBuffers))
	sb.WriteString(fmt.Sprintf("  Discovery:            %t\n", state.Config.Discovery))
	sb.WriteString(fmt.Sprintf("  Channel Encryption:   %t\n", state.Config.ChannelEncryption))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("Captured at: %s\n", state.CapturedAt.Format(time.RFC3339)))
	sb.WriteString("==================================\n")

	return sb.String()
}
