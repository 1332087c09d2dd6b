package ergors

import (
	"time"

	"github.com/permissionlessweb/ergors/pkg/identity"
	"github.com/permissionlessweb/ergors/pkg/wire"
)

// EventKind identifies the type of a network event.
type EventKind int

const (
	// EventPeerConnected indicates a peer session was established and
	// the peer joined the topology.
	EventPeerConnected EventKind = iota

	// EventPeerDisconnected indicates a peer session ended. The event
	// Reason distinguishes a closed connection from a staleness
	// eviction.
	EventPeerDisconnected

	// EventMessageReceived indicates an application message arrived.
	// Responses consumed by a pending Request are not surfaced.
	EventMessageReceived

	// EventTopologyChanged indicates the cluster view changed: a node
	// appeared, went offline, changed role, or a new edge was learned.
	EventTopologyChanged

	// EventError indicates a background failure the application may
	// want to observe, such as a rejected inbound message.
	EventError
)

// String returns a human-readable representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventPeerConnected:
		return "PeerConnected"
	case EventPeerDisconnected:
		return "PeerDisconnected"
	case EventMessageReceived:
		return "MessageReceived"
	case EventTopologyChanged:
		return "TopologyChanged"
	case EventError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Disconnect reasons carried by EventPeerDisconnected.
const (
	// ReasonConnectionClosed indicates the underlying session ended.
	ReasonConnectionClosed = "ConnectionClosed"

	// ReasonTimeout indicates the peer went stale and was evicted.
	ReasonTimeout = "Timeout"
)

// Event represents a network lifecycle or traffic event.
// These events are emitted by the Manager to notify the application of
// peer arrivals, departures, inbound messages, and topology changes.
//
// The Kind field determines which other fields are populated.
type Event struct {
	// Kind is the type of event.
	Kind EventKind

	// NodeID is the peer this event relates to, when the event has one.
	NodeID string

	// Role is the peer's cluster role, when known.
	Role identity.NodeType

	// Reason describes why a peer disconnected. Empty for other kinds.
	Reason string

	// Message is the received message for EventMessageReceived.
	Message *wire.Message

	// Channel is the channel the message arrived on. Set only for
	// EventMessageReceived.
	Channel wire.Channel

	// Err contains error information for EventError.
	// Nil for all other kinds.
	Err error

	// Timestamp is when this event occurred.
	Timestamp time.Time
}

// IsError returns true if this event represents an error condition.
func (e Event) IsError() bool {
	return e.Err != nil
}
