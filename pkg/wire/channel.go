package wire

import "fmt"

// Channel identifies one of the four fixed communication lanes. The
// set is part of the protocol and never grows at runtime.
type Channel uint8

const (
	// ChannelDiscovery carries node announcements.
	ChannelDiscovery Channel = 0
	// ChannelTasks carries task coordination and request/response traffic.
	ChannelTasks Channel = 1
	// ChannelState carries state synchronization traffic.
	ChannelState Channel = 2
	// ChannelHealth carries liveness pings.
	ChannelHealth Channel = 3

	// NumChannels is the size of the fixed channel set.
	NumChannels = 4
)

// Channels returns the full channel set in wire order.
func Channels() []Channel {
	return []Channel{ChannelDiscovery, ChannelTasks, ChannelState, ChannelHealth}
}

// Valid reports whether c is one of the four protocol channels.
func (c Channel) Valid() bool {
	return c < NumChannels
}

// String returns the channel name used in logs and metrics labels.
func (c Channel) String() string {
	switch c {
	case ChannelDiscovery:
		return "discovery"
	case ChannelTasks:
		return "tasks"
	case ChannelState:
		return "state"
	case ChannelHealth:
		return "health"
	default:
		return fmt.Sprintf("channel(%d)", uint8(c))
	}
}
