// Package transport runs the libp2p wire layer for an ergors node: host
// construction, authenticated hello exchange, per-channel encrypted
// streams, bootstrap dialing, and session tracking.
package transport

import (
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/permissionlessweb/ergors/pkg/wire"
)

const (
	// HelloProtocolID is the protocol identifier for hello streams.
	// Every connection must complete a hello exchange on this protocol
	// before channel streams are accepted.
	HelloProtocolID protocol.ID = "/ergors/hello/1.0.0"

	// ChannelProtocolPrefix is the prefix for channel stream protocols.
	// The full protocol ID is: /ergors/channel/{name}/1.0.0
	ChannelProtocolPrefix = "/ergors/channel/"

	// ChannelProtocolSuffix is appended after the channel name.
	ChannelProtocolSuffix = "/1.0.0"
)

// ChannelProtocolID returns the protocol ID for one of the four fixed
// channels.
func ChannelProtocolID(ch wire.Channel) protocol.ID {
	return protocol.ID(ChannelProtocolPrefix + ch.String() + ChannelProtocolSuffix)
}
