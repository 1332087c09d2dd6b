/*
Package ergors manages the network layer of a four-role cluster over
libp2p.

An ergors Manager owns one node's view of the cluster: an Ed25519
identity with a declared role, a topology of nodes and connections,
verified peer sessions, and four fixed communication channels. Nodes
find each other through announces, repair their topology views through
ping gossip, and evict peers that go silent.

# Features

  - Ed25519 identities with namespace-bound signatures
  - Verified peer sessions via a signed hello exchange
  - Four fixed channels: discovery, tasks, state, health
  - Channel payload encryption with ChaCha20-Poly1305
  - Tetrahedral topology tracking with completeness detection
  - Announce gossip and topology repair over pings
  - Request/response correlation across channels
  - Staleness eviction of silent peers
  - Non-blocking lifecycle event stream
  - JSON-persisted address book

# Quick Start

Create and start a manager:

	id, _ := identity.New(identity.NodeTypeCoordinator)
	cfg := ergors.NewConfig(id,
		ergors.WithAddressBook("./peers.json"))

	manager, err := ergors.New(cfg)
	if err != nil {
		// Handle error
	}

	events, _ := manager.Subscribe()
	if err := manager.Start(ctx); err != nil {
		// Handle error
	}
	defer manager.Stop()

Connect to a peer by multiaddress:

	addr, _ := multiaddr.NewMultiaddr(
		"/ip4/10.0.0.2/tcp/26969/p2p/12D3KooW...")
	manager.Connect(ctx, addr)

Handle events:

	for event := range events {
		switch event.Kind {
		case ergors.EventPeerConnected:
			fmt.Printf("peer %s joined as %s\n", event.NodeID, event.Role)
		case ergors.EventMessageReceived:
			// event.Message carries exactly one payload
		case ergors.EventTopologyChanged:
			fmt.Printf("complete: %t\n", manager.IsComplete())
		}
	}

Send messages:

	task := wire.NewTaskMessage(&wire.TaskCoordination{
		TaskID:   "task-1",
		FromRole: int32(identity.NodeTypeCoordinator),
		ToRole:   int32(identity.NodeTypeExecutor),
		TaskType: "run",
	})
	manager.SendToRole(ctx, identity.NodeTypeExecutor, task)

	resp, err := manager.Request(ctx, nodeID,
		wire.NewRequestMessage(&wire.Request{Payload: query}), 0)

# Channels

Every message kind travels on a fixed channel; both sides derive the
channel from the payload kind, it is never transmitted:

	discovery (0)  node announces
	tasks     (1)  task coordination, requests, responses
	state     (2)  sandloop state, fractal sync
	health    (3)  tetrahedral pings

# Security

  - Ed25519 signatures bound to the protocol namespace
  - Hello exchange verifies identity before any channel traffic
  - X25519 ECDH from identity keys, HKDF-SHA256 derivation
  - ChaCha20-Poly1305 sealing of channel payloads
  - Per-peer inbound rate limiting
  - Blacklist enforcement at the connection gate

Private keys never leave the identity package; persistence goes
through the sealed keystore.

# Thread Safety

All public Manager methods are safe for concurrent use. The event
channel is claimed once via Subscribe and read by a single consumer.

# Dependencies

  - github.com/libp2p/go-libp2p - P2P networking
  - github.com/blockberries/cramberry - Binary serialization
  - golang.org/x/crypto - Cryptographic primitives

# See Also

  - examples/basic - Identity, manager, and announce walkthrough
  - examples/cluster - Four-role local cluster demo
*/
package ergors
