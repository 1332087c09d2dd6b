package transport

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/permissionlessweb/ergors/pkg/addressbook"
	"github.com/permissionlessweb/ergors/pkg/identity"
	"github.com/permissionlessweb/ergors/pkg/wire"
)

func newTestTransport(t *testing.T, role identity.NodeType, mutate func(*Config)) *Transport {
	t.Helper()

	listen, err := multiaddr.NewMultiaddr("/ip4/127.0.0.1/tcp/0")
	if err != nil {
		t.Fatalf("listen multiaddr: %v", err)
	}

	cfg := Config{
		Identity:     newTestIdentity(t, role),
		ListenAddrs:  []multiaddr.Multiaddr{listen},
		HelloTimeout: 5 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	tr, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func startTransport(t *testing.T, tr *Transport) {
	t.Helper()
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func transportAddrInfo(t *testing.T, tr *Transport) peer.AddrInfo {
	t.Helper()
	addrs := tr.LocalAddrs()
	if len(addrs) == 0 {
		t.Fatal("transport has no listen addresses")
	}
	pi, err := peer.AddrInfoFromP2pAddr(addrs[0])
	if err != nil {
		t.Fatalf("parse addr info from %s: %v", addrs[0], err)
	}
	return *pi
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func recvInbound(t *testing.T, ch <-chan Inbound, timeout time.Duration) Inbound {
	t.Helper()
	select {
	case in := <-ch:
		return in
	case <-time.After(timeout):
		t.Fatal("timed out waiting for inbound frame")
		return Inbound{}
	}
}

func TestNew_RequiresPrivateKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New accepted an empty config")
	}

	full := newTestIdentity(t, identity.NodeTypeCoordinator)
	pubOnly := &identity.NodeIdentity{
		NodeType:  identity.NodeTypeCoordinator,
		PublicKey: full.PublicKey,
	}
	if _, err := New(Config{Identity: pubOnly}); !errors.Is(err, identity.ErrPrivateKeyNotFound) {
		t.Fatalf("New error = %v, want ErrPrivateKeyNotFound", err)
	}
}

func TestListenAddrFor(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"127.0.0.1", "/ip4/127.0.0.1/tcp/26969"},
		{"::1", "/ip6/::1/tcp/26969"},
		{"cluster.local", "/dns4/cluster.local/tcp/26969"},
	}

	for _, tt := range tests {
		id := newTestIdentity(t, identity.NodeTypeExecutor)
		id.Host = tt.host

		ma, err := ListenAddrFor(id)
		if err != nil {
			t.Fatalf("ListenAddrFor(%q): %v", tt.host, err)
		}
		if ma.String() != tt.want {
			t.Errorf("ListenAddrFor(%q) = %s, want %s", tt.host, ma, tt.want)
		}
	}
}

func TestTransport_StartAndClose(t *testing.T) {
	tr := newTestTransport(t, identity.NodeTypeCoordinator, nil)

	if err := tr.SendTo(context.Background(), "nobody", wire.ChannelTasks, []byte("x")); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("SendTo before Start = %v, want ErrNotStarted", err)
	}

	startTransport(t, tr)

	if tr.PeerID() == "" {
		t.Error("PeerID empty after Start")
	}
	addrs := tr.LocalAddrs()
	if len(addrs) == 0 {
		t.Fatal("LocalAddrs empty after Start")
	}
	if _, err := peer.AddrInfoFromP2pAddr(addrs[0]); err != nil {
		t.Errorf("LocalAddrs[0] = %s is not dialable: %v", addrs[0], err)
	}

	if err := tr.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start = %v, want ErrAlreadyStarted", err)
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := tr.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Start after Close = %v, want ErrClosed", err)
	}
	if err := tr.SendTo(context.Background(), "nobody", wire.ChannelTasks, []byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("SendTo after Close = %v, want ErrClosed", err)
	}
}

func TestTransport_ConnectAndHello(t *testing.T) {
	a := newTestTransport(t, identity.NodeTypeCoordinator, func(cfg *Config) {
		cfg.Capabilities = []string{"tasks", "state"}
	})
	b := newTestTransport(t, identity.NodeTypeExecutor, nil)
	startTransport(t, a)
	startTransport(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess, err := b.Connect(ctx, transportAddrInfo(t, a))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	aID := a.cfg.Identity.NodeID()
	bID := b.cfg.Identity.NodeID()

	if sess.NodeID != aID {
		t.Errorf("session NodeID = %q, want %q", sess.NodeID, aID)
	}
	if sess.Role != identity.NodeTypeCoordinator {
		t.Errorf("session Role = %v, want coordinator", sess.Role)
	}
	if len(sess.Capabilities) != 2 {
		t.Errorf("session Capabilities = %v, want 2 entries", sess.Capabilities)
	}
	if !sess.PublicKey.Equal(a.cfg.Identity.PublicKey) {
		t.Error("session public key does not match the remote identity")
	}

	waitFor(t, 5*time.Second, "session on the accepting side", func() bool {
		_, ok := a.Session(bID)
		return ok
	})
	if back, _ := a.Session(bID); back.Role != identity.NodeTypeExecutor {
		t.Errorf("accepting side Role = %v, want executor", back.Role)
	}

	again, err := b.Connect(ctx, transportAddrInfo(t, a))
	if err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if again != sess {
		t.Error("second Connect returned a different session")
	}
}

func TestTransport_SendReceive(t *testing.T) {
	a := newTestTransport(t, identity.NodeTypeCoordinator, nil)
	b := newTestTransport(t, identity.NodeTypeExecutor, nil)
	startTransport(t, a)
	startTransport(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := b.Connect(ctx, transportAddrInfo(t, a)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	aID := a.cfg.Identity.NodeID()
	bID := b.cfg.Identity.NodeID()

	payload := []byte("coordinate this task")
	if err := b.SendTo(ctx, aID, wire.ChannelTasks, payload); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	in := recvInbound(t, a.Inbound(wire.ChannelTasks), 5*time.Second)
	if in.NodeID != bID {
		t.Errorf("inbound NodeID = %q, want %q", in.NodeID, bID)
	}
	if in.Channel != wire.ChannelTasks {
		t.Errorf("inbound Channel = %v, want tasks", in.Channel)
	}
	if !bytes.Equal(in.Data, payload) {
		t.Errorf("inbound Data = %q, want %q", in.Data, payload)
	}
	if in.ReceivedAt.IsZero() {
		t.Error("inbound ReceivedAt not set")
	}

	// Reply in the other direction over the same channel.
	reply := []byte("task accepted")
	if err := a.SendTo(ctx, bID, wire.ChannelTasks, reply); err != nil {
		t.Fatalf("reply SendTo: %v", err)
	}
	back := recvInbound(t, b.Inbound(wire.ChannelTasks), 5*time.Second)
	if !bytes.Equal(back.Data, reply) {
		t.Errorf("reply Data = %q, want %q", back.Data, reply)
	}

	// Traffic stays on its channel.
	ping := []byte("ping")
	if err := b.SendTo(ctx, aID, wire.ChannelHealth, ping); err != nil {
		t.Fatalf("health SendTo: %v", err)
	}
	h := recvInbound(t, a.Inbound(wire.ChannelHealth), 5*time.Second)
	if h.Channel != wire.ChannelHealth {
		t.Errorf("inbound Channel = %v, want health", h.Channel)
	}
	select {
	case in := <-a.Inbound(wire.ChannelTasks):
		t.Errorf("tasks channel received stray frame %q", in.Data)
	default:
	}
}

func TestTransport_SendReceive_Plaintext(t *testing.T) {
	plain := func(cfg *Config) { cfg.PlaintextChannels = true }
	a := newTestTransport(t, identity.NodeTypeCoordinator, plain)
	b := newTestTransport(t, identity.NodeTypeExecutor, plain)
	startTransport(t, a)
	startTransport(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := b.Connect(ctx, transportAddrInfo(t, a)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	payload := []byte("state sync frame")
	if err := b.SendTo(ctx, a.cfg.Identity.NodeID(), wire.ChannelState, payload); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	in := recvInbound(t, a.Inbound(wire.ChannelState), 5*time.Second)
	if !bytes.Equal(in.Data, payload) {
		t.Errorf("inbound Data = %q, want %q", in.Data, payload)
	}
}

func TestTransport_SendErrors(t *testing.T) {
	a := newTestTransport(t, identity.NodeTypeCoordinator, nil)
	startTransport(t, a)
	ctx := context.Background()

	if err := a.SendTo(ctx, "unknown-node", wire.ChannelTasks, []byte("x")); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("SendTo unknown peer = %v, want ErrUnknownPeer", err)
	}
	if err := a.SendTo(ctx, "unknown-node", wire.Channel(9), []byte("x")); err == nil {
		t.Error("SendTo accepted an invalid channel")
	}

	huge := make([]byte, wire.MaxMessageSize+1)
	if err := a.SendTo(ctx, "unknown-node", wire.ChannelTasks, huge); !errors.Is(err, wire.ErrTooLarge) {
		t.Errorf("SendTo oversized = %v, want wire.ErrTooLarge", err)
	}
}

func TestTransport_SessionCallbacks(t *testing.T) {
	a := newTestTransport(t, identity.NodeTypeCoordinator, nil)
	b := newTestTransport(t, identity.NodeTypeExecutor, nil)

	aUp := make(chan *Session, 1)
	bUp := make(chan *Session, 1)
	a.OnSessionUp(func(s *Session) { aUp <- s })
	b.OnSessionUp(func(s *Session) { bUp <- s })

	startTransport(t, a)
	startTransport(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := b.Connect(ctx, transportAddrInfo(t, a)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case s := <-bUp:
		if s.NodeID != a.cfg.Identity.NodeID() {
			t.Errorf("initiator callback NodeID = %q, want %q", s.NodeID, a.cfg.Identity.NodeID())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("initiator session callback never fired")
	}
	select {
	case s := <-aUp:
		if s.NodeID != b.cfg.Identity.NodeID() {
			t.Errorf("responder callback NodeID = %q, want %q", s.NodeID, b.cfg.Identity.NodeID())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("responder session callback never fired")
	}
}

func TestTransport_Disconnect(t *testing.T) {
	a := newTestTransport(t, identity.NodeTypeCoordinator, nil)
	b := newTestTransport(t, identity.NodeTypeExecutor, nil)

	aDown := make(chan *Session, 1)
	a.OnSessionDown(func(s *Session) { aDown <- s })

	startTransport(t, a)
	startTransport(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sess, err := b.Connect(ctx, transportAddrInfo(t, a))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	aID := a.cfg.Identity.NodeID()
	bID := b.cfg.Identity.NodeID()
	waitFor(t, 5*time.Second, "session on the accepting side", func() bool {
		_, ok := a.Session(bID)
		return ok
	})

	if err := b.Disconnect(aID); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	if _, ok := b.Session(aID); ok {
		t.Error("initiator still has a session after Disconnect")
	}
	select {
	case <-sess.Done():
	default:
		t.Error("session Done channel still open after Disconnect")
	}

	waitFor(t, 5*time.Second, "session teardown on the accepting side", func() bool {
		_, ok := a.Session(bID)
		return !ok
	})
	select {
	case s := <-aDown:
		if s.NodeID != bID {
			t.Errorf("down callback NodeID = %q, want %q", s.NodeID, bID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session down callback never fired")
	}

	if err := b.Disconnect(aID); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("second Disconnect = %v, want ErrUnknownPeer", err)
	}
}

func TestTransport_Bootstrap(t *testing.T) {
	a := newTestTransport(t, identity.NodeTypeCoordinator, nil)
	startTransport(t, a)

	b := newTestTransport(t, identity.NodeTypeExecutor, func(cfg *Config) {
		cfg.BootstrapPeers = []peer.AddrInfo{transportAddrInfo(t, a)}
	})
	startTransport(t, b)

	aID := a.cfg.Identity.NodeID()
	bID := b.cfg.Identity.NodeID()

	waitFor(t, 10*time.Second, "bootstrap session on the dialer", func() bool {
		_, ok := b.Session(aID)
		return ok
	})
	waitFor(t, 10*time.Second, "bootstrap session on the listener", func() bool {
		_, ok := a.Session(bID)
		return ok
	})
}

func TestTransport_StrictPeers(t *testing.T) {
	b := newTestTransport(t, identity.NodeTypeExecutor, nil)
	startTransport(t, b)

	a := newTestTransport(t, identity.NodeTypeCoordinator, func(cfg *Config) {
		cfg.StrictPeers = true
		cfg.AuthorizedPeers = []peer.ID{b.PeerID()}
	})
	startTransport(t, a)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := b.Connect(ctx, transportAddrInfo(t, a)); err != nil {
		t.Fatalf("authorized Connect: %v", err)
	}

	stranger := newTestTransport(t, identity.NodeTypeDevelopment, nil)
	startTransport(t, stranger)

	strangerCtx, strangerCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer strangerCancel()
	if _, err := stranger.Connect(strangerCtx, transportAddrInfo(t, a)); err == nil {
		t.Fatal("strict transport accepted an unauthorized peer")
	}
}

func TestTransport_BlacklistViaAddressBook(t *testing.T) {
	book, err := addressbook.New(filepath.Join(t.TempDir(), "peers.json"))
	if err != nil {
		t.Fatalf("addressbook.New: %v", err)
	}
	t.Cleanup(func() { _ = book.Close() })

	a := newTestTransport(t, identity.NodeTypeCoordinator, func(cfg *Config) {
		cfg.AddressBook = book
	})
	b := newTestTransport(t, identity.NodeTypeExecutor, nil)
	startTransport(t, a)
	startTransport(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := b.Connect(ctx, transportAddrInfo(t, a)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	aID := a.cfg.Identity.NodeID()
	bID := b.cfg.Identity.NodeID()

	// The hello must have landed in the address book.
	waitFor(t, 5*time.Second, "address book entry", func() bool {
		return book.Has(bID)
	})
	entry, err := book.Get(bID)
	if err != nil {
		t.Fatalf("book.Get: %v", err)
	}
	if entry.Role != "executor" {
		t.Errorf("book entry Role = %q, want %q", entry.Role, "executor")
	}

	if err := book.Blacklist(bID); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}
	if err := a.Disconnect(bID); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	waitFor(t, 5*time.Second, "session teardown on the initiator", func() bool {
		_, ok := b.Session(aID)
		return !ok
	})

	redialCtx, redialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer redialCancel()
	if _, err := b.Connect(redialCtx, transportAddrInfo(t, a)); err == nil {
		t.Fatal("blacklisted peer reconnected")
	}
}

func TestTransport_RateLimit(t *testing.T) {
	a := newTestTransport(t, identity.NodeTypeCoordinator, func(cfg *Config) {
		cfg.PlaintextChannels = true
		cfg.RateLimit = 5
		cfg.RateBurst = 5
	})
	b := newTestTransport(t, identity.NodeTypeExecutor, func(cfg *Config) {
		cfg.PlaintextChannels = true
	})
	startTransport(t, a)
	startTransport(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := b.Connect(ctx, transportAddrInfo(t, a)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	aID := a.cfg.Identity.NodeID()
	const sent = 30
	for i := 0; i < sent; i++ {
		if err := b.SendTo(ctx, aID, wire.ChannelTasks, []byte("burst")); err != nil {
			t.Fatalf("SendTo %d: %v", i, err)
		}
	}

	received := 0
	deadline := time.After(500 * time.Millisecond)
drain:
	for {
		select {
		case <-a.Inbound(wire.ChannelTasks):
			received++
		case <-deadline:
			break drain
		}
	}

	if received == 0 {
		t.Fatal("rate limiter rejected the entire burst")
	}
	if received >= sent {
		t.Fatalf("received %d of %d frames, want the limiter to reject some", received, sent)
	}
	if got := a.Stats().RateRejected; got == 0 {
		t.Error("Stats().RateRejected = 0, want > 0")
	}
}

func TestTransport_Stats(t *testing.T) {
	a := newTestTransport(t, identity.NodeTypeCoordinator, nil)
	b := newTestTransport(t, identity.NodeTypeExecutor, nil)
	startTransport(t, a)
	startTransport(t, b)

	if got := a.Stats().Sessions; got != 0 {
		t.Errorf("Sessions = %d before connect, want 0", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := b.Connect(ctx, transportAddrInfo(t, a)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitFor(t, 5*time.Second, "session count", func() bool {
		return a.Stats().Sessions == 1 && b.Stats().Sessions == 1
	})
}
