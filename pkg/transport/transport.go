package transport

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/permissionlessweb/ergors/internal/ratelimit"
	"github.com/permissionlessweb/ergors/pkg/addressbook"
	"github.com/permissionlessweb/ergors/pkg/crypto"
	"github.com/permissionlessweb/ergors/pkg/identity"
	"github.com/permissionlessweb/ergors/pkg/wire"
)

// DefaultChannelBuffer is the inbound queue length per channel.
const DefaultChannelBuffer = 256

// Lifecycle and addressing errors.
var (
	// ErrNotStarted indicates an operation that needs a started
	// transport.
	ErrNotStarted = errors.New("transport: not started")

	// ErrAlreadyStarted indicates a second Start call.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrClosed indicates the transport has shut down.
	ErrClosed = errors.New("transport: closed")

	// ErrUnknownPeer indicates no session exists for the addressed
	// node.
	ErrUnknownPeer = errors.New("transport: no session for peer")
)

// Config configures a Transport.
type Config struct {
	// Identity is the local node identity. It must carry a private
	// key; the libp2p host identity is derived from it.
	Identity *identity.NodeIdentity

	// ListenAddrs are the multiaddresses the host listens on. When
	// empty, the identity's host and p2p port form a tcp listen
	// address.
	ListenAddrs []multiaddr.Multiaddr

	// BootstrapPeers are dialed at startup and redialed with backoff
	// whenever their session drops.
	BootstrapPeers []peer.AddrInfo

	// Capabilities are announced in the hello exchange.
	Capabilities []string

	// AddressBook, when set, persists verified peers, supplies known
	// peers for startup dialing, and backs the gater's blacklist.
	// The transport does not close it.
	AddressBook *addressbook.Book

	// HelloTimeout bounds the hello exchange on new connections.
	HelloTimeout time.Duration

	// ChannelBuffer is the inbound queue length per channel. Frames
	// arriving on a full queue are counted and dropped.
	ChannelBuffer int

	// ChannelBuffers overrides ChannelBuffer per channel. Zero entries
	// keep the uniform value.
	ChannelBuffers [wire.NumChannels]int

	// RateLimit is the sustained inbound message rate admitted per
	// peer across all channels, in messages per second. RateBurst is
	// the burst allowance. Zero values use the limiter defaults.
	RateLimit int
	RateBurst int

	// MaxDialAttempts bounds consecutive failed dials per configured
	// peer. Zero retries forever.
	MaxDialAttempts int

	// DialBackoffBase and DialBackoffMax shape the redial backoff.
	DialBackoffBase time.Duration
	DialBackoffMax  time.Duration

	// ConnMgrLowWater and ConnMgrHighWater override the connection
	// manager watermarks.
	ConnMgrLowWater  int
	ConnMgrHighWater int

	// StrictPeers admits only authorized peers at the connection
	// level. The local node, bootstrap peers, and verified peers are
	// authorized automatically; others must be added via Authorize.
	StrictPeers bool

	// AuthorizedPeers pre-populates the authorization registry.
	AuthorizedPeers []peer.ID

	// PlaintextChannels disables channel encryption. Frames still
	// travel over libp2p's authenticated transport security. Meant
	// for tests and debugging.
	PlaintextChannels bool
}

func applyDefaults(cfg *Config) {
	if cfg.HelloTimeout <= 0 {
		cfg.HelloTimeout = DefaultHelloTimeout
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = DefaultChannelBuffer
	}
	if cfg.DialBackoffBase <= 0 {
		cfg.DialBackoffBase = DefaultDialBackoffBase
	}
	if cfg.DialBackoffMax <= 0 {
		cfg.DialBackoffMax = DefaultDialBackoffMax
	}
	hostDefaults := DefaultHostConfig()
	if cfg.ConnMgrLowWater <= 0 {
		cfg.ConnMgrLowWater = hostDefaults.ConnMgrLowWater
	}
	if cfg.ConnMgrHighWater <= 0 {
		cfg.ConnMgrHighWater = hostDefaults.ConnMgrHighWater
	}
}

// ListenAddrFor derives the default tcp listen multiaddress from an
// identity's host and p2p port.
func ListenAddrFor(id *identity.NodeIdentity) (multiaddr.Multiaddr, error) {
	ip := net.ParseIP(id.Host)
	var s string
	switch {
	case ip == nil:
		s = fmt.Sprintf("/dns4/%s/tcp/%d", id.Host, id.P2PPort)
	case ip.To4() != nil:
		s = fmt.Sprintf("/ip4/%s/tcp/%d", ip, id.P2PPort)
	default:
		s = fmt.Sprintf("/ip6/%s/tcp/%d", ip, id.P2PPort)
	}
	ma, err := multiaddr.NewMultiaddr(s)
	if err != nil {
		return nil, fmt.Errorf("transport: listen address for %q: %w", id.Host, err)
	}
	return ma, nil
}

// Stats is a point-in-time snapshot of transport counters.
type Stats struct {
	// Sessions is the number of live verified sessions.
	Sessions int

	// Dropped counts inbound frames discarded per channel because the
	// channel queue was full.
	Dropped [wire.NumChannels]uint64

	// RateRejected counts inbound frames discarded by the per-peer
	// rate limiter.
	RateRejected uint64
}

// Transport runs the wire layer for one node: it owns the libp2p host,
// verifies peers through the hello exchange, moves sealed frames over
// the four fixed channels, and redials configured peers when their
// sessions drop.
//
// Lifecycle: New, optional OnSessionUp/OnSessionDown, Start, Close.
// Close is terminal.
type Transport struct {
	cfg  Config
	self *identity.NodeIdentity

	keyring  *crypto.Keyring
	limiter  *ratelimit.Limiter
	book     *addressbook.Book
	gater    *Gater
	host     *Host
	sessions *sessionRegistry

	inbound [wire.NumChannels]chan Inbound

	streamsMu sync.Mutex
	streams   map[peer.ID]*[wire.NumChannels]*channelStream

	dropped  [wire.NumChannels]atomic.Uint64
	rejected atomic.Uint64

	cbMu   sync.RWMutex
	onUp   func(*Session)
	onDown func(*Session)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// New creates a transport from cfg. The libp2p host is not built until
// Start.
func New(cfg Config) (*Transport, error) {
	if cfg.Identity == nil {
		return nil, errors.New("transport: config requires an identity")
	}
	priv, err := cfg.Identity.PrivateKey()
	if err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	keyring, err := crypto.NewKeyring(priv.Raw(), wire.Namespace)
	if err != nil {
		return nil, fmt.Errorf("transport: derive session keys: %w", err)
	}

	t := &Transport{
		cfg:      cfg,
		self:     cfg.Identity,
		keyring:  keyring,
		limiter:  ratelimit.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		book:     cfg.AddressBook,
		sessions: newSessionRegistry(),
		streams:  make(map[peer.ID]*[wire.NumChannels]*channelStream),
	}
	for i := range t.inbound {
		size := cfg.ChannelBuffers[i]
		if size <= 0 {
			size = cfg.ChannelBuffer
		}
		t.inbound[i] = make(chan Inbound, size)
	}
	return t, nil
}

// OnSessionUp registers a callback invoked whenever a hello exchange
// completes and a session is registered. The callback must not block;
// it runs on stream handler goroutines. Set before Start.
func (t *Transport) OnSessionUp(fn func(*Session)) {
	t.cbMu.Lock()
	t.onUp = fn
	t.cbMu.Unlock()
}

// OnSessionDown registers a callback invoked whenever a session ends
// because its peer disconnected. It is not invoked for sessions torn
// down by Close. Set before Start.
func (t *Transport) OnSessionDown(fn func(*Session)) {
	t.cbMu.Lock()
	t.onDown = fn
	t.cbMu.Unlock()
}

func (t *Transport) sessionUp(s *Session) {
	t.cbMu.RLock()
	fn := t.onUp
	t.cbMu.RUnlock()
	if fn != nil {
		fn(s)
	}
}

func (t *Transport) sessionDown(s *Session) {
	t.cbMu.RLock()
	fn := t.onDown
	t.cbMu.RUnlock()
	if fn != nil {
		fn(s)
	}
}

// Start builds the libp2p host, registers the hello and channel
// handlers, and begins dialing configured peers. ctx bounds only the
// startup work; the transport's lifetime ends at Close.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.started {
		return ErrAlreadyStarted
	}

	priv, err := t.self.PrivateKey()
	if err != nil {
		return err
	}

	listen := t.cfg.ListenAddrs
	if len(listen) == 0 {
		addr, err := ListenAddrFor(t.self)
		if err != nil {
			return err
		}
		listen = []multiaddr.Multiaddr{addr}
	}

	var checker BlacklistChecker
	if t.book != nil {
		checker = t.book
	}
	gater := NewGater(checker)
	gater.SetStrict(t.cfg.StrictPeers)
	for _, p := range t.cfg.AuthorizedPeers {
		gater.Authorize(p)
	}
	for _, pi := range t.cfg.BootstrapPeers {
		gater.Authorize(pi.ID)
	}

	host, err := NewHost(ctx, HostConfig{
		PrivateKey:       priv.Raw(),
		ListenAddrs:      listen,
		Gater:            gater,
		ConnMgrLowWater:  t.cfg.ConnMgrLowWater,
		ConnMgrHighWater: t.cfg.ConnMgrHighWater,
	})
	if err != nil {
		return err
	}
	gater.Authorize(host.ID())

	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.gater = gater
	t.host = host

	host.SetStreamHandler(HelloProtocolID, t.handleHelloStream)
	for _, ch := range wire.Channels() {
		ch := ch
		host.SetStreamHandler(ChannelProtocolID(ch), func(s network.Stream) {
			t.handleChannelStream(ch, s)
		})
	}
	host.Network().Notify(&network.NotifyBundle{
		ConnectedF:    t.onConnected,
		DisconnectedF: t.onDisconnected,
	})

	for _, pi := range t.dialTargets() {
		t.wg.Add(1)
		go t.dialLoop(pi)
	}

	t.started = true
	return nil
}

// dialTargets merges the configured bootstrap peers with dialable
// address book entries, one target per peer.
func (t *Transport) dialTargets() []peer.AddrInfo {
	targets := make(map[peer.ID]*peer.AddrInfo)
	add := func(pi peer.AddrInfo) {
		if pi.ID == "" || len(pi.Addrs) == 0 {
			return
		}
		existing, ok := targets[pi.ID]
		if !ok {
			cp := pi
			targets[pi.ID] = &cp
			return
		}
		existing.Addrs = append(existing.Addrs, pi.Addrs...)
	}

	for _, pi := range t.cfg.BootstrapPeers {
		add(pi)
	}
	if t.book != nil {
		for _, e := range t.book.List() {
			add(peer.AddrInfo{ID: e.PeerID, Addrs: e.Multiaddrs})
		}
	}

	out := make([]peer.AddrInfo, 0, len(targets))
	for _, pi := range targets {
		out = append(out, *pi)
	}
	return out
}

func (t *Transport) running() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if !t.started {
		return ErrNotStarted
	}
	return nil
}

// Connect dials pi, runs the hello exchange, and returns the verified
// session. Connecting to an already connected peer returns the
// existing session.
func (t *Transport) Connect(ctx context.Context, pi peer.AddrInfo) (*Session, error) {
	if err := t.running(); err != nil {
		return nil, err
	}
	if sess, ok := t.sessions.byPeerID(pi.ID); ok {
		return sess, nil
	}

	if err := t.host.Connect(ctx, pi); err != nil {
		return nil, err
	}

	s, err := t.host.NewStream(ctx, pi.ID, HelloProtocolID)
	if err != nil {
		return nil, fmt.Errorf("transport: open hello stream to %s: %w", pi.ID, err)
	}

	local, err := NewHello(t.self, t.cfg.Capabilities)
	if err != nil {
		s.Reset()
		return nil, err
	}
	remote, err := exchangeHello(s, local, t.cfg.HelloTimeout, true)
	if err != nil {
		s.Reset()
		_ = t.host.Disconnect(pi.ID)
		return nil, err
	}
	observed := s.Conn().RemoteMultiaddr()
	_ = s.Close()

	return t.registerSession(remote, pi.ID, observed)
}

// handleHelloStream answers the hello exchange on an inbound stream.
// Verification failure drops the whole connection.
func (t *Transport) handleHelloStream(s network.Stream) {
	remotePeer := s.Conn().RemotePeer()

	local, err := NewHello(t.self, t.cfg.Capabilities)
	if err != nil {
		s.Reset()
		return
	}
	remote, err := exchangeHello(s, local, t.cfg.HelloTimeout, false)
	if err != nil {
		s.Reset()
		_ = t.host.Disconnect(remotePeer)
		return
	}
	observed := s.Conn().RemoteMultiaddr()
	_ = s.Close()

	if _, err := t.registerSession(remote, remotePeer, observed); err != nil {
		_ = t.host.Disconnect(remotePeer)
	}
}

// registerSession installs the session for a verified hello. A second
// hello from an already registered peer returns the existing session.
func (t *Transport) registerSession(h *Hello, pid peer.ID, observed multiaddr.Multiaddr) (*Session, error) {
	pub, err := identity.PublicKeyFromBytes(h.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHelloRejected, err)
	}

	var cipher *crypto.Cipher
	if !t.cfg.PlaintextChannels {
		cipher, err = t.keyring.SessionCipher(ed25519.PublicKey(h.PublicKey))
		if err != nil {
			return nil, fmt.Errorf("transport: derive session cipher: %w", err)
		}
	}

	sess := &Session{
		NodeID:       h.NodeID,
		PeerID:       pid,
		Role:         identity.NodeType(h.Role),
		PublicKey:    pub,
		Capabilities: append([]string(nil), h.Capabilities...),
		Established:  time.Now(),
		cipher:       cipher,
		done:         make(chan struct{}),
	}

	reg, added := t.sessions.add(sess)
	if !added {
		// Simultaneous hello exchanges for one peer; first wins.
		return reg, nil
	}

	t.gater.Authorize(pid)
	if t.book != nil {
		var addrs []multiaddr.Multiaddr
		if observed != nil {
			addrs = []multiaddr.Multiaddr{observed}
		}
		// Persistence is best effort; a full disk does not take the
		// session down.
		_ = t.book.Record(h.NodeID, pid, identity.NodeType(h.Role).String(), h.PublicKey, addrs)
		_ = t.book.SetCapabilities(h.NodeID, h.Capabilities)
	}

	t.sessionUp(reg)
	return reg, nil
}

// onConnected arms the hello watchdog: a connection that has not
// produced a session within twice the hello timeout is dropped.
func (t *Transport) onConnected(_ network.Network, c network.Conn) {
	pid := c.RemotePeer()
	time.AfterFunc(2*t.cfg.HelloTimeout, func() {
		if t.ctx.Err() != nil {
			return
		}
		if _, ok := t.sessions.byPeerID(pid); ok {
			return
		}
		if t.host.Network().Connectedness(pid) == network.Connected {
			_ = t.host.Disconnect(pid)
		}
	})
}

func (t *Transport) onDisconnected(_ network.Network, c network.Conn) {
	pid := c.RemotePeer()
	if t.host.Network().Connectedness(pid) == network.Connected {
		// Another connection to the peer remains.
		return
	}
	t.dropSession(pid)
}

// dropSession tears down the session state for a departed peer:
// channel streams, session key, rate limiter bucket, and the session
// itself.
func (t *Transport) dropSession(pid peer.ID) {
	t.closePeerStreams(pid)

	sess := t.sessions.removeByPeer(pid)
	if sess == nil {
		return
	}
	sess.close()
	if sess.PublicKey != nil {
		t.keyring.DropSession(ed25519.PublicKey(sess.PublicKey.Bytes()))
	}
	t.limiter.Forget(sess.NodeID)
	t.sessionDown(sess)
}

func (t *Transport) closePeerStreams(pid peer.ID) {
	t.streamsMu.Lock()
	arr := t.streams[pid]
	delete(t.streams, pid)
	t.streamsMu.Unlock()
	if arr == nil {
		return
	}
	for _, cs := range arr {
		if cs != nil {
			_ = cs.Close()
		}
	}
}

// SendTo delivers one frame to the addressed node on the given
// channel, opening the channel stream on first use.
func (t *Transport) SendTo(ctx context.Context, nodeID string, ch wire.Channel, data []byte) error {
	if err := t.running(); err != nil {
		return err
	}
	if !ch.Valid() {
		return fmt.Errorf("transport: invalid channel %d", ch)
	}
	if len(data) > wire.MaxMessageSize {
		return wire.ErrTooLarge
	}

	sess, ok := t.sessions.byNodeID(nodeID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, nodeID)
	}

	cs, err := t.channelStreamFor(ctx, sess, ch)
	if err != nil {
		return err
	}
	if err := cs.send(data); err != nil {
		// The stream died underneath us; forget it so the next send
		// opens a fresh one.
		t.forgetStream(sess.PeerID, ch, cs)
		return err
	}
	return nil
}

// channelStreamFor returns the live stream for (sess, ch), opening one
// when none exists. Opening races resolve to a single stream.
func (t *Transport) channelStreamFor(ctx context.Context, sess *Session, ch wire.Channel) (*channelStream, error) {
	t.streamsMu.Lock()
	if arr := t.streams[sess.PeerID]; arr != nil {
		if cs := arr[ch]; cs != nil && !cs.IsClosed() {
			t.streamsMu.Unlock()
			return cs, nil
		}
	}
	t.streamsMu.Unlock()

	s, err := t.host.NewStream(ctx, sess.PeerID, ChannelProtocolID(ch))
	if err != nil {
		return nil, fmt.Errorf("transport: open %s stream to %s: %w", ch, sess.NodeID, err)
	}

	t.streamsMu.Lock()
	defer t.streamsMu.Unlock()
	arr := t.streams[sess.PeerID]
	if arr == nil {
		arr = new([wire.NumChannels]*channelStream)
		t.streams[sess.PeerID] = arr
	}
	if existing := arr[ch]; existing != nil && !existing.IsClosed() {
		// Lost the open race; keep the winner.
		s.Reset()
		return existing, nil
	}
	cs := newChannelStream(t.ctx, ch, sess, s, t.deliverInbound)
	arr[ch] = cs
	return cs, nil
}

func (t *Transport) forgetStream(pid peer.ID, ch wire.Channel, cs *channelStream) {
	t.streamsMu.Lock()
	if arr := t.streams[pid]; arr != nil && arr[ch] == cs {
		arr[ch] = nil
	}
	t.streamsMu.Unlock()
	_ = cs.Close()
}

// handleChannelStream adopts an inbound channel stream. Streams are
// accepted only from peers with a live session. When both sides opened
// a stream for the same channel, the stream dialed by the lower peer
// id survives.
func (t *Transport) handleChannelStream(ch wire.Channel, s network.Stream) {
	pid := s.Conn().RemotePeer()
	sess, ok := t.sessions.byPeerID(pid)
	if !ok {
		// The hello initiator completes its exchange slightly before
		// this side registers the session, so an immediate stream open
		// can arrive first. Give registration a moment to land.
		deadline := time.Now().Add(500 * time.Millisecond)
		for !ok && time.Now().Before(deadline) {
			select {
			case <-t.ctx.Done():
				s.Reset()
				return
			case <-time.After(5 * time.Millisecond):
			}
			sess, ok = t.sessions.byPeerID(pid)
		}
		if !ok {
			// Channels exist only inside a session.
			s.Reset()
			return
		}
	}

	t.streamsMu.Lock()
	arr := t.streams[pid]
	if arr == nil {
		arr = new([wire.NumChannels]*channelStream)
		t.streams[pid] = arr
	}
	if existing := arr[ch]; existing != nil && !existing.IsClosed() {
		replace := existing.stream.Stat().Direction == network.DirInbound || pid < t.host.ID()
		if !replace {
			t.streamsMu.Unlock()
			s.Reset()
			return
		}
		arr[ch] = newChannelStream(t.ctx, ch, sess, s, t.deliverInbound)
		t.streamsMu.Unlock()
		_ = existing.Close()
		return
	}
	arr[ch] = newChannelStream(t.ctx, ch, sess, s, t.deliverInbound)
	t.streamsMu.Unlock()
}

// deliverInbound admits one received frame: rate limit, last-seen
// touch, then a non-blocking enqueue. Never blocks.
func (t *Transport) deliverInbound(in Inbound) {
	if !t.limiter.Allow(in.NodeID) {
		t.rejected.Add(1)
		return
	}
	if t.book != nil {
		t.book.Touch(in.NodeID)
	}
	select {
	case t.inbound[in.Channel] <- in:
	default:
		t.dropped[in.Channel].Add(1)
	}
}

// Inbound returns the receive queue for a channel. The queue is never
// closed; it stops producing after Close. Returns nil for an invalid
// channel.
func (t *Transport) Inbound(ch wire.Channel) <-chan Inbound {
	if !ch.Valid() {
		return nil
	}
	return t.inbound[ch]
}

// Session returns the live session for a node id.
func (t *Transport) Session(nodeID string) (*Session, bool) {
	return t.sessions.byNodeID(nodeID)
}

// Sessions returns a snapshot of all live sessions.
func (t *Transport) Sessions() []*Session {
	return t.sessions.list()
}

// Authorize admits a peer in strict mode.
func (t *Transport) Authorize(p peer.ID) error {
	if err := t.running(); err != nil {
		return err
	}
	t.gater.Authorize(p)
	return nil
}

// Deauthorize removes a peer from the authorization registry and
// drops its connection.
func (t *Transport) Deauthorize(p peer.ID) error {
	if err := t.running(); err != nil {
		return err
	}
	t.gater.Deauthorize(p)
	err := t.host.Disconnect(p)
	t.dropSession(p)
	return err
}

// Disconnect drops the session and connection for a node.
func (t *Transport) Disconnect(nodeID string) error {
	if err := t.running(); err != nil {
		return err
	}
	sess, ok := t.sessions.byNodeID(nodeID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, nodeID)
	}
	err := t.host.Disconnect(sess.PeerID)
	t.dropSession(sess.PeerID)
	return err
}

// PeerID returns the local libp2p peer id, or "" before Start.
func (t *Transport) PeerID() peer.ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.host == nil {
		return ""
	}
	return t.host.ID()
}

// LocalAddrs returns the dialable listen addresses, or nil before
// Start.
func (t *Transport) LocalAddrs() []multiaddr.Multiaddr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.host == nil {
		return nil
	}
	return t.host.FullAddrs()
}

// Stats returns a snapshot of transport counters.
func (t *Transport) Stats() Stats {
	var st Stats
	st.Sessions = t.sessions.len()
	for i := range t.dropped {
		st.Dropped[i] = t.dropped[i].Load()
	}
	st.RateRejected = t.rejected.Load()
	return st
}

// Close shuts the transport down: dial loops, channel streams,
// sessions, host, and key material, in that order. Close is terminal
// and idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	started := t.started
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()

	t.streamsMu.Lock()
	streams := t.streams
	t.streams = make(map[peer.ID]*[wire.NumChannels]*channelStream)
	t.streamsMu.Unlock()
	for _, arr := range streams {
		for _, cs := range arr {
			if cs != nil {
				_ = cs.Close()
			}
		}
	}

	for _, sess := range t.sessions.clear() {
		sess.close()
	}

	var err error
	if started && t.host != nil {
		err = t.host.Close()
	}
	t.keyring.Close()
	t.limiter.Close()
	return err
}
