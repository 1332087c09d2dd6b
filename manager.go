package ergors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/permissionlessweb/ergors/internal/correlate"
	"github.com/permissionlessweb/ergors/internal/eventdispatch"
	"github.com/permissionlessweb/ergors/pkg/addressbook"
	"github.com/permissionlessweb/ergors/pkg/identity"
	"github.com/permissionlessweb/ergors/pkg/topology"
	"github.com/permissionlessweb/ergors/pkg/transport"
	"github.com/permissionlessweb/ergors/pkg/wire"
)

// netTransport is the slice of the transport the manager drives.
type netTransport interface {
	OnSessionUp(fn func(*transport.Session))
	OnSessionDown(fn func(*transport.Session))
	Start(ctx context.Context) error
	Connect(ctx context.Context, pi peer.AddrInfo) (*transport.Session, error)
	SendTo(ctx context.Context, nodeID string, ch wire.Channel, data []byte) error
	Inbound(ch wire.Channel) <-chan transport.Inbound
	Disconnect(nodeID string) error
	PeerID() peer.ID
	LocalAddrs() []multiaddr.Multiaddr
	Stats() transport.Stats
	Close() error
}

// Ensure the real transport satisfies the manager's view of it.
var _ netTransport = (*transport.Transport)(nil)

// Manager runs the network layer for one cluster node: it owns the
// transport, tracks peers and the shared topology, moves messages over
// the four fixed channels, correlates requests with responses, and
// surfaces lifecycle events.
//
// Lifecycle: New, optional Subscribe, Start, Stop. A stopped manager
// never restarts; create a new one.
//
// All methods are safe for concurrent use.
type Manager struct {
	cfg      Config
	identity *identity.NodeIdentity
	log      Logger
	metrics  Metrics

	topo    *topology.Topology
	pending *correlate.Table
	events  *eventdispatch.Dispatcher[Event]
	traffic *statsTracker

	// newTransport builds the transport at Start. Swapped in tests.
	newTransport func(transport.Config) (netTransport, error)

	// now is the staleness clock. Swapped in tests.
	now func() time.Time

	mu         sync.RWMutex
	started    bool
	stopped    bool
	subscribed bool
	transport  netTransport
	book       *addressbook.Book
	peers      map[string]*peerState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Manager from the configuration. The configuration is
// copied, defaults are applied, and the result validated; the identity
// must carry a private key. The manager does not touch the network
// until Start.
func New(cfg *Config) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrConfig)
	}
	c := *cfg
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:      c,
		identity: c.Identity,
		log:      c.Logger,
		metrics:  c.Metrics,
		topo:     topology.New(),
		pending:  correlate.NewTable(),
		traffic:  newStatsTracker(),
		peers:    make(map[string]*peerState),
		now:      time.Now,
	}
	m.newTransport = func(tc transport.Config) (netTransport, error) {
		return transport.New(tc)
	}
	m.events = eventdispatch.New[Event](c.EventBufferSize, c.Metrics.EventDropped)

	// The local node is always part of its own topology.
	m.topo.AddNode(topology.NodeInfo{
		NodeID:   c.Identity.NodeID(),
		NodeType: c.Identity.NodeType,
		Online:   true,
		LastSeen: uint64(m.now().Unix()),
	})
	return m, nil
}

// Start brings up the transport, spawns the channel receivers and the
// maintenance loop, and announces this node. ctx bounds startup work
// such as bootstrap dialing; it does not control the manager lifetime.
// A second Start returns ErrAlreadyStarted; Start after Stop returns
// ErrStopped.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.start(ctx); err != nil {
		return err
	}

	// The hello exchange already introduces this node to everyone it
	// connects to; a failed startup announce only delays discovery.
	if !m.cfg.DisableDiscovery {
		if err := m.Announce(ctx); err != nil {
			m.log.Warn("startup announce failed", "error", err)
		}
	}
	return nil
}

func (m *Manager) start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	if m.started {
		return ErrAlreadyStarted
	}

	var book *addressbook.Book
	if m.cfg.AddressBookPath != "" {
		b, err := addressbook.New(m.cfg.AddressBookPath)
		if err != nil {
			return NewErrorWithCause(ErrCodeConfig, "open address book", err)
		}
		book = b
	}

	tr, err := m.newTransport(transport.Config{
		Identity:          m.identity,
		ListenAddrs:       m.cfg.ListenAddrs,
		BootstrapPeers:    m.cfg.BootstrapPeers,
		Capabilities:      m.cfg.Capabilities,
		AddressBook:       book,
		HelloTimeout:      m.cfg.HelloTimeout,
		ChannelBuffers:    m.cfg.ChannelBuffers,
		RateLimit:         m.cfg.RateLimit,
		RateBurst:         m.cfg.RateBurst,
		PlaintextChannels: m.cfg.PlaintextChannels,
	})
	if err != nil {
		if book != nil {
			_ = book.Close()
		}
		return NewErrorWithCause(ErrCodeTransport, "build transport", err)
	}

	tr.OnSessionUp(m.sessionUp)
	tr.OnSessionDown(m.sessionDown)

	if err := tr.Start(ctx); err != nil {
		_ = tr.Close()
		if book != nil {
			_ = book.Close()
		}
		return NewErrorWithCause(ErrCodeTransport, "start transport", err)
	}

	m.book = book
	m.transport = tr
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.started = true

	for _, ch := range wire.Channels() {
		m.wg.Add(1)
		go m.receiveLoop(m.ctx, ch, tr.Inbound(ch))
	}
	m.wg.Add(1)
	go m.maintenanceLoop(m.ctx)

	m.log.Info("manager started",
		"node", m.identity.DisplayID(),
		"role", m.identity.NodeType.String(),
		"peer_id", tr.PeerID().String())
	return nil
}

// Stop cancels the loops, waits for them, and releases the transport
// and address book. Stop is terminal: the manager rejects all further
// operations with ErrStopped. A second Stop returns nil; Stop before
// Start returns ErrNotInitialized.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrNotInitialized
	}
	m.stopped = true
	cancel := m.cancel
	tr := m.transport
	book := m.book
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.pending.Close()

	var errs []error
	if err := tr.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transport: %w", err))
	}
	if book != nil {
		if err := book.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close address book: %w", err))
		}
	}
	m.events.Close()

	m.log.Info("manager stopped", "node", m.identity.DisplayID())
	return errors.Join(errs...)
}

// requireRunning gates operations on the Running state.
func (m *Manager) requireRunning() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stopped {
		return ErrStopped
	}
	if !m.started {
		return ErrNotInitialized
	}
	return nil
}

// Subscribe claims the event stream. The stream has a single consumer:
// the first call returns the channel, every later call returns
// ErrAlreadySubscribed. The channel is closed when the manager stops.
func (m *Manager) Subscribe() (<-chan Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribed {
		return nil, ErrAlreadySubscribed
	}
	m.subscribed = true
	return m.events.Events(), nil
}

// SendToRole sends msg to every online peer playing the given role, on
// the channel derived from the message kind. It returns
// ErrNoPeersForRole when no online peer matches. Send failures to
// individual peers are joined; a partial failure does not stop the
// remaining sends.
func (m *Manager) SendToRole(ctx context.Context, role identity.NodeType, msg *wire.Message) error {
	if err := m.requireRunning(); err != nil {
		return err
	}
	if err := ValidateNodeType(role); err != nil {
		return err
	}
	ch, data, err := m.encode(msg)
	if err != nil {
		return err
	}

	targets := m.onlinePeersWithRole(role)
	if len(targets) == 0 {
		return fmt.Errorf("%w: %s", ErrNoPeersForRole, role)
	}

	var errs []error
	for _, nodeID := range targets {
		if err := m.sendRaw(ctx, nodeID, ch, data); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", shortID(nodeID), err))
		}
	}
	return errors.Join(errs...)
}

// Broadcast sends msg to every online peer on the channel derived from
// the message kind. Zero online peers is not an error.
func (m *Manager) Broadcast(ctx context.Context, msg *wire.Message) error {
	if err := m.requireRunning(); err != nil {
		return err
	}
	ch, data, err := m.encode(msg)
	if err != nil {
		return err
	}

	var errs []error
	for _, nodeID := range m.onlinePeers() {
		if err := m.sendRaw(ctx, nodeID, ch, data); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", shortID(nodeID), err))
		}
	}
	return errors.Join(errs...)
}

// SendTo sends msg to a single online peer on the channel derived from
// the message kind. It returns ErrPeerNotFound when the peer is unknown
// or offline.
func (m *Manager) SendTo(ctx context.Context, nodeID string, msg *wire.Message) error {
	if err := m.requireRunning(); err != nil {
		return err
	}
	ch, data, err := m.encode(msg)
	if err != nil {
		return err
	}

	m.mu.RLock()
	ps := m.peers[nodeID]
	online := ps != nil && ps.online
	m.mu.RUnlock()
	if !online {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, shortID(nodeID))
	}
	return m.sendRaw(ctx, nodeID, ch, data)
}

// Request sends a Request message to one peer and waits for the
// Response carrying the same request id, regardless of which channel
// it arrives on. An empty request id is filled with a fresh UUID.
// A non-positive timeout uses the configured RequestTimeout. Expiry
// returns ErrCollectorTimeout; context cancellation returns ctx.Err().
func (m *Manager) Request(ctx context.Context, nodeID string, msg *wire.Message, timeout time.Duration) (*wire.Response, error) {
	if err := m.requireRunning(); err != nil {
		return nil, err
	}
	if msg == nil || msg.Request == nil {
		return nil, NewError(ErrCodeSerialization, "message must carry a request payload")
	}
	if msg.Request.RequestID == "" {
		msg.Request.RequestID = uuid.NewString()
	}
	reqID := msg.Request.RequestID
	if timeout <= 0 {
		timeout = m.cfg.RequestTimeout
	}

	waiter, err := m.pending.Register(reqID)
	if err != nil {
		if errors.Is(err, correlate.ErrClosed) {
			return nil, ErrStopped
		}
		return nil, fmt.Errorf("register request %s: %w", reqID, err)
	}

	start := time.Now()
	m.metrics.RequestStarted()

	if err := m.SendTo(ctx, nodeID, msg); err != nil {
		m.pending.Drop(reqID)
		m.metrics.RequestCompleted("error", time.Since(start).Seconds())
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-waiter:
		if !ok {
			m.metrics.RequestCompleted("canceled", time.Since(start).Seconds())
			return nil, ErrStopped
		}
		m.metrics.RequestCompleted("success", time.Since(start).Seconds())
		return resp, nil

	case <-timer.C:
		m.pending.Drop(reqID)
		// The response may have won the race against Drop.
		select {
		case resp, ok := <-waiter:
			if ok && resp != nil {
				m.metrics.RequestCompleted("success", time.Since(start).Seconds())
				return resp, nil
			}
		default:
		}
		m.metrics.RequestCompleted("timeout", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: request %s after %s", ErrCollectorTimeout, reqID, timeout)

	case <-ctx.Done():
		m.pending.Drop(reqID)
		select {
		case resp, ok := <-waiter:
			if ok && resp != nil {
				m.metrics.RequestCompleted("success", time.Since(start).Seconds())
				return resp, nil
			}
		default:
		}
		m.metrics.RequestCompleted("canceled", time.Since(start).Seconds())
		return nil, ctx.Err()
	}
}

// Respond answers a previously received Request.
func (m *Manager) Respond(ctx context.Context, nodeID, requestID string, success bool, payload []byte) error {
	if requestID == "" {
		return NewError(ErrCodeSerialization, "response requires a request id")
	}
	return m.SendTo(ctx, nodeID, wire.NewResponseMessage(&wire.Response{
		RequestID: requestID,
		Success:   success,
		Payload:   payload,
	}))
}

// Announce broadcasts this node's NodeAnnounce: id, role, capabilities,
// and current load factor. Zero online peers is a no-op.
func (m *Manager) Announce(ctx context.Context) error {
	if err := m.requireRunning(); err != nil {
		return err
	}
	return m.Broadcast(ctx, wire.NewAnnounceMessage(&wire.NodeAnnounce{
		NodeID:       m.identity.NodeID(),
		Role:         int32(m.identity.NodeType),
		Capabilities: m.cfg.Capabilities,
		LoadFactor:   m.loadFactor(),
	}))
}

// Connect dials a peer multiaddress that includes a /p2p/ component and
// waits for its hello to complete.
func (m *Manager) Connect(ctx context.Context, addr multiaddr.Multiaddr) error {
	if err := m.requireRunning(); err != nil {
		return err
	}
	pi, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	m.mu.RLock()
	tr := m.transport
	m.mu.RUnlock()

	if _, err := tr.Connect(ctx, *pi); err != nil {
		return NewErrorWithCause(ErrCodeTransport, "connect "+pi.ID.String(), err)
	}
	return nil
}

// Disconnect closes the session with a known peer. The peer stays in
// the topology marked offline until staleness eviction removes it.
func (m *Manager) Disconnect(nodeID string) error {
	if err := m.requireRunning(); err != nil {
		return err
	}

	m.mu.RLock()
	known := m.peers[nodeID] != nil
	tr := m.transport
	m.mu.RUnlock()

	if !known {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, shortID(nodeID))
	}
	if err := tr.Disconnect(nodeID); err != nil && !errors.Is(err, transport.ErrUnknownPeer) {
		return NewErrorWithCause(ErrCodeTransport, "disconnect "+shortID(nodeID), err)
	}
	return nil
}

// encode resolves the channel for msg and marshals it once.
func (m *Manager) encode(msg *wire.Message) (wire.Channel, []byte, error) {
	if msg == nil {
		return 0, nil, fmt.Errorf("%w: nil message", ErrSerialization)
	}
	kind, err := msg.Kind()
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	ch, err := wire.ChannelFor(kind)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrChannel, err)
	}
	data, err := wire.Marshal(msg)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return ch, data, nil
}

// sendRaw hands encoded bytes to the transport and records counters.
func (m *Manager) sendRaw(ctx context.Context, nodeID string, ch wire.Channel, data []byte) error {
	m.mu.RLock()
	tr := m.transport
	m.mu.RUnlock()
	if tr == nil {
		return ErrNotInitialized
	}

	if err := tr.SendTo(ctx, nodeID, ch, data); err != nil {
		return err
	}
	m.traffic.recordSent(nodeID, ch, len(data))
	m.metrics.MessageSent(ch.String(), len(data))
	return nil
}

// onlinePeers returns the ids of all online peers in sorted order.
func (m *Manager) onlinePeers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.peers))
	for id, ps := range m.peers {
		if ps.online {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// onlinePeersWithRole returns the ids of online peers playing role, in
// sorted order.
func (m *Manager) onlinePeersWithRole(role identity.NodeType) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.peers))
	for id, ps := range m.peers {
		if ps.online && ps.role == role {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// loadFactor reports known peers over the peer bound as a two-decimal
// string, the form announces carry on the wire.
func (m *Manager) loadFactor() string {
	m.mu.RLock()
	n := len(m.peers)
	m.mu.RUnlock()
	if m.cfg.MaxPeers <= 0 {
		return "0.00"
	}
	return strconv.FormatFloat(float64(n)/float64(m.cfg.MaxPeers), 'f', 2, 64)
}

// sessionUp admits a verified peer: record it, add the topology node
// and edge, and emit PeerConnected. Sessions above MaxPeers are dropped.
func (m *Manager) sessionUp(s *transport.Session) {
	now := m.now()

	m.mu.Lock()
	if m.stopped || !m.started {
		m.mu.Unlock()
		return
	}
	_, known := m.peers[s.NodeID]
	if !known && m.cfg.MaxPeers > 0 && len(m.peers) >= m.cfg.MaxPeers {
		tr := m.transport
		m.mu.Unlock()
		m.log.Warn("peer limit reached, dropping session",
			"node", shortID(s.NodeID), "max_peers", m.cfg.MaxPeers)
		_ = tr.Disconnect(s.NodeID)
		m.emit(Event{
			Kind:      EventError,
			NodeID:    s.NodeID,
			Err:       NewPeerError(ErrCodeTransport, "peer limit reached", s.NodeID),
			Timestamp: now,
		})
		return
	}

	ps := m.peers[s.NodeID]
	if ps == nil {
		ps = &peerState{nodeID: s.NodeID}
		m.peers[s.NodeID] = ps
	}
	ps.role = s.Role
	ps.capabilities = append([]string(nil), s.Capabilities...)
	ps.online = true
	ps.connectedAt = s.Established
	ps.lastActivity = now

	m.topo.AddNode(topology.NodeInfo{
		NodeID:   s.NodeID,
		NodeType: s.Role,
		Online:   true,
		LastSeen: uint64(now.Unix()),
	})
	m.topo.AddConnection(m.identity.NodeID(), s.NodeID)
	m.mu.Unlock()

	m.metrics.PeerConnected(s.Role.String())
	m.emit(Event{Kind: EventPeerConnected, NodeID: s.NodeID, Role: s.Role, Timestamp: now})
	m.emit(Event{Kind: EventTopologyChanged, Timestamp: now})
	m.log.Info("peer connected", "node", shortID(s.NodeID), "role", s.Role.String())
}

// sessionDown marks a departed peer offline. The record survives until
// staleness eviction so a quick reconnect keeps its history.
func (m *Manager) sessionDown(s *transport.Session) {
	now := m.now()

	m.mu.Lock()
	ps, ok := m.peers[s.NodeID]
	if !ok || !ps.online {
		// Already evicted, or never admitted.
		m.mu.Unlock()
		return
	}
	ps.online = false
	role := ps.role
	if info, found := m.topo.Node(s.NodeID); found {
		info.Online = false
		m.topo.AddNode(info)
	}
	m.mu.Unlock()

	m.metrics.PeerDisconnected(role.String())
	m.emit(Event{
		Kind:      EventPeerDisconnected,
		NodeID:    s.NodeID,
		Role:      role,
		Reason:    ReasonConnectionClosed,
		Timestamp: now,
	})
	m.emit(Event{Kind: EventTopologyChanged, Timestamp: now})
	m.log.Info("peer disconnected", "node", shortID(s.NodeID), "role", role.String())
}

// receiveLoop drains one channel's inbound queue until shutdown.
func (m *Manager) receiveLoop(ctx context.Context, ch wire.Channel, in <-chan transport.Inbound) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case inb, ok := <-in:
			if !ok {
				return
			}
			m.handleInbound(inb)
		}
	}
}

// handleInbound decodes one frame, refreshes the sender's activity,
// routes discovery and correlation payloads, and surfaces the message
// as an event. Decode failures become Error events; the loop carries on.
func (m *Manager) handleInbound(inb transport.Inbound) {
	msg, err := wire.Unmarshal(inb.Data)
	if err != nil {
		m.metrics.MessageDropped("decode")
		m.emit(Event{
			Kind:      EventError,
			NodeID:    inb.NodeID,
			Err:       &Error{Code: ErrCodeSerialization, Message: "decode inbound message", NodeID: inb.NodeID, Channel: inb.Channel.String(), Cause: err},
			Timestamp: m.now(),
		})
		return
	}
	kind, _ := msg.Kind()

	m.touchPeer(inb.NodeID)
	m.traffic.recordReceived(inb.NodeID, inb.Channel, len(inb.Data))
	m.metrics.MessageReceived(inb.Channel.String(), len(inb.Data))

	switch kind {
	case wire.KindNodeAnnounce:
		m.handleAnnounce(inb.NodeID, msg.NodeAnnounce)
	case wire.KindTetrahedralPing:
		m.handlePing(msg.TetrahedralPing)
	case wire.KindResponse:
		if m.pending.Complete(msg.Response) {
			// Consumed by the waiting Request call.
			return
		}
	}

	m.emit(Event{Kind: EventMessageReceived, NodeID: inb.NodeID, Message: msg, Channel: inb.Channel, Timestamp: m.now()})
}

// touchPeer refreshes the staleness clock for a known peer.
func (m *Manager) touchPeer(nodeID string) {
	now := m.now()
	m.mu.Lock()
	if ps := m.peers[nodeID]; ps != nil {
		ps.lastActivity = now
	}
	m.mu.Unlock()
}

// handleAnnounce folds a peer's announce into the topology: the node
// entry is inserted or refreshed and the direct edge recorded.
// TopologyChanged is emitted only when something other than the
// last-seen timestamp changed.
func (m *Manager) handleAnnounce(from string, a *wire.NodeAnnounce) {
	if a == nil || a.NodeID == "" || a.NodeID == m.identity.NodeID() {
		return
	}
	role := identity.NodeType(a.Role)
	if !role.Valid() {
		m.metrics.MessageDropped("validate")
		m.emit(Event{
			Kind:      EventError,
			NodeID:    from,
			Err:       fmt.Errorf("%w: announce from %s carries role %d", ErrInvalidNodeType, shortID(from), a.Role),
			Timestamp: m.now(),
		})
		return
	}
	now := m.now()

	m.mu.Lock()
	old, knownNode := m.topo.Node(a.NodeID)
	changed := !knownNode || old.NodeType != role || !old.Online
	m.topo.AddNode(topology.NodeInfo{
		NodeID:   a.NodeID,
		NodeType: role,
		Online:   true,
		LastSeen: uint64(now.Unix()),
	})
	edgeAdded := false
	if a.NodeID == from {
		edgeAdded = m.topo.AddConnection(m.identity.NodeID(), from)
		if ps := m.peers[from]; ps != nil {
			ps.role = role
			ps.capabilities = append([]string(nil), a.Capabilities...)
			ps.loadFactor = a.LoadFactor
			ps.lastActivity = now
		}
	}
	m.mu.Unlock()

	if changed || edgeAdded {
		m.emit(Event{Kind: EventTopologyChanged, Timestamp: now})
	}
}

// handlePing merges the sender's topology view: unknown nodes and edges
// are adopted, local observations stay authoritative.
func (m *Manager) handlePing(p *wire.TetrahedralPing) {
	if p == nil || p.Topology == nil {
		return
	}
	nodes, conns := p.Topology.ToTopology()
	if m.topo.Merge(nodes, conns) {
		m.emit(Event{Kind: EventTopologyChanged, Timestamp: m.now()})
	}
}

// maintenanceLoop ticks until shutdown.
func (m *Manager) maintenanceLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runMaintenance()
		}
	}
}

// runMaintenance performs one maintenance pass: evict stale peers,
// refresh gauges, re-announce, and ping peers with the topology view.
func (m *Manager) runMaintenance() {
	m.metrics.MaintenanceTick()
	m.evictStalePeers()
	m.updateGauges()

	if !m.cfg.DisableDiscovery {
		if err := m.Announce(m.ctx); err != nil && !errors.Is(err, ErrStopped) {
			m.log.Warn("periodic announce failed", "error", err)
		}
	}
	m.pingPeers()
}

// evictStalePeers removes peers silent for longer than StaleAfter from
// the peer set and the topology, and emits their departure.
func (m *Manager) evictStalePeers() {
	now := m.now()
	cutoff := now.Add(-m.cfg.StaleAfter)

	type evicted struct {
		nodeID string
		role   identity.NodeType
		idle   time.Duration
	}

	m.mu.Lock()
	var gone []evicted
	for id, ps := range m.peers {
		if ps.lastActivity.Before(cutoff) {
			delete(m.peers, id)
			m.topo.RemoveNode(id)
			gone = append(gone, evicted{nodeID: id, role: ps.role, idle: now.Sub(ps.lastActivity)})
		}
	}
	tr := m.transport
	m.mu.Unlock()

	for _, ev := range gone {
		m.traffic.forgetPeer(ev.nodeID)
		// The peer is already deleted above, so the session-down
		// callback for this disconnect finds nothing and stays quiet.
		if tr != nil {
			_ = tr.Disconnect(ev.nodeID)
		}
		m.metrics.PeerEvicted()
		m.emit(Event{
			Kind:      EventPeerDisconnected,
			NodeID:    ev.nodeID,
			Role:      ev.role,
			Reason:    ReasonTimeout,
			Timestamp: now,
		})
		m.log.Info("peer evicted", "node", shortID(ev.nodeID), "idle", ev.idle.String())
	}
	if len(gone) > 0 {
		m.emit(Event{Kind: EventTopologyChanged, Timestamp: now})
	}
}

// updateGauges publishes the current peer counts.
func (m *Manager) updateGauges() {
	m.mu.RLock()
	total := len(m.peers)
	online := 0
	for _, ps := range m.peers {
		if ps.online {
			online++
		}
	}
	m.mu.RUnlock()

	m.metrics.SetPeers(total)
	m.metrics.SetOnlinePeers(online)
}

// pingPeers broadcasts a TetrahedralPing. With discovery enabled the
// ping carries this node's topology view so receivers can repair gaps;
// with discovery disabled it is a bare liveness probe.
func (m *Manager) pingPeers() {
	ping := &wire.TetrahedralPing{
		FromNode:  m.identity.NodeID(),
		Timestamp: uint64(m.now().Unix()),
	}
	if !m.cfg.DisableDiscovery {
		ping.Topology = wire.SnapshotFromTopology(m.topo)
	}
	if err := m.Broadcast(m.ctx, wire.NewPingMessage(ping)); err != nil && !errors.Is(err, ErrStopped) {
		m.log.Warn("ping broadcast failed", "error", err)
	}
}

// emit hands an event to the dispatcher and counts the outcome.
func (m *Manager) emit(e Event) {
	if m.events.Emit(e) {
		m.metrics.EventEmitted(e.Kind.String())
	}
}

// NodeID returns this node's identifier.
func (m *Manager) NodeID() string {
	return m.identity.NodeID()
}

// Identity returns this node's identity.
func (m *Manager) Identity() *identity.NodeIdentity {
	return m.identity
}

// Topology returns a deep copy of the current cluster view.
func (m *Manager) Topology() *topology.Topology {
	return m.topo.Snapshot()
}

// TopologyStats returns a point-in-time topology summary.
func (m *Manager) TopologyStats() topology.Stats {
	return m.topo.Stats()
}

// IsComplete reports whether the cluster is a complete tetrahedron.
func (m *Manager) IsComplete() bool {
	return m.topo.IsCompleteTetrahedron()
}

// Peers returns a snapshot of all known peers sorted by node id.
func (m *Manager) Peers() []PeerInfo {
	m.mu.RLock()
	out := make([]PeerInfo, 0, len(m.peers))
	for _, ps := range m.peers {
		out = append(out, ps.info())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// Peer returns a snapshot of one known peer.
func (m *Manager) Peer(nodeID string) (PeerInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ps, ok := m.peers[nodeID]
	if !ok {
		return PeerInfo{}, false
	}
	return ps.info(), true
}

// PeerID returns the libp2p peer id, or the zero value before Start.
func (m *Manager) PeerID() peer.ID {
	m.mu.RLock()
	tr := m.transport
	m.mu.RUnlock()
	if tr == nil {
		return ""
	}
	return tr.PeerID()
}

// ListenAddrs returns the dialable listen addresses including the
// /p2p/ component, or nil before Start.
func (m *Manager) ListenAddrs() []multiaddr.Multiaddr {
	m.mu.RLock()
	tr := m.transport
	m.mu.RUnlock()
	if tr == nil {
		return nil
	}
	return tr.LocalAddrs()
}

// IsRunning reports whether the manager is started and not stopped.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started && !m.stopped
}

// Version returns the protocol version this manager speaks.
func (m *Manager) Version() ProtocolVersion {
	return CurrentVersion()
}

// PendingRequests returns the number of requests awaiting a response.
func (m *Manager) PendingRequests() int {
	return m.pending.Len()
}

// EventsDropped returns the number of events lost to a full buffer.
func (m *Manager) EventsDropped() uint64 {
	return m.events.Dropped()
}

// Stats assembles a point-in-time snapshot of traffic, topology, and
// queue counters.
func (m *Manager) Stats() NetworkStats {
	m.mu.RLock()
	running := m.started && !m.stopped
	tr := m.transport
	m.mu.RUnlock()

	st := NetworkStats{
		NodeID:          m.identity.NodeID(),
		Role:            m.identity.NodeType,
		Running:         running,
		Channels:        m.traffic.snapshotChannels(),
		Peers:           m.traffic.snapshotPeers(),
		Topology:        m.topo.Stats(),
		PendingRequests: m.pending.Len(),
		EventsDropped:   m.events.Dropped(),
	}
	if tr != nil {
		ts := tr.Stats()
		st.InboundDropped = ts.Dropped
		st.RateRejected = ts.RateRejected
	}
	return st
}

// shortID abbreviates a node id for logs.
func shortID(nodeID string) string {
	if len(nodeID) <= 8 {
		return nodeID
	}
	return nodeID[:8]
}
