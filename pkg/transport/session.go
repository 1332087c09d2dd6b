package transport

import (
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/permissionlessweb/ergors/pkg/crypto"
	"github.com/permissionlessweb/ergors/pkg/identity"
)

// Session is one verified peer link: a connection whose hello exchange
// completed. Channel streams exist only inside a session.
type Session struct {
	NodeID       string
	PeerID       peer.ID
	Role         identity.NodeType
	PublicKey    *identity.PublicKey
	Capabilities []string
	Established  time.Time

	// cipher encrypts channel frames for this peer. Nil when the
	// transport runs with plaintext channels.
	cipher *crypto.Cipher

	done      chan struct{}
	closeOnce sync.Once
}

// Done returns a channel closed when the session ends, either because
// the peer disconnected or the transport shut down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether the session has ended.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// sessionRegistry indexes live sessions by node id and by libp2p peer
// id. Registration is idempotent per peer: a second hello from an
// already registered peer returns the existing session.
type sessionRegistry struct {
	mu     sync.RWMutex
	byNode map[string]*Session
	byPeer map[peer.ID]*Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{
		byNode: make(map[string]*Session),
		byPeer: make(map[peer.ID]*Session),
	}
}

// add registers s unless the peer already has a session. It returns
// the session that is now registered and whether s was the one added.
func (r *sessionRegistry) add(s *Session) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byPeer[s.PeerID]; ok {
		return existing, false
	}
	r.byNode[s.NodeID] = s
	r.byPeer[s.PeerID] = s
	return s, true
}

func (r *sessionRegistry) byNodeID(nodeID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byNode[nodeID]
	return s, ok
}

func (r *sessionRegistry) byPeerID(p peer.ID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byPeer[p]
	return s, ok
}

// removeByPeer unregisters and returns the peer's session, or nil when
// none is registered. The caller closes the returned session.
func (r *sessionRegistry) removeByPeer(p peer.ID) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byPeer[p]
	if !ok {
		return nil
	}
	delete(r.byPeer, p)
	delete(r.byNode, s.NodeID)
	return s
}

func (r *sessionRegistry) list() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byNode))
	for _, s := range r.byNode {
		out = append(out, s)
	}
	return out
}

func (r *sessionRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byNode)
}

// clear unregisters and returns every session. The caller closes them.
func (r *sessionRegistry) clear() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.byNode))
	for _, s := range r.byNode {
		out = append(out, s)
	}
	r.byNode = make(map[string]*Session)
	r.byPeer = make(map[peer.ID]*Session)
	return out
}
