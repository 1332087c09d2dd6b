package addressbook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

const (
	// flushInterval is how often batched changes are written to disk.
	flushInterval = 5 * time.Second
)

// Book is the persisted peer store. All operations are safe for
// concurrent use. Critical changes (record, remove, blacklist) are saved
// immediately; LastSeen updates are batched and flushed every
// flushInterval, so the book must be closed with Close to persist them.
type Book struct {
	file    *bookFile
	entries map[string]*Entry

	// byPeer maps libp2p peer ids back to node ids for gater lookups.
	byPeer map[peer.ID]string

	mu sync.RWMutex

	// dirty indicates unsaved batched changes.
	dirty bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New opens the address book at path, loading existing entries if the
// file is present. A corrupted file is moved aside to a .bak and the
// book starts empty.
func New(path string) (*Book, error) {
	f := newBookFile(path)

	data, err := f.load()
	if err != nil {
		return nil, fmt.Errorf("failed to load address book: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Book{
		file:    f,
		entries: data.Entries,
		byPeer:  make(map[peer.ID]string),
		ctx:     ctx,
		cancel:  cancel,
	}
	b.rebuildIndexLocked()

	go b.flushLoop()

	return b, nil
}

// rebuildIndexLocked recomputes the peer-id index from the entries map.
// Must be called with the write lock held (or before the book is shared).
func (b *Book) rebuildIndexLocked() {
	b.byPeer = make(map[peer.ID]string, len(b.entries))
	for nodeID, e := range b.entries {
		if e.PeerID != "" {
			b.byPeer[e.PeerID] = nodeID
		}
	}
}

// Record stores everything learned from one verified hello: the peer's
// libp2p id, role, public key, and current dialable addresses. Existing
// entries are updated in place; CreatedAt is preserved. Returns an error
// if the peer is blacklisted.
func (b *Book) Record(nodeID string, peerID peer.ID, role string, pubKey []byte, addrs []multiaddr.Multiaddr) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()

	addrsCopy := make([]multiaddr.Multiaddr, len(addrs))
	copy(addrsCopy, addrs)

	keyCopy := make([]byte, len(pubKey))
	copy(keyCopy, pubKey)

	if existing, ok := b.entries[nodeID]; ok {
		if existing.Blacklisted {
			return fmt.Errorf("cannot update blacklisted node %s", nodeID)
		}
		if existing.PeerID != "" && existing.PeerID != peerID {
			delete(b.byPeer, existing.PeerID)
		}
		existing.PeerID = peerID
		existing.Role = role
		existing.PublicKey = keyCopy
		existing.Multiaddrs = addrsCopy
		existing.LastSeen = now
		existing.UpdatedAt = now
	} else {
		b.entries[nodeID] = &Entry{
			NodeID:     nodeID,
			PeerID:     peerID,
			Role:       role,
			PublicKey:  keyCopy,
			Multiaddrs: addrsCopy,
			LastSeen:   now,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	if peerID != "" {
		b.byPeer[peerID] = nodeID
	}

	return b.saveLocked()
}

// Remove deletes a node's entry. Returns an error if it doesn't exist.
func (b *Book) Remove(nodeID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[nodeID]
	if !ok {
		return fmt.Errorf("node %s not found", nodeID)
	}

	if entry.PeerID != "" {
		delete(b.byPeer, entry.PeerID)
	}
	delete(b.entries, nodeID)
	return b.saveLocked()
}

// Get retrieves an entry by node id. Returns a copy so callers cannot
// mutate the stored entry.
func (b *Book) Get(nodeID string) (*Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.entries[nodeID]
	if !ok {
		return nil, fmt.Errorf("node %s not found", nodeID)
	}
	return entry.Clone(), nil
}

// ByPeerID retrieves an entry by libp2p peer id.
func (b *Book) ByPeerID(peerID peer.ID) (*Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	nodeID, ok := b.byPeer[peerID]
	if !ok {
		return nil, fmt.Errorf("peer %s not found", peerID)
	}
	return b.entries[nodeID].Clone(), nil
}

// ByRole returns all non-blacklisted entries with the given role.
func (b *Book) ByRole(role string) []*Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []*Entry
	for _, entry := range b.entries {
		if entry.Role == role && !entry.Blacklisted {
			result = append(result, entry.Clone())
		}
	}
	return result
}

// List returns all non-blacklisted entries.
func (b *Book) List() []*Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]*Entry, 0, len(b.entries))
	for _, entry := range b.entries {
		if !entry.Blacklisted {
			result = append(result, entry.Clone())
		}
	}
	return result
}

// ListAll returns every entry including blacklisted ones.
func (b *Book) ListAll() []*Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]*Entry, 0, len(b.entries))
	for _, entry := range b.entries {
		result = append(result, entry.Clone())
	}
	return result
}

// Blacklist marks a node as refused. The gater consults this flag on
// every dial and accept.
func (b *Book) Blacklist(nodeID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[nodeID]
	if !ok {
		return fmt.Errorf("node %s not found", nodeID)
	}

	entry.Blacklisted = true
	entry.UpdatedAt = time.Now()
	return b.saveLocked()
}

// Unblacklist clears the blacklist flag.
func (b *Book) Unblacklist(nodeID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[nodeID]
	if !ok {
		return fmt.Errorf("node %s not found", nodeID)
	}

	entry.Blacklisted = false
	entry.UpdatedAt = time.Now()
	return b.saveLocked()
}

// IsBlacklisted reports whether a node is blacklisted. Unknown nodes are
// not blacklisted.
func (b *Book) IsBlacklisted(nodeID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.entries[nodeID]
	if !ok {
		return false
	}
	return entry.Blacklisted
}

// IsBlacklistedPeer reports whether the node behind a libp2p peer id is
// blacklisted. Unknown peers are not blacklisted.
func (b *Book) IsBlacklistedPeer(peerID peer.ID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	nodeID, ok := b.byPeer[peerID]
	if !ok {
		return false
	}
	return b.entries[nodeID].Blacklisted
}

// SetCapabilities replaces the capability strings from the node's last
// announce. Returns an error if the node doesn't exist.
func (b *Book) SetCapabilities(nodeID string, caps []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[nodeID]
	if !ok {
		return fmt.Errorf("node %s not found", nodeID)
	}

	entry.Capabilities = make([]string, len(caps))
	copy(entry.Capabilities, caps)
	entry.UpdatedAt = time.Now()
	return b.saveLocked()
}

// Touch updates LastSeen for a node. This is a batched operation:
// changes reach disk on the next periodic flush, not immediately.
func (b *Book) Touch(nodeID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[nodeID]
	if !ok {
		return fmt.Errorf("node %s not found", nodeID)
	}

	now := time.Now()
	entry.LastSeen = now
	entry.UpdatedAt = now
	b.dirty = true
	return nil
}

// Has reports whether a node has an entry.
func (b *Book) Has(nodeID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.entries[nodeID]
	return ok
}

// Count returns the total number of entries, blacklisted included.
func (b *Book) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// CountActive returns the number of non-blacklisted entries.
func (b *Book) CountActive() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, entry := range b.entries {
		if !entry.Blacklisted {
			count++
		}
	}
	return count
}

// Clear removes every entry.
func (b *Book) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = make(map[string]*Entry)
	b.byPeer = make(map[peer.ID]string)
	return b.saveLocked()
}

// saveLocked writes the book to disk. Must be called with the write lock
// held.
func (b *Book) saveLocked() error {
	data := &bookData{
		Version: currentVersion,
		Entries: b.entries,
	}
	if err := b.file.save(data); err != nil {
		return err
	}
	b.dirty = false
	return nil
}

// Reload re-reads the book from disk, discarding in-memory changes.
func (b *Book) Reload() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.file.load()
	if err != nil {
		return fmt.Errorf("failed to reload address book: %w", err)
	}

	b.entries = data.Entries
	b.rebuildIndexLocked()
	b.dirty = false
	return nil
}

// flushLoop periodically writes batched changes to disk.
func (b *Book) flushLoop() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			if b.dirty {
				// Errors here retry on the next tick.
				_ = b.saveLocked()
			}
			b.mu.Unlock()
		}
	}
}

// Flush writes any pending batched changes to disk immediately.
func (b *Book) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.dirty {
		return nil
	}
	return b.saveLocked()
}

// Close stops the background flush and persists pending changes. The
// book must not be used after Close.
func (b *Book) Close() error {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dirty {
		return b.saveLocked()
	}
	return nil
}
