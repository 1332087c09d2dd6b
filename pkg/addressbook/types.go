// Package addressbook persists the set of known cluster peers to disk.
// Entries are keyed by node id (the hex form of a node's Ed25519 public
// key) and record the addresses, role, and public key learned during the
// hello exchange. The transport consults the book when dialing known
// peers and the connection gater enforces its blacklist.
package addressbook

import (
	"encoding/json"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// Entry is one known peer.
type Entry struct {
	// NodeID is the hex-encoded Ed25519 public key identifying the node.
	NodeID string `json:"node_id"`

	// PeerID is the libp2p peer identifier derived from the node's key.
	// Empty until the first verified hello.
	PeerID peer.ID `json:"peer_id,omitempty"`

	// Multiaddrs are the dialable network addresses for this peer.
	Multiaddrs []multiaddr.Multiaddr `json:"-"`

	// RawMultiaddrs stores the string representation for JSON serialization.
	RawMultiaddrs []string `json:"multiaddrs"`

	// Role is the cluster role the peer announced ("coordinator",
	// "executor", "referee", "development").
	Role string `json:"role,omitempty"`

	// PublicKey is the raw Ed25519 public key, set after a verified hello.
	PublicKey []byte `json:"public_key,omitempty"`

	// Capabilities holds the capability strings from the peer's last
	// announce.
	Capabilities []string `json:"capabilities,omitempty"`

	// LastSeen is the timestamp of the last verified contact.
	LastSeen time.Time `json:"last_seen,omitempty"`

	// Blacklisted marks the peer as refused by the connection gater.
	Blacklisted bool `json:"blacklisted"`

	// CreatedAt is when this entry was first created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when this entry was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// MarshalJSON converts Multiaddrs to string form for serialization.
func (e *Entry) MarshalJSON() ([]byte, error) {
	rawAddrs := make([]string, len(e.Multiaddrs))
	for i, ma := range e.Multiaddrs {
		rawAddrs[i] = ma.String()
	}

	// Alias drops the method set to avoid infinite recursion.
	type alias Entry
	return json.Marshal(&struct {
		*alias
		RawMultiaddrs []string `json:"multiaddrs"`
	}{
		alias:         (*alias)(e),
		RawMultiaddrs: rawAddrs,
	})
}

// UnmarshalJSON converts string multiaddrs back to Multiaddr values.
// Invalid addresses are skipped rather than failing the whole entry.
func (e *Entry) UnmarshalJSON(data []byte) error {
	type alias Entry
	aux := &struct {
		*alias
		RawMultiaddrs []string `json:"multiaddrs"`
	}{
		alias: (*alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	e.Multiaddrs = make([]multiaddr.Multiaddr, 0, len(aux.RawMultiaddrs))
	for _, s := range aux.RawMultiaddrs {
		ma, err := multiaddr.NewMultiaddr(s)
		if err != nil {
			continue
		}
		e.Multiaddrs = append(e.Multiaddrs, ma)
	}
	e.RawMultiaddrs = aux.RawMultiaddrs

	return nil
}

// Clone creates a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}

	clone := &Entry{
		NodeID:      e.NodeID,
		PeerID:      e.PeerID,
		Role:        e.Role,
		Blacklisted: e.Blacklisted,
		LastSeen:    e.LastSeen,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}

	if len(e.Multiaddrs) > 0 {
		clone.Multiaddrs = make([]multiaddr.Multiaddr, len(e.Multiaddrs))
		copy(clone.Multiaddrs, e.Multiaddrs)
	}
	if len(e.RawMultiaddrs) > 0 {
		clone.RawMultiaddrs = make([]string, len(e.RawMultiaddrs))
		copy(clone.RawMultiaddrs, e.RawMultiaddrs)
	}
	if len(e.PublicKey) > 0 {
		clone.PublicKey = make([]byte, len(e.PublicKey))
		copy(clone.PublicKey, e.PublicKey)
	}
	if len(e.Capabilities) > 0 {
		clone.Capabilities = make([]string, len(e.Capabilities))
		copy(clone.Capabilities, e.Capabilities)
	}

	return clone
}

// bookData is the on-disk structure. Entries are keyed by node id.
type bookData struct {
	Version int               `json:"version"`
	Entries map[string]*Entry `json:"entries"`
}
