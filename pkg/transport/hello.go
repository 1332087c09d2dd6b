package transport

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/blockberries/cramberry/pkg/cramberry"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/permissionlessweb/ergors/pkg/identity"
	"github.com/permissionlessweb/ergors/pkg/wire"
)

// ProtocolVersion is the hello protocol version spoken by this build.
// Peers announcing a different version are rejected during the
// exchange.
const ProtocolVersion uint32 = 1

// DefaultHelloTimeout bounds the whole hello exchange on a new stream.
const DefaultHelloTimeout = 10 * time.Second

// maxHelloSize bounds the encoded hello frame. A hello carries a key,
// a signature, and a short capability list; anything larger is hostile.
const maxHelloSize = 4096

// ErrHelloRejected indicates a remote hello that failed verification.
var ErrHelloRejected = errors.New("transport: hello rejected")

// Hello is the first message exchanged on every new connection. It
// binds the libp2p transport identity to a node identity: the public
// key must derive the sender's libp2p peer id, the node id must be the
// hex form of the public key, and the signature covers the remaining
// fields under the protocol namespace.
type Hello struct {
	Version      uint32   `cramberry:"1,required"`
	NodeID       string   `cramberry:"2,required"`
	PublicKey    []byte   `cramberry:"3,required"`
	Role         int32    `cramberry:"4"`
	Capabilities []string `cramberry:"5"`
	Timestamp    uint64   `cramberry:"6"`
	Signature    []byte   `cramberry:"7"`
}

// NewHello builds a signed hello for the given identity.
func NewHello(id *identity.NodeIdentity, capabilities []string) (*Hello, error) {
	if id == nil || id.PublicKey == nil {
		return nil, errors.New("transport: identity has no public key")
	}
	h := &Hello{
		Version:      ProtocolVersion,
		NodeID:       id.NodeID(),
		PublicKey:    id.PublicKey.Bytes(),
		Role:         int32(id.NodeType),
		Capabilities: capabilities,
		Timestamp:    uint64(time.Now().Unix()),
	}
	if err := h.Sign(id); err != nil {
		return nil, err
	}
	return h, nil
}

// Sign signs the hello transcript with the identity's private key under
// the protocol namespace.
func (h *Hello) Sign(id *identity.NodeIdentity) error {
	tr, err := h.transcript()
	if err != nil {
		return err
	}
	sig, err := id.Sign(wire.Namespace, tr)
	if err != nil {
		return err
	}
	h.Signature = sig
	return nil
}

// Verify checks a received hello against the authenticated transport
// peer. remote is the peer id libp2p authenticated on the connection
// the hello arrived over; the hello's public key must derive exactly
// that peer id, so a node cannot present another node's identity over
// its own connection.
func (h *Hello) Verify(remote peer.ID) error {
	if h.Version != ProtocolVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrHelloRejected, h.Version, ProtocolVersion)
	}
	pub, err := identity.PublicKeyFromBytes(h.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHelloRejected, err)
	}
	if pub.String() != h.NodeID {
		return fmt.Errorf("%w: node id does not match public key", ErrHelloRejected)
	}
	derived, err := peerIDFromPublicKey(h.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHelloRejected, err)
	}
	if derived != remote {
		return fmt.Errorf("%w: public key does not match transport peer %s", ErrHelloRejected, remote)
	}
	if !identity.NodeType(h.Role).Valid() {
		return fmt.Errorf("%w: invalid role %d", ErrHelloRejected, h.Role)
	}
	tr, err := h.transcript()
	if err != nil {
		return err
	}
	if !pub.Verify(wire.Namespace, tr, h.Signature) {
		return fmt.Errorf("%w: bad signature", ErrHelloRejected)
	}
	return nil
}

// transcript returns the canonical byte string covered by the hello
// signature: every field except the signature itself, in tag order.
func (h *Hello) transcript() ([]byte, error) {
	var buf bytes.Buffer
	w := cramberry.NewStreamWriter(&buf)
	w.WriteUvarint(uint64(h.Version))
	w.WriteBytes([]byte(h.NodeID))
	w.WriteBytes(h.PublicKey)
	w.WriteSvarint(int64(h.Role))
	w.WriteUvarint(uint64(len(h.Capabilities)))
	for _, c := range h.Capabilities {
		w.WriteBytes([]byte(c))
	}
	w.WriteUvarint(h.Timestamp)
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("transport: build hello transcript: %w", err)
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("transport: build hello transcript: %w", err)
	}
	return buf.Bytes(), nil
}

// peerIDFromPublicKey derives the libp2p peer id for a raw Ed25519
// public key.
func peerIDFromPublicKey(pub []byte) (peer.ID, error) {
	lpub, err := libp2pcrypto.UnmarshalEd25519PublicKey(pub)
	if err != nil {
		return "", err
	}
	return peer.IDFromPublicKey(lpub)
}

// exchangeHello runs the hello exchange over s and returns the verified
// remote hello. The initiator writes first and then reads; the
// responder reads first and then writes. The exchange is bounded by
// timeout; the caller closes or resets the stream afterwards.
func exchangeHello(s network.Stream, local *Hello, timeout time.Duration, initiate bool) (*Hello, error) {
	if timeout <= 0 {
		timeout = DefaultHelloTimeout
	}
	if err := s.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("transport: set hello deadline: %w", err)
	}

	var remote *Hello
	var err error
	if initiate {
		if err = writeHello(s, local); err == nil {
			remote, err = readHello(s)
		}
	} else {
		if remote, err = readHello(s); err == nil {
			err = writeHello(s, local)
		}
	}
	if err != nil {
		return nil, err
	}
	if err := remote.Verify(s.Conn().RemotePeer()); err != nil {
		return nil, err
	}

	_ = s.SetDeadline(time.Time{})
	return remote, nil
}

func writeHello(s network.Stream, h *Hello) error {
	data, err := cramberry.Marshal(h)
	if err != nil {
		return fmt.Errorf("transport: encode hello: %w", err)
	}
	w := cramberry.NewStreamWriter(s)
	w.WriteMessage(data)
	if err := w.Err(); err != nil {
		return fmt.Errorf("transport: write hello: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("transport: write hello: %w", err)
	}
	return nil
}

func readHello(s network.Stream) (*Hello, error) {
	iter := cramberry.NewMessageIterator(s)
	var frame []byte
	if !iter.Next(&frame) {
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("transport: read hello: %w", err)
		}
		return nil, errors.New("transport: read hello: stream closed")
	}
	if len(frame) > maxHelloSize {
		return nil, fmt.Errorf("%w: oversized hello frame (%d bytes)", ErrHelloRejected, len(frame))
	}
	var h Hello
	if err := cramberry.Unmarshal(frame, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHelloRejected, err)
	}
	return &h, nil
}
