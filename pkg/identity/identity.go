package identity

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// NodeType identifies the role a node plays in a four-role cluster.
type NodeType int32

const (
	NodeTypeUnspecified NodeType = 0
	NodeTypeCoordinator NodeType = 1
	NodeTypeExecutor    NodeType = 2
	NodeTypeReferee     NodeType = 3
	NodeTypeDevelopment NodeType = 4
)

// Roles lists the four roles a complete cluster runs, in enum order.
func Roles() []NodeType {
	return []NodeType{NodeTypeCoordinator, NodeTypeExecutor, NodeTypeReferee, NodeTypeDevelopment}
}

// String returns the lowercase role name, or "unspecified".
func (t NodeType) String() string {
	switch t {
	case NodeTypeCoordinator:
		return "coordinator"
	case NodeTypeExecutor:
		return "executor"
	case NodeTypeReferee:
		return "referee"
	case NodeTypeDevelopment:
		return "development"
	default:
		return "unspecified"
	}
}

// Valid reports whether t names one of the four cluster roles.
func (t NodeType) Valid() bool {
	return t >= NodeTypeCoordinator && t <= NodeTypeDevelopment
}

// ParseNodeType parses a lowercase role name as produced by String.
func ParseNodeType(s string) (NodeType, error) {
	switch s {
	case "coordinator":
		return NodeTypeCoordinator, nil
	case "executor":
		return NodeTypeExecutor, nil
	case "referee":
		return NodeTypeReferee, nil
	case "development":
		return NodeTypeDevelopment, nil
	case "unspecified", "":
		return NodeTypeUnspecified, nil
	default:
		return NodeTypeUnspecified, fmt.Errorf("unknown node type %q", s)
	}
}

// HostOS identifies the operating system of a node host.
type HostOS int32

const (
	HostOSUnspecified HostOS = 0
	HostOSLinux       HostOS = 1
	HostOSMacOS       HostOS = 2
	HostOSWindows     HostOS = 3
)

// String returns the lowercase OS name, or "unspecified".
func (o HostOS) String() string {
	switch o {
	case HostOSLinux:
		return "linux"
	case HostOSMacOS:
		return "macos"
	case HostOSWindows:
		return "windows"
	default:
		return "unspecified"
	}
}

// Defaults applied by New.
const (
	DefaultUser    = "ergors"
	DefaultHost    = "127.0.0.1"
	DefaultAPIPort = 8080
	DefaultP2PPort = 26969
	DefaultSSHPort = 22
)

// Errors reported by identity operations.
var (
	// ErrPrivateKeyNotFound indicates an identity without a private key
	// was asked to sign or start networking.
	ErrPrivateKeyNotFound = errors.New("identity: private key not found")

	// ErrInvalidAddress indicates the identity host or a port cannot
	// form a usable listen address.
	ErrInvalidAddress = errors.New("identity: invalid address")
)

// NodeIdentity describes one node: where it listens, what role it
// plays, and the keypair it authenticates with. The private key field
// is unexported; signing goes through Sign and persistence through the
// keystore.
type NodeIdentity struct {
	Host     string
	P2PPort  uint32
	APIPort  uint32
	SSHPort  uint32
	User     string
	OS       HostOS
	NodeType NodeType

	PublicKey  *PublicKey
	privateKey *PrivateKey
}

// New creates an identity for the given role with a freshly generated
// keypair and default endpoint values.
func New(nodeType NodeType) (*NodeIdentity, error) {
	priv, err := GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return NewWithKey(nodeType, priv), nil
}

// NewWithKey creates an identity for the given role around an existing
// private key, with default endpoint values.
func NewWithKey(nodeType NodeType, priv *PrivateKey) *NodeIdentity {
	return &NodeIdentity{
		Host:       DefaultHost,
		P2PPort:    DefaultP2PPort,
		APIPort:    DefaultAPIPort,
		SSHPort:    DefaultSSHPort,
		User:       DefaultUser,
		OS:         HostOSUnspecified,
		NodeType:   nodeType,
		PublicKey:  priv.Public(),
		privateKey: priv,
	}
}

// SetKeypair installs priv as the identity's keypair, replacing any
// previous keys. The public key is derived from priv.
func (n *NodeIdentity) SetKeypair(priv *PrivateKey) {
	n.privateKey = priv
	n.PublicKey = priv.Public()
}

// HasPrivateKey reports whether the identity can sign.
func (n *NodeIdentity) HasPrivateKey() bool {
	return n.privateKey != nil
}

// PrivateKey returns the identity's signing key, or
// ErrPrivateKeyNotFound when the identity carries only a public key.
func (n *NodeIdentity) PrivateKey() (*PrivateKey, error) {
	if n.privateKey == nil {
		return nil, ErrPrivateKeyNotFound
	}
	return n.privateKey, nil
}

// Sign signs message bound to namespace with the identity's private
// key. Namespace semantics match PrivateKey.Sign.
func (n *NodeIdentity) Sign(namespace, message []byte) ([]byte, error) {
	if n.privateKey == nil {
		return nil, ErrPrivateKeyNotFound
	}
	return n.privateKey.Sign(namespace, message), nil
}

// NodeID returns the node id: the lowercase hex encoding of the public
// key. Empty when no keypair is set.
func (n *NodeIdentity) NodeID() string {
	if n.PublicKey == nil {
		return ""
	}
	return n.PublicKey.String()
}

// DisplayID returns a short human-readable identifier of the form
// "{role}-{hex prefix}", using the first 8 bytes of the public key.
func (n *NodeIdentity) DisplayID() string {
	if n.PublicKey == nil {
		return n.NodeType.String() + "-no_pubkey"
	}
	return fmt.Sprintf("%s-%x", n.NodeType, n.PublicKey.Bytes()[:8])
}

// P2PAddress returns the "host:port" peer listen address, or
// ErrInvalidAddress when host or port is unusable.
func (n *NodeIdentity) P2PAddress() (string, error) {
	return joinHostPort(n.Host, n.P2PPort)
}

// APIAddress returns the "host:port" API listen address, or
// ErrInvalidAddress when host or port is unusable.
func (n *NodeIdentity) APIAddress() (string, error) {
	return joinHostPort(n.Host, n.APIPort)
}

// P2PIdentity returns the dialable identity string
// "{node_id}@{host}:{p2p_port}".
func (n *NodeIdentity) P2PIdentity() (string, error) {
	addr, err := n.P2PAddress()
	if err != nil {
		return "", err
	}
	id := n.NodeID()
	if id == "" {
		id = "no_pubkey"
	}
	return id + "@" + addr, nil
}

// Validate checks that the identity is complete enough to join a
// network: a valid role, a public key, and well-formed addresses.
func (n *NodeIdentity) Validate() error {
	if !n.NodeType.Valid() {
		return fmt.Errorf("identity: node type %q is not a cluster role", n.NodeType)
	}
	if n.PublicKey == nil {
		return errors.New("identity: public key not set")
	}
	if _, err := n.P2PAddress(); err != nil {
		return err
	}
	if _, err := n.APIAddress(); err != nil {
		return err
	}
	return nil
}

// joinHostPort validates host and port and joins them. Ports are
// already bounded above by the uint32 field width in config decoding,
// but zero and >65535 are rejected here.
func joinHostPort(host string, port uint32) (string, error) {
	if host == "" {
		return "", fmt.Errorf("%w: empty host", ErrInvalidAddress)
	}
	if port == 0 || port > 65535 {
		return "", fmt.Errorf("%w: port %d out of range", ErrInvalidAddress, port)
	}
	if ip := net.ParseIP(host); ip == nil {
		// Not an IP literal; require a plausible hostname (no colons,
		// no spaces) so the result always splits back cleanly.
		for _, r := range host {
			if r == ':' || r == ' ' {
				return "", fmt.Errorf("%w: host %q", ErrInvalidAddress, host)
			}
		}
	}
	return net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10)), nil
}
