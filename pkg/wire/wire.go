// Package wire defines the ergors network protocol: the fixed channel
// set, the message envelope and its payload kinds, and the Cramberry
// encoding used on every stream.
//
// Every message travels inside a Message envelope carrying exactly one
// payload. The channel a message belongs to is a fixed function of its
// kind and is never transmitted; both peers derive it independently.
package wire

// Namespace is the domain-separation tag bound into every protocol
// signature. Signatures made under any other namespace, or under no
// namespace, never verify here.
var Namespace = []byte("cw-ho-network")

// MaxMessageSize is the largest frame accepted on any channel, in
// bytes (10 MiB).
const MaxMessageSize = 10485760
