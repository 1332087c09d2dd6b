package wire

import (
	"errors"
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
)

// Errors reported by envelope validation and codec entry points.
var (
	// ErrNoPayload indicates an envelope with no payload set.
	ErrNoPayload = errors.New("wire: message has no payload")
	// ErrMultiplePayloads indicates an envelope with more than one
	// payload set.
	ErrMultiplePayloads = errors.New("wire: message has multiple payloads")
	// ErrTooLarge indicates a frame above MaxMessageSize.
	ErrTooLarge = errors.New("wire: message exceeds size limit")
)

// Kind names the payload carried by a Message. Values match the
// envelope field tags.
type Kind uint8

const (
	KindUnknown          Kind = 0
	KindNodeAnnounce     Kind = 1
	KindTaskCoordination Kind = 2
	KindSandloopState    Kind = 3
	KindFractalSync      Kind = 4
	KindTetrahedralPing  Kind = 5
	KindRequest          Kind = 6
	KindResponse         Kind = 7
)

// String returns the kind name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindNodeAnnounce:
		return "node_announce"
	case KindTaskCoordination:
		return "task_coordination"
	case KindSandloopState:
		return "sandloop_state"
	case KindFractalSync:
		return "fractal_sync"
	case KindTetrahedralPing:
		return "tetrahedral_ping"
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}

// ChannelFor returns the fixed channel a payload kind travels on.
func ChannelFor(k Kind) (Channel, error) {
	switch k {
	case KindNodeAnnounce:
		return ChannelDiscovery, nil
	case KindTaskCoordination, KindRequest, KindResponse:
		return ChannelTasks, nil
	case KindSandloopState, KindFractalSync:
		return ChannelState, nil
	case KindTetrahedralPing:
		return ChannelHealth, nil
	default:
		return 0, fmt.Errorf("wire: no channel for kind %s", k)
	}
}

// NodeAnnounce introduces a node to its peers.
type NodeAnnounce struct {
	NodeID       string   `cramberry:"1,required"`
	Role         int32    `cramberry:"2"`
	Capabilities []string `cramberry:"3"`
	LoadFactor   string   `cramberry:"4"`
}

// TaskCoordination hands a task between roles.
type TaskCoordination struct {
	TaskID   string `cramberry:"1,required"`
	FromRole int32  `cramberry:"2"`
	ToRole   int32  `cramberry:"3"`
	TaskType string `cramberry:"4"`
	Payload  []byte `cramberry:"5"`
}

// SandloopState reports loop execution progress.
type SandloopState struct {
	LoopID    string `cramberry:"1,required"`
	Iteration uint64 `cramberry:"2"`
	Phase     string `cramberry:"3"`
	Metrics   []byte `cramberry:"4"`
}

// FractalSync replicates state deltas between nodes.
type FractalSync struct {
	StateVersion    uint64             `cramberry:"1"`
	FractalDepth    uint32             `cramberry:"2"`
	StateRoot       string             `cramberry:"3"`
	DeltaOperations []FractalOperation `cramberry:"4"`
}

// FractalOperation is one state delta. Exactly one of Insert, Update,
// or Delete is set.
type FractalOperation struct {
	Insert *InsertOperation `cramberry:"1"`
	Update *UpdateOperation `cramberry:"2"`
	Delete *DeleteOperation `cramberry:"3"`
}

// InsertOperation adds a key.
type InsertOperation struct {
	Key   string `cramberry:"1,required"`
	Value []byte `cramberry:"2"`
}

// UpdateOperation replaces a key's value.
type UpdateOperation struct {
	Key   string `cramberry:"1,required"`
	Value []byte `cramberry:"2"`
}

// DeleteOperation removes a key.
type DeleteOperation struct {
	Key string `cramberry:"1,required"`
}

// TetrahedralPing is the periodic liveness probe. It carries the
// sender's topology view so receivers can repair gaps.
type TetrahedralPing struct {
	FromNode  string            `cramberry:"1,required"`
	Timestamp uint64            `cramberry:"2"`
	Topology  *TopologySnapshot `cramberry:"3"`
}

// Request asks one peer for data; the peer answers with a Response
// carrying the same RequestID.
type Request struct {
	RequestID string `cramberry:"1,required"`
	Payload   []byte `cramberry:"2"`
}

// Response answers a Request. It completes the sender's pending call
// regardless of which channel it arrives on.
type Response struct {
	RequestID string `cramberry:"1,required"`
	Success   bool   `cramberry:"2"`
	Payload   []byte `cramberry:"3"`
}

// NodeInfo is the wire form of a topology entry.
type NodeInfo struct {
	NodeID   string `cramberry:"1,required"`
	NodeType string `cramberry:"2"`
	Online   bool   `cramberry:"3"`
	LastSeen uint64 `cramberry:"4"`
}

// Connection is the wire form of a topology edge.
type Connection struct {
	FromNodeID string `cramberry:"1,required"`
	ToNodeID   string `cramberry:"2,required"`
}

// TopologySnapshot is the wire form of a full topology view.
type TopologySnapshot struct {
	Nodes       []NodeInfo   `cramberry:"1"`
	Connections []Connection `cramberry:"2"`
}

// Message is the protocol envelope. Exactly one payload field is set;
// the field tags are the payload kinds.
type Message struct {
	NodeAnnounce     *NodeAnnounce     `cramberry:"1"`
	TaskCoordination *TaskCoordination `cramberry:"2"`
	SandloopState    *SandloopState    `cramberry:"3"`
	FractalSync      *FractalSync      `cramberry:"4"`
	TetrahedralPing  *TetrahedralPing  `cramberry:"5"`
	Request          *Request          `cramberry:"6"`
	Response         *Response         `cramberry:"7"`
}

// Envelope constructors.

func NewAnnounceMessage(a *NodeAnnounce) *Message    { return &Message{NodeAnnounce: a} }
func NewTaskMessage(tc *TaskCoordination) *Message   { return &Message{TaskCoordination: tc} }
func NewSandloopMessage(s *SandloopState) *Message   { return &Message{SandloopState: s} }
func NewFractalSyncMessage(fs *FractalSync) *Message { return &Message{FractalSync: fs} }
func NewPingMessage(p *TetrahedralPing) *Message     { return &Message{TetrahedralPing: p} }
func NewRequestMessage(r *Request) *Message          { return &Message{Request: r} }
func NewResponseMessage(r *Response) *Message        { return &Message{Response: r} }

// Kind returns the payload kind, or an error when zero or multiple
// payloads are set.
func (m *Message) Kind() (Kind, error) {
	kind := KindUnknown
	count := 0
	if m.NodeAnnounce != nil {
		kind, count = KindNodeAnnounce, count+1
	}
	if m.TaskCoordination != nil {
		kind, count = KindTaskCoordination, count+1
	}
	if m.SandloopState != nil {
		kind, count = KindSandloopState, count+1
	}
	if m.FractalSync != nil {
		kind, count = KindFractalSync, count+1
	}
	if m.TetrahedralPing != nil {
		kind, count = KindTetrahedralPing, count+1
	}
	if m.Request != nil {
		kind, count = KindRequest, count+1
	}
	if m.Response != nil {
		kind, count = KindResponse, count+1
	}

	switch count {
	case 0:
		return KindUnknown, ErrNoPayload
	case 1:
		return kind, nil
	default:
		return KindUnknown, ErrMultiplePayloads
	}
}

// Channel returns the channel this message travels on, derived from
// its kind.
func (m *Message) Channel() (Channel, error) {
	kind, err := m.Kind()
	if err != nil {
		return 0, err
	}
	return ChannelFor(kind)
}

// Validate checks the envelope invariant.
func (m *Message) Validate() error {
	_, err := m.Kind()
	return err
}

// Marshal encodes a validated envelope.
func Marshal(m *Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	data, err := cramberry.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: encode message: %w", err)
	}
	if len(data) > MaxMessageSize {
		return nil, ErrTooLarge
	}
	return data, nil
}

// Unmarshal decodes and validates an envelope.
func Unmarshal(data []byte) (*Message, error) {
	if len(data) > MaxMessageSize {
		return nil, ErrTooLarge
	}
	var m Message
	if err := cramberry.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("wire: decode message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
