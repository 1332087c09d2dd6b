package ergors

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/permissionlessweb/ergors/pkg/identity"
)

func TestEventKind_String(t *testing.T) {
	tests := []struct {
		kind     EventKind
		expected string
	}{
		{EventPeerConnected, "PeerConnected"},
		{EventPeerDisconnected, "PeerDisconnected"},
		{EventMessageReceived, "MessageReceived"},
		{EventTopologyChanged, "TopologyChanged"},
		{EventError, "Error"},
		{EventKind(999), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			got := tt.kind.String()
			if got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestEvent_IsError(t *testing.T) {
	nodeID := strings.Repeat("ab", 32)

	// Event without error
	event1 := Event{
		Kind:      EventPeerConnected,
		NodeID:    nodeID,
		Role:      identity.NodeTypeExecutor,
		Timestamp: time.Now(),
	}

	if event1.IsError() {
		t.Error("IsError should be false when Err is nil")
	}

	// Event with error
	event2 := Event{
		Kind:      EventError,
		NodeID:    nodeID,
		Err:       fmt.Errorf("decode failed"),
		Timestamp: time.Now(),
	}

	if !event2.IsError() {
		t.Error("IsError should be true when Err is not nil")
	}
}

func TestDisconnectReasons(t *testing.T) {
	if ReasonConnectionClosed == ReasonTimeout {
		t.Error("disconnect reasons should be distinct")
	}

	event := Event{
		Kind:   EventPeerDisconnected,
		NodeID: strings.Repeat("cd", 32),
		Reason: ReasonTimeout,
	}
	if event.Reason != "Timeout" {
		t.Errorf("Reason = %q, want %q", event.Reason, "Timeout")
	}
}
