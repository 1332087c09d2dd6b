package ergors

import (
	"fmt"

	"github.com/permissionlessweb/ergors/pkg/identity"
	"github.com/permissionlessweb/ergors/pkg/wire"
)

// NodeIDLength is the length of a node identifier: the lowercase hex
// encoding of a 32-byte canonical public key.
const NodeIDLength = 64

// ValidateNodeID checks if the string is a well-formed node identifier.
// Node identifiers must:
//   - Be exactly 64 characters long
//   - Contain only lowercase hexadecimal digits
//
// Returns nil if valid, or an error describing the validation failure.
func ValidateNodeID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: node id cannot be empty", ErrInvalidNodeID)
	}

	if len(id) != NodeIDLength {
		return fmt.Errorf("%w: %d characters, expected %d",
			ErrInvalidNodeID, len(id), NodeIDLength)
	}

	for i, r := range id {
		if !isHexLower(r) {
			return fmt.Errorf("%w: invalid character %q at position %d (only lowercase hex allowed)",
				ErrInvalidNodeID, r, i)
		}
	}

	return nil
}

// isHexLower returns true if the rune is a lowercase hexadecimal digit.
func isHexLower(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
}

// ValidateNodeType checks that the role names one of the four cluster
// roles. NodeTypeUnspecified is rejected: every participating node
// declares a role.
func ValidateNodeType(t identity.NodeType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidNodeType, int32(t))
	}
	return nil
}

// ValidateChannel checks that the channel is one of the fixed set.
func ValidateChannel(ch wire.Channel) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: %d", ErrChannel, uint8(ch))
	}
	return nil
}
