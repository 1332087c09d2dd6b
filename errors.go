package ergors

import (
	"errors"
	"fmt"

	"github.com/permissionlessweb/ergors/pkg/identity"
)

// ErrorCode identifies the type of error for programmatic handling.
type ErrorCode int

const (
	// ErrCodeUnknown indicates an unknown or unclassified error.
	ErrCodeUnknown ErrorCode = iota

	// ErrCodeConfig indicates the configuration is invalid.
	ErrCodeConfig

	// ErrCodeNotInitialized indicates the manager has not been started.
	ErrCodeNotInitialized

	// ErrCodeAlreadyStarted indicates the manager is already running.
	ErrCodeAlreadyStarted

	// ErrCodeStopped indicates the manager has been stopped.
	ErrCodeStopped

	// ErrCodeNoPeersForRole indicates no online peer plays the
	// requested role.
	ErrCodeNoPeersForRole

	// ErrCodePeerNotFound indicates the peer is not known to the
	// manager.
	ErrCodePeerNotFound

	// ErrCodeInvalidNodeType indicates a role value outside the four
	// cluster roles.
	ErrCodeInvalidNodeType

	// ErrCodeChannel indicates a channel outside the fixed channel set.
	ErrCodeChannel

	// ErrCodeSerialization indicates a message failed to encode or
	// decode.
	ErrCodeSerialization

	// ErrCodeTimeout indicates a request expired before its response
	// arrived.
	ErrCodeTimeout

	// ErrCodeTransport indicates a transport-level connect or send
	// failure.
	ErrCodeTransport

	// ErrCodeSubscribed indicates the event stream was already claimed.
	ErrCodeSubscribed
)

// String returns a human-readable name for the error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeUnknown:
		return "Unknown"
	case ErrCodeConfig:
		return "Config"
	case ErrCodeNotInitialized:
		return "NotInitialized"
	case ErrCodeAlreadyStarted:
		return "AlreadyStarted"
	case ErrCodeStopped:
		return "Stopped"
	case ErrCodeNoPeersForRole:
		return "NoPeersForRole"
	case ErrCodePeerNotFound:
		return "PeerNotFound"
	case ErrCodeInvalidNodeType:
		return "InvalidNodeType"
	case ErrCodeChannel:
		return "Channel"
	case ErrCodeSerialization:
		return "Serialization"
	case ErrCodeTimeout:
		return "Timeout"
	case ErrCodeTransport:
		return "Transport"
	case ErrCodeSubscribed:
		return "Subscribed"
	default:
		return fmt.Sprintf("ErrorCode(%d)", c)
	}
}

// Error represents an ergors error with rich context.
// It provides structured information for programmatic error handling.
type Error struct {
	// Code identifies the type of error.
	Code ErrorCode

	// Message is a human-readable description of the error.
	Message string

	// NodeID is the node associated with the error, if any.
	NodeID string

	// Channel is the channel name associated with the error, if any.
	Channel string

	// Cause is the underlying error, if any.
	Cause error

	// Retriable indicates whether the operation can be retried.
	Retriable bool
}

// Error returns a human-readable error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ergors: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("ergors: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// Two ergors errors are considered equal if they have the same error code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// IsRetriable returns true if the error indicates a retriable operation.
// This checks if the error is an ergors Error with Retriable set to true.
func IsRetriable(err error) bool {
	var eErr *Error
	if errors.As(err, &eErr) {
		return eErr.Retriable
	}
	return false
}

// IsPermanent returns true if the error indicates a permanent failure.
// Permanent failures should not be retried.
func IsPermanent(err error) bool {
	var eErr *Error
	if errors.As(err, &eErr) {
		switch eErr.Code {
		case ErrCodeConfig, ErrCodeInvalidNodeType, ErrCodeStopped, ErrCodeSubscribed:
			return true
		}
	}
	return false
}

// NewError creates a new ergors Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new ergors Error with the given code, message, and cause.
func NewErrorWithCause(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewPeerError creates a new ergors Error associated with a specific peer.
func NewPeerError(code ErrorCode, message string, nodeID string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		NodeID:  nodeID,
	}
}

// Sentinel errors for configuration and construction.
var (
	// ErrConfig indicates the configuration is invalid.
	ErrConfig = errors.New("invalid configuration")

	// ErrNodePrivKeyNotFound indicates the identity carries no private
	// key. Signing and network start both require one.
	ErrNodePrivKeyNotFound = identity.ErrPrivateKeyNotFound
)

// Sentinel errors for the manager lifecycle.
var (
	// ErrNotInitialized indicates the manager has not been started.
	ErrNotInitialized = errors.New("manager not started")

	// ErrAlreadyStarted indicates the manager is already running.
	ErrAlreadyStarted = errors.New("manager already started")

	// ErrStopped indicates the manager was stopped. A stopped manager
	// never restarts; create a new one.
	ErrStopped = errors.New("manager stopped")
)

// Sentinel errors for messaging.
var (
	// ErrNoPeersForRole indicates no online peer plays the requested
	// role.
	ErrNoPeersForRole = errors.New("no peers for role")

	// ErrPeerNotFound indicates the peer is not known to the manager.
	ErrPeerNotFound = errors.New("peer not found")

	// ErrInvalidNodeType indicates a role value outside the four
	// cluster roles.
	ErrInvalidNodeType = errors.New("invalid node type")

	// ErrChannel indicates a channel outside the fixed channel set.
	ErrChannel = errors.New("unknown channel")

	// ErrSerialization indicates a message failed to encode or decode.
	ErrSerialization = errors.New("message serialization failed")

	// ErrCollectorTimeout indicates a request expired before its
	// response arrived.
	ErrCollectorTimeout = errors.New("request timed out waiting for response")
)

// Sentinel errors for the event stream.
var (
	// ErrAlreadySubscribed indicates Subscribe was called twice. The
	// event stream has a single consumer; the first call claims it.
	ErrAlreadySubscribed = errors.New("event stream already subscribed")
)

// Sentinel errors for validation.
var (
	// ErrInvalidNodeID indicates a string that is not the hex encoding
	// of a canonical public key.
	ErrInvalidNodeID = errors.New("invalid node id")
)
