package ergors

import (
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/permissionlessweb/ergors/pkg/identity"
	"github.com/permissionlessweb/ergors/pkg/wire"
)

// Default configuration values.
const (
	DefaultMaintenanceInterval = 30 * time.Second
	DefaultStaleAfter          = 120 * time.Second
	DefaultRequestTimeout      = 30 * time.Second
	DefaultMaxPeers            = 64
	DefaultEventBufferSize     = 100
	DefaultChannelBuffer       = 10
)

// Config holds the configuration for an ergors Manager.
type Config struct {
	// Identity is this node's identity. It is required and must carry
	// a private key; the transport identity and all signatures are
	// derived from it.
	Identity *identity.NodeIdentity

	// ListenAddrs are the multiaddresses this node will listen on.
	// When empty, a tcp address is derived from the identity's host
	// and p2p port.
	ListenAddrs []multiaddr.Multiaddr

	// BootstrapPeers are dialed at Start and redialed with backoff
	// whenever their session drops.
	BootstrapPeers []peer.AddrInfo

	// AddressBookPath is the file path for persisting verified peers.
	// Empty disables persistence; peers are then known only for the
	// lifetime of the manager.
	AddressBookPath string

	// Capabilities are announced to peers in the hello exchange and
	// in periodic announcements.
	Capabilities []string

	// MaintenanceInterval is the period of the maintenance loop that
	// evicts stale peers and re-announces this node.
	MaintenanceInterval time.Duration

	// StaleAfter is how long a peer may stay silent before the
	// maintenance loop evicts it.
	StaleAfter time.Duration

	// RequestTimeout is the default wait for a correlated response
	// when Request is called with a non-positive timeout.
	RequestTimeout time.Duration

	// HelloTimeout bounds the hello exchange on new connections.
	HelloTimeout time.Duration

	// MaxPeers bounds the number of known peers. Sessions arriving
	// above the bound are dropped.
	MaxPeers int

	// EventBufferSize is the buffer size for the event channel.
	EventBufferSize int

	// ChannelBuffers are the inbound queue lengths for the four
	// channels, in channel order. Zero entries use DefaultChannelBuffer.
	ChannelBuffers [wire.NumChannels]int

	// RateLimit is the sustained inbound message rate admitted per
	// peer, in messages per second. RateBurst is the burst allowance.
	// Zero values use the limiter defaults.
	RateLimit int
	RateBurst int

	// DisableDiscovery turns off announce gossip. The node still
	// answers pings and serves requests, but stops telling peers about
	// itself and the topology it sees.
	DisableDiscovery bool

	// PlaintextChannels disables channel payload encryption. Frames
	// still travel over libp2p's authenticated transport security.
	// Meant for tests and debugging.
	PlaintextChannels bool

	// Logger is the logger for the manager. If nil, a NopLogger is used.
	// The logger must be safe for concurrent use.
	Logger Logger

	// Metrics is the metrics collector for the manager. If nil, a
	// NopMetrics is used. It must be safe for concurrent use.
	Metrics Metrics
}

// Validate checks that the configuration is valid and returns an error
// describing any problems found.
func (c *Config) Validate() error {
	if c.Identity == nil {
		return fmt.Errorf("%w: identity is required", ErrConfig)
	}
	if !c.Identity.HasPrivateKey() {
		return ErrNodePrivKeyNotFound
	}
	if err := ValidateNodeType(c.Identity.NodeType); err != nil {
		return err
	}
	if err := c.Identity.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if c.MaintenanceInterval < 0 {
		return fmt.Errorf("%w: maintenance interval cannot be negative", ErrConfig)
	}
	if c.StaleAfter < 0 {
		return fmt.Errorf("%w: stale threshold cannot be negative", ErrConfig)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("%w: request timeout cannot be negative", ErrConfig)
	}
	if c.HelloTimeout < 0 {
		return fmt.Errorf("%w: hello timeout cannot be negative", ErrConfig)
	}
	if c.MaxPeers < 0 {
		return fmt.Errorf("%w: max peers cannot be negative", ErrConfig)
	}
	if c.EventBufferSize < 0 {
		return fmt.Errorf("%w: event buffer size cannot be negative", ErrConfig)
	}
	for i, size := range c.ChannelBuffers {
		if size < 0 {
			return fmt.Errorf("%w: channel %d buffer cannot be negative", ErrConfig, i)
		}
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit cannot be negative", ErrConfig)
	}
	if c.RateBurst < 0 {
		return fmt.Errorf("%w: rate burst cannot be negative", ErrConfig)
	}
	return nil
}

// applyDefaults sets default values for any unset optional fields.
func (c *Config) applyDefaults() {
	if c.MaintenanceInterval == 0 {
		c.MaintenanceInterval = DefaultMaintenanceInterval
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxPeers == 0 {
		c.MaxPeers = DefaultMaxPeers
	}
	if c.EventBufferSize == 0 {
		c.EventBufferSize = DefaultEventBufferSize
	}
	for i := range c.ChannelBuffers {
		if c.ChannelBuffers[i] == 0 {
			c.ChannelBuffers[i] = DefaultChannelBuffer
		}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
}

// ConfigOption is a functional option for configuring a Manager.
type ConfigOption func(*Config)

// WithListenAddrs sets the multiaddresses to listen on.
func WithListenAddrs(addrs ...multiaddr.Multiaddr) ConfigOption {
	return func(c *Config) {
		c.ListenAddrs = addrs
	}
}

// WithBootstrapPeers sets the peers dialed at startup.
func WithBootstrapPeers(peers ...peer.AddrInfo) ConfigOption {
	return func(c *Config) {
		c.BootstrapPeers = peers
	}
}

// WithAddressBook sets the file path for persisting verified peers.
func WithAddressBook(path string) ConfigOption {
	return func(c *Config) {
		c.AddressBookPath = path
	}
}

// WithCapabilities sets the capabilities announced to peers.
func WithCapabilities(caps ...string) ConfigOption {
	return func(c *Config) {
		c.Capabilities = caps
	}
}

// WithMaintenanceInterval sets the maintenance loop period.
func WithMaintenanceInterval(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.MaintenanceInterval = d
	}
}

// WithStaleAfter sets how long a peer may stay silent before eviction.
func WithStaleAfter(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.StaleAfter = d
	}
}

// WithRequestTimeout sets the default request timeout.
func WithRequestTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = d
	}
}

// WithHelloTimeout sets the bound on the hello exchange.
func WithHelloTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.HelloTimeout = d
	}
}

// WithMaxPeers bounds the number of known peers.
func WithMaxPeers(n int) ConfigOption {
	return func(c *Config) {
		c.MaxPeers = n
	}
}

// WithEventBufferSize sets the buffer size for the event channel.
func WithEventBufferSize(size int) ConfigOption {
	return func(c *Config) {
		c.EventBufferSize = size
	}
}

// WithChannelBuffers sets the inbound queue length per channel.
func WithChannelBuffers(sizes [wire.NumChannels]int) ConfigOption {
	return func(c *Config) {
		c.ChannelBuffers = sizes
	}
}

// WithRateLimit sets the per-peer inbound rate limit and burst.
func WithRateLimit(rate, burst int) ConfigOption {
	return func(c *Config) {
		c.RateLimit = rate
		c.RateBurst = burst
	}
}

// WithDiscovery enables or disables announce gossip.
func WithDiscovery(enabled bool) ConfigOption {
	return func(c *Config) {
		c.DisableDiscovery = !enabled
	}
}

// WithChannelEncryption enables or disables channel payload encryption.
func WithChannelEncryption(enabled bool) ConfigOption {
	return func(c *Config) {
		c.PlaintextChannels = !enabled
	}
}

// WithLogger sets the logger for the manager.
// The logger must be safe for concurrent use.
func WithLogger(l Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMetrics sets the metrics collector for the manager.
// The metrics collector must be safe for concurrent use.
func WithMetrics(m Metrics) ConfigOption {
	return func(c *Config) {
		c.Metrics = m
	}
}

// NewConfig creates a new Config for the given identity and applies
// any provided options. It applies defaults for unset optional fields
// but does not validate the configuration.
func NewConfig(id *identity.NodeIdentity, opts ...ConfigOption) *Config {
	c := &Config{
		Identity: id,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.applyDefaults()
	return c
}
