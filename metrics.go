package ergors

// Metrics defines the metrics collection interface for ergors.
// It is designed to be compatible with Prometheus and other metrics systems.
//
// Implementations must be safe for concurrent use.
//
// Metric naming convention:
//   - Counters: <name>_total (e.g., messages_sent_total)
//   - Histograms: <name>_seconds or <name>_bytes (e.g., request_duration_seconds)
//   - Gauges: current_<name> (e.g., current_peers)
type Metrics interface {
	// Peer metrics

	// PeerConnected increments when a peer session is established.
	// Labels: role (coordinator, executor, referee, development)
	PeerConnected(role string)

	// PeerDisconnected increments when a peer session ends.
	// Labels: role (coordinator, executor, referee, development)
	PeerDisconnected(role string)

	// PeerEvicted increments when a stale peer is removed.
	PeerEvicted()

	// SetPeers records the current number of known peers.
	SetPeers(n int)

	// SetOnlinePeers records the current number of online peers.
	SetOnlinePeers(n int)

	// Message metrics

	// MessageSent records a message being sent.
	// Labels: channel (the channel name)
	MessageSent(channel string, bytes int)

	// MessageReceived records a message being received.
	// Labels: channel (the channel name)
	MessageReceived(channel string, bytes int)

	// MessageDropped records an inbound message discarded before
	// delivery. Labels: reason (decode, validate, buffer)
	MessageDropped(reason string)

	// Request metrics

	// RequestStarted increments when a correlated request is issued.
	RequestStarted()

	// RequestCompleted records the outcome and duration of a request.
	// Labels: result (success, timeout, canceled, error)
	RequestCompleted(result string, seconds float64)

	// Event metrics

	// EventEmitted records an event being emitted.
	// Labels: kind (the event kind name)
	EventEmitted(kind string)

	// EventDropped records an event being dropped due to buffer full.
	EventDropped()

	// Maintenance metrics

	// MaintenanceTick records one maintenance pass.
	MaintenanceTick()
}

// NopMetrics is a no-op metrics implementation that discards all metrics.
// It is the default when no metrics collector is configured.
type NopMetrics struct{}

// Ensure NopMetrics implements Metrics.
var _ Metrics = NopMetrics{}

// PeerConnected implements Metrics.PeerConnected (no-op).
func (NopMetrics) PeerConnected(role string) {}

// PeerDisconnected implements Metrics.PeerDisconnected (no-op).
func (NopMetrics) PeerDisconnected(role string) {}

// PeerEvicted implements Metrics.PeerEvicted (no-op).
func (NopMetrics) PeerEvicted() {}

// SetPeers implements Metrics.SetPeers (no-op).
func (NopMetrics) SetPeers(n int) {}

// SetOnlinePeers implements Metrics.SetOnlinePeers (no-op).
func (NopMetrics) SetOnlinePeers(n int) {}

// MessageSent implements Metrics.MessageSent (no-op).
func (NopMetrics) MessageSent(channel string, bytes int) {}

// MessageReceived implements Metrics.MessageReceived (no-op).
func (NopMetrics) MessageReceived(channel string, bytes int) {}

// MessageDropped implements Metrics.MessageDropped (no-op).
func (NopMetrics) MessageDropped(reason string) {}

// RequestStarted implements Metrics.RequestStarted (no-op).
func (NopMetrics) RequestStarted() {}

// RequestCompleted implements Metrics.RequestCompleted (no-op).
func (NopMetrics) RequestCompleted(result string, seconds float64) {}

// EventEmitted implements Metrics.EventEmitted (no-op).
func (NopMetrics) EventEmitted(kind string) {}

// EventDropped implements Metrics.EventDropped (no-op).
func (NopMetrics) EventDropped() {}

// MaintenanceTick implements Metrics.MaintenanceTick (no-op).
func (NopMetrics) MaintenanceTick() {}
