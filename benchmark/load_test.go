package benchmark

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/permissionlessweb/ergors"
	"github.com/permissionlessweb/ergors/pkg/addressbook"
	"github.com/permissionlessweb/ergors/pkg/crypto"
	"github.com/permissionlessweb/ergors/pkg/identity"
	"github.com/permissionlessweb/ergors/pkg/topology"
)

// Load Testing
// These tests measure performance under load and help identify bottlenecks.

// generateLoadIdentity creates a fresh node identity for load testing.
func generateLoadIdentity(b *testing.B, role identity.NodeType) *identity.NodeIdentity {
	b.Helper()
	id, err := identity.New(role)
	if err != nil {
		b.Fatalf("failed to generate identity: %v", err)
	}
	return id
}

// loadBenchConfig builds a manager config listening on an ephemeral
// loopback port with an address book in a fresh temp dir.
func loadBenchConfig(b *testing.B, id *identity.NodeIdentity) *ergors.Config {
	b.Helper()
	listenAddr, _ := multiaddr.NewMultiaddr("/ip4/127.0.0.1/tcp/0")
	return ergors.NewConfig(id,
		ergors.WithListenAddrs(listenAddr),
		ergors.WithAddressBook(b.TempDir()+"/addresses.json"),
	)
}

// benchNodeID produces a well-formed node id from a counter.
func benchNodeID(i int) string {
	return fmt.Sprintf("%064x", i)
}

// BenchmarkManagerCreation measures manager construction performance.
func BenchmarkManagerCreation(b *testing.B) {
	for i := 0; i < b.N; i++ {
		id := generateLoadIdentity(b, identity.NodeTypeCoordinator)
		cfg := loadBenchConfig(b, id)

		if _, err := ergors.New(cfg); err != nil {
			b.Fatalf("New failed: %v", err)
		}
	}
}

// BenchmarkManagerStartStop measures a full start/stop cycle including
// libp2p host bring-up on a loopback listener.
func BenchmarkManagerStartStop(b *testing.B) {
	id := generateLoadIdentity(b, identity.NodeTypeCoordinator)
	cfg := loadBenchConfig(b, id)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		mgr, err := ergors.New(cfg)
		if err != nil {
			b.Fatalf("New failed: %v", err)
		}
		if err := mgr.Start(context.Background()); err != nil {
			b.Fatalf("Start failed: %v", err)
		}
		_ = mgr.Stop()
	}
}

// BenchmarkTopologyAddNode measures membership insertion performance.
func BenchmarkTopologyAddNode(b *testing.B) {
	topo := topology.New()

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		topo.AddNode(topology.NodeInfo{
			NodeID:   benchNodeID(i),
			NodeType: identity.NodeType(i%4 + 1),
			Online:   true,
		})
	}
}

// BenchmarkTopologyNodes measures membership listing with various node counts.
func BenchmarkTopologyNodes_10(b *testing.B)   { benchmarkTopologyNodes(b, 10) }
func BenchmarkTopologyNodes_100(b *testing.B)  { benchmarkTopologyNodes(b, 100) }
func BenchmarkTopologyNodes_500(b *testing.B)  { benchmarkTopologyNodes(b, 500) }
func BenchmarkTopologyNodes_1000(b *testing.B) { benchmarkTopologyNodes(b, 1000) }

func benchmarkTopologyNodes(b *testing.B, numNodes int) {
	topo := topology.New()
	for i := 0; i < numNodes; i++ {
		topo.AddNode(topology.NodeInfo{
			NodeID:   benchNodeID(i),
			NodeType: identity.NodeType(i%4 + 1),
			Online:   true,
		})
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		nodes := topo.Nodes()
		if len(nodes) != numNodes {
			b.Fatalf("expected %d nodes, got %d", numNodes, len(nodes))
		}
	}
}

// BenchmarkTopologyStats measures stats computation over a populated view.
func BenchmarkTopologyStats(b *testing.B) {
	topo := topology.New()
	for i := 0; i < 100; i++ {
		topo.AddNode(topology.NodeInfo{
			NodeID:   benchNodeID(i),
			NodeType: identity.NodeType(i%4 + 1),
			Online:   i%2 == 0,
		})
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = topo.Stats()
	}
}

// BenchmarkConcurrentTopologyAdd measures concurrent membership updates.
func BenchmarkConcurrentTopologyAdd(b *testing.B) {
	topo := topology.New()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			topo.AddNode(topology.NodeInfo{
				NodeID:   fmt.Sprintf("%048x%016x", time.Now().UnixNano(), i),
				NodeType: identity.NodeTypeExecutor,
				Online:   true,
			})
			i++
		}
	})
}

// BenchmarkHealthCheck measures health check performance.
func BenchmarkHealthCheck(b *testing.B) {
	id := generateLoadIdentity(b, identity.NodeTypeCoordinator)
	mgr, err := ergors.New(loadBenchConfig(b, id))
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}
	defer mgr.Stop()

	if err := mgr.Start(context.Background()); err != nil {
		b.Fatalf("Start failed: %v", err)
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = mgr.IsHealthy()
	}
}

// BenchmarkReadinessChecks measures detailed readiness check performance.
func BenchmarkReadinessChecks(b *testing.B) {
	id := generateLoadIdentity(b, identity.NodeTypeCoordinator)
	mgr, err := ergors.New(loadBenchConfig(b, id))
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}
	defer mgr.Stop()

	if err := mgr.Start(context.Background()); err != nil {
		b.Fatalf("Start failed: %v", err)
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = mgr.ReadinessChecks()
	}
}

// BenchmarkSessionKeyDerivation measures the full X25519+HKDF session
// key derivation between two keyrings.
func BenchmarkSessionKeyDerivation(b *testing.B) {
	_, priv1, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		b.Fatalf("failed to generate key: %v", err)
	}
	pub2, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		b.Fatalf("failed to generate key: %v", err)
	}

	kr, err := crypto.NewKeyring(priv1, []byte("bench"))
	if err != nil {
		b.Fatalf("NewKeyring failed: %v", err)
	}
	defer kr.Close()

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		key, err := kr.SessionKey(pub2)
		if err != nil {
			b.Fatalf("SessionKey failed: %v", err)
		}
		crypto.SecureZero(key)
	}
}

// BenchmarkSessionCipherCached measures the cached cipher lookup path.
func BenchmarkSessionCipherCached(b *testing.B) {
	_, priv1, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		b.Fatalf("failed to generate key: %v", err)
	}
	pub2, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		b.Fatalf("failed to generate key: %v", err)
	}

	kr, err := crypto.NewKeyring(priv1, []byte("bench"))
	if err != nil {
		b.Fatalf("NewKeyring failed: %v", err)
	}
	defer kr.Close()

	// Prime the cache
	if _, err := kr.SessionCipher(pub2); err != nil {
		b.Fatalf("SessionCipher failed: %v", err)
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := kr.SessionCipher(pub2); err != nil {
			b.Fatalf("SessionCipher failed: %v", err)
		}
	}
}

// BenchmarkAddressBook measures address book operations.
func BenchmarkAddressBook_Record(b *testing.B) {
	book, err := addressbook.New(b.TempDir() + "/addresses.json")
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}
	defer book.Close()

	testAddr, _ := multiaddr.NewMultiaddr("/ip4/127.0.0.1/tcp/12345")

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		nodeID := benchNodeID(i)
		peerID := peer.ID(fmt.Sprintf("addr-book-peer-%d", i))
		_ = book.Record(nodeID, peerID, "executor", nil, []multiaddr.Multiaddr{testAddr})
	}
}

func BenchmarkAddressBook_List(b *testing.B) {
	book, err := addressbook.New(b.TempDir() + "/addresses.json")
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}
	defer book.Close()

	testAddr, _ := multiaddr.NewMultiaddr("/ip4/127.0.0.1/tcp/12345")

	// Pre-populate
	for i := 0; i < 100; i++ {
		nodeID := benchNodeID(i)
		peerID := peer.ID(fmt.Sprintf("addr-book-peer-%d", i))
		_ = book.Record(nodeID, peerID, "executor", nil, []multiaddr.Multiaddr{testAddr})
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = book.List()
	}
}

// TestLoadScaling tests how membership performance scales with node count.
// This is a test (not a benchmark) that produces a performance report.
func TestLoadScaling(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping load scaling test in short mode")
	}

	nodeCounts := []int{10, 50, 100, 250, 500, 1000}

	t.Log("=== Load Scaling Report ===")
	t.Log("")

	for _, numNodes := range nodeCounts {
		topo := topology.New()

		// Time adding N nodes
		start := time.Now()
		for i := 0; i < numNodes; i++ {
			topo.AddNode(topology.NodeInfo{
				NodeID:   benchNodeID(i),
				NodeType: identity.NodeType(i%4 + 1),
				Online:   true,
			})
		}
		addDuration := time.Since(start)

		// Time listing all nodes
		start = time.Now()
		const listIterations = 100
		for i := 0; i < listIterations; i++ {
			_ = topo.Nodes()
		}
		listDuration := time.Since(start) / listIterations

		// Time stats computation
		start = time.Now()
		const statsIterations = 100
		for i := 0; i < statsIterations; i++ {
			_ = topo.Stats()
		}
		statsDuration := time.Since(start) / statsIterations

		t.Logf("Nodes: %4d | Add all: %v | List: %v | Stats: %v",
			numNodes, addDuration, listDuration, statsDuration)
	}

	t.Log("")
	t.Log("=== Memory Profile ===")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	t.Logf("Alloc: %d MB | TotalAlloc: %d MB | Sys: %d MB | NumGC: %d",
		m.Alloc/1024/1024, m.TotalAlloc/1024/1024, m.Sys/1024/1024, m.NumGC)
}

// TestConcurrentLoadThroughput measures throughput under concurrent load.
// This test measures address book operations without triggering actual connections.
func TestConcurrentLoadThroughput(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping throughput test in short mode")
	}

	book, err := addressbook.New(t.TempDir() + "/addresses.json")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer book.Close()

	testAddr, _ := multiaddr.NewMultiaddr("/ip4/127.0.0.1/tcp/12345")

	// Test with different concurrency levels
	// Note: ops are kept low due to file-based persistence overhead
	concurrencyLevels := []int{1, 2, 4, 8}
	const opsPerWorker = 50

	t.Log("=== Concurrent Throughput Report (Address Book) ===")
	t.Log("")

	for _, numWorkers := range concurrencyLevels {
		// Clear existing entries
		_ = book.Clear()

		var ops atomic.Int64
		var wg sync.WaitGroup
		wg.Add(numWorkers)

		start := time.Now()

		for w := 0; w < numWorkers; w++ {
			go func(workerID int) {
				defer wg.Done()
				for i := 0; i < opsPerWorker; i++ {
					nodeID := benchNodeID(workerID*opsPerWorker + i)
					peerID := peer.ID(fmt.Sprintf("throughput-%d-%d", workerID, i))
					_ = book.Record(nodeID, peerID, "executor", nil, []multiaddr.Multiaddr{testAddr})
					ops.Add(1)
					_ = book.Remove(nodeID)
					ops.Add(1)
				}
			}(w)
		}

		wg.Wait()
		duration := time.Since(start)

		opsPerSec := float64(ops.Load()) / duration.Seconds()
		t.Logf("Workers: %2d | Total ops: %6d | Duration: %v | Throughput: %.0f ops/sec",
			numWorkers, ops.Load(), duration, opsPerSec)
	}
}
