package fuzz

import (
	"bytes"
	"testing"

	"github.com/blockberries/cramberry/pkg/cramberry"
)

// helloWire mirrors the session hello envelope, tag for tag, so the
// fuzzer exercises the same decode path a listener runs on the
// handshake protocol stream.
type helloWire struct {
	Version      uint32   `cramberry:"1,required"`
	NodeID       string   `cramberry:"2,required"`
	PublicKey    []byte   `cramberry:"3,required"`
	Role         int32    `cramberry:"4"`
	Capabilities []string `cramberry:"5"`
	Timestamp    uint64   `cramberry:"6"`
	Signature    []byte   `cramberry:"7"`
}

// laxHello shares helloWire's tag numbers without the required
// markers. It exists to build partial seeds that the strict decoder
// must reject without panicking.
type laxHello struct {
	Version   uint32 `cramberry:"1"`
	NodeID    string `cramberry:"2"`
	PublicKey []byte `cramberry:"3"`
}

// FuzzHelloParsing tests parsing of hello envelopes with malformed data.
// This simulates what happens when a malicious peer opens the handshake
// stream and sends corrupted bytes.
func FuzzHelloParsing(f *testing.F) {
	// Add seed corpus

	// Valid hello
	validMsg := &helloWire{
		Version:      1,
		NodeID:       fuzzNodeID(0x42),
		PublicKey:    make([]byte, 32),
		Role:         2,
		Capabilities: []string{"gpu", "arm64"},
		Timestamp:    1700000000,
		Signature:    make([]byte, 64),
	}
	validData, err := cramberry.Marshal(validMsg)
	if err != nil {
		f.Fatalf("marshal hello seed: %v", err)
	}
	f.Add(validData)

	// Partial hellos missing required fields
	onlyVersion, _ := cramberry.Marshal(&laxHello{Version: 1})
	f.Add(onlyVersion)
	noKey, _ := cramberry.Marshal(&laxHello{Version: 1, NodeID: fuzzNodeID(0x01)})
	f.Add(noKey)

	// Oversized public key
	largeKey := &helloWire{
		Version:   1,
		NodeID:    fuzzNodeID(0x02),
		PublicKey: make([]byte, 10000),
	}
	largeData, _ := cramberry.Marshal(largeKey)
	f.Add(largeData)

	// Many capabilities
	manyCaps := &helloWire{
		Version:      1,
		NodeID:       fuzzNodeID(0x03),
		PublicKey:    make([]byte, 32),
		Capabilities: make([]string, 100),
	}
	for i := range manyCaps.Capabilities {
		manyCaps.Capabilities[i] = "cap"
	}
	manyData, _ := cramberry.Marshal(manyCaps)
	f.Add(manyData)

	// Random garbage
	f.Add([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	f.Add([]byte{})
	f.Add([]byte{0xFF, 0xFF, 0xFF})
	f.Add([]byte{0x00})

	// Truncated data
	if len(validData) > 10 {
		f.Add(validData[:10])
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		// This should not panic regardless of input
		var msg helloWire
		_ = cramberry.Unmarshal(data, &msg)
	})
}

// FuzzHelloDelimited tests delimited hello reading from a stream.
func FuzzHelloDelimited(f *testing.F) {
	// Helper to create a delimited hello
	createDelimited := func(msg *helloWire) []byte {
		data, err := cramberry.Marshal(msg)
		if err != nil {
			return nil
		}
		var buf bytes.Buffer
		writer := cramberry.NewStreamWriter(&buf)
		writer.WriteMessage(data)
		_ = writer.Flush()
		return buf.Bytes()
	}

	// Add seed corpus
	f.Add(createDelimited(&helloWire{
		Version:   1,
		NodeID:    fuzzNodeID(0x11),
		PublicKey: make([]byte, 32),
	}))
	f.Add(createDelimited(&helloWire{
		Version:   1,
		NodeID:    fuzzNodeID(0x12),
		PublicKey: make([]byte, 32),
		Signature: make([]byte, 64),
	}))

	// Malformed data
	f.Add([]byte{})
	f.Add([]byte{0x05})                   // length but no data
	f.Add([]byte{0x80})                   // truncated varint
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF}) // huge length

	f.Fuzz(func(t *testing.T, data []byte) {
		reader := cramberry.NewStreamReader(bytes.NewReader(data))

		// Read the delimited frame
		msgData := reader.ReadMessage()
		if reader.Err() != nil {
			return // Expected for malformed input
		}

		// Try to parse as a hello
		var msg helloWire
		_ = cramberry.Unmarshal(msgData, &msg)
	})
}

// FuzzHelloRoundTrip tests round-trip encoding of hello envelopes.
func FuzzHelloRoundTrip(f *testing.F) {
	f.Add(uint32(1), fuzzNodeID(0x21), int32(1), uint64(1700000000))
	f.Add(uint32(0), "", int32(0), uint64(0))
	f.Add(uint32(4294967295), "not-a-node-id-!@#$%", int32(-5), uint64(18446744073709551615))

	f.Fuzz(func(t *testing.T, version uint32, nodeID string, role int32, timestamp uint64) {
		original := helloWire{
			Version:   version,
			NodeID:    nodeID,
			PublicKey: []byte{1, 2, 3, 4},
			Role:      role,
			Timestamp: timestamp,
			Signature: []byte{5, 6, 7, 8},
		}

		// Marshal
		data, err := cramberry.Marshal(&original)
		if err != nil {
			return // Skip invalid inputs
		}

		// Unmarshal
		var decoded helloWire
		err = cramberry.Unmarshal(data, &decoded)
		if err != nil {
			return // Required-field validation may reject partial values
		}

		// Verify
		if original.Version != decoded.Version {
			t.Errorf("version mismatch: got %d, want %d", decoded.Version, original.Version)
		}
		if original.NodeID != decoded.NodeID {
			t.Errorf("node id mismatch: got %q, want %q", decoded.NodeID, original.NodeID)
		}
		if original.Role != decoded.Role {
			t.Errorf("role mismatch: got %d, want %d", decoded.Role, original.Role)
		}
		if original.Timestamp != decoded.Timestamp {
			t.Errorf("timestamp mismatch: got %d, want %d", decoded.Timestamp, original.Timestamp)
		}
		if !bytes.Equal(original.PublicKey, decoded.PublicKey) {
			t.Error("publicKey mismatch")
		}
		if !bytes.Equal(original.Signature, decoded.Signature) {
			t.Error("signature mismatch")
		}
	})
}

// FuzzHelloCryptoMaterial tests that key and signature bytes survive
// encoding unchanged regardless of length.
func FuzzHelloCryptoMaterial(f *testing.F) {
	// Add seed corpus with various key sizes
	f.Add(make([]byte, 1), make([]byte, 0))   // minimal
	f.Add(make([]byte, 32), make([]byte, 64)) // typical Ed25519
	f.Add(make([]byte, 64), make([]byte, 128))

	f.Fuzz(func(t *testing.T, pubKey, signature []byte) {
		if len(pubKey) == 0 {
			return // required field
		}
		msg := &helloWire{
			Version:   1,
			NodeID:    fuzzNodeID(0x31),
			PublicKey: pubKey,
			Signature: signature,
		}

		// Marshal
		data, err := cramberry.Marshal(msg)
		if err != nil {
			return // Skip if encoding fails (e.g., size limits)
		}

		// Unmarshal
		var decoded helloWire
		err = cramberry.Unmarshal(data, &decoded)
		if err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}

		// Verify crypto material preserved
		if !bytes.Equal(pubKey, decoded.PublicKey) {
			t.Errorf("publicKey mismatch: lengths %d vs %d", len(pubKey), len(decoded.PublicKey))
		}
		if !bytes.Equal(signature, decoded.Signature) {
			t.Errorf("signature mismatch: lengths %d vs %d", len(signature), len(decoded.Signature))
		}
	})
}
