package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/permissionlessweb/ergors/internal/pool"
	"github.com/permissionlessweb/ergors/pkg/crypto"
	"github.com/permissionlessweb/ergors/pkg/wire"
)

// maxFrameOverhead is the slack allowed above MaxMessageSize for the
// nonce and authentication tag on encrypted frames.
const maxFrameOverhead = 128

var errStreamClosed = errors.New("transport: channel stream closed")

// Inbound is one frame received on a channel, after decryption and
// rate admission. Data is the raw envelope bytes; decoding is the
// caller's concern.
type Inbound struct {
	NodeID     string
	PeerID     peer.ID
	Channel    wire.Channel
	Data       []byte
	ReceivedAt time.Time
}

// channelAD returns the additional data binding frames to their
// channel. A frame sealed for one channel never opens on another.
func channelAD(ch wire.Channel) []byte {
	return []byte{byte(ch)}
}

// channelStream carries frames for one channel between the local node
// and one peer. Frames are Cramberry length-delimited; with encryption
// enabled each frame is sealed with the session cipher bound to the
// channel id. Reads run in a background goroutine; writes serialize on
// a mutex.
type channelStream struct {
	ch     wire.Channel
	nodeID string
	peerID peer.ID
	stream network.Stream
	cipher *crypto.Cipher
	ad     []byte

	reader  *cramberry.MessageIterator
	writer  *cramberry.StreamWriter
	writeMu sync.Mutex

	deliver func(Inbound)
	ctx     context.Context
	cancel  context.CancelFunc

	closed   bool
	closeMu  sync.Mutex
	closeErr error
}

// newChannelStream wraps s as the channel stream for (sess, ch) and
// starts its read goroutine. deliver must not block.
func newChannelStream(ctx context.Context, ch wire.Channel, sess *Session, s network.Stream, deliver func(Inbound)) *channelStream {
	streamCtx, cancel := context.WithCancel(ctx)
	cs := &channelStream{
		ch:      ch,
		nodeID:  sess.NodeID,
		peerID:  sess.PeerID,
		stream:  s,
		cipher:  sess.cipher,
		ad:      channelAD(ch),
		reader:  cramberry.NewMessageIterator(s),
		writer:  cramberry.NewStreamWriter(s),
		deliver: deliver,
		ctx:     streamCtx,
		cancel:  cancel,
	}
	go cs.readLoop()
	return cs
}

// send seals and writes one frame. Safe for concurrent use. The
// sealed copy lives in a pooled scratch buffer that is reclaimed once
// the frame hits the stream.
func (cs *channelStream) send(data []byte) error {
	cs.closeMu.Lock()
	if cs.closed {
		cs.closeMu.Unlock()
		return errStreamClosed
	}
	cs.closeMu.Unlock()

	payload := data
	var scratch *[]byte
	if cs.cipher != nil {
		scratch = pool.GetBuffer(len(data) + crypto.NonceSize + crypto.TagSize)
		sealed, err := cs.cipher.EncryptInto(*scratch, data, cs.ad)
		if err != nil {
			pool.PutBuffer(scratch)
			return fmt.Errorf("transport: encrypt frame: %w", err)
		}
		*scratch = sealed
		payload = sealed
	}

	cs.writeMu.Lock()
	werr := cs.writer.WriteDelimited(&payload)
	var ferr error
	if werr == nil {
		ferr = cs.writer.Flush()
	}
	cs.writeMu.Unlock()

	if scratch != nil {
		pool.PutBuffer(scratch)
	}
	if werr != nil {
		return fmt.Errorf("transport: write frame: %w", werr)
	}
	if ferr != nil {
		return fmt.Errorf("transport: flush frame: %w", ferr)
	}
	return nil
}

// readLoop reads, opens, and delivers frames until the stream dies.
func (cs *channelStream) readLoop() {
	defer cs.markClosed(nil)

	for {
		select {
		case <-cs.ctx.Done():
			return
		default:
		}

		var frame []byte
		if !cs.reader.Next(&frame) {
			if err := cs.reader.Err(); err != nil {
				if err == io.EOF {
					return
				}
				cs.markClosed(fmt.Errorf("transport: read frame: %w", err))
				return
			}
			return
		}

		if len(frame) > wire.MaxMessageSize+maxFrameOverhead {
			// A correct peer never sends an oversized frame.
			continue
		}

		data := frame
		if cs.cipher != nil {
			plain, err := cs.cipher.Decrypt(frame, cs.ad)
			if err != nil {
				// Tampered or misdirected frame. Drop it and keep the
				// stream; frames seal independently.
				continue
			}
			data = plain
		}
		if len(data) > wire.MaxMessageSize {
			continue
		}

		cs.deliver(Inbound{
			NodeID:     cs.nodeID,
			PeerID:     cs.peerID,
			Channel:    cs.ch,
			Data:       data,
			ReceivedAt: time.Now(),
		})
	}
}

// Close stops the read goroutine and closes the underlying stream.
func (cs *channelStream) Close() error {
	cs.closeMu.Lock()
	if cs.closed {
		err := cs.closeErr
		cs.closeMu.Unlock()
		return err
	}
	cs.closeMu.Unlock()

	cs.cancel()
	err := cs.stream.Close()
	cs.markClosed(err)
	return err
}

func (cs *channelStream) markClosed(err error) {
	cs.closeMu.Lock()
	defer cs.closeMu.Unlock()
	if !cs.closed {
		cs.closed = true
		cs.closeErr = err
	}
}

// IsClosed reports whether the stream is closed.
func (cs *channelStream) IsClosed() bool {
	cs.closeMu.Lock()
	defer cs.closeMu.Unlock()
	return cs.closed
}
