// Package pool provides pooled frame buffers for the channel send path.
//
// Sealing a frame needs a scratch buffer that lives only until the
// bytes hit the stream, which makes the allocation a good candidate
// for reuse. Buffers are grouped into size classes matching the
// traffic mix on the four channels: small control frames (announces,
// pings, responses), regular task and state envelopes, and bulk sync
// payloads. Anything larger is allocated directly and left to the GC.
package pool

import (
	"sync"
)

const (
	// ControlFrameSize covers announces, pings, and other small
	// control envelopes after sealing overhead.
	ControlFrameSize = 1024

	// StandardFrameSize covers typical task and state envelopes.
	StandardFrameSize = 8192

	// BulkFrameSize covers sync snapshots and metric blobs. Frames
	// beyond this are rare enough that pooling would just pin memory.
	BulkFrameSize = 131072
)

// BufferPool hands out byte slices with at least a requested capacity
// and takes them back after the frame is written. Separate pools per
// size class keep a burst of large frames from inflating the small
// ones. Safe for concurrent use.
type BufferPool struct {
	control  sync.Pool // up to ControlFrameSize
	standard sync.Pool // up to StandardFrameSize
	bulk     sync.Pool // up to BulkFrameSize
}

// NewBufferPool creates an empty buffer pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		control: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, ControlFrameSize)
				return &buf
			},
		},
		standard: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, StandardFrameSize)
				return &buf
			},
		},
		bulk: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, BulkFrameSize)
				return &buf
			},
		},
	}
}

// Get returns a buffer with length 0 and capacity of at least size.
// Call Put when the frame has been written out.
func (p *BufferPool) Get(size int) *[]byte {
	if size <= ControlFrameSize {
		buf := p.control.Get().(*[]byte)
		*buf = (*buf)[:0]
		return buf
	}
	if size <= StandardFrameSize {
		buf := p.standard.Get().(*[]byte)
		*buf = (*buf)[:0]
		return buf
	}
	if size <= BulkFrameSize {
		buf := p.bulk.Get().(*[]byte)
		*buf = (*buf)[:0]
		return buf
	}
	// Oversized frames skip the pool entirely.
	buf := make([]byte, 0, size)
	return &buf
}

// Put returns a buffer to its size class. The buffer must not be used
// after Put. Buffers above BulkFrameSize are dropped.
func (p *BufferPool) Put(buf *[]byte) {
	if buf == nil {
		return
	}
	c := cap(*buf)
	*buf = (*buf)[:0]

	switch {
	case c <= ControlFrameSize:
		p.control.Put(buf)
	case c <= StandardFrameSize:
		p.standard.Put(buf)
	case c <= BulkFrameSize:
		p.bulk.Put(buf)
	}
}

// global serves the transport send path.
var global = NewBufferPool()

// GetBuffer returns a buffer from the global pool with at least the
// given capacity.
func GetBuffer(size int) *[]byte {
	return global.Get(size)
}

// PutBuffer returns a buffer to the global pool.
func PutBuffer(buf *[]byte) {
	global.Put(buf)
}
