// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package streamer implements the receiver half of a low-latency video
// fragment streaming protocol for lossy datagram links.
//
// Semantics and design:
//   - Frame reassembly: each video frame travels as up to 128 fixed-size
//     fragments, each prefixed by a 5-byte header carrying the frame number,
//     the fragment index, the fragment count, and frame flags. The reader
//     places fragment payloads at fragmentNumber*fragmentSize in a
//     host-supplied buffer and tracks arrival in a 128-bit acknowledge set.
//   - Latency first: only the current frame is tracked. When a fragment for a
//     different frame number arrives, the in-progress frame is abandoned and
//     the state rotates to the new frame. There is no retransmission request
//     for earlier frames.
//   - Buffer handoff: the reader never allocates frame memory. The host hands
//     over the initial buffer at construction, and every later exchange
//     (completion, growth, skip, cancel) happens through the frame callback;
//     the returned slice's capacity is the next buffer's capacity.
//   - Acknowledgement: an ack loop emits the current 128-bit set at least once
//     per MaxAckDelay and is nudged by the data loop on every fragment, so
//     fragment bursts elicit prompt acks.
//
// Wire format: fragment packet = header ∥ payload with header fields
// little-endian (frameNumber uint16, fragmentNumber uint8, fragmentsPerFrame
// uint8, frameFlags uint8); ack packet = frameNumber uint16 ∥ high uint64 ∥
// low uint64, all little-endian, where bit i of the high:low concatenation
// reports fragment i of frameNumber.
package streamer

import "time"

// Tuning constants shared with the sender side of the protocol.
const (
	// DefaultFragmentSize is the maximum fragment payload length in bytes.
	DefaultFragmentSize = 1000

	// DefaultReadTimeout bounds a single blocking read on the data buffer.
	DefaultReadTimeout = 500 * time.Millisecond

	// DefaultMaxAckDelay is the ceiling between two ack emissions.
	DefaultMaxAckDelay = 5 * time.Millisecond
)

// Manager is the framed packet transport consumed by the reader.
//
// Implementations multiplex several logical buffers, identified by small
// integer IDs, over one link. The netmgr package provides a datagram-backed
// implementation.
type Manager interface {
	// ReadWithTimeout copies the next packet queued on bufferID into p and
	// returns its length. When no packet arrives within timeout it returns
	// ErrWouldBlock; a packet larger than p fails with io.ErrShortBuffer and
	// the packet is consumed.
	ReadWithTimeout(bufferID int, p []byte, timeout time.Duration) (int, error)

	// SendData queues p for transmission on bufferID. When doCopy is set the
	// implementation must not retain p after returning.
	SendData(bufferID int, p []byte, doCopy bool) error
}

// Cause tells the frame callback why it is being invoked.
type Cause uint8

const (
	// CauseFrameComplete reports a fully reassembled frame. The host must
	// return the buffer for the next frame; ownership of the returned buffer
	// passes to the reader.
	CauseFrameComplete Cause = iota

	// CauseFrameTooSmall reports that a fragment does not fit in the current
	// buffer. The host returns a larger buffer, or one with capacity below
	// the filled size to skip the rest of the frame.
	CauseFrameTooSmall

	// CauseCopyComplete reports that the previous buffer's content has been
	// carried over (or abandoned on the skip path); the host may reuse it.
	// The return value is ignored.
	CauseCopyComplete

	// CauseCancel reports that the data loop is exiting; the host releases
	// the current buffer. The return value is ignored.
	CauseCancel
)

// String implements fmt.Stringer.
func (c Cause) String() string {
	switch c {
	case CauseFrameComplete:
		return "FrameComplete"
	case CauseFrameTooSmall:
		return "FrameTooSmall"
	case CauseCopyComplete:
		return "CopyComplete"
	case CauseCancel:
		return "Cancel"
	default:
		return "Unknown"
	}
}

// FrameCallback is the single handoff point for frame buffer ownership.
//
// frame is the current buffer truncated to its filled length. skippedFrames
// is the number of frames lost between the previous report and this one
// (CauseFrameComplete only). flushFrame is set when the completed frame is a
// keyframe/resync point. The callback runs on the data loop goroutine and
// should not block indefinitely.
type FrameCallback func(cause Cause, frame []byte, skippedFrames int, flushFrame bool) []byte
