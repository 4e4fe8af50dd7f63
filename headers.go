// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamer

import (
	"encoding/binary"
	"io"
	"math/bits"
)

const (
	// DataHeaderLen is the on-wire length of a fragment header.
	DataHeaderLen = 5

	// AckPacketLen is the on-wire length of an ack packet.
	AckPacketLen = 18

	// MaxFragmentsPerFrame is the capacity of the acknowledge set. The
	// fragment index field can name more, but such fragments are dropped.
	MaxFragmentsPerFrame = 128
)

// FlagFlushFrame marks a keyframe/resync boundary in DataHeader.FrameFlags.
const FlagFlushFrame uint8 = 1 << 0

// DataHeader is the fixed header preceding each fragment payload.
//
// Wire layout, little-endian: frameNumber uint16, fragmentNumber uint8,
// fragmentsPerFrame uint8, frameFlags uint8. The layout is frozen by
// compatibility with the sender.
type DataHeader struct {
	FrameNumber       uint16
	FragmentNumber    uint8
	FragmentsPerFrame uint8
	FrameFlags        uint8
}

// Encode writes the header into p and returns DataHeaderLen.
func (h DataHeader) Encode(p []byte) (int, error) {
	if len(p) < DataHeaderLen {
		return 0, io.ErrShortBuffer
	}
	binary.LittleEndian.PutUint16(p[0:2], h.FrameNumber)
	p[2] = h.FragmentNumber
	p[3] = h.FragmentsPerFrame
	p[4] = h.FrameFlags
	return DataHeaderLen, nil
}

// Decode parses the header from the first DataHeaderLen bytes of p.
func (h *DataHeader) Decode(p []byte) error {
	if len(p) < DataHeaderLen {
		return io.ErrUnexpectedEOF
	}
	h.FrameNumber = binary.LittleEndian.Uint16(p[0:2])
	h.FragmentNumber = p[2]
	h.FragmentsPerFrame = p[3]
	h.FrameFlags = p[4]
	return nil
}

// AckPacket is the per-frame acknowledge state.
//
// The high:low concatenation is a 128-bit set where bit i reports fragment i
// of FrameNumber: bit (i mod 64) of LowPacketsAck for i < 64, of
// HighPacketsAck otherwise. In memory the halves are host order; conversion
// to little-endian happens only in Encode.
type AckPacket struct {
	FrameNumber    uint16
	HighPacketsAck uint64
	LowPacketsAck  uint64
}

// SetFlag records fragment i as received.
func (a *AckPacket) SetFlag(i uint8) {
	if i < 64 {
		a.LowPacketsAck |= 1 << i
	} else if i < MaxFragmentsPerFrame {
		a.HighPacketsAck |= 1 << (i - 64)
	}
}

// FlagIsSet reports whether fragment i has been received.
func (a *AckPacket) FlagIsSet(i uint8) bool {
	if i < 64 {
		return a.LowPacketsAck&(1<<i) != 0
	}
	if i < MaxFragmentsPerFrame {
		return a.HighPacketsAck&(1<<(i-64)) != 0
	}
	return false
}

// Reset clears the whole set.
func (a *AckPacket) Reset() {
	a.HighPacketsAck = 0
	a.LowPacketsAck = 0
}

// AllFlagsSet reports whether fragments 0..n-1 have all been received,
// n ≤ MaxFragmentsPerFrame.
func (a *AckPacket) AllFlagsSet(n int) bool {
	if n > MaxFragmentsPerFrame {
		n = MaxFragmentsPerFrame
	}
	if n <= 0 {
		return true
	}
	if n <= 64 {
		mask := maskLow(n)
		return a.LowPacketsAck&mask == mask
	}
	mask := maskLow(n - 64)
	return a.LowPacketsAck == ^uint64(0) && a.HighPacketsAck&mask == mask
}

// CountNotSet returns the number of fragments in 0..n-1 not yet received,
// n ≤ MaxFragmentsPerFrame.
func (a *AckPacket) CountNotSet(n int) int {
	if n > MaxFragmentsPerFrame {
		n = MaxFragmentsPerFrame
	}
	if n <= 0 {
		return 0
	}
	if n <= 64 {
		return n - bits.OnesCount64(a.LowPacketsAck&maskLow(n))
	}
	got := bits.OnesCount64(a.LowPacketsAck) + bits.OnesCount64(a.HighPacketsAck&maskLow(n-64))
	return n - got
}

// maskLow returns a mask with the low n bits set, 1 ≤ n ≤ 64.
func maskLow(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return 1<<n - 1
}

// Encode writes the wire form into p and returns AckPacketLen.
func (a AckPacket) Encode(p []byte) (int, error) {
	if len(p) < AckPacketLen {
		return 0, io.ErrShortBuffer
	}
	binary.LittleEndian.PutUint16(p[0:2], a.FrameNumber)
	binary.LittleEndian.PutUint64(p[2:10], a.HighPacketsAck)
	binary.LittleEndian.PutUint64(p[10:18], a.LowPacketsAck)
	return AckPacketLen, nil
}

// Decode parses the wire form from the first AckPacketLen bytes of p.
func (a *AckPacket) Decode(p []byte) error {
	if len(p) < AckPacketLen {
		return io.ErrUnexpectedEOF
	}
	a.FrameNumber = binary.LittleEndian.Uint16(p[0:2])
	a.HighPacketsAck = binary.LittleEndian.Uint64(p[2:10])
	a.LowPacketsAck = binary.LittleEndian.Uint64(p[10:18])
	return nil
}
