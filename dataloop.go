// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamer

import (
	"errors"

	"go.uber.org/zap"
)

// frameGapCeiling bounds the reported skipped-frame count. Frame numbers wrap
// at 16 bits; a modular gap above this is reordering noise, not loss.
const frameGapCeiling = 1 << 15

// missedFrames returns the number of frames lost between the last reported
// frame and the current one, in 16-bit modular arithmetic.
func missedFrames(lastReported, current uint16) int {
	missed := int(current-lastReported) - 1
	if missed < 0 || missed > frameGapCeiling {
		return 0
	}
	return missed
}

// RunDataLoop consumes fragment packets until Stop is called. It blocks and
// is meant to be run on its own goroutine. Frame completion, buffer growth,
// and the final cancel are reported through the frame callback on this
// goroutine.
func (r *Reader) RunDataLoop() {
	recvData := make([]byte, r.fragmentSize+DataHeaderLen)
	var header DataHeader
	var lastReported uint16
	reportedAny := false
	skipCurrentFrame := false

	r.dataRunning.Store(true)
	defer r.dataRunning.Store(false)
	r.log.Debug("stream data loop running")

	for !r.stopRequested.Load() {
		recvSize, err := r.manager.ReadWithTimeout(r.dataBufferID, recvData, r.readTimeout)
		if err != nil {
			if !errors.Is(err, ErrWouldBlock) {
				r.log.Error("reading stream data", zap.Error(err))
			}
			continue
		}
		if recvSize < DataHeaderLen {
			r.log.Error("dropping runt fragment packet", zap.Int("size", recvSize))
			continue
		}
		if err := header.Decode(recvData[:recvSize]); err != nil {
			r.log.Error("decoding fragment header", zap.Error(err))
			continue
		}
		if int(header.FragmentNumber) >= MaxFragmentsPerFrame {
			r.log.Error("dropping fragment with out-of-range index",
				zap.Uint8("fragment", header.FragmentNumber))
			continue
		}

		r.ackMu.Lock()
		if header.FrameNumber != r.ackPacket.FrameNumber {
			r.eff.rotate()
			skipCurrentFrame = false
			r.size = 0
			if missing := r.ackPacket.CountNotSet(int(header.FragmentsPerFrame)); missing != 0 {
				r.log.Debug("dropping a frame",
					zap.Uint16("frame", r.ackPacket.FrameNumber),
					zap.Int("missingFragments", missing))
			}
			r.ackPacket.FrameNumber = header.FrameNumber
			r.ackPacket.Reset()
		}
		packetWasAlreadyAck := r.ackPacket.FlagIsSet(header.FragmentNumber)
		r.ackPacket.SetFlag(header.FragmentNumber)
		r.eff.observe(!packetWasAlreadyAck)
		r.ackMu.Unlock()

		r.signalAck()

		cpIndex := int(header.FragmentNumber) * r.fragmentSize
		cpSize := recvSize - DataHeaderLen
		endIndex := cpIndex + cpSize

		// The host may return a buffer that is still too small; re-test until
		// it fits or the frame is skipped.
		for endIndex > len(r.buf) && !skipCurrentFrame {
			next := r.callback(CauseFrameTooSmall, r.buf[:r.size], 0, false)
			next = next[:cap(next)]
			if len(next) >= r.size && len(next) > 0 {
				copy(next, r.buf[:r.size])
			} else {
				skipCurrentFrame = true
			}
			r.callback(CauseCopyComplete, r.buf[:r.size], 0, false)
			r.buf = next
			if r.size > len(r.buf) {
				r.size = len(r.buf)
			}
		}
		if skipCurrentFrame {
			continue
		}

		// A duplicate is acked but never rewritten: the first-received payload
		// wins over a possibly-corrupted retransmission.
		if !packetWasAlreadyAck {
			copy(r.buf[cpIndex:endIndex], recvData[DataHeaderLen:recvSize])
		}
		if endIndex > r.size {
			r.size = endIndex
		}

		r.ackMu.Lock()
		if r.ackPacket.AllFlagsSet(int(header.FragmentsPerFrame)) &&
			(!reportedAny || header.FrameNumber != lastReported) {
			missed := 0
			if reportedAny {
				missed = missedFrames(lastReported, header.FrameNumber)
			}
			isFlush := header.FrameFlags&FlagFlushFrame != 0
			r.log.Debug("ack all in frame", zap.Uint16("frame", header.FrameNumber))
			if missed != 0 {
				r.log.Debug("missed frames", zap.Int("count", missed))
			}
			reportedAny = true
			lastReported = header.FrameNumber
			next := r.callback(CauseFrameComplete, r.buf[:r.size], missed, isFlush)
			r.buf = next[:cap(next)]
			if r.size > len(r.buf) {
				r.size = len(r.buf)
			}
		}
		r.ackMu.Unlock()
	}

	r.callback(CauseCancel, r.buf[:r.size], 0, false)
	r.log.Debug("stream data loop ended")
}
