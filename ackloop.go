// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamer

import (
	"time"

	"go.uber.org/zap"
)

// RunAckLoop emits ack packets until Stop is called. It blocks and is meant
// to be run on its own goroutine, alongside RunDataLoop.
//
// Each iteration waits for a data loop nudge with a MaxAckDelay ceiling, so
// every fragment arrival is followed by an ack within that bound while idle
// periods still re-emit the current state.
func (r *Reader) RunAckLoop() {
	sendPacket := make([]byte, AckPacketLen)
	timer := time.NewTimer(r.maxAckDelay)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	r.ackRunning.Store(true)
	defer r.ackRunning.Store(false)
	r.log.Debug("ack sender loop running")

	for !r.stopRequested.Load() {
		timer.Reset(r.maxAckDelay)
		select {
		case <-r.ackSignal:
			if !timer.Stop() {
				<-timer.C
			}
		case <-timer.C:
		}

		r.ackMu.Lock()
		ack := r.ackPacket
		r.ackMu.Unlock()

		if _, err := ack.Encode(sendPacket); err != nil {
			r.log.Error("encoding ack packet", zap.Error(err))
			continue
		}
		if err := r.manager.SendData(r.ackBufferID, sendPacket, true); err != nil {
			r.log.Error("sending ack packet", zap.Error(err))
		}
	}

	r.log.Debug("ack sender loop ended")
}
