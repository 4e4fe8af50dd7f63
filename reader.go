// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamer

import (
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Reader reassembles fragment packets from one data buffer into host-supplied
// frame buffers and acknowledges them on one ack buffer.
//
// The host runs RunDataLoop and RunAckLoop, each on its own goroutine, after
// construction; Stop asks both to exit and Close succeeds once they have.
type Reader struct {
	manager      Manager
	dataBufferID int
	ackBufferID  int
	callback     FrameCallback

	fragmentSize int
	readTimeout  time.Duration
	maxAckDelay  time.Duration
	log          *zap.Logger

	// Current frame storage. Exclusive to the data loop between callback
	// invocations; buf always has len == capacity and size is the filled
	// length.
	buf  []byte
	size int

	// Acknowledge state, shared with the ack loop.
	ackMu     sync.Mutex
	ackPacket AckPacket
	eff       efficiencyWindow

	// One-shot wakeup for the ack loop.
	ackSignal chan struct{}

	stopRequested atomic.Bool
	dataRunning   atomic.Bool
	ackRunning    atomic.Bool
}

// New returns a reader consuming fragment packets on dataBufferID of manager
// and emitting acks on ackBufferID. frameBuffer is the initial frame buffer;
// its capacity is the initial frame capacity and ownership passes to the
// reader until handed back through callback.
func New(manager Manager, dataBufferID, ackBufferID int, callback FrameCallback, frameBuffer []byte, opts ...Option) (*Reader, error) {
	if manager == nil || callback == nil || frameBuffer == nil || cap(frameBuffer) == 0 {
		return nil, ErrInvalidArgument
	}
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	if o.FragmentSize <= 0 || o.ReadTimeout <= 0 || o.MaxAckDelay <= 0 {
		return nil, ErrInvalidArgument
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	r := &Reader{
		manager:      manager,
		dataBufferID: dataBufferID,
		ackBufferID:  ackBufferID,
		callback:     callback,
		fragmentSize: o.FragmentSize,
		readTimeout:  o.ReadTimeout,
		maxAckDelay:  o.MaxAckDelay,
		log:          o.Logger,
		buf:          frameBuffer[:cap(frameBuffer)],
		ackSignal:    make(chan struct{}, 1),
	}
	return r, nil
}

// Stop asks both loops to exit. It returns immediately; the data loop wakes
// within the read timeout and the ack loop within the max ack delay.
func (r *Reader) Stop() {
	r.stopRequested.Store(true)
}

// Close releases the reader. It fails with ErrBusy while either loop is
// still running; call Stop first and wait for the loops to return.
func (r *Reader) Close() error {
	if r.dataRunning.Load() || r.ackRunning.Load() {
		return ErrBusy
	}
	return nil
}

// EstimatedEfficiency returns the fraction of received fragments that carried
// new data, averaged over the last frames. It returns 0 before any fragment
// has been received.
func (r *Reader) EstimatedEfficiency() float64 {
	r.ackMu.Lock()
	total, useful := r.eff.sums()
	r.ackMu.Unlock()
	if total == 0 {
		return 0
	}
	if useful > total {
		r.log.Error("computed efficiency is greater than 1.0",
			zap.Int("useful", useful), zap.Int("total", total))
		return 1
	}
	return float64(useful) / float64(total)
}

// signalAck nudges the ack loop without blocking; a pending nudge coalesces.
func (r *Reader) signalAck() {
	select {
	case r.ackSignal <- struct{}{}:
	default:
	}
}
