// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package netmgr provides a datagram-backed network manager multiplexing
// several logical buffers over one packet connection.
//
// Semantics:
//   - Each datagram is a 1-byte buffer ID followed by the payload. Datagram
//     transports preserve boundaries, so one datagram is one packet and no
//     further framing is needed.
//   - Input buffers queue inbound payloads per ID. An overwriting buffer
//     drops the oldest queued packet when full (latest video data wins); a
//     non-overwriting buffer drops the incoming one.
//   - Timed reads return iox.ErrWouldBlock when nothing arrives in time, as
//     an expected control-flow signal rather than a failure.
package netmgr

import (
	"errors"
	"net"
	"sync"
	"time"

	"code.hybscloud.com/iox"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	idPrefixLen    = 1
	maxDatagramLen = 65535
	maxBufferID    = 255
)

// Direction tells which way a buffer's packets flow.
type Direction uint8

const (
	// Input buffers carry packets from the peer to this host.
	Input Direction = 1 + iota
	// Output buffers carry packets from this host to the peer.
	Output
)

// BufferParam declares one logical buffer.
type BufferParam struct {
	ID  int // 0..255, unique per manager
	Dir Direction

	// QueueLen is the inbound queue depth; Input only.
	QueueLen int

	// Overwrite drops the oldest queued packet when the queue is full
	// instead of the incoming one; Input only.
	Overwrite bool
}

// DataBufferParams returns the buffer declaration used for inbound video
// fragment data: a deep overwriting queue, so a stalled consumer sees the
// freshest fragments.
func DataBufferParams(id int) BufferParam {
	return BufferParam{ID: id, Dir: Input, QueueLen: 128, Overwrite: true}
}

// AckBufferParams returns the buffer declaration used for outbound acks.
func AckBufferParams(id int) BufferParam {
	return BufferParam{ID: id, Dir: Output}
}

type inputBuffer struct {
	queue     chan []byte
	overwrite bool
	dropped   atomic.Int64
}

// deliver queues p, applying the overwrite policy. It reports whether p was
// kept.
func (b *inputBuffer) deliver(p []byte) bool {
	for {
		select {
		case b.queue <- p:
			return true
		default:
		}
		if !b.overwrite {
			b.dropped.Inc()
			return false
		}
		select {
		case <-b.queue:
			b.dropped.Inc()
		default:
		}
	}
}

// Manager multiplexes logical buffers over one net.PacketConn toward a fixed
// peer. It implements the reader's Manager contract.
type Manager struct {
	conn net.PacketConn
	peer net.Addr
	log  *zap.Logger

	inputs  map[int]*inputBuffer
	outputs map[int]struct{}

	closeOnce sync.Once
	closedCh  chan struct{}
}

// New wraps conn with buffer multiplexing toward peer and starts the demux
// goroutine. The conn is owned by the manager from here on and is closed by
// Close.
func New(conn net.PacketConn, peer net.Addr, params []BufferParam, opts ...Option) (*Manager, error) {
	if conn == nil || peer == nil || len(params) == 0 {
		return nil, ErrInvalidArgument
	}
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	m := &Manager{
		conn:     conn,
		peer:     peer,
		log:      o.Logger,
		inputs:   make(map[int]*inputBuffer),
		outputs:  make(map[int]struct{}),
		closedCh: make(chan struct{}),
	}
	for _, p := range params {
		if p.ID < 0 || p.ID > maxBufferID {
			return nil, ErrInvalidArgument
		}
		if _, dup := m.inputs[p.ID]; dup {
			return nil, ErrInvalidArgument
		}
		if _, dup := m.outputs[p.ID]; dup {
			return nil, ErrInvalidArgument
		}
		switch p.Dir {
		case Input:
			if p.QueueLen <= 0 {
				return nil, ErrInvalidArgument
			}
			m.inputs[p.ID] = &inputBuffer{
				queue:     make(chan []byte, p.QueueLen),
				overwrite: p.Overwrite,
			}
		case Output:
			m.outputs[p.ID] = struct{}{}
		default:
			return nil, ErrInvalidArgument
		}
	}
	go m.demux()
	return m, nil
}

// demux fans inbound datagrams out to their buffers until the conn closes.
func (m *Manager) demux() {
	buf := make([]byte, maxDatagramLen)
	for {
		n, _, err := m.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-m.closedCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			m.log.Error("reading datagram", zap.Error(err))
			continue
		}
		if n < idPrefixLen {
			m.log.Warn("dropping runt datagram")
			continue
		}
		id := int(buf[0])
		b, ok := m.inputs[id]
		if !ok {
			m.log.Warn("dropping datagram for unknown buffer", zap.Int("buffer", id))
			continue
		}
		payload := make([]byte, n-idPrefixLen)
		copy(payload, buf[idPrefixLen:n])
		if !b.deliver(payload) {
			m.log.Debug("input queue full, dropping packet",
				zap.Int("buffer", id), zap.Int64("dropped", b.dropped.Load()))
		}
	}
}

// ReadWithTimeout copies the next packet queued on bufferID into p and
// returns its length. It returns iox.ErrWouldBlock when nothing arrives
// within timeout, io.ErrShortBuffer when the packet does not fit (the packet
// is consumed), and net.ErrClosed after Close.
func (m *Manager) ReadWithTimeout(bufferID int, p []byte, timeout time.Duration) (int, error) {
	b, ok := m.inputs[bufferID]
	if !ok {
		return 0, ErrUnknownBuffer
	}
	select {
	case <-m.closedCh:
		return 0, net.ErrClosed
	default:
	}
	select {
	case msg := <-b.queue:
		return copyPacket(p, msg)
	default:
	}
	if timeout <= 0 {
		return 0, iox.ErrWouldBlock
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-b.queue:
		return copyPacket(p, msg)
	case <-timer.C:
		return 0, iox.ErrWouldBlock
	case <-m.closedCh:
		return 0, net.ErrClosed
	}
}

func copyPacket(dst, src []byte) (int, error) {
	if len(src) > len(dst) {
		return 0, errShortPacketBuffer
	}
	return copy(dst, src), nil
}

// SendData transmits p on bufferID toward the peer. The doCopy flag is
// accepted for contract parity; the payload is never retained past return.
func (m *Manager) SendData(bufferID int, p []byte, doCopy bool) error {
	_ = doCopy
	if _, ok := m.outputs[bufferID]; !ok {
		return ErrUnknownBuffer
	}
	if len(p) > maxDatagramLen-idPrefixLen {
		return ErrTooLong
	}
	pkt := make([]byte, idPrefixLen+len(p))
	pkt[0] = byte(bufferID)
	copy(pkt[idPrefixLen:], p)
	_, err := m.conn.WriteTo(pkt, m.peer)
	return err
}

// LocalAddr returns the local address the manager receives on.
func (m *Manager) LocalAddr() net.Addr {
	return m.conn.LocalAddr()
}

// Dropped returns how many inbound packets have been dropped on bufferID so
// far, or 0 for an unknown or output buffer.
func (m *Manager) Dropped(bufferID int) int64 {
	b, ok := m.inputs[bufferID]
	if !ok {
		return 0
	}
	return b.dropped.Load()
}

// Close stops the demux goroutine and closes the underlying conn. Pending
// and subsequent reads fail with net.ErrClosed.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.closedCh)
		err = m.conn.Close()
	})
	return err
}
