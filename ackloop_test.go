// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamer_test

import (
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/streamer"
)

// ackCollector times out on reads and funnels sent acks into a channel.
type ackCollector struct {
	ackID int
	acks  chan []byte

	mu      sync.Mutex
	sendErr error
}

func (m *ackCollector) ReadWithTimeout(bufferID int, p []byte, timeout time.Duration) (int, error) {
	time.Sleep(timeout)
	return 0, streamer.ErrWouldBlock
}

func (m *ackCollector) SendData(bufferID int, p []byte, doCopy bool) error {
	m.mu.Lock()
	err := m.sendErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if bufferID != m.ackID {
		return nil
	}
	select {
	case m.acks <- append([]byte(nil), p...):
	default:
	}
	return nil
}

func TestAckEmittedWithinDeadline(t *testing.T) {
	mgr := &ackCollector{ackID: 13, acks: make(chan []byte, 16)}
	rec := &recorder{defaultCap: 8}
	r, err := streamer.New(mgr, 125, 13, rec.callback, make([]byte, 8),
		streamer.WithMaxAckDelay(2*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	done := make(chan struct{})
	go func() {
		r.RunAckLoop()
		close(done)
	}()

	var pkt []byte
	select {
	case pkt = <-mgr.acks:
	case <-time.After(time.Second):
		t.Fatal("no ack within deadline")
	}
	if len(pkt) != streamer.AckPacketLen {
		t.Fatalf("ack length: got %d, want %d", len(pkt), streamer.AckPacketLen)
	}
	var ack streamer.AckPacket
	if err := ack.Decode(pkt); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.FrameNumber != 0 || ack.HighPacketsAck != 0 || ack.LowPacketsAck != 0 {
		t.Fatalf("idle ack not empty: %+v", ack)
	}

	r.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ack loop did not stop")
	}
}

func TestAckLoopSurvivesSendErrors(t *testing.T) {
	mgr := &ackCollector{ackID: 13, acks: make(chan []byte, 16)}
	mgr.sendErr = streamer.ErrWouldBlock // any error: the loop must keep going
	rec := &recorder{defaultCap: 8}
	r, err := streamer.New(mgr, 125, 13, rec.callback, make([]byte, 8),
		streamer.WithMaxAckDelay(time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	done := make(chan struct{})
	go func() {
		r.RunAckLoop()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	mgr.mu.Lock()
	mgr.sendErr = nil
	mgr.mu.Unlock()

	select {
	case <-mgr.acks:
	case <-time.After(time.Second):
		t.Fatal("no ack after send errors cleared")
	}
	r.Stop()
	<-done
}

func TestStopBoundsLoopExit(t *testing.T) {
	mgr := &ackCollector{ackID: 13, acks: make(chan []byte, 16)}
	rec := &recorder{defaultCap: 8}
	r, err := streamer.New(mgr, 125, 13, rec.callback, make([]byte, 8),
		streamer.WithReadTimeout(50*time.Millisecond),
		streamer.WithMaxAckDelay(2*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	done := make(chan struct{})
	go func() {
		r.RunDataLoop()
		r.RunAckLoop()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	start := time.Now()
	r.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loops did not exit after Stop")
	}
	// Read timeout plus ack delay, with scheduling slack.
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("loops took %v to exit", elapsed)
	}
	if n := len(rec.of(streamer.CauseCancel)); n != 1 {
		t.Fatalf("cancel events: got %d, want 1", n)
	}
}
