// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command streambench runs the receiver half of the streaming protocol
// against a live sender and reports reception statistics once per second.
//
// It serves frames out of a small rotating buffer pool: a completed frame's
// buffer is recycled once written to the optional output file, and a
// too-small buffer is replaced by the next free one reallocated to twice its
// size.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"code.hybscloud.com/streamer"
	"code.hybscloud.com/streamer/netmgr"
)

const (
	dataBufferID = 125
	ackBufferID  = 13

	nbBuffers          = 3
	nbFramesForAverage = 15

	reportInterval = time.Second
)

type bench struct {
	mu      sync.Mutex
	buffers [nbBuffers][]byte
	isFree  [nbBuffers]bool
	current int

	nbRead    int
	nbSkipped int

	lastRecv time.Time
	lastDt   [nbFramesForAverage]time.Duration
	dtIndex  int

	out *os.File
	log *zap.Logger
}

func newBench(initialSize int, out *os.File, log *zap.Logger) *bench {
	b := &bench{out: out, log: log}
	for i := range b.buffers {
		b.buffers[i] = make([]byte, initialSize)
		b.isFree[i] = true
	}
	return b
}

// markFree returns the buffer backing frame to the pool.
func (b *bench) markFree(frame []byte) {
	if cap(frame) == 0 {
		return
	}
	p := &frame[:1][0]
	for i := range b.buffers {
		if cap(b.buffers[i]) > 0 && &b.buffers[i][:1][0] == p {
			b.isFree[i] = true
		}
	}
}

// nextFreeBuffer lends out the next free pool buffer, or nil when the pool is
// exhausted. With doubled set, the chosen buffer is reallocated to twice its
// previous size first.
func (b *bench) nextFreeBuffer(doubled bool) []byte {
	for try := 0; try < nbBuffers; try++ {
		i := b.current
		b.current = (b.current + 1) % nbBuffers
		if !b.isFree[i] {
			continue
		}
		if doubled {
			b.buffers[i] = make([]byte, 2*cap(b.buffers[i]))
		}
		b.isFree[i] = false
		return b.buffers[i]
	}
	return nil
}

// takeInitial lends out the first pool buffer for reader construction.
func (b *bench) takeInitial() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextFreeBuffer(false)
}

func (b *bench) frameCallback(cause streamer.Cause, frame []byte, skipped int, flush bool) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch cause {
	case streamer.CauseFrameComplete:
		b.log.Info("got a complete frame",
			zap.Int("size", len(frame)), zap.Bool("flush", flush))
		b.nbRead++
		if skipped > 0 {
			b.log.Warn("skipped frames", zap.Int("count", skipped))
			b.nbSkipped += skipped
		}
		if b.out != nil {
			if _, err := b.out.Write(frame); err != nil {
				b.log.Error("writing frame to output file", zap.Error(err))
			}
		}
		now := time.Now()
		if !b.lastRecv.IsZero() {
			b.lastDt[b.dtIndex] = now.Sub(b.lastRecv)
			b.dtIndex = (b.dtIndex + 1) % nbFramesForAverage
		}
		b.lastRecv = now
		b.markFree(frame)
		return b.nextFreeBuffer(false)

	case streamer.CauseFrameTooSmall:
		b.log.Warn("current buffer too small for frame", zap.Int("size", len(frame)))
		return b.nextFreeBuffer(true)

	case streamer.CauseCopyComplete:
		b.markFree(frame)

	case streamer.CauseCancel:
		b.log.Info("reader is closing")
		b.markFree(frame)
	}
	return nil
}

// snapshot returns the current statistics.
func (b *bench) snapshot() (nbRead, nbSkipped int, percentOk float64, meanDt time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	nbRead, nbSkipped = b.nbRead, b.nbSkipped
	if nbRead+nbSkipped > 0 {
		percentOk = 100 * float64(nbRead) / float64(nbRead+nbSkipped)
	}
	var sum time.Duration
	n := 0
	for _, dt := range b.lastDt {
		if dt > 0 {
			sum += dt
			n++
		}
	}
	if n > 0 {
		meanDt = sum / time.Duration(n)
	}
	return nbRead, nbSkipped, percentOk, meanDt
}

func main() {
	var (
		listenAddr = flag.String("listen", ":54321", "local address receiving stream data")
		senderAddr = flag.String("sender", "127.0.0.1:43210", "sender address receiving acks")
		outPath    = flag.String("out", "", "output file for received frames (optional)")
		bufSize    = flag.String("bufsize", "2KB", "initial frame buffer size")
		fragSize   = flag.Int("fragsize", streamer.DefaultFragmentSize, "fragment payload size shared with the sender")
	)
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(*bufSize)); err != nil || size.Bytes() == 0 {
		logger.Fatal("parsing -bufsize", zap.String("value", *bufSize), zap.Error(err))
	}

	var out *os.File
	if *outPath != "" {
		out, err = os.Create(*outPath)
		if err != nil {
			logger.Fatal("creating output file", zap.Error(err))
		}
		defer out.Close()
	}

	mgr, err := netmgr.NewUDP(*listenAddr, *senderAddr, []netmgr.BufferParam{
		netmgr.DataBufferParams(dataBufferID),
		netmgr.AckBufferParams(ackBufferID),
	}, netmgr.WithLogger(logger))
	if err != nil {
		logger.Fatal("creating network manager", zap.Error(err))
	}
	defer mgr.Close()

	b := newBench(int(size.Bytes()), out, logger)
	reader, err := streamer.New(mgr, dataBufferID, ackBufferID, b.frameCallback, b.takeInitial(),
		streamer.WithFragmentSize(*fragSize),
		streamer.WithLogger(logger))
	if err != nil {
		logger.Fatal("creating stream reader", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reader.RunDataLoop()
		return nil
	})
	g.Go(func() error {
		reader.RunAckLoop()
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				nbRead, nbSkipped, percentOk, meanDt := b.snapshot()
				logger.Info("reception report",
					zap.Int("framesRead", nbRead),
					zap.Int("framesSkipped", nbSkipped),
					zap.Float64("percentOk", percentOk),
					zap.Duration("meanFrameInterval", meanDt),
					zap.Float64("efficiency", reader.EstimatedEfficiency()),
					zap.Int64("packetsDropped", mgr.Dropped(dataBufferID)))
			}
		}
	})

	<-ctx.Done()
	reader.Stop()
	if err := g.Wait(); err != nil {
		logger.Error("loop error", zap.Error(err))
	}
	if err := reader.Close(); err != nil {
		logger.Error("closing reader", zap.Error(err))
	}

	nbRead, nbSkipped, percentOk, _ := b.snapshot()
	logger.Info("final report",
		zap.Int("framesRead", nbRead),
		zap.Int("framesSkipped", nbSkipped),
		zap.Float64("percentOk", percentOk))
}
