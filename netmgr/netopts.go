// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package netmgr

import (
	"net"

	"go.uber.org/zap"
)

// Transport constructors.
//
// Single source of truth — transport → network name:
//   - UDP       → "udp"      (the drone link; boundaries preserved)
//   - Unixgram  → "unixgram" (local testing without a network stack)
//
// Both are datagram transports, so the manager's one-datagram-per-packet
// model applies unchanged.

// Options configures manager behavior.
type Options struct {
	// Logger receives demux diagnostics. Nil means no logging.
	Logger *zap.Logger
}

var defaultOptions = Options{
	Logger: nil,
}

type Option func(*Options)

// WithLogger sets the logger used by the demux goroutine.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// NewUDP listens for datagrams on localAddr and targets remoteAddr for
// sends.
func NewUDP(localAddr, remoteAddr string, params []BufferParam, opts ...Option) (*Manager, error) {
	peer, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenPacket("udp", localAddr)
	if err != nil {
		return nil, err
	}
	m, err := New(conn, peer, params, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return m, nil
}

// NewUnixgram listens on the localPath unix datagram socket and targets
// remotePath for sends.
func NewUnixgram(localPath, remotePath string, params []BufferParam, opts ...Option) (*Manager, error) {
	peer := &net.UnixAddr{Name: remotePath, Net: "unixgram"}
	conn, err := net.ListenPacket("unixgram", localPath)
	if err != nil {
		return nil, err
	}
	m, err := New(conn, peer, params, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return m, nil
}
