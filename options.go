// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamer

import (
	"time"

	"go.uber.org/zap"
)

// Options configures reader behavior.
type Options struct {
	// FragmentSize is the maximum fragment payload length in bytes. It must
	// match the sender's value.
	FragmentSize int

	// ReadTimeout bounds a single blocking read on the data buffer. The stop
	// flag is observed at least this often by the data loop.
	ReadTimeout time.Duration

	// MaxAckDelay is the ceiling between two ack emissions. The stop flag is
	// observed at least this often by the ack loop.
	MaxAckDelay time.Duration

	// Logger receives transient errors and drop diagnostics. Nil means no
	// logging.
	Logger *zap.Logger
}

var defaultOptions = Options{
	FragmentSize: DefaultFragmentSize,
	ReadTimeout:  DefaultReadTimeout,
	MaxAckDelay:  DefaultMaxAckDelay,
	Logger:       nil,
}

type Option func(*Options)

// WithFragmentSize sets the fragment payload length shared with the sender.
func WithFragmentSize(n int) Option {
	return func(o *Options) { o.FragmentSize = n }
}

// WithReadTimeout sets the data buffer read timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(o *Options) { o.ReadTimeout = d }
}

// WithMaxAckDelay sets the ceiling between two ack emissions.
func WithMaxAckDelay(d time.Duration) Option {
	return func(o *Options) { o.MaxAckDelay = d }
}

// WithLogger sets the logger used by both loops.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}
