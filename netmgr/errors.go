// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package netmgr

import (
	"errors"
	"io"
)

var (
	// ErrInvalidArgument reports an invalid configuration or a nil
	// conn/peer.
	ErrInvalidArgument = errors.New("netmgr: invalid argument")

	// ErrUnknownBuffer reports an I/O attempt on an undeclared buffer ID or
	// one declared for the other direction.
	ErrUnknownBuffer = errors.New("netmgr: unknown buffer")

	// ErrTooLong reports a payload exceeding the datagram size limit.
	ErrTooLong = errors.New("netmgr: payload too long")
)

// errShortPacketBuffer is returned through ReadWithTimeout when the caller's
// buffer cannot hold the queued packet.
var errShortPacketBuffer = io.ErrShortBuffer
