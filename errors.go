// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamer

import (
	"errors"

	"code.hybscloud.com/iox"
)

var (
	// ErrInvalidArgument reports an invalid configuration or a nil
	// manager/callback/buffer.
	ErrInvalidArgument = errors.New("streamer: invalid argument")

	// ErrBusy reports that Close was called while a loop is still running.
	ErrBusy = errors.New("streamer: reader busy")
)

// ErrWouldBlock means “no packet available without waiting”.
//
// It is the expected, non-failure status a Manager returns when a timed read
// expires with an empty buffer. The data loop treats it as a quiet timeout
// and retries; any other read error is logged and the loop continues.
//
// Provided as a package-level alias so callers and Manager implementations
// can reference the semantic control-flow error without importing iox
// directly.
var ErrWouldBlock = iox.ErrWouldBlock
