// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ergolink

import "errors"

// Framing errors. A line failing any of these is discarded as a whole.
var (
	ErrBadStart      = errors.New("bad start character")
	ErrBadTerminator = errors.New("bad terminating characters")
	ErrChecksum      = errors.New("checksum mismatch")
	ErrInvalidHex    = errors.New("invalid hex payload")
	ErrLineTooLong   = errors.New("line too long")
)

// ErrReadTimeout is returned by LineReader when no complete line arrived
// within the transport read timeout. The read can be retried.
var ErrReadTimeout = errors.New("read timeout")

// ErrTransport wraps failures of the underlying byte stream. These end the
// processing loop.
var ErrTransport = errors.New("transport failure")

// ErrLegacyChecksumRange is returned when encoding in ChecksumLegacy mode and
// the legacy formula does not produce exactly two hex digits.
var ErrLegacyChecksumRange = errors.New("legacy checksum out of range")

// IsFramingError reports whether err discards a single line without ending
// the processing loop.
func IsFramingError(err error) bool {
	return errors.Is(err, ErrBadStart) ||
		errors.Is(err, ErrBadTerminator) ||
		errors.Is(err, ErrChecksum) ||
		errors.Is(err, ErrInvalidHex) ||
		errors.Is(err, ErrLineTooLong)
}
