package zim

import "errors"

// Error kinds a caller can test for with errors.Is. NotFound is a normal
// result for lookup operations, not a fatal condition; the rest abort the
// operation that produced them.
var (
	ErrBadMagic               = errors.New("zim: bad magic number")
	ErrTruncated              = errors.New("zim: truncated read")
	ErrCorruptStream          = errors.New("zim: corrupt compressed stream")
	ErrUnsupportedCompression = errors.New("zim: unsupported compression")
	ErrNotFound               = errors.New("zim: not found")
	ErrRedirectLoop           = errors.New("zim: redirect loop")
	ErrLimitExceeded          = errors.New("zim: limit exceeded")
)
