package message

import "errors"

var (
	// ErrTooSmall is returned by marshal calls when the provided buffer
	// cannot hold the encoding. The returned length is the required size.
	ErrTooSmall = errors.New("too small bytes buffer")
	// ErrInvalidOptionHeaderExt is returned when an option delta or length
	// exceeds the largest value the extended field encoding can carry.
	ErrInvalidOptionHeaderExt = errors.New("invalid option header ext")
	// ErrOptionUnexpectedExtendMarker is returned when a header nibble
	// carries the reserved value 15.
	ErrOptionUnexpectedExtendMarker = errors.New("option unexpected extend marker")
	// ErrOptionTruncated is returned when an option declares more
	// extension or value bytes than the input contains.
	ErrOptionTruncated = errors.New("option truncated")

	ErrInvalidValueLength = errors.New("invalid value length")
	ErrShortRead          = errors.New("invalid short read")
	ErrOptionNotFound     = errors.New("option not found")
)
