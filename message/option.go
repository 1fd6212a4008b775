package message

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	pkgMath "github.com/edgewire/coapmsg/pkg/math"
)

const (
	// ExtendOptionByteCode in a header nibble announces one extension byte.
	ExtendOptionByteCode = 13
	// ExtendOptionByteAddend is subtracted from the value stored in the
	// one byte extension.
	ExtendOptionByteAddend = 13
	// ExtendOptionWordCode in a header nibble announces two extension bytes.
	ExtendOptionWordCode = 14
	// ExtendOptionWordAddend is subtracted from the value stored in the
	// two byte big-endian extension.
	ExtendOptionWordAddend = 269
	// ExtendOptionError is the reserved nibble value 15.
	ExtendOptionError = 15
	// ExtendOptionLimit is the first value the extended field encoding
	// cannot carry.
	ExtendOptionLimit = ExtendOptionWordAddend + 0xffff
)

// OptionID identifies an option in a message.
type OptionID uint16

/*
   +-----+----+---+---+---+----------------+--------+--------+---------+
   | No. | C  | U | N | R | Name           | Format | Length | Default |
   +-----+----+---+---+---+----------------+--------+--------+---------+
   |   1 | x  |   |   | x | If-Match       | opaque | 0-8    | (none)  |
   |   3 | x  | x | - |   | Uri-Host       | string | 1-255  | (see    |
   |     |    |   |   |   |                |        |        | below)  |
   |   4 |    |   |   | x | ETag           | opaque | 1-8    | (none)  |
   |   5 | x  |   |   |   | If-None-Match  | empty  | 0      | (none)  |
   |   7 | x  | x | - |   | Uri-Port       | uint   | 0-2    | (see    |
   |     |    |   |   |   |                |        |        | below)  |
   |   8 |    |   |   | x | Location-Path  | string | 0-255  | (none)  |
   |  11 | x  | x | - | x | Uri-Path       | string | 0-255  | (none)  |
   |  12 |    |   |   |   | Content-Format | uint   | 0-2    | (none)  |
   |  14 |    | x | - |   | Max-Age        | uint   | 0-4    | 60      |
   |  15 | x  | x | - | x | Uri-Query      | string | 0-255  | (none)  |
   |  17 | x  |   |   |   | Accept         | uint   | 0-2    | (none)  |
   |  20 |    |   |   | x | Location-Query | string | 0-255  | (none)  |
   |  23 | x  | x | - | - | Block2         | uint   | 0-3    | (none)  |
   |  27 | x  | x | - | - | Block1         | uint   | 0-3    | (none)  |
   |  28 |    |   | x |   | Size2          | uint   | 0-4    | (none)  |
   |  35 | x  | x | - |   | Proxy-Uri      | string | 1-1034 | (none)  |
   |  39 | x  | x | - |   | Proxy-Scheme   | string | 1-255  | (none)  |
   |  60 |    |   | x |   | Size1          | uint   | 0-4    | (none)  |
   +-----+----+---+---+---+----------------+--------+--------+---------+
   C=Critical, U=Unsafe, N=NoCacheKey, R=Repeatable
*/

// Option IDs.
const (
	IfMatch       OptionID = 1
	URIHost       OptionID = 3
	ETag          OptionID = 4
	IfNoneMatch   OptionID = 5
	Observe       OptionID = 6
	URIPort       OptionID = 7
	LocationPath  OptionID = 8
	URIPath       OptionID = 11
	ContentFormat OptionID = 12
	MaxAge        OptionID = 14
	URIQuery      OptionID = 15
	Accept        OptionID = 17
	LocationQuery OptionID = 20
	Block2        OptionID = 23
	Block1        OptionID = 27
	Size2         OptionID = 28
	ProxyURI      OptionID = 35
	ProxyScheme   OptionID = 39
	Size1         OptionID = 60
	NoResponse    OptionID = 258
)

var optionIDToString = map[OptionID]string{
	IfMatch:       "IfMatch",
	URIHost:       "URIHost",
	ETag:          "ETag",
	IfNoneMatch:   "IfNoneMatch",
	Observe:       "Observe",
	URIPort:       "URIPort",
	LocationPath:  "LocationPath",
	URIPath:       "URIPath",
	ContentFormat: "ContentFormat",
	MaxAge:        "MaxAge",
	URIQuery:      "URIQuery",
	Accept:        "Accept",
	LocationQuery: "LocationQuery",
	Block2:        "Block2",
	Block1:        "Block1",
	Size2:         "Size2",
	ProxyURI:      "ProxyURI",
	ProxyScheme:   "ProxyScheme",
	Size1:         "Size1",
	NoResponse:    "NoResponse",
}

func (o OptionID) String() string {
	str, ok := optionIDToString[o]
	if !ok {
		return "OptionID(" + strconv.FormatInt(int64(o), 10) + ")"
	}
	return str
}

// ToOptionID converts a option name to an OptionID.
func ToOptionID(v string) (OptionID, error) {
	for key, val := range optionIDToString {
		if val == v {
			return key, nil
		}
	}
	return 0, fmt.Errorf("invalid option name(%v)", v)
}

// ValueFormat describes the format of an option value. (RFC7252 section 3.2)
type ValueFormat uint8

const (
	ValueUnknown ValueFormat = iota
	ValueEmpty
	ValueOpaque
	ValueUint
	ValueString
)

// OptionDef describes the value format and the allowed value lengths
// of a well-known option.
type OptionDef struct {
	ValueFormat ValueFormat
	MinLen      int
	MaxLen      int
}

var CoapOptionDefs = map[OptionID]OptionDef{
	IfMatch:       {ValueFormat: ValueOpaque, MinLen: 0, MaxLen: 8},
	URIHost:       {ValueFormat: ValueString, MinLen: 1, MaxLen: 255},
	ETag:          {ValueFormat: ValueOpaque, MinLen: 1, MaxLen: 8},
	IfNoneMatch:   {ValueFormat: ValueEmpty, MinLen: 0, MaxLen: 0},
	Observe:       {ValueFormat: ValueUint, MinLen: 0, MaxLen: 3},
	URIPort:       {ValueFormat: ValueUint, MinLen: 0, MaxLen: 2},
	LocationPath:  {ValueFormat: ValueString, MinLen: 0, MaxLen: 255},
	URIPath:       {ValueFormat: ValueString, MinLen: 0, MaxLen: 255},
	ContentFormat: {ValueFormat: ValueUint, MinLen: 0, MaxLen: 2},
	MaxAge:        {ValueFormat: ValueUint, MinLen: 0, MaxLen: 4},
	URIQuery:      {ValueFormat: ValueString, MinLen: 0, MaxLen: 255},
	Accept:        {ValueFormat: ValueUint, MinLen: 0, MaxLen: 2},
	LocationQuery: {ValueFormat: ValueString, MinLen: 0, MaxLen: 255},
	Block2:        {ValueFormat: ValueUint, MinLen: 0, MaxLen: 3},
	Block1:        {ValueFormat: ValueUint, MinLen: 0, MaxLen: 3},
	Size2:         {ValueFormat: ValueUint, MinLen: 0, MaxLen: 4},
	ProxyURI:      {ValueFormat: ValueString, MinLen: 1, MaxLen: 1034},
	ProxyScheme:   {ValueFormat: ValueString, MinLen: 1, MaxLen: 255},
	Size1:         {ValueFormat: ValueUint, MinLen: 0, MaxLen: 4},
	NoResponse:    {ValueFormat: ValueUint, MinLen: 0, MaxLen: 1},
}

// VerifyOptLen checks whether valueLen is within (min, max) length limits
// of the given option.
func VerifyOptLen(optionDefs map[OptionID]OptionDef, id OptionID, valueLen int) bool {
	def, ok := optionDefs[id]
	if !ok {
		return true
	}
	return valueLen >= def.MinLen && valueLen <= def.MaxLen
}

// extendOpt splits an option delta or length into the header nibble and
// the value of the extension bytes. Values that do not fit the two byte
// extension cannot be encoded at all.
func extendOpt(opt int) (int, int, error) {
	if opt >= ExtendOptionLimit {
		return -1, -1, ErrInvalidOptionHeaderExt
	}
	ext := 0
	if opt >= ExtendOptionByteAddend {
		if opt >= ExtendOptionWordAddend {
			ext = opt - ExtendOptionWordAddend
			opt = ExtendOptionWordCode
		} else {
			ext = opt - ExtendOptionByteAddend
			opt = ExtendOptionByteCode
		}
	}
	return opt, ext, nil
}

func marshalOptionHeaderExt(buf []byte, opt, ext int) (int, error) {
	switch opt {
	case ExtendOptionByteCode:
		if len(buf) > 0 {
			buf[0] = pkgMath.CastTo[byte](ext)
			return 1, nil
		}
		return 1, ErrTooSmall
	case ExtendOptionWordCode:
		if len(buf) > 1 {
			binary.BigEndian.PutUint16(buf, pkgMath.CastTo[uint16](ext))
			return 2, nil
		}
		return 2, ErrTooSmall
	}
	return 0, nil
}

func marshalOptionHeader(buf []byte, delta, length int) (int, error) {
	size := 0

	d, dx, err := extendOpt(delta)
	if err != nil {
		return -1, err
	}
	l, lx, err := extendOpt(length)
	if err != nil {
		return -1, err
	}

	if len(buf) > 0 {
		buf[0] = pkgMath.CastTo[byte](d<<4) | pkgMath.CastTo[byte](l)
		size++
	} else {
		buf = nil
		size++
	}
	var lenBuf int
	if buf == nil {
		lenBuf, err = marshalOptionHeaderExt(nil, d, dx)
	} else {
		lenBuf, err = marshalOptionHeaderExt(buf[size:], d, dx)
	}
	switch {
	case err == nil:
	case errors.Is(err, ErrTooSmall):
		buf = nil
	default:
		return -1, err
	}
	size += lenBuf

	if buf == nil {
		lenBuf, err = marshalOptionHeaderExt(nil, l, lx)
	} else {
		lenBuf, err = marshalOptionHeaderExt(buf[size:], l, lx)
	}
	switch {
	case err == nil:
	case errors.Is(err, ErrTooSmall):
		buf = nil
	default:
		return -1, err
	}
	size += lenBuf
	if buf == nil {
		return size, ErrTooSmall
	}
	return size, nil
}

// parseExtOpt resolves a header nibble and its extension bytes back to
// the option delta or length. It returns the count of consumed
// extension bytes and the resolved value.
func parseExtOpt(data []byte, opt int) (int, int, error) {
	processed := 0
	switch opt {
	case ExtendOptionByteCode:
		if len(data) < 1 {
			return -1, -1, ErrOptionTruncated
		}
		opt = int(data[0]) + ExtendOptionByteAddend
		processed = 1
	case ExtendOptionWordCode:
		if len(data) < 2 {
			return -1, -1, ErrOptionTruncated
		}
		opt = int(binary.BigEndian.Uint16(data[:2])) + ExtendOptionWordAddend
		processed = 2
	}
	return processed, opt, nil
}

// Option is a header option: a numbered, raw-valued field of a message.
type Option struct {
	ID    OptionID
	Value []byte
}

func (o Option) String() string {
	return fmt.Sprintf("ID: %v, Value: %v", o.ID, o.Value)
}

func (o Option) MarshalValue(buf []byte) (int, error) {
	if len(buf) < len(o.Value) {
		return len(o.Value), ErrTooSmall
	}
	copy(buf, o.Value)
	return len(o.Value), nil
}

func (o *Option) UnmarshalValue(buf []byte) (int, error) {
	o.Value = buf
	return len(buf), nil
}

// Marshal writes the option entry as one delta/length byte, the
// extension bytes of both fields and the raw value:
/*
     0   1   2   3   4   5   6   7
   +---------------+---------------+
   |               |               |
   |  Option Delta | Option Length |   1 byte
   |               |               |
   +---------------+---------------+
   \                               \
   /         Option Delta          /   0-2 bytes
   \          (extended)           \
   +-------------------------------+
   \                               \
   /         Option Length         /   0-2 bytes
   \          (extended)           \
   +-------------------------------+
   \                               \
   /                               /
   \                               \
   /         Option Value          /   0 or more bytes
   \                               \
   /                               /
   \                               \
   +-------------------------------+
*/
func (o Option) Marshal(buf []byte, previousID OptionID) (int, error) {
	delta := int(o.ID) - int(previousID)

	lenBuf, err := marshalOptionHeader(buf, delta, len(o.Value))
	switch {
	case err == nil:
	case errors.Is(err, ErrTooSmall):
		buf = nil
	default:
		return -1, err
	}
	length := lenBuf

	if buf == nil {
		lenBuf, err = o.MarshalValue(nil)
	} else {
		lenBuf, err = o.MarshalValue(buf[length:])
	}
	switch {
	case err == nil:
	case errors.Is(err, ErrTooSmall):
		buf = nil
	default:
		return -1, err
	}
	length += lenBuf

	if buf == nil {
		return length, ErrTooSmall
	}
	return length, nil
}

// Unmarshal sets the option from its raw decoded value. Options with a
// registry definition are validated against it: unrecognized formats and
// illegal value lengths are skipped (RFC7252 sections 5.4.1 and 5.4.3),
// leaving the value nil. Numbers without a definition are kept opaque so
// that a decoded header re-encodes to identical bytes.
func (o *Option) Unmarshal(data []byte, optionDefs map[OptionID]OptionDef, id OptionID) (int, error) {
	if def, ok := optionDefs[id]; ok {
		if def.ValueFormat == ValueUnknown {
			return 0, nil
		}
		if len(data) < def.MinLen || len(data) > def.MaxLen {
			return 0, nil
		}
	}
	o.ID = id
	return o.UnmarshalValue(data)
}
