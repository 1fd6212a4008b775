package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtendOptRoundTrip(t *testing.T) {
	buf := make([]byte, 2)
	for v := 0; v < ExtendOptionLimit; v++ {
		nib, ext, err := extendOpt(v)
		require.NoError(t, err)
		switch {
		case v < ExtendOptionByteAddend:
			require.Equal(t, v, nib)
		case v < ExtendOptionWordAddend:
			require.Equal(t, ExtendOptionByteCode, nib)
		default:
			require.Equal(t, ExtendOptionWordCode, nib)
		}
		n, err := marshalOptionHeaderExt(buf, nib, ext)
		require.NoError(t, err)
		proc, got, err := parseExtOpt(buf[:n], nib)
		require.NoError(t, err)
		require.Equal(t, n, proc)
		require.Equal(t, v, got)
	}
}

func TestExtendOptOutOfRange(t *testing.T) {
	for _, v := range []int{ExtendOptionLimit, ExtendOptionLimit + 1, 1 << 20} {
		_, _, err := extendOpt(v)
		require.ErrorIs(t, err, ErrInvalidOptionHeaderExt)
	}
}

func TestParseExtOptWordMax(t *testing.T) {
	// A full 0xffff word extension decodes to 65804 even though the
	// encode side caps at ExtendOptionLimit-1; the limit is enforced
	// only when producing headers.
	proc, v, err := parseExtOpt([]byte{0xff, 0xff}, ExtendOptionWordCode)
	require.NoError(t, err)
	require.Equal(t, 2, proc)
	require.Equal(t, ExtendOptionLimit, v)
}

func TestParseExtOptTruncated(t *testing.T) {
	_, _, err := parseExtOpt(nil, ExtendOptionByteCode)
	require.ErrorIs(t, err, ErrOptionTruncated)
	_, _, err = parseExtOpt([]byte{0x01}, ExtendOptionWordCode)
	require.ErrorIs(t, err, ErrOptionTruncated)
}

func TestMarshalOptionHeaderTooSmall(t *testing.T) {
	// delta 300 and length 500 need one header byte and two word
	// extensions each.
	size, err := marshalOptionHeader(nil, 300, 500)
	require.ErrorIs(t, err, ErrTooSmall)
	require.Equal(t, 5, size)

	buf := make([]byte, size)
	n, err := marshalOptionHeader(buf, 300, 500)
	require.NoError(t, err)
	require.Equal(t, size, n)
	require.Equal(t, byte(ExtendOptionWordCode<<4|ExtendOptionWordCode), buf[0])
}

func TestOptionMarshalOutOfRange(t *testing.T) {
	// A value longer than the extended length field can describe must
	// be refused, not truncated.
	o := Option{ID: URIPath, Value: make([]byte, ExtendOptionLimit)}
	_, err := o.Marshal(make([]byte, ExtendOptionLimit+8), 0)
	require.ErrorIs(t, err, ErrInvalidOptionHeaderExt)
}

func TestOptionIDString(t *testing.T) {
	for i := 0; i < 512; i++ {
		func(oid int, s string) {
			if v, err := ToOptionID(s); err == nil {
				require.Equal(t, OptionID(oid), v)
			}
		}(i, OptionID(i).String())
	}
	require.Equal(t, "URIPath", URIPath.String())
	require.Equal(t, "OptionID(1234)", OptionID(1234).String())
}

func TestMediaTypeString(t *testing.T) {
	for i := 0; i < 12000; i++ {
		func(mt int, s string) {
			if v, err := ToMediaType(s); err == nil {
				require.Equal(t, MediaType(mt), v)
			}
		}(i, MediaType(i).String())
	}
	require.Equal(t, "application/cbor", AppCBOR.String())
}
