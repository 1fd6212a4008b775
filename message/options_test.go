package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testFindPosition(t *testing.T, options Options, id OptionID, prepend bool, expectedIdx int) {
	idx := options.findPosition(id, prepend)
	require.Equal(t, expectedIdx, idx)
}

func TestFindPosition(t *testing.T) {
	options := make(Options, 0, 10)
	testFindPosition(t, options, 3, true, 0)
	testFindPosition(t, options, 3, false, 0)
	options = append(options, Option{ID: 1})
	testFindPosition(t, options, 0, true, 0)
	testFindPosition(t, options, 0, false, 0)
	options = append(options, Option{ID: 2}, Option{ID: 2}, Option{ID: 2}, Option{ID: 2})
	testFindPosition(t, options, 2, true, 1)
	testFindPosition(t, options, 2, false, 5)
	options = append(options, Option{ID: 5})
	testFindPosition(t, options, 3, true, 5)
	testFindPosition(t, options, 3, false, 5)
	options = append(options, Option{ID: 5})
	testFindPosition(t, options, 5, true, 5)
	testFindPosition(t, options, 5, false, 7)
}

func testAddOption(t *testing.T, options Options, option Option, expectedIdx int) Options {
	expectedLen := len(options) + 1
	options = options.Add(option)
	require.Len(t, options, expectedLen)
	require.Equal(t, option.ID, options[expectedIdx].ID)
	require.Equal(t, option.Value, options[expectedIdx].Value)
	return options
}

func TestAddOption(t *testing.T) {
	options := make(Options, 0, 10)
	options = testAddOption(t, options, Option{ID: 1, Value: []byte("0")}, 0)
	options = testAddOption(t, options, Option{ID: 1, Value: []byte("1")}, 1)
	options = testAddOption(t, options, Option{ID: 3, Value: []byte("2")}, 2)
	options = testAddOption(t, options, Option{ID: 3, Value: []byte("3")}, 3)
	options = testAddOption(t, options, Option{ID: 2, Value: []byte("4")}, 2)

	v := make([][]byte, 2)
	n, err := options.GetAllBytes(1, v)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, [][]byte{[]byte("0"), []byte("1")}, v)
}

func TestSetOption(t *testing.T) {
	options := make(Options, 0, 10)
	options = options.Set(Option{ID: 1, Value: []byte("0")})
	require.Len(t, options, 1)

	options = options.Add(Option{ID: 1, Value: []byte("1")})
	options = options.Add(Option{ID: 1, Value: []byte("2")})
	options = options.Set(Option{ID: 1, Value: []byte("3")})
	require.Len(t, options, 1)

	options = options.Add(Option{ID: 2, Value: []byte("4")})
	options = options.Add(Option{ID: 2, Value: []byte("5")})
	options = options.Set(Option{ID: 2, Value: []byte("6")})
	require.Len(t, options, 2)

	options = options.Set(Option{ID: 0, Value: []byte("7")})
	require.Len(t, options, 3)

	v := make([]string, 1)
	n, err := options.GetStrings(2, v)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"6"}, v)
}

func testRemoveOption(t *testing.T, options Options, id OptionID, expectedLen int) Options {
	options = options.Remove(id)
	require.Len(t, options, expectedLen)
	for _, o := range options {
		require.NotEqual(t, id, o.ID)
	}
	return options
}

func TestRemoveOption(t *testing.T) {
	options := make(Options, 0, 10)
	options = testAddOption(t, options, Option{ID: 1, Value: []byte("0")}, 0)
	options = testAddOption(t, options, Option{ID: 1, Value: []byte("1")}, 1)
	options = testAddOption(t, options, Option{ID: 3, Value: []byte("2")}, 2)
	options = testAddOption(t, options, Option{ID: 3, Value: []byte("3")}, 3)
	options = testAddOption(t, options, Option{ID: 2, Value: []byte("4")}, 2)

	options = testRemoveOption(t, options, 99, 5)
	options = testRemoveOption(t, options, 1, 3)
	options = testAddOption(t, options, Option{ID: 2, Value: []byte("5")}, 1)
	options = testRemoveOption(t, options, 2, 2)
}

func TestGetters(t *testing.T) {
	var options Options
	_, err := options.GetBytes(ETag)
	require.ErrorIs(t, err, ErrOptionNotFound)
	_, err = options.GetString(URIHost)
	require.ErrorIs(t, err, ErrOptionNotFound)
	_, err = options.GetUint32(Observe)
	require.ErrorIs(t, err, ErrOptionNotFound)

	buf := make([]byte, 64)
	options, n, err := options.SetUint32(buf, Observe, 1)
	require.NoError(t, err)
	buf = buf[n:]
	options, _, err = options.SetString(buf, URIHost, "example.net")
	require.NoError(t, err)

	v, err := options.GetUint32(Observe)
	require.NoError(t, err)
	require.Equal(t, uint32(1), v)
	s, err := options.GetString(URIHost)
	require.NoError(t, err)
	require.Equal(t, "example.net", s)

	short := make([]string, 0)
	_, err = options.GetStrings(URIHost, short)
	require.ErrorIs(t, err, ErrShortRead)
}

func TestPathOption(t *testing.T) {
	options := make(Options, 0, 10)
	buf := make([]byte, 256)
	options, bufLen, err := options.SetPath(buf, "/a/b/c")
	require.NoError(t, err)
	require.Equal(t, 3, bufLen)

	path, err := options.Path()
	require.NoError(t, err)
	require.Equal(t, "/a/b/c", path)

	v := make([]string, 3)
	n, err := options.GetStrings(URIPath, v)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []string{"a", "b", "c"}, v)

	options, bufLen, err = options.SetPath(buf, "")
	require.NoError(t, err)
	require.Equal(t, 0, bufLen)
	require.False(t, options.HasOption(URIPath))
}

func TestQueries(t *testing.T) {
	var options Options
	buf := make([]byte, 64)
	options, n, err := options.AddString(buf, URIQuery, "if=oic.if.ll")
	require.NoError(t, err)
	buf = buf[n:]
	options, _, err = options.AddString(buf, URIQuery, "rt=oic.wk.d")
	require.NoError(t, err)

	q, err := options.Queries()
	require.NoError(t, err)
	require.Equal(t, []string{"if=oic.if.ll", "rt=oic.wk.d"}, q)
}

func TestResetOptionsTo(t *testing.T) {
	in := Options{
		{ID: URIPath, Value: []byte("a")},
		{ID: URIPath, Value: []byte("b")},
		{ID: ContentFormat, Value: nil},
	}
	var options Options
	_, used, err := options.ResetOptionsTo(nil, in)
	require.ErrorIs(t, err, ErrTooSmall)
	options, used, err = options.ResetOptionsTo(make([]byte, used), in)
	require.NoError(t, err)
	require.Equal(t, 2, used)
	require.Len(t, options, 3)

	cloned, err := options.Clone()
	require.NoError(t, err)
	require.Equal(t, options, cloned)
}

func TestMarshalEmptyOptions(t *testing.T) {
	var options Options
	n, err := options.Marshal(nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	size, err := Message{}.Size()
	require.NoError(t, err)
	require.Equal(t, 0, size)
}

func TestMarshalOrdersByID(t *testing.T) {
	var options Options
	options = options.Add(Option{ID: 11, Value: []byte("late")})
	options = options.Add(Option{ID: 5, Value: []byte("early")})

	buf := make([]byte, 64)
	n, err := options.Marshal(buf)
	require.NoError(t, err)

	var decoded Options
	proc, err := decoded.Unmarshal(buf[:n], nil)
	require.NoError(t, err)
	require.Equal(t, n, proc)
	require.Equal(t, Options{
		{ID: 5, Value: []byte("early")},
		{ID: 11, Value: []byte("late")},
	}, decoded)
}

func TestMarshalTooSmall(t *testing.T) {
	var options Options
	options = options.Add(Option{ID: URIPath, Value: []byte("abcdef")})
	size, err := options.Marshal(make([]byte, 3))
	require.ErrorIs(t, err, ErrTooSmall)

	buf := make([]byte, size)
	n, err := options.Marshal(buf)
	require.NoError(t, err)
	require.Equal(t, size, n)
}

func TestUnmarshalStopsAtPayloadMarker(t *testing.T) {
	var options Options
	proc, err := options.Unmarshal([]byte{0xff, 'p', 'a', 'y'}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, proc)
	require.Empty(t, options)
}

func TestUnmarshalUnexpectedExtendMarker(t *testing.T) {
	for _, data := range [][]byte{{0xf1, 0x00}, {0x1f, 0x00}} {
		var options Options
		_, err := options.Unmarshal(data, nil)
		require.ErrorIs(t, err, ErrOptionUnexpectedExtendMarker)
	}
}

func TestUnmarshalTruncated(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "missing delta ext byte", data: []byte{0xd0}},
		{name: "missing delta ext word", data: []byte{0xe0, 0x01}},
		{name: "missing length ext byte", data: []byte{0x0d}},
		{name: "missing value bytes", data: []byte{0x23, 'a', 'b'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var options Options
			_, err := options.Unmarshal(tt.data, nil)
			require.ErrorIs(t, err, ErrOptionTruncated)
		})
	}
}

func TestUnmarshalSkipsIllegalValueLength(t *testing.T) {
	// ETag is defined with length 1-8; a 9 byte value must be consumed
	// but not stored.
	data := []byte{0x49, '1', '2', '3', '4', '5', '6', '7', '8', '9', 0x71, 'x'}
	var options Options
	proc, err := options.Unmarshal(data, CoapOptionDefs)
	require.NoError(t, err)
	require.Equal(t, len(data), proc)
	require.False(t, options.HasOption(ETag))
	// The option after the skipped one still decodes, with its number
	// derived from the full delta chain.
	v, err := options.GetBytes(URIPath)
	require.NoError(t, err)
	require.Equal(t, []byte("x"), v)
}

func TestUnmarshalKeepsUnknownNumbersOpaque(t *testing.T) {
	var options Options
	options = options.Add(Option{ID: 2000, Value: []byte("opaque")})
	buf := make([]byte, 64)
	n, err := options.Marshal(buf)
	require.NoError(t, err)

	var decoded Options
	proc, err := decoded.Unmarshal(buf[:n], CoapOptionDefs)
	require.NoError(t, err)
	require.Equal(t, n, proc)
	require.Equal(t, options, decoded)
}
