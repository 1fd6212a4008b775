package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeUint32(t *testing.T) {
	tests := []struct {
		name  string
		value uint32
		want  int
	}{
		{name: "0", value: 0, want: 0},
		{name: "255", value: 255, want: 1},
		{name: "256", value: 256, want: 2},
		{name: "16384", value: 16384, want: 2},
		{name: "5000000", value: 5000000, want: 3},
		{name: "20000000", value: 20000000, want: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, 4)
			got, err := EncodeUint32(buf, tt.value)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			buf = buf[:got]
			val, n, err := DecodeUint32(buf)
			require.NoError(t, err)
			require.Equal(t, len(buf), n)
			require.Equal(t, tt.value, val)
		})
	}
}

func TestEncodeUint32TooSmall(t *testing.T) {
	n, err := EncodeUint32(nil, 256)
	require.ErrorIs(t, err, ErrTooSmall)
	require.Equal(t, 2, n)
}

func TestDecodeUint32InvalidLength(t *testing.T) {
	_, _, err := DecodeUint32([]byte{1, 2, 3, 4, 5})
	require.ErrorIs(t, err, ErrInvalidValueLength)
}
