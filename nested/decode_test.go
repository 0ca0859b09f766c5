package nested

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "plain/path.jar", want: "plain/path.jar"},
		{in: "my%20dir", want: "my dir"},
		{in: "caf%C3%A9", want: "café"},
		{in: "a+b", want: "a+b"},
		{in: "%2F%21", want: "/!"},
		{in: "100%25", want: "100%"},
	}
	for _, tt := range tests {
		got, err := DecodeURL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestDecodeURL_Errors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"%", "%2", "%zz", "caf%C3", "%FF%FE"} {
		_, err := DecodeURL(in)
		require.ErrorIs(t, err, ErrInvalidArgument, in)
	}
}
