package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/social-feed/pkg/feederr"
)

func TestCursorRoundTrip(t *testing.T) {
	now := time.Now()
	c := Cursor{TS: now.UnixNano(), ID: "post-42"}
	got, err := Decode(Encode(c))
	require.NoError(t, err)
	require.Equal(t, c, got)
	require.True(t, got.Time().Equal(time.Unix(0, now.UnixNano())))
}

func TestCursorDecodeMalformed(t *testing.T) {
	for _, token := range []string{
		"not base64 ???",
		"bm90IGpzb24",  // base64("not json")
		"e30",          // base64("{}"), no fields
		"eyJ0IjoxMjN9", // base64({"t":123}), no id
	} {
		_, err := Decode(token)
		require.Error(t, err, "token %q", token)
		require.Equal(t, feederr.KindInvalidOperation, feederr.KindOf(err))
	}
}
