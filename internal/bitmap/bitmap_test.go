package bitmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBitmapNumberAccepts(t *testing.T) {
	n, ok := parseBitmapNumber("837090.bitmap")
	require.True(t, ok)
	require.Equal(t, "837090", n)

	n, ok = parseBitmapNumber("0.bitmap")
	require.True(t, ok)
	require.Equal(t, "0", n)
}

func TestParseBitmapNumberRejectsMissingSuffix(t *testing.T) {
	_, ok := parseBitmapNumber("837090")
	require.False(t, ok)
}

func TestParseBitmapNumberRejectsEmptyNumber(t *testing.T) {
	_, ok := parseBitmapNumber(".bitmap")
	require.False(t, ok)
}

func TestParseBitmapNumberRejectsNonDigits(t *testing.T) {
	_, ok := parseBitmapNumber("12a3.bitmap")
	require.False(t, ok)
}

func TestParseBitmapNumberRejectsLeadingZero(t *testing.T) {
	_, ok := parseBitmapNumber("0123.bitmap")
	require.False(t, ok)
}

func TestHexDecodedContentTypeDecodesTextPlain(t *testing.T) {
	require.Equal(t, "text/plain", hexDecodedContentType("746578742f706c61696e"))
}

func TestHexDecodedContentTypeRejectsUndecodable(t *testing.T) {
	require.Equal(t, "", hexDecodedContentType("not-hex"))
}
