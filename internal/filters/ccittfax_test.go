package filters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCCITTFaxDecodeGroup4 tests decoding a tiny Group 4 image. Each
// all-white row codes as a single vertical-mode bit, so two rows of
// eight white pixels are the two high bits of one byte.
func TestCCITTFaxDecodeGroup4(t *testing.T) {
	decoded, err := CCITTFaxDecode([]byte{0xC0}, Params{
		"K":       -1,
		"Columns": 8,
		"Rows":    2,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFF}, decoded)
}

// TestCCITTFaxDecodeBlackIs1 tests that the bit sense flag inverts the
// output bitmap.
func TestCCITTFaxDecodeBlackIs1(t *testing.T) {
	decoded, err := CCITTFaxDecode([]byte{0xC0}, Params{
		"K":        -1,
		"Columns":  8,
		"Rows":     2,
		"BlackIs1": true,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00}, decoded)
}

// TestCCITTFaxDecodeInvalid tests that garbage input produces an error.
func TestCCITTFaxDecodeInvalid(t *testing.T) {
	_, err := CCITTFaxDecode([]byte{0x00, 0x00, 0x00, 0x00}, Params{
		"K":       -1,
		"Columns": 8,
		"Rows":    2,
	})
	require.Error(t, err)
}

// TestCCITTFaxParams tests extraction of the decode parameters.
func TestCCITTFaxParams(t *testing.T) {
	params := Params{
		"K":        -1,
		"Columns":  100,
		"Rows":     50,
		"BlackIs1": true,
	}

	assert.Equal(t, -1, getIntParam(params, "K", 0))
	assert.Equal(t, 100, getIntParam(params, "Columns", 1728))
	assert.Equal(t, 50, getIntParam(params, "Rows", 0))
	assert.True(t, getBoolParam(params, "BlackIs1", false))

	assert.Equal(t, 1728, getIntParam(nil, "Columns", 1728))
	assert.False(t, getBoolParam(Params{"BlackIs1": "true"}, "BlackIs1", false))
}
