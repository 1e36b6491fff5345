package math

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnits(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"TestParseEtherWhole", testParseEtherWhole},
		{"TestParseUnitsFraction", testParseUnitsFraction},
		{"TestParseUnitsRejects", testParseUnitsRejects},
		{"TestFormatUnits", testFormatUnits},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func testParseEtherWhole(t *testing.T) {
	got, err := ParseEther("10")
	require.NoError(t, err)

	want, _ := new(big.Int).SetString("10000000000000000000", 10)
	assert.Equal(t, 0, want.Cmp(got), "got %s", got)
}

func testParseUnitsFraction(t *testing.T) {
	got, err := ParseUnits("1.5", 6)
	require.NoError(t, err)
	assert.Equal(t, int64(1500000), got.Int64())

	got, err = ParseUnits(".25", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(25), got.Int64())

	got, err = ParseUnits("0", 18)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Sign())
}

func testParseUnitsRejects(t *testing.T) {
	for _, in := range []string{"", "-1", "1.", "1.2345", "abc", "1e18"} {
		_, err := ParseUnits(in, 3)
		assert.Error(t, err, "input %q", in)
	}
}

func testFormatUnits(t *testing.T) {
	assert.Equal(t, "10", FormatUnits(MustParseEther("10"), 18))
	assert.Equal(t, "0.5", FormatUnits(MustParseEther("0.5"), 18))
	assert.Equal(t, "-1.25", FormatUnits(big.NewInt(-125), 2))
	assert.Equal(t, "0", FormatUnits(nil, 18))
}
