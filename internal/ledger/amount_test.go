package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"12.34", 1234, false},
		{"0.01", 1, false},
		{"100", 10000, false},
		{"7.5", 750, false},
		{".99", 99, false},
		{"-3.00", -300, false},
		{"", 0, true},
		{"1.234", 0, true},
		{"abc", 0, true},
		{"1.2x", 0, true},
	}
	for _, c := range cases {
		got, err := ParseAmount(c.in)
		if c.wantErr {
			assert.Error(t, err, "input %q", c.in)
			continue
		}
		require.NoError(t, err, "input %q", c.in)
		assert.Equal(t, c.want, got, "input %q", c.in)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "12.34", FormatAmount(1234))
	assert.Equal(t, "0.01", FormatAmount(1))
	assert.Equal(t, "0.00", FormatAmount(0))
	assert.Equal(t, "-3.00", FormatAmount(-300))

	// round-trip
	v, err := ParseAmount(FormatAmount(98765))
	require.NoError(t, err)
	assert.Equal(t, int64(98765), v)
}

func TestFeeFor(t *testing.T) {
	cases := []struct {
		remaining, percent, want int64
	}{
		{3000, 20, 600},
		{25, 10, 3},   // 2.5 rounds half-up
		{7, 20, 1},    // 1.4 rounds down
		{3, 20, 1},    // floor of one minor unit
		{1, 20, 1},    // fee can consume the whole remainder
		{1000, 0, 1},  // zero percent still floors at 1
		{50, 100, 50}, // capped at the remainder
	}
	for _, c := range cases {
		assert.Equal(t, c.want, feeFor(c.remaining, c.percent),
			"remaining=%d percent=%d", c.remaining, c.percent)
	}
}
