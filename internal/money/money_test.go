package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundHalfUp(t *testing.T) {
	cases := []struct {
		in   string
		want Amount
	}{
		{"4500", 4500},
		{"4500.4999", 4500},
		{"4500.5", 4501},
		{"0.5", 1},
		{"0.49", 0},
		{"-2.5", -2},
		{"-2.51", -3},
	}
	for _, tc := range cases {
		got := RoundHalfUp(decimal.RequireFromString(tc.in))
		assert.Equal(t, tc.want, got, "RoundHalfUp(%s)", tc.in)
	}
}

func TestFromDecimal(t *testing.T) {
	assert.Equal(t, Amount(95420), FromDecimal(decimal.RequireFromString("954.20"), 2))
	assert.Equal(t, Amount(95421), FromDecimal(decimal.RequireFromString("954.205"), 2))
	assert.Equal(t, Amount(3000), FromDecimal(decimal.RequireFromString("3000"), 0))
}

func TestMulPercent(t *testing.T) {
	// 1000.00 at 4.5% is 45.00
	assert.Equal(t, Amount(4500), Amount(100000).MulPercent(decimal.RequireFromString("4.5")))
	// 0.10 at 4.5% is 0.0045 → rounds to 0.00
	assert.Equal(t, Amount(0), Amount(10).MulPercent(decimal.RequireFromString("4.5")))
	// 0.11 at 50% is 0.055 → rounds up to 0.06
	assert.Equal(t, Amount(6), Amount(11).MulPercent(decimal.NewFromInt(50)))
}

func TestMulFraction(t *testing.T) {
	assert.Equal(t, Amount(500000), Amount(1000000).MulFraction(decimal.RequireFromString("0.5")))
	assert.Equal(t, Amount(2), Amount(3).MulFraction(decimal.RequireFromString("0.5")))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "954.20", Amount(95420).Format(2))
	assert.Equal(t, "3750", Amount(3750).Format(0))
	assert.Equal(t, "0.05", Amount(5).Format(2))
}
