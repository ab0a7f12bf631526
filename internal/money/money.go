package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value held in the minor unit of its currency
// (cents for KES, shillings for UGX). Integer math only; decimals appear at
// the edges and while applying percentages.
type Amount int64

var half = decimal.New(5, -1)

// RoundHalfUp rounds a value already expressed in minor units to a whole
// minor unit. Ties go towards positive infinity.
func RoundHalfUp(minor decimal.Decimal) Amount {
	return Amount(minor.Add(half).Floor().IntPart())
}

// FromDecimal converts a major-unit value (e.g. 954.205) to minor units for a
// currency with the given number of decimal places.
func FromDecimal(major decimal.Decimal, scale int32) Amount {
	return RoundHalfUp(major.Shift(scale))
}

// Decimal returns the major-unit representation of a.
func (a Amount) Decimal(scale int32) decimal.Decimal {
	return decimal.New(int64(a), -scale)
}

// Format renders a with exactly scale decimal places.
func (a Amount) Format(scale int32) string {
	return a.Decimal(scale).StringFixed(scale)
}

// MulPercent applies a percentage (4.5 means 4.5%) and rounds the result.
func (a Amount) MulPercent(percent decimal.Decimal) Amount {
	return RoundHalfUp(decimal.NewFromInt(int64(a)).Mul(percent.Shift(-2)))
}

// MulFraction applies a plain fraction (0.5 means half) and rounds the result.
func (a Amount) MulFraction(f decimal.Decimal) Amount {
	return RoundHalfUp(decimal.NewFromInt(int64(a)).Mul(f))
}

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a < b {
		return a
	}
	return b
}

// Sum adds up amounts.
func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, a := range amounts {
		total += a
	}
	return total
}

// String prints the raw minor-unit value; use Format for display.
func (a Amount) String() string {
	return fmt.Sprintf("%d", int64(a))
}
