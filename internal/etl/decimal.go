package etl

import (
	"math/big"
)

// Decimal is an exact decimal number kept in its source text form,
// as returned for NUMERIC/DECIMAL columns and BSON Decimal128 values.
// It renders verbatim and joins by numeric value: Decimal("5.00") matches 5.
type Decimal string

func (d Decimal) String() string { return string(d) }

// Rat parses the decimal. ok is false for NaN, infinities and malformed text.
func (d Decimal) Rat() (r *big.Rat, ok bool) {
	return new(big.Rat).SetString(string(d))
}
