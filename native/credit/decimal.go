package credit

import "math/big"

var ten = big.NewInt(10)

// ConvertPrecision rescales amount between two fixed-point precisions.
// Narrowing divides by a power of ten with truncation, so low-order digits
// are lost; widening multiplies exactly. Truncation always rounds toward the
// ledger: value entering credits rounds down, value leaving rounds down.
func ConvertPrecision(amount *big.Int, from, to uint8) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	switch {
	case from > to:
		return new(big.Int).Quo(amount, pow10(from-to))
	case from < to:
		return new(big.Int).Mul(amount, pow10(to-from))
	default:
		return new(big.Int).Set(amount)
	}
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(n)), nil)
}
