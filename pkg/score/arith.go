package score

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// arith captures the operations a score representation needs.
type arith[T any] interface {
	zero() T
	add(a, b T) T
	mul(a, b T) T
	neg(a T) T
	sign(a T) int
	format(a T) string
	fromInt32(int32) (T, error)
	fromInt64(int64) (T, error)
	fromDecimal(decimal.Decimal) (T, error)
	levelsOf(Score) ([]T, bool)
	makeScore([]T) Score
}

type intArith struct{}

func (intArith) zero() int32          { return 0 }
func (intArith) add(a, b int32) int32 { return a + b }
func (intArith) mul(a, b int32) int32 { return a * b }
func (intArith) neg(a int32) int32    { return -a }
func (intArith) format(a int32) string {
	return fmt.Sprint(a)
}
func (intArith) sign(a int32) int {
	switch {
	case a < 0:
		return -1
	case a > 0:
		return 1
	}
	return 0
}
func (intArith) fromInt32(v int32) (int32, error) { return v, nil }
func (intArith) fromInt64(v int64) (int32, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %d overflows int", ErrWeightKind, v)
	}
	return int32(v), nil
}
func (intArith) fromDecimal(v decimal.Decimal) (int32, error) {
	return 0, fmt.Errorf("%w: decimal %s on an int score", ErrWeightKind, v)
}
func (intArith) levelsOf(s Score) ([]int32, bool) {
	is, ok := s.(IntScore)
	return is.levels, ok
}
func (intArith) makeScore(ls []int32) Score { return IntScore{levels: ls} }

type longArith struct{}

func (longArith) zero() int64          { return 0 }
func (longArith) add(a, b int64) int64 { return a + b }
func (longArith) mul(a, b int64) int64 { return a * b }
func (longArith) neg(a int64) int64    { return -a }
func (longArith) format(a int64) string {
	return fmt.Sprint(a)
}
func (longArith) sign(a int64) int {
	switch {
	case a < 0:
		return -1
	case a > 0:
		return 1
	}
	return 0
}
func (longArith) fromInt32(v int32) (int64, error) { return int64(v), nil }
func (longArith) fromInt64(v int64) (int64, error) { return v, nil }
func (longArith) fromDecimal(v decimal.Decimal) (int64, error) {
	return 0, fmt.Errorf("%w: decimal %s on a long score", ErrWeightKind, v)
}
func (longArith) levelsOf(s Score) ([]int64, bool) {
	ls, ok := s.(LongScore)
	return ls.levels, ok
}
func (longArith) makeScore(ls []int64) Score { return LongScore{levels: ls} }

type decimalArith struct{}

func (decimalArith) zero() decimal.Decimal                    { return decimal.Zero }
func (decimalArith) add(a, b decimal.Decimal) decimal.Decimal { return a.Add(b) }
func (decimalArith) mul(a, b decimal.Decimal) decimal.Decimal { return a.Mul(b) }
func (decimalArith) neg(a decimal.Decimal) decimal.Decimal    { return a.Neg() }
func (decimalArith) sign(a decimal.Decimal) int               { return a.Sign() }
func (decimalArith) format(a decimal.Decimal) string          { return a.String() }
func (decimalArith) fromInt32(v int32) (decimal.Decimal, error) {
	return decimal.NewFromInt32(v), nil
}
func (decimalArith) fromInt64(v int64) (decimal.Decimal, error) {
	return decimal.NewFromInt(v), nil
}
func (decimalArith) fromDecimal(v decimal.Decimal) (decimal.Decimal, error) { return v, nil }
func (decimalArith) levelsOf(s Score) ([]decimal.Decimal, bool) {
	ds, ok := s.(DecimalScore)
	return ds.levels, ok
}
func (decimalArith) makeScore(ls []decimal.Decimal) Score { return DecimalScore{levels: ls} }
