package valueobject

import (
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/tasknory-backend/internal/pkg/apperror"
)

// CoinPrecision число знаков после запятой во всех суммах.
const CoinPrecision int32 = 2

// MaxAmount наибольшая сумма, которая помещается в колонки NUMERIC(14,2).
var MaxAmount = decimal.RequireFromString("999999999999.99")

// NewAmount проверяет денежную сумму: строго положительная, не больше MaxAmount и не точнее копейки.
func NewAmount(d decimal.Decimal) (decimal.Decimal, error) {
	if !d.IsPositive() {
		return decimal.Zero, apperror.Validation("amount must be positive")
	}
	if d.GreaterThan(MaxAmount) {
		return decimal.Zero, apperror.Validation("amount exceeds maximum")
	}
	if !d.Equal(d.Round(CoinPrecision)) {
		return decimal.Zero, apperror.Validation("amount precision exceeds 2 decimals")
	}
	return d.Round(CoinPrecision), nil
}

// Sum складывает суммы без потери точности.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
