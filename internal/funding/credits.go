package funding

import (
	"github.com/shopspring/decimal"
)

var (
	creditsPerTree    = decimal.RequireFromString("0.05")
	creditsPerHectare = decimal.RequireFromString("3.67")
)

// CalculateCredits returns floor(max(trees*0.05, hectares*3.67)) using exact
// decimal arithmetic. Negative inputs count as zero.
func CalculateCredits(treesPlanted int64, areaHectares decimal.Decimal) int64 {
	if treesPlanted < 0 {
		treesPlanted = 0
	}
	if areaHectares.IsNegative() {
		areaHectares = decimal.Zero
	}

	byTrees := decimal.NewFromInt(treesPlanted).Mul(creditsPerTree)
	byArea := areaHectares.Mul(creditsPerHectare)

	return decimal.Max(byTrees, byArea).Floor().IntPart()
}

// DefaultPricePerCredit is amount/quantity rounded to four places.
func DefaultPricePerCredit(amount decimal.Decimal, quantity int64) decimal.Decimal {
	if quantity <= 0 {
		return decimal.Zero
	}
	return amount.Div(decimal.NewFromInt(quantity)).Round(4)
}

// ProgressPercentage is current/target*100 rounded to two places; a zero or
// negative target yields 0.
func ProgressPercentage(current, target decimal.Decimal) decimal.Decimal {
	if !target.IsPositive() {
		return decimal.Zero
	}
	return current.Div(target).Mul(decimal.NewFromInt(100)).Round(2)
}
