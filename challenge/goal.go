/*
goal.go - Savings target computation

PURPOSE:
  Derives a participant's savings target from their declared income and the
  challenge duration. This value is frozen into the Participation at join
  time and never recomputed, even if the challenge window changes later.

FORMULA:
  durationMonths = ceil((endDate - startDate) / 30 days), minimum 1
  target         = round(monthlyBasis x 0.10 x durationMonths)

  where monthlyBasis is the declared monthly income (fixed) or the mean of
  the strictly-positive income samples (variable). Rounding is half-up to
  the nearest whole currency unit.

EXAMPLES:
  Fixed 2000/month, 6 months  -> round(2000 x 0.10 x 6) = 1200
  Variable [1000, 0, 1500], 3 months -> mean 1250 -> round(1250 x 0.10 x 3) = 375

SEE ALSO:
  - types.go: IncomeSource sum type
  - engine.go: Calls ComputeTarget during Join
*/
package challenge

import (
	"math"

	"github.com/shopspring/decimal"
)

// savingsRate is the share of monthly income pledged per month of challenge.
var savingsRate = decimal.NewFromFloat(0.10)

// DurationMonths returns the challenge duration in months:
// ceil(window / 30 days), minimum 1.
func DurationMonths(c Challenge) int {
	days := c.EndDate.Sub(c.StartDate).Hours() / 24
	months := int(math.Ceil(days / 30))
	if months < 1 {
		months = 1
	}
	return months
}

// ComputeTarget derives the savings target for an income declaration and a
// challenge. Pure function: deterministic, no side effects.
func ComputeTarget(income IncomeSource, c Challenge) (Money, error) {
	basis, err := income.MonthlyBasis()
	if err != nil {
		return Money{}, err
	}

	months := decimal.NewFromInt(int64(DurationMonths(c)))
	target := basis.Value.Mul(savingsRate).Mul(months)

	return MoneyFromDecimal(target, basis.Currency).Round(), nil
}
