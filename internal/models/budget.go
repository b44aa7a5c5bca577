package models

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Budget tracks money committed to a campaign.
// Invariant: Spent + Remaining == Total, Remaining >= 0, Spent never decreases.
type Budget struct {
	Total     decimal.Decimal `json:"total"`
	Spent     decimal.Decimal `json:"spent"`
	Remaining decimal.Decimal `json:"remaining"`
	Currency  string          `json:"currency"`
}

// DefaultCurrency is used when a campaign is created without one.
const DefaultCurrency = "USD"

// NewBudget creates an unspent budget.
func NewBudget(total decimal.Decimal, currency string) (Budget, error) {
	if !total.IsPositive() {
		return Budget{}, fmt.Errorf("%w: total must be greater than zero", ErrInvalidBudget)
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return Budget{
		Total:     total,
		Spent:     decimal.Zero,
		Remaining: total,
		Currency:  currency,
	}, nil
}

// Debit charges amount against the remaining balance and returns what was
// actually charged. A charge larger than the balance is clamped to it.
func (b *Budget) Debit(amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() || !b.Remaining.IsPositive() {
		return decimal.Zero
	}
	charged := decimal.Min(amount, b.Remaining)
	b.Spent = b.Spent.Add(charged)
	b.Remaining = b.Remaining.Sub(charged)
	return charged
}

// Resize replaces the total. The new total must exceed what is already spent.
func (b *Budget) Resize(newTotal decimal.Decimal) error {
	if !newTotal.GreaterThan(b.Spent) {
		return fmt.Errorf("%w: new total %s must exceed spent %s", ErrInvalidBudget, newTotal, b.Spent)
	}
	b.Total = newTotal
	b.Remaining = newTotal.Sub(b.Spent)
	return nil
}

// Exhausted reports whether nothing is left to spend.
func (b Budget) Exhausted() bool {
	return !b.Remaining.IsPositive()
}

// Consistent checks the ledger invariant.
func (b Budget) Consistent() bool {
	return b.Spent.Add(b.Remaining).Equal(b.Total) && !b.Remaining.IsNegative() && !b.Spent.IsNegative()
}

// RemainingRatio is remaining/total, 0 for a zero total.
func (b Budget) RemainingRatio() float64 {
	if !b.Total.IsPositive() {
		return 0
	}
	return b.Remaining.Div(b.Total).InexactFloat64()
}

// Dates is the flight window of a campaign. Start is strictly before End.
type Dates struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	DurationDays int       `json:"durationDays"`
}

// NewDates validates the window and derives the duration in whole days, rounded up.
func NewDates(start, end time.Time) (Dates, error) {
	if !start.Before(end) {
		return Dates{}, fmt.Errorf("%w: start %s must be before end %s",
			ErrInvalidDateRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	days := int(math.Ceil(end.Sub(start).Hours() / 24))
	return Dates{Start: start.UTC(), End: end.UTC(), DurationDays: days}, nil
}

// Contains reports whether t falls within [Start, End].
func (d Dates) Contains(t time.Time) bool {
	return !t.Before(d.Start) && !t.After(d.End)
}
