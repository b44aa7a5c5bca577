package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/shopspring/decimal"

	"github.com/prajwalbharadwajbm/adserve/internal/metrics"
	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

// Ledger debits campaign budgets. Every debit runs inside the repository's
// per-campaign serialization point, so concurrent charges on one campaign are
// applied one after another and never overdraw it.
type Ledger struct {
	repository CampaignRepository
	lifecycle  *LifecycleManager
	metrics    *metrics.Metrics
	logger     log.Logger
	opts       Options
}

func NewLedger(deps Dependencies, opts Options, lifecycle *LifecycleManager) *Ledger {
	deps = deps.withDefaults()
	return &Ledger{
		repository: deps.Repository,
		lifecycle:  lifecycle,
		metrics:    deps.Metrics,
		logger:     log.With(deps.Logger, "component", "ledger"),
		opts:       opts.withDefaults(),
	}
}

// Debit charges amount to an active campaign and returns the remaining
// balance. A charge larger than the balance is clamped to it; a campaign
// with nothing left is rejected with ErrBudgetExhausted.
func (l *Ledger) Debit(ctx context.Context, campaignID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, models.Validationf("debit amount cannot be negative")
	}

	ctx, cancel := context.WithTimeout(ctx, l.opts.EventTimeout)
	defer cancel()

	var (
		charged   decimal.Decimal
		exhausted bool
	)
	updated, err := l.repository.UpdateCampaign(ctx, campaignID, func(c *models.Campaign) error {
		if !c.IsActive() {
			return fmt.Errorf("%w: campaign %s is %s", models.ErrInvalidState, c.ID, c.Status)
		}
		if c.Budget.Exhausted() {
			return fmt.Errorf("%w: campaign %s", models.ErrBudgetExhausted, c.ID)
		}
		charged, exhausted = l.charge(c, amount, l.opts.Now())
		return nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to debit campaign %s: %w", campaignID, models.AsTransient(err))
	}
	l.metrics.RecordSpend(updated.Budget.Currency, charged.InexactFloat64())

	if exhausted {
		l.lifecycle.CampaignCompleted(context.WithoutCancel(ctx), updated, ReasonBudgetExhausted)
	}
	return updated.Budget.Remaining, nil
}

// Recompute refreshes the derived metrics of c from its raw counters.
func (l *Ledger) Recompute(c *models.Campaign) models.Metrics {
	c.RecomputeMetrics()
	return c.Metrics
}

// charge debits c in place and recomputes its metrics. It must only be called
// while holding the campaign's serialization point. When the debit empties
// the budget of an active campaign the campaign is completed in the same
// unit and exhausted is true.
func (l *Ledger) charge(c *models.Campaign, amount decimal.Decimal, now time.Time) (charged decimal.Decimal, exhausted bool) {
	charged = c.Budget.Debit(amount)
	if charged.LessThan(amount) {
		level.Debug(l.logger).Log("msg", "charge clamped to remaining budget", "campaign_id", c.ID,
			"requested", amount.String(), "charged", charged.String())
	}
	l.Recompute(c)
	c.UpdatedAt = now

	if c.IsActive() && c.Budget.Exhausted() {
		completeCampaign(c, now)
		exhausted = true
	}
	return charged, exhausted
}
