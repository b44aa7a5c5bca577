package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	reqcontext "github.com/prajwalbharadwajbm/adserve/internal/context"
	"github.com/prajwalbharadwajbm/adserve/internal/fraud"
	"github.com/prajwalbharadwajbm/adserve/internal/metrics"
	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

// EventRecorder validates and stores impressions, clicks and conversions and
// applies their effect on counters, metrics and budget as one unit per event.
type EventRecorder struct {
	repository  CampaignRepository
	ledger      *Ledger
	lifecycle   *LifecycleManager
	clickWindow ClickWindow
	metrics     *metrics.Metrics
	logger      log.Logger
	opts        Options
}

func NewEventRecorder(deps Dependencies, opts Options, ledger *Ledger, lifecycle *LifecycleManager) *EventRecorder {
	deps = deps.withDefaults()
	window := deps.ClickWindow
	if window == nil {
		window = fraud.NewStoreClickWindow(deps.Repository)
	}
	return &EventRecorder{
		repository:  deps.Repository,
		ledger:      ledger,
		lifecycle:   lifecycle,
		clickWindow: window,
		metrics:     deps.Metrics,
		logger:      log.With(deps.Logger, "component", "recorder"),
		opts:        opts.withDefaults(),
	}
}

// RecordImpression counts every impression and bills those at or above the
// viewability threshold.
func (r *EventRecorder) RecordImpression(ctx context.Context, in models.ImpressionInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	ev := r.newEvent(models.EventImpression, in.EventContext)
	ev.Viewability = in.Viewability
	billable := in.Billable()

	var exhausted bool
	updated, err := r.apply(ctx, ev, func(c *models.Campaign, cr *models.Creative) error {
		c.Metrics.Impressions++
		cr.Impressions++
		cr.RecomputeCTR()
		if billable {
			ev.Cost, exhausted = r.ledger.charge(c, c.Pricing.ImpressionCost(), ev.OccurredAt)
		} else {
			c.RecomputeMetrics()
			c.UpdatedAt = ev.OccurredAt
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.metrics.RecordSpend(updated.Budget.Currency, ev.Cost.InexactFloat64())
	r.metrics.RecordEvent(string(ev.Type), billable)
	if exhausted {
		r.lifecycle.CampaignCompleted(context.WithoutCancel(ctx), updated, ReasonBudgetExhausted)
	}
	return nil
}

// RecordClick counts a click, bills it for cost-per-click campaigns and runs
// the click-frequency heuristic. A flagged click is still recorded.
func (r *EventRecorder) RecordClick(ctx context.Context, in models.ClickInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	ev := r.newEvent(models.EventClick, in.EventContext)
	billable := false

	var exhausted bool
	updated, err := r.apply(ctx, ev, func(c *models.Campaign, cr *models.Creative) error {
		c.Metrics.Clicks++
		cr.Clicks++
		cr.RecomputeCTR()
		if cost := c.Pricing.ClickCost(); cost.IsPositive() {
			billable = true
			ev.Cost, exhausted = r.ledger.charge(c, cost, ev.OccurredAt)
		} else {
			c.RecomputeMetrics()
			c.UpdatedAt = ev.OccurredAt
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.metrics.RecordSpend(updated.Budget.Currency, ev.Cost.InexactFloat64())
	r.metrics.RecordEvent(string(ev.Type), billable)
	r.checkClickFrequency(ctx, ev)
	if exhausted {
		r.lifecycle.CampaignCompleted(context.WithoutCancel(ctx), updated, ReasonBudgetExhausted)
	}
	return nil
}

// RecordConversion counts a conversion and its value. Purchases with a value
// notify the client.
func (r *EventRecorder) RecordConversion(ctx context.Context, in models.ConversionInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	ev := r.newEvent(models.EventConversion, in.EventContext)
	ev.ConversionType = in.ConversionType
	ev.Value = in.Value
	ev.Metadata = in.Metadata

	updated, err := r.apply(ctx, ev, func(c *models.Campaign, cr *models.Creative) error {
		c.Metrics.Conversions++
		c.Metrics.ConversionValue = c.Metrics.ConversionValue.Add(in.Value)
		cr.Conversions++
		c.RecomputeMetrics()
		c.UpdatedAt = ev.OccurredAt
		return nil
	})
	if err != nil {
		return err
	}

	r.metrics.RecordEvent(string(ev.Type), false)
	if in.Notifiable() {
		r.lifecycle.dispatch(models.Notification{
			Kind:         models.NotifyPurchaseConversion,
			CampaignID:   updated.ID,
			CampaignName: updated.Name,
			ClientID:     updated.ClientID,
			Value:        in.Value,
			Currency:     updated.Budget.Currency,
			OccurredAt:   ev.OccurredAt,
		})
	}
	return nil
}

func (r *EventRecorder) newEvent(t models.EventType, ec models.EventContext) *models.Event {
	return &models.Event{
		ID:         uuid.NewString(),
		Type:       t,
		CampaignID: ec.CampaignID,
		CreativeID: ec.CreativeID,
		UserID:     ec.UserID,
		PageURL:    ec.PageURL,
		Position:   ec.Position,
		Device:     ec.Device,
		Cost:       decimal.Zero,
		Value:      decimal.Zero,
		OccurredAt: r.opts.Now().UTC(),
	}
}

// apply runs mutate under the campaign's serialization point after checking
// that the creative belongs to an active campaign, and persists ev with it.
// The store call is bounded by the event timeout.
func (r *EventRecorder) apply(ctx context.Context, ev *models.Event, mutate func(*models.Campaign, *models.Creative) error) (*models.Campaign, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.EventTimeout)
	defer cancel()

	updated, err := r.repository.ApplyEvent(ctx, ev, func(c *models.Campaign, cr *models.Creative) error {
		if cr.CampaignID != c.ID {
			return fmt.Errorf("%w: creative %s does not belong to campaign %s", models.ErrNotFound, cr.ID, c.ID)
		}
		// An impression against a campaign that spent everything reports the
		// budget, even though exhaustion has also completed it.
		if ev.Type == models.EventImpression && c.Budget.Exhausted() {
			return fmt.Errorf("%w: campaign %s", models.ErrBudgetExhausted, c.ID)
		}
		if !c.IsActive() {
			return fmt.Errorf("%w: campaign %s is %s", models.ErrInvalidState, c.ID, c.Status)
		}
		return mutate(c, cr)
	})
	if err != nil {
		r.metrics.RecordEventFailure(string(ev.Type), failureReason(err))
		level.Warn(r.logger).Log("msg", "event rejected", "type", ev.Type, "campaign_id", ev.CampaignID,
			"creative_id", ev.CreativeID, "err", err)
		return nil, fmt.Errorf("failed to record %s: %w", ev.Type, models.AsTransient(err))
	}
	return updated, nil
}

func (r *EventRecorder) checkClickFrequency(ctx context.Context, ev *models.Event) {
	key := fraud.Key(ev.UserID, reqcontext.GetRemoteAddr(ctx))
	if key == "" {
		return
	}
	count, err := r.clickWindow.Observe(ctx, key, ev.CreativeID, ev.OccurredAt, r.opts.FraudWindow)
	if err != nil {
		level.Warn(r.logger).Log("msg", "click frequency check failed", "creative_id", ev.CreativeID, "err", err)
		return
	}
	if count > r.opts.FraudClickThreshold {
		r.metrics.RecordSuspectedClickFraud(ev.CampaignID)
		level.Warn(r.logger).Log("msg", "suspicious click frequency", "campaign_id", ev.CampaignID,
			"creative_id", ev.CreativeID, "user", key, "clicks", count, "window", r.opts.FraudWindow)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, models.ErrBudgetExhausted):
		return "budget_exhausted"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "store_error"
	}
}
