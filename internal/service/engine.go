package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

// Engine implements AdEngine by composing the selector, the event recorder,
// the ledger, the lifecycle manager and the statistics reader.
type Engine struct {
	selector   AdSelector
	recorder   *EventRecorder
	ledger     *Ledger
	lifecycle  *LifecycleManager
	statistics *Statistics
	opts       Options
}

// NewEngine wires the engine. selector may be a decorated selector (for
// instance a result cache); nil uses a plain Selector.
func NewEngine(deps Dependencies, opts Options, selector AdSelector) *Engine {
	deps = deps.withDefaults()
	opts = opts.withDefaults()
	if selector == nil {
		selector = NewSelector(deps, opts)
	}
	lifecycle := NewLifecycleManager(deps, opts)
	ledger := NewLedger(deps, opts, lifecycle)
	return &Engine{
		selector:   selector,
		recorder:   NewEventRecorder(deps, opts, ledger, lifecycle),
		ledger:     ledger,
		lifecycle:  lifecycle,
		statistics: NewStatistics(deps, opts),
		opts:       opts,
	}
}

// Start arms end timers from persisted state and starts the lifecycle sweep.
func (e *Engine) Start(ctx context.Context) error {
	return e.lifecycle.Start(ctx)
}

// Stop halts background work and waits for pending notifications.
func (e *Engine) Stop() {
	e.lifecycle.Stop()
}

// Ledger exposes direct budget debits.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// Lifecycle exposes the lifecycle manager, mainly for sweeps and tests.
func (e *Engine) Lifecycle() *LifecycleManager {
	return e.lifecycle
}

// ActiveAds returns the best creatives for a placement. No eligible ads is an
// empty list, not an error.
func (e *Engine) ActiveAds(ctx context.Context, req models.SelectionRequest) ([]models.AdView, error) {
	req.Normalize(e.opts.DefaultLimit)
	if err := req.Validate(e.opts.MaxLimit); err != nil {
		return nil, err
	}
	req.Context.Now = e.opts.Now()
	return e.selector.SelectAds(ctx, req)
}

func (e *Engine) RecordImpression(ctx context.Context, in models.ImpressionInput) error {
	return e.recorder.RecordImpression(ctx, in)
}

func (e *Engine) RecordClick(ctx context.Context, in models.ClickInput) error {
	return e.recorder.RecordClick(ctx, in)
}

func (e *Engine) RecordConversion(ctx context.Context, in models.ConversionInput) error {
	return e.recorder.RecordConversion(ctx, in)
}

func (e *Engine) CreateCampaign(ctx context.Context, in models.NewCampaignInput) (*models.CampaignWithCreatives, error) {
	return e.lifecycle.CreateCampaign(ctx, in)
}

func (e *Engine) GetCampaign(ctx context.Context, id string) (*models.CampaignWithCreatives, error) {
	return e.lifecycle.GetCampaign(ctx, id)
}

func (e *Engine) UpdateCampaignStatus(ctx context.Context, id string, status models.CampaignStatus) (*models.Campaign, error) {
	return e.lifecycle.Transition(ctx, id, status)
}

func (e *Engine) UpdateCampaignBudget(ctx context.Context, id string, total decimal.Decimal) (*models.Campaign, error) {
	return e.lifecycle.UpdateBudget(ctx, id, total)
}

func (e *Engine) DeleteCampaign(ctx context.Context, id string) error {
	return e.lifecycle.DeleteCampaign(ctx, id)
}

func (e *Engine) AddCreative(ctx context.Context, campaignID string, in models.NewCreativeInput) (*models.Creative, error) {
	return e.lifecycle.AddCreative(ctx, campaignID, in)
}

func (e *Engine) RemoveCreative(ctx context.Context, campaignID, creativeID string) error {
	return e.lifecycle.RemoveCreative(ctx, campaignID, creativeID)
}

func (e *Engine) CampaignStatistics(ctx context.Context, req models.StatisticsRequest) ([]models.StatBucket, error) {
	return e.statistics.ByInterval(ctx, req)
}

var _ AdEngine = (*Engine)(nil)
