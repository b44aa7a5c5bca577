package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prajwalbharadwajbm/adserve/internal/metrics"
	"github.com/prajwalbharadwajbm/adserve/internal/models"
	"github.com/prajwalbharadwajbm/adserve/internal/service"
)

// Outcome labels of engine calls.
const (
	outcomeOK         = "ok"
	outcomeValidation = "validation"
	outcomeNotFound   = "not_found"
	outcomeConflict   = "conflict"
	outcomeForbidden  = "forbidden"
	outcomeTransient  = "transient"
	outcomeInternal   = "internal"
)

// Outcome classifies an engine error into a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrInvalidBudget),
		errors.Is(err, models.ErrInvalidDateRange):
		return outcomeValidation
	case errors.Is(err, models.ErrNotFound):
		return outcomeNotFound
	case errors.Is(err, models.ErrInvalidState), errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrBudgetExhausted):
		return outcomeConflict
	case errors.Is(err, models.ErrForbidden):
		return outcomeForbidden
	case errors.Is(err, models.ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return outcomeTransient
	default:
		return outcomeInternal
	}
}

// serviceMetricsMiddleware counts and times every AdEngine call
type serviceMetricsMiddleware struct {
	metrics *metrics.Metrics
	next    service.AdEngine
}

// NewServiceMetricsMiddleware creates a new service metrics middleware
func NewServiceMetricsMiddleware(metrics *metrics.Metrics) func(service.AdEngine) service.AdEngine {
	return func(next service.AdEngine) service.AdEngine {
		return &serviceMetricsMiddleware{
			metrics: metrics,
			next:    next,
		}
	}
}

func (mw *serviceMetricsMiddleware) record(method string, begin time.Time, err error) {
	mw.metrics.RecordEngineCall(method, Outcome(err), time.Since(begin).Seconds())
}

func (mw *serviceMetricsMiddleware) ActiveAds(ctx context.Context, req models.SelectionRequest) (ads []models.AdView, err error) {
	defer func(begin time.Time) { mw.record("ActiveAds", begin, err) }(time.Now())
	return mw.next.ActiveAds(ctx, req)
}

func (mw *serviceMetricsMiddleware) RecordImpression(ctx context.Context, in models.ImpressionInput) (err error) {
	defer func(begin time.Time) { mw.record("RecordImpression", begin, err) }(time.Now())
	return mw.next.RecordImpression(ctx, in)
}

func (mw *serviceMetricsMiddleware) RecordClick(ctx context.Context, in models.ClickInput) (err error) {
	defer func(begin time.Time) { mw.record("RecordClick", begin, err) }(time.Now())
	return mw.next.RecordClick(ctx, in)
}

func (mw *serviceMetricsMiddleware) RecordConversion(ctx context.Context, in models.ConversionInput) (err error) {
	defer func(begin time.Time) { mw.record("RecordConversion", begin, err) }(time.Now())
	return mw.next.RecordConversion(ctx, in)
}

func (mw *serviceMetricsMiddleware) CreateCampaign(ctx context.Context, in models.NewCampaignInput) (c *models.CampaignWithCreatives, err error) {
	defer func(begin time.Time) { mw.record("CreateCampaign", begin, err) }(time.Now())
	return mw.next.CreateCampaign(ctx, in)
}

func (mw *serviceMetricsMiddleware) GetCampaign(ctx context.Context, id string) (c *models.CampaignWithCreatives, err error) {
	defer func(begin time.Time) { mw.record("GetCampaign", begin, err) }(time.Now())
	return mw.next.GetCampaign(ctx, id)
}

func (mw *serviceMetricsMiddleware) UpdateCampaignStatus(ctx context.Context, id string, status models.CampaignStatus) (c *models.Campaign, err error) {
	defer func(begin time.Time) { mw.record("UpdateCampaignStatus", begin, err) }(time.Now())
	return mw.next.UpdateCampaignStatus(ctx, id, status)
}

func (mw *serviceMetricsMiddleware) UpdateCampaignBudget(ctx context.Context, id string, total decimal.Decimal) (c *models.Campaign, err error) {
	defer func(begin time.Time) { mw.record("UpdateCampaignBudget", begin, err) }(time.Now())
	return mw.next.UpdateCampaignBudget(ctx, id, total)
}

func (mw *serviceMetricsMiddleware) DeleteCampaign(ctx context.Context, id string) (err error) {
	defer func(begin time.Time) { mw.record("DeleteCampaign", begin, err) }(time.Now())
	return mw.next.DeleteCampaign(ctx, id)
}

func (mw *serviceMetricsMiddleware) AddCreative(ctx context.Context, campaignID string, in models.NewCreativeInput) (cr *models.Creative, err error) {
	defer func(begin time.Time) { mw.record("AddCreative", begin, err) }(time.Now())
	return mw.next.AddCreative(ctx, campaignID, in)
}

func (mw *serviceMetricsMiddleware) RemoveCreative(ctx context.Context, campaignID, creativeID string) (err error) {
	defer func(begin time.Time) { mw.record("RemoveCreative", begin, err) }(time.Now())
	return mw.next.RemoveCreative(ctx, campaignID, creativeID)
}

func (mw *serviceMetricsMiddleware) CampaignStatistics(ctx context.Context, req models.StatisticsRequest) (buckets []models.StatBucket, err error) {
	defer func(begin time.Time) { mw.record("CampaignStatistics", begin, err) }(time.Now())
	return mw.next.CampaignStatistics(ctx, req)
}
