package repository

import (
	"context"
	"errors"
	"time"

	"github.com/prajwalbharadwajbm/adserve/internal/metrics"
	"github.com/prajwalbharadwajbm/adserve/internal/models"
	"github.com/prajwalbharadwajbm/adserve/internal/service"
)

// InstrumentedRepository wraps a repository with metrics collection
type InstrumentedRepository struct {
	next    service.CampaignRepository
	metrics *metrics.Metrics
}

// NewInstrumentedRepository creates a new instrumented repository
func NewInstrumentedRepository(repo service.CampaignRepository, metrics *metrics.Metrics) service.CampaignRepository {
	return &InstrumentedRepository{
		next:    repo,
		metrics: metrics,
	}
}

// record counts the query and, for store failures, the error. Domain
// outcomes such as not-found or a rejected mutation are not database errors.
func (r *InstrumentedRepository) record(operation, table string, err error) {
	r.metrics.RecordDatabaseQuery(operation, table)
	if err == nil || models.IsDomainError(err) {
		return
	}
	errorType := "query_error"
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		errorType = "timeout"
	}
	r.metrics.RecordDatabaseError(operation, errorType)
}

func (r *InstrumentedRepository) ListServableCampaigns(ctx context.Context, now time.Time) (campaigns []models.CampaignWithCreatives, err error) {
	defer func() { r.record("select", "campaigns", err) }()
	return r.next.ListServableCampaigns(ctx, now)
}

func (r *InstrumentedRepository) ListCampaignsByStatus(ctx context.Context, status models.CampaignStatus) (campaigns []models.Campaign, err error) {
	defer func() { r.record("select", "campaigns", err) }()
	return r.next.ListCampaignsByStatus(ctx, status)
}

func (r *InstrumentedRepository) GetCampaign(ctx context.Context, id string) (c *models.CampaignWithCreatives, err error) {
	defer func() { r.record("select", "campaigns", err) }()
	return r.next.GetCampaign(ctx, id)
}

func (r *InstrumentedRepository) GetCreative(ctx context.Context, id string) (cr *models.Creative, err error) {
	defer func() { r.record("select", "creatives", err) }()
	return r.next.GetCreative(ctx, id)
}

func (r *InstrumentedRepository) GetClient(ctx context.Context, id string) (c *models.Client, err error) {
	defer func() { r.record("select", "clients", err) }()
	return r.next.GetClient(ctx, id)
}

func (r *InstrumentedRepository) CreateCampaign(ctx context.Context, c *models.CampaignWithCreatives) (err error) {
	defer func() { r.record("insert", "campaigns", err) }()
	return r.next.CreateCampaign(ctx, c)
}

func (r *InstrumentedRepository) UpdateCampaign(ctx context.Context, id string, mutate func(*models.Campaign) error) (c *models.Campaign, err error) {
	defer func() { r.record("update", "campaigns", err) }()
	return r.next.UpdateCampaign(ctx, id, mutate)
}

func (r *InstrumentedRepository) ApplyEvent(ctx context.Context, ev *models.Event, mutate func(*models.Campaign, *models.Creative) error) (c *models.Campaign, err error) {
	defer func() { r.record("insert", "ad_events", err) }()
	return r.next.ApplyEvent(ctx, ev, mutate)
}

func (r *InstrumentedRepository) AddCreative(ctx context.Context, cr *models.Creative) (err error) {
	defer func() { r.record("insert", "creatives", err) }()
	return r.next.AddCreative(ctx, cr)
}

func (r *InstrumentedRepository) DeleteCreative(ctx context.Context, campaignID, creativeID string, guard func(*models.Creative) error) (cr *models.Creative, err error) {
	defer func() { r.record("delete", "creatives", err) }()
	return r.next.DeleteCreative(ctx, campaignID, creativeID, guard)
}

func (r *InstrumentedRepository) DeleteCampaign(ctx context.Context, id string, guard func(*models.Campaign) error) (creatives []models.Creative, err error) {
	defer func() { r.record("delete", "campaigns", err) }()
	return r.next.DeleteCampaign(ctx, id, guard)
}

func (r *InstrumentedRepository) CountClicks(ctx context.Context, userID, creativeID string, since time.Time) (n int, err error) {
	defer func() { r.record("select", "ad_events", err) }()
	return r.next.CountClicks(ctx, userID, creativeID, since)
}

func (r *InstrumentedRepository) ListEvents(ctx context.Context, campaignID string, start, end time.Time) (events []models.Event, err error) {
	defer func() { r.record("select", "ad_events", err) }()
	return r.next.ListEvents(ctx, campaignID, start, end)
}
