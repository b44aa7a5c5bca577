package service

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/shopspring/decimal"

	"github.com/prajwalbharadwajbm/adserve/internal/metrics"
	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

// AdEngine is the boundary of the ad serving and accounting core.
type AdEngine interface {
	ActiveAds(ctx context.Context, req models.SelectionRequest) ([]models.AdView, error)

	RecordImpression(ctx context.Context, in models.ImpressionInput) error
	RecordClick(ctx context.Context, in models.ClickInput) error
	RecordConversion(ctx context.Context, in models.ConversionInput) error

	CreateCampaign(ctx context.Context, in models.NewCampaignInput) (*models.CampaignWithCreatives, error)
	GetCampaign(ctx context.Context, id string) (*models.CampaignWithCreatives, error)
	UpdateCampaignStatus(ctx context.Context, id string, status models.CampaignStatus) (*models.Campaign, error)
	UpdateCampaignBudget(ctx context.Context, id string, total decimal.Decimal) (*models.Campaign, error)
	DeleteCampaign(ctx context.Context, id string) error
	AddCreative(ctx context.Context, campaignID string, in models.NewCreativeInput) (*models.Creative, error)
	RemoveCreative(ctx context.Context, campaignID, creativeID string) error

	CampaignStatistics(ctx context.Context, req models.StatisticsRequest) ([]models.StatBucket, error)
}

// AdSelector returns the best creatives for a normalized selection request.
type AdSelector interface {
	SelectAds(ctx context.Context, req models.SelectionRequest) ([]models.AdView, error)
}

// CampaignRepository is the campaign store. Mutations that take a mutate
// callback run it inside the store's per-campaign serialization point; an
// error returned by the callback aborts the write and is returned unchanged.
type CampaignRepository interface {
	ListServableCampaigns(ctx context.Context, now time.Time) ([]models.CampaignWithCreatives, error)
	ListCampaignsByStatus(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error)
	GetCampaign(ctx context.Context, id string) (*models.CampaignWithCreatives, error)
	GetCreative(ctx context.Context, id string) (*models.Creative, error)
	GetClient(ctx context.Context, id string) (*models.Client, error)

	CreateCampaign(ctx context.Context, c *models.CampaignWithCreatives) error
	UpdateCampaign(ctx context.Context, id string, mutate func(*models.Campaign) error) (*models.Campaign, error)
	ApplyEvent(ctx context.Context, ev *models.Event, mutate func(*models.Campaign, *models.Creative) error) (*models.Campaign, error)
	AddCreative(ctx context.Context, cr *models.Creative) error
	DeleteCreative(ctx context.Context, campaignID, creativeID string, guard func(*models.Creative) error) (*models.Creative, error)
	DeleteCampaign(ctx context.Context, id string, guard func(*models.Campaign) error) ([]models.Creative, error)

	CountClicks(ctx context.Context, userID, creativeID string, since time.Time) (int, error)
	ListEvents(ctx context.Context, campaignID string, start, end time.Time) ([]models.Event, error)
}

// ResultInvalidator drops cached selection results. Empty placements means all.
type ResultInvalidator interface {
	InvalidatePlacements(ctx context.Context, placements []string) error
}

// Notifier delivers a client notification.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// AssetStore deletes creative assets by storage reference.
type AssetStore interface {
	Delete(ctx context.Context, ref string) error
}

// ClickWindow counts clicks per (viewer, creative) in a trailing window.
type ClickWindow interface {
	// Observe records a click at `at` and returns how many clicks the key
	// made on the creative within the window ending at `at`, this one included.
	Observe(ctx context.Context, key, creativeID string, at time.Time, window time.Duration) (int, error)
}

// SweepLock guards the periodic lifecycle sweep across instances.
type SweepLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Dependencies are the collaborators of the engine. Only Repository is required.
type Dependencies struct {
	Repository  CampaignRepository
	Invalidator ResultInvalidator
	Notifier    Notifier
	Assets      AssetStore
	ClickWindow ClickWindow
	SweepLock   SweepLock
	Metrics     *metrics.Metrics
	Logger      log.Logger
}

// Options tune the engine. Zero values fall back to defaults.
type Options struct {
	DefaultLimit        int
	MaxLimit            int
	FraudClickThreshold int
	FraudWindow         time.Duration
	EventTimeout        time.Duration
	SweepInterval       time.Duration
	NotifyTimeout       time.Duration
	TrackingBaseURL     string
	Weights             ScoringWeights
	Now                 func() time.Time
}

func (o Options) withDefaults() Options {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = 3
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = 20
	}
	if o.FraudClickThreshold <= 0 {
		o.FraudClickThreshold = 5
	}
	if o.FraudWindow <= 0 {
		o.FraudWindow = time.Hour
	}
	if o.EventTimeout <= 0 {
		o.EventTimeout = 2 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = 10 * time.Second
	}
	if o.Weights == (ScoringWeights{}) {
		o.Weights = DefaultScoringWeights
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Logger == nil {
		d.Logger = log.NewNopLogger()
	}
	if d.Invalidator == nil {
		d.Invalidator = noopInvalidator{}
	}
	return d
}

type noopInvalidator struct{}

func (noopInvalidator) InvalidatePlacements(context.Context, []string) error { return nil }
