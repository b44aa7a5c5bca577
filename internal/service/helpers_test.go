package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/prajwalbharadwajbm/adserve/internal/metrics"
	"github.com/prajwalbharadwajbm/adserve/internal/models"
	"github.com/prajwalbharadwajbm/adserve/internal/repository"
	"github.com/prajwalbharadwajbm/adserve/internal/service"
)

var testStart = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// fakeClock is a settable clock shared by the engine under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return nil
}

func (n *recordingNotifier) Sent() []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Notification(nil), n.sent...)
}

func (n *recordingNotifier) OfKind(kind models.NotificationKind) []models.Notification {
	var out []models.Notification
	for _, note := range n.Sent() {
		if note.Kind == kind {
			out = append(out, note)
		}
	}
	return out
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls [][]string
}

func (i *recordingInvalidator) InvalidatePlacements(_ context.Context, placements []string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls = append(i.calls, placements)
	return nil
}

func (i *recordingInvalidator) Calls() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.calls)
}

type recordingAssets struct {
	mu      sync.Mutex
	deleted []string
}

func (a *recordingAssets) Delete(_ context.Context, ref string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, ref)
	return nil
}

func (a *recordingAssets) Deleted() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.deleted...)
}

type harness struct {
	engine      *service.Engine
	repo        *repository.MemoryRepository
	clock       *fakeClock
	notifier    *recordingNotifier
	invalidator *recordingInvalidator
	assets      *recordingAssets
	metrics     *metrics.Metrics
}

type harnessOption func(*service.Dependencies, *service.Options)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		repo:        repository.NewMemoryRepository(),
		clock:       newFakeClock(testStart),
		notifier:    &recordingNotifier{},
		invalidator: &recordingInvalidator{},
		assets:      &recordingAssets{},
		metrics:     metrics.NewPrometheusMetrics(prometheus.NewRegistry()),
	}
	h.repo.SaveClient(models.Client{ID: "acme", Name: "Acme", Email: "ads@acme.test"})

	deps := service.Dependencies{
		Repository:  h.repo,
		Invalidator: h.invalidator,
		Notifier:    h.notifier,
		Assets:      h.assets,
		Metrics:     h.metrics,
	}
	options := service.Options{
		TrackingBaseURL: "https://track.example.com/",
		Now:             h.clock.Now,
	}
	for _, opt := range opts {
		opt(&deps, &options)
	}

	h.engine = service.NewEngine(deps, options, nil)
	t.Cleanup(h.engine.Stop)
	return h
}

func newCampaignInput(now time.Time) models.NewCampaignInput {
	return models.NewCampaignInput{
		Name:     "Spring Sale",
		Type:     models.AdTypeBanner,
		ClientID: "acme",
		Total:    decimal.NewFromInt(1000),
		Currency: "USD",
		Start:    now,
		End:      now.AddDate(0, 0, 7),
		Pricing:  models.Pricing{Model: models.PricingCPM, BaseRate: decimal.NewFromInt(5)},
		Targeting: models.Targeting{
			Placements: []string{"homepage"},
		},
		Creatives: []models.NewCreativeInput{
			{
				Title:          "Hero banner",
				DestinationURL: "https://acme.test/sale",
				Content:        models.Content{URL: "https://cdn.acme.test/hero.png", StorageKey: "s3://assets/hero.png"},
				Primary:        true,
			},
			{
				Title:          "Side banner",
				DestinationURL: "https://acme.test/sale",
				Content:        models.Content{URL: "https://cdn.acme.test/side.png", StorageKey: "creatives/side.png"},
			},
		},
	}
}

// createCampaign stores a draft campaign built from the default input after
// applying edit.
func (h *harness) createCampaign(t *testing.T, edit func(*models.NewCampaignInput)) *models.CampaignWithCreatives {
	t.Helper()
	in := newCampaignInput(h.clock.Now())
	if edit != nil {
		edit(&in)
	}
	c, err := h.engine.CreateCampaign(context.Background(), in)
	require.NoError(t, err)
	return c
}

// createActive stores and activates a campaign.
func (h *harness) createActive(t *testing.T, edit func(*models.NewCampaignInput)) *models.CampaignWithCreatives {
	t.Helper()
	c := h.createCampaign(t, edit)
	_, err := h.engine.UpdateCampaignStatus(context.Background(), c.ID, models.StatusActive)
	require.NoError(t, err)
	c.Status = models.StatusActive
	return c
}

func (h *harness) campaign(t *testing.T, id string) *models.CampaignWithCreatives {
	t.Helper()
	c, err := h.engine.GetCampaign(context.Background(), id)
	require.NoError(t, err)
	return c
}

func eventContext(c *models.CampaignWithCreatives, creative int) models.EventContext {
	return models.EventContext{
		CampaignID: c.ID,
		CreativeID: c.Creatives[creative].ID,
	}
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}
