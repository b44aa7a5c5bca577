package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	reqcontext "github.com/prajwalbharadwajbm/adserve/internal/context"
	"github.com/prajwalbharadwajbm/adserve/internal/metrics"
	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

// Completion reasons, also used as the metrics trigger label.
const (
	ReasonManual          = "manual"
	ReasonEndDate         = "end_date"
	ReasonBudgetExhausted = "budget_exhausted"
)

// startSkew is how far in the past a new campaign's start may lie, to absorb
// clock drift between the client and this instance.
const startSkew = 5 * time.Minute

// errNothingToDo aborts an expiry whose campaign no longer needs completing.
var errNothingToDo = fmt.Errorf("%w: campaign no longer due for completion", models.ErrInvalidState)

// LifecycleManager owns campaign status transitions, both the user-driven ones
// and the automatic completions on end date and budget exhaustion.
type LifecycleManager struct {
	repository  CampaignRepository
	invalidator ResultInvalidator
	notifier    Notifier
	assets      AssetStore
	sweepLock   SweepLock
	metrics     *metrics.Metrics
	logger      log.Logger
	opts        Options

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool

	// base outlives individual requests; timers and notifications run on it.
	base     context.Context
	stop     context.CancelFunc
	loops    sync.WaitGroup
	inflight sync.WaitGroup
}

func NewLifecycleManager(deps Dependencies, opts Options) *LifecycleManager {
	deps = deps.withDefaults()
	opts = opts.withDefaults()
	base, stop := context.WithCancel(context.Background())
	return &LifecycleManager{
		repository:  deps.Repository,
		invalidator: deps.Invalidator,
		notifier:    deps.Notifier,
		assets:      deps.Assets,
		sweepLock:   deps.SweepLock,
		metrics:     deps.Metrics,
		logger:      log.With(deps.Logger, "component", "lifecycle"),
		opts:        opts,
		timers:      make(map[string]*time.Timer),
		base:        base,
		stop:        stop,
	}
}

// Start re-arms end timers for every persisted active campaign and starts the
// periodic sweep that backstops them.
func (m *LifecycleManager) Start(ctx context.Context) error {
	active, err := m.repository.ListCampaignsByStatus(ctx, models.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to load active campaigns: %w", models.AsTransient(err))
	}
	for i := range active {
		m.arm(&active[i])
	}
	level.Info(m.logger).Log("msg", "lifecycle manager started", "active_campaigns", len(active),
		"sweep_interval", m.opts.SweepInterval)

	m.loops.Add(1)
	go m.sweepLoop()
	return nil
}

// Stop halts the sweep and all timers and waits for in-flight notifications.
func (m *LifecycleManager) Stop() {
	m.stop()
	m.loops.Wait()

	// Once stopped is set under mu no dispatch can add to inflight.
	m.mu.Lock()
	m.stopped = true
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
	m.mu.Unlock()

	m.inflight.Wait()
	level.Info(m.logger).Log("msg", "lifecycle manager stopped")
}

// Wait blocks until dispatched notifications have been handed off.
func (m *LifecycleManager) Wait() {
	m.inflight.Wait()
}

func (m *LifecycleManager) sweepLoop() {
	defer m.loops.Done()

	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.base.Done():
			return
		case <-ticker.C:
			if err := m.Sweep(m.base); err != nil {
				level.Error(m.logger).Log("msg", "lifecycle sweep failed", "err", err)
			}
		}
	}
}

// Sweep completes every active campaign whose end date has passed. It is safe
// to run concurrently on several instances: the lock keeps it to one, and the
// completion itself only applies to campaigns that are still active.
func (m *LifecycleManager) Sweep(ctx context.Context) error {
	if m.sweepLock != nil {
		ok, err := m.sweepLock.Acquire(ctx)
		if err != nil {
			return err
		}
		if !ok {
			level.Debug(m.logger).Log("msg", "sweep skipped, lock held elsewhere")
			return nil
		}
		defer func() {
			if err := m.sweepLock.Release(ctx); err != nil {
				level.Warn(m.logger).Log("msg", "failed to release sweep lock", "err", err)
			}
		}()
	}

	active, err := m.repository.ListCampaignsByStatus(ctx, models.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to list active campaigns: %w", models.AsTransient(err))
	}

	now := m.opts.Now()
	expired := 0
	for i := range active {
		if now.Before(active[i].Dates.End) {
			continue
		}
		if m.expire(ctx, active[i].ID) {
			expired++
		}
	}
	if expired > 0 {
		level.Info(m.logger).Log("msg", "sweep completed campaigns", "count", expired)
	}
	return nil
}

// expire completes the campaign if it is still active and past its end date.
func (m *LifecycleManager) expire(ctx context.Context, id string) bool {
	updated, err := m.repository.UpdateCampaign(ctx, id, func(c *models.Campaign) error {
		now := m.opts.Now()
		if !c.IsActive() || now.Before(c.Dates.End) {
			return errNothingToDo
		}
		completeCampaign(c, now)
		return nil
	})
	if err != nil {
		if !errors.Is(err, errNothingToDo) {
			level.Error(m.logger).Log("msg", "failed to expire campaign", "campaign_id", id, "err", err)
		}
		m.disarm(id)
		return false
	}
	m.CampaignCompleted(ctx, updated, ReasonEndDate)
	return true
}

func (m *LifecycleManager) arm(c *models.Campaign) {
	id := c.ID
	delay := c.Dates.End.Sub(m.opts.Now())
	if delay < 0 {
		delay = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[id]; ok {
		t.Stop()
	}
	m.timers[id] = time.AfterFunc(delay, func() {
		if m.base.Err() != nil {
			return
		}
		m.expire(m.base, id)
	})
}

func (m *LifecycleManager) disarm(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}
}

// armed reports whether an end timer is pending for the campaign.
func (m *LifecycleManager) armed(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.timers[id]
	return ok
}

// completeCampaign moves an active campaign to completed in place.
func completeCampaign(c *models.Campaign, now time.Time) {
	c.Status = models.StatusCompleted
	c.CompletedAt = &now
	c.UpdatedAt = now
}

// CampaignCompleted runs the side effects of a completion that has already
// been persisted: the timer is dropped, cached results are invalidated and the
// client is notified.
func (m *LifecycleManager) CampaignCompleted(ctx context.Context, c *models.Campaign, reason string) {
	m.disarm(c.ID)
	m.metrics.RecordTransition(string(models.StatusCompleted), reason)
	if reason == ReasonBudgetExhausted {
		m.metrics.RecordBudgetExhausted()
	}
	m.invalidate(ctx, c)

	level.Info(m.logger).Log("msg", "campaign completed", "campaign_id", c.ID, "reason", reason,
		"spent", c.Budget.Spent.String(), "remaining", c.Budget.Remaining.String())

	m.dispatch(models.Notification{
		Kind:         models.NotifyCampaignCompleted,
		CampaignID:   c.ID,
		CampaignName: c.Name,
		ClientID:     c.ClientID,
		Reason:       reason,
		Value:        c.Budget.Spent,
		Currency:     c.Budget.Currency,
		OccurredAt:   m.opts.Now(),
	})
}

// dispatch hands a notification to the notifier without blocking the caller.
// Notifications raised after Stop are dropped.
func (m *LifecycleManager) dispatch(n models.Notification) {
	if m.notifier == nil {
		return
	}
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		level.Warn(m.logger).Log("msg", "notification dropped after shutdown", "kind", n.Kind, "campaign_id", n.CampaignID)
		return
	}
	m.inflight.Add(1)
	m.mu.Unlock()
	go func() {
		defer m.inflight.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(m.base), m.opts.NotifyTimeout)
		defer cancel()

		if n.Recipient == "" {
			client, err := m.repository.GetClient(ctx, n.ClientID)
			switch {
			case err == nil:
				n.Recipient = client.Email
			case !errors.Is(err, models.ErrNotFound):
				level.Warn(m.logger).Log("msg", "failed to resolve notification recipient", "client_id", n.ClientID, "err", err)
			}
		}

		err := m.notifier.Notify(ctx, n)
		m.metrics.RecordNotification(string(n.Kind), err)
		if err != nil {
			level.Error(m.logger).Log("msg", "notification failed", "kind", n.Kind, "campaign_id", n.CampaignID, "err", err)
		}
	}()
}

func (m *LifecycleManager) invalidate(ctx context.Context, c *models.Campaign) {
	if err := m.invalidator.InvalidatePlacements(ctx, c.Targeting.Placements); err != nil {
		level.Warn(m.logger).Log("msg", "failed to invalidate cached results", "campaign_id", c.ID, "err", err)
	}
}

// authorize rejects callers that neither own the campaign nor are admins.
// Calls without a caller identity are internal and always allowed.
func authorize(ctx context.Context, clientID string) error {
	caller, ok := reqcontext.GetCaller(ctx)
	if !ok || caller.IsAdmin() || caller.ID == clientID {
		return nil
	}
	return fmt.Errorf("%w: caller %s does not own client %s campaigns", models.ErrForbidden, caller.ID, clientID)
}

// CreateCampaign validates the input and stores a new draft campaign.
func (m *LifecycleManager) CreateCampaign(ctx context.Context, in models.NewCampaignInput) (*models.CampaignWithCreatives, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := authorize(ctx, in.ClientID); err != nil {
		return nil, err
	}

	now := m.opts.Now().UTC()
	dates, err := models.NewDates(in.Start, in.End)
	if err != nil {
		return nil, err
	}
	if dates.Start.Before(now.Add(-startSkew)) {
		return nil, fmt.Errorf("%w: start %s is in the past", models.ErrInvalidDateRange, dates.Start.Format(time.RFC3339))
	}
	budget, err := models.NewBudget(in.Total, in.Currency)
	if err != nil {
		return nil, err
	}

	createdBy := in.CreatedBy
	if caller, ok := reqcontext.GetCaller(ctx); ok && createdBy == "" {
		createdBy = caller.ID
	}

	c := &models.CampaignWithCreatives{
		Campaign: models.Campaign{
			ID:        uuid.NewString(),
			Name:      in.Name,
			Type:      in.Type,
			ClientID:  in.ClientID,
			CreatedBy: createdBy,
			Budget:    budget,
			Dates:     dates,
			Pricing:   in.Pricing,
			Targeting: in.Targeting,
			Status:    models.StatusDraft,
			Metrics:   models.Metrics{ConversionValue: decimal.Zero},
			CreatedAt: now,
			UpdatedAt: now,
		},
		Creatives: make([]models.Creative, 0, len(in.Creatives)),
	}
	for i := range in.Creatives {
		c.Creatives = append(c.Creatives, newCreative(c.ID, in.Creatives[i], now))
	}

	if err := m.repository.CreateCampaign(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", models.AsTransient(err))
	}
	level.Info(m.logger).Log("msg", "campaign created", "campaign_id", c.ID, "client_id", c.ClientID,
		"creatives", len(c.Creatives), "total", c.Budget.Total.String())
	return c, nil
}

func newCreative(campaignID string, in models.NewCreativeInput, now time.Time) models.Creative {
	return models.Creative{
		ID:             uuid.NewString(),
		CampaignID:     campaignID,
		Title:          in.Title,
		Description:    in.Description,
		CallToAction:   in.CallToAction,
		DestinationURL: in.DestinationURL,
		Content:        in.Content,
		Primary:        in.Primary,
		Status:         in.Status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// GetCampaign returns the campaign with its creatives.
func (m *LifecycleManager) GetCampaign(ctx context.Context, id string) (*models.CampaignWithCreatives, error) {
	c, err := m.repository.GetCampaign(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign %s: %w", id, models.AsTransient(err))
	}
	if err := authorize(ctx, c.ClientID); err != nil {
		return nil, err
	}
	return c, nil
}

// Transition applies a status change from the transition table.
func (m *LifecycleManager) Transition(ctx context.Context, id string, to models.CampaignStatus) (*models.Campaign, error) {
	var from models.CampaignStatus
	updated, err := m.repository.UpdateCampaign(ctx, id, func(c *models.Campaign) error {
		if err := authorize(ctx, c.ClientID); err != nil {
			return err
		}
		if err := models.ValidateTransition(c.Status, to); err != nil {
			return err
		}
		now := m.opts.Now()
		from = c.Status
		switch to {
		case models.StatusActive:
			if c.Budget.Exhausted() {
				return fmt.Errorf("%w: campaign %s has no remaining budget", models.ErrBudgetExhausted, c.ID)
			}
			c.ActivatedAt = &now
		case models.StatusCompleted:
			c.CompletedAt = &now
		}
		c.Status = to
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update status of campaign %s: %w", id, models.AsTransient(err))
	}

	level.Info(m.logger).Log("msg", "campaign status changed", "campaign_id", id, "from", from, "to", to)

	switch to {
	case models.StatusActive:
		m.arm(updated)
	case models.StatusCompleted:
		m.CampaignCompleted(ctx, updated, ReasonManual)
		return updated, nil
	default:
		m.disarm(id)
	}
	m.metrics.RecordTransition(string(to), ReasonManual)
	m.invalidate(ctx, updated)
	return updated, nil
}

// UpdateBudget replaces the campaign total; the new total must exceed spend.
func (m *LifecycleManager) UpdateBudget(ctx context.Context, id string, total decimal.Decimal) (*models.Campaign, error) {
	updated, err := m.repository.UpdateCampaign(ctx, id, func(c *models.Campaign) error {
		if err := authorize(ctx, c.ClientID); err != nil {
			return err
		}
		if c.Status.IsTerminal() {
			if c.Status == models.StatusCompleted && c.Budget.Exhausted() {
				return fmt.Errorf("%w: campaign %s completed after spending its budget", models.ErrBudgetExhausted, c.ID)
			}
			return fmt.Errorf("%w: budget of a %s campaign cannot change", models.ErrInvalidState, c.Status)
		}
		if err := c.Budget.Resize(total); err != nil {
			return err
		}
		c.RecomputeMetrics()
		c.UpdatedAt = m.opts.Now()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update budget of campaign %s: %w", id, models.AsTransient(err))
	}
	level.Info(m.logger).Log("msg", "campaign budget changed", "campaign_id", id,
		"total", updated.Budget.Total.String(), "remaining", updated.Budget.Remaining.String())
	m.invalidate(ctx, updated)
	return updated, nil
}

// DeleteCampaign removes an inactive, unspent campaign with its creatives,
// events and creative assets.
func (m *LifecycleManager) DeleteCampaign(ctx context.Context, id string) error {
	var deleted models.Campaign
	creatives, err := m.repository.DeleteCampaign(ctx, id, func(c *models.Campaign) error {
		if err := authorize(ctx, c.ClientID); err != nil {
			return err
		}
		if c.IsActive() {
			return fmt.Errorf("%w: active campaigns cannot be deleted", models.ErrInvalidState)
		}
		if c.Budget.Spent.IsPositive() {
			return fmt.Errorf("%w: campaign has spent %s", models.ErrInvalidState, c.Budget.Spent)
		}
		deleted = *c
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete campaign %s: %w", id, models.AsTransient(err))
	}

	m.disarm(id)
	for i := range creatives {
		m.deleteAsset(ctx, &creatives[i])
	}
	m.invalidate(ctx, &deleted)
	level.Info(m.logger).Log("msg", "campaign deleted", "campaign_id", id, "creatives", len(creatives))
	return nil
}

// AddCreative attaches a new creative. A new primary creative demotes the old one.
func (m *LifecycleManager) AddCreative(ctx context.Context, campaignID string, in models.NewCreativeInput) (*models.Creative, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	c, err := m.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot add creatives to a %s campaign", models.ErrInvalidState, c.Status)
	}

	cr := newCreative(campaignID, in, m.opts.Now().UTC())
	if err := m.repository.AddCreative(ctx, &cr); err != nil {
		return nil, fmt.Errorf("failed to add creative: %w", models.AsTransient(err))
	}
	m.invalidate(ctx, &c.Campaign)
	return &cr, nil
}

// RemoveCreative deletes a creative that has never been shown.
func (m *LifecycleManager) RemoveCreative(ctx context.Context, campaignID, creativeID string) error {
	c, err := m.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	removed, err := m.repository.DeleteCreative(ctx, campaignID, creativeID, func(cr *models.Creative) error {
		if cr.Impressions > 0 {
			return fmt.Errorf("%w: creative %s has %d impressions", models.ErrInvalidState, cr.ID, cr.Impressions)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove creative %s: %w", creativeID, models.AsTransient(err))
	}
	m.deleteAsset(ctx, removed)
	m.invalidate(ctx, &c.Campaign)
	return nil
}

// deleteAsset is best effort; an orphaned object does not fail the request.
func (m *LifecycleManager) deleteAsset(ctx context.Context, cr *models.Creative) {
	if m.assets == nil || cr.Content.StorageKey == "" {
		return
	}
	if err := m.assets.Delete(ctx, cr.Content.StorageKey); err != nil {
		level.Warn(m.logger).Log("msg", "failed to delete creative asset", "creative_id", cr.ID,
			"key", cr.Content.StorageKey, "err", err)
	}
}
