package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

// MemoryRepository is an in-process campaign store. Each campaign has its own
// lock so that event application on one campaign never waits on another.
type MemoryRepository struct {
	mu        sync.RWMutex
	campaigns map[string]*models.Campaign
	creatives map[string]*models.Creative
	// order keeps each campaign's creative ids in insertion order.
	order   map[string][]string
	events  map[string][]models.Event
	clients map[string]models.Client
	locks   map[string]chan struct{}
}

// NewMemoryRepository creates an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		campaigns: make(map[string]*models.Campaign),
		creatives: make(map[string]*models.Creative),
		order:     make(map[string][]string),
		events:    make(map[string][]models.Event),
		clients:   make(map[string]models.Client),
		locks:     make(map[string]chan struct{}),
	}
}

// lock takes the campaign's lock, giving up when ctx is done.
func (r *MemoryRepository) lock(ctx context.Context, campaignID string) (func(), error) {
	r.mu.Lock()
	l, ok := r.locks[campaignID]
	if !ok {
		l = make(chan struct{}, 1)
		r.locks[campaignID] = l
	}
	r.mu.Unlock()

	select {
	case l <- struct{}{}:
		return func() { <-l }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SaveClient stores or replaces a client record.
func (r *MemoryRepository) SaveClient(c models.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID] = c
}

func (r *MemoryRepository) GetClient(ctx context.Context, id string) (*models.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: client %s", models.ErrNotFound, id)
	}
	return &c, nil
}

// withCreatives copies a campaign and its creatives; r.mu must be held.
func (r *MemoryRepository) withCreatives(c *models.Campaign) models.CampaignWithCreatives {
	out := models.CampaignWithCreatives{Campaign: *c, Creatives: make([]models.Creative, 0, len(r.order[c.ID]))}
	for _, id := range r.order[c.ID] {
		out.Creatives = append(out.Creatives, *r.creatives[id])
	}
	return out
}

func (r *MemoryRepository) ListServableCampaigns(ctx context.Context, now time.Time) ([]models.CampaignWithCreatives, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []models.CampaignWithCreatives
	for _, c := range r.campaigns {
		if c.Servable(now) {
			result = append(result, r.withCreatives(c))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *MemoryRepository) ListCampaignsByStatus(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []models.Campaign
	for _, c := range r.campaigns {
		if c.Status == status {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *MemoryRepository) GetCampaign(ctx context.Context, id string) (*models.CampaignWithCreatives, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("%w: campaign %s", models.ErrNotFound, id)
	}
	out := r.withCreatives(c)
	return &out, nil
}

func (r *MemoryRepository) GetCreative(ctx context.Context, id string) (*models.Creative, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cr, ok := r.creatives[id]
	if !ok {
		return nil, fmt.Errorf("%w: creative %s", models.ErrNotFound, id)
	}
	out := *cr
	return &out, nil
}

func (r *MemoryRepository) CreateCampaign(ctx context.Context, c *models.CampaignWithCreatives) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.campaigns[c.ID]; exists {
		return fmt.Errorf("campaign %s already exists", c.ID)
	}
	campaign := c.Campaign
	r.campaigns[c.ID] = &campaign
	for i := range c.Creatives {
		cr := c.Creatives[i]
		r.creatives[cr.ID] = &cr
		r.order[c.ID] = append(r.order[c.ID], cr.ID)
	}
	return nil
}

func (r *MemoryRepository) UpdateCampaign(ctx context.Context, id string, mutate func(*models.Campaign) error) (*models.Campaign, error) {
	unlock, err := r.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r.mu.RLock()
	stored, ok := r.campaigns[id]
	var c models.Campaign
	if ok {
		c = *stored
	}
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: campaign %s", models.ErrNotFound, id)
	}

	if err := mutate(&c); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.campaigns[id]; !ok {
		return nil, fmt.Errorf("%w: campaign %s", models.ErrNotFound, id)
	}
	r.campaigns[id] = &c
	out := c
	return &out, nil
}

func (r *MemoryRepository) ApplyEvent(ctx context.Context, ev *models.Event, mutate func(*models.Campaign, *models.Creative) error) (*models.Campaign, error) {
	unlock, err := r.lock(ctx, ev.CampaignID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r.mu.RLock()
	storedCampaign, campaignOK := r.campaigns[ev.CampaignID]
	storedCreative, creativeOK := r.creatives[ev.CreativeID]
	var (
		c  models.Campaign
		cr models.Creative
	)
	if campaignOK {
		c = *storedCampaign
	}
	if creativeOK {
		cr = *storedCreative
	}
	r.mu.RUnlock()

	if !campaignOK {
		return nil, fmt.Errorf("%w: campaign %s", models.ErrNotFound, ev.CampaignID)
	}
	if !creativeOK {
		return nil, fmt.Errorf("%w: creative %s", models.ErrNotFound, ev.CreativeID)
	}

	if err := mutate(&c, &cr); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = &c
	r.creatives[cr.ID] = &cr
	r.events[c.ID] = append(r.events[c.ID], *ev)
	out := c
	return &out, nil
}

func (r *MemoryRepository) AddCreative(ctx context.Context, cr *models.Creative) error {
	unlock, err := r.lock(ctx, cr.CampaignID)
	if err != nil {
		return err
	}
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.campaigns[cr.CampaignID]; !ok {
		return fmt.Errorf("%w: campaign %s", models.ErrNotFound, cr.CampaignID)
	}
	if cr.Primary {
		for _, id := range r.order[cr.CampaignID] {
			if r.creatives[id].Primary {
				demoted := *r.creatives[id]
				demoted.Primary = false
				demoted.UpdatedAt = cr.CreatedAt
				r.creatives[id] = &demoted
			}
		}
	}
	stored := *cr
	r.creatives[cr.ID] = &stored
	r.order[cr.CampaignID] = append(r.order[cr.CampaignID], cr.ID)
	return nil
}

func (r *MemoryRepository) DeleteCreative(ctx context.Context, campaignID, creativeID string, guard func(*models.Creative) error) (*models.Creative, error) {
	unlock, err := r.lock(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.creatives[creativeID]
	if !ok || stored.CampaignID != campaignID {
		return nil, fmt.Errorf("%w: creative %s in campaign %s", models.ErrNotFound, creativeID, campaignID)
	}
	cr := *stored
	if err := guard(&cr); err != nil {
		return nil, err
	}

	delete(r.creatives, creativeID)
	ids := r.order[campaignID]
	for i, id := range ids {
		if id == creativeID {
			r.order[campaignID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return &cr, nil
}

func (r *MemoryRepository) DeleteCampaign(ctx context.Context, id string, guard func(*models.Campaign) error) ([]models.Creative, error) {
	unlock, err := r.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("%w: campaign %s", models.ErrNotFound, id)
	}
	c := *stored
	if err := guard(&c); err != nil {
		return nil, err
	}

	removed := make([]models.Creative, 0, len(r.order[id]))
	for _, crID := range r.order[id] {
		removed = append(removed, *r.creatives[crID])
		delete(r.creatives, crID)
	}
	delete(r.order, id)
	delete(r.events, id)
	delete(r.campaigns, id)
	return removed, nil
}

func (r *MemoryRepository) CountClicks(ctx context.Context, userID, creativeID string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cr, ok := r.creatives[creativeID]
	if !ok {
		return 0, nil
	}
	count := 0
	for _, ev := range r.events[cr.CampaignID] {
		if ev.Type == models.EventClick && ev.CreativeID == creativeID && ev.UserID == userID && !ev.OccurredAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) ListEvents(ctx context.Context, campaignID string, start, end time.Time) ([]models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []models.Event
	for _, ev := range r.events[campaignID] {
		if !ev.OccurredAt.Before(start) && !ev.OccurredAt.After(end) {
			result = append(result, ev)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].OccurredAt.Before(result[j].OccurredAt) })
	return result, nil
}
