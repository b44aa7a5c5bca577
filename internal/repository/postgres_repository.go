package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/prajwalbharadwajbm/adserve/internal/database"
	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

const campaignColumns = `id, name, ad_type, client_id, created_by,
	budget_total, budget_spent, budget_remaining, currency,
	start_at, end_at, duration_days, pricing_model, base_rate, targeting, status,
	impressions, clicks, conversions, conversion_value, ctr, cpc, cpm, roas,
	activated_at, completed_at, created_at, updated_at`

const creativeColumns = `id, campaign_id, title, description, call_to_action, destination_url,
	content, is_primary, status, impressions, clicks, conversions, ctr, created_at, updated_at`

const eventColumns = `id, event_type, campaign_id, creative_id, user_id, page_url, position,
	device, viewability, cost, conversion_type, value, metadata, occurred_at`

// PostgresRepository implements service.CampaignRepository using PostgreSQL.
// Per-campaign serialization is a row lock (SELECT ... FOR UPDATE) held for
// the duration of the mutate callback.
type PostgresRepository struct {
	db *database.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row scanner) (*models.Campaign, error) {
	var (
		c                      models.Campaign
		activatedAt, completed sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.Type, &c.ClientID, &c.CreatedBy,
		&c.Budget.Total, &c.Budget.Spent, &c.Budget.Remaining, &c.Budget.Currency,
		&c.Dates.Start, &c.Dates.End, &c.Dates.DurationDays, &c.Pricing.Model, &c.Pricing.BaseRate,
		&c.Targeting, &c.Status,
		&c.Metrics.Impressions, &c.Metrics.Clicks, &c.Metrics.Conversions, &c.Metrics.ConversionValue,
		&c.Metrics.CTR, &c.Metrics.CPC, &c.Metrics.CPM, &c.Metrics.ROAS,
		&activatedAt, &completed, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Dates.Start = c.Dates.Start.UTC()
	c.Dates.End = c.Dates.End.UTC()
	if activatedAt.Valid {
		t := activatedAt.Time.UTC()
		c.ActivatedAt = &t
	}
	if completed.Valid {
		t := completed.Time.UTC()
		c.CompletedAt = &t
	}
	return &c, nil
}

func scanCreative(row scanner) (*models.Creative, error) {
	var (
		cr      models.Creative
		content []byte
	)
	err := row.Scan(
		&cr.ID, &cr.CampaignID, &cr.Title, &cr.Description, &cr.CallToAction, &cr.DestinationURL,
		&content, &cr.Primary, &cr.Status, &cr.Impressions, &cr.Clicks, &cr.Conversions, &cr.CTR,
		&cr.CreatedAt, &cr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &cr.Content); err != nil {
			return nil, fmt.Errorf("failed to decode creative content: %w", err)
		}
	}
	return &cr, nil
}

func scanEvent(row scanner) (*models.Event, error) {
	var (
		ev               models.Event
		device, metadata []byte
	)
	err := row.Scan(
		&ev.ID, &ev.Type, &ev.CampaignID, &ev.CreativeID, &ev.UserID, &ev.PageURL, &ev.Position,
		&device, &ev.Viewability, &ev.Cost, &ev.ConversionType, &ev.Value, &metadata, &ev.OccurredAt,
	)
	if err != nil {
		return nil, err
	}
	if len(device) > 0 {
		if err := json.Unmarshal(device, &ev.Device); err != nil {
			return nil, fmt.Errorf("failed to decode event device: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode event metadata: %w", err)
		}
	}
	ev.OccurredAt = ev.OccurredAt.UTC()
	return &ev, nil
}

// mapError translates driver errors into the domain taxonomy where one applies.
func mapError(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", models.ErrNotFound, what)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return fmt.Errorf("%w: %s already exists", models.ErrValidation, what)
		case "check_violation":
			return fmt.Errorf("%w: %s violates %s", models.ErrInvalidBudget, what, pqErr.Constraint)
		}
	}
	return err
}

// inTx runs fn in a transaction, rolling back on error.
func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListServableCampaigns(ctx context.Context, now time.Time) ([]models.CampaignWithCreatives, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE status = 'active' AND start_at <= $1 AND end_at >= $1 AND budget_remaining > 0
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []models.CampaignWithCreatives
	campaignIDs := make([]string, 0)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, models.CampaignWithCreatives{Campaign: *c, Creatives: []models.Creative{}})
		campaignIDs = append(campaignIDs, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over campaign rows: %w", err)
	}

	if len(campaigns) == 0 {
		return campaigns, nil
	}

	creatives, err := r.listCreatives(ctx, r.db, campaignIDs)
	if err != nil {
		return nil, err
	}
	for i := range campaigns {
		campaigns[i].Creatives = append(campaigns[i].Creatives, creatives[campaigns[i].ID]...)
	}
	return campaigns, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// listCreatives groups the creatives of the given campaigns by campaign id.
func (r *PostgresRepository) listCreatives(ctx context.Context, q querier, campaignIDs []string) (map[string][]models.Creative, error) {
	query := `
		SELECT ` + creativeColumns + `
		FROM creatives
		WHERE campaign_id = ANY($1)
		ORDER BY campaign_id, seq
	`
	rows, err := q.QueryContext(ctx, query, pq.Array(campaignIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query creatives: %w", err)
	}
	defer rows.Close()

	byCampaign := make(map[string][]models.Creative)
	for rows.Next() {
		cr, err := scanCreative(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan creative: %w", err)
		}
		byCampaign[cr.CampaignID] = append(byCampaign[cr.CampaignID], *cr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over creative rows: %w", err)
	}
	return byCampaign, nil
}

func (r *PostgresRepository) ListCampaignsByStatus(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over campaign rows: %w", err)
	}
	return campaigns, nil
}

func (r *PostgresRepository) GetCampaign(ctx context.Context, id string) (*models.CampaignWithCreatives, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	c, err := scanCampaign(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "campaign "+id)
	}
	creatives, err := r.listCreatives(ctx, r.db, []string{id})
	if err != nil {
		return nil, err
	}
	out := &models.CampaignWithCreatives{Campaign: *c, Creatives: creatives[id]}
	if out.Creatives == nil {
		out.Creatives = []models.Creative{}
	}
	return out, nil
}

func (r *PostgresRepository) GetCreative(ctx context.Context, id string) (*models.Creative, error) {
	query := `SELECT ` + creativeColumns + ` FROM creatives WHERE id = $1`

	cr, err := scanCreative(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "creative "+id)
	}
	return cr, nil
}

func (r *PostgresRepository) GetClient(ctx context.Context, id string) (*models.Client, error) {
	var c models.Client
	err := r.db.QueryRowContext(ctx, `SELECT id, name, email FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Email)
	if err != nil {
		return nil, mapError(err, "client "+id)
	}
	return &c, nil
}

func (r *PostgresRepository) CreateCampaign(ctx context.Context, c *models.CampaignWithCreatives) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO campaigns (` + campaignColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
				$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
		`
		_, err := tx.ExecContext(ctx, query,
			c.ID, c.Name, c.Type, c.ClientID, c.CreatedBy,
			c.Budget.Total, c.Budget.Spent, c.Budget.Remaining, c.Budget.Currency,
			c.Dates.Start, c.Dates.End, c.Dates.DurationDays, c.Pricing.Model, c.Pricing.BaseRate,
			c.Targeting, c.Status,
			c.Metrics.Impressions, c.Metrics.Clicks, c.Metrics.Conversions, c.Metrics.ConversionValue,
			c.Metrics.CTR, c.Metrics.CPC, c.Metrics.CPM, c.Metrics.ROAS,
			c.ActivatedAt, c.CompletedAt, c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return mapError(fmt.Errorf("failed to insert campaign: %w", err), "campaign "+c.ID)
		}
		for i := range c.Creatives {
			if err := insertCreative(ctx, tx, &c.Creatives[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertCreative(ctx context.Context, tx *sql.Tx, cr *models.Creative) error {
	content, err := json.Marshal(cr.Content)
	if err != nil {
		return fmt.Errorf("failed to encode creative content: %w", err)
	}
	query := `
		INSERT INTO creatives (` + creativeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = tx.ExecContext(ctx, query,
		cr.ID, cr.CampaignID, cr.Title, cr.Description, cr.CallToAction, cr.DestinationURL,
		content, cr.Primary, cr.Status, cr.Impressions, cr.Clicks, cr.Conversions, cr.CTR,
		cr.CreatedAt, cr.UpdatedAt,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to insert creative: %w", err), "creative "+cr.ID)
	}
	return nil
}

// lockCampaign reads the campaign row and holds its lock until the transaction ends.
func lockCampaign(ctx context.Context, tx *sql.Tx, id string) (*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1 FOR UPDATE`
	c, err := scanCampaign(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "campaign "+id)
	}
	return c, nil
}

func saveCampaign(ctx context.Context, tx *sql.Tx, c *models.Campaign) error {
	query := `
		UPDATE campaigns SET
			budget_total = $2, budget_spent = $3, budget_remaining = $4, status = $5,
			impressions = $6, clicks = $7, conversions = $8, conversion_value = $9,
			ctr = $10, cpc = $11, cpm = $12, roas = $13,
			activated_at = $14, completed_at = $15, updated_at = $16
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query,
		c.ID, c.Budget.Total, c.Budget.Spent, c.Budget.Remaining, c.Status,
		c.Metrics.Impressions, c.Metrics.Clicks, c.Metrics.Conversions, c.Metrics.ConversionValue,
		c.Metrics.CTR, c.Metrics.CPC, c.Metrics.CPM, c.Metrics.ROAS,
		c.ActivatedAt, c.CompletedAt, c.UpdatedAt,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to update campaign: %w", err), "campaign "+c.ID)
	}
	return nil
}

func (r *PostgresRepository) UpdateCampaign(ctx context.Context, id string, mutate func(*models.Campaign) error) (*models.Campaign, error) {
	var updated *models.Campaign
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		c, err := lockCampaign(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := mutate(c); err != nil {
			return err
		}
		if err := saveCampaign(ctx, tx, c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PostgresRepository) ApplyEvent(ctx context.Context, ev *models.Event, mutate func(*models.Campaign, *models.Creative) error) (*models.Campaign, error) {
	var updated *models.Campaign
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		c, err := lockCampaign(ctx, tx, ev.CampaignID)
		if err != nil {
			return err
		}
		query := `SELECT ` + creativeColumns + ` FROM creatives WHERE id = $1 FOR UPDATE`
		cr, err := scanCreative(tx.QueryRowContext(ctx, query, ev.CreativeID))
		if err != nil {
			return mapError(err, "creative "+ev.CreativeID)
		}

		if err := mutate(c, cr); err != nil {
			return err
		}

		if err := saveCampaign(ctx, tx, c); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE creatives SET impressions = $2, clicks = $3, conversions = $4, ctr = $5, updated_at = $6
			WHERE id = $1
		`, cr.ID, cr.Impressions, cr.Clicks, cr.Conversions, cr.CTR, ev.OccurredAt)
		if err != nil {
			return fmt.Errorf("failed to update creative counters: %w", err)
		}
		if err := insertEvent(ctx, tx, ev); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev *models.Event) error {
	device, err := json.Marshal(ev.Device)
	if err != nil {
		return fmt.Errorf("failed to encode event device: %w", err)
	}
	var metadata []byte
	if len(ev.Metadata) > 0 {
		if metadata, err = json.Marshal(ev.Metadata); err != nil {
			return fmt.Errorf("failed to encode event metadata: %w", err)
		}
	}
	query := `
		INSERT INTO ad_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = tx.ExecContext(ctx, query,
		ev.ID, ev.Type, ev.CampaignID, ev.CreativeID, ev.UserID, ev.PageURL, ev.Position,
		device, ev.Viewability, ev.Cost, ev.ConversionType, ev.Value, metadata, ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AddCreative(ctx context.Context, cr *models.Creative) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := lockCampaign(ctx, tx, cr.CampaignID); err != nil {
			return err
		}
		if cr.Primary {
			_, err := tx.ExecContext(ctx, `
				UPDATE creatives SET is_primary = FALSE, updated_at = $2
				WHERE campaign_id = $1 AND is_primary
			`, cr.CampaignID, cr.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to demote primary creative: %w", err)
			}
		}
		return insertCreative(ctx, tx, cr)
	})
}

func (r *PostgresRepository) DeleteCreative(ctx context.Context, campaignID, creativeID string, guard func(*models.Creative) error) (*models.Creative, error) {
	var removed *models.Creative
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := lockCampaign(ctx, tx, campaignID); err != nil {
			return err
		}
		query := `SELECT ` + creativeColumns + ` FROM creatives WHERE id = $1 AND campaign_id = $2`
		cr, err := scanCreative(tx.QueryRowContext(ctx, query, creativeID, campaignID))
		if err != nil {
			return mapError(err, "creative "+creativeID)
		}
		if err := guard(cr); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM creatives WHERE id = $1`, creativeID); err != nil {
			return fmt.Errorf("failed to delete creative: %w", err)
		}
		removed = cr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// DeleteCampaign removes the campaign; creatives and events go with it via
// ON DELETE CASCADE.
func (r *PostgresRepository) DeleteCampaign(ctx context.Context, id string, guard func(*models.Campaign) error) ([]models.Creative, error) {
	var removed []models.Creative
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		c, err := lockCampaign(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := guard(c); err != nil {
			return err
		}
		creatives, err := r.listCreatives(ctx, tx, []string{id})
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete campaign: %w", err)
		}
		removed = creatives[id]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (r *PostgresRepository) CountClicks(ctx context.Context, userID, creativeID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM ad_events
		WHERE event_type = 'click' AND user_id = $1 AND creative_id = $2 AND occurred_at >= $3
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, creativeID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count clicks: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) ListEvents(ctx context.Context, campaignID string, start, end time.Time) ([]models.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM ad_events
		WHERE campaign_id = $1 AND occurred_at BETWEEN $2 AND $3
		ORDER BY occurred_at
	`
	rows, err := r.db.QueryContext(ctx, query, campaignID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over event rows: %w", err)
	}
	return events, nil
}
