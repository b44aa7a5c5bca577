package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

// maxBuckets bounds the size of one statistics response.
const maxBuckets = 5000

// Statistics rebuilds per-interval counts from the event log. It never reads
// the campaign's running counters.
type Statistics struct {
	repository CampaignRepository
	now        func() time.Time
}

func NewStatistics(deps Dependencies, opts Options) *Statistics {
	return &Statistics{repository: deps.Repository, now: opts.withDefaults().Now}
}

// ByInterval partitions [start, end] into buckets and aggregates the
// campaign's events into them. Hourly, daily and weekly buckets have a fixed
// width; monthly buckets follow calendar months.
func (s *Statistics) ByInterval(ctx context.Context, req models.StatisticsRequest) ([]models.StatBucket, error) {
	if req.Granularity == "" {
		req.Granularity = models.GranularityDaily
	}
	if !req.Granularity.IsValid() {
		return nil, models.Validationf("invalid interval %q", req.Granularity)
	}

	c, err := s.repository.GetCampaign(ctx, req.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign %s: %w", req.CampaignID, models.AsTransient(err))
	}
	if err := authorize(ctx, c.ClientID); err != nil {
		return nil, err
	}

	start, end := req.Start.UTC(), req.End.UTC()
	if req.Start.IsZero() {
		start = c.Dates.Start
	}
	if req.End.IsZero() {
		end = c.Dates.End
		if now := s.now().UTC(); now.Before(end) {
			end = now
		}
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start %s must be before end %s", models.ErrInvalidDateRange,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	buckets, err := newBuckets(start, end, req.Granularity)
	if err != nil {
		return nil, err
	}

	events, err := s.repository.ListEvents(ctx, c.ID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", models.AsTransient(err))
	}

	for i := range events {
		ev := &events[i]
		at := ev.OccurredAt.UTC()
		if at.Before(start) || at.After(end) {
			continue
		}
		// Index of the last bucket starting at or before the event.
		idx := sort.Search(len(buckets), func(j int) bool { return buckets[j].PeriodStart.After(at) }) - 1
		if idx < 0 {
			continue
		}
		b := &buckets[idx]
		switch ev.Type {
		case models.EventImpression:
			b.Impressions++
		case models.EventClick:
			b.Clicks++
		case models.EventConversion:
			b.Conversions++
			b.ConversionValue = b.ConversionValue.Add(ev.Value)
		}
	}

	for i := range buckets {
		buckets[i].RecomputeCTR()
	}
	return buckets, nil
}

// newBuckets returns empty buckets covering [start, end]. The first bucket
// starts at start truncated to the granularity. When end lies exactly on a
// boundary the bucket opening at end is included, so an event at end lands in
// the period that contains it.
func newBuckets(start, end time.Time, g models.Granularity) ([]models.StatBucket, error) {
	var (
		first time.Time
		next  func(time.Time) time.Time
	)
	switch g {
	case models.GranularityHourly:
		first = start.Truncate(time.Hour)
		next = func(t time.Time) time.Time { return t.Add(time.Hour) }
	case models.GranularityDaily:
		first = startOfDay(start)
		next = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	case models.GranularityWeekly:
		first = startOfDay(start)
		next = func(t time.Time) time.Time { return t.AddDate(0, 0, 7) }
	case models.GranularityMonthly:
		first = time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
		next = func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	}

	var buckets []models.StatBucket
	for t := first; !t.After(end); t = next(t) {
		if len(buckets) == maxBuckets {
			return nil, models.Validationf("range yields more than %d %s buckets", maxBuckets, g)
		}
		buckets = append(buckets, models.StatBucket{PeriodStart: t, ConversionValue: decimal.Zero})
	}
	return buckets, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
