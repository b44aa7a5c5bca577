package middleware

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/shopspring/decimal"

	reqcontext "github.com/prajwalbharadwajbm/adserve/internal/context"
	"github.com/prajwalbharadwajbm/adserve/internal/models"
	"github.com/prajwalbharadwajbm/adserve/internal/service"
)

// loggingMiddleware logs every AdEngine call with its request metadata
type loggingMiddleware struct {
	logger log.Logger
	next   service.AdEngine
}

// NewLoggingMiddleware creates a new logging middleware
func NewLoggingMiddleware(logger log.Logger) func(service.AdEngine) service.AdEngine {
	return func(next service.AdEngine) service.AdEngine {
		return &loggingMiddleware{
			logger: logger,
			next:   next,
		}
	}
}

// log writes one line per call. Domain rejections are logged at info, store
// failures at error.
func (mw *loggingMiddleware) log(ctx context.Context, method string, begin time.Time, err error, keyvals ...interface{}) {
	info := reqcontext.GetRequestInfo(ctx)

	logFields := []interface{}{
		"method", method,
		"request_id", info.ID,
		"took", time.Since(begin),
	}
	if info.CallerID != "" {
		logFields = append(logFields, "caller", info.CallerID)
	}
	if info.UserAgent != "" {
		logFields = append(logFields, "user_agent", info.UserAgent)
	}
	if info.RemoteAddr != "" {
		logFields = append(logFields, "remote_addr", info.RemoteAddr)
	}
	logFields = append(logFields, keyvals...)

	logger := level.Info(mw.logger)
	if err != nil {
		logFields = append(logFields, "error", err.Error(), "success", false)
		if Outcome(err) == outcomeTransient || Outcome(err) == outcomeInternal {
			logger = level.Error(mw.logger)
		}
	} else {
		logFields = append(logFields, "success", true)
	}
	logger.Log(logFields...)
}

func (mw *loggingMiddleware) ActiveAds(ctx context.Context, req models.SelectionRequest) (ads []models.AdView, err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "ActiveAds", begin, err,
			"placement", req.Placement,
			"type", req.Type,
			"limit", req.Limit,
			"ads_count", len(ads),
		)
	}(time.Now())

	return mw.next.ActiveAds(ctx, req)
}

func (mw *loggingMiddleware) RecordImpression(ctx context.Context, in models.ImpressionInput) (err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "RecordImpression", begin, err,
			"campaign_id", in.CampaignID,
			"creative_id", in.CreativeID,
			"viewability", in.Viewability,
		)
	}(time.Now())

	return mw.next.RecordImpression(ctx, in)
}

func (mw *loggingMiddleware) RecordClick(ctx context.Context, in models.ClickInput) (err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "RecordClick", begin, err,
			"campaign_id", in.CampaignID,
			"creative_id", in.CreativeID,
		)
	}(time.Now())

	return mw.next.RecordClick(ctx, in)
}

func (mw *loggingMiddleware) RecordConversion(ctx context.Context, in models.ConversionInput) (err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "RecordConversion", begin, err,
			"campaign_id", in.CampaignID,
			"creative_id", in.CreativeID,
			"conversion_type", in.ConversionType,
			"value", in.Value.String(),
		)
	}(time.Now())

	return mw.next.RecordConversion(ctx, in)
}

func (mw *loggingMiddleware) CreateCampaign(ctx context.Context, in models.NewCampaignInput) (c *models.CampaignWithCreatives, err error) {
	defer func(begin time.Time) {
		id := ""
		if c != nil {
			id = c.ID
		}
		mw.log(ctx, "CreateCampaign", begin, err,
			"campaign_id", id,
			"client_id", in.ClientID,
			"total", in.Total.String(),
			"creatives", len(in.Creatives),
		)
	}(time.Now())

	return mw.next.CreateCampaign(ctx, in)
}

func (mw *loggingMiddleware) GetCampaign(ctx context.Context, id string) (c *models.CampaignWithCreatives, err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "GetCampaign", begin, err, "campaign_id", id)
	}(time.Now())

	return mw.next.GetCampaign(ctx, id)
}

func (mw *loggingMiddleware) UpdateCampaignStatus(ctx context.Context, id string, status models.CampaignStatus) (c *models.Campaign, err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "UpdateCampaignStatus", begin, err, "campaign_id", id, "status", status)
	}(time.Now())

	return mw.next.UpdateCampaignStatus(ctx, id, status)
}

func (mw *loggingMiddleware) UpdateCampaignBudget(ctx context.Context, id string, total decimal.Decimal) (c *models.Campaign, err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "UpdateCampaignBudget", begin, err, "campaign_id", id, "total", total.String())
	}(time.Now())

	return mw.next.UpdateCampaignBudget(ctx, id, total)
}

func (mw *loggingMiddleware) DeleteCampaign(ctx context.Context, id string) (err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "DeleteCampaign", begin, err, "campaign_id", id)
	}(time.Now())

	return mw.next.DeleteCampaign(ctx, id)
}

func (mw *loggingMiddleware) AddCreative(ctx context.Context, campaignID string, in models.NewCreativeInput) (cr *models.Creative, err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "AddCreative", begin, err, "campaign_id", campaignID, "primary", in.Primary)
	}(time.Now())

	return mw.next.AddCreative(ctx, campaignID, in)
}

func (mw *loggingMiddleware) RemoveCreative(ctx context.Context, campaignID, creativeID string) (err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "RemoveCreative", begin, err, "campaign_id", campaignID, "creative_id", creativeID)
	}(time.Now())

	return mw.next.RemoveCreative(ctx, campaignID, creativeID)
}

func (mw *loggingMiddleware) CampaignStatistics(ctx context.Context, req models.StatisticsRequest) (buckets []models.StatBucket, err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "CampaignStatistics", begin, err,
			"campaign_id", req.CampaignID,
			"interval", req.Granularity,
			"buckets", len(buckets),
		)
	}(time.Now())

	return mw.next.CampaignStatistics(ctx, req)
}
