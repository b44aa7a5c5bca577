package endpoint

import (
	"context"

	"github.com/go-kit/kit/endpoint"
	"github.com/shopspring/decimal"

	"github.com/prajwalbharadwajbm/adserve/internal/models"
	"github.com/prajwalbharadwajbm/adserve/internal/service"
)

// Endpoints holds one go-kit endpoint per engine operation
type Endpoints struct {
	ActiveAdsEndpoint            endpoint.Endpoint
	RecordImpressionEndpoint     endpoint.Endpoint
	RecordClickEndpoint          endpoint.Endpoint
	RecordConversionEndpoint     endpoint.Endpoint
	CreateCampaignEndpoint       endpoint.Endpoint
	GetCampaignEndpoint          endpoint.Endpoint
	UpdateCampaignStatusEndpoint endpoint.Endpoint
	UpdateCampaignBudgetEndpoint endpoint.Endpoint
	DeleteCampaignEndpoint       endpoint.Endpoint
	AddCreativeEndpoint          endpoint.Endpoint
	RemoveCreativeEndpoint       endpoint.Endpoint
	CampaignStatisticsEndpoint   endpoint.Endpoint
}

// MakeEndpoints creates the endpoints of an engine
func MakeEndpoints(s service.AdEngine) Endpoints {
	return Endpoints{
		ActiveAdsEndpoint:            makeActiveAdsEndpoint(s),
		RecordImpressionEndpoint:     makeRecordImpressionEndpoint(s),
		RecordClickEndpoint:          makeRecordClickEndpoint(s),
		RecordConversionEndpoint:     makeRecordConversionEndpoint(s),
		CreateCampaignEndpoint:       makeCreateCampaignEndpoint(s),
		GetCampaignEndpoint:          makeGetCampaignEndpoint(s),
		UpdateCampaignStatusEndpoint: makeUpdateCampaignStatusEndpoint(s),
		UpdateCampaignBudgetEndpoint: makeUpdateCampaignBudgetEndpoint(s),
		DeleteCampaignEndpoint:       makeDeleteCampaignEndpoint(s),
		AddCreativeEndpoint:          makeAddCreativeEndpoint(s),
		RemoveCreativeEndpoint:       makeRemoveCreativeEndpoint(s),
		CampaignStatisticsEndpoint:   makeCampaignStatisticsEndpoint(s),
	}
}

// Every response carries the service error instead of returning it, so that
// the transport can tell business failures from transport failures.

// ActiveAdsRequest asks for the creatives of one placement
type ActiveAdsRequest struct {
	Selection models.SelectionRequest
}

// ActiveAdsResponse is the ranked list of creatives
type ActiveAdsResponse struct {
	Ads []models.AdView `json:"ads"`
	Err error           `json:"-"`
}

// Failed implements the endpoint.Failer interface
func (r ActiveAdsResponse) Failed() error { return r.Err }

func makeActiveAdsEndpoint(s service.AdEngine) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(ActiveAdsRequest)
		ads, err := s.ActiveAds(ctx, req.Selection)
		return ActiveAdsResponse{Ads: ads, Err: err}, nil
	}
}

// EventResponse acknowledges a recorded event
type EventResponse struct {
	Status string `json:"status"`
	Err    error  `json:"-"`
}

// Failed implements the endpoint.Failer interface
func (r EventResponse) Failed() error { return r.Err }

func eventResponse(err error) EventResponse {
	if err != nil {
		return EventResponse{Err: err}
	}
	return EventResponse{Status: "ok"}
}

// RecordImpressionRequest reports one impression
type RecordImpressionRequest struct {
	Impression models.ImpressionInput
}

func makeRecordImpressionEndpoint(s service.AdEngine) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(RecordImpressionRequest)
		return eventResponse(s.RecordImpression(ctx, req.Impression)), nil
	}
}

// RecordClickRequest reports one click
type RecordClickRequest struct {
	Click models.ClickInput
}

func makeRecordClickEndpoint(s service.AdEngine) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(RecordClickRequest)
		return eventResponse(s.RecordClick(ctx, req.Click)), nil
	}
}

// RecordConversionRequest reports one conversion
type RecordConversionRequest struct {
	Conversion models.ConversionInput
}

func makeRecordConversionEndpoint(s service.AdEngine) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(RecordConversionRequest)
		return eventResponse(s.RecordConversion(ctx, req.Conversion)), nil
	}
}

// CreateCampaignRequest carries a new campaign
type CreateCampaignRequest struct {
	Campaign models.NewCampaignInput
}

// CampaignResponse returns a campaign with its creatives
type CampaignResponse struct {
	Campaign *models.CampaignWithCreatives `json:"campaign,omitempty"`
	Err      error                         `json:"-"`
}

// Failed implements the endpoint.Failer interface
func (r CampaignResponse) Failed() error { return r.Err }

func makeCreateCampaignEndpoint(s service.AdEngine) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(CreateCampaignRequest)
		c, err := s.CreateCampaign(ctx, req.Campaign)
		return CampaignResponse{Campaign: c, Err: err}, nil
	}
}

// GetCampaignRequest selects a campaign by id
type GetCampaignRequest struct {
	ID string
}

func makeGetCampaignEndpoint(s service.AdEngine) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(GetCampaignRequest)
		c, err := s.GetCampaign(ctx, req.ID)
		return CampaignResponse{Campaign: c, Err: err}, nil
	}
}

// CampaignUpdateResponse returns the campaign after a status or budget change
type CampaignUpdateResponse struct {
	Campaign *models.Campaign `json:"campaign,omitempty"`
	Err      error            `json:"-"`
}

// Failed implements the endpoint.Failer interface
func (r CampaignUpdateResponse) Failed() error { return r.Err }

// UpdateCampaignStatusRequest moves a campaign to a new status
type UpdateCampaignStatusRequest struct {
	ID     string
	Status models.CampaignStatus `json:"status"`
}

func makeUpdateCampaignStatusEndpoint(s service.AdEngine) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(UpdateCampaignStatusRequest)
		c, err := s.UpdateCampaignStatus(ctx, req.ID, req.Status)
		return CampaignUpdateResponse{Campaign: c, Err: err}, nil
	}
}

// UpdateCampaignBudgetRequest replaces a campaign's total budget
type UpdateCampaignBudgetRequest struct {
	ID    string
	Total decimal.Decimal `json:"total"`
}

func makeUpdateCampaignBudgetEndpoint(s service.AdEngine) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(UpdateCampaignBudgetRequest)
		c, err := s.UpdateCampaignBudget(ctx, req.ID, req.Total)
		return CampaignUpdateResponse{Campaign: c, Err: err}, nil
	}
}

// DeleteCampaignRequest removes a campaign
type DeleteCampaignRequest struct {
	ID string
}

// EmptyResponse is returned by operations without a body
type EmptyResponse struct {
	Err error `json:"-"`
}

// Failed implements the endpoint.Failer interface
func (r EmptyResponse) Failed() error { return r.Err }

func makeDeleteCampaignEndpoint(s service.AdEngine) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(DeleteCampaignRequest)
		return EmptyResponse{Err: s.DeleteCampaign(ctx, req.ID)}, nil
	}
}

// AddCreativeRequest attaches a creative to a campaign
type AddCreativeRequest struct {
	CampaignID string
	Creative   models.NewCreativeInput
}

// CreativeResponse returns a stored creative
type CreativeResponse struct {
	Creative *models.Creative `json:"creative,omitempty"`
	Err      error            `json:"-"`
}

// Failed implements the endpoint.Failer interface
func (r CreativeResponse) Failed() error { return r.Err }

func makeAddCreativeEndpoint(s service.AdEngine) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(AddCreativeRequest)
		cr, err := s.AddCreative(ctx, req.CampaignID, req.Creative)
		return CreativeResponse{Creative: cr, Err: err}, nil
	}
}

// RemoveCreativeRequest deletes a creative from a campaign
type RemoveCreativeRequest struct {
	CampaignID string
	CreativeID string
}

func makeRemoveCreativeEndpoint(s service.AdEngine) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(RemoveCreativeRequest)
		return EmptyResponse{Err: s.RemoveCreative(ctx, req.CampaignID, req.CreativeID)}, nil
	}
}

// CampaignStatisticsRequest asks for bucketed campaign statistics
type CampaignStatisticsRequest struct {
	Statistics models.StatisticsRequest
}

// CampaignStatisticsResponse is the list of buckets
type CampaignStatisticsResponse struct {
	Buckets []models.StatBucket `json:"buckets"`
	Err     error               `json:"-"`
}

// Failed implements the endpoint.Failer interface
func (r CampaignStatisticsResponse) Failed() error { return r.Err }

func makeCampaignStatisticsEndpoint(s service.AdEngine) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(CampaignStatisticsRequest)
		buckets, err := s.CampaignStatistics(ctx, req.Statistics)
		return CampaignStatisticsResponse{Buckets: buckets, Err: err}, nil
	}
}

// ActiveAds is a helper method to call the endpoint
func (e Endpoints) ActiveAds(ctx context.Context, req models.SelectionRequest) ([]models.AdView, error) {
	response, err := e.ActiveAdsEndpoint(ctx, ActiveAdsRequest{Selection: req})
	if err != nil {
		return nil, err
	}
	resp := response.(ActiveAdsResponse)
	return resp.Ads, resp.Err
}
