package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/kit/endpoint"
	kittransport "github.com/go-kit/kit/transport"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/go-kit/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	adendpoint "github.com/prajwalbharadwajbm/adserve/internal/endpoint"
	"github.com/prajwalbharadwajbm/adserve/internal/metrics"
	"github.com/prajwalbharadwajbm/adserve/internal/middleware"
	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// HealthCheck probes one dependency; a nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Options configure the HTTP handler
type Options struct {
	Service      string
	Version      string
	HealthChecks map[string]HealthCheck
	Metrics      *metrics.Metrics
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// NewHTTPHandler creates the HTTP handler of the engine endpoints
func NewHTTPHandler(endpoints adendpoint.Endpoints, opts Options, logger log.Logger) http.Handler {
	options := []httptransport.ServerOption{
		httptransport.ServerErrorEncoder(encodeError),
		httptransport.ServerErrorHandler(kittransport.NewLogErrorHandler(logger)),
	}

	server := func(e endpoint.Endpoint, dec httptransport.DecodeRequestFunc, status int) http.Handler {
		return httptransport.NewServer(e, dec, encodeResponse(status), options...)
	}

	r := mux.NewRouter()
	r.Use(
		middleware.NewRequestIDMiddleware().Middleware,
		middleware.NewMetricsMiddleware(opts.Metrics).Middleware,
	)

	v1 := r.PathPrefix("/v1").Subrouter()

	// Serving
	v1.Handle("/ads", server(endpoints.ActiveAdsEndpoint, decodeActiveAdsRequest, http.StatusOK)).Methods(http.MethodGet)

	// Event ingestion
	v1.Handle("/events/impressions", server(endpoints.RecordImpressionEndpoint, decodeImpressionRequest, http.StatusAccepted)).
		Methods(http.MethodPost, http.MethodGet)
	v1.Handle("/events/clicks", server(endpoints.RecordClickEndpoint, decodeClickRequest, http.StatusAccepted)).
		Methods(http.MethodPost, http.MethodGet)
	v1.Handle("/events/conversions", server(endpoints.RecordConversionEndpoint, decodeConversionRequest, http.StatusAccepted)).
		Methods(http.MethodPost, http.MethodGet)

	// Campaign management
	v1.Handle("/campaigns", server(endpoints.CreateCampaignEndpoint, decodeCreateCampaignRequest, http.StatusCreated)).
		Methods(http.MethodPost)
	v1.Handle("/campaigns/{id}", server(endpoints.GetCampaignEndpoint, decodeGetCampaignRequest, http.StatusOK)).
		Methods(http.MethodGet)
	v1.Handle("/campaigns/{id}", server(endpoints.DeleteCampaignEndpoint, decodeDeleteCampaignRequest, http.StatusNoContent)).
		Methods(http.MethodDelete)
	v1.Handle("/campaigns/{id}/status", server(endpoints.UpdateCampaignStatusEndpoint, decodeUpdateStatusRequest, http.StatusOK)).
		Methods(http.MethodPatch)
	v1.Handle("/campaigns/{id}/budget", server(endpoints.UpdateCampaignBudgetEndpoint, decodeUpdateBudgetRequest, http.StatusOK)).
		Methods(http.MethodPatch)
	v1.Handle("/campaigns/{id}/creatives", server(endpoints.AddCreativeEndpoint, decodeAddCreativeRequest, http.StatusCreated)).
		Methods(http.MethodPost)
	v1.Handle("/campaigns/{id}/creatives/{creativeId}", server(endpoints.RemoveCreativeEndpoint, decodeRemoveCreativeRequest, http.StatusNoContent)).
		Methods(http.MethodDelete)
	v1.Handle("/campaigns/{id}/statistics", server(endpoints.CampaignStatisticsEndpoint, decodeStatisticsRequest, http.StatusOK)).
		Methods(http.MethodGet)

	// Operations
	r.Handle("/health", healthHandler(opts)).Methods(http.MethodGet)
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return r
}

// decodeActiveAdsRequest reads the selection from the query string
func decodeActiveAdsRequest(_ context.Context, r *http.Request) (interface{}, error) {
	query := r.URL.Query()

	limit, err := queryInt(query, "limit")
	if err != nil {
		return nil, err
	}
	age, err := queryInt(query, "age")
	if err != nil {
		return nil, err
	}

	req := models.SelectionRequest{
		Placement: query.Get("placement"),
		Type:      models.AdType(query.Get("type")),
		Limit:     limit,
		Category:  query.Get("category"),
		Context: models.RequestContext{
			UserID:    firstOf(query, "user_id", "userId"),
			Region:    query.Get("region"),
			Country:   query.Get("country"),
			City:      query.Get("city"),
			Age:       age,
			Gender:    query.Get("gender"),
			Interests: queryList(query, "interests"),
			Segment:   query.Get("segment"),
			Device:    query.Get("device"),
			OS:        query.Get("os"),
			Browser:   query.Get("browser"),
		},
	}
	return adendpoint.ActiveAdsRequest{Selection: req}, nil
}

// Event callbacks come either as a JSON body or as the query string of a
// tracking URL; query values fill whatever the body left empty.

func decodeImpressionRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var in models.ImpressionInput
	if err := decodeOptionalBody(r, &in); err != nil {
		return nil, err
	}
	query := r.URL.Query()
	fillEventContext(&in.EventContext, query)
	if in.Viewability == 0 && query.Has("viewability") {
		v, err := strconv.ParseFloat(query.Get("viewability"), 64)
		if err != nil {
			return nil, models.Validationf("invalid viewability %q", query.Get("viewability"))
		}
		in.Viewability = v
	}
	return adendpoint.RecordImpressionRequest{Impression: in}, nil
}

func decodeClickRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var in models.ClickInput
	if err := decodeOptionalBody(r, &in); err != nil {
		return nil, err
	}
	fillEventContext(&in.EventContext, r.URL.Query())
	return adendpoint.RecordClickRequest{Click: in}, nil
}

func decodeConversionRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var in models.ConversionInput
	if err := decodeOptionalBody(r, &in); err != nil {
		return nil, err
	}
	query := r.URL.Query()
	fillEventContext(&in.EventContext, query)
	if in.ConversionType == "" {
		in.ConversionType = models.ConversionType(firstOf(query, "conversionType", "type"))
	}
	if in.Value.IsZero() && query.Has("value") {
		v, err := decimal.NewFromString(query.Get("value"))
		if err != nil {
			return nil, models.Validationf("invalid value %q", query.Get("value"))
		}
		in.Value = v
	}
	return adendpoint.RecordConversionRequest{Conversion: in}, nil
}

func fillEventContext(ec *models.EventContext, query url.Values) {
	fill := func(dst *string, keys ...string) {
		if *dst == "" {
			*dst = firstOf(query, keys...)
		}
	}
	fill(&ec.CampaignID, "campaignId", "campaign_id")
	fill(&ec.CreativeID, "creativeId", "creative_id")
	fill(&ec.UserID, "userId", "user_id")
	fill(&ec.PageURL, "pageUrl", "page_url")
	fill(&ec.Position, "position")
	fill(&ec.Device.Type, "device")
	fill(&ec.Device.OS, "os")
	fill(&ec.Device.Browser, "browser")
}

func decodeCreateCampaignRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var in models.NewCampaignInput
	if err := decodeBody(r, &in); err != nil {
		return nil, err
	}
	return adendpoint.CreateCampaignRequest{Campaign: in}, nil
}

func decodeGetCampaignRequest(_ context.Context, r *http.Request) (interface{}, error) {
	return adendpoint.GetCampaignRequest{ID: mux.Vars(r)["id"]}, nil
}

func decodeDeleteCampaignRequest(_ context.Context, r *http.Request) (interface{}, error) {
	return adendpoint.DeleteCampaignRequest{ID: mux.Vars(r)["id"]}, nil
}

func decodeUpdateStatusRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req adendpoint.UpdateCampaignStatusRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	req.ID = mux.Vars(r)["id"]
	req.Status = models.CampaignStatus(strings.ToLower(strings.TrimSpace(string(req.Status))))
	if req.Status == "" {
		return nil, models.Validationf("status is required")
	}
	return req, nil
}

func decodeUpdateBudgetRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var body struct {
		Total *decimal.Decimal `json:"total"`
	}
	if err := decodeBody(r, &body); err != nil {
		return nil, err
	}
	if body.Total == nil {
		return nil, models.Validationf("total is required")
	}
	return adendpoint.UpdateCampaignBudgetRequest{ID: mux.Vars(r)["id"], Total: *body.Total}, nil
}

func decodeAddCreativeRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var in models.NewCreativeInput
	if err := decodeBody(r, &in); err != nil {
		return nil, err
	}
	return adendpoint.AddCreativeRequest{CampaignID: mux.Vars(r)["id"], Creative: in}, nil
}

func decodeRemoveCreativeRequest(_ context.Context, r *http.Request) (interface{}, error) {
	vars := mux.Vars(r)
	return adendpoint.RemoveCreativeRequest{CampaignID: vars["id"], CreativeID: vars["creativeId"]}, nil
}

func decodeStatisticsRequest(_ context.Context, r *http.Request) (interface{}, error) {
	query := r.URL.Query()
	start, err := queryTime(query, "start")
	if err != nil {
		return nil, err
	}
	end, err := queryTime(query, "end")
	if err != nil {
		return nil, err
	}
	return adendpoint.CampaignStatisticsRequest{Statistics: models.StatisticsRequest{
		CampaignID:  mux.Vars(r)["id"],
		Start:       start,
		End:         end,
		Granularity: models.Granularity(strings.ToLower(query.Get("interval"))),
	}}, nil
}

// decodeBody decodes a required JSON body
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return models.Validationf("request body is required")
		}
		return models.Validationf("invalid request body: %v", err)
	}
	return nil
}

// decodeOptionalBody decodes a JSON body when one is present
func decodeOptionalBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return models.Validationf("failed to read request body: %v", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return models.Validationf("invalid request body: %v", err)
	}
	return nil
}

func firstOf(query url.Values, keys ...string) string {
	for _, k := range keys {
		if v := query.Get(k); v != "" {
			return v
		}
	}
	return ""
}

func queryInt(query url.Values, key string) (int, error) {
	raw := query.Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, models.Validationf("invalid %s param %q", key, raw)
	}
	return v, nil
}

// queryList accepts both repeated keys and comma separated values.
func queryList(query url.Values, key string) []string {
	var out []string
	for _, raw := range query[key] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// queryTime accepts RFC 3339 timestamps and plain dates (UTC midnight).
func queryTime(query url.Values, key string) (time.Time, error) {
	raw := query.Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, models.Validationf("invalid %s %q: want RFC 3339 or YYYY-MM-DD", key, raw)
}

// encodeResponse writes a successful response with the given status, or the
// error carried by a failed one
func encodeResponse(status int) httptransport.EncodeResponseFunc {
	return func(ctx context.Context, w http.ResponseWriter, response interface{}) error {
		if f, ok := response.(endpoint.Failer); ok && f.Failed() != nil {
			encodeError(ctx, f.Failed(), w)
			return nil
		}

		var body any
		switch resp := response.(type) {
		case adendpoint.ActiveAdsResponse:
			// No eligible ads is an empty list, never 204 or null.
			if resp.Ads == nil {
				resp.Ads = []models.AdView{}
			}
			body = resp.Ads
		case adendpoint.EventResponse:
			body = resp
		case adendpoint.CampaignResponse:
			body = resp.Campaign
		case adendpoint.CampaignUpdateResponse:
			body = resp.Campaign
		case adendpoint.CreativeResponse:
			body = resp.Creative
		case adendpoint.CampaignStatisticsResponse:
			if resp.Buckets == nil {
				resp.Buckets = []models.StatBucket{}
			}
			body = resp.Buckets
		case adendpoint.EmptyResponse:
			w.WriteHeader(status)
			return nil
		default:
			return fmt.Errorf("unexpected response type %T", response)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		return json.NewEncoder(w).Encode(body)
	}
}

// StatusCode maps the error taxonomy onto HTTP status codes
func StatusCode(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrInvalidDateRange),
		errors.Is(err, models.ErrInvalidBudget):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidState), errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrBudgetExhausted):
		return http.StatusConflict
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// encodeError encodes error to HTTP response
func encodeError(_ context.Context, err error, w http.ResponseWriter) {
	status := StatusCode(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.NewErrorResponse(message))
}

// healthHandler runs every dependency check and reports 503 when one fails
func healthHandler(opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := "healthy"
		code := http.StatusOK
		checks := make(map[string]string, len(opts.HealthChecks))
		for name, check := range opts.HealthChecks {
			err := check(ctx)
			opts.Metrics.SetHealthCheckStatus(name, err == nil)
			if err != nil {
				checks[name] = err.Error()
				status = "unhealthy"
				code = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		response := map[string]any{
			"status":  status,
			"service": opts.Service,
			"version": opts.Version,
			"checks":  checks,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(response)
	}
}
