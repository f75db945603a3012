package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-harvest/internal/resilience"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/place"

// Response status values reported in the payload of the Places JSON API.
const (
	StatusOK             = "OK"
	StatusZeroResults    = "ZERO_RESULTS"
	StatusOverQueryLimit = "OVER_QUERY_LIMIT"
	StatusRequestDenied  = "REQUEST_DENIED"
	StatusInvalidRequest = "INVALID_REQUEST"
	StatusUnknownError   = "UNKNOWN_ERROR"
	StatusNotFound       = "NOT_FOUND"
)

// Business status values.
const (
	BusinessOperational       = "OPERATIONAL"
	BusinessClosedTemporarily = "CLOSED_TEMPORARILY"
	BusinessClosedPermanently = "CLOSED_PERMANENTLY"
)

// DefaultDetailFields is the field mask requested from Place Details.
var DefaultDetailFields = []string{"formatted_phone_number", "website", "business_status"}

// Client performs Google Places API operations. Errors carry the
// resilience taxonomy (transient, rate-limited, terminal) at the outermost
// layer so callers can classify them without unwrapping.
type Client interface {
	TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error)
	PlaceDetails(ctx context.Context, placeID string, fields []string) (*PlaceDetailsResponse, error)
}

// TextSearchRequest is one page request against Text Search. PageToken is
// the continuation cursor from the previous page, empty for the first page.
type TextSearchRequest struct {
	Query     string
	PageToken string
}

// TextSearchResponse is one page of Text Search results.
type TextSearchResponse struct {
	Results       []Place `json:"results"`
	NextPageToken string  `json:"next_page_token,omitempty"`
	Status        string  `json:"status"`
	ErrorMessage  string  `json:"error_message,omitempty"`
}

// Place represents a place returned by Text Search.
type Place struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address,omitempty"`
	Rating           *float64 `json:"rating,omitempty"`
	UserRatingsTotal *int     `json:"user_ratings_total,omitempty"`
	BusinessStatus   string   `json:"business_status,omitempty"`
	Website          string   `json:"website,omitempty"`
}

// PlaceDetailsResponse is the response from Place Details.
type PlaceDetailsResponse struct {
	Result       PlaceDetails `json:"result"`
	Status       string       `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

// PlaceDetails holds the contact and status fields of one place.
type PlaceDetails struct {
	FormattedPhoneNumber string `json:"formatted_phone_number,omitempty"`
	Website              string `json:"website,omitempty"`
	BusinessStatus       string `json:"business_status,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Google Places API client. The returned client is safe
// for concurrent use; all callers share one pooled transport.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error) {
	params := url.Values{}
	if req.PageToken != "" {
		params.Set("pagetoken", req.PageToken)
	} else {
		params.Set("query", req.Query)
	}

	var result TextSearchResponse
	if err := c.get(ctx, "/textsearch/json", params, &result); err != nil {
		return nil, err
	}
	if err := checkStatus(result.Status, result.ErrorMessage, req.PageToken != ""); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) PlaceDetails(ctx context.Context, placeID string, fields []string) (*PlaceDetailsResponse, error) {
	if len(fields) == 0 {
		fields = DefaultDetailFields
	}
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", strings.Join(fields, ","))

	var result PlaceDetailsResponse
	if err := c.get(ctx, "/details/json", params, &result); err != nil {
		return nil, err
	}
	if err := checkStatus(result.Status, result.ErrorMessage, false); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "google: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "google: send request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "google: read response"), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("google: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return resilience.NewTerminalError(err, http.StatusText(resp.StatusCode))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "google: unmarshal response"), resp.StatusCode)
	}
	return nil
}

// checkStatus maps the payload status to the retry taxonomy. A page token
// that is not yet valid is reported as INVALID_REQUEST, which is retried.
func checkStatus(status, message string, paged bool) error {
	switch status {
	case StatusOK, StatusZeroResults:
		return nil
	case StatusOverQueryLimit:
		return resilience.NewRateLimitError(statusError(status, message))
	case StatusUnknownError:
		return resilience.NewTransientError(statusError(status, message), 0)
	case StatusInvalidRequest:
		if paged {
			return resilience.NewTransientError(statusError(status, message), 0)
		}
	case "":
		return resilience.NewTransientError(eris.New("google: response missing status"), 0)
	}
	return resilience.NewTerminalError(statusError(status, message), status)
}

func statusError(status, message string) error {
	if message == "" {
		return eris.Errorf("google: status %s", status)
	}
	return eris.Errorf("google: status %s: %s", status, message)
}
