package nominasdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal HTTP client for the weekly closure API.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base path, e.g.
// http://localhost:8080/v1.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Week represents an operational week.
type Week struct {
	ID        string  `json:"id"`
	Code      string  `json:"code"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	State     string  `json:"state"`
	ClosedAt  *string `json:"closed_at,omitempty"`
	ClosedBy  *string `json:"closed_by,omitempty"`
	Version   int     `json:"version"`
}

// BlockingUnit is a work unit keeping a week from closing.
type BlockingUnit struct {
	UnitID    string  `json:"unit_id"`
	Code      string  `json:"code"`
	ProjectID string  `json:"project_id"`
	State     string  `json:"state"`
	Target    float64 `json:"target"`
	Executed  float64 `json:"executed"`
	Shortfall float64 `json:"shortfall"`
}

// CloseCheck reports whether a week may close.
type CloseCheck struct {
	WeekID   string         `json:"week_id"`
	Allowed  bool           `json:"allowed"`
	Reasons  []string       `json:"reasons"`
	Blocking []BlockingUnit `json:"blocking_units"`
}

// Failure is one failed item of a batch.
type Failure struct {
	Key string `json:"key"`
	Err string `json:"error"`
}

// WeekReport summarises a processing run over a week.
type WeekReport struct {
	Week           Week `json:"week"`
	Consolidations struct {
		Succeeded int       `json:"succeeded"`
		Failures  []Failure `json:"failures,omitempty"`
	} `json:"consolidations"`
	Indicators Indicator `json:"indicators"`
	Alerts     struct {
		Alerts  []Alert `json:"alerts"`
		Created int     `json:"created"`
	} `json:"alerts"`
}

// Indicator is a performance snapshot (partial).
type Indicator struct {
	ID                  string  `json:"id"`
	WeekID              string  `json:"week_id"`
	ScopeKind           string  `json:"scope_kind"`
	ScopeRef            string  `json:"scope_ref,omitempty"`
	Workers             int     `json:"workers"`
	TotalExecuted       float64 `json:"total_executed"`
	UnitsAssigned       int     `json:"units_assigned"`
	UnitsMet            int     `json:"units_met"`
	TargetCompliancePct float64 `json:"target_compliance_pct"`
	Alerts              int     `json:"alerts"`
	CriticalAlerts      int     `json:"critical_alerts"`
}

// Alert represents a raised alert (partial).
type Alert struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	WeekID   string `json:"week_id"`
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Entity   struct {
		Kind string `json:"kind"`
		ID   string `json:"id"`
	} `json:"entity"`
	Observed float64 `json:"observed"`
	Expected float64 `json:"expected"`
	Message  string  `json:"message"`
	State    string  `json:"state"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// AlertQuery filters ListAlerts. Empty fields are ignored.
type AlertQuery struct {
	Week     string
	State    string
	Kind     string
	Severity string
	Limit    int
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Code returns the error code of the response envelope, or "" when the body is not one.
func (e *APIError) Code() string {
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(e.Body), &env) != nil {
		return ""
	}
	return env.Error.Code
}

// ResolveWeek returns the week covering date, creating it when missing.
func (c *Client) ResolveWeek(ctx context.Context, date string) (Week, error) {
	var resp Week
	err := c.do(ctx, http.MethodPost, "weeks/resolve", map[string]any{"date": date}, &resp)
	return resp, err
}

// CloseCheck reports whether the week may close. week is an id or a code.
func (c *Client) CloseCheck(ctx context.Context, week string) (CloseCheck, error) {
	var resp CloseCheck
	err := c.do(ctx, http.MethodGet, weekPath(week, "close-check"), nil, &resp)
	return resp, err
}

// CloseWeek closes the week. A week with units below target fails with code targets_unmet.
func (c *Client) CloseWeek(ctx context.Context, week string) (Week, error) {
	var resp Week
	err := c.do(ctx, http.MethodPost, weekPath(week, "close"), nil, &resp)
	return resp, err
}

// ProcessWeek consolidates the week, then computes indicators and alerts.
func (c *Client) ProcessWeek(ctx context.Context, week string) (WeekReport, error) {
	var resp WeekReport
	err := c.do(ctx, http.MethodPost, weekPath(week, "process"), nil, &resp)
	return resp, err
}

// ListAlerts returns alerts matching q.
func (c *Client) ListAlerts(ctx context.Context, q AlertQuery) ([]Alert, error) {
	v := url.Values{}
	for k, s := range map[string]string{"week": q.Week, "state": q.State, "kind": q.Kind, "severity": q.Severity} {
		if s != "" {
			v.Set(k, s)
		}
	}
	if q.Limit > 0 {
		v.Set("limit", fmt.Sprint(q.Limit))
	}
	endpoint := "alerts"
	if len(v) > 0 {
		endpoint += "?" + v.Encode()
	}
	var resp struct {
		Items []Alert `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func weekPath(week, action string) string {
	return fmt.Sprintf("weeks/%s/%s", url.PathEscape(week), action)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
